package gotham

import (
	"encoding/json"

	"github.com/paulmach/orb/geojson"
)

// LoadLayersResponse is the body returned by the map layer load endpoint.
type LoadLayersResponse struct {
	Layers map[string]Layer `json:"layers"`
}

type Layer struct {
	ID       string         `json:"id"`
	Elements []LayerElement `json:"elements"`
}

type LayerElement struct {
	ID       string    `json:"id"`
	ParentID string    `json:"parentId"`
	Label    string    `json:"label"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Geometry *geojson.Geometry `json:"geometry"`
	Style    *FeatureStyle     `json:"style,omitempty"`
}

type FeatureStyle struct {
	Fill   *FillStyle   `json:"fill,omitempty"`
	Stroke *StrokeStyle `json:"stroke,omitempty"`
	Symbol *SymbolStyle `json:"symbol,omitempty"`
}

type FillStyle struct {
	Opacity *float64 `json:"opacity,omitempty"`
	Color   string   `json:"color,omitempty"`
}

type StrokeStyle struct {
	Width   *float64 `json:"width,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
	Color   string   `json:"color,omitempty"`
}

type SymbolStyle struct {
	Symbol *Symbol `json:"symbol,omitempty"`
}

type Symbol struct {
	Type string `json:"type"`
	SIDC string `json:"sidc"`
}

// SIDC returns the symbol identification code carried by the style, if any.
func (s *FeatureStyle) SIDC() string {
	if s == nil || s.Symbol == nil || s.Symbol.Symbol == nil {
		return ""
	}
	return s.Symbol.Symbol.SIDC
}

type loadLayersRequest struct {
	LayerIDs []string `json:"layerIds"`
}

// TargetCollectionResponse is the body of a target board fetch. The board
// columns are normally nested under "collection"; some deployments return
// them at the top level.
type TargetCollectionResponse struct {
	Collection *TargetCollection `json:"collection,omitempty"`
	Columns    []TargetColumn    `json:"columns,omitempty"`
}

type TargetCollection struct {
	RID     string         `json:"rid,omitempty"`
	Name    string         `json:"name,omitempty"`
	Columns []TargetColumn `json:"columns"`
}

type TargetColumn struct {
	Name    string            `json:"name"`
	Targets []TargetReference `json:"targets"`
}

type TargetReference struct {
	TargetRID string `json:"targetRid"`
}

// BoardColumns returns the columns of the board, or nil when the response
// carries none.
func (r *TargetCollectionResponse) BoardColumns() []TargetColumn {
	if r == nil {
		return nil
	}
	if r.Collection != nil && r.Collection.Columns != nil {
		return r.Collection.Columns
	}
	return r.Columns
}

type TargetDetailResponse struct {
	Target         TargetRecord `json:"target"`
	BaseRevisionID int64        `json:"baseRevisionId"`
}

type TargetRecord struct {
	RID      string          `json:"rid"`
	Name     string          `json:"name"`
	Location *TargetLocation `json:"location"`
}

type TargetLocation struct {
	Center GeoPoint `json:"center"`
	Radius float64  `json:"radius"`
}

type GeoPoint struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// Target is a fully assembled board entry: the shallow column reference
// joined with its detail record.
type Target struct {
	RID            string    `json:"rid"`
	Name           string    `json:"name"`
	Column         string    `json:"column"`
	Location       *Location `json:"location,omitempty"`
	BaseRevisionID int64     `json:"baseRevisionId"`
}

type Location struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Radius    float64  `json:"radius"`
	Elevation float64  `json:"elevation"`
}

// HasCoordinates reports whether both latitude and longitude are known.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// AsTarget joins a detail response with the name of the column it was listed under.
func (d *TargetDetailResponse) AsTarget(column string) Target {
	t := Target{
		RID:            d.Target.RID,
		Name:           d.Target.Name,
		Column:         column,
		BaseRevisionID: d.BaseRevisionID,
	}
	if loc := d.Target.Location; loc != nil {
		t.Location = &Location{
			Latitude:  loc.Center.Latitude,
			Longitude: loc.Center.Longitude,
			Radius:    loc.Radius,
		}
		if loc.Center.Elevation != nil {
			t.Location.Elevation = *loc.Center.Elevation
		}
	}
	return t
}

type CreateTargetRequest struct {
	Name        string         `json:"name"`
	Collection  string         `json:"collection"`
	Column      string         `json:"column"`
	Location    TargetLocation `json:"location"`
	Security    Security       `json:"security"`
	TargetType  string         `json:"targetType"`
	Description string         `json:"description"`
}

type Security struct {
	PortionMarkings []string `json:"portionMarkings"`
}

type UpdateTargetRequest struct {
	Name           string         `json:"name"`
	BaseRevisionID int64          `json:"baseRevisionId"`
	Location       TargetLocation `json:"location"`
}

// RawResponse is an upstream body passed through to views untouched.
type RawResponse = json.RawMessage
