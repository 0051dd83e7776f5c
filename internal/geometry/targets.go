package geometry

import (
	"fmt"
	"html"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"gotham_viewer/viewer-go/internal/gotham"
	"gotham_viewer/viewer-go/internal/milsym"
)

type Marker struct {
	RID       string      `json:"rid"`
	Name      string      `json:"name"`
	Column    string      `json:"column"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Popup     string      `json:"popup"`
	Icon      milsym.Icon `json:"icon"`
}

// TargetPlot splits a board into plotted markers and targets that can only
// be listed.
type TargetPlot struct {
	Markers         []Marker        `json:"markers"`
	WithoutLocation []gotham.Target `json:"withoutLocation"`
}

// PartitionTargets plots each target with both a latitude and a longitude as
// exactly one marker. Zero is a valid coordinate. Every other target goes to
// WithoutLocation, in board order.
func PartitionTargets(targets []gotham.Target) TargetPlot {
	plot := TargetPlot{
		Markers:         []Marker{},
		WithoutLocation: []gotham.Target{},
	}
	for _, t := range targets {
		if !t.Location.HasCoordinates() {
			plot.WithoutLocation = append(plot.WithoutLocation, t)
			continue
		}
		plot.Markers = append(plot.Markers, Marker{
			RID:       t.RID,
			Name:      t.Name,
			Column:    t.Column,
			Latitude:  *t.Location.Latitude,
			Longitude: *t.Location.Longitude,
			Popup:     popup(t),
			Icon:      milsym.TargetIcon(),
		})
	}
	return plot
}

func popup(t gotham.Target) string {
	return fmt.Sprintf("<div><strong>%s</strong><p>%s</p></div>", html.EscapeString(t.Name), html.EscapeString(t.Column))
}

// MarkerCollection renders plotted markers as GeoJSON points.
func MarkerCollection(markers []Marker) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range markers {
		f := geojson.NewFeature(orb.Point{m.Longitude, m.Latitude})
		f.ID = m.RID
		f.Properties["name"] = m.Name
		f.Properties["column"] = m.Column
		f.Properties["popup"] = m.Popup
		f.Properties["icon"] = m.Icon
		fc.Append(f)
	}
	return fc
}
