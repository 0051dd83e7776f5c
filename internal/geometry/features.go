// Package geometry turns Gotham layer and target responses into drawable
// GeoJSON features and marker partitions. Everything here is derived fresh
// from a response; nothing is cached between calls.
package geometry

import (
	"sort"

	"github.com/paulmach/orb/geojson"

	"gotham_viewer/viewer-go/internal/gotham"
	"gotham_viewer/viewer-go/internal/milsym"
)

// FeatureCollection flattens layers, elements and features into one
// collection. Layers are visited in key order; elements and features keep
// response order. Features without a geometry are skipped.
func FeatureCollection(resp *gotham.LoadLayersResponse) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if resp == nil {
		return fc
	}

	for _, layerID := range layerKeys(resp) {
		layer := resp.Layers[layerID]
		for _, el := range layer.Elements {
			for _, f := range el.Features {
				if f.Geometry == nil || f.Geometry.Geometry() == nil {
					continue
				}
				fc.Append(drawable(layerID, el, f))
			}
		}
	}
	return fc
}

func drawable(layerID string, el gotham.LayerElement, f gotham.Feature) *geojson.Feature {
	out := geojson.NewFeature(f.Geometry.Geometry())
	out.Properties["id"] = el.ID
	out.Properties["label"] = el.Label
	out.Properties["parentId"] = el.ParentID
	out.Properties["layerId"] = layerID
	if f.Style != nil {
		if f.Style.Fill != nil {
			out.Properties["fill"] = f.Style.Fill
		}
		if f.Style.Stroke != nil {
			out.Properties["stroke"] = f.Style.Stroke
		}
		if f.Style.Symbol != nil {
			out.Properties["symbol"] = f.Style.Symbol
		}
	}
	out.Properties["icon"] = milsym.ForSIDC(f.Style.SIDC())
	out.Properties["style"] = ResolveStyle(f.Style)
	return out
}

func layerKeys(resp *gotham.LoadLayersResponse) []string {
	keys := make([]string, 0, len(resp.Layers))
	for k := range resp.Layers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type FeatureSummary struct {
	GeometryType string `json:"geometryType"`
	SIDC         string `json:"sidc,omitempty"`
	ListIcon     string `json:"listIcon"`
}

type ElementSummary struct {
	LayerID  string           `json:"layerId"`
	ID       string           `json:"id"`
	ParentID string           `json:"parentId"`
	Label    string           `json:"label"`
	Features []FeatureSummary `json:"features"`
}

// Elements lists every layer element with a summary of its features, for
// side panels that show what a loaded layer contains.
func Elements(resp *gotham.LoadLayersResponse) []ElementSummary {
	out := []ElementSummary{}
	if resp == nil {
		return out
	}
	for _, layerID := range layerKeys(resp) {
		for _, el := range resp.Layers[layerID].Elements {
			summary := ElementSummary{
				LayerID:  layerID,
				ID:       el.ID,
				ParentID: el.ParentID,
				Label:    el.Label,
				Features: make([]FeatureSummary, 0, len(el.Features)),
			}
			for _, f := range el.Features {
				gt := ""
				if f.Geometry != nil && f.Geometry.Geometry() != nil {
					gt = f.Geometry.Geometry().GeoJSONType()
				}
				summary.Features = append(summary.Features, FeatureSummary{
					GeometryType: gt,
					SIDC:         f.Style.SIDC(),
					ListIcon:     ListIcon(gt),
				})
			}
			out = append(out, summary)
		}
	}
	return out
}

// ListIcon names the list glyph shown next to a feature of the given geometry type.
func ListIcon(geometryType string) string {
	switch geometryType {
	case "Point":
		return "map-marker"
	case "LineString":
		return "minus"
	case "Polygon":
		return "polygon-filter"
	default:
		return "layer-outline"
	}
}
