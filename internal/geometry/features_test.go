package geometry

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"gotham_viewer/viewer-go/internal/gotham"
	"gotham_viewer/viewer-go/internal/milsym"
)

func decodeLayers(t *testing.T, raw string) *gotham.LoadLayersResponse {
	t.Helper()
	var resp gotham.LoadLayersResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return &resp
}

const layersFixture = `{"layers":{
	"b-layer":{"id":"b-layer","elements":[
		{"id":"e2","parentId":"root","label":"Route","features":[
			{"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]},"style":{"stroke":{"color":"#FF0000","width":5}}}
		]}
	]},
	"a-layer":{"id":"a-layer","elements":[
		{"id":"e1","parentId":"","label":"HQ","features":[
			{"geometry":{"type":"Point","coordinates":[-77.06,38.94]},"style":{"symbol":{"symbol":{"type":"MilSym","sidc":"SFGPU------"}}}},
			{"geometry":null},
			{"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"style":{"fill":{"color":"blue","opacity":0.5}}}
		]}
	]}
}}`

func TestFeatureCollection_flattensInLayerKeyOrder(t *testing.T) {
	fc := FeatureCollection(decodeLayers(t, layersFixture))

	if len(fc.Features) != 3 {
		t.Fatalf("expected 3 drawable features (null geometry skipped), got %d", len(fc.Features))
	}

	first := fc.Features[0]
	if first.Properties["id"] != "e1" || first.Properties["label"] != "HQ" || first.Properties["layerId"] != "a-layer" {
		t.Fatalf("unexpected first feature properties: %#v", first.Properties)
	}
	if _, ok := first.Geometry.(orb.Point); !ok {
		t.Fatalf("expected point geometry, got %T", first.Geometry)
	}
	if got := fc.Features[2].Properties["parentId"]; got != "root" {
		t.Fatalf("expected last feature from b-layer with parentId root, got %v", got)
	}
}

func TestFeatureCollection_iconFollowsSymbolCode(t *testing.T) {
	fc := FeatureCollection(decodeLayers(t, layersFixture))

	symbolIcon, ok := fc.Features[0].Properties["icon"].(milsym.Icon)
	if !ok {
		t.Fatalf("expected icon property, got %T", fc.Features[0].Properties["icon"])
	}
	if !strings.HasPrefix(symbolIcon.IconURL, "data:image/svg+xml;base64,") {
		t.Fatalf("expected rendered symbol for feature with sidc, got %+v", symbolIcon)
	}

	for _, f := range fc.Features[1:] {
		icon := f.Properties["icon"].(milsym.Icon)
		if icon != milsym.DefaultIcon() {
			t.Fatalf("expected default glyph for feature without sidc, got %+v", icon)
		}
	}
}

func TestFeatureCollection_styleFallbacks(t *testing.T) {
	fc := FeatureCollection(decodeLayers(t, layersFixture))

	point := fc.Features[0].Properties["style"].(PathStyle)
	if point.Color != DefaultColor || point.Weight != DefaultWeight || point.Opacity != DefaultOpacity || point.FillColor != nil || point.FillOpacity != DefaultFillOpacity {
		t.Fatalf("expected all fallbacks, got %+v", point)
	}

	polygon := fc.Features[1].Properties["style"].(PathStyle)
	if polygon.FillColor == nil || *polygon.FillColor != "blue" || polygon.FillOpacity != 0.5 {
		t.Fatalf("expected fill from descriptor, got %+v", polygon)
	}
	if _, ok := fc.Features[1].Properties["fill"]; !ok {
		t.Fatalf("expected fill descriptor copied into properties")
	}

	line := fc.Features[2].Properties["style"].(PathStyle)
	if line.Color != "#ff0000" || line.Weight != 5 || line.Opacity != DefaultOpacity {
		t.Fatalf("expected stroke from descriptor, got %+v", line)
	}
}

func TestFeatureCollection_nilResponse(t *testing.T) {
	fc := FeatureCollection(nil)
	if fc == nil || len(fc.Features) != 0 {
		t.Fatalf("expected empty collection, got %#v", fc)
	}
}

func TestElements_listIcons(t *testing.T) {
	els := Elements(decodeLayers(t, layersFixture))
	if len(els) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(els))
	}
	hq := els[0]
	if hq.ID != "e1" || len(hq.Features) != 3 {
		t.Fatalf("unexpected first element: %+v", hq)
	}
	want := []string{"map-marker", "layer-outline", "polygon-filter"}
	for i, f := range hq.Features {
		if f.ListIcon != want[i] {
			t.Fatalf("feature %d: expected %s, got %s", i, want[i], f.ListIcon)
		}
	}
	if hq.Features[0].SIDC != "SFGPU------" {
		t.Fatalf("expected sidc in summary, got %q", hq.Features[0].SIDC)
	}
	if els[1].Features[0].ListIcon != "minus" {
		t.Fatalf("expected line icon, got %s", els[1].Features[0].ListIcon)
	}
}

func TestResolveStyle_zeroValuesAreKept(t *testing.T) {
	zero := 0.0
	got := ResolveStyle(&gotham.FeatureStyle{
		Stroke: &gotham.StrokeStyle{Width: &zero, Opacity: &zero},
		Fill:   &gotham.FillStyle{Opacity: &zero},
	})
	if got.Weight != 0 || got.Opacity != 0 || got.FillOpacity != 0 {
		t.Fatalf("expected explicit zeros to win over fallbacks, got %+v", got)
	}
	if got.Color != DefaultColor {
		t.Fatalf("expected default color, got %s", got.Color)
	}
}
