package milsym

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestParse_letterCode(t *testing.T) {
	c, err := Parse("shgpu----------")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Affiliation != Hostile || c.Anticipated || c.Dimension != "G" {
		t.Fatalf("unexpected code: %+v", c)
	}

	c, err = Parse("SFAA-----------")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Affiliation != Friend || !c.Anticipated {
		t.Fatalf("expected anticipated friend, got %+v", c)
	}
}

func TestParse_numberCode(t *testing.T) {
	c, err := Parse("10041000001211000000")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Affiliation != Neutral || c.Dimension != "10" || c.Anticipated {
		t.Fatalf("unexpected code: %+v", c)
	}
}

func TestParse_rejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "<script>alert(1)</script>", "123456789012345"} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidSIDC) {
			t.Fatalf("Parse(%q): expected ErrInvalidSIDC, got %v", in, err)
		}
	}
}

func TestIcon_emptyCodeIsDefault(t *testing.T) {
	r := NewRenderer(0)
	got := r.Icon("")
	if got.ClassName != "bullseye-icon" || got.IconURL != "" {
		t.Fatalf("expected bullseye div icon, got %+v", got)
	}
	if got.IconSize != [2]float64{20, 20} || got.IconAnchor != [2]float64{10, 10} {
		t.Fatalf("unexpected default geometry: %+v", got)
	}
}

func TestIcon_codeRendersSVGDataURL(t *testing.T) {
	r := NewRenderer(0)
	got := r.Icon("SFGPU------")

	const prefix = "data:image/svg+xml;base64,"
	if !strings.HasPrefix(got.IconURL, prefix) {
		t.Fatalf("expected svg data url, got %q", got.IconURL)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got.IconURL, prefix))
	if err != nil {
		t.Fatalf("decode icon: %v", err)
	}
	if !strings.Contains(string(raw), "<svg") || !strings.Contains(string(raw), fillColors[Friend]) {
		t.Fatalf("expected friend frame svg, got %s", raw)
	}
	if got.IconSize != [2]float64{40, 40} || got.IconAnchor != [2]float64{20, 20} {
		t.Fatalf("unexpected icon geometry: %+v", got)
	}
	if got.PopupAnchor == nil || *got.PopupAnchor != [2]float64{0, -20} {
		t.Fatalf("unexpected popup anchor: %+v", got.PopupAnchor)
	}
}

func TestIcon_invalidCodeStillRenders(t *testing.T) {
	got := ForSIDC("??")
	if got.ClassName != "" || !strings.HasPrefix(got.IconURL, "data:image/svg+xml;base64,") {
		t.Fatalf("expected rendered unknown frame, got %+v", got)
	}
}

func TestSVG_anticipatedIsDashed(t *testing.T) {
	r := NewRenderer(0)
	svg, err := r.SVG("SHAA-----------")
	if err != nil {
		t.Fatalf("SVG: %v", err)
	}
	if !strings.Contains(string(svg), "stroke-dasharray") {
		t.Fatalf("expected dashed outline, got %s", svg)
	}
	if !strings.Contains(string(svg), fillColors[Hostile]) {
		t.Fatalf("expected hostile fill, got %s", svg)
	}
}

func TestSVG_isMemoized(t *testing.T) {
	r := NewRenderer(0)
	first, err := r.SVG("SNGP-----------")
	if err != nil {
		t.Fatalf("SVG: %v", err)
	}
	if _, ok := r.cache.Get("SNGP-----------"); !ok {
		t.Fatalf("expected rendered svg to be cached")
	}
	second, _ := r.SVG("sngp-----------")
	if &first[0] != &second[0] {
		t.Fatalf("expected cached slice to be reused for equivalent codes")
	}
}

func TestTargetIcon(t *testing.T) {
	got := TargetIcon()
	if got.IconSize != [2]float64{25, 25} || got.IconAnchor != [2]float64{12.5, 12.5} {
		t.Fatalf("unexpected target icon: %+v", got)
	}
}

func TestSVG_frameFollowsAffiliation(t *testing.T) {
	tests := []struct {
		sidc  string
		frame string
	}{
		{"SFGPU------", "<rect"},
		{"SHGPU------", "<polygon"},
		{"SUGPU------", "<path"},
	}
	r := NewRenderer(0)
	for _, tt := range tests {
		out, err := r.SVG(tt.sidc)
		if err != nil {
			t.Fatalf("SVG(%s): %v", tt.sidc, err)
		}
		if !strings.Contains(string(out), tt.frame) {
			t.Fatalf("%s: expected %s frame, got %s", tt.sidc, tt.frame, out)
		}
		if !strings.Contains(string(out), `viewBox="0 0 40 40"`) || !strings.Contains(string(out), ">G</text>") {
			t.Fatalf("%s: expected 40x40 view with dimension label, got %s", tt.sidc, out)
		}
	}
}
