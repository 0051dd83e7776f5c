package geometry

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"gotham_viewer/viewer-go/internal/gotham"
)

const (
	DefaultColor       = "#3388ff"
	DefaultWeight      = 3.0
	DefaultOpacity     = 1.0
	DefaultFillOpacity = 0.2
)

// PathStyle is the resolved vector style of a feature. FillColor is nil when
// the feature has no fill color, leaving the view's own default in place.
type PathStyle struct {
	Color       string  `json:"color"`
	Weight      float64 `json:"weight"`
	Opacity     float64 `json:"opacity"`
	FillColor   *string `json:"fillColor,omitempty"`
	FillOpacity float64 `json:"fillOpacity"`
}

// ResolveStyle applies the per-field fallbacks to an optional style descriptor.
func ResolveStyle(s *gotham.FeatureStyle) PathStyle {
	out := PathStyle{
		Color:       DefaultColor,
		Weight:      DefaultWeight,
		Opacity:     DefaultOpacity,
		FillOpacity: DefaultFillOpacity,
	}
	if s == nil {
		return out
	}
	if st := s.Stroke; st != nil {
		if st.Color != "" {
			out.Color = normalizeColor(st.Color)
		}
		if st.Width != nil {
			out.Weight = *st.Width
		}
		if st.Opacity != nil {
			out.Opacity = *st.Opacity
		}
	}
	if f := s.Fill; f != nil {
		if f.Color != "" {
			c := normalizeColor(f.Color)
			out.FillColor = &c
		}
		if f.Opacity != nil {
			out.FillOpacity = *f.Opacity
		}
	}
	return out
}

// normalizeColor lower-cases hex colors into #rrggbb form. Anything that is
// not a hex color (named colors, rgba()) is passed through unchanged.
func normalizeColor(v string) string {
	v = strings.TrimSpace(v)
	if c, err := colorful.Hex(v); err == nil {
		return c.Hex()
	}
	return v
}
