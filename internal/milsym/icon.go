// Package milsym renders symbol identification codes into map icons.
package milsym

import (
	"encoding/base64"
	"time"

	"github.com/patrickmn/go-cache"
)

// Icon describes a map marker icon. Image icons carry IconURL; div icons
// carry ClassName and are styled by the view.
type Icon struct {
	IconURL     string      `json:"iconUrl,omitempty"`
	ClassName   string      `json:"className,omitempty"`
	IconSize    [2]float64  `json:"iconSize"`
	IconAnchor  [2]float64  `json:"iconAnchor"`
	PopupAnchor *[2]float64 `json:"popupAnchor,omitempty"`
}

const (
	defaultCacheTTL     = 30 * time.Minute
	defaultCacheCleanup = 10 * time.Minute
)

// DefaultIcon is the bullseye glyph used for features without a symbol code.
func DefaultIcon() Icon {
	return Icon{
		ClassName:  "bullseye-icon",
		IconSize:   [2]float64{20, 20},
		IconAnchor: [2]float64{10, 10},
	}
}

// TargetIcon is the diamond marker used for plotted targets.
func TargetIcon() Icon {
	return Icon{
		IconURL:    "/symbol-diamond.svg",
		IconSize:   [2]float64{25, 25},
		IconAnchor: [2]float64{12.5, 12.5},
	}
}

// Renderer memoizes rendered symbols by code.
type Renderer struct {
	cache *cache.Cache
}

func NewRenderer(ttl time.Duration) *Renderer {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Renderer{cache: cache.New(ttl, defaultCacheCleanup)}
}

// SVG renders sidc, rejecting codes that do not parse.
func (r *Renderer) SVG(sidc string) ([]byte, error) {
	code, err := Parse(sidc)
	if err != nil {
		return nil, err
	}
	return r.render(code), nil
}

func (r *Renderer) render(code Code) []byte {
	if v, ok := r.cache.Get(code.Raw); ok {
		return v.([]byte)
	}
	svg := renderSVG(code)
	r.cache.Set(code.Raw, svg, cache.DefaultExpiration)
	return svg
}

// Icon returns the marker icon for sidc. An empty code yields DefaultIcon;
// a code that does not parse is drawn with an unknown frame.
func (r *Renderer) Icon(sidc string) Icon {
	if sidc == "" {
		return DefaultIcon()
	}
	code, err := Parse(sidc)
	if err != nil {
		code = Code{Raw: sidc, Affiliation: Unknown}
	}
	popup := [2]float64{0, -symbolSize / 2}
	return Icon{
		IconURL:     "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString(r.render(code)),
		IconSize:    [2]float64{symbolSize, symbolSize},
		IconAnchor:  [2]float64{symbolSize / 2, symbolSize / 2},
		PopupAnchor: &popup,
	}
}

var std = NewRenderer(defaultCacheTTL)

// ForSIDC returns the icon for sidc using the shared renderer.
func ForSIDC(sidc string) Icon {
	return std.Icon(sidc)
}
