package milsym

import (
	"bytes"
	"fmt"

	svg "github.com/ajstarks/svgo"
	"github.com/lucasb-eyer/go-colorful"
)

const symbolSize = 40

var fillColors = map[Affiliation]string{
	Friend:  "#80e0ff",
	Hostile: "#ff8080",
	Neutral: "#aaffaa",
	Unknown: "#ffff80",
}

// outline darkens the affiliation fill in Lab space so the frame edge keeps
// the same hue as its fill.
func outline(fill string) string {
	c, err := colorful.Hex(fill)
	if err != nil {
		return "#000000"
	}
	return c.BlendLab(colorful.Color{}, 0.65).Clamped().Hex()
}

func drawFrame(canvas *svg.SVG, a Affiliation) {
	switch a {
	case Friend:
		canvas.Rect(4, 10, 32, 20)
	case Hostile:
		canvas.Polygon([]int{20, 37, 20, 3}, []int{3, 20, 37, 20})
	case Neutral:
		canvas.Rect(6, 6, 28, 28)
	default:
		canvas.Path("M20,4 C27,4 27,11 29,11 C36,11 36,20 36,20 C36,20 36,29 29,29 C27,29 27,36 20,36 C13,36 13,29 11,29 C4,29 4,20 4,20 C4,20 4,11 11,11 C13,11 13,4 20,4 Z")
	}
}

// renderSVG draws the affiliation frame for c. Anticipated symbols get a
// dashed outline.
func renderSVG(c Code) []byte {
	fill := fillColors[c.Affiliation]
	attrs := []string{
		fmt.Sprintf(`fill="%s"`, fill),
		fmt.Sprintf(`stroke="%s"`, outline(fill)),
		`stroke-width="2"`,
	}
	if c.Anticipated {
		attrs = append(attrs, `stroke-dasharray="4,3"`)
	}

	var buf bytes.Buffer
	canvas := svg.New(&buf)
	canvas.Startview(symbolSize, symbolSize, 0, 0, symbolSize, symbolSize)
	canvas.Group(attrs...)
	drawFrame(canvas, c.Affiliation)
	canvas.Gend()
	if c.Dimension != "" {
		canvas.Text(symbolSize/2, 24, c.Dimension,
			`font-family="sans-serif"`, `font-size="10"`, `text-anchor="middle"`, `fill="#000000"`)
	}
	canvas.End()
	return buf.Bytes()
}
