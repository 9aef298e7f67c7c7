package render

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot/palette"
)

type stop struct {
	pos float64
	c   color.NRGBA
}

// Anchors of the classic "terrain" colormap, from deep water up to snow.
var terrainStops = []stop{
	{0.00, rgbf(0.2, 0.2, 0.6)},
	{0.15, rgbf(0.0, 0.6, 1.0)},
	{0.25, rgbf(0.0, 0.8, 0.4)},
	{0.50, rgbf(1.0, 1.0, 0.6)},
	{0.75, rgbf(0.5, 0.36, 0.33)},
	{1.00, rgbf(1.0, 1.0, 1.0)},
}

var grayStops = []stop{
	{0, color.NRGBA{0, 0, 0, 255}},
	{1, color.NRGBA{255, 255, 255, 255}},
}

// Same ten viridis samples the echarts dashboards use.
var viridisStops = evenStops(
	"#440154", "#482777", "#3e4989", "#31688e", "#26828e",
	"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
)

// Colormap is a piecewise-linear palette.ColorMap.
type Colormap struct {
	name     string
	stops    []stop
	min, max float64
	alpha    float64
}

var _ palette.ColorMap = (*Colormap)(nil)

// NewColormap returns the named colormap spanning [0, 1].
func NewColormap(name string) (*Colormap, error) {
	var stops []stop
	switch name {
	case "", "terrain":
		name, stops = "terrain", terrainStops
	case "gray":
		stops = grayStops
	case "viridis":
		stops = viridisStops
	default:
		return nil, fmt.Errorf("unknown colormap %q", name)
	}
	return &Colormap{name: name, stops: stops, max: 1, alpha: 1}, nil
}

// Name returns the colormap name.
func (m *Colormap) Name() string { return m.name }

// At implements palette.ColorMap.
func (m *Colormap) At(v float64) (color.Color, error) {
	switch {
	case math.IsNaN(v):
		return nil, palette.ErrNaN
	case v < m.min:
		return nil, palette.ErrUnderflow
	case v > m.max:
		return nil, palette.ErrOverflow
	}
	t := 0.0
	if m.max > m.min {
		t = (v - m.min) / (m.max - m.min)
	}
	return m.lookup(t), nil
}

func (m *Colormap) lookup(t float64) color.NRGBA {
	s := m.stops
	i := 1
	for i < len(s)-1 && t > s[i].pos {
		i++
	}
	a, b := s[i-1], s[i]
	f := 0.0
	if b.pos > a.pos {
		f = (t - a.pos) / (b.pos - a.pos)
	}
	f = math.Max(0, math.Min(1, f))
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + f*(float64(y)-float64(x))))
	}
	return color.NRGBA{
		R: lerp(a.c.R, b.c.R),
		G: lerp(a.c.G, b.c.G),
		B: lerp(a.c.B, b.c.B),
		A: uint8(math.Round(255 * m.alpha)),
	}
}

// Max implements palette.ColorMap.
func (m *Colormap) Max() float64 { return m.max }

// Min implements palette.ColorMap.
func (m *Colormap) Min() float64 { return m.min }

// SetMax implements palette.ColorMap.
func (m *Colormap) SetMax(v float64) { m.max = v }

// SetMin implements palette.ColorMap.
func (m *Colormap) SetMin(v float64) { m.min = v }

// Alpha implements palette.ColorMap.
func (m *Colormap) Alpha() float64 { return m.alpha }

// SetAlpha implements palette.ColorMap.
func (m *Colormap) SetAlpha(a float64) {
	if a < 0 || a > 1 {
		panic("render: alpha out of range")
	}
	m.alpha = a
}

// Palette implements palette.ColorMap.
func (m *Colormap) Palette(n int) palette.Palette {
	cols := make(colors, n)
	for i := range cols {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		cols[i] = m.lookup(t)
	}
	return cols
}

// Hex returns n evenly spaced colours as #rrggbb strings.
func (m *Colormap) Hex(n int) []string {
	out := make([]string, 0, n)
	for _, c := range m.Palette(n).Colors() {
		r, g, b, _ := c.RGBA()
		out = append(out, fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8))
	}
	return out
}

type colors []color.Color

func (c colors) Colors() []color.Color { return c }

func rgbf(r, g, b float64) color.NRGBA {
	return color.NRGBA{
		R: uint8(math.Round(r * 255)),
		G: uint8(math.Round(g * 255)),
		B: uint8(math.Round(b * 255)),
		A: 255,
	}
}

func evenStops(hex ...string) []stop {
	out := make([]stop, len(hex))
	for i, h := range hex {
		var c color.NRGBA
		c.A = 255
		_, _ = fmt.Sscanf(h, "#%02x%02x%02x", &c.R, &c.G, &c.B)
		out[i] = stop{pos: float64(i) / float64(len(hex)-1), c: c}
	}
	return out
}
