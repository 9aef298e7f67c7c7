package render

import (
	"context"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/terrainview/internal/fsutil"
	"github.com/banshee-data/terrainview/internal/raster"
)

// rasterizeAbove is the cell count above which the heat map is drawn as an
// image instead of one vector rectangle per cell.
const rasterizeAbove = 64 * 64

// PNGRenderer draws a heat map and a vertical colour bar into a PNG.
type PNGRenderer struct {
	FS       fsutil.FileSystem
	Path     string
	WidthIn  float64
	HeightIn float64
}

// gridXYZ adapts a raster grid to plotter.GridXYZ. Row 0 of the grid is the
// northern edge, so rows are flipped to put north at the top.
type gridXYZ struct {
	g raster.Grid
}

func (x gridXYZ) Dims() (c, r int)   { return x.g.Width, x.g.Height }
func (x gridXYZ) Z(c, r int) float64 { return float64(x.g.At(x.g.Height-1-r, c)) }
func (x gridXYZ) X(c int) float64    { return float64(c) }
func (x gridXYZ) Y(r int) float64    { return float64(r) }

// Render implements Renderer.
func (r *PNGRenderer) Render(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Grid.Width < 1 || f.Grid.Height < 1 {
		return fmt.Errorf("render: empty grid %dx%d", f.Grid.Height, f.Grid.Width)
	}

	cm, err := NewColormap(f.Colormap)
	if err != nil {
		return err
	}
	lo, hi := scale(f)
	cm.SetMin(lo)
	cm.SetMax(hi)

	pal := cm.Palette(256)
	cols := pal.Colors()
	hm := plotter.NewHeatMap(gridXYZ{f.Grid}, pal)
	hm.Min, hm.Max = lo, hi
	hm.Underflow = cols[0]
	hm.Overflow = cols[len(cols)-1]
	hm.NaN = color.Transparent
	hm.Rasterized = f.Grid.Width > 1 && f.Grid.Height > 1 && f.Grid.Len() > rasterizeAbove

	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = "Column"
	p.Y.Label.Text = "Row (from south)"
	p.Add(hm)

	bar := plot.New()
	bar.HideX()
	bar.Y.Label.Text = f.Label
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})

	width := vg.Length(r.WidthIn) * vg.Inch
	height := vg.Length(r.HeightIn) * vg.Inch
	barWidth := width / 8

	img := vgimg.New(width, height)
	dc := draw.New(img)
	p.Draw(draw.Crop(dc, 0, -barWidth, 0, 0))
	bar.Draw(draw.Crop(dc, width-barWidth, 0, 0, 0))

	return writeFile(r.FS, r.Path, func(w io.Writer) error {
		if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
			return fmt.Errorf("save png: %w", err)
		}
		return nil
	})
}
