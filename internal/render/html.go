package render

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/terrainview/internal/fsutil"
)

// HTMLRenderer writes an interactive echarts heat map. Grids with more than
// MaxPoints cells are decimated by a uniform stride on both axes.
type HTMLRenderer struct {
	FS        fsutil.FileSystem
	Path      string
	MaxPoints int
}

// stride returns the per-axis step that keeps cells under maxPoints.
func stride(cells, maxPoints int) int {
	if maxPoints < 1 || cells <= maxPoints {
		return 1
	}
	return int(math.Ceil(math.Sqrt(float64(cells) / float64(maxPoints))))
}

// Render implements Renderer.
func (r *HTMLRenderer) Render(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g := f.Grid
	if g.Width < 1 || g.Height < 1 {
		return fmt.Errorf("render: empty grid %dx%d", g.Height, g.Width)
	}

	cm, err := NewColormap(f.Colormap)
	if err != nil {
		return err
	}
	lo, hi := scale(f)

	step := stride(g.Len(), r.MaxPoints)
	outW := (g.Width + step - 1) / step
	outH := (g.Height + step - 1) / step

	xs := make([]int, outW)
	for i := range xs {
		xs[i] = i * step
	}
	// Y categories run bottom-up, so the southern rows come first.
	ys := make([]int, outH)
	for i := range ys {
		ys[i] = (outH - 1 - i) * step
	}

	data := make([]opts.HeatMapData, 0, outW*outH)
	for ri := 0; ri < outH; ri++ {
		for ci := 0; ci < outW; ci++ {
			v := float64(g.At(ri*step, ci*step))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			data = append(data, opts.HeatMapData{Value: [3]interface{}{ci, outH - 1 - ri, v}})
		}
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: f.Title, Width: "1200px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    f.Title,
			Subtitle: fmt.Sprintf("grid %dx%d, stride %d, %d cells", g.Height, g.Width, step, len(data)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: xs, Name: "Column"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "Row"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Text:       []string{f.Label},
			InRange:    &opts.VisualMapInRange{Color: cm.Hex(10)},
		}),
	)
	hm.SetXAxis(xs).AddSeries(f.Label, data)

	return writeFile(r.FS, r.Path, func(w io.Writer) error {
		if err := hm.Render(w); err != nil {
			return fmt.Errorf("failed to render chart: %w", err)
		}
		return nil
	})
}
