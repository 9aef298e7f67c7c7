// Package render draws a normalized elevation grid with a colour scale. NaN
// cells are left blank and the display range clips the colour ramp; with no
// range the ramp spans the finite data.
package render

import (
	"context"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/banshee-data/terrainview/internal/config"
	"github.com/banshee-data/terrainview/internal/fsutil"
	"github.com/banshee-data/terrainview/internal/normalize"
	"github.com/banshee-data/terrainview/internal/raster"
)

// Frame is everything a renderer needs for one image.
type Frame struct {
	Grid raster.Grid
	// Range is nil for "auto-scale".
	Range    *normalize.DisplayRange
	Colormap string
	Title    string
	Label    string
}

// Renderer draws a frame to its destination.
type Renderer interface {
	Render(ctx context.Context, f Frame) error
}

// New builds the renderer for cfg's output format writing to path.
func New(cfg *config.ViewerConfig, fsys fsutil.FileSystem, path string) (Renderer, error) {
	switch cfg.GetOutputFormat() {
	case config.FormatPNG:
		return &PNGRenderer{
			FS:       fsys,
			Path:     path,
			WidthIn:  cfg.GetPlotWidthIn(),
			HeightIn: cfg.GetPlotHeightIn(),
		}, nil
	case config.FormatHTML:
		return &HTMLRenderer{FS: fsys, Path: path, MaxPoints: cfg.GetHTMLMaxPoints()}, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", cfg.GetOutputFormat())
	}
}

// scale returns the value range mapped onto the colour ramp. A degenerate
// range is widened so the ramp never divides by zero.
func scale(f Frame) (lo, hi float64) {
	if f.Range != nil {
		lo, hi = f.Range.Low, f.Range.High
	} else {
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, v := range f.Grid.Data {
			x := float64(v)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		if math.IsInf(lo, 1) {
			return 0, 1
		}
	}
	if !(hi > lo) {
		lo, hi = lo-0.5, hi+0.5
	}
	return lo, hi
}

// writeFile creates path through fsys, creating its directory, and removes
// the partial file if write or close fails.
func writeFile(fsys fsutil.FileSystem, path string, write func(w io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
		if err != nil {
			_ = fsys.Remove(path)
		}
	}()
	return write(w)
}
