// Package viewer runs the plan → read → normalize → render pipeline for one
// raster. Every size estimate is logged before the read starts, and the
// raster handle is released before rendering and on every early exit.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/banshee-data/terrainview/internal/config"
	"github.com/banshee-data/terrainview/internal/monitoring"
	"github.com/banshee-data/terrainview/internal/normalize"
	"github.com/banshee-data/terrainview/internal/planner"
	"github.com/banshee-data/terrainview/internal/raster"
	"github.com/banshee-data/terrainview/internal/render"
	"github.com/banshee-data/terrainview/internal/timeutil"
)

// Viewer holds the collaborators of a run.
type Viewer struct {
	// Open opens the raster named by a request.
	Open raster.OpenFunc
	// Confirm answers over-budget prompts. Nil declines.
	Confirm planner.ConfirmFunc
	// Renderer draws the result.
	Renderer render.Renderer
	// Config supplies the memory policy and normalization settings. Nil
	// selects the defaults.
	Config *config.ViewerConfig
	// Clock times the read and render stages. Nil uses the system clock.
	Clock timeutil.Clock
}

// Request describes one invocation.
type Request struct {
	Path string
	// RequestedFactor selects manual mode when non-nil.
	RequestedFactor *int
	// MaxTotalGB overrides the configured budget when positive.
	MaxTotalGB float64
}

// Report summarizes a run.
type Report struct {
	RunID      string
	Descriptor raster.Descriptor
	Plan       planner.Plan
	// Cancelled is true when the operator declined an over-budget plan.
	Cancelled bool
	Range     *normalize.DisplayRange
	Stats     normalize.Stats

	ReadTime   time.Duration
	RenderTime time.Duration
}

// Run executes the pipeline. A declined confirmation is not an error: it
// returns a Cancelled report without reading any pixels.
func (v *Viewer) Run(ctx context.Context, req Request) (rep Report, err error) {
	if v.Open == nil || v.Renderer == nil {
		return Report{}, errors.New("viewer: Open and Renderer are required")
	}
	cfg := v.Config
	if cfg == nil {
		cfg = config.EmptyViewerConfig()
	}
	clock := v.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	rep.RunID = uuid.NewString()
	logf := monitoring.WithPrefix("[" + rep.RunID[:8] + "] ")

	src, err := v.Open(req.Path)
	if err != nil {
		return rep, err
	}
	closed := false
	release := func() error {
		if closed {
			return nil
		}
		closed = true
		return src.Close()
	}
	defer func() {
		if cerr := release(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close %s: %w", req.Path, cerr)
		}
	}()

	desc := src.Describe()
	rep.Descriptor = desc
	logDescriptor(logf, desc)

	budget := cfg.GetMaxMemoryGB()
	if req.MaxTotalGB > 0 {
		budget = req.MaxTotalGB
	}
	plan := planner.BuildPlan(planner.Params{
		Width:              desc.Width,
		Height:             desc.Height,
		BytesPerPixel:      desc.BytesPerPixel,
		RequestedFactor:    req.RequestedFactor,
		MaxTotalGB:         budget,
		RawFraction:        cfg.GetRawDataFraction(),
		OverheadMultiplier: cfg.GetOverheadMultiplier(),
	})
	logf("Full resolution would require ~%.2f GB of RAM", plan.FullGB)
	for _, line := range plan.Summary() {
		logf("%s", line)
	}

	plan = plan.Resolve(v.Confirm)
	rep.Plan = plan
	if plan.Outcome == planner.Abort {
		logf("Operation cancelled.")
		rep.Cancelled = true
		return rep, nil
	}

	logf("Loading data at %s...", resolutionLabel(desc, plan.DownsampleFactor))
	start := clock.Now()
	grid, err := src.ReadAveraged(ctx, plan.OutHeight, plan.OutWidth)
	if err != nil {
		return rep, fmt.Errorf("failed to read %s: %w", req.Path, err)
	}
	rep.ReadTime = clock.Since(start)
	logf("Read %s pixels in %s", humanize.Comma(int64(grid.Len())), rep.ReadTime)
	if err := release(); err != nil {
		return rep, fmt.Errorf("failed to close %s: %w", req.Path, err)
	}

	if desc.NoData != nil {
		logf("No-data value: %g", *desc.NoData)
	}
	floor := cfg.GetNoDataFloor()
	res := normalize.Normalize(grid, normalize.Options{
		NoData:         desc.NoData,
		NoDataFloor:    &floor,
		LowPercentile:  cfg.GetLowPercentile(),
		HighPercentile: cfg.GetHighPercentile(),
	})
	rep.Range, rep.Stats = res.Range, res.Stats

	if res.Range != nil {
		logf("Valid pixels: %s of %s", humanize.Comma(int64(res.Stats.Count)), humanize.Comma(int64(grid.Len())))
		logf("Valid data range: %.1f to %.1f (mean %.1f, stddev %.1f)", res.Stats.Min, res.Stats.Max, res.Stats.Mean, res.Stats.StdDev)
		logf("Display range (%g%%-%g%%): %s", cfg.GetLowPercentile(), cfg.GetHighPercentile(), res.Range)
	} else {
		logf("No valid pixels; rendering without a contrast stretch")
	}

	frame := render.Frame{
		Grid:     res.Grid,
		Range:    res.Range,
		Colormap: cfg.GetColormap(),
		Title:    fmt.Sprintf("Elevation (%s)", resolutionLabel(desc, plan.DownsampleFactor)),
		Label:    "Elevation (m)",
	}
	start = clock.Now()
	if err := v.Renderer.Render(ctx, frame); err != nil {
		return rep, fmt.Errorf("failed to render: %w", err)
	}
	rep.RenderTime = clock.Since(start)
	logf("Rendered in %s", rep.RenderTime)
	return rep, nil
}

func logDescriptor(logf func(string, ...interface{}), d raster.Descriptor) {
	logf("Shape: (%d, %d)", d.Height, d.Width)
	logf("Data type: %s (%d bytes per pixel)", d.DataType, d.BytesPerPixel)
	logf("Bounds: %s", d.Bounds)
	if d.PixelSizeX > 0 {
		logf("Native resolution: %g x %g per pixel", d.PixelSizeX, d.PixelSizeY)
	}
	logf("Pixels: %s", humanize.Comma(d.Pixels()))
}

// resolutionLabel names the effective ground resolution when the source is
// georeferenced and falls back to the factor otherwise.
func resolutionLabel(d raster.Descriptor, factor int) string {
	if d.PixelSizeX > 0 {
		return fmt.Sprintf("%g units/pixel, %dx downsampled", d.PixelSizeX*float64(factor), factor)
	}
	return fmt.Sprintf("%dx downsampled", factor)
}
