package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/terrainview/internal/config"
	"github.com/banshee-data/terrainview/internal/fsutil"
	"github.com/banshee-data/terrainview/internal/monitoring"
	"github.com/banshee-data/terrainview/internal/planner"
	"github.com/banshee-data/terrainview/internal/raster"
	"github.com/banshee-data/terrainview/internal/render"
	"github.com/banshee-data/terrainview/internal/timeutil"
)

// spySource counts reads and closes on top of a memory raster.
type spySource struct {
	*raster.MemorySource
	reads   int
	closes  int
	readErr error
}

func (s *spySource) ReadAveraged(ctx context.Context, outHeight, outWidth int) (raster.Grid, error) {
	s.reads++
	if s.readErr != nil {
		return raster.Grid{}, s.readErr
	}
	return s.MemorySource.ReadAveraged(ctx, outHeight, outWidth)
}

func (s *spySource) Close() error {
	s.closes++
	return s.MemorySource.Close()
}

// spyRenderer records frames and the source's close count at render time.
type spyRenderer struct {
	src          *spySource
	frames       []render.Frame
	closesAtDraw int
	err          error
}

func (r *spyRenderer) Render(_ context.Context, f render.Frame) error {
	r.frames = append(r.frames, f)
	if r.src != nil {
		r.closesAtDraw = r.src.closes
	}
	return r.err
}

func newSpy(t *testing.T, desc raster.Descriptor, data []float32) *spySource {
	t.Helper()
	m, err := raster.NewMemorySource(desc, data)
	require.NoError(t, err)
	return &spySource{MemorySource: m}
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

// captureLogs redirects the package logger for the duration of the test.
func captureLogs(t *testing.T) func() string {
	t.Helper()
	var mu sync.Mutex
	var b strings.Builder
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(&b, format+"\n", v...)
	})
	t.Cleanup(func() { monitoring.SetLogger(prev) })
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		return b.String()
	}
}

func TestRun_AutoPlanRenders(t *testing.T) {
	logs := captureLogs(t)

	src := newSpy(t, raster.Descriptor{Width: 10, Height: 10, PixelSizeX: 30, PixelSizeY: 30}, ramp(100))
	r := &spyRenderer{src: src}
	v := &Viewer{
		Open:     func(string) (raster.Source, error) { return src, nil },
		Renderer: r,
		Clock:    timeutil.NewSteppingClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 1500*time.Millisecond),
	}

	rep, err := v.Run(context.Background(), Request{Path: "dem.tif"})
	require.NoError(t, err)

	assert.False(t, rep.Cancelled)
	assert.Len(t, rep.RunID, 36)
	assert.Equal(t, planner.ModeAuto, rep.Plan.Mode)
	assert.Equal(t, planner.Proceed, rep.Plan.Outcome)
	assert.Equal(t, 1, rep.Plan.DownsampleFactor)
	assert.Equal(t, 1, src.reads)
	assert.Equal(t, 1, src.closes)

	require.Len(t, r.frames, 1)
	assert.Equal(t, 1, r.closesAtDraw, "source closed before rendering")
	f := r.frames[0]
	require.NotNil(t, f.Range)
	assert.InDelta(t, 1.98, f.Range.Low, 1e-9)
	assert.InDelta(t, 97.02, f.Range.High, 1e-9)
	assert.Equal(t, "terrain", f.Colormap)
	assert.Equal(t, "Elevation (m)", f.Label)
	assert.Contains(t, f.Title, "30 units/pixel")
	assert.Equal(t, 100, f.Grid.Len())

	out := logs()
	assert.Contains(t, out, "Shape: (10, 10)")
	assert.Contains(t, out, "Full resolution would require")
	assert.Contains(t, out, "Auto-selected downsample factor: 1x")
	assert.Contains(t, out, "Loading data at")
	assert.Contains(t, out, "Display range (2%-98%)")
	assert.Equal(t, 1500*time.Millisecond, rep.ReadTime)
	assert.Equal(t, 1500*time.Millisecond, rep.RenderTime)
	assert.Contains(t, out, "Read 100 pixels in 1.5s")
	assert.Contains(t, out, "Rendered in 1.5s")
	assert.Contains(t, out, "["+rep.RunID[:8]+"] ")
}

func TestRun_DeclinedPromptSkipsRead(t *testing.T) {
	logs := captureLogs(t)

	src := newSpy(t, raster.Descriptor{Width: 100, Height: 100}, ramp(10000))
	r := &spyRenderer{src: src}
	var prompts []string
	v := &Viewer{
		Open: func(string) (raster.Source, error) { return src, nil },
		Confirm: func(prompt string) bool {
			prompts = append(prompts, prompt)
			return false
		},
		Renderer: r,
	}

	one := 1
	rep, err := v.Run(context.Background(), Request{Path: "dem.tif", RequestedFactor: &one, MaxTotalGB: 1e-6})
	require.NoError(t, err)

	assert.True(t, rep.Cancelled)
	assert.Equal(t, planner.Abort, rep.Plan.Outcome)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Continue? (y/N)")
	assert.Zero(t, src.reads)
	assert.Equal(t, 1, src.closes)
	assert.Empty(t, r.frames)
	assert.Contains(t, logs(), "Operation cancelled.")
}

func TestRun_NilConfirmDeclines(t *testing.T) {
	captureLogs(t)

	src := newSpy(t, raster.Descriptor{Width: 100, Height: 100}, ramp(10000))
	v := &Viewer{
		Open:     func(string) (raster.Source, error) { return src, nil },
		Renderer: &spyRenderer{},
	}
	two := 2
	rep, err := v.Run(context.Background(), Request{RequestedFactor: &two, MaxTotalGB: 1e-9})
	require.NoError(t, err)
	assert.True(t, rep.Cancelled)
	assert.Zero(t, src.reads)
}

func TestRun_AcceptedPromptProceeds(t *testing.T) {
	captureLogs(t)

	src := newSpy(t, raster.Descriptor{Width: 100, Height: 100}, ramp(10000))
	r := &spyRenderer{src: src}
	v := &Viewer{
		Open:     func(string) (raster.Source, error) { return src, nil },
		Confirm:  func(string) bool { return true },
		Renderer: r,
	}

	four := 4
	rep, err := v.Run(context.Background(), Request{RequestedFactor: &four, MaxTotalGB: 1e-9})
	require.NoError(t, err)

	assert.False(t, rep.Cancelled)
	assert.Equal(t, planner.ModeManual, rep.Plan.Mode)
	assert.Equal(t, planner.Proceed, rep.Plan.Outcome)
	assert.Equal(t, 1, src.reads)
	require.Len(t, r.frames, 1)
	assert.Equal(t, 25, r.frames[0].Grid.Width)
	assert.Equal(t, 25, r.frames[0].Grid.Height)
	assert.Contains(t, r.frames[0].Title, "4x downsampled")
}

func TestRun_NoValidPixels(t *testing.T) {
	captureLogs(t)

	nd := -32768.0
	data := []float32{-32768, -32768, -32768, -32768}
	src := newSpy(t, raster.Descriptor{Width: 2, Height: 2, NoData: &nd}, data)
	r := &spyRenderer{src: src}
	v := &Viewer{
		Open:     func(string) (raster.Source, error) { return src, nil },
		Renderer: r,
	}

	rep, err := v.Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.Nil(t, rep.Range)
	assert.Zero(t, rep.Stats.Count)
	require.Len(t, r.frames, 1)
	assert.Nil(t, r.frames[0].Range)
}

func TestRun_UsesConfig(t *testing.T) {
	captureLogs(t)

	src := newSpy(t, raster.Descriptor{Width: 10, Height: 10}, ramp(100))
	r := &spyRenderer{src: src}
	cfg := config.DefaultViewerConfig()
	lo, hi, cmap := 10.0, 90.0, "gray"
	cfg.LowPercentile, cfg.HighPercentile, cfg.Colormap = &lo, &hi, &cmap
	v := &Viewer{
		Open:     func(string) (raster.Source, error) { return src, nil },
		Renderer: r,
		Config:   cfg,
	}

	rep, err := v.Run(context.Background(), Request{})
	require.NoError(t, err)
	require.NotNil(t, rep.Range)
	assert.InDelta(t, 9.9, rep.Range.Low, 1e-9)
	assert.InDelta(t, 89.1, rep.Range.High, 1e-9)
	assert.Equal(t, "gray", r.frames[0].Colormap)
}

func TestRun_ASCIIGridReleasesHandle(t *testing.T) {
	captureLogs(t)

	mfs := fsutil.NewMemoryFileSystem()
	asc := "ncols 4\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 5\nNODATA_value -9999\n" +
		"1 2 3 -9999\n5 6 7 8\n"
	require.NoError(t, mfs.WriteFile("/data/dem.asc", []byte(asc), 0644))

	v := &Viewer{
		Open: func(path string) (raster.Source, error) { return raster.Open(path, mfs, nil) },
		Renderer: &render.HTMLRenderer{
			FS:        mfs,
			Path:      "/out/dem_elevation.html",
			MaxPoints: 100,
		},
	}

	rep, err := v.Run(context.Background(), Request{Path: "/data/dem.asc"})
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Descriptor.Width)
	assert.Equal(t, 7, rep.Stats.Count)
	assert.Zero(t, mfs.OpenHandles())
	assert.True(t, mfs.Exists("/out/dem_elevation.html"))
}

func TestRun_Errors(t *testing.T) {
	captureLogs(t)

	_, err := (&Viewer{}).Run(context.Background(), Request{})
	assert.Error(t, err)

	openErr := errors.New("no such raster")
	v := &Viewer{
		Open:     func(string) (raster.Source, error) { return nil, openErr },
		Renderer: &spyRenderer{},
	}
	_, err = v.Run(context.Background(), Request{Path: "x.tif"})
	assert.ErrorIs(t, err, openErr)

	readErr := errors.New("short read")
	src := newSpy(t, raster.Descriptor{Width: 4, Height: 4}, ramp(16))
	src.readErr = readErr
	r := &spyRenderer{}
	v = &Viewer{
		Open:     func(string) (raster.Source, error) { return src, nil },
		Renderer: r,
	}
	_, err = v.Run(context.Background(), Request{Path: "x.tif"})
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, 1, src.closes)
	assert.Empty(t, r.frames)

	renderErr := errors.New("disk full")
	src = newSpy(t, raster.Descriptor{Width: 4, Height: 4}, ramp(16))
	v = &Viewer{
		Open:     func(string) (raster.Source, error) { return src, nil },
		Renderer: &spyRenderer{err: renderErr},
	}
	_, err = v.Run(context.Background(), Request{Path: "x.tif"})
	assert.ErrorIs(t, err, renderErr)
	assert.Equal(t, 1, src.closes)
}
