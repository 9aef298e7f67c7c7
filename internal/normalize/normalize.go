// Package normalize masks invalid elevation samples and derives a robust
// display range from percentiles of what remains.
package normalize

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/terrainview/internal/raster"
)

const (
	// DefaultNoDataFloor is the threshold used when a raster declares no
	// nodata value: samples at or below it are treated as sentinels. It is a
	// convention common to elevation products, not a guarantee.
	DefaultNoDataFloor    = -9999.0
	DefaultLowPercentile  = 2.0
	DefaultHighPercentile = 98.0
)

// Options controls masking and the display range.
type Options struct {
	// NoData is the declared sentinel. When nil, NoDataFloor applies.
	NoData      *float64
	NoDataFloor *float64
	// Percentiles in [0, 100]; zero values select the 2/98 defaults.
	LowPercentile  float64
	HighPercentile float64
}

// DisplayRange is the contrast stretch handed to the renderer.
type DisplayRange struct {
	Low  float64
	High float64
}

func (r DisplayRange) String() string {
	return fmt.Sprintf("%.1f to %.1f", r.Low, r.High)
}

// Stats describes the valid samples.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// Result is the output of Normalize.
type Result struct {
	// Mask is true where a sample is a genuine measurement.
	Mask []bool
	// Range is nil when there are no valid samples.
	Range *DisplayRange
	Stats Stats
	// Grid shares its buffer with the input: invalid cells hold NaN.
	Grid raster.Grid
}

// Normalize computes the validity mask first, then statistics over valid
// samples only, then masks the grid. The grid is rewritten in place so no
// second full-size copy is held; when nothing is valid it is left untouched.
func Normalize(g raster.Grid, opts Options) Result {
	mask := Mask(g, opts)

	valid := make([]float64, 0, countTrue(mask))
	for i, ok := range mask {
		if ok {
			valid = append(valid, float64(g.Data[i]))
		}
	}

	res := Result{Mask: mask, Grid: g}
	if len(valid) == 0 {
		return res
	}

	mean, std := stat.MeanStdDev(valid, nil)
	if len(valid) == 1 {
		std = 0
	}
	res.Stats = Stats{
		Count:  len(valid),
		Min:    floats.Min(valid),
		Max:    floats.Max(valid),
		Mean:   mean,
		StdDev: std,
	}

	lo, hi := opts.LowPercentile, opts.HighPercentile
	if lo == 0 && hi == 0 {
		lo, hi = DefaultLowPercentile, DefaultHighPercentile
	}
	slices.Sort(valid)
	res.Range = &DisplayRange{
		Low:  Percentile(valid, lo),
		High: Percentile(valid, hi),
	}

	nan := float32(math.NaN())
	for i, ok := range mask {
		if !ok {
			g.Data[i] = nan
		}
	}
	return res
}

// Mask returns the validity mask of g. With a declared nodata a sample is
// valid when it differs from the sentinel (compared as float32, the grid's
// domain) and is not NaN; otherwise it must exceed the nodata floor.
func Mask(g raster.Grid, opts Options) []bool {
	mask := make([]bool, len(g.Data))
	if opts.NoData != nil {
		sentinel := float32(*opts.NoData)
		for i, v := range g.Data {
			mask[i] = v != sentinel && !math.IsNaN(float64(v))
		}
		return mask
	}

	floor := float32(DefaultNoDataFloor)
	if opts.NoDataFloor != nil {
		floor = float32(*opts.NoDataFloor)
	}
	for i, v := range g.Data {
		// NaN compares false, so it is excluded here too.
		mask[i] = v > floor
	}
	return mask
}

// Percentile returns the p-th percentile (0-100) of sorted data using linear
// interpolation between the closest ranks: rank h = (n-1)p/100. It panics on
// empty input.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		panic("normalize: percentile of empty data")
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	h := float64(n-1) * p / 100
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

func countTrue(mask []bool) int {
	n := 0
	for _, ok := range mask {
		if ok {
			n++
		}
	}
	return n
}
