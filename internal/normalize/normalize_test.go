package normalize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/terrainview/internal/raster"
)

func ptr(v float64) *float64 { return &v }

func grid(w, h int, data ...float32) raster.Grid {
	return raster.Grid{Width: w, Height: h, Data: data}
}

func TestNormalize_DeclaredNoDataExcludedFromPercentiles(t *testing.T) {
	t.Parallel()

	g := grid(3, 2,
		1, 2, -9999,
		4, 5, 6,
	)
	res := Normalize(g, Options{NoData: ptr(-9999)})

	assert.Equal(t, []bool{true, true, false, true, true, true}, res.Mask)
	require.NotNil(t, res.Range)
	// Over {1,2,4,5,6}: rank 0.08 → 1.08, rank 3.92 → 5.92.
	assert.InDelta(t, 1.08, res.Range.Low, 1e-9)
	assert.InDelta(t, 5.92, res.Range.High, 1e-9)

	assert.Equal(t, 5, res.Stats.Count)
	assert.Equal(t, 1.0, res.Stats.Min)
	assert.Equal(t, 6.0, res.Stats.Max)
	assert.InDelta(t, 3.6, res.Stats.Mean, 1e-9)

	assert.True(t, math.IsNaN(float64(res.Grid.Data[2])))
	assert.Equal(t, []float32{1, 2}, res.Grid.Data[:2])
	assert.Equal(t, []float32{4, 5, 6}, res.Grid.Data[3:])
}

func TestNormalize_FloorHeuristicWithoutNoData(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())
	g := grid(5, 1, -9999, -10000, -9998, nan, 12)
	res := Normalize(g, Options{})

	assert.Equal(t, []bool{false, false, true, false, true}, res.Mask)
	require.NotNil(t, res.Range)
	assert.Equal(t, -9998.0, res.Stats.Min)
	assert.Equal(t, 12.0, res.Stats.Max)
}

func TestNormalize_ConfigurableFloor(t *testing.T) {
	t.Parallel()

	g := grid(3, 1, -500, -100, 3)
	res := Normalize(g, Options{NoDataFloor: ptr(-100)})
	assert.Equal(t, []bool{false, false, true}, res.Mask)
}

func TestNormalize_DeclaredNoDataIgnoresFloor(t *testing.T) {
	t.Parallel()

	// With a declared sentinel, values below -9999 are genuine.
	g := grid(3, 1, -20000, 0, 7)
	res := Normalize(g, Options{NoData: ptr(0)})
	assert.Equal(t, []bool{true, false, true}, res.Mask)
}

func TestNormalize_Float32Sentinel(t *testing.T) {
	t.Parallel()

	lowest := -3.4028234663852886e+38
	g := grid(2, 1, float32(lowest), 10)
	res := Normalize(g, Options{NoData: ptr(lowest)})
	assert.Equal(t, []bool{false, true}, res.Mask)
	require.NotNil(t, res.Range)
	assert.Equal(t, 10.0, res.Range.Low)
	assert.Equal(t, 10.0, res.Range.High)
	assert.Equal(t, 0.0, res.Stats.StdDev)
}

func TestNormalize_NoValidSamples(t *testing.T) {
	t.Parallel()

	t.Run("all NaN", func(t *testing.T) {
		nan := float32(math.NaN())
		g := grid(2, 2, nan, nan, nan, nan)
		res := Normalize(g, Options{})
		assert.Nil(t, res.Range)
		assert.Equal(t, Stats{}, res.Stats)
		assert.Len(t, res.Grid.Data, 4)
	})

	t.Run("all sentinel", func(t *testing.T) {
		g := grid(2, 1, -32768, -32768)
		res := Normalize(g, Options{NoData: ptr(-32768)})
		assert.Nil(t, res.Range)
		assert.Equal(t, []float32{-32768, -32768}, res.Grid.Data, "grid returned unmodified")
		assert.Equal(t, []bool{false, false}, res.Mask)
	})
}

func TestNormalize_RobustToOutliers(t *testing.T) {
	t.Parallel()

	data := make([]float32, 0, 101)
	for i := 0; i < 100; i++ {
		data = append(data, float32(i))
	}
	data = append(data, 1e6)
	res := Normalize(grid(101, 1, data...), Options{})

	require.NotNil(t, res.Range)
	assert.Equal(t, 1e6, res.Stats.Max, "true max still reported")
	assert.InDelta(t, 2.0, res.Range.Low, 1e-9)
	assert.InDelta(t, 98.0, res.Range.High, 1e-9)
}

func TestNormalize_CustomPercentiles(t *testing.T) {
	t.Parallel()

	res := Normalize(grid(5, 1, 10, 20, 30, 40, 50), Options{LowPercentile: 25, HighPercentile: 75})
	require.NotNil(t, res.Range)
	assert.Equal(t, 20.0, res.Range.Low)
	assert.Equal(t, 40.0, res.Range.High)
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	hundred := make([]float64, 100)
	for i := range hundred {
		hundred[i] = float64(i)
	}

	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"median of even count", []float64{1, 2, 3, 4}, 50, 2.5},
		{"2nd of 0..99", hundred, 2, 1.98},
		{"98th of 0..99", hundred, 98, 97.02},
		{"minimum", []float64{3, 7}, 0, 3},
		{"maximum", []float64{3, 7}, 100, 7},
		{"single", []float64{42}, 98, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Percentile(tt.sorted, tt.p), 1e-9)
		})
	}

	assert.Panics(t, func() { Percentile(nil, 50) })
}

func TestDisplayRangeString(t *testing.T) {
	assert.Equal(t, "1.1 to 5.9", DisplayRange{Low: 1.08, High: 5.92}.String())
}
