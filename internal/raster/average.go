package raster

import "math"

// blockAverager accumulates source rows into an output grid whose pixels are
// the means of their source blocks. Source row y lands in output row
// y*outH/srcH, so every source sample belongs to exactly one block even when
// the sizes do not divide evenly. Memory is proportional to the output grid.
type blockAverager struct {
	srcW, srcH int
	outW, outH int
	sums       []float64
	counts     []uint32
	colIndex   []int32
	nodata     *float64
	sentinel   float32
}

func newBlockAverager(srcW, srcH, outW, outH int, nodata *float64) *blockAverager {
	a := &blockAverager{
		srcW:     srcW,
		srcH:     srcH,
		outW:     outW,
		outH:     outH,
		sums:     make([]float64, outW*outH),
		counts:   make([]uint32, outW*outH),
		colIndex: make([]int32, srcW),
		nodata:   nodata,
	}
	if nodata != nil {
		a.sentinel = float32(*nodata)
	}
	for x := 0; x < srcW; x++ {
		a.colIndex[x] = int32(int64(x) * int64(outW) / int64(srcW))
	}
	return a
}

// valid reports whether v may contribute to a block mean. Sentinels and NaN
// never do.
func (a *blockAverager) valid(v float32) bool {
	if math.IsNaN(float64(v)) {
		return false
	}
	return a.nodata == nil || v != a.sentinel
}

// add accumulates a single source sample.
func (a *blockAverager) add(y, x int, v float32) {
	if !a.valid(v) {
		return
	}
	i := a.outRow(y)*a.outW + int(a.colIndex[x])
	a.sums[i] += float64(v)
	a.counts[i]++
}

// addRow accumulates source row y.
func (a *blockAverager) addRow(y int, row []float32) {
	base := a.outRow(y) * a.outW
	for x, v := range row {
		if !a.valid(v) {
			continue
		}
		i := base + int(a.colIndex[x])
		a.sums[i] += float64(v)
		a.counts[i]++
	}
}

func (a *blockAverager) outRow(y int) int {
	return int(int64(y) * int64(a.outH) / int64(a.srcH))
}

// grid finalizes the means. The accumulators are released afterwards.
func (a *blockAverager) grid() Grid {
	g := NewGrid(a.outW, a.outH)
	fill := fillValue(a.nodata)
	for i, n := range a.counts {
		if n == 0 {
			g.Data[i] = fill
			continue
		}
		g.Data[i] = float32(a.sums[i] / float64(n))
	}
	a.sums, a.counts = nil, nil
	return g
}
