// Package raster describes single-band rasters and the averaged read contract
// every source implements. A Source is opened once, read once at a reduced
// shape, and closed; it never hands out the native-resolution samples.
package raster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/banshee-data/terrainview/internal/fsutil"
)

var (
	// ErrUnsupported is returned by Open when no source can handle a path.
	ErrUnsupported = errors.New("unsupported raster format")
	// ErrInvalidShape is returned when a requested output shape is empty or
	// larger than the source.
	ErrInvalidShape = errors.New("invalid output shape")
)

// Bounds is the georeferenced extent of a raster in its own CRS units.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b Bounds) String() string {
	return fmt.Sprintf("BoundingBox(left=%g, bottom=%g, right=%g, top=%g)", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Descriptor describes a source at native resolution.
type Descriptor struct {
	Width         int
	Height        int
	BytesPerPixel int
	DataType      string
	// NoData is the declared sentinel, nil when the source declares none.
	NoData *float64
	Bounds Bounds
	// PixelSizeX and PixelSizeY are the ground size of one native pixel,
	// zero when the source is not georeferenced.
	PixelSizeX float64
	PixelSizeY float64
}

// Pixels returns the native pixel count.
func (d Descriptor) Pixels() int64 {
	return int64(d.Width) * int64(d.Height)
}

// Grid is a row-major 2-D array of samples. Invalid samples may be NaN.
type Grid struct {
	Width  int
	Height int
	Data   []float32
}

// NewGrid allocates a zeroed width x height grid.
func NewGrid(width, height int) Grid {
	return Grid{Width: width, Height: height, Data: make([]float32, width*height)}
}

// At returns the sample at (row, col).
func (g Grid) At(row, col int) float32 {
	return g.Data[row*g.Width+col]
}

// Len returns the number of samples.
func (g Grid) Len() int {
	return len(g.Data)
}

// Source is a single-band raster that can be read at a reduced resolution.
type Source interface {
	// Describe returns the native-resolution descriptor. It is cheap and does
	// not touch pixel data.
	Describe() Descriptor
	// ReadAveraged reads the whole raster into an outHeight x outWidth grid.
	// Each output pixel is the mean of the valid samples of its source block.
	ReadAveraged(ctx context.Context, outHeight, outWidth int) (Grid, error)
	// Close releases the handle.
	Close() error
}

// OpenFunc opens a raster at path.
type OpenFunc func(path string) (Source, error)

// Open picks a source by file extension. ESRI ASCII grids (.asc, .asc.gz) are
// read natively through fsys; everything else goes to fallback, which is
// normally the GDAL opener.
func Open(path string, fsys fsutil.FileSystem, fallback OpenFunc) (Source, error) {
	if IsASCIIGrid(path) {
		src, err := OpenASCIIGrid(fsys, path)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	if fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	return fallback(path)
}

// IsASCIIGrid reports whether path names an ESRI ASCII grid.
func IsASCIIGrid(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".asc") || strings.HasSuffix(lower, ".asc.gz")
}

// CheckShape validates an output shape against a descriptor.
func CheckShape(d Descriptor, outHeight, outWidth int) error {
	if outHeight < 1 || outWidth < 1 || outHeight > d.Height || outWidth > d.Width {
		return fmt.Errorf("%w: %dx%d from %dx%d source", ErrInvalidShape, outHeight, outWidth, d.Height, d.Width)
	}
	return nil
}

// fillValue is what an output pixel holds when its whole block was invalid.
func fillValue(nodata *float64) float32 {
	if nodata != nil {
		return float32(*nodata)
	}
	return float32(math.NaN())
}
