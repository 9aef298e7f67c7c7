//go:build gdal
// +build gdal

package gdal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/banshee-data/terrainview/internal/raster"
)

// Enabled reports whether GDAL support was compiled in.
const Enabled = true

var registerOnce sync.Once

// Source is a GDAL dataset restricted to its first band.
type Source struct {
	path string
	ds   *godal.Dataset
	band godal.Band
	desc raster.Descriptor
}

// Open opens path read-only. It satisfies raster.OpenFunc.
func Open(path string) (raster.Source, error) {
	registerOnce.Do(godal.RegisterAll)

	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		_ = ds.Close()
		return nil, fmt.Errorf("%s: dataset has no raster bands", path)
	}

	st := ds.Structure()
	desc := raster.Descriptor{
		Width:         st.SizeX,
		Height:        st.SizeY,
		BytesPerPixel: st.DataType.Size(),
		DataType:      st.DataType.String(),
	}
	if nd, ok := bands[0].NoData(); ok {
		desc.NoData = &nd
	}
	if gt, err := ds.GeoTransform(); err == nil {
		desc.PixelSizeX = math.Abs(gt[1])
		desc.PixelSizeY = math.Abs(gt[5])
	}
	if b, err := ds.Bounds(); err == nil {
		desc.Bounds = raster.Bounds{MinX: b[0], MinY: b[1], MaxX: b[2], MaxY: b[3]}
	}

	return &Source{path: path, ds: ds, band: bands[0], desc: desc}, nil
}

// Describe implements raster.Source.
func (s *Source) Describe() raster.Descriptor {
	return s.desc
}

// ReadAveraged implements raster.Source. The source window is the whole band
// and the buffer is outWidth x outHeight, so GDAL averages each block. GDAL
// skips the band's declared nodata when averaging.
func (s *Source) ReadAveraged(ctx context.Context, outHeight, outWidth int) (raster.Grid, error) {
	if s.ds == nil {
		return raster.Grid{}, errors.New("gdal: read after close")
	}
	if err := raster.CheckShape(s.desc, outHeight, outWidth); err != nil {
		return raster.Grid{}, err
	}
	// RasterIO cannot be interrupted once started.
	if err := ctx.Err(); err != nil {
		return raster.Grid{}, err
	}

	g := raster.NewGrid(outWidth, outHeight)
	err := s.band.Read(0, 0, g.Data, outWidth, outHeight,
		godal.Window(s.desc.Width, s.desc.Height),
		godal.Resampling(godal.Average),
	)
	if err != nil {
		return raster.Grid{}, fmt.Errorf("failed to read %s at %dx%d: %w", s.path, outHeight, outWidth, err)
	}
	return g, nil
}

// Close implements raster.Source. It is safe to call more than once.
func (s *Source) Close() error {
	if s.ds == nil {
		return nil
	}
	err := s.ds.Close()
	s.ds = nil
	return err
}
