//go:build !gdal
// +build !gdal

package gdal

import (
	"fmt"

	"github.com/banshee-data/terrainview/internal/raster"
)

// Enabled reports whether GDAL support was compiled in.
const Enabled = false

// Open is a stub used when GDAL support is disabled.
// Build with -tags=gdal to enable GeoTIFF reading.
func Open(path string) (raster.Source, error) {
	return nil, fmt.Errorf("%s: GDAL support not enabled, rebuild with -tags=gdal: %w", path, raster.ErrUnsupported)
}
