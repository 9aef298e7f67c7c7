// Package gdal reads GeoTIFFs (and anything else GDAL can open) through
// godal. Downsampling is delegated to GDAL's RasterIO with average
// resampling, so the native-resolution band is never materialized in Go.
//
// GDAL is a cgo dependency. Build with -tags=gdal to enable it; without the
// tag Open reports raster.ErrUnsupported and only ASCII grids can be read.
package gdal
