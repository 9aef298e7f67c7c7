package raster

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/banshee-data/terrainview/internal/fsutil"
)

// ASCIIGridHeader is the parsed header of an ESRI ASCII grid.
type ASCIIGridHeader struct {
	NCols, NRows int
	XLL, YLL     float64
	// Center is true when the origin was given as xllcenter/yllcenter.
	Center   bool
	CellSize float64
	NoData   *float64
}

// ASCIIGridSource streams an ESRI ASCII grid, optionally gzip-compressed.
// The header is parsed on open; samples are consumed once by ReadAveraged
// and never held at native resolution.
type ASCIIGridSource struct {
	path    string
	header  ASCIIGridHeader
	file    io.Closer
	gz      io.Closer
	scanner *bufio.Scanner
	// pending holds the first data token, read while looking for the end of
	// the header.
	pending string
	read    bool
}

// OpenASCIIGrid opens path through fsys and parses its header.
func OpenASCIIGrid(fsys fsutil.FileSystem, path string) (*ASCIIGridSource, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ascii grid: %w", err)
	}
	src := &ASCIIGridSource{path: path, file: f}

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		src.gz = gz
		r = gz
	}

	src.scanner = bufio.NewScanner(r)
	src.scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	src.scanner.Split(bufio.ScanWords)

	if err := src.parseHeader(); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

func (s *ASCIIGridSource) parseHeader() error {
	seen := map[string]bool{}
	for s.scanner.Scan() {
		key := strings.ToLower(s.scanner.Text())
		if !isHeaderKey(key) {
			s.pending = s.scanner.Text()
			break
		}
		if !s.scanner.Scan() {
			return fmt.Errorf("header key %q has no value", key)
		}
		val := s.scanner.Text()
		seen[key] = true

		var err error
		switch key {
		case "ncols":
			s.header.NCols, err = strconv.Atoi(val)
		case "nrows":
			s.header.NRows, err = strconv.Atoi(val)
		case "xllcorner", "xllcenter":
			s.header.XLL, err = strconv.ParseFloat(val, 64)
			s.header.Center = key == "xllcenter"
		case "yllcorner", "yllcenter":
			s.header.YLL, err = strconv.ParseFloat(val, 64)
		case "cellsize":
			s.header.CellSize, err = strconv.ParseFloat(val, 64)
		case "nodata_value":
			var nd float64
			nd, err = strconv.ParseFloat(val, 64)
			s.header.NoData = &nd
		}
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, val, err)
		}
	}
	if err := s.scanner.Err(); err != nil {
		return err
	}

	for _, req := range []string{"ncols", "nrows", "cellsize"} {
		if !seen[req] {
			return fmt.Errorf("missing header key %s", req)
		}
	}
	if s.header.NCols < 1 || s.header.NRows < 1 {
		return fmt.Errorf("invalid dimensions %dx%d", s.header.NCols, s.header.NRows)
	}
	return nil
}

func isHeaderKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

// Header returns the parsed header.
func (s *ASCIIGridSource) Header() ASCIIGridHeader {
	return s.header
}

// Describe implements Source. Samples are decoded as float32.
func (s *ASCIIGridSource) Describe() Descriptor {
	h := s.header
	minX, minY := h.XLL, h.YLL
	if h.Center {
		minX -= h.CellSize / 2
		minY -= h.CellSize / 2
	}
	return Descriptor{
		Width:         h.NCols,
		Height:        h.NRows,
		BytesPerPixel: 4,
		DataType:      "float32",
		NoData:        h.NoData,
		Bounds: Bounds{
			MinX: minX,
			MinY: minY,
			MaxX: minX + float64(h.NCols)*h.CellSize,
			MaxY: minY + float64(h.NRows)*h.CellSize,
		},
		PixelSizeX: h.CellSize,
		PixelSizeY: h.CellSize,
	}
}

// ReadAveraged implements Source. It may be called once.
func (s *ASCIIGridSource) ReadAveraged(ctx context.Context, outHeight, outWidth int) (Grid, error) {
	if s.read {
		return Grid{}, errors.New("ascii grid: samples already consumed")
	}
	if s.scanner == nil {
		return Grid{}, errors.New("ascii grid: read after close")
	}
	desc := s.Describe()
	if err := CheckShape(desc, outHeight, outWidth); err != nil {
		return Grid{}, err
	}
	s.read = true

	avg := newBlockAverager(desc.Width, desc.Height, outWidth, outHeight, desc.NoData)
	next := func() (string, bool) {
		if s.pending != "" {
			tok := s.pending
			s.pending = ""
			return tok, true
		}
		if s.scanner.Scan() {
			return s.scanner.Text(), true
		}
		return "", false
	}

	for y := 0; y < desc.Height; y++ {
		if err := ctx.Err(); err != nil {
			return Grid{}, err
		}
		for x := 0; x < desc.Width; x++ {
			tok, ok := next()
			if !ok {
				if err := s.scanner.Err(); err != nil {
					return Grid{}, fmt.Errorf("%s: %w", s.path, err)
				}
				return Grid{}, fmt.Errorf("%s: %w at row %d col %d", s.path, io.ErrUnexpectedEOF, y, x)
			}
			v, err := strconv.ParseFloat(tok, 32)
			if err != nil {
				return Grid{}, fmt.Errorf("%s: row %d col %d: %w", s.path, y, x, err)
			}
			avg.add(y, x, float32(v))
		}
	}
	return avg.grid(), nil
}

// Close implements Source. It is safe to call more than once.
func (s *ASCIIGridSource) Close() error {
	var errs []error
	if s.gz != nil {
		errs = append(errs, s.gz.Close())
		s.gz = nil
	}
	if s.file != nil {
		errs = append(errs, s.file.Close())
		s.file = nil
	}
	s.scanner = nil
	return errors.Join(errs...)
}
