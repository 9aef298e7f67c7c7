package raster

import (
	"context"
	"errors"
	"fmt"
)

// MemorySource serves an in-memory raster. It is used for fixtures and for
// data that has already been decoded by another tool.
type MemorySource struct {
	desc   Descriptor
	data   []float32
	closed bool
}

// NewMemorySource wraps row-major data described by desc. BytesPerPixel and
// DataType default to float32 when unset.
func NewMemorySource(desc Descriptor, data []float32) (*MemorySource, error) {
	if desc.Width < 1 || desc.Height < 1 {
		return nil, fmt.Errorf("memory source: invalid dimensions %dx%d", desc.Width, desc.Height)
	}
	if len(data) != desc.Width*desc.Height {
		return nil, fmt.Errorf("memory source: have %d samples, want %d", len(data), desc.Width*desc.Height)
	}
	if desc.BytesPerPixel == 0 {
		desc.BytesPerPixel = 4
	}
	if desc.DataType == "" {
		desc.DataType = "float32"
	}
	return &MemorySource{desc: desc, data: data}, nil
}

// Describe implements Source.
func (m *MemorySource) Describe() Descriptor {
	return m.desc
}

// ReadAveraged implements Source.
func (m *MemorySource) ReadAveraged(ctx context.Context, outHeight, outWidth int) (Grid, error) {
	if m.closed {
		return Grid{}, errors.New("memory source: read after close")
	}
	if err := CheckShape(m.desc, outHeight, outWidth); err != nil {
		return Grid{}, err
	}
	avg := newBlockAverager(m.desc.Width, m.desc.Height, outWidth, outHeight, m.desc.NoData)
	for y := 0; y < m.desc.Height; y++ {
		if err := ctx.Err(); err != nil {
			return Grid{}, err
		}
		avg.addRow(y, m.data[y*m.desc.Width:(y+1)*m.desc.Width])
	}
	return avg.grid(), nil
}

// Close implements Source.
func (m *MemorySource) Close() error {
	m.closed = true
	return nil
}
