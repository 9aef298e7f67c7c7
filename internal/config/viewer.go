package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
)

// DefaultConfigPath is the path to the canonical viewer defaults file.
const DefaultConfigPath = "config/viewer.defaults.json"

// Output formats understood by the renderer.
const (
	FormatPNG  = "png"
	FormatHTML = "html"
)

// Colormaps understood by the renderer.
var ValidColormaps = []string{"terrain", "gray", "viridis"}

// ViewerConfig holds the memory policy and rendering settings. Fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// methods supply defaults for the rest.
type ViewerConfig struct {
	// Memory policy
	MaxMemoryGB        *float64 `json:"max_memory_gb,omitempty"`
	RawDataFraction    *float64 `json:"raw_data_fraction,omitempty"`
	OverheadMultiplier *float64 `json:"overhead_multiplier,omitempty"`

	// Normalization
	LowPercentile  *float64 `json:"low_percentile,omitempty"`
	HighPercentile *float64 `json:"high_percentile,omitempty"`
	NoDataFloor    *float64 `json:"nodata_floor,omitempty"` // applies only when the raster declares no nodata

	// Rendering
	Colormap      *string  `json:"colormap,omitempty"`
	OutputFormat  *string  `json:"output_format,omitempty"`
	PlotWidthIn   *float64 `json:"plot_width_in,omitempty"`
	PlotHeightIn  *float64 `json:"plot_height_in,omitempty"`
	HTMLMaxPoints *int     `json:"html_max_points,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyViewerConfig returns a ViewerConfig with all fields set to nil.
func EmptyViewerConfig() *ViewerConfig {
	return &ViewerConfig{}
}

// DefaultViewerConfig returns a ViewerConfig with every field populated from
// the built-in defaults. It mirrors config/viewer.defaults.json.
func DefaultViewerConfig() *ViewerConfig {
	return &ViewerConfig{
		MaxMemoryGB:        ptrFloat64(8),
		RawDataFraction:    ptrFloat64(0.3),
		OverheadMultiplier: ptrFloat64(3.5),
		LowPercentile:      ptrFloat64(2),
		HighPercentile:     ptrFloat64(98),
		NoDataFloor:        ptrFloat64(-9999),
		Colormap:           ptrString("terrain"),
		OutputFormat:       ptrString(FormatPNG),
		PlotWidthIn:        ptrFloat64(12),
		PlotHeightIn:       ptrFloat64(8),
		HTMLMaxPoints:      ptrInt(250000),
	}
}

// LoadViewerConfig loads a ViewerConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadViewerConfig(path string) (*ViewerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyViewerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ViewerConfig) Validate() error {
	if c.MaxMemoryGB != nil && !(*c.MaxMemoryGB > 0) {
		return fmt.Errorf("max_memory_gb must be positive, got %f", *c.MaxMemoryGB)
	}
	if c.RawDataFraction != nil && (!(*c.RawDataFraction > 0) || *c.RawDataFraction > 1) {
		return fmt.Errorf("raw_data_fraction must be in (0, 1], got %f", *c.RawDataFraction)
	}
	if c.OverheadMultiplier != nil && !(*c.OverheadMultiplier >= 1) {
		return fmt.Errorf("overhead_multiplier must be at least 1, got %f", *c.OverheadMultiplier)
	}

	lo, hi := c.GetLowPercentile(), c.GetHighPercentile()
	if lo < 0 || hi > 100 || !(lo < hi) {
		return fmt.Errorf("percentiles must satisfy 0 <= low < high <= 100, got %g and %g", lo, hi)
	}
	if c.NoDataFloor != nil && (math.IsNaN(*c.NoDataFloor) || math.IsInf(*c.NoDataFloor, 1)) {
		return fmt.Errorf("nodata_floor must be a finite number or -Inf")
	}

	if c.Colormap != nil && !slices.Contains(ValidColormaps, *c.Colormap) {
		return fmt.Errorf("unknown colormap %q (valid: %v)", *c.Colormap, ValidColormaps)
	}
	if c.OutputFormat != nil && *c.OutputFormat != FormatPNG && *c.OutputFormat != FormatHTML {
		return fmt.Errorf("output_format must be %q or %q, got %q", FormatPNG, FormatHTML, *c.OutputFormat)
	}

	if c.PlotWidthIn != nil && !(*c.PlotWidthIn > 0) {
		return fmt.Errorf("plot_width_in must be positive, got %f", *c.PlotWidthIn)
	}
	if c.PlotHeightIn != nil && !(*c.PlotHeightIn > 0) {
		return fmt.Errorf("plot_height_in must be positive, got %f", *c.PlotHeightIn)
	}
	if c.HTMLMaxPoints != nil && *c.HTMLMaxPoints < 1 {
		return fmt.Errorf("html_max_points must be positive, got %d", *c.HTMLMaxPoints)
	}

	return nil
}

// GetMaxMemoryGB returns the max_memory_gb value or the default.
func (c *ViewerConfig) GetMaxMemoryGB() float64 {
	if c.MaxMemoryGB == nil {
		return 8.0
	}
	return *c.MaxMemoryGB
}

// GetRawDataFraction returns the raw_data_fraction value or the default.
func (c *ViewerConfig) GetRawDataFraction() float64 {
	if c.RawDataFraction == nil {
		return 0.3
	}
	return *c.RawDataFraction
}

// GetOverheadMultiplier returns the overhead_multiplier value or the default.
func (c *ViewerConfig) GetOverheadMultiplier() float64 {
	if c.OverheadMultiplier == nil {
		return 3.5
	}
	return *c.OverheadMultiplier
}

// GetLowPercentile returns the low_percentile value or the default.
func (c *ViewerConfig) GetLowPercentile() float64 {
	if c.LowPercentile == nil {
		return 2
	}
	return *c.LowPercentile
}

// GetHighPercentile returns the high_percentile value or the default.
func (c *ViewerConfig) GetHighPercentile() float64 {
	if c.HighPercentile == nil {
		return 98
	}
	return *c.HighPercentile
}

// GetNoDataFloor returns the nodata_floor value or the default.
func (c *ViewerConfig) GetNoDataFloor() float64 {
	if c.NoDataFloor == nil {
		return -9999
	}
	return *c.NoDataFloor
}

// GetColormap returns the colormap value or the default.
func (c *ViewerConfig) GetColormap() string {
	if c.Colormap == nil {
		return "terrain"
	}
	return *c.Colormap
}

// GetOutputFormat returns the output_format value or the default.
func (c *ViewerConfig) GetOutputFormat() string {
	if c.OutputFormat == nil {
		return FormatPNG
	}
	return *c.OutputFormat
}

// GetPlotWidthIn returns the plot_width_in value or the default.
func (c *ViewerConfig) GetPlotWidthIn() float64 {
	if c.PlotWidthIn == nil {
		return 12
	}
	return *c.PlotWidthIn
}

// GetPlotHeightIn returns the plot_height_in value or the default.
func (c *ViewerConfig) GetPlotHeightIn() float64 {
	if c.PlotHeightIn == nil {
		return 8
	}
	return *c.PlotHeightIn
}

// GetHTMLMaxPoints returns the html_max_points value or the default.
func (c *ViewerConfig) GetHTMLMaxPoints() int {
	if c.HTMLMaxPoints == nil {
		return 250000
	}
	return *c.HTMLMaxPoints
}
