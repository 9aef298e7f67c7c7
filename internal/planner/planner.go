// Package planner decides how far to downsample a raster before reading it,
// so that raw samples plus rendering overhead fit a memory budget. It only
// predicts; the read itself happens elsewhere, which keeps every decision
// testable without raster I/O.
package planner

import (
	"fmt"
	"math"

	"github.com/banshee-data/terrainview/internal/units"
)

const (
	// DefaultRawFraction is the share of the budget reserved for raw samples
	// in auto mode. The rest covers colormap and figure buffers.
	DefaultRawFraction = 0.3
	// DefaultOverheadMultiplier converts a raw footprint to the predicted
	// total including the renderer's copies.
	DefaultOverheadMultiplier = 3.5
	// DefaultMaxTotalGB is the budget used when the operator gives none.
	DefaultMaxTotalGB = 8.0
)

// Mode says whether the factor was derived or requested.
type Mode int

const (
	ModeAuto Mode = iota
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

// Outcome is what the caller should do with a plan.
type Outcome int

const (
	// Proceed means the read may start.
	Proceed Outcome = iota
	// PromptOperator means the prediction exceeds the budget and the
	// operator must confirm explicitly.
	PromptOperator
	// Abort means the operator declined.
	Abort
)

func (o Outcome) String() string {
	switch o {
	case Proceed:
		return "proceed"
	case PromptOperator:
		return "prompt"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Params are the inputs of BuildPlan.
type Params struct {
	Width         int
	Height        int
	BytesPerPixel int
	// RequestedFactor selects manual mode when non-nil.
	RequestedFactor *int
	MaxTotalGB      float64
	// RawFraction and OverheadMultiplier fall back to their defaults when
	// zero.
	RawFraction        float64
	OverheadMultiplier float64
}

// Plan is a downsampling decision and its predicted cost.
type Plan struct {
	Mode             Mode
	DownsampleFactor int
	OutWidth         int
	OutHeight        int
	FullGB           float64
	PredictedRawGB   float64
	PredictedTotalGB float64
	MaxTotalGB       float64
	Outcome          Outcome
}

// ConfirmFunc asks the operator a yes/no question.
type ConfirmFunc func(prompt string) bool

// BuildPlan computes the downsample factor and predicted footprint. It is a
// pure function of p and never fails: a budget too small for any factor
// degrades to the coarsest readable grid with its real footprint reported.
func BuildPlan(p Params) Plan {
	rawFraction := p.RawFraction
	if rawFraction <= 0 {
		rawFraction = DefaultRawFraction
	}
	overhead := p.OverheadMultiplier
	if overhead <= 0 {
		overhead = DefaultOverheadMultiplier
	}

	pixels := float64(p.Width) * float64(p.Height)
	plan := Plan{
		FullGB:     units.PixelsToGiB(pixels, p.BytesPerPixel),
		MaxTotalGB: p.MaxTotalGB,
	}

	if p.RequestedFactor == nil {
		plan.Mode = ModeAuto
		maxPixels := units.GiBToBytes(p.MaxTotalGB*rawFraction) / float64(p.BytesPerPixel)
		plan.DownsampleFactor = clampFactor(autoFactor(pixels, maxPixels), p.Width, p.Height)
		plan.OutWidth = p.Width / plan.DownsampleFactor
		plan.OutHeight = p.Height / plan.DownsampleFactor
		// Floor division can undershoot the ideal factor, so the estimate
		// comes from the grid that will actually be read.
		realized := float64(plan.OutWidth) * float64(plan.OutHeight)
		plan.PredictedRawGB = units.PixelsToGiB(realized, p.BytesPerPixel)
		plan.PredictedTotalGB = plan.PredictedRawGB * overhead
		plan.Outcome = Proceed
		return plan
	}

	plan.Mode = ModeManual
	factor := 1
	if *p.RequestedFactor > 1 {
		factor = *p.RequestedFactor
	}
	plan.DownsampleFactor = clampFactor(float64(factor), p.Width, p.Height)
	plan.OutWidth = p.Width / plan.DownsampleFactor
	plan.OutHeight = p.Height / plan.DownsampleFactor
	f := float64(plan.DownsampleFactor)
	plan.PredictedRawGB = plan.FullGB / (f * f)
	plan.PredictedTotalGB = plan.PredictedRawGB * overhead
	if plan.PredictedTotalGB > p.MaxTotalGB {
		plan.Outcome = PromptOperator
	} else {
		plan.Outcome = Proceed
	}
	return plan
}

// autoFactor returns floor(sqrt(pixels/maxPixels)), or +Inf when the budget
// leaves no room at all.
func autoFactor(pixels, maxPixels float64) float64 {
	if !(maxPixels > 0) {
		return math.Inf(1)
	}
	return math.Floor(math.Sqrt(pixels / maxPixels))
}

// clampFactor bounds f to [1, min(width, height)] so the output grid is never
// empty.
func clampFactor(f float64, width, height int) int {
	limit := width
	if height < limit {
		limit = height
	}
	if limit < 1 {
		limit = 1
	}
	if math.IsNaN(f) || f < 1 {
		return 1
	}
	if f > float64(limit) {
		return limit
	}
	return int(f)
}

// Resolve settles a PromptOperator outcome by asking confirm. Any other
// outcome is returned unchanged and confirm is not called. A nil confirm
// declines.
func (p Plan) Resolve(confirm ConfirmFunc) Plan {
	if p.Outcome != PromptOperator {
		return p
	}
	if confirm != nil && confirm(p.PromptText()) {
		p.Outcome = Proceed
	} else {
		p.Outcome = Abort
	}
	return p
}

// PromptText is the confirmation question for an over-budget plan.
func (p Plan) PromptText() string {
	return fmt.Sprintf("Warning: This may use %.2f GB total RAM. Continue? (y/N): ", p.PredictedTotalGB)
}

// Summary describes the plan in operator terms, one line per entry.
func (p Plan) Summary() []string {
	verb := "Auto-selected"
	if p.Mode == ModeManual {
		verb = "Requested"
	}
	return []string{
		fmt.Sprintf("%s downsample factor: %dx (output grid %dx%d)", verb, p.DownsampleFactor, p.OutHeight, p.OutWidth),
		fmt.Sprintf("Raw data: %s, estimated total usage: %s (budget %s)",
			units.FormatGiB(p.PredictedRawGB), units.FormatGiB(p.PredictedTotalGB), units.FormatGiB(p.MaxTotalGB)),
	}
}
