// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package plan is the transform planner: given a blit's source and
// destination shape, it decides which sub-operations a backend must
// run, and in what order, without performing any of them itself.
// Backends (fastcv in particular) walk the resulting Chain and
// execute each Step using their own kernels.
package plan

import (
	"github.com/gviegas/vconv/frame"
	"github.com/gviegas/vconv/pixfmt"
)

// Step names one sub-operation in a Chain.
type Step int

const (
	// StepPrepColorConvert converts an RGB source to the NV12
	// intermediate format, since the scale/rotate/flip kernels only
	// exist for YUV/GRAY.
	StepPrepColorConvert Step = iota
	// StepDownscale shrinks the working frame toward the
	// destination's dimensions.
	StepDownscale
	// StepRotate applies the requested rotation; luma/chroma
	// dimensions swap for 90/270.
	StepRotate
	// StepFlip applies the requested mirror direction.
	StepFlip
	// StepUpscaleRGB grows the working frame before the final
	// color conversion, so that conversion runs at full resolution.
	// Only used when the destination family is RGB.
	StepUpscaleRGB
	// StepColorConvert converts the working format to the
	// destination format.
	StepColorConvert
	// StepUpscaleNonRGB grows the working frame after color
	// conversion, when the destination family is YUV or GRAY.
	StepUpscaleNonRGB
	// StepFixup is the unaligned-copy/normalization pass: a
	// row-by-row copy capped at min(src_width, dst_width)*bpp,
	// applied to an RGB or GRAY destination when its width isn't
	// 8-aligned or per-channel normalization was requested.
	StepFixup
)

func (s Step) String() string {
	switch s {
	case StepPrepColorConvert:
		return "prep-color-convert"
	case StepDownscale:
		return "downscale"
	case StepRotate:
		return "rotate"
	case StepFlip:
		return "flip"
	case StepUpscaleRGB:
		return "upscale-rgb"
	case StepColorConvert:
		return "color-convert"
	case StepUpscaleNonRGB:
		return "upscale-non-rgb"
	case StepFixup:
		return "fixup"
	default:
		return "step?"
	}
}

// Request describes one blit's transform requirements, independent
// of any backend.
type Request struct {
	SrcFormat pixfmt.Format
	DstFormat pixfmt.Format
	SrcW      int
	SrcH      int
	DstW      int
	DstH      int
	Rotate    frame.Rotation
	Flip      frame.Flip
	Normalize bool
}

// Chain is the ordered list of steps a backend must execute to
// satisfy a Request, along with the intermediate format StepPrepColorConvert
// converts to when present (always pixfmt.NV12 today — see
// plan.Intermediate).
type Chain struct {
	Steps        []Step
	Intermediate pixfmt.Format
	// WorkingFormat is the format the working frame is in
	// immediately before StepColorConvert (or the destination
	// format, if StepColorConvert is absent).
	WorkingFormat pixfmt.Format
}

// Intermediate is the format StepPrepColorConvert always targets.
const Intermediate = pixfmt.NV12

// Has reports whether step s appears in c.
func (c Chain) Has(s Step) bool {
	for _, x := range c.Steps {
		if x == s {
			return true
		}
	}
	return false
}

// areaRatio returns dstW*dstH / srcW*srcH.
func areaRatio(srcW, srcH, dstW, dstH int) float64 {
	return float64(dstW*dstH) / float64(srcW*srcH)
}

// Build decides the ordered sub-operation chain for r, following the
// eight rules in order, each conditional on its own predicate. Every
// rule is independent of whether earlier rules fired except through
// the pending downscale/upscale/rotate/flip state, which is carried
// forward rather than consumed by an unrelated step.
func Build(r Request) Chain {
	ratio := areaRatio(r.SrcW, r.SrcH, r.DstW, r.DstH)
	trivialCopy := r.SrcW == 1 && r.SrcH == 1 &&
		r.Rotate == frame.Rotate0 && r.Flip == frame.FlipNone &&
		r.SrcFormat == r.DstFormat && r.DstFormat != pixfmt.P010

	downscale := ratio <= 1.0 || trivialCopy
	upscale := ratio > 1.0 && !trivialCopy

	var c Chain
	working := r.SrcFormat

	anyPending := downscale || upscale || r.Rotate != frame.Rotate0 || r.Flip != frame.FlipNone
	if anyPending && pixfmt.IsRGB(r.SrcFormat) {
		c.Steps = append(c.Steps, StepPrepColorConvert)
		c.Intermediate = Intermediate
		working = Intermediate
	}

	if downscale {
		c.Steps = append(c.Steps, StepDownscale)
	}
	if r.Rotate != frame.Rotate0 {
		c.Steps = append(c.Steps, StepRotate)
	}
	if r.Flip != frame.FlipNone {
		c.Steps = append(c.Steps, StepFlip)
	}
	if upscale && pixfmt.IsRGB(r.DstFormat) {
		c.Steps = append(c.Steps, StepUpscaleRGB)
	}
	if working != r.DstFormat {
		c.Steps = append(c.Steps, StepColorConvert)
	}
	if upscale && !pixfmt.IsRGB(r.DstFormat) {
		c.Steps = append(c.Steps, StepUpscaleNonRGB)
	}
	if pixfmt.IsRGB(r.DstFormat) || pixfmt.IsGray(r.DstFormat) {
		if r.DstW%8 != 0 || r.Normalize {
			c.Steps = append(c.Steps, StepFixup)
		}
	}

	c.WorkingFormat = working
	return c
}
