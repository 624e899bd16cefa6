// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package frame defines the data the compositor engine consumes on
// every call: planes, video frames, blits and compositions. Values
// of these types are always borrowed for the duration of one Compose
// call; the engine never retains a pointer to them past return.
package frame

import (
	"github.com/gviegas/vconv/geom"
	"github.com/gviegas/vconv/pixfmt"
)

// Plane is one memory plane of a VideoFrame.
// Either Data is non-nil (CPU-mapped access, used by the FastCV and
// OpenCV backends and by the overlay rasterizer) or Data is nil and
// Offset gives the byte offset of the plane within the frame's FD
// (GPU-mapped access, used by the C2D and GLES backends). A frame
// may be accessed both ways at once (e.g. overlay reads CPU bytes
// while the blit backend maps the same FD).
type Plane struct {
	Data   []byte
	Offset int64
	Stride int
	Width  int
	Height int
}

// valid reports whether the plane's stride is consistent with its
// width, per the data-model invariant stride >= width*bpp.
func (p Plane) valid(bpp int) bool { return p.Stride >= p.Width*bpp }

// Rotation is a clockwise rotation angle.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Swap reports whether r swaps width and height (90 and 270).
func (r Rotation) Swap() bool { return r == Rotate90 || r == Rotate270 }

// Flip is a mirroring direction.
type Flip int

const (
	FlipNone Flip = iota
	FlipH
	FlipV
	FlipBoth
)

// Format-mode flag bits, carried in Blit.Flags/Composition.Flags.
// These mirror the wire-level encoding external callers use; the
// engine itself prefers the typed Rotation/Flip/FormatMode fields
// and only consults the bit flags at the boundary (see FlagsToRotation
// and FlagsToFlip) for callers that submit the packed form.
const (
	FlagFlipH uint64 = 1 << 0
	FlagFlipV uint64 = 1 << 1

	flagRotShift    = 2
	flagRotMask     uint64 = 3 << flagRotShift
	FlagRotate90CW  uint64 = 1 << flagRotShift
	FlagRotate180   uint64 = 2 << flagRotShift
	FlagRotate90CCW uint64 = 3 << flagRotShift

	FlagUBWC            uint64 = 1 << 6
	FlagClearBackground uint64 = 1 << 7

	flagModeShift        = 8
	flagModeMask  uint64 = 3 << flagModeShift
	FlagF16       uint64 = 1 << flagModeShift
	FlagF32       uint64 = 2 << flagModeShift
	FlagI32       uint64 = 3 << flagModeShift
	// FlagU32 does not fit the 2-bit F16/F32/I32 field, so it is
	// tracked as a fourth, independent bit.
	FlagU32 uint64 = 1 << (flagModeShift + 2)
)

// FormatMode selects a special-mode output representation (plain
// 8-bit pixels, or one of the ML-tensor float/int layouts).
type FormatMode int

const (
	ModeNone FormatMode = iota
	ModeF16
	ModeF32
	ModeI32
	ModeU32
)

// FlagsToRotation decodes the rotation mask of flags.
func FlagsToRotation(flags uint64) Rotation {
	switch flags & flagRotMask {
	case FlagRotate90CW:
		return Rotate90
	case FlagRotate180:
		return Rotate180
	case FlagRotate90CCW:
		return Rotate270
	default:
		return Rotate0
	}
}

// FlagsToFlip decodes the flip bits of flags.
func FlagsToFlip(flags uint64) Flip {
	h := flags&FlagFlipH != 0
	v := flags&FlagFlipV != 0
	switch {
	case h && v:
		return FlipBoth
	case h:
		return FlipH
	case v:
		return FlipV
	default:
		return FlipNone
	}
}

// FlagsToMode decodes the format-mode bits of flags.
func FlagsToMode(flags uint64) FormatMode {
	switch {
	case flags&FlagU32 != 0:
		return ModeU32
	case flags&flagModeMask == FlagF16:
		return ModeF16
	case flags&flagModeMask == FlagF32:
		return ModeF32
	case flags&flagModeMask == FlagI32:
		return ModeI32
	default:
		return ModeNone
	}
}

// RotationToFlag encodes r into the bit pattern FlagsToRotation
// decodes.
func RotationToFlag(r Rotation) uint64 {
	switch r {
	case Rotate90:
		return FlagRotate90CW
	case Rotate180:
		return FlagRotate180
	case Rotate270:
		return FlagRotate90CCW
	default:
		return 0
	}
}

// Video is one video frame: a pixel format, dimensions, a vector of
// planes, and an optional dmabuf file descriptor. FD is -1 when the
// frame has no backing dmabuf (CPU-only memory, e.g. overlay item
// offscreen surfaces before they are blitted).
type Video struct {
	Format pixfmt.Format
	Width  int
	Height int
	Planes []Plane
	FD     int
}

// NoFD is the FD value for CPU-only frames.
const NoFD = -1

// Valid reports whether v is internally consistent: its plane count
// matches its format, and every plane's stride covers its width.
func (v *Video) Valid() bool {
	if pixfmt.PlaneCount(v.Format) != len(v.Planes) {
		return false
	}
	bpp := pixfmt.BytesPerPixelPlane0(v.Format)
	for i, p := range v.Planes {
		b := bpp
		if i > 0 {
			// Chroma planes are checked with plane 0's bytes per
			// pixel too; the sample size of interleaved chroma is
			// not accounted for separately.
			b = bpp
		}
		if !p.valid(b) {
			return false
		}
	}
	return true
}

// Region pairs one source quadrilateral with one destination
// rectangle within a single Blit.
type Region struct {
	Src geom.Quad
	Dst geom.Rect
}

// Blit is one input to a Composition: a source frame, the regions
// copied from it, and the transform applied uniformly to all of
// them. An empty Regions slice (n_regions == 0) means "entire source
// to entire destination".
type Blit struct {
	Source  *Video
	Regions []Region
	Alpha   uint8 // global alpha, 0-255
	Rotate  Rotation
	Flip    Flip
	Mode    FormatMode
	Flags   uint64
}

// EffectiveRegions returns b.Regions, or, when empty, a single
// region covering the entirety of src and dst.
func (b *Blit) EffectiveRegions(dst *Video) []Region {
	if len(b.Regions) != 0 {
		return b.Regions
	}
	srcRect := geom.Rect{W: b.Source.Width, H: b.Source.Height}
	dstRect := geom.Rect{W: dst.Width, H: dst.Height}
	return []Region{{Src: geom.QuadFromRect(srcRect), Dst: dstRect}}
}

// Composition is an ordered set of blits applied to one output
// frame. Blits are painted in vector order: index 0 first.
type Composition struct {
	Blits           []Blit
	Output          *Video
	Background      uint32 // packed RGBA, convention documented per backend
	ClearBackground bool
	Scales          [4]float64 // per-channel normalization scale
	Offsets         [4]float64 // per-channel normalization offset
	Flags           uint64
}

// Normalize reports whether per-channel normalization was requested:
// any scale different from 1 or any offset different from 0.
func (c *Composition) Normalize() bool {
	for i := 0; i < 4; i++ {
		if c.Scales[i] != 1 || c.Offsets[i] != 0 {
			return true
		}
	}
	return false
}
