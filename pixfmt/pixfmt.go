// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package pixfmt is the pixel format registry.
// It enumerates every pixel format the compositor engine understands,
// maps a semantic Format to the plane layout a backend must bind, and
// answers the small set of pure questions every backend needs before
// it can build a conversion kernel: plane count, chroma subsampling,
// and bytes per pixel of the first plane.
//
// Formats never carry chroma plane dimensions of their own; those are
// always derived from the luma plane via ChromaSubsampling, per the
// data-model invariant that chroma dims are derived, never stored.
package pixfmt

import "fmt"

// Format is a tagged pixel format identifier.
type Format int

// Supported pixel formats.
const (
	// Single 8-bit luma/gray plane.
	GRAY8 Format = iota

	// RGB/BGR, packed.
	RGB565
	BGR565
	RGB888
	BGR888
	RGBX8888 // padding byte, no alpha
	BGRX8888
	RGBA8888 // alpha byte
	BGRA8888

	// YUV 4:2:0 biplanar.
	NV12 // Y plane, interleaved (Cb,Cr)
	NV21 // Y plane, interleaved (Cr,Cb)
	// YUV 4:2:2 biplanar.
	NV16 // Y plane, interleaved (Cb,Cr)
	NV61 // Y plane, interleaved (Cr,Cb)
	// YUV 4:4:4 biplanar.
	NV24

	// YUV 4:2:0, 10-bit, biplanar.
	P010 // 16-bit samples, data in low 10 bits
	TP10 // tightly packed 10-bit samples

	// YUV planar (3 independent planes).
	I420 // 4:2:0
	Y42B // 4:2:2
	Y41B // 4:1:1

	// YUV 4:2:2, packed (single plane, interleaved samples).
	YUYV
	UYVY
	YVYU
	VYUY

	// YUV 4:4:4, packed (single plane).
	YUV444
)

// String returns a human-readable name, mirroring the identifiers
// GStreamer-style callers expect in logs and error messages.
func (f Format) String() string {
	switch f {
	case GRAY8:
		return "GRAY8"
	case RGB565:
		return "RGB565"
	case BGR565:
		return "BGR565"
	case RGB888:
		return "RGB888"
	case BGR888:
		return "BGR888"
	case RGBX8888:
		return "RGBX8888"
	case BGRX8888:
		return "BGRX8888"
	case RGBA8888:
		return "RGBA8888"
	case BGRA8888:
		return "BGRA8888"
	case NV12:
		return "NV12"
	case NV21:
		return "NV21"
	case NV16:
		return "NV16"
	case NV61:
		return "NV61"
	case NV24:
		return "NV24"
	case P010:
		return "P010"
	case TP10:
		return "TP10"
	case I420:
		return "I420"
	case Y42B:
		return "Y42B"
	case Y41B:
		return "Y41B"
	case YUYV:
		return "YUYV"
	case UYVY:
		return "UYVY"
	case YVYU:
		return "YVYU"
	case VYUY:
		return "VYUY"
	case YUV444:
		return "YUV444"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// desc is the registry entry for one format.
type desc struct {
	planes  int
	bpp0    int // bytes per pixel/sample of plane 0
	hdiv    int // chroma horizontal subsampling divisor
	vdiv    int // chroma vertical subsampling divisor
	rgb     bool
	yuv     bool
	gray    bool
	packed  bool // single interleaved plane carrying luma+chroma
	tenBit  bool
	alpha   bool
}

var registry = map[Format]desc{
	GRAY8:    {planes: 1, bpp0: 1, hdiv: 1, vdiv: 1, gray: true},
	RGB565:   {planes: 1, bpp0: 2, hdiv: 1, vdiv: 1, rgb: true},
	BGR565:   {planes: 1, bpp0: 2, hdiv: 1, vdiv: 1, rgb: true},
	RGB888:   {planes: 1, bpp0: 3, hdiv: 1, vdiv: 1, rgb: true},
	BGR888:   {planes: 1, bpp0: 3, hdiv: 1, vdiv: 1, rgb: true},
	RGBX8888: {planes: 1, bpp0: 4, hdiv: 1, vdiv: 1, rgb: true},
	BGRX8888: {planes: 1, bpp0: 4, hdiv: 1, vdiv: 1, rgb: true},
	RGBA8888: {planes: 1, bpp0: 4, hdiv: 1, vdiv: 1, rgb: true, alpha: true},
	BGRA8888: {planes: 1, bpp0: 4, hdiv: 1, vdiv: 1, rgb: true, alpha: true},

	NV12: {planes: 2, bpp0: 1, hdiv: 2, vdiv: 2, yuv: true},
	NV21: {planes: 2, bpp0: 1, hdiv: 2, vdiv: 2, yuv: true},
	NV16: {planes: 2, bpp0: 1, hdiv: 2, vdiv: 1, yuv: true},
	NV61: {planes: 2, bpp0: 1, hdiv: 2, vdiv: 1, yuv: true},
	NV24: {planes: 2, bpp0: 1, hdiv: 1, vdiv: 1, yuv: true},

	P010: {planes: 2, bpp0: 2, hdiv: 2, vdiv: 2, yuv: true, tenBit: true},
	TP10: {planes: 2, bpp0: 2, hdiv: 2, vdiv: 2, yuv: true, tenBit: true},

	I420: {planes: 3, bpp0: 1, hdiv: 2, vdiv: 2, yuv: true},
	Y42B: {planes: 3, bpp0: 1, hdiv: 2, vdiv: 1, yuv: true},
	Y41B: {planes: 3, bpp0: 1, hdiv: 4, vdiv: 1, yuv: true},

	YUYV:   {planes: 1, bpp0: 2, hdiv: 2, vdiv: 1, yuv: true, packed: true},
	UYVY:   {planes: 1, bpp0: 2, hdiv: 2, vdiv: 1, yuv: true, packed: true},
	YVYU:   {planes: 1, bpp0: 2, hdiv: 2, vdiv: 1, yuv: true, packed: true},
	VYUY:   {planes: 1, bpp0: 2, hdiv: 2, vdiv: 1, yuv: true, packed: true},
	YUV444: {planes: 1, bpp0: 3, hdiv: 1, vdiv: 1, yuv: true, packed: true},
}

// lookup returns the registry entry for f, panicking on an
// unregistered format: every Format constant above is registered,
// so reaching the panic means a new constant was added without a
// matching registry entry.
func lookup(f Format) desc {
	d, ok := registry[f]
	if !ok {
		panic(fmt.Sprintf("pixfmt: unregistered format %v", f))
	}
	return d
}

// Valid reports whether f is a known, registered format.
func Valid(f Format) bool {
	_, ok := registry[f]
	return ok
}

// PlaneCount returns the number of memory planes f requires.
// It is always in {1, 2, 3}, per the data-model invariant.
func PlaneCount(f Format) int { return lookup(f).planes }

// IsRGB reports whether f is an RGB/BGR family format.
func IsRGB(f Format) bool { return lookup(f).rgb }

// IsYUV reports whether f is a YUV family format (planar, biplanar,
// or packed).
func IsYUV(f Format) bool { return lookup(f).yuv }

// IsGray reports whether f is the single-channel luma-only format.
// For kernel-dispatch purposes GRAY8 behaves like a degenerate
// 1-plane YUV: luma kernels run, chroma steps are skipped.
func IsGray(f Format) bool { return lookup(f).gray }

// IsPacked reports whether f interleaves luma and chroma samples
// within a single plane (the 4:2:2/4:4:4 packed formats).
func IsPacked(f Format) bool { return lookup(f).packed }

// Is10Bit reports whether f carries 10-bit YUV samples (P010/TP10).
func Is10Bit(f Format) bool { return lookup(f).tenBit }

// HasAlpha reports whether f carries a dedicated alpha channel.
func HasAlpha(f Format) bool { return lookup(f).alpha }

// ChromaSubsampling returns the horizontal and vertical divisors
// that relate luma plane dimensions to chroma plane dimensions.
// For RGB and GRAY8 formats both divisors are 1.
func ChromaSubsampling(f Format) (hdiv, vdiv int) {
	d := lookup(f)
	return d.hdiv, d.vdiv
}

// BytesPerPixelPlane0 returns the number of bytes per sample in
// plane 0 (the luma or packed-RGB plane).
func BytesPerPixelPlane0(f Format) int { return lookup(f).bpp0 }

// KernelID identifies a registered (src, dst) conversion kernel.
// Backends use it as a dense dispatch key instead of re-deriving
// the pair from the two Format values on every call.
type KernelID int

// NoKernel is returned by Kernel when no direct conversion is
// registered for the given pair; callers must perform the
// conversion in two steps through an intermediate YUV format
// (NV12 is the canonical intermediate).
const NoKernel KernelID = -1

// pairKey packs a (src, dst) pair into a single map key, mirroring
// the arithmetic hash FastCV-style dispatch traditionally uses, but
// as a declarative table rather than an inline hash computed at
// every call site (see DESIGN.md's note on the original's
// src+(dst<<16) convention).
func pairKey(src, dst Format) int64 { return int64(src)<<32 | int64(dst) }

// direct lists every (src, dst) pair with a registered one-step
// conversion kernel. Pairs absent from this table force a two-step
// conversion via NV12.
var direct = func() map[int64]KernelID {
	m := make(map[int64]KernelID)
	id := KernelID(0)
	add := func(src, dst Format) {
		m[pairKey(src, dst)] = id
		id++
	}
	// YUV <-> YUV, same subsampling family, chroma order swap only.
	add(NV12, NV21)
	add(NV21, NV12)
	add(NV16, NV61)
	add(NV61, NV16)
	// YUV <-> YUV, subsampling conversion.
	add(NV12, NV16)
	add(NV16, NV12)
	add(NV12, NV24)
	add(NV24, NV12)
	add(NV16, NV24)
	add(NV24, NV16)
	// YUV -> RGB.
	for _, y := range []Format{NV12, NV21, NV16, NV61, NV24, I420, Y42B, Y41B} {
		add(y, RGB565)
		add(y, RGB888)
		add(y, RGBA8888)
		add(y, BGR888)
		add(y, BGRA8888)
	}
	// RGB -> YUV.
	for _, rgb := range []Format{RGB888, BGR888, RGBA8888, BGRA8888} {
		add(rgb, NV12)
		add(rgb, NV16)
		add(rgb, NV24)
		add(rgb, I420)
	}
	// RGB -> RGB, direct kernels (no YUV intermediate needed).
	for _, src := range []Format{RGB565, RGB888, RGBX8888, RGBA8888, BGR888, BGRA8888} {
		for _, dst := range []Format{RGB565, RGB888, RGBX8888, RGBA8888, BGR888, BGRA8888} {
			if src != dst {
				add(src, dst)
			}
		}
	}
	return m
}()

// Kernel returns the dispatch id registered for converting src to
// dst, or NoKernel if the pair requires a two-step conversion
// through an NV12 intermediate.
func Kernel(src, dst Format) KernelID {
	if id, ok := direct[pairKey(src, dst)]; ok {
		return id
	}
	return NoKernel
}

// Intermediate is the YUV format used as a stepping stone whenever
// Kernel reports NoKernel for a (src, dst) pair.
const Intermediate = NV12
