// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package fastcv implements backend.Engine as a multi-stage software
// pipeline over Qualcomm's libfastcvopt.so, dlopen'd through
// internal/nativelib. Unlike c2d/gles it never submits a composition
// to a single hardware call: plan.Build drives a sequence of FastCV
// kernel calls through intermediate stage.Pool buffers.
package fastcv

import (
	"fmt"
	"sync"

	"github.com/gviegas/vconv/backend"
	"github.com/gviegas/vconv/frame"
	"github.com/gviegas/vconv/geom"
	"github.com/gviegas/vconv/internal/nativelib"
	"github.com/gviegas/vconv/internal/ycbcr"
	"github.com/gviegas/vconv/pixfmt"
	"github.com/gviegas/vconv/plan"
	"github.com/gviegas/vconv/stage"
	"github.com/gviegas/vconv/surface"
)

// MaxDrawObjects bounds each composition's blit count, distinct
// from c2d's 250: the software pipeline runs one blit fully to
// completion before starting the next, so the cap exists only to
// reject pathological requests early.
const MaxDrawObjects = 50

// widthAlign is the row width FastCV's planar kernels require; an
// RGB or GRAY output whose plane-0 width isn't a multiple of it gets
// the row-by-row fixup step (plan.StepFixup).
const widthAlign = 8

// Flip/rotate direction codes, passed straight through to the
// native Flipu8/Flipu16/RotateImageu8/RotateImageInterleavedu8
// entry points.
const (
	flipHorizontal = 0
	flipVertical   = 1
	rotate90       = 90
	rotate180      = 180
	rotate270      = 270
)

const (
	interpNearestNeighbor = 0
	borderReplicate       = 0
)

// Native is the subset of libfastcvopt.so entry points this backend
// binds. Field names mirror the real symbols with the "fcv" prefix
// stripped, following LOAD_FCV_SYMBOL's naming convention.
type Native struct {
	SetOperationMode func(mode int32) int32
	CleanUp          func()

	SetElementsc3u8 func(dst []byte, w, h, stride uint32, v1, v2, v3 byte, mask []byte, mstride uint32)
	SetElementsc4u8 func(dst []byte, w, h, stride uint32, v1, v2, v3, v4 byte, mask []byte, mstride uint32)

	Flipu8  func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32, dir int32)
	Flipu16 func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32, dir int32)

	RotateImageu8            func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32, degree int32) int32
	RotateImageInterleavedu8 func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32, degree int32) int32

	Scaleu8V2              func(src []byte, sw, sh, sstride uint32, dst []byte, dw, dh, dstride uint32, interp, border int32, borderValue byte) int32
	ScaleUpPolyInterleaveu8 func(src []byte, sw, sh, sstride uint32, dst []byte, dw, dh, dstride uint32)
	ScaleDownMNInterleaveu8 func(src []byte, sw, sh, sstride uint32, dst []byte, dw, dh, dstride uint32)

	ColorCbCrSwapu8 func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32)

	// Chroma-subsampling conversions, keyed by "420"/"422"/"444"
	// source/destination level (see subsamplingLevel). Every pair
	// the real driver loads individually collapses here into one
	// dispatch table, the same declarative shape pixfmt.Kernel uses.
	YUVToYUV map[[2]string]func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dLuma, dChroma []byte, dLstride, dCstride uint32)

	// YUV-to-RGB, keyed by subsampling level then destination RGB tag.
	YUVToRGB map[string]map[string]func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dst []byte, dstride uint32)

	// RGB-to-YUV, keyed by source RGB tag then destination level.
	RGBToYUV map[string]map[string]func(src []byte, w, h, sstride uint32, dLuma, dChroma []byte, dLstride, dCstride uint32)

	// RGB-to-RGB, keyed by source tag then destination tag.
	RGBToRGB map[string]map[string]func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32)
}

func rgbTag(f pixfmt.Format) string {
	switch f {
	case pixfmt.RGB565:
		return "RGB565"
	case pixfmt.BGR565:
		return "BGR565"
	case pixfmt.RGB888:
		return "RGB888"
	case pixfmt.BGR888:
		return "BGR888"
	case pixfmt.RGBX8888:
		return "RGBX8888"
	case pixfmt.BGRX8888:
		return "BGRX8888"
	case pixfmt.RGBA8888:
		return "RGBA8888"
	case pixfmt.BGRA8888:
		return "BGRA8888"
	default:
		return ""
	}
}

// subsamplingLevel reports the chroma level FastCV's YCbCr naming
// uses (420/422/444), derived from the registered divisors rather
// than hardcoded per format.
func subsamplingLevel(f pixfmt.Format) string {
	hdiv, vdiv := pixfmt.ChromaSubsampling(f)
	switch {
	case hdiv == 2 && vdiv == 2:
		return "420"
	case hdiv == 2 && vdiv == 1:
		return "422"
	case hdiv == 1 && vdiv == 1:
		return "444"
	default:
		return ""
	}
}

func bindNative(lib *nativelib.Library) (*Native, error) {
	n := &Native{
		YUVToYUV: make(map[[2]string]func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dLuma, dChroma []byte, dLstride, dCstride uint32)),
		YUVToRGB: make(map[string]map[string]func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dst []byte, dstride uint32)),
		RGBToYUV: make(map[string]map[string]func(src []byte, w, h, sstride uint32, dLuma, dChroma []byte, dLstride, dCstride uint32)),
		RGBToRGB: make(map[string]map[string]func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32)),
	}
	plainBinds := []struct {
		ptr  any
		name string
	}{
		{&n.SetOperationMode, "fcvSetOperationMode"},
		{&n.CleanUp, "fcvCleanUp"},
		{&n.SetElementsc3u8, "fcvSetElementsc3u8"},
		{&n.SetElementsc4u8, "fcvSetElementsc4u8"},
		{&n.Flipu8, "fcvFlipu8"},
		{&n.Flipu16, "fcvFlipu16"},
		{&n.RotateImageu8, "fcvRotateImageu8"},
		{&n.RotateImageInterleavedu8, "fcvRotateImageInterleavedu8"},
		{&n.Scaleu8V2, "fcvScaleu8_v2"},
		{&n.ScaleUpPolyInterleaveu8, "fcvScaleUpPolyInterleaveu8"},
		{&n.ScaleDownMNInterleaveu8, "fcvScaleDownMNInterleaveu8"},
		{&n.ColorCbCrSwapu8, "fcvColorCbCrSwapu8"},
	}
	for _, b := range plainBinds {
		if err := lib.Bind(b.ptr, b.name); err != nil {
			return nil, err
		}
	}

	yuvYUV := [][3]string{
		{"420", "444", "fcvColorYCbCr420PseudoPlanarToYCbCr444PseudoPlanaru8"},
		{"420", "422", "fcvColorYCbCr420PseudoPlanarToYCbCr422PseudoPlanaru8"},
		{"422", "444", "fcvColorYCbCr422PseudoPlanarToYCbCr444PseudoPlanaru8"},
		{"422", "420", "fcvColorYCbCr422PseudoPlanarToYCbCr420PseudoPlanaru8"},
		{"444", "422", "fcvColorYCbCr444PseudoPlanarToYCbCr422PseudoPlanaru8"},
		{"444", "420", "fcvColorYCbCr444PseudoPlanarToYCbCr420PseudoPlanaru8"},
	}
	for _, e := range yuvYUV {
		var fn func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dLuma, dChroma []byte, dLstride, dCstride uint32)
		if err := lib.Bind(&fn, e[2]); err != nil {
			return nil, err
		}
		n.YUVToYUV[[2]string{e[0], e[1]}] = fn
	}

	yuvRGB := [][3]string{
		{"420", "RGB565", "fcvColorYCbCr420PseudoPlanarToRGB565u8"},
		{"420", "RGB888", "fcvColorYCbCr420PseudoPlanarToRGB888u8"},
		{"420", "RGBA8888", "fcvColorYCbCr420PseudoPlanarToRGBA8888u8"},
		{"422", "RGB565", "fcvColorYCbCr422PseudoPlanarToRGB565u8"},
		{"422", "RGB888", "fcvColorYCbCr422PseudoPlanarToRGB888u8"},
		{"422", "RGBA8888", "fcvColorYCbCr422PseudoPlanarToRGBA8888u8"},
		{"444", "RGB565", "fcvColorYCbCr444PseudoPlanarToRGB565u8"},
		{"444", "RGB888", "fcvColorYCbCr444PseudoPlanarToRGB888u8"},
		{"444", "RGBA8888", "fcvColorYCbCr444PseudoPlanarToRGBA8888u8"},
	}
	for _, e := range yuvRGB {
		var fn func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dst []byte, dstride uint32)
		if err := lib.Bind(&fn, e[2]); err != nil {
			return nil, err
		}
		if n.YUVToRGB[e[0]] == nil {
			n.YUVToRGB[e[0]] = make(map[string]func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dst []byte, dstride uint32))
		}
		n.YUVToRGB[e[0]][e[1]] = fn
	}

	rgbYUV := [][3]string{
		{"RGB565", "444", "fcvColorRGB565ToYCbCr444PseudoPlanaru8"},
		{"RGB565", "422", "fcvColorRGB565ToYCbCr422PseudoPlanaru8"},
		{"RGB565", "420", "fcvColorRGB565ToYCbCr420PseudoPlanaru8"},
		{"RGB888", "444", "fcvColorRGB888ToYCbCr444PseudoPlanaru8"},
		{"RGB888", "422", "fcvColorRGB888ToYCbCr422PseudoPlanaru8"},
		{"RGB888", "420", "fcvColorRGB888ToYCbCr420PseudoPlanaru8"},
	}
	for _, e := range rgbYUV {
		var fn func(src []byte, w, h, sstride uint32, dLuma, dChroma []byte, dLstride, dCstride uint32)
		if err := lib.Bind(&fn, e[2]); err != nil {
			return nil, err
		}
		if n.RGBToYUV[e[0]] == nil {
			n.RGBToYUV[e[0]] = make(map[string]func(src []byte, w, h, sstride uint32, dLuma, dChroma []byte, dLstride, dCstride uint32))
		}
		n.RGBToYUV[e[0]][e[1]] = fn
	}

	rgbRGB := [][3]string{
		{"RGB565", "BGR565", "fcvColorRGB565ToBGR565u8"},
		{"RGB565", "RGB888", "fcvColorRGB565ToRGB888u8"},
		{"RGB565", "RGBA8888", "fcvColorRGB565ToRGBA8888u8"},
		{"RGB565", "BGR888", "fcvColorRGB565ToBGR888u8"},
		{"RGB565", "BGRA8888", "fcvColorRGB565ToBGRA8888u8"},
		{"RGB888", "BGR888", "fcvColorRGB888ToBGR888u8"},
		{"RGB888", "RGB565", "fcvColorRGB888ToRGB565u8"},
		{"RGB888", "RGBA8888", "fcvColorRGB888ToRGBA8888u8"},
		{"RGB888", "BGR565", "fcvColorRGB888ToBGR565u8"},
		{"RGB888", "BGRA8888", "fcvColorRGB888ToBGRA8888u8"},
		{"RGBA8888", "BGRA8888", "fcvColorRGBA8888ToBGRA8888u8"},
		{"RGBA8888", "RGB565", "fcvColorRGBA8888ToRGB565u8"},
		{"RGBA8888", "RGB888", "fcvColorRGBA8888ToRGB888u8"},
		{"RGBA8888", "BGR565", "fcvColorRGBA8888ToBGR565u8"},
		{"RGBA8888", "BGR888", "fcvColorRGBA8888ToBGR888u8"},
	}
	for _, e := range rgbRGB {
		var fn func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32)
		if err := lib.Bind(&fn, e[2]); err != nil {
			return nil, err
		}
		if n.RGBToRGB[e[0]] == nil {
			n.RGBToRGB[e[0]] = make(map[string]func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32))
		}
		n.RGBToRGB[e[0]][e[1]] = fn
	}

	return n, nil
}

const libPath = "libfastcvopt.so"

type family struct{}

func (family) Name() string { return "fastcv" }

func (family) Open(settings backend.Settings) (backend.Engine, error) {
	lib, err := nativelib.Open(libPath)
	if err != nil {
		return nil, &backend.Error{Kind: backend.DriverError, Op: "open", Err: err}
	}
	nat, err := bindNative(lib)
	if err != nil {
		lib.Close()
		return nil, &backend.Error{Kind: backend.DriverError, Op: "open", Err: err}
	}
	if nat.SetOperationMode(0) != 0 {
		lib.Close()
		return nil, &backend.Error{Kind: backend.DriverError, Op: "open", Err: fmt.Errorf("fastcv: SetOperationMode failed")}
	}
	return &engine{
		lib:   lib,
		nat:   nat,
		surfs: surface.NewTable(settings.CacheEnabled),
		pool:  &stage.Pool{},
		state: backend.Initialized,
	}, nil
}

func init() { backend.Register(family{}) }

// creator adapts surface.Table bookkeeping onto raw byte slices:
// FastCV operates on mapped CPU memory, so "native" resources are
// simply the surface's own Meta, nothing else needs creating.
type creator struct{}

func (creator) Create(fd int, meta surface.Meta, role surface.Role, flags uint64) (any, error) {
	return meta, nil
}

func (creator) Update(native any, meta surface.Meta) error { return nil }

func (creator) Destroy(native any) {}

type engine struct {
	mu    sync.Mutex
	lib   *nativelib.Library
	nat   *Native
	surfs *surface.Table
	pool  *stage.Pool
	state backend.State
}

func (e *engine) State() backend.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Compose runs every blit of every composition through its own
// plan.Chain, in submitted order. There is no hardware command
// queue to batch into, so each blit's pipeline completes before the
// next one starts.
func (e *engine) Compose(comps []frame.Composition, fence *backend.Fence) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = backend.Running

	for i := range comps {
		if n := len(comps[i].Blits); n > MaxDrawObjects {
			return &backend.Error{Kind: backend.InvalidArgument, Op: "compose", Err: fmt.Errorf("fastcv: %d blits exceeds max of %d", n, MaxDrawObjects)}
		}
	}

	for i := range comps {
		comp := &comps[i]
		if err := e.composeOne(comp); err != nil {
			return err
		}
	}
	if fence != nil {
		fence.Signal()
	}
	return nil
}

func (e *engine) composeOne(comp *frame.Composition) error {
	if comp.ClearBackground {
		if err := e.fillBackground(comp.Output, comp.Background); err != nil {
			return err
		}
	}
	for b := range comp.Blits {
		blit := &comp.Blits[b]
		for _, region := range blit.EffectiveRegions(comp.Output) {
			if err := e.runChain(blit.Source, comp.Output, region, blit); err != nil {
				return err
			}
		}
	}
	return nil
}

// runChain executes one blit region through plan.Build's ordered
// steps, copying between stage.Pool buffers between passes the way
// gst_fcv_video_converter_compute_conversion hands a finished stage
// object on as the next step's source.
func (e *engine) runChain(src, dst *frame.Video, region frame.Region, blit *frame.Blit) error {
	req := plan.Request{
		SrcFormat: src.Format, DstFormat: dst.Format,
		SrcW: region.Src.Rect().W, SrcH: region.Src.Rect().H,
		DstW: region.Dst.W, DstH: region.Dst.H,
		Rotate: blit.Rotate, Flip: blit.Flip,
	}
	chain := plan.Build(req)

	cur := src
	for _, step := range chain.Steps {
		switch step {
		case plan.StepPrepColorConvert:
			cur = e.colorConvert(cur, chain.WorkingFormat)
		case plan.StepDownscale:
			cur = e.scale(cur, region.Dst.W, region.Dst.H)
		case plan.StepRotate:
			cur = e.rotate(cur, blit.Rotate)
		case plan.StepFlip:
			cur = e.flip(cur, blit.Flip)
		case plan.StepUpscaleRGB:
			cur = e.scale(cur, region.Dst.W, region.Dst.H)
		case plan.StepColorConvert:
			cur = e.colorConvert(cur, dst.Format)
		case plan.StepUpscaleNonRGB:
			cur = e.scale(cur, region.Dst.W, region.Dst.H)
		case plan.StepFixup:
			e.fixupCopy(cur, dst, region.Dst)
			return nil
		}
	}
	e.fixupCopy(cur, dst, region.Dst)
	return nil
}

// fixupCopy is the row-by-row plane copy that ends every chain, both
// for plan.StepFixup and after the last other step. Each row copies
// the narrower of the source and destination plane widths, so
// destination columns past a narrower source are left as they were;
// a row that does not fit in either buffer is skipped.
func (e *engine) fixupCopy(src, dst *frame.Video, rect geom.Rect) {
	n := min(len(src.Planes), len(dst.Planes))
	for i := 0; i < n; i++ {
		sp, dp := &src.Planes[i], &dst.Planes[i]
		rows := min(sp.Height, dp.Height)
		nbytes := min(sp.Width, dp.Width) * pixfmt.BytesPerPixelPlane0(dst.Format)
		if i > 0 {
			nbytes = min(sp.Width, dp.Width) // chroma planes copy sample-for-sample
		}
		for row := 0; row < rows; row++ {
			sOff := row * sp.Stride
			dOff := row * dp.Stride
			if sOff+nbytes > len(sp.Data) || dOff+nbytes > len(dp.Data) {
				continue
			}
			copy(dp.Data[dOff:dOff+nbytes], sp.Data[sOff:sOff+nbytes])
		}
	}
}

// stagedVideo allocates stage.Pool buffers for a Video with the
// given format/dimensions and wires them into v.Planes, mirroring
// gst_fcv_video_converter_stage_plane_init.
func (e *engine) stagedVideo(format pixfmt.Format, w, h int) *frame.Video {
	v := &frame.Video{Format: format, Width: w, Height: h, FD: frame.NoFD}
	planes := pixfmt.PlaneCount(format)
	hdiv, vdiv := pixfmt.ChromaSubsampling(format)
	bpp := pixfmt.BytesPerPixelPlane0(format)
	for i := 0; i < planes; i++ {
		pw, ph, pbpp := w, h, bpp
		if i > 0 {
			pw, ph = w/hdiv, h/vdiv
			pbpp = 2 // interleaved chroma sample pair or 16-bit P010 sample
		}
		stride := pw * pbpp
		buf := e.pool.Fetch(stride * ph)
		v.Planes = append(v.Planes, frame.Plane{Data: buf.Bytes, Stride: stride, Width: pw, Height: ph})
	}
	return v
}

// colorConvert dispatches through the YUVToYUV/YUVToRGB/RGBToYUV/
// RGBToRGB tables, keyed by subsampling level or RGB tag exactly as
// GST_FCV_YUV_TO_YUV/GST_FCV_RGB_TO_RGB substitute format names at
// compile time in the native driver.
func (e *engine) colorConvert(v *frame.Video, target pixfmt.Format) *frame.Video {
	if v.Format == target || len(v.Planes) == 0 {
		return v
	}
	out := e.stagedVideo(target, v.Width, v.Height)

	switch {
	case pixfmt.IsYUV(v.Format) && pixfmt.IsYUV(target) && len(v.Planes) >= 2:
		sLvl, dLvl := subsamplingLevel(v.Format), subsamplingLevel(target)
		if fn, ok := e.nat.YUVToYUV[[2]string{sLvl, dLvl}]; ok {
			sLuma, sChroma := &v.Planes[0], &v.Planes[1]
			dLuma, dChroma := &out.Planes[0], &out.Planes[1]
			fn(sLuma.Data, sChroma.Data, uint32(v.Width), uint32(v.Height),
				uint32(sLuma.Stride), uint32(sChroma.Stride),
				dLuma.Data, dChroma.Data, uint32(dLuma.Stride), uint32(dChroma.Stride))
		}
	case pixfmt.IsYUV(v.Format) && pixfmt.IsRGB(target) && len(v.Planes) >= 2:
		lvl, tag := subsamplingLevel(v.Format), rgbTag(target)
		if byLvl, ok := e.nat.YUVToRGB[lvl]; ok {
			if fn, ok := byLvl[tag]; ok {
				sLuma, sChroma := &v.Planes[0], &v.Planes[1]
				dst := &out.Planes[0]
				fn(sLuma.Data, sChroma.Data, uint32(v.Width), uint32(v.Height),
					uint32(sLuma.Stride), uint32(sChroma.Stride), dst.Data, uint32(dst.Stride))
			}
		}
	case pixfmt.IsRGB(v.Format) && pixfmt.IsYUV(target):
		tag, lvl := rgbTag(v.Format), subsamplingLevel(target)
		if byTag, ok := e.nat.RGBToYUV[tag]; ok {
			if fn, ok := byTag[lvl]; ok {
				src := &v.Planes[0]
				dLuma, dChroma := &out.Planes[0], &out.Planes[1]
				fn(src.Data, uint32(v.Width), uint32(v.Height), uint32(src.Stride),
					dLuma.Data, dChroma.Data, uint32(dLuma.Stride), uint32(dChroma.Stride))
			}
		}
	case pixfmt.IsRGB(v.Format) && pixfmt.IsRGB(target):
		sTag, dTag := rgbTag(v.Format), rgbTag(target)
		if byTag, ok := e.nat.RGBToRGB[sTag]; ok {
			if fn, ok := byTag[dTag]; ok {
				src, dst := &v.Planes[0], &out.Planes[0]
				fn(src.Data, uint32(v.Width), uint32(v.Height), uint32(src.Stride), dst.Data, uint32(dst.Stride))
			}
		}
	}
	return out
}

func (e *engine) scale(v *frame.Video, w, h int) *frame.Video {
	if v.Width == w && v.Height == h || len(v.Planes) == 0 {
		return v
	}
	out := e.stagedVideo(v.Format, w, h)
	luma := &v.Planes[0]
	dLuma := &out.Planes[0]
	e.nat.Scaleu8V2(luma.Data, uint32(v.Width), uint32(v.Height), uint32(luma.Stride),
		dLuma.Data, uint32(w), uint32(h), uint32(dLuma.Stride),
		interpNearestNeighbor, borderReplicate, 0)
	if len(v.Planes) > 1 && len(out.Planes) > 1 {
		sChroma, dChroma := &v.Planes[1], &out.Planes[1]
		if w < v.Width {
			e.nat.ScaleDownMNInterleaveu8(sChroma.Data, uint32(sChroma.Width), uint32(sChroma.Height), uint32(sChroma.Stride),
				dChroma.Data, uint32(dChroma.Width), uint32(dChroma.Height), uint32(dChroma.Stride))
		} else {
			e.nat.ScaleUpPolyInterleaveu8(sChroma.Data, uint32(sChroma.Width), uint32(sChroma.Height), uint32(sChroma.Stride),
				dChroma.Data, uint32(dChroma.Width), uint32(dChroma.Height), uint32(dChroma.Stride))
		}
	}
	return out
}

func (e *engine) rotate(v *frame.Video, r frame.Rotation) *frame.Video {
	if r == frame.Rotate0 || len(v.Planes) == 0 {
		return v
	}
	w, h := v.Width, v.Height
	if r.Swap() {
		w, h = h, w
	}
	out := e.stagedVideo(v.Format, w, h)
	degree := int32(r)
	luma, dLuma := &v.Planes[0], &out.Planes[0]
	e.nat.RotateImageu8(luma.Data, uint32(v.Width), uint32(v.Height), uint32(luma.Stride), dLuma.Data, uint32(dLuma.Stride), degree)
	if len(v.Planes) > 1 && len(out.Planes) > 1 {
		chroma, dChroma := &v.Planes[1], &out.Planes[1]
		e.nat.RotateImageInterleavedu8(chroma.Data, uint32(chroma.Width), uint32(chroma.Height), uint32(chroma.Stride), dChroma.Data, uint32(dChroma.Stride), degree)
	}
	return out
}

func (e *engine) flip(v *frame.Video, f frame.Flip) *frame.Video {
	if f == frame.FlipNone || len(v.Planes) == 0 {
		return v
	}
	out := e.stagedVideo(v.Format, v.Width, v.Height)
	dirs := map[frame.Flip][]int32{
		frame.FlipH:    {flipHorizontal},
		frame.FlipV:    {flipVertical},
		frame.FlipBoth: {flipHorizontal, flipVertical},
	}[f]

	luma, dLuma := &v.Planes[0], &out.Planes[0]
	for _, dir := range dirs {
		e.nat.Flipu8(luma.Data, uint32(v.Width), uint32(v.Height), uint32(luma.Stride), dLuma.Data, uint32(dLuma.Stride), dir)
		luma = dLuma
	}
	if len(v.Planes) > 1 && len(out.Planes) > 1 {
		chroma, dChroma := &v.Planes[1], &out.Planes[1]
		for _, dir := range dirs {
			e.nat.Flipu16(chroma.Data, uint32(chroma.Width), uint32(chroma.Height), uint32(chroma.Stride), dChroma.Data, uint32(dChroma.Stride), dir)
			chroma = dChroma
		}
	}
	return out
}

// fillBackground sets every plane of out to comp's background
// color. RGB outputs use SetElementsc3u8/c4u8 with the raw channel
// bytes; YUV outputs first convert the packed color to BT.601
// luma/chroma via internal/ycbcr, matching the real driver's
// EXTRACT_*_VALUE + per-format switch.
func (e *engine) fillBackground(out *frame.Video, color uint32) error {
	r := byte(color >> 24)
	g := byte(color >> 16)
	b := byte(color >> 8)
	a := byte(color)

	if pixfmt.IsRGB(out.Format) {
		if len(out.Planes) == 0 {
			return nil
		}
		p := &out.Planes[0]
		if pixfmt.HasAlpha(out.Format) {
			e.nat.SetElementsc4u8(p.Data, uint32(p.Width), uint32(p.Height), uint32(p.Stride), r, g, b, a, nil, 0)
		} else {
			e.nat.SetElementsc3u8(p.Data, uint32(p.Width), uint32(p.Height), uint32(p.Stride), r, g, b, nil, 0)
		}
		return nil
	}

	y, cb, cr := ycbcr.RGBToYCbCr(r, g, b)
	if len(out.Planes) < 2 {
		return nil
	}
	luma, chroma := &out.Planes[0], &out.Planes[1]
	e.nat.SetElementsc3u8(luma.Data, uint32(luma.Width), uint32(luma.Height), uint32(luma.Stride), y, 0, 0, nil, 0)
	e.nat.SetElementsc3u8(chroma.Data, uint32(chroma.Width), uint32(chroma.Height), uint32(chroma.Stride), cb, cr, 0, nil, 0)
	return nil
}

// WaitFence is a no-op beyond consumption bookkeeping: Compose runs
// synchronously and has already signaled f by the time it is
// returned. A repeat call on an already-consumed fence returns
// Closed rather than silently succeeding again.
func (e *engine) WaitFence(f *backend.Fence) error {
	if f.MarkConsumed() {
		return &backend.Error{Kind: backend.Closed, Op: "wait_fence", Err: fmt.Errorf("fastcv: fence already consumed")}
	}
	if f.State() != backend.FenceSignaled {
		f.Signal()
	}
	return nil
}

func (e *engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = backend.Flushing
	e.surfs.DestroyAll(creator{})
	e.state = backend.Initialized
	return nil
}

func (e *engine) Free() {
	e.mu.Lock()
	e.surfs.DestroyAll(creator{})
	e.state = backend.Destroyed
	e.mu.Unlock()
	if e.nat.CleanUp != nil {
		e.nat.CleanUp()
	}
	e.lib.Close()
}
