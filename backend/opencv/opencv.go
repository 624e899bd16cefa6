// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package opencv implements backend.Engine as a reference pipeline
// built on gocv.io/x/gocv: every plane is wrapped in a cv::Mat and
// the same rotate/flip/resize/color-convert stages other backends
// implement natively are delegated to OpenCV's own primitives. It
// trades throughput for simplicity and is the backend most other
// engines are validated against.
package opencv

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/gviegas/vconv/backend"
	"github.com/gviegas/vconv/frame"
	"github.com/gviegas/vconv/geom"
	"github.com/gviegas/vconv/internal/ycbcr"
	"github.com/gviegas/vconv/pixfmt"
	"github.com/gviegas/vconv/surface"
)

func intRect(r geom.Rect) image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

func toPoint(w, h int) image.Point { return image.Pt(w, h) }

type family struct{}

func (family) Name() string { return "opencv" }

func (family) Open(settings backend.Settings) (backend.Engine, error) {
	return &engine{
		surfs: surface.NewTable(settings.CacheEnabled),
		state: backend.Initialized,
	}, nil
}

func init() { backend.Register(family{}) }

type creator struct{}

func (creator) Create(fd int, meta surface.Meta, role surface.Role, flags uint64) (any, error) {
	return meta, nil
}

func (creator) Update(native any, meta surface.Meta) error { return nil }

func (creator) Destroy(native any) {}

type engine struct {
	mu    sync.Mutex
	surfs *surface.Table
	state backend.State
}

func (e *engine) State() backend.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// matType returns the gocv Mat type plane 0 of f must be viewed as.
// OpenCV has no native RGB565/packed-YUV type; this backend covers
// RGB888/RGBA8888/RGBX8888/BGR888/BGRA8888/BGRX8888/GRAY8/NV12/NV21,
// all 8-bit samples.
func matType(f pixfmt.Format) (gocv.MatType, error) {
	switch f {
	case pixfmt.GRAY8:
		return gocv.MatTypeCV8UC1, nil
	case pixfmt.RGB888, pixfmt.BGR888:
		return gocv.MatTypeCV8UC3, nil
	case pixfmt.RGBA8888, pixfmt.BGRA8888, pixfmt.RGBX8888, pixfmt.BGRX8888:
		return gocv.MatTypeCV8UC4, nil
	case pixfmt.NV12, pixfmt.NV21:
		return gocv.MatTypeCV8UC1, nil // luma plane; sourceMat packs chroma alongside it for conversion
	default:
		return 0, fmt.Errorf("opencv: unsupported format %v", f)
	}
}

// cvtCode returns the color-conversion code for a direct src->dst
// pair, or an error for a known gap: YUV<->YUV (chroma-order/
// subsampling changes) and GRAY<->YUV.
func cvtCode(src, dst pixfmt.Format) (gocv.ColorConversionCode, error) {
	if pixfmt.IsYUV(src) && pixfmt.IsYUV(dst) && src != dst {
		return 0, fmt.Errorf("opencv: YUV-to-YUV conversion (%v -> %v) is unsupported", src, dst)
	}
	if (pixfmt.IsGray(src) && pixfmt.IsYUV(dst)) || (pixfmt.IsYUV(src) && pixfmt.IsGray(dst)) {
		return 0, fmt.Errorf("opencv: GRAY<->YUV conversion (%v -> %v) is unsupported", src, dst)
	}
	switch {
	case src == pixfmt.NV12 && dst == pixfmt.RGB888:
		return gocv.ColorYUVToRGBNV12, nil
	case src == pixfmt.NV12 && dst == pixfmt.BGR888:
		return gocv.ColorYUVToBGRNV12, nil
	case src == pixfmt.NV21 && dst == pixfmt.RGB888:
		return gocv.ColorYUVToRGBNV21, nil
	case src == pixfmt.NV21 && dst == pixfmt.BGR888:
		return gocv.ColorYUVToBGRNV21, nil
	case src == pixfmt.RGB888 && dst == pixfmt.BGR888, src == pixfmt.BGR888 && dst == pixfmt.RGB888:
		return gocv.ColorRGBToBGR, nil
	case src == pixfmt.RGB888 && dst == pixfmt.GRAY8:
		return gocv.ColorRGBToGray, nil
	case src == pixfmt.BGR888 && dst == pixfmt.GRAY8:
		return gocv.ColorBGRToGray, nil
	case src == pixfmt.GRAY8 && dst == pixfmt.RGB888:
		return gocv.ColorGrayToRGB, nil
	case src == pixfmt.GRAY8 && dst == pixfmt.BGR888:
		return gocv.ColorGrayToBGR, nil
	case src == pixfmt.RGBA8888 && dst == pixfmt.BGRA8888, src == pixfmt.BGRA8888 && dst == pixfmt.RGBA8888:
		return gocv.ColorRGBAToBGRA, nil
	case src == pixfmt.RGBA8888 && dst == pixfmt.RGB888:
		return gocv.ColorRGBAToRGB, nil
	case src == pixfmt.BGRA8888 && dst == pixfmt.BGR888:
		return gocv.ColorBGRAToBGR, nil
	case src == pixfmt.RGB888 && dst == pixfmt.RGBA8888:
		return gocv.ColorRGBToRGBA, nil
	case src == pixfmt.BGR888 && dst == pixfmt.BGRA8888:
		return gocv.ColorBGRToBGRA, nil
	default:
		return 0, fmt.Errorf("opencv: no direct conversion registered for %v -> %v", src, dst)
	}
}

func rotateFlag(r frame.Rotation) (gocv.RotateFlag, bool) {
	switch r {
	case frame.Rotate90:
		return gocv.Rotate90Clockwise, true
	case frame.Rotate180:
		return gocv.Rotate180Clockwise, true
	case frame.Rotate270:
		return gocv.Rotate90CounterClockwise, true
	default:
		return 0, false
	}
}

func flipCode(f frame.Flip) (int, bool) {
	switch f {
	case frame.FlipH:
		return 1, true
	case frame.FlipV:
		return 0, true
	case frame.FlipBoth:
		return -1, true
	default:
		return 0, false
	}
}

// wrapPlane0 views plane 0's bytes as a Mat without copying.
func wrapPlane0(v *frame.Video) (gocv.Mat, error) {
	t, err := matType(v.Format)
	if err != nil {
		return gocv.Mat{}, err
	}
	return gocv.NewMatFromBytes(v.Height, v.Width, t, v.Planes[0].Data)
}

// packNV12 copies the luma and interleaved-chroma planes of an
// NV12/NV21 video into one contiguous height*3/2 x width buffer, the
// layout gocv's ColorYUVToRGBNV12/NV21 codes require as their single
// source Mat.
func packNV12(v *frame.Video) ([]byte, error) {
	if len(v.Planes) < 2 {
		return nil, fmt.Errorf("opencv: %v frame missing chroma plane", v.Format)
	}
	luma, chroma := &v.Planes[0], &v.Planes[1]
	chromaH := v.Height / 2
	buf := make([]byte, v.Width*v.Height+v.Width*chromaH)
	for y := 0; y < v.Height; y++ {
		copy(buf[y*v.Width:(y+1)*v.Width], luma.Data[y*luma.Stride:y*luma.Stride+v.Width])
	}
	off := v.Width * v.Height
	for y := 0; y < chromaH; y++ {
		copy(buf[off+y*v.Width:off+(y+1)*v.Width], chroma.Data[y*chroma.Stride:y*chroma.Stride+v.Width])
	}
	return buf, nil
}

// sourceMat returns the Mat blitOne should start its pipeline from,
// plus the pixel format that Mat actually holds (which for a YUV
// source is RGB888, not src.Format). NV12/NV21 sources carry their
// chroma in a second plane that matType/wrapPlane0 cannot represent
// as a single Mat, so they are converted to RGB888 up front (reading
// both planes via packNV12) rather than silently operating on luma
// alone; every later stage then sees an accurate RGB888 source. The
// returned Mat is always owned by the caller and must be Closed,
// whether it came from wrapPlane0's direct wrap or the YUV
// conversion path.
func sourceMat(src *frame.Video) (gocv.Mat, pixfmt.Format, error) {
	if pixfmt.IsYUV(src.Format) {
		buf, err := packNV12(src)
		if err != nil {
			return gocv.Mat{}, src.Format, err
		}
		yuv, err := gocv.NewMatFromBytes(src.Height*3/2, src.Width, gocv.MatTypeCV8UC1, buf)
		if err != nil {
			return gocv.Mat{}, src.Format, err
		}
		defer yuv.Close()
		code, err := cvtCode(src.Format, pixfmt.RGB888)
		if err != nil {
			return gocv.Mat{}, src.Format, err
		}
		out := gocv.NewMat()
		gocv.CvtColor(yuv, &out, code)
		return out, pixfmt.RGB888, nil
	}
	m, err := wrapPlane0(src)
	return m, src.Format, err
}

// Compose runs each blit region through rotate/flip/resize/cvtColor
// Mat operations, in submitted order, writing the result into the
// output Video's own backing bytes.
func (e *engine) Compose(comps []frame.Composition, fence *backend.Fence) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = backend.Running

	for i := range comps {
		comp := &comps[i]
		if comp.ClearBackground {
			if err := fillBackground(comp.Output, comp.Background); err != nil {
				return &backend.Error{Kind: backend.UnsupportedFormat, Op: "compose", Err: err}
			}
		}
		for b := range comp.Blits {
			blit := &comp.Blits[b]
			for _, region := range blit.EffectiveRegions(comp.Output) {
				if err := e.blitOne(blit.Source, comp.Output, region, blit); err != nil {
					return &backend.Error{Kind: backend.UnsupportedFormat, Op: "compose", Err: err}
				}
			}
		}
	}
	if fence != nil {
		fence.Signal()
	}
	return nil
}

// fillBackground paints out's full extent with color (packed
// 0xRRGGBBAA, the same convention c2d and fastcv read their
// Composition.Background field as), matching the clear-before-blit
// step every other backend performs for a ClearBackground
// composition.
func fillBackground(out *frame.Video, color uint32) error {
	r := byte(color >> 24)
	g := byte(color >> 16)
	b := byte(color >> 8)
	a := byte(color)

	if pixfmt.IsYUV(out.Format) {
		if len(out.Planes) < 2 {
			return nil
		}
		y, cb, cr := ycbcr.RGBToYCbCr(r, g, b)
		luma, err := wrapPlane0(out)
		if err != nil {
			return err
		}
		defer luma.Close()
		luma.SetTo(gocv.NewScalar(float64(y), 0, 0, 0))

		chroma := &out.Planes[1]
		chromaMat, err := gocv.NewMatFromBytes(chroma.Height, chroma.Width, gocv.MatTypeCV8UC2, chroma.Data)
		if err != nil {
			return err
		}
		defer chromaMat.Close()
		chromaMat.SetTo(gocv.NewScalar(float64(cb), float64(cr), 0, 0))
		return nil
	}

	m, err := wrapPlane0(out)
	if err != nil {
		return err
	}
	defer m.Close()

	switch out.Format {
	case pixfmt.RGB888:
		m.SetTo(gocv.NewScalar(float64(r), float64(g), float64(b), 0))
	case pixfmt.BGR888:
		m.SetTo(gocv.NewScalar(float64(b), float64(g), float64(r), 0))
	case pixfmt.RGBA8888, pixfmt.RGBX8888:
		m.SetTo(gocv.NewScalar(float64(r), float64(g), float64(b), float64(a)))
	case pixfmt.BGRA8888, pixfmt.BGRX8888:
		m.SetTo(gocv.NewScalar(float64(b), float64(g), float64(r), float64(a)))
	case pixfmt.GRAY8:
		y, _, _ := ycbcr.RGBToYCbCr(r, g, b)
		m.SetTo(gocv.NewScalar(float64(y), 0, 0, 0))
	}
	return nil
}

func (e *engine) blitOne(src, dst *frame.Video, region frame.Region, blit *frame.Blit) error {
	srcMat, srcFormat, err := sourceMat(src)
	if err != nil {
		return err
	}
	defer srcMat.Close()

	cur := srcMat
	owned := false

	if rect := region.Src.Rect(); rect.W != src.Width || rect.H != src.Height {
		sub := cur.Region(intRect(rect))
		cur = sub.Clone()
		sub.Close()
		owned = true
	}

	if rf, ok := rotateFlag(blit.Rotate); ok {
		out := gocv.NewMat()
		gocv.Rotate(cur, &out, rf)
		if owned {
			cur.Close()
		}
		cur, owned = out, true
	}

	if fc, ok := flipCode(blit.Flip); ok {
		out := gocv.NewMat()
		gocv.Flip(cur, &out, fc)
		if owned {
			cur.Close()
		}
		cur, owned = out, true
	}

	dstRect := region.Dst
	if cur.Cols() != dstRect.W || cur.Rows() != dstRect.H {
		out := gocv.NewMat()
		gocv.Resize(cur, &out, toPoint(dstRect.W, dstRect.H), 0, 0, gocv.InterpolationNearestNeighbor)
		if owned {
			cur.Close()
		}
		cur, owned = out, true
	}

	if srcFormat != dst.Format {
		code, err := cvtCode(srcFormat, dst.Format)
		if err != nil {
			if owned {
				cur.Close()
			}
			return err
		}
		out := gocv.NewMat()
		gocv.CvtColor(cur, &out, code)
		if owned {
			cur.Close()
		}
		cur, owned = out, true
	}

	dstMat, err := wrapPlane0(dst)
	if err != nil {
		if owned {
			cur.Close()
		}
		return err
	}
	defer dstMat.Close()

	target := dstMat.Region(intRect(dstRect))
	cur.CopyTo(&target)
	target.Close()
	if owned {
		cur.Close()
	}
	return nil
}

// WaitFence is a no-op beyond consumption bookkeeping: Compose runs
// synchronously and has already signaled f by the time it is
// returned. A repeat call on an already-consumed fence returns
// Closed rather than silently succeeding again.
func (e *engine) WaitFence(f *backend.Fence) error {
	if f.MarkConsumed() {
		return &backend.Error{Kind: backend.Closed, Op: "wait_fence", Err: fmt.Errorf("opencv: fence already consumed")}
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
}
