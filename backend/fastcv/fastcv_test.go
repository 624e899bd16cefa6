// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package fastcv

import (
	"testing"

	"github.com/gviegas/vconv/backend"
	"github.com/gviegas/vconv/frame"
	"github.com/gviegas/vconv/pixfmt"
	"github.com/gviegas/vconv/stage"
	"github.com/gviegas/vconv/surface"
)

func stubNative() *Native {
	n := &Native{
		SetOperationMode: func(mode int32) int32 { return 0 },
		CleanUp:          func() {},
		SetElementsc3u8: func(dst []byte, w, h, stride uint32, v1, v2, v3 byte, mask []byte, mstride uint32) {
			for i := range dst {
				dst[i] = v1
			}
		},
		SetElementsc4u8: func(dst []byte, w, h, stride uint32, v1, v2, v3, v4 byte, mask []byte, mstride uint32) {
			for i := range dst {
				dst[i] = v1
			}
		},
		Flipu8:  func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32, dir int32) { copy(dst, src) },
		Flipu16: func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32, dir int32) { copy(dst, src) },
		RotateImageu8: func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32, degree int32) int32 {
			copy(dst, src)
			return 0
		},
		RotateImageInterleavedu8: func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32, degree int32) int32 {
			copy(dst, src)
			return 0
		},
		Scaleu8V2: func(src []byte, sw, sh, sstride uint32, dst []byte, dw, dh, dstride uint32, interp, border int32, borderValue byte) int32 {
			copy(dst, src)
			return 0
		},
		ScaleUpPolyInterleaveu8: func(src []byte, sw, sh, sstride uint32, dst []byte, dw, dh, dstride uint32) { copy(dst, src) },
		ScaleDownMNInterleaveu8: func(src []byte, sw, sh, sstride uint32, dst []byte, dw, dh, dstride uint32) { copy(dst, src) },
		ColorCbCrSwapu8:         func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32) { copy(dst, src) },
		YUVToYUV:                map[[2]string]func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dLuma, dChroma []byte, dLstride, dCstride uint32){},
		YUVToRGB:                map[string]map[string]func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dst []byte, dstride uint32){},
		RGBToYUV:                map[string]map[string]func(src []byte, w, h, sstride uint32, dLuma, dChroma []byte, dLstride, dCstride uint32){},
		RGBToRGB:                map[string]map[string]func(src []byte, w, h, sstride uint32, dst []byte, dstride uint32){},
	}
	n.YUVToRGB["420"] = map[string]func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dst []byte, dstride uint32){
		"RGB888": func(sLuma, sChroma []byte, w, h, sLstride, sCstride uint32, dst []byte, dstride uint32) {
			for i := range dst {
				dst[i] = 0x80
			}
		},
	}
	return n
}

func testYUVVideo(fd, w, h int) *frame.Video {
	return &frame.Video{
		Format: pixfmt.NV12, Width: w, Height: h, FD: fd,
		Planes: []frame.Plane{
			{Data: make([]byte, w*h), Stride: w, Width: w, Height: h},
			{Data: make([]byte, w*h/2), Stride: w, Width: w / 2, Height: h / 2},
		},
	}
}

func newTestEngine() *engine {
	return &engine{
		nat:   stubNative(),
		surfs: surface.NewTable(false),
		pool:  &stage.Pool{},
		state: backend.Initialized,
	}
}

func TestSubsamplingLevel(t *testing.T) {
	if subsamplingLevel(pixfmt.NV12) != "420" {
		t.Fatalf("NV12 should be 420, got %s", subsamplingLevel(pixfmt.NV12))
	}
	if subsamplingLevel(pixfmt.NV16) != "422" {
		t.Fatalf("NV16 should be 422, got %s", subsamplingLevel(pixfmt.NV16))
	}
	if subsamplingLevel(pixfmt.NV24) != "444" {
		t.Fatalf("NV24 should be 444, got %s", subsamplingLevel(pixfmt.NV24))
	}
}

func TestRGBTag(t *testing.T) {
	if rgbTag(pixfmt.RGB888) != "RGB888" {
		t.Fatalf("expected RGB888 tag, got %s", rgbTag(pixfmt.RGB888))
	}
	if rgbTag(pixfmt.NV12) != "" {
		t.Fatal("YUV format should have no rgb tag")
	}
}

func TestColorConvertYUVToRGBUsesDispatchTable(t *testing.T) {
	e := newTestEngine()
	src := testYUVVideo(1, 16, 16)
	out := e.colorConvert(src, pixfmt.RGB888)
	if out.Format != pixfmt.RGB888 {
		t.Fatalf("expected RGB888 output, got %v", out.Format)
	}
	if out.Planes[0].Data[0] != 0x80 {
		t.Fatal("expected stub conversion to fill 0x80")
	}
}

func TestColorConvertNoOpWhenFormatsMatch(t *testing.T) {
	e := newTestEngine()
	src := testYUVVideo(1, 16, 16)
	out := e.colorConvert(src, pixfmt.NV12)
	if out != src {
		t.Fatal("identical src/dst format should return the same Video unchanged")
	}
}

func TestFillBackgroundYUVUsesLumaChroma(t *testing.T) {
	e := newTestEngine()
	out := testYUVVideo(1, 16, 16)
	if err := e.fillBackground(out, 0x000000FF); err != nil {
		t.Fatalf("fillBackground: %v", err)
	}
	if out.Planes[0].Data[0] != 0 {
		t.Fatalf("expected BT.601 luma 0 for black, got %d", out.Planes[0].Data[0])
	}
}

func TestComposeRejectsTooManyBlits(t *testing.T) {
	e := newTestEngine()
	blits := make([]frame.Blit, MaxDrawObjects+1)
	src := testYUVVideo(1, 4, 4)
	for i := range blits {
		blits[i] = frame.Blit{Source: src, Alpha: 255}
	}
	comps := []frame.Composition{{Blits: blits, Output: testYUVVideo(2, 4, 4)}}
	err := e.Compose(comps, nil)
	if !backend.ErrKind(err, backend.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestComposeAndFlushWithStubbedDriver(t *testing.T) {
	e := newTestEngine()
	src := testYUVVideo(1, 16, 16)
	dst := testYUVVideo(2, 16, 16)
	comps := []frame.Composition{{Blits: []frame.Blit{{Source: src, Alpha: 255}}, Output: dst}}
	if err := e.Compose(comps, nil); err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
