// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package pixfmt_test

import (
	"testing"

	"github.com/gviegas/vconv/pixfmt"
)

func TestPlaneCount(t *testing.T) {
	for _, x := range [...]struct {
		f    pixfmt.Format
		want int
	}{
		{pixfmt.GRAY8, 1},
		{pixfmt.RGBA8888, 1},
		{pixfmt.NV12, 2},
		{pixfmt.NV24, 2},
		{pixfmt.I420, 3},
		{pixfmt.Y41B, 3},
		{pixfmt.YUYV, 1},
	} {
		if n := pixfmt.PlaneCount(x.f); n != x.want {
			t.Errorf("PlaneCount(%v):\nhave %d\nwant %d", x.f, n, x.want)
		}
		if n := pixfmt.PlaneCount(x.f); n < 1 || n > 3 {
			t.Errorf("PlaneCount(%v) out of invariant range [1,3]: %d", x.f, n)
		}
	}
}

func TestClassification(t *testing.T) {
	if !pixfmt.IsRGB(pixfmt.RGBA8888) || pixfmt.IsYUV(pixfmt.RGBA8888) {
		t.Error("RGBA8888 misclassified")
	}
	if !pixfmt.IsYUV(pixfmt.NV12) || pixfmt.IsRGB(pixfmt.NV12) {
		t.Error("NV12 misclassified")
	}
	if !pixfmt.IsGray(pixfmt.GRAY8) || pixfmt.IsYUV(pixfmt.GRAY8) || pixfmt.IsRGB(pixfmt.GRAY8) {
		t.Error("GRAY8 misclassified")
	}
	if !pixfmt.HasAlpha(pixfmt.RGBA8888) {
		t.Error("RGBA8888 should carry alpha")
	}
	if pixfmt.HasAlpha(pixfmt.RGBX8888) {
		t.Error("RGBX8888 should not carry alpha")
	}
	if !pixfmt.Is10Bit(pixfmt.P010) || !pixfmt.Is10Bit(pixfmt.TP10) {
		t.Error("P010/TP10 should be 10-bit")
	}
	if !pixfmt.IsPacked(pixfmt.YUYV) || pixfmt.IsPacked(pixfmt.I420) {
		t.Error("packed classification wrong")
	}
}

func TestChromaSubsampling(t *testing.T) {
	for _, x := range [...]struct {
		f          pixfmt.Format
		hdiv, vdiv int
	}{
		{pixfmt.GRAY8, 1, 1},
		{pixfmt.RGBA8888, 1, 1},
		{pixfmt.NV12, 2, 2},
		{pixfmt.NV16, 2, 1},
		{pixfmt.NV24, 1, 1},
		{pixfmt.I420, 2, 2},
		{pixfmt.Y42B, 2, 1},
		{pixfmt.Y41B, 4, 1},
	} {
		h, v := pixfmt.ChromaSubsampling(x.f)
		if h != x.hdiv || v != x.vdiv {
			t.Errorf("ChromaSubsampling(%v):\nhave %d,%d\nwant %d,%d", x.f, h, v, x.hdiv, x.vdiv)
		}
	}
}

func TestKernelDirectAndFallback(t *testing.T) {
	if id := pixfmt.Kernel(pixfmt.NV12, pixfmt.NV21); id == pixfmt.NoKernel {
		t.Error("NV12->NV21 should have a direct chroma-swap kernel")
	}
	if id := pixfmt.Kernel(pixfmt.I420, pixfmt.YUYV); id != pixfmt.NoKernel {
		t.Errorf("I420->YUYV should require a two-step conversion, got kernel %v", id)
	}
	if pixfmt.Intermediate != pixfmt.NV12 {
		t.Error("two-step conversions must stage through NV12")
	}
}

func TestValid(t *testing.T) {
	if !pixfmt.Valid(pixfmt.NV12) {
		t.Error("NV12 should be valid")
	}
	if pixfmt.Valid(pixfmt.Format(9999)) {
		t.Error("unregistered format should not be valid")
	}
}
