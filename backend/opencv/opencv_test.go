// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package opencv

import (
	"testing"

	"github.com/gviegas/vconv/backend"
	"github.com/gviegas/vconv/frame"
	"github.com/gviegas/vconv/pixfmt"
)

func TestMatTypeRejectsPackedYUV(t *testing.T) {
	if _, err := matType(pixfmt.NV12); err != nil {
		t.Fatalf("NV12 luma plane should map to a Mat type: %v", err)
	}
	if _, err := matType(pixfmt.YUYV); err == nil {
		t.Fatal("packed YUV has no direct Mat type and should error")
	}
}

func TestCvtCodeRejectsYUVToYUV(t *testing.T) {
	if _, err := cvtCode(pixfmt.NV12, pixfmt.NV21); err == nil {
		t.Fatal("YUV-to-YUV conversion should be rejected per the documented gap")
	}
}

func TestCvtCodeRejectsGrayYUV(t *testing.T) {
	if _, err := cvtCode(pixfmt.GRAY8, pixfmt.NV12); err == nil {
		t.Fatal("GRAY-to-YUV conversion should be rejected per the documented gap")
	}
	if _, err := cvtCode(pixfmt.NV12, pixfmt.GRAY8); err == nil {
		t.Fatal("YUV-to-GRAY conversion should be rejected per the documented gap")
	}
}

func TestCvtCodeAcceptsRGBFamily(t *testing.T) {
	if _, err := cvtCode(pixfmt.RGB888, pixfmt.BGR888); err != nil {
		t.Fatalf("RGB888->BGR888 should be a registered direct conversion: %v", err)
	}
}

func TestRotateFlagMapsDegrees(t *testing.T) {
	if _, ok := rotateFlag(frame.Rotate0); ok {
		t.Fatal("Rotate0 should report no rotation needed")
	}
	if _, ok := rotateFlag(frame.Rotate90); !ok {
		t.Fatal("Rotate90 should map to a RotateFlag")
	}
}

func TestFlipCodeMapsDirections(t *testing.T) {
	if _, ok := flipCode(frame.FlipNone); ok {
		t.Fatal("FlipNone should report no flip needed")
	}
	if c, ok := flipCode(frame.FlipBoth); !ok || c != -1 {
		t.Fatalf("FlipBoth should map to OpenCV's both-axis code -1, got %d ok=%v", c, ok)
	}
}

func TestEngineStateLifecycle(t *testing.T) {
	e := &engine{state: backend.Initialized}
	if e.State() != backend.Initialized {
		t.Fatal("new engine should start Initialized")
	}
}
