// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package overlay

import (
	"testing"

	"github.com/gviegas/vconv/geom"
)

func TestStaticImageMarksDirtyOnBlobChange(t *testing.T) {
	s := NewStaticImage()
	blob := make([]byte, 4*4*4)
	if err := s.Init(map[string]any{"blob": blob, "blob_w": 4, "blob_h": 4}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !s.dirty {
		t.Fatal("Init should leave a fresh blob dirty")
	}
	if err := s.UpdateAndDraw(); err != nil {
		t.Fatalf("UpdateAndDraw: %v", err)
	}
	if s.dirty {
		t.Fatal("UpdateAndDraw should clear dirty")
	}

	if err := s.UpdateParams(map[string]any{"blob": blob}); err != nil {
		t.Fatalf("UpdateParams (same blob): %v", err)
	}
	if s.dirty {
		t.Fatal("re-submitting the identical blob slice should not mark dirty")
	}

	newBlob := make([]byte, 4*4*4)
	if err := s.UpdateParams(map[string]any{"blob": newBlob}); err != nil {
		t.Fatalf("UpdateParams (new blob): %v", err)
	}
	if !s.dirty {
		t.Fatal("a different blob pointer should mark the item dirty")
	}
}

func TestStaticImageChannelSwapAbgrToRgba(t *testing.T) {
	s := NewStaticImage()
	blob := []byte{0x11, 0x22, 0x33, 0x44} // a,b,g,r for one pixel
	if err := s.Init(map[string]any{"blob": blob, "blob_w": 1, "blob_h": 1}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.UpdateAndDraw(); err != nil {
		t.Fatalf("UpdateAndDraw: %v", err)
	}
	want := []byte{0x44, 0x33, 0x22, 0x11} // r,g,b,a
	for i, b := range want {
		if s.off.pix[i] != b {
			t.Fatalf("pix[%d] = %#x, want %#x", i, s.off.pix[i], b)
		}
	}
}

func TestBoundingBoxStrokeWidthHonorsRequest(t *testing.T) {
	bb := NewBoundingBox()
	if err := bb.Init(map[string]any{"item_w": 1000, "item_h": 1000, "stroke_width": 50}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := bb.strokeWidth(); got != 50 {
		t.Fatalf("strokeWidth() = %d, want request honored at 50", got)
	}
}

func TestBoundingBoxStrokeWidthFallsBackToDerived(t *testing.T) {
	bb := NewBoundingBox()
	if err := bb.Init(map[string]any{"item_w": 100, "item_h": 100, "stroke_width": 0}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := bb.strokeWidth(); got < 1 {
		t.Fatalf("strokeWidth() = %d, want a positive derived minimum", got)
	}
}

func TestBoundingBoxGetDrawInfoReturnsBoxAndLabel(t *testing.T) {
	bb := NewBoundingBox()
	if err := bb.Init(map[string]any{"item_w": 200, "item_h": 100, "label": "person"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	infos := bb.GetDrawInfo(640, 480)
	if len(infos) != 2 {
		t.Fatalf("expected 2 DrawInfo rects (box + label), got %d", len(infos))
	}
}

func TestPrivacyMaskOffscreenSizeCapped(t *testing.T) {
	p := NewPrivacyMask()
	if err := p.Init(map[string]any{"item_w": 4000}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.off.w > roundUp128(kMaskBoxBufWidth) {
		t.Fatalf("offscreen width %d exceeds capped bound", p.off.w)
	}
}

func TestPrivacyMaskRectFillsSolid(t *testing.T) {
	p := NewPrivacyMask()
	if err := p.Init(map[string]any{"item_w": 128, "kind": MaskRect}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.UpdateAndDraw(); err != nil {
		t.Fatalf("UpdateAndDraw: %v", err)
	}
	mid := len(p.off.pix) / 2
	if p.off.pix[mid+3] == 0 {
		t.Fatal("solid rectangle mask should paint an opaque center pixel")
	}
}

func TestPrivacyMaskInverseRectLeavesHoleClear(t *testing.T) {
	p := NewPrivacyMask()
	hole := geom.Rect{X: 32, Y: 32, W: 64, H: 64}
	if err := p.Init(map[string]any{"item_w": 128, "item_h": 128, "kind": MaskInverseRect, "rect": hole}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.UpdateAndDraw(); err != nil {
		t.Fatalf("UpdateAndDraw: %v", err)
	}
	cx, cy := p.off.w/2, p.off.h/2
	idx := cy*p.off.stride + cx*p.off.bpp
	if p.off.pix[idx+3] != 0 {
		t.Fatal("inverse rectangle should leave its central hole transparent")
	}
	edgeIdx := 2*p.off.stride + 2*p.off.bpp
	if p.off.pix[edgeIdx+3] == 0 {
		t.Fatal("inverse rectangle should paint outside the hole")
	}
}

func TestGraphIgnoresNegativeCoordinatePoints(t *testing.T) {
	g := NewGraph()
	if err := g.Init(map[string]any{"item_w": 100, "item_h": 100, "offscreen_w": 100}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	pts := []geom.Point{{X: 10, Y: 10}, {X: -1, Y: 5}, {X: 5, Y: -1}, {X: 20, Y: 20}}
	if err := g.UpdateParams(map[string]any{"points": pts}); err != nil {
		t.Fatalf("UpdateParams: %v", err)
	}
	if len(g.points) != 2 {
		t.Fatalf("expected negative-coordinate points dropped, got %d points", len(g.points))
	}
}

func TestGraphCapsPointAndLinkCounts(t *testing.T) {
	g := NewGraph()
	if err := g.Init(map[string]any{"item_w": 100, "item_h": 100, "offscreen_w": 100}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	pts := make([]geom.Point, 30)
	for i := range pts {
		pts[i] = geom.Point{X: i, Y: i}
	}
	links := make([][2]int, 50)
	if err := g.UpdateParams(map[string]any{"points": pts, "links": links}); err != nil {
		t.Fatalf("UpdateParams: %v", err)
	}
	if len(g.points) > graphMaxPoints {
		t.Fatalf("points not capped: got %d, want <= %d", len(g.points), graphMaxPoints)
	}
	if len(g.links) > graphMaxLinks {
		t.Fatalf("links not capped: got %d, want <= %d", len(g.links), graphMaxLinks)
	}
}

func TestArrowOffscreenSizedByBufferDiv(t *testing.T) {
	a := NewArrow()
	if err := a.Init(map[string]any{"item_w": 200, "item_h": 100}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if a.off.w != 200/kBufferDiv || a.off.h != 100/kBufferDiv {
		t.Fatalf("offscreen size = %dx%d, want %dx%d", a.off.w, a.off.h, 200/kBufferDiv, 100/kBufferDiv)
	}
}

func TestArrowUpdateAndDrawClearsDirty(t *testing.T) {
	a := NewArrow()
	if err := a.Init(map[string]any{"item_w": 200, "item_h": 100, "start_x": 0, "start_y": 0, "end_x": 100, "end_y": 50}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !a.dirty {
		t.Fatal("Init should leave the item dirty")
	}
	if err := a.UpdateAndDraw(); err != nil {
		t.Fatalf("UpdateAndDraw: %v", err)
	}
	if a.dirty {
		t.Fatal("UpdateAndDraw should clear dirty")
	}
}
