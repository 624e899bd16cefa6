// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package overlay

import (
	"testing"

	"github.com/gviegas/vconv/backend"
	"github.com/gviegas/vconv/frame"
)

func TestRoundUp128(t *testing.T) {
	cases := map[int]int{0: 0, 1: 128, 127: 128, 128: 128, 129: 256}
	for in, want := range cases {
		if got := roundUp128(in); got != want {
			t.Errorf("roundUp128(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestBaseActivateLifecycle(t *testing.T) {
	var b base
	if b.IsActive() {
		t.Fatal("new base should start inactive")
	}
	b.Activate()
	if !b.IsActive() {
		t.Fatal("Activate should set active")
	}
	b.Deactivate()
	if b.IsActive() {
		t.Fatal("Deactivate should clear active")
	}
}

func TestBaseDirtyTracking(t *testing.T) {
	var b base
	if b.clearDirty() {
		t.Fatal("fresh base should not report dirty")
	}
	b.markDirty()
	if !b.clearDirty() {
		t.Fatal("markDirty then clearDirty should report true once")
	}
	if b.clearDirty() {
		t.Fatal("clearDirty should reset dirty state")
	}
}

func TestOffscreenVideoWrapsPixelBuffer(t *testing.T) {
	o := newOffscreen(4, 2, 4)
	v := o.video(offscreenFormat)
	if v.Width != 4 || v.Height != 2 {
		t.Fatalf("video dims = %dx%d, want 4x2", v.Width, v.Height)
	}
	if v.FD != frame.NoFD {
		t.Fatal("offscreen video should report NoFD")
	}
	if len(v.Planes) != 1 || v.Planes[0].Stride != 16 {
		t.Fatalf("unexpected plane layout: %+v", v.Planes)
	}
}

func TestOffscreenClearZeroesBuffer(t *testing.T) {
	o := newOffscreen(2, 2, 4)
	for i := range o.pix {
		o.pix[i] = 0xff
	}
	o.clear()
	for i, b := range o.pix {
		if b != 0 {
			t.Fatalf("pix[%d] = %#x after clear, want 0", i, b)
		}
	}
}

type stubItem struct {
	base
	info []DrawInfo
}

func (s *stubItem) Init(map[string]any) error         { return nil }
func (s *stubItem) UpdateParams(map[string]any) error { return nil }
func (s *stubItem) UpdateAndDraw() error              { return nil }
func (s *stubItem) GetDrawInfo(w, h int) []DrawInfo    { return s.info }
func (s *stubItem) Destroy()                          {}
func (s *stubItem) offscreenVideo() *frame.Video {
	return &frame.Video{Width: 1, Height: 1, FD: frame.NoFD, Planes: []frame.Plane{{Data: []byte{0, 0, 0, 0}, Stride: 4, Width: 1, Height: 1}}}
}

type stubEngine struct {
	composed []frame.Composition
}

func (e *stubEngine) Compose(comps []frame.Composition, fence *backend.Fence) error {
	e.composed = append(e.composed, comps...)
	return nil
}
func (e *stubEngine) WaitFence(f *backend.Fence) error { return nil }
func (e *stubEngine) Flush() error                     { return nil }
func (e *stubEngine) Free()                            {}
func (e *stubEngine) State() backend.State             { return backend.Initialized }

func TestManagerApplySkipsInactiveItems(t *testing.T) {
	m := NewManager()
	active := &stubItem{info: []DrawInfo{{SurfaceID: 0}}}
	active.Activate()
	inactive := &stubItem{info: []DrawInfo{{SurfaceID: 0}}}
	m.Add(active)
	m.Add(inactive)

	target := &frame.Video{Width: 10, Height: 10, FD: frame.NoFD, Planes: []frame.Plane{{Data: make([]byte, 400), Stride: 40, Width: 10, Height: 10}}}

	eng := &stubEngine{}
	if err := m.Apply(eng, target); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(eng.composed) != 1 || len(eng.composed[0].Blits) != 1 {
		t.Fatalf("expected exactly one blit from the active item, got %+v", eng.composed)
	}
}

func TestManagerApplyNoActiveItemsSkipsCompose(t *testing.T) {
	m := NewManager()
	inactive := &stubItem{info: []DrawInfo{{SurfaceID: 0}}}
	m.Add(inactive)

	target := &frame.Video{Width: 10, Height: 10, FD: frame.NoFD, Planes: []frame.Plane{{Data: make([]byte, 400), Stride: 40, Width: 10, Height: 10}}}
	eng := &stubEngine{}
	if err := m.Apply(eng, target); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(eng.composed) != 0 {
		t.Fatalf("expected no composition submitted, got %+v", eng.composed)
	}
}
