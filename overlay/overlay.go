// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package overlay implements the vector overlay engine: a set of
// polymorphic items (DateTime, UserText, StaticImage, BoundingBox,
// PrivacyMask, Graph, Arrow) that each rasterize to an offscreen CPU
// surface and are composited onto a target frame through a
// backend.Engine. The item lifecycle is init/update_params/
// update_and_draw/activate/deactivate/destroy, with a per-item dirty
// flag between parameter changes and redraws.
package overlay

import (
	"fmt"
	"sync"

	"github.com/gviegas/vconv/backend"
	"github.com/gviegas/vconv/frame"
	"github.com/gviegas/vconv/geom"
	"github.com/gviegas/vconv/internal/dmabuf"
	"github.com/gviegas/vconv/pixfmt"
	"github.com/gviegas/vconv/surface"
)

// roundUp128 rounds n up to the next multiple of 128, the alignment
// every offscreen item surface's width is sized to.
func roundUp128(n int) int { return (n + 127) &^ 127 }

// DrawInfo is one rectangle an item contributes to the apply
// pipeline's composition: its offscreen surface id, the rectangle it
// occupies in target coordinates, and a label describing which
// compose-time kernel variant the backend should pick (plain alpha
// blend vs. a format-specific fast path). Backends that have no use
// for Kernel may ignore it; it exists so a backend capable of a
// specialized blend path (e.g. premultiplied-alpha source, A8 mask)
// can select it without re-deriving it from the surface format.
type DrawInfo struct {
	SurfaceID int
	Rect      geom.Rect
	Kernel    string
}

// Item is the common capability set every overlay variant
// implements.
type Item interface {
	// Init applies params for the first time, allocating whatever
	// offscreen state the item needs.
	Init(params map[string]any) error
	// UpdateParams applies changed params; it may mark the item
	// dirty without discarding existing offscreen state.
	UpdateParams(params map[string]any) error
	// UpdateAndDraw redraws the offscreen surface when dirty. It is
	// always safe to call; a non-dirty item returns immediately.
	UpdateAndDraw() error
	// GetDrawInfo returns the rectangles this item occupies when
	// composited onto a target_w x target_h frame.
	GetDrawInfo(targetW, targetH int) []DrawInfo
	Activate()
	Deactivate()
	IsActive() bool
	Destroy()
}

// base holds the Activate/Deactivate/IsActive bookkeeping and the
// target position (x, y) every item variant embeds, so each variant
// only implements the parts of Item that are actually specific to it.
type base struct {
	active bool
	dirty  bool
	x, y   int
}

func (b *base) Activate()        { b.active = true }
func (b *base) Deactivate()      { b.active = false }
func (b *base) IsActive() bool   { return b.active }
func (b *base) markDirty()       { b.dirty = true }
func (b *base) clearDirty() bool { d := b.dirty; b.dirty = false; return d }

// offscreen is the CPU surface an item rasterizes into; every item
// allocates it at 4 bytes per pixel and views it as offscreenFormat. Width/Height describe it in pixels;
// Stride is Width*bytesPerPixel.
type offscreen struct {
	w, h, stride int
	bpp          int
	pix          []byte
}

func newOffscreen(w, h, bpp int) offscreen {
	stride := w * bpp
	return offscreen{w: w, h: h, stride: stride, bpp: bpp, pix: make([]byte, stride*h)}
}

func (o *offscreen) clear() {
	for i := range o.pix {
		o.pix[i] = 0
	}
}

func (o *offscreen) video(format pixfmt.Format) *frame.Video {
	return &frame.Video{
		Format: format, Width: o.w, Height: o.h, FD: frame.NoFD,
		Planes: []frame.Plane{{Data: o.pix, Stride: o.stride, Width: o.w, Height: o.h}},
	}
}

// Manager holds the full set of overlay items and drives the apply
// pipeline against one backend.Engine.
type Manager struct {
	mu    sync.Mutex
	items []Item
	surfs *surface.Table
}

// NewManager returns an empty Manager backed by its own surface
// table (overlay offscreen surfaces are never shared with a
// backend's own input/output cache).
func NewManager() *Manager {
	return &Manager{surfs: surface.NewTable(false)}
}

// Add registers an item with the manager. The manager takes no
// ownership beyond holding the reference for Apply/Destroy.
func (m *Manager) Add(it Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, it)
}

// targetMeta builds the surface.Meta Resolve caches the target
// buffer's fd against.
func targetMeta(v *frame.Video) surface.Meta {
	strides := make([]int, len(v.Planes))
	offsets := make([]int64, len(v.Planes))
	for i, p := range v.Planes {
		strides[i] = p.Stride
		offsets[i] = p.Offset
	}
	return surface.Meta{Format: v.Format, Width: v.Width, Height: v.Height, PlaneStrides: strides, PlaneOffsets: offsets}
}

// itemCreator adapts surface.Table onto CPU-backed offscreen Videos:
// there is no backend-native resource to create, just fd -> id
// bookkeeping for Apply's target-surface resolve/cache step.
type itemCreator struct{}

func (itemCreator) Create(fd int, meta surface.Meta, role surface.Role, flags uint64) (any, error) {
	return meta, nil
}
func (itemCreator) Update(native any, meta surface.Meta) error { return nil }
func (itemCreator) Destroy(native any)                         {}

// Apply runs the four-step pipeline documented for the overlay
// engine: redraw every active item, resolve the target surface
// (DMA-sync bracketed), gather every item's DrawInfo, and submit one
// composition covering all of them to eng. A DrawInfo with SurfaceID
// 1 is composited from the item's LabelVideo when it has one; every
// other DrawInfo uses the item's main offscreen surface.
func (m *Manager) Apply(eng backend.Engine, target *frame.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var blits []frame.Blit
	for _, it := range m.items {
		if !it.IsActive() {
			continue
		}
		if err := it.UpdateAndDraw(); err != nil {
			return fmt.Errorf("overlay: update_and_draw: %w", err)
		}
	}

	if target.FD != frame.NoFD {
		if _, err := m.surfs.Resolve(itemCreator{}, target.FD, targetMeta(target), surface.RoleOutput, 0); err != nil {
			return fmt.Errorf("overlay: resolve target surface: %w", err)
		}
		if err := dmabuf.SyncStart(target.FD, true); err != nil {
			return fmt.Errorf("overlay: sync_start: %w", err)
		}
		defer dmabuf.SyncEnd(target.FD, true)
	}

	for _, it := range m.items {
		if !it.IsActive() {
			continue
		}
		infos := it.GetDrawInfo(target.Width, target.Height)
		video, ok := it.(surfaceSource)
		if !ok {
			continue
		}
		for _, info := range infos {
			src := video.offscreenVideo()
			if info.SurfaceID == 1 {
				if lv, ok := it.(interface{ LabelVideo() *frame.Video }); ok {
					src = lv.LabelVideo()
				}
			}
			blits = append(blits, frame.Blit{
				Source: src,
				Regions: []frame.Region{{
					Src: geom.QuadFromRect(geom.Rect{W: src.Width, H: src.Height}),
					Dst: info.Rect,
				}},
				Alpha: 255,
			})
		}
	}

	if len(blits) == 0 {
		return nil
	}
	comp := frame.Composition{Blits: blits, Output: target}
	return eng.Compose([]frame.Composition{comp}, nil)
}

// surfaceSource is implemented by every item variant, giving the
// apply pipeline access to the offscreen surface GetDrawInfo's
// rectangles refer to.
type surfaceSource interface {
	offscreenVideo() *frame.Video
}

// Destroy releases every item the manager holds and empties the
// surface table.
func (m *Manager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		it.Destroy()
	}
	m.items = nil
	m.surfs.DestroyAll(itemCreator{})
}
