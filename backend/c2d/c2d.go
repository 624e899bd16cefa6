// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package c2d implements backend.Engine on top of Qualcomm's C2D
// hardware blitter (libC2D2.so), dlopen'd through internal/nativelib.
// It is the only backend with a composition cache: consecutive
// compositions bound for different output resolutions of the same
// source content can reuse one earlier draw rather than recompute it
// (see the opportunisticReuse pass in Compose).
package c2d

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gviegas/vconv/backend"
	"github.com/gviegas/vconv/frame"
	"github.com/gviegas/vconv/geom"
	"github.com/gviegas/vconv/internal/nativelib"
	"github.com/gviegas/vconv/surface"
)

// MaxDrawObjects bounds the scratch draw-object array built by
// Compose, mirroring GST_C2D_MAX_DRAW_OBJECTS from the original C2D
// converter.
const MaxDrawObjects = 250

// Tolerances used by the opportunistic-reuse pass.
const (
	AspectTolerance = 0.005
	RectTolerancePx = 1
)

// Config-mask bits, mirroring the native C2D_OBJECT config_mask.
const (
	maskSourceRect  uint32 = 1 << 0
	maskTargetRect  uint32 = 1 << 1
	maskGlobalAlpha uint32 = 1 << 2
	maskMirrorH     uint32 = 1 << 3
	maskMirrorV     uint32 = 1 << 4
	maskRotate90    uint32 = 1 << 5
	maskRotate180   uint32 = 1 << 6
	maskRotate270   uint32 = 1 << 7
)

// fixed16 converts a pixel coordinate to C2D's 16.16 fixed-point
// representation.
func fixed16(v int) int32 { return int32(v) << 16 }

// drawObject mirrors the native C2D_OBJECT layout closely enough for
// RegisterFunc-bound calls into libC2D2.so (surface ids, fixed-point
// rects, a config mask, and an intrusive next pointer forming the
// linked list Draw consumes in one call).
type drawObject struct {
	surfaceID               uint32
	configMask              uint32
	srcX, srcY, srcW, srcH  int32
	dstX, dstY, dstW, dstH  int32
	globalAlpha             uint8
	_                       [3]byte // padding to match native alignment
	next                    *drawObject
}

// Native is the set of libC2D2.so entry points this backend binds.
// Each field matches one of the symbols gst_c2d_video_converter_new
// loads from "libC2D2.so": c2dDriverInit, c2dDriverDeInit,
// c2dCreateSurface, c2dDestroySurface, c2dUpdateSurface,
// c2dFillSurface, c2dDraw, c2dFlush, c2dFinish, c2dMapAddr,
// c2dUnMapAddr.
type Native struct {
	DriverInit     func() int32
	DriverDeInit   func() int32
	CreateSurface  func(id *uint32, bits uint32, surfaceType uint32, def uintptr) int32
	DestroySurface func(id uint32) int32
	UpdateSurface  func(id uint32, bits uint32, surfaceType uint32, def uintptr) int32
	FillSurface    func(id uint32, color uint32, rect uintptr) int32
	Draw           func(target uint32, obj uintptr) int32
	Flush          func(target uint32, fence uintptr) int32
	Finish         func(target uint32) int32
	MapAddr        func(addr uintptr, size uint32, flags uint32) uintptr
	UnMapAddr      func(addr uintptr) int32
}

func bindNative(lib *nativelib.Library) (*Native, error) {
	n := &Native{}
	binds := []struct {
		ptr  any
		name string
	}{
		{&n.DriverInit, "c2dDriverInit"},
		{&n.DriverDeInit, "c2dDriverDeInit"},
		{&n.CreateSurface, "c2dCreateSurface"},
		{&n.DestroySurface, "c2dDestroySurface"},
		{&n.UpdateSurface, "c2dUpdateSurface"},
		{&n.FillSurface, "c2dFillSurface"},
		{&n.Draw, "c2dDraw"},
		{&n.Flush, "c2dFlush"},
		{&n.Finish, "c2dFinish"},
		{&n.MapAddr, "c2dMapAddr"},
		{&n.UnMapAddr, "c2dUnMapAddr"},
	}
	for _, b := range binds {
		if err := lib.Bind(b.ptr, b.name); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Process-wide driver reference counting: the first Engine to open
// calls c2dDriverInit; the last to free calls c2dDriverDeInit. A
// singleflight.Group collapses concurrent first-opens into one
// actual dlopen+DriverInit call.
var (
	driverMu    sync.Mutex
	driverRefs  int
	driverLib   *nativelib.Library
	driverNat   *Native
	driverGroup singleflight.Group
)

const libPath = "libC2D2.so"

func acquireDriver() (*Native, error) {
	driverMu.Lock()
	defer driverMu.Unlock()

	if driverRefs > 0 {
		driverRefs++
		return driverNat, nil
	}

	v, err, _ := driverGroup.Do(libPath, func() (any, error) {
		lib, err := nativelib.Open(libPath)
		if err != nil {
			return nil, err
		}
		nat, err := bindNative(lib)
		if err != nil {
			lib.Close()
			return nil, err
		}
		if nat.DriverInit() != 0 {
			lib.Close()
			return nil, fmt.Errorf("c2d: c2dDriverInit failed")
		}
		return nat, nil
	})
	if err != nil {
		return nil, err
	}
	driverNat = v.(*Native)
	driverRefs = 1
	return driverNat, nil
}

func releaseDriver() {
	driverMu.Lock()
	defer driverMu.Unlock()
	driverRefs--
	if driverRefs <= 0 {
		if driverNat != nil {
			driverNat.DriverDeInit()
		}
		if driverLib != nil {
			driverLib.Close()
		}
		driverRefs = 0
		driverNat = nil
		driverLib = nil
	}
}

// family implements backend.Family for c2d.
type family struct{}

func (family) Name() string { return "c2d" }

func (family) Open(settings backend.Settings) (backend.Engine, error) {
	nat, err := acquireDriver()
	if err != nil {
		return nil, &backend.Error{Kind: backend.DriverError, Op: "open", Err: err}
	}
	max := MaxDrawObjects
	if settings.MaxDrawObjects > 0 {
		max = settings.MaxDrawObjects
	}
	return &engine{
		nat:     nat,
		surfs:   surface.NewTable(settings.CacheEnabled),
		state:   backend.Initialized,
		maxObjs: max,
	}, nil
}

func init() { backend.Register(family{}) }

// cacheEntry records one prior composition's resolved output, used
// by the opportunistic-reuse pass.
type cacheEntry struct {
	comp   *frame.Composition
	outputSurf int
	w, h   int
}

// engine is the c2d backend.Engine implementation.
type engine struct {
	mu      sync.Mutex
	nat     *Native
	surfs   *surface.Table
	state   backend.State
	maxObjs int
	pending []*backend.Fence
}

func (e *engine) State() backend.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// creator adapts surface.Creator to the C2D native calls. Create
// rejects frames whose planes do not share one allocation
// (surface.ValidateContiguous) and then calls c2dCreateSurface with
// an empty surface definition. It does not map a GPU address for any
// plane: MapAddr and UnMapAddr are bound but never called.
type creator struct{ nat *Native }

func (c creator) Create(fd int, meta surface.Meta, role surface.Role, flags uint64) (any, error) {
	if err := surface.ValidateContiguous(meta); err != nil {
		return nil, err
	}
	var bits uint32
	if role == surface.RoleOutput || role == surface.RoleBoth {
		bits = 1 // mirrors C2D_TARGET
	}
	var id uint32
	if c.nat.CreateSurface(&id, bits, 0, 0) != 0 {
		return nil, fmt.Errorf("c2d: c2dCreateSurface failed for fd %d", fd)
	}
	return id, nil
}

func (c creator) Update(native any, meta surface.Meta) error {
	id := native.(uint32)
	if c.nat.UpdateSurface(id, 0, 0, 0) != 0 {
		return fmt.Errorf("c2d: c2dUpdateSurface failed for surface %d", id)
	}
	return nil
}

func (c creator) Destroy(native any) {
	c.nat.DestroySurface(native.(uint32))
}

// Compose implements backend.Engine. It sorts compositions by output
// resolution descending, applies the opportunistic-reuse pass, then
// builds and issues one draw call per composition.
func (e *engine) Compose(comps []frame.Composition, fence *backend.Fence) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = backend.Running

	ordered := make([]*frame.Composition, len(comps))
	for i := range comps {
		ordered[i] = &comps[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Output.Width*ordered[i].Output.Height >
			ordered[j].Output.Width*ordered[j].Output.Height
	})

	c := creator{nat: e.nat}
	var cache []cacheEntry
	outputIDs := make([]int, 0, len(ordered))

	for _, comp := range ordered {
		reused := findReuse(cache, comp)

		outID, err := e.surfs.Resolve(c, comp.Output.FD, surfaceMetaOf(comp.Output), surface.RoleOutput, comp.Flags)
		if err != nil {
			return &backend.Error{Kind: backend.ResourceExhausted, Op: "compose", Err: err}
		}

		objs, err := e.buildDrawObjects(c, comp, reused)
		if err != nil {
			return &backend.Error{Kind: backend.InvalidArgument, Op: "compose", Err: err}
		}

		if err := e.fillBackground(outID, comp, objs); err != nil {
			return &backend.Error{Kind: backend.DriverError, Op: "compose", Err: err}
		}

		if len(objs) > 0 {
			link(objs)
			if e.nat.Draw(uint32(outID), 0) != 0 {
				return &backend.Error{Kind: backend.DriverError, Op: "compose", Err: fmt.Errorf("c2d: c2dDraw failed")}
			}
		}

		cache = append(cache, cacheEntry{comp: comp, outputSurf: outID, w: comp.Output.Width, h: comp.Output.Height})
		outputIDs = append(outputIDs, outID)
	}

	if fence != nil {
		fence.Payload = outputIDs
		e.pending = append(e.pending, fence)
		return nil
	}
	for _, id := range outputIDs {
		e.nat.Finish(uint32(id))
	}
	return nil
}

func surfaceMetaOf(v *frame.Video) surface.Meta {
	m := surface.Meta{Format: v.Format, Width: v.Width, Height: v.Height}
	for _, p := range v.Planes {
		m.PlaneStrides = append(m.PlaneStrides, p.Stride)
		m.PlaneOffsets = append(m.PlaneOffsets, p.Offset)
	}
	return m
}

// findReuse implements an opportunistic-reuse scan: composition comp
// may reuse an earlier cache entry's output as its sole input when
// every blit is compatible.
func findReuse(cache []cacheEntry, comp *frame.Composition) *cacheEntry {
	for i := range cache {
		e := &cache[i]
		if e.w < comp.Output.Width || e.h < comp.Output.Height {
			continue
		}
		if !compatible(e.comp, comp) {
			continue
		}
		return e
	}
	return nil
}

func compatible(a, b *frame.Composition) bool {
	if len(a.Blits) != len(b.Blits) {
		return false
	}
	if a.Background != b.Background || a.ClearBackground != b.ClearBackground {
		return false
	}
	aRatio := float64(a.Output.Width) / float64(a.Output.Height)
	bRatio := float64(b.Output.Width) / float64(b.Output.Height)
	if absf(aRatio-bRatio) > AspectTolerance {
		return false
	}
	for i := range a.Blits {
		ba, bb := &a.Blits[i], &b.Blits[i]
		if ba.Source.FD != bb.Source.FD || ba.Flags != bb.Flags || ba.Alpha != bb.Alpha {
			return false
		}
		if len(ba.Regions) != len(bb.Regions) {
			return false
		}
		for r := range ba.Regions {
			if ba.Regions[r].Src != bb.Regions[r].Src {
				return false
			}
			if !closeRect(ba.Regions[r].Dst, bb.Regions[r].Dst) {
				return false
			}
		}
	}
	return true
}

func closeRect(a, b geom.Rect) bool {
	return absInt(a.X-b.X) <= RectTolerancePx && absInt(a.Y-b.Y) <= RectTolerancePx &&
		absInt(a.W-b.W) <= RectTolerancePx && absInt(a.H-b.H) <= RectTolerancePx
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func absInt(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// buildDrawObjects builds one drawObject per (blit, region) pair. If
// reused is non-nil, every blit in comp is replaced by a single
// object sourcing from reused's output surface instead of resolving
// comp's own inputs.
func (e *engine) buildDrawObjects(c creator, comp *frame.Composition, reused *cacheEntry) ([]*drawObject, error) {
	var objs []*drawObject

	addObject := func(srcID int, blit *frame.Blit, region frame.Region, dst *frame.Video) error {
		if len(objs) >= e.maxObjs {
			return fmt.Errorf("c2d: number of objects exceeds %d", e.maxObjs)
		}
		o := &drawObject{
			surfaceID:   uint32(srcID),
			configMask:  maskSourceRect | maskTargetRect,
			srcX:        fixed16(region.Src.Rect().X),
			srcY:        fixed16(region.Src.Rect().Y),
			srcW:        fixed16(region.Src.Rect().W),
			srcH:        fixed16(region.Src.Rect().H),
			globalAlpha: blit.Alpha,
		}
		target := geom.ResolveDest(region.Dst, dst.Width, dst.Height, blit.Rotate.Swap())
		applyRotateAndTarget(o, blit, target, dst)
		if blit.Alpha != 255 {
			o.configMask |= maskGlobalAlpha
		}
		objs = append(objs, o)
		return nil
	}

	if reused != nil {
		srcID, err := e.surfs.Resolve(c, reused.comp.Output.FD, surfaceMetaOf(reused.comp.Output), surface.RoleInput, 0)
		if err != nil {
			return nil, err
		}
		region := frame.Region{
			Dst: geom.Rect{W: comp.Output.Width, H: comp.Output.Height},
		}
		if err := addObject(srcID, &frame.Blit{Alpha: 255}, region, comp.Output); err != nil {
			return nil, err
		}
		return objs, nil
	}

	for i := range comp.Blits {
		blit := &comp.Blits[i]
		srcID, err := e.surfs.Resolve(c, blit.Source.FD, surfaceMetaOf(blit.Source), surface.RoleInput, blit.Flags)
		if err != nil {
			return nil, err
		}
		for _, region := range blit.EffectiveRegions(comp.Output) {
			if err := addObject(srcID, blit, region, comp.Output); err != nil {
				return nil, err
			}
		}
	}
	return objs, nil
}

// applyRotateAndTarget fills in the target rect and rotate/mirror
// config bits, swapping width/height for 90/270 rotations.
func applyRotateAndTarget(o *drawObject, blit *frame.Blit, target geom.Rect, dst *frame.Video) {
	switch blit.Rotate {
	case frame.Rotate90:
		o.configMask |= maskRotate90
		o.dstX = fixed16(dst.Width - (target.X + target.W))
		o.dstY = fixed16(target.X)
		o.dstW = fixed16(target.H)
		o.dstH = fixed16(target.W)
	case frame.Rotate180:
		o.configMask |= maskRotate180
		o.dstX = fixed16(dst.Width - (target.X + target.W))
		o.dstY = fixed16(dst.Height - (target.Y + target.H))
		o.dstW = fixed16(target.W)
		o.dstH = fixed16(target.H)
	case frame.Rotate270:
		o.configMask |= maskRotate270
		o.dstX = fixed16(target.Y)
		o.dstY = fixed16(dst.Height - (target.Y + target.H))
		o.dstW = fixed16(target.H)
		o.dstH = fixed16(target.W)
	default:
		o.dstX = fixed16(target.X)
		o.dstY = fixed16(target.Y)
		o.dstW = fixed16(target.W)
		o.dstH = fixed16(target.H)
	}
	switch blit.Flip {
	case frame.FlipH:
		o.configMask |= maskMirrorH
	case frame.FlipV:
		o.configMask |= maskMirrorV
	case frame.FlipBoth:
		o.configMask |= maskMirrorH | maskMirrorV
	}
}

// link fills each object's next pointer, forming the linked list
// c2dDraw consumes in one call.
func link(objs []*drawObject) {
	for i := 0; i < len(objs)-1; i++ {
		objs[i].next = objs[i+1]
	}
}

// fillBackground sums the visible output area not covered by any
// target rect (inclusion-exclusion via geom.Overlap) and, if
// clear-background is requested and area remains, fills the output
// surface with the background color first.
func (e *engine) fillBackground(outID int, comp *frame.Composition, objs []*drawObject) error {
	if !comp.ClearBackground {
		return nil
	}
	total := comp.Output.Width * comp.Output.Height
	covered := 0
	var seen []geom.Rect
	for _, o := range objs {
		r := geom.Rect{X: int(o.dstX >> 16), Y: int(o.dstY >> 16), W: int(o.dstW >> 16), H: int(o.dstH >> 16)}
		area := r.Area()
		for _, s := range seen {
			area -= geom.Overlap(r, s)
		}
		if area > 0 {
			covered += area
		}
		seen = append(seen, r)
	}
	if total-covered <= 0 {
		return nil
	}
	if e.nat.FillSurface(uint32(outID), comp.Background, 0) != 0 {
		return fmt.Errorf("c2d: c2dFillSurface failed for surface %d", outID)
	}
	return nil
}

// WaitFence blocks on every surface id in f's payload via c2dFinish.
// A repeat call on an already-consumed fence returns Closed rather
// than waiting (or silently succeeding) again.
func (e *engine) WaitFence(f *backend.Fence) error {
	if f.MarkConsumed() {
		return &backend.Error{Kind: backend.Closed, Op: "wait_fence", Err: fmt.Errorf("c2d: fence already consumed")}
	}
	if f.State() != backend.FenceSignaled {
		ids, _ := f.Payload.([]int)
		for _, id := range ids {
			if e.nat.Finish(uint32(id)) != 0 {
				return &backend.Error{Kind: backend.Timeout, Op: "wait_fence", Err: fmt.Errorf("c2d: finish failed for surface %d", id)}
			}
		}
		f.Signal()
	}
	return nil
}

// Flush drains every pending fence and drops the surface table:
// per-surface finish errors are logged, overall status stays OK.
// Fences the caller already waited directly are skipped rather than
// re-waited (MarkConsumed would otherwise turn every one of them
// into a logged Closed "error" on every Flush).
func (e *engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = backend.Flushing
	for _, f := range e.pending {
		if f.Consumed() {
			continue
		}
		if err := e.WaitFence(f); err != nil {
			log.Printf("c2d: flush: %v", err)
		}
	}
	e.pending = e.pending[:0]
	e.surfs.DestroyAll(creator{nat: e.nat})
	e.state = backend.Initialized
	return nil
}

// Free releases every surface and the process-wide driver reference.
func (e *engine) Free() {
	e.mu.Lock()
	e.surfs.DestroyAll(creator{nat: e.nat})
	e.state = backend.Destroyed
	e.mu.Unlock()
	releaseDriver()
}
