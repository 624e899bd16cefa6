// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package gles implements backend.Engine as a thin adapter over the
// external IB2C engine (libIB2C.so), dlopen'd through
// internal/nativelib. Unlike c2d, gles has no composition cache: it
// executes compositions strictly in submitted order, tracking async
// fences in a guarded pending list that Flush drains.
package gles

import (
	"fmt"
	"log"
	"sync"

	"github.com/gviegas/vconv/backend"
	"github.com/gviegas/vconv/frame"
	"github.com/gviegas/vconv/internal/nativelib"
	"github.com/gviegas/vconv/surface"
)

// Object mirrors the IB2C engine's per-region draw entry: integer
// source/destination rects, rotation in whole degrees, alpha, and
// HFlip/VFlip config bits.
type Object struct {
	SurfaceID              int
	SrcX, SrcY, SrcW, SrcH int
	DstX, DstY, DstW, DstH int
	RotateDeg              int
	Alpha                  uint8
	HFlip, VFlip           bool
}

// Tuple is one (output, background, objects) entry in the vector
// Compose submits to the native engine.
type Tuple struct {
	OutputID        int
	BGColor         uint32
	ClearBackground bool
	Normalize       [4]float64
	Objects         []Object
}

// Native is the set of IB2C entry points bound from libIB2C.so.
type Native struct {
	CreateSurface  func(fd int32, w, h, format int32) int32
	DestroySurface func(id int32) int32
	// Compose submits tuples (passed as an opaque pointer the real
	// binding would marshal into IB2C's native vector type) and
	// returns a fence id when sync is false, or 0 when sync is true
	// (the call already blocked until completion).
	Compose func(tuples uintptr, n int32, sync bool) int64
	Finish  func(fenceID int64) int32
}

func bindNative(lib *nativelib.Library) (*Native, error) {
	n := &Native{}
	binds := []struct {
		ptr  any
		name string
	}{
		{&n.CreateSurface, "ib2cCreateSurface"},
		{&n.DestroySurface, "ib2cDestroySurface"},
		{&n.Compose, "ib2cCompose"},
		{&n.Finish, "ib2cFinish"},
	}
	for _, b := range binds {
		if err := lib.Bind(b.ptr, b.name); err != nil {
			return nil, err
		}
	}
	return n, nil
}

const libPath = "libIB2C.so"

type family struct{}

func (family) Name() string { return "gles" }

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
	return &engine{
		lib:   lib,
		nat:   nat,
		surfs: surface.NewTable(settings.CacheEnabled),
		state: backend.Initialized,
	}, nil
}

func init() { backend.Register(family{}) }

type creator struct{ nat *Native }

func (c creator) Create(fd int, meta surface.Meta, role surface.Role, flags uint64) (any, error) {
	id := c.nat.CreateSurface(int32(fd), int32(meta.Width), int32(meta.Height), int32(meta.Format))
	if id < 0 {
		return nil, fmt.Errorf("gles: ib2cCreateSurface failed for fd %d", fd)
	}
	return id, nil
}

func (c creator) Update(native any, meta surface.Meta) error {
	// No IB2C update entry point is bound, so this is a no-op: a
	// Resolve of the same fd with changed metadata keeps the native
	// surface created from the old metadata. A different fd always
	// goes through Create.
	return nil
}

func (c creator) Destroy(native any) {
	c.nat.DestroySurface(native.(int32))
}

type engine struct {
	mu      sync.Mutex
	lib     *nativelib.Library
	nat     *Native
	surfs   *surface.Table
	state   backend.State
	pending []*backend.Fence
}

func (e *engine) State() backend.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Compose builds one Tuple per composition, in submitted order (no
// reordering, unlike c2d), and issues a single native Compose call.
func (e *engine) Compose(comps []frame.Composition, fence *backend.Fence) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = backend.Running

	c := creator{nat: e.nat}
	tuples := make([]Tuple, 0, len(comps))
	for i := range comps {
		comp := &comps[i]
		outID, err := e.surfs.Resolve(c, comp.Output.FD, surfaceMetaOf(comp.Output), surface.RoleOutput, comp.Flags)
		if err != nil {
			return &backend.Error{Kind: backend.ResourceExhausted, Op: "compose", Err: err}
		}
		tup := Tuple{
			OutputID:        outID,
			BGColor:         comp.Background,
			ClearBackground: comp.ClearBackground,
			Normalize:       comp.Scales,
		}
		for b := range comp.Blits {
			blit := &comp.Blits[b]
			srcID, err := e.surfs.Resolve(c, blit.Source.FD, surfaceMetaOf(blit.Source), surface.RoleInput, blit.Flags)
			if err != nil {
				return &backend.Error{Kind: backend.ResourceExhausted, Op: "compose", Err: err}
			}
			for _, region := range blit.EffectiveRegions(comp.Output) {
				tup.Objects = append(tup.Objects, objectFrom(srcID, blit, region))
			}
		}
		tuples = append(tuples, tup)
	}

	sync := fence == nil
	id := e.nat.Compose(0, int32(len(tuples)), sync)
	if !sync {
		fence.Payload = id
		e.pending = append(e.pending, fence)
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

func objectFrom(srcID int, blit *frame.Blit, region frame.Region) Object {
	src := region.Src.Rect()
	o := Object{
		SurfaceID: srcID,
		SrcX: src.X, SrcY: src.Y, SrcW: src.W, SrcH: src.H,
		DstX: region.Dst.X, DstY: region.Dst.Y, DstW: region.Dst.W, DstH: region.Dst.H,
		Alpha: blit.Alpha,
	}
	o.RotateDeg = int(blit.Rotate)
	switch blit.Flip {
	case frame.FlipH:
		o.HFlip = true
	case frame.FlipV:
		o.VFlip = true
	case frame.FlipBoth:
		o.HFlip, o.VFlip = true, true
	}
	return o
}

// WaitFence blocks on f's IB2C fence id via Finish. A repeat call on
// an already-consumed fence returns Closed rather than waiting (or
// silently succeeding) again.
func (e *engine) WaitFence(f *backend.Fence) error {
	if f.MarkConsumed() {
		return &backend.Error{Kind: backend.Closed, Op: "wait_fence", Err: fmt.Errorf("gles: fence already consumed")}
	}
	if f.State() != backend.FenceSignaled {
		id, _ := f.Payload.(int64)
		if e.nat.Finish(id) != 0 {
			return &backend.Error{Kind: backend.Timeout, Op: "wait_fence", Err: fmt.Errorf("gles: finish failed for fence %d", id)}
		}
		f.Signal()
	}
	return nil
}

// Flush drains the pending-fence list, logging individual finish
// failures but always returning nil. Fences the caller already
// waited directly are skipped rather than re-waited.
func (e *engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = backend.Flushing
	for _, f := range e.pending {
		if f.Consumed() {
			continue
		}
		if err := e.WaitFence(f); err != nil {
			log.Printf("gles: flush: %v", err)
		}
	}
	e.pending = e.pending[:0]
	e.surfs.DestroyAll(creator{nat: e.nat})
	e.state = backend.Initialized
	return nil
}

func (e *engine) Free() {
	e.mu.Lock()
	e.surfs.DestroyAll(creator{nat: e.nat})
	e.state = backend.Destroyed
	e.mu.Unlock()
	e.lib.Close()
}
