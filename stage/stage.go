// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package stage is the stage buffer pool: a small set of reusable
// CPU scratch allocations that the FastCV backend borrows from for
// intermediate results (a color-converted copy, an unaligned-copy
// fix-up, a scratch row for chroma subsampling) during one Compose
// call, and returns once done.
//
// The pool never shrinks. A Fetch that finds no free slot large
// enough grows one in place (if a free slot exists but is
// undersized) or appends a brand new slot. Which slots are in use is
// tracked in an internal/bitm bitmap.
package stage

import (
	"sync"

	"github.com/gviegas/vconv/internal/bitm"
)

// Buffer is one scratch allocation handed out by a Pool. Bytes is
// guaranteed to have length equal to the n requested from Fetch
// (though its underlying capacity may be larger, left over from a
// previous, bigger Fetch of the same slot).
type Buffer struct {
	Bytes []byte
	index int
}

// Pool is the stage buffer pool. The zero value is an empty, usable
// pool.
type Pool struct {
	mu    sync.Mutex
	slots [][]byte
	inUse bitm.Bitm[uint32]
}

// Fetch returns a Buffer with at least n bytes of backing storage.
// Callers must call Release on the returned Buffer once finished
// with it; failing to do so leaks the slot for the lifetime of the
// Pool (no later Fetch will pick it up again).
func (p *Pool) Fetch(n int) *Buffer {
	if n <= 0 {
		panic("stage.Pool.Fetch: n <= 0")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	free := -1
	for i := range p.slots {
		if p.inUse.IsSet(i) {
			continue
		}
		if cap(p.slots[i]) >= n {
			free = i
			break
		}
		if free == -1 {
			free = i // undersized, but free to grow in place
		}
	}

	switch {
	case free == -1:
		free = len(p.slots)
		p.slots = append(p.slots, make([]byte, n))
		p.inUse.Grow(1)
	case cap(p.slots[free]) < n:
		p.slots[free] = make([]byte, n)
	default:
		p.slots[free] = p.slots[free][:n]
	}
	p.inUse.Set(free)
	return &Buffer{Bytes: p.slots[free], index: free}
}

// Release returns b to the pool, making its slot eligible for reuse
// by a future Fetch. b must not be used after Release returns.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse.Unset(b.index)
}

// SlotCount returns the number of backing slots the pool currently
// holds, in use or not. It exists for tests and diagnostics.
func (p *Pool) SlotCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// InUseCount returns the number of slots currently checked out.
func (p *Pool) InUseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse.Len() - p.inUse.Rem()
}
