// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package surface is the surface manager: it maps a dmabuf file
// descriptor to a backend surface id, owning creation, update and
// destruction, and enforcing at most one live mapping per (fd, role)
// when caching is enabled.
//
// Each live surface is one *Record, indexed by fd and by id, where
// Record carries every field a caller might want (id, role, metadata,
// backend-native handle). Earlier revisions of this engine kept a second table,
// id -> gpu-address, alongside the fd table; the two drifted apart
// whenever one was updated without the other. Record folds both into
// one entry so there is only one place to keep consistent.
package surface

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gviegas/vconv/internal/bitm"
	"github.com/gviegas/vconv/pixfmt"
)

// Role is the purpose a surface serves within a composition.
type Role int

const (
	RoleInput Role = iota
	RoleOutput
	RoleBoth
)

// Meta is the frame metadata a surface is created from.
type Meta struct {
	Format       pixfmt.Format
	Width        int
	Height       int
	PlaneStrides []int
	PlaneOffsets []int64
}

// ErrMismatchedPlanes is returned by ValidateContiguous when a
// frame's planes are not laid out in one contiguous allocation, an
// assumption the C2D backend's GPU-address reconstruction depends
// on (see DESIGN.md).
var ErrMismatchedPlanes = errors.New("surface: planes are not contiguous within one allocation")

// ValidateContiguous checks that plane 0 starts at offset 0 and that
// every later plane's offset is not below the one before it. It does
// not check that a plane begins where the previous plane's bytes end,
// nor look at strides or heights. The C2D backend relies on this to
// derive a secondary plane's GPU address as plane0's address plus
// the offset, without a second GPU mapping call.
func ValidateContiguous(m Meta) error {
	if len(m.PlaneOffsets) == 0 {
		return nil
	}
	if m.PlaneOffsets[0] != 0 {
		return fmt.Errorf("%w: plane 0 offset %d != 0", ErrMismatchedPlanes, m.PlaneOffsets[0])
	}
	for i := 1; i < len(m.PlaneOffsets); i++ {
		if m.PlaneOffsets[i] < m.PlaneOffsets[i-1] {
			return fmt.Errorf("%w: plane %d offset %d precedes plane %d offset %d",
				ErrMismatchedPlanes, i, m.PlaneOffsets[i], i-1, m.PlaneOffsets[i-1])
		}
	}
	return nil
}

// Record is the full bookkeeping entry for one live surface.
type Record struct {
	ID     int
	FD     int
	Role   Role
	Meta   Meta
	Native any // backend-owned handle: GPU surface id, cv.Mat, etc.
}

// Creator creates, updates and destroys the backend-specific native
// resource a Record.Native value refers to. Each backend supplies
// its own implementation; Table only manages the fd/id bookkeeping.
type Creator interface {
	// Create maps fd to a new backend-native surface.
	Create(fd int, meta Meta, role Role, flags uint64) (native any, err error)
	// Update re-maps an existing native surface whose underlying
	// virtual address changed (same fd, remapped).
	Update(native any, meta Meta) error
	// Destroy releases a native surface.
	Destroy(native any)
}

// Table is the fd-keyed surface table described above.
type Table struct {
	mu    sync.Mutex
	byFD  map[int]*Record
	byID  map[int]*Record
	ids   bitm.Bitm[uint32]
	cache bool
}

// NewTable creates an empty surface table. cacheEnabled controls
// whether repeated use of the same fd reuses a Record (true) or
// creates a fresh one on every call (false); see SetCacheEnabled.
func NewTable(cacheEnabled bool) *Table {
	return &Table{
		byFD:  make(map[int]*Record),
		byID:  make(map[int]*Record),
		cache: cacheEnabled,
	}
}

// SetCacheEnabled toggles caching. When disabled, callers must
// Destroy each surface after use; Resolve will not hand back a
// previously created Record for the same fd.
func (t *Table) SetCacheEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = enabled
}

// Resolve implements retrieve_surface_id: if fd already has a live
// Record for the given role and caching is enabled, it is reused
// (re-created via Update if meta changed); otherwise a new surface
// is created via c and inserted.
func (t *Table) Resolve(c Creator, fd int, meta Meta, role Role, flags uint64) (id int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cache {
		if rec, ok := t.byFD[fd]; ok && rec.Role == role {
			old := rec.Meta
			if old.Format != meta.Format || old.Width != meta.Width || old.Height != meta.Height ||
				!slices.Equal(old.PlaneStrides, meta.PlaneStrides) || !slices.Equal(old.PlaneOffsets, meta.PlaneOffsets) {
				if err = c.Update(rec.Native, meta); err != nil {
					return 0, fmt.Errorf("surface: update fd=%d: %w", fd, err)
				}
				rec.Meta = meta
			}
			return rec.ID, nil
		}
	}

	native, err := c.Create(fd, meta, role, flags)
	if err != nil {
		return 0, fmt.Errorf("surface: create fd=%d: %w", fd, err)
	}
	id = t.ids.Take()
	rec := &Record{ID: id, FD: fd, Role: role, Meta: meta, Native: native}
	t.byID[id] = rec
	if t.cache {
		t.byFD[fd] = rec
	}
	return id, nil
}

// Get returns the Record for id.
func (t *Table) Get(id int) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[id]
	return rec, ok
}

// Destroy implements destroy_surface: it releases the native
// resource and removes id from the table.
func (t *Table) Destroy(c Creator, id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[id]
	if !ok {
		return
	}
	c.Destroy(rec.Native)
	delete(t.byID, id)
	if t.byFD[rec.FD] == rec {
		delete(t.byFD, rec.FD)
	}
	t.ids.Unset(id)
}

// DestroyAll implements destroy_all: every live surface is
// destroyed and the table is emptied. After this call Count is 0.
func (t *Table) DestroyAll(c Creator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, rec := range t.byID {
		c.Destroy(rec.Native)
		t.ids.Unset(id)
	}
	t.byID = make(map[int]*Record)
	t.byFD = make(map[int]*Record)
}

// Count returns the number of live surfaces.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
