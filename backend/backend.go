// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package backend defines the uniform contract every concrete
// compositor backend (c2d, gles, fastcv, opencv) implements, plus
// the process-wide registry backends use to advertise themselves.
// The registry follows a driver.Driver/Register/Drivers style
// pattern: a concrete backend package registers a Family from its
// own init function, and callers pick one by name without the
// higher layer ever branching on backend identity past construction.
package backend

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gviegas/vconv/frame"
)

// State is the engine lifecycle: Uninitialized -> Initialized (on
// Open) -> Running (per Compose) -> Flushing (per Flush) ->
// Destroyed (on Free). Destroyed is terminal.
type State int

const (
	Uninitialized State = iota
	Initialized
	Running
	Flushing
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Flushing:
		return "flushing"
	case Destroyed:
		return "destroyed"
	default:
		return "state?"
	}
}

// Settings carries backend construction parameters. Fields not
// meaningful to a given backend are ignored by it.
type Settings struct {
	// CacheEnabled seeds the backend's surface.Table caching policy.
	CacheEnabled bool
	// MaxDrawObjects overrides the backend's default scratch
	// draw-object capacity (0 keeps the backend's own default).
	MaxDrawObjects int
	// Extra holds backend-specific settings not common enough to
	// warrant a dedicated field. None of the backends in this module
	// reads it; c2d, gles and fastcv open their native library from a
	// fixed name.
	Extra map[string]any
}

// FenceState is a Fence's lifecycle: Pending (produced by an async
// Compose) -> Signaled (consumed by exactly one WaitFence or Flush).
type FenceState int

const (
	FencePending FenceState = iota
	FenceSignaled
)

// Fence is an opaque handle returned by an async Compose call.
// Payload carries the backend-specific representation: C2D uses an
// array of output surface ids, GLES an integer handle. A Fence is
// owned by the caller once returned; WaitFence consumes it exactly
// once.
type Fence struct {
	Payload any
	state   FenceState
	waited  bool
}

// State reports f's current lifecycle state.
func (f *Fence) State() FenceState { return f.state }

// Signal marks f as signaled. Backends call this once the
// underlying wait completes, whether from WaitFence or from Flush
// draining the pending set. A synchronous backend may call Signal
// from within Compose itself, before the caller's first WaitFence
// call; State alone therefore cannot tell a fresh signaled fence
// from one already consumed by a prior WaitFence, which is what
// Consumed/MarkConsumed are for.
func (f *Fence) Signal() { f.state = FenceSignaled }

// Consumed reports whether WaitFence has already returned for f
// once before.
func (f *Fence) Consumed() bool { return f.waited }

// MarkConsumed records that a WaitFence call is consuming f and
// reports whether an earlier call already did so. A backend's
// WaitFence calls this first and returns a Closed error for a true
// result instead of waiting (or no-op succeeding) a second time.
func (f *Fence) MarkConsumed() (alreadyConsumed bool) {
	alreadyConsumed = f.waited
	f.waited = true
	return
}

// Kind classifies an Error.
type Kind int

const (
	InvalidArgument Kind = iota
	UnsupportedFormat
	ResourceExhausted
	DriverError
	Timeout
	Closed
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid argument"
	case UnsupportedFormat:
		return "unsupported format"
	case ResourceExhausted:
		return "resource exhausted"
	case DriverError:
		return "driver error"
	case Timeout:
		return "timeout"
	case Closed:
		return "closed"
	default:
		return "kind?"
	}
}

// Error is the error type every backend returns, carrying enough
// structure for callers to branch on failure category without
// string matching.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("backend: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrKind reports whether err is (or wraps) an *Error of the given
// Kind. It stands in for an errors.Is(err, backend.Timeout) style
// check, which cannot match on a Kind value alone.
func ErrKind(err error, k Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == k
	}
	return false
}

// Engine is the uniform contract every backend implements.
type Engine interface {
	// Compose executes comps in submitted order (except c2d, which
	// reorders by output resolution descending; see its package
	// docs). If fence is non-nil, Compose submits asynchronously and
	// fills *fence for the caller to wait on; if fence is nil,
	// Compose blocks until every composition has finished.
	Compose(comps []frame.Composition, fence *Fence) error
	// WaitFence blocks until f is signaled, then marks it Signaled.
	// A Fence that is already signaled but not yet waited returns nil
	// immediately; a second WaitFence on the same Fence returns a
	// Closed error.
	WaitFence(f *Fence) error
	// Flush waits for every pending fence and drops cached state
	// (surfaces, composition cache). Per-resource finish errors are
	// logged; Flush itself always returns nil so shutdown can
	// complete.
	Flush() error
	// Free releases every resource the engine owns. The engine must
	// not be used afterward.
	Free()
	// State reports the engine's current lifecycle state.
	State() State
}

// Family opens new Engine instances for one backend implementation.
type Family interface {
	// Open initializes the backend and returns a ready Engine.
	Open(settings Settings) (Engine, error)
	// Name identifies the family (e.g. "c2d", "gles", "fastcv",
	// "opencv"). Name must not cause the backend to be opened.
	Name() string
}

var (
	mu       sync.Mutex
	families []Family
)

// Register registers fam. Concrete backend packages call this
// exactly once from their own init function. A family with the same
// name already registered is replaced.
func Register(fam Family) {
	mu.Lock()
	defer mu.Unlock()
	for i := range families {
		if families[i].Name() == fam.Name() {
			families[i] = fam
			log.Printf("[!] backend family '%s' replaced", fam.Name())
			return
		}
	}
	families = append(families, fam)
	log.Printf("backend family '%s' registered", fam.Name())
}

// Families returns every registered Family.
func Families() []Family {
	mu.Lock()
	defer mu.Unlock()
	fams := make([]Family, len(families))
	copy(fams, families)
	return fams
}

// Lookup returns the registered Family with the given name.
func Lookup(name string) (Family, bool) {
	mu.Lock()
	defer mu.Unlock()
	for _, f := range families {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}
