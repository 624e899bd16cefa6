// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package backend_test

import (
	"errors"
	"testing"

	"github.com/gviegas/vconv/backend"
	"github.com/gviegas/vconv/frame"
)

type fakeEngine struct{ state backend.State }

func (f *fakeEngine) Compose(_ []frame.Composition, _ *backend.Fence) error { return nil }
func (f *fakeEngine) WaitFence(_ *backend.Fence) error                      { return nil }
func (f *fakeEngine) Flush() error                                          { return nil }
func (f *fakeEngine) Free()                                                 { f.state = backend.Destroyed }
func (f *fakeEngine) State() backend.State                                  { return f.state }

type fakeFamily struct{ name string }

func (f fakeFamily) Name() string { return f.name }
func (f fakeFamily) Open(backend.Settings) (backend.Engine, error) {
	return &fakeEngine{state: backend.Initialized}, nil
}

func TestRegisterAndLookup(t *testing.T) {
	backend.Register(fakeFamily{name: "test-fake"})
	fam, ok := backend.Lookup("test-fake")
	if !ok {
		t.Fatal("expected registered family to be found")
	}
	eng, err := fam.Open(backend.Settings{})
	if err != nil {
		t.Fatal(err)
	}
	if eng.State() != backend.Initialized {
		t.Fatalf("expected Initialized, got %v", eng.State())
	}
}

func TestRegisterReplacesSameName(t *testing.T) {
	backend.Register(fakeFamily{name: "test-dup"})
	before := len(backend.Families())
	backend.Register(fakeFamily{name: "test-dup"})
	if len(backend.Families()) != before {
		t.Fatalf("re-registering the same name should replace, not append: before=%d after=%d",
			before, len(backend.Families()))
	}
}

func TestFenceLifecycle(t *testing.T) {
	var f backend.Fence
	if f.State() != backend.FencePending {
		t.Fatal("new fence should start Pending")
	}
	f.Signal()
	if f.State() != backend.FenceSignaled {
		t.Fatal("Signal should move fence to Signaled")
	}
}

func TestFenceMarkConsumed(t *testing.T) {
	var f backend.Fence
	if f.Consumed() {
		t.Fatal("new fence should not report consumed")
	}
	if f.MarkConsumed() {
		t.Fatal("first MarkConsumed call should report not-already-consumed")
	}
	if !f.Consumed() {
		t.Fatal("Consumed should report true after MarkConsumed")
	}
	if !f.MarkConsumed() {
		t.Fatal("second MarkConsumed call should report already-consumed")
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := &backend.Error{Kind: backend.Timeout, Op: "wait_fence", Err: errors.New("deadline exceeded")}
	if !backend.ErrKind(err, backend.Timeout) {
		t.Fatal("expected ErrKind to match Timeout")
	}
	if backend.ErrKind(err, backend.DriverError) {
		t.Fatal("ErrKind should not match an unrelated Kind")
	}
	if !errors.Is(err, err.Err) && errors.Unwrap(err) != err.Err {
		t.Fatal("Error should unwrap to the wrapped error")
	}
}
