// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package stage_test

import (
	"testing"

	"github.com/gviegas/vconv/stage"
)

func TestFetchGrowsOnDemand(t *testing.T) {
	var p stage.Pool
	b1 := p.Fetch(1024)
	if len(b1.Bytes) != 1024 {
		t.Fatalf("expected 1024 bytes, got %d", len(b1.Bytes))
	}
	if p.SlotCount() != 1 {
		t.Fatalf("expected one slot, got %d", p.SlotCount())
	}
	b2 := p.Fetch(2048)
	if p.SlotCount() != 2 {
		t.Fatalf("expected two slots while both buffers are in use, got %d", p.SlotCount())
	}
	if p.InUseCount() != 2 {
		t.Fatalf("expected two in-use slots, got %d", p.InUseCount())
	}
	p.Release(b1)
	p.Release(b2)
	if p.InUseCount() != 0 {
		t.Fatalf("expected zero in-use slots after release, got %d", p.InUseCount())
	}
}

func TestFetchReusesFreeSlot(t *testing.T) {
	var p stage.Pool
	b1 := p.Fetch(4096)
	p.Release(b1)
	b2 := p.Fetch(2048)
	if p.SlotCount() != 1 {
		t.Fatalf("expected the free slot to be reused, got %d slots", p.SlotCount())
	}
	if len(b2.Bytes) != 2048 {
		t.Fatalf("expected 2048 bytes, got %d", len(b2.Bytes))
	}
}

func TestFetchGrowsUndersizedFreeSlot(t *testing.T) {
	var p stage.Pool
	b1 := p.Fetch(512)
	p.Release(b1)
	b2 := p.Fetch(8192)
	if p.SlotCount() != 1 {
		t.Fatalf("expected the undersized slot to grow in place, got %d slots", p.SlotCount())
	}
	if len(b2.Bytes) != 8192 {
		t.Fatalf("expected 8192 bytes, got %d", len(b2.Bytes))
	}
}

func TestFetchNeverShrinks(t *testing.T) {
	var p stage.Pool
	b := p.Fetch(8192)
	p.Release(b)
	b2 := p.Fetch(1024)
	if p.SlotCount() != 1 {
		t.Fatalf("expected reuse of the larger slot, got %d slots", p.SlotCount())
	}
	if cap(b2.Bytes) < 8192 {
		t.Fatalf("reused slot should not shrink its backing capacity, cap=%d", cap(b2.Bytes))
	}
	if len(b2.Bytes) != 1024 {
		t.Fatalf("Bytes should be sliced to the requested length, got %d", len(b2.Bytes))
	}
}
