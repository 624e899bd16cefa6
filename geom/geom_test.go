// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package geom_test

import (
	"testing"

	"github.com/gviegas/vconv/geom"
)

func TestIntersectAndOverlap(t *testing.T) {
	a := geom.Rect{X: 0, Y: 0, W: 10, H: 10}
	b := geom.Rect{X: 5, Y: 5, W: 10, H: 10}
	want := geom.Rect{X: 5, Y: 5, W: 5, H: 5}
	if got := geom.Intersect(a, b); got != want {
		t.Fatalf("Intersect:\nhave %+v\nwant %+v", got, want)
	}
	if got := geom.Overlap(a, b); got != 25 {
		t.Fatalf("Overlap:\nhave %d\nwant 25", got)
	}
	c := geom.Rect{X: 20, Y: 20, W: 5, H: 5}
	if got := geom.Intersect(a, c); !got.Empty() {
		t.Fatalf("Intersect of disjoint rects should be empty, got %+v", got)
	}
}

func TestQuadFromRectRoundTrip(t *testing.T) {
	r := geom.Rect{X: 3, Y: 4, W: 16, H: 32}
	q := geom.QuadFromRect(r)
	if !q.IsAxisAligned() {
		t.Fatal("QuadFromRect should always be axis-aligned")
	}
	if got := q.Rect(); got != r {
		t.Fatalf("Quad.Rect round trip:\nhave %+v\nwant %+v", got, r)
	}
}

func TestResolveDestZeroSize(t *testing.T) {
	full := geom.ResolveDest(geom.Rect{}, 640, 480, false)
	if full != (geom.Rect{X: 0, Y: 0, W: 640, H: 480}) {
		t.Fatalf("ResolveDest no-swap:\nhave %+v\nwant full frame", full)
	}
	swapped := geom.ResolveDest(geom.Rect{}, 640, 480, true)
	if swapped.W == 0 || swapped.H == 0 {
		t.Fatalf("ResolveDest swap should not be empty: %+v", swapped)
	}
	if swapped.X < 0 || swapped.Y < 0 || swapped.X+swapped.W > 640 || swapped.Y+swapped.H > 480 {
		t.Fatalf("ResolveDest swap should be centered within output bounds: %+v", swapped)
	}
}

func TestResolveDestNonZeroUnchanged(t *testing.T) {
	dst := geom.Rect{X: 1, Y: 2, W: 3, H: 4}
	if got := geom.ResolveDest(dst, 640, 480, false); got != dst {
		t.Fatalf("ResolveDest should not modify a non-zero rect:\nhave %+v\nwant %+v", got, dst)
	}
}
