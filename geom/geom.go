// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package geom defines the rectangle and quadrilateral types used to
// describe blit source/destination regions.
package geom

// Point is a single (x, y) coordinate in pixels.
type Point struct {
	X, Y int
}

// Rect is an axis-aligned rectangle in pixels.
type Rect struct {
	X, Y, W, H int
}

// Empty reports whether r covers no area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Area returns r.W * r.H.
func (r Rect) Area() int { return r.W * r.H }

// Intersect returns the intersection of a and b, which is empty
// (zero value) when a and b do not overlap.
func Intersect(a, b Rect) Rect {
	x0, y0 := max(a.X, b.X), max(a.Y, b.Y)
	x1, y1 := min(a.X+a.W, b.X+b.W), min(a.Y+a.H, b.Y+b.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Overlap returns the inclusion-exclusion overlap area of a and b:
// the area covered by both, used by the background-fill computation
// in backend/c2d to avoid double-subtracting regions where two
// target rectangles intersect.
func Overlap(a, b Rect) int { return Intersect(a, b).Area() }

// Quad is a quadrilateral described by four points, used for source
// regions that may not be axis-aligned (e.g. after a rotation has
// been folded into the source coordinates by a caller).
type Quad [4]Point

// QuadFromRect returns the quadrilateral with corners at r's axis-
// aligned bounds, in clockwise order starting at the top-left.
func QuadFromRect(r Rect) Quad {
	return Quad{
		{r.X, r.Y},
		{r.X + r.W, r.Y},
		{r.X + r.W, r.Y + r.H},
		{r.X, r.Y + r.H},
	}
}

// IsAxisAligned reports whether q forms an axis-aligned rectangle,
// i.e. whether it could have come from QuadFromRect.
func (q Quad) IsAxisAligned() bool {
	return q[0].Y == q[1].Y && q[1].X == q[2].X &&
		q[2].Y == q[3].Y && q[3].X == q[0].X &&
		q[0].X == q[3].X && q[1].Y == q[0].Y
}

// Rect returns the axis-aligned bounding rectangle of q.
// It is exact only when q.IsAxisAligned(); otherwise it is the
// smallest enclosing rectangle.
func (q Quad) Rect() Rect {
	x0, y0 := q[0].X, q[0].Y
	x1, y1 := q[0].X, q[0].Y
	for _, p := range q[1:] {
		x0, y0 = min(x0, p.X), min(y0, p.Y)
		x1, y1 = max(x1, p.X), max(y1, p.Y)
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// ResolveDest replaces a zero-sized destination rectangle (w=0 or
// h=0) with the full output dimensions, or, when swap is set (a
// 90/270 rotation is pending), with an aspect-preserving rectangle
// centered within the output dimensions whose width and height are
// swapped relative to the un-rotated source. Non-zero rectangles are
// returned unchanged.
func ResolveDest(dst Rect, outW, outH int, swap bool) Rect {
	if dst.W != 0 && dst.H != 0 {
		return dst
	}
	if !swap {
		return Rect{X: 0, Y: 0, W: outW, H: outH}
	}
	w, h := outH, outW
	if w > outW {
		h = h * outW / w
		w = outW
	}
	if h > outH {
		w = w * outH / h
		h = outH
	}
	return Rect{X: (outW - w) / 2, Y: (outH - h) / 2, W: w, H: h}
}
