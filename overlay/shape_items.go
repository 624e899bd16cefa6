// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package overlay

import (
	"image"
	"image/color"
	"math"
	"unsafe"

	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/vector"

	"github.com/gviegas/vconv/frame"
	"github.com/gviegas/vconv/geom"
)

// StaticImage never redraws unless the user-supplied blob itself
// changes pointer or length; it holds a pre-decoded ABGR byte slice
// and crops a source rectangle out of it on demand.
type StaticImage struct {
	base
	blob        []byte
	blobW       int
	blobH       int
	srcRect     geom.Rect
	lastPtr     unsafe.Pointer
	lastLen     int
	off         offscreen
}

func NewStaticImage() *StaticImage { return &StaticImage{} }

func (s *StaticImage) Init(params map[string]any) error {
	s.x, s.y = intParam(params, "x", 0), intParam(params, "y", 0)
	return s.UpdateParams(params)
}

func (s *StaticImage) UpdateParams(params map[string]any) error {
	if blob, ok := params["blob"].([]byte); ok {
		s.blob = blob
		s.blobW = intParam(params, "blob_w", s.blobW)
		s.blobH = intParam(params, "blob_h", s.blobH)
	}
	if r, ok := params["src_rect"].(geom.Rect); ok {
		s.srcRect = r
	}
	s.x, s.y = intParam(params, "x", s.x), intParam(params, "y", s.y)

	var ptr unsafe.Pointer
	if len(s.blob) > 0 {
		ptr = unsafe.Pointer(&s.blob[0])
	}
	if ptr != s.lastPtr || len(s.blob) != s.lastLen {
		s.lastPtr, s.lastLen = ptr, len(s.blob)
		s.markDirty()
	}
	return nil
}

func (s *StaticImage) UpdateAndDraw() error {
	if !s.dirty {
		return nil
	}
	w, h := s.srcRect.W, s.srcRect.H
	if w <= 0 || h <= 0 {
		w, h = s.blobW, s.blobH
	}
	s.off = newOffscreen(w, h, 4)

	// ABGR source -> RGBA offscreen, channel-swapped per row.
	for row := 0; row < h; row++ {
		srow := (s.srcRect.Y + row) * s.blobW * 4
		drow := row * s.off.stride
		for col := 0; col < w; col++ {
			si := srow + (s.srcRect.X+col)*4
			di := drow + col*4
			if si+4 > len(s.blob) || di+4 > len(s.off.pix) {
				continue
			}
			a, b, g, r := s.blob[si], s.blob[si+1], s.blob[si+2], s.blob[si+3]
			s.off.pix[di], s.off.pix[di+1], s.off.pix[di+2], s.off.pix[di+3] = r, g, b, a
		}
	}
	s.clearDirty()
	return nil
}

func (s *StaticImage) GetDrawInfo(targetW, targetH int) []DrawInfo {
	return []DrawInfo{{SurfaceID: 0, Rect: geom.Rect{X: s.x, Y: s.y, W: s.off.w, H: s.off.h}, Kernel: "overlay_argb_blend"}}
}

func (s *StaticImage) Destroy() {}

func (s *StaticImage) offscreenVideo() *frame.Video { return s.off.video(offscreenFormat) }

// Stroke/label sizing constants for BoundingBox. The spec names
// these as kBoxBuffWidth/kTextPercent without giving values; these
// are this implementation's Open Question decision (see DESIGN.md).
const (
	kBoxBuffWidth  = 256
	kTextPercent   = 20
	baseStrokePx   = 2
)

// BoundingBox rasterizes a rectangle outline into one offscreen
// surface and its label text into a second, smaller one.
type BoundingBox struct {
	base
	itemW, itemH   int
	strokeRequest  int
	label          string
	boxOff         offscreen
	labelOff       offscreen
}

func NewBoundingBox() *BoundingBox { return &BoundingBox{} }

func (bb *BoundingBox) Init(params map[string]any) error {
	bb.x, bb.y = intParam(params, "x", 0), intParam(params, "y", 0)
	bb.itemW, bb.itemH = intParam(params, "item_w", 1), intParam(params, "item_h", 1)
	bb.strokeRequest = intParam(params, "stroke_width", 0)
	bb.label, _ = params["label"].(string)
	bb.boxOff = newOffscreen(kBoxBuffWidth, kBoxBuffWidth*bb.itemH/max(bb.itemW, 1), 4)
	bb.markDirty()
	return nil
}

func (bb *BoundingBox) UpdateParams(params map[string]any) error {
	bb.x, bb.y = intParam(params, "x", bb.x), intParam(params, "y", bb.y)
	if label, ok := params["label"].(string); ok && label != bb.label {
		bb.label = label
		bb.markDirty()
	}
	if v, ok := params["stroke_width"].(int); ok && v != bb.strokeRequest {
		bb.strokeRequest = v
		bb.markDirty()
	}
	return nil
}

// strokeWidth is max(user-request, ceil(baseStroke * offscreen_w /
// item_w)): the rendered stroke scales with the offscreen surface
// even when the caller requests a thinner one.
func (bb *BoundingBox) strokeWidth() int {
	derived := int(math.Ceil(float64(baseStrokePx*bb.boxOff.w) / float64(max(bb.itemW, 1))))
	if bb.strokeRequest > derived {
		return bb.strokeRequest
	}
	return derived
}

func (bb *BoundingBox) UpdateAndDraw() error {
	if !bb.dirty {
		return nil
	}
	bb.boxOff.clear()
	strokeRect(rgbaImage(&bb.boxOff), 0, 0, bb.boxOff.w, bb.boxOff.h, bb.strokeWidth(), color.White)

	labelW := roundUp128(max(len(bb.label)*7, 1))
	labelH := 13
	bb.labelOff = newOffscreen(labelW, labelH, 4)
	drawLeftLine(rgbaImage(&bb.labelOff), basicfont.Face7x13, bb.label, 0, labelH-2)

	bb.clearDirty()
	return nil
}

func (bb *BoundingBox) GetDrawInfo(targetW, targetH int) []DrawInfo {
	boxRect := geom.Rect{X: bb.x, Y: bb.y, W: bb.itemW, H: bb.itemH}
	labelW := targetW * kTextPercent / 100
	margin := 2
	labelRect := geom.Rect{X: bb.x + margin, Y: bb.y + margin, W: labelW, H: 13}
	return []DrawInfo{
		{SurfaceID: 0, Rect: boxRect, Kernel: "overlay_argb_blend"},
		{SurfaceID: 1, Rect: labelRect, Kernel: "overlay_argb_blend"},
	}
}

func (bb *BoundingBox) Destroy() {}

// offscreenVideo returns the box outline surface; GetDrawInfo's
// second rectangle (the label) is composited from labelOff, fetched
// through LabelVideo.
func (bb *BoundingBox) offscreenVideo() *frame.Video { return bb.boxOff.video(offscreenFormat) }

// LabelVideo exposes the label offscreen surface; Manager.Apply
// composites it into GetDrawInfo's second rectangle (SurfaceID 1).
func (bb *BoundingBox) LabelVideo() *frame.Video { return bb.labelOff.video(offscreenFormat) }

// strokeRect draws a rectangular outline of the given stroke width
// using two nested, oppositely-wound vector paths: the outer
// rectangle clockwise, the inner one counter-clockwise, so that
// vector.Rasterizer's non-zero winding fill cancels the interior and
// leaves only the ring. This is the non-zero-only package's
// equivalent of an even-odd "hole" fill.
func strokeRect(dst *image.RGBA, x, y, w, h, stroke int, c color.Color) {
	if stroke <= 0 {
		stroke = 1
	}
	z := vector.NewRasterizer(w, h)
	ox0, oy0, ox1, oy1 := float32(x), float32(y), float32(x+w), float32(y+h)
	z.MoveTo(ox0, oy0)
	z.LineTo(ox1, oy0)
	z.LineTo(ox1, oy1)
	z.LineTo(ox0, oy1)
	z.ClosePath()

	ix0, iy0 := ox0+float32(stroke), oy0+float32(stroke)
	ix1, iy1 := ox1-float32(stroke), oy1-float32(stroke)
	if ix1 > ix0 && iy1 > iy0 {
		z.MoveTo(ix0, iy1)
		z.LineTo(ix1, iy1)
		z.LineTo(ix1, iy0)
		z.LineTo(ix0, iy0)
		z.ClosePath()
	}
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// fillPolygon fills pts (clockwise) as one solid shape.
func fillPolygon(dst *image.RGBA, pts []geom.Point, c color.Color) {
	if len(pts) < 3 {
		return
	}
	z := vector.NewRasterizer(dst.Bounds().Dx(), dst.Bounds().Dy())
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// fillRingPolygon fills the whole surface, then punches out inner
// (clockwise-wound, reversed here to counter-clockwise) to leave a
// hole, the same winding-cancellation trick strokeRect uses.
func fillRingPolygon(dst *image.RGBA, w, h int, inner []geom.Point, c color.Color) {
	z := vector.NewRasterizer(w, h)
	z.MoveTo(0, 0)
	z.LineTo(float32(w), 0)
	z.LineTo(float32(w), float32(h))
	z.LineTo(0, float32(h))
	z.ClosePath()
	if len(inner) >= 3 {
		z.MoveTo(float32(inner[len(inner)-1].X), float32(inner[len(inner)-1].Y))
		for i := len(inner) - 2; i >= 0; i-- {
			z.LineTo(float32(inner[i].X), float32(inner[i].Y))
		}
		z.ClosePath()
	}
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

func circlePoints(cx, cy, r float64, segments int) []geom.Point {
	pts := make([]geom.Point, segments)
	for i := 0; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		pts[i] = geom.Point{X: int(cx + r*math.Cos(a)), Y: int(cy + r*math.Sin(a))}
	}
	return pts
}

// MaskKind selects one of PrivacyMask's six shapes.
type MaskKind int

const (
	MaskRect MaskKind = iota
	MaskInverseRect
	MaskCircle
	MaskInverseCircle
	MaskPolygon
	MaskInversePolygon
)

// kMaskBoxBufWidth bounds PrivacyMask's offscreen width: the
// offscreen surface is min(item_w, kMaskBoxBufWidth) rounded up to
// 128. The constant's value is an Open Question decision recorded
// in DESIGN.md.
const kMaskBoxBufWidth = 512

// PrivacyMask paints a solid (or inverse) shape used to redact part
// of the output frame.
type PrivacyMask struct {
	base
	kind     MaskKind
	itemW    int
	itemH    int
	maskRect geom.Rect
	polygon  []geom.Point
	off      offscreen
}

func NewPrivacyMask() *PrivacyMask { return &PrivacyMask{} }

func (p *PrivacyMask) Init(params map[string]any) error {
	p.x, p.y = intParam(params, "x", 0), intParam(params, "y", 0)
	p.itemW = intParam(params, "item_w", 1)
	p.itemH = intParam(params, "item_h", p.itemW)
	p.maskRect = geom.Rect{W: p.itemW, H: p.itemH}
	if r, ok := params["rect"].(geom.Rect); ok {
		p.maskRect = r
	}
	if k, ok := params["kind"].(MaskKind); ok {
		p.kind = k
	}
	if poly, ok := params["polygon"].([]geom.Point); ok {
		p.polygon = poly
	}
	w := roundUp128(min(p.itemW, kMaskBoxBufWidth))
	p.off = newOffscreen(w, w, 4)
	p.markDirty()
	return nil
}

func (p *PrivacyMask) UpdateParams(params map[string]any) error {
	if k, ok := params["kind"].(MaskKind); ok && k != p.kind {
		p.kind = k
		p.markDirty()
	}
	if r, ok := params["rect"].(geom.Rect); ok {
		p.maskRect = r
		p.markDirty()
	}
	if poly, ok := params["polygon"].([]geom.Point); ok {
		p.polygon = poly
		p.markDirty()
	}
	p.x, p.y = intParam(params, "x", p.x), intParam(params, "y", p.y)
	return nil
}

// scaledMaskRect maps maskRect from item-local coordinates into the
// (typically downscaled) offscreen surface.
func (p *PrivacyMask) scaledMaskRect() []geom.Point {
	scale := float64(p.off.w) / float64(max(p.itemW, 1))
	x0 := int(float64(p.maskRect.X) * scale)
	y0 := int(float64(p.maskRect.Y) * scale)
	x1 := int(float64(p.maskRect.X+p.maskRect.W) * scale)
	y1 := int(float64(p.maskRect.Y+p.maskRect.H) * scale)
	return []geom.Point{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}}
}

func (p *PrivacyMask) UpdateAndDraw() error {
	if !p.dirty {
		return nil
	}
	p.off.clear()
	img := rgbaImage(&p.off)
	w, h := float64(p.off.w), float64(p.off.h)
	black := color.Black

	switch p.kind {
	case MaskRect:
		fillPolygon(img, p.scaledMaskRect(), black)
	case MaskInverseRect:
		fillRingPolygon(img, p.off.w, p.off.h, p.scaledMaskRect(), black)
	case MaskCircle:
		fillPolygon(img, circlePoints(w/2, h/2, math.Min(w, h)/2, 32), black)
	case MaskInverseCircle:
		fillRingPolygon(img, p.off.w, p.off.h, circlePoints(w/2, h/2, math.Min(w, h)/2, 32), black)
	case MaskPolygon:
		fillPolygon(img, p.polygon, black)
	case MaskInversePolygon:
		fillRingPolygon(img, p.off.w, p.off.h, p.polygon, black)
	}
	p.clearDirty()
	return nil
}

func (p *PrivacyMask) GetDrawInfo(targetW, targetH int) []DrawInfo {
	return []DrawInfo{{SurfaceID: 0, Rect: geom.Rect{X: p.x, Y: p.y, W: p.off.w, H: p.off.h}, Kernel: "overlay_mask_blend"}}
}

func (p *PrivacyMask) Destroy() {}

func (p *PrivacyMask) offscreenVideo() *frame.Video { return p.off.video(offscreenFormat) }

// Graph draws up to 20 key points and 40 links between them, points
// with a negative coordinate are invariantly ignored.
type Graph struct {
	base
	itemW, itemH int
	offW, offH   int
	points       []geom.Point
	links        [][2]int
	off          offscreen
}

const (
	graphMaxPoints = 20
	graphMaxLinks  = 40
)

func NewGraph() *Graph { return &Graph{} }

func (g *Graph) Init(params map[string]any) error {
	g.x, g.y = intParam(params, "x", 0), intParam(params, "y", 0)
	g.itemW, g.itemH = intParam(params, "item_w", 1), intParam(params, "item_h", 1)
	g.offW = intParam(params, "offscreen_w", g.itemW)
	g.offH = g.itemH * g.offW / max(g.itemW, 1)
	g.off = newOffscreen(g.offW, g.offH, 4)
	return g.UpdateParams(params)
}

func (g *Graph) UpdateParams(params map[string]any) error {
	if pts, ok := params["points"].([]geom.Point); ok {
		if len(pts) > graphMaxPoints {
			pts = pts[:graphMaxPoints]
		}
		filtered := pts[:0:0]
		for _, p := range pts {
			if p.X < 0 || p.Y < 0 {
				continue
			}
			filtered = append(filtered, p)
		}
		g.points = filtered
	}
	if links, ok := params["links"].([][2]int); ok {
		if len(links) > graphMaxLinks {
			links = links[:graphMaxLinks]
		}
		g.links = links
	}
	g.markDirty()
	return nil
}

func (g *Graph) downscaleRatio() float64 {
	if g.offW == 0 {
		return 1
	}
	return float64(g.itemW) / float64(g.offW)
}

func (g *Graph) UpdateAndDraw() error {
	if !g.dirty {
		return nil
	}
	g.off.clear()
	img := rgbaImage(&g.off)
	ratio := g.downscaleRatio()
	white := color.White

	scaled := make([]geom.Point, len(g.points))
	for i, p := range g.points {
		scaled[i] = geom.Point{X: int(float64(p.X) / ratio), Y: int(float64(p.Y) / ratio)}
	}
	for _, link := range g.links {
		if link[0] < 0 || link[0] >= len(scaled) || link[1] < 0 || link[1] >= len(scaled) {
			continue
		}
		drawLine(img, scaled[link[0]], scaled[link[1]], white)
	}
	for _, p := range scaled {
		fillPolygon(img, circlePoints(float64(p.X), float64(p.Y), 3, 12), white)
	}
	g.clearDirty()
	return nil
}

func (g *Graph) GetDrawInfo(targetW, targetH int) []DrawInfo {
	return []DrawInfo{{SurfaceID: 0, Rect: geom.Rect{X: g.x, Y: g.y, W: g.itemW, H: g.itemH}, Kernel: "overlay_argb_blend"}}
}

func (g *Graph) Destroy() {}

func (g *Graph) offscreenVideo() *frame.Video { return g.off.video(offscreenFormat) }

// Arrow draws a line from start to end plus two fins angled +/- 0.3
// radians from the reverse direction.
type Arrow struct {
	base
	itemW, itemH int
	startX       int
	startY       int
	endX         int
	endY         int
	off          offscreen
}

// kBufferDiv sizes Arrow's offscreen surface as item/kBufferDiv,
// trading resolution for a smaller scratch allocation on a shape
// that is only ever a couple of thin lines.
const kBufferDiv = 2

const arrowFinLength = 10
const arrowFinAngle = 0.3 // radians

func NewArrow() *Arrow { return &Arrow{} }

func (a *Arrow) Init(params map[string]any) error {
	a.x, a.y = intParam(params, "x", 0), intParam(params, "y", 0)
	a.itemW, a.itemH = intParam(params, "item_w", 1), intParam(params, "item_h", 1)
	a.off = newOffscreen(max(a.itemW/kBufferDiv, 1), max(a.itemH/kBufferDiv, 1), 4)
	return a.UpdateParams(params)
}

func (a *Arrow) UpdateParams(params map[string]any) error {
	a.startX, a.startY = intParam(params, "start_x", a.startX), intParam(params, "start_y", a.startY)
	a.endX, a.endY = intParam(params, "end_x", a.endX), intParam(params, "end_y", a.endY)
	a.markDirty()
	return nil
}

func (a *Arrow) UpdateAndDraw() error {
	if !a.dirty {
		return nil
	}
	a.off.clear()
	img := rgbaImage(&a.off)
	white := color.White

	div := float64(kBufferDiv)
	start := geom.Point{X: int(float64(a.startX) / div), Y: int(float64(a.startY) / div)}
	end := geom.Point{X: int(float64(a.endX) / div), Y: int(float64(a.endY) / div)}
	drawLine(img, start, end, white)

	rev := math.Atan2(float64(start.Y-end.Y), float64(start.X-end.X))
	for _, sign := range []float64{1, -1} {
		ang := rev + sign*arrowFinAngle
		fin := geom.Point{
			X: end.X + int(arrowFinLength*math.Cos(ang)),
			Y: end.Y + int(arrowFinLength*math.Sin(ang)),
		}
		drawLine(img, end, fin, white)
	}
	a.clearDirty()
	return nil
}

func (a *Arrow) GetDrawInfo(targetW, targetH int) []DrawInfo {
	return []DrawInfo{{SurfaceID: 0, Rect: geom.Rect{X: a.x, Y: a.y, W: a.off.w, H: a.off.h}, Kernel: "overlay_argb_blend"}}
}

func (a *Arrow) Destroy() {}

func (a *Arrow) offscreenVideo() *frame.Video { return a.off.video(offscreenFormat) }

// drawLine rasterizes a one-pixel-wide line as a thin quadrilateral,
// since vector.Rasterizer only fills closed paths.
func drawLine(dst *image.RGBA, p0, p1 geom.Point, c color.Color) {
	dx, dy := float64(p1.X-p0.X), float64(p1.Y-p0.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*0.5, dx/length*0.5
	pts := []geom.Point{
		{X: p0.X + int(nx), Y: p0.Y + int(ny)},
		{X: p1.X + int(nx), Y: p1.Y + int(ny)},
		{X: p1.X - int(nx), Y: p1.Y - int(ny)},
		{X: p0.X - int(nx), Y: p0.Y - int(ny)},
	}
	fillPolygon(dst, pts, c)
}
