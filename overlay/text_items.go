// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package overlay

import (
	"image"
	"image/color"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/gviegas/vconv/frame"
	"github.com/gviegas/vconv/geom"
	"github.com/gviegas/vconv/pixfmt"
)

// offscreenFormat is the pixel format every item's CPU-side offscreen
// surface is rasterized in. The spec speaks of the surfaces as
// "ARGB"; RGBA8888 is the closest registered format and every item
// in this package standardizes on it (see DESIGN.md).
const offscreenFormat = pixfmt.RGBA8888

func rgbaImage(o *offscreen) *image.RGBA {
	return &image.RGBA{Pix: o.pix, Stride: o.stride, Rect: image.Rect(0, 0, o.w, o.h)}
}

func drawCenteredLine(dst *image.RGBA, face font.Face, s string, w, baselineY int) {
	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(color.White), Face: face}
	adv := drawer.MeasureString(s)
	x := (w - adv.Ceil()) / 2
	if x < 0 {
		x = 0
	}
	drawer.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(baselineY)}
	drawer.DrawString(s)
}

func drawLeftLine(dst *image.RGBA, face font.Face, s string, x, baselineY int) {
	drawer := &font.Drawer{Dst: dst, Src: image.NewUniform(color.White), Face: face}
	drawer.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(baselineY)}
	drawer.DrawString(s)
}

func intParam(params map[string]any, key string, def int) int {
	if v, ok := params[key].(int); ok {
		return v
	}
	return def
}

// DateTime redraws its offscreen surface at most once per wall-clock
// second: UpdateAndDraw redraws only on a new second (or after a
// re-Init) and does not consult the dirty flag.
type DateTime struct {
	base
	fontSize   int
	off        offscreen
	lastSecond int64
	now        func() time.Time
}

// NewDateTime returns a DateTime item. Its clock defaults to
// time.Now; tests substitute d.now directly (white-box).
func NewDateTime() *DateTime {
	return &DateTime{now: time.Now, lastSecond: -1}
}

func (d *DateTime) Init(params map[string]any) error {
	d.fontSize = intParam(params, "font_size", 16)
	d.x, d.y = intParam(params, "x", 0), intParam(params, "y", 0)
	w := roundUp128(d.fontSize * 6)
	h := d.fontSize * 2
	d.off = newOffscreen(w, h, 4)
	d.lastSecond = -1
	d.markDirty()
	return nil
}

func (d *DateTime) UpdateParams(params map[string]any) error {
	if v, ok := params["font_size"].(int); ok && v != d.fontSize {
		return d.Init(params)
	}
	d.x, d.y = intParam(params, "x", d.x), intParam(params, "y", d.y)
	d.markDirty()
	return nil
}

func (d *DateTime) UpdateAndDraw() error {
	now := d.now()
	sec := now.Unix()
	if sec == d.lastSecond {
		return nil
	}
	d.lastSecond = sec
	d.markDirty()

	d.off.clear()
	img := rgbaImage(&d.off)
	face := basicfont.Face7x13
	drawCenteredLine(img, face, now.Format("2006-01-02"), d.off.w, d.fontSize)
	drawCenteredLine(img, face, now.Format("15:04:05"), d.off.w, d.fontSize*2-2)
	d.clearDirty()
	return nil
}

func (d *DateTime) GetDrawInfo(targetW, targetH int) []DrawInfo {
	return []DrawInfo{{
		SurfaceID: 0,
		Rect:      geom.Rect{X: d.x, Y: d.y, W: d.off.w, H: d.off.h},
		Kernel:    "overlay_argb_blend",
	}}
}

func (d *DateTime) Destroy() {}

func (d *DateTime) offscreenVideo() *frame.Video { return d.off.video(offscreenFormat) }

// UserText rasterizes a multi-line, newline-separated string. It is
// dirty whenever Init/UpdateParams changed the text or item width.
type UserText struct {
	base
	fontSize int
	itemW    int
	lines    []string
	off      offscreen
}

func NewUserText() *UserText { return &UserText{} }

func (u *UserText) Init(params map[string]any) error {
	u.fontSize = intParam(params, "font_size", 16)
	u.itemW = intParam(params, "item_w", 0)
	u.x, u.y = intParam(params, "x", 0), intParam(params, "y", 0)
	text, _ := params["text"].(string)
	u.lines = strings.Split(text, "\n")

	w := roundUp128(max(u.fontSize*4, u.itemW))
	h := u.fontSize * len(u.lines)
	if h < u.fontSize {
		h = u.fontSize
	}
	u.off = newOffscreen(w, h, 4)
	u.markDirty()
	return nil
}

func (u *UserText) UpdateParams(params map[string]any) error {
	if text, ok := params["text"].(string); ok {
		lines := strings.Split(text, "\n")
		if len(lines) != len(u.lines) {
			return u.Init(params)
		}
		u.lines = lines
	}
	if v, ok := params["item_w"].(int); ok && v != u.itemW {
		return u.Init(params)
	}
	u.x, u.y = intParam(params, "x", u.x), intParam(params, "y", u.y)
	u.markDirty()
	return nil
}

func (u *UserText) UpdateAndDraw() error {
	if !u.dirty {
		return nil
	}
	u.off.clear()
	img := rgbaImage(&u.off)
	face := basicfont.Face7x13
	for i, line := range u.lines {
		drawLeftLine(img, face, line, 0, (i+1)*u.fontSize)
	}
	u.clearDirty()
	return nil
}

func (u *UserText) GetDrawInfo(targetW, targetH int) []DrawInfo {
	return []DrawInfo{{
		SurfaceID: 0,
		Rect:      geom.Rect{X: u.x, Y: u.y, W: u.off.w, H: u.off.h},
		Kernel:    "overlay_argb_blend",
	}}
}

func (u *UserText) Destroy() {}

func (u *UserText) offscreenVideo() *frame.Video { return u.off.video(offscreenFormat) }
