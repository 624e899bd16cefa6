// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package overlay

import (
	"testing"
	"time"
)

func TestDateTimeInitSizesOffscreen(t *testing.T) {
	d := NewDateTime()
	if err := d.Init(map[string]any{"font_size": 16}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if d.off.w != roundUp128(16*6) {
		t.Fatalf("offscreen width = %d, want %d", d.off.w, roundUp128(16*6))
	}
	if d.off.h != 32 {
		t.Fatalf("offscreen height = %d, want 32", d.off.h)
	}
}

func TestDateTimeRedrawsOncePerSecond(t *testing.T) {
	d := NewDateTime()
	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	cur := base
	d.now = func() time.Time { return cur }
	if err := d.Init(map[string]any{"font_size": 16}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := d.UpdateAndDraw(); err != nil {
		t.Fatalf("UpdateAndDraw: %v", err)
	}
	if d.dirty {
		t.Fatal("dirty should clear after a draw")
	}

	if err := d.UpdateAndDraw(); err != nil {
		t.Fatalf("UpdateAndDraw: %v", err)
	}
	if d.lastSecond != base.Unix() {
		t.Fatal("lastSecond should be unaffected by a same-second call")
	}

	cur = base.Add(time.Second)
	if err := d.UpdateAndDraw(); err != nil {
		t.Fatalf("UpdateAndDraw: %v", err)
	}
	if d.lastSecond != cur.Unix() {
		t.Fatal("a new wall-clock second should advance lastSecond")
	}
}

func TestDateTimeGetDrawInfoReflectsOffscreenSize(t *testing.T) {
	d := NewDateTime()
	d.now = func() time.Time { return time.Unix(0, 0) }
	if err := d.Init(map[string]any{"font_size": 16, "x": 5, "y": 7}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	infos := d.GetDrawInfo(100, 100)
	if len(infos) != 1 {
		t.Fatalf("expected one DrawInfo, got %d", len(infos))
	}
	if infos[0].Rect.X != 5 || infos[0].Rect.Y != 7 {
		t.Fatalf("DrawInfo rect origin = %+v, want (5,7)", infos[0].Rect)
	}
	if infos[0].Rect.W != d.off.w || infos[0].Rect.H != d.off.h {
		t.Fatalf("DrawInfo rect size = %dx%d, want %dx%d", infos[0].Rect.W, infos[0].Rect.H, d.off.w, d.off.h)
	}
}

func TestUserTextSplitsLines(t *testing.T) {
	u := NewUserText()
	if err := u.Init(map[string]any{"font_size": 10, "text": "line one\nline two\nline three"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(u.lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(u.lines))
	}
	if u.off.h != 10*3 {
		t.Fatalf("offscreen height = %d, want %d", u.off.h, 10*3)
	}
}

func TestUserTextReinitsOnLineCountChange(t *testing.T) {
	u := NewUserText()
	if err := u.Init(map[string]any{"font_size": 10, "text": "one line"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	firstH := u.off.h
	if err := u.UpdateParams(map[string]any{"text": "one\ntwo"}); err != nil {
		t.Fatalf("UpdateParams: %v", err)
	}
	if u.off.h == firstH {
		t.Fatal("offscreen height should grow when line count increases")
	}
	if len(u.lines) != 2 {
		t.Fatalf("expected 2 lines after update, got %d", len(u.lines))
	}
}

func TestUserTextUpdateAndDrawClearsDirty(t *testing.T) {
	u := NewUserText()
	if err := u.Init(map[string]any{"font_size": 10, "text": "hello"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !u.dirty {
		t.Fatal("Init should leave the item dirty")
	}
	if err := u.UpdateAndDraw(); err != nil {
		t.Fatalf("UpdateAndDraw: %v", err)
	}
	if u.dirty {
		t.Fatal("UpdateAndDraw should clear dirty")
	}
}
