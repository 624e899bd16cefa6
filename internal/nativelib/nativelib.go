// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package nativelib dlopens a platform-specific shared library and
// binds its exported C functions to Go function variables, without
// cgo. backend/c2d, backend/gles and backend/fastcv each wrap one
// vendor library (libC2D2.so, libIB2C.so, libfastcvopt.so) this way.
package nativelib

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// Library is one dlopen'd shared object.
type Library struct {
	handle uintptr
	path   string
}

// Open dlopens path with RTLD_NOW|RTLD_GLOBAL.
func Open(path string) (*Library, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("nativelib: dlopen %s: %w", path, err)
	}
	return &Library{handle: h, path: path}, nil
}

// Bind resolves the symbol named name within l and registers it
// behind fnPtr, which must be a pointer to a function variable whose
// signature matches the C function (e.g. var fn func(int32) int32;
// l.Bind(&fn, "c2dCreateSurface")). Calling the bound variable then
// calls into the native library.
func (l *Library) Bind(fnPtr any, name string) (err error) {
	sym, err := purego.Dlsym(l.handle, name)
	if err != nil {
		return fmt.Errorf("nativelib: dlsym %s in %s: %w", name, l.path, err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("nativelib: register %s in %s: %v", name, l.path, r)
		}
	}()
	purego.RegisterFunc(fnPtr, sym)
	return nil
}

// MustBind is Bind, panicking on failure. Backends use it for
// symbols they cannot operate without, at construction time.
func (l *Library) MustBind(fnPtr any, name string) {
	if err := l.Bind(fnPtr, name); err != nil {
		panic(err)
	}
}

// Close dlcloses l. l must not be used afterward.
func (l *Library) Close() error {
	if err := purego.Dlclose(l.handle); err != nil {
		return fmt.Errorf("nativelib: dlclose %s: %w", l.path, err)
	}
	return nil
}

// Path returns the path l was opened from.
func (l *Library) Path() string { return l.path }
