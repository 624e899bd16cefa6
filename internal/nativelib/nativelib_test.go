// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package nativelib_test

import (
	"testing"

	"github.com/gviegas/vconv/internal/nativelib"
)

func TestOpenMissingLibraryFails(t *testing.T) {
	if _, err := nativelib.Open("/nonexistent/libtotallymissing.so"); err == nil {
		t.Fatal("expected an error opening a library that does not exist")
	}
}
