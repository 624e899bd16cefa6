// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package dmabuf_test

import (
	"testing"

	"github.com/gviegas/vconv/internal/dmabuf"
)

// An invalid fd (-1) makes the DMA_BUF_IOCTL_SYNC ioctl fail with
// EBADF, which this test uses to confirm errors propagate rather than
// panicking or being silently swallowed.
func TestSyncOnNonDmabufFDFails(t *testing.T) {
	if err := dmabuf.SyncStart(-1, false); err == nil {
		t.Fatal("expected an error syncing an invalid fd")
	}
}

func TestWithSyncShortCircuitsOnStartError(t *testing.T) {
	called := false
	err := dmabuf.WithSync(-1, false, func() error {
		called = true
		return nil
	})
	if called {
		t.Fatal("callback should not run when SyncStart fails")
	}
	if err == nil {
		t.Fatal("expected SyncStart failure to short-circuit WithSync")
	}
}
