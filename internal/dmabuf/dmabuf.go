// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package dmabuf wraps the Linux DMA_BUF_IOCTL_SYNC ioctl, which
// every CPU-side path (overlay rasterization, the FastCV backend,
// the OpenCV backend) must bracket its reads/writes with: the
// underlying buffer may also be mapped by a GPU or hardware blitter
// that the kernel needs to fence against.
package dmabuf

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// dmaBufSyncFlags mirror linux/dma-buf.h.
const (
	syncRead  = 1 << 0
	syncWrite = 2 << 0
	syncRW    = syncRead | syncWrite
	syncStart = 0 << 2
	syncEnd   = 1 << 2
)

// ioctlSync is DMA_BUF_IOCTL_SYNC, computed from linux/dma-buf.h as
// _IOW('b', 0, struct dma_buf_sync) where dma_buf_sync is one u64.
const ioctlSync = 0x40086200

// syncArg mirrors struct dma_buf_sync { __u64 flags; }.
type syncArg struct {
	flags uint64
}

func ioctlSyncCall(fd int, flags uint64) error {
	arg := syncArg{flags: flags}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(ioctlSync), uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		return fmt.Errorf("dmabuf: sync ioctl fd=%d flags=%#x: %w", fd, flags, errno)
	}
	return nil
}

// SyncStart must be called before CPU code reads or writes a
// dmabuf-backed frame's memory, with write selecting read-only
// (false) or read-write (true) access.
func SyncStart(fd int, write bool) error {
	return ioctlSyncCall(fd, uint64(syncStart|access(write)))
}

// SyncEnd must be called after the CPU access SyncStart guarded,
// with the same write value.
func SyncEnd(fd int, write bool) error {
	return ioctlSyncCall(fd, uint64(syncEnd|access(write)))
}

func access(write bool) int {
	if write {
		return syncRW
	}
	return syncRead
}

// WithSync runs fn with SyncStart/SyncEnd bracketing it, returning
// whichever of the three errors occurs first.
func WithSync(fd int, write bool, fn func() error) error {
	if err := SyncStart(fd, write); err != nil {
		return err
	}
	err := fn()
	if endErr := SyncEnd(fd, write); endErr != nil && err == nil {
		err = endErr
	}
	return err
}
