// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fpgamem

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// devicePath is the kernel character device exposing the FPGA's MMIO
// window. It supports open/release/mmap only.
const devicePath = "/dev/axi_fpga_dev"

// mmapBacking implements Backing over a real mmap'd view of the FPGA
// device, using atomic load/store so that WriteWord acts as a full memory
// barrier and ReadWord never observes a torn or reordered write.
type mmapBacking struct {
	f    *os.File
	mem  []byte
	view []uint32
}

// Open opens and maps the FPGA device, returning a ready-to-use Window.
//
// The fd is mmap'd then immediately safe to close; the mapping remains
// valid until Close is called on the returned Window.
func Open() (*Window, error) {
	b, err := openMmap()
	if err != nil {
		return nil, err
	}
	return NewWindow(b), nil
}

func openMmap() (*mmapBacking, error) {
	f, err := os.OpenFile(devicePath, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrMmapFailed, devicePath, err)
	}
	mem, err := unix.Mmap(int(f.Fd()), 0, WindowBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrMmapFailed, devicePath, err)
	}
	return &mmapBacking{f: f, mem: mem, view: asUint32(mem)}, nil
}

// Close unmaps the device and closes the underlying file descriptor.
func (b *mmapBacking) Close() error {
	err := unix.Munmap(b.mem)
	if cerr := b.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *mmapBacking) ReadWord(byteOffset uint32) uint32 {
	return atomic.LoadUint32(&b.view[byteOffset/4])
}

func (b *mmapBacking) WriteWord(byteOffset uint32, v uint32) {
	atomic.StoreUint32(&b.view[byteOffset/4], v)
}

// asUint32 reinterprets an mmap'd byte slice as a []uint32 view without
// copying, mirroring host/pmem.Slice.Uint32 from the upstream library.
func asUint32(b []byte) []uint32 {
	if len(b)%4 != 0 {
		panic("fpgamem: mapped region is not word aligned")
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// Close closes the Window's underlying mapping, if it owns one.
func (w *Window) Close() error {
	if c, ok := w.b.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
