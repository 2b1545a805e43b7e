// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fpgamem exposes the FPGA's memory mapped register window as typed
// direct (byte offset) and indirect (logical index) accessors.
//
// The window is a fixed 5120-byte region backed by the kernel's
// "axi_fpga_dev" character device. Callers never see the raw bytes; they
// read and write 32-bit words either by byte offset (Direct) or by logical
// index through the fixed 110-entry map (Indirect).
package fpgamem

import (
	"errors"
	"fmt"
	"log"
)

// WindowBytes is the size of the FPGA's MMIO window.
const WindowBytes = 5120

// WindowWords is WindowBytes expressed in 32-bit words.
const WindowWords = WindowBytes / 4

// LogicalEntries is the number of entries in the indirect register map.
const LogicalEntries = 110

// ErrMmapFailed is returned when the device can't be opened or mapped.
var ErrMmapFailed = errors.New("fpgamem: mmap failed")

// ErrInvalidRegister is returned for an out-of-range direct offset or
// logical index.
var ErrInvalidRegister = errors.New("fpgamem: invalid register")

// logicalMap maps logical index -> word offset into the window.
//
// Modeled as data, not code: indices 0-17 are identity (offset==index)
// except 17, which aliases 16 (the work FIFO word) in the source table but
// must never be used as a FIFO continuation slot (see WriteLogical);
// indices 18-34 run offset=index+15; indices 35-109 run offset=index*2.
// Seven spec anchors are satisfied by this table: idx0=0, idx13=13, idx16=16,
// idx17=16, idx18=33, idx20=35, idx35=70.
var logicalMap = [LogicalEntries]uint32{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9,
	10, 11, 12, 13, 14, 15, 16, 16, 33, 34,
	35, 36, 37, 38, 39, 40, 41, 42, 43, 44,
	45, 46, 47, 48, 49, 70, 72, 74, 76, 78,
	80, 82, 84, 86, 88, 90, 92, 94, 96, 98,
	100, 102, 104, 106, 108, 110, 112, 114, 116, 118,
	120, 122, 124, 126, 128, 130, 132, 134, 136, 138,
	140, 142, 144, 146, 148, 150, 152, 154, 156, 158,
	160, 162, 164, 166, 168, 170, 172, 174, 176, 178,
	180, 182, 184, 186, 188, 190, 192, 194, 196, 198,
	200, 202, 204, 206, 208, 210, 212, 214, 216, 218,
}

// FifoLogical is the only logical index that may be used for work FIFO
// bursts. Logical 17 resolves to the same word but must never be used as a
// continuation (see §4.A/§4.H of the protocol this package implements).
const FifoLogical = 16

// Backing is the minimal word-addressable storage a Window maps onto.
//
// The production implementation (mmapBacking, see mmap_linux.go) wraps an
// mmap'd view of /dev/axi_fpga_dev with atomic loads/stores so that
// WriteWord acts as a full memory barrier. Tests substitute a plain
// in-memory array.
type Backing interface {
	// ReadWord reads the 32-bit word at byteOffset. byteOffset is guaranteed
	// to be a 4-byte-aligned value in [0, WindowBytes).
	ReadWord(byteOffset uint32) uint32
	// WriteWord writes v at byteOffset and must act as a full memory
	// barrier before returning, so that a subsequent ReadWord anywhere in
	// the window observes it.
	WriteWord(byteOffset uint32, v uint32)
}

// Window is a typed view over the FPGA register window.
type Window struct {
	b Backing
}

// NewWindow wraps b as a Window. b is typically an mmap'd device (see Open)
// or, in tests, a fake in-memory Backing.
func NewWindow(b Backing) *Window {
	return &Window{b: b}
}

// ReadWord reads the 32-bit word at the given byte offset.
func (w *Window) ReadWord(byteOffset uint32) (uint32, error) {
	if !validOffset(byteOffset) {
		return 0, fmt.Errorf("%w: direct offset %#x", ErrInvalidRegister, byteOffset)
	}
	return w.b.ReadWord(byteOffset), nil
}

// WriteWord writes v at the given byte offset.
func (w *Window) WriteWord(byteOffset uint32, v uint32) error {
	if !validOffset(byteOffset) {
		return fmt.Errorf("%w: direct offset %#x", ErrInvalidRegister, byteOffset)
	}
	w.b.WriteWord(byteOffset, v)
	return nil
}

// ReadLogical reads the word mapped by logical index idx.
func (w *Window) ReadLogical(idx int) (uint32, error) {
	off, err := logicalOffset(idx)
	if err != nil {
		return 0, err
	}
	return w.b.ReadWord(off), nil
}

// WriteLogical writes v to the word mapped by logical index idx.
//
// Using idx==17 is legal (it resolves to the same word as 16) but is almost
// certainly a mistake: the source never uses it for FIFO continuation, only
// 16 is valid there. A warning is logged on every use of 17.
func (w *Window) WriteLogical(idx int, v uint32) error {
	if idx == 17 {
		log.Printf("fpgamem: write to logical index 17 (aliases FIFO word, never valid as continuation)")
	}
	off, err := logicalOffset(idx)
	if err != nil {
		return err
	}
	w.b.WriteWord(off, v)
	return nil
}

func logicalOffset(idx int) (uint32, error) {
	if idx < 0 || idx >= LogicalEntries {
		return 0, fmt.Errorf("%w: logical index %d", ErrInvalidRegister, idx)
	}
	return logicalMap[idx] * 4, nil
}

func validOffset(byteOffset uint32) bool {
	return byteOffset < WindowBytes && byteOffset%4 == 0
}
