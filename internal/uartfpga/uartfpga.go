// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package uartfpga implements the half-duplex UART-over-FPGA command
// channel: a ≤12-byte command is framed into three 32-bit words in the
// FPGA's command buffer, a trigger bit is raised, and the caller busy-polls
// for completion.
//
// Bus mirrors conn/i2c.Bus: a single shared transport addressed per call by
// chain id. Dev mirrors conn/i2c.Dev, binding one chain id to produce a
// conn.Conn.
package uartfpga

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/asicdrv/bm1398/conn"
	"github.com/asicdrv/bm1398/host"
	"github.com/asicdrv/bm1398/internal/fpgamem"
)

// Direct register offsets for the command buffer and its trigger.
const (
	triggerOffset = 0x0C0
	data0Offset   = 0x0C4
	data1Offset   = 0x0C8
	data2Offset   = 0x0CC
)

const triggerBusy = uint32(1) << 31

// pollInterval and timeout are protocol constants, not tunables: the
// trigger bit is polled every 1µs and must clear within 10ms.
const (
	pollInterval = time.Microsecond
	timeout      = 10 * time.Millisecond
)

// ErrUartTimeout is returned when the trigger bit does not clear within
// timeout.
var ErrUartTimeout = errors.New("uartfpga: trigger did not clear before timeout")

// ErrInvalidFrame is returned for a command outside the 1..12 byte range.
var ErrInvalidFrame = errors.New("uartfpga: frame must be 1..12 bytes")

// Bus is the shared UART-over-FPGA transport for all chains on one window.
type Bus struct {
	win *fpgamem.Window
}

// NewBus wraps win as a Bus.
func NewBus(win *fpgamem.Window) *Bus {
	return &Bus{win: win}
}

// Send frames data (1..12 bytes) for chain and blocks until the FPGA
// acknowledges completion or the 10ms timeout elapses.
//
// No concurrency guard is provided at this layer; callers must serialize
// UART traffic per chain themselves.
func (b *Bus) Send(chain int, data []byte) error {
	if len(data) == 0 || len(data) > 12 {
		return fmt.Errorf("%w: got %d", ErrInvalidFrame, len(data))
	}
	offsets := [3]uint32{data0Offset, data1Offset, data2Offset}
	for i, off := range offsets {
		var group [4]byte
		start := i * 4
		for j := 0; j < 4; j++ {
			if idx := start + j; idx < len(data) {
				group[j] = data[idx]
			}
		}
		word := bswap32(binary.LittleEndian.Uint32(group[:]))
		if err := b.win.WriteWord(off, word); err != nil {
			return err
		}
	}

	trigger := triggerBusy | (uint32(chain&0xF) << 16)
	if err := b.win.WriteWord(triggerOffset, trigger); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		v, err := b.win.ReadWord(triggerOffset)
		if err != nil {
			return err
		}
		if v&triggerBusy == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("chain %d: %w", chain, ErrUartTimeout)
		}
		host.Nanospin(pollInterval)
	}
}

// bswap32 reverses the byte order of a 32-bit word, mirroring the
// memcpy-then-bswap assembly the protocol specifies for command words.
func bswap32(v uint32) uint32 {
	return (v&0x000000FF)<<24 | (v&0x0000FF00)<<8 | (v&0x00FF0000)>>8 | (v&0xFF000000)>>24
}

// Dev binds one chain id to Bus, producing a conn.Conn.
//
// Tx sends w as a command frame (r is unused: writes have no response at
// this layer, register reads go through the nonce FIFO instead, see
// internal/asicreg).
type Dev struct {
	Bus   *Bus
	Chain int
}

func (d *Dev) String() string {
	return fmt.Sprintf("uartfpga(chain %d)", d.Chain)
}

// Duplex implements conn.Conn. The command channel never returns data on
// this same Tx call, so it is modeled as half-duplex.
func (d *Dev) Duplex() conn.Duplex {
	return conn.Half
}

// Tx implements conn.Conn by sending w as a command frame for d.Chain.
func (d *Dev) Tx(w, r []byte) error {
	if len(r) != 0 {
		return fmt.Errorf("uartfpga: chain %d: read not supported on this channel, use internal/asicreg", d.Chain)
	}
	return d.Bus.Send(d.Chain, w)
}

var _ conn.Conn = (*Dev)(nil)
