// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package asicreg

import (
	"errors"
	"fmt"
	"time"

	"github.com/asicdrv/bm1398/internal/fpgamem"
	"github.com/asicdrv/bm1398/internal/uartfpga"
)

// Direct registers shared with the return-nonce FIFO (package nonce also
// reads these; the Orchestrator must drain the FIFO before issuing a
// register read, see the high-baud phase in package bringup).
const (
	nonceReturnOffset = 0x010
	nonceCountOffset  = 0x018
	nonceCountMask    = 0x7FFF
)

// pollInterval paces the register-read poll loop. Unlike the UART
// transport's 1µs trigger poll, a register read waits on the shared nonce
// FIFO on a coarser cadence since typical timeouts are 100ms.
const pollInterval = time.Millisecond

// ErrRegReadTimeout is returned when no nonce-FIFO entry arrives within the
// caller-supplied timeout.
var ErrRegReadTimeout = errors.New("asicreg: register read timed out")

// Bus drives the ASIC register protocol for one chain.
type Bus struct {
	win   *fpgamem.Window
	uart  *uartfpga.Bus
	chain int
}

// NewBus binds win (for the shared nonce FIFO) and uart (the chain's
// command channel) to chain.
func NewBus(win *fpgamem.Window, uart *uartfpga.Bus, chain int) *Bus {
	return &Bus{win: win, uart: uart, chain: chain}
}

// SetAddress sends the set-address command assigning addr to the next
// unaddressed chip in the daisy chain.
func (b *Bus) SetAddress(addr uint8) error {
	return b.uart.Send(b.chain, setAddressFrame(addr))
}

// ChainInactive sends the chain-inactive command, preparing the chain for
// enumeration.
func (b *Bus) ChainInactive() error {
	return b.uart.Send(b.chain, chainInactiveFrame())
}

// Write sends a single-chip register write. No response is expected.
func (b *Bus) Write(chipAddr, regAddr uint8, v uint32) error {
	return b.uart.Send(b.chain, writeFrame(false, chipAddr, regAddr, v))
}

// WriteBroadcast sends a broadcast register write to every chip on the
// chain. No response is expected.
func (b *Bus) WriteBroadcast(regAddr uint8, v uint32) error {
	return b.uart.Send(b.chain, writeFrame(true, 0, regAddr, v))
}

// Read sends a single-chip register read and polls the shared nonce FIFO
// for the response, returning the first word to arrive within timeout.
//
// The nonce FIFO is shared with work nonces; callers (the Orchestrator)
// must drain it before issuing a read, and must not intermix register
// reads with steady-state work submission.
func (b *Bus) Read(chipAddr, regAddr uint8, timeout time.Duration) (uint32, error) {
	if err := b.uart.Send(b.chain, readFrame(false, chipAddr, regAddr)); err != nil {
		return 0, err
	}
	return b.pollResponse(timeout)
}

// ReadBroadcast sends a broadcast register read, treating chip 0 as
// representative of the chain, and polls for the response.
func (b *Bus) ReadBroadcast(regAddr uint8, timeout time.Duration) (uint32, error) {
	if err := b.uart.Send(b.chain, readFrame(true, 0, regAddr)); err != nil {
		return 0, err
	}
	return b.pollResponse(timeout)
}

func (b *Bus) pollResponse(timeout time.Duration) (uint32, error) {
	deadline := time.Now().Add(timeout)
	for {
		count, err := b.win.ReadWord(nonceCountOffset)
		if err != nil {
			return 0, err
		}
		if count&nonceCountMask >= 1 {
			return b.win.ReadWord(nonceReturnOffset)
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("chain %d: %w", b.chain, ErrRegReadTimeout)
		}
		time.Sleep(pollInterval)
	}
}

// ReadModifyWrite reads regAddr from chip 0 as representative of the
// broadcast group, applies (v&^mask)|(value&mask), and writes the result
// back as a broadcast write.
//
// Not safe if other chips on the chain hold diverging values for regAddr.
func (b *Bus) ReadModifyWrite(regAddr uint8, mask, value uint32, timeout time.Duration) error {
	cur, err := b.ReadBroadcast(regAddr, timeout)
	if err != nil {
		return err
	}
	next := (cur &^ mask) | (value & mask)
	return b.WriteBroadcast(regAddr, next)
}
