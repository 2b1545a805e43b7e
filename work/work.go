// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package work implements the Work Submit Engine: assembling a 148-byte
// work packet, byte-swapping it to the wire's big-endian word order, and
// pushing it into the FPGA's work FIFO at logical index 16.
package work

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/asicdrv/bm1398/internal/fpgamem"
)

// packetWords is the work packet size (148 bytes, 37 32-bit words).
const (
	packetBytes = 148
	packetWords = packetBytes / 4
)

// bufferSpaceOffset is the direct register whose bit N reports chain N has
// FIFO space for another work packet.
const bufferSpaceOffset = 0x00C

// fifoLogical is the logical register index for the work FIFO. Writing
// continuation words to logical 17 (which aliases the same FIFO word) is
// forbidden; every word of a packet goes through this same index.
const fifoLogical = fpgamem.FifoLogical

// bufferSpacePoll and bufferSpaceTimeout pace the wait for FIFO space.
const (
	bufferSpacePoll    = time.Millisecond
	bufferSpaceTimeout = time.Second
)

// fifoPacing is the settle time after the last word of a packet.
const fifoPacing = 10 * time.Microsecond

// ErrFifoFull is returned when buffer-space never becomes available within
// the 1s timeout. Callers retry or drop the work item; this is not a
// silent loss.
var ErrFifoFull = errors.New("work: FIFO buffer space unavailable")

// Submitter pushes assembled work packets into one FPGA window's work
// FIFO. Safe for one goroutine; the Orchestrator requires exclusive
// access to win during bring-up, but once bring-up completes a Submitter
// and a nonce.Collector may run concurrently since they touch disjoint
// registers.
type Submitter struct {
	win *fpgamem.Window
}

// NewSubmitter binds win as the FIFO target.
func NewSubmitter(win *fpgamem.Window) *Submitter {
	return &Submitter{win: win}
}

// Send assembles and pushes a work packet for chain, workID, the last 12
// bytes of the block header, and four 32-byte midstates.
func (s *Submitter) Send(chain int, workID uint32, header12 [12]byte, midstates [4][32]byte) error {
	if err := s.waitBufferSpace(chain); err != nil {
		return err
	}
	packet := assemble(chain, workID, header12, midstates)
	words := swapWords(packet)
	for _, w := range words {
		if err := s.win.WriteLogical(fifoLogical, w); err != nil {
			return err
		}
	}
	time.Sleep(fifoPacing)
	return nil
}

func (s *Submitter) waitBufferSpace(chain int) error {
	deadline := time.Now().Add(bufferSpaceTimeout)
	for {
		v, err := s.win.ReadWord(bufferSpaceOffset)
		if err != nil {
			return err
		}
		if (v>>uint(chain))&1 == 1 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("chain %d: %w", chain, ErrFifoFull)
		}
		time.Sleep(bufferSpacePoll)
	}
}

// assemble builds the 148-byte packet in its pre-swap layout: type, chain
// id, reserved, work_id<<3, the last 12 bytes of the block header, and the
// four midstates.
func assemble(chain int, workID uint32, header12 [12]byte, midstates [4][32]byte) [packetBytes]byte {
	var p [packetBytes]byte
	p[0] = 0x01
	p[1] = byte(chain) | 0x80
	// p[2:4] reserved, left zero.
	binary.LittleEndian.PutUint32(p[4:8], workID<<3)
	copy(p[8:20], header12[:])
	for i, ms := range midstates {
		copy(p[20+i*32:20+(i+1)*32], ms[:])
	}
	return p
}

// swapWords reinterprets packet as 37 32-bit words and byte-swaps each to
// big-endian wire order: word[i] = binary.BigEndian.Uint32(packet[4i:4i+4]).
func swapWords(packet [packetBytes]byte) [packetWords]uint32 {
	var words [packetWords]uint32
	for i := range words {
		words[i] = binary.BigEndian.Uint32(packet[i*4 : i*4+4])
	}
	return words
}
