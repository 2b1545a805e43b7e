// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package nonce implements the Nonce Collector: draining the shared
// return-nonce FIFO and decoding its two-word entries into records with
// full chain/chip/core/work_id provenance.
package nonce

import "github.com/asicdrv/bm1398/internal/fpgamem"

// Direct registers shared with internal/asicreg's register-read path.
const (
	nonceReturnOffset = 0x010
	nonceCountOffset  = 0x018
	nonceCountMask    = 0x7FFF
)

// Record is one decoded nonce with its provenance.
type Record struct {
	Nonce  uint32
	Chain  uint8
	Chip   uint8
	Core   uint8
	WorkID uint8
}

// Collector drains the return-nonce FIFO. It never blocks; callers poll on
// their own cadence (typically 100ms). The Collector and work.Submitter
// touch disjoint registers and may run concurrently once bring-up
// completes, but during bring-up the FIFO is shared with register reads
// (internal/asicreg) and must not be drained concurrently with those.
type Collector struct {
	win *fpgamem.Window
}

// NewCollector binds win as the FIFO source.
func NewCollector(win *fpgamem.Window) *Collector {
	return &Collector{win: win}
}

// Count returns the number of pending nonce-FIFO entries.
func (c *Collector) Count() (uint16, error) {
	v, err := c.win.ReadWord(nonceCountOffset)
	if err != nil {
		return 0, err
	}
	return uint16(v & nonceCountMask), nil
}

// ReadOne reads and decodes a single FIFO entry: two successive reads of
// the return-nonce register, the first the raw nonce, the second packed
// metadata (chain:8 | chip:8 | core:8 | work_id:8, high to low).
func (c *Collector) ReadOne() (Record, error) {
	nonceWord, err := c.win.ReadWord(nonceReturnOffset)
	if err != nil {
		return Record{}, err
	}
	metaWord, err := c.win.ReadWord(nonceReturnOffset)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Nonce:  nonceWord,
		Chain:  uint8(metaWord >> 24),
		Chip:   uint8(metaWord >> 16),
		Core:   uint8(metaWord >> 8),
		WorkID: uint8(metaWord),
	}, nil
}

// Drain reads min(Count(), max) records.
func (c *Collector) Drain(max int) ([]Record, error) {
	n, err := c.Count()
	if err != nil {
		return nil, err
	}
	if int(n) < max {
		max = int(n)
	}
	records := make([]Record, 0, max)
	for i := 0; i < max; i++ {
		r, err := c.ReadOne()
		if err != nil {
			return records, err
		}
		records = append(records, r)
	}
	return records, nil
}
