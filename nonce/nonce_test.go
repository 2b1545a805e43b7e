// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package nonce

import (
	"testing"

	"github.com/asicdrv/bm1398/internal/fpgamem"
)

type fakeBacking struct {
	mem      [fpgamem.WindowWords]uint32
	reads    []uint32 // queued values for successive nonceReturnOffset reads
	readHead int
}

func (b *fakeBacking) ReadWord(off uint32) uint32 {
	if off == nonceReturnOffset && b.readHead < len(b.reads) {
		v := b.reads[b.readHead]
		b.readHead++
		return v
	}
	return b.mem[off/4]
}

func (b *fakeBacking) WriteWord(off uint32, v uint32) { b.mem[off/4] = v }

func TestReadOne_DecodesProvenance(t *testing.T) {
	b := &fakeBacking{reads: []uint32{0xDEADBEEF, 0x040C1E38}}
	c := NewCollector(fpgamem.NewWindow(b))
	r, err := c.ReadOne()
	if err != nil {
		t.Fatal(err)
	}
	want := Record{Nonce: 0xDEADBEEF, Chain: 4, Chip: 12, Core: 30, WorkID: 56}
	if r != want {
		t.Fatalf("got %+v, want %+v", r, want)
	}
}

func TestCount_MasksTo15Bits(t *testing.T) {
	b := &fakeBacking{}
	b.mem[nonceCountOffset/4] = 0xFFFFFFFF
	c := NewCollector(fpgamem.NewWindow(b))
	n, err := c.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0x7FFF {
		t.Fatalf("got %#x, want 0x7FFF", n)
	}
}

func TestDrain_CapsAtCount(t *testing.T) {
	b := &fakeBacking{
		reads: []uint32{
			0x1, 0x01_02_03_04,
			0x2, 0x05_06_07_08,
			0x3, 0x09_0A_0B_0C,
		},
	}
	b.mem[nonceCountOffset/4] = 2
	c := NewCollector(fpgamem.NewWindow(b))
	records, err := c.Drain(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (capped by FIFO count)", len(records))
	}
	if records[0].Nonce != 0x1 || records[1].Nonce != 0x2 {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestDrain_CapsAtMax(t *testing.T) {
	b := &fakeBacking{
		reads: []uint32{0x1, 0x01_02_03_04},
	}
	b.mem[nonceCountOffset/4] = 5
	c := NewCollector(fpgamem.NewWindow(b))
	records, err := c.Drain(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1 (capped by max)", len(records))
	}
}
