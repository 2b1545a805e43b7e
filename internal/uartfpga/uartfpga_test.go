// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package uartfpga

import (
	"errors"
	"testing"

	"github.com/asicdrv/bm1398/conn"
	"github.com/asicdrv/bm1398/internal/fpgamem"
)

type fakeBacking [fpgamem.WindowWords]uint32

func (f *fakeBacking) ReadWord(off uint32) uint32     { return f[off/4] }
func (f *fakeBacking) WriteWord(off uint32, v uint32) { f[off/4] = v }

func newTestBus() (*Bus, *fakeBacking) {
	var b fakeBacking
	return NewBus(fpgamem.NewWindow(&b)), &b
}

func TestSend_InvalidLength(t *testing.T) {
	bus, _ := newTestBus()
	if err := bus.Send(0, nil); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("len 0: got %v", err)
	}
	if err := bus.Send(0, make([]byte, 13)); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("len 13: got %v", err)
	}
}

// TestSend_ClearsTrigger drives a self-clearing fake trigger: Send must
// observe the FPGA clear bit 31 of 0x0C0 and return without timing out.
func TestSend_ClearsTrigger(t *testing.T) {
	bus, backing := newTestBus()
	// Simulate the FPGA accepting the command immediately: clear the
	// trigger bit as soon as it is written by wrapping WriteWord.
	w := fpgamem.NewWindow(&selfClearingBacking{fakeBacking: backing})
	bus = NewBus(w)
	if err := bus.Send(3, []byte{0x53, 0x05, 0x00, 0x00, 0x18}); err != nil {
		t.Fatal(err)
	}
}

// selfClearingBacking clears the trigger busy bit immediately after it is
// set, modeling instant FPGA acknowledgement for deterministic tests.
type selfClearingBacking struct {
	*fakeBacking
}

func (s *selfClearingBacking) WriteWord(off uint32, v uint32) {
	s.fakeBacking.WriteWord(off, v)
	if off == triggerOffset {
		s.fakeBacking.WriteWord(triggerOffset, v&^triggerBusy)
	}
}

func TestSend_FramesCommandWords(t *testing.T) {
	bus, backing := newTestBus()
	w := fpgamem.NewWindow(&selfClearingBacking{fakeBacking: backing})
	bus = NewBus(w)
	frame := []byte{0x53, 0x05, 0x00, 0x00, 0x18}
	if err := bus.Send(0, frame); err != nil {
		t.Fatal(err)
	}
	got := backing.ReadWord(data0Offset)
	// First word holds bytes[0:4] assembled little-endian then byte-swapped.
	want := bswap32(uint32(frame[0]) | uint32(frame[1])<<8 | uint32(frame[2])<<16 | uint32(frame[3])<<24)
	if got != want {
		t.Fatalf("word0: got %#x, want %#x", got, want)
	}
	got = backing.ReadWord(data1Offset)
	want = bswap32(uint32(frame[4]))
	if got != want {
		t.Fatalf("word1: got %#x, want %#x", got, want)
	}
}

func TestSend_Timeout(t *testing.T) {
	bus, _ := newTestBus()
	// Trigger bit never clears: plain fakeBacking never self-clears.
	if err := bus.Send(1, []byte{1, 2, 3}); !errors.Is(err, ErrUartTimeout) {
		t.Fatalf("got %v", err)
	}
}

func TestDev_Tx(t *testing.T) {
	bus, backing := newTestBus()
	w := fpgamem.NewWindow(&selfClearingBacking{fakeBacking: backing})
	bus = NewBus(w)
	d := &Dev{Bus: bus, Chain: 2}
	if s := d.String(); s != "uartfpga(chain 2)" {
		t.Fatal(s)
	}
	if d.Duplex() != conn.Half {
		t.Fatal("expected Half duplex")
	}
	if err := d.Tx([]byte{0x53, 0x05, 0x00, 0x00, 0x18}, nil); err != nil {
		t.Fatal(err)
	}
	if err := d.Tx([]byte{1}, make([]byte, 1)); err == nil {
		t.Fatal("expected error when a read buffer is supplied")
	}
}
