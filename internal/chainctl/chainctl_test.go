// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package chainctl

import (
	"errors"
	"testing"
	"time"

	"github.com/asicdrv/bm1398/internal/asicreg"
	"github.com/asicdrv/bm1398/internal/fpgamem"
	"github.com/asicdrv/bm1398/internal/uartfpga"
)

type selfClearingBacking [fpgamem.WindowWords]uint32

func (b *selfClearingBacking) ReadWord(off uint32) uint32 { return b[off/4] }
func (b *selfClearingBacking) WriteWord(off uint32, v uint32) {
	b[off/4] = v
	if off == 0x0C0 {
		b[0x0C0/4] = v &^ (1 << 31)
	}
}

func TestReset_TogglesBitAndLeavesItCleared(t *testing.T) {
	if testing.Short() {
		t.Skip("Reset sleeps ~800ms for the hardware-mandated settle/assert/release sequence")
	}
	var b selfClearingBacking
	win := fpgamem.NewWindow(&b)
	// Pre-set an unrelated chain's bit to confirm Reset doesn't clobber it.
	if err := win.WriteWord(hwResetOffset, 1<<2); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := Reset(win, 0); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 800*time.Millisecond {
		t.Fatalf("Reset returned too early: %v", elapsed)
	}
	final, _ := win.ReadWord(hwResetOffset)
	if final&(1<<0) != 0 {
		t.Fatalf("chain 0's reset bit is still asserted: %#x", final)
	}
	if final&(1<<2) == 0 {
		t.Fatalf("Reset clobbered chain 2's bit: %#x", final)
	}
}

func TestEnumerate_AddressSpacing(t *testing.T) {
	if testing.Short() {
		t.Skip("Enumerate sleeps 10ms per chip; 114 chips is slow under -short")
	}
	var b selfClearingBacking
	win := fpgamem.NewWindow(&b)
	uart := uartfpga.NewBus(win)
	bus := asicreg.NewBus(win, uart, 0)

	failed, err := Enumerate(bus, 0, 114)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 0 {
		t.Fatalf("expected 0 failures, got %d", failed)
	}
}

// setAddressStallBacking lets chain-inactive commands succeed immediately
// but never clears the trigger for set-address frames, so every
// SetAddress() call times out, modeling a daisy chain where no chip
// responds.
type setAddressStallBacking struct {
	mem      [fpgamem.WindowWords]uint32
	lastCmd0 uint32
}

func (b *setAddressStallBacking) ReadWord(off uint32) uint32 { return b.mem[off/4] }
func (b *setAddressStallBacking) WriteWord(off uint32, v uint32) {
	b.mem[off/4] = v
	switch off {
	case 0x0C4:
		b.lastCmd0 = v
	case 0x0C0:
		cmdByte := byte(bswap(b.lastCmd0))
		if cmdByte != 0x40 { // cmdSetAddress
			b.mem[0x0C0/4] = v &^ (1 << 31)
		}
	}
}

func bswap(v uint32) uint32 {
	return (v&0x000000FF)<<24 | (v&0x0000FF00)<<8 | (v&0x00FF0000)>>8 | (v&0xFF000000)>>24
}

func TestEnumerate_SoftErrorOnFailure(t *testing.T) {
	var b setAddressStallBacking
	win := fpgamem.NewWindow(&b)
	uart := uartfpga.NewBus(win)
	bus := asicreg.NewBus(win, uart, 1)

	failed, err := Enumerate(bus, 1, 2)
	if failed != 2 {
		t.Fatalf("expected both set-address frames to fail, got %d", failed)
	}
	var enumErr *EnumError
	if !errors.As(err, &enumErr) {
		t.Fatalf("expected *EnumError, got %v", err)
	}
	if enumErr.Chain != 1 || enumErr.Failed != failed {
		t.Fatalf("unexpected EnumError %+v", enumErr)
	}
}
