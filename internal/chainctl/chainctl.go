// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package chainctl implements the hardware reset-line toggle sequence and
// daisy-chain address enumeration.
package chainctl

import (
	"fmt"
	"time"

	"github.com/asicdrv/bm1398/internal/asicreg"
	"github.com/asicdrv/bm1398/internal/fpgamem"
)

// hwResetOffset is the direct byte offset of the hardware reset-line
// register (also logical index 13). Bit N asserts chain N's reset.
const hwResetOffset = 0x034

// Reset toggles chain's hardware reset line with the exact timing the
// silicon requires: 700ms settle, assert, 10ms, release, 72ms, assert,
// 10ms, release, 10ms settle. These delays are hardware-mandated and must
// not be shortened.
func Reset(win *fpgamem.Window, chain int) error {
	time.Sleep(700 * time.Millisecond)
	if err := setResetBit(win, chain, true); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	if err := setResetBit(win, chain, false); err != nil {
		return err
	}
	time.Sleep(72 * time.Millisecond)
	if err := setResetBit(win, chain, true); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	if err := setResetBit(win, chain, false); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

func setResetBit(win *fpgamem.Window, chain int, assert bool) error {
	v, err := win.ReadWord(hwResetOffset)
	if err != nil {
		return err
	}
	bit := uint32(1) << uint(chain)
	if assert {
		v |= bit
	} else {
		v &^= bit
	}
	return win.WriteWord(hwResetOffset, v)
}

// EnumError reports that n chips failed to accept their assigned address
// during enumeration. It is a soft error: bring-up may continue for
// diagnostics.
type EnumError struct {
	Chain  int
	Failed int
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("chain %d: %d chips failed to address", e.Chain, e.Failed)
}

// enumDelay is the inter-command delay the daisy-chain relay needs between
// successive set-address frames.
const enumDelay = 10 * time.Millisecond

// Enumerate sends chain-inactive followed by n set-address commands with
// addresses spaced by 256/n, covering the full chip count in a daisy
// chain. It returns the number of chips that failed to address; 0 means
// every chip addressed successfully. A non-zero count is also surfaced as
// an *EnumError so callers can choose whether to treat it as fatal.
func Enumerate(bus *asicreg.Bus, chain, n int) (int, error) {
	if err := bus.ChainInactive(); err != nil {
		return 0, err
	}
	time.Sleep(enumDelay)

	interval := 256 / n
	failed := 0
	for i := 0; i < n; i++ {
		addr := uint8(i * interval)
		if err := bus.SetAddress(addr); err != nil {
			failed++
		}
		time.Sleep(enumDelay)
	}
	if failed > 0 {
		return failed, &EnumError{Chain: chain, Failed: failed}
	}
	return 0, nil
}
