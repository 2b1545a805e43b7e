// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bringup implements the Bring-Up Orchestrator: the twelve-phase
// sequence that takes one chain from a freshly-mapped FPGA window to
// steady-state, high-baud, work-ready operation.
//
// The Orchestrator requires exclusive access to the chain's window and
// UART bus; no work.Submitter or nonce.Collector may run concurrently
// with it.
package bringup

import (
	"fmt"
	"time"

	"github.com/asicdrv/bm1398/internal/asicreg"
	"github.com/asicdrv/bm1398/internal/chainctl"
	"github.com/asicdrv/bm1398/internal/fpgamem"
	"github.com/asicdrv/bm1398/internal/pll"
	"github.com/asicdrv/bm1398/internal/uartfpga"
)

// PhaseError names the phase that aborted bring-up for chain, wrapping the
// underlying cause.
type PhaseError struct {
	Phase string
	Chain int
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("bringup: chain %d: phase %q: %v", e.Chain, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Report summarizes one chain's bring-up outcome for diagnostics.
type Report struct {
	Chain        int
	ChipCount    int
	EnumFailures int
	PLLLocked    bool
	HighBaud     bool
}

// Direct registers this package writes beyond those internal/chainctl and
// internal/asicreg already own.
const (
	workRouteOffset  = 0x080
	workRouteCheck   = 0x088
	chainPresent     = 0x008
	diodeMuxReg      = 0x54
	ioDriverReg      = 0x58
	coreResetRegA    = 0xA8
	coreResetRegB    = 0x18
	coreResetRegC    = 0x3C
	coreResetRegD    = 0x44
	pllParamReg60    = 0x60
	pllParamReg64    = 0x64
	pllParamReg68    = 0x68
	nonceTimeoutIdx  = 20
	nonceTimeoutBoot = 0x800000F9
	softResetRegA    = 0x18
	softResetRegB    = 0x34
)

// coreTargetMHz and enumBaud are the fixed operating parameters this
// Orchestrator targets: 525 MHz core clock, 115200 baud during
// enumeration, 12 MHz baud at steady state.
const (
	coreTargetMHz  = 525
	enumBaud       = 115200
	steadyBaud     = 12_000_000
	pllLockWait    = 500 * time.Millisecond
	coreStabilize  = 2 * time.Second
	settleShort    = 50 * time.Millisecond
	stepDelay      = 10 * time.Millisecond
	broadcastStep  = 100 * time.Millisecond
	chipCount      = 114
)

// globalSeed is the constant table written during phase 2. It holds only
// the two registers phase 2 sets that no later phase writes: the control
// register's engine-enable bit and the nonce-FIFO interrupt mask.
var globalSeed = []struct {
	offset uint32
	value  uint32
}{
	{0x000, 0x00000001}, // control: engine enable
	{0x01C, 0x00000000}, // nonce-FIFO interrupt: masked during bring-up
}

// Orchestrator drives one chain's window and UART bus through bring-up.
type Orchestrator struct {
	win   *fpgamem.Window
	uart  *uartfpga.Bus
	chain int
}

// NewOrchestrator binds win and uart for chain.
func NewOrchestrator(win *fpgamem.Window, uart *uartfpga.Bus, chain int) *Orchestrator {
	return &Orchestrator{win: win, uart: uart, chain: chain}
}

// Run executes all twelve phases in order, aborting with a *PhaseError on
// the first failure.
func (o *Orchestrator) Run() (Report, error) {
	report := Report{Chain: o.chain}

	if err := o.phaseBootVerify(); err != nil {
		return report, o.fail("boot-verify", err)
	}
	if err := o.phaseGlobalSeed(); err != nil {
		return report, o.fail("global-seed", err)
	}
	present, err := o.phaseChainDetect()
	if err != nil {
		return report, o.fail("chain-detect", err)
	}
	if !present {
		return report, o.fail("chain-detect", fmt.Errorf("chain %d not present in hash_on_plug", o.chain))
	}
	if err := chainctl.Reset(o.win, o.chain); err != nil {
		return report, o.fail("hardware-reset", err)
	}
	bus := asicreg.NewBus(o.win, o.uart, o.chain)
	if err := o.phaseSoftReset(bus); err != nil {
		return report, o.fail("soft-reset", err)
	}
	if err := o.phasePreEnum(bus); err != nil {
		return report, o.fail("pre-enum", err)
	}
	failed, err := chainctl.Enumerate(bus, o.chain, chipCount)
	report.ChipCount = chipCount - failed
	report.EnumFailures = failed
	if err != nil {
		// Enumeration failure is soft: continue bring-up for diagnostics.
	}
	if err := o.phaseCoreConfigReset(bus); err != nil {
		return report, o.fail("core-config-reset", err)
	}
	report.PLLLocked = true
	if err := o.phaseHighBaud(bus); err != nil {
		return report, o.fail("high-baud", err)
	}
	report.HighBaud = true
	if err := o.phaseCoreReset(bus); err != nil {
		return report, o.fail("core-reset", err)
	}
	if err := o.phaseNonceTimeout(); err != nil {
		return report, o.fail("nonce-timeout", err)
	}
	if err := o.phaseNonceOverflowDisable(bus); err != nil {
		return report, o.fail("nonce-overflow-disable", err)
	}
	return report, nil
}

func (o *Orchestrator) fail(phase string, err error) error {
	return &PhaseError{Phase: phase, Chain: o.chain, Err: err}
}

// phaseBootVerify engages the work-routing logic: toggle 0x080 through its
// engage pulse, and force 0x088 to its expected value if it doesn't match.
func (o *Orchestrator) phaseBootVerify() error {
	if err := o.win.WriteWord(workRouteOffset, 0x80808000); err != nil {
		return err
	}
	time.Sleep(stepDelay)
	if err := o.win.WriteWord(workRouteOffset, 0x00808000); err != nil {
		return err
	}
	check, err := o.win.ReadWord(workRouteCheck)
	if err != nil {
		return err
	}
	if check != 0x00009C40 {
		if err := o.win.WriteWord(workRouteCheck, 0x00009C40); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) phaseGlobalSeed() error {
	for _, kv := range globalSeed {
		if err := o.win.WriteWord(kv.offset, kv.value); err != nil {
			return err
		}
	}
	time.Sleep(settleShort)
	return nil
}

func (o *Orchestrator) phaseChainDetect() (bool, error) {
	v, err := o.win.ReadWord(chainPresent)
	if err != nil {
		return false, err
	}
	return (v>>uint(o.chain))&1 == 1, nil
}

// phaseSoftReset writes regs 0x18 and 0x34 in a fixed six-step order with
// 10ms per step, ending with ticket-mask 0xFFFFFFFF (all cores enabled)
// and a 50ms settle.
func (o *Orchestrator) phaseSoftReset(bus *asicreg.Bus) error {
	steps := []struct {
		reg uint8
		val uint32
	}{
		{softResetRegB, 0x00000000},
		{softResetRegA, 0x00000000},
		{softResetRegB, 0xFFFFFFFF},
		{softResetRegA, 0x00000000},
		{softResetRegB, 0x00000000},
		{softResetRegA, 0xFFFFFFFF}, // ticket mask: all cores
	}
	for _, s := range steps {
		if err := bus.WriteBroadcast(s.reg, s.val); err != nil {
			return err
		}
		time.Sleep(stepDelay)
	}
	time.Sleep(settleShort)
	return nil
}

func (o *Orchestrator) phasePreEnum(bus *asicreg.Bus) error {
	if err := bus.WriteBroadcast(diodeMuxReg, 3); err != nil {
		return err
	}
	if err := bus.ChainInactive(); err != nil {
		return err
	}
	return bus.WriteBroadcast(0x18, pll.LowBaudRegister(enumBaud))
}

// phaseCoreConfigReset resets core config, programs core timing and the
// PLL for the target frequency, and waits for PLL lock.
func (o *Orchestrator) phaseCoreConfigReset(bus *asicreg.Bus) error {
	if err := bus.WriteBroadcast(coreResetRegC, pll.CoreConfigReset); err != nil {
		return err
	}
	if err := bus.WriteBroadcast(coreResetRegC, 0x80000600); err != nil {
		return err
	}
	timing := pll.CoreTimingRegister(false, 1, 1)
	if err := bus.WriteBroadcast(coreResetRegD, timing); err != nil {
		return err
	}
	if err := bus.WriteBroadcast(ioDriverReg, 0x10); err != nil {
		return err
	}
	for _, reg := range []uint8{pllParamReg60, pllParamReg64, pllParamReg68} {
		if err := bus.WriteBroadcast(reg, 0); err != nil {
			return err
		}
	}
	freq, err := pll.FrequencyRegister(coreTargetMHz)
	if err != nil {
		return err
	}
	if err := bus.WriteBroadcast(0x08, freq); err != nil {
		return err
	}
	time.Sleep(pllLockWait)
	return nil
}

func (o *Orchestrator) phaseHighBaud(bus *asicreg.Bus) error {
	pll3, baudConfig, clkCtrl := pll.HighBaudRegisters(steadyBaud)
	if err := bus.WriteBroadcast(pllParamReg68, pll3); err != nil {
		return err
	}
	if err := bus.WriteBroadcast(0x28, baudConfig); err != nil {
		return err
	}
	if err := bus.WriteBroadcast(0x18, clkCtrl); err != nil {
		return err
	}
	// Drain any stale nonce-FIFO entries left over from register reads.
	for {
		count, err := o.win.ReadWord(0x018)
		if err != nil {
			return err
		}
		if count&0x7FFF == 0 {
			break
		}
		if _, err := o.win.ReadWord(0x010); err != nil {
			return err
		}
	}
	time.Sleep(settleShort)
	return nil
}

// phaseCoreReset broadcasts to regs 0xA8, 0x18, 0x3C, 0x44, 0x3C (enable)
// with 100ms per step, then waits 2s for core stabilization.
func (o *Orchestrator) phaseCoreReset(bus *asicreg.Bus) error {
	steps := []struct {
		reg uint8
		val uint32
	}{
		{coreResetRegA, 0x00000000},
		{coreResetRegB, 0xFFFFFFFF},
		{coreResetRegC, 0x80000600},
		{coreResetRegD, pll.CoreTimingRegister(false, 1, 1)},
		{coreResetRegC, pll.CoreConfigEnable},
	}
	for _, s := range steps {
		if err := bus.WriteBroadcast(s.reg, s.val); err != nil {
			return err
		}
		time.Sleep(broadcastStep)
	}
	time.Sleep(coreStabilize)
	return nil
}

// phaseNonceTimeout keeps the boot value of logical index 20: enable bit
// plus 249 cycles, calibrated for 525MHz x 114 chips.
func (o *Orchestrator) phaseNonceTimeout() error {
	return o.win.WriteLogical(nonceTimeoutIdx, nonceTimeoutBoot)
}

func (o *Orchestrator) phaseNonceOverflowDisable(bus *asicreg.Bus) error {
	return bus.WriteBroadcast(coreResetRegC, pll.CoreConfigOverflowDisable)
}
