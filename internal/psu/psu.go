// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package psu models the PSU/PIC power-control subsystem as a thin external
// collaborator: power_on, set_voltage, enable_dc_dc, plus a diagnostic ramp
// state machine layered on top.
//
// The core treats the PSU bus as opaque; the FPGA-I2C transport is the
// production path, with serial.go and ioctl.go offering alternate
// transports for bench and debug rigs where the PSU rides a real tty
// instead of FPGA-mapped I2C.
package psu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asicdrv/bm1398/conn/physic"
)

// ErrPowerError wraps any PSU/PIC transaction failure. The caller decides
// whether to retry, abort, or continue without power control.
var ErrPowerError = errors.New("psu: power transaction failed")

// PowerInterface is the contract the Orchestrator requires from its
// injected power collaborator. All three methods may fail with
// ErrPowerError.
type PowerInterface interface {
	PowerOn(v physic.ElectricPotential) error
	SetVoltage(v physic.ElectricPotential) error
	EnableDCDC(chain int) error
}

// Bus is a conn.Conn-shaped PSU/PIC transport (Tx only). No type in this
// package implements it: Controller drives the supply through
// PowerInterface, which FPGAI2C and SerialPSU implement.
type Bus interface {
	Tx(w, r []byte) error
}

// State is the Controller's diagnostic power state, layered over the
// power_on/set_voltage contract; it does not change the return value of
// PowerInterface methods, only what Ramp reports.
type State int

const (
	Off State = iota
	Ramping
	Regulated
	Fault
)

func (s State) String() string {
	switch s {
	case Off:
		return "off"
	case Ramping:
		return "ramping"
	case Regulated:
		return "regulated"
	case Fault:
		return "fault"
	default:
		return "unknown"
	}
}

// tolerance is how far a read-back voltage may differ from the last
// applied voltage for Settled to report true. Ramp does not read back and
// does not use it.
const tolerance = 200 * physic.MilliVolt

// faultThreshold is the number of consecutive SetVoltage failures that
// latches Fault.
const faultThreshold = 3

// Controller drives a PowerInterface through the post-bring-up voltage
// ramp, tracking State and a consecutive-failure fault latch.
type Controller struct {
	Power PowerInterface

	state        State
	consecutive  int
	lastAppliedV physic.ElectricPotential
}

// NewController wraps power as a Controller starting in state Off.
func NewController(power PowerInterface) *Controller {
	return &Controller{Power: power, state: Off}
}

// State returns the Controller's current diagnostic state.
func (c *Controller) State() State {
	return c.state
}

// Ramp steps the supply voltage from fromMV to toMV in step-sized
// decrements (or increments), sleeping perStep between writes and settling
// for 2s after the final step. It matches the documented post-bring-up
// ramp: 15.0V down to 13.6V in 200mV steps, 100ms per step, 2s final
// settle.
//
// Three consecutive SetVoltage failures latch Fault and abort the ramp.
// Fewer are tolerated: a failed step is not repeated, the ramp moves on to
// the next voltage, and the next successful write resets the count.
func (c *Controller) Ramp(ctx context.Context, fromMV, toMV, step physic.ElectricPotential, perStep time.Duration) error {
	if step == 0 {
		return fmt.Errorf("psu: step must be non-zero")
	}
	c.state = Ramping
	descending := toMV < fromMV
	for v := fromMV; ; {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.Power.SetVoltage(v); err != nil {
			c.consecutive++
			if c.consecutive >= faultThreshold {
				c.state = Fault
				return fmt.Errorf("%w: %d consecutive failures at %dmV", ErrPowerError, c.consecutive, v)
			}
		} else {
			c.consecutive = 0
			c.lastAppliedV = v
		}

		if v == toMV {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(perStep):
		}

		if descending {
			if v < step || v-step < toMV {
				v = toMV
			} else {
				v -= step
			}
		} else {
			if v+step > toMV {
				v = toMV
			} else {
				v += step
			}
		}
	}
	time.Sleep(2 * time.Second)
	c.state = Regulated
	return nil
}

// Settled reports whether readback is within tolerance of the last
// voltage Ramp successfully applied.
func (c *Controller) Settled(readback physic.ElectricPotential) bool {
	delta := readback - c.lastAppliedV
	if delta < 0 {
		delta = -delta
	}
	return delta <= tolerance
}
