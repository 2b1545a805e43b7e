// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package psu

import (
	"fmt"

	"github.com/asicdrv/bm1398/conn/physic"
	"github.com/asicdrv/bm1398/internal/fpgamem"
)

// i2cCommandOffset is the direct register the FPGA bridges to the PSU/PIC
// I2C bus. A write carries a 1-byte PIC command in bits 31..24 and its
// 2-byte argument in bits 23..8; the
// production path never reads back through this register (voltage
// read-back, if available, comes from the PIC's own status frame, out of
// scope for this core).
const i2cCommandOffset = 0x030

// FPGAI2C is the production PowerInterface transport: PSU/PIC commands
// ride the FPGA's I2C bridge at direct register 0x030.
type FPGAI2C struct {
	win *fpgamem.Window
}

// NewFPGAI2C binds win as the PSU/PIC I2C transport.
func NewFPGAI2C(win *fpgamem.Window) *FPGAI2C {
	return &FPGAI2C{win: win}
}

// picCommand byte values, matching the PIC's power-control protocol.
const (
	picCmdPowerOn    = 0x01
	picCmdSetVoltage = 0x02
	picCmdEnableDCDC = 0x03
)

func (p *FPGAI2C) write(cmd uint8, arg uint16) error {
	v := uint32(cmd)<<24 | uint32(arg)<<8
	if err := p.win.WriteWord(i2cCommandOffset, v); err != nil {
		return fmt.Errorf("%w: %v", ErrPowerError, err)
	}
	return nil
}

// PowerOn requests the main supply power up to v.
func (p *FPGAI2C) PowerOn(v physic.ElectricPotential) error {
	return p.write(picCmdPowerOn, millivolts(v))
}

// SetVoltage requests the supply regulate to v.
func (p *FPGAI2C) SetVoltage(v physic.ElectricPotential) error {
	return p.write(picCmdSetVoltage, millivolts(v))
}

// millivolts truncates v to the uint16 millivolt encoding the PIC command
// frame carries.
func millivolts(v physic.ElectricPotential) uint16 {
	return uint16(v / physic.MilliVolt)
}

// EnableDCDC enables the hashboard's local DC-DC converter for chain.
func (p *FPGAI2C) EnableDCDC(chain int) error {
	return p.write(picCmdEnableDCDC, uint16(chain))
}

var _ PowerInterface = (*FPGAI2C)(nil)
