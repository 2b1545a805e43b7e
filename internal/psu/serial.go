// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package psu

import (
	"fmt"

	"github.com/tarm/serial"

	"github.com/asicdrv/bm1398/conn/physic"
)

// SerialPSU is an alternate PowerInterface transport for bench and debug
// rigs where the PSU/PIC bus rides a real UART instead of the FPGA's
// I2C bridge. It sends the same 1-byte command and 2-byte argument as
// FPGAI2C, as a 3-byte frame (command, argument high byte, low byte) over
// a tty.
type SerialPSU struct {
	port *serial.Port
}

// OpenSerialPSU opens dev at baud and wraps it as a SerialPSU.
func OpenSerialPSU(dev string, baud int) (*SerialPSU, error) {
	port, err := serial.OpenPort(&serial.Config{Name: dev, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPowerError, err)
	}
	return &SerialPSU{port: port}, nil
}

func (s *SerialPSU) write(cmd uint8, arg uint16) error {
	frame := []byte{cmd, byte(arg >> 8), byte(arg)}
	if _, err := s.port.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrPowerError, err)
	}
	return nil
}

// PowerOn requests the main supply power up to v.
func (s *SerialPSU) PowerOn(v physic.ElectricPotential) error {
	return s.write(picCmdPowerOn, millivolts(v))
}

// SetVoltage requests the supply regulate to v.
func (s *SerialPSU) SetVoltage(v physic.ElectricPotential) error {
	return s.write(picCmdSetVoltage, millivolts(v))
}

// EnableDCDC enables the hashboard's local DC-DC converter for chain.
func (s *SerialPSU) EnableDCDC(chain int) error {
	return s.write(picCmdEnableDCDC, uint16(chain))
}

// Close releases the underlying serial port.
func (s *SerialPSU) Close() error {
	return s.port.Close()
}

var _ PowerInterface = (*SerialPSU)(nil)
