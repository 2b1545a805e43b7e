// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package psu

import (
	"fmt"

	serial "github.com/daedaluz/goserial"
)

// EnableLine is a debug-rig alternative to EnableDCDC: some bench fixtures
// wire the hashboard's DC-DC enable line to a tty's DTR modem-control
// signal rather than a PIC command, toggled directly via ioctl.
type EnableLine struct {
	port *serial.Port
}

// OpenEnableLine opens dev as a raw tty whose DTR line drives the
// hashboard's DC-DC enable signal.
func OpenEnableLine(dev string) (*EnableLine, error) {
	port, err := serial.Open(dev, &serial.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPowerError, err)
	}
	return &EnableLine{port: port}, nil
}

// Assert raises DTR, enabling the DC-DC converter.
func (e *EnableLine) Assert() error {
	if err := e.port.EnableModemLines(serial.TIOCM_DTR); err != nil {
		return fmt.Errorf("%w: %v", ErrPowerError, err)
	}
	return nil
}

// Deassert lowers DTR, disabling the DC-DC converter.
func (e *EnableLine) Deassert() error {
	if err := e.port.DisableModemLines(serial.TIOCM_DTR); err != nil {
		return fmt.Errorf("%w: %v", ErrPowerError, err)
	}
	return nil
}
