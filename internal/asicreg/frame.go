// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package asicreg implements the ASIC register protocol: single/broadcast
// register writes, FIFO-polled register reads, and a read-modify-write
// helper, all framed as command words over internal/uartfpga.
package asicreg

import "github.com/asicdrv/bm1398/internal/crc5"

// Command bytes, byte 0 of every frame.
const (
	cmdSetAddress    = 0x40
	cmdChainInactive = 0x53
	cmdWriteSingle   = 0x41
	cmdWriteBcast    = 0x51
	cmdReadSingle    = 0x42
	cmdReadBcast     = 0x52
)

// setAddressFrame builds [0x40, 0x05, addr, 0x00, CRC5].
func setAddressFrame(addr uint8) []byte {
	f := []byte{cmdSetAddress, 0x05, addr, 0x00, 0}
	crc5.Append(f)
	return f
}

// chainInactiveFrame builds [0x53, 0x05, 0x00, 0x00, CRC5].
func chainInactiveFrame() []byte {
	f := []byte{cmdChainInactive, 0x05, 0x00, 0x00, 0}
	crc5.Append(f)
	return f
}

// writeFrame builds [cmd, 0x09, chipAddr, regAddr, v31..24, v23..16, v15..8, v7..0, CRC5].
func writeFrame(broadcast bool, chipAddr, regAddr uint8, v uint32) []byte {
	cmd := uint8(cmdWriteSingle)
	if broadcast {
		cmd = cmdWriteBcast
	}
	f := []byte{
		cmd, 0x09, chipAddr, regAddr,
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
		0,
	}
	crc5.Append(f)
	return f
}

// readFrame builds [cmd, 0x09, chipAddr, regAddr, 0, 0, 0, 0, CRC5].
func readFrame(broadcast bool, chipAddr, regAddr uint8) []byte {
	cmd := uint8(cmdReadSingle)
	if broadcast {
		cmd = cmdReadBcast
	}
	f := []byte{cmd, 0x09, chipAddr, regAddr, 0, 0, 0, 0, 0}
	crc5.Append(f)
	return f
}
