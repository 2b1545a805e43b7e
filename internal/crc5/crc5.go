// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package crc5 implements the Bitmain-style 5-bit CRC used to validate ASIC
// command frames.
package crc5

// initial is the CRC register's starting value.
const initial uint8 = 0x1F

// poly is the feedback polynomial mask.
const poly uint8 = 0x05

// Compute returns the 5-bit CRC of the leading nbits bits of data,
// processed MSB-first within each byte.
//
// nbits must be <= 8*len(data); callers typically pass (len(frame)-1)*8 to
// checksum every byte of a frame except the trailing CRC byte itself.
func Compute(data []byte, nbits int) uint8 {
	state := initial
	bit := 0
	for i := 0; bit < nbits; i++ {
		b := data[i]
		for k := 7; k >= 0 && bit < nbits; k-- {
			bitVal := (b >> uint(k)) & 1
			if (state >> 4) != bitVal {
				state = ((state << 1) | bitVal) ^ poly
			} else {
				state = (state << 1) | bitVal
			}
			state &= 0x1F
			bit++
		}
	}
	return state
}

// Append computes the CRC over frame[:len(frame)-1] ((len-1)*8 bits) and
// writes it into the last byte of frame.
func Append(frame []byte) {
	n := len(frame)
	frame[n-1] = Compute(frame[:n-1], (n-1)*8)
}

// Check reports whether the trailing byte of frame is the correct CRC of
// the bytes preceding it. An empty frame is never valid.
func Check(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	n := len(frame)
	return Compute(frame[:n-1], (n-1)*8) == frame[n-1]
}
