// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// bmchain brings up a BM1398 hashboard chain attached via the FPGA bridge
// and, with -monitor, prints a live nonce count.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"golang.org/x/term"

	"github.com/asicdrv/bm1398/bringup"
	"github.com/asicdrv/bm1398/conn/physic"
	"github.com/asicdrv/bm1398/host"
	"github.com/asicdrv/bm1398/internal/fpgamem"
	"github.com/asicdrv/bm1398/internal/psu"
	"github.com/asicdrv/bm1398/internal/uartfpga"
	"github.com/asicdrv/bm1398/nonce"
)

func mainImpl() error {
	if speed := host.MaxSpeed(); speed > 0 {
		fmt.Printf("host: CPU max speed %d Hz\n", speed)
	}
	chain := flag.Int("chain", 0, "chain index to bring up")
	psuVoltage := 15000 * physic.MilliVolt
	targetVoltage := 13600 * physic.MilliVolt
	flag.Var(&psuVoltage, "psu-voltage", "initial PSU voltage")
	flag.Var(&targetVoltage, "target-voltage", "PSU voltage after ramp-down")
	monitor := flag.Bool("monitor", false, "after bring-up, hold the terminal in raw mode and print a live nonce readout")
	flag.Parse()

	win, err := fpgamem.Open()
	if err != nil {
		return err
	}
	defer win.Close()

	uart := uartfpga.NewBus(win)
	power := psu.NewController(psu.NewFPGAI2C(win))

	if err := power.Power.PowerOn(psuVoltage); err != nil {
		return err
	}
	if err := power.Power.EnableDCDC(*chain); err != nil {
		return err
	}

	o := bringup.NewOrchestrator(win, uart, *chain)
	report, err := o.Run()
	if err != nil {
		return err
	}
	fmt.Printf("chain %d: %d chips enumerated (%d failed), PLL locked=%v, high baud=%v\n",
		report.Chain, report.ChipCount, report.EnumFailures, report.PLLLocked, report.HighBaud)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := power.Ramp(ctx, psuVoltage, targetVoltage, 200*physic.MilliVolt, 100*time.Millisecond); err != nil {
		return fmt.Errorf("psu ramp: %w", err)
	}
	fmt.Printf("psu state: %s\n", power.State())

	if *monitor {
		return runMonitor(win, *chain)
	}
	return nil
}

// runMonitor puts the controlling terminal in raw mode and prints a
// continuously-updating nonce count until interrupted, restoring the
// terminal before returning.
func runMonitor(win *fpgamem.Window, chain int) error {
	fd := int(os.Stdin.Fd())
	var oldState *term.State
	if term.IsTerminal(fd) {
		var err error
		oldState, err = term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("monitor: %w", err)
		}
		defer term.Restore(fd, oldState)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	collector := nonce.NewCollector(win)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var total uint64
	start := time.Now()
	for {
		select {
		case <-sigCh:
			fmt.Fprintf(os.Stdout, "\r\nchain %d: %d nonces in %s\r\n", chain, total, time.Since(start).Round(time.Second))
			return nil
		case <-ticker.C:
			records, err := collector.Drain(256)
			if err != nil {
				return fmt.Errorf("monitor: %w", err)
			}
			total += uint64(len(records))
			fmt.Fprintf(os.Stdout, "\rchain %d: %d nonces (%.1fs)   ", chain, total, time.Since(start).Seconds())
		}
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "bmchain: %s.\n", err)
		os.Exit(1)
	}
}
