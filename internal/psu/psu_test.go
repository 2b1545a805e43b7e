// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package psu

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/asicdrv/bm1398/conn/physic"
)

type fakePower struct {
	voltages  []physic.ElectricPotential
	failAfter int // fail every SetVoltage call once this many calls have succeeded; 0 = never fail
	calls     int
}

func (f *fakePower) PowerOn(v physic.ElectricPotential) error { return nil }

func (f *fakePower) SetVoltage(v physic.ElectricPotential) error {
	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return errors.New("pic: nack")
	}
	f.voltages = append(f.voltages, v)
	return nil
}

func (f *fakePower) EnableDCDC(chain int) error { return nil }

func TestRamp_StepsDown(t *testing.T) {
	p := &fakePower{}
	c := NewController(p)
	start := time.Now()
	if err := c.Ramp(context.Background(), 15000*physic.MilliVolt, 13600*physic.MilliVolt, 200*physic.MilliVolt, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Fatalf("Ramp returned before the 2s final settle: %v", elapsed)
	}
	want := []physic.ElectricPotential{
		15000 * physic.MilliVolt, 14800 * physic.MilliVolt, 14600 * physic.MilliVolt, 14400 * physic.MilliVolt,
		14200 * physic.MilliVolt, 14000 * physic.MilliVolt, 13800 * physic.MilliVolt, 13600 * physic.MilliVolt,
	}
	if len(p.voltages) != len(want) {
		t.Fatalf("got %v steps, want %v", p.voltages, want)
	}
	for i := range want {
		if p.voltages[i] != want[i] {
			t.Fatalf("step %d: got %d, want %d", i, p.voltages[i], want[i])
		}
	}
	if c.State() != Regulated {
		t.Fatalf("state = %v, want Regulated", c.State())
	}
}

func TestRamp_FaultLatchesAfterThreeFailures(t *testing.T) {
	p := &fakePower{failAfter: 0}
	p.failAfter = 1 // every call after the first fails
	c := NewController(p)
	err := c.Ramp(context.Background(), 15000*physic.MilliVolt, 13600*physic.MilliVolt, 200*physic.MilliVolt, time.Millisecond)
	if !errors.Is(err, ErrPowerError) {
		t.Fatalf("got %v, want ErrPowerError", err)
	}
	if c.State() != Fault {
		t.Fatalf("state = %v, want Fault", c.State())
	}
}

func TestRamp_ContextCancel(t *testing.T) {
	p := &fakePower{}
	c := NewController(p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Ramp(ctx, 15000*physic.MilliVolt, 13600*physic.MilliVolt, 200*physic.MilliVolt, time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestSettled_WithinTolerance(t *testing.T) {
	p := &fakePower{}
	c := NewController(p)
	if err := c.Ramp(context.Background(), 13600*physic.MilliVolt, 13600*physic.MilliVolt, 200*physic.MilliVolt, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if !c.Settled(13650 * physic.MilliVolt) {
		t.Fatal("expected 50mV delta to be within the 200mV tolerance")
	}
	if c.Settled(14000 * physic.MilliVolt) {
		t.Fatal("expected 400mV delta to exceed the 200mV tolerance")
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{Off: "off", Ramping: "ramping", Regulated: "regulated", Fault: "fault"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
