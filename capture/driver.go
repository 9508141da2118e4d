// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package capture

import (
	"context"
	"fmt"
	"time"

	joybus "github.com/ZaparooProject/go-joybus"
)

// Event is a discrete user request delivered by an Input
type Event int

const (
	// EventRequestExit stops the driver
	EventRequestExit Event = iota + 1
	// EventToggleWidth switches between 32-bit and 16-bit captures
	EventToggleWidth
)

func (e Event) String() string {
	switch e {
	case EventRequestExit:
		return "exit"
	case EventToggleWidth:
		return "toggle-width"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Input is polled once per tick for pending user events
type Input interface {
	Poll() []Event
}

// Ticker blocks until the next driver tick
type Ticker interface {
	Wait(ctx context.Context) error
}

// IntervalTicker ticks at a fixed interval
type IntervalTicker struct {
	ticker *time.Ticker
}

// NewIntervalTicker creates a ticker firing every interval
func NewIntervalTicker(interval time.Duration) *IntervalTicker {
	return &IntervalTicker{ticker: time.NewTicker(interval)}
}

// Wait blocks until the next tick or until ctx is done
func (t *IntervalTicker) Wait(ctx context.Context) error {
	select {
	case <-t.ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop releases the ticker
func (t *IntervalTicker) Stop() {
	t.ticker.Stop()
}

// Driver is the outer cooperative loop around a Machine: one Step per tick,
// then input handling, then a wait for the next tick. A capture started
// during a Step runs to completion inside it, unthrottled by the ticker.
type Driver struct {
	machine *Machine
	input   Input
	ticker  Ticker
	display Display
	// OnError, if set, is called with every recoverable error
	OnError func(error)
}

// NewDriver creates a driver. A nil input never produces events.
func NewDriver(machine *Machine, input Input, ticker Ticker) *Driver {
	return &Driver{
		machine: machine,
		input:   input,
		ticker:  ticker,
		display: machine.display,
	}
}

// Run drives the machine until the user requests exit, ctx is cancelled
// between ticks, or the link fails. A user exit returns nil.
func (d *Driver) Run(ctx context.Context) error {
	d.display.Printf("Insert GBA...")

	for {
		if err := d.machine.Step(); err != nil {
			if !joybus.IsRecoverable(err) {
				return fmt.Errorf("capture stopped in %s state: %w", d.machine.State(), err)
			}
			debugf("tick %d: %v", d.machine.Metrics().Ticks, err)
			if d.OnError != nil {
				d.OnError(err)
			}
		}

		if d.handleInput() {
			d.display.Printf("Exiting...")
			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if d.ticker != nil {
			if err := d.ticker.Wait(ctx); err != nil {
				return err
			}
		}
	}
}

// handleInput applies pending events and reports whether exit was requested.
func (d *Driver) handleInput() bool {
	if d.input == nil {
		return false
	}
	for _, ev := range d.input.Poll() {
		switch ev {
		case EventRequestExit:
			return true
		case EventToggleWidth:
			d.machine.ToggleWidth()
		default:
			debugf("ignoring %s", ev)
		}
	}
	return false
}
