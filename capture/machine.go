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
	"errors"
	"fmt"
	"time"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/ZaparooProject/go-joybus/internal/frame"
)

// Sink persists completed captures. The buffer is reused for the next
// capture once Persist returns, so implementations must not retain it.
type Sink interface {
	Persist(buf *joybus.Buffer) error
}

// Display receives human-readable status lines
type Display interface {
	Printf(format string, args ...any)
}

type discardDisplay struct{}

func (discardDisplay) Printf(string, ...any) {}

// Metrics tracks machine activity
type Metrics struct {
	Ticks               int64         // Step calls
	Transfers           int64         // Data transfers while capturing
	Captures            int64         // Buffers handed to the sink
	NegotiationRejects  int64         // Length requests that did not start a capture
	StorageFailures     int64         // Captures the sink could not store
	LastCaptureDuration time.Duration // Time spent in the last capture loop
}

// Machine is the capture state machine. It cycles Idle → Negotiating →
// Capturing → Negotiating … and is driven one Step at a time from a single
// goroutine.
type Machine struct {
	port          *joybus.Port
	sink          Sink
	display       Display
	buffer        *joybus.Buffer
	sleep         func(time.Duration)
	observe       func(Session)
	config        Config
	session       Session
	metrics       Metrics
	width         joybus.Width
	pendingToggle bool
}

// MachineOption configures a Machine
type MachineOption func(*Machine)

// WithSleep replaces time.Sleep for the inter-transfer delay.
func WithSleep(sleep func(time.Duration)) MachineOption {
	return func(m *Machine) {
		m.sleep = sleep
	}
}

// WithObserver calls fn with a copy of the session after every captured word.
func WithObserver(fn func(Session)) MachineOption {
	return func(m *Machine) {
		m.observe = fn
	}
}

// NewMachine creates a machine in StateIdle. A nil config uses DefaultConfig
// and a nil display discards status lines.
func NewMachine(port *joybus.Port, sink Sink, display Display, config *Config, opts ...MachineOption) (*Machine, error) {
	if port == nil || sink == nil {
		return nil, fmt.Errorf("%w: port and sink are required", joybus.ErrInvalidParameter)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if display == nil {
		display = discardDisplay{}
	}

	m := &Machine{
		port:    port,
		sink:    sink,
		display: display,
		config:  *config,
		width:   config.Width,
		buffer:  joybus.NewBuffer(config.Width),
		sleep:   time.Sleep,
		session: Session{State: StateIdle, Width: config.Width},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Session returns a copy of the current session
func (m *Machine) Session() Session {
	return m.session
}

// State returns the current state
func (m *Machine) State() State {
	return m.session.State
}

// Width returns the width the next capture will use
func (m *Machine) Width() joybus.Width {
	if m.pendingToggle {
		return m.width.Toggle()
	}
	return m.width
}

// Metrics returns a copy of the activity counters
func (m *Machine) Metrics() Metrics {
	return m.metrics
}

// ToggleWidth switches between 32-bit and 16-bit captures. Outside of a
// capture the switch is immediate and ToggleWidth returns true. During a
// capture it is deferred until the machine returns to negotiation.
func (m *Machine) ToggleWidth() bool {
	if m.session.State == StateCapturing {
		m.pendingToggle = !m.pendingToggle
		debugf("width toggle deferred until capture completes (pending=%v)", m.pendingToggle)
		return false
	}
	m.applyToggle()
	return true
}

func (m *Machine) applyToggle() {
	m.width = m.width.Toggle()
	m.display.Printf("Switching to %s mode", m.width)
}

// Step runs one driver tick. Recoverable conditions are returned for
// reporting and leave the machine ready to retry on the next tick; any other
// error means the link is unusable.
func (m *Machine) Step() error {
	m.metrics.Ticks++
	switch m.session.State {
	case StateIdle:
		return m.identify()
	case StateNegotiating:
		return m.negotiate()
	case StateCapturing:
		return m.capture()
	default:
		return fmt.Errorf("invalid state %d", m.session.State)
	}
}

func (m *Machine) identify() error {
	id, err := m.port.Identify(m.config.Channel)
	if err != nil {
		return err
	}

	switch {
	case id == frame.DeviceGBA:
		m.session.TransitionToNegotiating(id)
		m.display.Printf("GBA Detected!")
		m.display.Printf("Entering Data Capture Mode...")
		debugf("channel %d: handheld identified, negotiating", m.config.Channel)
		return nil
	case id != 0:
		m.display.Printf("Other Device Detected -> 0x%x", id)
		return &joybus.UnrecognizedDeviceError{Channel: m.config.Channel, ID: id}
	default:
		return nil
	}
}

func (m *Machine) negotiate() error {
	ch := m.config.Channel
	raw, err := m.port.Transfer(ch, frame.DataFrame(), true)
	if err != nil {
		return fmt.Errorf("request length: %w", err)
	}

	status, err := m.port.ErrorBits(ch)
	if err != nil {
		return err
	}
	if status != 0 {
		m.metrics.NegotiationRejects++
		return &joybus.NegotiationError{Channel: ch, Status: status}
	}

	length := frame.ReverseBytes(raw)
	if length == 0 || length > joybus.MaxCaptureWords {
		m.metrics.NegotiationRejects++
		return &joybus.NegotiationError{Channel: ch, Length: length}
	}

	m.session.TransitionToCapturing(int(length), m.width)
	m.buffer.Reset(m.width)
	m.display.Printf("Incoming Data: %d bytes total ...", int(length)*m.width.Bytes())
	debugf("channel %d: capturing %d %s words", ch, length, m.width)
	return nil
}

func (m *Machine) capture() error {
	ch := m.config.Channel
	width := m.session.Width
	start := time.Now()

	for m.session.CapturedCount < m.session.TargetLength {
		raw, err := m.port.Transfer(ch, frame.DataFrame(), true)
		if err != nil {
			return fmt.Errorf("capture word %d of %d: %w", m.session.CapturedCount+1, m.session.TargetLength, err)
		}
		m.metrics.Transfers++

		word := raw
		if width == joybus.Width16 {
			word = frame.SwapHalfWords(raw)
		}
		if err := m.buffer.Append(word); err != nil {
			return err
		}
		m.session.CapturedCount++
		if m.observe != nil {
			m.observe(m.session)
		}
		m.sleep(m.config.TransferDelay)
	}
	m.metrics.LastCaptureDuration = time.Since(start)

	m.display.Printf("Capture complete!")
	persistErr := m.sink.Persist(m.buffer)

	m.session.Reset()
	m.metrics.Captures++
	if m.pendingToggle {
		m.pendingToggle = false
		m.applyToggle()
	}

	if persistErr != nil {
		m.metrics.StorageFailures++
		m.display.Printf("Storage error: %v", persistErr)
		if !errors.Is(persistErr, joybus.ErrStorageUnavailable) {
			persistErr = fmt.Errorf("%w: %w", joybus.ErrStorageUnavailable, persistErr)
		}
		return persistErr
	}
	return nil
}

// debugf logs through the library debug logger
func debugf(format string, args ...any) {
	joybus.Debugf("capture: "+format, args...)
}
