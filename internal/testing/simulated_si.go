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

// Package testing provides a simulated SI controller with virtual handhelds
// on its link ports, plus a register bridge endpoint that speaks the serial
// and SPI bridge framing. Together they let the capture driver run end to end
// without hardware.
package testing

import (
	"fmt"
	"math/rand/v2"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/ZaparooProject/go-joybus/internal/frame"
	"github.com/ZaparooProject/go-joybus/internal/syncutil"
)

// ErrNoResponse is the status error bit latched when no device answers.
const ErrNoResponse = 0x8

// JitterConfig adds a random number of extra busy polls to each transfer.
type JitterConfig struct {
	Seed          uint64
	MaxExtraPolls int
}

// TransferLog records one started transfer.
type TransferLog struct {
	Control frame.ControlWord
	Channel int
	Command byte
}

// SimulatedSI emulates the SI controller registers and command buffer. It
// implements joybus.Transport.
type SimulatedSI struct {
	rng       *rand.Rand
	devices   [frame.MaxChannel + 1]*VirtualGBA
	injected  [frame.MaxChannel + 1][]uint32
	transfers []TransferLog
	jitter    JitterConfig
	buffer    [joybus.BufferWords]uint32
	busyPolls int
	busyLeft  int
	mu        syncutil.Mutex
	comcsr    uint32
	status    uint32
	stalled   bool
	closed    bool
}

// NewSimulatedSI creates a controller with no devices attached.
func NewSimulatedSI() *SimulatedSI {
	return &SimulatedSI{busyPolls: 1}
}

// Attach plugs device into channel. A nil device unplugs it.
func (s *SimulatedSI) Attach(channel int, device *VirtualGBA) {
	s.mu.Lock()
	s.devices[channel&frame.ChannelMask] = device
	s.mu.Unlock()
}

// SetBusyPolls sets how many COMCSR reads report busy after a start.
func (s *SimulatedSI) SetBusyPolls(n int) {
	s.mu.Lock()
	s.busyPolls = n
	s.mu.Unlock()
}

// SetJitter randomizes the busy period of every transfer.
func (s *SimulatedSI) SetJitter(cfg JitterConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jitter = cfg
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	s.rng = rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
}

// Stall keeps the busy bit set forever once the next transfer starts.
func (s *SimulatedSI) Stall() {
	s.mu.Lock()
	s.stalled = true
	s.mu.Unlock()
}

// InjectErrors latches bits into the channel's error nibble when the next
// transfer on that channel completes. Calls queue up, one per transfer.
func (s *SimulatedSI) InjectErrors(channel int, bits uint32) {
	s.mu.Lock()
	ch := channel & frame.ChannelMask
	s.injected[ch] = append(s.injected[ch], bits&frame.ChannelErrorMask)
	s.mu.Unlock()
}

// Transfers returns every started transfer in order.
func (s *SimulatedSI) Transfers() []TransferLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TransferLog(nil), s.transfers...)
}

// CountCommands returns how many transfers carried cmd.
func (s *SimulatedSI) CountCommands(cmd byte) int {
	n := 0
	for _, t := range s.Transfers() {
		if t.Command == cmd {
			n++
		}
	}
	return n
}

// ReadRegister implements joybus.Transport
func (s *SimulatedSI) ReadRegister(reg joybus.Register) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, joybus.NewTransportClosedError("ReadRegister", "sim")
	}
	switch reg {
	case joybus.RegComCSR:
		value := s.comcsr
		if value&joybus.ComCSRBusy != 0 && !s.stalled {
			if s.busyLeft > 0 {
				s.busyLeft--
			} else {
				s.comcsr &^= joybus.ComCSRBusy
			}
		}
		return value, nil
	case joybus.RegStatus:
		return s.status, nil
	default:
		return 0, nil
	}
}

// WriteRegister implements joybus.Transport
func (s *SimulatedSI) WriteRegister(reg joybus.Register, value uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return joybus.NewTransportClosedError("WriteRegister", "sim")
	}
	switch reg {
	case joybus.RegComCSR:
		if value&frame.TransferStart != 0 {
			s.start(frame.ControlWord(value))
		}
	case joybus.RegStatus:
		// Error bits are write-one-to-clear
		s.status &^= value & 0x0F0F0F0F
	}
	return nil
}

func (s *SimulatedSI) start(cw frame.ControlWord) {
	fields := cw.Decode()
	ch := fields.Channel
	cmd := byte(s.buffer[0] >> 24)
	s.transfers = append(s.transfers, TransferLog{Control: cw, Channel: ch, Command: cmd})

	resp := [joybus.BufferWords]uint32{}
	if dev := s.devices[ch]; dev != nil {
		resp[0] = dev.Respond(cmd)
	} else {
		s.status |= ErrNoResponse << frame.ChannelErrorShift(ch)
	}
	s.buffer = resp

	if q := s.injected[ch]; len(q) > 0 {
		s.status |= q[0] << frame.ChannelErrorShift(ch)
		s.injected[ch] = q[1:]
	}

	s.comcsr = uint32(cw) | joybus.ComCSRBusy
	s.busyLeft = s.busyPolls
	if s.rng != nil && s.jitter.MaxExtraPolls > 0 {
		s.busyLeft += s.rng.IntN(s.jitter.MaxExtraPolls + 1)
	}
}

// ReadBuffer implements joybus.Transport
func (s *SimulatedSI) ReadBuffer(words []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return joybus.NewTransportClosedError("ReadBuffer", "sim")
	}
	if len(words) > len(s.buffer) {
		return fmt.Errorf("%w: %d words", joybus.ErrInvalidParameter, len(words))
	}
	copy(words, s.buffer[:])
	return nil
}

// WriteBuffer implements joybus.Transport
func (s *SimulatedSI) WriteBuffer(words []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return joybus.NewTransportClosedError("WriteBuffer", "sim")
	}
	if len(words) > len(s.buffer) {
		return fmt.Errorf("%w: %d words", joybus.ErrInvalidParameter, len(words))
	}
	copy(s.buffer[:], words)
	return nil
}

// Close implements joybus.Transport
func (s *SimulatedSI) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Type implements joybus.Transport
func (*SimulatedSI) Type() joybus.TransportType {
	return joybus.TransportMock
}
