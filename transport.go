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

package joybus

import (
	"fmt"
	"sync"
)

// Transport gives raw access to the SI controller's registers and command
// buffer. It has no protocol knowledge. Implementations exist for memory
// mapped hardware, serial and SPI register bridges, and in-memory fakes.
type Transport interface {
	// ReadRegister returns the current value of reg
	ReadRegister(reg Register) (uint32, error)

	// WriteRegister stores value into reg
	WriteRegister(reg Register, value uint32) error

	// ReadBuffer fills words from the start of the command buffer
	ReadBuffer(words []uint32) error

	// WriteBuffer stores words at the start of the command buffer
	WriteBuffer(words []uint32) error

	// Close releases the underlying device
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportMMIO represents memory mapped registers.
	TransportMMIO TransportType = "mmio"
	// TransportUART represents a register bridge on a serial port.
	TransportUART TransportType = "uart"
	// TransportSPI represents a register bridge on an SPI bus.
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockTransport is an in-memory register file. It has no device behind it:
// tests script responses through OnStart and SetBusyReads.
type MockTransport struct {
	regs        map[Register]uint32
	writeCount  map[Register]int
	readCount   map[Register]int
	errorMap    map[Register]error
	// OnStart runs after a control word with the start bit is written to
	// RegComCSR, with the buffer contents at that moment. Its return value
	// replaces the buffer.
	OnStart     func(cw uint32, buffer []uint32) []uint32
	writes      []RegisterWrite
	buffer      [BufferWords]uint32
	busyReads   int
	busyLeft    int
	startStatus uint32
	mu          sync.Mutex
	hasStatus   bool
	closed      bool
}

// RegisterWrite records a single register write for ordering assertions.
type RegisterWrite struct {
	Reg   Register
	Value uint32
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		regs:       make(map[Register]uint32),
		writeCount: make(map[Register]int),
		readCount:  make(map[Register]int),
		errorMap:   make(map[Register]error),
	}
}

// ReadRegister implements Transport
func (m *MockTransport) ReadRegister(reg Register) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, NewTransportClosedError("ReadRegister", "mock")
	}
	if err, ok := m.errorMap[reg]; ok {
		return 0, err
	}
	m.readCount[reg]++

	value := m.regs[reg]
	if reg == RegComCSR && value&ComCSRBusy != 0 {
		if m.busyLeft > 0 {
			m.busyLeft--
		} else {
			value &^= ComCSRBusy
			m.regs[reg] = value
		}
	}
	return value, nil
}

// WriteRegister implements Transport
func (m *MockTransport) WriteRegister(reg Register, value uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewTransportClosedError("WriteRegister", "mock")
	}
	if err, ok := m.errorMap[reg]; ok {
		return err
	}
	m.writeCount[reg]++
	m.writes = append(m.writes, RegisterWrite{Reg: reg, Value: value})
	m.regs[reg] = value

	if reg == RegComCSR && value&ComCSRBusy != 0 {
		m.busyLeft = m.busyReads
		if m.OnStart != nil {
			resp := m.OnStart(value, append([]uint32(nil), m.buffer[:]...))
			m.buffer = [BufferWords]uint32{}
			copy(m.buffer[:], resp)
		}
		if m.hasStatus {
			m.regs[RegStatus] = m.startStatus
		}
	}
	return nil
}

// ReadBuffer implements Transport
func (m *MockTransport) ReadBuffer(words []uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewTransportClosedError("ReadBuffer", "mock")
	}
	if len(words) > BufferWords {
		return fmt.Errorf("%w: %d words", ErrInvalidParameter, len(words))
	}
	copy(words, m.buffer[:])
	return nil
}

// WriteBuffer implements Transport
func (m *MockTransport) WriteBuffer(words []uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewTransportClosedError("WriteBuffer", "mock")
	}
	if len(words) > BufferWords {
		return fmt.Errorf("%w: %d words", ErrInvalidParameter, len(words))
	}
	copy(m.buffer[:], words)
	return nil
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// SetRegister sets a register without recording a write
func (m *MockTransport) SetRegister(reg Register, value uint32) {
	m.mu.Lock()
	m.regs[reg] = value
	m.mu.Unlock()
}

// Register returns a register without counting a read
func (m *MockTransport) Register(reg Register) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

// Buffer returns a copy of the command buffer
func (m *MockTransport) Buffer() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint32(nil), m.buffer[:]...)
}

// SetBusyReads makes RegComCSR report busy for n reads after each start.
// A negative n keeps it busy forever.
func (m *MockTransport) SetBusyReads(n int) {
	m.mu.Lock()
	m.busyReads = n
	if n < 0 {
		m.busyReads = int(^uint(0) >> 1)
	}
	m.mu.Unlock()
}

// SetStatusAfterStart makes every transfer leave value in RegStatus, the way
// the controller latches error bits when a transfer fails.
func (m *MockTransport) SetStatusAfterStart(value uint32) {
	m.mu.Lock()
	m.startStatus = value
	m.hasStatus = true
	m.mu.Unlock()
}

// SetError makes every access to reg fail with err
func (m *MockTransport) SetError(reg Register, err error) {
	m.mu.Lock()
	m.errorMap[reg] = err
	m.mu.Unlock()
}

// WriteCount returns how many times reg was written
func (m *MockTransport) WriteCount(reg Register) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCount[reg]
}

// ReadCount returns how many times reg was read
func (m *MockTransport) ReadCount(reg Register) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCount[reg]
}

// Writes returns every register write in order
func (m *MockTransport) Writes() []RegisterWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RegisterWrite(nil), m.writes...)
}
