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

// Package mmio provides direct access to the SI controller through its
// memory mapped register block.
package mmio

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/ZaparooProject/go-joybus/internal/syncutil"
)

// DefaultDevice is the physical memory device mapped by New
const DefaultDevice = "/dev/mem"

type config struct {
	device string
	base   int64
}

// Option configures New
type Option func(*config)

// WithDevice maps a device other than DefaultDevice, such as /dev/uio0
func WithDevice(path string) Option {
	return func(c *config) {
		c.device = path
	}
}

// WithBase overrides the physical address of the register block
func WithBase(addr int64) Option {
	return func(c *config) {
		c.base = addr
	}
}

// Transport implements joybus.Transport on a mapped register block. Every
// access is a single aligned 32-bit load or store in host byte order.
type Transport struct {
	release func() error
	mem     []byte
	device  string
	off     int
	mu      syncutil.Mutex
	closed  bool
}

// New maps the SI register block and returns a transport on it.
func New(opts ...Option) (*Transport, error) {
	cfg := config{device: DefaultDevice, base: joybus.RegisterBlockBase}
	for _, opt := range opts {
		opt(&cfg)
	}

	mem, off, release, err := mapBlock(cfg.device, cfg.base, joybus.RegisterBlockSize)
	if err != nil {
		return nil, fmt.Errorf("failed to map SI registers at 0x%08X from %s: %w", cfg.base, cfg.device, err)
	}
	joybus.Debugf("mmio: mapped 0x%08X from %s", cfg.base, cfg.device)
	return newTransport(mem, off, cfg.device, release), nil
}

func newTransport(mem []byte, off int, device string, release func() error) *Transport {
	return &Transport{mem: mem, off: off, device: device, release: release}
}

func (t *Transport) word(byteOffset int) *uint32 {
	return (*uint32)(unsafe.Pointer(&t.mem[t.off+byteOffset]))
}

// ReadRegister implements joybus.Transport
func (t *Transport) ReadRegister(reg joybus.Register) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, joybus.NewTransportClosedError("ReadRegister", t.device)
	}
	if err := t.check(reg.Offset(), 1); err != nil {
		return 0, err
	}
	return atomic.LoadUint32(t.word(reg.Offset())), nil
}

// WriteRegister implements joybus.Transport
func (t *Transport) WriteRegister(reg joybus.Register, value uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return joybus.NewTransportClosedError("WriteRegister", t.device)
	}
	if err := t.check(reg.Offset(), 1); err != nil {
		return err
	}
	atomic.StoreUint32(t.word(reg.Offset()), value)
	return nil
}

// ReadBuffer implements joybus.Transport
func (t *Transport) ReadBuffer(words []uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return joybus.NewTransportClosedError("ReadBuffer", t.device)
	}
	if err := t.check(joybus.BufferOffset, len(words)); err != nil {
		return err
	}
	for i := range words {
		words[i] = atomic.LoadUint32(t.word(joybus.BufferOffset + i*4))
	}
	return nil
}

// WriteBuffer implements joybus.Transport
func (t *Transport) WriteBuffer(words []uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return joybus.NewTransportClosedError("WriteBuffer", t.device)
	}
	if err := t.check(joybus.BufferOffset, len(words)); err != nil {
		return err
	}
	for i, w := range words {
		atomic.StoreUint32(t.word(joybus.BufferOffset+i*4), w)
	}
	return nil
}

func (t *Transport) check(byteOffset, count int) error {
	if byteOffset >= joybus.BufferOffset && count > joybus.BufferWords {
		return fmt.Errorf("%w: %d words", joybus.ErrInvalidParameter, count)
	}
	if t.off+byteOffset+count*4 > len(t.mem) {
		return fmt.Errorf("%w: offset 0x%X outside mapping", joybus.ErrInvalidParameter, byteOffset)
	}
	return nil
}

// Close unmaps the register block
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.mem = nil
	if t.release != nil {
		if err := t.release(); err != nil {
			return fmt.Errorf("mmio unmap failed: %w", err)
		}
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() joybus.TransportType {
	return joybus.TransportMMIO
}
