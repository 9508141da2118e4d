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
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-joybus/internal/frame"
)

// ControlWord is the encoded value that starts a transfer.
type ControlWord = frame.ControlWord

// Port applies the SI controller's register discipline on top of a
// Transport: control word setup, busy polling, error bit handling and
// command buffer access. It is not safe for concurrent use; the capture
// driver owns it from a single goroutine.
type Port struct {
	transport    Transport
	waitTimeout  time.Duration
	pollInterval time.Duration
}

// PortOption configures a Port
type PortOption func(*Port)

// WithWaitTimeout bounds WaitIdle. With the default of zero WaitIdle polls
// forever, so a stalled or absent device blocks the caller indefinitely.
func WithWaitTimeout(timeout time.Duration) PortOption {
	return func(p *Port) {
		p.waitTimeout = timeout
	}
}

// WithPollInterval sleeps between busy-bit polls instead of spinning.
func WithPollInterval(interval time.Duration) PortOption {
	return func(p *Port) {
		p.pollInterval = interval
	}
}

// NewPort creates a Port over transport
func NewPort(transport Transport, opts ...PortOption) (*Port, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	p := &Port{transport: transport}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Transport returns the underlying transport
func (p *Port) Transport() Transport {
	return p.transport
}

// Close closes the underlying transport
func (p *Port) Close() error {
	if err := p.transport.Close(); err != nil {
		return fmt.Errorf("close %s transport: %w", p.transport.Type(), err)
	}
	return nil
}

// ConfigureTransfer returns the control word for a transfer on channel and
// writes the status sentinel the controller expects before every transfer.
func (p *Port) ConfigureTransfer(channel, inLen, outLen int) (ControlWord, error) {
	cw := frame.EncodeControlWord(channel, inLen, outLen)
	if err := p.transport.WriteRegister(RegStatus, frame.StatusSentinel); err != nil {
		return 0, fmt.Errorf("write status sentinel: %w", err)
	}
	return cw, nil
}

// WaitIdle polls the busy bit until the controller finishes its current
// transfer. Unless a wait timeout was configured this never gives up.
func (p *Port) WaitIdle(channel int) error {
	var deadline time.Time
	if p.waitTimeout > 0 {
		deadline = time.Now().Add(p.waitTimeout)
	}

	for {
		csr, err := p.transport.ReadRegister(RegComCSR)
		if err != nil {
			return fmt.Errorf("poll busy bit: %w", err)
		}
		if csr&ComCSRBusy == 0 {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			Debugf("channel %d: busy bit still set after %v (COMCSR=0x%08X)", channel, p.waitTimeout, csr)
			return fmt.Errorf("channel %d: %w", channel, ErrLinkStall)
		}
		if p.pollInterval > 0 {
			time.Sleep(p.pollInterval)
		}
	}
}

// ClearErrorBits clears the four status error bits owned by channel.
func (p *Port) ClearErrorBits(channel int) error {
	sr, err := p.transport.ReadRegister(RegStatus)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	sr |= frame.ChannelErrorMask << frame.ChannelErrorShift(channel)
	if err := p.transport.WriteRegister(RegStatus, sr); err != nil {
		return fmt.Errorf("clear error bits: %w", err)
	}
	return nil
}

// ErrorBits returns the pending error bits of channel, shifted down to the
// low nibble.
func (p *Port) ErrorBits(channel int) (uint32, error) {
	sr, err := p.transport.ReadRegister(RegStatus)
	if err != nil {
		return 0, fmt.Errorf("read status: %w", err)
	}
	return (sr >> frame.ChannelErrorShift(channel)) & frame.ChannelErrorMask, nil
}

// WriteBuffer stores words at the start of the command buffer.
func (p *Port) WriteBuffer(words []uint32) error {
	if len(words) > BufferWords {
		return fmt.Errorf("%w: %d words exceed the %d word command buffer", ErrInvalidParameter, len(words), BufferWords)
	}
	if err := p.transport.WriteBuffer(words); err != nil {
		return fmt.Errorf("write command buffer: %w", err)
	}
	return nil
}

// ReadBuffer returns the whole command buffer.
func (p *Port) ReadBuffer() ([]uint32, error) {
	words := make([]uint32, BufferWords)
	if err := p.transport.ReadBuffer(words); err != nil {
		return nil, fmt.Errorf("read command buffer: %w", err)
	}
	return words, nil
}

// ClearBuffer zeroes the command buffer.
func (p *Port) ClearBuffer() error {
	return p.WriteBuffer(make([]uint32, BufferWords))
}

// Transfer sends cmd on channel and returns the first response word. When
// clearErrors is set the channel's error bits are cleared before the command
// is issued, so ErrorBits afterwards reflects this transfer only.
func (p *Port) Transfer(channel int, cmd frame.Command, clearErrors bool) (uint32, error) {
	words := make([]uint32, BufferWords)
	words[0] = cmd.Word()
	if err := p.WriteBuffer(words); err != nil {
		return 0, err
	}

	if clearErrors {
		if err := p.ClearErrorBits(channel); err != nil {
			return 0, err
		}
	}

	if err := p.WaitIdle(channel); err != nil {
		return 0, err
	}
	cw, err := p.ConfigureTransfer(channel, cmd.InLen, cmd.OutLen)
	if err != nil {
		return 0, err
	}
	if err := p.transport.WriteRegister(RegComCSR, uint32(cw)); err != nil {
		return 0, fmt.Errorf("start transfer: %w", err)
	}
	if err := p.WaitIdle(channel); err != nil {
		return 0, err
	}

	resp := make([]uint32, 1)
	if err := p.transport.ReadBuffer(resp); err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	return resp[0], nil
}

// Identify sends the identification command and returns the device type.
func (p *Port) Identify(channel int) (uint16, error) {
	resp, err := p.Transfer(channel, frame.PingFrame(), false)
	if err != nil {
		return 0, fmt.Errorf("identify: %w", err)
	}
	return frame.DeviceID(resp), nil
}

// ValidateChannel checks that channel addresses one of the four ports.
func ValidateChannel(channel int) error {
	if channel < 0 || channel > frame.MaxChannel {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	return nil
}

// IsLinkStall reports whether err came from a bounded WaitIdle giving up.
func IsLinkStall(err error) bool {
	return errors.Is(err, ErrLinkStall)
}
