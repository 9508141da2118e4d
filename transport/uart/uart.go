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

// Package uart provides a register bridge transport over a serial port. A
// microcontroller on the far side executes register and buffer accesses
// against the SI controller and answers with framed responses.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/ZaparooProject/go-joybus/internal/frame"
	"github.com/ZaparooProject/go-joybus/internal/syncutil"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the bridge firmware's line rate
	DefaultBaudRate = 115200

	defaultReadTimeout = 50 * time.Millisecond
	// maxEmptyReads is how many read timeouts in a row end a response wait
	maxEmptyReads = 8
	traceSize     = 16
)

// Transport implements joybus.Transport over a serial register bridge.
type Transport struct {
	port     serial.Port
	trace    *joybus.TraceBuffer
	retry    *joybus.RetryConfig
	portName string
	mu       syncutil.Mutex
	closed   bool
}

// Option configures the serial port opened by New
type Option func(*serial.Mode)

// WithBaudRate overrides DefaultBaudRate
func WithBaudRate(baud int) Option {
	return func(m *serial.Mode) {
		m.BaudRate = baud
	}
}

// New opens portName and returns a bridge transport on it.
func New(portName string, opts ...Option) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	for _, opt := range opts {
		opt(mode)
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(defaultReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to reset UART input buffer: %w", err)
	}

	joybus.Debugf("uart: opened %s at %d baud", portName, mode.BaudRate)
	return newTransport(port, portName), nil
}

func newTransport(port serial.Port, portName string) *Transport {
	return &Transport{port: port, portName: portName, retry: joybus.DefaultRetryConfig()}
}

// ReadRegister implements joybus.Transport. Reads are retried on line
// noise.
func (t *Transport) ReadRegister(reg joybus.Register) (uint32, error) {
	req := frame.Request{Op: frame.OpReadRegister, Index: byte(reg), Count: 1}
	var value uint32
	err := joybus.RetryWithConfig(context.Background(), t.retry, func() error {
		resp, err := t.roundTrip("ReadRegister", req, 1)
		if err != nil {
			return err
		}
		value = resp.Words[0]
		return nil
	})
	return value, err //nolint:wrapcheck // already a TransportError
}

// WriteRegister implements joybus.Transport
func (t *Transport) WriteRegister(reg joybus.Register, value uint32) error {
	req := frame.Request{Op: frame.OpWriteRegister, Index: byte(reg), Words: []uint32{value}}
	_, err := t.roundTrip("WriteRegister", req, 0)
	return err
}

// ReadBuffer implements joybus.Transport
func (t *Transport) ReadBuffer(words []uint32) error {
	if len(words) > frame.MaxBridgeWords {
		return fmt.Errorf("%w: %d words", joybus.ErrInvalidParameter, len(words))
	}
	req := frame.Request{Op: frame.OpReadBuffer, Count: len(words)}
	//nolint:wrapcheck // already a TransportError
	return joybus.RetryWithConfig(context.Background(), t.retry, func() error {
		resp, err := t.roundTrip("ReadBuffer", req, len(words))
		if err != nil {
			return err
		}
		copy(words, resp.Words)
		return nil
	})
}

// WriteBuffer implements joybus.Transport
func (t *Transport) WriteBuffer(words []uint32) error {
	if len(words) > frame.MaxBridgeWords {
		return fmt.Errorf("%w: %d words", joybus.ErrInvalidParameter, len(words))
	}
	req := frame.Request{Op: frame.OpWriteBuffer, Words: words}
	_, err := t.roundTrip("WriteBuffer", req, 0)
	return err
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close closes the transport connection. A request in flight on another
// goroutine finishes first.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() joybus.TransportType {
	return joybus.TransportUART
}

// roundTrip sends req and waits for a response carrying want words.
//
//nolint:wrapcheck // WrapError intentionally wraps errors with trace data
func (t *Transport) roundTrip(op string, req frame.Request, want int) (frame.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return frame.Response{}, joybus.NewTransportClosedError(op, t.portName)
	}

	t.trace = joybus.NewTraceBuffer("UART", t.portName, traceSize)
	defer func() { t.trace = nil }()

	if err := t.send(op, req.Encode()); err != nil {
		return frame.Response{}, t.trace.WrapError(err)
	}

	resp, err := t.receive(op)
	if err != nil {
		return frame.Response{}, t.trace.WrapError(err)
	}
	if resp.Status != frame.BridgeStatusOK {
		return frame.Response{}, t.trace.WrapError(joybus.NewBridgeStatusError(op, t.portName, resp.Status))
	}
	if len(resp.Words) != want {
		err := fmt.Errorf("%w: got %d words, want %d", joybus.ErrFrameCorrupted, len(resp.Words), want)
		return frame.Response{}, t.trace.WrapError(joybus.NewTransportError(op, t.portName, err, joybus.ErrorTypeTransient))
	}
	return resp, nil
}

func (t *Transport) send(op string, data []byte) error {
	t.trace.RecordTX(data, op)
	n, err := t.port.Write(data)
	if err != nil {
		return joybus.NewTransportWriteError(op, t.portName, err)
	} else if n != len(data) {
		return joybus.NewTransportWriteError(op, t.portName, io.ErrShortWrite)
	}
	return t.drainWithRetry(op)
}

// receive reads until a complete response frame has arrived. Bytes ahead of
// the response start byte are discarded.
func (t *Transport) receive(op string) (frame.Response, error) {
	chunk := make([]byte, frame.ResponseLen(frame.MaxBridgeWords))
	var buf []byte
	empty := 0

	for {
		buf = skipToResponseStart(buf)
		if len(buf) > 0 {
			resp, n, err := frame.DecodeResponse(buf)
			switch {
			case err == nil:
				t.trace.RecordRX(buf[:n], "response")
				return resp, nil
			case errors.Is(err, frame.ErrChecksumMismatch):
				t.trace.RecordRX(buf[:n], "bad checksum")
				return frame.Response{}, joybus.NewTransportError(op, t.portName,
					joybus.ErrChecksumMismatch, joybus.ErrorTypeTransient)
			case errors.Is(err, frame.ErrFrameCorrupted):
				buf = buf[1:]
				continue
			}
		}

		if empty >= maxEmptyReads {
			if len(buf) > 0 {
				t.trace.RecordRX(buf, "partial")
			}
			return frame.Response{}, joybus.NewTransportError(op, t.portName,
				fmt.Errorf("%w: no response after %d reads", joybus.ErrTransportRead, empty),
				joybus.ErrorTypeTimeout)
		}

		n, err := t.port.Read(chunk)
		if err != nil {
			return frame.Response{}, joybus.NewTransportReadError(op, t.portName, err)
		}
		if n == 0 {
			empty++
			continue
		}
		empty = 0
		buf = append(buf, chunk[:n]...)
	}
}

func skipToResponseStart(buf []byte) []byte {
	for len(buf) > 0 && buf[0] != frame.BridgeResponseStart {
		buf = buf[1:]
	}
	return buf
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}

		return joybus.NewTransportWriteError(operation, t.portName, fmt.Errorf("drain: %w", err))
	}

	return joybus.NewTransportWriteError(operation, t.portName, fmt.Errorf("drain failed after %d retries", maxRetries))
}
