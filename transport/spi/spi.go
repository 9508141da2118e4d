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

// Package spi provides a register bridge transport over SPI
package spi

import (
	"context"
	"fmt"
	"time"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/ZaparooProject/go-joybus/internal/frame"
	"github.com/ZaparooProject/go-joybus/internal/syncutil"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// Default SPI settings
	defaultFreq = 4 * physic.MegaHertz
	mode        = spi.Mode0

	// filler is clocked out while reading; the bridge discards it
	filler = 0x00

	// maxPolls bounds the wait for the response start byte
	maxPolls         = 256
	defaultPollDelay = 50 * time.Microsecond
	traceSize        = 16
)

// Transport implements joybus.Transport over an SPI register bridge. The bus
// is full duplex: a request is clocked out first, then filler bytes are
// clocked out until the bridge answers with a response frame.
type Transport struct {
	port      spi.PortCloser
	conn      spi.Conn
	trace     *joybus.TraceBuffer
	retry     *joybus.RetryConfig
	portName  string
	pollDelay time.Duration
	mu        syncutil.Mutex
	closed    bool
}

// New creates a new SPI transport on the named port, e.g. "/dev/spidev0.0"
// or "SPI0.0".
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(defaultFreq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	joybus.Debugf("spi: opened %s at %s", portName, defaultFreq)
	return newTransport(port, conn, portName, defaultPollDelay), nil
}

func newTransport(port spi.PortCloser, conn spi.Conn, portName string, pollDelay time.Duration) *Transport {
	return &Transport{
		port:      port,
		conn:      conn,
		portName:  portName,
		pollDelay: pollDelay,
		retry:     joybus.DefaultRetryConfig(),
	}
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

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() joybus.TransportType {
	return joybus.TransportSPI
}

//nolint:wrapcheck // WrapError intentionally wraps errors with trace data
func (t *Transport) roundTrip(op string, req frame.Request, want int) (frame.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return frame.Response{}, joybus.NewTransportClosedError(op, t.portName)
	}

	t.trace = joybus.NewTraceBuffer("SPI", t.portName, traceSize)
	defer func() { t.trace = nil }()

	data := req.Encode()
	t.trace.RecordTX(data, op)
	if err := t.conn.Tx(data, make([]byte, len(data))); err != nil {
		return frame.Response{}, t.trace.WrapError(joybus.NewTransportWriteError(op, t.portName, err))
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

// receive polls for the response start byte, then clocks in the header and
// the remainder of the frame.
func (t *Transport) receive(op string) (frame.Response, error) {
	if err := t.waitResponseStart(op); err != nil {
		return frame.Response{}, err
	}

	header, err := t.read(op, frame.ResponseHeaderLen-1)
	if err != nil {
		return frame.Response{}, err
	}
	count := int(header[1])
	if count > frame.MaxBridgeWords {
		t.trace.RecordRX(header, "bad header")
		return frame.Response{}, joybus.NewTransportError(op, t.portName,
			fmt.Errorf("%w: %d words", joybus.ErrFrameCorrupted, count), joybus.ErrorTypeTransient)
	}

	rest, err := t.read(op, frame.ResponseLen(count)-frame.ResponseHeaderLen)
	if err != nil {
		return frame.Response{}, err
	}

	raw := make([]byte, 0, frame.ResponseLen(count))
	raw = append(raw, frame.BridgeResponseStart)
	raw = append(raw, header...)
	raw = append(raw, rest...)
	t.trace.RecordRX(raw, "response")

	resp, _, err := frame.DecodeResponse(raw)
	if err != nil {
		return frame.Response{}, joybus.NewTransportError(op, t.portName, err, joybus.ErrorTypeTransient)
	}
	return resp, nil
}

func (t *Transport) waitResponseStart(op string) error {
	for range maxPolls {
		b, err := t.read(op, 1)
		if err != nil {
			return err
		}
		if b[0] == frame.BridgeResponseStart {
			return nil
		}
		if t.pollDelay > 0 {
			time.Sleep(t.pollDelay)
		}
	}
	return joybus.NewTransportError(op, t.portName,
		fmt.Errorf("%w: no response after %d polls", joybus.ErrTransportRead, maxPolls),
		joybus.ErrorTypeTimeout)
}

func (t *Transport) read(op string, n int) ([]byte, error) {
	w := make([]byte, n)
	for i := range w {
		w[i] = filler
	}
	r := make([]byte, n)
	if err := t.conn.Tx(w, r); err != nil {
		return nil, joybus.NewTransportReadError(op, t.portName, err)
	}
	return r, nil
}
