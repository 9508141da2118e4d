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

package testing

import (
	"errors"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/ZaparooProject/go-joybus/internal/frame"
	"github.com/ZaparooProject/go-joybus/internal/syncutil"
)

// Bridge is the device side of the register bridge protocol. Bytes written to
// it are decoded as requests and executed against Target; responses are
// queued for Read. It stands in for the microcontroller that sits between a
// serial or SPI host and the SI controller.
type Bridge struct {
	Target        joybus.Transport
	in            []byte
	out           []byte
	Requests      []frame.Request
	mu            syncutil.Mutex
	corruptNext   bool
	faultNext     bool
	dropResponses bool
}

// NewBridge creates a bridge executing requests on target.
func NewBridge(target joybus.Transport) *Bridge {
	return &Bridge{Target: target}
}

// CorruptNextResponse flips the checksum of the next response.
func (b *Bridge) CorruptNextResponse() {
	b.mu.Lock()
	b.corruptNext = true
	b.mu.Unlock()
}

// FailNextRequest answers the next request with a fault status.
func (b *Bridge) FailNextRequest() {
	b.mu.Lock()
	b.faultNext = true
	b.mu.Unlock()
}

// DropResponses makes the bridge go silent.
func (b *Bridge) DropResponses(drop bool) {
	b.mu.Lock()
	b.dropResponses = drop
	b.mu.Unlock()
}

// Write accepts request bytes. Complete requests are executed immediately.
func (b *Bridge) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.in = append(b.in, p...)
	for len(b.in) > 0 {
		req, n, err := frame.DecodeRequest(b.in)
		switch {
		case errors.Is(err, frame.ErrIncomplete):
			return len(p), nil
		case errors.Is(err, frame.ErrChecksumMismatch):
			b.in = b.in[n:]
			b.respond(frame.Response{Status: frame.BridgeStatusChecksum})
			continue
		case err != nil:
			// Resynchronize on the next start byte
			b.in = b.in[1:]
			continue
		}
		b.in = b.in[n:]
		b.Requests = append(b.Requests, req)
		b.respond(b.execute(req))
	}
	return len(p), nil
}

// Read returns queued response bytes. With nothing queued it returns 0 bytes
// and no error, like a serial port read that timed out.
func (b *Bridge) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(p, b.out)
	b.out = b.out[n:]
	return n, nil
}

// Exchange performs a full-duplex transfer: w is written and the returned
// bytes are whatever was queued before w was processed, padded with zeros.
func (b *Bridge) Exchange(w []byte) []byte {
	r := make([]byte, len(w))
	_, _ = b.Read(r)
	_, _ = b.Write(w)
	return r
}

func (b *Bridge) respond(resp frame.Response) {
	if b.dropResponses {
		return
	}
	encoded := resp.Encode()
	if b.corruptNext {
		encoded[len(encoded)-1] ^= 0xFF
		b.corruptNext = false
	}
	b.out = append(b.out, encoded...)
}

func (b *Bridge) execute(req frame.Request) frame.Response {
	if b.faultNext {
		b.faultNext = false
		return frame.Response{Status: frame.BridgeStatusFault}
	}

	reg := joybus.Register(req.Index)
	switch req.Op {
	case frame.OpReadRegister:
		v, err := b.Target.ReadRegister(reg)
		if err != nil {
			return frame.Response{Status: frame.BridgeStatusFault}
		}
		return frame.Response{Words: []uint32{v}}
	case frame.OpWriteRegister:
		if len(req.Words) != 1 {
			return frame.Response{Status: frame.BridgeStatusBadRequest}
		}
		if err := b.Target.WriteRegister(reg, req.Words[0]); err != nil {
			return frame.Response{Status: frame.BridgeStatusFault}
		}
		return frame.Response{}
	case frame.OpReadBuffer:
		words := make([]uint32, req.Count)
		if err := b.Target.ReadBuffer(words); err != nil {
			return frame.Response{Status: frame.BridgeStatusFault}
		}
		return frame.Response{Words: words}
	case frame.OpWriteBuffer:
		if err := b.Target.WriteBuffer(req.Words); err != nil {
			return frame.Response{Status: frame.BridgeStatusFault}
		}
		return frame.Response{}
	default:
		return frame.Response{Status: frame.BridgeStatusBadRequest}
	}
}
