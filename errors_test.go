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
	"io"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRecoverable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unrecognized device", err: &UnrecognizedDeviceError{Channel: 1, ID: 1}, want: true},
		{name: "negotiation", err: &NegotiationError{Channel: 1, Length: 0}, want: true},
		{name: "wrapped storage", err: fmt.Errorf("persist: %w", ErrStorageUnavailable), want: true},
		{name: "link stall", err: ErrLinkStall, want: false},
		{name: "closed", err: NewTransportClosedError("op", "port"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRecoverable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "link stall", err: fmt.Errorf("channel 1: %w", ErrLinkStall), want: true},
		{name: "permanent transport", err: NewTransportClosedError("ReadRegister", "/dev/ttyUSB0"), want: true},
		{name: "transient read", err: NewTransportReadError("ReadRegister", "/dev/ttyUSB0", io.ErrUnexpectedEOF), want: false},
		{name: "device gone", err: fmt.Errorf("read: %w", syscall.ENODEV), want: true},
		{name: "eof", err: io.EOF, want: true},
		{name: "negotiation", err: &NegotiationError{Status: 0x8}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestTypedErrors(t *testing.T) {
	t.Parallel()

	ud := &UnrecognizedDeviceError{Channel: 1, ID: 0x0001}
	require.ErrorIs(t, ud, ErrUnrecognizedDevice)
	assert.Equal(t, "channel 1: other device detected (id 0x0001)", ud.Error())

	ne := &NegotiationError{Channel: 1, Length: 0x201}
	require.ErrorIs(t, ne, ErrNegotiationRejected)
	assert.Contains(t, ne.Error(), "513 out of range")

	ne = &NegotiationError{Channel: 2, Status: 0x4}
	assert.Contains(t, ne.Error(), "error bits 0x4")
}

func TestTransportError_Format(t *testing.T) {
	t.Parallel()
	err := NewTransportWriteError("WriteRegister", "/dev/ttyACM0", io.ErrShortWrite)
	assert.Equal(t, "WriteRegister /dev/ttyACM0: transport write failed: short write", err.Error())
	require.ErrorIs(t, err, ErrTransportWrite)
	require.ErrorIs(t, err, io.ErrShortWrite)

	noPort := NewTransportError("Close", "", ErrTransportClosed, ErrorTypePermanent)
	assert.Equal(t, "Close: transport is closed", noPort.Error())
}

func TestTraceBuffer(t *testing.T) {
	t.Parallel()
	tb := NewTraceBuffer("UART", "/dev/ttyUSB0", 2)
	tb.RecordTX([]byte{0xA5, 0x01}, "read COMCSR")
	tb.RecordRX([]byte{0x5A}, "")
	tb.RecordRX([]byte{0x00, 0x01}, "tail")

	require.NoError(t, tb.WrapError(nil))

	err := tb.WrapError(ErrChecksumMismatch)
	require.ErrorIs(t, err, ErrChecksumMismatch)

	trace := GetTrace(fmt.Errorf("outer: %w", err))
	require.NotNil(t, trace)
	require.Len(t, trace.Trace, 2, "oldest entry evicted")
	assert.Equal(t, TraceRX, trace.Trace[0].Direction)

	formatted := trace.FormatTrace()
	assert.Contains(t, formatted, "[UART:/dev/ttyUSB0] Wire trace (2 entries)")
	assert.Contains(t, formatted, "< 00 01 (tail)")

	assert.Nil(t, GetTrace(errors.New("plain")))
}

func TestFormatHexBytes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "(empty)", formatHexBytes(nil))
	assert.Equal(t, "A5 5A", formatHexBytes([]byte{0xA5, 0x5A}))
	assert.Contains(t, formatHexBytes(make([]byte, 40)), "(40 bytes total)")
}
