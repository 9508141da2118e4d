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
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-joybus/internal/frame"
)

// Error categories. The capture driver keeps running on recoverable errors and
// stops on fatal ones.
var (
	// Protocol errors - recoverable, the next tick retries
	ErrUnrecognizedDevice  = errors.New("unrecognized device")
	ErrNegotiationRejected = errors.New("length negotiation rejected")

	// Storage errors - recoverable, the capture is discarded
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Link errors - fatal
	ErrLinkStall = errors.New("link stalled: busy bit never cleared")

	// Transport errors
	ErrTransportClosed  = errors.New("transport is closed")
	ErrTransportRead    = errors.New("transport read failed")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrBridgeStatus     = errors.New("bridge reported failure")
	ErrFrameCorrupted   = frame.ErrFrameCorrupted
	ErrChecksumMismatch = frame.ErrChecksumMismatch

	// Data errors
	ErrCapacityExceeded = errors.New("capture buffer capacity exceeded")
	ErrInvalidChannel   = errors.New("invalid channel")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ErrorType represents the category of a transport error
type ErrorType int

const (
	// ErrorTypeTransient indicates a single operation failed but the link may recover
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates the transport cannot be used anymore
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout
	ErrorTypeTimeout
)

// TransportError wraps transport-level errors with additional context
type TransportError struct {
	Err  error     // Underlying error
	Op   string    // Operation that failed
	Port string    // Port or device identifier
	Type ErrorType // Error category
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UnrecognizedDeviceError reports a device whose identification does not
// match the handheld.
type UnrecognizedDeviceError struct {
	Channel int
	ID      uint16
}

func (e *UnrecognizedDeviceError) Error() string {
	return fmt.Sprintf("channel %d: other device detected (id 0x%04X)", e.Channel, e.ID)
}

func (*UnrecognizedDeviceError) Unwrap() error {
	return ErrUnrecognizedDevice
}

// NegotiationError reports a rejected length negotiation. Either Status holds
// the channel's error bits, or Length is outside the accepted range.
type NegotiationError struct {
	Channel int
	Status  uint32
	Length  uint32
}

func (e *NegotiationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("channel %d: negotiation failed with error bits 0x%X", e.Channel, e.Status)
	}
	return fmt.Sprintf("channel %d: negotiated length %d out of range", e.Channel, e.Length)
}

func (*NegotiationError) Unwrap() error {
	return ErrNegotiationRejected
}

// IsRecoverable returns true if the driver should keep running after err.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrUnrecognizedDevice),
		errors.Is(err, ErrNegotiationRejected),
		errors.Is(err, ErrStorageUnavailable):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the link or transport is gone.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrLinkStall),
		errors.Is(err, ErrTransportClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// isDeviceGoneError checks for OS-level errors indicating the bridge was unplugged.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		//nolint:exhaustive // Only checking device-gone errors
		switch errno {
		case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
			return true
		}
	}
	return false
}

// NewTransportError creates a transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:   op,
		Port: port,
		Err:  err,
		Type: errType,
	}
}

// NewTransportReadError creates a read error (transient)
func NewTransportReadError(op, port string, err error) *TransportError {
	return NewTransportError(op, port, fmt.Errorf("%w: %w", ErrTransportRead, err), ErrorTypeTransient)
}

// NewTransportWriteError creates a write error (transient)
func NewTransportWriteError(op, port string, err error) *TransportError {
	return NewTransportError(op, port, fmt.Errorf("%w: %w", ErrTransportWrite, err), ErrorTypeTransient)
}

// NewTransportClosedError creates a closed transport error (permanent)
func NewTransportClosedError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportClosed, ErrorTypePermanent)
}

// NewBridgeStatusError creates an error for a non-OK bridge status byte
func NewBridgeStatusError(op, port string, status byte) *TransportError {
	return NewTransportError(op, port, fmt.Errorf("%w: status 0x%02X", ErrBridgeStatus, status), ErrorTypeTransient)
}

// =============================================================================
// Wire Trace Logging
// =============================================================================
// TraceableError embeds bridge wire traffic in errors so a failed register
// access can be diagnosed after the fact.

// TraceDirection indicates the direction of wire data
type TraceDirection string

const (
	// TraceTX indicates data sent to the bridge
	TraceTX TraceDirection = "TX"
	// TraceRX indicates data received from the bridge
	TraceRX TraceDirection = "RX"
)

// TraceEntry represents a single wire-level operation
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

// String formats a trace entry for display
func (e TraceEntry) String() string {
	hexData := formatHexBytes(e.Data)
	if e.Note != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData, e.Note)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, hexData)
}

// TraceableError wraps an error with wire-level trace data.
//
//	var te *joybus.TraceableError
//	if errors.As(err, &te) {
//	    log.Printf("Wire trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err       error
	Transport string
	Port      string
	Trace     []TraceEntry
}

func (e *TraceableError) Error() string {
	return e.Err.Error()
}

func (e *TraceableError) Unwrap() error {
	return e.Err
}

// FormatTrace returns a human-readable formatted trace log
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s:%s] (no trace data)", e.Transport, e.Port)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s:%s] Wire trace (%d entries):\n", e.Transport, e.Port, len(e.Trace))
	for _, entry := range e.Trace {
		direction := ">"
		if entry.Direction == TraceRX {
			direction = "<"
		}
		if entry.Note != "" {
			_, _ = fmt.Fprintf(&sb, "  %s %s (%s)\n", direction, formatHexBytes(entry.Data), entry.Note)
		} else {
			_, _ = fmt.Fprintf(&sb, "  %s %s\n", direction, formatHexBytes(entry.Data))
		}
	}
	return sb.String()
}

func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	limit := min(len(data), 32)
	parts := make([]string, limit)
	for i := range limit {
		parts[i] = fmt.Sprintf("%02X", data[i])
	}
	out := strings.Join(parts, " ")
	if len(data) > limit {
		out += fmt.Sprintf(" ... (%d bytes total)", len(data))
	}
	return out
}

// TraceBuffer collects trace entries during one bridge operation. It keeps at
// most maxSize entries, evicting the oldest.
type TraceBuffer struct {
	transport string
	port      string
	entries   []TraceEntry
	maxSize   int
}

// NewTraceBuffer creates a new trace buffer with the specified capacity
func NewTraceBuffer(transport, port string, maxSize int) *TraceBuffer {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &TraceBuffer{
		entries:   make([]TraceEntry, 0, maxSize),
		maxSize:   maxSize,
		transport: transport,
		port:      port,
	}
}

// RecordTX records a transmission to the bridge
func (tb *TraceBuffer) RecordTX(data []byte, note string) {
	tb.record(TraceTX, data, note)
}

// RecordRX records data received from the bridge
func (tb *TraceBuffer) RecordRX(data []byte, note string) {
	tb.record(TraceRX, data, note)
}

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	entry := TraceEntry{
		Direction: dir,
		Data:      append([]byte(nil), data...),
		Timestamp: time.Now(),
		Note:      note,
	}
	if len(tb.entries) >= tb.maxSize {
		copy(tb.entries, tb.entries[1:])
		tb.entries[len(tb.entries)-1] = entry
	} else {
		tb.entries = append(tb.entries, entry)
	}
}

// WrapError wraps err with the collected trace. Returns nil if err is nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{
		Err:       err,
		Trace:     append([]TraceEntry(nil), tb.entries...),
		Transport: tb.transport,
		Port:      tb.port,
	}
}

// GetTrace extracts trace data from an error, returning nil if not present
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
