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
	"testing"
	"time"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/ZaparooProject/go-joybus/internal/frame"
	virt "github.com/ZaparooProject/go-joybus/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink keeps a copy of every persisted buffer
type memorySink struct {
	err      error
	captures [][]uint32
	widths   []joybus.Width
}

func (s *memorySink) Persist(buf *joybus.Buffer) error {
	if s.err != nil {
		return s.err
	}
	s.captures = append(s.captures, append([]uint32(nil), buf.Words()...))
	s.widths = append(s.widths, buf.Width())
	return nil
}

// recordingDisplay keeps every status line
type recordingDisplay struct {
	lines []string
}

func (d *recordingDisplay) Printf(format string, args ...any) {
	d.lines = append(d.lines, fmt.Sprintf(format, args...))
}

type testRig struct {
	si      *virt.SimulatedSI
	gba     *virt.VirtualGBA
	sink    *memorySink
	display *recordingDisplay
	machine *Machine
}

func newTestRig(t *testing.T, opts ...MachineOption) *testRig {
	t.Helper()
	si := virt.NewSimulatedSI()
	gba := virt.NewVirtualGBA()
	si.Attach(1, gba)

	port, err := joybus.NewPort(si, joybus.WithWaitTimeout(time.Second))
	require.NoError(t, err)

	rig := &testRig{si: si, gba: gba, sink: &memorySink{}, display: &recordingDisplay{}}
	opts = append([]MachineOption{WithSleep(func(time.Duration) {})}, opts...)
	rig.machine, err = NewMachine(port, rig.sink, rig.display, nil, opts...)
	require.NoError(t, err)
	return rig
}

// identified steps the rig into StateNegotiating
func (r *testRig) identified(t *testing.T) {
	t.Helper()
	require.NoError(t, r.machine.Step())
	require.Equal(t, StateNegotiating, r.machine.State())
}

func TestNewMachine_Validation(t *testing.T) {
	t.Parallel()
	port, err := joybus.NewPort(joybus.NewMockTransport())
	require.NoError(t, err)

	_, err = NewMachine(nil, &memorySink{}, nil, nil)
	require.ErrorIs(t, err, joybus.ErrInvalidParameter)

	_, err = NewMachine(port, nil, nil, nil)
	require.ErrorIs(t, err, joybus.ErrInvalidParameter)

	cfg := DefaultConfig()
	cfg.Channel = 4
	_, err = NewMachine(port, &memorySink{}, nil, cfg)
	require.ErrorIs(t, err, joybus.ErrInvalidChannel)

	m, err := NewMachine(port, &memorySink{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, joybus.Width32, m.Width())
}

func TestMachine_IdentifiesHandheld(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)

	require.NoError(t, rig.machine.Step())

	assert.Equal(t, StateNegotiating, rig.machine.State())
	assert.Equal(t, uint16(frame.DeviceGBA), rig.machine.Session().DeviceID)
	assert.Contains(t, rig.display.lines, "GBA Detected!")
	assert.Equal(t, 1, rig.si.CountCommands(frame.CmdIdentify))
}

func TestMachine_OtherDeviceStaysIdle(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.si.Attach(1, virt.NewVirtualDevice(0x0001))

	err := rig.machine.Step()

	var ude *joybus.UnrecognizedDeviceError
	require.ErrorAs(t, err, &ude)
	assert.Equal(t, uint16(0x0001), ude.ID)
	assert.True(t, joybus.IsRecoverable(err))
	assert.Equal(t, StateIdle, rig.machine.State())
	assert.Contains(t, rig.display.lines, "Other Device Detected -> 0x1")
}

func TestMachine_NoDeviceIsSilent(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.si.Attach(1, nil)

	for range 3 {
		require.NoError(t, rig.machine.Step())
	}
	assert.Equal(t, StateIdle, rig.machine.State())
	assert.Empty(t, rig.display.lines)
}

func TestMachine_CaptureFiveWords(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	words := []uint32{0x11111111, 0x22222222, 0x33333333, 0x44444444, 0x55555555}
	rig.gba.QueueTransmission(words)
	rig.identified(t)

	require.NoError(t, rig.machine.Step())
	s := rig.machine.Session()
	assert.Equal(t, StateCapturing, s.State)
	assert.Equal(t, 5, s.TargetLength)
	assert.Equal(t, 0, s.CapturedCount)
	assert.Contains(t, rig.display.lines, "Incoming Data: 20 bytes total ...")

	require.NoError(t, rig.machine.Step())
	require.Len(t, rig.sink.captures, 1)
	assert.Equal(t, words, rig.sink.captures[0])
	assert.Equal(t, joybus.Width32, rig.sink.widths[0])

	s = rig.machine.Session()
	assert.Equal(t, StateNegotiating, s.State)
	assert.Equal(t, 0, s.CapturedCount)
	assert.Contains(t, rig.display.lines, "Capture complete!")

	m := rig.machine.Metrics()
	assert.Equal(t, int64(5), m.Transfers)
	assert.Equal(t, int64(1), m.Captures)
	assert.Equal(t, int64(3), m.Ticks)
}

func TestMachine_NegotiationGating(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    uint32
		inject uint32
		accept bool
	}{
		{name: "zero length", raw: 0, accept: false},
		{name: "one word", raw: frame.ReverseBytes(1), accept: true},
		{name: "full buffer", raw: frame.ReverseBytes(joybus.MaxCaptureWords), accept: true},
		{name: "one past capacity", raw: frame.ReverseBytes(joybus.MaxCaptureWords + 1), accept: false},
		{name: "unswapped length", raw: 5, accept: false},
		{name: "error bits set", raw: frame.ReverseBytes(5), inject: 0x8, accept: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rig := newTestRig(t)
			rig.identified(t)
			rig.gba.QueueRawLength(tt.raw)
			if tt.inject != 0 {
				rig.si.InjectErrors(1, tt.inject)
			}

			err := rig.machine.Step()
			if tt.accept {
				require.NoError(t, err)
				assert.Equal(t, StateCapturing, rig.machine.State())
				assert.Equal(t, int(frame.ReverseBytes(tt.raw)), rig.machine.Session().TargetLength)
				return
			}

			var ne *joybus.NegotiationError
			require.ErrorAs(t, err, &ne)
			assert.True(t, joybus.IsRecoverable(err))
			assert.Equal(t, StateNegotiating, rig.machine.State())
			assert.Equal(t, int64(1), rig.machine.Metrics().NegotiationRejects)
			if tt.inject != 0 {
				assert.Equal(t, tt.inject, ne.Status)
			}
		})
	}
}

func TestMachine_ErrorBitsClearedBeforeRetry(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.identified(t)

	rig.si.InjectErrors(1, 0x4)
	rig.gba.QueueRawLength(0)
	require.Error(t, rig.machine.Step())

	rig.gba.QueueTransmission([]uint32{1, 2})
	require.NoError(t, rig.machine.Step(), "stale error bits must not block the next negotiation")
	assert.Equal(t, StateCapturing, rig.machine.State())
}

func TestMachine_CountInvariant(t *testing.T) {
	t.Parallel()
	var seen []Session
	rig := newTestRig(t, WithObserver(func(s Session) { seen = append(seen, s) }))
	words := make([]uint32, joybus.MaxCaptureWords)
	for i := range words {
		words[i] = uint32(i)
	}
	rig.gba.QueueTransmission(words)
	rig.identified(t)
	require.NoError(t, rig.machine.Step())
	require.NoError(t, rig.machine.Step())

	require.Len(t, seen, joybus.MaxCaptureWords)
	for i, s := range seen {
		assert.Equal(t, StateCapturing, s.State)
		assert.Equal(t, i+1, s.CapturedCount)
		assert.LessOrEqual(t, s.CapturedCount, s.TargetLength)
		assert.LessOrEqual(t, s.TargetLength, joybus.MaxCaptureWords)
	}
	assert.Equal(t, words, rig.sink.captures[0])
}

func TestMachine_TransferDelay(t *testing.T) {
	t.Parallel()
	var delays []time.Duration
	rig := newTestRig(t, WithSleep(func(d time.Duration) { delays = append(delays, d) }))
	rig.gba.QueueTransmission([]uint32{1, 2, 3})
	rig.identified(t)
	require.NoError(t, rig.machine.Step())
	require.NoError(t, rig.machine.Step())

	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}, delays)
}

func TestMachine_Width16SwapsHalfWords(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	require.True(t, rig.machine.ToggleWidth())
	assert.Contains(t, rig.display.lines, "Switching to 16-bit mode")

	rig.gba.QueueTransmission([]uint32{0xAAAA1111, 0xBBBB2222, 0xCCCC3333})
	rig.identified(t)
	require.NoError(t, rig.machine.Step())
	assert.Contains(t, rig.display.lines, "Incoming Data: 6 bytes total ...")
	require.NoError(t, rig.machine.Step())

	require.Len(t, rig.sink.captures, 1)
	assert.Equal(t, []uint32{0xAAAA, 0xBBBB, 0xCCCC}, rig.sink.captures[0])
	assert.Equal(t, joybus.Width16, rig.sink.widths[0])
}

func TestMachine_ToggleDeferredDuringCapture(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.gba.QueueTransmission([]uint32{0x12345678, 0x9ABCDEF0})
	rig.gba.QueueTransmission([]uint32{0x12345678})
	rig.identified(t)
	require.NoError(t, rig.machine.Step())
	require.Equal(t, StateCapturing, rig.machine.State())

	assert.False(t, rig.machine.ToggleWidth(), "toggle must not apply mid-capture")
	assert.Equal(t, joybus.Width32, rig.machine.Session().Width)
	assert.Equal(t, joybus.Width16, rig.machine.Width(), "pending width is reported")
	assert.NotContains(t, rig.display.lines, "Switching to 16-bit mode")

	require.NoError(t, rig.machine.Step())
	assert.Equal(t, []uint32{0x12345678, 0x9ABCDEF0}, rig.sink.captures[0], "capture keeps its entry width")
	assert.Contains(t, rig.display.lines, "Switching to 16-bit mode")

	require.NoError(t, rig.machine.Step())
	require.NoError(t, rig.machine.Step())
	require.Len(t, rig.sink.captures, 2)
	assert.Equal(t, []uint32{0x1234}, rig.sink.captures[1])
}

func TestMachine_DoubleToggleDuringCaptureCancels(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.gba.QueueTransmission([]uint32{1})
	rig.identified(t)
	require.NoError(t, rig.machine.Step())

	rig.machine.ToggleWidth()
	rig.machine.ToggleWidth()
	require.NoError(t, rig.machine.Step())
	assert.Equal(t, joybus.Width32, rig.machine.Width())
}

func TestMachine_StorageFailureStillResets(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.sink.err = errors.New("disk full")
	rig.gba.QueueTransmission([]uint32{1, 2, 3, 4, 5})
	rig.identified(t)
	require.NoError(t, rig.machine.Step())

	err := rig.machine.Step()
	require.ErrorIs(t, err, joybus.ErrStorageUnavailable)
	assert.True(t, joybus.IsRecoverable(err))

	s := rig.machine.Session()
	assert.Equal(t, StateNegotiating, s.State)
	assert.Equal(t, 0, s.CapturedCount)
	assert.Equal(t, int64(1), rig.machine.Metrics().StorageFailures)

	rig.sink.err = nil
	rig.gba.QueueTransmission([]uint32{6})
	require.NoError(t, rig.machine.Step())
	require.NoError(t, rig.machine.Step())
	assert.Equal(t, [][]uint32{{6}}, rig.sink.captures)
}

func TestMachine_BackToBackCaptures(t *testing.T) {
	t.Parallel()
	rig := newTestRig(t)
	rig.si.SetJitter(virt.JitterConfig{Seed: 7, MaxExtraPolls: 16})
	for i := range 4 {
		rig.gba.QueueTransmission([]uint32{uint32(i), uint32(i) << 8, uint32(i) << 16})
	}
	rig.identified(t)

	for range 8 {
		require.NoError(t, rig.machine.Step())
	}
	require.Len(t, rig.sink.captures, 4)
	assert.Equal(t, []uint32{3, 3 << 8, 3 << 16}, rig.sink.captures[3])
	assert.Equal(t, 1, rig.si.CountCommands(frame.CmdIdentify), "no re-identification between captures")
}

func TestMachine_LinkStallIsFatal(t *testing.T) {
	t.Parallel()
	si := virt.NewSimulatedSI()
	si.Attach(1, virt.NewVirtualGBA())
	port, err := joybus.NewPort(si, joybus.WithWaitTimeout(10*time.Millisecond))
	require.NoError(t, err)
	m, err := NewMachine(port, &memorySink{}, nil, nil)
	require.NoError(t, err)

	si.Stall()
	err = m.Step()
	require.ErrorIs(t, err, joybus.ErrLinkStall)
	assert.False(t, joybus.IsRecoverable(err))
	assert.True(t, joybus.IsFatal(err))
}
