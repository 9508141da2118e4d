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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	joybus "github.com/ZaparooProject/go-joybus"
	virt "github.com/ZaparooProject/go-joybus/internal/testing"
	"github.com/ZaparooProject/go-joybus/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_TwoCapturesToFile(t *testing.T) {
	t.Parallel()
	si := virt.NewSimulatedSI()
	si.SetJitter(virt.JitterConfig{Seed: 42, MaxExtraPolls: 4})
	gba := virt.NewVirtualGBA()
	gba.QueueTransmission([]uint32{0x01020304, 0x05060708, 0x090A0B0C, 0x0D0E0F10, 0x11121314})
	gba.QueueTransmission([]uint32{0xA0A1A2A3, 0xB0B1B2B3, 0xC0C1C2C3})
	si.Attach(1, gba)

	port, err := joybus.NewPort(si, joybus.WithWaitTimeout(time.Second))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "joy_dump.bin")
	sink := storage.NewFileSink(path)
	display := &recordingDisplay{}
	cfg := DefaultConfig()
	cfg.TransferDelay = 0
	m, err := NewMachine(port, sink, display, cfg)
	require.NoError(t, err)

	// identify, negotiate, capture, negotiate, capture
	input := &scriptedInput{script: [][]Event{nil, nil, nil, nil, {EventRequestExit}}}
	require.NoError(t, NewDriver(m, input, &countingTicker{}).Run(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 32)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, data[:4])
	assert.Equal(t, []byte{0xC0, 0xC1, 0xC2, 0xC3}, data[28:])
	assert.Equal(t, 2, sink.Count())
	assert.Equal(t, int64(2), m.Metrics().Captures)
	assert.Contains(t, display.lines, "Incoming Data: 20 bytes total ...")
	assert.Contains(t, display.lines, "Incoming Data: 12 bytes total ...")
}
