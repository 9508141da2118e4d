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
	"testing"
	"time"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_Transitions(t *testing.T) {
	t.Parallel()
	var s Session
	assert.Equal(t, StateIdle, s.State)

	s.TransitionToNegotiating(0x0004)
	assert.Equal(t, StateNegotiating, s.State)
	assert.Equal(t, uint16(0x0004), s.DeviceID)

	s.TransitionToCapturing(3, joybus.Width16)
	assert.Equal(t, StateCapturing, s.State)
	assert.Equal(t, 3, s.TargetLength)
	assert.Equal(t, joybus.Width16, s.Width)
	assert.False(t, s.Complete())

	s.CapturedCount = 3
	assert.True(t, s.Complete())

	s.Reset()
	assert.Equal(t, StateNegotiating, s.State)
	assert.Equal(t, 0, s.CapturedCount)
	assert.Equal(t, 0, s.TargetLength)
	assert.Equal(t, uint16(0x0004), s.DeviceID, "device survives between captures")
	assert.False(t, s.Complete())
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "negotiating", StateNegotiating.String())
	assert.Equal(t, "capturing", StateCapturing.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		modify  func(*Config)
		wantErr error
		name    string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "channel 0", modify: func(c *Config) { c.Channel = 0 }},
		{name: "channel 3", modify: func(c *Config) { c.Channel = 3 }},
		{name: "16-bit", modify: func(c *Config) { c.Width = joybus.Width16 }},
		{name: "zero delays", modify: func(c *Config) { c.TickInterval, c.TransferDelay = 0, 0 }},
		{
			name:    "negative channel",
			modify:  func(c *Config) { c.Channel = -1 },
			wantErr: joybus.ErrInvalidChannel,
		},
		{
			name:    "channel 4",
			modify:  func(c *Config) { c.Channel = 4 },
			wantErr: joybus.ErrInvalidChannel,
		},
		{
			name:    "8-bit width",
			modify:  func(c *Config) { c.Width = 8 },
			wantErr: joybus.ErrInvalidParameter,
		},
		{
			name:    "negative delay",
			modify:  func(c *Config) { c.TransferDelay = -time.Millisecond },
			wantErr: joybus.ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	assert.Equal(t, 1, cfg.Channel)
	assert.Equal(t, joybus.Width32, cfg.Width)
	assert.Equal(t, time.Millisecond, cfg.TransferDelay)
	assert.Equal(t, time.Second/60, cfg.TickInterval)
}
