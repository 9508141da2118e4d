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
	"fmt"
	"time"

	joybus "github.com/ZaparooProject/go-joybus"
)

// Config holds capture driver configuration
type Config struct {
	// Channel is the link port the handheld is plugged into
	Channel int
	// Width is the initial sample width
	Width joybus.Width
	// TickInterval paces the outer driver loop, roughly one display refresh
	TickInterval time.Duration
	// TransferDelay is slept after every data transfer while capturing
	TransferDelay time.Duration
}

// DefaultConfig returns the stock capture settings:
// channel 1, 32-bit samples, 60 Hz ticks and 1 ms between transfers.
func DefaultConfig() *Config {
	return &Config{
		Channel:       1,
		Width:         joybus.Width32,
		TickInterval:  time.Second / 60,
		TransferDelay: time.Millisecond,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if err := joybus.ValidateChannel(c.Channel); err != nil {
		return err
	}
	if c.Width != joybus.Width32 && c.Width != joybus.Width16 {
		return fmt.Errorf("%w: width %d", joybus.ErrInvalidParameter, c.Width)
	}
	if c.TickInterval < 0 || c.TransferDelay < 0 {
		return fmt.Errorf("%w: negative interval", joybus.ErrInvalidParameter)
	}
	return nil
}
