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

import joybus "github.com/ZaparooProject/go-joybus"

// State is the capture state machine state
type State int

const (
	// StateIdle waits for a handheld to answer the identification command
	StateIdle State = iota
	// StateNegotiating asks the handheld for the length of its next transmission
	StateNegotiating
	// StateCapturing pulls the negotiated number of words
	StateCapturing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateCapturing:
		return "capturing"
	default:
		return "unknown"
	}
}

// Session is the state of one capture session. It is created when a handheld
// is identified and reset after every completed capture.
type Session struct {
	State         State
	DeviceID      uint16
	TargetLength  int
	CapturedCount int
	Width         joybus.Width
}

// TransitionToNegotiating records an identified device.
func (s *Session) TransitionToNegotiating(deviceID uint16) {
	s.State = StateNegotiating
	s.DeviceID = deviceID
	s.TargetLength = 0
	s.CapturedCount = 0
}

// TransitionToCapturing latches the negotiated length and the width that
// every word of this capture will use.
func (s *Session) TransitionToCapturing(length int, width joybus.Width) {
	s.State = StateCapturing
	s.TargetLength = length
	s.CapturedCount = 0
	s.Width = width
}

// Reset returns a finished session to negotiation for the next capture.
func (s *Session) Reset() {
	s.State = StateNegotiating
	s.TargetLength = 0
	s.CapturedCount = 0
}

// Complete reports whether every negotiated word has been captured.
func (s *Session) Complete() bool {
	return s.State == StateCapturing && s.CapturedCount >= s.TargetLength
}
