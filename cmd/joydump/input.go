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

package main

import (
	"io"

	"github.com/ZaparooProject/go-joybus/capture"
)

// keyInput turns single key presses read from r into driver events. Reads
// happen on a background goroutine so Poll never blocks.
type keyInput struct {
	events chan capture.Event
}

func newKeyInput(r io.Reader) *keyInput {
	in := &keyInput{events: make(chan capture.Event, 16)}
	if r != nil {
		go in.read(r)
	}
	return in
}

func (in *keyInput) read(r io.Reader) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if ev, ok := keyEvent(b); ok {
				in.events <- ev
			}
		}
		if err != nil {
			return
		}
	}
}

// keyEvent maps a key to its event: q or h exits, + or w toggles the width
func keyEvent(b byte) (capture.Event, bool) {
	switch b {
	case 'q', 'Q', 'h', 'H':
		return capture.EventRequestExit, true
	case '+', 'w', 'W':
		return capture.EventToggleWidth, true
	default:
		return 0, false
	}
}

// Poll implements capture.Input
func (in *keyInput) Poll() []capture.Event {
	var events []capture.Event
	for {
		select {
		case ev := <-in.events:
			events = append(events, ev)
		default:
			return events
		}
	}
}
