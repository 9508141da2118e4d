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

import "github.com/ZaparooProject/go-joybus/internal/frame"

// Announcement is one pending transmission: the raw word returned for the
// length request, followed by the data words pulled one at a time.
type Announcement struct {
	Words     []uint32
	RawLength uint32
}

// VirtualGBA models a handheld on a link port. It answers the identification
// command with ID and serves queued transmissions to data commands.
type VirtualGBA struct {
	queue    []Announcement
	current  []uint32
	ID       uint16
	pos      int
	Requests int
	active   bool
}

// NewVirtualGBA creates a handheld reporting the Game Boy Advance type.
func NewVirtualGBA() *VirtualGBA {
	return &VirtualGBA{ID: frame.DeviceGBA}
}

// NewVirtualDevice creates a device reporting an arbitrary type.
func NewVirtualDevice(id uint16) *VirtualGBA {
	return &VirtualGBA{ID: id}
}

// QueueTransmission queues words to be announced and then served. The length
// is announced in the byte order the handheld uses on the wire.
func (g *VirtualGBA) QueueTransmission(words []uint32) {
	g.queue = append(g.queue, Announcement{
		RawLength: frame.ReverseBytes(uint32(len(words))),
		Words:     append([]uint32(nil), words...),
	})
}

// QueueRawLength queues a bare length announcement with no data behind it,
// for exercising negotiation edge cases.
func (g *VirtualGBA) QueueRawLength(raw uint32) {
	g.queue = append(g.queue, Announcement{RawLength: raw})
}

// Pending returns the number of queued transmissions not yet announced.
func (g *VirtualGBA) Pending() int {
	return len(g.queue)
}

// Respond returns the first response word for cmd.
func (g *VirtualGBA) Respond(cmd byte) uint32 {
	g.Requests++
	switch cmd {
	case frame.CmdIdentify:
		return uint32(g.ID) << 16
	case frame.CmdData:
		return g.nextData()
	default:
		return 0
	}
}

func (g *VirtualGBA) nextData() uint32 {
	if g.active {
		if g.pos < len(g.current) {
			w := g.current[g.pos]
			g.pos++
			if g.pos == len(g.current) {
				g.active = false
			}
			return w
		}
		g.active = false
		return 0
	}
	if len(g.queue) == 0 {
		return 0
	}
	next := g.queue[0]
	g.queue = g.queue[1:]
	g.current = next.Words
	g.pos = 0
	g.active = len(next.Words) > 0
	return next.RawLength
}
