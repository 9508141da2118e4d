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

import "fmt"

// MaxCaptureWords is the capacity of a capture buffer and the largest length
// a device may announce.
const MaxCaptureWords = 0x200

// Width is the size of each captured sample.
type Width int

const (
	// Width32 stores each data word as received.
	Width32 Width = 32
	// Width16 stores the half-word swapped data word truncated to 16 bits.
	Width16 Width = 16
)

// Bytes returns the stored size of one sample.
func (w Width) Bytes() int {
	return int(w) / 8
}

// Toggle returns the other width.
func (w Width) Toggle() Width {
	if w == Width16 {
		return Width32
	}
	return Width16
}

func (w Width) String() string {
	return fmt.Sprintf("%d-bit", int(w))
}

// Buffer is a fixed-capacity, width-tagged sequence of captured words.
// It is zeroed at allocation and never grows past MaxCaptureWords.
type Buffer struct {
	width Width
	n     int
	words [MaxCaptureWords]uint32
}

// NewBuffer allocates an empty buffer for width
func NewBuffer(width Width) *Buffer {
	return &Buffer{width: width}
}

// Append stores word at the next index. Words are masked to 16 bits in
// Width16 buffers.
func (b *Buffer) Append(word uint32) error {
	if b.n >= len(b.words) {
		return fmt.Errorf("%w: %d words", ErrCapacityExceeded, len(b.words))
	}
	if b.width == Width16 {
		word &= 0xFFFF
	}
	b.words[b.n] = word
	b.n++
	return nil
}

// Len returns the number of stored words
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the buffer capacity
func (b *Buffer) Cap() int {
	return len(b.words)
}

// Width returns the sample width
func (b *Buffer) Width() Width {
	return b.width
}

// Words returns the stored words. The slice aliases the buffer.
func (b *Buffer) Words() []uint32 {
	return b.words[:b.n]
}

// Reset empties the buffer and switches it to width.
func (b *Buffer) Reset(width Width) {
	b.words = [MaxCaptureWords]uint32{}
	b.n = 0
	b.width = width
}
