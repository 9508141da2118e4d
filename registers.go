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

// Register identifies a 32-bit register of the SI controller by its word
// index in the register block.
type Register uint8

// SI controller registers used by the capture driver.
const (
	// RegComCSR is the communication control/status register. Writing a
	// control word with the start bit set begins a transfer; bit 0 reads as
	// busy until the transfer completes.
	RegComCSR Register = 13
	// RegStatus holds four error bits per channel, channel 0 in the top byte.
	RegStatus Register = 14
)

const (
	// RegisterBlockBase is the physical address of the SI register block.
	RegisterBlockBase = 0x0D006400
	// RegisterBlockSize covers the registers plus the command buffer.
	RegisterBlockSize = 0x100
	// BufferOffset is the byte offset of the command buffer in the block.
	BufferOffset = 0x80
	// BufferWords is the command buffer capacity in 32-bit words.
	BufferWords = 32

	// ComCSRBusy is the transfer-in-progress bit of RegComCSR.
	ComCSRBusy = 1 << 0
)

// Offset returns the byte offset of the register in the block.
func (r Register) Offset() int {
	return int(r) * 4
}

func (r Register) String() string {
	switch r {
	case RegComCSR:
		return "COMCSR"
	case RegStatus:
		return "SR"
	default:
		return fmt.Sprintf("REG%d", uint8(r))
	}
}
