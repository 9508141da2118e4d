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

package frame

import "math/bits"

// Command is a JOY bus command frame: the command byte plus the number of
// bytes sent to and expected from the device. Lengths are at most 127.
type Command struct {
	Code   byte
	InLen  int
	OutLen int
}

// PingFrame returns the identification command.
func PingFrame() Command {
	return Command{Code: CmdIdentify, InLen: 3, OutLen: 1}
}

// DataFrame returns the data command, used both to read the pending
// transmission length and to pull each data word.
func DataFrame() Command {
	return Command{Code: CmdData, InLen: 4, OutLen: 1}
}

// Word returns the first command buffer word for the frame. The command byte
// is sent first, so it occupies the most significant byte.
func (c Command) Word() uint32 {
	return uint32(c.Code) << 24
}

// DeviceID extracts the identification field from a ping response.
func DeviceID(response uint32) uint16 {
	return uint16(response >> 16)
}

// ChannelErrorShift returns the bit offset of the error nibble for channel in
// the status register.
func ChannelErrorShift(channel int) int {
	return (MaxChannel - (channel & ChannelMask)) * channelByteBits
}

// ReverseBytes reverses the byte order of a word.
func ReverseBytes(word uint32) uint32 {
	return bits.ReverseBytes32(word)
}

// SwapHalfWords exchanges the two 16-bit halves of a word.
func SwapHalfWords(word uint32) uint32 {
	return bits.RotateLeft32(word, 16)
}
