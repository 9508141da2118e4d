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

import "fmt"

// ControlWord is the value written to the communication control register to
// start a transfer.
type ControlWord uint32

// ControlFields are the decoded fields of a ControlWord.
type ControlFields struct {
	Channel        int
	ChannelDup     int
	InLen          int
	OutLen         int
	ChannelEnable  bool
	CommandEnable  bool
	CallbackEnable bool
	Start          bool
}

// EncodeControlWord builds the control word for a transfer on channel. The
// lengths are masked to 7 bits and the channel to 2 bits.
func EncodeControlWord(channel, inLen, outLen int) ControlWord {
	ch := uint32(channel) & ChannelMask
	in := uint32(inLen) & LengthMask
	out := uint32(outLen) & LengthMask

	var cw uint32
	cw |= ch << ChannelShift
	cw |= ChannelEnable
	cw |= out << OutLenShift
	cw |= in << InLenShift
	cw |= CommandEnable
	cw |= ch << ChannelDupShift
	cw |= TransferStart
	return ControlWord(cw)
}

// EncodeCommand builds the control word for cmd on channel.
func EncodeCommand(channel int, cmd Command) ControlWord {
	return EncodeControlWord(channel, cmd.InLen, cmd.OutLen)
}

// Decode splits the control word into its fields.
func (cw ControlWord) Decode() ControlFields {
	v := uint32(cw)
	return ControlFields{
		Channel:        int((v >> ChannelShift) & ChannelMask),
		ChannelDup:     int((v >> ChannelDupShift) & ChannelMask),
		InLen:          int((v >> InLenShift) & LengthMask),
		OutLen:         int((v >> OutLenShift) & LengthMask),
		ChannelEnable:  v&ChannelEnable != 0,
		CommandEnable:  v&CommandEnable != 0,
		CallbackEnable: v&CallbackEnable != 0,
		Start:          v&TransferStart != 0,
	}
}

func (cw ControlWord) String() string {
	f := cw.Decode()
	return fmt.Sprintf("0x%08X (ch=%d in=%d out=%d)", uint32(cw), f.Channel, f.InLen, f.OutLen)
}
