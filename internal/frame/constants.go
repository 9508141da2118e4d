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

// Package frame implements the JOY bus command framing used by the SI
// controller: command frames, control word encoding, the byte-order
// corrections applied to device responses, and the register bridge framing
// spoken by the serial and SPI transports.
package frame

// JOY bus command bytes
const (
	CmdIdentify = 0x00 // Device type query
	CmdData     = 0x14 // Pending length / next data word
)

// DeviceGBA is the identification value reported by a Game Boy Advance.
const DeviceGBA = 0x0004

// StatusSentinel is written to the status register before every transfer.
const StatusSentinel = 0x20202020

// Control word bit layout
const (
	ChannelShift    = 25
	ChannelEnable   = 1 << 24
	OutLenShift     = 16
	InLenShift      = 8
	CommandEnable   = 1 << 7
	CallbackEnable  = 1 << 6
	ChannelDupShift = 1
	TransferStart   = 1 << 0

	LengthMask  = 0x7F
	ChannelMask = 0x3
)

// Status register error bits, four per channel. Channel 0 owns the top byte.
const (
	ChannelErrorMask = 0x0F
	channelByteBits  = 8
)

// MaxChannel is the highest addressable link port.
const MaxChannel = 3
