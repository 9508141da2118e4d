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

import (
	"encoding/binary"
	"errors"
)

// Register bridge framing.
//
//	request:  A5 op index count [count words if write] chk
//	response: 5A status count [count words] chk
//
// Payload words are big-endian. chk is the additive checksum of every
// preceding byte of the frame.
const (
	BridgeRequestStart  = 0xA5
	BridgeResponseStart = 0x5A

	OpReadRegister  = 0x01
	OpWriteRegister = 0x02
	OpReadBuffer    = 0x03
	OpWriteBuffer   = 0x04

	BridgeStatusOK         = 0x00
	BridgeStatusBadRequest = 0x01
	BridgeStatusChecksum   = 0x02
	BridgeStatusFault      = 0x03

	MaxBridgeWords = 32

	RequestHeaderLen  = 4
	ResponseHeaderLen = 3
)

var (
	// ErrIncomplete means more bytes are needed to decode a frame.
	ErrIncomplete = errors.New("incomplete frame")
	// ErrFrameCorrupted means the frame header is malformed.
	ErrFrameCorrupted = errors.New("frame corrupted")
	// ErrChecksumMismatch means the trailing checksum did not match.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Request is a register bridge request.
type Request struct {
	Words []uint32
	Count int
	Op    byte
	Index byte
}

// Response is a register bridge response.
type Response struct {
	Words  []uint32
	Status byte
}

// IsWrite reports whether op carries a payload in the request.
func IsWrite(op byte) bool {
	return op == OpWriteRegister || op == OpWriteBuffer
}

func validOp(op byte) bool {
	return op >= OpReadRegister && op <= OpWriteBuffer
}

// RequestLen returns the encoded size of a request for op with count words.
func RequestLen(op byte, count int) int {
	if IsWrite(op) {
		return RequestHeaderLen + count*4 + 1
	}
	return RequestHeaderLen + 1
}

// ResponseLen returns the encoded size of a response carrying count words.
func ResponseLen(count int) int {
	return ResponseHeaderLen + count*4 + 1
}

// Encode serializes the request. For write ops Count is taken from Words.
func (r Request) Encode() []byte {
	count := r.Count
	if IsWrite(r.Op) {
		count = len(r.Words)
	}
	buf := make([]byte, 0, RequestLen(r.Op, count))
	buf = append(buf, BridgeRequestStart, r.Op, r.Index, byte(count))
	if IsWrite(r.Op) {
		for _, w := range r.Words {
			buf = binary.BigEndian.AppendUint32(buf, w)
		}
	}
	return append(buf, CalculateChecksum(buf))
}

// Encode serializes the response.
func (r Response) Encode() []byte {
	buf := make([]byte, 0, ResponseLen(len(r.Words)))
	buf = append(buf, BridgeResponseStart, r.Status, byte(len(r.Words)))
	for _, w := range r.Words {
		buf = binary.BigEndian.AppendUint32(buf, w)
	}
	return append(buf, CalculateChecksum(buf))
}

// DecodeRequest parses a request at the start of buf and returns the number of
// bytes consumed.
func DecodeRequest(buf []byte) (Request, int, error) {
	if len(buf) < RequestHeaderLen+1 {
		return Request{}, 0, ErrIncomplete
	}
	if buf[0] != BridgeRequestStart || !validOp(buf[1]) {
		return Request{}, 0, ErrFrameCorrupted
	}
	req := Request{Op: buf[1], Index: buf[2], Count: int(buf[3])}
	if req.Count > MaxBridgeWords {
		return Request{}, 0, ErrFrameCorrupted
	}
	total := RequestLen(req.Op, req.Count)
	if len(buf) < total {
		return Request{}, 0, ErrIncomplete
	}
	if CalculateChecksum(buf[:total-1]) != buf[total-1] {
		return Request{}, total, ErrChecksumMismatch
	}
	if IsWrite(req.Op) {
		req.Words = decodeWords(buf[RequestHeaderLen:total-1], req.Count)
	}
	return req, total, nil
}

// DecodeResponse parses a response at the start of buf and returns the number
// of bytes consumed.
func DecodeResponse(buf []byte) (Response, int, error) {
	if len(buf) < ResponseHeaderLen+1 {
		return Response{}, 0, ErrIncomplete
	}
	if buf[0] != BridgeResponseStart {
		return Response{}, 0, ErrFrameCorrupted
	}
	count := int(buf[2])
	if count > MaxBridgeWords {
		return Response{}, 0, ErrFrameCorrupted
	}
	total := ResponseLen(count)
	if len(buf) < total {
		return Response{}, 0, ErrIncomplete
	}
	if CalculateChecksum(buf[:total-1]) != buf[total-1] {
		return Response{}, total, ErrChecksumMismatch
	}
	return Response{
		Status: buf[1],
		Words:  decodeWords(buf[ResponseHeaderLen:total-1], count),
	}, total, nil
}

func decodeWords(payload []byte, count int) []uint32 {
	words := make([]uint32, count)
	for i := range count {
		words[i] = binary.BigEndian.Uint32(payload[i*4:])
	}
	return words
}
