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

// Package storage persists completed captures as flat binary dump files.
package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/ZaparooProject/go-joybus/internal/syncutil"
)

// DefaultPath is the dump file written when no path is configured
const DefaultPath = "joy_dump.bin"

const filePerm = 0o644

// FileSink writes every persisted buffer to a single file. The first
// successful Persist of a sink truncates the file; later ones append. Words
// are written without any header or framing.
type FileSink struct {
	order   binary.ByteOrder
	path    string
	mu      syncutil.RWMutex
	count   int
	started bool
}

// FileSinkOption configures a FileSink
type FileSinkOption func(*FileSink)

// WithByteOrder sets the byte order of each stored word. The default is big
// endian, the byte order of the SI controller.
func WithByteOrder(order binary.ByteOrder) FileSinkOption {
	return func(s *FileSink) {
		if order != nil {
			s.order = order
		}
	}
}

// NewFileSink creates a sink writing to path
func NewFileSink(path string, opts ...FileSinkOption) *FileSink {
	if path == "" {
		path = DefaultPath
	}
	s := &FileSink{path: path, order: binary.BigEndian}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the dump file path
func (s *FileSink) Path() string {
	return s.path
}

// Count returns the number of buffers persisted successfully
func (s *FileSink) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Persist writes the words held by buf, 4 bytes each for 32-bit captures and
// 2 bytes each for 16-bit captures. On failure the buffer is dropped and the
// file state is left as it was, so the next successful call still truncates
// if nothing was stored yet.
func (s *FileSink) Persist(buf *joybus.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return fmt.Errorf("%w: %w", joybus.ErrStorageUnavailable, err)
	}

	w := bufio.NewWriter(f)
	if err := s.encode(w, buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: write %s: %w", joybus.ErrStorageUnavailable, s.path, err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: write %s: %w", joybus.ErrStorageUnavailable, s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", joybus.ErrStorageUnavailable, s.path, err)
	}

	s.started = true
	s.count++
	joybus.Debugf("storage: wrote %d %s words to %s (capture %d)", buf.Len(), buf.Width(), s.path, s.count)
	return nil
}

func (s *FileSink) open() (*os.File, error) {
	if !s.started {
		return os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	}
	return os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
}

func (s *FileSink) encode(w *bufio.Writer, buf *joybus.Buffer) error {
	var scratch [4]byte
	for _, word := range buf.Words() {
		var b []byte
		if buf.Width() == joybus.Width16 {
			s.order.PutUint16(scratch[:2], uint16(word))
			b = scratch[:2]
		} else {
			s.order.PutUint32(scratch[:], word)
			b = scratch[:]
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}
