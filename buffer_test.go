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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_AppendUntilFull(t *testing.T) {
	t.Parallel()
	buf := NewBuffer(Width32)
	assert.Equal(t, MaxCaptureWords, buf.Cap())
	assert.Equal(t, 0, buf.Len())

	for i := range MaxCaptureWords {
		require.NoError(t, buf.Append(uint32(i)))
	}
	assert.Equal(t, MaxCaptureWords, buf.Len())

	err := buf.Append(0xFFFFFFFF)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, MaxCaptureWords, buf.Len())
	assert.Equal(t, uint32(MaxCaptureWords-1), buf.Words()[MaxCaptureWords-1])
}

func TestBuffer_Width16Masks(t *testing.T) {
	t.Parallel()
	buf := NewBuffer(Width16)
	require.NoError(t, buf.Append(0x56781234))
	assert.Equal(t, []uint32{0x1234}, buf.Words())
	assert.Equal(t, Width16, buf.Width())
}

func TestBuffer_Reset(t *testing.T) {
	t.Parallel()
	buf := NewBuffer(Width32)
	require.NoError(t, buf.Append(7))
	require.NoError(t, buf.Append(8))

	buf.Reset(Width16)
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, Width16, buf.Width())
	assert.Empty(t, buf.Words())

	// Reset clears old contents, not just the length
	assert.Equal(t, uint32(0), buf.words[0])
}

func TestWidth(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 4, Width32.Bytes())
	assert.Equal(t, 2, Width16.Bytes())
	assert.Equal(t, Width16, Width32.Toggle())
	assert.Equal(t, Width32, Width16.Toggle())
	assert.Equal(t, "16-bit", Width16.String())
}
