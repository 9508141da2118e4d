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
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withLogWriter swaps the session writer for the duration of a test.
func withLogWriter(t *testing.T, w *bytes.Buffer) {
	t.Helper()
	logMu.Lock()
	origWriter, origEnabled := sessionLogWriter, debugEnabled
	sessionLogWriter = w
	debugEnabled = false
	logMu.Unlock()

	t.Cleanup(func() {
		logMu.Lock()
		sessionLogWriter, debugEnabled = origWriter, origEnabled
		logMu.Unlock()
	})
}

func TestDebugf_WritesToSessionLog(t *testing.T) {
	var buf bytes.Buffer
	withLogWriter(t, &buf)

	Debugf("negotiated %d words", 5)

	assert.Contains(t, buf.String(), "DEBUG: negotiated 5 words\n")
}

func TestDebugf_IncludesTimestamp(t *testing.T) {
	var buf bytes.Buffer
	withLogWriter(t, &buf)

	Debugf("tick")

	matched, err := regexp.MatchString(`^\d{2}:\d{2}:\d{2}\.\d{3} DEBUG: tick`, buf.String())
	require.NoError(t, err)
	assert.True(t, matched, "got: %s", buf.String())
}

func TestDebugln_SpacesOperands(t *testing.T) {
	var buf bytes.Buffer
	withLogWriter(t, &buf)

	Debugln("channel", 1, "idle")

	assert.Contains(t, buf.String(), "DEBUG: channel 1 idle\n")
}

func TestDebugf_NilSessionWriter(t *testing.T) {
	withLogWriter(t, nil)
	logMu.Lock()
	sessionLogWriter = nil
	logMu.Unlock()

	assert.NotPanics(t, func() { Debugf("no writer %d", 1) })
}

func TestSessionLog_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { _ = CloseSessionLog() })

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	assert.Equal(t, path, SessionLogPath())
	assert.Regexp(t, `^joybus_\d{8}_\d{6}\.log$`, filepath.Base(path))

	Debugf("capture complete")
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, SessionLogPath())

	content, err := os.ReadFile(path) //nolint:gosec // path is from InitSessionLog
	require.NoError(t, err)
	assert.Contains(t, string(content), "=== JOY Bus Capture Session Log ===")
	assert.Contains(t, string(content), "DEBUG: capture complete")
	assert.Contains(t, string(content), "=== Session ended ===")
}

func TestCloseSessionLog_NoFile(t *testing.T) {
	assert.NoError(t, CloseSessionLog())
}

func TestInitSessionLog_BadDirectory(t *testing.T) {
	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing", "dir"))
	require.Error(t, err)
}
