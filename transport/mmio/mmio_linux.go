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

//go:build linux

package mmio

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapBlock maps size bytes at physical address base from device. The mapping
// starts on a page boundary; off is the position of base within it.
func mapBlock(device string, base int64, size int) (mem []byte, off int, release func() error, err error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = unix.Close(fd) }()

	pageSize := int64(unix.Getpagesize())
	pageBase := base &^ (pageSize - 1)
	off = int(base - pageBase)
	length := (off + size + int(pageSize) - 1) &^ (int(pageSize) - 1)

	mem, err = unix.Mmap(fd, pageBase, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("mmap: %w", err)
	}
	return mem, off, func() error { return unix.Munmap(mem) }, nil
}
