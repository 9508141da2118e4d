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

// Package detection finds register bridges on the host's serial ports.
package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/ZaparooProject/go-joybus/transport/uart"
	"go.bug.st/serial/enumerator"
)

// DeviceInfo represents a serial port answering the bridge protocol
type DeviceInfo struct {
	// Connection path (e.g., "/dev/ttyUSB0", "COM3")
	Path string
	// USB product string, when known
	Name string
	// USB VID:PID, when known
	VIDPID string
	// Transport type
	Transport joybus.TransportType
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	if d.Name != "" {
		return fmt.Sprintf("%s bridge at %s (%s)", d.Transport, d.Path, d.Name)
	}
	return fmt.Sprintf("%s bridge at %s", d.Transport, d.Path)
}

// ProbeFunc checks whether a bridge answers on path
type ProbeFunc func(ctx context.Context, path string) error

// Options configures the detection behavior
type Options struct {
	// Probe talks to each candidate port; nil uses ProbeUART
	Probe ProbeFunc
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Maximum time to spend probing one port
	ProbeTimeout time.Duration
	// USBOnly skips ports that are not USB serial adapters
	USBOnly bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		ProbeTimeout: 2 * time.Second,
		USBOnly:      true,
	}
}

// ErrNoDevicesFound indicates no bridge answered on any port
var ErrNoDevicesFound = errors.New("no register bridge found")

// listPorts enumerates serial ports; replaced in tests
var listPorts = enumerator.GetDetailedPortsList

// DetectSerialBridges probes every eligible serial port and returns those
// answering the bridge protocol, in enumeration order.
func DetectSerialBridges(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	probe := opts.Probe
	if probe == nil {
		probe = ProbeUART
	}

	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []DeviceInfo
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return devices, err
		}

		info := DeviceInfo{Path: port.Name, Name: port.Product, Transport: joybus.TransportUART}
		if port.IsUSB {
			info.VIDPID = port.VID + ":" + port.PID
		}
		if !eligible(port, info, opts) {
			continue
		}

		probeCtx, cancel := probeContext(ctx, opts.ProbeTimeout)
		err := probe(probeCtx, port.Name)
		cancel()
		if err != nil {
			joybus.Debugf("detection: %s: %v", port.Name, err)
			continue
		}
		devices = append(devices, info)
	}

	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}

func eligible(port *enumerator.PortDetails, info DeviceInfo, opts *Options) bool {
	if opts.USBOnly && !port.IsUSB {
		return false
	}
	if info.VIDPID != "" && IsBlocked(info.VIDPID, opts.Blocklist) {
		return false
	}
	return !IsPathIgnored(port.Name, opts.IgnorePaths)
}

func probeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// ProbeUART opens path as a bridge and reads the status register
func ProbeUART(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	transport, err := uart.New(path)
	if err != nil {
		return err
	}
	defer func() { _ = transport.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		if err := transport.SetTimeout(time.Until(deadline) / 8); err != nil {
			return err
		}
	}
	_, err = transport.ReadRegister(joybus.RegStatus)
	return err
}
