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

// Command joydump captures data sent by a Game Boy Advance over the link
// cable and appends every transmission to a binary dump file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	joybus "github.com/ZaparooProject/go-joybus"
	"github.com/ZaparooProject/go-joybus/capture"
	"github.com/ZaparooProject/go-joybus/detection"
	"github.com/ZaparooProject/go-joybus/storage"
	"github.com/ZaparooProject/go-joybus/transport/mmio"
	"github.com/ZaparooProject/go-joybus/transport/spi"
	"github.com/ZaparooProject/go-joybus/transport/uart"
)

type config struct {
	devicePath   string
	outPath      string
	logDir       string
	channel      int
	width        int
	tick         time.Duration
	stallTimeout time.Duration
	debug        bool
}

// Package-level flag variables
var (
	flagDevicePath   string
	flagOutPath      string
	flagLogDir       string
	flagChannel      int
	flagWidth        int
	flagTick         time.Duration
	flagStallTimeout time.Duration
	flagDebug        bool
)

func init() {
	flag.StringVar(&flagDevicePath, "device", "mmio",
		`SI controller access: "mmio", "mmio:<device>", "auto", an SPI port or a serial port`)
	flag.StringVar(&flagOutPath, "out", storage.DefaultPath, "Dump file, truncated on the first capture")
	flag.StringVar(&flagLogDir, "log-dir", "", "Write a session log into this directory")
	flag.IntVar(&flagChannel, "channel", capture.DefaultConfig().Channel, "Link port channel (0-3)")
	flag.IntVar(&flagWidth, "width", int(joybus.Width32), "Initial sample width in bits (32 or 16)")
	flag.DurationVar(&flagTick, "tick", capture.DefaultConfig().TickInterval, "Driver tick interval")
	flag.DurationVar(&flagStallTimeout, "stall-timeout", 0,
		"Give up when a transfer stays busy this long (0 waits forever)")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func parseConfig() *config {
	cfg := &config{
		devicePath:   flagDevicePath,
		outPath:      flagOutPath,
		logDir:       flagLogDir,
		channel:      flagChannel,
		width:        flagWidth,
		tick:         flagTick,
		stallTimeout: flagStallTimeout,
		debug:        flagDebug,
	}

	// Enable debug output if --debug flag is set
	if cfg.debug {
		joybus.SetDebugEnabled(true)
	}

	return cfg
}

func (c *config) captureConfig() (*capture.Config, error) {
	cc := capture.DefaultConfig()
	cc.Channel = c.channel
	cc.Width = joybus.Width(c.width)
	if c.tick > 0 {
		cc.TickInterval = c.tick
	}
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	return cc, nil
}

// transportKind classifies a -device value
func transportKind(path string) joybus.TransportType {
	lower := strings.ToLower(path)
	switch {
	case lower == "" || lower == "mmio" || strings.HasPrefix(lower, "mmio:"):
		return joybus.TransportMMIO
	case strings.Contains(lower, "spi"):
		return joybus.TransportSPI
	default:
		return joybus.TransportUART
	}
}

// newTransport opens the SI controller named by path. "auto" searches the
// serial ports for a register bridge.
func newTransport(ctx context.Context, path string) (joybus.Transport, error) {
	if strings.EqualFold(path, "auto") {
		devices, err := detection.DetectSerialBridges(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to detect register bridge: %w", err)
		}
		_, _ = fmt.Printf("Using %s\n", devices[0])
		path = devices[0].Path
	}

	switch transportKind(path) {
	case joybus.TransportMMIO:
		var opts []mmio.Option
		if dev, ok := strings.CutPrefix(path, "mmio:"); ok && dev != "" {
			opts = append(opts, mmio.WithDevice(dev))
		}
		transport, err := mmio.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create MMIO transport: %w", err)
		}
		return transport, nil
	case joybus.TransportSPI:
		transport, err := spi.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport for %s: %w", path, err)
		}
		return transport, nil
	default:
		transport, err := uart.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport for %s: %w", path, err)
		}
		return transport, nil
	}
}

// consoleDisplay prints status lines
type consoleDisplay struct {
	w io.Writer
}

func (d consoleDisplay) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(d.w, format+"\n", args...)
}

// run captures from transport until the user exits, ctx is cancelled or the
// link fails.
func run(ctx context.Context, cfg *config, transport joybus.Transport, in io.Reader, out io.Writer) error {
	cc, err := cfg.captureConfig()
	if err != nil {
		return err
	}

	var portOpts []joybus.PortOption
	if cfg.stallTimeout > 0 {
		portOpts = append(portOpts, joybus.WithWaitTimeout(cfg.stallTimeout))
	}
	port, err := joybus.NewPort(transport, portOpts...)
	if err != nil {
		return err
	}

	display := consoleDisplay{w: out}
	sink := storage.NewFileSink(cfg.outPath)
	machine, err := capture.NewMachine(port, sink, display, cc)
	if err != nil {
		return err
	}

	ticker := capture.NewIntervalTicker(cc.TickInterval)
	defer ticker.Stop()

	driver := capture.NewDriver(machine, newKeyInput(in), ticker)
	driver.OnError = func(err error) {
		if errors.Is(err, joybus.ErrStorageUnavailable) {
			_, _ = fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	display.Printf("Press q to quit, w to switch between 32-bit and 16-bit samples")
	err = driver.Run(ctx)

	m := machine.Metrics()
	joybus.Debugf("joydump: %d ticks, %d captures, %d words, %d rejected negotiations",
		m.Ticks, m.Captures, m.Transfers, m.NegotiationRejects)
	if n := sink.Count(); n > 0 {
		display.Printf("Saved %d capture(s) to %s", n, sink.Path())
	}
	return err
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Parse command-line flags
	cfg := parseConfig()

	if cfg.logDir != "" {
		path, err := joybus.InitSessionLog(cfg.logDir)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer func() { _ = joybus.CloseSessionLog() }()
		_, _ = fmt.Printf("Session log: %s\n", path)
	}

	transport, err := newTransport(context.Background(), cfg.devicePath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if err := transport.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close transport: %v\n", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
		// A transfer stuck on a stalled link only returns once the
		// transport is gone
		_ = transport.Close()
	}()

	if err := run(ctx, cfg, transport, os.Stdin, os.Stdout); err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, joybus.ErrTransportClosed)) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
