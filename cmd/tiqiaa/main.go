// Copyright 2026 The TView Project Contributors.
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

// Command tiqiaa controls Tiqiaa TView USB IR transceivers: learning
// codes from physical remotes, replaying them, and acting as a
// software remote over the saved set.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TViewProject/go-tiqiaa"
	"github.com/TViewProject/go-tiqiaa/storage"
	"github.com/TViewProject/go-tiqiaa/transport/serial"
	"github.com/TViewProject/go-tiqiaa/transport/usb"
)

// Exit codes: 0 success, 1 runtime failure, 2 usage error.
const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

// errUsage marks errors caused by bad invocations rather than runtime
// failures, so main can map them to the usage exit code.
var errUsage = errors.New("usage error")

func usageError(err error) error {
	return fmt.Errorf("%w: %w", errUsage, err)
}

func usageErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// wrapArgs converts cobra argument validation failures into usage
// errors.
func wrapArgs(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := inner(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

func exactArgs(n int) cobra.PositionalArgs { return wrapArgs(cobra.ExactArgs(n)) }
func minArgs(n int) cobra.PositionalArgs   { return wrapArgs(cobra.MinimumNArgs(n)) }

var noArgs = wrapArgs(cobra.NoArgs)

// Persistent flags
var (
	flagPort     string
	flagCodesDir string
	flagDebug    bool
	flagDebugLog bool
)

var rootCmd = &cobra.Command{
	Use:   "tiqiaa",
	Short: "Control Tiqiaa TView USB IR transceivers",
	Long: `Tiqiaa - learn, replay and organize infrared remote codes with a
Tiqiaa TView USB dongle.

The dongle is found automatically over USB. For CP210x serial bridges,
pass the serial device with --port instead.

Codes are stored as JSON files compatible with the original TView
tooling, one file per code, under --codes-dir (default:
$XDG_DATA_HOME/tiqiaa/codes).`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args: func(_ *cobra.Command, args []string) error {
		if len(args) > 0 {
			return usageErrorf("unknown command %q", args[0])
		}
		return nil
	},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if flagDebug {
			tiqiaa.SetDebugEnabled(true)
		}
		if flagDebugLog {
			path, err := tiqiaa.InitSessionLog()
			if err != nil {
				return fmt.Errorf("failed to create session log: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Session log: %s\n", path)
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = tiqiaa.CloseSessionLog()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

const appVersion = "0.2.0"

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagPort, "port", "p", "",
		"Serial port of a CP210x-bridged dongle (default: auto-detect USB)")
	rootCmd.PersistentFlags().StringVar(&flagCodesDir, "codes-dir", "",
		"Directory holding saved codes")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false,
		"Print wire-level debug output")
	rootCmd.PersistentFlags().BoolVar(&flagDebugLog, "debug-log", false,
		"Write a wire-level session log file in the current directory")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
}

// openDevice connects to a dongle: the --port serial device when
// given, the first USB dongle otherwise. The caller owns the returned
// device and closes it via closeDevice.
func openDevice(ctx context.Context) (*tiqiaa.Device, error) {
	transport, err := newTransport(ctx)
	if err != nil {
		return nil, err
	}

	device, err := tiqiaa.New(transport)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	if err := device.OpenContext(ctx); err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to open dongle: %w", err)
	}
	return device, nil
}

func newTransport(ctx context.Context) (tiqiaa.Transport, error) {
	if flagPort != "" {
		transport, err := serial.New(flagPort)
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", flagPort, err)
		}
		return transport, nil
	}

	transport, err := usb.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open USB dongle: %w", err)
	}
	return transport, nil
}

func closeDevice(device *tiqiaa.Device) {
	if err := device.Close(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to close device: %v\n", err)
	}
}

// openStore opens the code store at --codes-dir, or the default
// per-user location.
func openStore() (*storage.Store, error) {
	dir := flagCodesDir
	if dir == "" {
		var err error
		dir, err = storage.DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve codes directory: %w", err)
		}
	}

	store, err := storage.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open code store: %w", err)
	}
	return store, nil
}

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nShutting down gracefully...\n")
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return exitOK
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return exitUsage
		}
		return exitRuntime
	}
	return exitOK
}
