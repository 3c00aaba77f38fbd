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

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TViewProject/go-tiqiaa"
	"github.com/TViewProject/go-tiqiaa/polling"
)

var (
	receiveWindow time.Duration
	receiveDecode bool
	receiveHex    bool
	receiveCount  int
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Listen for IR signals and print them",
	Long: `Receive keeps the dongle in receive mode and prints every IR signal
it captures. Signals that parse as NEC frames are shown with their
decoded address and command.

The listener survives dongle hiccups and host sleep: when the link
drops it resyncs the dongle and reopens it if needed.`,
	Args: noArgs,
	RunE: runReceive,
}

func init() {
	rootCmd.AddCommand(receiveCmd)
	receiveCmd.Flags().DurationVar(&receiveWindow, "window", time.Second,
		"Length of each receive window")
	receiveCmd.Flags().BoolVar(&receiveDecode, "decode", true,
		"Decode captured signals as NEC when they parse")
	receiveCmd.Flags().BoolVar(&receiveHex, "hex", false,
		"Dump the raw signal bytes of each capture")
	receiveCmd.Flags().IntVarP(&receiveCount, "count", "c", 0,
		"Stop after this many signals (0 means run until interrupted)")
}

func runReceive(cmd *cobra.Command, args []string) error {
	device, err := openDevice(cmd.Context())
	if err != nil {
		return err
	}

	cfg := polling.DefaultConfig()
	cfg.Window = receiveWindow
	cfg.DecodeNEC = receiveDecode

	session := polling.New(device, cfg)
	defer func() {
		// The recoverer may have swapped in a fresh device.
		closeDevice(session.Device())
	}()

	listenCtx, stopListening := context.WithCancel(cmd.Context())
	defer stopListening()

	captured := 0
	session.SetOnSignal(func(sig polling.Signal) error {
		printSignal(sig)
		captured++
		if receiveCount > 0 && captured >= receiveCount {
			stopListening()
		}
		return nil
	})
	session.SetOnError(func(err error) bool {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "receive error: %v\n", err)
		return true
	})
	session.SetRecoverer(polling.NewDefaultRecoverer(device, func() (*tiqiaa.Device, error) {
		return openDevice(cmd.Context())
	}, 0, 0))

	_, _ = fmt.Println("Listening for IR signals. Press Ctrl+C to stop...")

	err = session.Start(listenCtx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	metrics := session.Metrics()
	_, _ = fmt.Printf("Captured %d signal(s) over %d window(s)", metrics.Signals, metrics.Cycles)
	if metrics.Errors > 0 {
		_, _ = fmt.Printf(", %d error(s)", metrics.Errors)
	}
	_, _ = fmt.Println()

	return err
}

func printSignal(sig polling.Signal) {
	line := fmt.Sprintf("[%s] %d bytes", sig.At.Format("15:04:05.000"), len(sig.Data))
	if sig.Decode != nil {
		line += "  NEC " + tiqiaa.FormatNEC(sig.Decode.Code)
		if !sig.Decode.Validated {
			line += " (unvalidated)"
		}
	}
	_, _ = fmt.Println(line)
	if receiveHex {
		_, _ = fmt.Printf("  % X\n", sig.Data)
	}
}
