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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TViewProject/go-tiqiaa"
	"github.com/TViewProject/go-tiqiaa/storage"
)

var (
	learnTimeout time.Duration
	learnFreq    int
	learnSource  string
	learnNotes   string
	learnForce   bool
)

var learnCmd = &cobra.Command{
	Use:   "learn <name>",
	Short: "Capture an IR signal and save it under a name",
	Long: `Learn switches the dongle to receive mode, waits for one IR signal
and saves it in the code store. Point the remote at the dongle and
press the button you want to capture.

Captures that parse as NEC frames get their decoded address and
command stored alongside the raw signal.`,
	Args: exactArgs(1),
	RunE: runLearn,
}

func init() {
	rootCmd.AddCommand(learnCmd)
	learnCmd.Flags().DurationVarP(&learnTimeout, "timeout", "t", 10*time.Second,
		"How long to wait for a signal")
	learnCmd.Flags().IntVarP(&learnFreq, "freq", "f", storage.DefaultFrequency,
		"Carrier frequency in Hz to store with the code")
	learnCmd.Flags().StringVarP(&learnSource, "source", "s", "",
		`Where the code came from (e.g. "Samsung TV remote")`)
	learnCmd.Flags().StringVarP(&learnNotes, "notes", "n", "",
		"Free-form note saved with the code")
	learnCmd.Flags().BoolVar(&learnForce, "force", false,
		"Overwrite an existing code with the same name")
}

func runLearn(cmd *cobra.Command, args []string) error {
	name := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}
	if !learnForce {
		if _, err := store.Load(name); err == nil {
			return fmt.Errorf("code %q already exists (use --force to overwrite)", name)
		}
	}

	ctx := cmd.Context()
	device, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer closeDevice(device)

	_, _ = fmt.Printf("Point the remote at the dongle and press a button (waiting up to %s)...\n",
		learnTimeout)

	signal, err := device.ReceiveIRContext(ctx, learnTimeout)
	if err != nil {
		if errors.Is(err, tiqiaa.ErrNoSignal) {
			return fmt.Errorf("no signal captured within %s", learnTimeout)
		}
		return fmt.Errorf("failed to capture signal: %w", err)
	}

	code := storage.Code{
		Name:        name,
		Frequency:   learnFreq,
		Signal:      signal,
		LearnedFrom: learnSource,
		Notes:       learnNotes,
	}
	if decode, decodeErr := tiqiaa.DecodeNEC(signal); decodeErr == nil {
		code.Decoded = &storage.NECMeta{
			Address:   decode.Address,
			Command:   decode.Command,
			Code:      decode.Code,
			Validated: decode.Validated,
		}
	}

	if err := store.Save(code); err != nil {
		return fmt.Errorf("failed to save code: %w", err)
	}

	_, _ = fmt.Printf("Captured %d bytes, saved as %q\n", len(signal), name)
	if code.Decoded != nil && code.Decoded.Validated {
		_, _ = fmt.Printf("NEC: %s\n", tiqiaa.FormatNEC(code.Decoded.Code))
	}
	return nil
}
