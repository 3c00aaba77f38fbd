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
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/TViewProject/go-tiqiaa"
	"github.com/TViewProject/go-tiqiaa/storage"
)

var (
	sendRepeat int
	sendDelay  time.Duration
	sendTap    bool
	sendHold   time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <name>",
	Short: "Send a saved IR code",
	Long: `Send transmits a previously learned code through the dongle.

With --tap the short press variant of the code is sent when one was
learned. With --hold the code is held down for the given duration,
using NEC repeat frames when the code is an NEC frame.`,
	Args: exactArgs(1),
	RunE: runSend,
}

var sendNECCmd = &cobra.Command{
	Use:   "send-nec <code>",
	Short: "Send a raw NEC code without saving it",
	Long: `Send-nec builds an NEC frame from a 16 bit code and transmits it.
The code combines an 8 bit address and an 8 bit command, for example
0x20DF for address 0x20, command 0xDF. Hex (0x20DF) and decimal forms
are both accepted.

With --ext-addr the argument is an 8 bit command instead and the frame
uses the extended NEC layout with a full 16 bit address.`,
	Args: exactArgs(1),
	RunE: runSendNEC,
}

var (
	sendNECRepeat int
	sendNECDelay  time.Duration
	sendNECFreq   int
	sendNECAddr   uint16
)

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVarP(&sendRepeat, "repeat", "r", 1,
		"Number of times to send the code")
	sendCmd.Flags().DurationVarP(&sendDelay, "delay", "d", 100*time.Millisecond,
		"Delay between repeated sends")
	sendCmd.Flags().BoolVar(&sendTap, "tap", false,
		"Send the short press variant when one exists")
	sendCmd.Flags().DurationVar(&sendHold, "hold", 0,
		"Hold the button down for this long (e.g. 2s)")

	rootCmd.AddCommand(sendNECCmd)
	sendNECCmd.Flags().IntVarP(&sendNECRepeat, "repeat", "r", 1,
		"Number of times to send the frame")
	sendNECCmd.Flags().DurationVarP(&sendNECDelay, "delay", "d", 100*time.Millisecond,
		"Delay between repeated sends")
	sendNECCmd.Flags().IntVar(&sendNECFreq, "freq", tiqiaa.DefaultFrequency,
		"Carrier frequency in Hz")
	sendNECCmd.Flags().Uint16Var(&sendNECAddr, "ext-addr", 0,
		"Extended NEC 16 bit address; the argument becomes the 8 bit command")
}

func runSend(cmd *cobra.Command, args []string) error {
	name := args[0]

	if sendTap && sendHold > 0 {
		return usageErrorf("--tap and --hold cannot be combined")
	}
	if sendRepeat < 1 {
		return usageErrorf("--repeat must be at least 1")
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	device, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer closeDevice(device)

	remote := tiqiaa.NewRemote(device, store)

	switch {
	case sendHold > 0:
		_, _ = fmt.Printf("Holding %q for %s\n", name, sendHold)
		err = remote.Hold(ctx, name, sendHold, 0)
	case sendTap:
		_, _ = fmt.Printf("Tapping %q\n", name)
		err = remote.Tap(ctx, name)
	default:
		_, _ = fmt.Printf("Sending %q\n", name)
		err = sendRepeated(ctx, sendRepeat, sendDelay, func() error {
			return remote.Send(ctx, name)
		})
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no saved code %q (try 'tiqiaa list')", name)
		}
		return err
	}

	_, _ = fmt.Println("Done.")
	return nil
}

func runSendNEC(cmd *cobra.Command, args []string) error {
	if sendNECRepeat < 1 {
		return usageErrorf("--repeat must be at least 1")
	}

	var frame []byte
	if cmd.Flags().Changed("ext-addr") {
		command, err := strconv.ParseUint(args[0], 0, 8)
		if err != nil {
			return fmt.Errorf("invalid NEC command %q (use hex 0xDF or decimal, 0-255)", args[0])
		}
		frame = tiqiaa.EncodeNECExtended(sendNECAddr, byte(command))
		_, _ = fmt.Printf("Sending extended NEC addr 0x%04X, cmd 0x%02X\n",
			sendNECAddr, byte(command))
	} else {
		code, err := strconv.ParseUint(args[0], 0, 16)
		if err != nil {
			return fmt.Errorf("invalid NEC code %q (use hex 0x20DF or decimal, 0-65535)", args[0])
		}
		frame = tiqiaa.EncodeNEC(uint16(code))
		_, _ = fmt.Printf("Sending NEC %s\n", tiqiaa.FormatNEC(uint16(code)))
	}

	ctx := cmd.Context()
	device, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer closeDevice(device)

	err = sendRepeated(ctx, sendNECRepeat, sendNECDelay, func() error {
		return device.SendIRContext(ctx, sendNECFreq, frame)
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Println("Done.")
	return nil
}

// sendRepeated runs send n times with a pause between sends, bailing out
// when the context is cancelled mid pause.
func sendRepeated(ctx context.Context, n int, delay time.Duration, send func() error) error {
	for i := 0; i < n; i++ {
		if err := send(); err != nil {
			return err
		}
		if n > 1 {
			_, _ = fmt.Printf("  Sent %d/%d\n", i+1, n)
		}
		if i == n-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil
}
