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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TViewProject/go-tiqiaa/detection"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show detected dongles and the code store",
	Long: `Info scans for TView dongles on USB and serial transports, reports
the firmware of the first reachable one and summarizes the code store.`,
	Args: noArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	_, _ = fmt.Printf("tiqiaa v%s\n\n", appVersion)

	devices, err := detection.DetectAll(nil)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "scan failed: %v\n", err)
	}

	if len(devices) == 0 && flagPort == "" {
		_, _ = fmt.Println("No TView dongle detected.")
		_, _ = fmt.Println()
		_, _ = fmt.Println("Troubleshooting:")
		_, _ = fmt.Println("  1. Is the dongle plugged in?")
		_, _ = fmt.Println("  2. Do you have permission for the USB device? (check udev rules)")
		_, _ = fmt.Println("  3. Try unplugging and replugging the dongle")
	} else {
		if len(devices) > 0 {
			_, _ = fmt.Printf("Detected dongles (%d):\n", len(devices))
			for _, info := range devices {
				line := "  " + info.String()
				if info.Serial != "" {
					line += ", serial " + info.Serial
				}
				_, _ = fmt.Println(line)
			}
		}
		printFirmware(cmd)
	}

	printStoreSummary(cmd)
	return nil
}

func printFirmware(cmd *cobra.Command) {
	ctx := cmd.Context()
	device, err := openDevice(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "dongle not reachable: %v\n", err)
		return
	}
	defer closeDevice(device)

	version, err := device.FirmwareVersionContext(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "firmware query failed: %v\n", err)
		return
	}
	_, _ = fmt.Printf("Firmware: %s\n", version)
}

func printStoreSummary(cmd *cobra.Command) {
	store, err := openStore()
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "code store unavailable: %v\n", err)
		return
	}
	names, err := store.List()
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "code store unreadable: %v\n", err)
		return
	}
	_, _ = fmt.Printf("\nSaved codes: %d (in %s)\n", len(names), store.Dir())
}
