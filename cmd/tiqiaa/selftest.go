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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/TViewProject/go-tiqiaa"
)

// selfTestCodes covers both bit values in every position plus a real-world
// code (LG TV power).
var selfTestCodes = []uint16{0x0000, 0x5555, 0xAAAA, 0x20DF}

// rawTestBurst is a 1ms strobe pattern, long enough to show up as a
// flicker on a phone camera. Bytes are 16us runs, bit 7 is LED on.
var rawTestBurst = []byte{0xBE, 0x3E, 0xBE, 0x3E, 0xBE, 0x3E, 0xBE, 0x7F}

var (
	selfTestRounds int
	selfTestReport string
)

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Exercise the dongle's transmitter",
	Long: `Test sends a battery of NEC frames and a raw burst through the dongle
and reports whether each transmission was accepted, with send latencies.

The dongle has no way to see its own output, so point a phone camera at
the IR LED while the test runs: working transmissions show up as a
purple flash.`,
	Args: noArgs,
	RunE: runSelfTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
	testCmd.Flags().IntVar(&selfTestRounds, "rounds", 1,
		"Number of times to run the battery")
	testCmd.Flags().StringVar(&selfTestReport, "report", "",
		"Write a JSON report of every send to this file")
}

// testReport is the --report file payload.
type testReport struct {
	Timestamp time.Time  `json:"timestamp"`
	Firmware  string     `json:"firmware,omitempty"`
	Rounds    int        `json:"rounds"`
	Sends     []testSend `json:"sends"`
	Passed    int        `json:"passed"`
	Failed    int        `json:"failed"`
}

// testSend records one transmission.
type testSend struct {
	Signal    string  `json:"signal"`
	Round     int     `json:"round"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

func printSelfTestBanner() {
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Println("                        TView IR Transmitter Self Test")
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Println("Watch the IR LED while the test runs (phone cameras show it as a purple flash).")
}

func runSelfTest(cmd *cobra.Command, args []string) error {
	if selfTestRounds < 1 {
		return usageErrorf("--rounds must be at least 1")
	}

	printSelfTestBanner()

	ctx := cmd.Context()
	device, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer closeDevice(device)

	report := &testReport{
		Timestamp: time.Now(),
		Rounds:    selfTestRounds,
		Sends:     make([]testSend, 0, selfTestRounds*(len(selfTestCodes)+1)),
	}

	if version, err := device.FirmwareVersionContext(ctx); err == nil {
		report.Firmware = version
		_, _ = fmt.Printf("Firmware: %s\n", version)
	} else {
		_, _ = fmt.Printf("  [!] Firmware query failed: %v\n", err)
	}

	var minLatency, maxLatency, totalLatency time.Duration
	for round := 1; round <= selfTestRounds; round++ {
		_, _ = fmt.Printf("\nRound %d/%d:\n", round, selfTestRounds)

		for _, code := range selfTestCodes {
			label := fmt.Sprintf("NEC 0x%04X", code)
			latency, err := timedSend(ctx, device, label, tiqiaa.EncodeNEC(code))
			if errors.Is(err, context.Canceled) {
				return err
			}
			report.record(label, round, latency, err)
			if err == nil {
				totalLatency += latency
				if minLatency == 0 || latency < minLatency {
					minLatency = latency
				}
				if latency > maxLatency {
					maxLatency = latency
				}
			}
			if err := pause(ctx, 500*time.Millisecond); err != nil {
				return err
			}
		}

		label := fmt.Sprintf("raw burst (%d bytes)", len(rawTestBurst))
		latency, err := timedSend(ctx, device, label, rawTestBurst)
		if errors.Is(err, context.Canceled) {
			return err
		}
		report.record(label, round, latency, err)
	}

	printSelfTestSummary(report, minLatency, maxLatency, totalLatency)

	if selfTestReport != "" {
		if err := writeSelfTestReport(selfTestReport, report); err != nil {
			return err
		}
		_, _ = fmt.Printf("Report written to %s\n", selfTestReport)
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d sends failed", report.Failed, len(report.Sends))
	}
	return nil
}

func timedSend(ctx context.Context, device *tiqiaa.Device, label string, signal []byte) (time.Duration, error) {
	_, _ = fmt.Printf("  %-24s ", label+"...")
	start := time.Now()
	err := device.SendIRContext(ctx, tiqiaa.DefaultFrequency, signal)
	latency := time.Since(start)
	if err != nil {
		_, _ = fmt.Printf("FAIL: %v\n", err)
		return latency, err
	}
	_, _ = fmt.Printf("OK (%s)\n", latency.Round(time.Millisecond))
	return latency, nil
}

func (r *testReport) record(label string, round int, latency time.Duration, err error) {
	send := testSend{
		Signal:    label,
		Round:     round,
		LatencyMS: float64(latency.Microseconds()) / 1000,
	}
	if err != nil {
		send.Error = err.Error()
		r.Failed++
	} else {
		r.Passed++
	}
	r.Sends = append(r.Sends, send)
}

func pause(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func printSelfTestSummary(report *testReport, minLatency, maxLatency, totalLatency time.Duration) {
	status := "PASS"
	if report.Failed > 0 {
		status = "FAIL"
	}

	_, _ = fmt.Println()
	_, _ = fmt.Println("================================================================================")
	_, _ = fmt.Printf("[%s] %d/%d sends accepted\n", status, report.Passed, len(report.Sends))
	if report.Passed > 0 {
		avg := totalLatency / time.Duration(report.Passed)
		_, _ = fmt.Printf("Send latency: min %s, avg %s, max %s\n",
			minLatency.Round(time.Millisecond),
			avg.Round(time.Millisecond),
			maxLatency.Round(time.Millisecond))
	}
	_, _ = fmt.Println("================================================================================")
}

func writeSelfTestReport(path string, report *testReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
