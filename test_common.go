// Copyright 2025 The TView Project Contributors.
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

//go:build !prod

package tiqiaa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/TViewProject/go-tiqiaa/internal/testing"
)

// fastTestConfig returns a device configuration with the open-time
// settle and drain phases disabled and every timeout tightened, so
// simulator-backed tests finish in milliseconds.
func fastTestConfig() *DeviceConfig {
	cfg := DefaultDeviceConfig()
	cfg.ReadTimeout = 5 * time.Millisecond
	cfg.WriteTimeout = 100 * time.Millisecond
	cfg.ReplyTimeout = 250 * time.Millisecond
	cfg.SendAckTimeout = 250 * time.Millisecond
	cfg.ReceiveTimeout = 500 * time.Millisecond
	cfg.OpenSettle = 0
	cfg.DrainReads = 0
	cfg.DrainTimeout = time.Millisecond
	return cfg
}

// wireSimulator connects a VirtualTView behind a mock transport:
// every report the device writes is handed to the simulator and the
// simulator's replies are queued straight back as reads.
func wireSimulator(mt *MockTransport, sim *testutil.VirtualTView) {
	mt.OnWrite(func(report []byte) {
		for _, reply := range sim.HandleReport(report) {
			mt.QueueRead(reply)
		}
	})
}

// newSimulatedDevice creates an unopened device wired to a simulated
// dongle. Tests that exercise Open drive it themselves; everything
// else goes through openSimulatedDevice.
func newSimulatedDevice(t *testing.T, opts ...Option) (*Device, *MockTransport, *testutil.VirtualTView) {
	t.Helper()

	sim := testutil.NewVirtualTView()
	mt := NewMockTransport()
	wireSimulator(mt, sim)

	device, err := New(mt, append([]Option{WithConfig(fastTestConfig())}, opts...)...)
	require.NoError(t, err)

	return device, mt, sim
}

// openSimulatedDevice creates and opens a device against a simulated
// dongle, closing it again when the test finishes.
func openSimulatedDevice(t *testing.T, opts ...Option) (*Device, *MockTransport, *testutil.VirtualTView) {
	t.Helper()

	device, mt, sim := newSimulatedDevice(t, opts...)
	require.NoError(t, device.Open())
	t.Cleanup(func() { _ = device.Close() })

	return device, mt, sim
}

// injectSignal lets an IR signal arrive at the simulated dongle. When a
// capture is armed the delivery reports come back immediately and are
// queued on the transport; otherwise the simulator stages the signal
// until the next arm, whose reports flow through the write hook.
func injectSignal(mt *MockTransport, sim *testutil.VirtualTView, signal []byte) {
	for _, report := range sim.InjectSignal(signal) {
		mt.QueueRead(report)
	}
}
