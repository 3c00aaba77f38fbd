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

package tiqiaa

import (
	"testing"
	"time"
)

func TestDefaultDeviceConfig(t *testing.T) {
	t.Parallel()
	config := DefaultDeviceConfig()

	if config == nil {
		t.Fatal("DefaultDeviceConfig() returned nil")
	}

	tests := []struct {
		got      any
		expected any
		name     string
	}{
		{config.ReadTimeout, 100 * time.Millisecond, "ReadTimeout"},
		{config.WriteTimeout, 2 * time.Second, "WriteTimeout"},
		{config.ReplyTimeout, 1 * time.Second, "ReplyTimeout"},
		{config.SendAckTimeout, 2 * time.Second, "SendAckTimeout"},
		{config.ReceiveTimeout, 15 * time.Second, "ReceiveTimeout"},
		{config.OpenSettle, 200 * time.Millisecond, "OpenSettle"},
		{config.DrainTimeout, 50 * time.Millisecond, "DrainTimeout"},
		{config.OpenAttempts, 3, "OpenAttempts"},
		{config.DrainReads, 10, "DrainReads"},
		{config.InboxSize, 32, "InboxSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()
	config := DefaultRetryConfig()

	if config == nil {
		t.Fatal("DefaultRetryConfig() returned nil")
	}

	tests := []struct {
		got      any
		expected any
		name     string
	}{
		{config.MaxAttempts, 3, "MaxAttempts"},
		{config.InitialBackoff, 10 * time.Millisecond, "InitialBackoff"},
		{config.MaxBackoff, 1 * time.Second, "MaxBackoff"},
		{config.BackoffMultiplier, 2.0, "BackoffMultiplier"},
		{config.Jitter, 0.1, "Jitter"},
		{config.RetryTimeout, 5 * time.Second, "RetryTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestTransportTypeStrings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		tt   TransportType
		str  string
	}{
		{"USB", TransportUSB, "usb"},
		{"Serial", TransportSerial, "serial"},
		{"Mock", TransportMock, "mock"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if string(test.tt) != test.str {
				t.Errorf("TransportType %s = %q, want %q", test.name, string(test.tt), test.str)
			}
		})
	}
}
