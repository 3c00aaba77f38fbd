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

package polling

import (
	"context"
	"time"

	"github.com/TViewProject/go-tiqiaa"
	"github.com/TViewProject/go-tiqiaa/internal/syncutil"
)

// DeviceRecoverer handles device recovery after sleep/wake or errors
type DeviceRecoverer interface {
	// AttemptRecovery tries to recover the device connection.
	// Returns nil if recovery was successful, error otherwise.
	AttemptRecovery(ctx context.Context) error

	// Device returns the current device reference (may change after
	// reconnection)
	Device() *tiqiaa.Device
}

// ReopenFunc is a function that attempts to reopen/reconnect the device
type ReopenFunc func() (*tiqiaa.Device, error)

// DefaultRecoverer implements a tiered recovery strategy:
// 1. Soft resync via an idle-mode handshake
// 2. Full reconnection via user-provided reopen function
type DefaultRecoverer struct {
	device      *tiqiaa.Device
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer with tiered recovery strategy.
// If reopenFunc is nil, only the soft resync will be attempted.
func NewDefaultRecoverer(
	device *tiqiaa.Device,
	reopenFunc ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		device:      device,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery implements tiered recovery:
// 1. Try an idle-mode handshake - works if the USB link is still valid
// 2. If that fails and reopenFunc is provided, try full reconnection
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error

	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		// Tier 1: The idle handshake round-trips a state reply, which
		// proves the dongle is still listening.
		err := r.device.SetModeContext(ctx, tiqiaa.ModeIdle)
		if err == nil {
			return nil
		}
		lastErr = err

		// Tier 2: Full reconnection (if reopenFunc provided)
		if r.reopenFunc != nil {
			_ = r.device.Close()
			newDevice, reopenErr := r.reopenFunc()
			if reopenErr == nil {
				r.device = newDevice
				return nil
			}
			lastErr = reopenErr
		}
	}

	return lastErr
}

// Device returns the current device reference.
// This may return a different device after a successful reconnection.
func (r *DefaultRecoverer) Device() *tiqiaa.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device
}
