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

import "time"

// SleepRecoveryConfig configures automatic recovery after host sleep/wake
type SleepRecoveryConfig struct {
	// Enabled enables sleep detection and recovery attempts
	Enabled bool

	// TimeDiscontinuityThreshold is the minimum elapsed time beyond the
	// receive window that indicates a sleep occurred. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of recovery attempts before
	// treating as a fatal error. Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns sensible defaults for sleep recovery
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep checks if the elapsed time of one receive window indicates
// a host sleep. Returns true if elapsed exceeds (window + threshold).
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, window time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	expectedMax := window + cfg.TimeDiscontinuityThreshold
	return elapsed > expectedMax
}

// Config holds receive session options
type Config struct {
	// Window is how long each capture waits for a signal.
	Window time.Duration
	// IdleDelay is the pause between quiet windows.
	IdleDelay time.Duration
	// MaxIdleDelay caps the stretched delay reached after a long quiet
	// stretch. The delay falls back to IdleDelay on the next signal.
	MaxIdleDelay time.Duration
	// DecodeNEC attaches an NEC decode to each signal when the capture
	// parses as one.
	DecodeNEC bool
	// SleepRecovery configures automatic recovery after host sleep/wake cycles
	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default session configuration
func DefaultConfig() *Config {
	return &Config{
		Window:        time.Second,
		IdleDelay:     100 * time.Millisecond,
		MaxIdleDelay:  500 * time.Millisecond,
		SleepRecovery: DefaultSleepRecoveryConfig(),
	}
}
