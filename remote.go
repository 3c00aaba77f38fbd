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

package tiqiaa

import (
	"context"
	"fmt"
	"time"

	"github.com/TViewProject/go-tiqiaa/storage"
)

// necRepeatPeriod is how often a held NEC button emits repeat frames.
const necRepeatPeriod = 108 * time.Millisecond

// Remote sends saved codes by name, pairing a device with a code store
// so callers deal in button names instead of raw signal data.
type Remote struct {
	device *Device
	store  *storage.Store
}

// NewRemote creates a remote over an open device and a code store.
func NewRemote(device *Device, store *storage.Store) *Remote {
	return &Remote{device: device, store: store}
}

// Send transmits the stored signal for name at its stored frequency.
func (r *Remote) Send(ctx context.Context, name string) error {
	code, err := r.store.Load(name)
	if err != nil {
		return err
	}
	if err := r.device.SendIRContext(ctx, code.Frequency, code.Signal); err != nil {
		return fmt.Errorf("send %q: %w", name, err)
	}
	return nil
}

// Tap transmits the short-press variant for name. Codes without a
// separate tap signal send their main signal.
func (r *Remote) Tap(ctx context.Context, name string) error {
	code, err := r.store.LoadSmart(name)
	if err != nil {
		return err
	}
	if err := r.device.SendIRContext(ctx, code.Frequency, code.Tap); err != nil {
		return fmt.Errorf("tap %q: %w", name, err)
	}
	return nil
}

// Hold emulates keeping the button for name pressed for d: one full
// send followed by periodic repeats until d elapses. Codes that decode
// as NEC repeat with protocol repeat frames; anything else re-sends
// the full signal. An every of zero or less uses the NEC repeat
// period.
func (r *Remote) Hold(ctx context.Context, name string, d, every time.Duration) error {
	code, err := r.store.LoadSmart(name)
	if err != nil {
		return err
	}
	if every <= 0 {
		every = necRepeatPeriod
	}

	repeat := code.Hold
	if _, err := DecodeNEC(code.Hold); err == nil {
		repeat = EncodeNECRepeat()
	}

	if err := r.device.SendIRContext(ctx, code.Frequency, code.Hold); err != nil {
		return fmt.Errorf("hold %q: %w", name, err)
	}

	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
			if err := r.device.SendIRContext(ctx, code.Frequency, repeat); err != nil {
				return fmt.Errorf("hold %q: %w", name, err)
			}
		}
	}
}
