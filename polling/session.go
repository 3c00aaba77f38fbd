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

// Package polling runs continuous IR receive sessions over a device,
// delivering captured signals through callbacks with pause/resume
// coordination for interleaved sends.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TViewProject/go-tiqiaa"
	"github.com/TViewProject/go-tiqiaa/internal/syncutil"
)

// Quiet sessions stretch the idle delay to this multiple of IdleDelay
// (capped at MaxIdleDelay) once nothing has been captured for
// quietAfter.
const (
	idleStretchFactor = 5
	quietAfter        = 5 * time.Second
)

var (
	// ErrSessionActive indicates Start was called while the session loop
	// is already running.
	ErrSessionActive = errors.New("session already active")
	// ErrSessionStopped indicates Start was called after Stop.
	ErrSessionStopped = errors.New("session stopped")
)

// errStopped steers the loop out after Stop; Start reports it as a
// clean nil return.
var errStopped = errors.New("stop requested")

// Signal is one captured IR transmission.
type Signal struct {
	// At is when the capture completed.
	At time.Time
	// Decode is the NEC interpretation, set when Config.DecodeNEC is
	// on and the capture parses. A nil Decode is not an error.
	Decode *tiqiaa.NECDecode
	// Data is the raw signal, replayable via SendIR.
	Data []byte
}

// Metrics tracks operational counters for a session
type Metrics struct {
	// Cycles is the number of completed receive windows.
	Cycles int64
	// Signals is the number of captures delivered to OnSignal.
	Signals int64
	// Errors is the number of receive errors handed to OnError.
	Errors int64
	// LastWindowLatency is the duration of the last receive window.
	LastWindowLatency time.Duration
}

// Session handles continuous IR capture over one device
type Session struct {
	// OnSignal receives every capture. A non-nil return stops the
	// session and surfaces from Start.
	OnSignal func(Signal) error
	// OnError receives receive failures. Returning true keeps the
	// session polling; false (or a nil OnError) stops it.
	OnError func(error) bool

	config     *Config
	device     *tiqiaa.Device
	recoverer  DeviceRecoverer
	pauseChan  chan struct{}
	resumeChan chan struct{}
	stopChan   chan struct{}
	stopOnce   sync.Once
	stateMutex syncutil.RWMutex
	active     atomic.Bool
	isPaused   atomic.Bool
	stopped    atomic.Bool

	// Atomic counters for metrics
	cycles        atomic.Int64
	signals       atomic.Int64
	errorCount    atomic.Int64
	windowLatency atomic.Int64
	lastSignalAt  atomic.Int64
}

// New creates a receive session over an open device
func New(device *tiqiaa.Device, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}
	return &Session{
		device:     device,
		config:     config,
		pauseChan:  make(chan struct{}, 1),
		resumeChan: make(chan struct{}, 1),
		stopChan:   make(chan struct{}),
	}
}

// SetOnSignal sets the callback for captured signals.
func (s *Session) SetOnSignal(callback func(Signal) error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnSignal = callback
}

// SetOnError sets the callback for receive failures.
func (s *Session) SetOnError(callback func(error) bool) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.OnError = callback
}

// SetRecoverer installs a recovery strategy tried after receive errors
// and detected host sleeps.
func (s *Session) SetRecoverer(recoverer DeviceRecoverer) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.recoverer = recoverer
}

// Device returns the device the session currently polls. A recoverer
// may have swapped it since New.
func (s *Session) Device() *tiqiaa.Device {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.device
}

// Active reports whether the session loop is running.
func (s *Session) Active() bool {
	return s.active.Load()
}

// Paused reports whether the session is paused.
func (s *Session) Paused() bool {
	return s.isPaused.Load()
}

// Metrics returns current operational counters
func (s *Session) Metrics() Metrics {
	return Metrics{
		Cycles:            s.cycles.Load(),
		Signals:           s.signals.Load(),
		Errors:            s.errorCount.Load(),
		LastWindowLatency: time.Duration(s.windowLatency.Load()),
	}
}

// Pause temporarily stops the capture loop.
// This is used to coordinate with send operations.
func (s *Session) Pause() {
	if s.isPaused.CompareAndSwap(false, true) {
		// Non-blocking send: the loop may be mid-window, in which
		// case the flag alone carries the state.
		select {
		case s.pauseChan <- struct{}{}:
		default:
		}
	}
}

// Resume restarts the capture loop after a pause
func (s *Session) Resume() {
	if s.isPaused.CompareAndSwap(true, false) {
		select {
		case s.resumeChan <- struct{}{}:
		default:
		}
	}
}

// Stop ends the session. Idempotent; a Start in progress returns nil
// once the loop winds down, and later Starts fail with
// ErrSessionStopped.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopChan)
	})
}

// Start runs the capture loop until the context ends, Stop is called,
// a callback stops the session, or the device fails without an OnError
// override. It blocks for the duration of the session.
func (s *Session) Start(ctx context.Context) error {
	if s.stopped.Load() {
		return ErrSessionStopped
	}
	if !s.active.CompareAndSwap(false, true) {
		return ErrSessionActive
	}
	defer s.active.Store(false)

	// Stop cancels the run context so an in-flight receive window ends
	// immediately instead of draining out.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-runCtx.Done():
		}
	}()

	s.lastSignalAt.Store(time.Now().UnixNano())

	for {
		if err := s.gate(runCtx); err != nil {
			return s.finish(ctx, err)
		}

		start := time.Now()
		data, err := s.Device().ReceiveIRContext(runCtx, s.config.Window)
		elapsed := time.Since(start)
		s.cycles.Add(1)
		s.windowLatency.Store(int64(elapsed))

		if s.config.SleepRecovery.DetectSleep(elapsed, s.config.Window) {
			// The window overran by seconds: the host likely slept and
			// the dongle needs a nudge before captures work again.
			s.tryRecover(runCtx)
		}

		switch {
		case err == nil:
			s.signals.Add(1)
			s.lastSignalAt.Store(time.Now().UnixNano())
			if cbErr := s.emitSignal(data); cbErr != nil {
				return s.finish(ctx, cbErr)
			}
		case errors.Is(err, tiqiaa.ErrNoSignal):
			if waitErr := s.idle(runCtx); waitErr != nil {
				return s.finish(ctx, waitErr)
			}
		case runCtx.Err() != nil:
			return s.finish(ctx, runCtx.Err())
		default:
			s.errorCount.Add(1)
			if !s.emitError(err) {
				return s.finish(ctx, fmt.Errorf("receive failed: %w", err))
			}
			s.tryRecover(runCtx)
		}
	}
}

// finish maps loop-internal exits to Start's contract: Stop and
// Stop-induced cancellation return nil, everything else surfaces.
func (s *Session) finish(parent context.Context, err error) error {
	if errors.Is(err, errStopped) {
		return nil
	}
	if errors.Is(err, context.Canceled) && parent.Err() == nil && s.stopped.Load() {
		return nil
	}
	return err
}

// gate handles stop, cancellation and pause signals between windows.
func (s *Session) gate(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopChan:
		return errStopped
	case <-s.pauseChan:
		return s.waitForResume(ctx)
	default:
		return nil
	}
}

func (s *Session) waitForResume(ctx context.Context) error {
	select {
	case <-s.resumeChan:
		return nil
	case <-s.stopChan:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// idle waits out the delay between quiet windows, still responsive to
// pause, stop and cancellation.
func (s *Session) idle(ctx context.Context) error {
	timer := time.NewTimer(s.idleDelay())
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-s.pauseChan:
		return s.waitForResume(ctx)
	case <-s.stopChan:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// idleDelay stretches the configured delay once the session has been
// quiet for a while, easing bus traffic when no remote is in use.
func (s *Session) idleDelay() time.Duration {
	delay := s.config.IdleDelay
	if delay <= 0 {
		delay = DefaultConfig().IdleDelay
	}

	sinceSignal := time.Since(time.Unix(0, s.lastSignalAt.Load()))
	if sinceSignal <= quietAfter {
		return delay
	}
	stretched := delay * idleStretchFactor
	if limit := s.config.MaxIdleDelay; limit > 0 && stretched > limit {
		stretched = limit
	}
	return stretched
}

// emitSignal decodes and delivers one capture with panic recovery.
func (s *Session) emitSignal(data []byte) error {
	s.stateMutex.RLock()
	callback := s.OnSignal
	s.stateMutex.RUnlock()
	if callback == nil {
		return nil
	}

	signal := Signal{Data: data, At: time.Now()}
	if s.config.DecodeNEC {
		if decode, err := tiqiaa.DecodeNEC(data); err == nil {
			signal.Decode = decode
		}
	}

	var callbackErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				callbackErr = fmt.Errorf("signal callback panicked: %v", r)
			}
		}()
		callbackErr = callback(signal)
	}()
	if callbackErr != nil {
		return fmt.Errorf("signal callback failed: %w", callbackErr)
	}
	return nil
}

// emitError reports a receive failure and returns whether to continue.
func (s *Session) emitError(err error) bool {
	s.stateMutex.RLock()
	callback := s.OnError
	s.stateMutex.RUnlock()
	if callback == nil {
		return false
	}

	keepGoing := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				keepGoing = false
			}
		}()
		keepGoing = callback(err)
	}()
	return keepGoing
}

// tryRecover runs the installed recoverer, swapping in a replacement
// device when reconnection produced one. Failures are left for the
// next window to report.
func (s *Session) tryRecover(ctx context.Context) {
	s.stateMutex.RLock()
	recoverer := s.recoverer
	s.stateMutex.RUnlock()
	if recoverer == nil {
		return
	}

	if err := recoverer.AttemptRecovery(ctx); err != nil {
		return
	}
	if recovered := recoverer.Device(); recovered != nil {
		s.stateMutex.Lock()
		s.device = recovered
		s.stateMutex.Unlock()
	}
}
