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

// Package serial implements the TView transport for units reached
// through a CP210x serial bridge instead of the native USB endpoints.
// Reports travel over the port as-is; framing stays with the session.
package serial

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"syscall"
	"time"

	goserial "go.bug.st/serial"

	"github.com/TViewProject/go-tiqiaa"
	"github.com/TViewProject/go-tiqiaa/internal/syncutil"
)

// baudRate is fixed by the bridge firmware.
const baudRate = 115200

// Transport implements tiqiaa.Transport over a serial port. Port access
// is serialized; the bridge is half-duplex in practice and interleaved
// reads and writes corrupt report boundaries.
type Transport struct {
	port     goserial.Port
	portName string

	mu          syncutil.Mutex
	readTimeout time.Duration
	closed      bool
}

// New opens portName at 115200 8N1.
func New(portName string) (*Transport, error) {
	port, err := goserial.Open(portName, &goserial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}

	return &Transport{
		port:        port,
		portName:    portName,
		readTimeout: -1,
	}, nil
}

// Write sends one report out the port and drains the OS buffer so the
// report is on the wire before the caller starts waiting for a reply.
// The timeout parameter is unused; serial writes complete against the
// kernel buffer.
func (t *Transport) Write(data []byte, _ time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, tiqiaa.NewTransportClosedError("Write", t.portName)
	}

	n, err := t.port.Write(data)
	if err != nil {
		return n, t.wrapIOError("Write", err)
	}
	if n != len(data) {
		return n, tiqiaa.NewTransportWriteError("Write", t.portName)
	}
	return n, t.drain()
}

// Read fills buf with the next data from the port, waiting at most
// timeout. The bridge signals "nothing yet" by returning zero bytes,
// which maps to the taxonomy's retryable timeout error.
func (t *Transport) Read(buf []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, tiqiaa.NewTransportClosedError("Read", t.portName)
	}

	if floor := readTimeoutFloor(); timeout < floor {
		timeout = floor
	}
	if err := t.applyReadTimeout(timeout); err != nil {
		return 0, err
	}

	n, err := t.port.Read(buf)
	if err != nil {
		return 0, t.wrapIOError("Read", err)
	}
	if n == 0 {
		return 0, tiqiaa.NewTimeoutError("Read", t.portName)
	}
	return n, nil
}

// applyReadTimeout pushes a new timeout to the driver only when it
// changed; the session reader polls with the same value on every call.
func (t *Transport) applyReadTimeout(timeout time.Duration) error {
	if timeout == t.readTimeout {
		return nil
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return tiqiaa.NewTransportError("Read", t.portName, err, tiqiaa.ErrorTypePermanent)
	}
	t.readTimeout = timeout
	return nil
}

// readTimeoutFloor is the shortest per-read timeout the driver stack
// honors. Windows serial timers are too coarse below ~15ms.
func readTimeoutFloor() time.Duration {
	if runtime.GOOS == "windows" {
		return 15 * time.Millisecond
	}
	return time.Millisecond
}

// drain flushes the kernel's output buffer through the bridge. Drains
// occasionally land on a signal, so EINTR is retried briefly.
func (t *Transport) drain() error {
	delay := 2 * time.Millisecond
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = t.port.Drain(); err == nil {
			return nil
		}
		if !isInterrupted(err) {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return t.wrapIOError("Write", fmt.Errorf("drain: %w", err))
}

// isInterrupted reports an EINTR-style failure. Some platforms only
// surface it as message text.
func isInterrupted(err error) bool {
	if errors.Is(err, syscall.EINTR) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "interrupted system call")
}

// wrapIOError maps driver failures onto the transport error taxonomy.
// A closed or vanished port is permanent; everything else transient.
func (t *Transport) wrapIOError(op string, err error) error {
	var portErr *goserial.PortError
	if errors.As(err, &portErr) && portErr.Code() == goserial.PortClosed {
		return tiqiaa.NewDeviceGoneError(op, t.portName, err)
	}
	if tiqiaa.IsDeviceGone(err) {
		return tiqiaa.NewDeviceGoneError(op, t.portName, err)
	}
	return tiqiaa.NewTransportError(op, t.portName, err, tiqiaa.ErrorTypeTransient)
}

// Close closes the port. Safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if err := t.port.Close(); err != nil {
		return fmt.Errorf("close serial port %s: %w", t.portName, err)
	}
	return nil
}

// IsConnected reports whether the transport is usable.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type.
func (*Transport) Type() tiqiaa.TransportType {
	return tiqiaa.TransportSerial
}

// PortName returns the OS port the transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

var (
	_ tiqiaa.Transport = (*Transport)(nil)
	_ tiqiaa.PortNamer = (*Transport)(nil)
)
