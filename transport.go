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
	"time"

	"github.com/TViewProject/go-tiqiaa/internal/syncutil"
)

// Transport moves raw HID reports between the host and a TView dongle.
// This can be implemented by USB bulk endpoints or a serial bridge.
//
// The transport layer knows nothing about packet framing. Writes carry
// exactly one report, reads fill the caller's buffer with whatever the
// dongle produced next. Timeouts bound a single operation; an expired
// read returns a timeout-typed *TransportError, which the session reader
// treats as "nothing arrived yet" rather than a failure.
type Transport interface {
	// Write sends one report to the dongle, waiting at most timeout.
	Write(data []byte, timeout time.Duration) (int, error)

	// Read fills buf with the next report from the dongle, waiting at
	// most timeout for data to arrive.
	Read(buf []byte, timeout time.Duration) (int, error)

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUSB represents the native USB bulk-endpoint transport.
	TransportUSB TransportType = "usb"
	// TransportSerial represents a serial (CP210x bridge) transport.
	TransportSerial TransportType = "serial"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// PortNamer is an optional interface for transports that can identify
// the OS-level port or bus address they are bound to. The session uses
// it to label errors and wire traces; transports without a meaningful
// port name simply do not implement it.
type PortNamer interface {
	PortName() string
}

// portLabel returns the best identifier available for a transport,
// falling back to the transport type when no port name is known.
func portLabel(t Transport) string {
	if t == nil {
		return ""
	}
	if named, ok := t.(PortNamer); ok {
		if name := named.PortName(); name != "" {
			return name
		}
	}
	return string(t.Type())
}

// mockReadQueue is the buffered depth of the mock's inbound report
// queue. Tests never come close to this.
const mockReadQueue = 256

// MockTransport provides a mock implementation of Transport for testing.
// Writes are captured for inspection and reads are served from a queue
// that tests (or a wire simulator) fill with QueueRead.
type MockTransport struct {
	readCh    chan []byte
	closed    chan struct{}
	readErr   error
	writeErr  error
	onWrite   func(report []byte)
	writes    [][]byte
	mu        syncutil.RWMutex
	closeMu   syncutil.Mutex
	readCalls int
	connected bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		readCh:    make(chan []byte, mockReadQueue),
		closed:    make(chan struct{}),
		connected: true,
	}
}

// Write implements Transport interface
func (m *MockTransport) Write(data []byte, _ time.Duration) (int, error) {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return 0, NewTransportClosedError("Write", string(TransportMock))
	}
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return 0, err
	}
	report := make([]byte, len(data))
	copy(report, data)
	m.writes = append(m.writes, report)
	hook := m.onWrite
	m.mu.Unlock()

	// Run the hook unlocked so it may queue reads in response.
	if hook != nil {
		hook(report)
	}
	return len(data), nil
}

// Read implements Transport interface
func (m *MockTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	m.readCalls++
	connected := m.connected
	err := m.readErr
	m.mu.Unlock()

	if !connected {
		return 0, NewTransportClosedError("Read", string(TransportMock))
	}
	if err != nil {
		return 0, err
	}

	if timeout <= 0 {
		select {
		case data := <-m.readCh:
			return copy(buf, data), nil
		default:
			return 0, NewTimeoutError("Read", string(TransportMock))
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-m.readCh:
		return copy(buf, data), nil
	case <-m.closed:
		return 0, NewTransportClosedError("Read", string(TransportMock))
	case <-timer.C:
		return 0, NewTimeoutError("Read", string(TransportMock))
	}
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	m.mu.Lock()
	wasConnected := m.connected
	m.connected = false
	m.mu.Unlock()
	if wasConnected {
		close(m.closed)
	}
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	connected := m.connected
	m.mu.RUnlock()
	return connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// QueueRead adds a report to be returned by a subsequent Read call.
func (m *MockTransport) QueueRead(data []byte) {
	report := make([]byte, len(data))
	copy(report, data)
	select {
	case m.readCh <- report:
	default:
		// Queue full; drop rather than deadlock the test.
	}
}

// OnWrite installs a hook invoked with a copy of every written report.
// A wire simulator uses this to answer writes with queued reads.
func (m *MockTransport) OnWrite(fn func(report []byte)) {
	m.mu.Lock()
	m.onWrite = fn
	m.mu.Unlock()
}

// SetReadError configures an error returned by Read calls. Pass nil to
// restore normal reads.
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
}

// SetWriteError configures an error returned by Write calls. Pass nil
// to restore normal writes.
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Writes returns copies of every report written so far.
func (m *MockTransport) Writes() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = make([]byte, len(w))
		copy(out[i], w)
	}
	return out
}

// LastWrite returns a copy of the most recently written report, or nil
// if nothing has been written.
func (m *MockTransport) LastWrite() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.writes) == 0 {
		return nil
	}
	last := m.writes[len(m.writes)-1]
	out := make([]byte, len(last))
	copy(out, last)
	return out
}

// WriteCount returns how many reports have been written.
func (m *MockTransport) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.writes)
}

// ReadCount returns how many times Read has been called.
func (m *MockTransport) ReadCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.readCalls
}

// Reset clears captured writes and re-arms the mock as connected.
func (m *MockTransport) Reset() {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	m.mu.Lock()
	m.writes = nil
	m.readErr = nil
	m.writeErr = nil
	if !m.connected {
		m.closed = make(chan struct{})
		m.connected = true
	}
	// Drain any queued reads left over from a previous scenario.
	for {
		select {
		case <-m.readCh:
		default:
			m.mu.Unlock()
			return
		}
	}
}
