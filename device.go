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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TViewProject/go-tiqiaa/detection"
)

const (
	// transportReadSize is the buffer size for a single transport read,
	// matching the dongle's 64-byte endpoint.
	transportReadSize = 64

	// traceBufferSize bounds the session wire trace ring.
	traceBufferSize = 32
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// ReadTimeout bounds a single transport read poll by the reader.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single report write.
	WriteTimeout time.Duration
	// ReplyTimeout is the default wait for a command reply.
	ReplyTimeout time.Duration
	// SendAckTimeout is the wait for the output ack after an IR send.
	SendAckTimeout time.Duration
	// ReceiveTimeout is the default wait for a captured IR signal.
	ReceiveTimeout time.Duration
	// OpenSettle is how long Open lets the firmware settle after the
	// reader starts before the mode handshake.
	OpenSettle time.Duration
	// DrainTimeout bounds each stale-data read during Open.
	DrainTimeout time.Duration
	// OpenAttempts is how many times Open retries the mode handshake.
	OpenAttempts int
	// DrainReads is how many stale-data reads Open performs.
	DrainReads int
	// InboxSize is the buffered reply capacity of the session inbox.
	InboxSize int
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		ReadTimeout:    DefaultReadTimeout,
		WriteTimeout:   DefaultWriteTimeout,
		ReplyTimeout:   DefaultReplyTimeout,
		SendAckTimeout: DefaultSendAckTimeout,
		ReceiveTimeout: DefaultReceiveTimeout,
		OpenSettle:     OpenSettleDelay,
		DrainTimeout:   OpenDrainTimeout,
		OpenAttempts:   DefaultOpenAttempts,
		DrainReads:     OpenDrainReads,
		InboxSize:      DefaultInboxSize,
	}
}

// Device represents a session with a Tiqiaa TView IR transceiver.
//
// Thread Safety: Device is NOT thread-safe. All methods must be called
// from a single goroutine or protected with external synchronization.
// The background reader started by Open is the only concurrent actor
// and communicates solely through the reply inbox, so the foreground
// goroutine owns all session state including the device mode.
type Device struct {
	transport Transport
	config    *DeviceConfig
	trace     *TraceBuffer

	inbox      chan reply
	readerStop chan struct{}
	readerDone chan struct{}
	readerErr  error

	firmware string

	cmdID       byte
	packetIdx   byte
	deviceState byte
	open        bool
}

// Option configures a Device during New.
type Option func(*Device) error

// WithConfig replaces the entire device configuration.
func WithConfig(config *DeviceConfig) Option {
	return func(d *Device) error {
		if config == nil {
			return errors.New("device config must not be nil")
		}
		d.config = config
		return nil
	}
}

// WithReadTimeout sets the reader's transport poll interval.
func WithReadTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("read timeout must be positive, got %v", timeout)
		}
		d.config.ReadTimeout = timeout
		return nil
	}
}

// WithReceiveTimeout sets the default wait for a captured IR signal.
func WithReceiveTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("receive timeout must be positive, got %v", timeout)
		}
		d.config.ReceiveTimeout = timeout
		return nil
	}
}

// WithOpenAttempts sets how many times Open retries the mode handshake.
func WithOpenAttempts(attempts int) Option {
	return func(d *Device) error {
		if attempts < 1 {
			return fmt.Errorf("open attempts must be at least 1, got %d", attempts)
		}
		d.config.OpenAttempts = attempts
		return nil
	}
}

// New creates a new TView device session over the given transport.
// The session is inert until Open establishes it.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}

	device := &Device{
		transport:   transport,
		config:      DefaultDeviceConfig(),
		trace:       NewTraceBuffer(string(transport.Type()), portLabel(transport), traceBufferSize),
		deviceState: stateIdle,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// IsOpen reports whether the session is established.
func (d *Device) IsOpen() bool {
	return d.open
}

// State returns the raw state byte last reported by the dongle.
func (d *Device) State() byte {
	return d.deviceState
}

// Mode returns the operating mode implied by the last reported state
// byte. The second return is false when the dongle reported a state
// this library does not know.
func (d *Device) Mode() (Mode, bool) {
	return modeForState(d.deviceState)
}

// Open establishes the session: it drains stale data, starts the
// background reader and performs the send-mode handshake that confirms
// a TView is on the other end.
func (d *Device) Open() error {
	return d.OpenContext(context.Background())
}

// Close shuts down the session. The reader is stopped first, then the
// dongle is asked to idle on a best-effort basis, then the transport
// closes. Close is safe to call on a session that never opened.
func (d *Device) Close() error {
	if d.open {
		d.open = false
		d.stopReader()
		d.idleOnClose()
	}
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// idleOnClose asks the dongle to return to idle mode. The reader is
// already gone at this point, so the reply is never awaited and
// failures only reach the debug log.
func (d *Device) idleOnClose() {
	report, err := singleReport(d.nextCommandID(), cmdIdleMode, nil, d.nextPacketIndex())
	if err != nil {
		Debugf("idle on close: %v", err)
		return
	}
	if _, err := d.transport.Write(report, d.config.WriteTimeout); err != nil {
		Debugf("idle on close: %v", err)
	}
}

// stopReader signals the reader to exit and waits for it.
func (d *Device) stopReader() {
	close(d.readerStop)
	<-d.readerDone
}

// SendIR transmits a raw IR signal at the given carrier frequency in
// hertz. Frequencies outside the supported table fall back to 38 kHz.
func (d *Device) SendIR(freq int, signal []byte) error {
	return d.SendIRContext(context.Background(), freq, signal)
}

// SendNEC transmits the 16-bit NEC code at the default carrier.
func (d *Device) SendNEC(code uint16) error {
	return d.SendIRContext(context.Background(), DefaultFrequency, EncodeNEC(code))
}

// SendNECExtended transmits an extended NEC frame with a 16-bit
// address at the default carrier.
func (d *Device) SendNECExtended(address uint16, command byte) error {
	return d.SendIRContext(context.Background(), DefaultFrequency, EncodeNECExtended(address, command))
}

// SendNECRepeat transmits an NEC repeat frame at the default carrier.
// Receivers treat it as "previous code is still held down".
func (d *Device) SendNECRepeat() error {
	return d.SendIRContext(context.Background(), DefaultFrequency, EncodeNECRepeat())
}

// ReceiveIR captures one IR signal from the dongle. A zero timeout
// uses the configured receive timeout; a negative timeout polls for an
// already-captured signal without waiting. Returns ErrNoSignal when
// nothing arrives in time.
func (d *Device) ReceiveIR(timeout time.Duration) ([]byte, error) {
	return d.ReceiveIRContext(context.Background(), timeout)
}

// SetMode switches the dongle's operating mode and waits for the
// firmware to confirm.
func (d *Device) SetMode(mode Mode) error {
	return d.SetModeContext(context.Background(), mode)
}

// FirmwareVersion queries the dongle's firmware version string. The
// result is cached for the lifetime of the session.
func (d *Device) FirmwareVersion() (string, error) {
	return d.FirmwareVersionContext(context.Background())
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory is a function type for creating transports from detected devices
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for device connection
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         func(*detection.Options) ([]detection.DeviceInfo, error)
	deviceOptions          []Option
	autoDetect             bool
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithDeviceDetector sets a custom device detector function for auto-detection
func WithDeviceDetector(detector func(*detection.Options) ([]detection.DeviceInfo, error)) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

// ConnectDevice creates and opens a TView session from a path or
// auto-detection. Transport construction is injected through options
// so this package stays free of transport imports.
//
// Example usage:
//
//	// Connect to a CP210x-bridged dongle on a specific port
//	device, err := tiqiaa.ConnectDevice("/dev/ttyUSB0",
//	    tiqiaa.WithTransportFactory(func(path string) (tiqiaa.Transport, error) {
//	        return serial.New(path)
//	    }))
//
//	// Auto-detect a dongle and claim it over USB
//	device, err := tiqiaa.ConnectDevice("",
//	    tiqiaa.WithAutoDetection(),
//	    tiqiaa.WithTransportFromDeviceFactory(func(detection.DeviceInfo) (tiqiaa.Transport, error) {
//	        return usb.New()
//	    }))
func ConnectDevice(path string, opts ...ConnectOption) (*Device, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply connect options: %w", err)
	}

	transport, err := createTransport(path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	if err := device.Open(); err != nil {
		_ = transport.Close()
		return nil, err
	}

	return device, nil
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	return config, nil
}

func createTransport(path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(config.transportDeviceFactory, config.deviceDetector)
	}
	return createManualTransport(path, config.transportFactory)
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}

	return transport, nil
}

// createAutoDetectedTransport handles auto-detection of devices
func createAutoDetectedTransport(
	factory TransportFromDeviceFactory,
	detector func(*detection.Options) ([]detection.DeviceInfo, error),
) (Transport, error) {
	opts := detection.DefaultOptions()

	var devices []detection.DeviceInfo
	var err error

	if detector != nil {
		devices, err = detector(&opts)
	} else {
		devices, err = detection.DetectAll(&opts)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}

	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}

	// Use the first detected device
	device := devices[0]
	if factory == nil {
		return nil, errors.New("transport device factory not provided")
	}
	return factory(device)
}
