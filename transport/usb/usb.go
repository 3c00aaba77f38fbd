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

// Package usb implements the native USB transport for the TView dongle
// using bulk endpoint transfers via gousb/libusb.
package usb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"

	"github.com/TViewProject/go-tiqiaa"
	"github.com/TViewProject/go-tiqiaa/internal/syncutil"
)

// USB identity of the TView dongle. The device enumerates as a Silicon
// Labs CP210x-class composite with a vendor-specific interface.
const (
	// VendorID is the USB vendor ID of the TView dongle.
	VendorID = 0x10C4
	// ProductID is the USB product ID of the TView dongle.
	ProductID = 0x8468
)

// Bulk endpoint addresses on interface 0.
const (
	endpointOut = 0x01
	endpointIn  = 0x81
)

// Standard control request fields for CLEAR_FEATURE(ENDPOINT_HALT).
const (
	reqTypeClearEndpoint = 0x02 // recipient: endpoint
	reqClearFeature      = 0x01
	featureEndpointHalt  = 0x00
)

// Transport implements tiqiaa.Transport over USB bulk endpoints.
// Reads and writes may run concurrently; the mutex only covers the
// lifecycle flag so transfers never serialize each other.
type Transport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint

	addr   string
	mu     syncutil.Mutex
	closed bool
}

// New opens the first TView dongle found on the bus.
func New() (*Transport, error) {
	return NewWithContext(context.Background())
}

// NewWithContext opens the first TView dongle found on the bus,
// honoring ctx between the open steps. Returns an error wrapping
// tiqiaa.ErrDeviceNotFound when no matching device is present.
func NewWithContext(ctx context.Context) (*Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open USB transport: %w", err)
	}

	usbCtx := gousb.NewContext()

	devs, err := usbCtx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(VendorID) && desc.Product == gousb.ID(ProductID)
	})
	if err != nil && len(devs) == 0 {
		_ = usbCtx.Close()
		return nil, fmt.Errorf("enumerate USB devices: %w", err)
	}
	if len(devs) == 0 {
		_ = usbCtx.Close()
		return nil, fmt.Errorf("no TView dongle on the bus (%04x:%04x): %w",
			VendorID, ProductID, tiqiaa.ErrDeviceNotFound)
	}

	// First match wins; release any extras.
	dev := devs[0]
	for _, extra := range devs[1:] {
		_ = extra.Close()
	}

	if err := ctx.Err(); err != nil {
		_ = dev.Close()
		_ = usbCtx.Close()
		return nil, fmt.Errorf("open USB transport: %w", err)
	}

	// Detach a kernel HID driver if one grabbed the interface. Not
	// supported on all platforms, so failures are ignored.
	_ = dev.SetAutoDetach(true)

	t, err := claim(dev)
	if err != nil {
		_ = dev.Close()
		_ = usbCtx.Close()
		return nil, err
	}
	t.ctx = usbCtx
	return t, nil
}

// claim takes config 1 / interface 0 and resolves both bulk endpoints.
func claim(dev *gousb.Device) (*Transport, error) {
	addr := fmt.Sprintf("usb:%d:%d", dev.Desc.Bus, dev.Desc.Address)

	cfg, err := dev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("claim config 1 on %s: %w", addr, err)
	}

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		_ = cfg.Close()
		return nil, fmt.Errorf("claim interface 0 on %s: %w", addr, err)
	}

	out, err := intf.OutEndpoint(endpointOut & 0x0F)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		return nil, fmt.Errorf("open OUT endpoint on %s: %w", addr, err)
	}

	in, err := intf.InEndpoint(endpointIn & 0x0F)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		return nil, fmt.Errorf("open IN endpoint on %s: %w", addr, err)
	}

	// Firmware can leave an endpoint stalled across a host crash.
	clearHalt(dev, endpointOut)
	clearHalt(dev, endpointIn)

	return &Transport{
		dev:  dev,
		cfg:  cfg,
		intf: intf,
		in:   in,
		out:  out,
		addr: addr,
	}, nil
}

// clearHalt issues CLEAR_FEATURE(ENDPOINT_HALT) for one endpoint
// address. Best effort; a healthy endpoint treats it as a no-op.
func clearHalt(dev *gousb.Device, endpoint uint16) {
	_, _ = dev.Control(reqTypeClearEndpoint, reqClearFeature, featureEndpointHalt, endpoint, nil)
}

// Write sends one report to the OUT endpoint, waiting at most timeout.
func (t *Transport) Write(data []byte, timeout time.Duration) (int, error) {
	if !t.IsConnected() {
		return 0, tiqiaa.NewTransportClosedError("Write", t.addr)
	}

	ctx, cancel := opContext(timeout)
	defer cancel()

	n, err := t.out.WriteContext(ctx, data)
	if err != nil {
		return n, t.wrapIOError("Write", err)
	}
	if n != len(data) {
		return n, tiqiaa.NewTransportWriteError("Write", t.addr)
	}
	return n, nil
}

// Read fills buf from the IN endpoint, waiting at most timeout. An
// expired timeout surfaces as the taxonomy's retryable timeout error.
func (t *Transport) Read(buf []byte, timeout time.Duration) (int, error) {
	if !t.IsConnected() {
		return 0, tiqiaa.NewTransportClosedError("Read", t.addr)
	}

	ctx, cancel := opContext(timeout)
	defer cancel()

	n, err := t.in.ReadContext(ctx, buf)
	if err != nil {
		return n, t.wrapIOError("Read", err)
	}
	return n, nil
}

// opContext bounds one bulk transfer. Zero and negative timeouts get a
// minimal deadline rather than an unbounded transfer, preserving the
// poll-like semantics the session reader expects.
func opContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return context.WithTimeout(context.Background(), timeout)
}

// wrapIOError maps gousb and context failures onto the transport error
// taxonomy: expired transfers are retryable timeouts, a vanished device
// is permanent, everything else is transient.
func (t *Transport) wrapIOError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, gousb.TransferTimedOut),
		errors.Is(err, gousb.TransferCancelled),
		errors.Is(err, gousb.ErrorTimeout):
		return tiqiaa.NewTimeoutError(op, t.addr)
	case errors.Is(err, gousb.ErrorNoDevice),
		errors.Is(err, gousb.ErrorIO),
		errors.Is(err, gousb.ErrorPipe),
		errors.Is(err, gousb.TransferNoDevice),
		errors.Is(err, gousb.TransferStall):
		return tiqiaa.NewDeviceGoneError(op, t.addr, err)
	default:
		return tiqiaa.NewTransportError(op, t.addr, err, tiqiaa.ErrorTypeTransient)
	}
}

// Close releases the interface, configuration, device handle and
// libusb context, in that order. Safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.intf != nil {
		t.intf.Close()
	}
	if t.cfg != nil {
		_ = t.cfg.Close()
	}
	if t.dev != nil {
		_ = t.dev.Close()
	}
	if t.ctx != nil {
		if err := t.ctx.Close(); err != nil {
			return fmt.Errorf("close USB context: %w", err)
		}
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
	return tiqiaa.TransportUSB
}

// PortName returns the bus address the dongle was opened at.
func (t *Transport) PortName() string {
	return t.addr
}

var (
	_ tiqiaa.Transport = (*Transport)(nil)
	_ tiqiaa.PortNamer = (*Transport)(nil)
)
