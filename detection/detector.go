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

// Package detection discovers TView dongles without claiming them.
// Native units are found by USB descriptor; CP210x-bridged units show
// up in the serial port enumerator under the same vendor identity.
package detection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/gousb"
	"go.bug.st/serial/enumerator"
)

// USB identity of the TView dongle. Declared here as well as in
// transport/usb; this package must stay importable by the root package
// and therefore cannot reach the transport implementations.
const (
	vendorID  = 0x10C4
	productID = 0x8468

	vendorIDHex  = "10C4"
	productIDHex = "8468"
)

// Transport identifies how a detected dongle is reachable.
type Transport string

// Detectable transports
const (
	// TransportUSB is a dongle on its native USB endpoints.
	TransportUSB Transport = "usb"
	// TransportSerial is a dongle behind a CP210x serial bridge.
	TransportSerial Transport = "serial"
)

// DeviceInfo describes one detected dongle.
type DeviceInfo struct {
	// Transport the dongle is reachable over.
	Transport Transport
	// Path is "usb:BUS:ADDR" for native units, the OS port name for
	// bridged ones. Feed it to the matching transport constructor.
	Path string
	// Name is the product string from the descriptor, when readable.
	Name string
	// Serial is the USB serial number, when the descriptor carries one.
	Serial string
}

// String returns a human-readable representation of the device.
func (d DeviceInfo) String() string {
	if d.Name == "" {
		return fmt.Sprintf("%s dongle at %s", d.Transport, d.Path)
	}
	return fmt.Sprintf("%s dongle at %s (%s)", d.Transport, d.Path, d.Name)
}

// Options configures a scan.
type Options struct {
	// Transports restricts the scan; empty scans every transport.
	Transports []Transport
	// IgnorePaths skips specific device paths, for ports that are
	// known to belong to something else.
	IgnorePaths []string
}

// DefaultOptions returns the options used when none are given: scan
// everything, skip nothing.
func DefaultOptions() Options {
	return Options{}
}

// ErrNoDongle indicates a scan completed without finding any dongle.
var ErrNoDongle = errors.New("no TView dongle detected")

// Scanner seams so tests can substitute enumeration results.
var (
	scanUSB    = usbDevices
	scanSerial = serialPorts
)

// DetectAll scans the requested transports and returns every dongle
// found. Scan failures on one transport are suppressed as long as
// another transport produced results.
func DetectAll(opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	var devices []DeviceInfo
	var errs []error

	if opts.wants(TransportUSB) {
		found, err := scanUSB()
		if err != nil {
			errs = append(errs, err)
		}
		devices = append(devices, found...)
	}
	if opts.wants(TransportSerial) {
		found, err := scanSerial()
		if err != nil {
			errs = append(errs, err)
		}
		devices = append(devices, found...)
	}

	devices = dropIgnored(devices, opts.IgnorePaths)

	if len(devices) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return devices, nil
}

// DetectFirst returns the first dongle found, or ErrNoDongle.
func DetectFirst(opts *Options) (DeviceInfo, error) {
	devices, err := DetectAll(opts)
	if err != nil {
		return DeviceInfo{}, err
	}
	if len(devices) == 0 {
		return DeviceInfo{}, ErrNoDongle
	}
	return devices[0], nil
}

func (o *Options) wants(transport Transport) bool {
	if len(o.Transports) == 0 {
		return true
	}
	for _, t := range o.Transports {
		if t == transport {
			return true
		}
	}
	return false
}

func dropIgnored(devices []DeviceInfo, ignorePaths []string) []DeviceInfo {
	if len(ignorePaths) == 0 {
		return devices
	}
	kept := devices[:0]
	for _, d := range devices {
		if IsPathIgnored(d.Path, ignorePaths) {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// usbDevices enumerates native dongles. Each match is opened just long
// enough to read its string descriptors; interfaces are never claimed,
// so detection does not disturb an already-connected session.
func usbDevices() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer func() { _ = ctx.Close() }()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vendorID) && desc.Product == gousb.ID(productID)
	})
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("scan USB bus: %w", err)
	}

	found := make([]DeviceInfo, 0, len(devs))
	for _, dev := range devs {
		info := DeviceInfo{
			Transport: TransportUSB,
			Path:      fmt.Sprintf("usb:%d:%d", dev.Desc.Bus, dev.Desc.Address),
		}
		if name, perr := dev.Product(); perr == nil {
			info.Name = name
		}
		if sn, serr := dev.SerialNumber(); serr == nil {
			info.Serial = sn
		}
		_ = dev.Close()
		found = append(found, info)
	}
	return found, nil
}

// serialPorts enumerates CP210x-bridged dongles by USB identity.
func serialPorts() ([]DeviceInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("scan serial ports: %w", err)
	}

	var found []DeviceInfo
	for _, port := range ports {
		if !port.IsUSB {
			continue
		}
		if !strings.EqualFold(port.VID, vendorIDHex) || !strings.EqualFold(port.PID, productIDHex) {
			continue
		}
		found = append(found, DeviceInfo{
			Transport: TransportSerial,
			Path:      port.Name,
			Name:      port.Product,
			Serial:    port.SerialNumber,
		})
	}
	return found, nil
}
