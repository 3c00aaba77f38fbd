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

package testing

import "fmt"

// NEC timing in half-microseconds, and the per-byte run cap of the
// dongle's signal encoding.
const (
	necUnitWidth = 1125 // one 562.5us NEC unit
	necTickWidth = 32   // one 16us device tick
	necMaxRun    = 127
)

// VirtualRemote models a handheld NEC remote control. Pressing a button
// yields the raw signal bytes the dongle would capture from the air.
//
// Runs are floor-rounded per pulse instead of carrying division
// remainders across the frame, so the trains differ slightly from the
// library's own encoder output. That is deliberate: decoding them also
// exercises the decoder's timing tolerance.
type VirtualRemote struct {
	buttons map[string]byte
	address uint16
}

// NewVirtualRemote creates a remote with the given NEC address. An
// address above 0xFF selects the extended variant, which spends the
// inverted-address byte on extra address bits.
func NewVirtualRemote(address uint16) *VirtualRemote {
	return &VirtualRemote{
		address: address,
		buttons: make(map[string]byte),
	}
}

// Address returns the remote's NEC address.
func (r *VirtualRemote) Address() uint16 {
	return r.address
}

// MapButton binds a button name to an NEC command byte.
func (r *VirtualRemote) MapButton(name string, command byte) {
	r.buttons[name] = command
}

// Press returns the signal for a mapped button.
func (r *VirtualRemote) Press(name string) ([]byte, error) {
	command, ok := r.buttons[name]
	if !ok {
		return nil, fmt.Errorf("virtual remote: no button %q", name)
	}
	return r.PressCommand(command), nil
}

// PressCommand returns the signal for an arbitrary command byte.
func (r *VirtualRemote) PressCommand(command byte) []byte {
	return necFrame(r.word(command))
}

// PressRepeat returns the repeat frame a held button emits after its
// initial full frame.
func (r *VirtualRemote) PressRepeat() []byte {
	var out []byte
	out = appendNECRun(out, 16, true)
	out = appendNECRun(out, 4, false)
	out = appendNECRun(out, 1, true)
	out = appendNECRun(out, 72, false)
	return out
}

func (r *VirtualRemote) word(command byte) uint32 {
	cmd := uint32(command)
	if r.address <= 0xFF {
		addr := uint32(r.address)
		return addr | (^addr&0xFF)<<8 | cmd<<16 | (^cmd&0xFF)<<24
	}
	return uint32(r.address) | cmd<<16 | (^cmd&0xFF)<<24
}

// necFrame renders a 32-bit word as a full NEC frame, LSB first.
func necFrame(word uint32) []byte {
	out := make([]byte, 0, 128)
	out = appendNECRun(out, 16, true)
	out = appendNECRun(out, 8, false)
	for i := range 32 {
		out = appendNECRun(out, 1, true)
		if word>>i&1 != 0 {
			out = appendNECRun(out, 3, false)
		} else {
			out = appendNECRun(out, 1, false)
		}
	}
	out = appendNECRun(out, 1, true)
	out = appendNECRun(out, 72, false)
	return out
}

// appendNECRun emits one mark or space of the given width in NEC units,
// split across bytes wherever it exceeds the run cap.
func appendNECRun(out []byte, units int, mark bool) []byte {
	ticks := units * necUnitWidth / necTickWidth
	var flag byte
	if mark {
		flag = 0x80
	}
	for ticks > 0 {
		run := ticks
		if run > necMaxRun {
			run = necMaxRun
		}
		out = append(out, flag|byte(run))
		ticks -= run
	}
	return out
}
