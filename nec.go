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

import "fmt"

// NEC frame layout: 9ms AGC mark + 4.5ms space, then 32 bits LSB first
// (address, inverted address, command, inverted command), a 562.5us stop
// mark and a long trailing space. A held button sends repeat frames with a
// half-length leader space instead of data bits.
//
// Signal bytes use bit 7 for IR LED on and bits 0-6 for the duration in
// 16us device ticks. All internal timing is tracked in half-microseconds so
// the 562.5us NEC unit stays integral.
const (
	necUnit    = 1125 // one NEC timing unit (562.5us) in half-microseconds
	deviceTick = 32   // one transceiver tick (16us) in half-microseconds

	// maxRunTicks is the longest run one signal byte can express.
	maxRunTicks = 127

	// minNECSignal is the fewest signal bytes a real NEC frame produces.
	// Anything shorter is noise or a different protocol.
	minNECSignal = 50

	// leaderMinWidth separates the 9ms AGC mark from data marks. Nothing
	// else in an NEC frame comes close to this width.
	leaderMinWidth = 8000

	// oneSpaceWidth splits bit spaces: a one bit idles for three units
	// (~1687us), a zero bit for one (~562us).
	oneSpaceWidth = 2000
)

// pulseWriter turns (units, active) runs into signal bytes. The requested
// and emitted clocks are tracked separately so integer division remainders
// carry into the next run instead of accumulating as drift across a frame.
type pulseWriter struct {
	buf     []byte
	clock   int
	emitted int
}

func (w *pulseWriter) add(units int, active bool) {
	w.clock += units * necUnit
	ticks := (w.clock - w.emitted) / deviceTick
	w.emitted += ticks * deviceTick

	var flag byte
	if active {
		flag = 0x80
	}
	for ticks > 0 {
		block := ticks
		if block > maxRunTicks {
			block = maxRunTicks
		}
		ticks -= block
		w.buf = append(w.buf, flag|byte(block))
	}
}

// emitNECFrame writes a full 32-bit frame around the given word.
func emitNECFrame(word uint32) []byte {
	var w pulseWriter
	w.add(16, true)
	w.add(8, false)

	for i := 0; i < 32; i++ {
		w.add(1, true)
		if word&1 != 0 {
			w.add(3, false)
		} else {
			w.add(1, false)
		}
		word >>= 1
	}

	w.add(1, true)
	w.add(72, false)
	return w.buf
}

// EncodeNEC encodes a 16-bit NEC code, high byte address and low byte
// command, into raw signal data. The inverted bytes are derived.
func EncodeNEC(code uint16) []byte {
	addr := uint32(code >> 8)
	cmd := uint32(code & 0xFF)
	return emitNECFrame(addr | (^addr&0xFF)<<8 | cmd<<16 | (^cmd&0xFF)<<24)
}

// EncodeNECExtended encodes a frame with a full 16-bit address and no
// address inversion, for devices using the extended variant.
func EncodeNECExtended(address uint16, command byte) []byte {
	cmd := uint32(command)
	return emitNECFrame(uint32(address) | cmd<<16 | (^cmd&0xFF)<<24)
}

// EncodeNECRepeat encodes the repeat frame a held button produces: full
// leader mark, half leader space, stop mark.
func EncodeNECRepeat() []byte {
	var w pulseWriter
	w.add(16, true)
	w.add(4, false)
	w.add(1, true)
	w.add(72, false)
	return w.buf
}

// NECDecode is the outcome of decoding a captured signal as NEC.
type NECDecode struct {
	Address byte
	Command byte

	// Code is Address<<8 | Command, the form EncodeNEC accepts.
	Code uint16

	// Validated reports whether both inverted bytes checked out. Extended
	// addresses and marginal captures legitimately fail the check, so a
	// false here flags lower confidence, not a decode failure.
	Validated bool
}

// signalRun is one maximal stretch of same-polarity signal.
type signalRun struct {
	active bool
	width  int // half-microseconds
}

// signalRuns converts raw signal bytes to polarity runs, merging adjacent
// same-polarity bytes. Long marks and spaces span several bytes because of
// the 127-tick cap, so merging is what makes widths meaningful.
func signalRuns(data []byte) []signalRun {
	runs := make([]signalRun, 0, len(data))
	for _, b := range data {
		ticks := int(b & 0x7F)
		if ticks == 0 {
			continue
		}
		active := b&0x80 != 0
		width := ticks * deviceTick
		if n := len(runs); n > 0 && runs[n-1].active == active {
			runs[n-1].width += width
			continue
		}
		runs = append(runs, signalRun{active: active, width: width})
	}
	return runs
}

// DecodeNEC attempts to decode raw signal data as an NEC frame. It is a
// best-effort decoder: failed inversion checks still produce a result,
// flagged via Validated, because extended-address remotes fail them by
// construction. Structural problems return an error wrapping ErrNotNEC.
func DecodeNEC(data []byte) (*NECDecode, error) {
	if len(data) < minNECSignal {
		return nil, fmt.Errorf("%w: signal too short (%d bytes)", ErrNotNEC, len(data))
	}

	runs := signalRuns(data)
	leader := -1
	for i, r := range runs {
		if r.active && r.width > leaderMinWidth {
			leader = i
			break
		}
	}
	if leader < 0 {
		return nil, fmt.Errorf("%w: no leader mark", ErrNotNEC)
	}
	if leader+65 >= len(runs) {
		return nil, fmt.Errorf("%w: truncated after leader (%d runs)", ErrNotNEC, len(runs)-leader-1)
	}

	var word uint32
	idx := leader + 2 // skip leader mark and leader space
	for bit := 0; bit < 32; bit++ {
		if idx+1 >= len(runs) {
			return nil, fmt.Errorf("%w: ran out of signal at bit %d", ErrNotNEC, bit)
		}
		mark, space := runs[idx], runs[idx+1]
		if !mark.active || space.active {
			return nil, fmt.Errorf("%w: broken mark/space pattern at bit %d", ErrNotNEC, bit)
		}
		if space.width > oneSpaceWidth {
			word |= 1 << bit
		}
		idx += 2
	}

	addr := byte(word)
	addrInv := byte(word >> 8)
	cmd := byte(word >> 16)
	cmdInv := byte(word >> 24)

	return &NECDecode{
		Address:   addr,
		Command:   cmd,
		Code:      uint16(addr)<<8 | uint16(cmd),
		Validated: addr^addrInv == 0xFF && cmd^cmdInv == 0xFF,
	}, nil
}

// FormatNEC renders a code the way the CLI displays it.
func FormatNEC(code uint16) string {
	return fmt.Sprintf("Addr: 0x%02X, Cmd: 0x%02X (code: 0x%04X)", byte(code>>8), byte(code), code)
}
