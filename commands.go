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

// TView command type codes. The firmware uses ASCII opcodes.
const (
	cmdVersion  = 'V' // firmware version query
	cmdIdleMode = 'L' // enter idle mode
	cmdSendMode = 'S' // enter send mode
	cmdRecvMode = 'R' // enter receive mode
	cmdData     = 'D' // IR timing data, both directions
	cmdOutput   = 'O' // start output; also the send completion ack
	cmdCancel   = 'C' // cancel a pending receive
)

// Device state codes as reported in the third byte of command replies.
const (
	stateIdle byte = 3
	stateSend byte = 9
	stateRecv byte = 19
)

// Mode selects what the transceiver is doing with its IR hardware.
type Mode byte

// Transceiver operating modes
const (
	ModeIdle Mode = iota
	ModeSend
	ModeReceive
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeSend:
		return "send"
	case ModeReceive:
		return "receive"
	default:
		return fmt.Sprintf("mode(%d)", byte(m))
	}
}

// command returns the wire command that requests this mode.
func (m Mode) command() (byte, error) {
	switch m {
	case ModeIdle:
		return cmdIdleMode, nil
	case ModeSend:
		return cmdSendMode, nil
	case ModeReceive:
		return cmdRecvMode, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidMode, byte(m))
	}
}

// state returns the state code the firmware reports once this mode is active.
func (m Mode) state() (byte, error) {
	switch m {
	case ModeIdle:
		return stateIdle, nil
	case ModeSend:
		return stateSend, nil
	case ModeReceive:
		return stateRecv, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidMode, byte(m))
	}
}

// modeForState maps a reported state code back to a Mode. Unknown codes
// report false; the firmware is the authority on its own states.
func modeForState(state byte) (Mode, bool) {
	switch state {
	case stateIdle:
		return ModeIdle, true
	case stateSend:
		return ModeSend, true
	case stateRecv:
		return ModeReceive, true
	default:
		return 0, false
	}
}
