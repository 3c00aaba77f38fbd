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

// Package testing provides test utilities including a wire-level TView
// dongle simulator.
//
// The VirtualTView type consumes host reports one at a time and returns
// the reports the dongle firmware would answer with, so tests can
// bridge it to any transport. Framing is implemented here from the
// wire format itself rather than through the library's frame package,
// which keeps the simulator an independent check on host traffic.
package testing

import (
	"time"

	"github.com/TViewProject/go-tiqiaa/internal/syncutil"
)

// Wire format constants.
const (
	reportSize         = 61
	reportTagHost      = 0x02 // host to dongle
	reportTagDongle    = 0x01 // dongle to host
	fragHeaderSize     = 5
	maxFragmentPayload = reportSize - fragHeaderSize

	markerStart0 = 0x53 // 'S'
	markerStart1 = 0x54 // 'T'
	markerEnd0   = 0x45 // 'E'
	markerEnd1   = 0x4E // 'N'
)

// Firmware opcodes.
const (
	opVersion = 'V'
	opIdle    = 'L'
	opSend    = 'S'
	opRecv    = 'R'
	opData    = 'D'
	opOutput  = 'O'
	opCancel  = 'C'
)

// Dongle states reported in mode and cancel replies.
const (
	StateIdle = 0x03
	StateSend = 0x09
	StateRecv = 0x13
)

// DefaultFirmwareVersion is the version string the simulator reports
// unless configured otherwise.
const DefaultFirmwareVersion = "V1.05"

// CommandLogEntry records one packet received from the host.
type CommandLogEntry struct {
	Timestamp time.Time
	Data      []byte
	ID        byte
	Type      byte
}

// SentSignal records one IR transmission requested by the host.
type SentSignal struct {
	Signal    []byte
	FreqIndex byte
}

// VirtualTView simulates a TView dongle at the wire protocol level.
//
// The zero value is not usable; construct with NewVirtualTView. All
// methods are safe for concurrent use since transport hooks may run on
// a different goroutine than the test body.
type VirtualTView struct {
	firmwareVersion string

	rxBuf         []byte
	pendingSignal []byte
	commandLog    []CommandLogEntry
	sentSignals   []SentSignal

	mu syncutil.Mutex

	dropNext int

	state          byte
	rxPacketIdx    byte
	rxFragCount    byte
	rxLastFrag     byte
	replyID        byte
	replyPacketIdx byte

	armed bool
	quiet bool
}

// NewVirtualTView creates a simulator in idle state.
func NewVirtualTView() *VirtualTView {
	return &VirtualTView{
		state:           StateIdle,
		firmwareVersion: DefaultFirmwareVersion,
	}
}

// HandleReport consumes one report written by the host and returns the
// reports the dongle answers with, if any. Malformed reports are
// dropped silently, as real hardware does.
func (v *VirtualTView) HandleReport(report []byte) [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()

	packet, ok := v.feed(report)
	if !ok {
		return nil
	}
	return v.dispatch(packet)
}

// InjectSignal stages a captured IR signal. If a capture is already
// armed, the delivery reports are returned immediately for queueing;
// otherwise the signal is held until the host next arms a capture.
func (v *VirtualTView) InjectSignal(signal []byte) [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.pendingSignal = append([]byte(nil), signal...)
	if v.armed && v.state == StateRecv {
		return v.emitCapture()
	}
	return nil
}

// SetFirmwareVersion configures the version string reported to the host.
func (v *VirtualTView) SetFirmwareVersion(version string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.firmwareVersion = version
}

// SetQuiet silences the simulator entirely. Commands still take
// effect; only the replies vanish. Simulates a wedged dongle.
func (v *VirtualTView) SetQuiet(quiet bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.quiet = quiet
}

// DropNextReplies swallows the next n replies the simulator would
// send. Simulates transient reply loss.
func (v *VirtualTView) DropNextReplies(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNext = n
}

// State returns the simulated dongle state.
func (v *VirtualTView) State() byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SentSignals returns copies of every IR transmission the host requested.
func (v *VirtualTView) SentSignals() []SentSignal {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]SentSignal, len(v.sentSignals))
	for i, s := range v.sentSignals {
		out[i] = SentSignal{
			FreqIndex: s.FreqIndex,
			Signal:    append([]byte(nil), s.Signal...),
		}
	}
	return out
}

// CommandLog returns copies of every packet the host delivered.
func (v *VirtualTView) CommandLog() []CommandLogEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]CommandLogEntry, len(v.commandLog))
	for i, e := range v.commandLog {
		out[i] = CommandLogEntry{
			Timestamp: e.Timestamp,
			Data:      append([]byte(nil), e.Data...),
			ID:        e.ID,
			Type:      e.Type,
		}
	}
	return out
}

// CommandCount returns how many packets of the given type arrived.
func (v *VirtualTView) CommandCount(cmdType byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	count := 0
	for _, e := range v.commandLog {
		if e.Type == cmdType {
			count++
		}
	}
	return count
}

// Reset restores the simulator to its initial state.
func (v *VirtualTView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.state = StateIdle
	v.resetRx()
	v.pendingSignal = nil
	v.commandLog = nil
	v.sentSignals = nil
	v.replyID = 0
	v.replyPacketIdx = 0
	v.armed = false
	v.quiet = false
	v.dropNext = 0
}

// feed runs one report through host-to-dongle reassembly and returns a
// complete inner packet (id, type, payload) when one finishes.
func (v *VirtualTView) feed(report []byte) ([]byte, bool) {
	if len(report) < fragHeaderSize || report[0] != reportTagHost {
		return nil, false
	}
	fragSize := int(report[1])
	if fragSize < 3 || len(report) < 2+fragSize {
		return nil, false
	}
	packetIdx := report[2]
	fragCount := report[3]
	fragIdx := report[4]
	payload := report[fragHeaderSize : 2+fragSize]

	if fragIdx == 1 {
		v.rxBuf = append(v.rxBuf[:0], payload...)
		v.rxPacketIdx = packetIdx
		v.rxFragCount = fragCount
		v.rxLastFrag = 1
	} else {
		if v.rxFragCount == 0 || packetIdx != v.rxPacketIdx || fragIdx != v.rxLastFrag+1 {
			v.resetRx()
			return nil, false
		}
		v.rxBuf = append(v.rxBuf, payload...)
		v.rxLastFrag = fragIdx
	}

	if v.rxLastFrag != v.rxFragCount {
		return nil, false
	}

	packet := v.rxBuf
	v.rxFragCount = 0
	if len(packet) < 6 ||
		packet[0] != markerStart0 || packet[1] != markerStart1 ||
		packet[len(packet)-2] != markerEnd0 || packet[len(packet)-1] != markerEnd1 {
		v.resetRx()
		return nil, false
	}

	inner := append([]byte(nil), packet[2:len(packet)-2]...)
	v.resetRx()
	return inner, true
}

func (v *VirtualTView) resetRx() {
	v.rxBuf = v.rxBuf[:0]
	v.rxPacketIdx = 0
	v.rxFragCount = 0
	v.rxLastFrag = 0
}

// dispatch applies a host packet to the firmware state machine and
// builds the reply reports.
func (v *VirtualTView) dispatch(packet []byte) [][]byte {
	id := packet[0]
	cmdType := packet[1]
	data := packet[2:]

	v.commandLog = append(v.commandLog, CommandLogEntry{
		Timestamp: time.Now(),
		Data:      append([]byte(nil), data...),
		ID:        id,
		Type:      cmdType,
	})

	var out [][]byte
	switch cmdType {
	case opVersion:
		out = v.buildReports(id, opVersion, []byte(v.firmwareVersion))
	case opIdle:
		v.state = StateIdle
		v.armed = false
		out = v.buildReports(id, opIdle, []byte{v.state})
	case opSend:
		v.state = StateSend
		v.armed = false
		out = v.buildReports(id, opSend, []byte{v.state})
	case opRecv:
		v.state = StateRecv
		out = v.buildReports(id, opRecv, []byte{v.state})
	case opCancel:
		v.armed = false
		out = v.buildReports(id, opCancel, []byte{v.state})
	case opData:
		if len(data) >= 1 {
			v.sentSignals = append(v.sentSignals, SentSignal{
				FreqIndex: data[0],
				Signal:    append([]byte(nil), data[1:]...),
			})
		}
		// The transmit ack only appears in send mode.
		if v.state == StateSend {
			out = v.buildReports(id, opOutput, []byte{v.state})
		}
	case opOutput:
		if v.state == StateRecv {
			v.armed = true
			if v.pendingSignal != nil {
				out = v.emitCapture()
			}
		}
	default:
		// Unknown opcodes get no reply, like real firmware.
	}

	if v.quiet {
		return nil
	}
	if v.dropNext > 0 && len(out) > 0 {
		v.dropNext--
		return nil
	}
	return out
}

// emitCapture delivers the staged signal as a dongle-originated data
// packet under the dongle's own command id.
func (v *VirtualTView) emitCapture() [][]byte {
	signal := v.pendingSignal
	v.pendingSignal = nil
	v.armed = false
	return v.buildReports(v.nextReplyID(), opData, signal)
}

// buildReports wraps a payload in packet markers and fragments it into
// dongle-to-host reports under a fresh packet index.
func (v *VirtualTView) buildReports(id, cmdType byte, payload []byte) [][]byte {
	return fragmentReply(v.nextReplyPacketIdx(), id, cmdType, payload)
}

func (v *VirtualTView) nextReplyID() byte {
	v.replyID = v.replyID%0x7F + 1
	return v.replyID
}

func (v *VirtualTView) nextReplyPacketIdx() byte {
	v.replyPacketIdx = v.replyPacketIdx%0x0F + 1
	return v.replyPacketIdx
}
