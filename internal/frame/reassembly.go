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

package frame

import "encoding/binary"

// Reassembler rebuilds logical packets from a stream of inbound reports.
// Malformed reports, fragment sequence gaps and marker mismatches discard
// the partial packet silently; the transceiver retransmits nothing, so the
// only sane recovery is to wait for the next packet boundary. Not safe for
// concurrent use.
type Reassembler struct {
	buf       []byte
	tag       byte
	packetIdx byte
	fragCount byte
	lastFrag  byte
}

// NewReassembler returns a Reassembler that accepts reports carrying tag,
// normally ReportTagIn on the host side.
func NewReassembler(tag byte) *Reassembler {
	return &Reassembler{tag: tag}
}

// Reset discards any partially accumulated packet.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.packetIdx = 0
	r.fragCount = 0
	r.lastFrag = 0
}

// Feed consumes one report. When the report completes a logical packet whose
// markers check out, Feed returns the inner payload (command id, command
// type, data) and true. In every other case it returns nil and false; Feed
// never panics on arbitrary input.
func (r *Reassembler) Feed(report []byte) ([]byte, bool) {
	if len(report) < headerSize || report[0] != r.tag {
		return nil, false
	}

	fragSize := int(report[1])
	if fragSize < fragSizeOverhead || len(report) < fragSize+2 {
		return nil, false
	}
	packetIdx := report[2]
	fragCount := report[3]
	fragIdx := report[4]
	payload := report[headerSize : fragSize+2]

	if fragIdx == 1 {
		// A first fragment unconditionally opens a new packet, clobbering
		// any partial one. The sender never interleaves packets.
		r.buf = r.buf[:0]
		r.packetIdx = packetIdx
		r.fragCount = fragCount
		r.lastFrag = 0
	} else {
		if r.fragCount == 0 || packetIdx != r.packetIdx || fragIdx != r.lastFrag+1 {
			r.Reset()
			return nil, false
		}
	}

	r.buf = append(r.buf, payload...)
	r.lastFrag = fragIdx
	if len(r.buf) > MaxPacketSize {
		r.Reset()
		return nil, false
	}

	if fragIdx != r.fragCount {
		return nil, false
	}

	packet := r.buf
	r.Reset()
	if len(packet) < 2*MarkerSize {
		return nil, false
	}
	if binary.LittleEndian.Uint16(packet[:MarkerSize]) != PacketStart {
		return nil, false
	}
	if binary.LittleEndian.Uint16(packet[len(packet)-MarkerSize:]) != PacketEnd {
		return nil, false
	}

	inner := make([]byte, len(packet)-2*MarkerSize)
	copy(inner, packet[MarkerSize:len(packet)-MarkerSize])
	return inner, true
}
