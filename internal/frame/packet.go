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

// Package frame implements the TView wire format: marker-delimited logical
// packets carried as fixed-size fragmented reports in both directions.
package frame

import (
	"encoding/binary"
	"fmt"
)

// BuildPacket assembles a logical packet: start marker, command id, command
// type, payload, end marker. The result is what travels inside fragment
// reports, not a report itself.
func BuildPacket(cmdID, cmdType byte, payload []byte) []byte {
	pkt := make([]byte, 0, 2*MarkerSize+2+len(payload))
	pkt = binary.LittleEndian.AppendUint16(pkt, PacketStart)
	pkt = append(pkt, cmdID, cmdType)
	pkt = append(pkt, payload...)
	pkt = binary.LittleEndian.AppendUint16(pkt, PacketEnd)
	return pkt
}

// Fragment splits a logical packet into fixed-size reports ready to write to
// an endpoint. Each report is tagged, carries the shared packet index, the
// total fragment count and its own 1-based fragment index, and the final
// report is zero-padded to ReportSize. An empty packet still yields one
// report so the receiver observes the packet boundary.
func Fragment(tag, packetIdx byte, packet []byte) ([][]byte, error) {
	if len(packet) > MaxPacketSize {
		return nil, fmt.Errorf("packet too large to fragment: %d > %d bytes", len(packet), MaxPacketSize)
	}

	count := (len(packet) + MaxFragmentPayload - 1) / MaxFragmentPayload
	if count == 0 {
		count = 1
	}
	if count > MaxFragments {
		return nil, fmt.Errorf("packet needs %d fragments, limit is %d", count, MaxFragments)
	}

	reports := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		chunk := packet[i*MaxFragmentPayload:]
		if len(chunk) > MaxFragmentPayload {
			chunk = chunk[:MaxFragmentPayload]
		}

		report := make([]byte, ReportSize)
		report[0] = tag
		report[1] = byte(len(chunk) + fragSizeOverhead)
		report[2] = packetIdx
		report[3] = byte(count)
		report[4] = byte(i + 1)
		copy(report[headerSize:], chunk)
		reports = append(reports, report)
	}
	return reports, nil
}
