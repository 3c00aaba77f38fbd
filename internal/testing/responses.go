// Copyright 2026 The TView Project Contributors.
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

// BuildReply frames a dongle reply as wire reports without a full
// simulator, for tests that queue canned traffic directly.
func BuildReply(id, cmdType byte, payload []byte) [][]byte {
	return fragmentReply(1, id, cmdType, payload)
}

// BuildModeReply frames the acknowledgement a mode-switch command gets.
func BuildModeReply(id, cmdType, state byte) [][]byte {
	return fragmentReply(1, id, cmdType, []byte{state})
}

// SampleRawSignal returns a short mark/space burst that is valid signal
// data but not an NEC frame.
func SampleRawSignal() []byte {
	return []byte{0xB0, 0x30, 0xB0, 0x30, 0xB0, 0x90, 0xA0, 0x20, 0xB0, 0x30}
}

// fragmentReply wraps a reply in packet markers and splits it into
// dongle-to-host reports under the given packet index.
func fragmentReply(packetIdx, id, cmdType byte, payload []byte) [][]byte {
	packet := make([]byte, 0, len(payload)+6)
	packet = append(packet, markerStart0, markerStart1, id, cmdType)
	packet = append(packet, payload...)
	packet = append(packet, markerEnd0, markerEnd1)

	total := (len(packet) + maxFragmentPayload - 1) / maxFragmentPayload
	reports := make([][]byte, 0, total)
	for i := range total {
		start := i * maxFragmentPayload
		end := min(start+maxFragmentPayload, len(packet))
		chunk := packet[start:end]

		report := make([]byte, reportSize)
		report[0] = reportTagDongle
		report[1] = byte(len(chunk) + 3)
		report[2] = packetIdx
		report[3] = byte(total)
		report[4] = byte(i + 1)
		copy(report[fragHeaderSize:], chunk)
		reports = append(reports, report)
	}
	return reports
}
