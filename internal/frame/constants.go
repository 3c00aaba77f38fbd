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

// Logical packet markers. Serialized as little-endian uint16, so the
// wire bytes spell "ST" and "EN".
const (
	PacketStart uint16 = 0x5453
	PacketEnd   uint16 = 0x4E45
)

// MarkerSize is the serialized size of one packet marker.
const MarkerSize = 2

// Report tags - the first byte of every fixed-size report indicates the
// direction of data flow
const (
	ReportTagOut = 0x02 // Reports from host to transceiver
	ReportTagIn  = 0x01 // Reports from transceiver to host
)

// Report and fragment size limits
const (
	// ReportSize is the fixed length of every report in either direction.
	// Short final fragments are zero-padded up to it.
	ReportSize = 61

	// headerSize is the per-report fragment header:
	// [tag, fragSize, packetIdx, fragCount, fragIdx].
	headerSize = 5

	// fragSizeOverhead is added to the payload length to form the fragSize
	// header byte; it covers the packetIdx, fragCount and fragIdx bytes.
	fragSizeOverhead = 3

	// MaxFragmentPayload is the most payload bytes one report can carry.
	MaxFragmentPayload = ReportSize - headerSize

	// MaxFragments bounds a single logical packet; the fragment index and
	// count are single bytes.
	MaxFragments = 255

	// MaxPacketSize caps reassembly buffering. Anything larger than this is
	// line noise, not a packet the transceiver would produce.
	MaxPacketSize = 1024
)
