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

// DefaultFrequency is the carrier used when a requested frequency is not in
// the transceiver's table. 38 kHz covers NEC and most consumer remotes.
const DefaultFrequency = 38000

// carrierFrequencies is the transceiver's carrier table. The wire protocol
// identifies a carrier by its position here, so the order is fixed by the
// firmware and must never be rearranged.
var carrierFrequencies = []int{
	38000, 37900, 37917, 36000, 40000,
	39700, 35750, 36400, 36700, 37000,
	37700, 38380, 38400, 38462, 38740,
	39200, 42000, 43600, 44000, 33000,
	33500, 34000, 34500, 35000, 40500,
	41000, 41500, 42500, 43000, 45000,
}

// freqIndex maps a carrier frequency in Hz to its wire index. Frequencies
// the firmware does not support fall back to index 0 (38 kHz) rather than
// failing; an approximate carrier still drives most receivers.
func freqIndex(hz int) byte {
	for i, f := range carrierFrequencies {
		if f == hz {
			return byte(i)
		}
	}
	return 0
}

// freqByIndex maps a wire index back to Hz, with the same 38 kHz fallback
// for indexes the table does not cover.
func freqByIndex(idx byte) int {
	if int(idx) >= len(carrierFrequencies) {
		return DefaultFrequency
	}
	return carrierFrequencies[idx]
}

// Frequencies returns the carriers the transceiver can generate, in wire
// index order. The slice is a copy; callers may modify it.
func Frequencies() []int {
	out := make([]int, len(carrierFrequencies))
	copy(out, carrierFrequencies)
	return out
}
