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

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPacket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		cmdID   byte
		cmdType byte
		want    []byte
	}{
		{
			name:    "empty payload",
			cmdID:   0x01,
			cmdType: 'S',
			payload: nil,
			want:    []byte{0x53, 0x54, 0x01, 'S', 0x45, 0x4E},
		},
		{
			name:    "data payload",
			cmdID:   0x7F,
			cmdType: 'D',
			payload: []byte{0x00, 0x81, 0x23},
			want:    []byte{0x53, 0x54, 0x7F, 'D', 0x00, 0x81, 0x23, 0x45, 0x4E},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := BuildPacket(tt.cmdID, tt.cmdType, tt.payload)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFragmentSingleReport(t *testing.T) {
	t.Parallel()

	pkt := BuildPacket(0x05, 'S', nil)
	reports, err := Fragment(ReportTagOut, 0x03, pkt)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	report := reports[0]
	require.Len(t, report, ReportSize)
	assert.Equal(t, byte(ReportTagOut), report[0])
	assert.Equal(t, byte(len(pkt)+fragSizeOverhead), report[1])
	assert.Equal(t, byte(0x03), report[2])
	assert.Equal(t, byte(1), report[3], "fragment count")
	assert.Equal(t, byte(1), report[4], "fragment index")
	assert.Equal(t, pkt, report[headerSize:headerSize+len(pkt)])
	assert.True(t, bytes.Count(report[headerSize+len(pkt):], []byte{0x00}) == ReportSize-headerSize-len(pkt),
		"tail must be zero padding")
}

func TestFragmentMultiReport(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 150)
	for i := range payload {
		payload[i] = byte(i)
	}
	pkt := BuildPacket(0x10, 'D', payload)

	reports, err := Fragment(ReportTagOut, 0x0F, pkt)
	require.NoError(t, err)
	// 156 packet bytes over 56-byte fragments.
	require.Len(t, reports, 3)

	for i, report := range reports {
		require.Len(t, report, ReportSize)
		assert.Equal(t, byte(ReportTagOut), report[0])
		assert.Equal(t, byte(0x0F), report[2])
		assert.Equal(t, byte(3), report[3])
		assert.Equal(t, byte(i+1), report[4])
	}
	assert.Equal(t, byte(MaxFragmentPayload+fragSizeOverhead), reports[0][1])
	assert.Equal(t, byte(44+fragSizeOverhead), reports[2][1], "final fragment carries the remainder")
}

func TestFragmentEmptyPacket(t *testing.T) {
	t.Parallel()

	reports, err := Fragment(ReportTagOut, 1, nil)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, byte(fragSizeOverhead), reports[0][1])
	assert.Equal(t, byte(1), reports[0][3])
	assert.Equal(t, byte(1), reports[0][4])
}

func TestFragmentTooLarge(t *testing.T) {
	t.Parallel()

	_, err := Fragment(ReportTagOut, 1, make([]byte, MaxPacketSize+1))
	require.Error(t, err)
}

func TestFragmentReassembleRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
	}{
		{name: "empty", size: 0},
		{name: "one byte", size: 1},
		{name: "exact fragment", size: MaxFragmentPayload - 2*MarkerSize - 2},
		{name: "two fragments", size: 80},
		{name: "many fragments", size: 700},
		{name: "max packet", size: MaxPacketSize - 2*MarkerSize - 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payload := make([]byte, tt.size)
			for i := range payload {
				payload[i] = byte(i * 7)
			}
			pkt := BuildPacket(0x42, 'D', payload)
			reports, err := Fragment(ReportTagIn, 0x07, pkt)
			require.NoError(t, err)

			r := NewReassembler(ReportTagIn)
			for i, report := range reports {
				inner, done := r.Feed(report)
				if i < len(reports)-1 {
					assert.False(t, done, "fragment %d must not complete", i+1)
					continue
				}
				require.True(t, done, "final fragment must complete")
				require.GreaterOrEqual(t, len(inner), 2)
				assert.Equal(t, byte(0x42), inner[0])
				assert.Equal(t, byte('D'), inner[1])
				assert.Equal(t, payload, inner[2:])
			}
		})
	}
}
