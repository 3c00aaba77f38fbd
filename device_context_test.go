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

package tiqiaa

import (
	"context"
	"testing"
	"time"

	testutil "github.com/TViewProject/go-tiqiaa/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_SetMode(t *testing.T) {
	t.Parallel()

	t.Run("Mode_Round_Trip", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		for _, mode := range []Mode{ModeReceive, ModeIdle, ModeSend} {
			require.NoError(t, device.SetMode(mode))

			got, ok := device.Mode()
			assert.True(t, ok)
			assert.Equal(t, mode, got)

			want, err := mode.state()
			require.NoError(t, err)
			assert.Equal(t, want, sim.State())
		}
	})

	t.Run("Invalid_Mode_Rejected", func(t *testing.T) {
		t.Parallel()
		device, _, _ := openSimulatedDevice(t)

		err := device.SetMode(Mode(42))
		require.ErrorIs(t, err, ErrInvalidMode)
	})

	t.Run("Lost_Reply_Times_Out", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)
		sim.SetQuiet(true)

		err := device.SetMode(ModeIdle)
		require.ErrorIs(t, err, ErrReplyTimeout)
		assert.Contains(t, err.Error(), "idle mode")

		// The failure carries the session wire trace.
		trace := GetTrace(err)
		require.NotNil(t, trace)
		assert.NotEmpty(t, trace.Trace)
	})
}

func TestDevice_SendIR(t *testing.T) {
	t.Parallel()

	t.Run("Signal_Reaches_Dongle", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		signal := testutil.SampleRawSignal()
		require.NoError(t, device.SendIR(40000, signal))

		sent := sim.SentSignals()
		require.Len(t, sent, 1)
		assert.Equal(t, freqIndex(40000), sent[0].FreqIndex)
		assert.Equal(t, signal, sent[0].Signal)
	})

	t.Run("Send_Switches_To_Send_Mode", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		require.NoError(t, device.SetMode(ModeIdle))
		before := sim.CommandCount('S')

		require.NoError(t, device.SendIR(DefaultFrequency, testutil.SampleRawSignal()))
		assert.Equal(t, before+1, sim.CommandCount('S'))
		assert.Equal(t, stateSend, device.State())
	})

	t.Run("Send_Mode_Not_Repeated", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		// Open already put the dongle in send mode.
		before := sim.CommandCount('S')
		require.NoError(t, device.SendIR(DefaultFrequency, testutil.SampleRawSignal()))
		require.NoError(t, device.SendIR(DefaultFrequency, testutil.SampleRawSignal()))
		assert.Equal(t, before, sim.CommandCount('S'))
	})

	t.Run("Empty_Signal_Rejected", func(t *testing.T) {
		t.Parallel()
		device, _, _ := openSimulatedDevice(t)

		require.ErrorIs(t, device.SendIR(DefaultFrequency, nil), ErrEmptySignal)
	})

	t.Run("Oversized_Signal_Rejected", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		err := device.SendIR(DefaultFrequency, make([]byte, maxSignalSize+1))
		require.ErrorIs(t, err, ErrSignalTooLarge)
		assert.Empty(t, sim.SentSignals())
	})

	t.Run("Largest_Signal_Accepted", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		signal := make([]byte, maxSignalSize)
		for i := range signal {
			signal[i] = byte(0x80 | i&0x7F)
		}
		require.NoError(t, device.SendIR(DefaultFrequency, signal))

		sent := sim.SentSignals()
		require.Len(t, sent, 1)
		assert.Equal(t, signal, sent[0].Signal)
	})

	t.Run("Missing_Ack_Still_Succeeds", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)
		sim.DropNextReplies(1)

		// The dongle emits the signal as soon as the data arrives, so
		// a lost ack must not turn a successful send into an error.
		require.NoError(t, device.SendIR(DefaultFrequency, testutil.SampleRawSignal()))
		assert.Len(t, sim.SentSignals(), 1)
	})

	t.Run("Cancelled_Ack_Wait_Fails", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)
		sim.DropNextReplies(1)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := device.SendIRContext(ctx, DefaultFrequency, testutil.SampleRawSignal())
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Unknown_Frequency_Falls_Back", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		require.NoError(t, device.SendIR(12345, testutil.SampleRawSignal()))

		sent := sim.SentSignals()
		require.Len(t, sent, 1)
		assert.Equal(t, byte(0), sent[0].FreqIndex, "unknown carriers use the 38 kHz slot")
	})
}

func TestDevice_SendNEC(t *testing.T) {
	t.Parallel()

	t.Run("Code_Survives_The_Wire", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		require.NoError(t, device.SendNEC(0x20DF))

		sent := sim.SentSignals()
		require.Len(t, sent, 1)
		assert.Equal(t, freqIndex(DefaultFrequency), sent[0].FreqIndex)

		decoded, err := DecodeNEC(sent[0].Signal)
		require.NoError(t, err)
		assert.Equal(t, uint16(0x20DF), decoded.Code)
		assert.True(t, decoded.Validated)
	})

	t.Run("Extended_Address_Survives_The_Wire", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		require.NoError(t, device.SendNECExtended(0x04FB, 0x08))

		sent := sim.SentSignals()
		require.Len(t, sent, 1)

		decoded, err := DecodeNEC(sent[0].Signal)
		require.NoError(t, err)
		assert.Equal(t, byte(0xFB), decoded.Address)
		assert.Equal(t, byte(0x08), decoded.Command)
		assert.False(t, decoded.Validated, "extended frames fail the inversion check")
	})

	t.Run("Repeat_Frame_Sent", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		require.NoError(t, device.SendNECRepeat())

		sent := sim.SentSignals()
		require.Len(t, sent, 1)
		assert.Equal(t, EncodeNECRepeat(), sent[0].Signal)
	})
}

func TestDevice_ReceiveIR(t *testing.T) {
	t.Parallel()

	t.Run("Staged_Signal_Delivered", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		signal := testutil.SampleRawSignal()
		sim.InjectSignal(signal)

		got, err := device.ReceiveIR(0)
		require.NoError(t, err)
		assert.Equal(t, signal, got)
		assert.Equal(t, stateRecv, device.State())
	})

	t.Run("Signal_During_Wait_Delivered", func(t *testing.T) {
		t.Parallel()
		device, mt, sim := openSimulatedDevice(t)

		signal := testutil.SampleRawSignal()
		go func() {
			time.Sleep(50 * time.Millisecond)
			injectSignal(mt, sim, signal)
		}()

		got, err := device.ReceiveIR(time.Second)
		require.NoError(t, err)
		assert.Equal(t, signal, got)
	})

	t.Run("Timeout_Reports_No_Signal", func(t *testing.T) {
		t.Parallel()
		device, _, _ := openSimulatedDevice(t)

		start := time.Now()
		_, err := device.ReceiveIR(50 * time.Millisecond)
		require.ErrorIs(t, err, ErrNoSignal)
		assert.Less(t, time.Since(start), 400*time.Millisecond)
		assert.True(t, HasTrace(err), "no-signal failures carry the wire trace")
	})

	t.Run("Negative_Timeout_Polls", func(t *testing.T) {
		t.Parallel()
		device, _, _ := openSimulatedDevice(t)

		_, err := device.ReceiveIR(-1)
		require.ErrorIs(t, err, ErrNoSignal)
	})

	t.Run("Long_Capture_Reassembled", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		signal := make([]byte, 400)
		for i := range signal {
			signal[i] = byte(0x80 | i&0x7F)
		}
		sim.InjectSignal(signal)

		got, err := device.ReceiveIR(0)
		require.NoError(t, err)
		assert.Equal(t, signal, got)
	})

	t.Run("Remote_Press_Decodes", func(t *testing.T) {
		t.Parallel()
		device, mt, sim := openSimulatedDevice(t)

		remote := testutil.NewVirtualRemote(0x20)
		remote.MapButton("power", 0xDF)
		press, err := remote.Press("power")
		require.NoError(t, err)

		go func() {
			time.Sleep(30 * time.Millisecond)
			injectSignal(mt, sim, press)
		}()

		captured, err := device.ReceiveIR(time.Second)
		require.NoError(t, err)

		decoded, err := DecodeNEC(captured)
		require.NoError(t, err)
		assert.Equal(t, byte(0x20), decoded.Address)
		assert.Equal(t, byte(0xDF), decoded.Command)
		assert.True(t, decoded.Validated)
	})

	t.Run("Cancelled_Wait_Fails", func(t *testing.T) {
		t.Parallel()
		device, _, _ := openSimulatedDevice(t)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()

		_, err := device.ReceiveIRContext(ctx, time.Second)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Receive_After_Send_Works", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		require.NoError(t, device.SendNEC(0x20DF))

		signal := testutil.SampleRawSignal()
		sim.InjectSignal(signal)

		got, err := device.ReceiveIR(0)
		require.NoError(t, err)
		assert.Equal(t, signal, got)
	})
}

func TestDevice_FirmwareVersion(t *testing.T) {
	t.Parallel()

	t.Run("Default_Version", func(t *testing.T) {
		t.Parallel()
		device, _, _ := openSimulatedDevice(t)

		version, err := device.FirmwareVersion()
		require.NoError(t, err)
		assert.Equal(t, testutil.DefaultFirmwareVersion, version)
	})

	t.Run("Version_Cached", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)

		first, err := device.FirmwareVersion()
		require.NoError(t, err)
		second, err := device.FirmwareVersion()
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, sim.CommandCount('V'), "second call must hit the cache")
	})

	t.Run("NUL_Padding_Stripped", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)
		sim.SetFirmwareVersion("V2.17\x00\x00\x00")

		version, err := device.FirmwareVersion()
		require.NoError(t, err)
		assert.Equal(t, "V2.17", version)
	})

	t.Run("Blank_Version_Rejected", func(t *testing.T) {
		t.Parallel()
		device, _, sim := openSimulatedDevice(t)
		sim.SetFirmwareVersion("\x00\x00")

		_, err := device.FirmwareVersion()
		require.ErrorIs(t, err, ErrNoVersion)
	})

	t.Run("Version_Leaves_Device_State_Alone", func(t *testing.T) {
		t.Parallel()
		device, _, _ := openSimulatedDevice(t)

		require.Equal(t, stateSend, device.State())
		_, err := device.FirmwareVersion()
		require.NoError(t, err)

		// The version reply payload is ASCII, not a state byte.
		assert.Equal(t, stateSend, device.State())
	})
}

func TestDevice_ReplyHandling(t *testing.T) {
	t.Parallel()

	t.Run("Unrelated_Replies_Skipped", func(t *testing.T) {
		t.Parallel()
		device, mt, _ := openSimulatedDevice(t)

		// Noise with a foreign id and type sits in front of the real
		// exchange; the wait must skip it and still match.
		for _, report := range testutil.BuildReply(0x63, 'O', []byte{0x09}) {
			mt.QueueRead(report)
		}

		version, err := device.FirmwareVersion()
		require.NoError(t, err)
		assert.NotEmpty(t, version)
	})

	t.Run("Reader_Death_Surfaces", func(t *testing.T) {
		t.Parallel()
		device, mt, _ := openSimulatedDevice(t)

		mt.SetReadError(NewDeviceGoneError("Read", "mock", ErrTransportRead))

		_, err := device.FirmwareVersion()
		require.Error(t, err)
		assert.True(t, IsFatal(err), "reader's terminal error must surface: %v", err)
	})

	t.Run("Short_Packets_Ignored", func(t *testing.T) {
		t.Parallel()
		device, mt, _ := openSimulatedDevice(t)

		// A packet with only an id byte carries nothing usable; the
		// reader must skip it without disturbing the session.
		report := make([]byte, 61)
		report[0] = 0x01
		report[1] = 8 // five payload bytes: ST + id + EN
		report[2] = 1
		report[3] = 1
		report[4] = 1
		copy(report[5:], []byte{'S', 'T', 0x07, 'E', 'N'})
		mt.QueueRead(report)

		version, err := device.FirmwareVersion()
		require.NoError(t, err)
		assert.NotEmpty(t, version)
	})
}

func TestDevice_InboxOverflow(t *testing.T) {
	t.Parallel()

	cfg := fastTestConfig()
	cfg.InboxSize = 2
	device, mt, _ := newSimulatedDevice(t, WithConfig(cfg))
	require.NoError(t, device.Open())
	t.Cleanup(func() { _ = device.Close() })

	// Five captures pour in while the foreground is away. Only the two
	// newest survive; the oldest three fall off the front.
	for id := byte(1); id <= 5; id++ {
		for _, report := range testutil.BuildReply(id, 'D', []byte{id}) {
			mt.QueueRead(report)
		}
	}
	time.Sleep(100 * time.Millisecond)

	r, err := device.awaitMatch(context.Background(), 0, func(r reply) bool {
		return r.typ == 'D'
	})
	require.NoError(t, err)
	assert.Equal(t, byte(4), r.id, "oldest replies are dropped first")

	r, err = device.awaitMatch(context.Background(), 0, func(r reply) bool {
		return r.typ == 'D'
	})
	require.NoError(t, err)
	assert.Equal(t, byte(5), r.id)
}
