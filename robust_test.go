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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/TViewProject/go-tiqiaa/internal/testing"
)

// slowTransport adds a fixed delay to every read and write, standing in
// for a loaded USB bus or a serial bridge at a low baud rate.
type slowTransport struct {
	*MockTransport
	delay time.Duration
}

func (s *slowTransport) Read(buf []byte, timeout time.Duration) (int, error) {
	time.Sleep(s.delay)
	return s.MockTransport.Read(buf, timeout)
}

func (s *slowTransport) Write(data []byte, timeout time.Duration) (int, error) {
	time.Sleep(s.delay)
	return s.MockTransport.Write(data, timeout)
}

// stutterTransport fails a scripted number of writes with a transient
// error before letting them through, and counts every attempt.
type stutterTransport struct {
	*MockTransport
	failures atomic.Int32
	attempts atomic.Int32
}

func (s *stutterTransport) Write(data []byte, timeout time.Duration) (int, error) {
	s.attempts.Add(1)
	if s.failures.Add(-1) >= 0 {
		return 0, NewTransportWriteError("Write", "stutter")
	}
	return s.MockTransport.Write(data, timeout)
}

func (s *stutterTransport) failNext(n int) {
	s.failures.Store(int32(n))
}

// newSlowSession wires a simulated dongle behind a slowTransport and
// returns an unopened device on top of it.
func newSlowSession(t *testing.T, delay time.Duration, opts ...Option) (*Device, *MockTransport, *testutil.VirtualTView) {
	t.Helper()

	sim := testutil.NewVirtualTView()
	mt := NewMockTransport()
	wireSimulator(mt, sim)

	slow := &slowTransport{MockTransport: mt, delay: delay}
	device, err := New(slow, append([]Option{WithConfig(fastTestConfig())}, opts...)...)
	require.NoError(t, err)

	return device, mt, sim
}

func TestRobust_SlowLink(t *testing.T) {
	t.Parallel()

	t.Run("Full_Session_Over_Slow_Link", func(t *testing.T) {
		t.Parallel()

		device, mt, sim := newSlowSession(t, time.Millisecond)
		require.NoError(t, device.Open())
		t.Cleanup(func() { _ = device.Close() })

		version, err := device.FirmwareVersion()
		require.NoError(t, err)
		require.Equal(t, testutil.DefaultFirmwareVersion, version)

		require.NoError(t, device.SendNEC(0x20DF))
		require.Len(t, sim.SentSignals(), 1)

		remote := testutil.NewVirtualRemote(0x20)
		go func() {
			time.Sleep(20 * time.Millisecond)
			injectSignal(mt, sim, remote.PressCommand(0x0C))
		}()

		signal, err := device.ReceiveIR(time.Second)
		require.NoError(t, err)

		decoded, err := DecodeNEC(signal)
		require.NoError(t, err)
		require.Equal(t, uint16(0x200C), decoded.Code)
		require.True(t, decoded.Validated)

		require.NoError(t, device.Close())
	})

	t.Run("Delayed_Replies_Within_Budget", func(t *testing.T) {
		t.Parallel()

		sim := testutil.NewVirtualTView()
		mt := NewMockTransport()
		mt.OnWrite(func(report []byte) {
			replies := sim.HandleReport(report)
			if len(replies) == 0 {
				return
			}
			time.AfterFunc(25*time.Millisecond, func() {
				for _, reply := range replies {
					mt.QueueRead(reply)
				}
			})
		})

		device, err := New(mt, WithConfig(fastTestConfig()))
		require.NoError(t, err)
		require.NoError(t, device.Open())
		t.Cleanup(func() { _ = device.Close() })

		version, err := device.FirmwareVersion()
		require.NoError(t, err)
		require.Equal(t, testutil.DefaultFirmwareVersion, version)

		require.NoError(t, device.SetMode(ModeIdle))
		require.NoError(t, device.SendIR(DefaultFrequency, testutil.SampleRawSignal()))
	})
}

func TestRobust_ReplyLoss(t *testing.T) {
	t.Parallel()

	t.Run("Open_Retries_On_A_Slow_Lossy_Link", func(t *testing.T) {
		t.Parallel()

		device, _, sim := newSlowSession(t, time.Millisecond, WithOpenAttempts(3))
		sim.DropNextReplies(1)

		require.NoError(t, device.Open())
		t.Cleanup(func() { _ = device.Close() })

		require.Equal(t, testutil.StateSend, sim.State())
		require.Equal(t, 2, sim.CommandCount('S'))
	})

	t.Run("Send_Survives_Lost_Ack_Then_Recovers", func(t *testing.T) {
		t.Parallel()

		device, _, sim := openSimulatedDevice(t)

		sim.DropNextReplies(1)
		require.NoError(t, device.SendIR(DefaultFrequency, testutil.SampleRawSignal()))

		// The next transmission gets its ack and completes promptly.
		start := time.Now()
		require.NoError(t, device.SendIR(DefaultFrequency, testutil.SampleRawSignal()))
		require.Less(t, time.Since(start), fastTestConfig().SendAckTimeout)

		require.Len(t, sim.SentSignals(), 2)
	})

	t.Run("Mode_Change_Times_Out_Then_Recovers", func(t *testing.T) {
		t.Parallel()

		device, _, sim := openSimulatedDevice(t)

		sim.SetQuiet(true)
		err := device.SetMode(ModeIdle)
		require.ErrorIs(t, err, ErrReplyTimeout)
		require.False(t, IsFatal(err))
		require.True(t, device.IsOpen())

		sim.SetQuiet(false)
		require.NoError(t, device.SetMode(ModeIdle))

		mode, ok := device.Mode()
		require.True(t, ok)
		require.Equal(t, ModeIdle, mode)
		require.Equal(t, testutil.StateIdle, sim.State())
	})
}

func TestRobust_NoisyLink(t *testing.T) {
	t.Parallel()

	t.Run("Unsolicited_Replies_Ignored", func(t *testing.T) {
		t.Parallel()

		device, mt, sim := openSimulatedDevice(t)

		// Replies nobody asked for, with command ids the session has
		// not issued yet.
		for i := range 8 {
			for _, report := range testutil.BuildReply(byte(0x60+i), 'X', []byte{0xAA}) {
				mt.QueueRead(report)
			}
		}

		version, err := device.FirmwareVersion()
		require.NoError(t, err)
		require.Equal(t, testutil.DefaultFirmwareVersion, version)

		require.NoError(t, device.SendNEC(0x20DF))
		require.Len(t, sim.SentSignals(), 1)
	})

	t.Run("Corrupt_Reports_Ignored", func(t *testing.T) {
		t.Parallel()

		device, mt, sim := openSimulatedDevice(t)

		wrongTag := make([]byte, 61)
		wrongTag[0] = 0x7F
		wrongTag[1] = 10
		mt.QueueRead(wrongTag)

		oversize := make([]byte, 61)
		oversize[0] = 0x01
		oversize[1] = 0xFF
		oversize[3] = 1
		oversize[4] = 1
		mt.QueueRead(oversize)

		badMarkers := make([]byte, 61)
		badMarkers[0] = 0x01
		badMarkers[1] = 9
		badMarkers[2] = 0x09
		badMarkers[3] = 1
		badMarkers[4] = 1
		copy(badMarkers[5:], "QQJUNK")
		mt.QueueRead(badMarkers)

		mt.QueueRead([]byte{0x01, 0x05})

		version, err := device.FirmwareVersion()
		require.NoError(t, err)
		require.Equal(t, testutil.DefaultFirmwareVersion, version)

		require.NoError(t, device.SendIR(DefaultFrequency, testutil.SampleRawSignal()))
		require.Len(t, sim.SentSignals(), 1)
	})

	t.Run("Noise_During_Receive", func(t *testing.T) {
		t.Parallel()

		device, mt, sim := openSimulatedDevice(t)
		remote := testutil.NewVirtualRemote(0x20)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 12 {
				for _, report := range testutil.BuildReply(byte(0x40+i), 'O', []byte{0x13}) {
					mt.QueueRead(report)
				}
				time.Sleep(2 * time.Millisecond)
			}
			injectSignal(mt, sim, remote.PressCommand(0x5E))
		}()

		signal, err := device.ReceiveIR(time.Second)
		wg.Wait()
		require.NoError(t, err)

		decoded, err := DecodeNEC(signal)
		require.NoError(t, err)
		require.Equal(t, uint16(0x205E), decoded.Code)
	})
}

func TestRobust_WriteRecovery(t *testing.T) {
	t.Parallel()

	newStutterSession := func(t *testing.T) (*Device, *stutterTransport, *testutil.VirtualTView) {
		t.Helper()

		sim := testutil.NewVirtualTView()
		mt := NewMockTransport()
		wireSimulator(mt, sim)
		st := &stutterTransport{MockTransport: mt}
		st.failures.Store(-1)

		device, err := New(st, WithConfig(fastTestConfig()))
		require.NoError(t, err)

		return device, st, sim
	}

	t.Run("Open_Recovers_From_Write_Stalls", func(t *testing.T) {
		t.Parallel()

		device, st, sim := newStutterSession(t)
		st.failNext(2)

		require.NoError(t, device.Open())
		t.Cleanup(func() { _ = device.Close() })

		require.Equal(t, int32(3), st.attempts.Load())
		require.Equal(t, testutil.StateSend, sim.State())
		require.Equal(t, 1, sim.CommandCount('S'))
	})

	t.Run("Transient_Write_Failures_Retried", func(t *testing.T) {
		t.Parallel()

		device, st, sim := newStutterSession(t)
		require.NoError(t, device.Open())
		t.Cleanup(func() { _ = device.Close() })

		before := st.attempts.Load()
		st.failNext(2)

		start := time.Now()
		require.NoError(t, device.SetMode(ModeIdle))
		require.GreaterOrEqual(t, time.Since(start), 2*ReportWriteBackoff)

		require.Equal(t, int32(3), st.attempts.Load()-before)
		require.Equal(t, 1, sim.CommandCount('L'))
	})

	t.Run("Fatal_Write_Fails_Fast", func(t *testing.T) {
		t.Parallel()

		device, st, _ := newStutterSession(t)
		require.NoError(t, device.Open())
		t.Cleanup(func() { _ = device.Close() })

		before := st.attempts.Load()
		st.SetWriteError(NewTransportClosedError("Write", "mock"))

		err := device.SetMode(ModeIdle)
		require.Error(t, err)
		require.True(t, IsFatal(err))
		require.True(t, HasTrace(err))
		require.Equal(t, int32(1), st.attempts.Load()-before)
	})
}

func TestRobust_SessionLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("Fault_Close_Reopen", func(t *testing.T) {
		t.Parallel()

		device, mt, sim := newSimulatedDevice(t)
		require.NoError(t, device.Open())

		require.NoError(t, device.SendNEC(0x20DF))

		// The dongle drops off the bus mid-session.
		mt.SetReadError(NewDeviceGoneError("Read", "mock", ErrTransportRead))
		time.Sleep(20 * time.Millisecond)

		_, err := device.FirmwareVersion()
		require.Error(t, err)
		require.NoError(t, device.Close())

		// Replugged: same transport object, fresh connection.
		mt.Reset()
		sim.Reset()
		wireSimulator(mt, sim)

		require.NoError(t, device.Open())
		t.Cleanup(func() { _ = device.Close() })

		require.NoError(t, device.SendNEC(0x04FB))
		require.Len(t, sim.SentSignals(), 1)
	})

	t.Run("Receive_Timeout_Leaves_Session_Usable", func(t *testing.T) {
		t.Parallel()

		device, mt, sim := openSimulatedDevice(t)

		_, err := device.ReceiveIR(30 * time.Millisecond)
		require.ErrorIs(t, err, ErrNoSignal)

		require.NoError(t, device.SendIR(DefaultFrequency, testutil.SampleRawSignal()))

		injectSignal(mt, sim, testutil.SampleRawSignal())
		signal, err := device.ReceiveIR(200 * time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, testutil.SampleRawSignal(), signal)
	})
}
