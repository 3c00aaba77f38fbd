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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTransport_Write(t *testing.T) {
	t.Parallel()

	t.Run("Writes_Captured", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()

		n, err := mt.Write([]byte{0x02, 0x01, 0x03}, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = mt.Write([]byte{0xAA}, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		writes := mt.Writes()
		require.Len(t, writes, 2)
		assert.Equal(t, []byte{0x02, 0x01, 0x03}, writes[0])
		assert.Equal(t, []byte{0xAA}, writes[1])
		assert.Equal(t, []byte{0xAA}, mt.LastWrite())
		assert.Equal(t, 2, mt.WriteCount())
	})

	t.Run("Write_Copies_Data", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()

		data := []byte{0x01, 0x02}
		_, err := mt.Write(data, time.Second)
		require.NoError(t, err)
		data[0] = 0xFF

		assert.Equal(t, []byte{0x01, 0x02}, mt.LastWrite())
	})

	t.Run("OnWrite_Hook_Runs", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()

		var hooked [][]byte
		mt.OnWrite(func(report []byte) {
			hooked = append(hooked, report)
		})

		_, err := mt.Write([]byte{0x42}, time.Second)
		require.NoError(t, err)
		require.Len(t, hooked, 1)
		assert.Equal(t, []byte{0x42}, hooked[0])
	})

	t.Run("Injected_Write_Error", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()
		mt.SetWriteError(NewTransportWriteError("Write", "mock"))

		_, err := mt.Write([]byte{0x01}, time.Second)
		require.ErrorIs(t, err, ErrTransportWrite)
		assert.Empty(t, mt.Writes(), "failed writes are not captured")

		mt.SetWriteError(nil)
		_, err = mt.Write([]byte{0x01}, time.Second)
		require.NoError(t, err)
	})

	t.Run("Write_After_Close", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()
		require.NoError(t, mt.Close())

		_, err := mt.Write([]byte{0x01}, time.Second)
		require.ErrorIs(t, err, ErrTransportClosed)
		assert.True(t, IsFatal(err))
	})
}

func TestMockTransport_Read(t *testing.T) {
	t.Parallel()

	t.Run("Queued_Data_Returned", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()
		mt.QueueRead([]byte{0x01, 0x02, 0x03})

		buf := make([]byte, 64)
		n, err := mt.Read(buf, time.Second)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, []byte{0x01, 0x02, 0x03}, buf[:n])
		assert.Equal(t, 1, mt.ReadCount())
	})

	t.Run("Timeout_When_Empty", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()

		buf := make([]byte, 64)
		start := time.Now()
		_, err := mt.Read(buf, 20*time.Millisecond)
		require.ErrorIs(t, err, ErrTransportTimeout)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Timeout())
		assert.True(t, IsRetryable(err))
		assert.False(t, IsFatal(err))
	})

	t.Run("Zero_Timeout_Polls", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()

		buf := make([]byte, 64)
		start := time.Now()
		_, err := mt.Read(buf, 0)
		require.ErrorIs(t, err, ErrTransportTimeout)
		assert.Less(t, time.Since(start), 20*time.Millisecond, "zero timeout must not block")

		mt.QueueRead([]byte{0x55})
		n, err := mt.Read(buf, 0)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x55}, buf[:n])
	})

	t.Run("Close_Wakes_Blocked_Read", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()

		done := make(chan error, 1)
		go func() {
			buf := make([]byte, 64)
			_, err := mt.Read(buf, 5*time.Second)
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, mt.Close())

		select {
		case err := <-done:
			require.ErrorIs(t, err, ErrTransportClosed)
		case <-time.After(time.Second):
			t.Fatal("read did not return after close")
		}
	})

	t.Run("Injected_Read_Error", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()
		mt.SetReadError(errors.New("bus glitch"))

		buf := make([]byte, 64)
		_, err := mt.Read(buf, time.Second)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bus glitch")
	})
}

func TestMockTransport_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("Close_Is_Idempotent", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()

		assert.True(t, mt.IsConnected())
		require.NoError(t, mt.Close())
		require.NoError(t, mt.Close())
		assert.False(t, mt.IsConnected())
	})

	t.Run("Reset_Rearms", func(t *testing.T) {
		t.Parallel()
		mt := NewMockTransport()

		_, err := mt.Write([]byte{0x01}, time.Second)
		require.NoError(t, err)
		mt.QueueRead([]byte{0x02})
		require.NoError(t, mt.Close())

		mt.Reset()

		assert.True(t, mt.IsConnected())
		assert.Empty(t, mt.Writes())

		buf := make([]byte, 64)
		_, err = mt.Read(buf, 0)
		require.ErrorIs(t, err, ErrTransportTimeout, "queued reads are drained by reset")
	})

	t.Run("Type_Is_Mock", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, TransportMock, NewMockTransport().Type())
	})
}

// namedTransport wraps the mock with a fixed port name for label tests.
type namedTransport struct {
	*MockTransport
	name string
}

func (n *namedTransport) PortName() string { return n.name }

func TestPortLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		transport Transport
		name      string
		want      string
	}{
		{
			name:      "Nil_Transport",
			transport: nil,
			want:      "",
		},
		{
			name:      "Unnamed_Falls_Back_To_Type",
			transport: NewMockTransport(),
			want:      "mock",
		},
		{
			name:      "Named_Transport",
			transport: &namedTransport{MockTransport: NewMockTransport(), name: "/dev/ttyUSB0"},
			want:      "/dev/ttyUSB0",
		},
		{
			name:      "Empty_Name_Falls_Back_To_Type",
			transport: &namedTransport{MockTransport: NewMockTransport(), name: ""},
			want:      "mock",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, portLabel(tt.transport))
		})
	}
}
