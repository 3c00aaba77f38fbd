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

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TViewProject/go-tiqiaa/internal/frame"
)

const (
	// maxCommandID caps the cycling command id. The firmware echoes the
	// id in its reply, and zero is reserved as "no command".
	maxCommandID = 0x7F
	// maxPacketIndex caps the cycling fragment-group index.
	maxPacketIndex = 0x0F

	// maxSignalSize is the largest raw IR signal SendIR accepts. The
	// packet around it adds four marker bytes, the id, the type and the
	// frequency index, and the whole packet must stay within the
	// firmware's buffer.
	maxSignalSize = frame.MaxPacketSize - 7
)

// OpenContext establishes the session with cancellation support.
//
// Stale data from a previous session is drained first, then the
// background reader starts and the firmware gets a moment to settle.
// The session counts as open once the dongle confirms a switch to send
// mode; the handshake retries up to OpenAttempts times since the
// firmware stays mute while it is still booting.
func (d *Device) OpenContext(ctx context.Context) error {
	if d.open {
		return ErrAlreadyOpen
	}
	if d.transport == nil || !d.transport.IsConnected() {
		return NewTransportClosedError("Open", portLabel(d.transport))
	}

	d.cmdID = 0
	d.packetIdx = 0
	d.deviceState = stateIdle
	d.firmware = ""
	d.readerErr = nil
	d.trace.Clear()

	inboxSize := d.config.InboxSize
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	d.inbox = make(chan reply, inboxSize)
	d.readerStop = make(chan struct{})
	d.readerDone = make(chan struct{})

	d.drainStale()
	go d.readLoop()

	if d.config.OpenSettle > 0 {
		timer := time.NewTimer(d.config.OpenSettle)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.stopReader()
			return fmt.Errorf("open cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	err := RetryWithConfig(ctx, openRetryConfig(d.config.OpenAttempts), func() error {
		return d.setMode(ctx, ModeSend)
	})
	if err != nil {
		d.stopReader()
		return fmt.Errorf("transceiver did not answer the open handshake: %w", err)
	}

	d.open = true
	return nil
}

// drainStale discards whatever the dongle buffered before this session.
// A read timeout means the queue is empty, so the drain stops early.
func (d *Device) drainStale() {
	if d.config.DrainReads <= 0 {
		return
	}
	buf := make([]byte, transportReadSize)
	for range d.config.DrainReads {
		_, err := d.transport.Read(buf, d.config.DrainTimeout)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrTransportTimeout) || IsFatal(err) {
			return
		}
	}
}

// SetModeContext switches the dongle's operating mode and waits for
// the firmware to confirm.
func (d *Device) SetModeContext(ctx context.Context, mode Mode) error {
	if !d.open {
		return ErrNotOpen
	}
	return d.setMode(ctx, mode)
}

func (d *Device) setMode(ctx context.Context, mode Mode) error {
	cmd, err := mode.command()
	if err != nil {
		return err
	}
	if _, err := d.commandContext(ctx, cmd, nil, d.config.ReplyTimeout); err != nil {
		return fmt.Errorf("switch to %s mode: %w", mode, err)
	}
	return nil
}

// SendIRContext transmits a raw IR signal with cancellation support.
//
// The dongle emits the signal as soon as the data packet lands, and
// not every firmware revision reports the output ack afterwards, so a
// missing ack does not fail the send.
func (d *Device) SendIRContext(ctx context.Context, freq int, signal []byte) error {
	if !d.open {
		return ErrNotOpen
	}
	if len(signal) == 0 {
		return ErrEmptySignal
	}
	if len(signal) > maxSignalSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrSignalTooLarge, len(signal), maxSignalSize)
	}

	if d.deviceState != stateSend {
		if err := d.setMode(ctx, ModeSend); err != nil {
			return err
		}
	}

	id := d.nextCommandID()
	d.drainInbox()

	payload := make([]byte, 0, len(signal)+1)
	payload = append(payload, freqIndex(freq))
	payload = append(payload, signal...)
	if err := d.writePacket(ctx, id, cmdData, payload); err != nil {
		return err
	}

	if _, err := d.awaitMatch(ctx, d.config.SendAckTimeout, func(r reply) bool {
		return r.id == id && r.typ == cmdOutput
	}); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("send ack: %w", ctx.Err())
		}
		Debugf("send ack not observed: %v", err)
	}
	return nil
}

// ReceiveIRContext captures one IR signal with cancellation support.
// See ReceiveIR for the timeout semantics.
func (d *Device) ReceiveIRContext(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if !d.open {
		return nil, ErrNotOpen
	}
	if timeout == 0 {
		timeout = d.config.ReceiveTimeout
	}

	if err := d.setMode(ctx, ModeReceive); err != nil {
		return nil, err
	}

	// Cancel any capture left over from an earlier attempt. The reply
	// is awaited so the firmware settles, but failure does not matter.
	if _, err := d.commandContext(ctx, cmdCancel, nil, d.config.ReplyTimeout); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		Debugln("cancel before receive:", err)
	}

	// Arm the capture. The output command gets no direct reply; the
	// next data packet from the dongle carries the captured signal and
	// arrives under the dongle's own command id.
	id := d.nextCommandID()
	d.drainInbox()
	if err := d.writePacket(ctx, id, cmdOutput, nil); err != nil {
		return nil, err
	}

	r, err := d.awaitMatch(ctx, timeout, func(r reply) bool {
		return r.typ == cmdData
	})
	if err != nil {
		if errors.Is(err, ErrReplyTimeout) {
			return nil, d.trace.WrapError(ErrNoSignal)
		}
		return nil, err
	}
	if len(r.data) == 0 {
		return nil, ErrNoSignal
	}
	return r.data, nil
}

// FirmwareVersionContext queries the firmware version string with
// cancellation support. The reply payload is ASCII, possibly padded
// with NULs by older firmware.
func (d *Device) FirmwareVersionContext(ctx context.Context) (string, error) {
	if !d.open {
		return "", ErrNotOpen
	}
	if d.firmware != "" {
		return d.firmware, nil
	}

	r, err := d.commandContext(ctx, cmdVersion, nil, d.config.ReplyTimeout)
	if err != nil {
		return "", fmt.Errorf("query firmware version: %w", err)
	}

	version := strings.TrimSpace(strings.TrimRight(string(r.data), "\x00"))
	if version == "" {
		return "", ErrNoVersion
	}
	d.firmware = version
	return version, nil
}

// commandContext performs one awaited command exchange: drain, write,
// wait for the reply that echoes this command's id and type. Mode and
// cancel replies carry the dongle's new state in their first payload
// byte, which is folded into the session state here.
func (d *Device) commandContext(ctx context.Context, cmdType byte, payload []byte, timeout time.Duration) (reply, error) {
	id := d.nextCommandID()
	d.drainInbox()
	if err := d.writePacket(ctx, id, cmdType, payload); err != nil {
		return reply{}, err
	}

	r, err := d.awaitMatch(ctx, timeout, func(r reply) bool {
		return r.id == id && r.typ == cmdType
	})
	if err != nil {
		if errors.Is(err, ErrReplyTimeout) {
			return reply{}, d.trace.WrapError(fmt.Errorf("command %c: %w", cmdType, err))
		}
		return reply{}, err
	}

	if stateBearing(cmdType) && len(r.data) > 0 {
		d.deviceState = r.data[0]
	}
	return r, nil
}

// stateBearing reports whether a command's reply carries the dongle
// state in its first payload byte.
func stateBearing(cmdType byte) bool {
	switch cmdType {
	case cmdIdleMode, cmdSendMode, cmdRecvMode, cmdCancel:
		return true
	default:
		return false
	}
}

// writePacket frames a packet, fragments it into reports and writes
// them in order. Each report write retries on transient failures.
func (d *Device) writePacket(ctx context.Context, id, cmdType byte, payload []byte) error {
	packet := frame.BuildPacket(id, cmdType, payload)
	reports, err := frame.Fragment(frame.ReportTagOut, d.nextPacketIndex(), packet)
	if err != nil {
		return fmt.Errorf("fragment %c packet: %w", cmdType, err)
	}

	note := fmt.Sprintf("cmd %c id=%d", cmdType, id)
	for _, report := range reports {
		if err := d.writeReport(ctx, report, note); err != nil {
			return fmt.Errorf("write %c packet: %w", cmdType, err)
		}
	}
	return nil
}

func (d *Device) writeReport(ctx context.Context, report []byte, note string) error {
	err := RetryWithConfig(ctx, reportWriteRetryConfig(), func() error {
		n, werr := d.transport.Write(report, d.config.WriteTimeout)
		if werr != nil {
			return werr
		}
		if n != len(report) {
			return NewTransportWriteError("writeReport", portLabel(d.transport))
		}
		return nil
	})
	if err != nil {
		return d.trace.WrapError(err)
	}
	d.trace.RecordTX(report, note)
	return nil
}

// singleReport builds the lone report for a short command. Commands
// with empty payloads always fit one report.
func singleReport(id, cmdType byte, payload []byte, packetIdx byte) ([]byte, error) {
	reports, err := frame.Fragment(frame.ReportTagOut, packetIdx, frame.BuildPacket(id, cmdType, payload))
	if err != nil {
		return nil, err
	}
	return reports[0], nil
}

// nextCommandID cycles through 1..127, never zero.
func (d *Device) nextCommandID() byte {
	d.cmdID = d.cmdID%maxCommandID + 1
	return d.cmdID
}

// nextPacketIndex cycles through 1..15, never zero.
func (d *Device) nextPacketIndex() byte {
	d.packetIdx = d.packetIdx%maxPacketIndex + 1
	return d.packetIdx
}
