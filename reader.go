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
	"time"

	"github.com/TViewProject/go-tiqiaa/internal/frame"
)

// reply is one fully reassembled packet from the dongle.
type reply struct {
	data []byte // payload after the id and type bytes
	id   byte   // command id echoed by the firmware
	typ  byte   // command type, an ASCII opcode
}

// readLoop runs as a background goroutine for the lifetime of an open
// session. It polls the transport, feeds raw reports through the
// reassembler and delivers complete packets to the inbox. Foreground
// operations never touch the transport's read side.
//
// The loop exits when readerStop closes or the transport fails
// permanently. On abnormal exit readerErr is set before readerDone
// closes, so waiters observe the cause.
func (d *Device) readLoop() {
	defer close(d.readerDone)

	buf := make([]byte, transportReadSize)
	asm := frame.NewReassembler(frame.ReportTagIn)

	for {
		select {
		case <-d.readerStop:
			return
		default:
		}

		n, err := d.transport.Read(buf, d.config.ReadTimeout)
		if err != nil {
			if errors.Is(err, ErrTransportTimeout) {
				// Nothing arrived within the poll window.
				continue
			}
			if IsFatal(err) {
				Debugf("reader: transport gone: %v", err)
				d.readerErr = err
				return
			}
			Debugf("reader: read error: %v", err)
			select {
			case <-d.readerStop:
				return
			case <-time.After(readerErrorBackoff):
			}
			continue
		}
		if n == 0 {
			continue
		}

		packet, ok := asm.Feed(buf[:n])
		if !ok {
			continue
		}
		if len(packet) < 2 {
			// A packet without id and type bytes carries nothing usable.
			continue
		}
		d.deliver(reply{id: packet[0], typ: packet[1], data: packet[2:]})
	}
}

// deliver places a reply in the inbox. When the inbox is full the
// oldest reply is dropped so the newest is always admitted; the
// firmware's latest word wins.
func (d *Device) deliver(r reply) {
	for {
		select {
		case d.inbox <- r:
			return
		default:
		}
		select {
		case stale := <-d.inbox:
			Debugf("inbox full, dropping reply id=%d type=%c", stale.id, stale.typ)
		default:
		}
	}
}

// drainInbox discards every pending reply. Commands drain before
// writing so a stale reply from an earlier exchange cannot satisfy the
// new wait.
func (d *Device) drainInbox() {
	for {
		select {
		case <-d.inbox:
		default:
			return
		}
	}
}

// awaitMatch waits for a reply accepted by match, discarding replies
// that are not. A timeout of zero or less polls the inbox without
// waiting. Returns ErrReplyTimeout when the wait expires, the reader's
// terminal error if the reader died, or ctx.Err on cancellation.
//
// Every reply inspected here is recorded in the wire trace, matched or
// not. The trace is foreground-owned, so recording happens at
// consumption rather than in the reader.
func (d *Device) awaitMatch(ctx context.Context, timeout time.Duration, match func(reply) bool) (reply, error) {
	if timeout <= 0 {
		for {
			select {
			case r := <-d.inbox:
				d.traceReply(r)
				if match(r) {
					return r, nil
				}
			default:
				return reply{}, ErrReplyTimeout
			}
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case r := <-d.inbox:
			d.traceReply(r)
			if match(r) {
				return r, nil
			}
		case <-d.readerDone:
			if err := d.readerErr; err != nil {
				return reply{}, err
			}
			return reply{}, ErrNotOpen
		case <-ctx.Done():
			return reply{}, fmt.Errorf("awaiting reply: %w", ctx.Err())
		case <-timer.C:
			return reply{}, ErrReplyTimeout
		}
	}
}

func (d *Device) traceReply(r reply) {
	d.trace.RecordRX(r.data, fmt.Sprintf("reply %c id=%d", r.typ, r.id))
}
