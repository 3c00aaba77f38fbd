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

import "time"

// Report write retry constants control fragment delivery to the OUT
// endpoint. The firmware occasionally stalls the endpoint mid-burst and
// recovers within tens of milliseconds.
const (
	// ReportWriteRetries is the number of attempts per 61-byte report.
	ReportWriteRetries = 5
	// ReportWriteBackoff is the flat delay between report write attempts.
	ReportWriteBackoff = 100 * time.Millisecond
)

// Session open constants control the initialization handshake.
const (
	// DefaultOpenAttempts is the number of send-mode handshake attempts
	// before Open gives up on the device.
	DefaultOpenAttempts = 3
	// OpenRetryBackoff is the delay between failed handshake attempts.
	OpenRetryBackoff = 300 * time.Millisecond
	// OpenSettleDelay gives the firmware time to notice the host after the
	// reader starts. Shorter delays produce sporadic first-command drops.
	OpenSettleDelay = 200 * time.Millisecond
	// OpenDrainReads is how many short reads Open issues to flush stale
	// reports left over from a previous session.
	OpenDrainReads = 10
	// OpenDrainTimeout is the per-read timeout while draining.
	OpenDrainTimeout = 50 * time.Millisecond
)

// Default session timeouts. All of these can be overridden per Device via
// DeviceConfig.
const (
	// DefaultReadTimeout is the reader goroutine's per-read timeout. It
	// bounds how quickly the reader notices a close request.
	DefaultReadTimeout = 100 * time.Millisecond
	// DefaultWriteTimeout bounds a single report write.
	DefaultWriteTimeout = 2 * time.Second
	// DefaultReplyTimeout bounds the wait for a command reply.
	DefaultReplyTimeout = 1 * time.Second
	// DefaultSendAckTimeout bounds the wait for the output-complete ack
	// after IR data is sent. The firmware acks lazily, so expiry of this
	// window is not an error.
	DefaultSendAckTimeout = 2 * time.Second
	// DefaultReceiveTimeout is how long ReceiveIR waits for a signal when
	// the caller does not care to choose.
	DefaultReceiveTimeout = 15 * time.Second
	// readerErrorBackoff spaces out retries when the IN endpoint reports a
	// non-timeout error.
	readerErrorBackoff = 100 * time.Millisecond
)

// DefaultInboxSize is the buffered capacity of the session's reply inbox.
// When the foreground falls behind, the oldest reply is dropped first; the
// protocol never needs deep history.
const DefaultInboxSize = 32
