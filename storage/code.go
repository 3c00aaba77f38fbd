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

package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// NECMeta is the decoded NEC interpretation of a saved signal, when the
// capture decoded cleanly enough to keep.
type NECMeta struct {
	Address byte   `json:"address"`
	Command byte   `json:"command"`
	Code    uint16 `json:"code"`
	// Validated reports whether the frame's inversion checks passed at
	// capture time. False means plausible NEC, not certain.
	Validated bool `json:"validated"`
}

// Code is one saved IR code. The on-disk form is the .ir JSON schema
// shared with other TView tools: signal bytes serialize as integer
// arrays, and field names stay lowercase.
type Code struct {
	Name      string
	Frequency int
	// Signal is the raw captured signal, sent as-is on replay.
	Signal []byte
	// Tap is an optional shorter variant for single presses. Empty
	// means Signal serves both tap and hold.
	Tap     []byte
	Decoded *NECMeta
	SavedAt time.Time
	// LearnedFrom describes the source remote, free-form.
	LearnedFrom string
	Notes       string
}

// intBytes marshals a byte slice as a JSON integer array instead of the
// base64 string encoding/json would otherwise produce.
type intBytes []byte

func (b intBytes) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

func (b *intBytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("signal array: %w", err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("signal array: value %d at index %d out of byte range", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// codeFile is the on-disk shape of a Code.
type codeFile struct {
	Name        string     `json:"name"`
	Frequency   int        `json:"frequency"`
	Data        intBytes   `json:"data"`
	Tap         intBytes   `json:"tap,omitempty"`
	Decoded     *NECMeta   `json:"decoded,omitempty"`
	SavedAt     *time.Time `json:"saved_at,omitempty"`
	LearnedFrom string     `json:"learned_from,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// MarshalJSON renders the shared .ir schema.
func (c Code) MarshalJSON() ([]byte, error) {
	file := codeFile{
		Name:        c.Name,
		Frequency:   c.Frequency,
		Data:        intBytes(c.Signal),
		Tap:         intBytes(c.Tap),
		Decoded:     c.Decoded,
		LearnedFrom: c.LearnedFrom,
		Notes:       c.Notes,
	}
	if !c.SavedAt.IsZero() {
		savedAt := c.SavedAt
		file.SavedAt = &savedAt
	}
	return json.Marshal(file)
}

// UnmarshalJSON reads the shared .ir schema. Files written by older
// tools omit frequency; those default to DefaultFrequency.
func (c *Code) UnmarshalJSON(data []byte) error {
	var file codeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	*c = Code{
		Name:        file.Name,
		Frequency:   file.Frequency,
		Signal:      []byte(file.Data),
		Tap:         []byte(file.Tap),
		Decoded:     file.Decoded,
		LearnedFrom: file.LearnedFrom,
		Notes:       file.Notes,
	}
	if file.SavedAt != nil {
		c.SavedAt = *file.SavedAt
	}
	if c.Frequency == 0 {
		c.Frequency = DefaultFrequency
	}
	return nil
}
