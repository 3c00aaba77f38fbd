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

// Package storage persists learned IR codes as .ir JSON files, one file
// per code, in a schema shared with the other TView tools.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DefaultFrequency is assumed when a stored code does not carry one.
const DefaultFrequency = 38000

// codeExt is the filename extension for stored codes.
const codeExt = ".ir"

// Full-length NEC captures land in this size range; shorter ones are
// tap-only and need a separate hold variant.
const (
	fullSignalMin = 80
	fullSignalMax = 120
)

var (
	// ErrNotFound indicates no stored code has the requested name.
	ErrNotFound = errors.New("code not found")
	// ErrInvalidName indicates a code name unusable as a filename.
	ErrInvalidName = errors.New("invalid code name")
)

// Store is a directory of .ir files.
type Store struct {
	dir string
}

// NewStore opens a code store rooted at dir, creating the directory
// when missing.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create code directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the per-user code directory:
// $XDG_DATA_HOME/tiqiaa/codes, falling back to ~/.local/share.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "tiqiaa", "codes"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "tiqiaa", "codes"), nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// validateName rejects names that would escape the store directory or
// collide with the extension handling.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsAny(name, "/\\.") {
		return fmt.Errorf("%w: %q contains a path separator or dot", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+codeExt)
}

// Save writes one code atomically under its Name. A zero SavedAt is
// stamped with the current time; a zero Frequency becomes
// DefaultFrequency.
func (s *Store) Save(code Code) error {
	name := code.Name
	if err := validateName(name); err != nil {
		return err
	}

	if code.Frequency == 0 {
		code.Frequency = DefaultFrequency
	}
	if code.SavedAt.IsZero() {
		code.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(code, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal code %q: %w", name, err)
	}

	// Write to a temp file in the same directory and rename, so a
	// crash mid-write never leaves a half-written .ir file behind.
	tmp, err := os.CreateTemp(s.dir, codeExt+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write code %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write code %q: %w", name, err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store code %q: %w", name, err)
	}
	return nil
}

// Load reads one stored code.
func (s *Store) Load(name string) (Code, error) {
	if err := validateName(name); err != nil {
		return Code{}, err
	}

	// #nosec G304 -- path is store dir plus a validated name
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Code{}, fmt.Errorf("code %q: %w", name, ErrNotFound)
		}
		return Code{}, fmt.Errorf("read code %q: %w", name, err)
	}

	var code Code
	if err := json.Unmarshal(data, &code); err != nil {
		return Code{}, fmt.Errorf("parse code %q: %w", name, err)
	}
	if code.Name == "" {
		code.Name = name
	}
	return code, nil
}

// List returns the names of all stored codes, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := entry.Name()
		if !strings.HasSuffix(base, codeExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(base, codeExt))
	}
	slices.Sort(names)
	return names, nil
}

// Delete removes one stored code. Missing codes return ErrNotFound.
func (s *Store) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("code %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("delete code %q: %w", name, err)
	}
	return nil
}

// SmartCode is a code resolved into press variants.
type SmartCode struct {
	// Tap is the signal for a single short press.
	Tap []byte
	// Hold is the signal to repeat while a button is held.
	Hold []byte
	// Frequency is the carrier for both variants.
	Frequency int
}

// LoadSmart resolves a code into tap and hold variants. The tap signal
// is the stored Tap field when present, the full signal otherwise. The
// hold signal is the full signal when it looks like a complete frame,
// then the "<name>_full" companion code when one exists, then the tap
// signal as a last resort.
func (s *Store) LoadSmart(name string) (SmartCode, error) {
	code, err := s.Load(name)
	if err != nil {
		return SmartCode{}, err
	}

	smart := SmartCode{
		Tap:       code.Signal,
		Frequency: code.Frequency,
	}
	if len(code.Tap) > 0 {
		smart.Tap = code.Tap
	}

	switch {
	case len(code.Signal) >= fullSignalMin && len(code.Signal) <= fullSignalMax:
		smart.Hold = code.Signal
	default:
		if full, err := s.Load(name + "_full"); err == nil && len(full.Signal) > 0 {
			smart.Hold = full.Signal
		}
	}
	if smart.Hold == nil {
		smart.Hold = smart.Tap
	}
	return smart, nil
}
