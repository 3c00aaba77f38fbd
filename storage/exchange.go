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
	"io"
	"maps"
	"os"
	"slices"
)

// bundleVersion marks the export format for future migrations.
const bundleVersion = 1

// bundle is the export container. Older TView tools wrote a bare
// name-to-code map without the wrapper; Import accepts both.
type bundle struct {
	Codes   map[string]Code `json:"ir_codes"`
	Version int             `json:"version"`
}

// Export writes the named codes to w as one JSON bundle. With no names
// given every stored code is exported. Returns the number of codes
// written.
func (s *Store) Export(w io.Writer, names ...string) (int, error) {
	if len(names) == 0 {
		all, err := s.List()
		if err != nil {
			return 0, err
		}
		names = all
	}

	codes := make(map[string]Code, len(names))
	for _, name := range names {
		code, err := s.Load(name)
		if err != nil {
			return 0, err
		}
		codes[name] = code
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(bundle{Codes: codes, Version: bundleVersion}); err != nil {
		return 0, fmt.Errorf("write export bundle: %w", err)
	}
	return len(codes), nil
}

// ImportResult reports the outcome for one code in an import bundle.
type ImportResult struct {
	Name string
	// Skipped is set when the code already exists and overwrite was
	// not requested.
	Skipped bool
	// Err is set when the entry could not be stored.
	Err error
}

// Import reads a bundle from r and stores its codes. Existing codes
// are kept unless overwrite is set. The per-code outcomes come back in
// name order; the error return covers only unreadable bundles.
func (s *Store) Import(r io.Reader, overwrite bool) ([]ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import bundle: %w", err)
	}

	var b bundle
	if jsonErr := json.Unmarshal(data, &b); jsonErr != nil || b.Codes == nil {
		// Fall back to the old bare-map format.
		var bare map[string]Code
		if bareErr := json.Unmarshal(data, &bare); bareErr != nil {
			return nil, fmt.Errorf("parse import bundle: %w", bareErr)
		}
		b.Codes = bare
	}

	results := make([]ImportResult, 0, len(b.Codes))
	for _, name := range slices.Sorted(maps.Keys(b.Codes)) {
		result := ImportResult{Name: name}
		if err := validateName(name); err != nil {
			result.Err = err
		} else if !overwrite && s.exists(name) {
			result.Skipped = true
		} else {
			code := b.Codes[name]
			code.Name = name
			result.Err = s.Save(code)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Store) exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}
