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

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TViewProject/go-tiqiaa/storage"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved IR codes",
	Args:  noArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a saved IR code",
	Args:  exactArgs(1),
	RunE:  runDelete,
}

var exportCmd = &cobra.Command{
	Use:   "export <file> [name...]",
	Short: "Export saved codes to a JSON bundle",
	Long: `Export writes saved codes to a JSON bundle that 'tiqiaa import' and
the older TView tools can read. With no names given every saved code
is exported. Use - as the file to write to stdout.`,
	Args: minArgs(1),
	RunE: runExport,
}

var importOverwrite bool

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import codes from a JSON bundle",
	Long: `Import reads a JSON bundle written by 'tiqiaa export' or the older
TView tools and stores its codes. Codes that already exist are skipped
unless --overwrite is set. Use - as the file to read from stdin.`,
	Args: exactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false,
		"Replace codes that already exist")
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	names, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list codes: %w", err)
	}
	if len(names) == 0 {
		_, _ = fmt.Println("No codes saved yet.")
		_, _ = fmt.Println("Use 'tiqiaa learn <name>' to capture one.")
		return nil
	}

	_, _ = fmt.Printf("Saved codes (%d):\n", len(names))
	for _, name := range names {
		code, err := store.Load(name)
		if err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "  %-20s  unreadable: %v\n", name, err)
			continue
		}
		nec := ""
		if code.Decoded != nil {
			nec = fmt.Sprintf("NEC 0x%04X", code.Decoded.Code)
		}
		line := fmt.Sprintf("  %-20s  %5.1f kHz  %4d bytes  %-10s",
			name, float64(code.Frequency)/1000, len(code.Signal), nec)
		if !code.SavedAt.IsZero() {
			line += "  " + code.SavedAt.Format("2006-01-02")
		}
		if code.LearnedFrom != "" {
			line += "  (" + code.LearnedFrom + ")"
		}
		_, _ = fmt.Println(strings.TrimRight(line, " "))
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Delete(name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no saved code %q (try 'tiqiaa list')", name)
		}
		return fmt.Errorf("failed to delete code: %w", err)
	}

	_, _ = fmt.Printf("Deleted %q\n", name)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	dest := args[0]
	var out io.Writer = cmd.OutOrStdout()
	var f *os.File
	if dest != "-" {
		f, err = os.Create(dest) // #nosec G304 -- destination comes from the command line
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", dest, err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	count, err := store.Export(out, args[1:]...)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w (try 'tiqiaa list')", err)
		}
		return fmt.Errorf("failed to export codes: %w", err)
	}

	if f != nil {
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", dest, err)
		}
		_, _ = fmt.Printf("Exported %d code(s) to %s\n", count, dest)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	src := args[0]
	var in io.Reader = cmd.InOrStdin()
	if src != "-" {
		f, err := os.Open(src) // #nosec G304 -- source comes from the command line
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", src, err)
		}
		defer func() { _ = f.Close() }()
		in = f
	}

	results, err := store.Import(in, importOverwrite)
	if err != nil {
		return fmt.Errorf("failed to import codes: %w", err)
	}

	imported, skipped, failed := 0, 0, 0
	for _, result := range results {
		switch {
		case result.Err != nil:
			failed++
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "  %-20s  failed: %v\n", result.Name, result.Err)
		case result.Skipped:
			skipped++
			_, _ = fmt.Printf("  %-20s  skipped (already exists)\n", result.Name)
		default:
			imported++
			_, _ = fmt.Printf("  %-20s  imported\n", result.Name)
		}
	}

	_, _ = fmt.Printf("Imported %d code(s), skipped %d\n", imported, skipped)
	if failed > 0 {
		return fmt.Errorf("%d of %d codes failed to import", failed, len(results))
	}
	return nil
}
