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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/TViewProject/go-tiqiaa"
	"github.com/TViewProject/go-tiqiaa/storage"
)

// sendTimeout bounds one remote action; a hold runs for one second plus
// the transmission itself.
const sendTimeout = 10 * time.Second

var remoteCmd = &cobra.Command{
	Use:   "remote",
	Short: "Interactive remote control built from the saved codes",
	Long: `Remote opens a terminal UI listing every saved code. Pick one and
press enter to send it, t to tap it or h to hold it for a second.`,
	Args: noArgs,
	RunE: runRemote,
}

func init() {
	rootCmd.AddCommand(remoteCmd)
}

// codeItem is one saved code in the list.
type codeItem struct {
	name string
	desc string
}

// Implement list.Item interface
func (i codeItem) Title() string       { return i.name }
func (i codeItem) Description() string { return i.desc }
func (i codeItem) FilterValue() string { return i.name }

// sendDoneMsg reports the outcome of an async remote action.
type sendDoneMsg struct {
	err    error
	name   string
	action string
}

// remoteModel is the Bubble Tea model for the remote TUI.
type remoteModel struct {
	ctx       context.Context
	remote    *tiqiaa.Remote
	list      list.Model
	status    string
	statusErr bool
	sending   bool
	quitting  bool
	width     int
	height    int
}

func initialRemoteModel(ctx context.Context, remote *tiqiaa.Remote, items []list.Item) remoteModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	codeList := list.New(items, delegate, 40, 14)
	codeList.Title = "Saved codes"
	codeList.SetShowStatusBar(false)
	codeList.SetShowHelp(false)
	codeList.SetFilteringEnabled(true)

	return remoteModel{
		ctx:    ctx,
		remote: remote,
		list:   codeList,
		width:  80,
		height: 24,
	}
}

func (m remoteModel) Init() tea.Cmd {
	return nil
}

func (m remoteModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case sendDoneMsg:
		m.sending = false
		if msg.err != nil {
			m.statusErr = true
			m.status = fmt.Sprintf("Failed to %s %q: %v", msg.action, msg.name, msg.err)
		} else {
			m.statusErr = false
			m.status = fmt.Sprintf("%s %q", pastVerb(msg.action), msg.name)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m remoteModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	// While the filter input is open every other key belongs to it.
	if m.list.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "enter":
		return m.startAction("send")
	case "t":
		return m.startAction("tap")
	case "h":
		return m.startAction("hold")
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m remoteModel) startAction(action string) (tea.Model, tea.Cmd) {
	if m.sending {
		return m, nil
	}
	item, ok := m.list.SelectedItem().(codeItem)
	if !ok {
		return m, nil
	}

	m.sending = true
	m.statusErr = false
	m.status = fmt.Sprintf("%s %q...", activeVerb(action), item.name)
	return m, m.runAction(item.name, action)
}

// runAction performs one remote action off the UI goroutine.
func (m remoteModel) runAction(name, action string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, sendTimeout)
		defer cancel()

		var err error
		switch action {
		case "tap":
			err = m.remote.Tap(ctx, name)
		case "hold":
			err = m.remote.Hold(ctx, name, time.Second, 0)
		default:
			err = m.remote.Send(ctx, name)
		}
		return sendDoneMsg{name: name, action: action, err: err}
	}
}

func activeVerb(action string) string {
	switch action {
	case "tap":
		return "Tapping"
	case "hold":
		return "Holding"
	default:
		return "Sending"
	}
}

func pastVerb(action string) string {
	switch action {
	case "tap":
		return "Tapped"
	case "hold":
		return "Held"
	default:
		return "Sent"
	}
}

func (m remoteModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statusStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	var s strings.Builder
	s.WriteString(titleStyle.Render("TIQIAA REMOTE"))
	s.WriteString(" ")
	s.WriteString(headerStyle.Render("| enter=send t=tap h=hold /=filter q=quit"))
	s.WriteString("\n\n")
	s.WriteString(m.list.View())
	s.WriteString("\n")

	if m.status != "" {
		style := statusStyle
		if m.statusErr {
			style = errorStyle
		}
		s.WriteString(style.Render(m.status))
		s.WriteString("\n")
	}

	return s.String()
}

func (m *remoteModel) updateListSize() {
	listHeight := m.height - 6
	if listHeight < 5 {
		listHeight = 5
	}
	listWidth := m.width - 4
	if listWidth < 20 {
		listWidth = 20
	}
	m.list.SetSize(listWidth, listHeight)
}

func runRemote(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	names, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list codes: %w", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("no saved codes to send (use 'tiqiaa learn <name>' first)")
	}

	items := make([]list.Item, 0, len(names))
	for _, name := range names {
		code, err := store.Load(name)
		if err != nil {
			items = append(items, codeItem{name: name, desc: fmt.Sprintf("unreadable: %v", err)})
			continue
		}
		items = append(items, codeItem{name: name, desc: describeCode(code)})
	}

	ctx := cmd.Context()
	device, err := openDevice(ctx)
	if err != nil {
		return err
	}
	defer closeDevice(device)

	m := initialRemoteModel(ctx, tiqiaa.NewRemote(device, store), items)

	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run remote UI: %w", err)
	}
	return nil
}

func describeCode(code storage.Code) string {
	desc := fmt.Sprintf("%.1f kHz, %d bytes", float64(code.Frequency)/1000, len(code.Signal))
	if code.Decoded != nil {
		desc += fmt.Sprintf(", NEC 0x%04X", code.Decoded.Code)
	}
	if code.LearnedFrom != "" {
		desc += ", " + code.LearnedFrom
	}
	return desc
}
