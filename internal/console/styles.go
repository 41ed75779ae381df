// Copyright 2025 Tom Barlow
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

package console

import (
	"github.com/charmbracelet/lipgloss"
)

// styles holds the lipgloss styles used for output. The plain set renders
// text unchanged.
type styles struct {
	ok      lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	info    lipgloss.Style
	muted   lipgloss.Style
	bold    lipgloss.Style
	header  lipgloss.Style
	current lipgloss.Style
}

func colorStyles() styles {
	return styles{
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		info:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		bold:    lipgloss.NewStyle().Bold(true),
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		current: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
	}
}

func plainStyles() styles {
	s := lipgloss.NewStyle()
	return styles{ok: s, warn: s, err: s, info: s, muted: s, bold: s, header: s, current: s}
}

const (
	symbolOK    = "✓"
	symbolWarn  = "⚠"
	symbolError = "✗"
	symbolInfo  = "•"
	symbolHere  = "->"
)
