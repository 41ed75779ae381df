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

// Package breakpoint holds the engine's breakpoint table.
//
// A Table is indexed twice: by number and by (file, line). Numbers start at
// 1, increase by one per creation and are never reused, so a cleared number
// can never resolve to a newer breakpoint. A Table is owned by a single
// goroutine and does no locking of its own.
package breakpoint

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotExecutable is returned when a breakpoint is placed on a line
	// that can never run.
	ErrNotExecutable = errors.New("line is not executable")

	// ErrNoSuchBreakpoint is returned by mutations naming a number that is
	// out of range or already cleared.
	ErrNoSuchBreakpoint = errors.New("no such breakpoint")

	// ErrUnknownBreakpoint is returned by lookups that find nothing.
	ErrUnknownBreakpoint = errors.New("unknown breakpoint")

	// ErrDuplicateBreakpoint is returned when a location already holds a
	// breakpoint.
	ErrDuplicateBreakpoint = errors.New("breakpoint already set")
)

// LineChecker validates that a source line can hold a breakpoint.
type LineChecker interface {
	CheckLine(filename string, line int) error
}

// Location is the (file, line) key of the location index.
type Location struct {
	Filename string
	Line     int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.Filename, l.Line)
}

// Breakpoint is one entry of the table.
type Breakpoint struct {
	Number    int
	Filename  string
	Line      int
	Enabled   bool
	Temporary bool
	Ignore    int
	Hits      int
	Funcname  string
	Condition string

	// firstLine is the first line a function breakpoint saw executing in
	// its function. Later lines of the same function do not trigger it.
	firstLine int
}

// Location returns the breakpoint's index key.
func (b *Breakpoint) Location() Location {
	return Location{Filename: b.Filename, Line: b.Line}
}

// Table is the breakpoint table.
type Table struct {
	checker    LineChecker
	byNumber   []*Breakpoint // index 0 unused; nil marks a cleared number
	byLocation map[Location]*Breakpoint
	byFile     map[string]int
}

// NewTable returns an empty table. Locations are validated with checker.
func NewTable(checker LineChecker) *Table {
	return &Table{
		checker:    checker,
		byNumber:   []*Breakpoint{nil},
		byLocation: make(map[Location]*Breakpoint),
		byFile:     make(map[string]int),
	}
}

// Create validates the location and adds an enabled breakpoint with the next
// number. filename must already be canonical.
func (t *Table) Create(filename string, line int, temporary bool, funcname string) (*Breakpoint, error) {
	if t.checker != nil {
		if err := t.checker.CheckLine(filename, line); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotExecutable, err)
		}
	}

	loc := Location{Filename: filename, Line: line}
	if existing, ok := t.byLocation[loc]; ok {
		return nil, fmt.Errorf("%w: breakpoint %d is at %s", ErrDuplicateBreakpoint, existing.Number, loc)
	}

	bp := &Breakpoint{
		Number:    len(t.byNumber),
		Filename:  filename,
		Line:      line,
		Enabled:   true,
		Temporary: temporary,
		Funcname:  funcname,
	}
	t.byNumber = append(t.byNumber, bp)
	t.byLocation[loc] = bp
	t.byFile[filename]++
	return bp, nil
}

// Enable marks a breakpoint active.
func (t *Table) Enable(number int) (*Breakpoint, error) {
	bp, err := t.get(number)
	if err != nil {
		return nil, err
	}
	bp.Enabled = true
	return bp, nil
}

// Disable marks a breakpoint inactive.
func (t *Table) Disable(number int) (*Breakpoint, error) {
	bp, err := t.get(number)
	if err != nil {
		return nil, err
	}
	bp.Enabled = false
	return bp, nil
}

// Ignore sets how many upcoming passes the breakpoint skips.
func (t *Table) Ignore(number, count int) (*Breakpoint, error) {
	if count < 0 {
		return nil, fmt.Errorf("ignore count must not be negative, got %d", count)
	}
	bp, err := t.get(number)
	if err != nil {
		return nil, err
	}
	bp.Ignore = count
	return bp, nil
}

// SetCondition replaces the breakpoint's condition. An empty expression
// removes it.
func (t *Table) SetCondition(number int, expr string) (*Breakpoint, error) {
	bp, err := t.get(number)
	if err != nil {
		return nil, err
	}
	bp.Condition = expr
	return bp, nil
}

// Clear removes a breakpoint from both indexes.
func (t *Table) Clear(number int) (*Breakpoint, error) {
	bp, err := t.get(number)
	if err != nil {
		return nil, err
	}
	t.byNumber[number] = nil
	delete(t.byLocation, bp.Location())
	if t.byFile[bp.Filename]--; t.byFile[bp.Filename] <= 0 {
		delete(t.byFile, bp.Filename)
	}
	return bp, nil
}

// Lookup returns the breakpoint with the given number.
func (t *Table) Lookup(number int) (*Breakpoint, error) {
	if number < 1 || number >= len(t.byNumber) || t.byNumber[number] == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBreakpoint, number)
	}
	return t.byNumber[number], nil
}

// LookupAt returns the breakpoint at a location.
func (t *Table) LookupAt(filename string, line int) (*Breakpoint, error) {
	loc := Location{Filename: filename, Line: line}
	bp, ok := t.byLocation[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBreakpoint, loc)
	}
	return bp, nil
}

// InFile reports whether any breakpoint exists in filename.
func (t *Table) InFile(filename string) bool {
	return t.byFile[filename] > 0
}

// All returns the live breakpoints ordered by number.
func (t *Table) All() []*Breakpoint {
	all := make([]*Breakpoint, 0, len(t.byLocation))
	for _, bp := range t.byLocation {
		all = append(all, bp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Number < all[j].Number })
	return all
}

// Len returns the number of live breakpoints.
func (t *Table) Len() int {
	return len(t.byLocation)
}

func (t *Table) get(number int) (*Breakpoint, error) {
	if number < 1 || number >= len(t.byNumber) || t.byNumber[number] == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchBreakpoint, number)
	}
	return t.byNumber[number], nil
}
