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

package breakpoint

import "github.com/tombee/bugjar/internal/protocol"

// Site is where execution currently is.
type Site struct {
	Filename string
	Line     int
	// Func is the name of the executing function.
	Func string
	// FuncLine is the line of the executing function's definition, or 0 at
	// module level.
	FuncLine int
}

// ConditionFunc evaluates a breakpoint condition in the current frame.
type ConditionFunc func(expr string) (bool, error)

// Effective decides whether execution at site should stop for a breakpoint.
// It returns the breakpoint that fired and whether it is temporary and must
// be cleared by the caller. Hit counts and ignore counts are updated as a
// side effect. A condition that fails to evaluate stops execution so the
// problem is visible.
func (t *Table) Effective(site Site, cond ConditionFunc) (bp *Breakpoint, temporary bool) {
	bp, ok := t.byLocation[Location{Filename: site.Filename, Line: site.Line}]
	if !ok && site.FuncLine > 0 {
		// Function breakpoints sit on the def line.
		bp, ok = t.byLocation[Location{Filename: site.Filename, Line: site.FuncLine}]
	}
	if !ok || !bp.Enabled || !bp.matches(site) {
		return nil, false
	}

	bp.Hits++
	if bp.Condition != "" && cond != nil {
		hold, err := cond(bp.Condition)
		if err != nil {
			return bp, false
		}
		if !hold {
			return nil, false
		}
	}
	if bp.Ignore > 0 {
		bp.Ignore--
		return nil, false
	}
	return bp, bp.Temporary
}

func (b *Breakpoint) matches(site Site) bool {
	if b.Funcname == "" {
		return b.Line == site.Line
	}
	if site.Func != b.Funcname {
		return false
	}
	if b.firstLine == 0 {
		b.firstLine = site.Line
	}
	return b.firstLine == site.Line
}

// Info converts the breakpoint to its wire description.
func (b *Breakpoint) Info() protocol.BreakpointInfo {
	return protocol.BreakpointInfo{
		Bpnum:     b.Number,
		Filename:  b.Filename,
		Line:      b.Line,
		Temporary: b.Temporary,
		Enabled:   b.Enabled,
		Funcname:  b.Funcname,
		Ignore:    b.Ignore,
		Condition: b.Condition,
	}
}
