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

package engine

import (
	"fmt"
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/bugjar/internal/breakpoint"
	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/protocol"
	"github.com/tombee/bugjar/internal/trace"
)

var errQuit = &unwind{to: Terminate}

// Call implements trace.Tracer. The first call of a launch is the program's
// outermost frame and becomes the bottom frame.
func (e *Engine) Call(f *trace.Frame, args map[string]any) error {
	if e.quitting {
		return errQuit
	}
	if e.botFrame == nil {
		e.botFrame = f
		e.state = starting
		return nil
	}
	if e.state != started || !e.stopHere(f) {
		return nil
	}
	e.emit(protocol.Call{Args: reprScope(args)})
	return e.interact(f, "call")
}

// Line implements trace.Tracer. Events are suppressed until the first line
// of the main file runs.
func (e *Engine) Line(f *trace.Frame) error {
	if e.quitting {
		return errQuit
	}
	if e.state != started {
		if f.Filename != e.target.Main() || f.Line <= 0 {
			return nil
		}
		e.state = started
		e.logger.Debug("program started", bugjarlog.Location(f.Filename, f.Line))
	}
	if !e.stopHere(f) && !e.breakHere(f) {
		return nil
	}
	e.emit(protocol.Line{Filename: f.Filename, Line: f.Line})
	return e.interact(f, "line")
}

// Return implements trace.Tracer.
func (e *Engine) Return(f *trace.Frame, value any) error {
	if e.quitting {
		return errQuit
	}
	if e.state != started {
		return nil
	}
	if !e.stopHere(f) && f != e.returnFrame {
		return nil
	}
	e.emit(protocol.ReturnValue{Retval: repr(value)})
	return e.interact(f, "return")
}

// Exception implements trace.Tracer.
func (e *Engine) Exception(f *trace.Frame, fault *trace.Fault) error {
	if e.quitting {
		return errQuit
	}
	if e.state != started || !e.stopHere(f) {
		return nil
	}
	e.emit(protocol.Exception{Name: fault.Name, Value: fault.Value})
	return e.interact(f, "exception")
}

// stopHere reports whether the current stepping mode stops in f.
func (e *Engine) stopHere(f *trace.Frame) bool {
	if e.skipped(f.Filename) {
		return false
	}
	if f == e.stopFrame {
		if e.stopLine == -1 {
			return false
		}
		return f.Line >= e.stopLine
	}
	if e.stopFrame == nil {
		return true
	}
	// Stop in any frame that is no longer below the stop frame.
	for cur := f; cur != nil && cur != e.stopFrame; cur = cur.Back {
		if cur == e.botFrame {
			return true
		}
	}
	return false
}

// breakHere reports whether a breakpoint fires at f's current line.
// Temporary breakpoints are removed when they fire.
func (e *Engine) breakHere(f *trace.Frame) bool {
	if !e.breakAnywhere(f) {
		return false
	}

	var condErr error
	var cond breakpoint.ConditionFunc
	if e.evaluator != nil {
		cond = func(expr string) (bool, error) {
			hold, err := e.evaluator.Condition(f, expr)
			if err != nil {
				condErr = err
			}
			return hold, err
		}
	}

	bp, temporary := e.table.Effective(breakpoint.Site{
		Filename: f.Filename,
		Line:     f.Line,
		Func:     f.Function,
		FuncLine: f.DefLine,
	}, cond)
	if bp == nil {
		return false
	}

	e.logger.Debug("breakpoint hit",
		slog.Int(bugjarlog.BreakpointKey, bp.Number),
		slog.Int("hits", bp.Hits),
		bugjarlog.Location(f.Filename, f.Line))

	if condErr != nil {
		e.emit(protocol.Warning{
			Message: fmt.Sprintf("breakpoint %d: condition %q failed: %v", bp.Number, bp.Condition, condErr),
		})
	}
	if temporary {
		if _, err := e.table.Clear(bp.Number); err == nil {
			breakpointsActive.Set(float64(e.table.Len()))
			e.emit(protocol.BreakpointClear{Bpnum: bp.Number})
		}
	}
	return true
}

// breakAnywhere reports whether any breakpoint is set in f's file.
func (e *Engine) breakAnywhere(f *trace.Frame) bool {
	return e.table.InFile(f.Filename)
}

func (e *Engine) skipped(filename string) bool {
	for _, p := range e.skip {
		if ok, _ := doublestar.Match(p, filename); ok {
			return true
		}
	}
	return false
}

func (e *Engine) setStep() {
	e.stopFrame, e.returnFrame, e.stopLine = nil, nil, 0
}

func (e *Engine) setNext(f *trace.Frame) {
	e.stopFrame, e.returnFrame, e.stopLine = f, f, 0
}

func (e *Engine) setReturn(f *trace.Frame) {
	e.stopFrame, e.returnFrame, e.stopLine = f.Back, f, 0
}

func (e *Engine) setUntil(f *trace.Frame) {
	e.stopFrame, e.returnFrame, e.stopLine = f, f, f.Line+1
}

func (e *Engine) setContinue() {
	e.stopFrame, e.returnFrame, e.stopLine = e.botFrame, nil, -1
}
