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
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/protocol"
	"github.com/tombee/bugjar/internal/source"
)

func (e *Engine) dispatchTable() map[protocol.Kind]handler {
	return map[protocol.Kind]handler{
		protocol.KindUnknown:   e.doUnknown,
		protocol.KindBreak:     e.doBreak,
		protocol.KindEnable:    e.doEnable,
		protocol.KindDisable:   e.doDisable,
		protocol.KindIgnore:    e.doIgnore,
		protocol.KindClear:     e.doClear,
		protocol.KindCondition: e.doCondition,
		protocol.KindStep:      e.doStep,
		protocol.KindNext:      e.doNext,
		protocol.KindReturn:    e.doReturn,
		protocol.KindUntil:     e.doUntil,
		protocol.KindContinue:  e.doContinue,
		protocol.KindUp:        e.doUp,
		protocol.KindDown:      e.doDown,
		protocol.KindRestart:   e.doRestart,
		protocol.KindQuit:      e.doQuit,
		protocol.KindClose:     e.doClose,
	}
}

// dispatch runs one command. Handler errors and panics are reported to the
// controller as error events and keep the engine paused.
func (e *Engine) dispatch(ctx context.Context, cmd protocol.Command) (t Transition) {
	name := cmd.Kind().String()
	_, span := e.tracer.Start(ctx, "engine.command", oteltrace.WithAttributes(attributeCommand.String(name)))
	rec := bugjarlog.CommandRecord{Command: name, Started: time.Now()}

	defer func() {
		if r := recover(); r != nil {
			rec.Err = fmt.Errorf("%s: internal error: %v", name, r)
			t = Stay
		}
		if rec.Err != nil {
			span.RecordError(rec.Err)
			span.SetStatus(codes.Error, rec.Err.Error())
			e.emit(protocol.Error{Message: rec.Err.Error()})
		}
		rec.Outcome = t.String()
		span.SetAttributes(attributeOutcome.String(rec.Outcome))
		span.End()
		commandsTotal.WithLabelValues(name, rec.Outcome).Inc()
		bugjarlog.LogCommand(e.logger, rec)
	}()

	h, ok := e.handlers[cmd.Kind()]
	if !ok {
		rec.Err = fmt.Errorf("no handler for command %s", name)
		return Stay
	}
	t, rec.Err = h(cmd)
	return t
}

func (e *Engine) doUnknown(cmd protocol.Command) (Transition, error) {
	name := "?"
	if u, ok := cmd.(protocol.Unknown); ok {
		name = u.Name
	}
	return Stay, fmt.Errorf("unknown command %q", name)
}

func (e *Engine) doBreak(cmd protocol.Command) (Transition, error) {
	c := cmd.(protocol.Break)
	if c.Filename == "" {
		return Stay, fmt.Errorf("break: a filename is required")
	}
	filename := source.Canonical(c.Filename)

	line := c.Line
	if c.Funcname != "" && line <= 0 {
		def, err := e.source.FindFunction(filename, c.Funcname)
		if err != nil {
			return Stay, err
		}
		line = def
	}

	bp, err := e.table.Create(filename, line, c.Temporary, c.Funcname)
	if err != nil {
		return Stay, err
	}
	if c.Condition != "" {
		if _, err := e.table.SetCondition(bp.Number, c.Condition); err != nil {
			return Stay, err
		}
	}
	if e.watcher != nil {
		if err := e.watcher.Track(filename); err != nil {
			e.logger.Warn("cannot watch source file", slog.String(bugjarlog.FileKey, filename), bugjarlog.Error(err))
		}
	}
	breakpointsActive.Set(float64(e.table.Len()))

	e.logger.Info("breakpoint created",
		slog.Int(bugjarlog.BreakpointKey, bp.Number),
		bugjarlog.Location(bp.Filename, bp.Line))
	e.emit(protocol.BreakpointCreate{
		Bpnum:     bp.Number,
		Filename:  bp.Filename,
		Line:      bp.Line,
		Temporary: bp.Temporary,
		Funcname:  bp.Funcname,
		Condition: bp.Condition,
	})
	return Stay, nil
}

func (e *Engine) doEnable(cmd protocol.Command) (Transition, error) {
	bp, err := e.table.Enable(cmd.(protocol.Enable).Bpnum)
	if err != nil {
		return Stay, err
	}
	e.emit(protocol.BreakpointEnable{Bpnum: bp.Number})
	return Stay, nil
}

func (e *Engine) doDisable(cmd protocol.Command) (Transition, error) {
	bp, err := e.table.Disable(cmd.(protocol.Disable).Bpnum)
	if err != nil {
		return Stay, err
	}
	e.emit(protocol.BreakpointDisable{Bpnum: bp.Number})
	return Stay, nil
}

// doIgnore reports a zero count as the breakpoint being enabled again.
func (e *Engine) doIgnore(cmd protocol.Command) (Transition, error) {
	c := cmd.(protocol.Ignore)
	bp, err := e.table.Ignore(c.Bpnum, c.Count)
	if err != nil {
		return Stay, err
	}
	if bp.Ignore > 0 {
		e.emit(protocol.BreakpointIgnore{Bpnum: bp.Number, Count: bp.Ignore})
	} else {
		e.emit(protocol.BreakpointEnable{Bpnum: bp.Number})
	}
	return Stay, nil
}

func (e *Engine) doClear(cmd protocol.Command) (Transition, error) {
	bp, err := e.table.Clear(cmd.(protocol.Clear).Bpnum)
	if err != nil {
		return Stay, err
	}
	breakpointsActive.Set(float64(e.table.Len()))
	e.logger.Info("breakpoint cleared", slog.Int(bugjarlog.BreakpointKey, bp.Number))
	e.emit(protocol.BreakpointClear{Bpnum: bp.Number})
	return Stay, nil
}

func (e *Engine) doCondition(cmd protocol.Command) (Transition, error) {
	c := cmd.(protocol.Condition)
	bp, err := e.table.SetCondition(c.Bpnum, c.Condition)
	if err != nil {
		return Stay, err
	}
	e.emit(protocol.BreakpointCondition{Bpnum: bp.Number, Condition: bp.Condition})
	return Stay, nil
}

func (e *Engine) doStep(protocol.Command) (Transition, error) {
	e.setStep()
	return Resume, nil
}

func (e *Engine) doNext(protocol.Command) (Transition, error) {
	if f := e.current(); f != nil {
		e.setNext(f)
	} else {
		e.setStep()
	}
	return Resume, nil
}

func (e *Engine) doReturn(protocol.Command) (Transition, error) {
	if f := e.current(); f != nil {
		e.setReturn(f)
	} else {
		e.setStep()
	}
	return Resume, nil
}

func (e *Engine) doUntil(protocol.Command) (Transition, error) {
	if f := e.current(); f != nil {
		e.setUntil(f)
	} else {
		e.setStep()
	}
	return Resume, nil
}

func (e *Engine) doContinue(protocol.Command) (Transition, error) {
	e.setContinue()
	return Resume, nil
}

func (e *Engine) doUp(protocol.Command) (Transition, error) {
	if e.curIndex <= 0 {
		e.emit(protocol.Info{Message: "Oldest frame"})
		return Stay, nil
	}
	e.curIndex--
	e.sendStack()
	return Stay, nil
}

func (e *Engine) doDown(protocol.Command) (Transition, error) {
	if e.curIndex >= len(e.frames)-1 {
		e.emit(protocol.Info{Message: "Newest frame"})
		return Stay, nil
	}
	e.curIndex++
	e.sendStack()
	return Stay, nil
}

// doRestart replaces the program arguments when new ones are given.
func (e *Engine) doRestart(cmd protocol.Command) (Transition, error) {
	if c := cmd.(protocol.Restart); c.Args != nil {
		e.args = c.Args
	}
	return Restart, nil
}

func (e *Engine) doQuit(protocol.Command) (Transition, error) {
	e.quitting = true
	e.emit(protocol.Info{Message: "Debugging session terminated"})
	return Resume, nil
}

func (e *Engine) doClose(protocol.Command) (Transition, error) {
	e.unbind()
	return AwaitReconnect, nil
}
