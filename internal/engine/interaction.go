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
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/protocol"
	"github.com/tombee/bugjar/internal/trace"
)

// Span attribute keys.
var (
	attributeMain    = attribute.Key("bugjar.main")
	attributeArgs    = attribute.Key("bugjar.args")
	attributeReason  = attribute.Key("bugjar.pause.reason")
	attributeCommand = attribute.Key("bugjar.command")
	attributeOutcome = attribute.Key("bugjar.outcome")
)

// interact pauses on f and handles commands until one resumes execution.
// It returns nil to resume, or an *unwind for restart and termination.
// f is nil when there is no frame to show.
func (e *Engine) interact(f *trace.Frame, reason string) error {
	ctx, span := e.tracer.Start(e.ctx, "engine.pause", oteltrace.WithAttributes(attributeReason.String(reason)))
	defer span.End()

	pausesTotal.WithLabelValues(reason).Inc()
	started := time.Now()
	defer func() {
		pauseDuration.Observe(time.Since(started).Seconds())
	}()

	e.setup(f)
	defer e.forget()
	if f != nil {
		e.logger.Debug("paused", bugjarlog.Location(f.Filename, f.Line), slog.String("reason", reason))
	}
	e.sendStack()

	for {
		if e.conn == nil {
			if err := e.awaitReconnect(); err != nil {
				span.RecordError(err)
				return &unwind{to: Terminate, cause: err}
			}
		}

		var cmd protocol.Command
		select {
		case c, ok := <-e.conn.Queue():
			if !ok {
				c = protocol.Close{}
			}
			cmd = c
		case <-e.ctx.Done():
			return &unwind{to: Terminate}
		}

		switch t := e.dispatch(ctx, cmd); t {
		case Stay, AwaitReconnect:
		case Resume:
			return nil
		default:
			return &unwind{to: t}
		}
	}
}

// setup captures the stack ending at f and makes f the current frame.
func (e *Engine) setup(f *trace.Frame) {
	if f == nil {
		e.frames = nil
	} else {
		e.frames = f.Chain()
	}
	e.curIndex = len(e.frames) - 1
}

func (e *Engine) forget() {
	e.frames = nil
	e.curIndex = -1
}

// current returns the frame selected with up and down.
func (e *Engine) current() *trace.Frame {
	if e.curIndex < 0 || e.curIndex >= len(e.frames) {
		return nil
	}
	return e.frames[e.curIndex]
}

func (e *Engine) sendStack() {
	e.emit(e.stack())
}
