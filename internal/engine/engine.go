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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/tombee/bugjar/internal/breakpoint"
	"github.com/tombee/bugjar/internal/conn"
	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/protocol"
	"github.com/tombee/bugjar/internal/source"
	"github.com/tombee/bugjar/internal/trace"
	bugjarerrors "github.com/tombee/bugjar/pkg/errors"
)

const tracerName = "github.com/tombee/bugjar/internal/engine"

// Options configures an Engine.
type Options struct {
	// Listener accepts controllers. Required. Serve closes it on return.
	Listener net.Listener

	// Target is the program under debug. Required.
	Target trace.Target

	// Args are the program's initial arguments.
	Args []string

	// Source resolves files and executable lines. Default: a new cache.
	Source *source.Cache

	// Breakpoints is the session's table. Default: a new table checked
	// against Source.
	Breakpoints *breakpoint.Table

	// Watcher, if set, is told about every file a breakpoint is placed in.
	Watcher *source.Watcher

	// Skip lists doublestar patterns of files execution never stops in.
	Skip []string

	// QueueSize and ReadChunk tune each controller connection.
	QueueSize int
	ReadChunk int

	Logger *slog.Logger
}

// runState tracks whether the program's own code has started running.
type runState int

const (
	notStarted runState = iota
	starting
	started
)

type handler func(protocol.Command) (Transition, error)

// Engine is a debugging session. It is not safe for concurrent use; all
// methods other than Addr and SessionID must be called from the goroutine
// running Serve.
type Engine struct {
	id        string
	logger    *slog.Logger
	listener  net.Listener
	target    trace.Target
	evaluator trace.Evaluator
	args      []string
	source    *source.Cache
	table     *breakpoint.Table
	watcher   *source.Watcher
	skip      []string
	connOpts  conn.Options
	handlers  map[protocol.Kind]handler
	tracer    oteltrace.Tracer

	// ctx is the context of the current launch.
	ctx  context.Context
	conn *conn.Connection[protocol.Command]

	state       runState
	botFrame    *trace.Frame
	stopFrame   *trace.Frame
	returnFrame *trace.Frame
	stopLine    int
	quitting    bool

	// frames is the stack captured at the current pause, outermost first.
	frames   []*trace.Frame
	curIndex int
}

// New creates an engine. It does not accept connections until Serve runs.
func New(opts Options) (*Engine, error) {
	if opts.Listener == nil {
		return nil, &bugjarerrors.ValidationError{Field: "listener", Message: "a listener is required"}
	}
	if opts.Target == nil {
		return nil, &bugjarerrors.ValidationError{Field: "target", Message: "a target program is required"}
	}
	for _, p := range opts.Skip {
		if !doublestar.ValidatePattern(p) {
			return nil, &bugjarerrors.ValidationError{
				Field:      "skip",
				Message:    fmt.Sprintf("invalid pattern %q", p),
				Suggestion: "use doublestar glob syntax, e.g. /usr/lib/**",
			}
		}
	}
	if opts.Source == nil {
		opts.Source = source.NewCache()
	}
	if opts.Breakpoints == nil {
		opts.Breakpoints = breakpoint.NewTable(opts.Source)
	}

	id := uuid.NewString()
	logger := bugjarlog.WithSession(bugjarlog.WithComponent(opts.Logger, "engine"), id)

	e := &Engine{
		id:       id,
		logger:   logger,
		listener: opts.Listener,
		target:   opts.Target,
		args:     opts.Args,
		source:   opts.Source,
		table:    opts.Breakpoints,
		watcher:  opts.Watcher,
		skip:     opts.Skip,
		connOpts: conn.Options{
			Role:      "engine",
			ChunkSize: opts.ReadChunk,
			QueueSize: opts.QueueSize,
			Logger:    logger,
		},
		tracer:   otel.Tracer(tracerName),
		ctx:      context.Background(),
		curIndex: -1,
	}
	if ev, ok := opts.Target.(trace.Evaluator); ok {
		e.evaluator = ev
	}
	e.handlers = e.dispatchTable()
	breakpointsActive.Set(float64(e.table.Len()))
	return e, nil
}

// SessionID identifies the session in logs.
func (e *Engine) SessionID() string {
	return e.id
}

// Addr returns the address controllers connect to.
func (e *Engine) Addr() net.Addr {
	return e.listener.Addr()
}

// Serve runs the program until the controller quits, the listener fails or
// ctx is cancelled. The program is relaunched when it finishes, when it dies
// with an uncaught fault (after a postmortem pause) and on restart requests.
// A quit or a cancelled ctx returns nil; a listener failure is returned.
func (e *Engine) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	context.AfterFunc(ctx, func() {
		e.listener.Close()
	})
	defer e.unbind()

	e.logger.Info("session started",
		slog.String(bugjarlog.FileKey, e.target.Main()),
		slog.String("addr", e.listener.Addr().String()))

	cause := "start"
	for {
		launches.WithLabelValues(cause).Inc()
		err := e.run(ctx)
		if ctx.Err() != nil {
			e.logger.Info("session cancelled")
			return nil
		}

		if err != nil && !isUnwind(err) {
			err = e.postmortem(err)
			cause = "postmortem"
		} else {
			cause = "finished"
		}

		var uw *unwind
		switch {
		case errors.As(err, &uw) && uw.to == Terminate:
			if ctx.Err() != nil {
				return nil
			}
			if uw.cause != nil {
				e.logger.Error("session terminated", bugjarlog.Error(uw.cause))
			} else {
				e.logger.Info("session ended")
			}
			return uw.cause
		case errors.As(err, &uw) && uw.to == Restart:
			cause = "requested"
		case e.quitting:
			e.logger.Info("session ended")
			return nil
		}

		e.logger.Info("relaunching program", slog.String("cause", cause), slog.Any("args", e.args))
		e.emit(protocol.RestartNotice{})
	}
}

// run launches the program once.
func (e *Engine) run(ctx context.Context) error {
	e.reset()

	ctx, span := e.tracer.Start(ctx, "engine.run", oteltrace.WithAttributes(
		attributeMain.String(e.target.Main()),
		attributeArgs.StringSlice(e.args),
	))
	defer span.End()

	e.ctx = ctx
	start := time.Now()
	err := e.target.Run(ctx, e, e.args)
	outcome := "exited"
	switch {
	case isUnwind(err):
		outcome = "unwound"
	case err != nil:
		outcome = "failed"
		span.RecordError(err)
	}
	runDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attributeOutcome.String(outcome)))
	return err
}

// postmortem reports a program that died and pauses on the faulting frame.
func (e *Engine) postmortem(err error) error {
	var frame *trace.Frame
	var fault *trace.Fault
	if errors.As(err, &fault) {
		frame = fault.Frame
		e.emit(protocol.Exception{Name: fault.Name, Value: fault.Value})
	} else {
		e.emit(protocol.Error{Message: err.Error()})
	}
	e.logger.Warn("program died", bugjarlog.Error(err))
	e.emit(protocol.Postmortem{})
	return e.interact(frame, "postmortem")
}

func (e *Engine) reset() {
	e.state = notStarted
	e.botFrame = nil
	e.stopFrame = nil
	e.returnFrame = nil
	e.stopLine = 0
	e.frames = nil
	e.curIndex = -1
}

// emit sends an event to the bound controller. Without one the event is
// dropped; a controller that connects later receives a bootstrap instead.
func (e *Engine) emit(ev protocol.Event) {
	if e.conn == nil {
		bugjarlog.Trace(e.logger, "no controller, event dropped", slog.String(bugjarlog.EventKey, ev.EventName()))
		return
	}
	e.conn.SendEvent(ev)
}

// awaitReconnect blocks until a controller connects, binds it and brings it
// up to date with a bootstrap and the current stack.
func (e *Engine) awaitReconnect() error {
	e.logger.Info("waiting for controller", slog.String("addr", e.listener.Addr().String()))

	c, err := e.listener.Accept()
	if err != nil {
		return fmt.Errorf("accepting controller: %w", err)
	}
	e.bind(c)

	e.sendBootstrap()
	e.sendStack()
	return nil
}

func (e *Engine) bind(c net.Conn) {
	e.unbind()
	e.conn = conn.New(c, protocol.ParseCommand, protocol.Command(protocol.Close{}), e.connOpts)
	controllersBound.Inc()
	e.logger.Info("controller connected", slog.String(bugjarlog.RemoteAddrKey, e.conn.RemoteAddr()))
}

// unbind closes the current controller connection and joins its receive
// goroutine.
func (e *Engine) unbind() {
	if e.conn == nil {
		return
	}
	addr := e.conn.RemoteAddr()
	if err := e.conn.Close(); err != nil {
		e.logger.Debug("closing controller connection", bugjarlog.Error(err))
	}
	e.conn = nil
	e.logger.Info("controller disconnected", slog.String(bugjarlog.RemoteAddrKey, addr))
}

func (e *Engine) sendBootstrap() {
	all := e.table.All()
	infos := make([]protocol.BreakpointInfo, 0, len(all))
	for _, bp := range all {
		infos = append(infos, bp.Info())
	}
	e.emit(protocol.Bootstrap{Breakpoints: infos})
}

func isUnwind(err error) bool {
	var uw *unwind
	return errors.As(err, &uw)
}
