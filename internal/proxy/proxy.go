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

// Package proxy is the controller side of a debugging session. A Proxy
// sends commands to an engine and keeps a local mirror of the engine's
// breakpoints and stack, fed only by the events the engine emits.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/tombee/bugjar/internal/breakpoint"
	"github.com/tombee/bugjar/internal/conn"
	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/protocol"
	"github.com/tombee/bugjar/internal/source"
)

// ErrNotBootstrapped is returned by mirror lookups before the engine has
// sent its first bootstrap.
var ErrNotBootstrapped = errors.New("session not bootstrapped")

// Dial retry intervals.
const (
	DialInitialInterval = 100 * time.Millisecond
	DialMaxInterval     = 2 * time.Second
)

// Options configures a Proxy.
type Options struct {
	// DialTimeout bounds how long Dial keeps retrying. Zero retries until
	// the context ends.
	DialTimeout time.Duration

	ChunkSize int
	QueueSize int

	Logger *slog.Logger
}

// Proxy is a controller connection plus its mirror. Command methods may be
// called from any goroutine; mirror reads are safe while events arrive.
type Proxy struct {
	id     string
	conn   *conn.Connection[protocol.Event]
	logger *slog.Logger
	events chan protocol.Event

	closing chan struct{}
	closed  sync.Once
	pumped  chan struct{}

	mu           sync.RWMutex
	bootstrapped bool
	byNumber     map[int]protocol.BreakpointInfo
	byLocation   map[breakpoint.Location]int
	stack        protocol.Stack
}

// Dial connects to an engine, retrying with exponential backoff until it
// answers, ctx ends or opts.DialTimeout passes.
func Dial(ctx context.Context, network, addr string, opts Options) (*Proxy, error) {
	logger := bugjarlog.WithComponent(opts.Logger, "proxy")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DialInitialInterval
	b.MaxInterval = DialMaxInterval
	b.MaxElapsedTime = opts.DialTimeout
	b.Reset()

	var nc net.Conn
	var d net.Dialer
	dial := func() error {
		c, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return err
		}
		nc = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Debug("engine not reachable, retrying",
			slog.String("addr", addr),
			slog.Duration("retry_in", next),
			bugjarlog.Error(err))
	}

	if err := backoff.RetryNotify(dial, backoff.WithContext(b, ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("connecting to %s: %w", addr, ctxErr)
		}
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return New(nc, opts), nil
}

// New wraps an established connection to an engine.
func New(c net.Conn, opts Options) *Proxy {
	id := uuid.NewString()
	logger := bugjarlog.WithComponent(opts.Logger, "proxy").With(slog.String("client_id", id))

	queue := opts.QueueSize
	if queue <= 0 {
		queue = conn.DefaultQueueSize
	}

	p := &Proxy{
		id:         id,
		logger:     logger,
		events:     make(chan protocol.Event, queue),
		closing:    make(chan struct{}),
		pumped:     make(chan struct{}),
		byNumber:   make(map[int]protocol.BreakpointInfo),
		byLocation: make(map[breakpoint.Location]int),
	}
	p.conn = conn.New(c, protocol.ParseEvent, protocol.Event(protocol.Closed{}), conn.Options{
		Role:      "proxy",
		ChunkSize: opts.ChunkSize,
		QueueSize: opts.QueueSize,
		Logger:    logger,
	})
	logger.Info("connected to engine", slog.String(bugjarlog.RemoteAddrKey, p.conn.RemoteAddr()))

	go p.pump()
	return p
}

// Events returns engine events in arrival order. Each event has already
// been applied to the mirror when it is received. The channel is closed
// when the connection ends; the last event is a protocol.Closed unless the
// proxy was closed locally.
func (p *Proxy) Events() <-chan protocol.Event {
	return p.events
}

// Close disconnects from the engine.
func (p *Proxy) Close() error {
	var err error
	p.closed.Do(func() {
		close(p.closing)
		err = p.conn.Close()
		<-p.pumped
	})
	return err
}

func (p *Proxy) pump() {
	defer close(p.pumped)
	defer close(p.events)

	for ev := range p.conn.Queue() {
		p.apply(ev)
		select {
		case p.events <- ev:
		case <-p.closing:
			return
		}
	}
}

// apply updates the mirror for one event.
func (p *Proxy) apply(ev protocol.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := ev.(type) {
	case protocol.Bootstrap:
		p.byNumber = make(map[int]protocol.BreakpointInfo, len(e.Breakpoints))
		p.byLocation = make(map[breakpoint.Location]int, len(e.Breakpoints))
		for _, bp := range e.Breakpoints {
			p.put(bp)
		}
		p.bootstrapped = true
		p.logger.Debug("mirror bootstrapped", slog.Int("breakpoints", len(e.Breakpoints)))

	case protocol.BreakpointCreate:
		p.put(protocol.BreakpointInfo{
			Bpnum:     e.Bpnum,
			Filename:  e.Filename,
			Line:      e.Line,
			Temporary: e.Temporary,
			Enabled:   true,
			Funcname:  e.Funcname,
			Condition: e.Condition,
		})

	case protocol.BreakpointEnable:
		p.update(e.Bpnum, func(bp *protocol.BreakpointInfo) { bp.Enabled = true })
	case protocol.BreakpointDisable:
		p.update(e.Bpnum, func(bp *protocol.BreakpointInfo) { bp.Enabled = false })
	case protocol.BreakpointIgnore:
		p.update(e.Bpnum, func(bp *protocol.BreakpointInfo) { bp.Ignore = e.Count })
	case protocol.BreakpointCondition:
		p.update(e.Bpnum, func(bp *protocol.BreakpointInfo) { bp.Condition = e.Condition })

	case protocol.BreakpointClear:
		if bp, ok := p.byNumber[e.Bpnum]; ok {
			delete(p.byLocation, breakpoint.Location{Filename: bp.Filename, Line: bp.Line})
			delete(p.byNumber, e.Bpnum)
		}

	case protocol.Stack:
		p.stack = e

	case protocol.Closed:
		p.logger.Info("engine disconnected")
	}
}

func (p *Proxy) put(bp protocol.BreakpointInfo) {
	p.byNumber[bp.Bpnum] = bp
	p.byLocation[breakpoint.Location{Filename: bp.Filename, Line: bp.Line}] = bp.Bpnum
}

func (p *Proxy) update(number int, change func(*protocol.BreakpointInfo)) {
	bp, ok := p.byNumber[number]
	if !ok {
		p.logger.Warn("event for breakpoint missing from mirror", slog.Int(bugjarlog.BreakpointKey, number))
		return
	}
	change(&bp)
	p.byNumber[number] = bp
}

// Bootstrapped reports whether the mirror holds the engine's state.
func (p *Proxy) Bootstrapped() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bootstrapped
}

// Breakpoint returns the mirrored breakpoint with the given number.
func (p *Proxy) Breakpoint(number int) (protocol.BreakpointInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.bootstrapped {
		return protocol.BreakpointInfo{}, ErrNotBootstrapped
	}
	bp, ok := p.byNumber[number]
	if !ok {
		return protocol.BreakpointInfo{}, fmt.Errorf("%w: %d", breakpoint.ErrUnknownBreakpoint, number)
	}
	return bp, nil
}

// BreakpointAt returns the mirrored breakpoint at filename:line.
func (p *Proxy) BreakpointAt(filename string, line int) (protocol.BreakpointInfo, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.bootstrapped {
		return protocol.BreakpointInfo{}, ErrNotBootstrapped
	}
	n, ok := p.byLocation[breakpoint.Location{Filename: filename, Line: line}]
	if !ok {
		n, ok = p.byLocation[breakpoint.Location{Filename: source.Canonical(filename), Line: line}]
	}
	if !ok {
		return protocol.BreakpointInfo{}, fmt.Errorf("%w: %s:%d", breakpoint.ErrUnknownBreakpoint, filename, line)
	}
	return p.byNumber[n], nil
}

// Breakpoints returns every mirrored breakpoint ordered by number.
func (p *Proxy) Breakpoints() []protocol.BreakpointInfo {
	return p.filter(func(protocol.BreakpointInfo) bool { return true })
}

// BreakpointsIn returns the mirrored breakpoints in filename.
func (p *Proxy) BreakpointsIn(filename string) []protocol.BreakpointInfo {
	return p.filter(func(bp protocol.BreakpointInfo) bool { return bp.Filename == filename })
}

func (p *Proxy) filter(keep func(protocol.BreakpointInfo) bool) []protocol.BreakpointInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]protocol.BreakpointInfo, 0, len(p.byNumber))
	for _, bp := range p.byNumber {
		if keep(bp) {
			out = append(out, bp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bpnum < out[j].Bpnum })
	return out
}

// Stack returns the most recent stack the engine reported.
func (p *Proxy) Stack() protocol.Stack {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]protocol.StackEntry, len(p.stack.Stack))
	copy(entries, p.stack.Stack)
	return protocol.Stack{Stack: entries}
}
