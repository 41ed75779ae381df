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

// Package conn binds one socket to a command queue.
//
// A Connection runs a single receive goroutine that reads fixed-size chunks,
// reassembles frames, parses them and pushes the results onto a buffered
// channel. When the peer goes away the goroutine pushes one synthetic close
// value and exits. Sending is synchronous and best-effort: write failures are
// logged, never returned, because the receive side reports the disconnect.
package conn

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/protocol"
)

// Defaults for Options.
const (
	DefaultChunkSize = 4096
	DefaultQueueSize = 64
)

// Options configures a Connection.
type Options struct {
	// Role labels metrics and logs ("engine" or "proxy").
	Role string

	// ChunkSize is the size of each socket read.
	ChunkSize int

	// QueueSize is the capacity of the receive queue.
	QueueSize int

	Logger *slog.Logger
}

// Connection owns a socket and the queue its receive goroutine feeds.
type Connection[T any] struct {
	conn    net.Conn
	parse   func(protocol.Message) (T, error)
	closed  T
	queue   chan T
	logger  *slog.Logger
	role    string
	chunk   int
	warn    *rate.Sometimes
	sendMu  sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	closing sync.Once
}

// New binds c and starts its receive goroutine. parse turns each decoded
// message into a queue value; closed is pushed once when the peer goes away.
func New[T any](c net.Conn, parse func(protocol.Message) (T, error), closed T, opts Options) *Connection[T] {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Role == "" {
		opts.Role = "engine"
	}

	cn := &Connection[T]{
		conn:   c,
		parse:  parse,
		closed: closed,
		queue:  make(chan T, opts.QueueSize),
		logger: bugjarlog.WithComponent(opts.Logger, "conn").With(
			slog.String("role", opts.Role),
			slog.String(bugjarlog.RemoteAddrKey, remoteAddr(c)),
		),
		role:  opts.Role,
		chunk: opts.ChunkSize,
		warn:  &rate.Sometimes{First: 3, Interval: 10 * time.Second},
		done:  make(chan struct{}),
	}

	connectionsActive.WithLabelValues(cn.role).Inc()
	cn.wg.Add(1)
	go cn.receiveLoop()
	return cn
}

// Queue returns the channel decoded values arrive on. The channel is closed
// after the synthetic close value has been delivered.
func (c *Connection[T]) Queue() <-chan T {
	return c.queue
}

// RemoteAddr returns the peer address.
func (c *Connection[T]) RemoteAddr() string {
	return remoteAddr(c.conn)
}

// Send encodes and writes one frame. Failures are logged and swallowed.
func (c *Connection[T]) Send(name string, args any) {
	frame, err := protocol.Encode(name, args)
	if err != nil {
		c.logger.Error("failed to encode frame", slog.String("name", name), bugjarlog.Error(err))
		return
	}
	c.write(name, frame)
}

// SendEvent writes one event frame. Failures are logged and swallowed.
func (c *Connection[T]) SendEvent(ev protocol.Event) {
	c.Send(ev.EventName(), ev)
}

// SendCommand writes one command frame. Failures are logged and swallowed.
func (c *Connection[T]) SendCommand(cmd protocol.Command) {
	frame, err := protocol.EncodeCommand(cmd)
	if err != nil {
		c.logger.Error("failed to encode command", slog.String(bugjarlog.CommandKey, cmd.Kind().String()), bugjarlog.Error(err))
		return
	}
	c.write(cmd.Kind().String(), frame)
}

func (c *Connection[T]) write(name string, frame []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if _, err := c.conn.Write(frame); err != nil {
		sendFailures.WithLabelValues(c.role).Inc()
		c.logger.Warn("send failed", slog.String("name", name), bugjarlog.Error(err))
		return
	}
	framesSent.WithLabelValues(c.role).Inc()
	bugjarlog.Trace(c.logger, "frame sent", slog.String("name", name), slog.Int("bytes", len(frame)))
}

// Close shuts the socket and waits for the receive goroutine to exit.
// It is safe to call more than once.
func (c *Connection[T]) Close() error {
	var err error
	c.closing.Do(func() {
		close(c.done)
		err = c.conn.Close()
		c.wg.Wait()
		connectionsActive.WithLabelValues(c.role).Dec()
	})
	return err
}

func (c *Connection[T]) receiveLoop() {
	defer c.wg.Done()
	defer close(c.queue)

	var dec protocol.Decoder
	buf := make([]byte, c.chunk)

	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			for _, frame := range dec.Feed(buf[:n]) {
				if !c.deliver(frame) {
					return
				}
			}
		}
		if err != nil || n == 0 {
			switch {
			case err == nil, errors.Is(err, io.EOF):
				c.logger.Info("peer closed connection")
			case errors.Is(err, net.ErrClosed):
				c.logger.Debug("connection closed locally")
			default:
				c.logger.Warn("receive failed", bugjarlog.Error(err))
			}
			if dec.Pending() > 0 {
				c.logger.Debug("discarding partial frame", slog.Int("bytes", dec.Pending()))
			}
			c.push(c.closed)
			return
		}
	}
}

// deliver parses one frame and queues it. It returns false once the
// connection is closing.
func (c *Connection[T]) deliver(frame []byte) bool {
	bugjarlog.Trace(c.logger, "frame received", slog.Int("bytes", len(frame)))

	msg, err := protocol.Parse(frame)
	if err == nil {
		var v T
		v, err = c.parse(msg)
		if err == nil {
			framesReceived.WithLabelValues(c.role).Inc()
			return c.push(v)
		}
	}

	framesDropped.WithLabelValues(c.role).Inc()
	c.warn.Do(func() {
		c.logger.Warn("dropping malformed frame", bugjarlog.Error(err))
	})
	return true
}

func (c *Connection[T]) push(v T) bool {
	select {
	case c.queue <- v:
		return true
	case <-c.done:
		return false
	}
}

func remoteAddr(c net.Conn) string {
	if addr := c.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
