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

package proxy

import (
	"log/slog"

	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/protocol"
)

// BreakOption adjusts a breakpoint request.
type BreakOption func(*protocol.Break)

// Temporary makes the breakpoint clear itself after its first hit.
func Temporary() BreakOption {
	return func(b *protocol.Break) { b.Temporary = true }
}

// InFunction places the breakpoint on the first line of the named function.
// The line passed to CreateBreakpoint may then be zero.
func InFunction(name string) BreakOption {
	return func(b *protocol.Break) { b.Funcname = name }
}

// WithCondition only stops when expr is true in the hit frame.
func WithCondition(expr string) BreakOption {
	return func(b *protocol.Break) { b.Condition = expr }
}

// CreateBreakpoint asks the engine for a breakpoint at filename:line. The
// outcome arrives as a breakpoint_create or error event.
func (p *Proxy) CreateBreakpoint(filename string, line int, opts ...BreakOption) {
	cmd := protocol.Break{Filename: filename, Line: line}
	for _, opt := range opts {
		opt(&cmd)
	}
	p.send(cmd)
}

func (p *Proxy) EnableBreakpoint(number int)  { p.send(protocol.Enable{Bpnum: number}) }
func (p *Proxy) DisableBreakpoint(number int) { p.send(protocol.Disable{Bpnum: number}) }
func (p *Proxy) ClearBreakpoint(number int)   { p.send(protocol.Clear{Bpnum: number}) }

// IgnoreBreakpoint skips the next count hits of a breakpoint.
func (p *Proxy) IgnoreBreakpoint(number, count int) {
	p.send(protocol.Ignore{Bpnum: number, Count: count})
}

// ConditionBreakpoint sets a breakpoint's condition. An empty expr removes it.
func (p *Proxy) ConditionBreakpoint(number int, expr string) {
	p.send(protocol.Condition{Bpnum: number, Condition: expr})
}

func (p *Proxy) Step()     { p.send(protocol.Step{}) }
func (p *Proxy) Next()     { p.send(protocol.Next{}) }
func (p *Proxy) Return()   { p.send(protocol.Return{}) }
func (p *Proxy) Until()    { p.send(protocol.Until{}) }
func (p *Proxy) Continue() { p.send(protocol.Continue{}) }
func (p *Proxy) Up()       { p.send(protocol.Up{}) }
func (p *Proxy) Down()     { p.send(protocol.Down{}) }
func (p *Proxy) Quit()     { p.send(protocol.Quit{}) }

// Restart relaunches the program. With no args the previous arguments are
// kept.
func (p *Proxy) Restart(args ...string) {
	p.send(protocol.Restart{Args: args})
}

func (p *Proxy) send(cmd protocol.Command) {
	bugjarlog.Trace(p.logger, "sending command", slog.String(bugjarlog.CommandKey, cmd.Kind().String()))
	p.conn.SendCommand(cmd)
}
