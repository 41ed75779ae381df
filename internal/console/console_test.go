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
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/bugjar/internal/engine"
	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/protocol"
	"github.com/tombee/bugjar/internal/proxy"
	"github.com/tombee/bugjar/internal/script"
)

// fakeController records the commands it is given.
type fakeController struct {
	mu     sync.Mutex
	events chan protocol.Event
	calls  []string
	stack  protocol.Stack
	bps    []protocol.BreakpointInfo
	closed bool
}

func newFakeController() *fakeController {
	return &fakeController{events: make(chan protocol.Event, 16)}
}

func (f *fakeController) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Events() <-chan protocol.Event { return f.events }

func (f *fakeController) CreateBreakpoint(filename string, line int, opts ...proxy.BreakOption) {
	b := protocol.Break{Filename: filename, Line: line}
	for _, opt := range opts {
		opt(&b)
	}
	f.record("break %s:%d temporary=%t func=%q cond=%q", b.Filename, b.Line, b.Temporary, b.Funcname, b.Condition)
}

func (f *fakeController) EnableBreakpoint(n int)        { f.record("enable %d", n) }
func (f *fakeController) DisableBreakpoint(n int)       { f.record("disable %d", n) }
func (f *fakeController) IgnoreBreakpoint(n, count int) { f.record("ignore %d %d", n, count) }
func (f *fakeController) ClearBreakpoint(n int)         { f.record("clear %d", n) }
func (f *fakeController) ConditionBreakpoint(n int, expr string) {
	f.record("condition %d %q", n, expr)
}
func (f *fakeController) Step()     { f.record("step") }
func (f *fakeController) Next()     { f.record("next") }
func (f *fakeController) Return()   { f.record("return") }
func (f *fakeController) Until()    { f.record("until") }
func (f *fakeController) Continue() { f.record("continue") }
func (f *fakeController) Up()       { f.record("up") }
func (f *fakeController) Down()     { f.record("down") }
func (f *fakeController) Restart(args ...string) {
	f.record("restart %v", args)
}

func (f *fakeController) Quit() {
	f.record("quit")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

func (f *fakeController) Breakpoints() []protocol.BreakpointInfo {
	return append([]protocol.BreakpointInfo(nil), f.bps...)
}

func (f *fakeController) Stack() protocol.Stack { return f.stack }

func plain() *bool {
	b := false
	return &b
}

func newTestConsole(ctl Controller, out io.Writer) *Console {
	return New(ctl, Options{
		Input:  strings.NewReader(""),
		Output: out,
		Color:  plain(),
		Logger: bugjarlog.Discard(),
	})
}

func pausedAt(filename string, line int) protocol.Stack {
	return protocol.Stack{Stack: []protocol.StackEntry{
		{Line: 9, Frame: protocol.FrameInfo{Filename: filename, Function: "<module>", Globals: map[string]string{"total": "0"}}},
		{Line: line, Frame: protocol.FrameInfo{
			Filename: filename,
			Function: "add",
			Locals:   map[string]string{"a": "0", "b": "1"},
			Globals:  map[string]string{"total": "0"},
			Builtins: map[string]string{"len": "<function>"},
			Current:  true,
		}},
	}}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    CommandType
		args    []string
		wantErr bool
	}{
		{line: "b app.bj:3", want: CommandBreak, args: []string{"app.bj:3"}},
		{line: "break 3 if i == 1", want: CommandBreak, args: []string{"3", "if", "i", "==", "1"}},
		{line: "  C  ", want: CommandContinue, args: []string{}},
		{line: "cont", want: CommandContinue, args: []string{}},
		{line: "bt", want: CommandWhere, args: []string{}},
		{line: "?", want: CommandHelp, args: []string{}},
		{line: "restart a b", want: CommandRestart, args: []string{"a", "b"}},
		{line: "ignore 1 2", want: CommandIgnore, args: []string{"1", "2"}},
		{line: "ignore 1", wantErr: true},
		{line: "step 3", wantErr: true},
		{line: "break", wantErr: true},
		{line: "jump 4", wantErr: true},
		{line: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := ParseCommand(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd.Type)
			assert.Equal(t, tt.args, cmd.Args)
		})
	}
}

func TestConsole_CommandsReachController(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"break /src/app.bj:9", `break /src/app.bj:9 temporary=false func="" cond=""`},
		{"b 5", `break /src/app.bj:5 temporary=false func="" cond=""`},
		{"b add", `break /src/app.bj:0 temporary=false func="add" cond=""`},
		{"b other.bj:main", `break other.bj:0 temporary=false func="main" cond=""`},
		{"break 9 if i == 1", `break /src/app.bj:9 temporary=false func="" cond="i == 1"`},
		{"tbreak 6", `break /src/app.bj:6 temporary=true func="" cond=""`},
		{"enable 2", "enable 2"},
		{"disable 2", "disable 2"},
		{"cl 3", "clear 3"},
		{"ignore 1 4", "ignore 1 4"},
		{"condition 1 total > 2", `condition 1 "total > 2"`},
		{"condition 1", `condition 1 ""`},
		{"s", "step"},
		{"n", "next"},
		{"r", "return"},
		{"u", "until"},
		{"c", "continue"},
		{"up", "up"},
		{"down", "down"},
		{"restart x y", "restart [x y]"},
		{"restart", "restart []"},
		{"run", "restart []"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ctl := newFakeController()
			ctl.stack = pausedAt("/src/app.bj", 5)
			var out bytes.Buffer
			c := newTestConsole(ctl, &out)

			c.handleLine(context.Background(), tt.line)
			assert.Equal(t, []string{tt.want}, ctl.Calls())
			assert.NotContains(t, out.String(), symbolError)
		})
	}
}

func TestConsole_InvalidInputIsReportedLocally(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"unknown command", "jump 3", "unknown command: jump"},
		{"bad number", "enable x", "breakpoint number must be a positive integer"},
		{"negative ignore", "ignore 1 -2", "ignore count must be a non-negative integer"},
		{"dangling if", "break 3 if", "usage: break LOCATION [if EXPR]"},
		{"zero line", "break app.bj:0", "line number must be positive"},
		{"undefined name", "p nope", `name "nope" is not defined`},
		{"bad query", "inspect .[", "invalid jq expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := newFakeController()
			ctl.stack = pausedAt("/src/app.bj", 5)
			var out bytes.Buffer
			c := newTestConsole(ctl, &out)

			c.handleLine(context.Background(), tt.line)
			assert.Empty(t, ctl.Calls())
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestConsole_BreakWithoutFrameNeedsFile(t *testing.T) {
	ctl := newFakeController()
	var out bytes.Buffer
	c := newTestConsole(ctl, &out)

	c.handleLine(context.Background(), "b 5")
	assert.Empty(t, ctl.Calls())
	assert.Contains(t, out.String(), "no current file")
}

func TestConsole_LocalViews(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.bj")
	var body strings.Builder
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&body, "x%d = %d\n", i, i)
	}
	require.NoError(t, os.WriteFile(path, []byte(body.String()), 0o644))

	ctl := newFakeController()
	ctl.stack = pausedAt(path, 7)
	ctl.bps = []protocol.BreakpointInfo{
		{Bpnum: 2, Filename: path, Line: 9, Enabled: false, Condition: "x1 == 1"},
		{Bpnum: 1, Filename: path, Line: 7, Enabled: true, Temporary: true, Ignore: 3},
	}

	t.Run("print searches scopes", func(t *testing.T) {
		var out bytes.Buffer
		c := newTestConsole(ctl, &out)
		c.handleLine(context.Background(), "p b")
		c.handleLine(context.Background(), "p total")
		c.handleLine(context.Background(), "p len")
		assert.Equal(t, "1\n0\n<function>\n", out.String())
	})

	t.Run("list shows surrounding lines", func(t *testing.T) {
		var out bytes.Buffer
		c := newTestConsole(ctl, &out)
		c.handleLine(context.Background(), "l")
		lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
		require.Len(t, lines, 11)
		assert.Equal(t, "   2    x2 = 2", lines[0])
		assert.Equal(t, "   7 -> x7 = 7", lines[5])
		assert.Equal(t, "  12    x12 = 12", lines[10])
	})

	t.Run("where marks the current frame", func(t *testing.T) {
		var out bytes.Buffer
		c := newTestConsole(ctl, &out)
		c.handleLine(context.Background(), "bt")
		assert.Equal(t,
			fmt.Sprintf("   %s:9 in <module>\n-> %s:7 in add\n", path, path),
			out.String())
	})

	t.Run("breakpoints sorted by number", func(t *testing.T) {
		var out bytes.Buffer
		c := newTestConsole(ctl, &out)
		c.handleLine(context.Background(), "bl")
		text := out.String()
		assert.Less(t, strings.Index(text, "1    tbreak yes"), strings.Index(text, "2    break  no"))
		assert.Contains(t, text, "will ignore next 3 hits")
		assert.Contains(t, text, "stop only if x1 == 1")
	})

	t.Run("inspect runs jq over the stack", func(t *testing.T) {
		var out bytes.Buffer
		c := newTestConsole(ctl, &out)
		c.handleLine(context.Background(), `inspect .frames[] | select(.[1].current) | .[1].locals.a`)
		assert.Equal(t, "\"0\"\n", out.String())
	})

	t.Run("help", func(t *testing.T) {
		var out bytes.Buffer
		c := newTestConsole(ctl, &out)
		c.handleLine(context.Background(), "help")
		assert.Contains(t, out.String(), "inspect, i QUERY")
	})
}

func TestConsole_RenderEvents(t *testing.T) {
	tests := []struct {
		name string
		ev   protocol.Event
		want string
	}{
		{"bootstrap", protocol.Bootstrap{Breakpoints: []protocol.BreakpointInfo{{Bpnum: 1}}}, "✓ Connected (1 breakpoints)\n"},
		{"create", protocol.BreakpointCreate{Bpnum: 3, Filename: "a.bj", Line: 4, Temporary: true, Condition: "x"}, "✓ Breakpoint 3 at a.bj:4 (temporary) if x\n"},
		{"enable", protocol.BreakpointEnable{Bpnum: 3}, "✓ Enabled breakpoint 3\n"},
		{"disable", protocol.BreakpointDisable{Bpnum: 3}, "✓ Disabled breakpoint 3\n"},
		{"ignore", protocol.BreakpointIgnore{Bpnum: 3, Count: 2}, "✓ Will ignore next 2 crossings of breakpoint 3\n"},
		{"clear", protocol.BreakpointClear{Bpnum: 3}, "✓ Deleted breakpoint 3\n"},
		{"condition removed", protocol.BreakpointCondition{Bpnum: 3}, "✓ Breakpoint 3 is now unconditional\n"},
		{"call", protocol.Call{Args: map[string]string{"b": "1", "a": "0"}}, "--Call-- a=0, b=1\n"},
		{"return", protocol.ReturnValue{Retval: "3"}, "--Return-- 3\n"},
		{"exception", protocol.Exception{Name: "Fault", Value: "boom"}, "✗ Fault: boom\n"},
		{"restart", protocol.RestartNotice{}, "• Restarting\n"},
		{"info", protocol.Info{Message: "Oldest frame"}, "• Oldest frame\n"},
		{"warning", protocol.Warning{Message: "bad condition"}, "⚠ bad condition\n"},
		{"error", protocol.Error{Message: "no such breakpoint"}, "✗ no such breakpoint\n"},
		{"line is silent", protocol.Line{Filename: "a.bj", Line: 2}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := newTestConsole(newFakeController(), &out)
			c.render(tt.ev)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestConsole_StackShowsSourceAndPrompt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.bj")
	require.NoError(t, os.WriteFile(path, []byte("a = 1\n    b = a + 1\n"), 0o644))

	var out bytes.Buffer
	c := newTestConsole(newFakeController(), &out)
	c.render(protocol.Stack{Stack: []protocol.StackEntry{
		{Line: 2, Frame: protocol.FrameInfo{Filename: path, Function: "<module>", Current: true}},
	}})

	assert.Equal(t, fmt.Sprintf("> %s:2 in <module>\n-> b = a + 1\n%s", path, DefaultPrompt), out.String())
	assert.True(t, c.paused)

	out.Reset()
	c.handleLine(context.Background(), "c")
	assert.False(t, c.paused)
	assert.Empty(t, out.String())
}

func TestConsole_RunQuitsWithoutDisconnectNotice(t *testing.T) {
	ctl := newFakeController()
	var out bytes.Buffer
	c := New(ctl, Options{
		Input:  strings.NewReader("quit\n"),
		Output: &out,
		Color:  plain(),
		Logger: bugjarlog.Discard(),
	})

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []string{"quit"}, ctl.Calls())
	assert.NotContains(t, out.String(), "Engine disconnected")
}

func TestConsole_RunStopsOnContextCancel(t *testing.T) {
	ctl := newFakeController()
	pr, pw := io.Pipe()
	defer pw.Close()

	c := New(ctl, Options{Input: pr, Output: io.Discard, Color: plain(), Logger: bugjarlog.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConsole_SessionAgainstEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.bj")
	require.NoError(t, os.WriteFile(path, []byte(`total = 0
for i in 3
    total = total + i
end
print total
`), 0o644))

	prog, err := script.NewProgram(path, script.Options{Stdout: io.Discard})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	eng, err := engine.New(engine.Options{Listener: ln, Target: prog, Logger: bugjarlog.Discard()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- eng.Serve(ctx) }()

	p, err := proxy.Dial(ctx, "tcp", ln.Addr().String(), proxy.Options{Logger: bugjarlog.Discard()})
	require.NoError(t, err)
	defer p.Close()

	pr, pw := io.Pipe()
	defer pw.Close()
	var out syncBuffer
	c := New(p, Options{Input: pr, Output: &out, Color: plain(), Logger: bugjarlog.Discard()})
	ran := make(chan error, 1)
	go func() { ran <- c.Run(ctx) }()

	waitFor := func(text string) {
		t.Helper()
		require.Eventually(t, func() bool { return strings.Contains(out.String(), text) },
			5*time.Second, 10*time.Millisecond, "waiting for %q in:\n%s", text, out.String())
	}
	send := func(line string) {
		t.Helper()
		_, err := io.WriteString(pw, line+"\n")
		require.NoError(t, err)
	}

	waitFor(fmt.Sprintf("> %s:1 in <module>", path))
	send("b 3 if i == 2")
	waitFor("Breakpoint 1 at " + path + ":3 if i == 2")
	send("c")
	waitFor(fmt.Sprintf("> %s:3 in <module>", path))
	send("p i")
	waitFor(DefaultPrompt + "2\n")
	send("q")
	waitFor("Debugging session terminated")

	select {
	case err := <-ran:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("console did not stop after quit")
	}
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after quit")
	}
}
