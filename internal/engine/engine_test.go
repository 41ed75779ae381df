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
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/bugjar/internal/conn"
	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/protocol"
	"github.com/tombee/bugjar/internal/script"
	"github.com/tombee/bugjar/internal/source"
)

const appScript = `total = 0

# accumulate
def add(a, b)
    c = a + b
    return c
end
for i in 3
    total = add(total, i)
end
print total
`

const eventTimeout = 5 * time.Second

type harness struct {
	t      *testing.T
	engine *Engine
	path   string
	ln     net.Listener
	cancel context.CancelFunc
	done   chan error
}

func startEngine(t *testing.T, body string, mutate ...func(*Options)) *harness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "app.bj")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	prog, err := script.NewProgram(path, script.Options{Stdout: io.Discard})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	opts := Options{
		Listener: ln,
		Target:   prog,
		Logger:   bugjarlog.Discard(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	e, err := New(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{
		t:      t,
		engine: e,
		path:   source.Canonical(path),
		ln:     ln,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { h.done <- e.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(eventTimeout):
			t.Error("engine did not stop")
		}
	})
	return h
}

// wait returns Serve's result.
func (h *harness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(eventTimeout):
		h.t.Fatal("timed out waiting for Serve to return")
		return nil
	}
}

type client struct {
	t *testing.T
	c *conn.Connection[protocol.Event]
}

func (h *harness) dial() *client {
	h.t.Helper()
	nc, err := net.Dial("tcp", h.ln.Addr().String())
	require.NoError(h.t, err)
	c := conn.New(nc, protocol.ParseEvent, protocol.Event(protocol.Closed{}), conn.Options{
		Role:   "proxy",
		Logger: bugjarlog.Discard(),
	})
	h.t.Cleanup(func() { c.Close() })
	return &client{t: h.t, c: c}
}

// connect dials and consumes the bootstrap and stack every new controller
// receives.
func (h *harness) connect() (*client, protocol.Bootstrap, protocol.Stack) {
	h.t.Helper()
	cl := h.dial()
	boot := expectEvent[protocol.Bootstrap](cl)
	stack := expectEvent[protocol.Stack](cl)
	return cl, boot, stack
}

func (cl *client) send(cmd protocol.Command) {
	cl.c.SendCommand(cmd)
}

func (cl *client) next() protocol.Event {
	cl.t.Helper()
	select {
	case ev, ok := <-cl.c.Queue():
		require.True(cl.t, ok, "connection closed")
		return ev
	case <-time.After(eventTimeout):
		cl.t.Fatal("timed out waiting for event")
		return nil
	}
}

func expectEvent[T protocol.Event](cl *client) T {
	cl.t.Helper()
	ev := cl.next()
	got, ok := ev.(T)
	require.True(cl.t, ok, "expected %T, got %T (%+v)", *new(T), ev, ev)
	return got
}

// stopAt expects a line stop followed by its stack.
func (cl *client) stopAt(filename string, line int) protocol.Stack {
	cl.t.Helper()
	assert.Equal(cl.t, protocol.Line{Filename: filename, Line: line}, expectEvent[protocol.Line](cl))
	stack := expectEvent[protocol.Stack](cl)
	cur, ok := stack.Current()
	require.True(cl.t, ok)
	assert.Equal(cl.t, line, cur.Line)
	return stack
}

func TestEngine_FirstContactIsBootstrapThenStack(t *testing.T) {
	h := startEngine(t, appScript)
	_, boot, stack := h.connect()

	assert.NotNil(t, boot.Breakpoints)
	assert.Empty(t, boot.Breakpoints)

	require.Len(t, stack.Stack, 1)
	top := stack.Stack[0]
	assert.Equal(t, 1, top.Line)
	assert.Equal(t, h.path, top.Frame.Filename)
	assert.Equal(t, "<module>", top.Frame.Function)
	assert.True(t, top.Frame.Current)
	assert.Equal(t, `"__main__"`, top.Frame.Globals["__name__"])
	assert.Equal(t, "<function>", top.Frame.Builtins["repr"])
}

// Scenario A and B.
func TestEngine_BreakCreatesOnlyOnExecutableLines(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 2})
	assert.Contains(t, expectEvent[protocol.Error](cl).Message, "not executable")

	cl.send(protocol.Break{Filename: h.path, Line: 3})
	expectEvent[protocol.Error](cl)

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	assert.Equal(t, protocol.BreakpointCreate{Bpnum: 1, Filename: h.path, Line: 9}, expectEvent[protocol.BreakpointCreate](cl))

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	assert.Contains(t, expectEvent[protocol.Error](cl).Message, "breakpoint 1")
}

// Scenario C.
func TestEngine_ContinueStopsAtBreakpoint(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	expectEvent[protocol.BreakpointCreate](cl)

	cl.send(protocol.Continue{})
	stack := cl.stopAt(h.path, 9)
	cur, _ := stack.Current()
	assert.Equal(t, h.path, cur.Frame.Filename)
	assert.Equal(t, "0", cur.Frame.Locals["i"])
}

// Scenario D.
func TestEngine_DisabledBreakpointRunsToCompletion(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	expectEvent[protocol.BreakpointCreate](cl)
	cl.send(protocol.Disable{Bpnum: 1})
	assert.Equal(t, protocol.BreakpointDisable{Bpnum: 1}, expectEvent[protocol.BreakpointDisable](cl))

	cl.send(protocol.Continue{})
	expectEvent[protocol.RestartNotice](cl)
	cl.stopAt(h.path, 1)
}

// Scenario E.
func TestEngine_IgnoreCountSkipsPasses(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	expectEvent[protocol.BreakpointCreate](cl)
	cl.send(protocol.Ignore{Bpnum: 1, Count: 2})
	assert.Equal(t, protocol.BreakpointIgnore{Bpnum: 1, Count: 2}, expectEvent[protocol.BreakpointIgnore](cl))

	cl.send(protocol.Continue{})
	stack := cl.stopAt(h.path, 9)
	cur, _ := stack.Current()
	assert.Equal(t, "2", cur.Frame.Locals["i"], "third pass")

	cl.send(protocol.Continue{})
	expectEvent[protocol.RestartNotice](cl)
	cl.stopAt(h.path, 1)
}

func TestEngine_IgnoreZeroReportsEnable(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	expectEvent[protocol.BreakpointCreate](cl)
	cl.send(protocol.Ignore{Bpnum: 1, Count: 0})
	assert.Equal(t, protocol.BreakpointEnable{Bpnum: 1}, expectEvent[protocol.BreakpointEnable](cl))
}

// Scenario F and reconnection convergence.
func TestEngine_ReconnectReissuesBootstrap(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	expectEvent[protocol.BreakpointCreate](cl)
	cl.send(protocol.Break{Filename: h.path, Line: 5, Temporary: true})
	expectEvent[protocol.BreakpointCreate](cl)
	cl.send(protocol.Disable{Bpnum: 2})
	expectEvent[protocol.BreakpointDisable](cl)
	cl.send(protocol.Continue{})
	before := cl.stopAt(h.path, 9)

	require.NoError(t, cl.c.Close())

	_, boot, stack := h.connect()
	assert.Equal(t, []protocol.BreakpointInfo{
		{Bpnum: 1, Filename: h.path, Line: 9, Enabled: true},
		{Bpnum: 2, Filename: h.path, Line: 5, Temporary: true, Enabled: false},
	}, boot.Breakpoints)
	assert.Equal(t, before, stack)
}

func TestEngine_ClearedNumberIsNotReused(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	expectEvent[protocol.BreakpointCreate](cl)
	cl.send(protocol.Clear{Bpnum: 1})
	assert.Equal(t, protocol.BreakpointClear{Bpnum: 1}, expectEvent[protocol.BreakpointClear](cl))
	cl.send(protocol.Clear{Bpnum: 1})
	expectEvent[protocol.Error](cl)
	cl.send(protocol.Enable{Bpnum: 7})
	expectEvent[protocol.Error](cl)

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	assert.Equal(t, 2, expectEvent[protocol.BreakpointCreate](cl).Bpnum)
}

func TestEngine_TemporaryBreakpointClearsOnHit(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9, Temporary: true})
	expectEvent[protocol.BreakpointCreate](cl)

	cl.send(protocol.Continue{})
	assert.Equal(t, protocol.BreakpointClear{Bpnum: 1}, expectEvent[protocol.BreakpointClear](cl))
	cl.stopAt(h.path, 9)

	cl.send(protocol.Continue{})
	expectEvent[protocol.RestartNotice](cl)
	cl.stopAt(h.path, 1)
}

func TestEngine_ConditionalBreakpoint(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9, Condition: "i == 1"})
	assert.Equal(t, "i == 1", expectEvent[protocol.BreakpointCreate](cl).Condition)

	cl.send(protocol.Continue{})
	stack := cl.stopAt(h.path, 9)
	cur, _ := stack.Current()
	assert.Equal(t, "1", cur.Frame.Locals["i"])

	cl.send(protocol.Condition{Bpnum: 1, Condition: ""})
	assert.Equal(t, protocol.BreakpointCondition{Bpnum: 1}, expectEvent[protocol.BreakpointCondition](cl))
	cl.send(protocol.Continue{})
	stack = cl.stopAt(h.path, 9)
	cur, _ = stack.Current()
	assert.Equal(t, "2", cur.Frame.Locals["i"])
}

func TestEngine_FunctionBreakpoint(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Funcname: "add"})
	created := expectEvent[protocol.BreakpointCreate](cl)
	assert.Equal(t, 4, created.Line)
	assert.Equal(t, "add", created.Funcname)

	cl.send(protocol.Continue{})
	stack := cl.stopAt(h.path, 5)
	require.Len(t, stack.Stack, 2)
	assert.Equal(t, "add", stack.Stack[1].Frame.Function)
}

func TestEngine_SteppingAndFrames(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	expectEvent[protocol.BreakpointCreate](cl)
	cl.send(protocol.Continue{})
	cl.stopAt(h.path, 9)

	// step descends into the call.
	cl.send(protocol.Step{})
	call := expectEvent[protocol.Call](cl)
	assert.Equal(t, map[string]string{"a": "0", "b": "0"}, call.Args)
	stack := expectEvent[protocol.Stack](cl)
	require.Len(t, stack.Stack, 2)
	assert.Equal(t, "add", stack.Stack[1].Frame.Function)
	assert.Equal(t, 9, stack.Stack[0].Line)

	cl.send(protocol.Step{})
	cl.stopAt(h.path, 5)
	cl.send(protocol.Next{})
	cl.stopAt(h.path, 6)

	cl.send(protocol.Up{})
	stack = expectEvent[protocol.Stack](cl)
	assert.True(t, stack.Stack[0].Frame.Current)
	assert.False(t, stack.Stack[1].Frame.Current)
	cl.send(protocol.Up{})
	assert.Equal(t, "Oldest frame", expectEvent[protocol.Info](cl).Message)
	cl.send(protocol.Down{})
	stack = expectEvent[protocol.Stack](cl)
	assert.True(t, stack.Stack[1].Frame.Current)
	cl.send(protocol.Down{})
	assert.Equal(t, "Newest frame", expectEvent[protocol.Info](cl).Message)

	cl.send(protocol.Return{})
	assert.Equal(t, "0", expectEvent[protocol.ReturnValue](cl).Retval)
	expectEvent[protocol.Stack](cl)

	// next leaves the returning frame and stops back in the module, at the
	// loop header.
	cl.send(protocol.Next{})
	cl.stopAt(h.path, 8)
}

func TestEngine_NextSkipsOverCalls(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	for _, line := range []int{4, 8, 9, 8, 9} {
		cl.send(protocol.Next{})
		cl.stopAt(h.path, line)
	}
}

func TestEngine_UntilLeavesLoop(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	expectEvent[protocol.BreakpointCreate](cl)
	cl.send(protocol.Continue{})
	cl.stopAt(h.path, 9)
	cl.send(protocol.Clear{Bpnum: 1})
	expectEvent[protocol.BreakpointClear](cl)

	cl.send(protocol.Until{})
	stack := cl.stopAt(h.path, 11)
	cur, _ := stack.Current()
	assert.Equal(t, "3", cur.Frame.Globals["total"])
}

func TestEngine_OutOfRangeRequestsReportErrors(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Break{Filename: h.path, Line: 9})
	expectEvent[protocol.BreakpointCreate](cl)

	tests := []struct {
		name string
		cmd  protocol.Command
		want string
	}{
		{"negative line", protocol.Break{Filename: h.path, Line: -4}, "not executable"},
		{"zero line without function", protocol.Break{Filename: h.path}, "not executable"},
		{"missing filename", protocol.Break{Line: 4}, "filename"},
		{"negative ignore count", protocol.Ignore{Bpnum: 1, Count: -1}, "negative"},
	}
	for _, tt := range tests {
		cl.send(tt.cmd)
		assert.Contains(t, expectEvent[protocol.Error](cl).Message, tt.want, tt.name)
	}

	// The table is untouched and the engine is still paused at the start.
	cl.send(protocol.Step{})
	cl.stopAt(h.path, 4)
}

func TestEngine_UnknownCommandKeepsSessionPaused(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.c.Send("jump", map[string]any{"line": 3})
	assert.Contains(t, expectEvent[protocol.Error](cl).Message, `"jump"`)

	cl.send(protocol.Step{})
	cl.stopAt(h.path, 4)
}

func TestEngine_RestartReplacesArgs(t *testing.T) {
	h := startEngine(t, appScript, func(o *Options) { o.Args = []string{"first"} })
	cl, _, stack := h.connect()
	assert.Contains(t, stack.Stack[0].Frame.Globals["argv"], "first")

	cl.send(protocol.Restart{Args: []string{"second"}})
	expectEvent[protocol.RestartNotice](cl)
	stack = cl.stopAt(h.path, 1)
	assert.Contains(t, stack.Stack[0].Frame.Globals["argv"], "second")

	cl.send(protocol.Restart{})
	expectEvent[protocol.RestartNotice](cl)
	stack = cl.stopAt(h.path, 1)
	assert.Contains(t, stack.Stack[0].Frame.Globals["argv"], "second")
}

func TestEngine_QuitEndsServe(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Quit{})
	assert.Equal(t, "Debugging session terminated", expectEvent[protocol.Info](cl).Message)
	assert.NoError(t, h.wait())
	expectEvent[protocol.Closed](cl)
}

const faultScript = `def fail(n)
    raise "boom " + str(n)
end
fail(7)
`

func TestEngine_PostmortemOnFault(t *testing.T) {
	h := startEngine(t, faultScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Continue{})
	assert.Equal(t, protocol.Exception{Name: "RuntimeError", Value: "boom 7"}, expectEvent[protocol.Exception](cl))
	expectEvent[protocol.Postmortem](cl)
	stack := expectEvent[protocol.Stack](cl)
	require.Len(t, stack.Stack, 2)
	cur, ok := stack.Current()
	require.True(t, ok)
	assert.Equal(t, "fail", cur.Frame.Function)
	assert.Equal(t, 2, cur.Line)
	assert.Equal(t, "7", cur.Frame.Locals["n"])

	cl.send(protocol.Continue{})
	expectEvent[protocol.RestartNotice](cl)
	cl.stopAt(h.path, 1)
}

func TestEngine_StepStopsOnException(t *testing.T) {
	h := startEngine(t, faultScript)
	cl, _, _ := h.connect()

	cl.send(protocol.Next{})
	cl.stopAt(h.path, 4)
	cl.send(protocol.Step{})
	expectEvent[protocol.Call](cl)
	expectEvent[protocol.Stack](cl)
	cl.send(protocol.Step{})
	cl.stopAt(h.path, 2)
	cl.send(protocol.Step{})
	assert.Equal(t, "RuntimeError", expectEvent[protocol.Exception](cl).Name)
	expectEvent[protocol.Stack](cl)
}

func TestEngine_PostmortemOnSyntaxError(t *testing.T) {
	h := startEngine(t, "def broken(\n")
	cl, _, stack := h.connect()
	assert.Empty(t, stack.Stack)

	cl.send(protocol.Up{})
	assert.Equal(t, "Oldest frame", expectEvent[protocol.Info](cl).Message)

	cl.send(protocol.Quit{})
	expectEvent[protocol.Info](cl)
	assert.NoError(t, h.wait())
}

func TestEngine_ListenerFailureIsFatal(t *testing.T) {
	h := startEngine(t, appScript)
	cl, _, _ := h.connect()

	require.NoError(t, h.ln.Close())
	require.NoError(t, cl.c.Close())

	err := h.wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepting controller")
}

func TestEngine_CancelEndsServe(t *testing.T) {
	h := startEngine(t, appScript)
	h.connect()

	h.cancel()
	assert.NoError(t, h.wait())
}

func TestNew_Validation(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = New(Options{Target: nil, Listener: ln})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "a.bj")
	require.NoError(t, os.WriteFile(path, []byte("pass\n"), 0o644))
	prog, err := script.NewProgram(path, script.Options{})
	require.NoError(t, err)

	_, err = New(Options{Target: prog})
	assert.Error(t, err)

	_, err = New(Options{Target: prog, Listener: ln, Skip: []string{"[unclosed"}})
	assert.Error(t, err)
}
