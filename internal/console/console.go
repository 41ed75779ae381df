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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/tombee/bugjar/internal/jq"
	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/protocol"
	"github.com/tombee/bugjar/internal/proxy"
	"github.com/tombee/bugjar/internal/source"
)

// DefaultPrompt is shown while the program is paused.
const DefaultPrompt = "(bugjar) "

// Controller is the engine-facing side of the console. *proxy.Proxy
// implements it.
type Controller interface {
	Events() <-chan protocol.Event

	CreateBreakpoint(filename string, line int, opts ...proxy.BreakOption)
	EnableBreakpoint(number int)
	DisableBreakpoint(number int)
	IgnoreBreakpoint(number, count int)
	ClearBreakpoint(number int)
	ConditionBreakpoint(number int, expr string)

	Step()
	Next()
	Return()
	Until()
	Continue()
	Up()
	Down()
	Restart(args ...string)
	Quit()

	Breakpoints() []protocol.BreakpointInfo
	Stack() protocol.Stack
}

// Options configures a Console.
type Options struct {
	Input  io.Reader
	Output io.Writer

	// Source supplies the lines shown at stops. A private cache is used
	// when nil.
	Source *source.Cache

	// Color forces styled (true) or plain (false) output. When nil, output
	// is styled only if Output is a terminal.
	Color *bool

	Prompt string
	Logger *slog.Logger
}

// Console drives a Controller from line input.
type Console struct {
	ctl    Controller
	input  io.Reader
	output io.Writer
	src    *source.Cache
	jq     *jq.Executor
	style  styles
	prompt string
	logger *slog.Logger

	// paused is true between a stack event and the next resuming command.
	paused bool
	// quitting is set once quit was sent; input is then ignored.
	quitting bool
}

// New creates a Console.
func New(ctl Controller, opts Options) *Console {
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Source == nil {
		opts.Source = source.NewCache()
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}

	color := isTerminal(opts.Output)
	if opts.Color != nil {
		color = *opts.Color
	}
	st := plainStyles()
	if color {
		st = colorStyles()
	}

	return &Console{
		ctl:    ctl,
		input:  opts.Input,
		output: opts.Output,
		src:    opts.Source,
		jq:     jq.NewExecutor(0, 0),
		style:  st,
		prompt: opts.Prompt,
		logger: bugjarlog.WithComponent(bugjarlog.OrDefault(opts.Logger), "console"),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run reads commands and renders events until the engine goes away, the
// input ends or ctx is cancelled. End of input detaches without quitting
// the session, so another controller can connect later.
func (c *Console) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	lines := c.readLines(done)

	events := c.ctl.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				if !c.quitting {
					c.println(c.style.warn.Render(symbolWarn) + " Engine disconnected")
				}
				return nil
			}
			c.render(ev)

		case line, ok := <-lines:
			if !ok {
				if c.quitting {
					// Drain until the engine confirms and hangs up.
					lines = nil
					continue
				}
				c.logger.Debug("input closed, detaching")
				return nil
			}
			c.handleLine(ctx, line)
		}
	}
}

// readLines feeds input lines to the returned channel until the input ends
// or done is closed.
func (c *Console) readLines(done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

func (c *Console) handleLine(ctx context.Context, line string) {
	if c.quitting || strings.TrimSpace(line) == "" {
		if c.paused && !c.quitting {
			c.showPrompt()
		}
		return
	}

	cmd, err := ParseCommand(line)
	if err != nil {
		c.printError(err)
		c.showPrompt()
		return
	}

	resumed, err := c.execute(ctx, cmd)
	if err != nil {
		c.printError(err)
	}
	if resumed {
		c.paused = false
		return
	}
	// Commands answered by an event reprint the prompt from render.
	if err != nil || isLocal(cmd.Type) {
		c.showPrompt()
	}
}

func (c *Console) showPrompt() {
	if c.paused {
		fmt.Fprint(c.output, c.style.bold.Render(c.prompt))
	}
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.output, s)
}

func (c *Console) printError(err error) {
	c.println(c.style.err.Render(symbolError) + " " + err.Error())
}
