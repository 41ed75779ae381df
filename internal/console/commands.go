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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tombee/bugjar/internal/proxy"
)

// listContext is the number of lines shown either side of the current line.
const listContext = 5

func isLocal(t CommandType) bool {
	switch t {
	case CommandBreakpoints, CommandWhere, CommandPrint, CommandList, CommandInspect, CommandHelp:
		return true
	}
	return false
}

// execute runs one command. resumed reports whether the program was told to
// run on.
func (c *Console) execute(ctx context.Context, cmd *Command) (resumed bool, err error) {
	switch cmd.Type {
	case CommandBreak:
		return false, c.doBreak(cmd.Args, false)
	case CommandTBreak:
		return false, c.doBreak(cmd.Args, true)

	case CommandEnable, CommandDisable, CommandClear:
		n, err := parseNumber(cmd.Args[0])
		if err != nil {
			return false, err
		}
		switch cmd.Type {
		case CommandEnable:
			c.ctl.EnableBreakpoint(n)
		case CommandDisable:
			c.ctl.DisableBreakpoint(n)
		default:
			c.ctl.ClearBreakpoint(n)
		}
		return false, nil

	case CommandIgnore:
		n, err := parseNumber(cmd.Args[0])
		if err != nil {
			return false, err
		}
		count, err := strconv.Atoi(cmd.Args[1])
		if err != nil || count < 0 {
			return false, fmt.Errorf("ignore count must be a non-negative integer, got %q", cmd.Args[1])
		}
		c.ctl.IgnoreBreakpoint(n, count)
		return false, nil

	case CommandCondition:
		n, err := parseNumber(cmd.Args[0])
		if err != nil {
			return false, err
		}
		_, expr, _ := strings.Cut(cmd.Rest, " ")
		c.ctl.ConditionBreakpoint(n, strings.TrimSpace(expr))
		return false, nil

	case CommandStep:
		c.ctl.Step()
		return true, nil
	case CommandNext:
		c.ctl.Next()
		return true, nil
	case CommandReturn:
		c.ctl.Return()
		return true, nil
	case CommandUntil:
		c.ctl.Until()
		return true, nil
	case CommandContinue:
		c.ctl.Continue()
		return true, nil
	case CommandUp:
		c.ctl.Up()
		return false, nil
	case CommandDown:
		c.ctl.Down()
		return false, nil
	case CommandRestart:
		if len(cmd.Args) == 0 {
			// No arguments keeps the previous ones.
			c.ctl.Restart()
		} else {
			c.ctl.Restart(cmd.Args...)
		}
		return true, nil
	case CommandQuit:
		c.quitting = true
		c.ctl.Quit()
		return true, nil

	case CommandBreakpoints:
		c.showBreakpoints()
		return false, nil
	case CommandWhere:
		c.showStack()
		return false, nil
	case CommandPrint:
		return false, c.doPrint(cmd.Args[0])
	case CommandList:
		return false, c.doList()
	case CommandInspect:
		return false, c.doInspect(ctx, cmd.Rest)
	case CommandHelp:
		c.showHelp()
		return false, nil
	}
	return false, fmt.Errorf("unhandled command %d", cmd.Type)
}

func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("breakpoint number must be a positive integer, got %q", s)
	}
	return n, nil
}

// doBreak handles "break LOCATION [if EXPR]".
func (c *Console) doBreak(args []string, temporary bool) error {
	var condition string
	if len(args) > 1 {
		if args[1] != "if" || len(args) < 3 {
			return errors.New("usage: break LOCATION [if EXPR]")
		}
		condition = strings.Join(args[2:], " ")
	}

	filename, line, funcname, err := c.parseLocation(args[0])
	if err != nil {
		return err
	}

	var opts []proxy.BreakOption
	if temporary {
		opts = append(opts, proxy.Temporary())
	}
	if funcname != "" {
		opts = append(opts, proxy.InFunction(funcname))
	}
	if condition != "" {
		opts = append(opts, proxy.WithCondition(condition))
	}
	c.ctl.CreateBreakpoint(filename, line, opts...)
	return nil
}

// parseLocation accepts FILE:LINE, FILE:FUNC, LINE or FUNC. Without a file
// the current frame's file is used.
func (c *Console) parseLocation(loc string) (filename string, line int, funcname string, err error) {
	target := loc
	if i := strings.LastIndex(loc, ":"); i >= 0 {
		filename, target = loc[:i], loc[i+1:]
	}
	if target == "" {
		return "", 0, "", fmt.Errorf("invalid location %q", loc)
	}

	if n, convErr := strconv.Atoi(target); convErr == nil {
		if n < 1 {
			return "", 0, "", fmt.Errorf("line number must be positive, got %d", n)
		}
		line = n
	} else {
		funcname = target
	}

	if filename == "" {
		cur, ok := c.ctl.Stack().Current()
		if !ok {
			return "", 0, "", errors.New("no current file; use FILE:LINE")
		}
		filename = cur.Frame.Filename
	}
	return filename, line, funcname, nil
}

// doPrint shows a variable from the current frame, searching locals, then
// globals, then builtins.
func (c *Console) doPrint(name string) error {
	cur, ok := c.ctl.Stack().Current()
	if !ok {
		return errors.New("no current frame")
	}
	for _, scope := range []map[string]string{cur.Frame.Locals, cur.Frame.Globals, cur.Frame.Builtins} {
		if v, ok := scope[name]; ok {
			c.println(v)
			return nil
		}
	}
	return fmt.Errorf("name %q is not defined", name)
}

func (c *Console) doList() error {
	cur, ok := c.ctl.Stack().Current()
	if !ok {
		return errors.New("no current frame")
	}
	lines, err := c.src.Lines(cur.Frame.Filename)
	if err != nil {
		return err
	}

	first := max(cur.Line-listContext, 1)
	last := min(cur.Line+listContext, len(lines))
	for n := first; n <= last; n++ {
		text := fmt.Sprintf("%4d    %s", n, lines[n-1])
		if n == cur.Line {
			text = c.style.current.Render(fmt.Sprintf("%4d %s %s", n, symbolHere, lines[n-1]))
		}
		c.println(text)
	}
	return nil
}

func (c *Console) doInspect(ctx context.Context, query string) error {
	results, err := c.jq.Query(ctx, query, c.ctl.Stack())
	if err != nil {
		return err
	}
	for _, r := range results {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		c.println(string(data))
	}
	return nil
}

func (c *Console) showBreakpoints() {
	bps := c.ctl.Breakpoints()
	if len(bps) == 0 {
		c.println(c.style.muted.Render("No breakpoints"))
		return
	}

	sort.Slice(bps, func(i, j int) bool { return bps[i].Bpnum < bps[j].Bpnum })
	c.println(c.style.header.Render("Num  Type   Enb  Where"))
	for _, bp := range bps {
		kind := "break"
		if bp.Temporary {
			kind = "tbreak"
		}
		enabled := "yes"
		if !bp.Enabled {
			enabled = "no"
		}
		c.println(fmt.Sprintf("%-4d %-6s %-4s %s:%d", bp.Bpnum, kind, enabled, bp.Filename, bp.Line))
		if bp.Funcname != "" {
			c.println(c.style.muted.Render("\tin function " + bp.Funcname))
		}
		if bp.Condition != "" {
			c.println(c.style.muted.Render("\tstop only if " + bp.Condition))
		}
		if bp.Ignore > 0 {
			c.println(c.style.muted.Render(fmt.Sprintf("\twill ignore next %d hits", bp.Ignore)))
		}
	}
}

func (c *Console) showStack() {
	stack := c.ctl.Stack()
	if len(stack.Stack) == 0 {
		c.println(c.style.muted.Render("No stack"))
		return
	}
	for _, entry := range stack.Stack {
		text := fmt.Sprintf("   %s:%d in %s", entry.Frame.Filename, entry.Line, entry.Frame.Function)
		if entry.Frame.Current {
			text = c.style.current.Render(fmt.Sprintf("%s %s:%d in %s", symbolHere, entry.Frame.Filename, entry.Line, entry.Frame.Function))
		}
		c.println(text)
	}
}

func (c *Console) showHelp() {
	c.println(c.style.header.Render("Commands:"))
	help := [][2]string{
		{"break, b LOC [if EXPR]", "Set a breakpoint at [FILE:]LINE or [FILE:]FUNC"},
		{"tbreak LOC", "Set a breakpoint that clears itself when hit"},
		{"enable N, disable N", "Enable or disable breakpoint N"},
		{"ignore N COUNT", "Skip the next COUNT hits of breakpoint N"},
		{"condition N [EXPR]", "Set or remove the condition of breakpoint N"},
		{"clear, cl N", "Delete breakpoint N"},
		{"step, s", "Stop at the next line, entering calls"},
		{"next, n", "Stop at the next line in this frame"},
		{"return, r", "Run until this frame returns"},
		{"until, u", "Run until a line past the current one"},
		{"continue, c", "Run until a breakpoint"},
		{"up, down", "Select the caller or callee frame"},
		{"restart [ARGS...]", "Relaunch the program"},
		{"quit, q", "End the debugging session"},
		{"breakpoints, bl", "List breakpoints"},
		{"where, bt", "Show the stack"},
		{"print, p NAME", "Show a variable of the current frame"},
		{"list, l", "Show source around the current line"},
		{"inspect, i QUERY", "Run a jq query over the stack"},
		{"help, h, ?", "Show this help"},
	}
	for _, h := range help {
		c.println(fmt.Sprintf("  %-24s %s", h[0], c.style.muted.Render(h[1])))
	}
}
