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
	"fmt"
	"sort"
	"strings"

	"github.com/tombee/bugjar/internal/protocol"
)

// render prints one engine event.
func (c *Console) render(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.Bootstrap:
		c.println(c.style.ok.Render(symbolOK) + fmt.Sprintf(" Connected (%d breakpoints)", len(e.Breakpoints)))

	case protocol.Stack:
		c.renderStop(e)
		c.paused = true
		c.showPrompt()
		return

	case protocol.Line:
		c.logger.Debug("stopped", "filename", e.Filename, "line", e.Line)

	case protocol.Call:
		names := make([]string, 0, len(e.Args))
		for name := range e.Args {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = name + "=" + e.Args[name]
		}
		c.println(c.style.info.Render("--Call--") + " " + strings.Join(parts, ", "))

	case protocol.ReturnValue:
		c.println(c.style.info.Render("--Return--") + " " + e.Retval)

	case protocol.Exception:
		c.println(c.style.err.Render(symbolError) + " " + e.Name + ": " + e.Value)

	case protocol.Postmortem:
		c.println(c.style.warn.Render(symbolWarn) + " Uncaught fault; post-mortem debugging. Continue or step restarts the program.")

	case protocol.RestartNotice:
		c.println(c.style.info.Render(symbolInfo) + " Restarting")

	case protocol.BreakpointCreate:
		text := fmt.Sprintf(" Breakpoint %d at %s:%d", e.Bpnum, e.Filename, e.Line)
		if e.Temporary {
			text += " (temporary)"
		}
		if e.Condition != "" {
			text += " if " + e.Condition
		}
		c.println(c.style.ok.Render(symbolOK) + text)
	case protocol.BreakpointEnable:
		c.println(c.style.ok.Render(symbolOK) + fmt.Sprintf(" Enabled breakpoint %d", e.Bpnum))
	case protocol.BreakpointDisable:
		c.println(c.style.ok.Render(symbolOK) + fmt.Sprintf(" Disabled breakpoint %d", e.Bpnum))
	case protocol.BreakpointIgnore:
		c.println(c.style.ok.Render(symbolOK) + fmt.Sprintf(" Will ignore next %d crossings of breakpoint %d", e.Count, e.Bpnum))
	case protocol.BreakpointClear:
		c.println(c.style.ok.Render(symbolOK) + fmt.Sprintf(" Deleted breakpoint %d", e.Bpnum))
	case protocol.BreakpointCondition:
		if e.Condition == "" {
			c.println(c.style.ok.Render(symbolOK) + fmt.Sprintf(" Breakpoint %d is now unconditional", e.Bpnum))
		} else {
			c.println(c.style.ok.Render(symbolOK) + fmt.Sprintf(" Breakpoint %d stops only if %s", e.Bpnum, e.Condition))
		}

	case protocol.Info:
		c.println(c.style.info.Render(symbolInfo) + " " + e.Message)
	case protocol.Warning:
		c.println(c.style.warn.Render(symbolWarn) + " " + e.Message)
	case protocol.Error:
		c.println(c.style.err.Render(symbolError) + " " + e.Message)

	case protocol.Closed:
		c.paused = false
		return

	default:
		c.logger.Debug("unhandled event", "event", ev.EventName())
		return
	}

	if c.paused {
		c.showPrompt()
	}
}

// renderStop prints the current frame and its source line.
func (c *Console) renderStop(stack protocol.Stack) {
	cur, ok := stack.Current()
	if !ok {
		c.println(c.style.muted.Render("(no frame)"))
		return
	}
	c.println(c.style.bold.Render(fmt.Sprintf("> %s:%d in %s", cur.Frame.Filename, cur.Line, cur.Frame.Function)))
	if text := c.src.Line(cur.Frame.Filename, cur.Line); text != "" {
		c.println(c.style.current.Render(symbolHere + " " + strings.TrimSpace(text)))
	}
}
