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
	"strings"
)

// CommandType identifies a console command.
type CommandType int

const (
	CommandBreak CommandType = iota
	CommandTBreak
	CommandEnable
	CommandDisable
	CommandIgnore
	CommandCondition
	CommandClear
	CommandStep
	CommandNext
	CommandReturn
	CommandUntil
	CommandContinue
	CommandUp
	CommandDown
	CommandRestart
	CommandQuit
	CommandBreakpoints
	CommandWhere
	CommandPrint
	CommandList
	CommandInspect
	CommandHelp
)

// Command is one parsed input line.
type Command struct {
	Type CommandType
	Args []string
	// Rest is the raw text after the command word, used by inspect and by
	// conditions.
	Rest string
}

var aliases = map[string]CommandType{
	"break": CommandBreak, "b": CommandBreak,
	"tbreak":    CommandTBreak,
	"enable":    CommandEnable,
	"disable":   CommandDisable,
	"ignore":    CommandIgnore,
	"condition": CommandCondition,
	"clear":     CommandClear, "cl": CommandClear,
	"step": CommandStep, "s": CommandStep,
	"next": CommandNext, "n": CommandNext,
	"return": CommandReturn, "r": CommandReturn,
	"until": CommandUntil, "u": CommandUntil, "unt": CommandUntil,
	"continue": CommandContinue, "c": CommandContinue, "cont": CommandContinue,
	"up":      CommandUp,
	"down":    CommandDown,
	"restart": CommandRestart, "run": CommandRestart,
	"quit": CommandQuit, "q": CommandQuit, "exit": CommandQuit,
	"breakpoints": CommandBreakpoints, "bl": CommandBreakpoints,
	"where": CommandWhere, "bt": CommandWhere, "w": CommandWhere,
	"print": CommandPrint, "p": CommandPrint,
	"list": CommandList, "l": CommandList,
	"inspect": CommandInspect, "i": CommandInspect,
	"help": CommandHelp, "h": CommandHelp, "?": CommandHelp,
}

// argCount is the accepted number of arguments per command, min and max.
// A max of -1 means unbounded.
var argCount = map[CommandType][2]int{
	CommandBreak:     {1, -1},
	CommandTBreak:    {1, 1},
	CommandEnable:    {1, 1},
	CommandDisable:   {1, 1},
	CommandIgnore:    {2, 2},
	CommandCondition: {1, -1},
	CommandClear:     {1, 1},
	CommandRestart:   {0, -1},
	CommandPrint:     {1, 1},
	CommandInspect:   {1, -1},
}

// ParseCommand parses one input line.
func ParseCommand(line string) (*Command, error) {
	line = strings.TrimSpace(line)
	word, rest, _ := strings.Cut(line, " ")
	if word == "" {
		return nil, fmt.Errorf("empty command")
	}

	typ, ok := aliases[strings.ToLower(word)]
	if !ok {
		return nil, fmt.Errorf("unknown command: %s (type 'help' for commands)", word)
	}

	cmd := &Command{Type: typ, Args: strings.Fields(rest), Rest: strings.TrimSpace(rest)}
	bounds, ok := argCount[typ]
	if !ok {
		bounds = [2]int{0, 0}
	}
	if n := len(cmd.Args); n < bounds[0] || (bounds[1] >= 0 && n > bounds[1]) {
		return nil, fmt.Errorf("%s: wrong number of arguments (type 'help' for usage)", word)
	}
	return cmd, nil
}
