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

package protocol

import (
	"encoding/json"
	"fmt"

	bugjarerrors "github.com/tombee/bugjar/pkg/errors"
)

// Kind identifies a command. The set of kinds is closed.
type Kind int

const (
	KindUnknown Kind = iota
	KindBreak
	KindEnable
	KindDisable
	KindIgnore
	KindClear
	KindCondition
	KindStep
	KindNext
	KindReturn
	KindUntil
	KindContinue
	KindUp
	KindDown
	KindRestart
	KindQuit
	// KindClose is synthesised by the receive loop when the controller goes
	// away. It never arrives over the wire.
	KindClose
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindBreak:     "break",
	KindEnable:    "enable",
	KindDisable:   "disable",
	KindIgnore:    "ignore",
	KindClear:     "clear",
	KindCondition: "condition",
	KindStep:      "step",
	KindNext:      "next",
	KindReturn:    "return",
	KindUntil:     "until",
	KindContinue:  "continue",
	KindUp:        "up",
	KindDown:      "down",
	KindRestart:   "restart",
	KindQuit:      "quit",
	KindClose:     "close",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Command is a controller request. Implementations live in this package only.
type Command interface {
	Kind() Kind
	command()
}

// Break sets a breakpoint. When Line is zero and Funcname is set, the
// breakpoint goes on the definition of that function.
type Break struct {
	Filename  string `json:"filename"`
	Line      int    `json:"line"`
	Temporary bool   `json:"temporary"`
	Funcname  string `json:"funcname,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Enable re-activates a breakpoint.
type Enable struct {
	Bpnum int `json:"bpnum"`
}

// Disable deactivates a breakpoint without removing it.
type Disable struct {
	Bpnum int `json:"bpnum"`
}

// Ignore skips the next Count passes over a breakpoint.
type Ignore struct {
	Bpnum int `json:"bpnum"`
	Count int `json:"count"`
}

// Clear removes a breakpoint.
type Clear struct {
	Bpnum int `json:"bpnum"`
}

// Condition attaches an expression to a breakpoint. An empty Condition
// makes the breakpoint unconditional again.
type Condition struct {
	Bpnum     int    `json:"bpnum"`
	Condition string `json:"condition"`
}

// Step resumes and stops at the next event anywhere.
type Step struct{}

// Next resumes and stops at the next line in the current frame or a caller.
type Next struct{}

// Return resumes and stops when the current frame returns.
type Return struct{}

// Until resumes and stops at a line greater than the current one in the
// current frame, or when it returns.
type Until struct{}

// Continue resumes and stops only at breakpoints.
type Continue struct{}

// Up selects the caller of the current frame for inspection.
type Up struct{}

// Down selects the callee of the current frame for inspection.
type Down struct{}

// Restart relaunches the program. A nil Args keeps the previous arguments.
type Restart struct {
	Args []string `json:"args,omitempty"`
}

// Quit ends the session.
type Quit struct{}

// Close reports that the controller connection ended.
type Close struct{}

// Unknown is a well-formed message whose name matches no command.
type Unknown struct {
	Name string
}

func (Break) Kind() Kind     { return KindBreak }
func (Enable) Kind() Kind    { return KindEnable }
func (Disable) Kind() Kind   { return KindDisable }
func (Ignore) Kind() Kind    { return KindIgnore }
func (Clear) Kind() Kind     { return KindClear }
func (Condition) Kind() Kind { return KindCondition }
func (Step) Kind() Kind      { return KindStep }
func (Next) Kind() Kind      { return KindNext }
func (Return) Kind() Kind    { return KindReturn }
func (Until) Kind() Kind     { return KindUntil }
func (Continue) Kind() Kind  { return KindContinue }
func (Up) Kind() Kind        { return KindUp }
func (Down) Kind() Kind      { return KindDown }
func (Restart) Kind() Kind   { return KindRestart }
func (Quit) Kind() Kind      { return KindQuit }
func (Close) Kind() Kind     { return KindClose }
func (Unknown) Kind() Kind   { return KindUnknown }

func (Break) command()     {}
func (Enable) command()    {}
func (Disable) command()   {}
func (Ignore) command()    {}
func (Clear) command()     {}
func (Condition) command() {}
func (Step) command()      {}
func (Next) command()      {}
func (Return) command()    {}
func (Until) command()     {}
func (Continue) command()  {}
func (Up) command()        {}
func (Down) command()      {}
func (Restart) command()   {}
func (Quit) command()      {}
func (Close) command()     {}
func (Unknown) command()   {}

// commandDecoders maps wire names to argument decoders. Close is absent on
// purpose: a peer cannot forge a disconnect.
var commandDecoders = map[string]func(json.RawMessage) (Command, error){
	"break": func(raw json.RawMessage) (Command, error) {
		var c Break
		if err := decodeArgs(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	},
	"enable":  bpnumCommand(func(n int) Command { return Enable{Bpnum: n} }),
	"disable": bpnumCommand(func(n int) Command { return Disable{Bpnum: n} }),
	"clear":   bpnumCommand(func(n int) Command { return Clear{Bpnum: n} }),
	"ignore": func(raw json.RawMessage) (Command, error) {
		var c Ignore
		if err := decodeArgs(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	},
	"condition": func(raw json.RawMessage) (Command, error) {
		var c Condition
		if err := decodeArgs(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	},
	"step":     bare(Step{}),
	"next":     bare(Next{}),
	"return":   bare(Return{}),
	"until":    bare(Until{}),
	"continue": bare(Continue{}),
	"up":       bare(Up{}),
	"down":     bare(Down{}),
	"quit":     bare(Quit{}),
	"restart": func(raw json.RawMessage) (Command, error) {
		var c Restart
		if err := decodeArgs(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	},
}

// ParseCommand interprets a Message as a Command. Unrecognised names yield
// Unknown rather than an error so the engine can report them; arguments of
// the wrong JSON type yield an error and the frame is dropped. Values are
// not range-checked here: the engine answers bad ones with an error event.
func ParseCommand(msg Message) (Command, error) {
	decode, ok := commandDecoders[msg.Name]
	if !ok {
		return Unknown{Name: msg.Name}, nil
	}
	cmd, err := decode(msg.Args)
	if err != nil {
		return nil, fmt.Errorf("command %s: %w", msg.Name, err)
	}
	return cmd, nil
}

// EncodeCommand serialises a command as a frame.
func EncodeCommand(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case Close:
		return nil, fmt.Errorf("close is not a wire command")
	case Unknown:
		return Encode(c.Name, nil)
	default:
		return Encode(cmd.Kind().String(), cmd)
	}
}

func bare(c Command) func(json.RawMessage) (Command, error) {
	return func(json.RawMessage) (Command, error) { return c, nil }
}

func bpnumCommand(build func(int) Command) func(json.RawMessage) (Command, error) {
	return func(raw json.RawMessage) (Command, error) {
		var args struct {
			Bpnum *int `json:"bpnum"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if args.Bpnum == nil {
			return nil, &bugjarerrors.ValidationError{Field: "bpnum", Message: "is required"}
		}
		return build(*args.Bpnum), nil
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &bugjarerrors.ValidationError{Message: err.Error()}
	}
	return nil
}
