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
)

// Event names as they appear on the wire.
const (
	EventBootstrap           = "bootstrap"
	EventBreakpointCreate    = "breakpoint_create"
	EventBreakpointEnable    = "breakpoint_enable"
	EventBreakpointDisable   = "breakpoint_disable"
	EventBreakpointIgnore    = "breakpoint_ignore"
	EventBreakpointClear     = "breakpoint_clear"
	EventBreakpointCondition = "breakpoint_condition"
	EventStack               = "stack"
	EventCall                = "call"
	EventReturn              = "return"
	EventLine                = "line"
	EventException           = "exception"
	EventRestart             = "restart"
	EventPostmortem          = "postmortem"
	EventInfo                = "info"
	EventWarning             = "warning"
	EventError               = "error"
	// EventClose is synthesised by the proxy's receive loop when the engine
	// goes away.
	EventClose = "close"
)

// Event is an engine notification.
type Event interface {
	EventName() string
}

// BreakpointInfo is the full description of a breakpoint sent on bootstrap.
type BreakpointInfo struct {
	Bpnum     int    `json:"bpnum"`
	Filename  string `json:"filename"`
	Line      int    `json:"line"`
	Temporary bool   `json:"temporary"`
	Enabled   bool   `json:"enabled"`
	Funcname  string `json:"funcname"`
	Ignore    int    `json:"ignore,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Bootstrap carries the engine's complete breakpoint table to a newly bound
// controller.
type Bootstrap struct {
	Breakpoints []BreakpointInfo `json:"breakpoints"`
}

// BreakpointCreate announces a new breakpoint.
type BreakpointCreate struct {
	Bpnum     int    `json:"bpnum"`
	Filename  string `json:"filename"`
	Line      int    `json:"line"`
	Temporary bool   `json:"temporary"`
	Funcname  string `json:"funcname"`
	Condition string `json:"condition,omitempty"`
}

// BreakpointEnable announces an enabled breakpoint.
type BreakpointEnable struct {
	Bpnum int `json:"bpnum"`
}

// BreakpointDisable announces a disabled breakpoint.
type BreakpointDisable struct {
	Bpnum int `json:"bpnum"`
}

// BreakpointIgnore announces a new ignore count.
type BreakpointIgnore struct {
	Bpnum int `json:"bpnum"`
	Count int `json:"count"`
}

// BreakpointClear announces a removed breakpoint.
type BreakpointClear struct {
	Bpnum int `json:"bpnum"`
}

// BreakpointCondition announces a changed breakpoint condition.
type BreakpointCondition struct {
	Bpnum     int    `json:"bpnum"`
	Condition string `json:"condition"`
}

// FrameInfo describes one frame of a paused stack. Scope values are text
// representations, not live values.
type FrameInfo struct {
	Filename string            `json:"filename"`
	Function string            `json:"function"`
	Locals   map[string]string `json:"locals"`
	Globals  map[string]string `json:"globals"`
	Builtins map[string]string `json:"builtins"`
	Current  bool              `json:"current"`
}

// StackEntry pairs a line number with its frame. On the wire it is a
// two-element array: [line, {frame}].
type StackEntry struct {
	Line  int
	Frame FrameInfo
}

// MarshalJSON implements json.Marshaler.
func (s StackEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Line, s.Frame})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StackEntry) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return fmt.Errorf("stack entry: expected 2 elements, got %d", len(parts))
	}
	if err := json.Unmarshal(parts[0], &s.Line); err != nil {
		return fmt.Errorf("stack entry line: %w", err)
	}
	if err := json.Unmarshal(parts[1], &s.Frame); err != nil {
		return fmt.Errorf("stack entry frame: %w", err)
	}
	return nil
}

// Stack is the full stack at the current pause, outermost frame first.
type Stack struct {
	Stack []StackEntry `json:"frames"`
}

// Current returns the entry flagged as current, if any.
func (s Stack) Current() (StackEntry, bool) {
	for _, e := range s.Stack {
		if e.Frame.Current {
			return e, true
		}
	}
	return StackEntry{}, false
}

// Call reports entry into a frame the engine stopped in.
type Call struct {
	Args map[string]string `json:"args"`
}

// ReturnValue reports a frame about to return.
type ReturnValue struct {
	Retval string `json:"retval"`
}

// Line reports the line the engine stopped at.
type Line struct {
	Filename string `json:"filename"`
	Line     int    `json:"line"`
}

// Exception reports a fault passing through a frame.
type Exception struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RestartNotice reports that the program is being relaunched.
type RestartNotice struct{}

// Postmortem reports that the program died with an uncaught fault.
type Postmortem struct{}

// Info is an informational message.
type Info struct {
	Message string `json:"message"`
}

// Warning is a non-fatal problem.
type Warning struct {
	Message string `json:"message"`
}

// Error reports a command that failed.
type Error struct {
	Message string `json:"message"`
}

// Closed is the proxy-side marker for a finished connection.
type Closed struct{}

func (Bootstrap) EventName() string           { return EventBootstrap }
func (BreakpointCreate) EventName() string    { return EventBreakpointCreate }
func (BreakpointEnable) EventName() string    { return EventBreakpointEnable }
func (BreakpointDisable) EventName() string   { return EventBreakpointDisable }
func (BreakpointIgnore) EventName() string    { return EventBreakpointIgnore }
func (BreakpointClear) EventName() string     { return EventBreakpointClear }
func (BreakpointCondition) EventName() string { return EventBreakpointCondition }
func (Stack) EventName() string               { return EventStack }
func (Call) EventName() string                { return EventCall }
func (ReturnValue) EventName() string         { return EventReturn }
func (Line) EventName() string                { return EventLine }
func (Exception) EventName() string           { return EventException }
func (RestartNotice) EventName() string       { return EventRestart }
func (Postmortem) EventName() string          { return EventPostmortem }
func (Info) EventName() string                { return EventInfo }
func (Warning) EventName() string             { return EventWarning }
func (Error) EventName() string               { return EventError }
func (Closed) EventName() string              { return EventClose }

var eventDecoders = map[string]func(json.RawMessage) (Event, error){
	EventBootstrap:           decodeEvent[Bootstrap],
	EventBreakpointCreate:    decodeEvent[BreakpointCreate],
	EventBreakpointEnable:    decodeEvent[BreakpointEnable],
	EventBreakpointDisable:   decodeEvent[BreakpointDisable],
	EventBreakpointIgnore:    decodeEvent[BreakpointIgnore],
	EventBreakpointClear:     decodeEvent[BreakpointClear],
	EventBreakpointCondition: decodeEvent[BreakpointCondition],
	EventStack:               decodeEvent[Stack],
	EventCall:                decodeEvent[Call],
	EventReturn:              decodeEvent[ReturnValue],
	EventLine:                decodeEvent[Line],
	EventException:           decodeEvent[Exception],
	EventRestart:             decodeEvent[RestartNotice],
	EventPostmortem:          decodeEvent[Postmortem],
	EventInfo:                decodeEvent[Info],
	EventWarning:             decodeEvent[Warning],
	EventError:               decodeEvent[Error],
}

func decodeEvent[T Event](raw json.RawMessage) (Event, error) {
	var ev T
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// ParseEvent interprets a Message as an Event.
func ParseEvent(msg Message) (Event, error) {
	decode, ok := eventDecoders[msg.Name]
	if !ok {
		return nil, fmt.Errorf("unknown event %q", msg.Name)
	}
	ev, err := decode(msg.Args)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", msg.Name, err)
	}
	return ev, nil
}

// EncodeEvent serialises an event as a frame.
func EncodeEvent(ev Event) ([]byte, error) {
	return Encode(ev.EventName(), ev)
}
