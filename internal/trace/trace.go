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

// Package trace is the contract between a traced program and the engine
// that observes it.
//
// The program reports four kinds of event through a Tracer. A hook that
// returns a non-nil error aborts the program: the error must travel back out
// of the program's run function unchanged so the caller can inspect it.
package trace

import (
	"context"
	"fmt"
)

// ModuleFunc is the function name of top-level frames.
const ModuleFunc = "<module>"

// Frame is one activation of a module or function.
type Frame struct {
	// Function is the executing function's name, or ModuleFunc.
	Function string
	// Filename is the canonical source file.
	Filename string
	// Line is the line currently executing.
	Line int
	// DefLine is the line of the function definition, 0 for modules.
	DefLine int

	Locals   map[string]any
	Globals  map[string]any
	Builtins map[string]any

	// Back is the calling frame, nil for the outermost one.
	Back *Frame
}

// Chain returns the frames from the outermost caller down to f.
func (f *Frame) Chain() []*Frame {
	var chain []*Frame
	for cur := f; cur != nil; cur = cur.Back {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Tracer receives execution events.
type Tracer interface {
	// Call is reported after a frame is created, before its first line.
	Call(f *Frame, args map[string]any) error
	// Line is reported before each statement runs.
	Line(f *Frame) error
	// Return is reported when a frame finishes normally.
	Return(f *Frame, value any) error
	// Exception is reported in every frame a fault passes through.
	Exception(f *Frame, fault *Fault) error
}

// Target is a program the engine can run under a Tracer.
type Target interface {
	// Main returns the canonical path of the entry file.
	Main() string
	// Run executes the program from the start with the given arguments.
	Run(ctx context.Context, tr Tracer, args []string) error
}

// Fault is an error raised by the traced program itself.
type Fault struct {
	// Name classifies the fault, e.g. "RuntimeError".
	Name string
	// Value is the fault's message.
	Value string
	// Frame is the innermost frame, where the fault was raised.
	Frame *Frame
}

func (f *Fault) Error() string {
	if f.Frame != nil {
		return fmt.Sprintf("%s: %s (%s:%d)", f.Name, f.Value, f.Frame.Filename, f.Frame.Line)
	}
	return fmt.Sprintf("%s: %s", f.Name, f.Value)
}

// NopTracer ignores every event.
type NopTracer struct{}

func (NopTracer) Call(*Frame, map[string]any) error { return nil }
func (NopTracer) Line(*Frame) error                 { return nil }
func (NopTracer) Return(*Frame, any) error          { return nil }
func (NopTracer) Exception(*Frame, *Fault) error    { return nil }

// Evaluator is implemented by targets that can evaluate breakpoint
// conditions in the scope of a frame.
type Evaluator interface {
	Condition(f *Frame, expr string) (bool, error)
}
