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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/bugjar/internal/script"
	"github.com/tombee/bugjar/internal/trace"
)

// frames builds module -> outer -> inner.
func frames() (module, outer, inner *trace.Frame) {
	module = &trace.Frame{Function: trace.ModuleFunc, Filename: "/app/main.bj", Line: 10}
	outer = &trace.Frame{Function: "outer", Filename: "/app/main.bj", Line: 3, Back: module}
	inner = &trace.Frame{Function: "inner", Filename: "/app/lib/util.bj", Line: 7, Back: outer}
	return module, outer, inner
}

func TestStopHere(t *testing.T) {
	module, outer, inner := frames()

	tests := []struct {
		name  string
		set   func(e *Engine)
		frame *trace.Frame
		want  bool
	}{
		{"step stops anywhere", func(e *Engine) { e.setStep() }, inner, true},
		{"next stops in same frame", func(e *Engine) { e.setNext(outer) }, outer, true},
		{"next skips callee", func(e *Engine) { e.setNext(outer) }, inner, false},
		{"next stops in caller", func(e *Engine) { e.setNext(inner) }, outer, true},
		{"return skips own frame", func(e *Engine) { e.setReturn(inner) }, inner, false},
		{"return stops in caller", func(e *Engine) { e.setReturn(inner) }, outer, true},
		{"continue never stops in bottom frame", func(e *Engine) { e.setContinue() }, module, false},
		{"continue never stops in callees", func(e *Engine) { e.setContinue() }, inner, false},
		{"until below target line", func(e *Engine) { e.setUntil(outer); outer.Line = 3 }, outer, false},
		{"until past target line", func(e *Engine) { e.setUntil(outer); outer.Line = 5 }, outer, true},
		{"skipped file", func(e *Engine) { e.setStep(); e.skip = []string{"/app/lib/**"} }, inner, false},
		{"unskipped file", func(e *Engine) { e.setStep(); e.skip = []string{"/app/lib/**"} }, outer, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			module.Line, outer.Line, inner.Line = 10, 3, 7
			e := &Engine{botFrame: module}
			tt.set(e)
			assert.Equal(t, tt.want, e.stopHere(tt.frame))
		})
	}
}

func TestTransitionString(t *testing.T) {
	assert.Equal(t, "await_reconnect", AwaitReconnect.String())
	assert.Equal(t, "Transition(42)", Transition(42).String())
}

func TestRepr(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "None"},
		{"hi", `"hi"`},
		{3, "3"},
		{2.5, "2.5"},
		{true, "true"},
		{script.Function(nil), "<function>"},
		{func(int) int { return 0 }, "<function>"},
		{[]any{1, 2}, "[1 2]"},
		{map[string]any{"b": 2, "a": 1}, "map[a:1 b:2]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, repr(tt.in))
	}
}
