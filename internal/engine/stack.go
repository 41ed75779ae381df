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
	"fmt"
	"reflect"
	"strconv"

	"github.com/davecgh/go-spew/spew"

	"github.com/tombee/bugjar/internal/protocol"
)

// reprConfig renders composite values. Output must not depend on map order
// or pointer values so repeated snapshots of the same state are identical.
var reprConfig = spew.ConfigState{
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	DisableMethods:          true,
	SortKeys:                true,
}

// stack snapshots every captured frame. Values are rendered eagerly, so the
// snapshot stays valid after the program resumes.
func (e *Engine) stack() protocol.Stack {
	entries := make([]protocol.StackEntry, 0, len(e.frames))
	for i, f := range e.frames {
		entries = append(entries, protocol.StackEntry{
			Line: f.Line,
			Frame: protocol.FrameInfo{
				Filename: f.Filename,
				Function: f.Function,
				Locals:   reprScope(f.Locals),
				Globals:  reprScope(f.Globals),
				Builtins: reprScope(f.Builtins),
				Current:  i == e.curIndex,
			},
		})
	}
	return protocol.Stack{Stack: entries}
}

func reprScope(scope map[string]any) map[string]string {
	out := make(map[string]string, len(scope))
	for name, v := range scope {
		out[name] = repr(v)
	}
	return out
}

// repr renders a value the way the script language would show it.
func repr(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return strconv.Quote(x)
	case bool, int, int64, float64:
		return fmt.Sprint(x)
	}
	if reflect.ValueOf(v).Kind() == reflect.Func {
		return "<function>"
	}
	return reprConfig.Sprintf("%v", v)
}
