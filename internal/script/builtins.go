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

package script

import "strconv"

func newBuiltins() map[string]any {
	return map[string]any{
		"str":  func(v any) string { return display(v) },
		"repr": func(v any) string { return repr(v) },
		"push": func(list []any, v any) []any {
			out := make([]any, len(list), len(list)+1)
			copy(out, list)
			return append(out, v)
		},
	}
}

func repr(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case Function:
		return "<function>"
	}
	return display(v)
}
