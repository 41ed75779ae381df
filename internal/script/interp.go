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

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/tombee/bugjar/internal/source"
	"github.com/tombee/bugjar/internal/trace"
)

// Function is the value a def statement binds. Expressions call it like
// any other function.
type Function func(args ...any) (any, error)

type interp struct {
	ctx      context.Context
	tr       trace.Tracer
	prog     *Program
	globals  map[string]any
	builtins map[string]any
	cur      *trace.Frame
	depth    int

	// abort holds the error of a nested call so it survives the
	// expression engine's error wrapping.
	abort error
}

func (in *interp) runModule(mod *module, back *trace.Frame) error {
	frame := &trace.Frame{
		Function: trace.ModuleFunc,
		Filename: mod.filename,
		Locals:   in.globals,
		Globals:  in.globals,
		Builtins: in.builtins,
		Back:     back,
	}
	_, err := in.runFrame(frame, mod.body, nil)
	return err
}

// runFrame reports Call, runs body, then reports Return or Exception.
func (in *interp) runFrame(frame *trace.Frame, body []*stmt, args map[string]any) (any, error) {
	if in.depth >= in.prog.maxDepth {
		return nil, &trace.Fault{Name: "RecursionError", Value: "maximum call depth exceeded", Frame: in.cur}
	}
	prev := in.cur
	in.cur = frame
	in.depth++
	defer func() {
		in.cur = prev
		in.depth--
	}()

	if err := in.tr.Call(frame, args); err != nil {
		return nil, err
	}

	ret, _, err := in.exec(body, frame)
	if err != nil {
		var fault *trace.Fault
		if errors.As(err, &fault) {
			if herr := in.tr.Exception(frame, fault); herr != nil {
				return nil, herr
			}
		}
		return nil, err
	}

	if err := in.tr.Return(frame, ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// exec runs a block. returned reports that a return statement ended it.
func (in *interp) exec(block []*stmt, frame *trace.Frame) (ret any, returned bool, err error) {
	for _, s := range block {
		if err := in.ctx.Err(); err != nil {
			return nil, false, err
		}
		frame.Line = s.line
		if err := in.tr.Line(frame); err != nil {
			return nil, false, err
		}

		ret, returned, err = in.run(s, frame)
		if err != nil || returned {
			return ret, returned, err
		}
	}
	return nil, false, nil
}

func (in *interp) run(s *stmt, frame *trace.Frame) (any, bool, error) {
	switch s.kind {
	case stmtPass:

	case stmtExpr:
		if _, err := in.eval(s.expr, frame); err != nil {
			return nil, false, err
		}

	case stmtAssign:
		v, err := in.eval(s.expr, frame)
		if err != nil {
			return nil, false, err
		}
		frame.Locals[s.name] = v

	case stmtPrint:
		v, err := in.eval(s.expr, frame)
		if err != nil {
			return nil, false, err
		}
		fmt.Fprintln(in.prog.stdout, display(v))

	case stmtDef:
		frame.Locals[s.name] = in.function(s, frame.Filename)

	case stmtIf:
		v, err := in.eval(s.expr, frame)
		if err != nil {
			return nil, false, err
		}
		if truthy(v) {
			return in.exec(s.body, frame)
		}
		return in.exec(s.orelse, frame)

	case stmtWhile:
		for first := true; ; first = false {
			if !first {
				if err := in.relooped(s, frame); err != nil {
					return nil, false, err
				}
			}
			v, err := in.eval(s.expr, frame)
			if err != nil {
				return nil, false, err
			}
			if !truthy(v) {
				return nil, false, nil
			}
			if ret, returned, err := in.exec(s.body, frame); err != nil || returned {
				return ret, returned, err
			}
		}

	case stmtFor:
		v, err := in.eval(s.expr, frame)
		if err != nil {
			return nil, false, err
		}
		items, err := iterate(v)
		if err != nil {
			return nil, false, &trace.Fault{Name: "TypeError", Value: err.Error(), Frame: frame}
		}
		for idx, item := range items {
			if idx > 0 {
				if err := in.relooped(s, frame); err != nil {
					return nil, false, err
				}
			}
			frame.Locals[s.name] = item
			if ret, returned, err := in.exec(s.body, frame); err != nil || returned {
				return ret, returned, err
			}
		}

	case stmtReturn:
		if s.expr == "" {
			return nil, true, nil
		}
		v, err := in.eval(s.expr, frame)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil

	case stmtRaise:
		v, err := in.eval(s.expr, frame)
		if err != nil {
			return nil, false, err
		}
		return nil, false, &trace.Fault{Name: "RuntimeError", Value: display(v), Frame: frame}

	case stmtLoad:
		v, err := in.eval(s.expr, frame)
		if err != nil {
			return nil, false, err
		}
		name, ok := v.(string)
		if !ok {
			return nil, false, &trace.Fault{Name: "TypeError", Value: fmt.Sprintf("load needs a file name, got %T", v), Frame: frame}
		}
		if !filepath.IsAbs(name) {
			name = filepath.Join(filepath.Dir(frame.Filename), name)
		}
		mod, err := in.prog.load(source.Canonical(name))
		if err != nil {
			return nil, false, &trace.Fault{Name: "ImportError", Value: err.Error(), Frame: frame}
		}
		if err := in.runModule(mod, frame); err != nil {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// relooped reports the loop header line again before the next iteration.
func (in *interp) relooped(s *stmt, frame *trace.Frame) error {
	if err := in.ctx.Err(); err != nil {
		return err
	}
	frame.Line = s.line
	return in.tr.Line(frame)
}

func (in *interp) function(def *stmt, filename string) Function {
	return func(args ...any) (any, error) {
		v, err := in.call(def, filename, args)
		if err != nil {
			in.abort = err
			return nil, err
		}
		return v, nil
	}
}

func (in *interp) call(def *stmt, filename string, args []any) (any, error) {
	if len(args) != len(def.params) {
		return nil, &trace.Fault{
			Name:  "TypeError",
			Value: fmt.Sprintf("%s() takes %d arguments (%d given)", def.name, len(def.params), len(args)),
			Frame: in.cur,
		}
	}

	locals := make(map[string]any, len(def.params))
	argMap := make(map[string]any, len(def.params))
	for i, p := range def.params {
		locals[p] = args[i]
		argMap[p] = args[i]
	}
	frame := &trace.Frame{
		Function: def.name,
		Filename: filename,
		Line:     def.line,
		DefLine:  def.line,
		Locals:   locals,
		Globals:  in.globals,
		Builtins: in.builtins,
		Back:     in.cur,
	}
	return in.runFrame(frame, def.body, argMap)
}

func (in *interp) eval(expression string, frame *trace.Frame) (any, error) {
	prog, err := in.prog.compile(expression)
	if err != nil {
		return nil, &trace.Fault{Name: "SyntaxError", Value: firstLine(err.Error()), Frame: frame}
	}

	in.abort = nil
	v, err := expr.Run(prog, scope(frame))
	if in.abort != nil {
		err, in.abort = in.abort, nil
		return nil, err
	}
	if err != nil {
		return nil, &trace.Fault{Name: "EvalError", Value: firstLine(err.Error()), Frame: frame}
	}
	return v, nil
}

// scope merges the visible names of a frame, innermost winning.
func scope(f *trace.Frame) map[string]any {
	env := make(map[string]any, len(f.Builtins)+len(f.Globals)+len(f.Locals))
	for k, v := range f.Builtins {
		env[k] = v
	}
	for k, v := range f.Globals {
		env[k] = v
	}
	for k, v := range f.Locals {
		env[k] = v
	}
	return env
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case float64:
		return x != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32:
		return rv.Float() != 0
	}
	return true
}

func iterate(v any) ([]any, error) {
	if n, ok := v.(int); ok {
		items := make([]any, n)
		for i := range items {
			items[i] = i
		}
		return items, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return items, nil
	case reflect.Map:
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, fmt.Sprint(k.Interface()))
		}
		sort.Strings(keys)
		items := make([]any, len(keys))
		for i, k := range keys {
			items[i] = k
		}
		return items, nil
	case reflect.String:
		var items []any
		for _, r := range rv.String() {
			items = append(items, string(r))
		}
		return items, nil
	}
	return nil, fmt.Errorf("%T is not iterable", v)
}

func display(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = repr(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}
