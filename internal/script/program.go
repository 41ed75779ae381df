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
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	bugjarlog "github.com/tombee/bugjar/internal/log"
	"github.com/tombee/bugjar/internal/source"
	"github.com/tombee/bugjar/internal/trace"
	bugjarerrors "github.com/tombee/bugjar/pkg/errors"
)

// DefaultMaxDepth bounds function call nesting.
const DefaultMaxDepth = 200

// Options configures a Program.
type Options struct {
	// Stdout receives print output. Default: os.Stdout
	Stdout io.Writer

	// MaxDepth bounds call nesting. Default: DefaultMaxDepth
	MaxDepth int

	Logger *slog.Logger
}

// Program is a script that can be run repeatedly. Each run re-reads its
// source files so edits are picked up on restart. Compiled expressions are
// cached across runs.
type Program struct {
	path     string
	stdout   io.Writer
	maxDepth int
	logger   *slog.Logger

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewProgram returns a Program for the script at path.
func NewProgram(path string, opts Options) (*Program, error) {
	canonical := source.Canonical(path)
	if _, err := os.Stat(canonical); err != nil {
		if os.IsNotExist(err) {
			return nil, &bugjarerrors.NotFoundError{Resource: "script", ID: canonical}
		}
		return nil, bugjarerrors.Wrapf(err, "opening %s", canonical)
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Program{
		path:     canonical,
		stdout:   opts.Stdout,
		maxDepth: opts.MaxDepth,
		logger:   bugjarlog.WithComponent(opts.Logger, "script"),
		cache:    make(map[string]*vm.Program),
	}, nil
}

// Main implements trace.Target.
func (p *Program) Main() string {
	return p.path
}

// Check parses the entry file without running it.
func (p *Program) Check() error {
	_, err := p.load(p.path)
	return err
}

// Run implements trace.Target. Faults raised by the script are returned as
// *trace.Fault; errors returned by tracer hooks are returned unchanged; a
// syntax error in the entry file is returned as *SyntaxError before any
// event is reported.
func (p *Program) Run(ctx context.Context, tr trace.Tracer, args []string) error {
	mod, err := p.load(p.path)
	if err != nil {
		return err
	}

	argv := make([]any, len(args))
	for i, a := range args {
		argv[i] = a
	}
	globals := map[string]any{
		"argv":     argv,
		"__name__": "__main__",
		"__file__": p.path,
	}

	in := &interp{
		ctx:      ctx,
		tr:       tr,
		prog:     p,
		globals:  globals,
		builtins: newBuiltins(),
	}
	p.logger.Debug("running script", slog.String(bugjarlog.FileKey, p.path), slog.Any("args", args))
	return in.runModule(mod, nil)
}

func (p *Program) load(filename string) (*module, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &bugjarerrors.NotFoundError{Resource: "script", ID: filename}
		}
		return nil, bugjarerrors.Wrapf(err, "reading %s", filename)
	}
	return parse(filename, src, func(e string) error {
		_, err := p.compile(e)
		return err
	})
}

func (p *Program) compile(expression string) (*vm.Program, error) {
	p.mu.RLock()
	if prog, ok := p.cache[expression]; ok {
		p.mu.RUnlock()
		return prog, nil
	}
	p.mu.RUnlock()

	prog, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[expression] = prog
	p.mu.Unlock()
	return prog, nil
}

// Eval evaluates a standalone expression against a frame's scopes. The
// engine uses it for breakpoint conditions.
func Eval(f *trace.Frame, expression string) (any, error) {
	prog, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", expression, err)
	}
	return expr.Run(prog, scope(f))
}

// Condition evaluates a breakpoint condition in f and reports whether it
// holds.
func (p *Program) Condition(f *trace.Frame, expression string) (bool, error) {
	v, err := Eval(f, expression)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}
