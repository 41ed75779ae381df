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

// Package jq runs jq queries over a paused stack.
package jq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/itchyny/gojq"

	"github.com/tombee/bugjar/internal/protocol"
)

const (
	// DefaultTimeout bounds a single query.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize is the largest stack document accepted (10MB).
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// ErrInputTooLarge is returned when the stack document exceeds the limit.
var ErrInputTooLarge = errors.New("input too large")

// Executor evaluates jq expressions.
type Executor struct {
	timeout      time.Duration
	maxInputSize int
}

// NewExecutor returns an Executor. Zero values select the defaults.
func NewExecutor(timeout time.Duration, maxInputSize int) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInputSize == 0 {
		maxInputSize = DefaultMaxInputSize
	}
	return &Executor{timeout: timeout, maxInputSize: maxInputSize}
}

// Query runs expression against the wire form of stack and returns every
// value it emits.
func (e *Executor) Query(ctx context.Context, expression string, stack protocol.Stack) ([]any, error) {
	code, err := compile(expression)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(stack)
	if err != nil {
		return nil, fmt.Errorf("encoding stack: %w", err)
	}
	if len(data) > e.maxInputSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrInputTooLarge, len(data), e.maxInputSize)
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("decoding stack: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var results []any
	iter := code.RunWithContext(execCtx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("query timed out after %v", e.timeout)
			}
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

// Validate reports whether expression parses and compiles.
func (e *Executor) Validate(expression string) error {
	_, err := compile(expression)
	return err
}

func compile(expression string) (*gojq.Code, error) {
	if expression == "" {
		return nil, errors.New("empty query")
	}
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}
	return code, nil
}
