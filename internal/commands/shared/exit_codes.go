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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	bugjarerrors "github.com/tombee/bugjar/pkg/errors"
)

// Exit codes for bugjar commands.
const (
	ExitSuccess        = 0
	ExitSessionFailed  = 1
	ExitInvalidConfig  = 2
	ExitScriptNotFound = 3
	ExitConnectFailed  = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewSessionError reports a debugging session that ended abnormally.
func NewSessionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitSessionFailed, Message: msg, Cause: cause}
}

// NewConfigError reports unusable configuration or flags.
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidConfig, Message: msg, Cause: cause}
}

// NewScriptNotFoundError reports a missing script.
func NewScriptNotFoundError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitScriptNotFound, Message: msg, Cause: cause}
}

// NewConnectError reports an engine that could not be reached.
func NewConnectError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConnectFailed, Message: msg, Cause: cause}
}

// ExitCode returns the exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitSessionFailed
}

// HandleExitError prints err and exits with its code. It returns when err
// is nil.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}

// PrintError writes err and any user-facing suggestion found in its chain.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, RenderError("Error: "+err.Error()))

	var userErr bugjarerrors.UserVisibleError
	if errors.As(err, &userErr) && userErr.IsUserVisible() {
		if suggestion := userErr.Suggestion(); suggestion != "" {
			fmt.Fprintf(w, "\n%s %s\n", Muted.Render("Suggestion:"), suggestion)
		}
	}
}
