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

package log

import (
	"context"
	"log/slog"
	"time"
)

// CommandRecord describes one wire command handled by the engine.
type CommandRecord struct {
	// Command is the wire name of the command.
	Command string

	// Outcome is the transition the handler chose (stay, resume, ...).
	Outcome string

	// Err is the failure reported back to the controller, if any.
	Err error

	// Started is when the handler began.
	Started time.Time
}

// LogCommand records a handled command. Failed commands log at warn level
// since they are reported to the controller rather than aborting the session.
func LogCommand(logger *slog.Logger, rec CommandRecord) {
	attrs := []slog.Attr{
		slog.String(CommandKey, rec.Command),
		slog.String("outcome", rec.Outcome),
		slog.Int64("duration_ms", time.Since(rec.Started).Milliseconds()),
	}

	level := slog.LevelDebug
	msg := "command handled"
	if rec.Err != nil {
		attrs = append(attrs, Error(rec.Err))
		level = slog.LevelWarn
		msg = "command failed"
	}

	logger.LogAttrs(context.Background(), level, msg, attrs...)
}
