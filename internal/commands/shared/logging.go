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
	"io"
	"log/slog"
	"os"

	"github.com/tombee/bugjar/internal/config"
	bugjarlog "github.com/tombee/bugjar/internal/log"
)

// NewLogger builds the process logger from the config file's log section,
// then the environment, then the --verbose and --quiet flags.
func NewLogger(cfg config.LogConfig, out io.Writer) *slog.Logger {
	logCfg := bugjarlog.FromEnv()
	if os.Getenv("BUGJAR_DEBUG") == "" && os.Getenv("BUGJAR_LOG_LEVEL") == "" && os.Getenv("LOG_LEVEL") == "" {
		logCfg.Level = cfg.Level
	}
	if os.Getenv("LOG_FORMAT") == "" {
		logCfg.Format = bugjarlog.Format(cfg.Format)
	}
	logCfg.AddSource = logCfg.AddSource || cfg.AddSource
	if out != nil {
		logCfg.Output = out
	}

	switch {
	case GetVerbose():
		logCfg.Level = "debug"
	case GetQuiet():
		logCfg.Level = "error"
	}
	return bugjarlog.New(logCfg)
}
