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

// Package session holds the setup shared by the commands that start or
// attach to a debugging session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/bugjar/internal/commands/shared"
	"github.com/tombee/bugjar/internal/config"
	"github.com/tombee/bugjar/internal/engine"
	"github.com/tombee/bugjar/internal/listener"
	"github.com/tombee/bugjar/internal/script"
	"github.com/tombee/bugjar/internal/source"
	"github.com/tombee/bugjar/internal/tracing"
	bugjarerrors "github.com/tombee/bugjar/pkg/errors"
)

// Runtime is an engine plus the resources started for it.
type Runtime struct {
	Engine *engine.Engine
	Source *source.Cache

	logger  *slog.Logger
	closers []func(context.Context) error
}

// LoadConfig loads the file named by --config and applies changed flags.
func LoadConfig(apply func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(shared.GetConfigPath())
	if err != nil {
		return nil, shared.NewConfigError("invalid configuration", err)
	}
	if apply != nil {
		apply(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, shared.NewConfigError("invalid flags", err)
		}
	}
	return cfg, nil
}

// Start builds an engine for scriptPath listening on ln, along with the
// source watcher, tracing provider and metrics endpoint cfg asks for.
// Close releases them.
func Start(ctx context.Context, cfg *config.Config, ln net.Listener, scriptPath string, args []string, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Source: source.NewCache(), logger: logger}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
			ln.Close()
		}
	}()

	prog, err := script.NewProgram(scriptPath, script.Options{Logger: logger})
	if err != nil {
		var notFound *bugjarerrors.NotFoundError
		if errors.As(err, &notFound) {
			return nil, shared.NewScriptNotFoundError("script not found", err)
		}
		return nil, shared.NewSessionError("cannot open script", err)
	}

	provider, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceName:    "bugjar",
		ServiceVersion: version(),
	})
	if err != nil {
		return nil, shared.NewConfigError("cannot set up tracing", err)
	}
	rt.closers = append(rt.closers, provider.Shutdown)

	var watcher *source.Watcher
	if cfg.Engine.WatchSources {
		watcher, err = source.NewWatcher(rt.Source, logger)
		if err != nil {
			// Stale lines after an edit are tolerable; a missing debugger is not.
			logger.Warn("source watching disabled", slog.Any("error", err))
		} else {
			watcher.Start(ctx)
			rt.closers = append(rt.closers, func(context.Context) error { return watcher.Stop() })
			if err := watcher.Track(prog.Main()); err != nil {
				logger.Warn("cannot watch script directory", slog.Any("error", err))
			}
		}
	}

	if cfg.Metrics.Addr != "" {
		shutdown, err := serveMetrics(cfg.Metrics.Addr, logger)
		if err != nil {
			return nil, shared.NewConfigError("cannot serve metrics", err)
		}
		rt.closers = append(rt.closers, shutdown)
	}

	rt.Engine, err = engine.New(engine.Options{
		Listener:  ln,
		Target:    prog,
		Args:      args,
		Source:    rt.Source,
		Watcher:   watcher,
		Skip:      cfg.Engine.Skip,
		QueueSize: cfg.Engine.QueueSize,
		ReadChunk: cfg.Engine.ReadChunk,
		Logger:    logger,
	})
	if err != nil {
		return nil, shared.NewConfigError("invalid engine settings", err)
	}

	ok = true
	return rt, nil
}

// Listen opens the engine's listener from cfg.
func Listen(cfg *config.Config) (net.Listener, error) {
	ln, err := listener.New(cfg.Listen)
	if err != nil {
		return nil, shared.NewConfigError("cannot listen for controllers", err)
	}
	return ln, nil
}

// Close stops everything Start started, in reverse order.
func (r *Runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			r.logger.Warn("shutdown step failed", slog.Any("error", err))
		}
	}
	r.closers = nil
}

func serveMetrics(addr string, logger *slog.Logger) (func(context.Context) error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return srv.Shutdown, nil
}

func version() string {
	v, _, _ := shared.GetVersion()
	return v
}
