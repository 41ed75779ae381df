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

// Package jar implements "bugjar jar": attach an interactive console to a
// running session engine.
package jar

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/bugjar/internal/commands/session"
	"github.com/tombee/bugjar/internal/commands/shared"
	"github.com/tombee/bugjar/internal/config"
	"github.com/tombee/bugjar/internal/console"
	"github.com/tombee/bugjar/internal/proxy"
)

// NewCommand creates the jar command.
func NewCommand() *cobra.Command {
	var endpoint session.EndpointFlags
	var dial session.DialFlags

	cmd := &cobra.Command{
		Use:   "jar",
		Short: "Connect a console to a running debugging session",
		Long: `Connect to an engine started with "bugjar net" and control it
interactively. The connection is retried until the engine answers or
--timeout passes. Closing the input (Ctrl-D) detaches and leaves the program
paused; "quit" ends the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := session.LoadConfig(func(cfg *config.Config) {
				endpoint.ApplyController(cfg)
				dial.Apply(cfg)
			})
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}
	endpoint.Register(cmd.Flags())
	dial.Register(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	logger := shared.NewLogger(cfg.Log, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	network, addr := cfg.Controller.Network()
	p, err := proxy.Dial(ctx, network, addr, proxy.Options{
		DialTimeout: cfg.Controller.DialTimeout,
		ChunkSize:   cfg.Engine.ReadChunk,
		QueueSize:   cfg.Engine.QueueSize,
		Logger:      logger,
	})
	if err != nil {
		return shared.NewConnectError("cannot reach engine", err)
	}
	defer p.Close()

	return Attach(ctx, p, cmd, logger)
}

// Attach runs a console over p using the command's streams.
func Attach(ctx context.Context, p *proxy.Proxy, cmd *cobra.Command, logger *slog.Logger) error {
	c := console.New(p, console.Options{
		Input:  cmd.InOrStdin(),
		Output: cmd.OutOrStdout(),
		Logger: logger,
	})
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return shared.NewSessionError("console failed", err)
	}
	return nil
}
