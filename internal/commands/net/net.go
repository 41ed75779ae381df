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

// Package net implements "bugjar net": run a script under the session
// engine and serve controllers over the network.
package net

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/bugjar/internal/commands/session"
	"github.com/tombee/bugjar/internal/commands/shared"
	"github.com/tombee/bugjar/internal/config"
)

// NewCommand creates the net command.
func NewCommand() *cobra.Command {
	var endpoint session.EndpointFlags
	var engineFlags session.EngineFlags

	cmd := &cobra.Command{
		Use:   "net [flags] SCRIPT [ARGS...]",
		Short: "Debug a script, waiting for a controller to connect",
		Long: `Run SCRIPT under the session engine. The engine pauses before the first
line and waits for a controller ("bugjar jar") to connect. Controllers may
disconnect and reconnect at any time while the program is paused.

Arguments after SCRIPT are passed to the program.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := session.LoadConfig(func(cfg *config.Config) {
				endpoint.ApplyListen(cfg)
				engineFlags.Apply(cfg)
			})
			if err != nil {
				return err
			}
			return run(cmd, cfg, args[0], args[1:])
		},
	}
	// Everything after SCRIPT belongs to the program.
	cmd.Flags().SetInterspersed(false)
	endpoint.Register(cmd.Flags())
	engineFlags.Register(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config, scriptPath string, args []string) error {
	logger := shared.NewLogger(cfg.Log, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := session.Listen(cfg)
	if err != nil {
		return err
	}
	rt, err := session.Start(ctx, cfg, ln, scriptPath, args, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !shared.GetQuiet() {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderOK(fmt.Sprintf("Waiting for a controller on %s (session %s)",
			rt.Engine.Addr(), rt.Engine.SessionID())))
	}
	logger.Info("session started",
		slog.String("script", scriptPath),
		slog.String("addr", rt.Engine.Addr().String()))

	if err := rt.Engine.Serve(ctx); err != nil {
		return shared.NewSessionError("debugging session failed", err)
	}
	if ctx.Err() != nil && cmd.Context().Err() == nil {
		logger.Info("interrupted")
	}
	return nil
}
