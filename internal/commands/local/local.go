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

// Package local implements "bugjar local": debug a script with the engine
// and the console in one process.
package local

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/bugjar/internal/commands/jar"
	"github.com/tombee/bugjar/internal/commands/session"
	"github.com/tombee/bugjar/internal/commands/shared"
	"github.com/tombee/bugjar/internal/config"
	"github.com/tombee/bugjar/internal/proxy"
)

// NewCommand creates the local command.
func NewCommand() *cobra.Command {
	var engineFlags session.EngineFlags

	cmd := &cobra.Command{
		Use:   "local [flags] SCRIPT [ARGS...]",
		Short: "Debug a script with a console in this terminal",
		Long: `Run SCRIPT under the session engine and attach a console to it
directly. The engine listens on an ephemeral loopback port that nothing else
is told about.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := session.LoadConfig(func(cfg *config.Config) {
				engineFlags.Apply(cfg)
			})
			if err != nil {
				return err
			}
			return run(cmd, cfg, args[0], args[1:])
		},
	}
	cmd.Flags().SetInterspersed(false)
	engineFlags.Register(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config, scriptPath string, args []string) error {
	logger := shared.NewLogger(cfg.Log, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return shared.NewSessionError("cannot listen on loopback", err)
	}
	rt, err := session.Start(ctx, cfg, ln, scriptPath, args, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	served := make(chan error, 1)
	go func() { served <- rt.Engine.Serve(ctx) }()

	p, err := proxy.Dial(ctx, "tcp", rt.Engine.Addr().String(), proxy.Options{
		DialTimeout: cfg.Controller.DialTimeout,
		ChunkSize:   cfg.Engine.ReadChunk,
		QueueSize:   cfg.Engine.QueueSize,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		<-served
		return shared.NewConnectError("cannot reach engine", err)
	}
	defer p.Close()

	consoleErr := jar.Attach(ctx, p, cmd, logger)
	// Detaching from a local session ends it; nobody else can connect.
	cancel()
	if err := <-served; err != nil {
		return shared.NewSessionError("debugging session failed", err)
	}
	if consoleErr != nil {
		return consoleErr
	}
	return nil
}
