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

package session

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/tombee/bugjar/internal/config"
)

// EndpointFlags are the --host, --port and --socket flags. Only flags the
// user set override the config file.
type EndpointFlags struct {
	fs     *pflag.FlagSet
	host   string
	port   int
	socket string
}

// Register adds the flags to fs.
func (f *EndpointFlags) Register(fs *pflag.FlagSet) {
	f.fs = fs
	fs.StringVar(&f.host, "host", "localhost", "Engine host")
	fs.IntVarP(&f.port, "port", "p", config.DefaultPort, "Engine TCP port")
	fs.StringVar(&f.socket, "socket", "", "Unix socket path (overrides --host/--port)")
}

// ApplyListen copies set flags into cfg.Listen.
func (f *EndpointFlags) ApplyListen(cfg *config.Config) {
	if f.fs.Changed("host") {
		cfg.Listen.Host = f.host
	}
	if f.fs.Changed("port") {
		cfg.Listen.Port = f.port
	}
	if f.fs.Changed("socket") {
		cfg.Listen.SocketPath = f.socket
	}
}

// ApplyController copies set flags into cfg.Controller.
func (f *EndpointFlags) ApplyController(cfg *config.Config) {
	if f.fs.Changed("host") {
		cfg.Controller.Host = f.host
	}
	if f.fs.Changed("port") {
		cfg.Controller.Port = f.port
	}
	if f.fs.Changed("socket") {
		cfg.Controller.SocketPath = f.socket
	}
}

// EngineFlags tune the engine.
type EngineFlags struct {
	fs          *pflag.FlagSet
	skip        []string
	metricsAddr string
	noWatch     bool
	trace       bool
	allowRemote bool
}

// Register adds the flags to fs.
func (f *EngineFlags) Register(fs *pflag.FlagSet) {
	f.fs = fs
	fs.StringArrayVar(&f.skip, "skip", nil, "Glob of files never to stop in (repeatable)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.BoolVar(&f.noWatch, "no-watch", false, "Do not reload source files when they change on disk")
	fs.BoolVar(&f.trace, "trace", false, "Export OpenTelemetry spans (see tracing in the config file)")
	fs.BoolVar(&f.allowRemote, "allow-remote", false, "Allow binding to non-loopback interfaces")
}

// Apply copies set flags into cfg.
func (f *EngineFlags) Apply(cfg *config.Config) {
	if f.fs.Changed("skip") {
		cfg.Engine.Skip = append(cfg.Engine.Skip, f.skip...)
	}
	if f.fs.Changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if f.noWatch {
		cfg.Engine.WatchSources = false
	}
	if f.trace {
		cfg.Tracing.Enabled = true
	}
	if f.allowRemote {
		cfg.Listen.AllowRemote = true
	}
}

// DialFlags tune how a controller connects.
type DialFlags struct {
	fs      *pflag.FlagSet
	timeout time.Duration
}

// Register adds the flags to fs.
func (f *DialFlags) Register(fs *pflag.FlagSet) {
	f.fs = fs
	fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "How long to keep retrying the connection")
}

// Apply copies set flags into cfg.
func (f *DialFlags) Apply(cfg *config.Config) {
	if f.fs.Changed("timeout") {
		cfg.Controller.DialTimeout = f.timeout
	}
}
