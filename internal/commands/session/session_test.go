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
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/bugjar/internal/commands/shared"
	"github.com/tombee/bugjar/internal/config"
	bugjarlog "github.com/tombee/bugjar/internal/log"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{"BUGJAR_HOST", "BUGJAR_PORT", "BUGJAR_SOCKET", "BUGJAR_SKIP", "BUGJAR_METRICS_ADDR", "BUGJAR_TRACING"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)
}

func TestLoadConfig_FlagsOverrideOnlyWhenSet(t *testing.T) {
	isolate(t)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var endpoint EndpointFlags
	var engineFlags EngineFlags
	var dial DialFlags
	endpoint.Register(fs)
	engineFlags.Register(fs)
	dial.Register(fs)
	require.NoError(t, fs.Parse([]string{"--port", "4000", "--skip", "lib/**", "--no-watch", "--timeout", "2s"}))

	cfg, err := LoadConfig(func(cfg *config.Config) {
		endpoint.ApplyListen(cfg)
		endpoint.ApplyController(cfg)
		engineFlags.Apply(cfg)
		dial.Apply(cfg)
	})
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Listen.Port)
	assert.Equal(t, 4000, cfg.Controller.Port)
	assert.Equal(t, "localhost", cfg.Listen.Host)
	assert.Equal(t, []string{"lib/**"}, cfg.Engine.Skip)
	assert.False(t, cfg.Engine.WatchSources)
	assert.False(t, cfg.Listen.AllowRemote)
	assert.Equal(t, 2*time.Second, cfg.Controller.DialTimeout)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoadConfig_InvalidFlags(t *testing.T) {
	isolate(t)

	_, err := LoadConfig(func(cfg *config.Config) { cfg.Listen.Port = 70000 })
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
}

func TestLoadConfig_BadFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [\n"), 0o600))
	shared.SetConfigPathForTest(path)

	_, err := LoadConfig(nil)
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
}

func TestStart_MissingScript(t *testing.T) {
	isolate(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	_, err = Start(context.Background(), config.Default(), ln, filepath.Join(t.TempDir(), "nope.bj"), nil, bugjarlog.Discard())
	require.Error(t, err)
	assert.Equal(t, shared.ExitScriptNotFound, shared.ExitCode(err))

	// The listener is released on failure.
	_, err = ln.Accept()
	assert.Error(t, err)
}

func TestStart_ServesMetrics(t *testing.T) {
	isolate(t)
	script := filepath.Join(t.TempDir(), "app.bj")
	require.NoError(t, os.WriteFile(script, []byte("x = 1\n"), 0o644))

	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	metricsAddr := probe.Addr().String()
	require.NoError(t, probe.Close())

	cfg := config.Default()
	cfg.Metrics.Addr = metricsAddr
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	rt, err := Start(context.Background(), cfg, ln, script, []string{"a"}, bugjarlog.Discard())
	require.NoError(t, err)
	defer rt.Close()
	defer ln.Close()
	assert.NotEmpty(t, rt.Engine.SessionID())

	resp, err := http.Get("http://" + metricsAddr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}
