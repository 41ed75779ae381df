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

package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/bugjar/internal/commands/shared"
)

func TestLocalCommand_RunsScriptWithConsole(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	path := filepath.Join(t.TempDir(), "app.bj")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\ny = x + 1\n"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader("quit\n"))
	cmd.SetArgs([]string{"--no-watch", path})

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Debugging session terminated")
}

func TestLocalCommand_MissingScript(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := NewCommand()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing.bj")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, shared.ExitScriptNotFound, shared.ExitCode(err))
}
