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

package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bugjarlog "github.com/tombee/bugjar/internal/log"
	bugjarerrors "github.com/tombee/bugjar/pkg/errors"
)

const sample = `# header comment
x = 1

"""
docstring body
"""
def add(a, b)
    '''one line literal'''
    return a + b
end
   # indented comment
print add(x, 2)`

func writeSource(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.bj")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCheckLine(t *testing.T) {
	path := writeSource(t, sample)
	c := NewCache()

	tests := []struct {
		line int
		ok   bool
		why  string
	}{
		{1, false, "comment"},
		{2, true, ""},
		{3, false, "blank"},
		{4, false, "docstring"},
		{5, false, "docstring"},
		{6, false, "docstring"},
		{7, true, ""},
		{8, false, "docstring"},
		{9, true, ""},
		{11, false, "comment"},
		{12, true, ""},
		{13, false, "past the end"},
		{0, false, "past the end"},
	}

	for _, tt := range tests {
		err := c.CheckLine(path, tt.line)
		if tt.ok {
			assert.NoError(t, err, "line %d", tt.line)
			continue
		}
		require.Error(t, err, "line %d", tt.line)
		assert.Contains(t, err.Error(), tt.why, "line %d", tt.line)
	}
}

func TestCheckLine_MissingFile(t *testing.T) {
	err := NewCache().CheckLine(filepath.Join(t.TempDir(), "missing.bj"), 1)
	var nf *bugjarerrors.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestFindFunction(t *testing.T) {
	path := writeSource(t, sample)
	c := NewCache()

	line, err := c.FindFunction(path, "add")
	require.NoError(t, err)
	assert.Equal(t, 7, line)

	_, err = c.FindFunction(path, "ad")
	assert.Error(t, err)
}

func TestLineAndInvalidate(t *testing.T) {
	path := writeSource(t, sample)
	c := NewCache()

	assert.Equal(t, "x = 1", c.Line(path, 2))
	assert.Equal(t, "", c.Line(path, 99))

	require.NoError(t, os.WriteFile(path, []byte("y = 2\n"), 0o644))
	assert.Equal(t, "x = 1", c.Line(path, 2), "cached until invalidated")

	c.Invalidate(path)
	assert.Equal(t, "y = 2", c.Line(path, 1))
	assert.Equal(t, []string{Canonical(path)}, c.Files())
}

func TestCanonical(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(wd, "a.bj"), Canonical("./x/../a.bj"))
	assert.Equal(t, "<string>", Canonical("<string>"))
	assert.Equal(t, "", Canonical(""))
}

func TestWatcher_InvalidatesOnWrite(t *testing.T) {
	path := writeSource(t, "a = 1\n")
	c := NewCache()
	assert.Equal(t, "a = 1", c.Line(path, 1))

	w, err := NewWatcher(c, bugjarlog.Discard())
	require.NoError(t, err)
	require.NoError(t, w.Track(path))
	require.NoError(t, w.Track(path))
	w.Start(context.Background())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("b = 2\n"), 0o644))

	require.Eventually(t, func() bool {
		return strings.HasPrefix(c.Line(path, 1), "b")
	}, 5*time.Second, 20*time.Millisecond)
}
