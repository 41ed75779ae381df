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

// Package source reads and caches program source for breakpoint validation
// and display.
package source

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	bugjarerrors "github.com/tombee/bugjar/pkg/errors"
)

// docstringDelims open and close literal text blocks.
var docstringDelims = []string{`"""`, `'''`}

// Canonical returns the absolute, cleaned form of path. Breakpoints and
// frames are keyed by this form.
func Canonical(path string) string {
	if path == "" || strings.HasPrefix(path, "<") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// file is a cached, analysed source file.
type file struct {
	lines []string
	// literal marks lines that belong to a docstring block, delimiters
	// included.
	literal []bool
}

// Cache holds source lines keyed by canonical file name. It is safe for
// concurrent use.
type Cache struct {
	mu    sync.RWMutex
	files map[string]*file
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{files: make(map[string]*file)}
}

// Lines returns the lines of filename, reading it on first use.
func (c *Cache) Lines(filename string) ([]string, error) {
	f, err := c.load(filename)
	if err != nil {
		return nil, err
	}
	return f.lines, nil
}

// Line returns line n (1-based) of filename, or "" when out of range or
// unreadable.
func (c *Cache) Line(filename string, n int) string {
	f, err := c.load(filename)
	if err != nil || n < 1 || n > len(f.lines) {
		return ""
	}
	return f.lines[n-1]
}

// CheckLine reports why line n of filename cannot hold a breakpoint, or nil
// if it can. Unreadable files, lines past the end, blank lines, comments and
// docstring text are rejected.
func (c *Cache) CheckLine(filename string, n int) error {
	f, err := c.load(filename)
	if err != nil {
		return err
	}
	if n < 1 || n > len(f.lines) {
		return fmt.Errorf("line %d is past the end of %s (%d lines)", n, filename, len(f.lines))
	}

	text := strings.TrimSpace(f.lines[n-1])
	switch {
	case text == "":
		return fmt.Errorf("line %d of %s is blank", n, filename)
	case strings.HasPrefix(text, "#"):
		return fmt.Errorf("line %d of %s is a comment", n, filename)
	case f.literal[n-1]:
		return fmt.Errorf("line %d of %s is inside a docstring", n, filename)
	}
	return nil
}

// FindFunction returns the line of the definition of name in filename.
func (c *Cache) FindFunction(filename, name string) (int, error) {
	f, err := c.load(filename)
	if err != nil {
		return 0, err
	}
	re := regexp.MustCompile(`^\s*def\s+` + regexp.QuoteMeta(name) + `\s*\(`)
	for i, text := range f.lines {
		if !f.literal[i] && re.MatchString(text) {
			return i + 1, nil
		}
	}
	return 0, &bugjarerrors.NotFoundError{Resource: "function", ID: name + " in " + filename}
}

// Invalidate drops filename from the cache.
func (c *Cache) Invalidate(filename string) {
	c.mu.Lock()
	delete(c.files, Canonical(filename))
	c.mu.Unlock()
}

// Files returns the canonical names currently cached.
func (c *Cache) Files() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.files))
	for name := range c.files {
		names = append(names, name)
	}
	return names
}

func (c *Cache) load(filename string) (*file, error) {
	name := Canonical(filename)

	c.mu.RLock()
	f, ok := c.files[name]
	c.mu.RUnlock()
	if ok {
		return f, nil
	}

	data, err := os.ReadFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &bugjarerrors.NotFoundError{Resource: "source file", ID: name}
		}
		return nil, bugjarerrors.Wrapf(err, "reading %s", name)
	}
	f = analyse(data)

	c.mu.Lock()
	c.files[name] = f
	c.mu.Unlock()
	return f, nil
}

// analyse splits data into lines and marks docstring blocks.
func analyse(data []byte) *file {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	literal := make([]bool, len(lines))
	open := ""
	for i, line := range lines {
		text := strings.TrimSpace(line)
		if open != "" {
			literal[i] = true
			if strings.Contains(text, open) {
				open = ""
			}
			continue
		}
		for _, delim := range docstringDelims {
			if strings.HasPrefix(text, delim) {
				literal[i] = true
				// A block opened and closed on one line stays one line.
				if !strings.Contains(text[len(delim):], delim) {
					open = delim
				}
				break
			}
		}
	}
	return &file{lines: lines, literal: literal}
}
