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

package script

import (
	"fmt"
	"regexp"
	"strings"
)

type stmtKind int

const (
	stmtExpr stmtKind = iota
	stmtAssign
	stmtPrint
	stmtDef
	stmtIf
	stmtWhile
	stmtFor
	stmtReturn
	stmtRaise
	stmtLoad
	stmtPass
)

type stmt struct {
	kind   stmtKind
	line   int
	name   string // assignment target, function name or loop variable
	expr   string
	params []string
	body   []*stmt
	orelse []*stmt
}

type module struct {
	filename string
	body     []*stmt
}

// SyntaxError reports a statement that could not be parsed or compiled.
type SyntaxError struct {
	Filename string
	Line     int
	Msg      string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Filename, e.Line, e.Msg)
}

var (
	defPattern    = regexp.MustCompile(`^def\s+([A-Za-z_]\w*)\s*\(([^)]*)\)$`)
	forPattern    = regexp.MustCompile(`^for\s+([A-Za-z_]\w*)\s+in\s+(.+)$`)
	assignPattern = regexp.MustCompile(`^([A-Za-z_]\w*)\s*=([^=].*)$`)
	identPattern  = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

type parser struct {
	filename string
	lines    []string
	pos      int
	literal  string
	compile  func(expr string) error
}

func parse(filename string, src []byte, compile func(string) error) (*module, error) {
	p := &parser{
		filename: filename,
		lines:    strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n"),
		compile:  compile,
	}
	body, term, err := p.block()
	if err != nil {
		return nil, err
	}
	if term != "" {
		return nil, p.errorf(p.pos, "unexpected %q", term)
	}
	return &module{filename: filename, body: body}, nil
}

// next returns the next statement line, skipping blanks, comments and
// literal blocks.
func (p *parser) next() (int, string, bool) {
	for p.pos < len(p.lines) {
		text := strings.TrimSpace(p.lines[p.pos])
		p.pos++

		if p.literal != "" {
			if strings.Contains(text, p.literal) {
				p.literal = ""
			}
			continue
		}
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if delim, ok := literalDelim(text); ok {
			if !strings.Contains(text[len(delim):], delim) {
				p.literal = delim
			}
			continue
		}
		return p.pos, text, true
	}
	return 0, "", false
}

func literalDelim(text string) (string, bool) {
	for _, d := range []string{`"""`, `'''`} {
		if strings.HasPrefix(text, d) {
			return d, true
		}
	}
	return "", false
}

// block parses statements until "else", "end" or end of input and reports
// which terminator stopped it ("" at end of input).
func (p *parser) block() ([]*stmt, string, error) {
	var out []*stmt
	for {
		n, text, ok := p.next()
		if !ok {
			return out, "", nil
		}
		if text == "end" || text == "else" {
			return out, text, nil
		}
		s, err := p.statement(n, text)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
	}
}

func (p *parser) closed(n int, what string) ([]*stmt, error) {
	body, term, err := p.block()
	if err != nil {
		return nil, err
	}
	if term != "end" {
		return nil, p.errorf(n, "%s without matching end", what)
	}
	return body, nil
}

func (p *parser) statement(n int, text string) (*stmt, error) {
	s := &stmt{line: n}

	switch {
	case text == "pass":
		s.kind = stmtPass

	case strings.HasPrefix(text, "def "):
		m := defPattern.FindStringSubmatch(text)
		if m == nil {
			return nil, p.errorf(n, "malformed def")
		}
		s.kind, s.name = stmtDef, m[1]
		for _, param := range strings.Split(m[2], ",") {
			param = strings.TrimSpace(param)
			if param == "" {
				continue
			}
			if !identPattern.MatchString(param) {
				return nil, p.errorf(n, "invalid parameter %q", param)
			}
			s.params = append(s.params, param)
		}
		body, err := p.closed(n, "def")
		if err != nil {
			return nil, err
		}
		s.body = body
		return s, nil

	case hasKeyword(text, "if"):
		s.kind, s.expr = stmtIf, strings.TrimSpace(text[2:])
		body, term, err := p.block()
		if err != nil {
			return nil, err
		}
		s.body = body
		switch term {
		case "else":
			if s.orelse, err = p.closed(n, "else"); err != nil {
				return nil, err
			}
		case "end":
		default:
			return nil, p.errorf(n, "if without matching end")
		}

	case hasKeyword(text, "while"):
		s.kind, s.expr = stmtWhile, strings.TrimSpace(text[5:])
		body, err := p.closed(n, "while")
		if err != nil {
			return nil, err
		}
		s.body = body

	case strings.HasPrefix(text, "for "):
		m := forPattern.FindStringSubmatch(text)
		if m == nil {
			return nil, p.errorf(n, "malformed for")
		}
		s.kind, s.name, s.expr = stmtFor, m[1], m[2]
		body, err := p.closed(n, "for")
		if err != nil {
			return nil, err
		}
		s.body = body

	case text == "return":
		s.kind = stmtReturn
	case hasKeyword(text, "return"):
		s.kind, s.expr = stmtReturn, strings.TrimSpace(text[6:])
	case hasKeyword(text, "raise"):
		s.kind, s.expr = stmtRaise, strings.TrimSpace(text[5:])
	case hasKeyword(text, "print"):
		s.kind, s.expr = stmtPrint, strings.TrimSpace(text[5:])
	case hasKeyword(text, "load"):
		s.kind, s.expr = stmtLoad, strings.TrimSpace(text[4:])

	default:
		if m := assignPattern.FindStringSubmatch(text); m != nil {
			s.kind, s.name, s.expr = stmtAssign, m[1], strings.TrimSpace(m[2])
		} else {
			s.kind, s.expr = stmtExpr, text
		}
	}

	if s.expr == "" && s.kind != stmtPass && s.kind != stmtReturn {
		return nil, p.errorf(n, "missing expression")
	}
	if s.expr != "" {
		if err := p.compile(s.expr); err != nil {
			return nil, p.errorf(n, "%s", firstLine(err.Error()))
		}
	}
	return s, nil
}

// hasKeyword reports whether text starts with kw followed by a space or
// an opening parenthesis.
func hasKeyword(text, kw string) bool {
	if !strings.HasPrefix(text, kw) || len(text) == len(kw) {
		return false
	}
	c := text[len(kw)]
	return c == ' ' || c == '\t' || c == '('
}

func (p *parser) errorf(line int, format string, args ...any) error {
	return &SyntaxError{Filename: p.filename, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
