// Package pysrc inspects Python source text without running an interpreter.
// Source goes through two passes: a logical-line scanner that enforces the
// tokenizer rules (strings, brackets, continuations, indentation), then the
// tree-sitter Python grammar for everything else.
package pysrc

import (
	"fmt"
	"strings"
)

// Line is one logical line: physical lines joined across brackets and
// backslash continuations, comments removed.
type Line struct {
	Number int
	Indent int
	Text   string
}

type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

const tabSize = 8

var closerFor = map[rune]rune{')': '(', ']': '[', '}': '{'}

// Scan splits src into logical lines. On a tokenization error it returns the
// lines scanned before the error together with a *SyntaxError.
func Scan(src string) ([]Line, error) {
	s := &scanner{src: []rune(src), line: 1}
	return s.run()
}

type scanner struct {
	src  []rune
	pos  int
	line int

	out []Line
	cur strings.Builder

	curStart  int
	curIndent int
	inLine    bool
	brackets  []rune
	bracketAt []int
}

func (s *scanner) peek(off int) rune {
	if s.pos+off >= len(s.src) {
		return 0
	}
	return s.src[s.pos+off]
}

func (s *scanner) fail(line int, format string, args ...any) ([]Line, error) {
	return s.out, &SyntaxError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (s *scanner) run() ([]Line, error) {
	for s.pos < len(s.src) {
		if !s.inLine {
			if !s.startLine() {
				continue
			}
		}
		c := s.src[s.pos]
		switch {
		case c == '#':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' && s.src[s.pos] != '\r' {
				s.pos++
			}
		case c == '\r' || c == '\n':
			s.consumeNewline()
			if len(s.brackets) > 0 {
				s.cur.WriteByte(' ')
				continue
			}
			s.endLine()
		case c == '\\':
			s.pos++
			if s.peek(0) == '\n' || s.peek(0) == '\r' {
				s.consumeNewline()
				s.cur.WriteByte(' ')
				continue
			}
			if s.pos >= len(s.src) {
				return s.fail(s.line, "unexpected EOF after line continuation character")
			}
			return s.fail(s.line, "unexpected character after line continuation character")
		case c == '\'' || c == '"':
			if err := s.scanString(c); err != nil {
				return s.out, err
			}
		case c == '(' || c == '[' || c == '{':
			s.brackets = append(s.brackets, c)
			s.bracketAt = append(s.bracketAt, s.line)
			s.cur.WriteRune(c)
			s.pos++
		case c == ')' || c == ']' || c == '}':
			if len(s.brackets) == 0 {
				return s.fail(s.line, "unmatched '%c'", c)
			}
			open := s.brackets[len(s.brackets)-1]
			if closerFor[c] != open {
				return s.fail(s.line, "closing parenthesis '%c' does not match opening parenthesis '%c'", c, open)
			}
			s.brackets = s.brackets[:len(s.brackets)-1]
			s.bracketAt = s.bracketAt[:len(s.bracketAt)-1]
			s.cur.WriteRune(c)
			s.pos++
		case c == '`' || c == '$' || c == '?':
			return s.fail(s.line, "invalid character '%c'", c)
		case c == '!' && s.peek(1) != '=':
			return s.fail(s.line, "invalid syntax near '!'")
		default:
			s.cur.WriteRune(c)
			s.pos++
		}
	}
	if len(s.brackets) > 0 {
		return s.fail(s.bracketAt[len(s.bracketAt)-1], "'%c' was never closed", s.brackets[len(s.brackets)-1])
	}
	if s.inLine {
		s.endLine()
	}
	return s.out, nil
}

// startLine measures indentation at the beginning of a physical line. It
// returns false when the line is blank or comment-only (already consumed).
func (s *scanner) startLine() bool {
	indent := 0
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case ' ':
			indent++
		case '\t':
			indent = (indent/tabSize + 1) * tabSize
		case '\f':
			indent = 0
		default:
			goto measured
		}
		s.pos++
	}
measured:
	if s.pos >= len(s.src) {
		return false
	}
	switch s.src[s.pos] {
	case '\r', '\n':
		s.consumeNewline()
		return false
	case '#':
		for s.pos < len(s.src) && s.src[s.pos] != '\n' && s.src[s.pos] != '\r' {
			s.pos++
		}
		if s.pos < len(s.src) {
			s.consumeNewline()
		}
		return false
	}
	s.inLine = true
	s.curStart = s.line
	s.curIndent = indent
	s.cur.Reset()
	return true
}

func (s *scanner) endLine() {
	text := strings.TrimSpace(s.cur.String())
	if text != "" {
		s.out = append(s.out, Line{Number: s.curStart, Indent: s.curIndent, Text: text})
	}
	s.cur.Reset()
	s.inLine = false
}

func (s *scanner) consumeNewline() {
	if s.peek(0) == '\r' && s.peek(1) == '\n' {
		s.pos += 2
	} else {
		s.pos++
	}
	s.line++
}

func (s *scanner) scanString(quote rune) error {
	startLine := s.line
	triple := s.peek(1) == quote && s.peek(2) == quote
	width := 1
	if triple {
		width = 3
	}
	for i := 0; i < width; i++ {
		s.cur.WriteRune(quote)
	}
	s.pos += width
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.cur.WriteRune(c)
			s.pos++
			if s.pos < len(s.src) {
				if s.src[s.pos] == '\n' || s.src[s.pos] == '\r' {
					s.consumeNewline()
					s.cur.WriteByte('\n')
					continue
				}
				s.cur.WriteRune(s.src[s.pos])
				s.pos++
			}
		case c == '\n' || c == '\r':
			if !triple {
				return &SyntaxError{Line: startLine, Msg: "unterminated string literal"}
			}
			s.consumeNewline()
			s.cur.WriteByte('\n')
		case c == quote:
			if !triple {
				s.cur.WriteRune(c)
				s.pos++
				return nil
			}
			if s.peek(1) == quote && s.peek(2) == quote {
				for i := 0; i < 3; i++ {
					s.cur.WriteRune(quote)
				}
				s.pos += 3
				return nil
			}
			s.cur.WriteRune(c)
			s.pos++
		default:
			s.cur.WriteRune(c)
			s.pos++
		}
	}
	if triple {
		return &SyntaxError{Line: startLine, Msg: "unterminated triple-quoted string literal"}
	}
	return &SyntaxError{Line: startLine, Msg: "unterminated string literal"}
}
