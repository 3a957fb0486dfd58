package scriptruntime

import (
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"sort"
	"strings"
	"unicode"

	"github.com/llmspell/spellkernel/src/kernel/internal/executor"
)

var _ executor.Inspector = (*sessionContext)(nil)

var _keywords = []string{
	"break", "case", "chan", "const", "continue", "default", "defer", "else", "fallthrough", "for",
	"func", "go", "goto", "if", "import", "interface", "map", "range", "return", "select", "struct",
	"switch", "type", "var",
}

// word returns the dotted identifier around cursor, which counts runes, and its rune bounds.
func word(code string, cursor int) (string, int, int) {
	runes := []rune(code)
	if cursor > len(runes) {
		cursor = len(runes)
	}
	if cursor < 0 {
		cursor = 0
	}
	isWord := func(r rune) bool { return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r) }
	start := cursor
	for start > 0 && isWord(runes[start-1]) {
		start--
	}
	end := cursor
	for end < len(runes) && isWord(runes[end]) {
		end++
	}
	return string(runes[start:end]), start, end
}

func (c *sessionContext) Inspect(code string, cursor int) (map[string]any, bool, error) {
	if c.closed || c.poisoned {
		return nil, false, fmt.Errorf("session %s: context cannot be inspected", c.sessionID)
	}
	name, _, _ := word(code, cursor)
	if name == "" {
		return nil, false, nil
	}
	if pkg, sym, ok := strings.Cut(name, "."); ok {
		v, found := c.runtime.symbolsOf(pkg)[sym]
		if !found || !v.IsValid() {
			return nil, false, nil
		}
		return map[string]any{"text/plain": fmt.Sprintf("%s.%s: %s", pkg, sym, v.Type())}, true, nil
	}
	v, found := c.interp.Globals()[name]
	if !found || !v.IsValid() {
		return nil, false, nil
	}
	return map[string]any{"text/plain": fmt.Sprintf("%s: %s = %s", name, v.Type(), display(v))}, true, nil
}

func (c *sessionContext) Complete(code string, cursor int) ([]string, int, int, error) {
	if c.closed || c.poisoned {
		return nil, 0, 0, fmt.Errorf("session %s: context cannot complete", c.sessionID)
	}
	_, start, _ := word(code, cursor)
	runes := []rune(code)
	if cursor > len(runes) {
		cursor = len(runes)
	}
	prefix := string(runes[start:cursor])
	prefix = strings.TrimLeft(prefix, ".")

	var candidates []string
	if pkg, partial, ok := strings.Cut(prefix, "."); ok {
		for _, sym := range sortedKeys(c.runtime.symbolsOf(pkg)) {
			if strings.HasPrefix(sym, partial) {
				candidates = append(candidates, pkg+"."+sym)
			}
		}
		return candidates, start, cursor, nil
	}

	seen := make(map[string]bool)
	add := func(s string) {
		if strings.HasPrefix(s, prefix) && !seen[s] && !strings.HasPrefix(s, "_") {
			seen[s] = true
			candidates = append(candidates, s)
		}
	}
	for n := range c.interp.Globals() {
		add(n)
	}
	for _, d := range c.decls {
		for _, n := range d.names {
			add(n)
		}
	}
	for pkg := range c.runtime.packages {
		add(pkg)
	}
	add(_userPkg)
	for _, kw := range _keywords {
		add(kw)
	}
	sort.Strings(candidates)
	return candidates, start, cursor, nil
}

// IsComplete parses code as declarations or statements. Unclosed brackets or literals mean more
// input is needed.
func (c *sessionContext) IsComplete(code string) (string, string) {
	if strings.TrimSpace(code) == "" {
		return executor.Complete, ""
	}
	_, rest := hoistImports(code)
	if _, err := parser.ParseFile(token.NewFileSet(), "", _declPrefix+rest, 0); err == nil {
		return executor.Complete, ""
	}
	if _, err := parser.ParseFile(token.NewFileSet(), "", _stmtPrefix+rest+_stmtSuffix, 0); err == nil {
		return executor.Complete, ""
	}

	depth, open := nesting(code)
	if open || depth > 0 {
		return executor.Incomplete, strings.Repeat("\t", max(depth, 1))
	}
	return executor.Invalid, ""
}

// nesting returns the bracket depth at the end of code and whether a literal is left unterminated.
func nesting(code string) (int, bool) {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(code))
	var s scanner.Scanner
	open := false
	s.Init(file, []byte(code), func(_ token.Position, msg string) {
		if strings.Contains(msg, "not terminated") {
			open = true
		}
	}, 0)

	depth := 0
	for {
		_, tok, _ := s.Scan()
		switch tok {
		case token.EOF:
			return depth, open
		case token.LBRACE, token.LPAREN, token.LBRACK:
			depth++
		case token.RBRACE, token.RPAREN, token.RBRACK:
			depth--
		}
	}
}
