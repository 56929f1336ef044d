package pysrc

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// python2Statements parse under the tree-sitter grammar but are syntax
// errors for a Python 3 interpreter.
var python2Statements = map[string]bool{
	"print_statement": true,
	"exec_statement":  true,
}

type tree struct {
	src  []byte
	root *sitter.Node
}

func parse(src string) (*tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	b := []byte(src)
	t, err := parser.ParseCtx(context.Background(), nil, b)
	if err != nil {
		return nil, fmt.Errorf("parse python: %w", err)
	}
	return &tree{src: b, root: t.RootNode()}, nil
}

func (t *tree) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(t.src)
}

// firstError returns the first node in source order that the grammar could
// not accept, or nil.
func (t *tree) firstError() *SyntaxError {
	var found *SyntaxError
	walk(t.root, func(n *sitter.Node) bool {
		if found != nil {
			return false
		}
		line := int(n.StartPoint().Row) + 1
		switch {
		case n.IsMissing():
			found = &SyntaxError{Line: line, Msg: fmt.Sprintf("expected %q", n.Type())}
		case n.Type() == "ERROR":
			found = &SyntaxError{Line: line, Msg: "invalid syntax"}
		case python2Statements[n.Type()]:
			found = &SyntaxError{Line: line, Msg: "invalid syntax (python 2 statement)"}
		case n.Type() == "block" && emptyBlock(n):
			found = &SyntaxError{Line: line, Msg: "expected an indented block"}
		}
		return found == nil
	})
	return found
}

// emptyBlock reports a suite with no statements. The grammar allows one so
// that half-typed code still parses; the interpreter does not.
func emptyBlock(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil && c.Type() != "comment" {
			return false
		}
	}
	return true
}

// walk visits n and its descendants in source order. Returning false from
// fn skips the children of that node.
func walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i), fn)
	}
}
