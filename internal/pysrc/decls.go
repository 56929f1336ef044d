package pysrc

import sitter "github.com/smacker/go-tree-sitter"

type DeclKind string

const (
	DeclFunction      DeclKind = "function"
	DeclAsyncFunction DeclKind = "async_function"
	DeclClass         DeclKind = "class"
)

// Decl is a module-level definition.
type Decl struct {
	Kind DeclKind
	Name string
}

// TopLevelDecls lists the module-level function, async function and class
// definitions of src in source order, looking through decorators. Source
// that does not parse yields nil.
func TopLevelDecls(src string) []Decl {
	t, err := parse(src)
	if err != nil || t.root.HasError() {
		return nil
	}
	var out []Decl
	for i := 0; i < int(t.root.NamedChildCount()); i++ {
		n := t.root.NamedChild(i)
		if n != nil && n.Type() == "decorated_definition" {
			n = n.ChildByFieldName("definition")
		}
		if d, ok := t.decl(n); ok {
			out = append(out, d)
		}
	}
	return out
}

func (t *tree) decl(n *sitter.Node) (Decl, bool) {
	if n == nil {
		return Decl{}, false
	}
	var kind DeclKind
	switch n.Type() {
	case "class_definition":
		kind = DeclClass
	case "function_definition":
		kind = DeclFunction
		if first := n.Child(0); first != nil && first.Type() == "async" {
			kind = DeclAsyncFunction
		}
	default:
		return Decl{}, false
	}
	name := t.text(n.ChildByFieldName("name"))
	if name == "" {
		return Decl{}, false
	}
	return Decl{Kind: kind, Name: name}, true
}
