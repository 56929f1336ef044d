package pysrc

import (
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// ImportRoots returns the sorted, de-duplicated top-level package names
// imported anywhere in src ("import a.b" and "from a.b import c" both yield
// "a"). Relative imports are skipped. Statements the grammar could not
// recover are not considered.
func ImportRoots(src string) []string {
	t, err := parse(src)
	if err != nil {
		return []string{}
	}
	seen := map[string]bool{}
	walk(t.root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				c := n.NamedChild(i)
				if c != nil && c.Type() == "aliased_import" {
					c = c.ChildByFieldName("name")
				}
				if root := t.moduleRoot(c); root != "" {
					seen[root] = true
				}
			}
			return false
		case "import_from_statement":
			if root := t.moduleRoot(n.ChildByFieldName("module_name")); root != "" {
				seen[root] = true
			}
			return false
		case "future_import_statement":
			seen["__future__"] = true
			return false
		case "ERROR":
			return false
		}
		return true
	})
	out := make([]string, 0, len(seen))
	for root := range seen {
		out = append(out, root)
	}
	sort.Strings(out)
	return out
}

// moduleRoot is the first identifier of a dotted_name. Anything else,
// including a relative_import, has no root.
func (t *tree) moduleRoot(n *sitter.Node) string {
	if n == nil || n.Type() != "dotted_name" || n.NamedChildCount() == 0 {
		return ""
	}
	return t.text(n.NamedChild(0))
}
