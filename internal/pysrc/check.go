package pysrc

import "strconv"

// Check reports whether src is a syntactically valid Python 3 module. The
// first problem found is returned as a *SyntaxError.
func Check(src string) error {
	lines, err := Scan(src)
	if err != nil {
		return err
	}
	if err := checkIndentation(lines); err != nil {
		return err
	}
	t, err := parse(src)
	if err != nil {
		return err
	}
	if se := t.firstError(); se != nil {
		return se
	}
	return nil
}

// checkIndentation applies the tokenizer's INDENT/DEDENT rules, which the
// tree-sitter scanner recovers from silently.
func checkIndentation(lines []Line) error {
	stack := []int{0}
	expectBody := false
	for i, ln := range lines {
		top := stack[len(stack)-1]
		switch {
		case expectBody:
			if ln.Indent <= top {
				return &SyntaxError{Line: ln.Number, Msg: "expected an indented block after line " + strconv.Itoa(lines[i-1].Number)}
			}
			stack = append(stack, ln.Indent)
		case ln.Indent > top:
			return &SyntaxError{Line: ln.Number, Msg: "unexpected indent"}
		case ln.Indent < top:
			for len(stack) > 1 && stack[len(stack)-1] > ln.Indent {
				stack = stack[:len(stack)-1]
			}
			if stack[len(stack)-1] != ln.Indent {
				return &SyntaxError{Line: ln.Number, Msg: "unindent does not match any outer indentation level"}
			}
		}
		expectBody = len(ln.Text) > 0 && ln.Text[len(ln.Text)-1] == ':'
	}
	if expectBody {
		last := lines[len(lines)-1]
		return &SyntaxError{Line: last.Number, Msg: "expected an indented block after line " + strconv.Itoa(last.Number)}
	}
	return nil
}
