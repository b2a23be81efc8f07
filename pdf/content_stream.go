package pdf

import "sort"

// Content stream surgery: removing the draw operations that paint one
// image XObject, without disturbing anything else on the page.
//
// stripImageOps is a pure function from (stream bytes, resource name)
// to new stream bytes, so it can be tested without any file I/O.

type tokenKind int

const (
	tkOp tokenKind = iota
	tkName
	tkString
	tkDelim
)

type token struct {
	kind       tokenKind
	start, end int
}

func isPDFSpace(b byte) bool {
	switch b {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isPDFDelim(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// tokenizeContent splits a decoded content stream into tokens. Literal
// strings, hex strings and comments are consumed as single units so
// that a 'q' or 'Do' inside them is never mistaken for an operator.
func tokenizeContent(c []byte) []token {
	var toks []token
	i, n := 0, len(c)
	for i < n {
		b := c[i]
		switch {
		case isPDFSpace(b):
			i++
		case b == '%':
			for i < n && c[i] != '\n' && c[i] != '\r' {
				i++
			}
		case b == '(':
			depth := 1
			j := i + 1
			for j < n && depth > 0 {
				switch c[j] {
				case '\\':
					j++
				case '(':
					depth++
				case ')':
					depth--
				}
				j++
			}
			toks = append(toks, token{tkString, i, j})
			i = j
		case b == '<':
			if i+1 < n && c[i+1] == '<' {
				toks = append(toks, token{tkDelim, i, i + 2})
				i += 2
				break
			}
			j := i + 1
			for j < n && c[j] != '>' {
				j++
			}
			if j < n {
				j++
			}
			toks = append(toks, token{tkString, i, j})
			i = j
		case b == '>':
			if i+1 < n && c[i+1] == '>' {
				toks = append(toks, token{tkDelim, i, i + 2})
				i += 2
			} else {
				i++
			}
		case b == '[' || b == ']' || b == '{' || b == '}' || b == ')':
			toks = append(toks, token{tkDelim, i, i + 1})
			i++
		case b == '/':
			j := i + 1
			for j < n && !isPDFSpace(c[j]) && !isPDFDelim(c[j]) {
				j++
			}
			toks = append(toks, token{tkName, i, j})
			i = j
		default:
			j := i
			for j < n && !isPDFSpace(c[j]) && !isPDFDelim(c[j]) {
				j++
			}
			toks = append(toks, token{tkOp, i, j})
			i = j
		}
	}
	return toks
}

type tokenGroup struct {
	open, close int // token indices of the matching q / Q pair
}

// matchGroups pairs up q/Q graphics state operators.
func matchGroups(c []byte, toks []token) []tokenGroup {
	var groups []tokenGroup
	var stack []int
	for ti, t := range toks {
		if t.kind != tkOp || t.end-t.start != 1 {
			continue
		}
		switch c[t.start] {
		case 'q':
			stack = append(stack, ti)
		case 'Q':
			if len(stack) > 0 {
				groups = append(groups, tokenGroup{stack[len(stack)-1], ti})
				stack = stack[:len(stack)-1]
			}
		}
	}
	return groups
}

// innermostGroup returns the tightest q..Q pair enclosing token index
// ti, or false if it sits outside every group.
func innermostGroup(groups []tokenGroup, ti int) (tokenGroup, bool) {
	best := tokenGroup{-1, -1}
	found := false
	for _, g := range groups {
		if g.open < ti && ti < g.close {
			if !found || g.close-g.open < best.close-best.open {
				best = g
				found = true
			}
		}
	}
	return best, found
}

// stripImageOps removes every "/name Do" invocation from a decoded
// content stream. When the invocation is the only painting operation
// inside its enclosing q..Q group the whole group is dropped, taking
// the positioning matrix with it; otherwise only the name/Do pair is
// cut out. Operations for other objects are left byte for byte intact,
// so removing two images from one page yields the same stream in
// either order.
func stripImageOps(content []byte, name string) []byte {
	toks := tokenizeContent(content)
	target := "/" + name

	// Token indices of every Do operator, and of the Do ops that
	// invoke the target name.
	var allDo, hits []int
	for ti := 1; ti < len(toks); ti++ {
		t := toks[ti]
		if t.kind == tkOp && string(content[t.start:t.end]) == "Do" && toks[ti-1].kind == tkName {
			allDo = append(allDo, ti)
			if string(content[toks[ti-1].start:toks[ti-1].end]) == target {
				hits = append(hits, ti)
			}
		}
	}
	if len(hits) == 0 {
		return content
	}

	hitSet := make(map[int]bool, len(hits))
	for _, ti := range hits {
		hitSet[ti] = true
	}
	groups := matchGroups(content, toks)

	// A q..Q group may be removed wholesale only if every Do inside it
	// is being removed and it paints no text.
	removableGroup := func(g tokenGroup) bool {
		for _, ti := range allDo {
			if g.open < ti && ti < g.close && !hitSet[ti] {
				return false
			}
		}
		for ti := g.open + 1; ti < g.close; ti++ {
			t := toks[ti]
			if t.kind == tkOp && string(content[t.start:t.end]) == "BT" {
				return false
			}
		}
		return true
	}

	type span struct{ start, end int }
	var cuts []span
	cutGroups := make(map[tokenGroup]bool)
	for _, ti := range hits {
		if g, ok := innermostGroup(groups, ti); ok && removableGroup(g) {
			if !cutGroups[g] {
				cutGroups[g] = true
				cuts = append(cuts, span{toks[g.open].start, toks[g.close].end})
			}
			continue
		}
		cuts = append(cuts, span{toks[ti-1].start, toks[ti].end})
	}

	// A nested removable group can produce a cut contained in a larger
	// one, so the merge below tolerates overlapping spans.
	sort.Slice(cuts, func(i, j int) bool { return cuts[i].start < cuts[j].start })
	out := make([]byte, 0, len(content))
	pos := 0
	for _, s := range cuts {
		if s.start > pos {
			out = append(out, content[pos:s.start]...)
		}
		if s.end > pos {
			pos = s.end
		}
	}
	if pos < len(content) {
		out = append(out, content[pos:]...)
	}
	return out
}
