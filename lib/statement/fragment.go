package statement

import (
	"strings"
)

// And conjoins two predicates. An empty side yields the other unchanged.
func And(l, r string) string {
	if l == "" {
		return r
	}
	if r == "" {
		return l
	}
	return wrapIf(l, hasTopLevel(l, "OR")) + " AND " + wrapIf(r, hasTopLevel(r, "OR"))
}

// Or disjoins two predicates. An empty side yields the other unchanged.
func Or(l, r string) string {
	if l == "" {
		return r
	}
	if r == "" {
		return l
	}
	return l + " OR " + r
}

// Not negates p. An empty predicate stays empty.
func Not(p string) string {
	if p == "" {
		return ""
	}
	if isAtom(p) {
		return "NOT " + p
	}
	return "NOT (" + p + ")"
}

// TrimOuterParens strips parentheses that enclose the whole fragment.
func TrimOuterParens(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && s[0] == '(' && closingParen(s, 0) == len(s)-1 {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func wrapIf(s string, cond bool) string {
	if cond {
		return "(" + s + ")"
	}
	return s
}

// isAtom reports whether s needs no parentheses as an operand: a single
// word, a quoted literal, or a fully parenthesized group.
func isAtom(s string) bool {
	if s == "" {
		return true
	}
	if s[0] == '(' && closingParen(s, 0) == len(s)-1 {
		return true
	}
	atom := true
	scanTopLevel(s, func(i int, word string) bool {
		if word == "" {
			atom = false
			return false
		}
		return true
	})
	return atom
}

// closingParen returns the index of the parenthesis matching the one at
// open, skipping quoted text, or -1.
func closingParen(s string, open int) int {
	depth := 0
	inQuote := false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			if c == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					i++
				} else {
					inQuote = false
				}
			}
		case c == '\'':
			inQuote = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// hasTopLevel reports whether keyword occurs in s outside quotes,
// parentheses and CASE ... END blocks.
func hasTopLevel(s, keyword string) bool {
	found := false
	scanTopLevel(s, func(_ int, word string) bool {
		if word == keyword {
			found = true
			return false
		}
		return true
	})
	return found
}

// scanTopLevel calls fn for every word at nesting depth zero. A whitespace
// separator between top-level tokens is reported as an empty word.
func scanTopLevel(s string, fn func(pos int, word string) bool) {
	depth := 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'':
			j := i + 1
			for j < len(s) {
				if s[j] == '\'' {
					if j+1 < len(s) && s[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			i = j + 1
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			i++
		case c == ' ' || c == '\t' || c == '\n':
			if depth == 0 && !fn(i, "") {
				return
			}
			i++
		case isWordByte(c):
			j := i
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			word := s[i:j]
			switch word {
			case "CASE":
				depth++
			case "END":
				depth--
			default:
				if depth == 0 && !fn(i, word) {
					return
				}
			}
			i = j
		default:
			i++
		}
	}
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' || c == '*' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
