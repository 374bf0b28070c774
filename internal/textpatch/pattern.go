package textpatch

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

var bracketPairs = map[byte]byte{
	'(': ')',
	'[': ']',
	'{': '}',
	'<': '>',
}

// Compile builds a matcher from a pattern. Patterns wrapped in delimiters
// with trailing modifiers, such as `/hero-(\d+)/i`, are unwrapped first;
// anything starting with a letter, digit or backslash is used verbatim.
func Compile(find string) (*regexp2.Regexp, error) {
	expr, opts, err := splitDelimited(find)
	if err != nil {
		return nil, err
	}
	re, err := regexp2.Compile(expr, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}

func splitDelimited(find string) (string, regexp2.RegexOptions, error) {
	trimmed := strings.TrimLeft(find, " \t\n\r\v\f")
	if trimmed == "" {
		return "", 0, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}

	open := trimmed[0]
	if open >= utf8.RuneSelf || open == '\\' || isAlnum(open) {
		return find, regexp2.None, nil
	}

	closer, nested := bracketPairs[open]
	if !nested {
		closer = open
	}

	rest := trimmed[1:]
	end := -1
	depth := 1
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if c == '\\' {
			i++
			continue
		}
		if nested && c == open {
			depth++
			continue
		}
		if c == closer {
			depth--
			if depth == 0 {
				end = i
				break
			}
		}
	}
	if end < 0 {
		return "", 0, fmt.Errorf("%w: no ending delimiter %q", ErrInvalidPattern, closer)
	}

	opts := regexp2.None
	for _, flag := range rest[end+1:] {
		switch flag {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'x':
			opts |= regexp2.IgnorePatternWhitespace
		case 'u', 'D', ' ', '\n', '\r':
		default:
			return "", 0, fmt.Errorf("%w: unknown modifier %q", ErrInvalidPattern, flag)
		}
	}
	return rest[:end], opts, nil
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// piece is either literal text or, when group >= 0, a group reference.
type piece struct {
	literal string
	group   int
}

type template []piece

// parseReplacement splits a replacement into literal text and group
// references. A backslash directly before another backslash or a dollar sign
// makes that character literal.
func parseReplacement(s string) template {
	var (
		out           template
		lit           []byte
		lastBackslash bool
	)
	flush := func() {
		if len(lit) > 0 {
			out = append(out, piece{literal: string(lit), group: -1})
			lit = lit[:0]
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		if c == '\\' || c == '$' {
			if lastBackslash {
				lit[len(lit)-1] = c
				lastBackslash = false
				i++
				continue
			}
			if n, width, ok := backref(s[i:]); ok {
				flush()
				out = append(out, piece{group: n})
				i += width
				continue
			}
		}
		lit = append(lit, c)
		lastBackslash = c == '\\'
		i++
	}
	flush()
	return out
}

// backref parses \n, $n or ${n} with n of one or two digits.
func backref(s string) (int, int, bool) {
	i := 1
	braced := false
	if s[0] == '$' && len(s) > 1 && s[1] == '{' {
		braced = true
		i = 2
	}
	start := i
	n := 0
	for i < len(s) && i-start < 2 && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	if i == start {
		return 0, 0, false
	}
	if braced {
		if i >= len(s) || s[i] != '}' {
			return 0, 0, false
		}
		i++
	}
	return n, i, true
}

func (t template) expand(out *strings.Builder, raw string, offsets []int, m *regexp2.Match) {
	for _, p := range t {
		if p.group < 0 {
			out.WriteString(p.literal)
			continue
		}
		g := m.GroupByNumber(p.group)
		if g == nil || len(g.Captures) == 0 {
			continue
		}
		out.WriteString(raw[offsets[g.Index]:offsets[g.Index+g.Length]])
	}
}
