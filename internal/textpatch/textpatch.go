// Package textpatch performs find-and-replace on serialized layout text and
// refuses results that are no longer valid JSON.
package textpatch

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

var (
	ErrEmptyFind      = errors.New("find string is empty")
	ErrInvalidPattern = errors.New("invalid pattern")
	ErrPatternTimeout = errors.New("pattern evaluation timed out")
	ErrInvalidResult  = errors.New("replacement would result in invalid JSON")
)

// Result is the patched text and the number of substitutions made.
type Result struct {
	Text  string
	Count int
}

// Patcher applies literal or pattern substitutions. A zero MatchTimeout
// leaves pattern evaluation unbounded.
type Patcher struct {
	MatchTimeout time.Duration
}

// Apply replaces every non-overlapping occurrence of find in raw, left to
// right. In pattern mode find is a regular expression and replace may refer
// to captured groups as $n, ${n} or \n.
//
// Zero matches is not an error: raw comes back unchanged with Count 0. Any
// other outcome must still parse as JSON, otherwise ErrInvalidResult is
// returned and the substituted text is dropped.
func (p Patcher) Apply(raw, find, replace string, usePattern bool) (Result, error) {
	if find == "" {
		return Result{}, ErrEmptyFind
	}

	var (
		text  string
		count int
	)
	if usePattern {
		var err error
		text, count, err = p.replacePattern(raw, find, replace)
		if err != nil {
			return Result{}, err
		}
	} else {
		count = strings.Count(raw, find)
		text = strings.ReplaceAll(raw, find, replace)
	}

	if count == 0 {
		return Result{Text: raw}, nil
	}
	if !gjson.Valid(text) {
		return Result{}, ErrInvalidResult
	}
	return Result{Text: text, Count: count}, nil
}

// Apply runs a Patcher without a match timeout.
func Apply(raw, find, replace string, usePattern bool) (Result, error) {
	return Patcher{}.Apply(raw, find, replace, usePattern)
}

func (p Patcher) replacePattern(raw, find, replace string) (string, int, error) {
	re, err := Compile(find)
	if err != nil {
		return "", 0, err
	}
	if p.MatchTimeout > 0 {
		re.MatchTimeout = p.MatchTimeout
	}
	tmpl := parseReplacement(replace)

	// regexp2 reports positions in runes; map them back to byte offsets so
	// the unmatched text is copied byte for byte.
	offsets := make([]int, 0, len(raw)+1)
	for i := range raw {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(raw))

	var out strings.Builder
	last := 0
	count := 0
	m, err := re.FindStringMatch(raw)
	for m != nil && err == nil {
		start := offsets[m.Index]
		out.WriteString(raw[last:start])
		tmpl.expand(&out, raw, offsets, m)
		last = offsets[m.Index+m.Length]
		count++
		m, err = re.FindNextMatch(m)
	}
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrPatternTimeout, err)
	}
	out.WriteString(raw[last:])
	return out.String(), count, nil
}
