package textpatch

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLiteral(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		find      string
		replace   string
		want      string
		wantCount int
		wantErr   error
	}{
		{
			name:      "color_red_to_blue",
			raw:       `"color: red; color: red;"`,
			find:      "red",
			replace:   "blue",
			want:      `"color: blue; color: blue;"`,
			wantCount: 2,
		},
		{
			name:    "no_match_keeps_text",
			raw:     `[{"id":"a"}]`,
			find:    "zzz",
			replace: "y",
			want:    `[{"id":"a"}]`,
		},
		{
			name:      "non_overlapping_left_to_right",
			raw:       `"aaaa"`,
			find:      "aa",
			replace:   "b",
			want:      `"bb"`,
			wantCount: 2,
		},
		{
			name:      "url_swap",
			raw:       `[{"settings":{"link":"https:\/\/old.example"}}]`,
			find:      `old.example`,
			replace:   `new.example`,
			want:      `[{"settings":{"link":"https:\/\/new.example"}}]`,
			wantCount: 1,
		},
		{
			name:    "unbalanced_quote_is_rejected",
			raw:     `{"a":"b"}`,
			find:    `b"`,
			replace: `b`,
			wantErr: ErrInvalidResult,
		},
		{
			name:    "empty_find",
			raw:     `[]`,
			find:    "",
			replace: "x",
			wantErr: ErrEmptyFind,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.raw, tt.find, tt.replace, false)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Text)
			assert.Equal(t, tt.wantCount, got.Count)
		})
	}
}

func TestApplyPattern(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		find      string
		replace   string
		want      string
		wantCount int
		wantErr   error
	}{
		{
			name:      "delimited_with_groups",
			raw:       `[{"id":"hero-1"},{"id":"hero-22"}]`,
			find:      `/hero-(\d+)/`,
			replace:   `banner-$1`,
			want:      `[{"id":"banner-1"},{"id":"banner-22"}]`,
			wantCount: 2,
		},
		{
			name:      "case_insensitive_modifier",
			raw:       `["Red","RED","red"]`,
			find:      `/red/i`,
			replace:   `blue`,
			want:      `["blue","blue","blue"]`,
			wantCount: 3,
		},
		{
			name:      "backslash_and_braced_references",
			raw:       `["ab"]`,
			find:      `#(a)(b)#`,
			replace:   `\2${1}`,
			want:      `["ba"]`,
			wantCount: 1,
		},
		{
			name:      "missing_group_expands_empty",
			raw:       `["ab"]`,
			find:      `/(a)b/`,
			replace:   `$1$7`,
			want:      `["a"]`,
			wantCount: 1,
		},
		{
			name:      "escaped_dollar_is_literal",
			raw:       `["a"]`,
			find:      `/a/`,
			replace:   `\$1`,
			want:      `["$1"]`,
			wantCount: 1,
		},
		{
			name:      "bracket_delimiters",
			raw:       `["x1y"]`,
			find:      `{\d}`,
			replace:   `2`,
			want:      `["x2y"]`,
			wantCount: 1,
		},
		{
			name:      "undelimited_pattern",
			raw:       `["red red"]`,
			find:      `r(e)d`,
			replace:   `b${1}e`,
			want:      `["bee bee"]`,
			wantCount: 2,
		},
		{
			name:      "multibyte_text_is_preserved",
			raw:       `["héllo wörld"]`,
			find:      `/w(ö)rld/u`,
			replace:   `$1`,
			want:      `["héllo ö"]`,
			wantCount: 1,
		},
		{
			name:    "zero_matches",
			raw:     `{"a":"b"}`,
			find:    `/z+/`,
			replace: `y`,
			want:    `{"a":"b"}`,
		},
		{
			name:    "invalid_pattern",
			raw:     `[]`,
			find:    `/(unclosed/`,
			replace: `x`,
			wantErr: ErrInvalidPattern,
		},
		{
			name:    "missing_end_delimiter",
			raw:     `[]`,
			find:    `/abc`,
			replace: `x`,
			wantErr: ErrInvalidPattern,
		},
		{
			name:    "unknown_modifier",
			raw:     `[]`,
			find:    `/abc/q`,
			replace: `x`,
			wantErr: ErrInvalidPattern,
		},
		{
			name:    "result_breaks_json",
			raw:     `{"a":"b"}`,
			find:    `/"}$/`,
			replace: `}`,
			wantErr: ErrInvalidResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.raw, tt.find, tt.replace, true)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Text)
			assert.Equal(t, tt.wantCount, got.Count)
		})
	}
}

func TestApplyInverseRestoresText(t *testing.T) {
	raw := `[{"id":"a","settings":{"color":"red","title":"Hello"}}]`

	forward, err := Apply(raw, "red", "teal", false)
	require.NoError(t, err)
	require.Equal(t, 1, forward.Count)

	back, err := Apply(forward.Text, "teal", "red", false)
	require.NoError(t, err)
	assert.Equal(t, raw, back.Text)
}

func TestPatcherTimeout(t *testing.T) {
	p := Patcher{MatchTimeout: 10 * time.Millisecond}
	raw := `["` + strings.Repeat("a", 64) + `!"]`

	_, err := p.Apply(raw, `/(a+)+$/`, "x", true)
	require.ErrorIs(t, err, ErrPatternTimeout)
}

func TestParseReplacement(t *testing.T) {
	tmpl := parseReplacement(`pre $1 \2 ${10} $x \\ end`)
	var groups []int
	var literal string
	for _, p := range tmpl {
		if p.group >= 0 {
			groups = append(groups, p.group)
			continue
		}
		literal += p.literal
	}
	assert.Equal(t, []int{1, 2, 10}, groups)
	assert.Equal(t, `pre    $x \ end`, literal)
}
