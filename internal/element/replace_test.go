package element

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceElement(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		target      string
		replacement string
		want        string
		wantFound   bool
	}{
		{
			name:        "top_level_hero",
			doc:         `[{"id":"hero","elType":"widget","elements":[]}]`,
			target:      "hero",
			replacement: `{"id":"hero","elType":"widget","elements":[{"id":"child1","elType":"text"}]}`,
			want:        `[{"id":"hero","elType":"widget","elements":[{"id":"child1","elType":"text"}]}]`,
			wantFound:   true,
		},
		{
			name:        "nested_match_keeps_siblings",
			doc:         `[{"id":"s1","elType":"section","elements":[{"id":"c1","elType":"column","elements":[{"id":"w1","elType":"widget"},{"id":"w2","elType":"widget"}]}]},{"id":"s2","elType":"section"}]`,
			target:      "w2",
			replacement: `{"id":"w9","elType":"widget","widgetType":"button"}`,
			want:        `[{"id":"s1","elType":"section","elements":[{"id":"c1","elType":"column","elements":[{"id":"w1","elType":"widget"},{"id":"w9","elType":"widget","widgetType":"button"}]}]},{"id":"s2","elType":"section"}]`,
			wantFound:   true,
		},
		{
			name:        "duplicate_ids_replace_first_in_preorder",
			doc:         `[{"id":"a","elements":[{"id":"dup","v":1}]},{"id":"dup","v":2}]`,
			target:      "dup",
			replacement: `{"id":"dup","v":3}`,
			want:        `[{"id":"a","elements":[{"id":"dup","v":3}]},{"id":"dup","v":2}]`,
			wantFound:   true,
		},
		{
			name:        "parent_checked_before_children",
			doc:         `[{"id":"x","elements":[{"id":"x","inner":true}]}]`,
			target:      "x",
			replacement: `{"id":"y"}`,
			want:        `[{"id":"y"}]`,
			wantFound:   true,
		},
		{
			name:        "opaque_nodes_are_skipped",
			doc:         `[1,"a",null,{"id":"a"}]`,
			target:      "a",
			replacement: `{"id":"r"}`,
			want:        `[1,"a",null,{"id":"r"}]`,
			wantFound:   true,
		},
		{
			name:        "numeric_id_never_matches",
			doc:         `[{"id":5,"elType":"widget"}]`,
			target:      "5",
			replacement: `{"id":"r"}`,
			want:        `[{"id":5,"elType":"widget"}]`,
		},
		{
			name:        "absent_target",
			doc:         `[{"id":"a","elements":[{"id":"b"}]}]`,
			target:      "zzz",
			replacement: `{"id":"r"}`,
			want:        `[{"id":"a","elements":[{"id":"b"}]}]`,
		},
		{
			name:        "replacement_whitespace_is_compacted",
			doc:         `[{"id":"a"}]`,
			target:      "a",
			replacement: "{ \"id\": \"a\",\n  \"elType\": \"widget\" }",
			want:        `[{"id":"a","elType":"widget"}]`,
			wantFound:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, tt.doc)
			got, found := ReplaceElement(doc, tt.target, mustElement(t, tt.replacement))

			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.want, string(got.Bytes()))
			if diff := cmp.Diff(decoded(t, []byte(tt.want)), decoded(t, got.Bytes())); diff != "" {
				t.Errorf("decoded result mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReplaceElementPreservesUntouchedBytes(t *testing.T) {
	raw := `[{"id":"a","settings":{"html":"<b>&amp;</b>","url":"https:\/\/example.com","n":1.50},"elements":[{"id":"b"},{"id":"c","custom":"é"}]}]`
	doc := mustParse(t, raw)

	got, found := ReplaceElement(doc, "b", mustElement(t, `{"id":"b2"}`))
	require.True(t, found)
	assert.Equal(t,
		`[{"id":"a","settings":{"html":"<b>&amp;</b>","url":"https:\/\/example.com","n":1.50},"elements":[{"id":"b2"},{"id":"c","custom":"é"}]}]`,
		string(got.Bytes()),
	)
}

func TestReplaceElementDoesNotMutateInput(t *testing.T) {
	raw := `[{"id":"a","elements":[{"id":"b","elements":[{"id":"c"}]}]},{"id":"d"}]`
	doc := mustParse(t, raw)

	got, found := ReplaceElement(doc, "c", mustElement(t, `{"id":"c","elType":"widget"}`))
	require.True(t, found)
	assert.NotEqual(t, raw, string(got.Bytes()))
	assert.Equal(t, raw, string(doc.Bytes()))
}

func TestReplaceElementNotFoundReturnsSameDocument(t *testing.T) {
	raw := `[{"id":"a","elType":"section","elements":[{"id":"b","elType":"widget"}]}]`
	doc := mustParse(t, raw)

	got, found := ReplaceElement(doc, "missing", mustElement(t, `{"id":"x"}`))
	require.False(t, found)
	if diff := cmp.Diff(decoded(t, doc.Bytes()), decoded(t, got.Bytes())); diff != "" {
		t.Errorf("document changed (-want +got):\n%s", diff)
	}
}

func TestReplaceElementWithConstructedNode(t *testing.T) {
	doc := mustParse(t, `[{"id":"hero","elType":"widget","elements":[]}]`)
	replacement := Element{
		ID:       "hero",
		ElType:   "widget",
		Elements: []Element{{ID: "child1", ElType: "text"}},
	}

	got, found := ReplaceElement(doc, "hero", replacement)
	require.True(t, found)
	assert.Equal(t, `[{"id":"hero","elType":"widget","elements":[{"id":"child1","elType":"text"}]}]`, string(got.Bytes()))
}

func TestReplaceElementKeepsRepeatedKeys(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		target string
		repl   string
		want   string
	}{
		{
			name:   "repeated elements key",
			raw:    `[{"id":"p","elements":[{"id":"c","elType":"y"}],"settings":{"a":1},"elements":"legacy","x":2}]`,
			target: "c",
			repl:   `{"id":"c","elType":"z"}`,
			want:   `[{"id":"p","elements":[{"id":"c","elType":"z"}],"settings":{"a":1},"elements":"legacy","x":2}]`,
		},
		{
			name:   "repeated id key",
			raw:    `[{"id":"p","id":"q","elements":[{"id":"c"}],"x":2}]`,
			target: "c",
			repl:   `{"id":"c2"}`,
			want:   `[{"id":"p","id":"q","elements":[{"id":"c2"}],"x":2}]`,
		},
		{
			name:   "last array wins for children",
			raw:    `[{"id":"p","elements":[{"id":"old"}],"elements":[{"id":"c"}]}]`,
			target: "c",
			repl:   `{"id":"c2"}`,
			want:   `[{"id":"p","elements":[{"id":"old"}],"elements":[{"id":"c2"}]}]`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, found := ReplaceElement(mustParse(t, tc.raw), tc.target, mustElement(t, tc.repl))
			require.True(t, found)
			assert.Equal(t, tc.want, string(got.Bytes()))
		})
	}
}

func TestRepeatedIDMatchesLastOccurrence(t *testing.T) {
	doc := mustParse(t, `[{"id":"p","id":"q"}]`)

	_, found := ReplaceElement(doc, "p", mustElement(t, `{"id":"x"}`))
	assert.False(t, found)

	got, found := ReplaceElement(doc, "q", mustElement(t, `{"id":"x"}`))
	require.True(t, found)
	assert.Equal(t, `[{"id":"x"}]`, string(got.Bytes()))
}
