package reference

import (
	"reflect"
	"testing"
)

func collect(text string) []Ref {
	var refs []Ref
	for ref := range ParseRefs(text) {
		refs = append(refs, ref)
	}
	return refs
}

func TestParseRefs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Ref
	}{
		{
			name: "issue URL",
			text: "depends on https://github.com/acme/widgets/issues/42",
			want: []Ref{{Owner: "acme", Repo: "widgets", Number: 42}},
		},
		{
			name: "pull URL",
			text: "see https://github.com/acme/widgets/pull/7 for the fix",
			want: []Ref{{Owner: "acme", Repo: "widgets", Number: 7}},
		},
		{
			name: "http and www accepted",
			text: "http://www.github.com/acme/widgets/issues/1",
			want: []Ref{{Owner: "acme", Repo: "widgets", Number: 1}},
		},
		{
			name: "shorthand with owner and repo",
			text: "Fixes acme/widgets#42",
			want: []Ref{{Owner: "acme", Repo: "widgets", Number: 42}},
		},
		{
			name: "bare shorthand has no owner or repo",
			text: "duplicate of #13",
			want: []Ref{{Number: 13}},
		},
		{
			name: "multiple references in document order",
			text: "Fixes acme/widgets#1, see also https://github.com/other/thing/issues/2 and #3",
			want: []Ref{
				{Owner: "acme", Repo: "widgets", Number: 1},
				{Owner: "other", Repo: "thing", Number: 2},
				{Number: 3},
			},
		},
		{
			name: "repo names with dots and dashes",
			text: "see foo-bar/baz.js#10",
			want: []Ref{{Owner: "foo-bar", Repo: "baz.js", Number: 10}},
		},
		{
			name: "hash without number is skipped",
			text: "use #hashtag style",
			want: nil,
		},
		{
			name: "unrelated URL is skipped",
			text: "https://example.com/acme/widgets/issues/42 is not github",
			want: nil,
		},
		{
			name: "zero is not a valid number",
			text: "nothing at #0",
			want: nil,
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseRefs(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseRefsRestartable(t *testing.T) {
	seq := ParseRefs("a/b#1 c/d#2")

	first := make([]Ref, 0, 2)
	for ref := range seq {
		first = append(first, ref)
	}
	second := make([]Ref, 0, 2)
	for ref := range seq {
		second = append(second, ref)
	}

	if len(first) != 2 || !reflect.DeepEqual(first, second) {
		t.Errorf("second pass = %+v, want same as first pass %+v", second, first)
	}
}

func TestParseRefsEarlyStop(t *testing.T) {
	count := 0
	for range ParseRefs("#1 #2 #3") {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("stopped after %d refs, want 2", count)
	}
}
