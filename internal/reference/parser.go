// Package reference extracts structured issue/PR references from free-form
// text. Pure text scanning, no I/O; malformed fragments are skipped rather
// than reported.
package reference

import (
	"iter"
	"regexp"
	"strconv"
)

// Ref is one parsed reference candidate. Owner and Repo are empty for
// same-repository shorthand mentions like "#42".
type Ref struct {
	Owner  string
	Repo   string
	Number int
}

// SameRepo reports whether the reference omits an explicit owner/repo.
func (r Ref) SameRepo() bool {
	return r.Owner == "" && r.Repo == ""
}

// refPattern matches, in order of alternation:
//   - full GitHub issue/PR URLs: https://github.com/owner/repo/issues/42,
//     https://github.com/owner/repo/pull/42
//   - shorthand mentions: owner/repo#42 and bare #42
//
// Digit runs are capped so absurd fragments fall out at the regexp rather
// than overflowing the number parse.
var refPattern = regexp.MustCompile(
	`https?://(?:www\.)?github\.com/([A-Za-z0-9][A-Za-z0-9-]*)/([A-Za-z0-9._-]+)/(?:issues|pull)/([0-9]{1,9})` +
		`|(?:\b([A-Za-z0-9][A-Za-z0-9-]*)/([A-Za-z0-9._-]+))?#([0-9]{1,9})\b`)

// ParseRefs returns a lazy sequence of references found in text, in document
// order. The sequence is finite and restartable: each range over it rescans
// from the start.
func ParseRefs(text string) iter.Seq[Ref] {
	return func(yield func(Ref) bool) {
		pos := 0
		for pos < len(text) {
			loc := refPattern.FindStringSubmatchIndex(text[pos:])
			if loc == nil {
				return
			}

			ref, ok := refAt(text[pos:], loc)
			pos += loc[1]
			if !ok {
				continue
			}
			if !yield(ref) {
				return
			}
		}
	}
}

// refAt assembles a Ref from the submatch index pairs of one match.
func refAt(s string, loc []int) (Ref, bool) {
	group := func(i int) string {
		if loc[2*i] < 0 {
			return ""
		}
		return s[loc[2*i]:loc[2*i+1]]
	}

	var ref Ref
	var num string
	if num = group(3); num != "" {
		ref.Owner = group(1)
		ref.Repo = group(2)
	} else if num = group(6); num != "" {
		ref.Owner = group(4)
		ref.Repo = group(5)
	} else {
		return Ref{}, false
	}

	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return Ref{}, false
	}
	ref.Number = n
	return ref, true
}
