package markup

import "strings"

// Differ produces a human-readable diff of two revisions of post text for
// edit-history pages and edit notification emails.
type Differ interface {
	Diff(before, after string) string
}

// WordDiffer is the default Differ. It diffs at word granularity and wraps
// removed runs in <del> and added runs in <ins>.
type WordDiffer struct{}

var _ Differ = WordDiffer{}

func (WordDiffer) Diff(before, after string) string {
	a := strings.Fields(before)
	b := strings.Fields(after)

	// Standard LCS table; revision bodies are small enough that quadratic
	// space has never mattered here.
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []string
	flush := func(words []string, tag string) {
		if len(words) > 0 {
			out = append(out, "<"+tag+">"+strings.Join(words, " ")+"</"+tag+">")
		}
	}

	var deleted, inserted []string
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] == b[j] {
			flush(deleted, "del")
			flush(inserted, "ins")
			deleted, inserted = nil, nil
			out = append(out, a[i])
			i++
			j++
		} else if lcs[i+1][j] >= lcs[i][j+1] {
			deleted = append(deleted, a[i])
			i++
		} else {
			inserted = append(inserted, b[j])
			j++
		}
	}
	deleted = append(deleted, a[i:]...)
	inserted = append(inserted, b[j:]...)
	flush(deleted, "del")
	flush(inserted, "ins")

	return strings.Join(out, " ")
}
