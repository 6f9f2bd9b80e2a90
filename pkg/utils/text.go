package utils

import (
	"regexp"
	"strings"
)

var (
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	pageMarkerRe = regexp.MustCompile(`--- Page \d+ ---`)
	lineNumberRe = regexp.MustCompile(`(?m)^\s*\d+→`)
	blankLinesRe = regexp.MustCompile(`\n\s*\n`)
)

// NormalizeName lowercases a name, replaces punctuation with spaces, and
// collapses runs of whitespace. Two items whose normalized names match are
// treated as referring to the same thing.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = nonAlnumRe.ReplaceAllString(name, " ")
	name = whitespaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// Slugify converts a name into a canonical-ID-safe slug.
func Slugify(name string) string {
	return strings.ReplaceAll(NormalizeName(name), " ", "_")
}

// CleanManualText strips PDF conversion artifacts from manual text: page
// markers, leading line numbers, and excess whitespace.
func CleanManualText(text string) string {
	text = pageMarkerRe.ReplaceAllString(text, "")
	text = lineNumberRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Similarity computes the Ratcliff-Obershelp ratio of two strings in [0, 1],
// matching Python's difflib.SequenceMatcher so thresholds tuned against the
// original dedupe runs carry over.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	matched := matchTotal(ra, rb)
	return 2.0 * float64(matched) / float64(len(ra)+len(rb))
}

func matchTotal(a, b []rune) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchTotal(a[:ai], b[:bi])
	total += matchTotal(a[ai+size:], b[bi+size:])
	return total
}

// longestMatch finds the longest common substring of a and b, preferring the
// earliest occurrence, using the same j2len rolling map as difflib.
func longestMatch(a, b []rune) (bestI, bestJ, bestSize int) {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	j2len := make(map[int]int)
	for i, r := range a {
		newJ2len := make(map[int]int)
		for _, j := range b2j[r] {
			k := j2len[j-1] + 1
			newJ2len[j] = k
			if k > bestSize {
				bestI, bestJ, bestSize = i-k+1, j-k+1, k
			}
		}
		j2len = newJ2len
	}
	return bestI, bestJ, bestSize
}
