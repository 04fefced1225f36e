// Package textsim provides the string-similarity heuristics behind
// duplicate-content detection.
//
// Two distinct definitions are kept on purpose: Similarity (Levenshtein
// with a Jaccard fallback for long inputs) feeds the plagiarism check on
// review submissions, while MatchRatio (longest-common-substring
// percentage) feeds the fraud engine's content sub-score. Their
// thresholds were tuned independently and the two are not interchangeable.
package textsim

import "strings"

// maxEditDistanceLen is the length above which Similarity switches from
// edit distance to token-set overlap. Edit distance is O(n*m); the
// plagiarism scan compares a submission against up to 100 historical
// reviews, so long texts take the cheaper approximation.
const maxEditDistanceLen = 255

// Similarity returns a score in [0,1] for two strings. Callers are
// expected to lowercase and trim the inputs first.
//
// Short inputs use normalized Levenshtein distance; inputs longer than
// 255 characters use Jaccard similarity over whitespace-delimited token
// sets. Two empty strings are defined as identical (1.0).
func Similarity(a, b string) float64 {
	if len(a) > maxEditDistanceLen || len(b) > maxEditDistanceLen {
		return Jaccard(a, b)
	}
	if a == "" && b == "" {
		return 1.0
	}

	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1.0 - float64(Levenshtein(ra, rb))/float64(longest)
}

// Jaccard computes intersection-over-union of the two strings' token
// sets (duplicates removed). An empty union yields 0.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	union := len(setB)
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(s) {
		set[tok] = true
	}
	return set
}

// Levenshtein computes the edit distance between two rune slices using
// a two-row dynamic programming table.
func Levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// MatchRatio returns the percentage [0,100] of matching characters
// between two strings, computed the way PHP's similar_text does:
// find the longest common substring, then recurse into the unmatched
// left and right remainders and sum the match lengths.
func MatchRatio(a, b string) float64 {
	if len(a)+len(b) == 0 {
		return 0.0
	}
	matched := similarChars(a, b)
	return float64(matched*2) / float64(len(a)+len(b)) * 100.0
}

func similarChars(a, b string) int {
	posA, posB, max := longestCommonSubstring(a, b)
	if max == 0 {
		return 0
	}
	sum := max
	sum += similarChars(a[:posA], b[:posB])
	sum += similarChars(a[posA+max:], b[posB+max:])
	return sum
}

func longestCommonSubstring(a, b string) (posA, posB, max int) {
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			n := 0
			for i+n < len(a) && j+n < len(b) && a[i+n] == b[j+n] {
				n++
			}
			if n > max {
				posA, posB, max = i, j, n
			}
		}
	}
	return posA, posB, max
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
