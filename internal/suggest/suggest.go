// Package suggest provides closest-match hints for mistyped profile and
// exercise names using Levenshtein distance.
package suggest

import (
	"strings"
)

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Create matrix
	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	// Fill matrix
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// Names finds entries similar to the unknown input among the valid names.
// Returns suggestions sorted by similarity (best first), at most three.
func Names(unknown string, valid []string) []string {
	unknown = strings.ToLower(unknown)

	type scored struct {
		name  string
		score int
	}
	var candidates []scored

	for _, name := range valid {
		dist := levenshtein(unknown, strings.ToLower(name))

		// Only suggest if reasonably close (within 3 edits or 50% of length)
		maxDist := max(3, len(unknown)/2)
		if dist <= maxDist {
			candidates = append(candidates, scored{name, dist})
		}
	}

	// Sort by score (lower is better)
	for i := 0; i < len(candidates)-1; i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].score < candidates[i].score {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}

	// Return top 3 suggestions
	var result []string
	for i := 0; i < len(candidates) && i < 3; i++ {
		result = append(result, candidates[i].name)
	}
	return result
}
