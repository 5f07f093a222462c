package catalog

// SimilarityRatio computes a sequence-similarity ratio in [0, 1] between two
// strings: twice the number of matched characters over the combined length,
// where matches are accumulated from recursively located longest common
// substrings. Identical strings score 1.0, disjoint strings 0.0.
func SimilarityRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	ra := []rune(a)
	rb := []rune(b)
	matched := matchedRunes(ra, rb)
	return 2.0 * float64(matched) / float64(len(ra)+len(rb))
}

func matchedRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	ai, bi, size := longestCommonRun(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchedRunes(a[:ai], b[:bi])
	total += matchedRunes(a[ai+size:], b[bi+size:])
	return total
}

// longestCommonRun finds the longest common substring of a and b, returning
// its start offsets and length. Earlier occurrences win ties.
func longestCommonRun(a, b []rune) (int, int, int) {
	bestA, bestB, bestSize := 0, 0, 0
	// lengths[j] holds the common-run length ending at a[i-1], b[j-1].
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prevDiag := 0
		for j := 1; j <= len(b); j++ {
			tmp := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = prevDiag + 1
				if lengths[j] > bestSize {
					bestSize = lengths[j]
					bestA = i - bestSize
					bestB = j - bestSize
				}
			} else {
				lengths[j] = 0
			}
			prevDiag = tmp
		}
	}
	return bestA, bestB, bestSize
}
