package shingle

/*
Responsibilities
- Compute a document's exact content hash
- Compute a document's shingle set for near-duplicate detection
- Score similarity against previously stored shingle sets

Knows nothing about storage, fetching, or the frontier.
*/

// Set is a document's shingle fingerprint: the distinct CRC-32 hashes of
// every sliding SHINGLE_SIZE-token window across its stripped text.
type Set map[uint32]struct{}

// Len returns the number of distinct shingle hashes in the set.
func (s Set) Len() int {
	return len(s)
}

// Intersection counts shingle hashes present in both s and other.
func (s Set) Intersection(other Set) int {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	count := 0
	for h := range small {
		if _, ok := big[h]; ok {
			count++
		}
	}
	return count
}

// Similarity computes the source's preserved (non-standard) similarity
// formula against a stored shingle set of length storedLen:
//
//	i / (storedLen + |s| - i)
//
// where i = |s ∩ stored|. This is arithmetically identical to true
// Jaccard only when storedLen equals |stored ∪ s| - |s| + i, which the
// source's own SQL does not guarantee; the formula is preserved exactly
// as-is rather than "fixed" to a derived union (see DESIGN.md, P11).
func (s Set) Similarity(stored Set, storedLen int) float64 {
	intersection := s.Intersection(stored)
	denom := storedLen + len(s) - intersection
	if denom <= 0 {
		return 0
	}
	return float64(intersection) / float64(denom)
}
