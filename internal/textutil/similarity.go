package textutil

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// NearDuplicate reports whether a and b say essentially the same thing.
// Texts without any token of three or more characters are compared verbatim.
func NearDuplicate(a, b string, threshold float64) bool {
	fa, fb := NewFingerprint(a), NewFingerprint(b)
	if fa == nil || fb == nil {
		return fa == nil && fb == nil && a == b
	}
	return CosineSimilarity(fa, fb) >= threshold
}
