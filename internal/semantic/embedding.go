package semantic

import "math"

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty, zero-length, or the dimensions disagree. Mismatched vectors score
// as unrelated rather than erroring because similarity is advisory.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
