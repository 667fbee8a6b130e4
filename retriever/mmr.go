package retriever

import "math"

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float64) float64 {
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

// maximalMarginalRelevance picks k of the candidates, which must be sorted by
// descending query similarity.
func maximalMarginalRelevance(candidates []scored, k int, lambda float64) []scored {
	if len(candidates) == 0 || k <= 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	selected := []scored{candidates[0]}
	used := make([]bool, len(candidates))
	used[0] = true

	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)

		for i, c := range candidates {
			if used[i] {
				continue
			}

			redundancy := math.Inf(-1)
			for _, s := range selected {
				redundancy = math.Max(redundancy, cosineSimilarity(c.vector, s.vector))
			}

			score := lambda*c.score - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}

		used[best] = true
		selected = append(selected, candidates[best])
	}

	return selected
}
