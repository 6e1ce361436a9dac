package pagestore

import "sort"

const rrfK = 60

// FuseRRF combines a semantic-ranked list and a lexical-ranked list into a
// single ranking using Reciprocal Rank Fusion:
//
//	score(u) = semanticWeight/(k+rank_sem(u)) + (1-semanticWeight)/(k+rank_lex(u))
//
// with k=60, exactly as specified in spec §4.1. Ties are broken by lexical
// score descending, then URL lexicographic ascending, so that fusion is
// deterministic given identical inputs (testable property 5 in spec §8).
func FuseRRF(semantic, lexical []PageRef, semanticWeight float64, limit int) []PageRef {
	type entry struct {
		url       string
		score     float64
		lexScore  float64
		hasLex    bool
	}
	fused := make(map[string]*entry)

	for rank, r := range semantic {
		e, ok := fused[r.URL]
		if !ok {
			e = &entry{url: r.URL}
			fused[r.URL] = e
		}
		e.score += semanticWeight / float64(rrfK+rank+1)
	}
	for rank, r := range lexical {
		e, ok := fused[r.URL]
		if !ok {
			e = &entry{url: r.URL}
			fused[r.URL] = e
		}
		e.score += (1 - semanticWeight) / float64(rrfK+rank+1)
		e.lexScore = r.Score
		e.hasLex = true
	}

	out := make([]*entry, 0, len(fused))
	for _, e := range fused {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].lexScore != out[j].lexScore {
			return out[i].lexScore > out[j].lexScore
		}
		return out[i].url < out[j].url
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	refs := make([]PageRef, len(out))
	for i, e := range out {
		refs[i] = PageRef{URL: e.url, Score: e.score}
	}
	return refs
}
