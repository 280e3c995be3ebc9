package retrieval

const confidenceTopNodes = 3

// confidenceScore rates a set of sub-question results in [0, 1] from two
// equally weighted components:
//
//   - diversity: the fraction of results whose evidence covers at least one
//     document no earlier result covered, so decompositions that keep
//     hitting the same material score low;
//   - concentration: per result, the score mass held by its top ranked
//     nodes relative to all its nodes, averaged; a flat, unfocused ranking
//     scores low.
//
// Results without evidence contribute zero to both components.
func confidenceScore(results []*pipelineResult) float64 {
	if len(results) == 0 {
		return 0
	}

	seenDocs := map[string]struct{}{}
	diverse := 0
	concentration := 0.0

	for _, res := range results {
		if res == nil {
			continue
		}

		newDoc := false
		for _, ev := range res.evidence {
			if _, ok := seenDocs[ev.passage.DocumentID]; !ok {
				seenDocs[ev.passage.DocumentID] = struct{}{}
				newDoc = true
			}
		}
		if newDoc {
			diverse++
		}

		concentration += topScoreMass(res.ranked, confidenceTopNodes)
	}

	n := float64(len(results))
	diversity := float64(diverse) / n
	concentration /= n

	return 0.5*diversity + 0.5*concentration
}

// topScoreMass returns the share of total score held by the top n nodes of
// a descending ranking.
func topScoreMass(ranked []RankedNode, n int) float64 {
	if len(ranked) == 0 {
		return 0
	}

	total := 0.0
	top := 0.0
	for i, rn := range ranked {
		total += rn.Score
		if i < n {
			top += rn.Score
		}
	}
	if total <= 0 {
		return 0
	}
	return top / total
}
