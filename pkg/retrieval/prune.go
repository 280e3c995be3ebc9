package retrieval

import (
	"sort"

	"github.com/ternhq/tern/pkg/common"
)

// applyClusterPenalty sharpens a ranking toward the clusters of its top-K
// nodes by multiplying every outside node's score by penalty. Nodes
// without a cluster assignment count as outside. When no top-K node has a
// cluster assignment there is nothing to sharpen toward and the ranking is
// returned unchanged. The input slice is not modified.
func applyClusterPenalty(ranked []RankedNode, clusters []common.Cluster, topK int, penalty float64) []RankedNode {
	if len(ranked) == 0 || len(clusters) == 0 || topK <= 0 {
		return ranked
	}

	clusterOf := map[string]string{}
	for _, c := range clusters {
		for _, id := range c.NodeIDs {
			clusterOf[id] = c.ID
		}
	}

	targets := map[string]struct{}{}
	limit := topK
	if limit > len(ranked) {
		limit = len(ranked)
	}
	for _, rn := range ranked[:limit] {
		if cid, ok := clusterOf[rn.ID]; ok {
			targets[cid] = struct{}{}
		}
	}
	if len(targets) == 0 {
		return ranked
	}

	penalized := make([]RankedNode, len(ranked))
	copy(penalized, ranked)
	for i, rn := range penalized {
		cid, ok := clusterOf[rn.ID]
		if !ok {
			penalized[i].Score *= penalty
			continue
		}
		if _, target := targets[cid]; !target {
			penalized[i].Score *= penalty
		}
	}

	sortRanked(penalized)
	return penalized
}

// pruneByScoreGap truncates a ranking at the first relative drop between
// consecutive scores that reaches gapThreshold, and additionally discards
// every node scoring below minScoreRatio of the top score. Whichever cut
// discards more wins.
//
// The kept prefix never contains a drop at or above the threshold and
// never falls below the ratio floor, so pruning its own output with the
// same parameters is a no-op. The input slice is not modified.
func pruneByScoreGap(ranked []RankedNode, gapThreshold, minScoreRatio float64) []RankedNode {
	if len(ranked) <= 1 {
		return ranked
	}

	sorted := make([]RankedNode, len(ranked))
	copy(sorted, ranked)
	sortRanked(sorted)

	cut := len(sorted)
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1].Score
		if prev <= 0 {
			cut = i
			break
		}
		if (prev-sorted[i].Score)/prev >= gapThreshold {
			cut = i
			break
		}
	}

	if top := sorted[0].Score; top > 0 && minScoreRatio > 0 {
		for i := 1; i < cut; i++ {
			if sorted[i].Score/top < minScoreRatio {
				cut = i
				break
			}
		}
	}

	return sorted[:cut]
}

func sortRanked(ranked []RankedNode) {
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
}
