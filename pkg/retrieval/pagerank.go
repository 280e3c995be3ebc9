package retrieval

import (
	"math"
	"sort"

	"github.com/ternhq/tern/pkg/common"
	"github.com/ternhq/tern/pkg/logger"
)

// RankedNode is one node with its ranking score.
type RankedNode struct {
	ID    string
	Score float64
}

type rankingParams struct {
	damping       float64
	tolerance     float64
	maxIterations int
}

type outEdge struct {
	target int
	prob   float64
}

// rankNodes runs Personalized PageRank over the group's adjacency with the
// given seed as teleportation vector: v = (1-d)*seed + d*M^T*v, iterated to
// the tolerance or the iteration cap.
//
// The node universe is the union of adjacency nodes and seed nodes, walked
// in sorted id order, so identical inputs always produce identical output.
// Dangling nodes redistribute their mass uniformly; the result is a valid
// probability distribution for any topology. At the iteration cap the best
// iterate seen so far is returned instead of an error.
func rankNodes(seed map[string]float64, adj *common.Adjacency, p rankingParams) []RankedNode {
	ids := nodeUniverse(seed, adj)
	n := len(ids)
	if n == 0 {
		return nil
	}

	index := make(map[string]int, n)
	for i, id := range ids {
		index[id] = i
	}

	seedVec := make([]float64, n)
	seedSum := 0.0
	for id, w := range seed {
		if w > 0 {
			seedVec[index[id]] = w
			seedSum += w
		}
	}
	if seedSum > 0 {
		for i := range seedVec {
			seedVec[i] /= seedSum
		}
	} else {
		for i := range seedVec {
			seedVec[i] = 1 / float64(n)
		}
	}

	out := buildTransitions(ids, index, adj)

	v := make([]float64, n)
	copy(v, seedVec)

	best := make([]float64, n)
	copy(best, v)
	bestDelta := math.Inf(1)

	converged := false
	for it := 0; it < p.maxIterations; it++ {
		next := make([]float64, n)

		danglingMass := 0.0
		for i := 0; i < n; i++ {
			if len(out[i]) == 0 {
				danglingMass += v[i]
				continue
			}
			for _, e := range out[i] {
				next[e.target] += p.damping * v[i] * e.prob
			}
		}

		danglingShare := p.damping * danglingMass / float64(n)
		for i := 0; i < n; i++ {
			next[i] += danglingShare + (1-p.damping)*seedVec[i]
		}

		delta := 0.0
		for i := 0; i < n; i++ {
			delta += math.Abs(next[i] - v[i])
		}
		v = next

		if delta < bestDelta {
			bestDelta = delta
			copy(best, v)
		}
		if delta <= p.tolerance {
			converged = true
			break
		}
	}
	if !converged {
		logger.Debug("[Retrieval][Ranking] Iteration cap reached, using best iterate",
			"iterations", p.maxIterations, "delta", bestDelta)
		v = best
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		if v[i] < 0 {
			v[i] = 0
		}
		sum += v[i]
	}
	if sum > 0 {
		for i := range v {
			v[i] /= sum
		}
	}

	ranked := make([]RankedNode, n)
	for i, id := range ids {
		ranked[i] = RankedNode{ID: id, Score: v[i]}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked
}

// nodeUniverse returns the sorted union of adjacency and seed node ids.
func nodeUniverse(seed map[string]float64, adj *common.Adjacency) []string {
	seen := map[string]struct{}{}
	var ids []string

	if adj != nil {
		for _, id := range adj.NodeIDs() {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for id := range seed {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids
}

// buildTransitions row-normalizes the adjacency into per-source transition
// probabilities. Edges with non-positive weight are ignored; a source with
// no positive out-weight is dangling.
func buildTransitions(ids []string, index map[string]int, adj *common.Adjacency) [][]outEdge {
	out := make([][]outEdge, len(ids))
	if adj == nil {
		return out
	}

	for _, id := range ids {
		edges := adj.Out[id]
		if len(edges) == 0 {
			continue
		}

		outSum := 0.0
		for _, e := range edges {
			if e.Weight > 0 {
				outSum += e.Weight
			}
		}
		if outSum <= 0 {
			continue
		}

		src := index[id]
		for _, e := range edges {
			if e.Weight <= 0 {
				continue
			}
			target, ok := index[e.TargetID]
			if !ok {
				continue
			}
			out[src] = append(out[src], outEdge{target: target, prob: e.Weight / outSum})
		}
	}

	return out
}
