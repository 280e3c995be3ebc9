package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ternhq/tern/pkg/common"
	"github.com/ternhq/tern/pkg/logger"
)

// passageEvidence is one admitted passage with the bookkeeping the token
// budget and assembly need.
type passageEvidence struct {
	passage common.Passage
	score   float64 // ranking score of the admitting node
	tier    int     // tierRank of the admitting node's seed origin
	order   int     // admission order within the pipeline run
	tokens  int
}

// passageCapForScore maps a node's ranking score to its passage budget by
// linear interpolation between minCap and maxCap on the score's fraction
// of the top score. Pure function.
func passageCapForScore(score, topScore float64, minCap, maxCap int) int {
	if minCap > maxCap {
		minCap = maxCap
	}
	if score <= 0 || topScore <= 0 {
		return minCap
	}
	ratio := score / topScore
	if ratio > 1 {
		ratio = 1
	}
	return minCap + int(math.Round(ratio*float64(maxCap-minCap)))
}

// budgetEvidence converts the pruned ranking into a deduplicated passage
// set under all caps. Nodes are visited in rank order; a passage already
// admitted through an earlier node is skipped before it is counted against
// any cap or the global budget.
func (c *GraphRetrievalClient) budgetEvidence(
	ctx context.Context,
	groupID string,
	pruned []RankedNode,
	origins map[string]int,
) ([]passageEvidence, error) {
	if len(pruned) == 0 {
		return nil, nil
	}

	nodeIDs := make([]string, len(pruned))
	for i, rn := range pruned {
		nodeIDs[i] = rn.ID
	}
	passagesByNode, err := c.store.GetPassagesForNodes(ctx, groupID, nodeIDs, c.options.maxNodeCap)
	if err != nil {
		return nil, fmt.Errorf("fetch passages for ranked nodes: %w", err)
	}

	topScore := pruned[0].Score
	seen := map[string]struct{}{}
	sectionCount := map[string]int{}
	documentCount := map[string]int{}

	var admitted []passageEvidence
	for _, rn := range pruned {
		nodeCap := passageCapForScore(rn.Score, topScore, c.options.minNodeCap, c.options.maxNodeCap)
		origin, ok := origins[rn.ID]
		if !ok {
			origin = tierRank("")
		}

		taken := 0
		for _, p := range passagesByNode[rn.ID] {
			if taken >= nodeCap {
				break
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			if sectionCount[p.SectionID] >= c.options.sectionCap {
				continue
			}
			if documentCount[p.DocumentID] >= c.options.documentCap {
				continue
			}

			seen[p.ID] = struct{}{}
			sectionCount[p.SectionID]++
			documentCount[p.DocumentID]++
			admitted = append(admitted, passageEvidence{
				passage: p,
				score:   rn.Score,
				tier:    origin,
				order:   len(admitted),
				tokens:  c.countTokens(p.Text),
			})
			taken++
		}
	}

	kept := enforceTokenBudget(admitted, c.options.tokenBudget)
	if dropped := len(admitted) - len(kept); dropped > 0 {
		logger.Debug("[Retrieval][Budget] Token budget trimmed evidence",
			"admitted", len(admitted), "dropped", dropped, "budget", c.options.tokenBudget)
	}

	ids := make([]string, len(kept))
	for i, ev := range kept {
		ids[i] = ev.passage.ID
	}
	RecordUsedPassageIDs(c.options.tracer, ids...)

	return kept, nil
}

// enforceTokenBudget drops passages until the summed token count fits the
// budget. Lowest priority drops first: weaker tier origin, then lower node
// score, then the latest admission. The last remaining passage is never
// dropped, so evidence that exists is always represented. Survivors keep
// their relative order.
func enforceTokenBudget(evidence []passageEvidence, budget int) []passageEvidence {
	if budget <= 0 || len(evidence) == 0 {
		return evidence
	}

	total := 0
	for _, ev := range evidence {
		total += ev.tokens
	}
	if total <= budget {
		return evidence
	}

	dropOrder := make([]int, len(evidence))
	for i := range dropOrder {
		dropOrder[i] = i
	}
	sort.Slice(dropOrder, func(a, b int) bool {
		x, y := evidence[dropOrder[a]], evidence[dropOrder[b]]
		if x.tier != y.tier {
			return x.tier > y.tier
		}
		if x.score != y.score {
			return x.score < y.score
		}
		return x.order > y.order
	})

	dropped := map[int]struct{}{}
	for _, idx := range dropOrder {
		if total <= budget || len(dropped) == len(evidence)-1 {
			break
		}
		dropped[idx] = struct{}{}
		total -= evidence[idx].tokens
	}

	kept := make([]passageEvidence, 0, len(evidence)-len(dropped))
	for i, ev := range evidence {
		if _, gone := dropped[i]; gone {
			continue
		}
		kept = append(kept, ev)
	}
	return kept
}
