package retrieval

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	gUtil "github.com/ternhq/tern/internal/util"
	"github.com/ternhq/tern/pkg/ai"
	"github.com/ternhq/tern/pkg/common"
	"github.com/ternhq/tern/pkg/logger"
	"github.com/ternhq/tern/pkg/store"
)

const (
	tierEntity     = "entity"
	tierStructural = "structural"
	tierThematic   = "thematic"
)

// seedGroup is one semantically meaningful unit inside a tier result: the
// nodes resolved from one extracted mention, one matched section, or one
// matched passage. Weight is divided across groups before it is divided
// across member nodes.
type seedGroup struct {
	key     string
	nodeIDs []string
}

// tierResult is the outcome of one resolver. An empty result with degraded
// set means the tier failed externally and was recovered; an empty result
// without it means the tier legitimately found nothing.
type tierResult struct {
	tier     string
	groups   []seedGroup
	degraded bool

	// structural tier only
	multiDocument bool
	comparison    bool
}

func (r tierResult) nodeCount() int {
	seen := map[string]struct{}{}
	for _, g := range r.groups {
		for _, id := range g.nodeIDs {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// resolveTiers fans the three resolvers out concurrently and joins on all
// of them. Each resolver runs under its own timeout; a tier that times out
// degrades to an empty result instead of failing the query. Store failures
// and query cancellation abort the whole resolution.
func (c *GraphRetrievalClient) resolveTiers(
	ctx context.Context,
	query string,
	groupID string,
) ([]tierResult, error) {
	results := make([]tierResult, 3)

	g, gCtx := errgroup.WithContext(ctx)
	run := func(idx int, tier string, resolve func(context.Context) (tierResult, error)) {
		g.Go(func() error {
			tierCtx, cancel := context.WithTimeout(gCtx, c.options.tierTimeout)
			defer cancel()

			res, err := resolve(tierCtx)
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					logger.Warn("[Retrieval][Tiers] Tier timed out, degrading to empty result", "tier", tier, "err", err)
					results[idx] = tierResult{tier: tier, degraded: true}
					return nil
				}
				return fmt.Errorf("%s tier: %w", tier, err)
			}
			results[idx] = res
			return nil
		})
	}

	run(0, tierEntity, func(tc context.Context) (tierResult, error) {
		return c.resolveEntityTier(tc, query, groupID)
	})
	run(1, tierStructural, func(tc context.Context) (tierResult, error) {
		return c.resolveStructuralTier(tc, query, groupID)
	})
	run(2, tierThematic, func(tc context.Context) (tierResult, error) {
		return c.resolveThematicTier(tc, query, groupID)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug("[Retrieval][Tiers] Resolved seed tiers",
		"entity_nodes", results[0].nodeCount(),
		"structural_nodes", results[1].nodeCount(),
		"thematic_nodes", results[2].nodeCount(),
	)

	return results, nil
}

// resolveEntityTier extracts entity mentions from the query and resolves
// each mention to nodes by exact name or alias match. One seed group per
// mention that resolved to at least one node.
func (c *GraphRetrievalClient) resolveEntityTier(
	ctx context.Context,
	query string,
	groupID string,
) (tierResult, error) {
	result := tierResult{tier: tierEntity}

	res, err := ai.CallQueryEntityExtraction(ctx, query, c.aiClient, c.options.maxRetries)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return tierResult{}, err
		}
		logger.Warn("[Retrieval][EntityTier] Entity extraction failed, degrading to empty result", "err", err)
		result.degraded = true
		return result, nil
	}

	terms := gUtil.FoldTerms(res.Mentions)
	if len(terms) == 0 {
		return result, nil
	}

	for _, term := range terms {
		nodes, err := c.store.ResolveNodesByTerm(ctx, groupID, []string{term})
		if err != nil {
			return tierResult{}, fmt.Errorf("resolve nodes for term %q: %w", term, err)
		}
		if len(nodes) == 0 {
			continue
		}
		group := seedGroup{key: term, nodeIDs: make([]string, 0, len(nodes))}
		for _, n := range nodes {
			group.nodeIDs = append(group.nodeIDs, n.ID)
		}
		result.groups = append(result.groups, group)
		RecordSeedNodeIDs(c.options.tracer, tierEntity, group.nodeIDs...)
	}

	return result, nil
}

// resolveStructuralTier matches the query against section embeddings and,
// concurrently, asks the relevance classifier to pick sections directly.
// Both candidate sets are unioned for recall. Member nodes come strictly
// from passage mentions scoped to the matched sections; title or path
// substring matching is never used.
func (c *GraphRetrievalClient) resolveStructuralTier(
	ctx context.Context,
	query string,
	groupID string,
) (tierResult, error) {
	result := tierResult{tier: tierStructural}

	var (
		embMatches []store.SectionMatch
		embFailed  bool
		clsRes     *ai.ScopeClassificationResponse
		clsFailed  bool
		catalog    []common.Section
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		embedding, err := c.generateQueryEmbedding(gCtx, query)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return err
			}
			logger.Warn("[Retrieval][StructuralTier] Query embedding failed, skipping embedding match", "err", err)
			embFailed = true
			return nil
		}
		matches, err := c.store.SearchSectionsByEmbedding(gCtx, groupID, embedding, c.options.structuralMinSimilarity)
		if err != nil {
			return fmt.Errorf("search sections: %w", err)
		}
		embMatches = matches
		return nil
	})
	g.Go(func() error {
		if c.options.classifierMaxSections <= 0 {
			return nil
		}
		sections, err := c.store.GetSections(gCtx, groupID)
		if err != nil {
			return fmt.Errorf("load section catalog: %w", err)
		}
		if len(sections) > c.options.classifierMaxSections {
			sections = sections[:c.options.classifierMaxSections]
		}
		catalog = sections

		res, err := ai.CallScopeClassification(gCtx, query, sections, c.aiClient, c.options.maxRetries)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return err
			}
			logger.Warn("[Retrieval][StructuralTier] Scope classification failed, skipping classifier match", "err", err)
			clsFailed = true
			return nil
		}
		clsRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return tierResult{}, err
	}

	sectionDocs := map[string]string{}
	var sectionIDs []string
	for _, m := range embMatches {
		if _, ok := sectionDocs[m.Section.ID]; ok {
			continue
		}
		sectionDocs[m.Section.ID] = m.Section.DocumentID
		sectionIDs = append(sectionIDs, m.Section.ID)
	}
	if clsRes != nil {
		docByID := make(map[string]string, len(catalog))
		for _, s := range catalog {
			docByID[s.ID] = s.DocumentID
		}
		for _, id := range clsRes.SectionIDs {
			if _, ok := sectionDocs[id]; ok {
				continue
			}
			sectionDocs[id] = docByID[id]
			sectionIDs = append(sectionIDs, id)
		}
		result.multiDocument = clsRes.MultiDocument
		result.comparison = clsRes.Comparison
	}

	if embFailed && (clsFailed || c.options.classifierMaxSections <= 0) {
		result.degraded = true
		return result, nil
	}
	if len(sectionIDs) == 0 {
		return result, nil
	}

	documents := map[string]struct{}{}
	for _, doc := range sectionDocs {
		if doc != "" {
			documents[doc] = struct{}{}
		}
	}
	if len(documents) > 1 {
		result.multiDocument = true
	}

	RecordConsideredSectionIDs(c.options.tracer, sectionIDs...)

	members, err := c.store.GetSectionNodes(ctx, groupID, sectionIDs)
	if err != nil {
		return tierResult{}, fmt.Errorf("resolve section members: %w", err)
	}
	for _, id := range sectionIDs {
		nodeIDs := members[id]
		if len(nodeIDs) == 0 {
			continue
		}
		result.groups = append(result.groups, seedGroup{key: id, nodeIDs: nodeIDs})
		RecordSeedNodeIDs(c.options.tracer, tierStructural, nodeIDs...)
	}

	return result, nil
}

// resolveThematicTier runs nearest-neighbor search over passage embeddings
// and seeds the nodes those passages mention. One seed group per matched
// passage.
func (c *GraphRetrievalClient) resolveThematicTier(
	ctx context.Context,
	query string,
	groupID string,
) (tierResult, error) {
	result := tierResult{tier: tierThematic}

	embedding, err := c.generateQueryEmbedding(ctx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return tierResult{}, err
		}
		logger.Warn("[Retrieval][ThematicTier] Query embedding failed, degrading to empty result", "err", err)
		result.degraded = true
		return result, nil
	}

	matches, err := c.store.SearchPassagesByEmbedding(ctx, groupID, embedding, c.options.thematicTopN, c.options.thematicMinSimilarity)
	if err != nil {
		return tierResult{}, fmt.Errorf("search passages: %w", err)
	}

	for _, m := range matches {
		nodeIDs := store.DedupeStrings(m.Passage.NodeIDs)
		if len(nodeIDs) == 0 {
			continue
		}
		result.groups = append(result.groups, seedGroup{key: m.Passage.ID, nodeIDs: nodeIDs})
		RecordSeedNodeIDs(c.options.tracer, tierThematic, nodeIDs...)
	}

	return result, nil
}

// generateQueryEmbedding embeds the query text with the configured retry
// budget.
func (c *GraphRetrievalClient) generateQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	return gUtil.RetryWithContext(ctx, c.options.maxRetries, func(ctx context.Context) ([]float32, error) {
		return c.aiClient.GenerateEmbedding(ctx, []byte(query))
	})
}
