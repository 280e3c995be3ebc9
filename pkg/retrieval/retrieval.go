package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ternhq/tern/internal/timing"
	"github.com/ternhq/tern/pkg/ai"
	"github.com/ternhq/tern/pkg/logger"
	"github.com/ternhq/tern/pkg/store"
)

// Mode selects the retrieval strategy for a query.
type Mode string

const (
	// ModeSingleHop runs the pipeline once on the query as given.
	ModeSingleHop Mode = "single_hop"
	// ModeMultiHop decomposes the query into sub-questions, runs the
	// pipeline per sub-question in parallel, and retries the decomposition
	// once when aggregate confidence is low.
	ModeMultiHop Mode = "multi_hop"
)

// ErrServicesExhausted reports that every tier failed on external services
// and no evidence could be gathered at all. Tiers that ran but found
// nothing do not trigger it.
var ErrServicesExhausted = errors.New("all retrieval tiers failed on external services")

// Request is one retrieval query.
type Request struct {
	Query   string
	GroupID string
	Mode    Mode
	// WeightProfile optionally names the seed weight profile to use.
	// Empty selects one from the query's surface features.
	WeightProfile string
}

// pipelineResult is the outcome of one full pipeline pass for one
// (sub-)question.
type pipelineResult struct {
	evidence   []passageEvidence
	ranked     []RankedNode
	entities   []RankedEntity
	seedCounts TierSeedCounts
	exhausted  bool
}

// GraphRetrievalClient answers natural-language queries against a
// pre-built knowledge graph by producing bounded, deduplicated evidence
// bundles. It combines an AI client for entity extraction, embeddings,
// classification, and decomposition with a read-only graph store, and is
// safe for concurrent use.
type GraphRetrievalClient struct {
	aiClient    ai.GraphAIClient
	store       store.GraphStore
	options     retrievalOptions
	countTokens func(string) int
}

// NewGraphRetrievalClient creates a retrieval client from an AI client and
// a graph store.
//
// Example:
//
//	client := retrieval.NewGraphRetrievalClient(aiClient, storageClient)
//	bundle, err := client.Query(ctx, retrieval.Request{Query: q, GroupID: g, Mode: retrieval.ModeSingleHop})
func NewGraphRetrievalClient(aiC ai.GraphAIClient, s store.GraphStore, opts ...RetrievalOption) *GraphRetrievalClient {
	c := &GraphRetrievalClient{
		aiClient: aiC,
		store:    s,
		options:  defaultRetrievalOptions(),
	}
	for _, o := range opts {
		if o == nil {
			continue
		}
		o(&c.options)
	}

	c.countTokens = c.options.tokenCounter
	if c.countTokens == nil {
		c.countTokens = newTokenCounter(c.options.tokenEncoder)
	}

	return c
}

// Query resolves seeds across the three tiers, ranks the graph, prunes and
// budgets the evidence, and returns the final bundle. In multi-hop mode
// the query is decomposed first and each sub-question runs the same
// pipeline in parallel.
//
// A query whose context is cancelled returns the context error, never a
// partial bundle. A query that finds nothing returns an empty bundle, not
// an error.
func (c *GraphRetrievalClient) Query(ctx context.Context, req Request) (*EvidenceBundle, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if req.GroupID == "" {
		return nil, fmt.Errorf("group id is empty")
	}

	profile, err := c.profileFor(req)
	if err != nil {
		return nil, err
	}

	logger.Info("[Retrieval][Query] Starting",
		"group_id", req.GroupID, "mode", req.Mode, "profile", profile.Name)

	sw := timing.NewStopwatch()

	var bundle *EvidenceBundle
	switch req.Mode {
	case ModeMultiHop:
		bundle, err = c.runMultiHop(ctx, sw, req, profile)
	case ModeSingleHop, "":
		bundle, err = c.runSingleHop(ctx, sw, req, profile)
	default:
		return nil, fmt.Errorf("unknown retrieval mode %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kv := []any{
		"group_id", req.GroupID,
		"chunks", len(bundle.Chunks),
		"entities", len(bundle.Entities),
		"confidence", bundle.Metadata.ConfidenceScore,
		"elapsed_ms", sw.Elapsed().Milliseconds(),
	}
	for _, phase := range sw.Snapshot() {
		kv = append(kv, phase.Name+"_ms", phase.DurationMs)
	}
	logger.Debug("[Retrieval][Query] Completed", kv...)

	return bundle, nil
}

func (c *GraphRetrievalClient) profileFor(req Request) (WeightProfile, error) {
	if req.WeightProfile != "" {
		return ProfileByName(req.WeightProfile)
	}
	return SelectWeightProfile(req.Query), nil
}

func (c *GraphRetrievalClient) runSingleHop(
	ctx context.Context,
	sw *timing.Stopwatch,
	req Request,
	profile WeightProfile,
) (*EvidenceBundle, error) {
	res, err := c.runPipeline(ctx, sw, req.Query, req.GroupID, profile)
	if err != nil {
		return nil, err
	}
	if res.exhausted {
		return nil, ErrServicesExhausted
	}

	results := []*pipelineResult{res}
	return c.assembleBundle(results, profile.Name, confidenceScore(results), false), nil
}

// runPipeline is one complete pass for one (sub-)question: tier
// resolution, seed aggregation, ranking, penalty and pruning, budgeting.
func (c *GraphRetrievalClient) runPipeline(
	ctx context.Context,
	sw *timing.Stopwatch,
	query string,
	groupID string,
	profile WeightProfile,
) (*pipelineResult, error) {
	stop := sw.Phase("tiers")
	tiers, err := c.resolveTiers(ctx, query, groupID)
	stop()
	if err != nil {
		return nil, err
	}

	seed, counts := buildSeedVector(tiers, profile)
	result := &pipelineResult{seedCounts: counts}

	if len(seed) == 0 {
		exhausted := true
		for _, t := range tiers {
			if !t.degraded {
				exhausted = false
				break
			}
		}
		if exhausted {
			result.exhausted = true
			return result, nil
		}
		if !c.options.uniformFallbackSeed {
			logger.Info("[Retrieval][Pipeline] No seeds resolved, returning no-evidence result", "group_id", groupID)
			return result, nil
		}
	}

	stop = sw.Phase("ranking")
	adj, err := c.store.GetAdjacency(ctx, groupID)
	if err != nil {
		stop()
		return nil, fmt.Errorf("load adjacency: %w", err)
	}
	if len(seed) == 0 {
		universe := adj.NodeIDs()
		if len(universe) == 0 {
			stop()
			return result, nil
		}
		seed = uniformSeed(universe)
		logger.Info("[Retrieval][Pipeline] No seeds resolved, ranking with uniform fallback seed", "nodes", len(universe))
	}
	ranked := rankNodes(seed, adj, rankingParams{
		damping:       c.options.damping,
		tolerance:     c.options.tolerance,
		maxIterations: c.options.maxIterations,
	})
	stop()

	stop = sw.Phase("pruning")
	if spansMultipleDocuments(tiers) {
		logger.Debug("[Retrieval][Pipeline] Query spans multiple documents, skipping cluster penalty")
	} else {
		clusters, err := c.store.GetClusters(ctx, groupID)
		if err != nil {
			stop()
			return nil, fmt.Errorf("load clusters: %w", err)
		}
		ranked = applyClusterPenalty(ranked, clusters, c.options.clusterTopK, c.options.clusterPenalty)
	}
	pruned := pruneByScoreGap(ranked, c.options.gapThreshold, c.options.minScoreRatio)
	stop()

	result.ranked = pruned
	prunedIDs := make([]string, len(pruned))
	for i, rn := range pruned {
		prunedIDs[i] = rn.ID
	}
	RecordRankedNodeIDs(c.options.tracer, prunedIDs...)

	stop = sw.Phase("budget")
	evidence, err := c.budgetEvidence(ctx, groupID, pruned, seedOrigins(tiers))
	stop()
	if err != nil {
		return nil, err
	}
	result.evidence = evidence

	entities, err := c.resolveEntityNames(ctx, groupID, pruned)
	if err != nil {
		return nil, err
	}
	result.entities = entities

	return result, nil
}

// spansMultipleDocuments reports whether the structural tier indicated a
// legitimate multi-document or comparison query. The cluster penalty is
// skipped in that case so minority-document evidence survives.
func spansMultipleDocuments(tiers []tierResult) bool {
	for _, t := range tiers {
		if t.tier == tierStructural && (t.multiDocument || t.comparison) {
			return true
		}
	}
	return false
}

func (c *GraphRetrievalClient) resolveEntityNames(
	ctx context.Context,
	groupID string,
	ranked []RankedNode,
) ([]RankedEntity, error) {
	if len(ranked) == 0 {
		return nil, nil
	}

	ids := make([]string, len(ranked))
	for i, rn := range ranked {
		ids[i] = rn.ID
	}
	nodes, err := c.store.GetNodesByIDs(ctx, groupID, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve node names: %w", err)
	}

	names := make(map[string]string, len(nodes))
	for _, n := range nodes {
		names[n.ID] = n.Name
	}

	entities := make([]RankedEntity, len(ranked))
	for i, rn := range ranked {
		entities[i] = RankedEntity{ID: rn.ID, Name: names[rn.ID], Score: rn.Score}
	}
	return entities, nil
}

func newTokenCounter(encoding string) func(string) int {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("[Retrieval] Token encoding unavailable, estimating from rune count", "encoding", encoding, "err", err)
		return func(text string) int {
			return utf8.RuneCountInString(text)/4 + 1
		}
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}
}
