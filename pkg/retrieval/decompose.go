package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ternhq/tern/internal/timing"
	"github.com/ternhq/tern/pkg/ai"
	"github.com/ternhq/tern/pkg/logger"
)

// runMultiHop decomposes the query into sub-questions, runs the full
// pipeline per sub-question in parallel, and checks aggregate confidence.
// When confidence stays below the threshold the decomposition is retried
// exactly once; the bundle then assembles from everything both rounds
// gathered. Two rounds is a hard cap.
func (c *GraphRetrievalClient) runMultiHop(
	ctx context.Context,
	sw *timing.Stopwatch,
	req Request,
	profile WeightProfile,
) (*EvidenceBundle, error) {
	subQuestions := c.decomposeQuery(ctx, sw, req.Query)
	results, err := c.processSubQuestions(ctx, sw, req.GroupID, subQuestions, profile)
	if err != nil {
		return nil, err
	}

	confidence := confidenceScore(results)
	reDecomposed := false
	all := results

	if confidence < c.options.confidenceThreshold {
		logger.Info("[Retrieval][Decompose] Confidence below threshold, re-decomposing once",
			"confidence", confidence, "threshold", c.options.confidenceThreshold)
		reDecomposed = true

		subQuestions = c.decomposeQuery(ctx, sw, req.Query)
		retried, err := c.processSubQuestions(ctx, sw, req.GroupID, subQuestions, profile)
		if err != nil {
			return nil, err
		}
		all = append(all, retried...)
		confidence = confidenceScore(retried)
	}

	exhausted := len(all) > 0
	for _, res := range all {
		if res == nil || !res.exhausted {
			exhausted = false
			break
		}
	}
	if exhausted {
		return nil, ErrServicesExhausted
	}

	return c.assembleBundle(all, profile.Name, confidence, reDecomposed), nil
}

// decomposeQuery splits the query into independent sub-questions through
// the AI capability. Failures degrade to processing the query as a single
// part instead of failing the request.
func (c *GraphRetrievalClient) decomposeQuery(ctx context.Context, sw *timing.Stopwatch, query string) []string {
	stop := sw.Phase("decompose")
	defer stop()

	callCtx, cancel := context.WithTimeout(ctx, c.options.tierTimeout)
	defer cancel()

	res, err := ai.CallQueryDecomposition(callCtx, query, c.aiClient, c.options.maxRetries)
	if err != nil {
		logger.Warn("[Retrieval][Decompose] Decomposition failed, processing the query as a single part", "err", err)
		return []string{query}
	}

	logger.Debug("[Retrieval][Decompose] Query decomposed", "parts", len(res.SubQuestions))
	return res.SubQuestions
}

// processSubQuestions runs the full pipeline for every sub-question as an
// independent concurrent task and joins on all of them. Results share no
// mutable state; each task writes only its own slot.
func (c *GraphRetrievalClient) processSubQuestions(
	ctx context.Context,
	sw *timing.Stopwatch,
	groupID string,
	subQuestions []string,
	profile WeightProfile,
) ([]*pipelineResult, error) {
	results := make([]*pipelineResult, len(subQuestions))

	g, gCtx := errgroup.WithContext(ctx)
	for i, sub := range subQuestions {
		g.Go(func() error {
			res, err := c.runPipeline(gCtx, sw, sub, groupID, profile)
			if err != nil {
				return fmt.Errorf("sub-question %d: %w", i+1, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
