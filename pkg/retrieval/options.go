package retrieval

import (
	"time"
)

const (
	defaultTierTimeout         = 30 * time.Second
	defaultMaxRetries          = 2
	defaultStructuralMinSim    = 0.25
	defaultClassifierSections  = 48
	defaultThematicTopN        = 12
	defaultThematicMinSim      = 0.25
	defaultDamping             = 0.85
	defaultTolerance           = 1e-6
	defaultMaxIterations       = 50
	defaultClusterTopK         = 3
	defaultClusterPenalty      = 0.3
	defaultGapThreshold        = 0.5
	defaultMinScoreRatio       = 0.05
	defaultMinNodeCap          = 1
	defaultMaxNodeCap          = 5
	defaultSectionCap          = 4
	defaultDocumentCap         = 10
	defaultTokenBudget         = 6000
	defaultTokenEncoder        = "o200k_base"
	defaultConfidenceThreshold = 0.5
)

type retrievalOptions struct {
	maxRetries  int
	tierTimeout time.Duration

	structuralMinSimilarity float64
	classifierMaxSections   int
	thematicTopN            int
	thematicMinSimilarity   float64

	damping       float64
	tolerance     float64
	maxIterations int

	clusterTopK    int
	clusterPenalty float64
	gapThreshold   float64
	minScoreRatio  float64

	minNodeCap   int
	maxNodeCap   int
	sectionCap   int
	documentCap  int
	tokenBudget  int
	tokenEncoder string
	tokenCounter func(string) int

	confidenceThreshold float64
	uniformFallbackSeed bool

	tracer Tracer
}

func defaultRetrievalOptions() retrievalOptions {
	return retrievalOptions{
		maxRetries:              defaultMaxRetries,
		tierTimeout:             defaultTierTimeout,
		structuralMinSimilarity: defaultStructuralMinSim,
		classifierMaxSections:   defaultClassifierSections,
		thematicTopN:            defaultThematicTopN,
		thematicMinSimilarity:   defaultThematicMinSim,
		damping:                 defaultDamping,
		tolerance:               defaultTolerance,
		maxIterations:           defaultMaxIterations,
		clusterTopK:             defaultClusterTopK,
		clusterPenalty:          defaultClusterPenalty,
		gapThreshold:            defaultGapThreshold,
		minScoreRatio:           defaultMinScoreRatio,
		minNodeCap:              defaultMinNodeCap,
		maxNodeCap:              defaultMaxNodeCap,
		sectionCap:              defaultSectionCap,
		documentCap:             defaultDocumentCap,
		tokenBudget:             defaultTokenBudget,
		tokenEncoder:            defaultTokenEncoder,
		confidenceThreshold:     defaultConfidenceThreshold,
	}
}

// RetrievalOption is a functional option for configuring retrieval behavior.
type RetrievalOption func(*retrievalOptions)

// WithMaxRetries returns a RetrievalOption that sets the attempt count for
// external AI calls. The default of 2 gives every call one retry.
func WithMaxRetries(maxRetries int) RetrievalOption {
	return func(o *retrievalOptions) {
		if maxRetries > 0 {
			o.maxRetries = maxRetries
		}
	}
}

// WithTierTimeout returns a RetrievalOption that bounds how long each tier
// resolver may run before it degrades to an empty result.
func WithTierTimeout(timeout time.Duration) RetrievalOption {
	return func(o *retrievalOptions) {
		if timeout > 0 {
			o.tierTimeout = timeout
		}
	}
}

// WithStructuralMatching returns a RetrievalOption that configures the
// structural resolver: the minimum cosine similarity for section embedding
// matches and the maximum number of sections offered to the relevance
// classifier. A classifierSections value of 0 or less disables the
// classifier sub-strategy entirely.
func WithStructuralMatching(minSimilarity float64, classifierSections int) RetrievalOption {
	return func(o *retrievalOptions) {
		o.structuralMinSimilarity = minSimilarity
		o.classifierMaxSections = classifierSections
	}
}

// WithThematicMatching returns a RetrievalOption that configures the
// thematic resolver's nearest-neighbor search over passage embeddings.
func WithThematicMatching(topN int, minSimilarity float64) RetrievalOption {
	return func(o *retrievalOptions) {
		if topN > 0 {
			o.thematicTopN = topN
		}
		o.thematicMinSimilarity = minSimilarity
	}
}

// WithRanking returns a RetrievalOption that tunes the ranking engine's
// damping factor, convergence tolerance, and iteration cap.
func WithRanking(damping, tolerance float64, maxIterations int) RetrievalOption {
	return func(o *retrievalOptions) {
		if damping > 0 && damping < 1 {
			o.damping = damping
		}
		if tolerance > 0 {
			o.tolerance = tolerance
		}
		if maxIterations > 0 {
			o.maxIterations = maxIterations
		}
	}
}

// WithClusterPenalty returns a RetrievalOption that configures how many
// top-ranked nodes define the target clusters and the score multiplier
// applied to nodes outside them.
func WithClusterPenalty(topK int, penalty float64) RetrievalOption {
	return func(o *retrievalOptions) {
		if topK > 0 {
			o.clusterTopK = topK
		}
		if penalty >= 0 && penalty <= 1 {
			o.clusterPenalty = penalty
		}
	}
}

// WithScoreGapPruning returns a RetrievalOption that configures pruning:
// the minimum relative drop between consecutive scores that counts as a
// gap, and the score ratio below which nodes are discarded regardless.
func WithScoreGapPruning(gapThreshold, minScoreRatio float64) RetrievalOption {
	return func(o *retrievalOptions) {
		if gapThreshold > 0 && gapThreshold <= 1 {
			o.gapThreshold = gapThreshold
		}
		if minScoreRatio >= 0 && minScoreRatio < 1 {
			o.minScoreRatio = minScoreRatio
		}
	}
}

// WithPassageCaps returns a RetrievalOption that configures the evidence
// budgeter's caps: the per-node score-scaled cap range, the per-section
// cap, and the per-document cap.
func WithPassageCaps(minPerNode, maxPerNode, perSection, perDocument int) RetrievalOption {
	return func(o *retrievalOptions) {
		if minPerNode > 0 {
			o.minNodeCap = minPerNode
		}
		if maxPerNode >= o.minNodeCap {
			o.maxNodeCap = maxPerNode
		}
		if perSection > 0 {
			o.sectionCap = perSection
		}
		if perDocument > 0 {
			o.documentCap = perDocument
		}
	}
}

// WithTokenBudget returns a RetrievalOption that sets the global token
// budget across all evidence passages and the tiktoken encoding used to
// count them.
func WithTokenBudget(budget int, encoder string) RetrievalOption {
	return func(o *retrievalOptions) {
		if budget > 0 {
			o.tokenBudget = budget
		}
		if encoder != "" {
			o.tokenEncoder = encoder
		}
	}
}

// WithTokenCounter returns a RetrievalOption that replaces the tiktoken
// based token counting with a custom function.
func WithTokenCounter(counter func(text string) int) RetrievalOption {
	return func(o *retrievalOptions) {
		o.tokenCounter = counter
	}
}

// WithConfidenceThreshold returns a RetrievalOption that sets the
// confidence score below which a multi-hop query is re-decomposed once.
func WithConfidenceThreshold(threshold float64) RetrievalOption {
	return func(o *retrievalOptions) {
		if threshold >= 0 && threshold <= 1 {
			o.confidenceThreshold = threshold
		}
	}
}

// WithUniformFallbackSeed returns a RetrievalOption that makes ranking run
// with a uniform seed over the whole graph when every tier comes back
// empty, instead of returning an explicit no-evidence bundle.
func WithUniformFallbackSeed(enabled bool) RetrievalOption {
	return func(o *retrievalOptions) {
		o.uniformFallbackSeed = enabled
	}
}

// WithTracer returns a RetrievalOption that attaches a tracer receiving
// stage-level events for every query run through the client.
func WithTracer(tracer Tracer) RetrievalOption {
	return func(o *retrievalOptions) {
		o.tracer = tracer
	}
}
