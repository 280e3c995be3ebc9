package store

import (
	"context"

	"github.com/ternhq/tern/pkg/common"
)

// SectionMatch is a section returned from a structural similarity search
// together with its cosine similarity to the query.
type SectionMatch struct {
	Section    common.Section
	Similarity float64
}

// PassageMatch is a passage returned from a semantic similarity search
// together with its cosine similarity to the query.
type PassageMatch struct {
	Passage    common.Passage
	Similarity float64
}

// GraphStore defines the read-only interface for querying a pre-built
// knowledge graph. All methods are scoped to a single graph via groupID;
// implementations never mutate graph data.
type GraphStore interface {
	// ResolveNodesByTerm returns the nodes whose normalized name or alias
	// exactly matches one of the given terms.
	ResolveNodesByTerm(ctx context.Context, groupID string, terms []string) ([]common.Node, error)

	// GetNodesByIDs returns the nodes for the given ids. Unknown ids are
	// skipped, not errors.
	GetNodesByIDs(ctx context.Context, groupID string, ids []string) ([]common.Node, error)

	// GetSections returns the section catalog of the group.
	GetSections(ctx context.Context, groupID string) ([]common.Section, error)

	// GetSectionByID returns the section with the given id, or nil when
	// the group has no such section.
	GetSectionByID(ctx context.Context, groupID string, sectionID string) (*common.Section, error)

	// SearchSectionsByEmbedding returns sections whose structural embedding
	// has at least minSimilarity cosine similarity to the query embedding,
	// ordered by similarity descending.
	SearchSectionsByEmbedding(ctx context.Context, groupID string, embedding []float32, minSimilarity float64) ([]SectionMatch, error)

	// GetSectionNodes returns, per section id, the ids of nodes mentioned
	// by passages belonging to that section.
	GetSectionNodes(ctx context.Context, groupID string, sectionIDs []string) (map[string][]string, error)

	// SearchPassagesByEmbedding returns the topN passages most similar to
	// the query embedding, filtered to at least minSimilarity, ordered by
	// similarity descending.
	SearchPassagesByEmbedding(ctx context.Context, groupID string, embedding []float32, topN int, minSimilarity float64) ([]PassageMatch, error)

	// GetPassagesForNodes returns, per node id, the passages mentioning
	// that node in document order, capped at perNodeLimit per node.
	GetPassagesForNodes(ctx context.Context, groupID string, nodeIDs []string, perNodeLimit int) (map[string][]common.Passage, error)

	// GetAdjacency returns the weighted adjacency of the group's graph.
	GetAdjacency(ctx context.Context, groupID string) (*common.Adjacency, error)

	// GetClusters returns the node clusters of the group.
	GetClusters(ctx context.Context, groupID string) ([]common.Cluster, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
