package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/ternhq/tern/internal/util"
	"github.com/ternhq/tern/pkg/common"
	"github.com/ternhq/tern/pkg/store"
)

// MemoryStorage is an in-memory GraphStore backed by plain slices. It is
// meant for tests and local development, not production workloads: every
// lookup is a linear scan and similarity search is exact brute force.
type MemoryStorage struct {
	mu sync.RWMutex

	nodes    map[string][]common.Node
	edges    map[string][]common.Edge
	passages map[string][]common.Passage
	sections map[string][]common.Section
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		nodes:    map[string][]common.Node{},
		edges:    map[string][]common.Edge{},
		passages: map[string][]common.Passage{},
		sections: map[string][]common.Section{},
	}
}

// AddNodes registers nodes under a group. Aliases are normalized the same
// way ResolveNodesByTerm normalizes incoming terms.
func (m *MemoryStorage) AddNodes(groupID string, nodes ...common.Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[groupID] = append(m.nodes[groupID], nodes...)
}

func (m *MemoryStorage) AddEdges(groupID string, edges ...common.Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[groupID] = append(m.edges[groupID], edges...)
}

func (m *MemoryStorage) AddPassages(groupID string, passages ...common.Passage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passages[groupID] = append(m.passages[groupID], passages...)
}

func (m *MemoryStorage) AddSections(groupID string, sections ...common.Section) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections[groupID] = append(m.sections[groupID], sections...)
}

func (m *MemoryStorage) ResolveNodesByTerm(ctx context.Context, groupID string, terms []string) ([]common.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	normalized := util.FoldTerms(terms)
	if len(normalized) == 0 {
		return nil, nil
	}
	wanted := make(map[string]bool, len(normalized))
	for _, t := range normalized {
		wanted[t] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []common.Node
	for _, n := range m.nodes[groupID] {
		if wanted[strings.ToLower(n.Name)] {
			out = append(out, n)
			continue
		}
		for _, alias := range n.Aliases {
			if wanted[util.NormalizeTerm(alias)] {
				out = append(out, n)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) GetNodesByIDs(ctx context.Context, groupID string, nodeIDs []string) ([]common.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		wanted[id] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []common.Node
	for _, n := range m.nodes[groupID] {
		if wanted[n.ID] {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) GetSections(ctx context.Context, groupID string) ([]common.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]common.Section, len(m.sections[groupID]))
	copy(out, m.sections[groupID])
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStorage) GetSectionByID(ctx context.Context, groupID string, sectionID string) (*common.Section, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sections[groupID] {
		if s.ID == sectionID {
			sec := s
			return &sec, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) SearchSectionsByEmbedding(ctx context.Context, groupID string, embedding []float32, minSimilarity float64) ([]store.SectionMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []store.SectionMatch
	for _, s := range m.sections[groupID] {
		if len(s.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(embedding, s.Embedding)
		if sim >= minSimilarity {
			matches = append(matches, store.SectionMatch{Section: s, Similarity: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Section.ID < matches[j].Section.ID
	})
	return matches, nil
}

func (m *MemoryStorage) GetSectionNodes(ctx context.Context, groupID string, sectionIDs []string) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(sectionIDs))
	for _, id := range sectionIDs {
		wanted[id] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := map[string]map[string]bool{}
	out := map[string][]string{}
	for _, p := range m.passages[groupID] {
		if !wanted[p.SectionID] {
			continue
		}
		for _, nodeID := range p.NodeIDs {
			if seen[p.SectionID] == nil {
				seen[p.SectionID] = map[string]bool{}
			}
			if seen[p.SectionID][nodeID] {
				continue
			}
			seen[p.SectionID][nodeID] = true
			out[p.SectionID] = append(out[p.SectionID], nodeID)
		}
	}
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out, nil
}

func (m *MemoryStorage) SearchPassagesByEmbedding(ctx context.Context, groupID string, embedding []float32, topN int, minSimilarity float64) ([]store.PassageMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(embedding) == 0 || topN <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []store.PassageMatch
	for _, p := range m.passages[groupID] {
		if len(p.Embedding) == 0 {
			continue
		}
		sim := cosineSimilarity(embedding, p.Embedding)
		if sim >= minSimilarity {
			matches = append(matches, store.PassageMatch{Passage: p, Similarity: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Passage.ID < matches[j].Passage.ID
	})
	if len(matches) > topN {
		matches = matches[:topN]
	}
	return matches, nil
}

func (m *MemoryStorage) GetPassagesForNodes(ctx context.Context, groupID string, nodeIDs []string, perNodeLimit int) (map[string][]common.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(nodeIDs) == 0 || perNodeLimit <= 0 {
		return map[string][]common.Passage{}, nil
	}
	wanted := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		wanted[id] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sorted := make([]common.Passage, len(m.passages[groupID]))
	copy(sorted, m.passages[groupID])
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].DocumentID != sorted[j].DocumentID {
			return sorted[i].DocumentID < sorted[j].DocumentID
		}
		if sorted[i].Ordinal != sorted[j].Ordinal {
			return sorted[i].Ordinal < sorted[j].Ordinal
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := map[string][]common.Passage{}
	for _, p := range sorted {
		for _, nodeID := range p.NodeIDs {
			if !wanted[nodeID] || len(out[nodeID]) >= perNodeLimit {
				continue
			}
			out[nodeID] = append(out[nodeID], p)
		}
	}
	return out, nil
}

func (m *MemoryStorage) GetAdjacency(ctx context.Context, groupID string) (*common.Adjacency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	adj := &common.Adjacency{Out: map[string][]common.Edge{}}
	for _, e := range m.edges[groupID] {
		adj.Out[e.SourceID] = append(adj.Out[e.SourceID], e)
	}
	for _, edges := range adj.Out {
		sort.Slice(edges, func(i, j int) bool { return edges[i].TargetID < edges[j].TargetID })
	}
	return adj, nil
}

func (m *MemoryStorage) GetClusters(ctx context.Context, groupID string) ([]common.Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	byCluster := map[string][]string{}
	for _, n := range m.nodes[groupID] {
		if n.ClusterID == "" {
			continue
		}
		byCluster[n.ClusterID] = append(byCluster[n.ClusterID], n.ID)
	}

	clusters := make([]common.Cluster, 0, len(byCluster))
	for id, nodeIDs := range byCluster {
		sort.Strings(nodeIDs)
		clusters = append(clusters, common.Cluster{ID: id, NodeIDs: nodeIDs})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	return clusters, nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
