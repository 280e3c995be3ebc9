package common

// Node represents an entity in the knowledge graph. A node can be a person,
// organization, location, or any other concept the ingestion pipeline
// extracted. Nodes carry a canonical name plus the alias spellings seen in
// the source material, and belong to exactly one precomputed cluster.
//
// Nodes are read-only at query time.
type Node struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Aliases   []string  `json:"aliases"`
	ClusterID string    `json:"cluster_id"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Edge represents a directed weighted connection between two nodes.
// The weight expresses relationship strength (0.0-1.0) and feeds the
// ranking transition matrix.
type Edge struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Type     string  `json:"type"`
	Weight   float64 `json:"weight"`
}

// Passage represents a unit of extractable text. Each passage belongs to
// exactly one section and one document and records which nodes it mentions.
// Passages are the evidence currency of the retrieval pipeline.
type Passage struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	DocumentID string    `json:"document_id"`
	SectionID  string    `json:"section_id"`
	Ordinal    int       `json:"ordinal"`
	NodeIDs    []string  `json:"node_ids"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Section represents a structural subdivision of a document. The structural
// embedding is derived from title, hierarchical path, and summary during
// ingestion and is what the structural matching compares queries against.
type Section struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Path       string    `json:"path"`
	DocumentID string    `json:"document_id"`
	Summary    string    `json:"summary"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Document is a container of sections.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Cluster is a precomputed topic grouping of nodes, produced offline by
// community detection. Clusters are only read for penalty scoring and are
// never mutated at query time.
type Cluster struct {
	ID      string   `json:"id"`
	NodeIDs []string `json:"node_ids"`
}

// Adjacency is the edge view of a group's subgraph, keyed by source node id.
// It is the input the ranking engine row-normalizes into its transition
// matrix.
type Adjacency struct {
	Out map[string][]Edge `json:"out"`
}

// NodeIDs returns the ids of every node that appears in the adjacency,
// as source or target, in map iteration order.
func (a *Adjacency) NodeIDs() []string {
	if a == nil {
		return nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(a.Out))
	for src, edges := range a.Out {
		if _, ok := seen[src]; !ok {
			seen[src] = struct{}{}
			ids = append(ids, src)
		}
		for _, e := range edges {
			if _, ok := seen[e.TargetID]; !ok {
				seen[e.TargetID] = struct{}{}
				ids = append(ids, e.TargetID)
			}
		}
	}
	return ids
}
