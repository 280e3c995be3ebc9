package retrieval

import (
	"sort"
)

// Chunk is one evidence passage in the output bundle.
type Chunk struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	SectionID  string  `json:"section_id"`
	Score      float64 `json:"score"`
}

// RankedEntity is one surviving graph node in the output bundle.
type RankedEntity struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// BundleMetadata describes how the bundle was produced.
type BundleMetadata struct {
	TierSeedCounts    TierSeedCounts `json:"tier_seed_counts"`
	WeightProfileUsed string         `json:"weight_profile_used"`
	ConfidenceScore   float64        `json:"confidence_score"`
	ReDecomposed      bool           `json:"re_decomposed"`
}

// EvidenceBundle is the final output handed to the synthesis collaborator:
// a budgeted, deduplicated set of passages plus the ranked entities behind
// them. Chunks are grouped by document, highest scoring document first,
// in reading order within each document.
type EvidenceBundle struct {
	Chunks   []Chunk        `json:"chunks"`
	Entities []RankedEntity `json:"entities"`
	Metadata BundleMetadata `json:"metadata"`
}

// assembleBundle merges sub-question results into one bundle. Passages are
// deduplicated across results before the global token budget is applied a
// final time.
func (c *GraphRetrievalClient) assembleBundle(
	results []*pipelineResult,
	profileName string,
	confidence float64,
	reDecomposed bool,
) *EvidenceBundle {
	var counts TierSeedCounts
	merged := make([]passageEvidence, 0)
	mergedIdx := map[string]int{}

	for _, res := range results {
		if res == nil {
			continue
		}
		counts = counts.add(res.seedCounts)

		for _, ev := range res.evidence {
			idx, ok := mergedIdx[ev.passage.ID]
			if !ok {
				ev.order = len(merged)
				mergedIdx[ev.passage.ID] = len(merged)
				merged = append(merged, ev)
				continue
			}
			kept := merged[idx]
			if ev.tier < kept.tier || (ev.tier == kept.tier && ev.score > kept.score) {
				ev.order = kept.order
				merged[idx] = ev
			}
		}
	}

	merged = enforceTokenBudget(merged, c.options.tokenBudget)

	bundle := &EvidenceBundle{
		Chunks:   groupChunksByDocument(merged),
		Entities: mergeEntities(results),
		Metadata: BundleMetadata{
			TierSeedCounts:    counts,
			WeightProfileUsed: profileName,
			ConfidenceScore:   confidence,
			ReDecomposed:      reDecomposed,
		},
	}
	return bundle
}

// groupChunksByDocument orders chunks for citation: documents by their
// best chunk score descending, chunks inside a document in reading order.
func groupChunksByDocument(evidence []passageEvidence) []Chunk {
	chunks := make([]Chunk, 0, len(evidence))
	docBest := map[string]float64{}
	for _, ev := range evidence {
		if ev.score > docBest[ev.passage.DocumentID] {
			docBest[ev.passage.DocumentID] = ev.score
		}
		chunks = append(chunks, Chunk{
			ID:         ev.passage.ID,
			Text:       ev.passage.Text,
			DocumentID: ev.passage.DocumentID,
			SectionID:  ev.passage.SectionID,
			Score:      ev.score,
		})
	}

	ordinal := map[string]int{}
	for _, ev := range evidence {
		ordinal[ev.passage.ID] = ev.passage.Ordinal
	}

	sort.Slice(chunks, func(i, j int) bool {
		a, b := chunks[i], chunks[j]
		if a.DocumentID != b.DocumentID {
			if docBest[a.DocumentID] != docBest[b.DocumentID] {
				return docBest[a.DocumentID] > docBest[b.DocumentID]
			}
			return a.DocumentID < b.DocumentID
		}
		if a.SectionID != b.SectionID {
			return a.SectionID < b.SectionID
		}
		if ordinal[a.ID] != ordinal[b.ID] {
			return ordinal[a.ID] < ordinal[b.ID]
		}
		return a.ID < b.ID
	})

	return chunks
}

// mergeEntities unions the surviving entities of all results, keeping the
// highest score for nodes that survived several sub-questions.
func mergeEntities(results []*pipelineResult) []RankedEntity {
	byID := map[string]RankedEntity{}
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, e := range res.entities {
			if existing, ok := byID[e.ID]; !ok || e.Score > existing.Score {
				byID[e.ID] = e
			}
		}
	}

	entities := make([]RankedEntity, 0, len(byID))
	for _, e := range byID {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Score != entities[j].Score {
			return entities[i].Score > entities[j].Score
		}
		return entities[i].ID < entities[j].ID
	})
	return entities
}
