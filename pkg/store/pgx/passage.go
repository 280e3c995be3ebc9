package pgx

import (
	"context"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/ternhq/tern/pkg/common"
	"github.com/ternhq/tern/pkg/logger"
	"github.com/ternhq/tern/pkg/retrieval"
	"github.com/ternhq/tern/pkg/store"
)

const passageNodeChunkSize = 500

const searchPassagesByEmbeddingSQL = `
SELECT p.id, p.text, p.document_id, p.section_id, p.ordinal,
       COALESCE(array_agg(pm.node_id) FILTER (WHERE pm.node_id IS NOT NULL), '{}') AS node_ids,
       1 - (p.embedding <=> $2) AS similarity
FROM passages p
LEFT JOIN passage_mentions pm ON pm.passage_id = p.id
WHERE p.group_id = $1
  AND p.embedding IS NOT NULL
  AND 1 - (p.embedding <=> $2) >= $3
GROUP BY p.id
ORDER BY p.embedding <=> $2, p.id
LIMIT $4`

// SearchPassagesByEmbedding returns the topN passages most similar to the
// query embedding, filtered to at least minSimilarity.
func (s *GraphDBStorage) SearchPassagesByEmbedding(
	ctx context.Context,
	groupID string,
	embedding []float32,
	topN int,
	minSimilarity float64,
) ([]store.PassageMatch, error) {
	if len(embedding) == 0 || topN <= 0 {
		return nil, nil
	}

	start := time.Now()
	rows, err := s.conn.Query(ctx, searchPassagesByEmbeddingSQL, groupID, pgvector.NewVector(embedding), minSimilarity, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]store.PassageMatch, 0, topN)
	for rows.Next() {
		var m store.PassageMatch
		if err := rows.Scan(&m.Passage.ID, &m.Passage.Text, &m.Passage.DocumentID, &m.Passage.SectionID, &m.Passage.Ordinal, &m.Passage.NodeIDs, &m.Similarity); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	retrieval.RecordStoreQuery(s.trace, "search_passages_by_embedding", len(matches), time.Since(start).Milliseconds())
	logger.Debug("[Graph][SearchPassages] Semantic matches", "count", len(matches), "top_n", topN)

	return matches, nil
}

const getPassagesForNodesSQL = `
SELECT node_id, id, text, document_id, section_id, ordinal
FROM (
  SELECT pm.node_id, p.id, p.text, p.document_id, p.section_id, p.ordinal,
         row_number() OVER (PARTITION BY pm.node_id ORDER BY p.document_id, p.ordinal, p.id) AS rn
  FROM passage_mentions pm
  JOIN passages p ON p.id = pm.passage_id
  WHERE p.group_id = $1 AND pm.node_id = ANY($2)
) ranked
WHERE rn <= $3
ORDER BY node_id, document_id, ordinal, id`

// GetPassagesForNodes returns, per node id, the passages mentioning that
// node in document order, capped at perNodeLimit per node. Large node id
// lists are chunked to keep statements bounded.
func (s *GraphDBStorage) GetPassagesForNodes(
	ctx context.Context,
	groupID string,
	nodeIDs []string,
	perNodeLimit int,
) (map[string][]common.Passage, error) {
	if len(nodeIDs) == 0 || perNodeLimit <= 0 {
		return map[string][]common.Passage{}, nil
	}

	out := make(map[string][]common.Passage, len(nodeIDs))
	total := 0
	start := time.Now()

	err := store.ChunkRange(len(nodeIDs), passageNodeChunkSize, func(chunkStart, chunkEnd int) error {
		rows, err := s.conn.Query(ctx, getPassagesForNodesSQL, groupID, nodeIDs[chunkStart:chunkEnd], perNodeLimit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var nodeID string
			var p common.Passage
			if err := rows.Scan(&nodeID, &p.ID, &p.Text, &p.DocumentID, &p.SectionID, &p.Ordinal); err != nil {
				return err
			}
			out[nodeID] = append(out[nodeID], p)
			total++
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	retrieval.RecordStoreQuery(s.trace, "get_passages_for_nodes", total, time.Since(start).Milliseconds())

	return out, nil
}
