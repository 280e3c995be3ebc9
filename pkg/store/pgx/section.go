package pgx

import (
	"context"
	"errors"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/ternhq/tern/pkg/common"
	"github.com/ternhq/tern/pkg/logger"
	"github.com/ternhq/tern/pkg/retrieval"
	"github.com/ternhq/tern/pkg/store"
)

const getSectionsSQL = `
SELECT s.id, s.title, COALESCE(s.path, ''), s.document_id, COALESCE(s.summary, '')
FROM sections s
WHERE s.group_id = $1
ORDER BY s.document_id, s.path, s.id`

// GetSections returns the section catalog of the group.
func (s *GraphDBStorage) GetSections(ctx context.Context, groupID string) ([]common.Section, error) {
	start := time.Now()
	rows, err := s.conn.Query(ctx, getSectionsSQL, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sections := make([]common.Section, 0, 32)
	for rows.Next() {
		var sec common.Section
		if err := rows.Scan(&sec.ID, &sec.Title, &sec.Path, &sec.DocumentID, &sec.Summary); err != nil {
			return nil, err
		}
		sections = append(sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	retrieval.RecordStoreQuery(s.trace, "get_sections", len(sections), time.Since(start).Milliseconds())

	return sections, nil
}

const getSectionByIDSQL = `
SELECT s.id, s.title, COALESCE(s.path, ''), s.document_id, COALESCE(s.summary, '')
FROM sections s
WHERE s.group_id = $1 AND s.id = $2`

// GetSectionByID returns the section with the given id, or nil when the
// group has no such section.
func (s *GraphDBStorage) GetSectionByID(ctx context.Context, groupID string, sectionID string) (*common.Section, error) {
	start := time.Now()

	var sec common.Section
	err := s.conn.QueryRow(ctx, getSectionByIDSQL, groupID, sectionID).
		Scan(&sec.ID, &sec.Title, &sec.Path, &sec.DocumentID, &sec.Summary)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	retrieval.RecordStoreQuery(s.trace, "get_section_by_id", 1, time.Since(start).Milliseconds())

	return &sec, nil
}

const searchSectionsByEmbeddingSQL = `
SELECT s.id, s.title, COALESCE(s.path, ''), s.document_id, COALESCE(s.summary, ''),
       1 - (s.embedding <=> $2) AS similarity
FROM sections s
WHERE s.group_id = $1
  AND s.embedding IS NOT NULL
  AND 1 - (s.embedding <=> $2) >= $3
ORDER BY s.embedding <=> $2, s.id`

// SearchSectionsByEmbedding returns sections whose structural embedding
// has at least minSimilarity cosine similarity to the query embedding.
func (s *GraphDBStorage) SearchSectionsByEmbedding(
	ctx context.Context,
	groupID string,
	embedding []float32,
	minSimilarity float64,
) ([]store.SectionMatch, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	start := time.Now()
	rows, err := s.conn.Query(ctx, searchSectionsByEmbeddingSQL, groupID, pgvector.NewVector(embedding), minSimilarity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]store.SectionMatch, 0, 8)
	for rows.Next() {
		var m store.SectionMatch
		if err := rows.Scan(&m.Section.ID, &m.Section.Title, &m.Section.Path, &m.Section.DocumentID, &m.Section.Summary, &m.Similarity); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	retrieval.RecordStoreQuery(s.trace, "search_sections_by_embedding", len(matches), time.Since(start).Milliseconds())
	logger.Debug("[Graph][SearchSections] Structural matches", "count", len(matches), "min_similarity", minSimilarity)

	return matches, nil
}

const getSectionNodesSQL = `
SELECT p.section_id, pm.node_id
FROM passages p
JOIN passage_mentions pm ON pm.passage_id = p.id
WHERE p.group_id = $1 AND p.section_id = ANY($2)
GROUP BY p.section_id, pm.node_id
ORDER BY p.section_id, pm.node_id`

// GetSectionNodes returns, per section id, the ids of nodes mentioned by
// passages belonging to that section. Sections without mentions are
// absent from the result.
func (s *GraphDBStorage) GetSectionNodes(
	ctx context.Context,
	groupID string,
	sectionIDs []string,
) (map[string][]string, error) {
	if len(sectionIDs) == 0 {
		return map[string][]string{}, nil
	}

	start := time.Now()
	rows, err := s.conn.Query(ctx, getSectionNodesSQL, groupID, sectionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string, len(sectionIDs))
	total := 0
	for rows.Next() {
		var sectionID, nodeID string
		if err := rows.Scan(&sectionID, &nodeID); err != nil {
			return nil, err
		}
		out[sectionID] = append(out[sectionID], nodeID)
		total++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	retrieval.RecordStoreQuery(s.trace, "get_section_nodes", total, time.Since(start).Milliseconds())

	return out, nil
}
