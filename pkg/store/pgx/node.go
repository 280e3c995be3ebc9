package pgx

import (
	"context"
	"time"

	"github.com/ternhq/tern/pkg/common"
	"github.com/ternhq/tern/pkg/logger"
	"github.com/ternhq/tern/pkg/retrieval"
)

const resolveNodesByTermSQL = `
SELECT DISTINCT n.id, n.name, COALESCE(n.cluster_id, '')
FROM nodes n
LEFT JOIN node_aliases a ON a.node_id = n.id
WHERE n.group_id = $1
  AND (lower(n.name) = ANY($2) OR a.alias = ANY($2))
ORDER BY n.id`

// ResolveNodesByTerm returns the nodes whose lowercased name or alias
// exactly matches one of the given terms. Terms are expected to be
// normalized by the caller.
func (s *GraphDBStorage) ResolveNodesByTerm(
	ctx context.Context,
	groupID string,
	terms []string,
) ([]common.Node, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	start := time.Now()
	rows, err := s.conn.Query(ctx, resolveNodesByTermSQL, groupID, terms)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := make([]common.Node, 0, len(terms))
	for rows.Next() {
		var n common.Node
		if err := rows.Scan(&n.ID, &n.Name, &n.ClusterID); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	retrieval.RecordStoreQuery(s.trace, "resolve_nodes_by_term", len(nodes), time.Since(start).Milliseconds())
	logger.Debug("[Graph][ResolveNodes] Resolved terms", "terms", len(terms), "nodes", len(nodes))

	return nodes, nil
}

const getNodesByIDsSQL = `
SELECT n.id, n.name, COALESCE(n.cluster_id, '')
FROM nodes n
WHERE n.group_id = $1 AND n.id = ANY($2)
ORDER BY n.id`

// GetNodesByIDs returns the nodes for the given ids. Unknown ids are
// skipped.
func (s *GraphDBStorage) GetNodesByIDs(
	ctx context.Context,
	groupID string,
	ids []string,
) ([]common.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	start := time.Now()
	rows, err := s.conn.Query(ctx, getNodesByIDsSQL, groupID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := make([]common.Node, 0, len(ids))
	for rows.Next() {
		var n common.Node
		if err := rows.Scan(&n.ID, &n.Name, &n.ClusterID); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	retrieval.RecordStoreQuery(s.trace, "get_nodes_by_ids", len(nodes), time.Since(start).Milliseconds())

	return nodes, nil
}
