package pgx

import (
	"context"
	"time"

	"github.com/ternhq/tern/pkg/common"
	"github.com/ternhq/tern/pkg/logger"
	"github.com/ternhq/tern/pkg/retrieval"
)

const getAdjacencySQL = `
SELECT source_id, target_id, type, weight
FROM edges
WHERE group_id = $1
ORDER BY source_id, target_id`

// GetAdjacency loads the full edge set of a group as an outgoing
// adjacency map keyed by source node id.
func (s *GraphDBStorage) GetAdjacency(ctx context.Context, groupID string) (*common.Adjacency, error) {
	start := time.Now()
	rows, err := s.conn.Query(ctx, getAdjacencySQL, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adj := &common.Adjacency{Out: map[string][]common.Edge{}}
	count := 0
	for rows.Next() {
		var e common.Edge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.Type, &e.Weight); err != nil {
			return nil, err
		}
		adj.Out[e.SourceID] = append(adj.Out[e.SourceID], e)
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	retrieval.RecordStoreQuery(s.trace, "get_adjacency", count, time.Since(start).Milliseconds())
	logger.Debug("[Graph][GetAdjacency] Loaded edges", "group_id", groupID, "edges", count)

	return adj, nil
}

const getClustersSQL = `
SELECT n.cluster_id, array_agg(n.id ORDER BY n.id) AS node_ids
FROM nodes n
WHERE n.group_id = $1 AND n.cluster_id IS NOT NULL AND n.cluster_id <> ''
GROUP BY n.cluster_id
ORDER BY n.cluster_id`

// GetClusters returns the community clusters of a group, derived from the
// cluster assignment stored on each node.
func (s *GraphDBStorage) GetClusters(ctx context.Context, groupID string) ([]common.Cluster, error) {
	start := time.Now()
	rows, err := s.conn.Query(ctx, getClustersSQL, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []common.Cluster
	for rows.Next() {
		var c common.Cluster
		if err := rows.Scan(&c.ID, &c.NodeIDs); err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	retrieval.RecordStoreQuery(s.trace, "get_clusters", len(clusters), time.Since(start).Milliseconds())

	return clusters, nil
}
