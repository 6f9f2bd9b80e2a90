package driver

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/faultgraph/faultgraph/pkg/types"
)

// Neo4jSink mirrors the accumulated graph into a Neo4j database.
type Neo4jSink struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jSink connects to Neo4j with basic auth. An empty database name
// uses the server default "neo4j".
func NewNeo4jSink(uri, username, password, database string) (*Neo4jSink, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jSink{client: client, database: database}, nil
}

// identPattern keeps labels and relationship types safe for string
// interpolation; Cypher cannot parameterize either.
var identPattern = regexp.MustCompile(`[^A-Za-z0-9_]`)

func sanitizeIdent(s string) string {
	out := identPattern.ReplaceAllString(s, "_")
	if out == "" {
		out = "UNKNOWN"
	}
	return out
}

func labelFragment(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, sanitizeIdent(label))
	}
	return ":" + strings.Join(parts, ":")
}

// UpsertNode merges the node on its canonical ID, adding labels and
// overwriting properties with the current merged state.
func (s *Neo4jSink) UpsertNode(ctx context.Context, node *types.GraphNode) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	props := make(map[string]any, len(node.Properties)+1)
	for k, v := range node.Properties {
		props[k] = v
	}
	props["source_chunks"] = node.SourceChunks

	query := fmt.Sprintf(`
		MERGE (n {id: $id})
		SET n%s
		SET n += $props
	`, labelFragment(node.Labels))

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"id":    node.ID,
			"props": props,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", node.ID, err)
	}
	return nil
}

// UpsertEdge merges the relationship between two already-upserted nodes. A
// missing endpoint makes the MERGE a no-op rather than an error; the
// pipeline upserts nodes before their edges.
func (s *Neo4jSink) UpsertEdge(ctx context.Context, edge *types.GraphEdge) error {
	session := s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	props := make(map[string]any, len(edge.Properties)+1)
	for k, v := range edge.Properties {
		props[k] = v
	}
	for k, v := range edge.TemporalInfo {
		props["temporal_"+k] = v
	}
	props["source_chunks"] = edge.SourceChunks

	query := fmt.Sprintf(`
		MATCH (a {id: $source})
		MATCH (b {id: $target})
		MERGE (a)-[r:%s]->(b)
		SET r += $props
	`, sanitizeIdent(edge.Type))

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{
			"source": edge.Source,
			"target": edge.Target,
			"props":  props,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to upsert edge %s-[%s]->%s: %w", edge.Source, edge.Type, edge.Target, err)
	}
	return nil
}

// Close releases the underlying driver.
func (s *Neo4jSink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
