package driver

import (
	"context"
	"sync"

	"github.com/faultgraph/faultgraph/pkg/types"
)

// MemorySink keeps upserts in memory. Used when no database is configured
// and as the sink in pipeline tests.
type MemorySink struct {
	mu    sync.Mutex
	nodes map[string]*types.GraphNode
	edges map[string]*types.GraphEdge
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		nodes: make(map[string]*types.GraphNode),
		edges: make(map[string]*types.GraphEdge),
	}
}

func (s *MemorySink) UpsertNode(_ context.Context, node *types.GraphNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = node
	return nil
}

func (s *MemorySink) UpsertEdge(_ context.Context, edge *types.GraphEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edge.Source+"|"+edge.Type+"|"+edge.Target] = edge
	return nil
}

func (s *MemorySink) Close(_ context.Context) error { return nil }

// NodeCount reports the number of distinct upserted nodes.
func (s *MemorySink) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// EdgeCount reports the number of distinct upserted edges.
func (s *MemorySink) EdgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edges)
}

// Node returns the latest upserted state for an ID.
func (s *MemorySink) Node(id string) (*types.GraphNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	return node, ok
}
