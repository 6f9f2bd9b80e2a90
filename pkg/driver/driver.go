// Package driver holds the graph sinks the pipeline streams upserts into.
// A sink is a best-effort mirror of the in-memory graph; the checkpoint, not
// the sink, is the source of truth for resume.
package driver

import (
	"context"

	"github.com/faultgraph/faultgraph/pkg/types"
)

// GraphSink receives incremental node and edge upserts during a run.
type GraphSink interface {
	UpsertNode(ctx context.Context, node *types.GraphNode) error
	UpsertEdge(ctx context.Context, edge *types.GraphEdge) error
	Close(ctx context.Context) error
}
