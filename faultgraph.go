// Package faultgraph builds troubleshooting knowledge graphs from technical
// manuals. A document is windowed into overlapping chunks; each chunk runs
// through LLM extraction calls for entities, events, and concepts plus one
// relationship call; the validated fragments fold into a merged graph that
// is checkpointed for resume and optionally mirrored into Neo4j.
package faultgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/faultgraph/faultgraph/pkg/checkpoint"
	"github.com/faultgraph/faultgraph/pkg/chunker"
	"github.com/faultgraph/faultgraph/pkg/driver"
	"github.com/faultgraph/faultgraph/pkg/extraction"
	"github.com/faultgraph/faultgraph/pkg/graph"
	"github.com/faultgraph/faultgraph/pkg/types"
)

// ErrStopped reports a graceful stop: the run was interrupted between
// chunks and its progress checkpointed.
var ErrStopped = errors.New("pipeline stopped")

// Export file names written at end of run.
const (
	nodesExportFile = "neo4j_nodes.json"
	relsExportFile  = "neo4j_relationships.json"
)

// Options configures a pipeline run.
type Options struct {
	// CheckpointEvery saves progress after this many processed chunks.
	// Values below 1 mean every chunk.
	CheckpointEvery int
	// PauseEvery inserts a cooldown pause after this many chunks. Zero
	// disables pausing.
	PauseEvery int
	// PauseInterval is the cooldown duration.
	PauseInterval time.Duration
	// SimilarityThreshold for merge-on-ingest. Zero uses the default.
	SimilarityThreshold float64
	// StartChunk skips chunks before this index. A resumed checkpoint
	// that is further along wins.
	StartChunk int
}

// Result summarizes a finished (or stopped) run.
type Result struct {
	Snapshot types.GraphSnapshot
	Stats    types.RunStats
	// Unresolved relationships reported at end of run, never inserted.
	Unresolved []types.ExtractedRelationship
}

// Pipeline is the sequential orchestrator. Chunks process strictly in
// order; there is no worker pool because the merge in the accumulator is
// order-sensitive and checkpoint resume depends on a deterministic
// processed-chunk frontier.
type Pipeline struct {
	chunker     *chunker.Chunker
	extractor   *extraction.Client
	checkpoints *checkpoint.Manager
	sink        driver.GraphSink
	opts        Options
	logger      *slog.Logger
}

// NewPipeline wires the pipeline. The sink is optional; nil disables
// database mirroring. A nil logger discards logs.
func NewPipeline(ch *chunker.Chunker, extractor *extraction.Client, cps *checkpoint.Manager, sink driver.GraphSink, opts Options, logger *slog.Logger) *Pipeline {
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		chunker:     ch,
		extractor:   extractor,
		checkpoints: cps,
		sink:        sink,
		opts:        opts,
		logger:      logger,
	}
}

// Run processes a document end to end. An existing checkpoint resumes the
// run from its frontier; a terminal checkpoint returns immediately with the
// completed graph. Context cancellation between chunks saves a checkpoint
// and returns ErrStopped. Failed chunks are recorded and skipped, never
// retried within the run.
func (p *Pipeline) Run(ctx context.Context, document string) (*Result, error) {
	chunks, err := p.chunker.Chunk(document)
	if err != nil {
		return nil, err
	}

	acc := graph.NewAccumulator(p.opts.SimilarityThreshold, p.logger)
	stats := types.RunStats{TotalChunks: len(chunks)}
	start := p.opts.StartChunk
	savedOnce := false

	cp, resumeAt, err := p.checkpoints.Resume()
	if err != nil {
		return nil, err
	}
	if cp != nil {
		if cp.TotalChunks != len(chunks) {
			return nil, fmt.Errorf("checkpoint does not match document: %d chunks checkpointed, %d chunked", cp.TotalChunks, len(chunks))
		}
		acc = graph.Restore(cp.Graph, p.opts.SimilarityThreshold, p.logger)
		stats = cp.Stats
		savedOnce = true
		if resumeAt > start {
			start = resumeAt
		}
		if cp.Terminal() {
			p.logger.Info("run already complete", "total_chunks", cp.TotalChunks)
			return p.finish(acc, stats), nil
		}
	}

	p.logger.Info("processing document",
		"total_chunks", len(chunks),
		"start_chunk", start,
		"checkpoint_every", p.opts.CheckpointEvery)

	sinceCheckpoint := 0
	for i := start; i < len(chunks); i++ {
		if err := ctx.Err(); err != nil {
			if saveErr := p.save(acc, &stats, i, len(chunks), &savedOnce); saveErr != nil {
				return nil, saveErr
			}
			p.logger.Info("stopped between chunks", "next_chunk", i)
			return p.finish(acc, stats), ErrStopped
		}

		fragment, err := p.extractor.ExtractChunk(ctx, chunks[i])
		if err != nil {
			var exErr *extraction.ExtractionError
			if errors.As(err, &exErr) {
				stats.FailedChunks = append(stats.FailedChunks, i)
				p.logger.Error("chunk extraction failed, skipping",
					"chunk_index", i, "error", err)
				stats.ProcessedChunks = i + 1
				sinceCheckpoint++
				continue
			}
			return nil, err
		}

		if fragment.Unparseable {
			stats.UnparseableChunks = append(stats.UnparseableChunks, i)
		}
		delta := acc.Fold(fragment.Items, fragment.Relationships)
		p.mirror(ctx, delta)

		stats.ProcessedChunks = i + 1
		stats.Parsed += fragment.Tally.Parsed
		stats.Repaired += fragment.Tally.Repaired
		stats.Dropped += fragment.Tally.Dropped
		stats.TotalNodes = acc.NodeCount()
		stats.TotalEdges = acc.EdgeCount()
		stats.UnresolvedEdges = len(acc.Unresolved())

		p.logger.Info("chunk processed",
			"chunk_index", i,
			"progress_pct", stats.Progress(),
			"nodes", stats.TotalNodes,
			"edges", stats.TotalEdges)

		sinceCheckpoint++
		if sinceCheckpoint >= p.opts.CheckpointEvery && i != len(chunks)-1 {
			if err := p.save(acc, &stats, i+1, len(chunks), &savedOnce); err != nil {
				return nil, err
			}
			sinceCheckpoint = 0
		}

		if p.opts.PauseEvery > 0 && (i+1)%p.opts.PauseEvery == 0 && i != len(chunks)-1 {
			p.logger.Info("cooldown pause", "after_chunk", i, "duration", p.opts.PauseInterval)
			select {
			case <-time.After(p.opts.PauseInterval):
			case <-ctx.Done():
			}
		}
	}

	result := p.finish(acc, stats)
	// The terminal checkpoint doubles as the final run artifact.
	stats = result.Stats
	if err := p.save(acc, &stats, len(chunks), len(chunks), &savedOnce); err != nil {
		return nil, err
	}
	p.logger.Info("run complete",
		"total_chunks", len(chunks),
		"nodes", result.Stats.TotalNodes,
		"edges", result.Stats.TotalEdges,
		"parsed", result.Stats.Parsed,
		"repaired", result.Stats.Repaired,
		"dropped", result.Stats.Dropped,
		"failed_chunks", len(result.Stats.FailedChunks),
		"unresolved_edges", result.Stats.UnresolvedEdges)
	return result, nil
}

// save persists a checkpoint and the stats sidecar. The first failed save
// aborts the run; once one checkpoint exists on disk, later failures only
// warn because resume remains possible from the previous save.
func (p *Pipeline) save(acc *graph.Accumulator, stats *types.RunStats, processed, total int, savedOnce *bool) error {
	cp := &types.Checkpoint{
		ProcessedChunks: processed,
		TotalChunks:     total,
		Graph:           acc.Snapshot(),
		Stats:           *stats,
	}
	if err := p.checkpoints.Save(cp); err != nil {
		if !*savedOnce {
			return fmt.Errorf("initial checkpoint save failed: %w", err)
		}
		p.logger.Warn("checkpoint save failed, previous checkpoint remains valid", "error", err)
		return nil
	}
	*savedOnce = true
	p.checkpoints.WriteStats(*stats)
	return nil
}

// mirror streams a fold's delta into the sink. Sink failures are logged and
// skipped; the export at end of run reconciles anything missed.
func (p *Pipeline) mirror(ctx context.Context, delta graph.Delta) {
	if p.sink == nil {
		return
	}
	for _, node := range delta.Nodes {
		if err := p.sink.UpsertNode(ctx, node); err != nil {
			p.logger.Warn("sink node upsert failed", "node_id", node.ID, "error", err)
		}
	}
	for _, edge := range delta.Edges {
		if err := p.sink.UpsertEdge(ctx, edge); err != nil {
			p.logger.Warn("sink edge upsert failed",
				"source", edge.Source, "type", edge.Type, "target", edge.Target, "error", err)
		}
	}
}

func (p *Pipeline) finish(acc *graph.Accumulator, stats types.RunStats) *Result {
	unresolved := acc.Unresolved()
	if len(unresolved) > 0 {
		p.logger.Warn("relationships never resolved", "count", len(unresolved))
	}
	for _, conflict := range acc.Conflicts() {
		p.logger.Warn("ambiguous node collision kept separate",
			"node_a", conflict.NodeA, "node_b", conflict.NodeB, "reason", conflict.Reason)
	}
	stats.UnresolvedEdges = len(unresolved)
	stats.TotalNodes = acc.NodeCount()
	stats.TotalEdges = acc.EdgeCount()
	return &Result{
		Snapshot:   acc.Snapshot(),
		Stats:      stats,
		Unresolved: unresolved,
	}
}

// WriteExport writes the import-ready node and relationship files for a
// snapshot into dir.
func WriteExport(snapshot types.GraphSnapshot, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}
	export := graph.BuildExport(snapshot)
	if err := writeJSON(filepath.Join(dir, nodesExportFile), export.Nodes); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, relsExportFile), export.Relationships)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
