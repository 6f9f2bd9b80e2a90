package faultgraph_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultgraph/faultgraph"
	"github.com/faultgraph/faultgraph/pkg/checkpoint"
	"github.com/faultgraph/faultgraph/pkg/chunker"
	"github.com/faultgraph/faultgraph/pkg/driver"
	"github.com/faultgraph/faultgraph/pkg/extraction"
	"github.com/faultgraph/faultgraph/pkg/llm"
)

const manual = "The hydraulic pump draws fluid from the reservoir tank. A sticking relay can stop the pump from starting."

// scriptedLLM answers extraction prompts with canned JSON keyed on the
// prompt's category marker and chunk content. When cancelAt is set, the
// matching call fires cancel before answering, simulating an interrupt
// arriving while a chunk is in flight.
type scriptedLLM struct {
	calls      int
	entityErrs map[string]error
	cancelAt   int
	cancel     context.CancelFunc
}

func (s *scriptedLLM) Chat(_ context.Context, messages []llm.Message) (*llm.Response, error) {
	s.calls++
	if s.cancelAt > 0 && s.calls == s.cancelAt && s.cancel != nil {
		s.cancel()
	}
	prompt := messages[len(messages)-1].Content
	secondChunk := strings.Contains(prompt, "relay")

	switch {
	case strings.Contains(prompt, "concrete entities"):
		for marker, err := range s.entityErrs {
			if strings.Contains(prompt, marker) {
				return nil, err
			}
		}
		if secondChunk {
			return &llm.Response{Content: `[
				{"id": "hydraulic_pump", "type": "component", "properties": {"name": "Hydraulic Pump"}},
				{"id": "relay", "type": "component", "properties": {"name": "Relay"}}
			]`}, nil
		}
		return &llm.Response{Content: `[
			{"id": "hydraulic_pump", "type": "component", "properties": {"name": "Hydraulic Pump", "description": "draws fluid"}},
			{"id": "reservoir", "type": "component", "properties": {"name": "Reservoir"}}
		]`}, nil
	case strings.Contains(prompt, "events and procedures"),
		strings.Contains(prompt, "abstract concepts"):
		return &llm.Response{Content: `[]`}, nil
	case strings.Contains(prompt, "Identify relationships"):
		if secondChunk {
			return &llm.Response{Content: `[{"source": "relay", "target": "hydraulic_pump", "type": "TRIGGERS"}]`}, nil
		}
		return &llm.Response{Content: `[{"source": "hydraulic_pump", "target": "reservoir", "type": "REQUIRES"}]`}, nil
	}
	return &llm.Response{Content: `[]`}, nil
}

func (s *scriptedLLM) Close() error { return nil }

func newTestPipeline(t *testing.T, mock llm.Client, dir string, sink driver.GraphSink) *faultgraph.Pipeline {
	t.Helper()
	ch, err := chunker.New(60, 10)
	require.NoError(t, err)
	manager, err := checkpoint.NewManager(dir, nil)
	require.NoError(t, err)
	return faultgraph.NewPipeline(
		ch,
		extraction.NewClient(mock, nil),
		manager,
		sink,
		faultgraph.Options{CheckpointEvery: 1},
		nil,
	)
}

func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	sink := driver.NewMemorySink()
	mock := &scriptedLLM{}
	pipeline := newTestPipeline(t, mock, dir, sink)

	result, err := pipeline.Run(context.Background(), manual)
	require.NoError(t, err)

	// Both chunks mention the pump; the graph merges it into one node.
	assert.Equal(t, 3, result.Stats.TotalNodes)
	assert.Equal(t, 2, result.Stats.TotalEdges)
	assert.Empty(t, result.Stats.FailedChunks)
	assert.Empty(t, result.Unresolved)
	assert.Equal(t, result.Stats.TotalChunks, result.Stats.ProcessedChunks)

	// The sink mirrors the merged graph.
	assert.Equal(t, 3, sink.NodeCount())
	assert.Equal(t, 2, sink.EdgeCount())
	pump, ok := sink.Node("hydraulic_pump")
	require.True(t, ok)
	assert.Equal(t, "draws fluid", pump.Properties["description"])

	// The terminal checkpoint remains on disk as the final artifact.
	manager, err := checkpoint.NewManager(dir, nil)
	require.NoError(t, err)
	cp, found, err := manager.Load()
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, cp.Terminal())
}

func TestPipelineResumeAfterCompletion(t *testing.T) {
	dir := t.TempDir()
	mock := &scriptedLLM{}
	pipeline := newTestPipeline(t, mock, dir, nil)

	first, err := pipeline.Run(context.Background(), manual)
	require.NoError(t, err)
	callsAfterFirst := mock.calls

	// A rerun over the terminal checkpoint does no extraction work.
	second, err := newTestPipeline(t, mock, dir, nil).Run(context.Background(), manual)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, mock.calls)
	assert.Equal(t, first.Stats.TotalNodes, second.Stats.TotalNodes)
	assert.Equal(t, first.Stats.TotalEdges, second.Stats.TotalEdges)
}

func TestPipelineSkipsFailedChunk(t *testing.T) {
	dir := t.TempDir()
	mock := &scriptedLLM{entityErrs: map[string]error{"relay": errors.New("model unavailable")}}
	pipeline := newTestPipeline(t, mock, dir, nil)

	result, err := pipeline.Run(context.Background(), manual)
	require.NoError(t, err)

	// The second chunk failed and was skipped; the first chunk's graph
	// still lands, and the failure is visible in the stats.
	assert.Equal(t, []int{1}, result.Stats.FailedChunks)
	assert.Equal(t, 2, result.Stats.TotalNodes)
	assert.Equal(t, result.Stats.TotalChunks, result.Stats.ProcessedChunks)
}

func TestPipelineResumeMidRunMatchesUninterrupted(t *testing.T) {
	full, err := newTestPipeline(t, &scriptedLLM{}, t.TempDir(), nil).Run(context.Background(), manual)
	require.NoError(t, err)

	// Interrupt after the first chunk's four calls: the cancellation lands
	// before the second chunk starts.
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mock := &scriptedLLM{cancelAt: 4, cancel: cancel}
	_, err = newTestPipeline(t, mock, dir, nil).Run(ctx, manual)
	require.ErrorIs(t, err, faultgraph.ErrStopped)
	require.Equal(t, 4, mock.calls)

	resumedMock := &scriptedLLM{}
	resumed, err := newTestPipeline(t, resumedMock, dir, nil).Run(context.Background(), manual)
	require.NoError(t, err)

	// Only the second chunk is extracted on resume, and the final graph is
	// indistinguishable from the uninterrupted run's.
	assert.Equal(t, 4, resumedMock.calls)
	assert.Equal(t, full.Snapshot, resumed.Snapshot)
	assert.Equal(t, full.Stats, resumed.Stats)
}

func TestPipelineStopBetweenChunks(t *testing.T) {
	dir := t.TempDir()
	mock := &scriptedLLM{}
	pipeline := newTestPipeline(t, mock, dir, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pipeline.Run(ctx, manual)
	assert.ErrorIs(t, err, faultgraph.ErrStopped)

	// The stop checkpointed zero progress; a fresh run completes.
	result, err := newTestPipeline(t, mock, dir, nil).Run(context.Background(), manual)
	require.NoError(t, err)
	assert.Equal(t, result.Stats.TotalChunks, result.Stats.ProcessedChunks)
}

func TestWriteExport(t *testing.T) {
	dir := t.TempDir()
	pipeline := newTestPipeline(t, &scriptedLLM{}, dir, nil)

	result, err := pipeline.Run(context.Background(), manual)
	require.NoError(t, err)

	exportDir := filepath.Join(dir, "export")
	require.NoError(t, faultgraph.WriteExport(result.Snapshot, exportDir))

	nodesData, err := os.ReadFile(filepath.Join(exportDir, "neo4j_nodes.json"))
	require.NoError(t, err)
	assert.Contains(t, string(nodesData), `"hydraulic_pump"`)

	relsData, err := os.ReadFile(filepath.Join(exportDir, "neo4j_relationships.json"))
	require.NoError(t, err)
	assert.Contains(t, string(relsData), `"source_labels"`)
}
