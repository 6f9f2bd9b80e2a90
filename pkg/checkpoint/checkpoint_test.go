package checkpoint_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultgraph/faultgraph/pkg/checkpoint"
	"github.com/faultgraph/faultgraph/pkg/types"
)

func sampleCheckpoint() *types.Checkpoint {
	return &types.Checkpoint{
		ProcessedChunks: 5,
		TotalChunks:     12,
		Graph: types.GraphSnapshot{
			Nodes: []*types.GraphNode{
				{
					ID:           "hydraulic_pump",
					Labels:       []string{"Entity", "COMPONENT"},
					Properties:   map[string]string{"name": "Hydraulic Pump"},
					SourceChunks: []int{0, 3},
				},
			},
			Edges: []*types.GraphEdge{
				{Source: "hydraulic_pump", Target: "reservoir", Type: "DRAWS_FROM", Properties: map[string]string{}},
			},
			Pending: []types.ExtractedRelationship{
				{SourceLocalID: "pump", TargetLocalID: "filter", Type: "FEEDS"},
			},
			SlugCounts: map[string]int{"hydraulic_pump": 1},
		},
		Stats: types.RunStats{ProcessedChunks: 5, TotalChunks: 12, Parsed: 40},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := checkpoint.NewManager(dir, nil)
	require.NoError(t, err)

	cp := sampleCheckpoint()
	require.NoError(t, m.Save(cp))
	assert.False(t, cp.SavedAt.IsZero())

	loaded, ok, err := m.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cp.ProcessedChunks, loaded.ProcessedChunks)
	assert.Equal(t, cp.TotalChunks, loaded.TotalChunks)
	assert.Equal(t, cp.Graph.Nodes[0].ID, loaded.Graph.Nodes[0].ID)
	assert.Equal(t, cp.Graph.Pending, loaded.Graph.Pending)
	assert.Equal(t, cp.Graph.SlugCounts, loaded.Graph.SlugCounts)
}

func TestLoadMissingCheckpoint(t *testing.T) {
	m, err := checkpoint.NewManager(t.TempDir(), nil)
	require.NoError(t, err)

	cp, ok, err := m.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, cp)
}

func TestResumeReportsFrontier(t *testing.T) {
	dir := t.TempDir()
	m, err := checkpoint.NewManager(dir, nil)
	require.NoError(t, err)

	cp, next, err := m.Resume()
	require.NoError(t, err)
	assert.Nil(t, cp)
	assert.Equal(t, 0, next)

	require.NoError(t, m.Save(sampleCheckpoint()))

	cp, next, err = m.Resume()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 5, next)
	assert.False(t, cp.Terminal())
}

func TestTerminalCheckpoint(t *testing.T) {
	cp := sampleCheckpoint()
	cp.ProcessedChunks = cp.TotalChunks
	assert.True(t, cp.Terminal())
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := checkpoint.NewManager(dir, nil)
	require.NoError(t, err)

	require.NoError(t, m.Save(sampleCheckpoint()))
	require.NoError(t, m.Save(sampleCheckpoint()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.Contains(entry.Name(), ".tmp-"),
			"temp file left behind: %s", entry.Name())
	}
}

func TestSaveOverwritesPrevious(t *testing.T) {
	dir := t.TempDir()
	m, err := checkpoint.NewManager(dir, nil)
	require.NoError(t, err)

	first := sampleCheckpoint()
	require.NoError(t, m.Save(first))

	second := sampleCheckpoint()
	second.ProcessedChunks = 9
	require.NoError(t, m.Save(second))

	loaded, ok, err := m.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9, loaded.ProcessedChunks)
}

func TestWriteStatsSidecar(t *testing.T) {
	dir := t.TempDir()
	m, err := checkpoint.NewManager(dir, nil)
	require.NoError(t, err)

	m.WriteStats(types.RunStats{ProcessedChunks: 3, TotalChunks: 10, Parsed: 17})

	data, err := os.ReadFile(filepath.Join(dir, "stats.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parsed": 17`)
}

func TestCorruptCheckpointIsAnError(t *testing.T) {
	dir := t.TempDir()
	m, err := checkpoint.NewManager(dir, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(m.Path(), []byte("{not json"), 0o644))

	_, _, err = m.Load()
	assert.Error(t, err)
}
