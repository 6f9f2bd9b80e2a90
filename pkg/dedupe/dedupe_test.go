package dedupe_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultgraph/faultgraph/pkg/dedupe"
	"github.com/faultgraph/faultgraph/pkg/llm"
	"github.com/faultgraph/faultgraph/pkg/types"
)

func node(id, category, name, description, domain string) *types.GraphNode {
	return &types.GraphNode{
		ID:     id,
		Labels: []string{category, "COMPONENT"},
		Properties: map[string]string{
			"name":        name,
			"description": description,
			"domain":      domain,
		},
	}
}

func TestBuildCandidatesSimilarNames(t *testing.T) {
	nodes := []*types.GraphNode{
		node("main_hydraulic_pump", "Entity", "Main Hydraulic Pump", "primary pump", "hydraulics"),
		node("main_hydraulic_pumps", "Entity", "Main Hydraulic Pumps", "", "hydraulics"),
		node("nose_gear", "Entity", "Nose Gear", "", "landing gear"),
	}

	candidates, records := dedupe.BuildCandidates(nodes)
	require.Len(t, candidates, 1)
	assert.Equal(t, dedupe.ReasonSameGroupBucket, candidates[0].Reason)
	assert.GreaterOrEqual(t, candidates[0].NameSimilarity, 0.90)
	assert.Len(t, records, 3)
}

func TestBuildCandidatesSkipsShortNames(t *testing.T) {
	nodes := []*types.GraphNode{
		node("k7", "Entity", "K7", "", ""),
		node("k8", "Entity", "K8", "", ""),
	}

	candidates, _ := dedupe.BuildCandidates(nodes)
	assert.Empty(t, candidates)
}

func TestBuildCandidatesDifferentDomainsDifferentBuckets(t *testing.T) {
	nodes := []*types.GraphNode{
		node("pump_a", "Entity", "Boost Pump", "", "fuel"),
		node("pump_b", "Entity", "Boost Pump", "", "hydraulics"),
	}

	candidates, _ := dedupe.BuildCandidates(nodes)
	assert.Empty(t, candidates)
}

func TestBuildCandidatesCrossTypeExactName(t *testing.T) {
	nodes := []*types.GraphNode{
		node("overheat", "Event", "Overheat", "", ""),
		node("overheat-2", "Concept", "Overheat", "", ""),
	}

	candidates, _ := dedupe.BuildCandidates(nodes)
	require.Len(t, candidates, 1)
	assert.Equal(t, dedupe.ReasonCrossTypeExactName, candidates[0].Reason)
	assert.Equal(t, 1.0, candidates[0].NameSimilarity)
}

func TestBuildMergeMapCanonicalByScore(t *testing.T) {
	nodes := []*types.GraphNode{
		node("a", "Entity", "Pump", "", ""),
		node("b", "Entity", "Main Hydraulic Pump", "the primary pressure source for the system", ""),
		node("c", "Entity", "Pumps", "", ""),
	}
	_, records := dedupe.BuildCandidates(nodes)

	mergeMap := dedupe.BuildMergeMap([][2]string{{"a", "b"}, {"b", "c"}}, records)

	// b has the longest name and description, so it wins the group.
	assert.Equal(t, map[string]string{"a": "b", "c": "b"}, mergeMap)
	// Canonical IDs never appear as keys.
	_, ok := mergeMap["b"]
	assert.False(t, ok)
}

func TestMergeNodesIdempotent(t *testing.T) {
	nodes := []*types.GraphNode{
		node("a", "Entity", "Pump", "", ""),
		node("b", "Entity", "Main Hydraulic Pump", "primary", "hydraulics"),
	}
	mergeMap := map[string]string{"a": "b"}

	once := dedupe.MergeNodes(nodes, mergeMap)
	require.Len(t, once, 1)
	assert.Equal(t, "b", once[0].ID)

	twice := dedupe.MergeNodes(once, mergeMap)
	assert.Equal(t, once, twice)
}

func TestMergeRelationshipsRewritesAndCollapses(t *testing.T) {
	rels := []*types.GraphEdge{
		{Source: "a", Target: "valve", Type: "FEEDS", Properties: map[string]string{"line": "1"}},
		{Source: "b", Target: "valve", Type: "FEEDS", Properties: map[string]string{"pressure": "3000"}},
		{Source: "valve", Target: "a", Type: "FED_BY", Properties: map[string]string{}},
	}
	mergeMap := map[string]string{"a": "b"}

	merged := dedupe.MergeRelationships(rels, mergeMap)
	require.Len(t, merged, 2)

	// The two FEEDS edges collapse onto canonical b with unioned props.
	assert.Equal(t, "b", merged[0].Source)
	assert.Equal(t, "FEEDS", merged[0].Type)
	assert.Equal(t, "1", merged[0].Properties["line"])
	assert.Equal(t, "3000", merged[0].Properties["pressure"])

	assert.Equal(t, "valve", merged[1].Source)
	assert.Equal(t, "b", merged[1].Target)
}

// scriptedLLM returns a fixed response for every chat call.
type scriptedLLM struct {
	content string
	calls   int
}

func (s *scriptedLLM) Chat(_ context.Context, _ []llm.Message) (*llm.Response, error) {
	s.calls++
	return &llm.Response{Content: s.content}, nil
}

func (s *scriptedLLM) Close() error { return nil }

func TestRunnerMergesAcceptedPairs(t *testing.T) {
	nodes := []*types.GraphNode{
		node("main_hydraulic_pump", "Entity", "Main Hydraulic Pump", "primary pressure source", "hydraulics"),
		node("hydraulic_pump_main", "Entity", "Main Hydraulic Pumps", "", "hydraulics"),
	}
	rels := []*types.GraphEdge{
		{Source: "hydraulic_pump_main", Target: "reservoir", Type: "DRAWS_FROM", Properties: map[string]string{}},
	}

	mock := &scriptedLLM{content: `{"same": true, "confidence": 0.92, "canonical_name": "Main Hydraulic Pump", "reason": "same pump"}`}
	runner := dedupe.NewRunner(dedupe.NewJudge(mock), dedupe.Options{OutDir: t.TempDir()}, nil)

	result, err := runner.Run(context.Background(), nodes, rels)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.calls)
	assert.Equal(t, 1, result.Evaluated)

	require.Len(t, result.Nodes, 1)
	assert.Equal(t, "main_hydraulic_pump", result.Nodes[0].ID)
	assert.Equal(t, map[string]string{"hydraulic_pump_main": "main_hydraulic_pump"}, result.MergeMap)

	// The edge endpoint is rewritten to the canonical node.
	require.Len(t, result.Relationships, 1)
	assert.Equal(t, "main_hydraulic_pump", result.Relationships[0].Source)

	for _, name := range []string{"review_pairs.json", "merge_map.json", "nodes_deduped.json", "relationships_deduped.json"} {
		_, err := os.Stat(filepath.Join(result.RunDir, name))
		assert.NoError(t, err, "missing artifact %s", name)
	}
	_, err = os.Stat(filepath.Join(filepath.Dir(result.RunDir), "latest.json"))
	assert.NoError(t, err)
}

func TestRunnerResumeFromShortDirName(t *testing.T) {
	// --resume accepts any existing run directory, including ones that do
	// not follow the run_<timestamp> naming.
	parent := t.TempDir()
	runDir := filepath.Join(parent, "ab")
	require.NoError(t, os.MkdirAll(runDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "checkpoint.json"), []byte(`{}`), 0o644))

	nodes := []*types.GraphNode{
		node("main_hydraulic_pump", "Entity", "Main Hydraulic Pump", "primary pressure source", "hydraulics"),
		node("hydraulic_pump_main", "Entity", "Main Hydraulic Pumps", "", "hydraulics"),
	}

	mock := &scriptedLLM{content: `{"same": true, "confidence": 0.92, "canonical_name": "Main Hydraulic Pump", "reason": "same pump"}`}
	runner := dedupe.NewRunner(dedupe.NewJudge(mock), dedupe.Options{OutDir: parent, ResumeFrom: runDir}, nil)

	result, err := runner.Run(context.Background(), nodes, nil)
	require.NoError(t, err)
	assert.Equal(t, runDir, result.RunDir)

	data, err := os.ReadFile(filepath.Join(parent, "latest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id": "ab"`)
}

func TestRunnerCrossCategoryNeverMerges(t *testing.T) {
	nodes := []*types.GraphNode{
		node("overheat", "Event", "Overheat", "", ""),
		node("overheat-2", "Concept", "Overheat", "", ""),
	}

	mock := &scriptedLLM{content: `{"same": true, "confidence": 0.99, "canonical_name": "Overheat", "reason": "identical"}`}
	runner := dedupe.NewRunner(dedupe.NewJudge(mock), dedupe.Options{OutDir: t.TempDir()}, nil)

	result, err := runner.Run(context.Background(), nodes, nil)
	require.NoError(t, err)
	assert.Empty(t, result.MergeMap)
	assert.Equal(t, 1, result.CrossTypeSuggestions)
	assert.Len(t, result.Nodes, 2)
}

func TestRunnerLowConfidenceRejected(t *testing.T) {
	nodes := []*types.GraphNode{
		node("main_hydraulic_pump", "Entity", "Main Hydraulic Pump", "", "hydraulics"),
		node("main_hydraulic_pumps", "Entity", "Main Hydraulic Pumps", "", "hydraulics"),
	}

	mock := &scriptedLLM{content: `{"same": true, "confidence": 0.60, "canonical_name": "Main Hydraulic Pump", "reason": "probably"}`}
	runner := dedupe.NewRunner(dedupe.NewJudge(mock), dedupe.Options{OutDir: t.TempDir()}, nil)

	result, err := runner.Run(context.Background(), nodes, nil)
	require.NoError(t, err)
	assert.Empty(t, result.MergeMap)
	assert.Len(t, result.Nodes, 2)
}
