package extraction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faultgraph/faultgraph/pkg/extraction"
	"github.com/faultgraph/faultgraph/pkg/types"
)

func rawResponse(text string) types.RawExtraction {
	return types.RawExtraction{ChunkIndex: 3, RawText: text}
}

func TestParseItemsCleanArray(t *testing.T) {
	raw := rawResponse(`[
		{"id": "hydraulic_pump", "type": "component", "properties": {"name": "Hydraulic Pump", "description": "Main pressure source", "domain": "hydraulics"}},
		{"id": "relay_k7", "type": "component", "properties": {"name": "Relay K7"}}
	]`)

	items, tally, err := extraction.ParseItems(raw, types.CategoryEntity)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, types.ParseTally{Parsed: 2}, tally)

	assert.Equal(t, "hydraulic_pump", items[0].LocalID)
	assert.Equal(t, "COMPONENT", items[0].TypeLabel)
	assert.Equal(t, "Hydraulic Pump", items[0].Name)
	assert.Equal(t, "Main pressure source", items[0].Description)
	assert.Equal(t, "hydraulics", items[0].Domain)
	assert.Equal(t, []int{3}, items[0].SourceChunks)
}

func TestParseItemsProseWrapped(t *testing.T) {
	raw := rawResponse(`Sure! Here are the entities I found in the text:

[{"id": "filter", "type": "component", "properties": {"name": "Filter"}}]

Let me know if you need anything else.`)

	items, tally, err := extraction.ParseItems(raw, types.CategoryEntity)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, tally.Parsed)
	assert.Equal(t, 0, tally.Repaired)
}

func TestParseItemsFenced(t *testing.T) {
	raw := rawResponse("```json\n[{\"id\": \"filter\", \"type\": \"component\", \"properties\": {\"name\": \"Filter\"}}]\n```")

	items, _, err := extraction.ParseItems(raw, types.CategoryEntity)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestParseItemsWrapperObject(t *testing.T) {
	raw := rawResponse(`{"entities": [{"id": "filter", "type": "component", "properties": {"name": "Filter"}}]}`)

	items, _, err := extraction.ParseItems(raw, types.CategoryEntity)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestParseItemsTruncatedResponse(t *testing.T) {
	// Cut off mid-record: the complete first record survives repair, the
	// incomplete second one is dropped.
	raw := rawResponse(`[
		{"id": "pump", "type": "component", "properties": {"name": "Pump"}},
		{"id": "valve"`)

	items, tally, err := extraction.ParseItems(raw, types.CategoryEntity)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "pump", items[0].LocalID)
	assert.Equal(t, 1, tally.Parsed)
	assert.Equal(t, 1, tally.Repaired)
	assert.Equal(t, 1, tally.Dropped)
}

func TestParseItemsNoJSONAtAll(t *testing.T) {
	raw := rawResponse("I could not find any entities in this text.")

	_, _, err := extraction.ParseItems(raw, types.CategoryEntity)
	assert.ErrorIs(t, err, extraction.ErrUnparseable)
}

func TestParseItemsDropsInvalidRecords(t *testing.T) {
	raw := rawResponse(`[
		{"id": "pump", "type": "component", "properties": {"name": "Pump"}},
		{"id": "", "type": "component", "properties": {}},
		{"id": "valve", "type": "", "properties": {"name": "Valve"}}
	]`)

	items, tally, err := extraction.ParseItems(raw, types.CategoryEntity)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, tally.Parsed)
	assert.Equal(t, 2, tally.Dropped)
}

func TestParseItemsNameFallsBackToID(t *testing.T) {
	raw := rawResponse(`[{"id": "main_hydraulic_pump", "type": "component", "properties": {}}]`)

	items, _, err := extraction.ParseItems(raw, types.CategoryEntity)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "main hydraulic pump", items[0].Name)
}

func TestParseItemsEventFields(t *testing.T) {
	raw := rawResponse(`[{"id": "pressure_drop", "type": "failure", "properties": {"name": "Pressure Drop"}, "actor": "pump", "target": "circuit", "temporal_order": 2}]`)

	items, _, err := extraction.ParseItems(raw, types.CategoryEvent)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, types.CategoryEvent, items[0].Category)
	assert.Equal(t, "pump", items[0].Properties["actor"])
	assert.Equal(t, "circuit", items[0].Properties["target"])
	assert.Equal(t, "2", items[0].Properties["temporal_order"])
}

func TestParseItemsBracketInsideString(t *testing.T) {
	raw := rawResponse(`[{"id": "gauge", "type": "tool", "properties": {"name": "Gauge [0-300 psi]"}}]`)

	items, _, err := extraction.ParseItems(raw, types.CategoryEntity)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Gauge [0-300 psi]", items[0].Name)
}

func TestParseItemsCitationBeforePayload(t *testing.T) {
	// A balanced citation bracket in leading prose must not shadow the
	// actual array behind it.
	raw := rawResponse(`As requested [1], here are the entities:
[{"id": "pump", "type": "component", "properties": {"name": "Pump"}}]`)

	items, tally, err := extraction.ParseItems(raw, types.CategoryEntity)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "pump", items[0].LocalID)
	assert.Equal(t, types.ParseTally{Parsed: 1}, tally)
}

func TestParseItemsCitationBeforeTruncatedPayload(t *testing.T) {
	raw := rawResponse(`See the manual [2] for context:
[
	{"id": "pump", "type": "component", "properties": {"name": "Pump"}},
	{"id": "valve"`)

	items, tally, err := extraction.ParseItems(raw, types.CategoryEntity)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "pump", items[0].LocalID)
	assert.Equal(t, 1, tally.Repaired)
	assert.Equal(t, 1, tally.Dropped)
}

func TestParseRelationships(t *testing.T) {
	raw := rawResponse(`[
		{"source": "pump", "target": "pressure_drop", "type": "CAUSES", "properties": {"confidence": 0.9}},
		{"source": "", "target": "x", "type": "CAUSES"},
		{"source": "a", "target": "b", "type": ""}
	]`)

	rels, tally, err := extraction.ParseRelationships(raw)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "pump", rels[0].SourceLocalID)
	assert.Equal(t, "pressure_drop", rels[0].TargetLocalID)
	assert.Equal(t, "CAUSES", rels[0].Type)
	assert.Equal(t, "0.9", rels[0].Properties["confidence"])
	assert.Equal(t, []int{3}, rels[0].SourceChunks)
	assert.Equal(t, 1, tally.Parsed)
	assert.Equal(t, 2, tally.Dropped)
}

func TestStripWrappers(t *testing.T) {
	assert.Equal(t, `[1]`, extraction.StripWrappers("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, extraction.StripWrappers("  [1]  "))
	assert.Equal(t, `[1]`, extraction.StripWrappers("```\n[1]\n```"))
}

func TestFindJSONSpan(t *testing.T) {
	span, ok := extraction.FindJSONSpan(`prose before [{"a": 1}] prose after`)
	require.True(t, ok)
	assert.Equal(t, `[{"a": 1}]`, span)

	span, ok = extraction.FindJSONSpan(`{"same": true, "note": "contains } inside"}`)
	require.True(t, ok)
	assert.Equal(t, `{"same": true, "note": "contains } inside"}`, span)

	_, ok = extraction.FindJSONSpan("no json here")
	assert.False(t, ok)
}
