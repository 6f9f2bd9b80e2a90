package types

import (
	"time"
)

// Category classifies an extracted item as an entity, event, or concept.
type Category string

const (
	// CategoryEntity covers concrete objects: components, tools, people, locations.
	CategoryEntity Category = "Entity"
	// CategoryEvent covers actions, procedures, and processes.
	CategoryEvent Category = "Event"
	// CategoryConcept covers abstract principles and categories.
	CategoryConcept Category = "Concept"
)

// Categories lists all item categories in a stable order.
var Categories = []Category{CategoryEntity, CategoryEvent, CategoryConcept}

// Chunk is a bounded, overlapping slice of the source document. It is the
// unit of LLM extraction and is immutable once produced.
type Chunk struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// RawExtraction holds unparsed LLM output tied to its source chunk. It is
// transient and discarded after parsing.
type RawExtraction struct {
	ChunkIndex int    `json:"chunk_index"`
	RawText    string `json:"raw_text"`
}

// ExtractedItem is a single entity, event, or concept parsed from one chunk's
// extraction. LocalID is scoped to the chunk until the item is merged.
type ExtractedItem struct {
	LocalID      string            `json:"id"`
	TypeLabel    string            `json:"type"`
	Category     Category          `json:"category"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Domain       string            `json:"domain,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	SourceChunks []int             `json:"source_chunks,omitempty"`
}

// ExtractedRelationship links two extracted items by their chunk-local IDs.
type ExtractedRelationship struct {
	SourceLocalID string            `json:"source"`
	TargetLocalID string            `json:"target"`
	Type          string            `json:"type"`
	Properties    map[string]string `json:"properties,omitempty"`
	SourceChunks  []int             `json:"source_chunks,omitempty"`
}

// GraphNode is a merged node in the running graph. ID is the canonical ID,
// stable once assigned and never reused after a merge.
type GraphNode struct {
	ID           string            `json:"id"`
	Labels       []string          `json:"labels"`
	Properties   map[string]string `json:"properties"`
	SourceChunks []int             `json:"source_chunks"`
}

// Name returns the display name of the node, falling back to its ID.
func (n *GraphNode) Name() string {
	if name, ok := n.Properties["name"]; ok && name != "" {
		return name
	}
	return n.ID
}

// Category returns the EEC category label, or empty if none is present.
func (n *GraphNode) Category() Category {
	for _, label := range n.Labels {
		switch Category(label) {
		case CategoryEntity, CategoryEvent, CategoryConcept:
			return Category(label)
		}
	}
	return ""
}

// GraphEdge is a merged relationship between two canonical nodes. After a
// merge no two edges share the same (Source, Target, Type) triple.
type GraphEdge struct {
	Source       string            `json:"source"`
	Target       string            `json:"target"`
	Type         string            `json:"type"`
	Properties   map[string]string `json:"properties,omitempty"`
	TemporalInfo map[string]string `json:"temporal_info,omitempty"`
	SourceChunks []int             `json:"source_chunks,omitempty"`

	// Denormalized labels of the endpoints, populated at export time.
	SourceLabels []string `json:"source_labels,omitempty"`
	TargetLabels []string `json:"target_labels,omitempty"`
}

// ParseTally counts parse outcomes for one chunk's extraction responses.
type ParseTally struct {
	Parsed   int `json:"parsed"`
	Repaired int `json:"repaired"`
	Dropped  int `json:"dropped"`
}

// Add accumulates another tally into this one.
func (t *ParseTally) Add(other ParseTally) {
	t.Parsed += other.Parsed
	t.Repaired += other.Repaired
	t.Dropped += other.Dropped
}

// RunStats summarizes pipeline progress. The final report always carries
// these counts so dropped data is visible.
type RunStats struct {
	ProcessedChunks   int       `json:"processed_chunks"`
	TotalChunks       int       `json:"total_chunks"`
	Parsed            int       `json:"parsed"`
	Repaired          int       `json:"repaired"`
	Dropped           int       `json:"dropped"`
	FailedChunks      []int     `json:"failed_chunks,omitempty"`
	UnparseableChunks []int     `json:"unparseable_chunks,omitempty"`
	UnresolvedEdges   int       `json:"unresolved_edges"`
	TotalNodes        int       `json:"total_nodes"`
	TotalEdges        int       `json:"total_edges"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Progress returns the completion percentage, rounded to one decimal.
func (s *RunStats) Progress() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	pct := float64(s.ProcessedChunks) / float64(s.TotalChunks) * 100
	return float64(int(pct*10+0.5)) / 10
}

// GraphSnapshot is the serializable state of the accumulator: the merged
// graph plus everything needed to resume deterministically.
type GraphSnapshot struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`

	// Relationships whose endpoints had not resolved yet when the snapshot
	// was taken. Retried on subsequent folds.
	Pending []ExtractedRelationship `json:"pending,omitempty"`

	// Collision counters for canonical ID slugs, keyed by base slug.
	SlugCounts map[string]int `json:"slug_counts,omitempty"`
}

// Checkpoint is a persisted snapshot of pipeline progress. A progress
// checkpoint is overwritten each save; the terminal checkpoint
// (ProcessedChunks == TotalChunks) is retained permanently.
type Checkpoint struct {
	ProcessedChunks int           `json:"processed_chunk_count"`
	TotalChunks     int           `json:"total_chunk_count"`
	Graph           GraphSnapshot `json:"graph_snapshot"`
	Stats           RunStats      `json:"stats"`
	SavedAt         time.Time     `json:"saved_at"`
}

// Terminal reports whether this checkpoint marks a completed run.
func (c *Checkpoint) Terminal() bool {
	return c.TotalChunks > 0 && c.ProcessedChunks == c.TotalChunks
}
