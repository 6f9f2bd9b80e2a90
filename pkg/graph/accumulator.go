// Package graph maintains the running knowledge graph: it folds each chunk's
// validated items into merged nodes and edges, resolving references that
// denote the same real-world thing across chunks. The accumulator is an
// online algorithm; the graph is valid after every fold so a checkpoint can
// snapshot it at any point.
package graph

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/faultgraph/faultgraph/pkg/types"
	"github.com/faultgraph/faultgraph/pkg/utils"
)

// DefaultSimilarityThreshold is the normalized-name similarity above which
// two same-category items merge on ingest. Tuned on the original dedupe
// runs; see also dedupe.DefaultSimilarityThreshold.
const DefaultSimilarityThreshold = 0.90

type nodeKey struct {
	category types.Category
	norm     string
}

type edgeKey struct {
	source string
	target string
	typ    string
}

// Conflict records an ambiguous collision that was not auto-merged: same
// normalized name, different category. It is surfaced to the dedupe review
// pass, never silently resolved.
type Conflict struct {
	NodeA  string `json:"node_a"`
	NodeB  string `json:"node_b"`
	Reason string `json:"reason"`
}

// Accumulator owns the in-memory graph state for a run. It is not safe for
// concurrent use; the pipeline processes chunks sequentially by design.
type Accumulator struct {
	nodes     map[string]*types.GraphNode
	nodeOrder []string
	edges     map[edgeKey]*types.GraphEdge
	edgeOrder []edgeKey

	// byKey resolves (category, normalized name) to a canonical ID.
	byKey map[nodeKey]string
	// byNorm resolves a normalized name across categories, in insertion
	// order, for relationship endpoints that reference items from earlier
	// chunks by name.
	byNorm map[string][]string
	// norms remembers each node's normalized name for similarity scans.
	norms map[string]string

	slugCounts map[string]int
	pending    []types.ExtractedRelationship
	conflicts  []Conflict

	simThreshold float64
	logger       *slog.Logger
}

// NewAccumulator creates an empty accumulator. A threshold <= 0 uses the
// default; a nil logger discards logs.
func NewAccumulator(simThreshold float64, logger *slog.Logger) *Accumulator {
	if simThreshold <= 0 {
		simThreshold = DefaultSimilarityThreshold
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Accumulator{
		nodes:        make(map[string]*types.GraphNode),
		edges:        make(map[edgeKey]*types.GraphEdge),
		byKey:        make(map[nodeKey]string),
		byNorm:       make(map[string][]string),
		norms:        make(map[string]string),
		slugCounts:   make(map[string]int),
		simThreshold: simThreshold,
		logger:       logger,
	}
}

// Delta lists the nodes and edges a fold touched, for incremental mirroring
// into a sink. Pointers refer to live accumulator state.
type Delta struct {
	Nodes []*types.GraphNode
	Edges []*types.GraphEdge
}

// Fold merges one chunk's validated items and relationships into the graph.
// Relationships whose endpoints have not resolved yet are queued and retried
// on every subsequent fold. The returned delta covers everything this fold
// created or updated, including pending edges that resolved late.
func (a *Accumulator) Fold(items []types.ExtractedItem, rels []types.ExtractedRelationship) Delta {
	var delta Delta
	touchedNodes := make(map[string]bool)
	touchedEdges := make(map[edgeKey]bool)

	// Local IDs are scoped to this chunk's extraction.
	local := make(map[string]string, len(items))
	for i := range items {
		canonicalID := a.ingestItem(&items[i])
		local[items[i].LocalID] = canonicalID
		if !touchedNodes[canonicalID] {
			touchedNodes[canonicalID] = true
			delta.Nodes = append(delta.Nodes, a.nodes[canonicalID])
		}
	}

	for _, rel := range rels {
		source, sourceOK := a.resolveEndpoint(local, rel.SourceLocalID)
		target, targetOK := a.resolveEndpoint(local, rel.TargetLocalID)
		if sourceOK && targetOK {
			key := a.addEdge(source, target, rel)
			if !touchedEdges[key] {
				touchedEdges[key] = true
				delta.Edges = append(delta.Edges, a.edges[key])
			}
		} else {
			a.pending = append(a.pending, rel)
		}
	}

	for _, key := range a.retryPending() {
		if !touchedEdges[key] {
			touchedEdges[key] = true
			delta.Edges = append(delta.Edges, a.edges[key])
		}
	}
	return delta
}

// ingestItem resolves an item against existing nodes and either merges it or
// creates a new node. Returns the canonical ID.
func (a *Accumulator) ingestItem(item *types.ExtractedItem) string {
	norm := utils.NormalizeName(item.Name)
	key := nodeKey{category: item.Category, norm: norm}

	if id, ok := a.byKey[key]; ok {
		a.mergeInto(a.nodes[id], item)
		return id
	}

	if id, ok := a.findSimilar(item, norm); ok {
		a.mergeInto(a.nodes[id], item)
		return id
	}

	// Same name under a different category is ambiguous; keep both and
	// flag the pair for dedupe review.
	for _, otherID := range a.byNorm[norm] {
		a.conflicts = append(a.conflicts, Conflict{
			NodeA:  otherID,
			NodeB:  a.peekSlug(norm),
			Reason: "same name, different category",
		})
	}

	return a.createNode(item, norm)
}

// findSimilar scans same-category nodes in insertion order for the first
// whose normalized name clears the similarity threshold. Nodes with an
// explicitly conflicting domain never match.
func (a *Accumulator) findSimilar(item *types.ExtractedItem, norm string) (string, bool) {
	for _, id := range a.nodeOrder {
		node := a.nodes[id]
		if node.Category() != item.Category {
			continue
		}
		if utils.Similarity(norm, a.norms[id]) < a.simThreshold {
			continue
		}
		nodeDomain := node.Properties["domain"]
		if item.Domain != "" && nodeDomain != "" && item.Domain != nodeDomain {
			continue
		}
		return id, true
	}
	return "", false
}

func (a *Accumulator) createNode(item *types.ExtractedItem, norm string) string {
	id := a.assignID(norm, item.LocalID)

	props := make(map[string]string, len(item.Properties)+1)
	for k, v := range item.Properties {
		if v != "" {
			props[k] = v
		}
	}
	props["name"] = item.Name

	node := &types.GraphNode{
		ID:           id,
		Labels:       unionLabels(nil, string(item.Category), item.TypeLabel),
		Properties:   props,
		SourceChunks: unionInts(nil, item.SourceChunks),
	}

	a.nodes[id] = node
	a.nodeOrder = append(a.nodeOrder, id)
	a.byKey[nodeKey{category: item.Category, norm: norm}] = id
	a.byNorm[norm] = append(a.byNorm[norm], id)
	a.norms[id] = norm
	return id
}

// mergeInto unions labels and source chunks and folds properties in with the
// non-empty-preferred, earlier-seen-wins rule. The result depends only on
// chunk processing order, which the pipeline keeps deterministic.
func (a *Accumulator) mergeInto(node *types.GraphNode, item *types.ExtractedItem) {
	node.Labels = unionLabels(node.Labels, string(item.Category), item.TypeLabel)
	node.SourceChunks = unionInts(node.SourceChunks, item.SourceChunks)
	for k, v := range item.Properties {
		if v == "" {
			continue
		}
		if existing, ok := node.Properties[k]; !ok || existing == "" {
			node.Properties[k] = v
		}
	}
}

// assignID derives a stable canonical ID from the normalized name, suffixing
// on collision. IDs are never reused after a merge.
func (a *Accumulator) assignID(norm, fallback string) string {
	slug := utils.Slugify(norm)
	if slug == "" {
		slug = utils.Slugify(fallback)
	}
	if slug == "" {
		slug = "node"
	}

	count := a.slugCounts[slug]
	a.slugCounts[slug] = count + 1
	if count == 0 {
		return slug
	}
	return fmt.Sprintf("%s-%d", slug, count+1)
}

// peekSlug reports the ID the next node with this normalized name would get,
// without consuming a suffix.
func (a *Accumulator) peekSlug(norm string) string {
	slug := utils.Slugify(norm)
	if count := a.slugCounts[slug]; count > 0 {
		return fmt.Sprintf("%s-%d", slug, count+1)
	}
	return slug
}

// resolveEndpoint maps a chunk-local reference to a canonical ID: first the
// current chunk's extraction, then a cross-chunk lookup of the reference as
// a normalized name (earliest node wins).
func (a *Accumulator) resolveEndpoint(local map[string]string, localID string) (string, bool) {
	if id, ok := local[localID]; ok {
		return id, true
	}
	if _, ok := a.nodes[localID]; ok {
		return localID, true
	}
	norm := utils.NormalizeName(localID)
	if ids := a.byNorm[norm]; len(ids) > 0 {
		return ids[0], true
	}
	return "", false
}

// addEdge inserts or unions an edge. No two edges share (source, target,
// type); duplicates are property-unioned, not duplicated.
func (a *Accumulator) addEdge(source, target string, rel types.ExtractedRelationship) edgeKey {
	key := edgeKey{source: source, target: target, typ: rel.Type}
	if existing, ok := a.edges[key]; ok {
		for k, v := range rel.Properties {
			if v == "" {
				continue
			}
			if cur, ok := existing.Properties[k]; !ok || cur == "" {
				existing.Properties[k] = v
			}
		}
		existing.SourceChunks = unionInts(existing.SourceChunks, rel.SourceChunks)
		return key
	}

	props := make(map[string]string, len(rel.Properties))
	for k, v := range rel.Properties {
		if v != "" {
			props[k] = v
		}
	}
	a.edges[key] = &types.GraphEdge{
		Source:       source,
		Target:       target,
		Type:         rel.Type,
		Properties:   props,
		SourceChunks: unionInts(nil, rel.SourceChunks),
	}
	a.edgeOrder = append(a.edgeOrder, key)
	return key
}

// retryPending re-resolves queued relationships against the grown graph and
// reports the edge keys that resolved.
func (a *Accumulator) retryPending() []edgeKey {
	if len(a.pending) == 0 {
		return nil
	}
	var resolved []edgeKey
	var still []types.ExtractedRelationship
	for _, rel := range a.pending {
		source, sourceOK := a.resolveEndpoint(nil, rel.SourceLocalID)
		target, targetOK := a.resolveEndpoint(nil, rel.TargetLocalID)
		if sourceOK && targetOK {
			resolved = append(resolved, a.addEdge(source, target, rel))
		} else {
			still = append(still, rel)
		}
	}
	a.pending = still
	return resolved
}

// Nodes returns the merged nodes in insertion order.
func (a *Accumulator) Nodes() []*types.GraphNode {
	out := make([]*types.GraphNode, len(a.nodeOrder))
	for i, id := range a.nodeOrder {
		out[i] = a.nodes[id]
	}
	return out
}

// Edges returns the merged edges in insertion order.
func (a *Accumulator) Edges() []*types.GraphEdge {
	out := make([]*types.GraphEdge, len(a.edgeOrder))
	for i, key := range a.edgeOrder {
		out[i] = a.edges[key]
	}
	return out
}

// Unresolved returns relationships whose endpoints never resolved. They are
// reported at end of run, not inserted.
func (a *Accumulator) Unresolved() []types.ExtractedRelationship {
	return a.pending
}

// Conflicts returns the ambiguous collisions recorded during ingest.
func (a *Accumulator) Conflicts() []Conflict {
	return a.conflicts
}

// NodeCount returns the number of merged nodes.
func (a *Accumulator) NodeCount() int { return len(a.nodeOrder) }

// EdgeCount returns the number of merged edges.
func (a *Accumulator) EdgeCount() int { return len(a.edgeOrder) }

// Snapshot captures the serializable accumulator state. The snapshot shares
// no mutable structure with the accumulator.
func (a *Accumulator) Snapshot() types.GraphSnapshot {
	nodes := make([]*types.GraphNode, len(a.nodeOrder))
	for i, id := range a.nodeOrder {
		nodes[i] = cloneNode(a.nodes[id])
	}
	edges := make([]*types.GraphEdge, len(a.edgeOrder))
	for i, key := range a.edgeOrder {
		edges[i] = cloneEdge(a.edges[key])
	}
	pending := make([]types.ExtractedRelationship, len(a.pending))
	copy(pending, a.pending)
	slugCounts := make(map[string]int, len(a.slugCounts))
	for k, v := range a.slugCounts {
		slugCounts[k] = v
	}
	return types.GraphSnapshot{
		Nodes:      nodes,
		Edges:      edges,
		Pending:    pending,
		SlugCounts: slugCounts,
	}
}

// Restore rebuilds an accumulator from a snapshot, reconstructing the name
// indices so a resumed run resolves exactly as the uninterrupted one.
func Restore(snapshot types.GraphSnapshot, simThreshold float64, logger *slog.Logger) *Accumulator {
	a := NewAccumulator(simThreshold, logger)
	for _, node := range snapshot.Nodes {
		n := cloneNode(node)
		a.nodes[n.ID] = n
		a.nodeOrder = append(a.nodeOrder, n.ID)

		norm := utils.NormalizeName(n.Name())
		a.norms[n.ID] = norm
		a.byNorm[norm] = append(a.byNorm[norm], n.ID)
		if cat := n.Category(); cat != "" {
			key := nodeKey{category: cat, norm: norm}
			if _, ok := a.byKey[key]; !ok {
				a.byKey[key] = n.ID
			}
		}
	}
	for _, edge := range snapshot.Edges {
		e := cloneEdge(edge)
		key := edgeKey{source: e.Source, target: e.Target, typ: e.Type}
		a.edges[key] = e
		a.edgeOrder = append(a.edgeOrder, key)
	}
	a.pending = append(a.pending, snapshot.Pending...)
	for k, v := range snapshot.SlugCounts {
		a.slugCounts[k] = v
	}
	return a
}

func cloneNode(n *types.GraphNode) *types.GraphNode {
	props := make(map[string]string, len(n.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	return &types.GraphNode{
		ID:           n.ID,
		Labels:       append([]string(nil), n.Labels...),
		Properties:   props,
		SourceChunks: append([]int(nil), n.SourceChunks...),
	}
}

func cloneEdge(e *types.GraphEdge) *types.GraphEdge {
	props := make(map[string]string, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	var temporal map[string]string
	if e.TemporalInfo != nil {
		temporal = make(map[string]string, len(e.TemporalInfo))
		for k, v := range e.TemporalInfo {
			temporal[k] = v
		}
	}
	return &types.GraphEdge{
		Source:       e.Source,
		Target:       e.Target,
		Type:         e.Type,
		Properties:   props,
		TemporalInfo: temporal,
		SourceChunks: append([]int(nil), e.SourceChunks...),
		SourceLabels: append([]string(nil), e.SourceLabels...),
		TargetLabels: append([]string(nil), e.TargetLabels...),
	}
}

func unionLabels(existing []string, labels ...string) []string {
	out := existing
	for _, label := range labels {
		if label == "" {
			continue
		}
		found := false
		for _, cur := range out {
			if cur == label {
				found = true
				break
			}
		}
		if !found {
			out = append(out, label)
		}
	}
	return out
}

func unionInts(existing []int, more []int) []int {
	out := existing
	for _, v := range more {
		found := false
		for _, cur := range out {
			if cur == v {
				found = true
				break
			}
		}
		if !found {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
