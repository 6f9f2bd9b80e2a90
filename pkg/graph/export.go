package graph

import (
	"sort"

	"github.com/faultgraph/faultgraph/pkg/types"
)

// Export is the import-ready document written at end of run. Relationships
// carry the endpoint labels so a loader can MATCH without a second pass
// over the node list.
type Export struct {
	Nodes         []*types.GraphNode `json:"nodes"`
	Relationships []*types.GraphEdge `json:"relationships"`
}

// BuildExport assembles a deterministic export from a snapshot: nodes sorted
// by ID, relationships sorted by (source, type, target), endpoint labels
// stamped onto every relationship.
func BuildExport(snapshot types.GraphSnapshot) Export {
	byID := make(map[string]*types.GraphNode, len(snapshot.Nodes))
	nodes := make([]*types.GraphNode, len(snapshot.Nodes))
	for i, node := range snapshot.Nodes {
		n := cloneNode(node)
		nodes[i] = n
		byID[n.ID] = n
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	rels := make([]*types.GraphEdge, 0, len(snapshot.Edges))
	for _, edge := range snapshot.Edges {
		e := cloneEdge(edge)
		if source, ok := byID[e.Source]; ok {
			e.SourceLabels = append([]string(nil), source.Labels...)
		}
		if target, ok := byID[e.Target]; ok {
			e.TargetLabels = append([]string(nil), target.Labels...)
		}
		rels = append(rels, e)
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Source != rels[j].Source {
			return rels[i].Source < rels[j].Source
		}
		if rels[i].Type != rels[j].Type {
			return rels[i].Type < rels[j].Type
		}
		return rels[i].Target < rels[j].Target
	})

	return Export{Nodes: nodes, Relationships: rels}
}
