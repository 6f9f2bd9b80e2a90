package dedupe

import (
	"sort"

	"github.com/faultgraph/faultgraph/pkg/types"
)

// unionFind groups merge edges into connected components with path
// compression. Returns each seen node's root.
func unionFind(edges [][2]string) map[string]string {
	parent := make(map[string]string)

	var find func(x string) string
	find = func(x string) string {
		if _, ok := parent[x]; !ok {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	for _, edge := range edges {
		rootA, rootB := find(edge[0]), find(edge[1])
		if rootA != rootB {
			parent[rootB] = rootA
		}
	}

	roots := make(map[string]string, len(parent))
	for node := range parent {
		roots[node] = find(node)
	}
	return roots
}

// nodeScore ranks merge-group members for canonical selection. Longer names
// and descriptions and more labels win; ties break on the smaller ID for
// determinism.
func nodeScore(rec Record) int {
	return len(rec.Name) + len(rec.Description) + len(rec.Labels)
}

// BuildMergeMap turns accepted merge edges into a duplicate-to-canonical
// map. Each connected component keeps its highest-scoring member; every
// other member maps to it. Canonical IDs never appear as keys, so applying
// the map twice is a no-op.
func BuildMergeMap(edges [][2]string, records map[string]Record) map[string]string {
	roots := unionFind(edges)
	groups := make(map[string][]string)
	for node, root := range roots {
		groups[root] = append(groups[root], node)
	}

	mergeMap := make(map[string]string)
	for _, members := range groups {
		sort.Strings(members)
		canonical := members[0]
		best := nodeScore(records[canonical])
		for _, member := range members[1:] {
			if score := nodeScore(records[member]); score > best {
				canonical = member
				best = score
			}
		}
		for _, member := range members {
			if member != canonical {
				mergeMap[member] = canonical
			}
		}
	}
	return mergeMap
}

func canonicalFor(mergeMap map[string]string, id string) string {
	if canonical, ok := mergeMap[id]; ok {
		return canonical
	}
	return id
}

// MergeNodes collapses duplicate nodes under their canonical IDs. Labels
// union and sort; properties fold non-empty-preferred in input order. The
// output is sorted by ID.
func MergeNodes(nodes []*types.GraphNode, mergeMap map[string]string) []*types.GraphNode {
	merged := make(map[string]*types.GraphNode)
	var order []string

	for _, node := range nodes {
		if node.ID == "" {
			continue
		}
		canonical := canonicalFor(mergeMap, node.ID)
		existing, ok := merged[canonical]
		if !ok {
			props := make(map[string]string, len(node.Properties))
			for k, v := range node.Properties {
				props[k] = v
			}
			merged[canonical] = &types.GraphNode{
				ID:           canonical,
				Labels:       append([]string(nil), node.Labels...),
				Properties:   props,
				SourceChunks: append([]int(nil), node.SourceChunks...),
			}
			order = append(order, canonical)
			continue
		}
		existing.Labels = unionSorted(existing.Labels, node.Labels)
		for k, v := range node.Properties {
			if v == "" {
				continue
			}
			if cur, ok := existing.Properties[k]; !ok || cur == "" {
				existing.Properties[k] = v
			}
		}
		existing.SourceChunks = unionIntsSorted(existing.SourceChunks, node.SourceChunks)
	}

	out := make([]*types.GraphNode, 0, len(merged))
	for _, id := range order {
		out = append(out, merged[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MergeRelationships rewrites edge endpoints through the merge map and
// collapses edges that land on the same (source, type, target), unioning
// properties and temporal info. The output is sorted by (source, type,
// target).
func MergeRelationships(rels []*types.GraphEdge, mergeMap map[string]string) []*types.GraphEdge {
	type relKey struct {
		source string
		typ    string
		target string
	}
	merged := make(map[relKey]*types.GraphEdge)
	var order []relKey

	for _, rel := range rels {
		source := canonicalFor(mergeMap, rel.Source)
		target := canonicalFor(mergeMap, rel.Target)
		if source == "" || target == "" || rel.Type == "" {
			continue
		}
		key := relKey{source: source, typ: rel.Type, target: target}
		existing, ok := merged[key]
		if !ok {
			props := make(map[string]string, len(rel.Properties))
			for k, v := range rel.Properties {
				props[k] = v
			}
			var temporal map[string]string
			if len(rel.TemporalInfo) > 0 {
				temporal = make(map[string]string, len(rel.TemporalInfo))
				for k, v := range rel.TemporalInfo {
					temporal[k] = v
				}
			}
			merged[key] = &types.GraphEdge{
				Source:       source,
				Target:       target,
				Type:         rel.Type,
				Properties:   props,
				TemporalInfo: temporal,
				SourceChunks: append([]int(nil), rel.SourceChunks...),
				SourceLabels: append([]string(nil), rel.SourceLabels...),
				TargetLabels: append([]string(nil), rel.TargetLabels...),
			}
			order = append(order, key)
			continue
		}
		for k, v := range rel.Properties {
			if v == "" {
				continue
			}
			if cur, ok := existing.Properties[k]; !ok || cur == "" {
				existing.Properties[k] = v
			}
		}
		for k, v := range rel.TemporalInfo {
			if v == "" {
				continue
			}
			if existing.TemporalInfo == nil {
				existing.TemporalInfo = make(map[string]string)
			}
			if cur, ok := existing.TemporalInfo[k]; !ok || cur == "" {
				existing.TemporalInfo[k] = v
			}
		}
		existing.SourceChunks = unionIntsSorted(existing.SourceChunks, rel.SourceChunks)
	}

	out := make([]*types.GraphEdge, 0, len(merged))
	for _, key := range order {
		out = append(out, merged[key])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Target < out[j].Target
	})
	return out
}

func unionSorted(existing, more []string) []string {
	set := make(map[string]bool, len(existing)+len(more))
	for _, v := range existing {
		set[v] = true
	}
	for _, v := range more {
		set[v] = true
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func unionIntsSorted(existing, more []int) []int {
	set := make(map[int]bool, len(existing)+len(more))
	for _, v := range existing {
		set[v] = true
	}
	for _, v := range more {
		set[v] = true
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
