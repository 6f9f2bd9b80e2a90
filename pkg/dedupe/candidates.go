// Package dedupe runs the post-ingest deduplication pass: bucketed candidate
// generation, an LLM judge over each candidate pair, union-find grouping of
// accepted merges, and idempotent application of the resulting merge map to
// the exported graph.
package dedupe

import (
	"sort"

	"github.com/faultgraph/faultgraph/pkg/types"
	"github.com/faultgraph/faultgraph/pkg/utils"
)

// Candidate generation limits. Bucketing by (category, domain, name prefix)
// keeps the pairwise scan from going quadratic on large graphs; oversized
// buckets are skipped entirely rather than sampled.
const (
	DefaultSimilarityThreshold = 0.90
	DefaultConfidenceThreshold = 0.85

	prefixLen            = 4
	minNameLen           = 4
	maxBucketSize        = 400
	maxCandidatesPerNode = 25
	maxTotalCandidates   = 8000
)

// Candidate reasons.
const (
	ReasonSameGroupBucket    = "same_group_bucket"
	ReasonCrossTypeExactName = "cross_type_exact_name"
)

// Record is the judge-facing view of a node.
type Record struct {
	ID          string   `json:"id"`
	Labels      []string `json:"labels"`
	Group       string   `json:"group"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Domain      string   `json:"domain"`
	NameNorm    string   `json:"name_norm"`
}

// Candidate is one pair queued for the judge.
type Candidate struct {
	NodeA          string  `json:"node_a"`
	NodeB          string  `json:"node_b"`
	Reason         string  `json:"reason"`
	NameSimilarity float64 `json:"name_similarity"`
}

func buildRecord(node *types.GraphNode) Record {
	name := node.Name()
	nameNorm := utils.NormalizeName(name)
	if nameNorm == "" {
		nameNorm = utils.NormalizeName(node.ID)
	}
	return Record{
		ID:          node.ID,
		Labels:      append([]string(nil), node.Labels...),
		Group:       labelGroup(node.Labels),
		Name:        name,
		Description: node.Properties["description"],
		Domain:      node.Properties["domain"],
		NameNorm:    nameNorm,
	}
}

func labelGroup(labels []string) string {
	for _, label := range labels {
		for _, cat := range types.Categories {
			if label == string(cat) {
				return label
			}
		}
	}
	return "Unknown"
}

// BuildCandidates generates the candidate pairs for a node set. Two passes:
// same-category buckets filtered by name similarity, then a cross-category
// exact-name pass. The pair list is deterministic for a given node set.
func BuildCandidates(nodes []*types.GraphNode) ([]Candidate, map[string]Record) {
	records := make([]Record, 0, len(nodes))
	byID := make(map[string]Record, len(nodes))
	for _, node := range nodes {
		if node.ID == "" {
			continue
		}
		rec := buildRecord(node)
		records = append(records, rec)
		byID[rec.ID] = rec
	}

	type bucketKey struct {
		group  string
		domain string
		prefix string
	}
	buckets := make(map[bucketKey][]Record)
	for _, rec := range records {
		prefix := rec.NameNorm
		if len(prefix) > prefixLen {
			prefix = prefix[:prefixLen]
		}
		key := bucketKey{group: rec.Group, domain: rec.Domain, prefix: prefix}
		buckets[key] = append(buckets[key], rec)
	}

	keys := make([]bucketKey, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.group != b.group {
			return a.group < b.group
		}
		if a.domain != b.domain {
			return a.domain < b.domain
		}
		return a.prefix < b.prefix
	})

	var candidates []Candidate
	seen := make(map[[2]string]bool)
	perNode := make(map[string]int)
	full := func() bool { return len(candidates) >= maxTotalCandidates }

	for _, key := range keys {
		bucket := buckets[key]
		if len(bucket) > maxBucketSize {
			continue
		}
		sort.Slice(bucket, func(i, j int) bool {
			if bucket[i].NameNorm != bucket[j].NameNorm {
				return bucket[i].NameNorm < bucket[j].NameNorm
			}
			return bucket[i].ID < bucket[j].ID
		})
		for i := 0; i < len(bucket) && !full(); i++ {
			for j := i + 1; j < len(bucket); j++ {
				if full() {
					break
				}
				a, b := bucket[i], bucket[j]
				if perNode[a.ID] >= maxCandidatesPerNode || perNode[b.ID] >= maxCandidatesPerNode {
					continue
				}
				pair := pairKey(a.ID, b.ID)
				if seen[pair] {
					continue
				}
				if len(a.NameNorm) < minNameLen || len(b.NameNorm) < minNameLen {
					continue
				}
				score := utils.Similarity(a.NameNorm, b.NameNorm)
				if score < DefaultSimilarityThreshold {
					continue
				}
				candidates = append(candidates, Candidate{
					NodeA:          a.ID,
					NodeB:          b.ID,
					Reason:         ReasonSameGroupBucket,
					NameSimilarity: score,
				})
				seen[pair] = true
				perNode[a.ID]++
				perNode[b.ID]++
			}
		}
		if full() {
			break
		}
	}

	// Exact-name matches across categories are never merged automatically,
	// but the judge's verdicts on them feed the review output.
	byNorm := make(map[string][]Record)
	for _, rec := range records {
		if rec.NameNorm != "" {
			byNorm[rec.NameNorm] = append(byNorm[rec.NameNorm], rec)
		}
	}
	norms := make([]string, 0, len(byNorm))
	for norm := range byNorm {
		norms = append(norms, norm)
	}
	sort.Strings(norms)

	for _, norm := range norms {
		if full() {
			break
		}
		items := byNorm[norm]
		groups := make(map[string]bool)
		for _, item := range items {
			groups[item.Group] = true
		}
		if len(groups) <= 1 {
			continue
		}
		sort.Slice(items, func(i, j int) bool {
			if items[i].Group != items[j].Group {
				return items[i].Group < items[j].Group
			}
			return items[i].ID < items[j].ID
		})
		for i := 0; i < len(items) && !full(); i++ {
			for j := i + 1; j < len(items); j++ {
				if full() {
					break
				}
				pair := pairKey(items[i].ID, items[j].ID)
				if seen[pair] {
					continue
				}
				candidates = append(candidates, Candidate{
					NodeA:          items[i].ID,
					NodeB:          items[j].ID,
					Reason:         ReasonCrossTypeExactName,
					NameSimilarity: 1.0,
				})
				seen[pair] = true
			}
		}
	}

	return candidates, byID
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}
