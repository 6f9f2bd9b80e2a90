package dedupe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faultgraph/faultgraph/pkg/types"
)

// Artifact names inside a run directory. latest.json in the parent points at
// the most recent completed run.
const (
	stateFile        = "checkpoint.json"
	reviewFile       = "review_pairs.json"
	mergeMapFile     = "merge_map.json"
	dedupedNodesFile = "nodes_deduped.json"
	dedupedRelsFile  = "relationships_deduped.json"
	latestFile       = "latest.json"
)

// ReviewedPair records one judge evaluation for the review artifact.
type ReviewedPair struct {
	NodeA          string   `json:"node_a"`
	NodeB          string   `json:"node_b"`
	LabelsA        []string `json:"labels_a"`
	LabelsB        []string `json:"labels_b"`
	NameA          string   `json:"name_a"`
	NameB          string   `json:"name_b"`
	Reason         string   `json:"reason"`
	NameSimilarity float64  `json:"name_similarity"`
	Verdict        *Verdict `json:"llm"`
	Error          string   `json:"error,omitempty"`
}

// state is the resumable judge progress persisted between evaluations.
type state struct {
	Reviewed             []ReviewedPair `json:"reviewed"`
	MergeEdges           [][2]string    `json:"merge_edges"`
	CrossTypeSuggestions int            `json:"cross_type_suggestions"`
	CandidatesTotal      int            `json:"candidates_total"`
	Evaluated            int            `json:"evaluated"`
}

// Options configures a dedupe run.
type Options struct {
	// OutDir is the parent directory for run_<timestamp> directories.
	OutDir string
	// ResumeFrom is an existing run directory whose judge progress should
	// be continued. Empty starts a fresh run.
	ResumeFrom string
	// CheckpointEvery saves judge progress after this many evaluations.
	// Values below 1 mean after every evaluation.
	CheckpointEvery int
	// ConfidenceThreshold accepts a merge when the judge says same with at
	// least this confidence. Zero uses the default.
	ConfidenceThreshold float64
}

// Result summarizes a completed dedupe run.
type Result struct {
	RunDir               string
	MergeMap             map[string]string
	Nodes                []*types.GraphNode
	Relationships        []*types.GraphEdge
	Evaluated            int
	CrossTypeSuggestions int
}

// Runner executes the dedupe pass end to end.
type Runner struct {
	judge  *Judge
	opts   Options
	logger *slog.Logger
}

// NewRunner builds a runner. A nil logger discards logs.
func NewRunner(judge *Judge, opts Options, logger *slog.Logger) *Runner {
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 1
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{judge: judge, opts: opts, logger: logger}
}

// Run evaluates every candidate pair, builds the merge map, applies it, and
// writes the run artifacts. Cross-category pairs are never merged
// automatically; accepted ones only count as suggestions in the review
// output. A canceled context saves progress and returns the context error.
func (r *Runner) Run(ctx context.Context, nodes []*types.GraphNode, rels []*types.GraphEdge) (*Result, error) {
	candidates, records := BuildCandidates(nodes)
	r.logger.Info("candidate pairs built", "candidates", len(candidates), "nodes", len(nodes))

	var st state
	runDir := r.opts.ResumeFrom
	if runDir != "" {
		loaded, err := loadState(filepath.Join(runDir, stateFile))
		if err != nil {
			return nil, err
		}
		st = *loaded
		r.logger.Info("resuming dedupe run", "run_dir", runDir, "evaluated", st.Evaluated)
	} else {
		runID := time.Now().UTC().Format("20060102T150405Z")
		runDir = filepath.Join(r.opts.OutDir, "run_"+runID)
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create run directory %s: %w", runDir, err)
		}
	}
	st.CandidatesTotal = len(candidates)

	processed := make(map[[2]string]bool, len(st.Reviewed))
	for _, item := range st.Reviewed {
		processed[pairKey(item.NodeA, item.NodeB)] = true
	}

	remaining := len(candidates) - len(processed)
	if remaining > 0 {
		r.logger.Info("judge evaluations remaining", "remaining", remaining)
	}

	sinceSave := 0
	for _, candidate := range candidates {
		pair := pairKey(candidate.NodeA, candidate.NodeB)
		if processed[pair] {
			continue
		}
		if err := ctx.Err(); err != nil {
			if saveErr := r.saveState(runDir, &st); saveErr != nil {
				r.logger.Warn("failed to save dedupe checkpoint on stop", "error", saveErr)
			}
			return nil, err
		}

		recA, recB := records[candidate.NodeA], records[candidate.NodeB]
		item := ReviewedPair{
			NodeA:          recA.ID,
			NodeB:          recB.ID,
			LabelsA:        recA.Labels,
			LabelsB:        recB.Labels,
			NameA:          recA.Name,
			NameB:          recB.Name,
			Reason:         candidate.Reason,
			NameSimilarity: candidate.NameSimilarity,
		}

		verdict, err := r.judge.Evaluate(ctx, recA, recB)
		if err != nil {
			// A failed evaluation is recorded and skipped; a later run
			// over the same graph can retry it.
			item.Error = err.Error()
			r.logger.Warn("judge evaluation failed",
				"node_a", recA.ID, "node_b", recB.ID, "error", err)
		} else {
			item.Verdict = verdict
		}

		st.Reviewed = append(st.Reviewed, item)
		processed[pair] = true
		st.Evaluated++
		sinceSave++

		if verdict != nil && verdict.Same && verdict.Confidence >= r.opts.ConfidenceThreshold {
			if recA.Group != recB.Group {
				st.CrossTypeSuggestions++
			} else {
				st.MergeEdges = append(st.MergeEdges, [2]string{recA.ID, recB.ID})
			}
		}

		if sinceSave >= r.opts.CheckpointEvery {
			if err := r.saveState(runDir, &st); err != nil {
				r.logger.Warn("failed to save dedupe checkpoint", "error", err)
			}
			sinceSave = 0
		}
	}

	if sinceSave > 0 {
		if err := r.saveState(runDir, &st); err != nil {
			r.logger.Warn("failed to save dedupe checkpoint", "error", err)
		}
	}

	mergeMap := BuildMergeMap(st.MergeEdges, records)
	dedupedNodes := MergeNodes(nodes, mergeMap)
	dedupedRels := MergeRelationships(rels, mergeMap)

	if err := r.writeArtifacts(runDir, &st, mergeMap, dedupedNodes, dedupedRels); err != nil {
		return nil, err
	}

	r.logger.Info("dedupe run complete",
		"run_dir", runDir,
		"evaluated", st.Evaluated,
		"merges", len(mergeMap),
		"cross_type_suggestions", st.CrossTypeSuggestions,
		"nodes", len(dedupedNodes),
		"relationships", len(dedupedRels))

	return &Result{
		RunDir:               runDir,
		MergeMap:             mergeMap,
		Nodes:                dedupedNodes,
		Relationships:        dedupedRels,
		Evaluated:            st.Evaluated,
		CrossTypeSuggestions: st.CrossTypeSuggestions,
	}, nil
}

func (r *Runner) saveState(runDir string, st *state) error {
	if err := writeJSON(filepath.Join(runDir, stateFile), st); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, reviewFile), st.Reviewed)
}

func (r *Runner) writeArtifacts(runDir string, st *state, mergeMap map[string]string, nodes []*types.GraphNode, rels []*types.GraphEdge) error {
	if err := writeJSON(filepath.Join(runDir, reviewFile), st.Reviewed); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(runDir, mergeMapFile), mergeMap); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(runDir, dedupedNodesFile), nodes); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(runDir, dedupedRelsFile), rels); err != nil {
		return err
	}
	// Resumed runs may live in a directory that does not follow the
	// run_<timestamp> naming, so the prefix is optional.
	latest := map[string]string{"run_id": strings.TrimPrefix(filepath.Base(runDir), "run_")}
	return writeJSON(filepath.Join(filepath.Dir(runDir), latestFile), latest)
}

func loadState(path string) (*state, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("dedupe checkpoint not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dedupe checkpoint: %w", err)
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode dedupe checkpoint %s: %w", path, err)
	}
	return &st, nil
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
