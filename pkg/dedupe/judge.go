package dedupe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"

	"github.com/faultgraph/faultgraph/pkg/extraction"
	"github.com/faultgraph/faultgraph/pkg/llm"
	"github.com/faultgraph/faultgraph/pkg/prompts"
)

// Verdict is the judge's answer for one candidate pair.
type Verdict struct {
	Same          bool    `json:"same"`
	Confidence    float64 `json:"confidence"`
	CanonicalName string  `json:"canonical_name"`
	Reason        string  `json:"reason"`
}

// Judge evaluates candidate pairs with an LLM.
type Judge struct {
	llm llm.Client
}

// NewJudge wraps an LLM client for pair evaluation.
func NewJudge(client llm.Client) *Judge {
	return &Judge{llm: client}
}

// Evaluate asks the model whether two records denote the same thing. The
// response passes through the same strip/span/repair parsing the extraction
// pipeline uses.
func (j *Judge) Evaluate(ctx context.Context, a, b Record) (*Verdict, error) {
	messages, err := prompts.JudgeDuplicate(toSummary(a), toSummary(b))
	if err != nil {
		return nil, fmt.Errorf("failed to build judge prompt: %w", err)
	}
	resp, err := j.llm.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("judge call failed for %s and %s: %w", a.ID, b.ID, err)
	}
	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("judge response for %s and %s: %w", a.ID, b.ID, err)
	}
	return verdict, nil
}

func toSummary(rec Record) prompts.NodeSummary {
	return prompts.NodeSummary{
		ID:          rec.ID,
		Labels:      rec.Labels,
		Name:        rec.Name,
		Description: rec.Description,
		Domain:      rec.Domain,
	}
}

func parseVerdict(content string) (*Verdict, error) {
	stripped := extraction.StripWrappers(content)
	span, ok := extraction.FindJSONSpan(stripped)
	if !ok {
		return nil, extraction.ErrUnparseable
	}
	var verdict Verdict
	if err := json.Unmarshal([]byte(span), &verdict); err == nil {
		return &verdict, nil
	}
	repaired, err := jsonrepair.JSONRepair(span)
	if err != nil {
		return nil, extraction.ErrUnparseable
	}
	if err := json.Unmarshal([]byte(repaired), &verdict); err != nil {
		return nil, extraction.ErrUnparseable
	}
	return &verdict, nil
}
