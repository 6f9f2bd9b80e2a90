package prompts

import (
	"fmt"
	"strings"

	"github.com/faultgraph/faultgraph/pkg/llm"
)

// NodeSummary is the normalized description of a node sent to the judge.
type NodeSummary struct {
	ID          string
	Labels      []string
	Name        string
	Description string
	Domain      string
}

const judgeSystem = "You are a careful entity resolution assistant."

// JudgeDuplicate builds the verdict prompt for one candidate pair. The judge
// answers with {"same": bool, "confidence": float, "canonical_name": string,
// "reason": string}; when unsure it must answer same=false.
func JudgeDuplicate(a, b NodeSummary) ([]llm.Message, error) {
	userPrompt := fmt.Sprintf(`Decide if these two nodes represent the same real-world thing.
If unsure, answer same=false. Use the names, labels, and descriptions.

Node A:
- id: %s
- labels: %s
- name: %s
- description: %s
- domain: %s

Node B:
- id: %s
- labels: %s
- name: %s
- description: %s
- domain: %s

Return ONLY a JSON object:
{"same": true|false, "confidence": 0.0-1.0, "canonical_name": "...", "reason": "..."}`,
		a.ID, strings.Join(a.Labels, ", "), a.Name, a.Description, a.Domain,
		b.ID, strings.Join(b.Labels, ", "), b.Name, b.Description, b.Domain)

	return []llm.Message{
		llm.NewSystemMessage(judgeSystem),
		llm.NewUserMessage(userPrompt),
	}, nil
}
