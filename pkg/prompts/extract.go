// Package prompts builds the chat messages sent to the LLM for extraction
// and dedupe judging. The task instructions are opaque to the pipeline core,
// which depends only on the request/response shape.
package prompts

import (
	"encoding/json"
	"fmt"

	"github.com/faultgraph/faultgraph/pkg/llm"
	"github.com/faultgraph/faultgraph/pkg/types"
)

// Type labels per category, matching the troubleshooting domain taxonomy.
var (
	EntityTypes  = []string{"COMPONENT", "TOOL", "PERSON", "LOCATION", "SYMPTOM", "MEASUREMENT"}
	EventTypes   = []string{"DIAGNOSTIC", "MAINTENANCE", "SAFETY", "OPERATIONAL", "FAILURE"}
	ConceptTypes = []string{"SAFETY_PRINCIPLES", "DIAGNOSTIC_LOGIC", "MAINTENANCE_CONCEPTS", "OPERATIONAL_PRINCIPLES", "FAILURE_PATTERNS", "TECHNICAL_CONCEPTS"}

	// RelationTypes lists the allowed relationship labels.
	RelationTypes = []string{"CAUSES", "REQUIRES", "PREVENTS", "DIAGNOSES", "FIXES", "APPLIES_TO", "PART_OF", "HAPPENS_BEFORE", "TRIGGERS"}
)

const extractionSystem = "You are a precise information extraction assistant for industrial troubleshooting documentation. Return ONLY valid JSON. No explanations."

// ExtractItems builds the extraction prompt for one category over one chunk.
func ExtractItems(category types.Category, chunkText string) ([]llm.Message, error) {
	var focus, typeAlternatives, extraFields string

	switch category {
	case types.CategoryEntity:
		focus = "concrete entities (components, tools, people, locations, symptoms, measurements)"
		typeAlternatives = joinPipe(EntityTypes)
	case types.CategoryEvent:
		focus = "events and procedures (diagnostic steps, maintenance actions, failures)"
		typeAlternatives = joinPipe(EventTypes)
		extraFields = `,
        "actor": "who performs this event",
        "target": "what this event affects",
        "temporal_order": "sequence number if part of a procedure"`
	case types.CategoryConcept:
		focus = "abstract concepts (troubleshooting principles, failure patterns)"
		typeAlternatives = joinPipe(ConceptTypes)
	default:
		return nil, fmt.Errorf("unknown extraction category %q", category)
	}

	userPrompt := fmt.Sprintf(`Extract %s from this technical manual excerpt.

Text:
%s

IMPORTANT: Return ONLY a valid JSON array. No explanations. If nothing is found, return [].

Format:
[
    {
        "id": "unique_snake_case_name",
        "type": "%s",
        "properties": {
            "name": "display name",
            "description": "brief description",
            "domain": "hardware|software|environmental|human"
        }%s
    }
]`, focus, chunkText, typeAlternatives, extraFields)

	return []llm.Message{
		llm.NewSystemMessage(extractionSystem),
		llm.NewUserMessage(userPrompt),
	}, nil
}

// ExtractRelationships builds the relationship prompt referencing the IDs of
// the items already extracted from the chunk.
func ExtractRelationships(chunkText string, items []types.ExtractedItem) ([]llm.Message, error) {
	refs := make([]map[string]string, len(items))
	for i, item := range items {
		refs[i] = map[string]string{
			"id":       item.LocalID,
			"category": string(item.Category),
			"type":     item.TypeLabel,
		}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item references: %w", err)
	}

	userPrompt := fmt.Sprintf(`Identify relationships between these extracted items.

Items: %s

Relationship types: %s

Text:
%s

IMPORTANT: Return ONLY a valid JSON array. No explanations. If no relationships are found, return [].

Format:
[
    {
        "source": "source_id",
        "target": "target_id",
        "type": "relationship_type",
        "properties": {
            "context": "description of the relationship",
            "confidence": "high|medium|low"
        }
    }
]`, refsJSON, joinPipe(RelationTypes), chunkText)

	return []llm.Message{
		llm.NewSystemMessage(extractionSystem),
		llm.NewUserMessage(userPrompt),
	}, nil
}

func joinPipe(labels []string) string {
	out := ""
	for i, l := range labels {
		if i > 0 {
			out += "|"
		}
		out += l
	}
	return out
}
