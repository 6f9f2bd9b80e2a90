// Package extraction turns raw LLM output into validated graph fragments.
// Responses are expected to contain one JSON array or object but are
// frequently wrapped in prose or markdown fences, or truncated mid-record;
// the parser locates, repairs, and validates what it can and tallies the
// rest. One unparseable chunk never aborts a run.
package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/faultgraph/faultgraph/pkg/types"
	"github.com/faultgraph/faultgraph/pkg/utils"
)

// ErrUnparseable marks a response from which no JSON could be recovered,
// even after repair.
var ErrUnparseable = errors.New("response is unparseable")

// rawItem mirrors the JSON shape the extraction prompts request. Events
// carry actor/target/temporal_order at the top level.
type rawItem struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	Properties    map[string]interface{} `json:"properties"`
	Actor         string                 `json:"actor,omitempty"`
	Target        string                 `json:"target,omitempty"`
	TemporalOrder interface{}            `json:"temporal_order,omitempty"`
}

type rawRelationship struct {
	Source     string                 `json:"source"`
	Target     string                 `json:"target"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
}

// StripWrappers removes markdown code fences and surrounding whitespace.
// Prose around the JSON is left for the balanced-span scan to skip.
func StripWrappers(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```json")
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// FindJSONSpan locates the first balanced bracket or brace span using a
// depth-counting scan that ignores brackets inside string literals. Arrays
// are preferred over objects, matching the expected response shape. A
// first/last-index search would misfire on nested structures, so the scan
// tracks nesting explicitly. If the text contains an opener but no balanced
// close (a truncated response), the span from the opener to the end is
// returned so repair can finish the job. Prose ahead of the payload can
// itself contain balanced brackets (citations like [1]); decodeRecords
// advances past spans that do not hold records.
func FindJSONSpan(s string) (string, bool) {
	span, _, ok := nextJSONSpan(s)
	return span, ok
}

func nextJSONSpan(s string) (string, int, bool) {
	for _, opener := range []byte{'[', '{'} {
		start := strings.IndexByte(s, opener)
		if start < 0 {
			continue
		}
		if span, ok := scanBalanced(s[start:], opener); ok {
			return span, start, true
		}
		// Unterminated: hand the tail to the repair step.
		return s[start:], start, true
	}
	return "", 0, false
}

func scanBalanced(s string, opener byte) (string, bool) {
	closer := byte(']')
	if opener == '{' {
		closer = '}'
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// unwrapList accepts either a bare JSON array or an object wrapping the
// array under a known key ({"entities": [...]}).
func unwrapList(data []byte, wrapperKeys ...string) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	for _, key := range wrapperKeys {
		if inner, ok := wrapped[key]; ok {
			if err := json.Unmarshal(inner, &list); err != nil {
				return nil, err
			}
			return list, nil
		}
	}
	return nil, fmt.Errorf("no recognized wrapper key in object response")
}

// decodeRecords parses the response into raw JSON records, attempting one
// bounded repair pass on parse failure. The returned flag reports whether
// repair was needed. Candidate spans are tried in order until one holds
// records, so a stray balanced bracket in leading prose does not shadow the
// payload behind it; repair runs on the largest span that failed to decode.
func decodeRecords(raw string, wrapperKeys ...string) ([]json.RawMessage, bool, error) {
	content := StripWrappers(raw)
	if !strings.ContainsAny(content, "[{") {
		return nil, false, ErrUnparseable
	}

	repairSpan := ""
	rest := content
	for {
		span, start, ok := nextJSONSpan(rest)
		if !ok {
			break
		}
		records, err := unwrapList([]byte(span), wrapperKeys...)
		if err == nil && objectRecords(records) {
			return records, false, nil
		}
		if len(span) > len(repairSpan) {
			repairSpan = span
		}
		if start+1 >= len(rest) {
			break
		}
		rest = rest[start+1:]
	}

	repaired, repairErr := jsonrepair.JSONRepair(repairSpan)
	if repairErr != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrUnparseable, repairErr)
	}
	records, err := unwrapList([]byte(repaired), wrapperKeys...)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s", ErrUnparseable, err)
	}
	return records, true, nil
}

// objectRecords reports whether every record in the list is a JSON object.
// Extraction responses are always lists of objects; a list of bare values is
// a prose artifact, not a payload.
func objectRecords(records []json.RawMessage) bool {
	for _, rec := range records {
		trimmed := bytes.TrimSpace(rec)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return false
		}
	}
	return true
}

// ParseItems converts a raw extraction response into validated items of the
// given category. Records missing a usable name or type label are dropped
// and tallied, not coerced.
func ParseItems(raw types.RawExtraction, category types.Category) ([]types.ExtractedItem, types.ParseTally, error) {
	wrapperKey := strings.ToLower(string(category)) + "s" // entities handled below
	if category == types.CategoryEntity {
		wrapperKey = "entities"
	}

	records, repairedPass, err := decodeRecords(raw.RawText, wrapperKey, "items")
	if err != nil {
		return nil, types.ParseTally{}, err
	}

	var tally types.ParseTally
	items := make([]types.ExtractedItem, 0, len(records))
	for _, rec := range records {
		var ri rawItem
		if err := json.Unmarshal(rec, &ri); err != nil {
			tally.Dropped++
			continue
		}
		item, ok := validateItem(ri, category, raw.ChunkIndex)
		if !ok {
			tally.Dropped++
			continue
		}
		items = append(items, item)
		tally.Parsed++
		if repairedPass {
			tally.Repaired++
		}
	}
	return items, tally, nil
}

// ParseRelationships converts a raw relationship response into validated
// relationships. Endpoint existence is resolved later by the accumulator.
func ParseRelationships(raw types.RawExtraction) ([]types.ExtractedRelationship, types.ParseTally, error) {
	records, repairedPass, err := decodeRecords(raw.RawText, "relationships", "edges")
	if err != nil {
		return nil, types.ParseTally{}, err
	}

	var tally types.ParseTally
	rels := make([]types.ExtractedRelationship, 0, len(records))
	for _, rec := range records {
		var rr rawRelationship
		if err := json.Unmarshal(rec, &rr); err != nil {
			tally.Dropped++
			continue
		}
		if rr.Source == "" || rr.Target == "" || rr.Type == "" {
			tally.Dropped++
			continue
		}
		rels = append(rels, types.ExtractedRelationship{
			SourceLocalID: rr.Source,
			TargetLocalID: rr.Target,
			Type:          rr.Type,
			Properties:    stringifyProperties(rr.Properties),
			SourceChunks:  []int{raw.ChunkIndex},
		})
		tally.Parsed++
		if repairedPass {
			tally.Repaired++
		}
	}
	return rels, tally, nil
}

// validateItem enforces the minimal shape contract: a usable name and a type
// label. It normalizes the record into an ExtractedItem.
func validateItem(ri rawItem, category types.Category, chunkIndex int) (types.ExtractedItem, bool) {
	props := stringifyProperties(ri.Properties)

	name := strings.TrimSpace(props["name"])
	if name == "" {
		name = strings.TrimSpace(strings.ReplaceAll(ri.ID, "_", " "))
	}
	if name == "" || strings.TrimSpace(ri.Type) == "" {
		return types.ExtractedItem{}, false
	}

	localID := strings.TrimSpace(ri.ID)
	if localID == "" {
		localID = utils.Slugify(name)
	}

	if ri.Actor != "" {
		props["actor"] = ri.Actor
	}
	if ri.Target != "" {
		props["target"] = ri.Target
	}
	if ri.TemporalOrder != nil {
		props["temporal_order"] = stringifyValue(ri.TemporalOrder)
	}

	item := types.ExtractedItem{
		LocalID:      localID,
		TypeLabel:    strings.ToUpper(strings.TrimSpace(ri.Type)),
		Category:     category,
		Name:         name,
		Description:  props["description"],
		Domain:       props["domain"],
		Properties:   props,
		SourceChunks: []int{chunkIndex},
	}
	return item, true
}

func stringifyProperties(props map[string]interface{}) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		s := stringifyValue(v)
		if s != "" {
			out[k] = s
		}
	}
	return out
}

func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
