package extraction

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/faultgraph/faultgraph/pkg/llm"
	"github.com/faultgraph/faultgraph/pkg/prompts"
	"github.com/faultgraph/faultgraph/pkg/types"
)

// ChunkExtraction is the validated graph fragment produced from one chunk:
// items from the three category calls, relationships from the fourth, and
// the combined parse-quality tally.
type ChunkExtraction struct {
	ChunkIndex    int
	Items         []types.ExtractedItem
	Relationships []types.ExtractedRelationship
	Tally         types.ParseTally
	// Unparseable is set when at least one response yielded no JSON at all.
	Unparseable bool
}

// Client drives the LLM extraction calls for a chunk. Retry and backoff live
// in the llm.Client it wraps; this layer owns the prompt sequence and the
// parsing of each response.
type Client struct {
	llm    llm.Client
	logger *slog.Logger
}

// NewClient creates an extraction client. A nil logger discards logs.
func NewClient(llmClient llm.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{llm: llmClient, logger: logger}
}

// Extract sends one prompt and ties the raw response to its chunk.
func (c *Client) Extract(ctx context.Context, chunk types.Chunk, messages []llm.Message) (types.RawExtraction, error) {
	resp, err := c.llm.Chat(ctx, messages)
	if err != nil {
		return types.RawExtraction{}, &ExtractionError{ChunkIndex: chunk.Index, Err: err}
	}
	return types.RawExtraction{ChunkIndex: chunk.Index, RawText: resp.Content}, nil
}

// ExtractChunk runs the full per-chunk sequence: one extraction call per EEC
// category, then one relationship call referencing the extracted IDs. An
// LLM failure surfaces as *ExtractionError; an unparseable response is
// logged with its raw span and skipped.
func (c *Client) ExtractChunk(ctx context.Context, chunk types.Chunk) (*ChunkExtraction, error) {
	result := &ChunkExtraction{ChunkIndex: chunk.Index}

	for _, category := range types.Categories {
		messages, err := prompts.ExtractItems(category, chunk.Text)
		if err != nil {
			return nil, err
		}
		raw, err := c.Extract(ctx, chunk, messages)
		if err != nil {
			return nil, err
		}

		items, tally, err := ParseItems(raw, category)
		if err != nil {
			if errors.Is(err, ErrUnparseable) {
				c.logger.Warn("unparseable extraction response",
					"chunk_index", chunk.Index,
					"category", category,
					"raw_span", truncate(raw.RawText, 200))
				result.Unparseable = true
				continue
			}
			return nil, err
		}
		result.Items = append(result.Items, items...)
		result.Tally.Add(tally)
	}

	if len(result.Items) == 0 {
		return result, nil
	}

	messages, err := prompts.ExtractRelationships(chunk.Text, result.Items)
	if err != nil {
		return nil, err
	}
	raw, err := c.Extract(ctx, chunk, messages)
	if err != nil {
		return nil, err
	}

	rels, tally, err := ParseRelationships(raw)
	if err != nil {
		if errors.Is(err, ErrUnparseable) {
			c.logger.Warn("unparseable relationship response",
				"chunk_index", chunk.Index,
				"raw_span", truncate(raw.RawText, 200))
			result.Unparseable = true
			return result, nil
		}
		return nil, err
	}
	result.Relationships = rels
	result.Tally.Add(tally)

	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
