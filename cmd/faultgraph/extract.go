package faultgraph

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/faultgraph/faultgraph"
	"github.com/faultgraph/faultgraph/pkg/checkpoint"
	"github.com/faultgraph/faultgraph/pkg/chunker"
	"github.com/faultgraph/faultgraph/pkg/config"
	"github.com/faultgraph/faultgraph/pkg/driver"
	"github.com/faultgraph/faultgraph/pkg/extraction"
	"github.com/faultgraph/faultgraph/pkg/llm"
	"github.com/faultgraph/faultgraph/pkg/utils"
)

var (
	extractInput      string
	extractOutDir     string
	extractStartChunk int
	extractStartLine  int
	extractEndLine    int
	extractSaveEvery  int
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run the extraction pipeline over a manual",
	Long: `Extract a knowledge graph from a text manual.

The run checkpoints progress under the output directory; rerunning with the
same output directory resumes from the last checkpoint. Ctrl-C stops the run
between chunks after saving a checkpoint.`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&extractInput, "input", "", "Input manual text file (required)")
	extractCmd.Flags().StringVar(&extractOutDir, "out", "", "Output directory (default from config)")
	extractCmd.Flags().IntVar(&extractStartChunk, "start-chunk", 0, "First chunk index to process")
	extractCmd.Flags().IntVar(&extractStartLine, "start-line", 0, "First input line to ingest (1-based, 0 = start)")
	extractCmd.Flags().IntVar(&extractEndLine, "end-line", 0, "Last input line to ingest (1-based inclusive, 0 = end)")
	extractCmd.Flags().IntVar(&extractSaveEvery, "save-every", 0, "Checkpoint every N chunks (default from config)")
	extractCmd.MarkFlagRequired("input")
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	log = log.With("run_id", uuid.NewString())
	if extractOutDir == "" {
		extractOutDir = cfg.Pipeline.OutDir
	}
	if extractSaveEvery > 0 {
		cfg.Pipeline.CheckpointEvery = extractSaveEvery
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no LLM API key configured, set OPENAI_API_KEY")
	}

	document, err := loadDocument(extractInput, extractStartLine, extractEndLine)
	if err != nil {
		return err
	}

	ch, err := chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}

	llmClient := buildLLMClient(cfg, log)
	defer llmClient.Close()

	manager, err := checkpoint.NewManager(extractOutDir, log)
	if err != nil {
		return err
	}

	var sink driver.GraphSink
	if cfg.Database.URI != "" {
		neo4jSink, err := driver.NewNeo4jSink(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to neo4j: %w", err)
		}
		sink = neo4jSink
	}

	pipeline := faultgraph.NewPipeline(
		ch,
		extraction.NewClient(llmClient, log),
		manager,
		sink,
		faultgraph.Options{
			CheckpointEvery:     cfg.Pipeline.CheckpointEvery,
			PauseEvery:          cfg.Pipeline.PauseEvery,
			PauseInterval:       time.Duration(cfg.Pipeline.PauseSeconds) * time.Second,
			SimilarityThreshold: cfg.Pipeline.SimilarityThreshold,
			StartChunk:          extractStartChunk,
		},
		log,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.Run(ctx, document)
	if sink != nil {
		if closeErr := sink.Close(cmd.Context()); closeErr != nil {
			log.Warn("failed to close database sink", "error", closeErr)
		}
	}
	if errors.Is(err, faultgraph.ErrStopped) {
		fmt.Println("Stopped. Rerun with the same --out directory to resume.")
		return nil
	}
	if err != nil {
		return err
	}

	if err := faultgraph.WriteExport(result.Snapshot, extractOutDir); err != nil {
		return err
	}
	fmt.Printf("Done: %d nodes, %d edges (%d chunks, %d failed)\n",
		result.Stats.TotalNodes, result.Stats.TotalEdges,
		result.Stats.TotalChunks, len(result.Stats.FailedChunks))
	fmt.Printf("Output: %s\n", extractOutDir)
	return nil
}

// loadDocument reads the manual, optionally narrowed to a 1-based inclusive
// line range, and normalizes page markers and numbering artifacts away.
func loadDocument(path string, startLine, endLine int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input %s: %w", path, err)
	}
	text := string(data)

	if startLine > 0 || endLine > 0 {
		lines := strings.Split(text, "\n")
		start := 0
		if startLine > 0 {
			start = startLine - 1
		}
		end := len(lines)
		if endLine > 0 && endLine < end {
			end = endLine
		}
		if start >= len(lines) || start >= end {
			return "", fmt.Errorf("line range %d-%d selects nothing from %d lines", startLine, endLine, len(lines))
		}
		text = strings.Join(lines[start:end], "\n")
	}

	return utils.CleanManualText(text), nil
}

// buildLLMClient assembles the OpenAI-compatible client with retry and
// circuit breaking around it.
func buildLLMClient(cfg *config.Config, log *slog.Logger) llm.Client {
	llmCfg := llm.NewConfig()
	llmCfg.APIKey = cfg.LLM.APIKey
	if cfg.LLM.Model != "" {
		llmCfg.Model = cfg.LLM.Model
	}
	llmCfg.BaseURL = cfg.LLM.BaseURL
	llmCfg.Temperature = cfg.LLM.Temperature
	if cfg.LLM.MaxTokens > 0 {
		llmCfg.MaxTokens = cfg.LLM.MaxTokens
	}
	if cfg.LLM.Timeout > 0 {
		llmCfg.Timeout = cfg.LLM.Timeout
	}
	if cfg.LLM.MaxRetries > 0 {
		llmCfg.MaxRetries = cfg.LLM.MaxRetries
	}
	inner := llm.NewOpenAIClient(*llmCfg)
	return llm.NewRetryingClient(inner, llmCfg.MaxRetries, llm.DefaultBaseDelay, log)
}
