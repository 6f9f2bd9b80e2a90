package faultgraph

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/faultgraph/faultgraph/pkg/checkpoint"
	"github.com/faultgraph/faultgraph/pkg/dedupe"
	"github.com/faultgraph/faultgraph/pkg/extraction"
)

var (
	dedupeFrom   string
	dedupeResume string
	dedupeOutDir string
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Collapse duplicate nodes with an LLM judge",
	Long: `Run the deduplication pass over an extraction run's checkpoint.

Candidate pairs are generated from name-similarity buckets, each pair is
judged by the LLM, and accepted merges collapse into canonical nodes. Every
verdict lands in review_pairs.json inside a timestamped run directory;
judge progress is checkpointed so an interrupted pass can resume with
--resume.`,
	RunE: runDedupe,
}

func init() {
	rootCmd.AddCommand(dedupeCmd)

	dedupeCmd.Flags().StringVar(&dedupeFrom, "from", "", "Extraction output directory holding the checkpoint (default from config)")
	dedupeCmd.Flags().StringVar(&dedupeResume, "resume", "", "Existing dedupe run directory to resume")
	dedupeCmd.Flags().StringVar(&dedupeOutDir, "out", "", "Parent directory for dedupe runs (default from config)")
}

func runDedupe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if dedupeFrom == "" {
		dedupeFrom = cfg.Pipeline.OutDir
	}
	if dedupeOutDir == "" {
		dedupeOutDir = cfg.Dedupe.OutDir
	}
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("no LLM API key configured, set OPENAI_API_KEY")
	}

	manager, err := checkpoint.NewManager(dedupeFrom, log)
	if err != nil {
		return err
	}
	cp, ok, err := manager.Load()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no checkpoint found in %s, run extract first", dedupeFrom)
	}
	if !cp.Terminal() {
		log.Warn("deduping an incomplete run",
			"processed_chunks", cp.ProcessedChunks, "total_chunks", cp.TotalChunks)
	}

	llmClient := buildLLMClient(cfg, log)
	defer llmClient.Close()

	runner := dedupe.NewRunner(
		dedupe.NewJudge(llmClient),
		dedupe.Options{
			OutDir:              dedupeOutDir,
			ResumeFrom:          dedupeResume,
			CheckpointEvery:     cfg.Dedupe.CheckpointEvery,
			ConfidenceThreshold: cfg.Dedupe.ConfidenceThreshold,
		},
		log,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The judge sees endpoint labels on relationships, so work from the
	// export view of the checkpointed graph.
	result, err := runner.Run(ctx, cp.Graph.Nodes, cp.Graph.Edges)
	if errors.Is(err, extraction.ErrUnparseable) {
		return fmt.Errorf("judge produced unparseable output: %w", err)
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		fmt.Printf("Stopped. Resume with --resume pointing at the newest run directory under %s\n", dedupeOutDir)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Deduped: %d merges across %d evaluations\n", len(result.MergeMap), result.Evaluated)
	if result.CrossTypeSuggestions > 0 {
		fmt.Printf("Cross-category suggestions (not merged): %d\n", result.CrossTypeSuggestions)
	}
	fmt.Printf("Nodes: %d, relationships: %d\n", len(result.Nodes), len(result.Relationships))
	fmt.Printf("Output: %s\n", result.RunDir)
	return nil
}
