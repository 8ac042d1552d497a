package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"callsight/internal/model"
	"callsight/internal/pipeline"
	"callsight/internal/store"
)

var (
	// Global flags
	verbose        bool
	dbDSN          string
	apiKey         string
	modelName      string
	guardrailsPath string
	stagesPath     string
	timeout        time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "callsight",
	Short: "callsight - per-call conversation analysis pipeline",
	Long: `callsight analyzes finished calls between callers and a conversational
agent: it scores both sides of the conversation, aggregates caller state
over time with recency decay, derives personalized behavior targets, and
composes the system prompt for the next call.

State lives in a single SQLite file by default; point --db at a
postgres:// DSN for shared deployments.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Local env files are optional.
		_ = godotenv.Load()

		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// runCmd executes the pipeline for one call
var runCmd = &cobra.Command{
	Use:   "run [call-id]",
	Short: "Run the analysis pipeline for a call",
	Long: `Runs every configured stage for the given call:
  1. EXTRACT / SCORE_AGENT: score both sides of the conversation
  2. AGGREGATE: fold per-call observations into decayed caller state
  3. REWARD: score the agent against system-level targets
  4. ADAPT / SUPERVISE: derive and bound next-call behavior targets
  5. COMPOSE (prompt mode only): build the next system prompt

Stages that already produced output for this call are skipped unless
--force is set. Stage failures are collected, not fatal.`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

// seedCmd records a finished call
var seedCmd = &cobra.Command{
	Use:   "seed [call-id]",
	Short: "Record a finished call for later analysis",
	Long: `Stores a call transcript so the pipeline can analyze it.

Example:
  callsight seed call-42 --caller alice --transcript-file call42.txt`,
	Args: cobra.ExactArgs(1),
	RunE: seedCall,
}

// showCmd prints accumulated caller state
var showCmd = &cobra.Command{
	Use:   "show [caller-id]",
	Short: "Show aggregated state for a caller",
	Long: `Prints the caller's decayed personality profile, behavior targets,
extracted facts, goals, and the most recently composed prompt.`,
	Args: cobra.ExactArgs(1),
	RunE: showCaller,
}

// targetCmd manages system-level behavior targets
var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage system-level behavior targets",
}

var targetSetCmd = &cobra.Command{
	Use:   "set [parameter-id] [value]",
	Short: "Set the system-level target for a behavior parameter",
	Long: `Sets the fleet-wide target the reward stage scores agents against.
Parameters without an explicit target default to 0.5.

Example:
  callsight target set warmth 0.7`,
	Args: cobra.ExactArgs(2),
	RunE: setSystemTarget,
}

// Run flags
var (
	runMode   string
	runEngine string
	runCaller string
	runForce  bool
)

// Seed flags
var (
	seedCaller         string
	seedTranscript     string
	seedTranscriptFile string
	seedStartedAt      string
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "Database DSN: SQLite path or postgres:// URL (or set CALLSIGHT_DB)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "Inference model override")
	rootCmd.PersistentFlags().StringVar(&guardrailsPath, "guardrails", "", "Guardrails YAML path (defaults apply when absent)")
	rootCmd.PersistentFlags().StringVar(&stagesPath, "stages", "", "Stage configuration YAML path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	runCmd.Flags().StringVar(&runMode, "mode", "prep", "Run mode: prep or prompt")
	runCmd.Flags().StringVar(&runEngine, "engine", "mock", "Inference engine: mock or gemini")
	runCmd.Flags().StringVar(&runCaller, "caller", "", "Expected caller; rejects the run on mismatch")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Re-run stages that already produced output")

	seedCmd.Flags().StringVar(&seedCaller, "caller", "", "Caller identity (required)")
	seedCmd.Flags().StringVar(&seedTranscript, "transcript", "", "Transcript text")
	seedCmd.Flags().StringVar(&seedTranscriptFile, "transcript-file", "", "Read the transcript from a file")
	seedCmd.Flags().StringVar(&seedStartedAt, "at", "", "Call start time, RFC 3339 (default: now)")
	seedCmd.MarkFlagRequired("caller")

	targetCmd.AddCommand(targetSetCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(targetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore resolves the DSN and opens the backing store.
func openStore(ctx context.Context) (store.Store, error) {
	dsn := dbDSN
	if dsn == "" {
		dsn = os.Getenv("CALLSIGHT_DB")
	}
	if dsn == "" {
		dsn = "callsight.db"
	}
	return store.Open(ctx, dsn)
}

// runPipeline executes the analysis pipeline for one call
func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mode := pipeline.Mode(runMode)
	if mode != pipeline.ModePrep && mode != pipeline.ModePrompt {
		return fmt.Errorf("invalid mode %q: want prep or prompt", runMode)
	}

	key := apiKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}

	s, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	runner := pipeline.NewRunner(pipeline.Options{
		Store:          s,
		Logger:         logger,
		GuardrailsPath: guardrailsPath,
		StagesPath:     stagesPath,
		APIKey:         key,
		Model:          modelName,
	})

	result, err := runner.Run(ctx, pipeline.Request{
		CallID:   args[0],
		CallerID: runCaller,
		Mode:     mode,
		Engine:   runEngine,
		Force:    runForce,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if len(result.Errors) > 0 {
		logger.Warn("Run completed with stage errors", zap.Int("count", len(result.Errors)))
	}
	return nil
}

// seedCall stores one finished call
func seedCall(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	transcript := seedTranscript
	if seedTranscriptFile != "" {
		data, err := os.ReadFile(seedTranscriptFile)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		transcript = string(data)
	}
	if transcript == "" {
		return fmt.Errorf("provide --transcript or --transcript-file")
	}

	startedAt := time.Now().UTC()
	if seedStartedAt != "" {
		t, err := time.Parse(time.RFC3339, seedStartedAt)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		startedAt = t.UTC()
	}

	callID := args[0]
	if callID == "" {
		callID = uuid.NewString()
	}

	s, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	err = s.CreateCall(ctx, model.Call{
		ID:         callID,
		CallerID:   seedCaller,
		Transcript: transcript,
		StartedAt:  startedAt,
	})
	if err != nil {
		return fmt.Errorf("store call: %w", err)
	}

	logger.Info("Call recorded",
		zap.String("call", callID),
		zap.String("caller", seedCaller),
		zap.Int("transcript_bytes", len(transcript)))
	fmt.Printf("recorded call %s for caller %s\n", callID, seedCaller)
	return nil
}

// showCaller prints the caller's aggregated state
func showCaller(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	callerID := args[0]
	s, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	personalities, err := s.CallerPersonalities(ctx, callerID)
	if err != nil {
		return err
	}
	fmt.Printf("Caller: %s\n\nPersonality:\n", callerID)
	if len(personalities) == 0 {
		fmt.Println("  (no observations yet)")
	}
	for _, p := range personalities {
		fmt.Printf("  %-20s %.2f  (confidence %.2f, %d calls)\n",
			p.Trait, p.Value, p.Confidence, p.SampleCount)
	}

	targets, err := s.CallerTargets(ctx, callerID)
	if err != nil {
		return err
	}
	fmt.Println("\nBehavior targets:")
	if len(targets) == 0 {
		fmt.Println("  (none)")
	}
	for _, t := range targets {
		fmt.Printf("  %-20s %.2f  (confidence %.2f, %d samples)\n",
			t.ParameterID, t.TargetValue, t.Confidence, t.SampleCount)
	}

	facts, err := s.FactsForCaller(ctx, callerID)
	if err != nil {
		return err
	}
	fmt.Printf("\nFacts (%d):\n", len(facts))
	for _, f := range facts {
		fmt.Printf("  - %s\n", f.Content)
	}

	goals, err := s.GoalsForCaller(ctx, callerID)
	if err != nil {
		return err
	}
	fmt.Printf("\nGoals (%d):\n", len(goals))
	for _, g := range goals {
		fmt.Printf("  [%s] %s (%.0f%%)\n", g.Status, g.Description, g.Progress*100)
	}

	prompt, err := s.LatestPrompt(ctx, callerID)
	switch {
	case err == nil:
		fmt.Printf("\nLatest prompt (%s, %s):\n%s\n",
			prompt.ID, prompt.ComposedAt.Format(time.RFC3339), prompt.Content)
	case errors.Is(err, store.ErrNotFound):
		fmt.Println("\nLatest prompt: (none composed yet)")
	default:
		return err
	}
	return nil
}

// setSystemTarget stores a fleet-wide behavior target
func setSystemTarget(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("parse value: %w", err)
	}
	if value < 0 || value > 1 {
		return fmt.Errorf("target %v out of range [0,1]", value)
	}

	s, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	if err := s.SetSystemTarget(ctx, args[0], value); err != nil {
		return fmt.Errorf("set target: %w", err)
	}
	fmt.Printf("system target %s = %.2f\n", args[0], value)
	return nil
}
