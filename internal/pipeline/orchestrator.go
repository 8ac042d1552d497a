package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"callsight/internal/composer"
	"callsight/internal/config"
	"callsight/internal/extractors"
	"callsight/internal/inference"
	"callsight/internal/specs"
	"callsight/internal/store"
)

// Options configures a Runner. Store is required; everything else has a
// working default. ClientFor and the collaborator fields exist so tests can
// substitute fakes.
type Options struct {
	Store          store.Store
	Logger         *zap.Logger
	GuardrailsPath string
	StagesPath     string
	Specs          []specs.RuleSpec

	// Inference engine construction. APIKey/Model feed the default factory.
	APIKey    string
	Model     string
	ClientFor func(engine string, g config.Guardrails) (inference.Client, error)

	Collaborators *Collaborators
	Composer      PromptComposer
	Now           func() time.Time
}

// Runner executes pipeline runs. Safe for concurrent use: each run owns its
// own Run context and the Runner itself is read-only after construction.
type Runner struct {
	opts Options
}

// NewRunner builds a Runner, filling in defaults.
func NewRunner(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Specs == nil {
		opts.Specs = specs.DefaultSpecs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ClientFor == nil {
		opts.ClientFor = func(engine string, g config.Guardrails) (inference.Client, error) {
			return inference.ForEngine(engine, inference.Options{
				APIKey: opts.APIKey,
				Model:  opts.Model,
				Mock:   g.MockBehavior,
				Logger: opts.Logger,
			})
		}
	}
	return &Runner{opts: opts}
}

// Run executes the pipeline for one call. The only fatal error is failing to
// resolve the call itself; every stage failure is collected into the result.
func (rn *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	logger := rn.opts.Logger

	guardrails := config.LoadGuardrails(rn.opts.GuardrailsPath, logger)
	stages := config.LoadStages(rn.opts.StagesPath, logger)

	call, err := rn.opts.Store.GetCall(ctx, req.CallID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: resolve call %s: %w", req.CallID, err)
	}
	if req.CallerID != "" && call.CallerID != req.CallerID {
		return nil, fmt.Errorf("pipeline: call %s belongs to caller %s, not %s",
			req.CallID, call.CallerID, req.CallerID)
	}

	client, err := rn.opts.ClientFor(req.Engine, guardrails)
	if err != nil {
		return nil, fmt.Errorf("pipeline: inference engine: %w", err)
	}

	run := &Run{
		Call:       call,
		Mode:       req.Mode,
		Engine:     req.Engine,
		Force:      req.Force,
		Guardrails: guardrails,
		Stages:     stages,
		Specs:      rn.opts.Specs,
		Results:    make(map[string]any),
		store:      rn.opts.Store,
		client:     client,
		collab:     rn.collaborators(guardrails),
		composer:   rn.composer(),
		logger:     logger,
		now:        rn.opts.Now,
	}

	// Spec dependency validation: warnings only, never fatal.
	warnings := specs.Validate(run.Specs)
	for _, w := range warnings {
		logger.Warn("spec dependency unsatisfied", zap.String("warning", w))
	}

	rn.execute(ctx, run)

	summary := run.Results
	if len(warnings) > 0 {
		summary[summaryWarningsKey] = warnings
	}
	if len(run.Errors) > 0 {
		summary[summaryErrorsKey] = run.Errors
	}

	logger.Info("pipeline run complete",
		zap.String("call", call.ID),
		zap.String("mode", string(req.Mode)),
		zap.Int("stage_errors", len(run.Errors)))

	return &Result{Summary: summary, Prompt: run.prompt, Errors: run.Errors}, nil
}

// execute walks the mode-filtered stage list, greedily collecting maximal
// consecutive runs of parallel-eligible stages into batches. Batches of two
// or more run concurrently; everything else runs in order.
func (rn *Runner) execute(ctx context.Context, run *Run) {
	var scheduled []config.Stage
	for _, st := range run.Stages {
		if st.RequiresMode != "" && st.RequiresMode != string(run.Mode) {
			continue
		}
		scheduled = append(scheduled, st)
	}

	for i := 0; i < len(scheduled); {
		if !parallelEligible[scheduled[i].Name] {
			rn.runSequential(ctx, run, scheduled[i])
			i++
			continue
		}
		j := i
		for j < len(scheduled) && parallelEligible[scheduled[j].Name] {
			j++
		}
		batch := scheduled[i:j]
		if len(batch) >= 2 {
			rn.runBatch(ctx, run, batch)
		} else {
			rn.runSequential(ctx, run, batch[0])
		}
		i = j
	}
}

// runSequential executes one stage and merges its outcome.
func (rn *Runner) runSequential(ctx context.Context, run *Run, stage config.Stage) {
	result, err := safeExecute(ctx, run, stage)
	rn.merge(run, stage, result, err)
}

// runBatch executes stages concurrently, then merges outcomes one by one on
// the orchestrator goroutine. A failed member never suppresses the others'
// results; last writer wins per result key.
func (rn *Runner) runBatch(ctx context.Context, run *Run, batch []config.Stage) {
	results := make([]map[string]any, len(batch))
	errs := make([]error, len(batch))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, stage := range batch {
		eg.Go(func() error {
			results[i], errs[i] = safeExecute(egCtx, run, stage)
			return nil // failures are collected, never propagated
		})
	}
	_ = eg.Wait()

	for i, stage := range batch {
		rn.merge(run, stage, results[i], errs[i])
	}
}

// merge folds one stage outcome into the shared accumulator. Only ever
// called from the orchestrator goroutine.
func (rn *Runner) merge(run *Run, stage config.Stage, result map[string]any, err error) {
	if err != nil {
		run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", stage.Name, err))
		rn.opts.Logger.Warn("stage failed",
			zap.String("stage", stage.Name),
			zap.String("call", run.Call.ID),
			zap.Error(err))
		return
	}
	for k, v := range result {
		run.Results[k] = v
	}
}

func (rn *Runner) collaborators(g config.Guardrails) Collaborators {
	if rn.opts.Collaborators != nil {
		return *rn.opts.Collaborators
	}
	s := rn.opts.Store
	return Collaborators{
		RuleAdapt:  &extractors.RuleAdapter{Store: s, NudgeFactor: g.MockBehavior.NudgeFactor, DefaultGoal: 0.5},
		Goals:      &extractors.GoalExtractor{Store: s},
		Artifacts:  &extractors.ArtifactExtractor{Store: s},
		Curriculum: &extractors.Curriculum{Store: s},
		Progress:   &extractors.GoalTracker{Store: s},
	}
}

func (rn *Runner) composer() PromptComposer {
	if rn.opts.Composer != nil {
		return rn.opts.Composer
	}
	return composer.New(rn.opts.Store, composer.DefaultConfig())
}
