// Package pipeline orchestrates the monthly run as a sequence of steps
// sharing one State. Each step knows which resume stage it applies to, so
// the same pipeline serves fresh runs and runs resumed from either
// checkpoint.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/appunni/budgeauto/internal/checkpoint"
	"github.com/appunni/budgeauto/internal/domain"
	"github.com/appunni/budgeauto/internal/enrich"
	"github.com/appunni/budgeauto/internal/extract"
	"github.com/appunni/budgeauto/internal/logger"
)

// Fetcher retrieves statement documents from the mailbox. A failure here
// degrades the run to zero documents instead of killing it.
type Fetcher interface {
	FetchStatements(ctx context.Context) ([]extract.Document, error)
}

// Archiver stores fetched statement files somewhere durable. Archival is
// best-effort; implementations log their own failures.
type Archiver interface {
	Archive(ctx context.Context, docs []extract.Document, year int)
}

// Reconciler writes the final transaction set into the month's workbook.
type Reconciler interface {
	Reconcile(ctx context.Context, txs []domain.Transaction, year int, month time.Month) error
}

// ConfirmFunc is the last gate before the workbook is touched. Returning
// false stops the run with checkpoints intact. Nil always proceeds.
type ConfirmFunc func(count int) bool

// State is the shared context mutated by the steps.
type State struct {
	Year  int
	Month time.Month

	Stage        checkpoint.Stage
	Documents    []extract.Document
	Transactions []domain.Transaction

	// Halted is set by a step that decides the run should stop cleanly
	// (nothing to write, or the operator declined).
	Halted bool
}

// Step is a single stage of the monthly pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// NewPipeline creates a pipeline with the given steps.
func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping early on error or when a
// step halts the run.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		if state.Halted {
			log := logger.FromContext(ctx)
			log.Info().Int("step", i+1).Msg("Pipeline halted")
			return nil
		}
	}
	return nil
}

// ResolveCheckpointStep picks the resume point from the persisted
// checkpoint files.
type ResolveCheckpointStep struct {
	Store *checkpoint.Store
}

func (s *ResolveCheckpointStep) Execute(ctx context.Context, state *State) error {
	stage, txs := s.Store.Resolve(ctx)
	state.Stage = stage
	state.Transactions = txs
	return nil
}

// FetchStep downloads statement attachments when starting fresh. A fetch
// failure leaves zero documents and lets the run continue.
type FetchStep struct {
	Fetcher Fetcher
}

func (s *FetchStep) Execute(ctx context.Context, state *State) error {
	if state.Stage != checkpoint.StageFresh {
		return nil
	}
	docs, err := s.Fetcher.FetchStatements(ctx)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Fetching statements failed, continuing with zero documents")
		return nil
	}
	state.Documents = docs
	return nil
}

// ArchiveStep copies fetched statements to durable storage. Optional.
type ArchiveStep struct {
	Archiver Archiver
}

func (s *ArchiveStep) Execute(ctx context.Context, state *State) error {
	if s.Archiver == nil || state.Stage != checkpoint.StageFresh || len(state.Documents) == 0 {
		return nil
	}
	s.Archiver.Archive(ctx, state.Documents, state.Year)
	return nil
}

// ExtractStep runs vision extraction over the fetched documents. Only a
// review-gate abort propagates as an error.
type ExtractStep struct {
	Extractor *extract.Extractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *State) error {
	if state.Stage != checkpoint.StageFresh {
		return nil
	}
	txs, err := s.Extractor.ExtractAll(ctx, state.Documents)
	if err != nil {
		return err
	}
	state.Transactions = txs
	return nil
}

// FilterMonthStep narrows the extracted set to the target month's window.
type FilterMonthStep struct{}

func (s *FilterMonthStep) Execute(ctx context.Context, state *State) error {
	if state.Stage != checkpoint.StageFresh {
		return nil
	}
	state.Transactions = FilterByMonth(ctx, state.Transactions, state.Year, state.Month)
	return nil
}

// SaveExtractedStep persists the raw (category-free) checkpoint. A save
// failure is logged but does not stop the run.
type SaveExtractedStep struct {
	Store *checkpoint.Store
}

func (s *SaveExtractedStep) Execute(ctx context.Context, state *State) error {
	if state.Stage != checkpoint.StageFresh || len(state.Transactions) == 0 {
		return nil
	}
	if err := s.Store.Save(ctx, checkpoint.StageExtracted, state.Transactions); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Could not save extraction checkpoint, continuing without it")
	}
	return nil
}

// EnrichStep categorizes the batch. Runs unless the categorized checkpoint
// already supplied the data.
type EnrichStep struct {
	Classifier enrich.Classifier
}

func (s *EnrichStep) Execute(ctx context.Context, state *State) error {
	if state.Stage == checkpoint.StageCategorized || len(state.Transactions) == 0 {
		return nil
	}
	state.Transactions = enrich.Enrich(ctx, s.Classifier, state.Transactions)
	return nil
}

// DefaultCategoriesStep guarantees the post-enrichment invariant: every
// transaction carries a concrete category, expense flag and split flag.
type DefaultCategoriesStep struct{}

func (s *DefaultCategoriesStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	var defaulted int
	for i := range state.Transactions {
		tx := &state.Transactions[i]
		if tx.Category == "" {
			tx.Category = domain.DefaultCategory
			defaulted++
		}
		if tx.IsExpense == nil {
			tx.IsExpense = domain.IntPtr(1)
		}
		if tx.IsSplit == nil {
			tx.IsSplit = domain.IntPtr(domain.SplitNone)
		}
	}
	if defaulted > 0 {
		log.Info().Int("count", defaulted).Str("category", string(domain.DefaultCategory)).Msg("Assigned default category to uncategorized transactions")
	}
	return nil
}

// SaveCategorizedStep persists the final checkpoint. Skipped when the run
// resumed from it.
type SaveCategorizedStep struct {
	Store *checkpoint.Store
}

func (s *SaveCategorizedStep) Execute(ctx context.Context, state *State) error {
	if state.Stage == checkpoint.StageCategorized || len(state.Transactions) == 0 {
		return nil
	}
	if err := s.Store.Save(ctx, checkpoint.StageCategorized, state.Transactions); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Could not save categorized checkpoint, continuing without it")
	}
	return nil
}

// GateStep stops cleanly when there is nothing to write, and otherwise asks
// the operator for the final go-ahead.
type GateStep struct {
	Confirm ConfirmFunc
}

func (s *GateStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)
	if len(state.Transactions) == 0 {
		log.Warn().Msg("No transactions available for this month, nothing will be written")
		state.Halted = true
		return nil
	}
	if s.Confirm != nil && !s.Confirm(len(state.Transactions)) {
		log.Warn().Msg("Workbook update declined, checkpoint files were kept")
		state.Halted = true
	}
	return nil
}

// ReconcileStep writes the month's workbook. This is the only step whose
// failure is fatal to the run.
type ReconcileStep struct {
	Reconciler Reconciler
}

func (s *ReconcileStep) Execute(ctx context.Context, state *State) error {
	if err := s.Reconciler.Reconcile(ctx, state.Transactions, state.Year, state.Month); err != nil {
		return fmt.Errorf("reconcile workbook: %w", err)
	}
	return nil
}

// Deps bundles the collaborators the monthly pipeline needs.
type Deps struct {
	Store      *checkpoint.Store
	Fetcher    Fetcher
	Archiver   Archiver
	Extractor  *extract.Extractor
	Classifier enrich.Classifier
	Confirm    ConfirmFunc
	Reconciler Reconciler
}

// NewMonthlyPipeline assembles the standard step sequence for one month's
// bookkeeping run.
func NewMonthlyPipeline(d Deps) *Pipeline {
	return NewPipeline(
		&ResolveCheckpointStep{Store: d.Store},
		&FetchStep{Fetcher: d.Fetcher},
		&ArchiveStep{Archiver: d.Archiver},
		&ExtractStep{Extractor: d.Extractor},
		&FilterMonthStep{},
		&SaveExtractedStep{Store: d.Store},
		&EnrichStep{Classifier: d.Classifier},
		&DefaultCategoriesStep{},
		&SaveCategorizedStep{Store: d.Store},
		&GateStep{Confirm: d.Confirm},
		&ReconcileStep{Reconciler: d.Reconciler},
	)
}
