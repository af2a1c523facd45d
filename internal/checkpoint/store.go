// Package checkpoint persists transaction snapshots at the two pipeline
// milestones so a failed run can resume without re-fetching or re-classifying
// anything.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/appunni/budgeauto/internal/domain"
	"github.com/appunni/budgeauto/internal/logger"
)

// Stage identifies a resume point. The pipeline is a three-state machine:
// fresh (no usable checkpoint), extracted (raw transactions saved, still
// need enrichment) and categorized (ready for the workbook).
type Stage string

const (
	StageFresh       Stage = "fresh"
	StageExtracted   Stage = "extracted"
	StageCategorized Stage = "categorized"
)

const (
	extractedFile   = "processed_transactions.json"
	categorizedFile = "categorized_transactions.json"
)

// Store reads and writes the checkpoint files under Dir.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir ("." when empty).
func NewStore(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{Dir: dir}
}

func (s *Store) path(stage Stage) (string, error) {
	switch stage {
	case StageExtracted:
		return filepath.Join(s.Dir, extractedFile), nil
	case StageCategorized:
		return filepath.Join(s.Dir, categorizedFile), nil
	default:
		return "", fmt.Errorf("checkpoint: no file for stage %q", stage)
	}
}

// Save serializes txs to the stage's file. The extraction-stage file must
// never carry categories, so they are blanked on write; the transactions
// passed in are not mutated.
func (s *Store) Save(ctx context.Context, stage Stage, txs []domain.Transaction) error {
	log := logger.FromContext(ctx)

	path, err := s.path(stage)
	if err != nil {
		return err
	}

	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	if stage == StageExtracted {
		for i := range out {
			out[i].Category = ""
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal %s: %w", stage, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write %s: %w", path, err)
	}

	log.Info().
		Str("stage", string(stage)).
		Str("path", path).
		Int("count", len(out)).
		Msg("Saved checkpoint")
	return nil
}

// Load reads the stage's file. A missing file returns (nil, false, nil); an
// empty or undecodable file is logged and also returns absent rather than
// failing the run. Individual malformed records are dropped with a warning
// and do not poison the rest of the file.
func (s *Store) Load(ctx context.Context, stage Stage) ([]domain.Transaction, bool, error) {
	log := logger.FromContext(ctx)

	path, err := s.path(stage)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	if len(data) == 0 {
		log.Warn().Str("path", path).Msg("Checkpoint file is empty, treating as absent")
		return nil, false, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Checkpoint file is not a valid JSON array, treating as absent")
		return nil, false, nil
	}
	if len(items) == 0 {
		log.Info().Str("path", path).Msg("Checkpoint file holds no transactions, treating as absent")
		return nil, false, nil
	}

	txs := make([]domain.Transaction, 0, len(items))
	var dropped int
	for i, item := range items {
		var tx domain.Transaction
		if err := json.Unmarshal(item, &tx); err != nil {
			log.Warn().Err(err).Int("index", i).Str("path", path).Msg("Dropping malformed checkpoint record")
			dropped++
			continue
		}
		if stage == StageExtracted && tx.Category != "" {
			log.Warn().Int("index", i).Str("category", string(tx.Category)).Msg("Extraction checkpoint record unexpectedly carries a category, clearing it")
			tx.Category = ""
		}
		if stage == StageCategorized && tx.Category != "" && !tx.Category.IsValid() {
			tx.Category = domain.ResolveCategory(string(tx.Category))
		}
		txs = append(txs, tx)
	}
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Str("path", path).Msg("Dropped malformed records while loading checkpoint")
	}
	if len(txs) == 0 {
		return nil, false, nil
	}
	return txs, true, nil
}

// Resolve inspects the persisted files and picks the resume point. The
// categorized checkpoint wins: if it loads non-empty, extraction and
// enrichment are skipped entirely.
func (s *Store) Resolve(ctx context.Context) (Stage, []domain.Transaction) {
	log := logger.FromContext(ctx)

	if txs, ok, err := s.Load(ctx, StageCategorized); err == nil && ok {
		log.Info().Int("count", len(txs)).Msg("Resuming from categorized checkpoint, extraction and enrichment skipped")
		return StageCategorized, txs
	} else if err != nil {
		log.Warn().Err(err).Msg("Could not read categorized checkpoint, checking extraction checkpoint")
	}

	if txs, ok, err := s.Load(ctx, StageExtracted); err == nil && ok {
		log.Info().Int("count", len(txs)).Msg("Resuming from extraction checkpoint, still needs categorization")
		return StageExtracted, txs
	} else if err != nil {
		log.Warn().Err(err).Msg("Could not read extraction checkpoint, starting fresh")
	}

	log.Info().Msg("No usable checkpoint found, starting fresh run")
	return StageFresh, nil
}
