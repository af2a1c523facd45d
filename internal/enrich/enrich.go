// Package enrich assigns category, expense flag and split flag to raw
// transactions with one classifier call per batch. Results come back keyed
// by the position each transaction held in the request; anything the
// classifier misses keeps its prior state and is defaulted by the caller.
package enrich

import (
	"context"

	"github.com/appunni/budgeauto/internal/domain"
	"github.com/appunni/budgeauto/internal/logger"
)

// BatchItem is one transaction as presented to the classifier.
type BatchItem struct {
	Index       int      `json:"index"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Amount      *float64 `json:"amount"`
}

// ResultItem is one classified transaction keyed by its original position.
type ResultItem struct {
	OriginalIndex int    `json:"original_index"`
	CategoryStr   string `json:"category_str"`
	IsExpense     int    `json:"is_expense"`
	IsSplit       int    `json:"is_split"`
}

// BatchResult is the classifier's response for a whole batch.
type BatchResult struct {
	Processed []ResultItem `json:"processed_transactions"`
}

// Classifier is the external categorization capability. Any implementation
// satisfying the batch contract will do: a model, a rule engine, or a stub.
type Classifier interface {
	ClassifyBatch(ctx context.Context, items []BatchItem) (*BatchResult, error)
}

// failureReason distinguishes why a whole batch collapsed to defaults. The
// final transaction state is identical either way; only the log differs.
type failureReason string

const (
	reasonNotConfigured failureReason = "classifier-missing"
	reasonError         failureReason = "classifier-error"
	reasonMalformed     failureReason = "malformed-response"
)

// Enrich classifies txs in place and returns the same slice. It never
// fails: a classifier problem assigns conservative defaults to the whole
// batch instead of propagating.
func Enrich(ctx context.Context, clf Classifier, txs []domain.Transaction) []domain.Transaction {
	log := logger.FromContext(ctx)

	if len(txs) == 0 {
		log.Info().Msg("No transactions provided for enrichment")
		return txs
	}

	if clf == nil {
		assignDefaults(ctx, txs, reasonNotConfigured)
		return txs
	}

	items := make([]BatchItem, len(txs))
	for i, tx := range txs {
		items[i] = BatchItem{Index: i, Date: tx.Date, Description: tx.Description, Amount: tx.Amount}
	}

	log.Info().Int("count", len(items)).Msg("Sending transaction batch to classifier")

	result, err := clf.ClassifyBatch(ctx, items)
	if err != nil {
		log.Error().Err(err).Msg("Classifier call failed")
		assignDefaults(ctx, txs, reasonError)
		return txs
	}
	if result == nil || result.Processed == nil {
		assignDefaults(ctx, txs, reasonMalformed)
		return txs
	}

	if len(result.Processed) != len(txs) {
		log.Warn().
			Int("input", len(txs)).
			Int("output", len(result.Processed)).
			Msg("Transaction count mismatch between batch and classifier output, matching on original_index")
	}

	updated := make(map[int]bool, len(txs))
	for _, item := range result.Processed {
		if item.OriginalIndex < 0 || item.OriginalIndex >= len(txs) {
			log.Warn().
				Int("original_index", item.OriginalIndex).
				Int("batch_size", len(txs)).
				Msg("Classifier result has an out-of-range original_index, discarding it")
			continue
		}
		tx := &txs[item.OriginalIndex]
		tx.Category = domain.ResolveCategory(item.CategoryStr)
		tx.IsExpense = domain.IntPtr(item.IsExpense)
		tx.IsSplit = domain.IntPtr(item.IsSplit)
		updated[item.OriginalIndex] = true
	}

	var missed int
	for i := range txs {
		if !updated[i] {
			log.Warn().Int("index", i).Str("description", txs[i].Description).Msg("Transaction was not updated by the classifier results")
			missed++
		}
	}
	log.Info().
		Int("updated", len(updated)).
		Int("not_updated", missed).
		Msg("Merged classifier results into batch")

	return txs
}

// assignDefaults collapses the whole batch to conservative values: fallback
// category, assume expense, no split.
func assignDefaults(ctx context.Context, txs []domain.Transaction, reason failureReason) {
	log := logger.FromContext(ctx)
	log.Warn().
		Str("reason", string(reason)).
		Int("count", len(txs)).
		Msg("Assigning default enrichment values to the whole batch")

	for i := range txs {
		txs[i].Category = domain.DefaultCategory
		txs[i].IsExpense = domain.IntPtr(1)
		txs[i].IsSplit = domain.IntPtr(domain.SplitNone)
	}
}

// FilterExpenses keeps only transactions flagged as expenses. A missing
// flag is treated as an expense, which errs on the side of keeping a cost
// visible, and is logged.
func FilterExpenses(ctx context.Context, txs []domain.Transaction) []domain.Transaction {
	log := logger.FromContext(ctx)

	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		flag := 1
		if tx.IsExpense != nil {
			flag = *tx.IsExpense
		} else {
			log.Warn().Str("description", tx.Description).Msg("Transaction has no expense flag, assuming it is an expense")
		}
		if flag == 1 {
			out = append(out, tx)
		}
	}

	log.Info().Int("in", len(txs)).Int("out", len(out)).Msg("Filtered transactions down to expenses")
	return out
}
