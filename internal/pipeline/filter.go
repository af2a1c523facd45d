package pipeline

import (
	"context"
	"time"

	"github.com/appunni/budgeauto/internal/domain"
	"github.com/appunni/budgeauto/internal/logger"
)

// FilterByMonth keeps transactions dated inside the statement window for the
// target month: the 1st of the month through the 2nd of the next month,
// inclusive. The two trailing days catch settlements that post just after
// month end. Transactions whose date is missing or unparseable are dropped
// and counted separately from out-of-range ones; an invalid target month
// fails open and returns the input untouched.
func FilterByMonth(ctx context.Context, txs []domain.Transaction, year int, month time.Month) []domain.Transaction {
	log := logger.FromContext(ctx)

	if month < time.January || month > time.December {
		log.Error().Int("year", year).Int("month", int(month)).Msg("Invalid target month for date filter, keeping all transactions")
		return txs
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 1) // 2nd of the next month

	log.Info().
		Str("from", start.Format("2006-01-02")).
		Str("to", end.Format("2006-01-02")).
		Msg("Applying date filter")

	kept := make([]domain.Transaction, 0, len(txs))
	var outOfRange, noDate int
	for _, tx := range txs {
		if tx.Date == "" {
			noDate++
			continue
		}
		d, ok := domain.ParseFlexibleDate(tx.Date)
		if !ok {
			log.Warn().Str("date", tx.Date).Str("description", tx.Description).Msg("Could not parse transaction date, dropping it from the month")
			noDate++
			continue
		}
		if d.Before(start) || d.After(end) {
			outOfRange++
			continue
		}
		kept = append(kept, tx)
	}

	log.Info().
		Int("kept", len(kept)).
		Int("out_of_range", outOfRange).
		Int("no_date", noDate).
		Msg("Date filtering results")
	return kept
}

// PreviousMonth returns the year and month immediately before the month
// containing now.
func PreviousMonth(now time.Time) (int, time.Month) {
	firstOfCurrent := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastOfPrevious := firstOfCurrent.AddDate(0, 0, -1)
	return lastOfPrevious.Year(), lastOfPrevious.Month()
}
