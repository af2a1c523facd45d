package domain

import (
	"math"
	"time"
)

// TransactionType tells whether money moved out of (debit) or into (credit)
// the account. It is required on every extracted line and drives the sign of
// the amount written to the workbook.
type TransactionType string

const (
	TypeCredit TransactionType = "credit"
	TypeDebit  TransactionType = "debit"
)

// Split flag values. 0 means the cost is borne entirely by the primary
// party, 1 means an even split, 2 means it belongs entirely to the
// secondary party.
const (
	SplitNone = 0
	SplitEven = 1
	SplitFull = 2
)

// Transaction is one financial line item extracted from a statement page.
// Date, Description, Amount, SourceAccount and Type are set once during
// extraction and never rewritten; ShortDescription, Category, IsExpense and
// IsSplit start unset and are populated by the enrichment stage.
type Transaction struct {
	Date             string          `json:"date,omitempty"`
	Description      string          `json:"description"`
	Amount           *float64        `json:"amount,omitempty"`
	SourceAccount    string          `json:"source_account,omitempty"`
	Type             TransactionType `json:"transaction_type"`
	ShortDescription string          `json:"short_description,omitempty"`
	Category         Category        `json:"category,omitempty"`
	IsExpense        *int            `json:"is_expense,omitempty"`
	IsSplit          *int            `json:"is_split,omitempty"`
}

// SignedAmount derives the signed value written to the workbook: debits are
// positive, credits negative. The magnitude is taken through Abs first so an
// amount that already carries a sign is never double-applied.
func (t *Transaction) SignedAmount() (float64, bool) {
	if t.Amount == nil {
		return 0, false
	}
	mag := math.Abs(*t.Amount)
	if t.Type == TypeCredit {
		return -mag, true
	}
	return mag, true
}

// IntPtr is a small helper for populating the tri-state flags.
func IntPtr(v int) *int { return &v }

// flexibleDateFormats is the ordered list of encodings statement dates show
// up in; ParseFlexibleDate tries them in sequence until one parses.
var flexibleDateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"02/01/2006 15:04:05",
	"02-Jan-06",
}

// ParseFlexibleDate parses a statement date in any of the supported
// encodings. The boolean is false when nothing parses.
func ParseFlexibleDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range flexibleDateFormats {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// DisplayDate is the canonical date format used in the workbook.
const DisplayDate = "02/01/2006"

// FormatDisplayDate reformats a raw statement date to the canonical display
// format. Unparseable input yields an empty string rather than an error so a
// bad date never fails a whole row.
func FormatDisplayDate(raw string) string {
	d, ok := ParseFlexibleDate(raw)
	if !ok {
		return ""
	}
	return d.Format(DisplayDate)
}
