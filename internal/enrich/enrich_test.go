package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/appunni/budgeauto/internal/domain"
)

type mockClassifier struct {
	result *BatchResult
	err    error
	got    []BatchItem
}

func (m *mockClassifier) ClassifyBatch(_ context.Context, items []BatchItem) (*BatchResult, error) {
	m.got = items
	return m.result, m.err
}

func amount(v float64) *float64 { return &v }

func sampleBatch() []domain.Transaction {
	return []domain.Transaction{
		{Date: "2024-05-01", Description: "SWIGGY ORDER", Amount: amount(450), Type: domain.TypeDebit},
		{Date: "2024-05-02", Description: "UBER TRIP", Amount: amount(230), Type: domain.TypeDebit},
		{Date: "2024-05-03", Description: "SALARY CREDIT", Amount: amount(50000), Type: domain.TypeCredit},
		{Date: "2024-05-04", Description: "NETFLIX", Amount: amount(649), Type: domain.TypeDebit},
		{Date: "2024-05-05", Description: "GROCERY STORE", Amount: amount(1200), Type: domain.TypeDebit},
	}
}

func TestEnrich_MergesByOriginalIndex(t *testing.T) {
	txs := sampleBatch()
	clf := &mockClassifier{result: &BatchResult{Processed: []ResultItem{
		{OriginalIndex: 1, CategoryStr: "Transportation", IsExpense: 1, IsSplit: 0},
		{OriginalIndex: 0, CategoryStr: "Food", IsExpense: 1, IsSplit: 1},
		{OriginalIndex: 2, CategoryStr: "Salary", IsExpense: 0, IsSplit: 0},
		{OriginalIndex: 3, CategoryStr: "Entertainment", IsExpense: 1, IsSplit: 1},
		{OriginalIndex: 4, CategoryStr: "Grocery", IsExpense: 1, IsSplit: 1},
	}}}

	out := Enrich(context.Background(), clf, txs)

	if out[0].Category != domain.CategoryFood || *out[0].IsSplit != 1 {
		t.Errorf("index 0: got %q split %v", out[0].Category, out[0].IsSplit)
	}
	if out[1].Category != domain.CategoryTransportation {
		t.Errorf("index 1: got %q", out[1].Category)
	}
	if *out[2].IsExpense != 0 {
		t.Errorf("index 2: expected is_expense=0, got %d", *out[2].IsExpense)
	}
	if len(clf.got) != 5 {
		t.Fatalf("expected 5 batch items, got %d", len(clf.got))
	}
	for i, item := range clf.got {
		if item.Index != i {
			t.Errorf("batch item %d has index %d", i, item.Index)
		}
	}
}

func TestEnrich_UnmatchedItemsGetDefaults(t *testing.T) {
	txs := sampleBatch()
	// Three results, one of them out of range: indices 0 and 4 are updated,
	// indices 1, 2 and 3 fall back to defaults at the caller's save step.
	clf := &mockClassifier{result: &BatchResult{Processed: []ResultItem{
		{OriginalIndex: 0, CategoryStr: "Food", IsExpense: 1, IsSplit: 0},
		{OriginalIndex: 4, CategoryStr: "Grocery", IsExpense: 1, IsSplit: 1},
		{OriginalIndex: 17, CategoryStr: "Transportation", IsExpense: 1, IsSplit: 0},
	}}}

	out := Enrich(context.Background(), clf, txs)

	if out[0].Category != domain.CategoryFood {
		t.Errorf("index 0: got %q", out[0].Category)
	}
	if out[4].Category != domain.CategoryGrocery {
		t.Errorf("index 4: got %q", out[4].Category)
	}
	for _, i := range []int{1, 2, 3} {
		if out[i].Category != "" || out[i].IsExpense != nil {
			t.Errorf("index %d: expected untouched transaction, got category %q", i, out[i].Category)
		}
	}
}

func TestEnrich_ClassifierErrorAssignsDefaults(t *testing.T) {
	txs := sampleBatch()
	clf := &mockClassifier{err: errors.New("model unavailable")}

	out := Enrich(context.Background(), clf, txs)

	for i, tx := range out {
		if tx.Category != domain.DefaultCategory {
			t.Errorf("index %d: expected %q, got %q", i, domain.DefaultCategory, tx.Category)
		}
		if tx.IsExpense == nil || *tx.IsExpense != 1 {
			t.Errorf("index %d: expected is_expense=1", i)
		}
		if tx.IsSplit == nil || *tx.IsSplit != domain.SplitNone {
			t.Errorf("index %d: expected is_split=0", i)
		}
	}
}

func TestEnrich_NilClassifierAssignsDefaults(t *testing.T) {
	txs := sampleBatch()
	out := Enrich(context.Background(), nil, txs)
	for i, tx := range out {
		if tx.Category != domain.DefaultCategory {
			t.Errorf("index %d: expected default category, got %q", i, tx.Category)
		}
	}
}

func TestEnrich_MalformedResultAssignsDefaults(t *testing.T) {
	txs := sampleBatch()
	clf := &mockClassifier{result: &BatchResult{}}
	out := Enrich(context.Background(), clf, txs)
	for i, tx := range out {
		if tx.Category != domain.DefaultCategory {
			t.Errorf("index %d: expected default category, got %q", i, tx.Category)
		}
	}
}

func TestEnrich_UnknownCategoryResolvesToFallback(t *testing.T) {
	txs := sampleBatch()[:1]
	clf := &mockClassifier{result: &BatchResult{Processed: []ResultItem{
		{OriginalIndex: 0, CategoryStr: "Completely Made Up", IsExpense: 1, IsSplit: 0},
	}}}

	out := Enrich(context.Background(), clf, txs)
	if out[0].Category != domain.CategoryUncategorized {
		t.Errorf("expected fallback category, got %q", out[0].Category)
	}
}

func TestEnrich_EmptyBatch(t *testing.T) {
	clf := &mockClassifier{}
	out := Enrich(context.Background(), clf, nil)
	if len(out) != 0 {
		t.Fatalf("expected empty result, got %d", len(out))
	}
	if clf.got != nil {
		t.Error("classifier should not be called for an empty batch")
	}
}

func TestFilterExpenses(t *testing.T) {
	txs := []domain.Transaction{
		{Description: "expense", IsExpense: domain.IntPtr(1)},
		{Description: "transfer", IsExpense: domain.IntPtr(0)},
		{Description: "no flag"},
	}

	out := FilterExpenses(context.Background(), txs)

	if len(out) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(out))
	}
	if out[0].Description != "expense" || out[1].Description != "no flag" {
		t.Errorf("unexpected filter result: %q, %q", out[0].Description, out[1].Description)
	}
}
