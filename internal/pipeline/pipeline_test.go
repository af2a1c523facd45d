package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/appunni/budgeauto/internal/checkpoint"
	"github.com/appunni/budgeauto/internal/domain"
	"github.com/appunni/budgeauto/internal/enrich"
	"github.com/appunni/budgeauto/internal/extract"
)

type mockFetcher struct {
	docs   []extract.Document
	err    error
	called bool
}

func (m *mockFetcher) FetchStatements(_ context.Context) ([]extract.Document, error) {
	m.called = true
	return m.docs, m.err
}

type mockOpener struct{}

func (mockOpener) Open(path, _ string) ([]extract.Page, error) {
	return []extract.Page{{MIMEType: "application/pdf", Data: []byte(path)}}, nil
}

type mockPageExtractor struct {
	txs []domain.Transaction
}

func (m *mockPageExtractor) ExtractPage(_ context.Context, _ extract.Page) ([]domain.Transaction, error) {
	return m.txs, nil
}

type mockMatcher struct{}

func (mockMatcher) MatchAccount(_ context.Context, _ string, _ []string) (string, error) {
	return "ICICI Savings", nil
}

type mockClassifier struct {
	called bool
}

func (m *mockClassifier) ClassifyBatch(_ context.Context, items []enrich.BatchItem) (*enrich.BatchResult, error) {
	m.called = true
	out := make([]enrich.ResultItem, len(items))
	for i := range items {
		out[i] = enrich.ResultItem{OriginalIndex: i, CategoryStr: "Food", IsExpense: 1, IsSplit: 0}
	}
	return &enrich.BatchResult{Processed: out}, nil
}

type mockReconciler struct {
	called bool
	got    []domain.Transaction
}

func (m *mockReconciler) Reconcile(_ context.Context, txs []domain.Transaction, _ int, _ time.Month) error {
	m.called = true
	m.got = txs
	return nil
}

func amount(v float64) *float64 { return &v }

func testDeps(t *testing.T, fetcher *mockFetcher, clf enrich.Classifier, rec *mockReconciler) Deps {
	t.Helper()
	return Deps{
		Store:   checkpoint.NewStore(t.TempDir()),
		Fetcher: fetcher,
		Extractor: &extract.Extractor{
			Opener:       mockOpener{},
			Pages:        &mockPageExtractor{txs: []domain.Transaction{{Date: "2024-05-10", Description: "SWIGGY", Amount: amount(450), Type: domain.TypeDebit}}},
			Accounts:     mockMatcher{},
			AccountNames: []string{"ICICI Savings"},
		},
		Classifier: clf,
		Reconciler: rec,
	}
}

func TestPipeline_FreshRunEndToEnd(t *testing.T) {
	fetcher := &mockFetcher{docs: []extract.Document{{Path: "stmt.pdf", Subject: "statement"}}}
	clf := &mockClassifier{}
	rec := &mockReconciler{}
	deps := testDeps(t, fetcher, clf, rec)

	state := &State{Year: 2024, Month: time.May}
	if err := NewMonthlyPipeline(deps).Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if !fetcher.called || !clf.called || !rec.called {
		t.Fatalf("expected all collaborators called: fetch=%v classify=%v reconcile=%v", fetcher.called, clf.called, rec.called)
	}
	if len(rec.got) != 1 {
		t.Fatalf("expected 1 transaction at reconcile, got %d", len(rec.got))
	}
	got := rec.got[0]
	if got.Category != domain.CategoryFood || got.IsExpense == nil || *got.IsExpense != 1 {
		t.Errorf("transaction not enriched: category %q", got.Category)
	}
	if got.SourceAccount != "ICICI Savings" {
		t.Errorf("source account not attributed: %q", got.SourceAccount)
	}

	// Both checkpoint files must exist after a fresh run.
	for _, name := range []string{"processed_transactions.json", "categorized_transactions.json"} {
		if _, err := os.Stat(filepath.Join(deps.Store.Dir, name)); err != nil {
			t.Errorf("expected checkpoint file %s: %v", name, err)
		}
	}
}

func TestPipeline_ResumeFromCategorizedSkipsEverything(t *testing.T) {
	dir := t.TempDir()
	saved := []domain.Transaction{{
		Date: "2024-05-10", Description: "UBER", Amount: amount(230),
		Type: domain.TypeDebit, Category: domain.CategoryTransportation,
		IsExpense: domain.IntPtr(1), IsSplit: domain.IntPtr(0),
		SourceAccount: "ICICI Savings",
	}}
	data, _ := json.Marshal(saved)
	if err := os.WriteFile(filepath.Join(dir, "categorized_transactions.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	fetcher := &mockFetcher{}
	clf := &mockClassifier{}
	rec := &mockReconciler{}
	deps := testDeps(t, fetcher, clf, rec)
	deps.Store = checkpoint.NewStore(dir)

	state := &State{Year: 2024, Month: time.May}
	if err := NewMonthlyPipeline(deps).Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if fetcher.called {
		t.Error("fetcher should not run when resuming from the categorized checkpoint")
	}
	if clf.called {
		t.Error("classifier should not run when resuming from the categorized checkpoint")
	}
	if !rec.called || len(rec.got) != 1 || rec.got[0].Category != domain.CategoryTransportation {
		t.Fatalf("expected reconciler to receive the resumed transaction")
	}
}

func TestPipeline_ResumeFromExtractedStillEnriches(t *testing.T) {
	dir := t.TempDir()
	saved := []domain.Transaction{{
		Date: "2024-05-10", Description: "SWIGGY", Amount: amount(450),
		Type: domain.TypeDebit, SourceAccount: "ICICI Savings",
	}}
	data, _ := json.Marshal(saved)
	if err := os.WriteFile(filepath.Join(dir, "processed_transactions.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	fetcher := &mockFetcher{}
	clf := &mockClassifier{}
	rec := &mockReconciler{}
	deps := testDeps(t, fetcher, clf, rec)
	deps.Store = checkpoint.NewStore(dir)

	state := &State{Year: 2024, Month: time.May}
	if err := NewMonthlyPipeline(deps).Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if fetcher.called {
		t.Error("fetcher should not run when resuming from the extraction checkpoint")
	}
	if !clf.called {
		t.Error("classifier must run when resuming from the extraction checkpoint")
	}
	if !rec.called || rec.got[0].Category != domain.CategoryFood {
		t.Fatal("expected enriched transaction at reconcile")
	}
}

func TestPipeline_HaltsWhenNothingToWrite(t *testing.T) {
	fetcher := &mockFetcher{} // zero documents
	rec := &mockReconciler{}
	deps := testDeps(t, fetcher, &mockClassifier{}, rec)

	state := &State{Year: 2024, Month: time.May}
	if err := NewMonthlyPipeline(deps).Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if !state.Halted {
		t.Error("expected pipeline to halt with no transactions")
	}
	if rec.called {
		t.Error("reconciler must not run with no transactions")
	}
}

func TestPipeline_ConfirmDeclinedHalts(t *testing.T) {
	fetcher := &mockFetcher{docs: []extract.Document{{Path: "stmt.pdf"}}}
	rec := &mockReconciler{}
	deps := testDeps(t, fetcher, &mockClassifier{}, rec)
	deps.Confirm = func(count int) bool { return false }

	state := &State{Year: 2024, Month: time.May}
	if err := NewMonthlyPipeline(deps).Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if !state.Halted {
		t.Error("expected pipeline to halt when the operator declines")
	}
	if rec.called {
		t.Error("reconciler must not run when the operator declines")
	}
	// The categorized checkpoint survives a declined confirmation.
	if _, err := os.Stat(filepath.Join(deps.Store.Dir, "categorized_transactions.json")); err != nil {
		t.Errorf("expected categorized checkpoint kept: %v", err)
	}
}

func TestPipeline_FetchFailureDegradesToEmptyRun(t *testing.T) {
	fetcher := &mockFetcher{err: os.ErrDeadlineExceeded}
	rec := &mockReconciler{}
	deps := testDeps(t, fetcher, &mockClassifier{}, rec)

	state := &State{Year: 2024, Month: time.May}
	if err := NewMonthlyPipeline(deps).Execute(context.Background(), state); err != nil {
		t.Fatalf("fetch failure must not fail the pipeline: %v", err)
	}
	if !state.Halted || rec.called {
		t.Error("expected a clean halt after a failed fetch")
	}
}
