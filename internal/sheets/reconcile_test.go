package sheets

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/appunni/budgeauto/internal/domain"
)

// fakeService keeps an in-memory workbook and records every mutation.
type fakeService struct {
	sheets      []SheetInfo
	nextID      int64
	values      map[string][][]interface{}
	cleared     []string
	formulas    map[int64][]FormulaCell
	validations map[int64][]ValidationRule
	frozen      map[int64]bool

	adds     int
	deletes  int
	renames  int
	reorders int
}

func newFakeService(titles ...string) *fakeService {
	f := &fakeService{
		values:      make(map[string][][]interface{}),
		formulas:    make(map[int64][]FormulaCell),
		validations: make(map[int64][]ValidationRule),
		frozen:      make(map[int64]bool),
	}
	for _, t := range titles {
		f.sheets = append(f.sheets, SheetInfo{ID: f.nextID, Title: t, Index: f.nextID})
		f.nextID++
	}
	return f
}

func (f *fakeService) ListSheets(_ context.Context) ([]SheetInfo, error) {
	out := make([]SheetInfo, len(f.sheets))
	copy(out, f.sheets)
	return out, nil
}

func (f *fakeService) AddSheet(_ context.Context, title string) error {
	f.adds++
	f.sheets = append(f.sheets, SheetInfo{ID: f.nextID, Title: title, Index: int64(len(f.sheets))})
	f.nextID++
	return nil
}

func (f *fakeService) DeleteSheet(_ context.Context, sheetID int64) error {
	f.deletes++
	for i, s := range f.sheets {
		if s.ID == sheetID {
			f.sheets = append(f.sheets[:i], f.sheets[i+1:]...)
			break
		}
	}
	for i := range f.sheets {
		f.sheets[i].Index = int64(i)
	}
	return nil
}

func (f *fakeService) RenameSheet(_ context.Context, sheetID int64, title string) error {
	f.renames++
	for i := range f.sheets {
		if f.sheets[i].ID == sheetID {
			f.sheets[i].Title = title
		}
	}
	return nil
}

func (f *fakeService) ReorderSheets(_ context.Context, order map[int64]int64) error {
	f.reorders++
	for i := range f.sheets {
		if idx, ok := order[f.sheets[i].ID]; ok {
			f.sheets[i].Index = idx
		}
	}
	return nil
}

func (f *fakeService) FreezeHeaderRow(_ context.Context, sheetID int64) error {
	f.frozen[sheetID] = true
	return nil
}

func (f *fakeService) UpdateValues(_ context.Context, rangeA1 string, values [][]interface{}) error {
	f.values[rangeA1] = values
	return nil
}

func (f *fakeService) ClearValues(_ context.Context, rangeA1 string) error {
	f.cleared = append(f.cleared, rangeA1)
	return nil
}

func (f *fakeService) SetFormulas(_ context.Context, sheetID int64, cells []FormulaCell) error {
	f.formulas[sheetID] = append(f.formulas[sheetID], cells...)
	return nil
}

func (f *fakeService) SetValidation(_ context.Context, sheetID int64, rule ValidationRule) error {
	f.validations[sheetID] = append(f.validations[sheetID], rule)
	return nil
}

func (f *fakeService) titles() []string {
	out := make([]string, len(f.sheets))
	for _, s := range f.sheets {
		out[s.Index] = s.Title
	}
	return out
}

func (f *fakeService) idOf(title string) int64 {
	for _, s := range f.sheets {
		if s.Title == title {
			return s.ID
		}
	}
	return -1
}

func amount(v float64) *float64 { return &v }

func sampleTxs() []domain.Transaction {
	return []domain.Transaction{
		{
			Date: "2024-05-10", Description: "SWIGGY ORDER", Amount: amount(120),
			Type: domain.TypeDebit, SourceAccount: "ICICI Savings",
			Category: domain.CategoryFood, IsExpense: domain.IntPtr(1), IsSplit: domain.IntPtr(0),
			ShortDescription: "Swiggy",
		},
		{
			Date: "2024-05-12", Description: "REFUND CREDIT", Amount: amount(120),
			Type: domain.TypeCredit, SourceAccount: "ICICI Savings",
			Category: domain.CategoryRefund, IsExpense: domain.IntPtr(0), IsSplit: domain.IntPtr(0),
		},
		{
			Date: "2024-05-15", Description: "VEGETABLE MARKET", Amount: amount(300),
			Type: domain.TypeDebit, SourceAccount: "Cash",
			Category: domain.CategoryGrocery, IsExpense: domain.IntPtr(1), IsSplit: domain.IntPtr(1),
		},
	}
}

func TestTargetSheets(t *testing.T) {
	txs := []domain.Transaction{
		{SourceAccount: "HDFC Savings"},
		{SourceAccount: "Axis CC"},
		{SourceAccount: "HDFC Savings"},
		{SourceAccount: ""},
		{SourceAccount: UnknownAccount},
		{SourceAccount: "Cash"},
	}

	got := TargetSheets(txs)
	want := []string{"Cash", "Achu", "Final Recon", "Reporting", "Axis CC", "HDFC Savings"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestUpdateWorkbook_FreshWorkbookReusesDefaultTab(t *testing.T) {
	svc := newFakeService("Sheet1")
	txs := sampleTxs()

	if err := UpdateWorkbook(context.Background(), svc, txs); err != nil {
		t.Fatalf("UpdateWorkbook: %v", err)
	}

	want := []string{"Cash", "Achu", "Final Recon", "Reporting", "ICICI Savings"}
	got := svc.titles()
	if len(got) != len(want) {
		t.Fatalf("tabs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tabs = %v, want %v", got, want)
		}
	}
	if svc.renames != 1 {
		t.Errorf("expected the default tab renamed exactly once, got %d renames", svc.renames)
	}
	if svc.deletes != 0 {
		t.Errorf("expected no deletions on a fresh workbook, got %d", svc.deletes)
	}

	// Headers land on every tab and the header row is frozen.
	header := svc.values[cellRange("Final Recon", "A1")]
	if len(header) != 1 || len(header[0]) != 11 {
		t.Fatalf("Final Recon header = %v", header)
	}
	if header[0][7] != "Category Heading" {
		t.Errorf("Final Recon H1 = %v", header[0][7])
	}
	for _, title := range want {
		if !svc.frozen[svc.idOf(title)] {
			t.Errorf("header row not frozen on %q", title)
		}
	}
}

func TestUpdateWorkbook_WritesSignedAmounts(t *testing.T) {
	svc := newFakeService("Sheet1")

	if err := UpdateWorkbook(context.Background(), svc, sampleTxs()); err != nil {
		t.Fatalf("UpdateWorkbook: %v", err)
	}

	rows := svc.values[cellRange("ICICI Savings", "A2:G3")]
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows on ICICI Savings, got %d", len(rows))
	}
	if rows[0][5] != 120.0 {
		t.Errorf("debit amount = %v, want 120", rows[0][5])
	}
	if rows[1][5] != -120.0 {
		t.Errorf("credit amount = %v, want -120", rows[1][5])
	}
	if rows[0][0] != "10/05/2024" {
		t.Errorf("display date = %v, want 10/05/2024", rows[0][0])
	}
	if rows[0][2] != "Food" {
		t.Errorf("category cell = %v", rows[0][2])
	}
}

func TestUpdateWorkbook_Idempotent(t *testing.T) {
	svc := newFakeService("Sheet1")
	txs := sampleTxs()

	if err := UpdateWorkbook(context.Background(), svc, txs); err != nil {
		t.Fatalf("first run: %v", err)
	}
	svc.adds, svc.deletes, svc.renames, svc.reorders = 0, 0, 0, 0

	if err := UpdateWorkbook(context.Background(), svc, txs); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if svc.adds != 0 || svc.deletes != 0 || svc.renames != 0 || svc.reorders != 0 {
		t.Errorf("second run mutated tabs: adds=%d deletes=%d renames=%d reorders=%d",
			svc.adds, svc.deletes, svc.renames, svc.reorders)
	}
}

func TestUpdateWorkbook_DeletesStaleAccountTabs(t *testing.T) {
	svc := newFakeService("Cash", "Achu", "Final Recon", "Reporting", "Old Bank")

	if err := UpdateWorkbook(context.Background(), svc, sampleTxs()); err != nil {
		t.Fatalf("UpdateWorkbook: %v", err)
	}

	for _, s := range svc.sheets {
		if s.Title == "Old Bank" {
			t.Error("stale account tab was not deleted")
		}
	}
	if svc.idOf("ICICI Savings") < 0 {
		t.Error("new account tab was not added")
	}
}

func TestUpdateWorkbook_SkipsUnknownAccountRows(t *testing.T) {
	svc := newFakeService("Sheet1")
	txs := append(sampleTxs(), domain.Transaction{
		Date: "2024-05-20", Description: "MYSTERY", Amount: amount(50),
		Type: domain.TypeDebit, SourceAccount: UnknownAccount,
		Category: domain.CategoryUncategorized, IsExpense: domain.IntPtr(1), IsSplit: domain.IntPtr(0),
	})

	if err := UpdateWorkbook(context.Background(), svc, txs); err != nil {
		t.Fatalf("UpdateWorkbook: %v", err)
	}

	if svc.idOf(UnknownAccount) >= 0 {
		t.Error("a tab was created for the unknown account")
	}
}

func TestRowFormulas_SplitSemantics(t *testing.T) {
	tests := []struct {
		name     string
		sheet    string
		wantAppu string
		wantAchu string
	}{
		{
			name:     "account sheet",
			sheet:    "ICICI Savings",
			wantAppu: "=IF(G2=2, 0, IF(G2=1, F2/2, F2))",
			wantAchu: "=IF(G2=2, F2, IF(G2=1, F2/2, 0))",
		},
		{
			name:     "achu sheet variant",
			sheet:    "Achu",
			wantAppu: "=IF(G2=0, F2, IF(G2=1, F2/2, IF(G2=2, 0, 0)))",
			wantAchu: "=IF(G2=0, 0, IF(G2=1, F2/2, IF(G2=2, F2, 0)))",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := RowFormulas(tt.sheet, 3)
			if len(cells) != 6 {
				t.Fatalf("expected 6 formula cells for 3 rows, got %d", len(cells))
			}
			if cells[0].Col != 8 || cells[0].Row != 2 || cells[0].Formula != tt.wantAppu {
				t.Errorf("Appu H2 = %q, want %q", cells[0].Formula, tt.wantAppu)
			}
			if cells[1].Col != 9 || cells[1].Row != 2 || cells[1].Formula != tt.wantAchu {
				t.Errorf("Achu I2 = %q, want %q", cells[1].Formula, tt.wantAchu)
			}
			last := cells[len(cells)-1]
			if last.Row != 4 || !strings.Contains(last.Formula, "F4") {
				t.Errorf("last formula row = %d (%q), want row 4", last.Row, last.Formula)
			}
		})
	}
}

func TestUpdateWorkbook_AppliesValidation(t *testing.T) {
	svc := newFakeService("Sheet1")

	if err := UpdateWorkbook(context.Background(), svc, sampleTxs()); err != nil {
		t.Fatalf("UpdateWorkbook: %v", err)
	}

	rules := svc.validations[svc.idOf("ICICI Savings")]
	if len(rules) != 3 {
		t.Fatalf("expected 3 validation rules, got %d", len(rules))
	}

	byCol := make(map[int64]ValidationRule)
	for _, r := range rules {
		byCol[r.Col] = r
	}

	cat, ok := byCol[3]
	if !ok {
		t.Fatal("no category validation on column C")
	}
	if cat.StartRow != 2 || cat.EndRow != 3 {
		t.Errorf("category validation rows %d-%d, want 2-3", cat.StartRow, cat.EndRow)
	}
	for _, v := range cat.Values {
		if v == string(domain.CategoryUncategorized) {
			t.Error("fallback category must not appear in the dropdown")
		}
	}

	if split, ok := byCol[7]; !ok || len(split.Values) != 3 {
		t.Errorf("split validation on column G = %+v", split)
	}
	if expense, ok := byCol[2]; !ok || len(expense.Values) != 2 {
		t.Errorf("expense validation on column B = %+v", expense)
	}
}

func TestUpdateWorkbook_FinalReconFormulas(t *testing.T) {
	svc := newFakeService("Sheet1")

	if err := UpdateWorkbook(context.Background(), svc, sampleTxs()); err != nil {
		t.Fatalf("UpdateWorkbook: %v", err)
	}

	cells := svc.formulas[svc.idOf("Final Recon")]
	if len(cells) != 5 {
		t.Fatalf("expected 5 aggregation formulas, got %d", len(cells))
	}
	agg := cells[0]
	if agg.Row != 2 || agg.Col != 1 {
		t.Fatalf("aggregation formula at R%dC%d, want A2", agg.Row, agg.Col)
	}
	for _, source := range []string{"Cash", "Achu", "ICICI Savings"} {
		if !strings.Contains(agg.Formula, fmt.Sprintf("'%s'!C2:C", source)) {
			t.Errorf("aggregation formula missing source %q", source)
		}
	}
	if strings.Contains(agg.Formula, "'Final Recon'!") || strings.Contains(agg.Formula, "'Reporting'!") {
		t.Error("aggregation formula must not read from Final Recon or Reporting")
	}
}

func TestBuildReconQuery_EmptySources(t *testing.T) {
	got := BuildReconQuery(nil)
	if !strings.Contains(got, "No source sheets found") {
		t.Errorf("empty-source formula = %q", got)
	}
}
