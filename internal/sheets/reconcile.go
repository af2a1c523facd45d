package sheets

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/appunni/budgeauto/internal/domain"
	"github.com/appunni/budgeauto/internal/logger"
)

const (
	sheetCash       = "Cash"
	sheetAchu       = "Achu"
	sheetFinalRecon = "Final Recon"
	sheetReporting  = "Reporting"
)

// UnknownAccount mirrors the extraction-side placeholder; its transactions
// never get a sheet of their own.
const UnknownAccount = "Unknown Account"

var accountHeaders = []string{
	"Txn Date", "is Expense", "Category", "Short Description", "Description",
	"Cost", "Is Split", "Appu", "Achu",
}

var finalReconHeaders = []string{
	"Source", "Category", "Appu Expense", "Achu Expense", "Description",
	"Actual Amount", "", "Category Heading", "Appu", "Achu", "Actual amount",
}

// Reconciler is the pipeline-facing entry point: it locates the month's
// workbook and brings it in line with the transaction set.
type Reconciler struct {
	Workbooks Workbooks
}

func (r *Reconciler) Reconcile(ctx context.Context, txs []domain.Transaction, year int, month time.Month) error {
	svc, err := r.Workbooks.EnsureWorkbook(ctx, year, month)
	if err != nil {
		return err
	}
	return UpdateWorkbook(ctx, svc, txs)
}

// TargetSheets returns the tab list the workbook must converge to: the four
// fixed sheets followed by each distinct source account in sorted order.
// Blank and unknown accounts are excluded, as are accounts shadowing a
// fixed sheet name.
func TargetSheets(txs []domain.Transaction) []string {
	base := []string{sheetCash, sheetAchu, sheetFinalRecon, sheetReporting}
	inBase := make(map[string]bool, len(base))
	for _, name := range base {
		inBase[name] = true
	}

	seen := make(map[string]bool)
	var accounts []string
	for _, tx := range txs {
		name := tx.SourceAccount
		if name == "" || name == UnknownAccount || inBase[name] || seen[name] {
			continue
		}
		seen[name] = true
		accounts = append(accounts, name)
	}
	sort.Strings(accounts)

	return append(base, accounts...)
}

// UpdateWorkbook makes the workbook match the transaction set: tab sync,
// headers, data rows, share formulas, reconciliation formulas and input
// validation. Per-sheet API failures are logged and skipped; only the tab
// sync itself is fatal.
func UpdateWorkbook(ctx context.Context, svc Service, txs []domain.Transaction) error {
	log := logger.FromContext(ctx)

	targets := TargetSheets(txs)
	log.Info().Strs("sheets", targets).Msg("Synchronizing workbook tabs")

	ids, err := syncSheets(ctx, svc, targets)
	if err != nil {
		return fmt.Errorf("sync sheets: %w", err)
	}

	writeHeaders(ctx, svc, ids, targets)

	rowCounts := populateData(ctx, svc, txs, targets, ids)

	applyRowFormulas(ctx, svc, ids, rowCounts)
	applyFinalReconFormulas(ctx, svc, ids, dataSheets(targets))
	applyValidation(ctx, svc, ids, rowCounts)

	log.Info().Msg("Workbook update finished")
	return nil
}

// dataSheets returns the targets that hold transaction rows, in target
// order: everything except the reconciliation and reporting tabs.
func dataSheets(targets []string) []string {
	out := make([]string, 0, len(targets))
	for _, name := range targets {
		if name == sheetFinalRecon || name == sheetReporting {
			continue
		}
		out = append(out, name)
	}
	return out
}

// syncSheets converges the workbook's tabs onto the target list and returns
// the resulting title-to-sheetID map. Extra tabs are deleted; when no
// targeted tab exists yet, one leftover (typically the blank workbook's
// default) is reused by renaming instead. The shape of the final list is
// enforced with one batched reorder. Running it twice is a no-op.
func syncSheets(ctx context.Context, svc Service, targets []string) (map[string]int64, error) {
	log := logger.FromContext(ctx)

	existing, err := svc.ListSheets(ctx)
	if err != nil {
		return nil, err
	}

	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	var kept, extras []SheetInfo
	for _, s := range existing {
		if targetSet[s.Title] {
			kept = append(kept, s)
		} else {
			extras = append(extras, s)
		}
	}

	if len(kept) == 0 && len(extras) > 0 {
		reuse := extras[0]
		log.Info().Str("from", reuse.Title).Str("to", targets[0]).Msg("Reusing leftover tab by renaming")
		if err := svc.RenameSheet(ctx, reuse.ID, targets[0]); err != nil {
			log.Warn().Err(err).Str("sheet", reuse.Title).Msg("Could not rename leftover tab, keeping it")
		} else {
			reuse.Title = targets[0]
			kept = append(kept, reuse)
			extras = extras[1:]
		}
	}

	for _, s := range extras {
		if len(kept) == 0 {
			// A workbook cannot lose its last tab.
			log.Warn().Str("sheet", s.Title).Msg("Keeping stray tab, it is the only one left")
			continue
		}
		log.Info().Str("sheet", s.Title).Msg("Deleting tab not in target list")
		if err := svc.DeleteSheet(ctx, s.ID); err != nil {
			log.Error().Err(err).Str("sheet", s.Title).Msg("Could not delete tab")
		}
	}

	have := make(map[string]bool, len(kept))
	for _, s := range kept {
		have[s.Title] = true
	}
	for _, t := range targets {
		if have[t] {
			continue
		}
		log.Info().Str("sheet", t).Msg("Adding missing tab")
		if err := svc.AddSheet(ctx, t); err != nil {
			log.Error().Err(err).Str("sheet", t).Msg("Could not add tab")
		}
	}

	final, err := svc.ListSheets(ctx)
	if err != nil {
		return nil, err
	}

	position := make(map[string]int64, len(targets))
	for i, t := range targets {
		position[t] = int64(i)
	}
	order := make(map[int64]int64)
	ids := make(map[string]int64, len(final))
	for _, s := range final {
		ids[s.Title] = s.ID
		if want, ok := position[s.Title]; ok && s.Index != want {
			order[s.ID] = want
		}
	}
	if len(order) > 0 {
		if err := svc.ReorderSheets(ctx, order); err != nil {
			log.Warn().Err(err).Msg("Could not reorder tabs")
		}
	}

	return ids, nil
}

func headersFor(title string) []string {
	if title == sheetFinalRecon {
		return finalReconHeaders
	}
	return accountHeaders
}

func writeHeaders(ctx context.Context, svc Service, ids map[string]int64, targets []string) {
	log := logger.FromContext(ctx)
	for _, title := range targets {
		id, ok := ids[title]
		if !ok {
			log.Warn().Str("sheet", title).Msg("Tab missing after sync, skipping headers")
			continue
		}
		row := make([]interface{}, len(headersFor(title)))
		for i, h := range headersFor(title) {
			row[i] = h
		}
		if err := svc.UpdateValues(ctx, cellRange(title, "A1"), [][]interface{}{row}); err != nil {
			log.Error().Err(err).Str("sheet", title).Msg("Could not write headers")
			continue
		}
		if err := svc.FreezeHeaderRow(ctx, id); err != nil {
			log.Warn().Err(err).Str("sheet", title).Msg("Could not freeze header row")
		}
	}
}

// populateData writes each account's transactions into its tab and returns
// the per-tab populated row counts.
func populateData(ctx context.Context, svc Service, txs []domain.Transaction, targets []string, ids map[string]int64) map[string]int {
	log := logger.FromContext(ctx)

	eligible := make(map[string]bool)
	for _, name := range dataSheets(targets) {
		eligible[name] = true
	}

	groups := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		groups[tx.SourceAccount] = append(groups[tx.SourceAccount], tx)
	}

	rowCounts := make(map[string]int)
	for account, group := range groups {
		if account == "" || account == UnknownAccount {
			log.Warn().Int("count", len(group)).Msg("Skipping transactions without a usable source account")
			continue
		}
		if !eligible[account] {
			log.Warn().Str("account", account).Msg("Account has no target tab, skipping its transactions")
			continue
		}
		if _, ok := ids[account]; !ok {
			log.Warn().Str("sheet", account).Msg("Tab missing after sync, skipping data")
			continue
		}

		if err := svc.ClearValues(ctx, cellRange(account, "A2:I")); err != nil {
			log.Error().Err(err).Str("sheet", account).Msg("Could not clear old rows, attempting to write anyway")
		}

		rows := make([][]interface{}, 0, len(group))
		for _, tx := range group {
			rows = append(rows, transactionRow(ctx, tx))
		}

		endCell := fmt.Sprintf("A2:G%d", len(rows)+1)
		if err := svc.UpdateValues(ctx, cellRange(account, endCell), rows); err != nil {
			log.Error().Err(err).Str("sheet", account).Msg("Could not write rows")
			continue
		}
		log.Info().Str("sheet", account).Int("rows", len(rows)).Msg("Wrote transaction rows")
		rowCounts[account] = len(rows)
	}

	return rowCounts
}

// transactionRow renders one transaction as the seven data columns A-G.
func transactionRow(ctx context.Context, tx domain.Transaction) []interface{} {
	log := logger.FromContext(ctx)

	date := ""
	if tx.Date != "" {
		date = domain.FormatDisplayDate(tx.Date)
		if date == "" {
			log.Warn().Str("date", tx.Date).Str("description", tx.Description).Msg("Could not reformat transaction date, writing empty cell")
		}
	}

	var amount interface{} = ""
	if signed, ok := tx.SignedAmount(); ok {
		amount = signed
	}

	var isExpense interface{} = ""
	if tx.IsExpense != nil {
		isExpense = *tx.IsExpense
	}
	var isSplit interface{} = ""
	if tx.IsSplit != nil {
		isSplit = *tx.IsSplit
	}

	return []interface{}{
		date,
		isExpense,
		string(tx.Category),
		tx.ShortDescription,
		tx.Description,
		amount,
		isSplit,
	}
}

// RowFormulas builds the per-row share formulas for columns H (Appu) and
// I (Achu). Column F holds the signed cost and G the split flag: 0 assigns
// the full cost to Appu, 1 halves it, 2 assigns it all to Achu. The Achu
// tab keeps its own phrasing of the same rule.
func RowFormulas(title string, numRows int) []FormulaCell {
	appuTemplate := "=IF(G%d=2, 0, IF(G%d=1, F%d/2, F%d))"
	achuTemplate := "=IF(G%d=2, F%d, IF(G%d=1, F%d/2, 0))"
	if title == sheetAchu {
		appuTemplate = "=IF(G%d=0, F%d, IF(G%d=1, F%d/2, IF(G%d=2, 0, 0)))"
		achuTemplate = "=IF(G%d=0, 0, IF(G%d=1, F%d/2, IF(G%d=2, F%d, 0)))"
	}

	cells := make([]FormulaCell, 0, numRows*2)
	for row := 2; row <= numRows+1; row++ {
		cells = append(cells, FormulaCell{
			Row:     int64(row),
			Col:     8,
			Formula: fillRow(appuTemplate, row),
		}, FormulaCell{
			Row:     int64(row),
			Col:     9,
			Formula: fillRow(achuTemplate, row),
		})
	}
	return cells
}

// fillRow substitutes the row number for every %d in a formula template.
func fillRow(template string, row int) string {
	n := strings.Count(template, "%d")
	args := make([]interface{}, n)
	for i := range args {
		args[i] = row
	}
	return fmt.Sprintf(template, args...)
}

func applyRowFormulas(ctx context.Context, svc Service, ids map[string]int64, rowCounts map[string]int) {
	log := logger.FromContext(ctx)
	for title, numRows := range rowCounts {
		if numRows == 0 {
			continue
		}
		id, ok := ids[title]
		if !ok {
			continue
		}
		if err := svc.SetFormulas(ctx, id, RowFormulas(title, numRows)); err != nil {
			log.Error().Err(err).Str("sheet", title).Msg("Could not apply share formulas")
		}
	}
}

// BuildReconQuery assembles the stacked-FILTER QUERY that aggregates every
// data tab's category, share and cost columns into Final Recon A2.
func BuildReconQuery(sources []string) string {
	if len(sources) == 0 {
		return `="No source sheets found"`
	}

	parts := make([]string, 0, len(sources))
	for _, name := range sources {
		q := quoteSheet(name)
		label := strings.ReplaceAll(name, `"`, `""`)
		parts = append(parts,
			fmt.Sprintf(`FILTER({ARRAYFORMULA(IF(LEN(%[1]s!C2:C),"%[2]s",)), %[1]s!C2:C, %[1]s!H2:H, %[1]s!I2:I, %[1]s!E2:E, %[1]s!F2:F}, LEN(%[1]s!C2:C)>0)`,
				q, label))
	}
	stacked := "{" + strings.Join(parts, "; ") + "}"

	return fmt.Sprintf(`=IFERROR(QUERY(%s, "SELECT Col1, Col2, Col3, Col4, Col5, Col6 WHERE Col2 IS NOT NULL", 0), "No data found")`, stacked)
}

func applyFinalReconFormulas(ctx context.Context, svc Service, ids map[string]int64, sources []string) {
	log := logger.FromContext(ctx)

	id, ok := ids[sheetFinalRecon]
	if !ok {
		log.Warn().Msg("Final Recon tab missing, skipping aggregation formulas")
		return
	}

	for _, r := range []string{"A2:F1000", "H2:K1000"} {
		if err := svc.ClearValues(ctx, cellRange(sheetFinalRecon, r)); err != nil {
			log.Warn().Err(err).Str("range", r).Msg("Could not clear old aggregation range")
		}
	}

	cells := []FormulaCell{
		{Row: 2, Col: 1, Formula: BuildReconQuery(sources)},
		{Row: 2, Col: 8, Formula: `=IFERROR(UNIQUE(FILTER(B2:B, B2:B<>"")), "")`},
		{Row: 2, Col: 9, Formula: `=IF(H2<>"", SUMIFS(C2:C, B2:B, H2), "")`},
		{Row: 2, Col: 10, Formula: `=IF(H2<>"", SUMIFS(D2:D, B2:B, H2), "")`},
		{Row: 2, Col: 11, Formula: `=IF(H2<>"", SUM(I2:J2), "")`},
	}
	if err := svc.SetFormulas(ctx, id, cells); err != nil {
		log.Error().Err(err).Msg("Could not apply aggregation formulas to Final Recon")
	}
}

func applyValidation(ctx context.Context, svc Service, ids map[string]int64, rowCounts map[string]int) {
	log := logger.FromContext(ctx)

	categories := domain.CategoryValidationValues()

	for title, numRows := range rowCounts {
		if numRows == 0 {
			continue
		}
		id, ok := ids[title]
		if !ok {
			continue
		}
		endRow := int64(numRows + 1)

		rules := []ValidationRule{
			{StartRow: 2, EndRow: endRow, Col: 3, Values: categories, InputMessage: "Select a category", Strict: true},
			{StartRow: 2, EndRow: endRow, Col: 2, Values: []string{"0", "1"}, InputMessage: "Enter 0 (Income/Transfer) or 1 (Expense)", Strict: true},
			{StartRow: 2, EndRow: endRow, Col: 7, Values: []string{"0", "1", "2"}, InputMessage: "Select 0 (No), 1 (Split 50/50), or 2 (Achu Only)", Strict: true},
		}
		for _, rule := range rules {
			if err := svc.SetValidation(ctx, id, rule); err != nil {
				log.Error().Err(err).Str("sheet", title).Int64("column", rule.Col).Msg("Could not apply input validation")
			}
		}
	}
}

// cellRange builds an A1-style range qualified with a quoted sheet title.
func cellRange(title, cells string) string {
	return quoteSheet(title) + "!" + cells
}

func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
