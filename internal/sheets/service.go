// Package sheets owns the month's workbook: locating it in Drive, making
// the set of tabs match the transaction data, and writing rows, formulas
// and validation rules. All Sheets API access goes through the Service
// interface so the reconciliation engine is testable without the network.
package sheets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetInfo describes one tab of a workbook.
type SheetInfo struct {
	ID    int64
	Title string
	Index int64
}

// FormulaCell is one formula destined for a single cell. Row and Col are
// 1-based.
type FormulaCell struct {
	Row     int64
	Col     int64
	Formula string
}

// ValidationRule constrains a single column to a list of values over a row
// range. Rows are 1-based and inclusive.
type ValidationRule struct {
	StartRow     int64
	EndRow       int64
	Col          int64
	Values       []string
	InputMessage string
	Strict       bool
}

// Service is the workbook surface the reconciliation engine needs.
type Service interface {
	ListSheets(ctx context.Context) ([]SheetInfo, error)
	AddSheet(ctx context.Context, title string) error
	DeleteSheet(ctx context.Context, sheetID int64) error
	RenameSheet(ctx context.Context, sheetID int64, title string) error
	ReorderSheets(ctx context.Context, order map[int64]int64) error
	FreezeHeaderRow(ctx context.Context, sheetID int64) error
	UpdateValues(ctx context.Context, rangeA1 string, values [][]interface{}) error
	ClearValues(ctx context.Context, rangeA1 string) error
	SetFormulas(ctx context.Context, sheetID int64, cells []FormulaCell) error
	SetValidation(ctx context.Context, sheetID int64, rule ValidationRule) error
}

// googleService binds Service to one spreadsheet through the Sheets API.
type googleService struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewGoogleService returns a Service for the given spreadsheet.
func NewGoogleService(ctx context.Context, ts oauth2.TokenSource, spreadsheetID string) (Service, error) {
	svc, err := sheets.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("sheets: build service: %w", err)
	}
	return &googleService{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (g *googleService) ListSheets(ctx context.Context) ([]SheetInfo, error) {
	resp, err := g.svc.Spreadsheets.Get(g.spreadsheetID).
		Fields("sheets(properties(sheetId,title,index))").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: get spreadsheet metadata: %w", err)
	}
	infos := make([]SheetInfo, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		infos = append(infos, SheetInfo{
			ID:    s.Properties.SheetId,
			Title: s.Properties.Title,
			Index: s.Properties.Index,
		})
	}
	return infos, nil
}

func (g *googleService) batchUpdate(ctx context.Context, reqs ...*sheets.Request) error {
	_, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	return err
}

func (g *googleService) AddSheet(ctx context.Context, title string) error {
	err := g.batchUpdate(ctx, &sheets.Request{
		AddSheet: &sheets.AddSheetRequest{
			Properties: &sheets.SheetProperties{
				Title: title,
				GridProperties: &sheets.GridProperties{
					RowCount:    100,
					ColumnCount: 20,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sheets: add sheet %q: %w", title, err)
	}
	return nil
}

func (g *googleService) DeleteSheet(ctx context.Context, sheetID int64) error {
	err := g.batchUpdate(ctx, &sheets.Request{
		DeleteSheet: &sheets.DeleteSheetRequest{SheetId: sheetID},
	})
	if err != nil {
		return fmt.Errorf("sheets: delete sheet %d: %w", sheetID, err)
	}
	return nil
}

func (g *googleService) RenameSheet(ctx context.Context, sheetID int64, title string) error {
	err := g.batchUpdate(ctx, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{SheetId: sheetID, Title: title},
			Fields:     "title",
		},
	})
	if err != nil {
		return fmt.Errorf("sheets: rename sheet %d to %q: %w", sheetID, title, err)
	}
	return nil
}

func (g *googleService) ReorderSheets(ctx context.Context, order map[int64]int64) error {
	reqs := make([]*sheets.Request, 0, len(order))
	for sheetID, index := range order {
		reqs = append(reqs, &sheets.Request{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:         sheetID,
					Index:           index,
					ForceSendFields: []string{"Index"},
				},
				Fields: "index",
			},
		})
	}
	if len(reqs) == 0 {
		return nil
	}
	if err := g.batchUpdate(ctx, reqs...); err != nil {
		return fmt.Errorf("sheets: reorder sheets: %w", err)
	}
	return nil
}

func (g *googleService) FreezeHeaderRow(ctx context.Context, sheetID int64) error {
	err := g.batchUpdate(ctx, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:        sheetID,
				GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
			},
			Fields: "gridProperties.frozenRowCount",
		},
	})
	if err != nil {
		return fmt.Errorf("sheets: freeze header row on sheet %d: %w", sheetID, err)
	}
	return nil
}

func (g *googleService) UpdateValues(ctx context.Context, rangeA1 string, values [][]interface{}) error {
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, rangeA1, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: update values %s: %w", rangeA1, err)
	}
	return nil
}

func (g *googleService) ClearValues(ctx context.Context, rangeA1 string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, rangeA1, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: clear values %s: %w", rangeA1, err)
	}
	return nil
}

func (g *googleService) SetFormulas(ctx context.Context, sheetID int64, cells []FormulaCell) error {
	reqs := make([]*sheets.Request, 0, len(cells))
	for _, cell := range cells {
		formula := cell.Formula
		reqs = append(reqs, &sheets.Request{
			UpdateCells: &sheets.UpdateCellsRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    cell.Row - 1,
					EndRowIndex:      cell.Row,
					StartColumnIndex: cell.Col - 1,
					EndColumnIndex:   cell.Col,
				},
				Rows: []*sheets.RowData{{
					Values: []*sheets.CellData{{
						UserEnteredValue: &sheets.ExtendedValue{FormulaValue: &formula},
					}},
				}},
				Fields: "userEnteredValue.formulaValue",
			},
		})
	}
	if len(reqs) == 0 {
		return nil
	}
	if err := g.batchUpdate(ctx, reqs...); err != nil {
		return fmt.Errorf("sheets: set formulas on sheet %d: %w", sheetID, err)
	}
	return nil
}

func (g *googleService) SetValidation(ctx context.Context, sheetID int64, rule ValidationRule) error {
	values := make([]*sheets.ConditionValue, 0, len(rule.Values))
	for _, v := range rule.Values {
		values = append(values, &sheets.ConditionValue{UserEnteredValue: v})
	}
	err := g.batchUpdate(ctx, &sheets.Request{
		SetDataValidation: &sheets.SetDataValidationRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    rule.StartRow - 1,
				EndRowIndex:      rule.EndRow,
				StartColumnIndex: rule.Col - 1,
				EndColumnIndex:   rule.Col,
			},
			Rule: &sheets.DataValidationRule{
				Condition: &sheets.BooleanCondition{
					Type:   "ONE_OF_LIST",
					Values: values,
				},
				InputMessage: rule.InputMessage,
				ShowCustomUi: true,
				Strict:       rule.Strict,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sheets: set validation on sheet %d: %w", sheetID, err)
	}
	return nil
}
