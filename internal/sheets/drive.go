package sheets

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/appunni/budgeauto/internal/logger"
)

const (
	folderMIMEType      = "application/vnd.google-apps.folder"
	spreadsheetMIMEType = "application/vnd.google-apps.spreadsheet"
)

// Workbooks locates (or creates) the month's workbook and hands back a
// Service bound to it.
type Workbooks interface {
	EnsureWorkbook(ctx context.Context, year int, month time.Month) (Service, error)
}

// DriveWorkbooks places workbooks under a year subfolder of the configured
// budget folder, named Accounts-<year>-<MonthName>.
type DriveWorkbooks struct {
	drive          *drive.Service
	tokens         oauth2.TokenSource
	budgetFolderID string
}

// NewDriveWorkbooks builds the Drive-backed workbook locator.
func NewDriveWorkbooks(ctx context.Context, ts oauth2.TokenSource, budgetFolderID string) (*DriveWorkbooks, error) {
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("drive: build service: %w", err)
	}
	return &DriveWorkbooks{drive: svc, tokens: ts, budgetFolderID: budgetFolderID}, nil
}

// WorkbookName returns the naming convention for a month's workbook.
func WorkbookName(year int, month time.Month) string {
	return fmt.Sprintf("Accounts-%d-%s", year, month.String())
}

// EnsureWorkbook finds the year folder (creating it if missing), then the
// workbook inside it (creating it blank if missing), and returns a Service
// for it. Any failure here is fatal to the reconcile stage.
func (w *DriveWorkbooks) EnsureWorkbook(ctx context.Context, year int, month time.Month) (Service, error) {
	log := logger.FromContext(ctx)

	yearFolder, err := w.findOrCreateFolder(ctx, w.budgetFolderID, strconv.Itoa(year))
	if err != nil {
		return nil, fmt.Errorf("drive: year folder %d: %w", year, err)
	}

	name := WorkbookName(year, month)
	id, err := w.findFile(ctx, yearFolder, name, spreadsheetMIMEType)
	if err != nil {
		return nil, fmt.Errorf("drive: find workbook %q: %w", name, err)
	}
	if id == "" {
		log.Info().Str("workbook", name).Str("folder", yearFolder).Msg("Workbook not found, creating a blank one")
		created, err := w.drive.Files.Create(&drive.File{
			Name:     name,
			MimeType: spreadsheetMIMEType,
			Parents:  []string{yearFolder},
		}).Fields("id").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("drive: create workbook %q: %w", name, err)
		}
		id = created.Id
	} else {
		log.Info().Str("workbook", name).Str("id", id).Msg("Found existing workbook")
	}

	return NewGoogleService(ctx, w.tokens, id)
}

func (w *DriveWorkbooks) findOrCreateFolder(ctx context.Context, parentID, name string) (string, error) {
	id, err := w.findFile(ctx, parentID, name, folderMIMEType)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	log := logger.FromContext(ctx)
	log.Info().Str("folder", name).Str("parent", parentID).Msg("Creating Drive folder")
	created, err := w.drive.Files.Create(&drive.File{
		Name:     name,
		MimeType: folderMIMEType,
		Parents:  []string{parentID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create folder %q: %w", name, err)
	}
	return created.Id, nil
}

func (w *DriveWorkbooks) findFile(ctx context.Context, parentID, name, mimeType string) (string, error) {
	query := fmt.Sprintf("mimeType='%s' and name='%s' and '%s' in parents and trashed=false",
		mimeType, escapeDriveQuery(name), parentID)
	resp, err := w.drive.Files.List().
		Q(query).
		Spaces("drive").
		Fields("files(id, name)").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("search %q: %w", name, err)
	}
	if len(resp.Files) == 0 {
		return "", nil
	}
	return resp.Files[0].Id, nil
}

func escapeDriveQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}
