package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/appunni/budgeauto/internal/ai"
	"github.com/appunni/budgeauto/internal/archive"
	"github.com/appunni/budgeauto/internal/checkpoint"
	"github.com/appunni/budgeauto/internal/config"
	"github.com/appunni/budgeauto/internal/domain"
	"github.com/appunni/budgeauto/internal/enrich"
	"github.com/appunni/budgeauto/internal/extract"
	"github.com/appunni/budgeauto/internal/gauth"
	"github.com/appunni/budgeauto/internal/gmailfetch"
	"github.com/appunni/budgeauto/internal/logger"
	"github.com/appunni/budgeauto/internal/pipeline"
	"github.com/appunni/budgeauto/internal/sheets"
)

func main() {
	var (
		preview   = flag.Bool("preview", false, "review each statement's transactions before they join the batch")
		yes       = flag.Bool("yes", false, "skip the final confirmation before writing the workbook")
		authorize = flag.Bool("authorize", false, "run the OAuth authorization flow and exit")
		yearFlag  = flag.Int("year", 0, "target year (default: previous month's year)")
		monthFlag = flag.Int("month", 0, "target month 1-12 (default: previous month)")
	)
	flag.Parse()

	log := logger.New()
	runLog := log.With().Str("run_id", uuid.NewString()).Logger()
	ctx := logger.WithContext(context.Background(), runLog)

	cfg, err := config.Load()
	if err != nil {
		runLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	auth, err := gauth.New(cfg.OAuthClientFile, cfg.TokenFile)
	if err != nil {
		runLog.Fatal().Err(err).Msg("Failed to load OAuth client configuration")
	}

	if *authorize {
		if err := auth.Authorize(ctx, os.Stdin, os.Stdout); err != nil {
			runLog.Fatal().Err(err).Msg("Authorization flow failed")
		}
		return
	}

	year, month := pipeline.PreviousMonth(time.Now())
	if *yearFlag != 0 {
		year = *yearFlag
	}
	if *monthFlag != 0 {
		if *monthFlag < 1 || *monthFlag > 12 {
			runLog.Fatal().Int("month", *monthFlag).Msg("Month must be between 1 and 12")
		}
		month = time.Month(*monthFlag)
	}
	runLog.Info().Int("year", year).Str("month", month.String()).Msg("Starting budget automation run")

	tokens, err := auth.TokenSource(ctx)
	if err != nil {
		runLog.Fatal().Err(err).Msg("Failed to obtain OAuth credentials")
	}

	model, err := ai.NewClient(ctx, cfg.ModelName)
	if err != nil {
		runLog.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	fetcher, err := gmailfetch.New(ctx, tokens, cfg.DownloadDir)
	if err != nil {
		runLog.Fatal().Err(err).Msg("Failed to create Gmail client")
	}

	workbooks, err := sheets.NewDriveWorkbooks(ctx, tokens, cfg.BudgetFolderID)
	if err != nil {
		runLog.Fatal().Err(err).Msg("Failed to create Drive client")
	}

	extractor := &extract.Extractor{
		Opener:       extract.WholeFileOpener{},
		Pages:        &extract.VisionExtractor{Client: model},
		Accounts:     &extract.GeminiAccountMatcher{Client: model},
		Passwords:    cfg.PDFPasswords,
		AccountNames: cfg.AccountNames,
	}
	if *preview {
		extractor.Review = reviewPrompt
	}

	deps := pipeline.Deps{
		Store:      checkpoint.NewStore(cfg.CheckpointDir),
		Fetcher:    fetcher,
		Extractor:  extractor,
		Classifier: &enrich.GeminiClassifier{Client: model},
		Reconciler: &sheets.Reconciler{Workbooks: workbooks},
	}
	if cfg.ArchiveBucket != "" {
		deps.Archiver = &archive.Uploader{Bucket: cfg.ArchiveBucket}
	}
	if !*yes {
		deps.Confirm = confirmPrompt
	}

	state := &pipeline.State{Year: year, Month: month}
	if err := pipeline.NewMonthlyPipeline(deps).Execute(ctx, state); err != nil {
		runLog.Fatal().Err(err).Msg("Budget automation run failed")
	}

	if state.Halted {
		runLog.Info().Msg("Run stopped before the workbook was written")
		return
	}
	runLog.Info().Str("workbook", sheets.WorkbookName(year, month)).Msg("Budget automation run complete")
}

// reviewPrompt shows one document's extracted transactions and asks what to
// do with them: accept, skip this document, or stop the whole run.
func reviewPrompt(doc string, txs []domain.Transaction) extract.ReviewDecision {
	fmt.Printf("\n--- %s: %d transactions ---\n", doc, len(txs))
	for _, tx := range txs {
		amount := ""
		if tx.Amount != nil {
			amount = fmt.Sprintf("%.2f", *tx.Amount)
		}
		fmt.Printf("  %-12s %-8s %10s  %s\n", tx.Date, tx.Type, amount, tx.Description)
	}
	fmt.Print("Press Enter to accept, s to skip this document, q to quit: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return extract.ReviewAbort
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s":
		return extract.ReviewDiscard
	case "q":
		return extract.ReviewAbort
	default:
		return extract.ReviewAccept
	}
}

// confirmPrompt is the last gate before the workbook is touched.
func confirmPrompt(count int) bool {
	fmt.Printf("Proceed with writing %d transactions to Google Sheets? (yes/no): ", count)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.ToLower(strings.TrimSpace(line)) == "yes"
}
