package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the pipeline needs from the environment. Values
// come from a .env file in the working directory when present, with the
// process environment taking precedence.
type Config struct {
	// OAuthClientFile is the OAuth desktop-client secret JSON.
	OAuthClientFile string
	// TokenFile stores the authorized user token between runs.
	TokenFile string
	// BudgetFolderID is the Drive folder holding the per-year subfolders.
	BudgetFolderID string
	// DownloadDir receives statement PDFs fetched from email.
	DownloadDir string
	// CheckpointDir holds the two pipeline checkpoint files.
	CheckpointDir string
	// PDFPasswords are tried in order against encrypted statements.
	PDFPasswords []string
	// AccountNames is the closed list the account matcher may choose from.
	AccountNames []string
	// ArchiveBucket, when set, receives a GCS copy of every fetched PDF.
	ArchiveBucket string
	// ModelName is the Gemini model used for extraction and categorization.
	ModelName string
}

// DefaultAccountNames mirrors the accounts statements normally arrive for.
// ACCOUNT_NAMES in the environment overrides the list wholesale.
var DefaultAccountNames = []string{
	"Canara Savings",
	"HDFC Savings",
	"ICIC Saphirro CC",
	"ICIC Amazon CC",
	"HDFC Regalia CC",
	"HDFC Swiggy CC",
	"Cash",
	"Achu",
}

// Load reads .env (if present) and the environment into a Config.
func Load() (*Config, error) {
	// A missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg := &Config{
		OAuthClientFile: os.Getenv("OAUTH_CREDENTIALS_FILE"),
		TokenFile:       getenvDefault("OAUTH_TOKEN_FILE", "token.json"),
		BudgetFolderID:  os.Getenv("DRIVE_BUDGET_FOLDER_ID"),
		DownloadDir:     getenvDefault("PDF_DOWNLOAD_PATH", "downloads"),
		CheckpointDir:   getenvDefault("CHECKPOINT_DIR", "."),
		PDFPasswords:    splitList(os.Getenv("PDF_PASSWORDS")),
		AccountNames:    DefaultAccountNames,
		ArchiveBucket:   os.Getenv("ARCHIVE_BUCKET"),
		ModelName:       getenvDefault("GEMINI_MODEL", "gemini-1.5-flash"),
	}

	if names := splitList(os.Getenv("ACCOUNT_NAMES")); len(names) > 0 {
		cfg.AccountNames = names
	}

	if cfg.OAuthClientFile == "" {
		return nil, fmt.Errorf("config: OAUTH_CREDENTIALS_FILE is not set")
	}
	if cfg.BudgetFolderID == "" {
		return nil, fmt.Errorf("config: DRIVE_BUDGET_FOLDER_ID is not set")
	}

	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
