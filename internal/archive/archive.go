// Package archive copies fetched statement PDFs to a Cloud Storage bucket
// so the originals survive mailbox retention. Archival is best-effort: a
// failed upload never blocks the bookkeeping run.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"

	"github.com/appunni/budgeauto/internal/extract"
	"github.com/appunni/budgeauto/internal/logger"
)

// Uploader stores statement files under statements/<year>/<filename> in the
// configured bucket. It relies on Application Default Credentials.
type Uploader struct {
	Bucket string
}

// Archive uploads every document, logging and continuing on failure.
func (u *Uploader) Archive(ctx context.Context, docs []extract.Document, year int) {
	log := logger.FromContext(ctx)

	if u.Bucket == "" {
		return
	}

	var uploaded int
	for _, doc := range docs {
		object := fmt.Sprintf("statements/%d/%s", year, path.Base(doc.Path))
		if err := uploadFile(ctx, u.Bucket, object, doc.Path); err != nil {
			log.Warn().Err(err).Str("document", doc.Path).Str("object", object).Msg("Could not archive statement")
			continue
		}
		uploaded++
	}
	log.Info().Int("uploaded", uploaded).Int("total", len(docs)).Str("bucket", u.Bucket).Msg("Archived statements")
}

func uploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy file to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize GCS object: %w", err)
	}
	return nil
}
