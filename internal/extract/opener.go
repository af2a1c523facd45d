package extract

import (
	"bytes"
	"fmt"
	"os"
)

// WholeFileOpener serves a PDF as a single application/pdf page, matching
// the model's native PDF understanding, so no local rasterization is needed.
// It cannot decrypt: an encrypted file reports ErrPasswordRequired for every
// attempt and the document ends up skipped. Swap in an Opener backed by a
// real PDF toolkit to handle password-protected statements page by page.
type WholeFileOpener struct{}

func (WholeFileOpener) Open(path, password string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extract: read %s: %w", path, err)
	}
	if bytes.Contains(data, []byte("/Encrypt")) {
		return nil, ErrPasswordRequired
	}
	return []Page{{MIMEType: "application/pdf", Data: data}}, nil
}
