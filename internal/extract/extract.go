// Package extract turns downloaded statement documents into raw
// transactions. Page rendering, decryption and the vision model sit behind
// interfaces; the package owns the password retry loop, per-page fault
// isolation, source-account attribution and the optional review gate.
package extract

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/appunni/budgeauto/internal/domain"
	"github.com/appunni/budgeauto/internal/logger"
)

// Document is one downloaded statement plus the email subject it arrived
// under. The subject feeds the rule-based account inference.
type Document struct {
	Path    string
	Subject string
}

// Page is one extractable unit of a document. WholeFileOpener yields a
// single application/pdf page per document; an image-rendering opener
// would yield one page per sheet.
type Page struct {
	MIMEType string
	Data     []byte
}

// ErrPasswordRequired signals the document is encrypted and the supplied
// password (possibly empty) did not open it.
var ErrPasswordRequired = errors.New("extract: document requires a password")

// Opener opens one document with one password attempt. Implementations
// return ErrPasswordRequired when the attempt fails on encryption so the
// extractor can move on to the next configured password.
type Opener interface {
	Open(path, password string) ([]Page, error)
}

// PageExtractor submits one page for structured extraction.
type PageExtractor interface {
	ExtractPage(ctx context.Context, page Page) ([]domain.Transaction, error)
}

// AccountMatcher maps a statement filename to the closest entry of the
// allowed account list. Implementations return an empty string or an error
// on no-match; callers substitute UnknownAccount.
type AccountMatcher interface {
	MatchAccount(ctx context.Context, filename string, allowed []string) (string, error)
}

// ReviewDecision is the outcome of the per-document review gate.
type ReviewDecision int

const (
	ReviewAccept ReviewDecision = iota
	ReviewDiscard
	ReviewAbort
)

// ReviewFunc is called after each document's transactions are extracted and
// before they join the batch. A nil ReviewFunc accepts everything.
type ReviewFunc func(doc string, txs []domain.Transaction) ReviewDecision

// ErrAborted is returned when the review gate asks to stop the whole run.
var ErrAborted = errors.New("extract: run aborted at review gate")

// secondaryPartyToken pre-seeds is_split=2 when it shows up in a
// description; the enrichment stage may still overwrite it.
const secondaryPartyToken = "achu"

// Extractor runs the extraction stage over a set of documents.
type Extractor struct {
	Opener       Opener
	Pages        PageExtractor
	Accounts     AccountMatcher
	Passwords    []string
	AccountNames []string
	Review       ReviewFunc
}

// ExtractAll processes the documents sequentially and returns every
// extracted transaction. An unopenable document contributes zero
// transactions; only a review-gate abort stops the run.
func (e *Extractor) ExtractAll(ctx context.Context, docs []Document) ([]domain.Transaction, error) {
	log := logger.FromContext(ctx)

	var all []domain.Transaction
	for _, doc := range docs {
		txs, err := e.extractDocument(ctx, doc)
		if errors.Is(err, ErrAborted) {
			return nil, err
		}
		if err != nil {
			log.Warn().Err(err).Str("document", doc.Path).Msg("Skipping document")
			continue
		}
		all = append(all, txs...)
	}

	log.Info().Int("total", len(all)).Int("documents", len(docs)).Msg("Finished extracting raw transactions")
	return all, nil
}

func (e *Extractor) extractDocument(ctx context.Context, doc Document) ([]domain.Transaction, error) {
	log := logger.FromContext(ctx)
	base := filepath.Base(doc.Path)

	log.Info().Str("document", base).Str("subject", doc.Subject).Msg("Processing statement document")

	pages, ok := e.openWithPasswords(ctx, doc.Path)
	if !ok {
		log.Warn().Str("document", base).Msg("Could not open document with any configured password, contributing zero transactions")
		return nil, nil
	}

	account := e.resolveAccount(ctx, base, doc.Subject)

	var txs []domain.Transaction
	for i, page := range pages {
		pageTxs, err := e.Pages.ExtractPage(ctx, page)
		if err != nil {
			log.Warn().Err(err).Str("document", base).Int("page", i+1).Msg("Skipping page with malformed extraction output")
			continue
		}
		for j := range pageTxs {
			pageTxs[j].SourceAccount = account
			if strings.Contains(strings.ToLower(pageTxs[j].Description), secondaryPartyToken) {
				pageTxs[j].IsSplit = domain.IntPtr(domain.SplitFull)
			}
		}
		log.Info().Str("document", base).Int("page", i+1).Int("count", len(pageTxs)).Msg("Extracted transactions from page")
		txs = append(txs, pageTxs...)
	}

	if e.Review != nil && len(txs) > 0 {
		switch e.Review(base, txs) {
		case ReviewDiscard:
			log.Info().Str("document", base).Msg("Review gate discarded this document's transactions")
			return nil, nil
		case ReviewAbort:
			return nil, ErrAborted
		}
	}

	return txs, nil
}

// openWithPasswords tries to open without a password, then with each
// configured password in order, stopping at the first success.
func (e *Extractor) openWithPasswords(ctx context.Context, path string) ([]Page, bool) {
	log := logger.FromContext(ctx)

	attempts := append([]string{""}, e.Passwords...)
	for _, pw := range attempts {
		pages, err := e.Opener.Open(path, pw)
		if err == nil {
			return pages, true
		}
		if errors.Is(err, ErrPasswordRequired) {
			continue
		}
		log.Warn().Err(err).Str("document", filepath.Base(path)).Msg("Error opening document")
		return nil, false
	}
	return nil, false
}
