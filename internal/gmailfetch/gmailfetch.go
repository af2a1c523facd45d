// Package gmailfetch downloads statement PDF attachments from the
// authorized mailbox. It searches the last 30 days for the known statement
// subjects and saves every PDF attachment to the configured directory.
package gmailfetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/appunni/budgeauto/internal/extract"
	"github.com/appunni/budgeauto/internal/logger"
)

const statementSubjectFilter = `subject:("Credit Card Statement" OR "E - Pass Sheet" OR "Combined Account Statement" OR "Combined Email Statement")`

// Fetcher retrieves statement attachments through the Gmail API.
type Fetcher struct {
	svc         *gmail.Service
	downloadDir string
}

// New builds a Fetcher that saves attachments under downloadDir.
func New(ctx context.Context, ts oauth2.TokenSource, downloadDir string) (*Fetcher, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("gmailfetch: build service: %w", err)
	}
	return &Fetcher{svc: svc, downloadDir: downloadDir}, nil
}

// FetchStatements searches the mailbox and downloads every matching PDF
// attachment. Per-message failures are logged and skipped; the returned
// documents carry the email subject for account inference downstream.
func (f *Fetcher) FetchStatements(ctx context.Context) ([]extract.Document, error) {
	log := logger.FromContext(ctx)

	if err := os.MkdirAll(f.downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("gmailfetch: create download dir: %w", err)
	}

	query := buildQuery(time.Now())
	log.Info().Str("query", query).Msg("Searching mailbox for statement emails")

	listResp, err := f.svc.Users.Messages.List("me").Q(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmailfetch: list messages: %w", err)
	}
	if len(listResp.Messages) == 0 {
		log.Info().Msg("No statement emails found")
		return nil, nil
	}
	log.Info().Int("count", len(listResp.Messages)).Msg("Found candidate emails")

	var docs []extract.Document
	for _, summary := range listResp.Messages {
		msgDocs, err := f.downloadMessageAttachments(ctx, summary.Id)
		if err != nil {
			log.Warn().Err(err).Str("message_id", summary.Id).Msg("Skipping email")
			continue
		}
		docs = append(docs, msgDocs...)
	}

	log.Info().Int("downloaded", len(docs)).Msg("Finished downloading statement attachments")
	return docs, nil
}

func (f *Fetcher) downloadMessageAttachments(ctx context.Context, messageID string) ([]extract.Document, error) {
	log := logger.FromContext(ctx)

	msg, err := f.svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg.Payload == nil {
		return nil, nil
	}

	subject := headerValue(msg.Payload.Headers, "Subject")
	msgDate := messageDate(msg.Payload.Headers, subject)

	parts := findPDFParts(msg.Payload)
	if len(parts) == 0 {
		log.Info().Str("subject", subject).Msg("Email has no PDF attachments, skipping")
		return nil, nil
	}

	var docs []extract.Document
	for _, part := range parts {
		att, err := f.svc.Users.Messages.Attachments.Get("me", messageID, part.Body.AttachmentId).Context(ctx).Do()
		if err != nil {
			log.Warn().Err(err).Str("filename", part.Filename).Msg("Could not fetch attachment")
			continue
		}
		data, err := decodeAttachment(att.Data)
		if err != nil {
			log.Warn().Err(err).Str("filename", part.Filename).Msg("Could not decode attachment")
			continue
		}

		name := fmt.Sprintf("%s_%s_%s", msgDate, sanitizeFilename(subject), sanitizeFilename(part.Filename))
		path := uniquePath(filepath.Join(f.downloadDir, name))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Could not write attachment to disk")
			continue
		}

		log.Info().Str("path", path).Str("subject", subject).Msg("Downloaded statement attachment")
		docs = append(docs, extract.Document{Path: path, Subject: subject})
	}
	return docs, nil
}

// buildQuery assembles the Gmail search for statement attachments in the
// 30 days before now. Gmail's before: bound is exclusive.
func buildQuery(now time.Time) string {
	start := now.AddDate(0, 0, -30)
	return strings.Join([]string{
		"after:" + start.Format("2006/01/02"),
		"before:" + now.Format("2006/01/02"),
		"has:attachment",
		"filename:pdf",
		statementSubjectFilter,
	}, " ")
}

// findPDFParts walks the MIME tree collecting downloadable PDF parts:
// proper PDF MIME types, plus octet-stream parts whose filename says .pdf.
func findPDFParts(part *gmail.MessagePart) []*gmail.MessagePart {
	if part == nil {
		return nil
	}

	var found []*gmail.MessagePart
	mimeType := strings.ToLower(part.MimeType)
	isPDF := mimeType == "application/pdf" || mimeType == "application/x-pdf" ||
		(mimeType == "application/octet-stream" && strings.HasSuffix(strings.ToLower(part.Filename), ".pdf"))
	if isPDF && part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		found = append(found, part)
	}
	for _, nested := range part.Parts {
		found = append(found, findPDFParts(nested)...)
	}
	return found
}

func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// messageDate extracts a YYYY-MM-DD stamp for the downloaded filename from
// the Date header, falling back to a month reference in the subject.
func messageDate(headers []*gmail.MessagePartHeader, subject string) string {
	if raw := headerValue(headers, "Date"); raw != "" {
		for _, layout := range []string{time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 -0700", "2 Jan 2006 15:04:05 -0700"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.Format("2006-01-02")
			}
		}
	}
	if t, err := time.Parse("January-2006", subjectMonthToken(subject)); err == nil {
		return t.Format("2006-01-02")
	}
	return "UnknownDate"
}

// subjectMonthToken pulls a Month-YYYY token out of a subject line, if any.
func subjectMonthToken(subject string) string {
	for _, field := range strings.Fields(subject) {
		if _, err := time.Parse("January-2006", field); err == nil {
			return field
		}
	}
	return ""
}

func sanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == ' ', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	const maxLen = 150
	out := b.String()
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}

// uniquePath appends a counter when the target file already exists.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; i <= 100; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return path
}

func decodeAttachment(data string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}
