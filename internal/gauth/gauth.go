// Package gauth owns the OAuth credentials shared by the Gmail, Sheets and
// Drive clients: loading the desktop-app client secret, persisting the user
// token, and refreshing it transparently.
package gauth

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scopes covers everything one run touches: reading statement emails,
// writing the workbook, and placing it in Drive.
var Scopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive",
}

// Provider loads credentials from a client-secret file and a stored token.
type Provider struct {
	cfg       *oauth2.Config
	tokenFile string
}

// New reads the OAuth desktop-app client secret at clientFile. tokenFile is
// where the user token lives (and where refreshed tokens are written back).
func New(clientFile, tokenFile string) (*Provider, error) {
	data, err := os.ReadFile(clientFile)
	if err != nil {
		return nil, fmt.Errorf("gauth: read client secret %s: %w", clientFile, err)
	}
	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("gauth: parse client secret: %w", err)
	}
	return &Provider{cfg: cfg, tokenFile: tokenFile}, nil
}

// TokenSource returns a source backed by the stored token, refreshing it on
// demand and persisting every refresh. A missing or unreadable token is an
// error pointing the operator at the authorize flow.
func (p *Provider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := p.loadToken()
	if err != nil {
		return nil, fmt.Errorf("gauth: no usable token (run with -authorize first): %w", err)
	}
	return &savingSource{
		src:  p.cfg.TokenSource(ctx, tok),
		file: p.tokenFile,
		last: tok,
	}, nil
}

// Authorize runs the manual authorization exchange: it prints the consent
// URL to out, reads the resulting code from in, and stores the token.
func (p *Provider) Authorize(ctx context.Context, in io.Reader, out io.Writer) error {
	url := p.cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Open this link in your browser, then paste the authorization code:\n%s\n> ", url)

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return fmt.Errorf("gauth: read authorization code: %w", err)
	}
	tok, err := p.cfg.Exchange(ctx, trimNewline(code))
	if err != nil {
		return fmt.Errorf("gauth: exchange authorization code: %w", err)
	}
	if err := saveToken(p.tokenFile, tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved to %s\n", p.tokenFile)
	return nil
}

func (p *Provider) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(p.tokenFile)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", p.tokenFile, err)
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("gauth: marshal token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("gauth: write token file %s: %w", path, err)
	}
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// savingSource persists the token whenever the underlying source hands back
// a refreshed one.
type savingSource struct {
	src  oauth2.TokenSource
	file string

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken {
		if err := saveToken(s.file, tok); err == nil {
			s.last = tok
		}
	}
	return tok, nil
}
