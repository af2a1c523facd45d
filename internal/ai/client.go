// Package ai wraps the Gemini client used by the extraction, account
// matching and categorization stages. Callers depend on small interfaces in
// their own packages; this package only supplies the concrete transport and
// the response cleanup the model occasionally needs.
package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Client is a thin wrapper around the GenAI SDK bound to one model name.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient creates a Gemini client. Authentication follows the SDK's
// defaults (GEMINI_API_KEY / GOOGLE_API_KEY or application default
// credentials).
func NewClient(ctx context.Context, model string) (*Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("ai: create genai client: %w", err)
	}
	return &Client{client: c, model: model}, nil
}

// GenerateText sends one user turn built from parts and returns the model's
// text response.
func (c *Client) GenerateText(ctx context.Context, parts ...*genai.Part) (string, error) {
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("ai: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("ai: empty response from model")
	}
	return text, nil
}

// CleanModelJSON strips Markdown fences and surrounding prose the model
// sometimes wraps around its output, leaving the outermost JSON value.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// If there's still junk around the JSON, keep only the outermost
	// object or array.
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")
	start, closing := objStart, "}"
	if objStart == -1 || (arrStart != -1 && arrStart < objStart) {
		start, closing = arrStart, "]"
	}
	if start != -1 {
		if end := strings.LastIndex(s, closing); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
