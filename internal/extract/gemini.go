package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/appunni/budgeauto/internal/ai"
	"github.com/appunni/budgeauto/internal/domain"
)

const pagePrompt = `Analyze the provided statement page from a bank or credit card PDF.

Instructions:
- Focus strictly on the main transaction table(s) on the page.
- Ignore summaries, headers, footers, account details, interest calculations and totals.
- Extract date, description, amount and transaction_type for each table row.
- The amount is the numeric value exactly as printed, usually positive for both credits and debits. Do not add a sign.
- transaction_type is "credit" when the row carries a credit indicator (CR, Credit, a credit column); otherwise assume "debit".
- If the page has no transaction table, return {"transactions": []}.

Output STRICT JSON only, no Markdown fences, of the form:
{"transactions": [{"date": "string", "description": "string", "amount": number, "transaction_type": "credit"|"debit"}]}`

// VisionExtractor extracts one page's transactions through Gemini.
type VisionExtractor struct {
	Client *ai.Client
}

// ExtractPage implements PageExtractor. A response that is not the expected
// JSON shape errors out, which the caller treats as a skipped page.
func (v *VisionExtractor) ExtractPage(ctx context.Context, page Page) ([]domain.Transaction, error) {
	raw, err := v.Client.GenerateText(ctx,
		&genai.Part{Text: pagePrompt},
		&genai.Part{InlineData: &genai.Blob{MIMEType: page.MIMEType, Data: page.Data}},
	)
	if err != nil {
		return nil, fmt.Errorf("extract: page extraction: %w", err)
	}
	return decodePageTransactions(ai.CleanModelJSON(raw))
}

// decodePageTransactions parses the model's JSON into raw transactions,
// keeping only the extraction-stage fields.
func decodePageTransactions(clean string) ([]domain.Transaction, error) {
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("extract: unmarshal page output: %w", err)
	}

	txAny, ok := parsed["transactions"]
	if !ok {
		return nil, fmt.Errorf("extract: missing 'transactions' key in page output")
	}
	txSlice, ok := txAny.([]interface{})
	if !ok {
		return nil, fmt.Errorf("extract: 'transactions' is %T, want a list", txAny)
	}

	result := make([]domain.Transaction, 0, len(txSlice))
	for i, item := range txSlice {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("extract: element %d is %T, want an object", i, item)
		}

		desc, err := getStringField(obj, "description", true)
		if err != nil {
			return nil, fmt.Errorf("extract: transaction %d: %w", i, err)
		}
		date, err := getStringField(obj, "date", false)
		if err != nil {
			return nil, fmt.Errorf("extract: transaction %d: %w", i, err)
		}
		amount, err := getAmountField(obj, "amount")
		if err != nil {
			return nil, fmt.Errorf("extract: transaction %d: %w", i, err)
		}

		txType := domain.TypeDebit
		if t, err := getStringField(obj, "transaction_type", false); err == nil && strings.EqualFold(strings.TrimSpace(t), "credit") {
			txType = domain.TypeCredit
		}

		result = append(result, domain.Transaction{
			Date:        date,
			Description: desc,
			Amount:      amount,
			Type:        txType,
		})
	}
	return result, nil
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
	if required && strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("required field %q is empty", key)
	}
	return s, nil
}

var nonNumeric = regexp.MustCompile(`[^\d.\-]`)

// getAmountField accepts a number, a numeric string with currency noise
// ("1,234.50"), or nothing at all.
func getAmountField(m map[string]interface{}, key string) (*float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case float64:
		f := val
		return &f, nil
	case string:
		cleaned := nonNumeric.ReplaceAllString(val, "")
		if cleaned == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil, nil
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want number", key, v)
	}
}

// GeminiAccountMatcher implements AccountMatcher with a single text prompt.
type GeminiAccountMatcher struct {
	Client *ai.Client
}

// MatchAccount asks the model to pick the single best entry of allowed for
// the filename. The response is validated against the list by the caller.
func (g *GeminiAccountMatcher) MatchAccount(ctx context.Context, filename string, allowed []string) (string, error) {
	prompt := fmt.Sprintf(
		"Analyze the following filename: %q. Choose the single best matching account name from this list: %s. Respond with only the chosen account name from the list, and nothing else.",
		filename, strings.Join(allowed, ", "))

	raw, err := g.Client.GenerateText(ctx, &genai.Part{Text: prompt})
	if err != nil {
		return "", fmt.Errorf("extract: account matching: %w", err)
	}
	return strings.TrimSpace(raw), nil
}
