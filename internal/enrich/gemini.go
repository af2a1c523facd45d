package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/appunni/budgeauto/internal/ai"
	"github.com/appunni/budgeauto/internal/domain"
)

const classifyPromptTemplate = `You are a personal finance assistant. Categorize each bank transaction below.

For every transaction return an object with exactly these fields:
- "original_index": the "index" value copied from the input transaction, unchanged
- "category_str": one category chosen from this list: %s
- "is_expense": 1 if this transaction is a real expense, 0 if it is a transfer between own accounts, a refund, or income
- "is_split": 0 if the cost belongs entirely to the account owner, 1 if it is shared equally with the second person, 2 if it belongs entirely to the second person

Respond ONLY with a JSON object of this exact shape, no markdown, no commentary:
{"processed_transactions": [{"original_index": 0, "category_str": "Food", "is_expense": 1, "is_split": 0}]}

Transactions:
%s`

// GeminiClassifier categorizes transaction batches with a single model call.
type GeminiClassifier struct {
	Client *ai.Client
}

func (g *GeminiClassifier) ClassifyBatch(ctx context.Context, items []BatchItem) (*BatchResult, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	vocab := strings.Join(domain.CategoryValues(), ", ")
	prompt := fmt.Sprintf(classifyPromptTemplate, vocab, string(payload))

	raw, err := g.Client.GenerateText(ctx, genai.NewPartFromText(prompt))
	if err != nil {
		return nil, fmt.Errorf("classify batch: %w", err)
	}

	cleaned := ai.CleanModelJSON(raw)
	var result BatchResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}
	return &result, nil
}
