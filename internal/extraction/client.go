// Package extraction sends receipt images to the Gemini vision model and
// parses the structured reply into an ExtractionResult.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"receiptscribe/internal/core"
	applog "receiptscribe/internal/log"
)

// DefaultModelName is the Gemini model used for receipt field extraction.
const DefaultModelName = "gemini-2.5-flash"

// ErrUnparseableReply reports that the model did not return valid JSON.
// The caller surfaces this as a failed upload attempt; nothing is retried.
var ErrUnparseableReply = errors.New("unparseable model output")

// receiptPrompt is part of the external contract with the model provider.
// Changing its wording is a behavior change, not a bug fix.
const receiptPrompt = `Analyze this receipt image and extract financial information accurately.

IMPORTANT: Return ONLY valid JSON with this exact structure:
{
    "vendor_name": "string or null",
    "date": "YYYY-MM-DD or null",
    "total_amount": number or null,
    "tax_amount": number or null,
    "items": [{"description": "string", "amount": number}]
}

Guidelines:
- vendor_name: The store/restaurant/business name
- date: Transaction date in YYYY-MM-DD format
- total_amount: Final total amount paid
- tax_amount: Tax amount if itemized, otherwise 0 or null
- items: List of purchased items with descriptions and individual amounts

If you cannot determine a value, use null.
Be precise with numbers and dates.
Do NOT wrap the response in code fences.`

// Client wraps a single Gemini model for receipt extraction.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient builds an extraction client against the Gemini API. The API key
// is required; construction fails without it.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{client: client, model: DefaultModelName}, nil
}

// ExtractExpenseData sends one request carrying the fixed prompt plus the
// inline image and parses the reply. There is no retry and no timeout
// beyond the transport default; a failed or malformed call is terminal for
// this upload attempt.
func (c *Client) ExtractExpenseData(ctx context.Context, image []byte, mimeType string) (core.ExtractionResult, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: receiptPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return core.ExtractionResult{}, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	slog.DebugContext(ctx, "Raw model reply", "reply", raw, applog.FieldComponent, applog.ComponentExtraction)

	result, err := parseModelReply(raw)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to parse model reply",
			applog.FieldError, err, "reply", raw, applog.FieldComponent, applog.ComponentExtraction, applog.FieldOperation, "parse")
		return core.ExtractionResult{}, err
	}

	slog.InfoContext(ctx, "Extracted expense data from receipt",
		"items", len(result.Items), applog.FieldComponent, applog.ComponentExtraction, applog.FieldOperation, "parse")

	return result, nil
}

// modelItem mirrors one item in the model reply; pointer fields distinguish
// absent values so normalization can fill the documented defaults.
type modelItem struct {
	Description *string  `json:"description"`
	Amount      *float64 `json:"amount"`
}

type modelReply struct {
	VendorName  *string     `json:"vendor_name"`
	Date        *string     `json:"date"`
	TotalAmount *float64    `json:"total_amount"`
	TaxAmount   *float64    `json:"tax_amount"`
	Items       []modelItem `json:"items"`
}

// parseModelReply strips Markdown fences, decodes the JSON object and
// normalizes it: absent top-level fields stay nil (items become the empty
// sequence), an item without a description becomes "Unknown" and an item
// without an amount becomes 0.0.
func parseModelReply(raw string) (core.ExtractionResult, error) {
	clean := cleanModelJSON(raw)

	var reply modelReply
	if err := json.Unmarshal([]byte(clean), &reply); err != nil {
		return core.ExtractionResult{}, fmt.Errorf("%w: %v", ErrUnparseableReply, err)
	}

	result := core.ExtractionResult{
		VendorName:  reply.VendorName,
		Date:        reply.Date,
		TotalAmount: reply.TotalAmount,
		TaxAmount:   reply.TaxAmount,
		Items:       make([]core.ExpenseItem, 0, len(reply.Items)),
	}
	for _, item := range reply.Items {
		normalized := core.ExpenseItem{Description: "Unknown", Amount: 0.0}
		if item.Description != nil {
			normalized.Description = *item.Description
		}
		if item.Amount != nil {
			normalized.Amount = *item.Amount
		}
		result.Items = append(result.Items, normalized)
	}

	return result, nil
}

// cleanModelJSON removes code fences and surrounding junk the model may emit
// despite the prompt, keeping the span from the first '{' to the last '}'.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

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

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
