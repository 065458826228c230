package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidDate   = errors.New("invalid date: expected YYYY-MM-DD")
	ErrInvalidAmount = errors.New("invalid amount: must be finite")
)

type (
	// ExpenseItem is one purchased line item on a receipt.
	ExpenseItem struct {
		Description string  `json:"description"`
		Amount      float64 `json:"amount"`
	}

	// ExtractionResult holds the fields extracted from a receipt image by
	// the vision model. It is never persisted directly; the store assigns
	// ID and CreatedAt when it becomes an Expense. Pointer fields are nil
	// when the model could not determine a value.
	ExtractionResult struct {
		VendorName  *string       `json:"vendor_name"`
		Date        *string       `json:"date"` // YYYY-MM-DD
		TotalAmount *float64      `json:"total_amount"`
		TaxAmount   *float64      `json:"tax_amount"`
		Items       []ExpenseItem `json:"items"`
	}

	// Expense is one persisted receipt.
	Expense struct {
		ID          int64         `json:"id"`
		VendorName  *string       `json:"vendor_name"`
		Date        *string       `json:"date"`
		TotalAmount *float64      `json:"total_amount"`
		TaxAmount   *float64      `json:"tax_amount"`
		Items       []ExpenseItem `json:"items"`
		CreatedAt   time.Time     `json:"created_at"`
	}

	// Summary aggregates the whole expenses table.
	Summary struct {
		ExpenseCount int64   `json:"expense_count"`
		TotalAmount  float64 `json:"total_amount"`
		TotalTax     float64 `json:"total_tax"`
	}
)

// Validate enforces the schema-level typing the record must satisfy before
// it is handed to the store: a present date must parse as YYYY-MM-DD and
// present numeric fields must be finite.
func (r ExtractionResult) Validate() error {
	if r.Date != nil {
		if _, err := time.Parse(DateLayout, strings.TrimSpace(*r.Date)); err != nil {
			return ErrInvalidDate
		}
	}
	for _, v := range []*float64{r.TotalAmount, r.TaxAmount} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return ErrInvalidAmount
		}
	}
	for _, item := range r.Items {
		if math.IsNaN(item.Amount) || math.IsInf(item.Amount, 0) {
			return ErrInvalidAmount
		}
	}
	return nil
}
