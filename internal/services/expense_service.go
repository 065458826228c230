// Package services orchestrates the receipt upload pipeline: validate the
// file, extract fields with the vision model, persist the record, announce
// the new expense.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"receiptscribe/internal/core"
	applog "receiptscribe/internal/log"
)

var (
	ErrFileTooLarge        = errors.New("file too large")
	ErrUnsupportedFileType = errors.New("file type not allowed")
)

// Extractor turns a receipt image into structured expense fields.
type Extractor interface {
	ExtractExpenseData(ctx context.Context, image []byte, mimeType string) (core.ExtractionResult, error)
}

// ExpenseStore is the persistence surface the pipeline writes to and the
// summary endpoints read from.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, r core.ExtractionResult) (int64, error)
	ListAllExpenses(ctx context.Context) []core.Expense
	GetSummary(ctx context.Context) core.Summary
	GetMonthlyTotals(ctx context.Context) map[string]float64
}

// EventPublisher announces persisted expenses to external consumers.
type EventPublisher interface {
	PublishExpenseCreated(ctx context.Context, expenseID int64) error
}

// ExpenseService wires the store, the extraction client and the optional
// event publisher. All collaborators are injected; there is no global state.
type ExpenseService struct {
	store     ExpenseStore
	extractor Extractor
	events    EventPublisher // nil when AMQP is not configured

	maxUploadBytes int64
	allowedTypes   map[string]bool
}

func NewExpenseService(store ExpenseStore, extractor Extractor, events EventPublisher, maxUploadBytes int64, allowedTypes []string) *ExpenseService {
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return &ExpenseService{
		store:          store,
		extractor:      extractor,
		events:         events,
		maxUploadBytes: maxUploadBytes,
		allowedTypes:   allowed,
	}
}

// normalizeContentType lowercases the media type and drops any parameters
// ("image/jpeg; name=a.jpg" -> "image/jpeg").
func normalizeContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// ValidateUpload checks the declared size and content type against the
// configured limits. It runs before the file body is consumed and before
// the extractor is ever invoked.
func (s *ExpenseService) ValidateUpload(size int64, contentType string) error {
	if size > s.maxUploadBytes {
		return fmt.Errorf("%w: max size %dMB", ErrFileTooLarge, s.maxUploadBytes/1024/1024)
	}
	if !s.allowedTypes[normalizeContentType(contentType)] {
		allowed := make([]string, 0, len(s.allowedTypes))
		for t := range s.allowedTypes {
			allowed = append(allowed, t)
		}
		sort.Strings(allowed)
		return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedFileType, contentType, strings.Join(allowed, ", "))
	}
	return nil
}

// UploadReceipt runs the linear pipeline for one receipt image and returns
// the id of the persisted expense. Validation failures map to HTTP error
// statuses at the handler; every other failure is reported to the caller,
// who downgrades it to a soft failure payload. Nothing is retried.
func (s *ExpenseService) UploadReceipt(ctx context.Context, file io.Reader, size int64, contentType string) (int64, error) {
	if err := s.ValidateUpload(size, contentType); err != nil {
		return 0, err
	}

	image, err := io.ReadAll(file)
	if err != nil {
		return 0, fmt.Errorf("read upload: %w", err)
	}

	slog.InfoContext(ctx, "Processing receipt image",
		"size_bytes", len(image),
		"content_type", contentType,
		applog.FieldComponent, applog.ComponentExpense,
		applog.FieldOperation, "upload")

	result, err := s.extractor.ExtractExpenseData(ctx, image, normalizeContentType(contentType))
	if err != nil {
		return 0, fmt.Errorf("extract expense data: %w", err)
	}

	if err := result.Validate(); err != nil {
		return 0, fmt.Errorf("validate extracted data: %w", err)
	}

	id, err := s.store.CreateExpense(ctx, result)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}

	// Best effort: the expense is durable, a missed event must not fail
	// the upload.
	if s.events != nil {
		if err := s.events.PublishExpenseCreated(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to publish expense created event",
				applog.FieldError, err, applog.FieldExpenseID, id, applog.FieldComponent, applog.ComponentExpense)
		}
	}

	return id, nil
}

// GetExpenses returns every stored expense with the aggregate summary.
func (s *ExpenseService) GetExpenses(ctx context.Context) ([]core.Expense, core.Summary) {
	return s.store.ListAllExpenses(ctx), s.store.GetSummary(ctx)
}

// GetMonthlyTotals returns total_amount summed per YYYY-MM.
func (s *ExpenseService) GetMonthlyTotals(ctx context.Context) map[string]float64 {
	return s.store.GetMonthlyTotals(ctx)
}
