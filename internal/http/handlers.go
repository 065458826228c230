package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"receiptscribe/internal/config"
	"receiptscribe/internal/core"
	applog "receiptscribe/internal/log"
	"receiptscribe/internal/services"
)

// ExpenseSummaryResponse is the body of GET /api/expenses.
type ExpenseSummaryResponse struct {
	TotalExpenses  float64        `json:"total_expenses"`
	ExpenseCount   int64          `json:"expense_count"`
	RecentExpenses []core.Expense `json:"recent_expenses"`
}

// UploadResponse is the body of POST /api/expenses/upload. Failures past
// upload validation are reported here with success=false and HTTP 200, not
// with an error status; clients depend on this contract.
type UploadResponse struct {
	Success   bool   `json:"success"`
	ExpenseID *int64 `json:"expense_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MonthlyTotalsResponse is the body of GET /api/expenses/monthly.
type MonthlyTotalsResponse struct {
	MonthlyTotals map[string]float64 `json:"monthly_totals"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": config.ServiceName,
		"version": config.ServiceVersion,
		"docs":    "/api/expenses",
	})
}

func (s *Server) handleGetExpenses(w http.ResponseWriter, r *http.Request) {
	expenses, summary := s.service.GetExpenses(r.Context())

	writeJSON(w, http.StatusOK, ExpenseSummaryResponse{
		TotalExpenses:  summary.TotalAmount,
		ExpenseCount:   summary.ExpenseCount,
		RecentExpenses: expenses,
	})
}

func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		// MaxBytesReader tripping mid-parse means the request body blew
		// past the upload limit; that is the oversized-file case, not a
		// missing part.
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"detail": fmt.Sprintf("file too large: max size %dMB", s.maxUploadBytes/1024/1024),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"detail": "multipart field 'file' is required",
		})
		return
	}
	defer file.Close()

	id, err := s.service.UploadReceipt(r.Context(), file, header.Size, header.Header.Get("Content-Type"))
	switch {
	case errors.Is(err, services.ErrFileTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"detail": err.Error()})
		return
	case errors.Is(err, services.ErrUnsupportedFileType):
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"detail": err.Error()})
		return
	case err != nil:
		// Soft failure contract: extraction and store failures come back
		// as a 200 whose payload signals the failure.
		slog.ErrorContext(r.Context(), "Receipt upload failed",
			applog.FieldError, err, applog.FieldComponent, applog.ComponentHTTP, applog.FieldOperation, "upload")
		writeJSON(w, http.StatusOK, UploadResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Success:   true,
		ExpenseID: &id,
		Message:   "Receipt processed successfully",
	})
}

func (s *Server) handleMonthlyTotals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MonthlyTotalsResponse{
		MonthlyTotals: s.service.GetMonthlyTotals(r.Context()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "sqlite",
	})
}
