// Package storage owns the durable table of expense records. Reads follow a
// deliberate lossy failure policy: a failed list or aggregate query is
// logged and reported as empty/zero data, never as an error. Writes
// propagate their failures.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"receiptscribe/internal/core"
	applog "receiptscribe/internal/log"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed persistence store for expense records.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and ensures the schema
// exists. The parent directory is created if missing.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateExpense inserts one expense row inside its own transaction and
// returns the generated id. Items are serialized to JSON text; an absent
// items sequence is stored as the empty array, never null.
func (s *Store) CreateExpense(ctx context.Context, r core.ExtractionResult) (int64, error) {
	items := r.Items
	if items == nil {
		items = []core.ExpenseItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("marshal items: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (vendor_name, date, total_amount, tax_amount, items_json)
		 VALUES (?, ?, ?, ?, ?)`,
		r.VendorName, r.Date, r.TotalAmount, r.TaxAmount, string(itemsJSON))
	if err != nil {
		return 0, fmt.Errorf("insert expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		applog.FieldExpenseID, id,
		"items", len(items),
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOperation, "create")

	return id, nil
}

// ListAllExpenses returns every expense, newest date first, rows without a
// date last. Ties on date break by created_at descending. A read failure is
// logged and reported as an empty sequence.
func (s *Store) ListAllExpenses(ctx context.Context) []core.Expense {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vendor_name, date, total_amount, tax_amount, items_json, created_at
		 FROM expenses
		 ORDER BY date DESC NULLS LAST, created_at DESC`)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list expenses",
			applog.FieldError, err, applog.FieldComponent, applog.ComponentStorage, applog.FieldOperation, "list")
		return []core.Expense{}
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		var (
			e          core.Expense
			vendorName sql.NullString
			date       sql.NullString
			total      sql.NullFloat64
			tax        sql.NullFloat64
			itemsJSON  string
		)
		if err := rows.Scan(&e.ID, &vendorName, &date, &total, &tax, &itemsJSON, &e.CreatedAt); err != nil {
			slog.ErrorContext(ctx, "Failed to scan expense row",
				applog.FieldError, err, applog.FieldComponent, applog.ComponentStorage, applog.FieldOperation, "list")
			return []core.Expense{}
		}
		if vendorName.Valid {
			e.VendorName = &vendorName.String
		}
		if date.Valid {
			e.Date = &date.String
		}
		if total.Valid {
			e.TotalAmount = &total.Float64
		}
		if tax.Valid {
			e.TaxAmount = &tax.Float64
		}
		e.Items = []core.ExpenseItem{}
		if itemsJSON != "" {
			if err := json.Unmarshal([]byte(itemsJSON), &e.Items); err != nil {
				slog.ErrorContext(ctx, "Failed to decode items_json",
					applog.FieldError, err, applog.FieldExpenseID, e.ID, applog.FieldComponent, applog.ComponentStorage, applog.FieldOperation, "list")
				return []core.Expense{}
			}
			if e.Items == nil {
				e.Items = []core.ExpenseItem{}
			}
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "Expense row iteration failed",
			applog.FieldError, err, applog.FieldComponent, applog.ComponentStorage, applog.FieldOperation, "list")
		return []core.Expense{}
	}

	return expenses
}

// GetSummary returns the row count and the sums of total_amount and
// tax_amount with nulls counted as zero. A read failure is logged and
// reported as all zeros.
func (s *Store) GetSummary(ctx context.Context) core.Summary {
	var summary core.Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(total_amount), 0),
		        COALESCE(SUM(tax_amount), 0)
		 FROM expenses`).
		Scan(&summary.ExpenseCount, &summary.TotalAmount, &summary.TotalTax)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read summary",
			applog.FieldError, err, applog.FieldComponent, applog.ComponentStorage, applog.FieldOperation, "summary")
		return core.Summary{}
	}
	return summary
}

// GetMonthlyTotals groups total_amount by the YYYY-MM portion of date. Rows
// without a date are excluded. A read failure is logged and reported as an
// empty mapping.
func (s *Store) GetMonthlyTotals(ctx context.Context) map[string]float64 {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strftime('%Y-%m', date) AS month, SUM(total_amount)
		 FROM expenses
		 WHERE date IS NOT NULL
		 GROUP BY strftime('%Y-%m', date)
		 ORDER BY month`)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read monthly totals",
			applog.FieldError, err, applog.FieldComponent, applog.ComponentStorage, applog.FieldOperation, "monthly")
		return map[string]float64{}
	}
	defer rows.Close()

	totals := map[string]float64{}
	for rows.Next() {
		var (
			month sql.NullString
			total sql.NullFloat64
		)
		if err := rows.Scan(&month, &total); err != nil {
			slog.ErrorContext(ctx, "Failed to scan monthly total",
				applog.FieldError, err, applog.FieldComponent, applog.ComponentStorage, applog.FieldOperation, "monthly")
			return map[string]float64{}
		}
		if month.Valid {
			totals[month.String] = total.Float64
		}
	}
	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "Monthly total iteration failed",
			applog.FieldError, err, applog.FieldComponent, applog.ComponentStorage, applog.FieldOperation, "monthly")
		return map[string]float64{}
	}

	return totals
}
