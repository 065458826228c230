// Package http exposes the receipt service over JSON endpoints.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"

	applog "receiptscribe/internal/log"
	"receiptscribe/internal/services"
)

// multipartOverhead is slack on top of the configured upload limit for
// multipart boundaries and headers; the real size check is per-file.
const multipartOverhead = 1 << 20

type Server struct {
	http.Server
	service        *services.ExpenseService
	maxUploadBytes int64
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. The service carries all collaborators; the server owns only the
// HTTP surface.
func NewServer(addr string, svc *services.ExpenseService, allowedOrigins []string, maxUploadBytes int64) *Server {
	mux := http.NewServeMux()

	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s := &Server{
		Server: http.Server{
			Addr:           addr,
			Handler:        applog.RequestMiddleware(corsMiddleware(mux)),
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   120 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 16,
		},
		service:        svc,
		maxUploadBytes: maxUploadBytes,
	}

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/expenses", s.handleGetExpenses)
	mux.HandleFunc("POST /api/expenses/upload", s.handleUploadReceipt)
	mux.HandleFunc("GET /api/expenses/monthly", s.handleMonthlyTotals)
	mux.HandleFunc("GET /api/expenses/health", s.handleHealth)

	return s
}
