// Package api assembles the HTTP surface: the quick-capture webhook, link
// codes, transaction listing, job inspection and health.
package api

import (
	"net/http"
	"strings"

	"github.com/dvloznov/finance-capture/internal/api/handlers"
	"github.com/dvloznov/finance-capture/internal/api/middleware"
	"github.com/rs/zerolog"
)

// Routes holds the handlers to mount. Nil handlers are skipped.
type Routes struct {
	Shortcut     *handlers.ShortcutHandler
	LinkCodes    *handlers.LinkCodesHandler
	Transactions *handlers.TransactionsHandler
	Jobs         *handlers.JobsHandler

	// APIToken protects everything except /health and /api/shortcut.
	APIToken string
}

func method(m string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		fn(w, r)
	}
}

// NewRouter builds the mux and wraps it in the middleware chain.
func NewRouter(routes Routes, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	if h := routes.Shortcut; h != nil {
		mux.HandleFunc("/api/shortcut", method(http.MethodPost, h.Capture))
	}

	if h := routes.LinkCodes; h != nil {
		mux.HandleFunc("/api/link-codes", method(http.MethodPost, h.CreateLinkCode))
	}

	if h := routes.Transactions; h != nil {
		mux.HandleFunc("/api/transactions", method(http.MethodGet, h.ListTransactions))
	}

	if h := routes.Jobs; h != nil {
		mux.HandleFunc("/api/jobs", method(http.MethodGet, h.ListJobs))
		mux.HandleFunc("/api/jobs/", method(http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			h.GetJob(w, r, jobID)
		}))
	}

	mux.HandleFunc("/health", handlers.Health)

	return middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(routes.APIToken, "/health", "/api/shortcut")(mux),
				),
			),
		),
	)
}
