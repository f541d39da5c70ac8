package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/safetytest/internal/attempt"
	"github.com/mind-engage/safetytest/internal/workflow"
)

// POST /classes/{classCode}/issue
func IssueHandler(svc *workflow.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "classCode")
		sum, err := svc.IssueClass(r.Context(), code)
		if errors.Is(err, attempt.ErrClassNotFound) {
			http.Error(w, "class not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.ErrorContext(r.Context(), "issue failed", "class_code", code, "err", err)
			http.Error(w, "issue failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

// GET /classes/{classCode}/results.csv
func ResultsCSVHandler(svc *workflow.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "classCode")
		recs, err := svc.Results(r.Context(), code)
		if errors.Is(err, attempt.ErrClassNotFound) {
			http.Error(w, "class not found", http.StatusNotFound)
			return
		}
		if err != nil {
			log.ErrorContext(r.Context(), "results failed", "class_code", code, "err", err)
			http.Error(w, "results failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+code+`-results.csv"`)
		if err := workflow.WriteResultsCSV(w, recs); err != nil {
			log.ErrorContext(r.Context(), "write results csv", "err", err)
		}
	}
}

// GET /bank/stats
func BankStatsHandler(svc *workflow.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.BankStats(r.Context())
		if err != nil {
			log.ErrorContext(r.Context(), "bank stats failed", "err", err)
			http.Error(w, "stats failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
