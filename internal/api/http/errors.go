package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mind-engage/safetytest/internal/attempt"
	"github.com/mind-engage/safetytest/internal/exam"
	"github.com/mind-engage/safetytest/internal/grading"
	"github.com/mind-engage/safetytest/internal/workflow"
)

// Fixed student-facing pages.
const (
	InvalidLinkHTML    = "<p>Invalid Link</p>"
	AlreadyTakenHTML   = "<p>This test has already been taken</p>"
	GenericFailureHTML = "<p>Something went wrong. Please contact your instructor.</p>"
)

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// writeLinkError maps link-state errors to the fixed pages. Anything else is
// logged and gets the generic page.
func writeLinkError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, attempt.ErrNotFound), errors.Is(err, attempt.ErrNotIssued), errors.Is(err, attempt.ErrNotClicked):
		writeHTML(w, http.StatusNotFound, InvalidLinkHTML)
	case errors.Is(err, attempt.ErrAlreadyClicked), errors.Is(err, attempt.ErrAlreadySubmitted):
		writeHTML(w, http.StatusGone, AlreadyTakenHTML)
	default:
		log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		writeHTML(w, http.StatusInternalServerError, GenericFailureHTML)
	}
}

func registerStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, attempt.ErrClassNotFound):
		return http.StatusNotFound
	case errors.Is(err, attempt.ErrClassDisabled):
		return http.StatusForbidden
	case errors.Is(err, attempt.ErrDuplicateEmail):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isBadSubmission(err error) bool {
	return errors.Is(err, grading.ErrNoQuestions) ||
		errors.Is(err, grading.ErrDuplicateResponse) ||
		errors.Is(err, exam.ErrUnknownQuestion)
}
