package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mind-engage/safetytest/internal/attempt"
	"github.com/mind-engage/safetytest/internal/grading"
	"github.com/mind-engage/safetytest/internal/workflow"
)

// POST /register  {class_code, email} as JSON or a form post
func RegisterHandler(svc *workflow.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workflow.RegisterRequest
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "bad json", http.StatusBadRequest)
				return
			}
		} else {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "bad form", http.StatusBadRequest)
				return
			}
			req.ClassCode = r.PostForm.Get("class_code")
			req.Email = r.PostForm.Get("email")
		}

		rec, err := svc.Register(r.Context(), req)
		if err != nil {
			status := registerStatus(err)
			if status == http.StatusInternalServerError {
				log.ErrorContext(r.Context(), "register failed", "err", err)
				http.Error(w, "registration failed", status)
				return
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"class_code": rec.ClassCode, "id": rec.Index})
	}
}

// GET /test?class_code=..&id=..
func DeliverHandler(svc *workflow.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k, ok := parseKey(r.URL.Query().Get("class_code"), r.URL.Query().Get("id"))
		if !ok {
			writeHTML(w, http.StatusNotFound, InvalidLinkHTML)
			return
		}
		d, err := svc.Deliver(r.Context(), k)
		if err != nil {
			writeLinkError(w, r, log, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, d)
	}
}

// POST /test/submit  {class_code, id, answers:[{category, id, response}]}
func SubmitHandler(svc *workflow.Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sub grading.Submission
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sub); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(sub.ClassCode) == "" || sub.StudentIndex < 0 {
			writeHTML(w, http.StatusNotFound, InvalidLinkHTML)
			return
		}

		out, err := svc.Submit(r.Context(), sub)
		if err != nil {
			if isBadSubmission(err) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeLinkError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"correct":     out.Result.Correct,
			"total":       out.Result.Total,
			"score":       out.Result.Score,
			"percent":     out.Result.Percent().String(),
			"passed":      out.Result.Passed,
			"certificate": out.Certificate != nil,
		})
	}
}

func parseKey(classCode, rawID string) (attempt.Key, bool) {
	classCode = strings.TrimSpace(classCode)
	id, err := strconv.Atoi(strings.TrimSpace(rawID))
	if classCode == "" || err != nil || id < 0 {
		return attempt.Key{}, false
	}
	return attempt.Key{ClassCode: classCode, Index: id}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
