package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckerDefaultPolicy(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.Has(RoleInstructor, PermClassIssue))
	assert.False(t, c.Has(RoleInstructor, "bank:import"))
	assert.True(t, c.Has(RoleAdmin, "bank:import"))
	assert.False(t, c.Has("student", PermResultsView))
	assert.True(t, c.Any(RoleInstructor, "bank:import", PermBankStats))
}

func TestCheckerPrefixPatterns(t *testing.T) {
	c := NewChecker(map[string][]string{"auditor": {"results:*"}})
	assert.True(t, c.Has("auditor", "results:view"))
	assert.False(t, c.Has("auditor", "class:issue"))
}

func TestRequire(t *testing.T) {
	c := NewChecker(nil)
	h := c.Require(PermResultsView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[string]int{
		"":             http.StatusForbidden,
		"student":      http.StatusForbidden,
		RoleInstructor: http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}
