package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/safetytest/internal/attempt"
	auth "github.com/mind-engage/safetytest/internal/auth/middleware"
	"github.com/mind-engage/safetytest/internal/certificate"
	"github.com/mind-engage/safetytest/internal/db/dbtest"
	"github.com/mind-engage/safetytest/internal/directory"
	"github.com/mind-engage/safetytest/internal/eventlog"
	"github.com/mind-engage/safetytest/internal/exam"
	"github.com/mind-engage/safetytest/internal/grading"
	"github.com/mind-engage/safetytest/internal/metrics"
	"github.com/mind-engage/safetytest/internal/notify"
	"github.com/mind-engage/safetytest/internal/storage"
	"github.com/mind-engage/safetytest/internal/workflow"
)

type outbox struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (o *outbox) Send(_ context.Context, m notify.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, m)
	return nil
}

func (o *outbox) attachments() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.sent {
		n += len(m.Attachments)
	}
	return n
}

func correctFor(id int) int { return id%4 + 1 }

func testBank() []exam.Category {
	var cats []exam.Category
	for _, name := range []string{"Electrical", "Fire"} {
		c := exam.Category{Name: name}
		for i := 0; i < 5; i++ {
			q := exam.Question{ID: i, Category: name, Text: fmt.Sprintf("%s %d?", name, i), CorrectAnswerID: correctFor(i)}
			for a := 1; a <= 4; a++ {
				q.Answers = append(q.Answers, exam.Answer{ID: a, Text: fmt.Sprintf("option %d", a)})
			}
			c.Questions = append(c.Questions, q)
		}
		cats = append(cats, c)
	}
	return cats
}

type server struct {
	ts      *httptest.Server
	mail    *outbox
	blobDir string
	bank    *exam.SQLStore
}

func newServer(t *testing.T) *server {
	t.Helper()
	ctx := context.Background()
	d := dbtest.Open(t)

	bank := exam.NewSQLStore(d)
	require.NoError(t, bank.PutBank(ctx, testBank()))
	require.NoError(t, bank.PutQuota(ctx, "default", exam.Quota{"Electrical": 3, "Fire": 2}))

	attempts := attempt.NewSQLStore(d)
	require.NoError(t, attempts.PutClass(ctx, attempt.Class{Code: "CHEM101", Enabled: true, QuotaProfile: "default"}))
	require.NoError(t, attempts.PutClass(ctx, attempt.Class{Code: "OLD1", Enabled: false, QuotaProfile: "default"}))

	people := directory.NewSQLDirectory(d)
	require.NoError(t, people.Put(ctx, []directory.Person{
		{Email: "ada@example.edu", FirstName: "Ada", LastName: "Lovelace", ExternalID: "B001"},
	}))

	blobDir := t.TempDir()
	blobs, err := storage.NewFSStore(blobDir)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	clock := func() time.Time { return time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC) }
	reg := prometheus.NewRegistry()
	mail := &outbox{}
	svc := workflow.NewService(workflow.Deps{
		Bank:      bank,
		Tracker:   attempt.NewTracker(attempts, attempt.WithClock(clock)),
		Directory: people,
		Sampler:   exam.NewSampler(exam.WithRand(rand.New(rand.NewPCG(7, 7)))),
		Grader:    grading.NewGrader(),
		Certs:     certificate.NewPDFRenderer(blobs),
		Mailer:    mail,
		Events:    eventlog.NewRecorder(eventlog.NewSQLRepo(d, "test"), nil),
		Metrics:   metrics.New(reg),
		PublicURL: "https://tests.example.edu",
		Now:       clock,
	})

	ts := httptest.NewServer(NewRouter(RouterDeps{
		Service:  svc,
		Auth:     auth.NewAuthService("test-key", "admin", string(hash)),
		Blobs:    blobs,
		Gatherer: reg,
		Ready:    d.PingContext,
	}))
	t.Cleanup(ts.Close)
	return &server{ts: ts, mail: mail, blobDir: blobDir, bank: bank}
}

func (s *server) do(t *testing.T, method, path, token, ctype, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, s.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func (s *server) login(t *testing.T) string {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/auth/login", "", "application/json", `{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Token string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out.Token
}

func (s *server) registerAndIssue(t *testing.T) string {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/register", "", "application/json", `{"class_code":"CHEM101","email":"ada@example.edu"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	tok := s.login(t)
	resp, body = s.do(t, http.MethodPost, "/classes/CHEM101/issue", tok, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"issued":1,"skipped":0,"mail_failed":0}`, body)
	return tok
}

func (s *server) deliver(t *testing.T) workflow.Delivery {
	t.Helper()
	resp, body := s.do(t, http.MethodGet, "/test?class_code=CHEM101&id=0", "", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var d workflow.Delivery
	require.NoError(t, json.Unmarshal([]byte(body), &d))
	return d
}

func submission(d workflow.Delivery, right int) string {
	sub := grading.Submission{ClassCode: d.ClassCode, StudentIndex: d.ID}
	for i, q := range d.Questions {
		chosen := correctFor(q.ID)
		if i >= right {
			chosen = chosen%4 + 1
		}
		sub.Responses = append(sub.Responses, grading.Response{Category: q.Category, QuestionID: q.ID, Chosen: chosen})
	}
	b, _ := json.Marshal(sub)
	return string(b)
}

func TestRegisterAcceptsFormAndJSON(t *testing.T) {
	s := newServer(t)

	form := url.Values{"class_code": {"CHEM101"}, "email": {"grace@example.edu"}}
	resp, body := s.do(t, http.MethodPost, "/register", "", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"class_code":"CHEM101","id":0}`, body)

	resp, _ = s.do(t, http.MethodPost, "/register", "", "application/json", `{"class_code":"CHEM101","email":"GRACE@example.edu"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/register", "", "application/json", `{"class_code":"NOPE","email":"x@example.edu"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/register", "", "application/json", `{"class_code":"OLD1","email":"x@example.edu"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/register", "", "application/json", `{"class_code":"CHEM101"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeliverInvalidLinks(t *testing.T) {
	s := newServer(t)
	resp, _ := s.do(t, http.MethodPost, "/register", "", "application/json", `{"class_code":"CHEM101","email":"ada@example.edu"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, q := range []string{"", "?class_code=CHEM101", "?class_code=CHEM101&id=x", "?class_code=CHEM101&id=9", "?class_code=CHEM101&id=0"} {
		resp, body := s.do(t, http.MethodGet, "/test"+q, "", "", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, q)
		assert.Equal(t, InvalidLinkHTML, body, q)
	}
}

func TestDeliverOnceThenAlreadyTaken(t *testing.T) {
	s := newServer(t)
	s.registerAndIssue(t)

	d := s.deliver(t)
	assert.Equal(t, "Ada", d.FirstName)
	assert.Len(t, d.Questions, 5)

	resp, body := s.do(t, http.MethodGet, "/test?class_code=CHEM101&id=0", "", "", "")
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, AlreadyTakenHTML, body)
}

func TestDeliveredQuizHidesCorrectAnswers(t *testing.T) {
	s := newServer(t)
	s.registerAndIssue(t)
	_, body := s.do(t, http.MethodGet, "/test?class_code=CHEM101&id=0", "", "", "")
	assert.NotContains(t, strings.ToLower(body), "correct")
}

func TestSubmitPassGradesOnceAndStoresCertificate(t *testing.T) {
	s := newServer(t)
	tok := s.registerAndIssue(t)
	d := s.deliver(t)

	resp, body := s.do(t, http.MethodPost, "/test/submit", "", "application/json", submission(d, 4))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, true, out["passed"])
	assert.Equal(t, "80", out["percent"])
	assert.Equal(t, true, out["certificate"])
	assert.Equal(t, 1, s.mail.attachments())

	resp, body = s.do(t, http.MethodPost, "/test/submit", "", "application/json", submission(d, 5))
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, AlreadyTakenHTML, body)

	entries, err := os.ReadDir(filepath.Join(s.blobDir, "certificates"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.Equal(t, "CHEM101_0_B001_Lovelace_03-04-2026.pdf", name)

	resp, _ = s.do(t, http.MethodGet, "/certificates/"+name, "", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, body = s.do(t, http.MethodGet, "/certificates/"+name, tok, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, "%PDF"))
	resp, _ = s.do(t, http.MethodGet, "/certificates/missing.pdf", tok, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// counters moved once per graded question
	stats, err := s.bank.Stats(context.Background())
	require.NoError(t, err)
	var answered, correct int64
	for _, st := range stats {
		answered += st.TimesAnswered
		correct += st.TimesCorrect
	}
	assert.Equal(t, int64(5), answered)
	assert.Equal(t, int64(4), correct)
}

func TestSubmitFailSendsNoCertificate(t *testing.T) {
	s := newServer(t)
	s.registerAndIssue(t)
	d := s.deliver(t)

	resp, body := s.do(t, http.MethodPost, "/test/submit", "", "application/json", submission(d, 3))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Contains(t, body, `"passed":false`)
	assert.Contains(t, body, `"percent":"60"`)
	assert.Equal(t, 0, s.mail.attachments())
}

func TestSubmitErrors(t *testing.T) {
	s := newServer(t)
	s.registerAndIssue(t)

	// link never opened
	resp, body := s.do(t, http.MethodPost, "/test/submit", "", "application/json",
		`{"class_code":"CHEM101","id":0,"answers":[{"category":"Fire","id":0,"response":1}]}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, InvalidLinkHTML, body)

	s.deliver(t)
	resp, _ = s.do(t, http.MethodPost, "/test/submit", "", "application/json", `{"class_code":"CHEM101","id":0,"answers":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/test/submit", "", "application/json",
		`{"class_code":"CHEM101","id":0,"answers":[{"category":"Plumbing","id":0,"response":1}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/test/submit", "", "application/json", `{"class_code":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = s.do(t, http.MethodPost, "/test/submit", "", "application/json",
		`{"class_code":"CHEM101","id":0,"answers":[],"correct":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInstructorRoutesRequireToken(t *testing.T) {
	s := newServer(t)
	for _, p := range []struct{ method, path string }{
		{http.MethodPost, "/classes/CHEM101/issue"},
		{http.MethodGet, "/classes/CHEM101/results.csv"},
		{http.MethodGet, "/bank/stats"},
	} {
		resp, _ := s.do(t, p.method, p.path, "", "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, p.path)
		resp, _ = s.do(t, p.method, p.path, "garbage", "", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, p.path)
	}

	tok := s.login(t)
	resp, _ := s.do(t, http.MethodPost, "/classes/NOPE/issue", tok, "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResultsCSVAndBankStats(t *testing.T) {
	s := newServer(t)
	tok := s.registerAndIssue(t)

	resp, body := s.do(t, http.MethodGet, "/classes/CHEM101/results.csv", tok, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "class_code,id,email"))
	assert.True(t, strings.HasPrefix(lines[1], "CHEM101,0,ada@example.edu,Ada,Lovelace,B001,"))

	resp, body = s.do(t, http.MethodGet, "/bank/stats", tok, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats []exam.QuestionStats
	require.NoError(t, json.Unmarshal([]byte(body), &stats))
	assert.Len(t, stats, 10)
}

func TestHealthMetricsAndCorrelation(t *testing.T) {
	s := newServer(t)

	resp, _ := s.do(t, http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(t, http.MethodGet, "/readyz", "", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(CorrelationHeader))

	s.do(t, http.MethodPost, "/register", "", "application/json", `{"class_code":"CHEM101","email":"ada@example.edu"}`)
	resp, body := s.do(t, http.MethodGet, "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "safetytest_registrations_total")
}

func TestCorrelationKeepsCallerHeader(t *testing.T) {
	var seen string
	h := Correlation(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = eventlog.CorrelationID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(CorrelationHeader))
}
