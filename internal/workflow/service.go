// Package workflow runs the student-facing operations: registration,
// issuing test links, quiz delivery and submission.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mind-engage/safetytest/internal/attempt"
	"github.com/mind-engage/safetytest/internal/certificate"
	"github.com/mind-engage/safetytest/internal/directory"
	"github.com/mind-engage/safetytest/internal/eventlog"
	"github.com/mind-engage/safetytest/internal/exam"
	"github.com/mind-engage/safetytest/internal/grading"
	"github.com/mind-engage/safetytest/internal/metrics"
	"github.com/mind-engage/safetytest/internal/notify"
)

var ErrInvalidRequest = errors.New("invalid request")

// BankStore is the question bank plus its statistics.
type BankStore interface {
	exam.Store
	Stats(ctx context.Context) ([]exam.QuestionStats, error)
}

type Deps struct {
	Bank      BankStore
	Tracker   *attempt.Tracker
	Directory directory.Directory
	Sampler   *exam.Sampler
	Grader    *grading.Grader
	Certs     certificate.Renderer
	Mailer    notify.Mailer
	Events    *eventlog.Recorder
	Metrics   *metrics.Metrics
	Log       *slog.Logger
	PublicURL string
	Now       func() time.Time
}

type Service struct {
	bank      BankStore
	tracker   *attempt.Tracker
	dir       directory.Directory
	sampler   *exam.Sampler
	grader    *grading.Grader
	certs     certificate.Renderer
	mailer    notify.Mailer
	events    *eventlog.Recorder
	metrics   *metrics.Metrics
	log       *slog.Logger
	publicURL string
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		bank:      d.Bank,
		tracker:   d.Tracker,
		dir:       d.Directory,
		sampler:   d.Sampler,
		grader:    d.Grader,
		certs:     d.Certs,
		mailer:    d.Mailer,
		events:    d.Events,
		metrics:   d.Metrics,
		log:       d.Log,
		publicURL: strings.TrimSuffix(d.PublicURL, "/"),
		now:       d.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.events == nil {
		s.events = eventlog.NewRecorder(nil, s.log)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewUnregistered()
	}
	if s.sampler == nil {
		s.sampler = exam.NewSampler()
	}
	if s.grader == nil {
		s.grader = grading.NewGrader()
	}
	if s.dir == nil {
		s.dir = directory.Map{}
	}
	if s.mailer == nil {
		s.mailer = notify.LogMailer{Log: s.log}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// send delivers m; failures are recorded, never returned.
func (s *Service) send(ctx context.Context, op string, m notify.Message) bool {
	if err := s.mailer.Send(ctx, m); err != nil {
		s.metrics.MailFailures.Inc()
		s.events.Error(ctx, op+".mail_failed", eventlog.Fields{"to": m.To, "subject": m.Subject, "err": err.Error()})
		return false
	}
	return true
}

type RegisterRequest struct {
	ClassCode string `json:"class_code"`
	Email     string `json:"email"`
}

// Register adds a student to a class. Rejections are mailed to the student
// and returned.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (attempt.Record, error) {
	code := strings.TrimSpace(req.ClassCode)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if code == "" || !strings.Contains(email, "@") {
		s.metrics.Registrations.WithLabelValues("invalid").Inc()
		return attempt.Record{}, fmt.Errorf("%w: class_code and email are required", ErrInvalidRequest)
	}

	reject := func(result, reason string, err error) (attempt.Record, error) {
		s.metrics.Registrations.WithLabelValues(result).Inc()
		s.events.Warn(ctx, "register.rejected", eventlog.Fields{"class_code": code, "email": email, "reason": reason})
		s.send(ctx, "register", registrationFailedMail(email, code, reason))
		return attempt.Record{}, err
	}

	class, err := s.tracker.Class(ctx, code)
	switch {
	case errors.Is(err, attempt.ErrClassNotFound):
		return reject("class_not_found", "the class does not exist", err)
	case err != nil:
		s.metrics.Registrations.WithLabelValues("error").Inc()
		s.events.Error(ctx, "register", eventlog.Fields{"class_code": code, "err": err.Error()})
		return attempt.Record{}, err
	case !class.Enabled:
		return reject("class_disabled", "the class is not accepting registrations", attempt.ErrClassDisabled)
	}

	person, found, err := s.dir.Lookup(ctx, email)
	if err != nil {
		s.events.Error(ctx, "register.directory", eventlog.Fields{"email": email, "err": err.Error()})
	}
	if !found {
		person = directory.Unknown(email)
		s.events.Warn(ctx, "register.directory_miss", eventlog.Fields{"email": email})
	}

	rec, err := s.tracker.Register(ctx, attempt.Record{
		ClassCode:    code,
		Email:        email,
		FirstName:    person.FirstName,
		LastName:     person.LastName,
		ExternalID:   person.ExternalID,
		RegisteredAt: s.now(),
	})
	switch {
	case errors.Is(err, attempt.ErrDuplicateEmail):
		return reject("duplicate", "this email is already registered for the class", err)
	case errors.Is(err, attempt.ErrClassNotFound):
		return reject("class_not_found", "the class does not exist", err)
	case err != nil:
		s.metrics.Registrations.WithLabelValues("error").Inc()
		s.events.Error(ctx, "register", eventlog.Fields{"class_code": code, "err": err.Error()})
		return attempt.Record{}, err
	}

	s.metrics.Registrations.WithLabelValues("ok").Inc()
	s.events.Info(ctx, "register", eventlog.Fields{"class_code": code, "id": rec.Index, "email": email})
	s.send(ctx, "register", registeredMail(rec))
	return rec, nil
}

type IssueSummary struct {
	Issued     int `json:"issued"`
	Skipped    int `json:"skipped"`
	MailFailed int `json:"mail_failed"`
}

// TestLink is the single-use quiz URL for k.
func (s *Service) TestLink(k attempt.Key) string {
	q := url.Values{}
	q.Set("class_code", k.ClassCode)
	q.Set("id", fmt.Sprint(k.Index))
	return s.publicURL + "/test?" + q.Encode()
}

// IssueClass marks every record of the class issued and mails a link to
// those that were not issued before.
func (s *Service) IssueClass(ctx context.Context, classCode string) (IssueSummary, error) {
	if _, err := s.tracker.Class(ctx, classCode); err != nil {
		return IssueSummary{}, err
	}
	recs, err := s.tracker.List(ctx, classCode)
	if err != nil {
		return IssueSummary{}, err
	}

	var sum IssueSummary
	for _, r := range recs {
		rec, newly, err := s.tracker.MarkIssued(ctx, r.Key())
		if err != nil {
			s.events.Error(ctx, "issue", eventlog.Fields{"class_code": classCode, "id": r.Index, "err": err.Error()})
			return sum, err
		}
		if !newly {
			sum.Skipped++
			s.metrics.Issued.WithLabelValues("skipped").Inc()
			continue
		}
		sum.Issued++
		if s.send(ctx, "issue", testLinkMail(rec, s.TestLink(rec.Key()))) {
			s.metrics.Issued.WithLabelValues("sent").Inc()
		} else {
			sum.MailFailed++
			s.metrics.Issued.WithLabelValues("mail_failed").Inc()
		}
	}
	s.events.Info(ctx, "issue", eventlog.Fields{
		"class_code": classCode, "issued": sum.Issued, "skipped": sum.Skipped, "mail_failed": sum.MailFailed,
	})
	return sum, nil
}

type Delivery struct {
	ClassCode string              `json:"class_code"`
	ID        int                 `json:"id"`
	FirstName string              `json:"first_name"`
	Questions []exam.QuizQuestion `json:"questions"`
}

// Deliver samples a quiz for k and consumes its link. Configuration and
// storage errors are raised before the link is consumed.
func (s *Service) Deliver(ctx context.Context, k attempt.Key) (Delivery, error) {
	fail := func(result string, err error) (Delivery, error) {
		s.metrics.LinkOutcomes.WithLabelValues(result).Inc()
		return Delivery{}, err
	}

	rec, err := s.tracker.CheckLink(ctx, k)
	switch {
	case errors.Is(err, attempt.ErrNotFound), errors.Is(err, attempt.ErrNotIssued):
		s.events.Warn(ctx, "deliver.invalid_link", eventlog.Fields{"class_code": k.ClassCode, "id": k.Index, "reason": err.Error()})
		return fail("invalid", err)
	case errors.Is(err, attempt.ErrAlreadyClicked):
		s.events.Warn(ctx, "deliver.already_taken", eventlog.Fields{"class_code": k.ClassCode, "id": k.Index})
		return fail("already_taken", err)
	case err != nil:
		s.events.Error(ctx, "deliver", eventlog.Fields{"class_code": k.ClassCode, "id": k.Index, "err": err.Error()})
		return fail("error", err)
	}

	quiz, err := s.sample(ctx, k.ClassCode)
	if err != nil {
		s.events.Error(ctx, "deliver", eventlog.Fields{"class_code": k.ClassCode, "id": k.Index, "err": err.Error()})
		return fail("error", err)
	}

	if _, err := s.tracker.MarkLinkClicked(ctx, k); err != nil {
		if errors.Is(err, attempt.ErrAlreadyClicked) {
			s.events.Warn(ctx, "deliver.already_taken", eventlog.Fields{"class_code": k.ClassCode, "id": k.Index})
			return fail("already_taken", err)
		}
		s.events.Error(ctx, "deliver", eventlog.Fields{"class_code": k.ClassCode, "id": k.Index, "err": err.Error()})
		return fail("error", err)
	}

	s.metrics.LinkOutcomes.WithLabelValues("delivered").Inc()
	s.events.Info(ctx, "deliver", eventlog.Fields{"class_code": k.ClassCode, "id": k.Index, "questions": len(quiz.Questions)})
	return Delivery{ClassCode: rec.ClassCode, ID: rec.Index, FirstName: rec.FirstName, Questions: quiz.Questions}, nil
}

func (s *Service) sample(ctx context.Context, classCode string) (exam.Quiz, error) {
	class, err := s.tracker.Class(ctx, classCode)
	if err != nil {
		return exam.Quiz{}, err
	}
	quota, err := s.bank.LoadQuota(ctx, class.QuotaProfile)
	if err != nil {
		return exam.Quiz{}, err
	}
	bank, err := exam.LoadBank(ctx, s.bank)
	if err != nil {
		return exam.Quiz{}, err
	}
	quiz, err := s.sampler.Sample(bank, quota)
	if err != nil {
		return exam.Quiz{}, fmt.Errorf("profile %q: %w", class.QuotaProfile, err)
	}
	for _, sf := range quiz.Shortfalls {
		s.events.Warn(ctx, "sample.shortfall", eventlog.Fields{
			"profile": class.QuotaProfile, "category": sf.Category, "requested": sf.Requested, "available": sf.Available,
		})
	}
	return quiz, nil
}

type SubmitOutcome struct {
	Record      attempt.Record
	Result      grading.Result
	Certificate *certificate.Document
}

// Submit grades sub, claims the record's single submission, applies the
// question counters and sends the certificate or the failure notice.
func (s *Service) Submit(ctx context.Context, sub grading.Submission) (SubmitOutcome, error) {
	start := s.now()
	defer s.metrics.ObserveSince(start)

	k := attempt.Key{ClassCode: sub.ClassCode, Index: sub.StudentIndex}
	fields := eventlog.Fields{"class_code": k.ClassCode, "id": k.Index}
	reject := func(err error) (SubmitOutcome, error) {
		s.metrics.Submissions.WithLabelValues("rejected").Inc()
		s.events.Warn(ctx, "submit.rejected", merge(fields, eventlog.Fields{"reason": err.Error()}))
		return SubmitOutcome{}, err
	}
	failed := func(err error) (SubmitOutcome, error) {
		s.metrics.Submissions.WithLabelValues("error").Inc()
		s.events.Error(ctx, "submit", merge(fields, eventlog.Fields{"err": err.Error()}))
		return SubmitOutcome{}, err
	}

	if _, err := s.tracker.CheckSubmittable(ctx, k); err != nil {
		if isStateErr(err) {
			return reject(err)
		}
		return failed(err)
	}

	bank, err := exam.LoadBank(ctx, s.bank)
	if err != nil {
		return failed(err)
	}
	res, err := s.grader.Grade(sub, bank)
	if err != nil {
		return reject(err)
	}

	raw, err := json.Marshal(gradedResponse(sub, res))
	if err != nil {
		return failed(err)
	}
	at := s.now()
	rec, err := s.tracker.MarkSubmitted(ctx, k, attempt.Submission{
		At: at, Score: res.Score, Passed: res.Passed, RawResponseJSON: string(raw),
	})
	if err != nil {
		if isStateErr(err) {
			return reject(err)
		}
		return failed(err)
	}

	// the submission is claimed; nothing below may undo it
	for _, u := range res.CounterUpdates {
		if err := s.bank.IncrementCounter(ctx, u.Key, u.Counter); err != nil {
			s.events.Error(ctx, "submit.counter", merge(fields, eventlog.Fields{
				"question": u.Key.String(), "counter": string(u.Counter), "err": err.Error(),
			}))
		}
	}

	out := SubmitOutcome{Record: rec, Result: res}
	percent := res.Percent()
	if res.Passed {
		s.metrics.Submissions.WithLabelValues("passed").Inc()
		out.Certificate = s.certify(ctx, rec, at, percent)
	} else {
		s.metrics.Submissions.WithLabelValues("failed").Inc()
		threshold := decimal.NewFromFloat(s.grader.Threshold()).Mul(decimal.NewFromInt(100)).Round(2)
		s.send(ctx, "submit", failedMail(rec, percent, threshold))
	}

	s.events.Info(ctx, "submit", merge(fields, eventlog.Fields{
		"correct": res.Correct, "total": res.Total, "score": res.Score, "passed": res.Passed,
	}))
	return out, nil
}

// storedResponse is the raw_response_json shape: what was chosen next to the
// authoritative answer, per question in submission order.
type storedResponse struct {
	ClassCode string           `json:"class_code"`
	ID        int              `json:"id"`
	Answers   []storedQuestion `json:"answers"`
}

type storedQuestion struct {
	Category        string `json:"category"`
	ID              int    `json:"id"`
	Response        int    `json:"response"`
	CorrectResponse int    `json:"correct_response"`
	Correct         bool   `json:"correct"`
}

func gradedResponse(sub grading.Submission, res grading.Result) storedResponse {
	out := storedResponse{ClassCode: sub.ClassCode, ID: sub.StudentIndex}
	for _, q := range res.Questions {
		out.Answers = append(out.Answers, storedQuestion{
			Category:        q.Key.Category,
			ID:              q.Key.ID,
			Response:        q.Chosen,
			CorrectResponse: q.CorrectAnswerID,
			Correct:         q.Correct,
		})
	}
	return out
}

func (s *Service) certify(ctx context.Context, rec attempt.Record, at time.Time, percent decimal.Decimal) *certificate.Document {
	class, err := s.tracker.Class(ctx, rec.ClassCode)
	if err != nil {
		s.events.Error(ctx, "certificate", eventlog.Fields{"class_code": rec.ClassCode, "id": rec.Index, "err": err.Error()})
		return nil
	}
	doc, err := s.certs.Render(ctx, class.CertificateTemplate, certificate.Fields{
		ClassCode:      rec.ClassCode,
		Index:          rec.Index,
		FirstName:      rec.FirstName,
		LastName:       rec.LastName,
		ExternalID:     rec.ExternalID,
		Email:          rec.Email,
		CompletionDate: at,
		ScorePercent:   percent,
	})
	if err != nil {
		s.events.Error(ctx, "certificate", eventlog.Fields{"class_code": rec.ClassCode, "id": rec.Index, "err": err.Error()})
		return nil
	}
	if doc.Fallback {
		s.events.Warn(ctx, "certificate.template_fallback", eventlog.Fields{
			"class_code": rec.ClassCode, "requested": class.CertificateTemplate, "used": doc.Template,
		})
	}
	s.metrics.Certificates.Inc()
	s.send(ctx, "certificate", certificateMail(rec, percent, notify.Attachment{
		Filename: doc.Name, ContentType: doc.ContentType, Data: doc.Data,
	}))
	return &doc
}

func isStateErr(err error) bool {
	return errors.Is(err, attempt.ErrNotFound) ||
		errors.Is(err, attempt.ErrNotClicked) ||
		errors.Is(err, attempt.ErrAlreadySubmitted)
}

func merge(a, b eventlog.Fields) eventlog.Fields {
	out := make(eventlog.Fields, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Results lists the class's attempt records in index order.
func (s *Service) Results(ctx context.Context, classCode string) ([]attempt.Record, error) {
	if _, err := s.tracker.Class(ctx, classCode); err != nil {
		return nil, err
	}
	return s.tracker.List(ctx, classCode)
}

func (s *Service) BankStats(ctx context.Context) ([]exam.QuestionStats, error) {
	return s.bank.Stats(ctx)
}
