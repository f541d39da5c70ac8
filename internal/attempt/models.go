package attempt

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("attempt not found")
	ErrNotIssued        = errors.New("test link not issued")
	ErrAlreadyClicked   = errors.New("test link already used")
	ErrNotClicked       = errors.New("test link never opened")
	ErrAlreadySubmitted = errors.New("test already submitted")

	ErrClassNotFound  = errors.New("class not found")
	ErrClassDisabled  = errors.New("class disabled")
	ErrDuplicateEmail = errors.New("email already registered for class")
)

type Key struct {
	ClassCode string
	Index     int
}

func (k Key) String() string { return fmt.Sprintf("%s/%d", k.ClassCode, k.Index) }

type State string

const (
	StateRegistered   State = "registered"
	StateIssued       State = "issued"
	StateLinkConsumed State = "link_consumed"
	StateSubmitted    State = "submitted"
)

// Record is one student's registration in one class, and everything that
// happened to it since.
type Record struct {
	ClassCode  string `json:"class_code"`
	Index      int    `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ExternalID string `json:"external_id"`

	RegisteredAt  time.Time  `json:"registered_at"`
	EmailedAt     *time.Time `json:"emailed_at,omitempty"`
	LinkClickedAt *time.Time `json:"link_clicked_at,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`

	Score           *float64 `json:"score,omitempty"`
	Passed          *bool    `json:"passed,omitempty"`
	RawResponseJSON string   `json:"-"`
}

func (r Record) Key() Key { return Key{ClassCode: r.ClassCode, Index: r.Index} }

func (r Record) State() State {
	switch {
	case r.SubmittedAt != nil:
		return StateSubmitted
	case r.LinkClickedAt != nil:
		return StateLinkConsumed
	case r.EmailedAt != nil:
		return StateIssued
	default:
		return StateRegistered
	}
}

type Class struct {
	Code                string `json:"code"`
	Enabled             bool   `json:"enabled"`
	QuotaProfile        string `json:"quota_profile"`
	CertificateTemplate string `json:"certificate_template,omitempty"`
}

// Submission is what MarkSubmitted stores on the record.
type Submission struct {
	At              time.Time
	Score           float64
	Passed          bool
	RawResponseJSON string
}
