package attempt

import (
	"context"
	"sync"
	"time"
)

// Tracker drives the Registered -> Issued -> LinkConsumed -> Submitted state
// machine. Transitions on one record are serialized in process by a keyed
// mutex and across processes by the store's compare-and-set.
type Tracker struct {
	store Store
	locks *keyedMutex
	now   func() time.Time
}

type TrackerOption func(*Tracker)

func WithClock(now func() time.Time) TrackerOption { return func(t *Tracker) { t.now = now } }

func NewTracker(st Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: st, locks: newKeyedMutex(), now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tracker) Class(ctx context.Context, code string) (Class, error) {
	return t.store.GetClass(ctx, code)
}

func (t *Tracker) List(ctx context.Context, classCode string) ([]Record, error) {
	return t.store.List(ctx, classCode)
}

// Lookup returns ErrNotFound for an unknown class or an index out of range.
func (t *Tracker) Lookup(ctx context.Context, k Key) (Record, error) {
	return t.store.Get(ctx, k)
}

// Register appends r to its class with the next free index.
func (t *Tracker) Register(ctx context.Context, r Record) (Record, error) {
	// index assignment reads the class size, so registrations in one class queue up
	unlock := t.locks.lock(Key{ClassCode: r.ClassCode, Index: -1})
	defer unlock()
	if r.RegisteredAt.IsZero() {
		r.RegisteredAt = t.now()
	}
	return t.store.Append(ctx, r)
}

// MarkIssued sets emailed_at if unset. newly is false when the record had
// already been issued; callers must not send another email in that case.
func (t *Tracker) MarkIssued(ctx context.Context, k Key) (rec Record, newly bool, err error) {
	unlock := t.locks.lock(k)
	defer unlock()

	rec, err = t.store.Get(ctx, k)
	if err != nil {
		return Record{}, false, err
	}
	if rec.EmailedAt != nil {
		return rec, false, nil
	}
	ok, err := t.store.SetEmailed(ctx, k, t.now())
	if err != nil {
		return Record{}, false, err
	}
	rec, err = t.store.Get(ctx, k)
	if err != nil {
		return Record{}, false, err
	}
	return rec, ok, nil
}

// CheckLink reports whether the link for k could be consumed right now,
// without consuming it.
func (t *Tracker) CheckLink(ctx context.Context, k Key) (Record, error) {
	rec, err := t.store.Get(ctx, k)
	if err != nil {
		return Record{}, err
	}
	return rec, linkErr(rec)
}

func linkErr(rec Record) error {
	switch {
	case rec.EmailedAt == nil:
		return ErrNotIssued
	case rec.LinkClickedAt != nil:
		return ErrAlreadyClicked
	}
	return nil
}

// MarkLinkClicked consumes the single-use link.
func (t *Tracker) MarkLinkClicked(ctx context.Context, k Key) (Record, error) {
	unlock := t.locks.lock(k)
	defer unlock()

	rec, err := t.store.Get(ctx, k)
	if err != nil {
		return Record{}, err
	}
	if err := linkErr(rec); err != nil {
		return rec, err
	}
	ok, err := t.store.SetLinkClicked(ctx, k, t.now())
	if err != nil {
		return Record{}, err
	}
	if rec, err = t.store.Get(ctx, k); err != nil {
		return Record{}, err
	}
	if !ok {
		// another process won the compare-and-set
		return rec, linkErr(rec)
	}
	return rec, nil
}

// MarkSubmitted claims the single submission for k.
func (t *Tracker) MarkSubmitted(ctx context.Context, k Key, s Submission) (Record, error) {
	unlock := t.locks.lock(k)
	defer unlock()

	rec, err := t.store.Get(ctx, k)
	if err != nil {
		return Record{}, err
	}
	if err := submitErr(rec); err != nil {
		return rec, err
	}
	if s.At.IsZero() {
		s.At = t.now()
	}
	ok, err := t.store.SetSubmitted(ctx, k, s)
	if err != nil {
		return Record{}, err
	}
	if rec, err = t.store.Get(ctx, k); err != nil {
		return Record{}, err
	}
	if !ok {
		if err := submitErr(rec); err != nil {
			return rec, err
		}
		return rec, ErrAlreadySubmitted
	}
	return rec, nil
}

// CheckSubmittable reports whether k may be submitted right now.
func (t *Tracker) CheckSubmittable(ctx context.Context, k Key) (Record, error) {
	rec, err := t.store.Get(ctx, k)
	if err != nil {
		return Record{}, err
	}
	return rec, submitErr(rec)
}

func submitErr(rec Record) error {
	switch {
	case rec.SubmittedAt != nil:
		return ErrAlreadySubmitted
	case rec.LinkClickedAt == nil:
		return ErrNotClicked
	}
	return nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[Key]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[Key]*refLock{}}
}

func (m *keyedMutex) lock(k Key) (unlock func()) {
	m.mu.Lock()
	l, ok := m.locks[k]
	if !ok {
		l = &refLock{}
		m.locks[k] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(m.locks, k)
		}
		m.mu.Unlock()
	}
}
