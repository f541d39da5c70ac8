package attempt

import (
	"context"
	"time"
)

// Store persists classes and attempt records. The Set* methods are
// compare-and-set: they report false when the guarded column was already set
// (or its precondition was not met) and change nothing.
type Store interface {
	GetClass(ctx context.Context, code string) (Class, error)
	PutClass(ctx context.Context, c Class) error

	Get(ctx context.Context, k Key) (Record, error)
	List(ctx context.Context, classCode string) ([]Record, error)
	// Append assigns the next index in the class and stores r.
	Append(ctx context.Context, r Record) (Record, error)

	SetEmailed(ctx context.Context, k Key, at time.Time) (bool, error)
	SetLinkClicked(ctx context.Context, k Key, at time.Time) (bool, error)
	SetSubmitted(ctx context.Context, k Key, s Submission) (bool, error)
}
