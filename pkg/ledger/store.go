package ledger

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a user has no ledger
	ErrNotFound = errors.New("ledger not found")
	// ErrAlreadyExists is returned when creating a ledger twice
	ErrAlreadyExists = errors.New("ledger already exists")
	// ErrConflict is returned when a concurrent writer won an optimistic update
	ErrConflict = errors.New("ledger was modified concurrently")
)

// UpdateFunc mutates a working copy of a ledger. The copy carries no earlier
// usage history: UsageHistory starts empty and every entry fn leaves there is
// appended to the stored history. Returning an error discards the copy and
// nothing is persisted.
type UpdateFunc func(l *Ledger) error

// Store persists ledgers with atomic read-modify-write per user
type Store interface {
	// Get returns a snapshot of the user's ledger
	Get(ctx context.Context, userID string) (*Ledger, error)

	// Create persists a new ledger
	Create(ctx context.Context, l *Ledger) error

	// Update serializes with every other Update of the same user, runs fn on a
	// fresh copy and persists it only if fn succeeds. It returns the committed
	// state whose UsageHistory holds only the entries this update appended;
	// use Get for the full history.
	Update(ctx context.Context, userID string, fn UpdateFunc) (*Ledger, error)
}
