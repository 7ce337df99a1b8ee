// Package refs allocates human-readable reference codes for business
// documents. Codes follow PREFIX-YYYYMMDD-#### with a day-scoped sequence
// that restarts at 0001 every calendar day.
package refs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Prefix identifies the entity type encoded in a reference.
type Prefix string

const (
	PrefixInvoice         Prefix = "INV"
	PrefixPurchaseOrder   Prefix = "PO"
	PrefixQuote           Prefix = "QTE"
	PrefixRepair          Prefix = "REP"
	PrefixClient          Prefix = "CLI"
	PrefixSupplier        Prefix = "SUP"
	PrefixProduct         Prefix = "PRD"
	PrefixPayment         Prefix = "PAY"
	PrefixSupplierPayment Prefix = "SUP-PAY"
)

// ErrExhausted is returned when allocation keeps colliding after the
// maximum number of attempts.
var ErrExhausted = errors.New("refs: allocation attempts exhausted")

const maxAttempts = 5

// Format renders a reference code for the given prefix, day and sequence.
func Format(prefix Prefix, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.Format("20060102"), seq)
}

// FormatTagged renders a reference with a type tag between prefix and date,
// used for product codes (PRD-FIN-..., PRD-RAW-...).
func FormatTagged(prefix Prefix, tag string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%s-%04d", prefix, tag, day.Format("20060102"), seq)
}

// CounterFunc counts rows of the entity type created on the given day.
type CounterFunc func(ctx context.Context, day time.Time) (int, error)

// InsertFunc persists the entity with the candidate reference. It must
// return the database error unchanged so unique violations are detected.
type InsertFunc func(ctx context.Context, reference string) error

// Sequencer allocates references with a count-then-insert strategy.
// The count and insert are not atomic against concurrent writers; the
// reference column's unique constraint turns a race into an error, which
// the sequencer absorbs by recounting and retrying.
type Sequencer struct {
	count CounterFunc
}

// NewSequencer constructs a Sequencer over the given counter.
func NewSequencer(count CounterFunc) *Sequencer {
	return &Sequencer{count: count}
}

// Next computes the next reference for the day without inserting. Callers
// that need race safety should use Allocate instead.
func (s *Sequencer) Next(ctx context.Context, prefix Prefix, day time.Time) (string, error) {
	n, err := s.count(ctx, day)
	if err != nil {
		return "", fmt.Errorf("refs: count: %w", err)
	}
	return Format(prefix, day, n+1), nil
}

// Allocate repeatedly computes a candidate reference and attempts the
// insert, retrying on unique violations until it succeeds or attempts run
// out. The final reference is returned on success.
func (s *Sequencer) Allocate(ctx context.Context, prefix Prefix, day time.Time, insert InsertFunc) (string, error) {
	return s.allocate(ctx, day, insert, func(seq int) string {
		return Format(prefix, day, seq)
	})
}

// AllocateTagged behaves like Allocate for tagged product references.
func (s *Sequencer) AllocateTagged(ctx context.Context, prefix Prefix, tag string, day time.Time, insert InsertFunc) (string, error) {
	return s.allocate(ctx, day, insert, func(seq int) string {
		return FormatTagged(prefix, tag, day, seq)
	})
}

func (s *Sequencer) allocate(ctx context.Context, day time.Time, insert InsertFunc, format func(int) string) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		n, err := s.count(ctx, day)
		if err != nil {
			return "", fmt.Errorf("refs: count: %w", err)
		}
		reference := format(n + 1)
		err = insert(ctx, reference)
		if err == nil {
			return reference, nil
		}
		if !IsUniqueViolation(err) {
			return "", err
		}
	}
	return "", ErrExhausted
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
