package refs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return parsed
}

func TestFormat(t *testing.T) {
	d := day(t, "2026-02-04")
	assert.Equal(t, "INV-20260204-0001", Format(PrefixInvoice, d, 1))
	assert.Equal(t, "SUP-PAY-20260204-0042", Format(PrefixSupplierPayment, d, 42))
	assert.Equal(t, "PRD-FIN-20260204-0007", FormatTagged(PrefixProduct, "FIN", d, 7))
	assert.Equal(t, "PRD-RAW-20260204-0007", FormatTagged(PrefixProduct, "RAW", d, 7))
}

func TestSequencerSequentialAllocations(t *testing.T) {
	d := day(t, "2026-02-04")
	stored := map[string]bool{}
	seq := NewSequencer(func(ctx context.Context, _ time.Time) (int, error) {
		return len(stored), nil
	})

	for i := 1; i <= 3; i++ {
		ref, err := seq.Allocate(context.Background(), PrefixInvoice, d, func(ctx context.Context, reference string) error {
			stored[reference] = true
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, Format(PrefixInvoice, d, i), ref)
	}
}

func TestSequencerDayRollover(t *testing.T) {
	counts := map[string]int{"2026-02-04": 9}
	seq := NewSequencer(func(ctx context.Context, d time.Time) (int, error) {
		return counts[d.Format("2006-01-02")], nil
	})

	ref, err := seq.Next(context.Background(), PrefixQuote, day(t, "2026-02-04"))
	require.NoError(t, err)
	assert.Equal(t, "QTE-20260204-0010", ref)

	ref, err = seq.Next(context.Background(), PrefixQuote, day(t, "2026-02-05"))
	require.NoError(t, err)
	assert.Equal(t, "QTE-20260205-0001", ref)
}

func TestSequencerRetriesOnUniqueViolation(t *testing.T) {
	d := day(t, "2026-02-04")
	count := 4
	attempts := 0
	seq := NewSequencer(func(ctx context.Context, _ time.Time) (int, error) {
		return count, nil
	})

	ref, err := seq.Allocate(context.Background(), PrefixRepair, d, func(ctx context.Context, reference string) error {
		attempts++
		if attempts == 1 {
			// Simulate losing the race: another writer took the slot.
			count++
			return &pgconn.PgError{Code: "23505"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, "REP-20260204-0006", ref)
}

func TestSequencerGivesUpAfterMaxAttempts(t *testing.T) {
	d := day(t, "2026-02-04")
	seq := NewSequencer(func(ctx context.Context, _ time.Time) (int, error) {
		return 0, nil
	})

	_, err := seq.Allocate(context.Background(), PrefixClient, d, func(ctx context.Context, reference string) error {
		return &pgconn.PgError{Code: "23505"}
	})
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestSequencerPropagatesInsertError(t *testing.T) {
	d := day(t, "2026-02-04")
	boom := errors.New("connection reset")
	seq := NewSequencer(func(ctx context.Context, _ time.Time) (int, error) {
		return 0, nil
	})

	_, err := seq.Allocate(context.Background(), PrefixSupplier, d, func(ctx context.Context, reference string) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
	assert.False(t, IsUniqueViolation(nil))
}
