package reports

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

type fakeReportsRepo struct {
	summary   *DailySummary
	rows      []RegisterRow
	lastRange RegisterRequest
}

func (r *fakeReportsRepo) DailySummary(_ context.Context, day time.Time) (*DailySummary, error) {
	s := *r.summary
	s.Day = day
	return &s, nil
}

func (r *fakeReportsRepo) Register(_ context.Context, req RegisterRequest) ([]RegisterRow, error) {
	r.lastRange = req
	return r.rows, nil
}

type fakeReportRecorder struct {
	entries []shared.ActivityEntry
}

func (r *fakeReportRecorder) Record(_ context.Context, entry shared.ActivityEntry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func testSummary() *DailySummary {
	return &DailySummary{
		InvoiceCount: 3,
		Revenue:      decimal.RequireFromString("12450.00"),
		Collected:    decimal.RequireFromString("8000.00"),
		Outstanding:  decimal.RequireFromString("4450.00"),
	}
}

func TestExportDailySummaryLocalizesAmounts(t *testing.T) {
	repo := &fakeReportsRepo{summary: testSummary()}
	recorder := &fakeReportRecorder{}
	svc := NewService(repo, recorder, language.English)

	day := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	table, err := svc.ExportDailySummary(context.Background(), day, 5)
	require.NoError(t, err)

	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	assert.Equal(t, "2025-07-15", row[0])
	assert.Equal(t, "3", row[1])
	assert.Equal(t, "12,450.00", row[2])
	assert.Equal(t, "8,000.00", row[3])
	assert.Equal(t, "4,450.00", row[4])

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "EXPORT", recorder.entries[0].Action)
	assert.Equal(t, "daily-summary", recorder.entries[0].Reference)
}

func TestRegisterDefaultsWindowToLastMonth(t *testing.T) {
	repo := &fakeReportsRepo{summary: testSummary()}
	svc := NewService(repo, nil, language.English)
	now := time.Date(2025, 7, 20, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	_, err := svc.Register(context.Background(), RegisterRequest{})
	require.NoError(t, err)
	assert.Equal(t, now, repo.lastRange.To)
	assert.Equal(t, now.AddDate(0, -1, 0), repo.lastRange.From)
}

func TestExportRegisterRendersRows(t *testing.T) {
	repo := &fakeReportsRepo{
		summary: testSummary(),
		rows: []RegisterRow{
			{
				Reference:   "INV-20250715-0002",
				ClientLabel: "Walk-in",
				Status:      "PAID",
				IssuedAt:    time.Date(2025, 7, 15, 14, 30, 0, 0, time.UTC),
				Total:       decimal.RequireFromString("1500.00"),
				Paid:        decimal.RequireFromString("1500.00"),
				Balance:     decimal.Zero,
			},
		},
	}
	recorder := &fakeReportRecorder{}
	svc := NewService(repo, recorder, language.English)

	table, err := svc.ExportRegister(context.Background(), RegisterRequest{
		From: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	}, 5)
	require.NoError(t, err)

	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	assert.Equal(t, "INV-20250715-0002", row[0])
	assert.Equal(t, "Walk-in", row[1])
	assert.Equal(t, "1,500.00", row[4])
	assert.Equal(t, "0.00", row[6])

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "sales-register", recorder.entries[0].Reference)
}
