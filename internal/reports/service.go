package reports

import (
	"context"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/shopspring/decimal"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/export"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// RepositoryPort defines data access methods for reporting.
type RepositoryPort interface {
	DailySummary(ctx context.Context, day time.Time) (*DailySummary, error)
	Register(ctx context.Context, req RegisterRequest) ([]RegisterRow, error)
}

// RecorderPort writes audit entries for report exports.
type RecorderPort interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service handles report assembly and export rendering.
type Service struct {
	repo     RepositoryPort
	recorder RecorderPort
	printer  *message.Printer
	now      func() time.Time
}

// NewService builds Service instance. Exported amounts are formatted
// for the given locale.
func NewService(repo RepositoryPort, recorder RecorderPort, locale language.Tag) *Service {
	return &Service{
		repo:     repo,
		recorder: recorder,
		printer:  message.NewPrinter(locale),
		now:      time.Now,
	}
}

// DailySummary aggregates one day of sales activity.
func (s *Service) DailySummary(ctx context.Context, day time.Time) (*DailySummary, error) {
	return s.repo.DailySummary(ctx, day)
}

// Register lists invoices issued in the requested window.
func (s *Service) Register(ctx context.Context, req RegisterRequest) ([]RegisterRow, error) {
	if req.To.IsZero() {
		req.To = s.now()
	}
	if req.From.IsZero() {
		req.From = req.To.AddDate(0, -1, 0)
	}
	return s.repo.Register(ctx, req)
}

// amount renders a decimal with locale-aware separators for exports.
func (s *Service) amount(d decimal.Decimal) string {
	f, _ := d.Float64()
	return s.printer.Sprintf("%v", number.Decimal(f, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// ExportDailySummary renders the daily summary for download.
func (s *Service) ExportDailySummary(ctx context.Context, day time.Time, actorID int64) (export.Table, error) {
	summary, err := s.repo.DailySummary(ctx, day)
	if err != nil {
		return export.Table{}, err
	}

	s.recordExport(ctx, actorID, "daily-summary", 1)
	return export.Table{
		Name:    "daily-summary",
		Headers: []string{"Day", "Invoices", "Revenue", "Collected", "Outstanding"},
		Rows: [][]string{{
			summary.Day.Format("2006-01-02"),
			s.printer.Sprintf("%d", summary.InvoiceCount),
			s.amount(summary.Revenue),
			s.amount(summary.Collected),
			s.amount(summary.Outstanding),
		}},
	}, nil
}

// ExportRegister renders the sales register for download.
func (s *Service) ExportRegister(ctx context.Context, req RegisterRequest, actorID int64) (export.Table, error) {
	items, err := s.Register(ctx, req)
	if err != nil {
		return export.Table{}, err
	}

	rows := make([][]string, 0, len(items))
	for _, row := range items {
		rows = append(rows, []string{
			row.Reference,
			row.ClientLabel,
			row.Status,
			row.IssuedAt.Format("2006-01-02 15:04"),
			s.amount(row.Total),
			s.amount(row.Paid),
			s.amount(row.Balance),
		})
	}

	s.recordExport(ctx, actorID, "sales-register", len(rows))
	return export.Table{
		Name:    "sales-register",
		Headers: []string{"Reference", "Client", "Status", "Issued", "Total", "Paid", "Balance"},
		Rows:    rows,
	}, nil
}

func (s *Service) recordExport(ctx context.Context, actorID int64, report string, rows int) {
	if s.recorder == nil {
		return
	}
	_ = s.recorder.Record(ctx, shared.ActivityEntry{
		ActorID:   actorID,
		Action:    "EXPORT",
		Entity:    "report",
		Reference: report,
		Meta:      map[string]any{"rows": rows},
	})
}
