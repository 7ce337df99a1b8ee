package repairs

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hafsa-erp/hafsa-erp/internal/platform/httpx"
	"github.com/hafsa-erp/hafsa-erp/internal/refs"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// RepositoryPort defines data access methods for repair tickets.
type RepositoryPort interface {
	CountCreatedOn(ctx context.Context, day time.Time) (int, error)
	Insert(ctx context.Context, t Ticket) (int64, error)
	Get(ctx context.Context, id int64) (*Ticket, error)
	List(ctx context.Context, req ListTicketsRequest) ([]Ticket, int, error)
	Mutate(ctx context.Context, id int64, fn func(*Ticket) error) (*Ticket, error)
}

// ActivityPort records audit entries.
type ActivityPort interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service handles repair ticket business logic.
type Service struct {
	repo     RepositoryPort
	activity ActivityPort
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, activity ActivityPort) *Service {
	return &Service{repo: repo, activity: activity, now: time.Now}
}

func parseCost(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", field, httpx.ErrValidation)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s must not be negative: %w", field, httpx.ErrValidation)
	}
	return d, nil
}

// Create opens a repair ticket in RECEIVED state.
func (s *Service) Create(ctx context.Context, req CreateTicketRequest, createdBy int64) (*Ticket, error) {
	estimate, err := parseCost("estimated_cost", req.EstimatedCost)
	if err != nil {
		return nil, err
	}

	ticket := Ticket{
		ClientID:      req.ClientID,
		ContactPhone:  req.ContactPhone,
		ItemDesc:      req.ItemDesc,
		ProblemDesc:   req.ProblemDesc,
		EstimatedCost: estimate,
		PromisedAt:    req.PromisedAt,
		CreatedBy:     createdBy,
	}

	seq := refs.NewSequencer(s.repo.CountCreatedOn)
	var id int64
	reference, err := seq.Allocate(ctx, refs.PrefixRepair, s.now(), func(ctx context.Context, reference string) error {
		ticket.Reference = reference
		var err error
		id, err = s.repo.Insert(ctx, ticket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create repair ticket: %w", err)
	}

	s.record(ctx, createdBy, "CREATE", reference, nil)
	return s.repo.Get(ctx, id)
}

// Get retrieves a ticket by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Ticket, error) {
	return s.repo.Get(ctx, id)
}

// List returns a paginated listing.
func (s *Service) List(ctx context.Context, req ListTicketsRequest) ([]Ticket, int, error) {
	return s.repo.List(ctx, req)
}

// Update edits descriptions and costs on an open ticket.
func (s *Service) Update(ctx context.Context, id int64, req UpdateTicketRequest, actorID int64) (*Ticket, error) {
	ticket, err := s.repo.Mutate(ctx, id, func(t *Ticket) error {
		if t.Status.Terminal() {
			return ErrTicketClosed
		}
		if req.ItemDesc != nil {
			t.ItemDesc = *req.ItemDesc
		}
		if req.ProblemDesc != nil {
			t.ProblemDesc = req.ProblemDesc
		}
		if req.EstimatedCost != nil {
			d, err := parseCost("estimated_cost", *req.EstimatedCost)
			if err != nil {
				return err
			}
			t.EstimatedCost = d
		}
		if req.FinalCost != nil {
			d, err := parseCost("final_cost", *req.FinalCost)
			if err != nil {
				return err
			}
			if d.LessThan(t.DepositPaid) {
				return fmt.Errorf("final cost below deposits taken: %w", httpx.ErrValidation)
			}
			t.FinalCost = d
		}
		if req.PromisedAt != nil {
			t.PromisedAt = req.PromisedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "UPDATE", ticket.Reference, nil)
	return ticket, nil
}

// Advance moves the ticket one step along received, in progress, ready,
// delivered. Delivery requires the balance settled.
func (s *Service) Advance(ctx context.Context, id int64, actorID int64) (*Ticket, error) {
	ticket, err := s.repo.Mutate(ctx, id, func(t *Ticket) error {
		next, ok := transitions[t.Status]
		if !ok {
			return ErrBadTransition
		}
		if next == TicketDelivered && t.AmountDue().IsPositive() {
			return fmt.Errorf("balance outstanding on delivery: %w", httpx.ErrConflict)
		}
		t.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "ADVANCE", ticket.Reference, map[string]any{"status": string(ticket.Status)})
	return ticket, nil
}

// Cancel closes the ticket from any non-terminal state.
func (s *Service) Cancel(ctx context.Context, id int64, actorID int64) error {
	ticket, err := s.repo.Mutate(ctx, id, func(t *Ticket) error {
		if t.Status.Terminal() {
			return ErrTicketClosed
		}
		t.Status = TicketCancelled
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, "DELETE", ticket.Reference, nil)
	return nil
}

// RecordDeposit takes a deposit against the ticket's amount due.
func (s *Service) RecordDeposit(ctx context.Context, id int64, req DepositRequest, actorID int64) (*Ticket, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be positive: %w", httpx.ErrValidation)
	}

	ticket, err := s.repo.Mutate(ctx, id, func(t *Ticket) error {
		if t.Status.Terminal() {
			return ErrTicketClosed
		}
		if amount.GreaterThan(t.AmountDue()) {
			return ErrDepositExceedsDue
		}
		t.DepositPaid = t.DepositPaid.Add(amount).Round(2)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "DEPOSIT", ticket.Reference, map[string]any{
		"amount": amount.StringFixed(2),
		"method": req.Method,
	})
	return ticket, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, reference string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	_ = s.activity.Record(ctx, shared.ActivityEntry{
		ActorID:   actorID,
		Action:    action,
		Entity:    "repair_ticket",
		Reference: reference,
		Meta:      meta,
	})
}
