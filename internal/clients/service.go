package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/hafsa-erp/hafsa-erp/internal/refs"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// RepositoryPort defines data access methods for clients.
type RepositoryPort interface {
	CountCreatedOn(ctx context.Context, day time.Time) (int, error)
	Insert(ctx context.Context, c Client) (int64, error)
	Get(ctx context.Context, id int64) (*Client, error)
	List(ctx context.Context, req ListClientsRequest) ([]Client, int, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	SoftDelete(ctx context.Context, id int64) error
	AggregateBalance(ctx context.Context, clientID int64) (Balance, error)
}

// ActivityPort records audit entries.
type ActivityPort interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service handles client business logic.
type Service struct {
	repo     RepositoryPort
	cache    *BalanceCache
	activity ActivityPort
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache *BalanceCache, activity ActivityPort) *Service {
	return &Service{repo: repo, cache: cache, activity: activity, now: time.Now}
}

// Create allocates a CLI reference and persists the client.
func (s *Service) Create(ctx context.Context, req CreateClientRequest, createdBy int64) (*Client, error) {
	client := Client{
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		Address:   req.Address,
		Notes:     req.Notes,
		IsActive:  true,
		CreatedBy: createdBy,
	}

	seq := refs.NewSequencer(s.repo.CountCreatedOn)
	var id int64
	reference, err := seq.Allocate(ctx, refs.PrefixClient, s.now(), func(ctx context.Context, reference string) error {
		client.Reference = reference
		var err error
		id, err = s.repo.Insert(ctx, client)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	client.ID = id
	client.Reference = reference

	s.record(ctx, createdBy, "CREATE", reference, nil)
	return s.repo.Get(ctx, id)
}

// Get retrieves a client by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Client, error) {
	return s.repo.Get(ctx, id)
}

// List returns a paginated listing.
func (s *Service) List(ctx context.Context, req ListClientsRequest) ([]Client, int, error) {
	return s.repo.List(ctx, req)
}

// Update applies partial changes to a client.
func (s *Service) Update(ctx context.Context, id int64, req UpdateClientRequest, actorID int64) (*Client, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Address != nil {
		updates["address"] = *req.Address
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return existing, nil
	}

	if err := s.repo.Update(ctx, id, updates); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	s.record(ctx, actorID, "UPDATE", existing.Reference, nil)
	return s.repo.Get(ctx, id)
}

// Deactivate soft-deletes the client and evicts its cached balance.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		return fmt.Errorf("invalidate balance cache: %w", err)
	}
	s.record(ctx, actorID, "DELETE", existing.Reference, nil)
	return nil
}

// Balance returns the outstanding balance, served from cache when warm.
func (s *Service) Balance(ctx context.Context, id int64) (Balance, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return Balance{}, err
	}
	return s.cache.Fetch(ctx, id, func(ctx context.Context) (Balance, error) {
		return s.repo.AggregateBalance(ctx, id)
	})
}

// InvalidateBalance evicts the cached balance; document and payment
// write paths call this before returning.
func (s *Service) InvalidateBalance(ctx context.Context, clientID int64) error {
	return s.cache.Invalidate(ctx, clientID)
}

func (s *Service) record(ctx context.Context, actorID int64, action, reference string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	_ = s.activity.Record(ctx, shared.ActivityEntry{
		ActorID:   actorID,
		Action:    action,
		Entity:    "client",
		Reference: reference,
		Meta:      meta,
	})
}
