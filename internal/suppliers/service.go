package suppliers

import (
	"context"
	"fmt"
	"time"

	"github.com/hafsa-erp/hafsa-erp/internal/refs"
	"github.com/hafsa-erp/hafsa-erp/internal/shared"
)

// RepositoryPort defines data access methods for suppliers.
type RepositoryPort interface {
	CountCreatedOn(ctx context.Context, day time.Time) (int, error)
	Insert(ctx context.Context, s Supplier) (int64, error)
	Get(ctx context.Context, id int64) (*Supplier, error)
	List(ctx context.Context, req ListSuppliersRequest) ([]Supplier, int, error)
	Update(ctx context.Context, id int64, updates map[string]any) error
	SoftDelete(ctx context.Context, id int64) error
}

// ActivityPort records audit entries.
type ActivityPort interface {
	Record(ctx context.Context, entry shared.ActivityEntry) error
}

// Service handles supplier business logic.
type Service struct {
	repo     RepositoryPort
	activity ActivityPort
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, activity ActivityPort) *Service {
	return &Service{repo: repo, activity: activity, now: time.Now}
}

// Create allocates a SUP reference and persists the supplier.
func (s *Service) Create(ctx context.Context, req CreateSupplierRequest, createdBy int64) (*Supplier, error) {
	supplier := Supplier{
		Name:          req.Name,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
		Email:         req.Email,
		Address:       req.Address,
		Notes:         req.Notes,
		IsActive:      true,
		CreatedBy:     createdBy,
	}

	seq := refs.NewSequencer(s.repo.CountCreatedOn)
	var id int64
	reference, err := seq.Allocate(ctx, refs.PrefixSupplier, s.now(), func(ctx context.Context, reference string) error {
		supplier.Reference = reference
		var err error
		id, err = s.repo.Insert(ctx, supplier)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create supplier: %w", err)
	}

	s.record(ctx, createdBy, "CREATE", reference)
	return s.repo.Get(ctx, id)
}

// Get retrieves a supplier by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Supplier, error) {
	return s.repo.Get(ctx, id)
}

// List returns a paginated listing.
func (s *Service) List(ctx context.Context, req ListSuppliersRequest) ([]Supplier, int, error) {
	return s.repo.List(ctx, req)
}

// Update applies partial changes to a supplier.
func (s *Service) Update(ctx context.Context, id int64, req UpdateSupplierRequest, actorID int64) (*Supplier, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.ContactPerson != nil {
		updates["contact_person"] = *req.ContactPerson
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
		return nil, fmt.Errorf("update supplier: %w", err)
	}
	s.record(ctx, actorID, "UPDATE", existing.Reference)
	return s.repo.Get(ctx, id)
}

// Deactivate soft-deletes the supplier.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "DELETE", existing.Reference)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, reference string) {
	if s.activity == nil {
		return
	}
	_ = s.activity.Record(ctx, shared.ActivityEntry{
		ActorID:   actorID,
		Action:    action,
		Entity:    "supplier",
		Reference: reference,
	})
}
