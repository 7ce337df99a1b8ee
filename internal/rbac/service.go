package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnknownUser indicates no role record exists for the user.
var ErrUnknownUser = errors.New("rbac: unknown user")

// Service resolves the effective capability set for a user.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs the Service.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// UserRole loads the role assigned to a user.
func (s *Service) UserRole(ctx context.Context, userID int64) (Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 AND is_active`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUnknownUser
		}
		return "", fmt.Errorf("rbac: load role: %w", err)
	}
	if !ValidRole(role) {
		return "", fmt.Errorf("rbac: role %q outside the known set", role)
	}
	return role, nil
}

// EffectiveCapabilities returns the capability set for a user.
func (s *Service) EffectiveCapabilities(ctx context.Context, userID int64) (map[Capability]struct{}, error) {
	role, err := s.UserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	return CapabilitiesFor(role), nil
}

// Can reports whether the user holds the capability.
func (s *Service) Can(ctx context.Context, userID int64, cap Capability) (bool, error) {
	granted, err := s.EffectiveCapabilities(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			return false, nil
		}
		return false, err
	}
	_, ok := granted[cap]
	return ok, nil
}
