// Package activity exposes the audit trail written by the domain
// services: querying, export and retention cleanup.
package activity

import (
	"time"
)

// Entry is one stored audit record.
type Entry struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	Reference  string         `json:"reference"`
	IP         string         `json:"ip,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// ListRequest filters the audit listing.
type ListRequest struct {
	ActorID   *int64     `json:"actor_id,omitempty"`
	Entity    *string    `json:"entity,omitempty"`
	Action    *string    `json:"action,omitempty"`
	Reference *string    `json:"reference,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	Page      int        `json:"page" validate:"gte=0"`
	PerPage   int        `json:"per_page" validate:"gte=0,lte=500"`
}
