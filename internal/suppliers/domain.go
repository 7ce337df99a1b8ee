package suppliers

import "time"

// Supplier represents a vendor the shop buys stock and raw material from.
type Supplier struct {
	ID            int64     `json:"id"`
	Reference     string    `json:"reference"`
	Name          string    `json:"name"`
	ContactPerson *string   `json:"contact_person,omitempty"`
	Phone         *string   `json:"phone,omitempty"`
	Email         *string   `json:"email,omitempty"`
	Address       *string   `json:"address,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedBy     int64     `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateSupplierRequest carries fields for creating a supplier.
type CreateSupplierRequest struct {
	Name          string  `json:"name" validate:"required,max=200"`
	ContactPerson *string `json:"contact_person,omitempty" validate:"omitempty,max=200"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Address       *string `json:"address,omitempty" validate:"omitempty,max=300"`
	Notes         *string `json:"notes,omitempty"`
}

// UpdateSupplierRequest carries partial updates.
type UpdateSupplierRequest struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,max=200"`
	ContactPerson *string `json:"contact_person,omitempty" validate:"omitempty,max=200"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Address       *string `json:"address,omitempty" validate:"omitempty,max=300"`
	Notes         *string `json:"notes,omitempty"`
}

// ListSuppliersRequest filters the listing.
type ListSuppliersRequest struct {
	Search   *string `json:"search,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
	Page     int     `json:"page" validate:"gte=0"`
	PerPage  int     `json:"per_page" validate:"gte=0,lte=200"`
}
