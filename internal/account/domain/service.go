package domain

import (
	"context"
	"errors"
)

type CreateAccountRequest struct {
	Name             string           `json:"name" validate:"required,max=191"`
	HoldedAPIKey     string           `json:"holded_api_key" validate:"required"`
	CegidCompanyCode string           `json:"cegid_company_code" validate:"required"`
	Mode             Mode             `json:"mode" validate:"required,oneof=legacy new-system"`
	DocTypes         []string         `json:"doc_types" validate:"required,min=1,unique,dive,oneof=invoice estimate purchase"`
	DocumentCounter  int64            `json:"document_counter" validate:"gte=0"`
	Cursors          map[string]int64 `json:"cursors,omitempty" validate:"omitempty,dive,keys,oneof=invoice estimate purchase,endkeys,gte=0"`
}

type UpdateAccountRequest struct {
	ID string `json:"-" validate:"required"`
	CreateAccountRequest
}

type Service interface {
	Create(ctx context.Context, req CreateAccountRequest) (Account, error)
	Update(ctx context.Context, req UpdateAccountRequest) (Account, error)
	Delete(ctx context.Context, id string) error
	Duplicate(ctx context.Context, id string) (Account, error)
	Get(ctx context.Context, id string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	// Cursors returns the current cursor of every configured document type.
	Cursors(ctx context.Context, id string) (map[string]int64, error)
	// Import upserts accounts by name and reports how many were created.
	Import(ctx context.Context, reqs []CreateAccountRequest) (int, error)
}

var (
	ErrInvalidID      = errors.New("invalid_id")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrNameTaken      = errors.New("name_taken")
)

// DuplicateSuffix is appended to the name of a duplicated account.
const DuplicateSuffix = " (copia)"
