package cegid

import (
	"errors"
	"fmt"
)

var (
	ErrMissingCredentials  = errors.New("cegid_missing_credentials")
	ErrAuthFailed          = errors.New("cegid_auth_failed")
	ErrUnauthorized        = errors.New("cegid_unauthorized")
	ErrCodeExists          = errors.New("cegid_code_exists")
	ErrSubaccountExhausted = errors.New("cegid_subaccount_retries_exhausted")
	ErrInvalidResponse     = errors.New("cegid_invalid_response")
	ErrInvalidClass        = errors.New("cegid_invalid_account_class")
)

// APIError is a non-success response from the target ledger.
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cegid %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}
