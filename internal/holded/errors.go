package holded

import (
	"errors"
	"fmt"
)

var (
	ErrMissingAPIKey   = errors.New("holded_api_key_missing")
	ErrInvalidDocType  = errors.New("holded_invalid_doc_type")
	ErrNotFound        = errors.New("holded_not_found")
	ErrUnauthorized    = errors.New("holded_unauthorized")
	ErrInvalidResponse = errors.New("holded_invalid_response")
)

// StatusError is a non-success HTTP response from the source ledger.
type StatusError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("holded %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}
