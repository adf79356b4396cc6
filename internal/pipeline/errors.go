package pipeline

import (
	"context"
	"errors"

	"github.com/smallbiznis/ledgerbridge/internal/cegid"
	"github.com/smallbiznis/ledgerbridge/internal/holded"
	"github.com/smallbiznis/ledgerbridge/internal/offset"
	"github.com/smallbiznis/ledgerbridge/internal/transform"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig      = errors.New("pipeline_invalid_config")
	ErrUnsupportedDocType = errors.New("pipeline_unsupported_doc_type")
	ErrListDocuments      = errors.New("pipeline_list_documents_failed")
	ErrDuplicateExhausted = errors.New("pipeline_duplicate_retries_exhausted")
	ErrAccountBusy        = errors.New("pipeline_account_busy")
	ErrAccountNotFound    = errors.New("pipeline_account_not_found")
)

// Error classes reported in logs, metrics and the run ledger.
const (
	ErrorClassDuplicate = "duplicate"
	ErrorClassMapping   = "mapping"
	ErrorClassUpstream  = "upstream"
	ErrorClassAuth      = "auth"
	ErrorClassStore     = "store"
	ErrorClassCanceled  = "canceled"
	ErrorClassUnknown   = "unknown"
)

// ClassifySyncError maps an error to a low-cardinality class.
func ClassifySyncError(err error) string {
	if err == nil {
		return ErrorClassUnknown
	}
	var cegidErr *cegid.APIError
	var holdedErr *holded.StatusError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassCanceled
	case errors.Is(err, ErrDuplicateExhausted):
		return ErrorClassDuplicate
	case errors.Is(err, cegid.ErrMissingCredentials),
		errors.Is(err, cegid.ErrAuthFailed),
		errors.Is(err, cegid.ErrUnauthorized),
		errors.Is(err, holded.ErrMissingAPIKey),
		errors.Is(err, holded.ErrUnauthorized):
		return ErrorClassAuth
	case errors.Is(err, transform.ErrInvalidDocType),
		errors.Is(err, transform.ErrMissingAccountCode),
		errors.Is(err, ErrUnsupportedDocType),
		errors.Is(err, cegid.ErrInvalidClass),
		errors.Is(err, cegid.ErrSubaccountExhausted),
		errors.Is(err, holded.ErrInvalidDocType):
		return ErrorClassMapping
	case errors.Is(err, offset.ErrInvalidAccountKey),
		errors.Is(err, offset.ErrInvalidDocType),
		errors.Is(err, offset.ErrInvalidCounterKey),
		errors.Is(err, gorm.ErrInvalidDB),
		errors.Is(err, gorm.ErrInvalidTransaction):
		return ErrorClassStore
	case errors.As(err, &cegidErr),
		errors.As(err, &holdedErr),
		errors.Is(err, cegid.ErrInvalidResponse),
		errors.Is(err, holded.ErrInvalidResponse),
		errors.Is(err, holded.ErrNotFound),
		errors.Is(err, ErrListDocuments):
		return ErrorClassUpstream
	default:
		return ErrorClassUnknown
	}
}
