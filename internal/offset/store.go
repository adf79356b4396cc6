package offset

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrInvalidAccountKey = errors.New("invalid_account_key")
	ErrInvalidDocType    = errors.New("invalid_doc_type")
	ErrInvalidCounterKey = errors.New("invalid_counter_key")
	ErrNegativeValue     = errors.New("negative_value")
)

// InitialCursor is the position of an account that has processed nothing.
// Cursors are one-indexed: a cursor of N resumes at the N-th oldest document.
const InitialCursor int64 = 1

// Store persists migration cursors and per-account document counters.
//
// Reads never fail: a missing or unreadable cursor reads as InitialCursor and
// a missing counter as 0. Advances are atomic increments, so concurrent
// callers never lose an update. Counters are keyed by account id so renaming
// an account keeps its numbering.
type Store interface {
	GetCursor(ctx context.Context, accountKey, docType string) int64
	AdvanceCursor(ctx context.Context, accountKey, docType string) error
	SetCursor(ctx context.Context, accountKey, docType string, value int64) error

	GetDocumentCounter(ctx context.Context, counterKey string) int64
	AdvanceDocumentCounter(ctx context.Context, counterKey string) error
	// SeedDocumentCounter sets the counter only when the key has none yet.
	SeedDocumentCounter(ctx context.Context, counterKey string, value int64) error
}

func validateCursorKey(accountKey, docType string) error {
	if strings.TrimSpace(accountKey) == "" {
		return ErrInvalidAccountKey
	}
	if strings.TrimSpace(docType) == "" {
		return ErrInvalidDocType
	}
	return nil
}

func validateCounterKey(counterKey string) error {
	if strings.TrimSpace(counterKey) == "" {
		return ErrInvalidCounterKey
	}
	return nil
}
