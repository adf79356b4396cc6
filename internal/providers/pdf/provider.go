package pdf

import (
	"context"
	"io"

	"github.com/smallbiznis/ledgerbridge/internal/cegid"
)

// Provider renders the fallback attachment of an accounting entry.
type Provider interface {
	GenerateEntrySummary(ctx context.Context, entry *cegid.Entry) (io.Reader, error)
}

var _ Provider = (*PDFProvider)(nil)
