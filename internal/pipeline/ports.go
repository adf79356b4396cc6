package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/smallbiznis/ledgerbridge/internal/cegid"
	"github.com/smallbiznis/ledgerbridge/internal/holded"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline/runlog"
)

// Source reads documents from the invoicing system.
type Source interface {
	ListDocuments(ctx context.Context, docType string, start, end *time.Time) ([]holded.DocumentSummary, error)
	DocumentDetail(ctx context.Context, id, docType string) (*holded.Invoice, error)
	GetContact(ctx context.Context, contactID string) (*holded.Contact, error)
	GetDocumentPDFBase64(ctx context.Context, id, docType string) (string, error)
}

// Target books entries in the accounting ledger.
type Target interface {
	SearchSubaccount(ctx context.Context, taxID, name string, class cegid.AccountClass) (string, error)
	CreateSubaccount(ctx context.Context, req cegid.SubaccountRequest) (string, error)
	SubmitEntryLegacy(ctx context.Context, entry *cegid.Entry) (cegid.SubmitResult, error)
	SubmitEntryNewSystem(ctx context.Context, entry *cegid.Entry) (cegid.SubmitResult, error)
	UploadAttachment(ctx context.Context, att cegid.Attachment) error
	EntryExists(ctx context.Context, documentNumber string) (bool, error)
}

// RunRecorder stores the outcome of each processed document.
type RunRecorder interface {
	Record(ctx context.Context, run *runlog.DocumentRun, metadata map[string]any) error
}

// SummaryRenderer renders a stand-in PDF for entries whose source has none.
type SummaryRenderer interface {
	GenerateEntrySummary(ctx context.Context, entry *cegid.Entry) (io.Reader, error)
}

var (
	_ Source      = (*holded.Client)(nil)
	_ Target      = (*cegid.Client)(nil)
	_ RunRecorder = (*runlog.Recorder)(nil)
)
