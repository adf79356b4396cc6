package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	accountdomain "github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"github.com/smallbiznis/ledgerbridge/internal/cegid"
	"github.com/smallbiznis/ledgerbridge/internal/clock"
	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/smallbiznis/ledgerbridge/internal/holded"
	obscontext "github.com/smallbiznis/ledgerbridge/internal/observability/context"
	obslogger "github.com/smallbiznis/ledgerbridge/internal/observability/logger"
	"github.com/smallbiznis/ledgerbridge/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbridge/internal/observability/tracing"
	"github.com/smallbiznis/ledgerbridge/internal/offset"
	"github.com/smallbiznis/ledgerbridge/internal/pipeline/runlog"
	"github.com/smallbiznis/ledgerbridge/internal/providers/pdf"
	"github.com/smallbiznis/ledgerbridge/internal/transform"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const unknownContactNameLen = 50

// DriverConfig bounds a single account batch.
type DriverConfig struct {
	BatchSize           int
	Pacing              time.Duration
	MaxDuplicateRetries int
	FallbackPDF         bool
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		BatchSize:           15,
		Pacing:              500 * time.Millisecond,
		MaxDuplicateRetries: 3,
	}
}

func (c DriverConfig) withDefaults() DriverConfig {
	defaults := DefaultDriverConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Pacing < 0 {
		c.Pacing = 0
	}
	if c.MaxDuplicateRetries < 0 {
		c.MaxDuplicateRetries = defaults.MaxDuplicateRetries
	}
	return c
}

// BatchResult summarizes one ProcessAccount call.
type BatchResult struct {
	AccountID   string        `json:"account_id"`
	AccountName string        `json:"account_name"`
	DocType     string        `json:"doc_type"`
	Listed      int           `json:"listed"`
	Skipped     int           `json:"skipped"`
	Processed   int           `json:"processed"`
	Submitted   int           `json:"submitted"`
	Abandoned   int           `json:"abandoned"`
	Failed      int           `json:"failed"`
	CursorStart int64         `json:"cursor_start"`
	CursorEnd   int64         `json:"cursor_end"`
	Canceled    bool          `json:"canceled"`
	Duration    time.Duration `json:"duration"`
}

// Driver moves documents of one account and type from the source to the target ledger.
type Driver struct {
	cfg         DriverConfig
	offsets     offset.Store
	transformer *transform.Service
	runs        RunRecorder
	renderer    SummaryRenderer
	clock       clock.Clock
	log         *zap.Logger
	metrics     *metrics.Metrics
}

type DriverParams struct {
	fx.In

	Config      config.Config
	Offsets     offset.Store
	Transformer *transform.Service
	Runs        *runlog.Recorder `optional:"true"`
	Renderer    pdf.Provider     `optional:"true"`
	Clock       clock.Clock
	Log         *zap.Logger
	Metrics     *metrics.Metrics `optional:"true"`
}

func NewDriver(p DriverParams) (*Driver, error) {
	if p.Offsets == nil || p.Transformer == nil || p.Clock == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	d := &Driver{
		cfg: DriverConfig{
			BatchSize:           p.Config.Sync.BatchSize,
			Pacing:              p.Config.Sync.Pacing,
			MaxDuplicateRetries: p.Config.Sync.MaxDuplicateRetries,
			FallbackPDF:         p.Config.Sync.FallbackPDF,
		}.withDefaults(),
		offsets:     p.Offsets,
		transformer: p.Transformer,
		clock:       p.Clock,
		log:         p.Log.Named("pipeline").With(zap.String("component", "driver")),
		metrics:     p.Metrics,
	}
	if p.Runs != nil {
		d.runs = p.Runs
	}
	if p.Renderer != nil {
		d.renderer = p.Renderer
	}
	return d, nil
}

// NewDriverWith builds a driver from explicit dependencies. runs and renderer may be nil.
func NewDriverWith(cfg DriverConfig, offsets offset.Store, transformer *transform.Service, runs RunRecorder, renderer SummaryRenderer, clk clock.Clock, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{
		cfg:         cfg.withDefaults(),
		offsets:     offsets,
		transformer: transformer,
		runs:        runs,
		renderer:    renderer,
		clock:       clk,
		log:         log.Named("pipeline").With(zap.String("component", "driver")),
	}
}

// ProcessAccount runs one batch for account and docType.
//
// Documents are taken oldest first, resuming after the stored cursor, at most
// BatchSize per call. Each document is processed to completion even when ctx
// is canceled meanwhile; cancellation is honored between documents. The
// cursor is advanced once per attempted document whatever its outcome.
// Only failing to list the source documents fails the batch.
func (d *Driver) ProcessAccount(ctx context.Context, source Source, target Target, account accountdomain.Account, docType string) (result BatchResult, err error) {
	start := d.clock.Now()
	result = BatchResult{AccountID: account.ID, AccountName: account.Name, DocType: docType}
	ctx = obscontext.WithAccount(ctx, account.ID, docType)
	log := obslogger.WithContext(ctx, d.log).With(zap.String("account_name", account.Name))
	syncMetrics := metrics.Sync()
	defer func() {
		result.Duration = d.clock.Now().Sub(start)
		syncMetrics.ObserveBatchDuration(docType, result.Duration)
	}()

	cursor := d.offsets.GetCursor(ctx, account.ID, docType)
	result.CursorStart, result.CursorEnd = cursor, cursor

	listed, err := source.ListDocuments(ctx, docType, nil, nil)
	if err != nil {
		syncMetrics.IncDocumentError("list", ClassifySyncError(err))
		log.Error("pipeline.batch.list_failed", zap.Error(err))
		return result, fmt.Errorf("%w: %s: %w", ErrListDocuments, docType, err)
	}
	result.Listed = len(listed)

	pending := batchWindow(listed, cursor, d.cfg.BatchSize)
	result.Skipped = skipCount(cursor, len(listed))
	log.Info("pipeline.batch.start",
		zap.Int64("cursor", cursor),
		zap.Int("listed", len(listed)),
		zap.Int("pending", len(pending)),
	)

	for i, summary := range pending {
		if err := ctx.Err(); err != nil {
			result.Canceled = true
			break
		}

		docCtx, span := tracing.StartDocument(context.WithoutCancel(ctx), account.ID, docType, summary.ID)
		progress := d.processDocument(docCtx, source, target, account, docType, summary)
		progress.cursorPosition = cursor + int64(i)

		if d.advanceCursor(docCtx, account, docType, progress) {
			result.CursorEnd++
		}
		tracing.EndDocument(span, string(progress.outcome), progress.documentNumber, progress.err)
		result.Processed++
		switch {
		case progress.outcome.Booked():
			result.Submitted++
		case progress.outcome == StateAbandoned:
			result.Abandoned++
		default:
			result.Failed++
		}

		if err := d.clock.Sleep(ctx, d.cfg.Pacing); err != nil {
			result.Canceled = true
			break
		}
	}

	log.Info("pipeline.batch.finish",
		zap.Int("processed", result.Processed),
		zap.Int("submitted", result.Submitted),
		zap.Int("abandoned", result.Abandoned),
		zap.Int("failed", result.Failed),
		zap.Int64("cursor", result.CursorEnd),
		zap.Bool("canceled", result.Canceled),
	)
	return result, nil
}

// batchWindow orders the listing oldest first, drops what the cursor says is
// done and caps the rest at size.
func batchWindow(listed []holded.DocumentSummary, cursor int64, size int) []holded.DocumentSummary {
	ordered := slices.Clone(listed)
	slices.Reverse(ordered)
	ordered = ordered[skipCount(cursor, len(ordered)):]
	if len(ordered) > size {
		ordered = ordered[:size]
	}
	return ordered
}

// skipCount is the number of oldest documents skipped for cursor. A cursor of
// N resumes at the N-th document, so N-1 are skipped.
func skipCount(cursor int64, total int) int {
	skip := cursor - 1
	if skip < 0 {
		return 0
	}
	if skip > int64(total) {
		return total
	}
	return int(skip)
}

// documentProgress tracks one document through the state machine.
type documentProgress struct {
	sourceID       string
	docNumber      string
	state          DocumentState
	outcome        DocumentState
	documentNumber int64
	retries        int
	cursorPosition int64
	accountCode    string
	pdf            string
	pdfGenerated   bool
	err            error
	startedAt      time.Time
	log            *zap.Logger
}

func (p *documentProgress) to(state DocumentState) {
	p.log.Debug("pipeline.document.state", zap.String("from", string(p.state)), zap.String("to", string(state)))
	p.state = state
}

func (p *documentProgress) fail(err error) *documentProgress {
	p.err = err
	p.outcome = StateFailed
	return p
}

func (d *Driver) processDocument(ctx context.Context, source Source, target Target, account accountdomain.Account, docType string, summary holded.DocumentSummary) *documentProgress {
	p := &documentProgress{
		sourceID:  summary.ID,
		docNumber: summary.DocNumber,
		state:     StatePending,
		startedAt: d.clock.Now(),
		log: obslogger.WithContext(ctx, d.log).With(
			zap.String("account_name", account.Name),
			zap.String("source_id", summary.ID),
		),
	}

	p.to(StateFetching)
	inv, err := source.DocumentDetail(ctx, summary.ID, docType)
	if err != nil {
		return p.fail(fmt.Errorf("document detail: %w", err))
	}
	if inv.ID == "" {
		inv.ID = summary.ID
	}
	p.docNumber = inv.DocNumber
	content, err := source.GetDocumentPDFBase64(ctx, inv.ID, docType)
	if err != nil {
		return p.fail(fmt.Errorf("document pdf: %w", err))
	}
	p.pdf = content
	contact, err := source.GetContact(ctx, inv.Contact)
	if err != nil {
		return p.fail(fmt.Errorf("contact: %w", err))
	}

	p.to(StateResolvingCustomer)
	code, contact, err := d.resolveCustomer(ctx, target, *inv, contact, docType)
	if err != nil {
		return p.fail(fmt.Errorf("resolve customer: %w", err))
	}
	p.accountCode = code

	p.to(StateTransforming)
	entry, err := d.transformer.Transform(ctx, transform.Request{
		CounterKey:  account.ID,
		Invoice:     *inv,
		Contact:     contact,
		AccountCode: code,
		DocType:     docType,
	})
	if err != nil {
		return p.fail(fmt.Errorf("transform: %w", err))
	}
	p.documentNumber = entry.Documento

	p.to(StateSubmitting)
	result, err := d.submitWithRetries(ctx, target, account, docType, entry, p)
	p.documentNumber = entry.Documento
	if err != nil {
		return p.fail(fmt.Errorf("submit: %w", err))
	}

	if result == cegid.SubmitDuplicated {
		p.err = ErrDuplicateExhausted
		p.outcome = StateAbandoned
		exists, existsErr := target.EntryExists(ctx, entry.NumeroFactura)
		switch {
		case existsErr != nil:
			p.log.Warn("pipeline.document.exists_check_failed", zap.Error(existsErr))
		case exists:
			p.outcome = StateAlreadyPresent
		}
		p.log.Error("pipeline.document.duplicate_exhausted",
			zap.String("numero_factura", entry.NumeroFactura),
			zap.Int64("documento", entry.Documento),
			zap.Int("retries", p.retries),
			zap.Bool("already_present", p.outcome == StateAlreadyPresent),
		)
		p.to(p.outcome)
		return p
	}

	p.to(StateSubmitted)
	p.outcome = StateSubmitted
	p.log.Info("pipeline.document.submitted",
		zap.String("numero_factura", entry.NumeroFactura),
		zap.Int64("documento", entry.Documento),
	)

	if err := d.attach(ctx, target, entry, p); err != nil {
		p.err = fmt.Errorf("attachment: %w", err)
		p.log.Warn("pipeline.document.attachment_failed", zap.Error(err))
		return p
	}
	return p
}

// resolveCustomer finds or creates the sub-account for the document's contact.
// A missing contact is replaced by a stand-in built from the invoice.
func (d *Driver) resolveCustomer(ctx context.Context, target Target, inv holded.Invoice, contact *holded.Contact, docType string) (string, *holded.Contact, error) {
	class, err := accountClass(docType)
	if err != nil {
		return "", contact, err
	}

	var displayName, taxID string
	if contact != nil {
		name := contact.Name
		if strings.TrimSpace(name) == "" {
			name = inv.ContactName
		}
		displayName = transform.DisplayName(name)
		vat := strings.TrimSpace(contact.VATNumber)
		if vat == "" {
			vat = transform.PlaceholderNIF()
		}
		taxID = transform.ExtractNIF(vat)
	} else {
		taxID = transform.PlaceholderNIF()
		contact = &holded.Contact{
			ID:   inv.Contact,
			Name: truncateRunes(inv.ContactName, unknownContactNameLen),
		}
	}
	if displayName == "" {
		displayName = "Cliente " + taxID
	}

	code, err := target.SearchSubaccount(ctx, taxID, displayName, class)
	if err != nil {
		return "", contact, err
	}
	if code == "" {
		name := strings.TrimSpace(contact.Name)
		if name == "" {
			name = displayName
		}
		addr := contact.BillAddress
		country := addr.Country
		if country == "" {
			country = addr.CountryCode
		}
		code, err = target.CreateSubaccount(ctx, cegid.SubaccountRequest{
			Name:       name,
			Class:      class,
			TaxID:      taxID,
			Email:      contact.Email,
			Phone:      contact.PreferredPhone(),
			Address:    addr.Address,
			PostalCode: addr.PostalCode,
			City:       addr.City,
			Province:   addr.Province,
			Country:    country,
		})
		if err != nil {
			return "", contact, err
		}
	}
	return cegid.NormalizeAccountCode(code), contact, nil
}

func accountClass(docType string) (cegid.AccountClass, error) {
	switch docType {
	case holded.DocTypeInvoice:
		return cegid.ClassClient, nil
	case holded.DocTypePurchase, holded.DocTypeEstimate:
		return cegid.ClassSupplier, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDocType, docType)
	}
}

// submitWithRetries submits entry and, while the target reports the document
// number as taken, bumps it and resubmits up to MaxDuplicateRetries times.
func (d *Driver) submitWithRetries(ctx context.Context, target Target, account accountdomain.Account, docType string, entry *cegid.Entry, p *documentProgress) (cegid.SubmitResult, error) {
	submit := target.SubmitEntryNewSystem
	if account.UsesLegacyEndpoint(docType) {
		submit = target.SubmitEntryLegacy
	}
	for {
		result, err := submit(ctx, entry)
		if err != nil {
			return "", err
		}
		if result != cegid.SubmitDuplicated {
			return result, nil
		}
		if p.retries >= d.cfg.MaxDuplicateRetries {
			return result, nil
		}
		p.to(StateDuplicateRetry)
		p.retries++
		metrics.Sync().IncDuplicateRetry(docType)
		next, err := d.transformer.Bump(ctx, account.ID, entry)
		if err != nil {
			p.log.Warn("pipeline.document.counter_bump_failed", zap.Int64("documento", next), zap.Error(err))
		}
		p.log.Warn("pipeline.document.duplicated",
			zap.Int64("documento", next),
			zap.Int("retry", p.retries),
		)
	}
}

// attach uploads the source PDF, or a rendered summary when enabled and the
// source has none.
func (d *Driver) attach(ctx context.Context, target Target, entry *cegid.Entry, p *documentProgress) error {
	content := p.pdf
	if content == "" && d.cfg.FallbackPDF && d.renderer != nil {
		rendered, err := d.renderSummary(ctx, entry)
		if err != nil {
			return err
		}
		content = rendered
		p.pdfGenerated = rendered != ""
	}
	if content == "" {
		return nil
	}
	if err := target.UploadAttachment(ctx, cegid.AttachmentFor(entry, content)); err != nil {
		return err
	}
	p.to(StatePDFUploaded)
	p.outcome = StatePDFUploaded
	return nil
}

func (d *Driver) renderSummary(ctx context.Context, entry *cegid.Entry) (string, error) {
	r, err := d.renderer.GenerateEntrySummary(ctx, entry)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// advanceCursor is the terminal transition of every document. It records the
// outcome and moves the cursor past the document. It reports whether the
// cursor was stored.
func (d *Driver) advanceCursor(ctx context.Context, account accountdomain.Account, docType string, p *documentProgress) bool {
	if p.outcome == "" {
		p.outcome = StateFailed
	}
	syncMetrics := metrics.Sync()
	syncMetrics.IncDocument(docType, string(p.outcome))
	d.metrics.RecordDocument(ctx, docType, string(p.outcome))

	errorClass := ""
	if p.err != nil {
		errorClass = ClassifySyncError(p.err)
		syncMetrics.IncDocumentError(p.state.Stage(), errorClass)
		if p.outcome == StateFailed {
			p.log.Error("pipeline.document.failed",
				zap.String("state", string(p.state)),
				zap.String("error_class", errorClass),
				zap.Error(p.err),
			)
		}
	}

	d.record(ctx, account, docType, p, errorClass)

	advanced := true
	if err := d.offsets.AdvanceCursor(ctx, account.ID, docType); err != nil {
		advanced = false
		p.log.Error("pipeline.cursor.advance_failed", zap.Int64("cursor", p.cursorPosition), zap.Error(err))
	} else {
		syncMetrics.IncCursorAdvance(docType)
	}
	p.to(StateCursorAdvanced)
	return advanced
}

func (d *Driver) record(ctx context.Context, account accountdomain.Account, docType string, p *documentProgress, errorClass string) {
	if d.runs == nil {
		return
	}
	run := &runlog.DocumentRun{
		AccountID:        account.ID,
		AccountName:      account.Name,
		DocType:          docType,
		SourceID:         p.sourceID,
		CursorPosition:   p.cursorPosition,
		DocumentNumber:   p.documentNumber,
		State:            string(p.outcome),
		DuplicateRetries: p.retries,
		StartedAt:        p.startedAt,
		FinishedAt:       d.clock.Now(),
	}
	if p.err != nil {
		run.Error = p.err.Error()
	}
	metadata := map[string]any{
		"source_doc_number": p.docNumber,
		"account_code":      p.accountCode,
		"mode":              string(account.Mode),
		"legacy_endpoint":   account.UsesLegacyEndpoint(docType),
		"last_state":        string(p.state),
	}
	if errorClass != "" {
		metadata["error_class"] = errorClass
	}
	if p.pdfGenerated {
		metadata["pdf_generated"] = true
	}
	_ = d.runs.Record(ctx, run, metadata)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
