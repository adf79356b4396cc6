package holded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/ledgerbridge/internal/config"
	"github.com/smallbiznis/ledgerbridge/internal/observability/metrics"
	"github.com/smallbiznis/ledgerbridge/internal/observability/tracing"
	"go.uber.org/zap"
)

const (
	providerName   = "holded"
	maxErrorBody   = 2048
	defaultTimeout = 30 * time.Second
)

// Client reads documents, contacts and PDFs for one source account.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Factory builds per-account clients that share one HTTP transport.
type Factory struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewFactory(cfg config.Config, log *zap.Logger, m *metrics.Metrics) *Factory {
	timeout := cfg.Holded.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Factory{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.Holded.BaseURL), "/"),
		http:    tracing.WrapHTTPClient(&http.Client{Timeout: timeout}, providerName),
		log:     log.Named("holded"),
		metrics: m,
	}
}

func (f *Factory) ForAccount(apiKey string) *Client {
	return NewClient(f.baseURL, apiKey, f.http, f.log, f.metrics)
}

func NewClient(baseURL, apiKey string, httpClient *http.Client, log *zap.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		http:    httpClient,
		log:     log,
		metrics: m,
	}
}

// ListDocuments returns every document of docType, newest first as the API serves them.
// start and end bound the issue date when set.
func (c *Client) ListDocuments(ctx context.Context, docType string, start, end *time.Time) ([]DocumentSummary, error) {
	if err := validateDocType(docType); err != nil {
		return nil, err
	}
	query := url.Values{}
	if start != nil {
		query.Set("starttmp", strconv.FormatInt(start.Unix(), 10))
	}
	if end != nil {
		query.Set("endtmp", strconv.FormatInt(end.Unix(), 10))
	}

	var docs []DocumentSummary
	if err := c.getJSON(ctx, "/invoicing/v1/documents/"+docType, "documents.list", query, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c *Client) DocumentDetail(ctx context.Context, id, docType string) (*Invoice, error) {
	if err := validateDocType(docType); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty document id", ErrInvalidResponse)
	}
	var inv Invoice
	if err := c.getJSON(ctx, "/invoicing/v1/documents/"+docType+"/"+url.PathEscape(id), "documents.detail", nil, &inv); err != nil {
		return nil, err
	}
	if inv.ID == "" {
		inv.ID = id
	}
	return &inv, nil
}

// GetContact returns nil without error when the contact does not exist.
func (c *Client) GetContact(ctx context.Context, contactID string) (*Contact, error) {
	if strings.TrimSpace(contactID) == "" {
		return nil, nil
	}
	var contact Contact
	err := c.getJSON(ctx, "/invoicing/v1/contacts/"+url.PathEscape(contactID), "contacts.detail", nil, &contact)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if contact.ID == "" && contact.Name == "" {
		return nil, nil
	}
	return &contact, nil
}

type pdfResponse struct {
	Status int    `json:"status"`
	Data   string `json:"data"`
}

// GetDocumentPDFBase64 returns the rendered PDF, base64 encoded. An empty
// string means the source has no PDF for the document.
func (c *Client) GetDocumentPDFBase64(ctx context.Context, id, docType string) (string, error) {
	if err := validateDocType(docType); err != nil {
		return "", err
	}
	var body pdfResponse
	err := c.getJSON(ctx, "/invoicing/v1/documents/"+docType+"/"+url.PathEscape(id)+"/pdf", "documents.pdf", nil, &body)
	if err != nil {
		return "", err
	}
	if body.Status != 1 {
		return "", nil
	}
	return body.Data, nil
}

func (c *Client) getJSON(ctx context.Context, path, endpoint string, query url.Values, out any) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstreamRequest(ctx, providerName, endpoint, 0, time.Since(start))
		return fmt.Errorf("holded %s: %w", path, err)
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstreamRequest(ctx, providerName, endpoint, resp.StatusCode, time.Since(start))
	c.log.Debug("holded.request",
		zap.String("endpoint", endpoint),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Path: path, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, path, err)
	}
	return nil
}

func validateDocType(docType string) error {
	switch docType {
	case DocTypeInvoice, DocTypeEstimate, DocTypePurchase:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDocType, docType)
	}
}
