package cegid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	pathEntryLegacy    = "/api/facturas/add"
	pathEntryNewSystem = "/api/facturas/nuevosistema/add"
	pathAttachment     = "/api/facturas/upload"
	pathEntries        = "/api/facturas"
)

// Submission modes, used for logs and metrics.
const (
	ModeLegacy    = "legacy"
	ModeNewSystem = "new-system"
)

// SubmitEntryLegacy posts the entry to the legacy endpoint. Both endpoints
// take the same body, withholding and customer fields included.
func (c *Client) SubmitEntryLegacy(ctx context.Context, entry *Entry) (SubmitResult, error) {
	return c.submit(ctx, pathEntryLegacy, ModeLegacy, entry)
}

func (c *Client) SubmitEntryNewSystem(ctx context.Context, entry *Entry) (SubmitResult, error) {
	return c.submit(ctx, pathEntryNewSystem, ModeNewSystem, entry)
}

func (c *Client) submit(ctx context.Context, path, mode string, entry *Entry) (SubmitResult, error) {
	resp, err := c.do(ctx, http.MethodPost, path, "facturas.add", entry)
	if err != nil {
		c.metrics.RecordSubmission(ctx, mode, "error")
		return "", err
	}
	if resp.ok() {
		c.metrics.RecordSubmission(ctx, mode, string(SubmitOK))
		return SubmitOK, nil
	}
	if IsDuplicateKeyResponse(string(resp.body)) {
		c.metrics.RecordSubmission(ctx, mode, string(SubmitDuplicated))
		c.log.Warn("cegid.entry.duplicated",
			zap.String("mode", mode),
			zap.Int64("documento", entry.Documento),
			zap.String("numero_factura", entry.NumeroFactura),
		)
		return SubmitDuplicated, nil
	}
	c.metrics.RecordSubmission(ctx, mode, "error")
	return "", resp.apiError(path)
}

// UploadAttachment links a base64 PDF to an existing entry.
func (c *Client) UploadAttachment(ctx context.Context, att Attachment) error {
	if strings.TrimSpace(att.Archivo) == "" {
		return fmt.Errorf("%w: empty attachment", ErrInvalidResponse)
	}
	resp, err := c.do(ctx, http.MethodPost, pathAttachment, "facturas.upload", att)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return resp.apiError(pathAttachment)
	}
	return nil
}

// EntryExists reports whether an entry with the given invoice number is
// already booked.
func (c *Client) EntryExists(ctx context.Context, documentNumber string) (bool, error) {
	documentNumber = strings.TrimSpace(documentNumber)
	if documentNumber == "" {
		return false, nil
	}
	filter := fmt.Sprintf("NumeroFactura eq '%s'", strings.ReplaceAll(documentNumber, "'", "''"))
	path := pathEntries + "?$filter=" + url.QueryEscape(filter) + "&$top=1"
	resp, err := c.do(ctx, http.MethodGet, path, "facturas.list", nil)
	if err != nil {
		return false, err
	}
	if resp.status == http.StatusNotFound {
		return false, nil
	}
	if !resp.ok() {
		return false, resp.apiError(pathEntries)
	}
	var env datosEnvelope[json.RawMessage]
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return false, fmt.Errorf("%w: facturas: %v", ErrInvalidResponse, err)
	}
	return len(env.items()) > 0, nil
}
