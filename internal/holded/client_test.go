package holded

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret-key", srv.Client(), zap.NewNop(), nil)
}

func TestListDocumentsSendsKeyAndRange(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoicing/v1/documents/invoice", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("key"))
		assert.Equal(t, "1700000000", r.URL.Query().Get("starttmp"))
		assert.Empty(t, r.URL.Query().Get("endtmp"))
		_, _ = w.Write([]byte(`[{"id":"b","docNumber":"F-2","date":1700000200},{"id":"a","docNumber":"F-1","date":1700000100}]`))
	})

	start := time.Unix(1700000000, 0)
	docs, err := client.ListDocuments(context.Background(), DocTypeInvoice, &start, nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
}

func TestListDocumentsRejectsUnknownType(t *testing.T) {
	client := NewClient("http://unused", "k", nil, nil, nil)
	_, err := client.ListDocuments(context.Background(), "receipt", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidDocType)
}

func TestDocumentDetailDecodesLooseNumbers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoicing/v1/documents/purchase/doc-1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id":"doc-1","docNumber":"C-7","contact":"c-1","contactName":"Agro Sur (RENTA)",
			"date":1735732800,"dueDate":null,"discount":"5.5","total":100,"paymentsTotal":null,
			"paymentsPending":"20",
			"products":[{"name":"Almendra","price":"10.5","units":2,"discount":0,"tax":-2,"taxes":["s_retencion2"]}]
		}`))
	})

	inv, err := client.DocumentDetail(context.Background(), "doc-1", DocTypePurchase)
	require.NoError(t, err)
	assert.Equal(t, "C-7", inv.DocNumber)
	assert.Nil(t, inv.DueDate)
	assert.False(t, inv.PaymentsTotal.Valid)
	assert.Equal(t, "5.5", inv.Discount.String())
	assert.Equal(t, "100", inv.Total.String())
	assert.Equal(t, "20", inv.PaymentsPending.String())
	require.Len(t, inv.Products, 1)
	assert.Equal(t, "10.5", inv.Products[0].Price.String())
	assert.Equal(t, "-2", inv.Products[0].Tax.String())
	assert.True(t, inv.Products[0].Discount.IsZero())

	loc := time.UTC
	assert.Equal(t, inv.IssuedAt(loc), inv.DueAt(loc))
}

func TestGetContactNotFoundIsNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	contact, err := client.GetContact(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, contact)
}

func TestGetDocumentPDFBase64(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoicing/v1/documents/invoice/doc-1/pdf", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":1,"data":"JVBERi0xLjQ="}`))
	})

	pdf, err := client.GetDocumentPDFBase64(context.Background(), "doc-1", DocTypeInvoice)
	require.NoError(t, err)
	assert.Equal(t, "JVBERi0xLjQ=", pdf)
}

func TestGetDocumentPDFBase64StatusZeroIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":0,"info":"not available"}`))
	})

	pdf, err := client.GetDocumentPDFBase64(context.Background(), "doc-1", DocTypeInvoice)
	require.NoError(t, err)
	assert.Empty(t, pdf)
}

func TestServerErrorsAreTyped(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.DocumentDetail(context.Background(), "doc-1", DocTypeInvoice)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "upstream down", statusErr.Body)
}

func TestMissingAPIKey(t *testing.T) {
	client := NewClient("http://unused", " ", nil, nil, nil)
	_, err := client.DocumentDetail(context.Background(), "x", DocTypeInvoice)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
