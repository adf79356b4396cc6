package cegid

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLedger struct {
	t          *testing.T
	tokens     atomic.Int32
	validToken atomic.Value
	mux        *http.ServeMux
}

func newFakeLedger(t *testing.T) (*fakeLedger, *Client) {
	t.Helper()
	f := &fakeLedger{t: t, mux: http.NewServeMux()}
	f.validToken.Store("")
	f.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "E001", r.PostForm.Get("cod_empresa"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		n := f.tokens.Add(1)
		tok := "tok-" + string(rune('0'+n))
		f.validToken.Store(tok)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": tok,
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "E001", Credentials{
		Username:     "user",
		Password:     "pass",
		ClientID:     "client-id",
		ClientSecret: "secret",
	}, srv.Client(), zap.NewNop(), nil)
	return f, client
}

// authorized reports whether the request carries the most recently issued token.
func (f *fakeLedger) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+f.validToken.Load().(string)
}

func (f *fakeLedger) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h(w, r)
	})
}

func TestAuthenticateStoresToken(t *testing.T) {
	f, client := newFakeLedger(t)

	tok, err := client.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok.AccessToken)
	assert.True(t, tok.Valid())
	assert.Equal(t, int32(1), f.tokens.Load())
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	client := NewClient("http://unused", "E001", Credentials{}, nil, nil, nil)
	_, err := client.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestAuthenticateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "E001", Credentials{Username: "u", Password: "p", ClientID: "c"}, srv.Client(), nil, nil)
	_, err := client.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestSecondUnauthorizedIsReturned(t *testing.T) {
	f, client := newFakeLedger(t)
	calls := atomic.Int32{}
	f.mux.HandleFunc("/api/facturas/upload", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := client.UploadAttachment(context.Background(), Attachment{Archivo: "JVBERi0="})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(2), f.tokens.Load())
}

func TestTokenReusedWhileValid(t *testing.T) {
	f, client := newFakeLedger(t)
	f.handle("/api/facturas/upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, client.UploadAttachment(context.Background(), Attachment{Archivo: "JVBERi0="}))
	}
	assert.Equal(t, int32(1), f.tokens.Load())
}

func TestUnauthorizedTriggersSingleRenewal(t *testing.T) {
	f, client := newFakeLedger(t)
	seen := atomic.Int32{}
	f.mux.HandleFunc("/api/facturas/upload", func(w http.ResponseWriter, r *http.Request) {
		if seen.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var att Attachment
		require.NoError(t, json.Unmarshal(body, &att))
		assert.Equal(t, "1-120.pdf", att.NombreArchivo)
		w.WriteHeader(http.StatusOK)
	})

	entry := &Entry{Ejercicio: "2025", Serie: "1", Documento: 120}
	err := client.UploadAttachment(context.Background(), AttachmentFor(entry, "JVBERi0="))
	require.NoError(t, err)
	assert.Equal(t, int32(2), seen.Load())
	assert.Equal(t, int32(2), f.tokens.Load())
}

func TestEntryExists(t *testing.T) {
	f, client := newFakeLedger(t)
	f.handle("/api/facturas", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("$top"))
		if r.URL.Query().Get("$filter") == "NumeroFactura eq 'F-0001'" {
			_, _ = w.Write([]byte(`{"Datos":[{"Documento":12}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"datos":[]}`))
	})

	ok, err := client.EntryExists(context.Background(), "F-0001")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.EntryExists(context.Background(), "F-0002")
	require.NoError(t, err)
	assert.False(t, ok)
}
