package cegid

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotSession(items []Subaccount) *Session {
	return newSession(func(context.Context) ([]Subaccount, error) { return items, nil })
}

func snapshot() []Subaccount {
	return []Subaccount{
		{Codigo: "43000101", Descripcion: "Frutas García SL", NIF: "B12345678"},
		{Codigo: "43000102", Descripcion: "Hortalizas del Sur", CIF: "b-87654321"},
		{Codigo: "43000250", Descripcion: "Comercial Peñíscola"},
		{Codigo: "40000007", Descripcion: "Frutas García SL", NIF: "B12345678"},
		{Codigo: "41000003", Descripcion: "Transportes Ruiz"},
		{Codigo: "57200001", Descripcion: "Banco"},
	}
}

func TestLookup(t *testing.T) {
	s := snapshotSession(snapshot())
	ctx := context.Background()

	tests := []struct {
		name  string
		tax   string
		label string
		class AccountClass
		want  string
	}{
		{name: "tax id", tax: "b-12345678", class: ClassClient, want: "43000101"},
		{name: "tax id restricted to class", tax: "B12345678", class: ClassSupplier, want: "40000007"},
		{name: "cif fallback", tax: "B87654321", class: ClassClient, want: "43000102"},
		{name: "name prefix", label: "HORTALIZAS", class: ClassClient, want: "43000102"},
		{name: "name substring ignores accents", label: "peniscola", class: ClassClient, want: "43000250"},
		{name: "supplier 41 range", label: "transportes", class: ClassSupplier, want: "41000003"},
		{name: "other ranges ignored", label: "banco", class: ClassClient, want: ""},
		{name: "unknown tax falls back to name", tax: "X0000000T", label: "frutas", class: ClassClient, want: "43000101"},
		{name: "nothing to search", class: ClassClient, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Lookup(ctx, tt.tax, tt.label, tt.class)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := s.Lookup(ctx, "", "x", AccountClass(9))
	assert.ErrorIs(t, err, ErrInvalidClass)
}

func TestSessionLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	s := newSession(func(context.Context) ([]Subaccount, error) {
		loads.Add(1)
		return snapshot(), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Lookup(context.Background(), "B12345678", "", ClassClient)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loads.Load())
}

func TestNextCandidate(t *testing.T) {
	s := snapshotSession(snapshot())
	require.NoError(t, s.ensure(context.Background()))

	assert.Equal(t, int64(43000251), s.nextCandidate(ClassClient, 0))
	assert.Equal(t, int64(43000252), s.nextCandidate(ClassClient, 0))
	assert.Equal(t, int64(40000008), s.nextCandidate(ClassSupplier, 0))

	offset := snapshotSession(snapshot())
	require.NoError(t, offset.ensure(context.Background()))
	assert.Equal(t, int64(43001001), offset.nextCandidate(ClassClient, 1000))
}

func TestCreateSubaccountSkipsTakenCodes(t *testing.T) {
	f, client := newFakeLedger(t)
	f.handle("/api/subcuentas", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$skip") != "0" {
			_, _ = w.Write([]byte(`{"Datos":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"Datos": snapshot()})
	})
	var created []subaccountBody
	f.handle("/api/subcuentas/add", func(w http.ResponseWriter, r *http.Request) {
		var body subaccountBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		created = append(created, body)
		if len(created) < 3 {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"Message":"La subcuenta ya existe"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	code, err := client.CreateSubaccount(context.Background(), SubaccountRequest{
		Name:  "Nueva Frutería SL",
		Class: ClassClient,
		TaxID: "B11111111",
		Phone: "600000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "43000253", code)
	require.Len(t, created, 3)
	assert.Equal(t, "43000251", created[0].Codigo)
	assert.Equal(t, "B11111111", created[2].NIF)
	assert.Equal(t, "600000000", created[2].Telefono)
}

func TestCreateSubaccountGivesUp(t *testing.T) {
	f, client := newFakeLedger(t)
	f.handle("/api/subcuentas", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"datos":[]}`))
	})
	var attempts atomic.Int32
	f.handle("/api/subcuentas/add", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`code already exists`))
	})

	_, err := client.CreateSubaccount(context.Background(), SubaccountRequest{Name: "X", Class: ClassSupplier})
	assert.ErrorIs(t, err, ErrSubaccountExhausted)
	assert.Equal(t, int32(defaultSubaccountTries), attempts.Load())
}

func TestCreateSubaccountStopsOnOtherErrors(t *testing.T) {
	f, client := newFakeLedger(t)
	f.handle("/api/subcuentas", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"datos":[]}`))
	})
	f.handle("/api/subcuentas/add", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`NIF no válido`))
	})

	_, err := client.CreateSubaccount(context.Background(), SubaccountRequest{Name: "X", Class: ClassClient})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestListSubaccountsStopsOnRepeatedPage(t *testing.T) {
	f, client := newFakeLedger(t)
	var pages atomic.Int32
	full := make([]map[string]any, subaccountPageSize)
	for i := range full {
		full[i] = map[string]any{"Codigo": 43000000 + i, "Descripcion": "Cliente " + strconv.Itoa(i)}
	}
	f.handle("/api/subcuentas", func(w http.ResponseWriter, r *http.Request) {
		pages.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"Datos": full})
	})

	items, err := client.listSubaccounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, subaccountPageSize)
	assert.Equal(t, int32(2), pages.Load())
}

func TestNormalizeAccountCode(t *testing.T) {
	cases := map[string]string{
		"4300000012345": "43012345",
		"4300123456789": "23456789",
		"430000001":     "30000001",
		"4301":          "00004301",
		"43000101":      "43000101",
		" 43000101 ":    "43000101",
		"43.000.101":    "43.000.101",
		"":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAccountCode(in), in)
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "frutas garcia sl", NormalizeName("  Frutas   GARCÍA SL "))
	assert.Equal(t, "penon", NormalizeName("Peñón"))
	assert.Equal(t, "B12345678", NormalizeTaxID("b-12.345.678"))
}
