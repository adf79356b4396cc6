package cegid

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() *Entry {
	return &Entry{
		Ejercicio:        "2025",
		Serie:            SeriesIssued,
		Documento:        41,
		TipoAsiento:      EntryTypeIssued,
		Fecha:            20250315,
		FechaFactura:     20250315,
		CuentaCliente:    "43000101",
		NumeroFactura:    "F-0001",
		Descripcion:      "F-0001 – Frutas García",
		TipoFactura:      "OpInteriores",
		NombreCliente:    "Frutas García",
		ClaveRegimenIva1: "01",
		TotalFactura:     395.09,
		ImporteCobrado:   395.09,
		TipoVencimiento:  1,
		Vencimientos: []DueDate{{
			Ejercicio: "2025", Serie: SeriesIssued, Documento: 41, NumeroVencimiento: 1,
			FechaFactura: 20250315, CuentaCliente: "43000101", NumeroFactura: "F-0001",
			FechaVencimiento: 20250415, Importe: 395.09, CodigoTipoVencimiento: 1,
		}},
		Apuntes: []JournalLine{{
			Ejercicio: "2025", Serie: SeriesIssued, Documento: 41, Linea: 1, Cuenta: "70000000",
			Concepto: "Ventas mercaderías con un concepto que supera el límite", Fecha: 20250315,
			Importe: 379.89, TipoImporte: AmountCredit,
		}},
		Brackets: []VATBracket{
			{Base: 304.01, Rate: 4, Quota: 12.16},
			{Base: 75.88, Rate: 4, Quota: 3.04, RegimeCode: "01"},
		},
	}
}

func decodeFields(t *testing.T, v any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestEntryMarshalFlattensBrackets(t *testing.T) {
	e := sampleEntry()
	e.Withholding = &Withholding{Base: 100, Percent: 2, Quota: 2, Kind: "Agricultores"}

	fields := decodeFields(t, e)
	assert.Equal(t, 304.01, fields["BaseImponible1"])
	assert.Equal(t, 12.16, fields["CuotaIVA1"])
	assert.Equal(t, 75.88, fields["BaseImponible2"])
	assert.Equal(t, "01", fields["ClaveRegimenIva2"])
	assert.Equal(t, "Agricultores", fields["TipoRetencion"])
	assert.Equal(t, 2.0, fields["CuotaRetencion"])
	assert.Equal(t, "Frutas García", fields["NombreCliente"])
	assert.NotContains(t, fields, "BaseImponible3")
	assert.NotContains(t, fields, "Brackets")
	assert.NotContains(t, fields, "CifCliente")
}

func TestEntryMarshalCapsBrackets(t *testing.T) {
	e := sampleEntry()
	e.Brackets = []VATBracket{{Rate: 21}, {Rate: 10}, {Rate: 4}, {Rate: 0}, {Rate: 12}}

	fields := decodeFields(t, e)
	assert.Contains(t, fields, "PorcentajeIVA4")
	assert.NotContains(t, fields, "PorcentajeIVA5")
}

func TestBumpDocumentUpdatesNestedRows(t *testing.T) {
	e := sampleEntry()
	assert.Equal(t, int64(42), e.BumpDocument())
	assert.Equal(t, int64(42), e.Vencimientos[0].Documento)
	assert.Equal(t, int64(42), e.Apuntes[0].Documento)
	assert.Equal(t, "1-42.pdf", e.AttachmentName())
}

func TestSubmitEntry(t *testing.T) {
	f, client := newFakeLedger(t)
	f.handle("/api/facturas/nuevosistema/add", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var fields map[string]any
		require.NoError(t, json.Unmarshal(body, &fields))
		switch fields["Documento"] {
		case 41.0:
			w.WriteHeader(http.StatusOK)
		case 42.0:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"Message":"Violation of PRIMARY KEY constraint 'PK_Facturas'. Cannot insert duplicate key."}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"Message":"boom"}`))
		}
	})
	f.handle("/api/facturas/add", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "NombreCliente")
		w.WriteHeader(http.StatusCreated)
	})

	ctx := context.Background()
	e := sampleEntry()

	res, err := client.SubmitEntryNewSystem(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, SubmitOK, res)

	e.BumpDocument()
	res, err = client.SubmitEntryNewSystem(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, SubmitDuplicated, res)

	e.BumpDocument()
	_, err = client.SubmitEntryNewSystem(ctx, e)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	res, err = client.SubmitEntryLegacy(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, SubmitOK, res)
}

func TestSubmitEntryLegacyKeepsWithholdingAndCustomer(t *testing.T) {
	f, client := newFakeLedger(t)
	var fields map[string]any
	f.handle("/api/facturas/add", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &fields))
		w.WriteHeader(http.StatusOK)
	})

	e := sampleEntry()
	e.Serie = SeriesReceived
	e.TipoAsiento = EntryTypeReceived
	e.CifCliente = "B12345678"
	e.Brackets = []VATBracket{{Base: 100, Rate: 10, Quota: 10}}
	e.Withholding = &Withholding{Base: 100, Percent: 2, Quota: 2, Kind: "Agricultores"}
	e.TotalFactura = 108

	res, err := client.SubmitEntryLegacy(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, SubmitOK, res)

	require.NotNil(t, fields)
	assert.Equal(t, 100.0, fields["BaseRetencion"])
	assert.Equal(t, 2.0, fields["PorcentajeRetencion"])
	assert.Equal(t, 2.0, fields["CuotaRetencion"])
	assert.Equal(t, "Agricultores", fields["TipoRetencion"])
	assert.Equal(t, 108.0, fields["TotalFactura"])
	assert.Equal(t, "Frutas García", fields["NombreCliente"])
	assert.Equal(t, "B12345678", fields["CifCliente"])
	assert.Equal(t, "01", fields["ClaveRegimenIva1"])
	assert.Equal(t, false, fields["ProrrataIva"])
	assert.Equal(t, 100.0, fields["BaseImponible1"])
}

func TestUploadAttachmentRejectsEmptyContent(t *testing.T) {
	_, client := newFakeLedger(t)
	err := client.UploadAttachment(context.Background(), AttachmentFor(sampleEntry(), " "))
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestIsDuplicateKeyResponse(t *testing.T) {
	cases := map[string]bool{
		"Cannot insert duplicate key row in object 'dbo.Facturas'": true,
		"No se puede insertar una clave duplicada en el objeto":    true,
		"Infracción de la restricción PRIMARY KEY 'PK_Facturas'":   true,
		"UNIQUE constraint failed: facturas.documento":             true,
		"La cuenta 43000101 no existe":                             false,
		"":                                                         false,
	}
	for body, want := range cases {
		assert.Equal(t, want, IsDuplicateKeyResponse(body), body)
	}
}
