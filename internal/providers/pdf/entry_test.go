package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/smallbiznis/ledgerbridge/internal/cegid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEntrySummary(t *testing.T) {
	entry := &cegid.Entry{
		Ejercicio:     "2025",
		Serie:         cegid.SeriesReceived,
		Documento:     12,
		TipoAsiento:   cegid.EntryTypeReceived,
		FechaFactura:  20250719,
		CuentaCliente: "40000012",
		NumeroFactura: "R-2025-052",
		NombreCliente: "Virginia Serrano Pastor",
		Brackets:      []cegid.VATBracket{{Base: 36.72, Rate: 0}},
		Withholding:   &cegid.Withholding{Base: 10, Percent: 2, Quota: 0.2, Kind: "Agricultores"},
		TotalFactura:  36.52,
	}

	r, err := New().GenerateEntrySummary(context.Background(), entry)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestGenerateEntrySummaryNil(t *testing.T) {
	_, err := New().GenerateEntrySummary(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilEntry)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "19/07/2025", formatDate(20250719))
	assert.Equal(t, "", formatDate(0))
}
