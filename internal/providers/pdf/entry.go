package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/smallbiznis/ledgerbridge/internal/cegid"
)

var ErrNilEntry = errors.New("pdf_nil_entry")

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

// GenerateEntrySummary renders a one-page summary of the entry. It stands in
// for the source document when the source has no PDF.
func (p *PDFProvider) GenerateEntrySummary(ctx context.Context, entry *cegid.Entry) (io.Reader, error) {
	if entry == nil {
		return nil, ErrNilEntry
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Factura "+entry.NumeroFactura, props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Ejercicio: "+entry.Ejercicio, props.Text{Top: 0}),
			text.New(fmt.Sprintf("Serie / documento: %s-%d", entry.Serie, entry.Documento), props.Text{Top: 4}),
			text.New("Fecha: "+formatDate(entry.FechaFactura), props.Text{Top: 8}),
			text.New("Tipo: "+entry.TipoAsiento, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New(entry.NombreCliente, props.Text{Style: fontstyle.Bold}),
			text.New("Cuenta: "+entry.CuentaCliente, props.Text{Top: 5}),
			text.New("NIF: "+entry.CifCliente, props.Text{Top: 9}),
		),
	)

	m.AddRow(10,
		text.NewCol(4, "Base imponible", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "% IVA", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(4, "Cuota", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, b := range entry.Brackets {
		m.AddRow(8,
			text.NewCol(4, formatAmount(b.Base), props.Text{Size: 9}),
			text.NewCol(4, strconv.FormatFloat(b.Rate, 'f', -1, 64), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(4, formatAmount(b.Quota), props.Text{Size: 9, Align: align.Right}),
		)
	}

	if w := entry.Withholding; w != nil {
		m.AddRow(8,
			col.New(6),
			text.NewCol(3, fmt.Sprintf("Retención %s%%", strconv.FormatFloat(w.Percent, 'f', -1, 64)), props.Text{Size: 9}),
			text.NewCol(3, "-"+formatAmount(w.Quota), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(3, formatAmount(entry.TotalFactura), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)
	m.AddRow(8,
		col.New(6),
		text.NewCol(3, "Cobrado", props.Text{Size: 9}),
		text.NewCol(3, formatAmount(entry.ImporteCobrado), props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + " €"
}

// formatDate renders a YYYYMMDD integer as DD/MM/YYYY.
func formatDate(v int) string {
	if v <= 0 {
		return ""
	}
	return fmt.Sprintf("%02d/%02d/%04d", v%100, (v/100)%100, v/10000)
}
