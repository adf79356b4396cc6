package transform

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/ledgerbridge/internal/cegid"
	"github.com/smallbiznis/ledgerbridge/internal/holded"
)

var (
	ErrInvalidDocType     = errors.New("transform_invalid_doc_type")
	ErrMissingAccountCode = errors.New("transform_missing_account_code")
)

const (
	RevenueAccount = "70000000"
	ExpenseAccount = "60100000"

	invoiceKind      = "OpInteriores"
	regimeCode       = "01"
	revenueConcept   = "Ventas mercaderías"
	withholdingKind  = "Agricultores"
	withholdingTaxID = "s_retencion2"
	withholdingRate  = -2
	maxTextLen       = 40
)

// Input is everything needed to build one entry.
type Input struct {
	Invoice     holded.Invoice
	Contact     *holded.Contact
	AccountCode string
	DocType     string
	Document    int64
	Location    *time.Location
}

// Series returns the series and entry type for a source document type.
func Series(docType string) (serie, entryType string, err error) {
	switch docType {
	case holded.DocTypeInvoice:
		return cegid.SeriesIssued, cegid.EntryTypeIssued, nil
	case holded.DocTypeEstimate, holded.DocTypePurchase:
		return cegid.SeriesReceived, cegid.EntryTypeReceived, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDocType, docType)
	}
}

// Transform maps a source invoice to an accounting entry numbered in.Document.
// It has no side effects.
func Transform(in Input) (*cegid.Entry, error) {
	serie, entryType, err := Series(in.DocType)
	if err != nil {
		return nil, err
	}
	account := strings.TrimSpace(in.AccountCode)
	if account == "" {
		return nil, ErrMissingAccountCode
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	inv := in.Invoice

	issued := inv.IssuedAt(loc)
	fecha := yyyymmdd(issued)
	ejercicio := fmt.Sprintf("%d", issued.Year())
	cleanName := CleanName(inv.ContactName)
	numero := strings.TrimSpace(inv.DocNumber)
	if numero == "" {
		numero = issued.Format("20060102")
	}

	entry := &cegid.Entry{
		Ejercicio:        ejercicio,
		Serie:            serie,
		Documento:        in.Document,
		TipoAsiento:      entryType,
		Fecha:            fecha,
		FechaFactura:     fecha,
		CuentaCliente:    account,
		NumeroFactura:    numero,
		Descripcion:      truncate(fmt.Sprintf("%s – %s", numero, cleanName), maxTextLen),
		TipoFactura:      invoiceKind,
		NombreCliente:    truncate(cleanName, maxTextLen),
		ClaveRegimenIva1: regimeCode,
		TipoVencimiento:  1,
	}
	if in.Contact != nil {
		entry.CifCliente = strings.TrimSpace(in.Contact.VATNumber)
	}
	if serie == cegid.SeriesReceived {
		entry.FechaIntroduccionFactura = fecha
	}

	groups, withheld := aggregate(inv.Products)
	if inv.Discount.IsPositive() {
		groups.applyDiscount(inv.Discount)
	}

	baseTotal, vatTotal := decimal.Zero, decimal.Zero
	for _, rate := range groups.rates(false) {
		if !validVATRates[rate] {
			continue
		}
		if len(entry.Brackets) == cegid.MaxVATBrackets {
			break
		}
		base := round2(groups[rate])
		quota := round2(base.Mul(decimal.NewFromFloat(rate)).Div(hundred))
		bracket := cegid.VATBracket{Base: money(base), Rate: rate, Quota: money(quota)}
		if len(entry.Brackets) > 0 {
			bracket.RegimeCode = regimeCode
		}
		entry.Brackets = append(entry.Brackets, bracket)
		baseTotal = baseTotal.Add(base)
		vatTotal = vatTotal.Add(quota)
	}

	retention := decimal.Zero
	if serie == cegid.SeriesReceived && !withheld.IsZero() {
		retention = round2(withheld.Mul(withholdingPct).Div(hundred))
		entry.Withholding = &cegid.Withholding{
			Base:    money(withheld),
			Percent: withholdingPct.InexactFloat64(),
			Quota:   money(retention),
			Kind:    withholdingKind,
		}
	}

	total := round2(baseTotal.Add(vatTotal).Sub(retention))
	entry.TotalFactura = money(total)
	entry.ImporteCobrado = money(collected(inv))

	entry.Vencimientos = []cegid.DueDate{{
		Ejercicio:             ejercicio,
		Serie:                 serie,
		Documento:             in.Document,
		NumeroVencimiento:     1,
		FechaFactura:          fecha,
		CuentaCliente:         account,
		NumeroFactura:         numero,
		FechaVencimiento:      yyyymmdd(inv.DueAt(loc)),
		Importe:               entry.TotalFactura,
		CodigoTipoVencimiento: 1,
	}}

	line := cegid.JournalLine{
		Ejercicio:   ejercicio,
		Serie:       serie,
		Documento:   in.Document,
		Linea:       1,
		Cuenta:      RevenueAccount,
		Concepto:    revenueConcept,
		Fecha:       fecha,
		Importe:     money(baseTotal),
		TipoImporte: cegid.AmountCredit,
	}
	if serie == cegid.SeriesReceived {
		line.Cuenta = ExpenseAccount
		line.Concepto = truncate(cleanName, maxTextLen)
		if len(inv.Products) > 0 {
			line.Concepto = truncate(inv.Products[0].Name, maxTextLen)
		}
		line.TipoImporte = cegid.AmountDebit
	}
	entry.Apuntes = []cegid.JournalLine{line}

	return entry, nil
}

// aggregate groups line bases by VAT rate and sums withholding lines apart.
func aggregate(products []holded.Product) (rateGroups, decimal.Decimal) {
	groups := rateGroups{}
	withheld := decimal.Zero
	for _, p := range products {
		base := p.Price.Mul(p.Units).Mul(decimal.NewFromInt(1).Sub(p.Discount.Div(hundred)))
		rate := p.Tax.InexactFloat64()
		switch {
		case rate == withholdingRate || slices.Contains(p.Taxes, withholdingTaxID):
			withheld = withheld.Add(base)
		case rate < 0:
			// other withholding kinds are not booked
		case base.IsNegative() && rate == 0:
			// internal correction line
		default:
			groups.add(rate, base)
		}
	}
	return groups, withheld
}

func collected(inv holded.Invoice) decimal.Decimal {
	if inv.PaymentsTotal.Valid {
		return inv.PaymentsTotal.Decimal
	}
	return inv.Total.Sub(inv.PaymentsPending)
}

func yyyymmdd(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
