package cegid

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Series codes and entry-type tags.
const (
	SeriesIssued   = "1"
	SeriesReceived = "2"

	EntryTypeIssued   = "FacturasEmitidas"
	EntryTypeReceived = "FacturasRecibidas"
)

// Entry is an accounting entry (factura) in the target ledger.
type Entry struct {
	Ejercicio                string        `json:"Ejercicio"`
	Serie                    string        `json:"Serie"`
	Documento                int64         `json:"Documento"`
	TipoAsiento              string        `json:"TipoAsiento"`
	Fecha                    int           `json:"Fecha"`
	FechaFactura             int           `json:"FechaFactura"`
	CuentaCliente            string        `json:"CuentaCliente"`
	NumeroFactura            string        `json:"NumeroFactura"`
	Descripcion              string        `json:"Descripcion"`
	TipoFactura              string        `json:"TipoFactura"`
	NombreCliente            string        `json:"NombreCliente"`
	ClaveRegimenIva1         string        `json:"ClaveRegimenIva1"`
	ProrrataIva              bool          `json:"ProrrataIva"`
	CifCliente               string        `json:"CifCliente,omitempty"`
	TotalFactura             float64       `json:"TotalFactura"`
	ImporteCobrado           float64       `json:"ImporteCobrado"`
	FechaIntroduccionFactura int           `json:"FechaIntroduccionFactura,omitempty"`
	TipoVencimiento          int           `json:"TipoVencimiento"`
	Vencimientos             []DueDate     `json:"Vencimientos"`
	Apuntes                  []JournalLine `json:"Apuntes"`

	// Brackets holds at most four VAT slots, emitted as BaseImponibleN,
	// PorcentajeIVAN and CuotaIVAN.
	Brackets    []VATBracket `json:"-"`
	Withholding *Withholding `json:"-"`
}

type VATBracket struct {
	Base       float64
	Rate       float64
	Quota      float64
	RegimeCode string
}

type Withholding struct {
	Base    float64
	Percent float64
	Quota   float64
	Kind    string
}

// DueDate is one row of the due-date schedule (vencimiento).
type DueDate struct {
	Ejercicio             string  `json:"Ejercicio"`
	Serie                 string  `json:"Serie"`
	Documento             int64   `json:"Documento"`
	NumeroVencimiento     int     `json:"NumeroVencimiento"`
	FechaFactura          int     `json:"FechaFactura"`
	CuentaCliente         string  `json:"CuentaCliente"`
	NumeroFactura         string  `json:"NumeroFactura"`
	FechaVencimiento      int     `json:"FechaVencimiento"`
	Importe               float64 `json:"Importe"`
	CodigoTipoVencimiento int     `json:"CodigoTipoVencimiento"`
}

// JournalLine is one apunte. TipoImporte 1 is debit, 2 is credit.
type JournalLine struct {
	Ejercicio   string  `json:"Ejercicio"`
	Serie       string  `json:"Serie"`
	Documento   int64   `json:"Documento"`
	Linea       int     `json:"Linea"`
	Cuenta      string  `json:"Cuenta"`
	Concepto    string  `json:"Concepto"`
	Fecha       int     `json:"Fecha"`
	Importe     float64 `json:"Importe"`
	TipoImporte int     `json:"TipoImporte"`
}

const (
	AmountDebit  = 1
	AmountCredit = 2
)

// BumpDocument increments the document number on the entry and on every
// nested due-date and journal line, returning the new number.
func (e *Entry) BumpDocument() int64 {
	e.Documento++
	for i := range e.Vencimientos {
		e.Vencimientos[i].Documento = e.Documento
	}
	for i := range e.Apuntes {
		e.Apuntes[i].Documento = e.Documento
	}
	return e.Documento
}

// AttachmentName is the file name used for the entry's PDF.
func (e *Entry) AttachmentName() string {
	return fmt.Sprintf("%s-%d.pdf", e.Serie, e.Documento)
}

func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	base, err := json.Marshal(plain(e))
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	if err := addBrackets(fields, e.Brackets); err != nil {
		return nil, err
	}
	if w := e.Withholding; w != nil {
		if err := setAll(fields, map[string]any{
			"BaseRetencion":       w.Base,
			"PorcentajeRetencion": w.Percent,
			"CuotaRetencion":      w.Quota,
			"TipoRetencion":       w.Kind,
		}); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}

func addBrackets(fields map[string]json.RawMessage, brackets []VATBracket) error {
	for i, b := range brackets {
		if i >= MaxVATBrackets {
			break
		}
		n := strconv.Itoa(i + 1)
		values := map[string]any{
			"BaseImponible" + n: b.Base,
			"PorcentajeIVA" + n: b.Rate,
			"CuotaIVA" + n:      b.Quota,
		}
		if i > 0 && b.RegimeCode != "" {
			values["ClaveRegimenIva"+n] = b.RegimeCode
		}
		if err := setAll(fields, values); err != nil {
			return err
		}
	}
	return nil
}

func setAll(fields map[string]json.RawMessage, values map[string]any) error {
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fields[k] = raw
	}
	return nil
}

// MaxVATBrackets is the number of VAT slots an entry can carry.
const MaxVATBrackets = 4

// SubmitResult is the outcome of an entry submission that did not error.
type SubmitResult string

const (
	SubmitOK         SubmitResult = "ok"
	SubmitDuplicated SubmitResult = "duplicated"
)

// Attachment is a PDF linked to an entry by fiscal year, series and document number.
type Attachment struct {
	Ejercicio     string `json:"Ejercicio"`
	Serie         string `json:"Serie"`
	Documento     int64  `json:"Documento"`
	NombreArchivo string `json:"NombreArchivo"`
	Archivo       string `json:"Archivo"`
}

// AttachmentFor builds the attachment for entry with base64 PDF content.
func AttachmentFor(e *Entry, pdfBase64 string) Attachment {
	return Attachment{
		Ejercicio:     e.Ejercicio,
		Serie:         e.Serie,
		Documento:     e.Documento,
		NombreArchivo: e.AttachmentName(),
		Archivo:       pdfBase64,
	}
}

// AccountClass distinguishes customer and supplier sub-accounts.
type AccountClass int

const (
	ClassClient   AccountClass = 1
	ClassSupplier AccountClass = 2
)

func (c AccountClass) String() string {
	switch c {
	case ClassClient:
		return "client"
	case ClassSupplier:
		return "supplier"
	default:
		return "unknown"
	}
}

// Prefixes lists the account-code prefixes that belong to the class.
func (c AccountClass) Prefixes() []string {
	switch c {
	case ClassClient:
		return []string{"43"}
	case ClassSupplier:
		return []string{"40", "41"}
	default:
		return nil
	}
}

// baseCode is the first code of the class range used for new sub-accounts.
func (c AccountClass) baseCode() int64 {
	switch c {
	case ClassClient:
		return 43000000
	case ClassSupplier:
		return 40000000
	default:
		return 0
	}
}

// Subaccount is one row of the sub-account listing.
type Subaccount struct {
	Codigo      flexString `json:"Codigo"`
	Descripcion string     `json:"Descripcion"`
	NIF         string     `json:"NIF"`
	CIF         string     `json:"CIF"`
}

func (s Subaccount) Code() string { return strings.TrimSpace(string(s.Codigo)) }

func (s Subaccount) TaxID() string {
	if strings.TrimSpace(s.NIF) != "" {
		return s.NIF
	}
	return s.CIF
}

// SubaccountRequest describes a customer or supplier to create.
type SubaccountRequest struct {
	Name       string
	Class      AccountClass
	TaxID      string
	Email      string
	Phone      string
	Address    string
	PostalCode string
	City       string
	Province   string
	Country    string
}

type subaccountBody struct {
	Codigo       string `json:"Codigo"`
	Descripcion  string `json:"Descripcion"`
	NIF          string `json:"NIF"`
	Email        string `json:"Email,omitempty"`
	Telefono     string `json:"Telefono,omitempty"`
	Direccion    string `json:"Direccion,omitempty"`
	CodigoPostal string `json:"CodigoPostal,omitempty"`
	Poblacion    string `json:"Poblacion,omitempty"`
	Provincia    string `json:"Provincia,omitempty"`
	Pais         string `json:"Pais,omitempty"`
}

type datosEnvelope[T any] struct {
	Datos      []T `json:"Datos"`
	DatosLower []T `json:"datos"`
}

func (d datosEnvelope[T]) items() []T {
	if len(d.Datos) > 0 {
		return d.Datos
	}
	return d.DatosLower
}

// flexString accepts JSON strings and numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	*f = flexString(s)
	return nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
