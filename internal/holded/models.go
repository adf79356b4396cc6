package holded

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Document types understood by the invoicing API.
const (
	DocTypeInvoice  = "invoice"
	DocTypeEstimate = "estimate"
	DocTypePurchase = "purchase"
)

// DocumentSummary is one row of a document listing.
type DocumentSummary struct {
	ID        string `json:"id"`
	DocNumber string `json:"docNumber"`
	Date      int64  `json:"date"`
	Contact   string `json:"contact"`
}

// Invoice is the detail of a source document of any type.
type Invoice struct {
	ID              string              `json:"id"`
	DocNumber       string              `json:"docNumber"`
	Contact         string              `json:"contact"`
	ContactName     string              `json:"contactName"`
	Date            int64               `json:"date"`
	DueDate         *int64              `json:"dueDate"`
	Products        []Product           `json:"products"`
	Discount        decimal.Decimal     `json:"discount"`
	Total           decimal.Decimal     `json:"total"`
	PaymentsTotal   decimal.NullDecimal `json:"paymentsTotal"`
	PaymentsPending decimal.Decimal     `json:"paymentsPending"`
	Status          int                 `json:"status"`
	Currency        string              `json:"currency"`
}

// Product is a single invoice line.
type Product struct {
	Name     string          `json:"name"`
	Desc     string          `json:"desc"`
	Price    decimal.Decimal `json:"price"`
	Units    decimal.Decimal `json:"units"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Taxes    []string        `json:"taxes"`
}

// Contact is a customer or supplier record.
type Contact struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	Mobile      string      `json:"mobile"`
	VATNumber   string      `json:"vatnumber"`
	Code        string      `json:"code"`
	BillAddress BillAddress `json:"billAddress"`
}

type BillAddress struct {
	Address     string `json:"address"`
	City        string `json:"city"`
	PostalCode  string `json:"postalCode"`
	Province    string `json:"province"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
}

// IssuedAt returns the issue timestamp in loc.
func (i Invoice) IssuedAt(loc *time.Location) time.Time {
	return time.Unix(i.Date, 0).In(loc)
}

// DueAt returns the due timestamp in loc, falling back to the issue date.
func (i Invoice) DueAt(loc *time.Location) time.Time {
	if i.DueDate != nil && *i.DueDate != 0 {
		return time.Unix(*i.DueDate, 0).In(loc)
	}
	return i.IssuedAt(loc)
}

// PreferredPhone returns the mobile number, else the landline.
func (c Contact) PreferredPhone() string {
	if strings.TrimSpace(c.Mobile) != "" {
		return c.Mobile
	}
	return c.Phone
}
