package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Mode selects the target ledger submission endpoint for an account.
type Mode string

const (
	ModeLegacy    Mode = "legacy"
	ModeNewSystem Mode = "new-system"
)

const (
	DocTypeInvoice  = "invoice"
	DocTypeEstimate = "estimate"
	DocTypePurchase = "purchase"
)

// Account is one source company migrated into one target company.
type Account struct {
	ID               string                      `gorm:"primaryKey;size:36" json:"id"`
	Name             string                      `gorm:"not null;uniqueIndex:accounts_name_key;size:191" json:"name"`
	HoldedAPIKey     string                      `gorm:"column:holded_api_key;not null" json:"-"`
	CegidCompanyCode string                      `gorm:"column:cegid_company_code;not null" json:"cegid_company_code"`
	Mode             Mode                        `gorm:"not null;default:'new-system';size:16" json:"mode"`
	DocTypes         datatypes.JSONSlice[string] `gorm:"column:doc_types;not null" json:"doc_types"`
	CreatedAt        time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// UsesLegacyEndpoint reports whether docType goes through the legacy entry endpoint.
// Received invoices always use the new-system endpoint.
func (a Account) UsesLegacyEndpoint(docType string) bool {
	return a.Mode == ModeLegacy && docType != DocTypePurchase
}
