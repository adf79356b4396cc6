package offset

import "time"

// CursorRow is the persisted position of one account and document type in
// the oldest-first source listing.
type CursorRow struct {
	AccountKey string    `gorm:"primaryKey;column:account_key;size:191"`
	DocType    string    `gorm:"primaryKey;column:doc_type;size:32"`
	Value      int64     `gorm:"column:value;not null;default:1"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (CursorRow) TableName() string { return "sync_offsets" }

// CounterRow is the next document number of an account's company in the
// target ledger, keyed by account id.
type CounterRow struct {
	CounterKey string    `gorm:"primaryKey;column:counter_key;size:191"`
	Value      int64     `gorm:"column:value;not null;default:0"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (CounterRow) TableName() string { return "sync_document_counters" }
