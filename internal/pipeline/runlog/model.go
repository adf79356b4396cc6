package runlog

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DocumentRun is the outcome of processing one source document.
type DocumentRun struct {
	ID               snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccountID        string         `gorm:"column:account_id;not null;index:sync_document_runs_account_idx,priority:1" json:"account_id"`
	AccountName      string         `gorm:"column:account_name;not null" json:"account_name"`
	DocType          string         `gorm:"column:doc_type;not null;index:sync_document_runs_account_idx,priority:2" json:"doc_type"`
	SourceID         string         `gorm:"column:source_id;not null" json:"source_id"`
	CursorPosition   int64          `gorm:"column:cursor_position;not null;default:0" json:"cursor_position"`
	DocumentNumber   int64          `gorm:"column:document_number;not null;default:0" json:"document_number"`
	State            string         `gorm:"column:state;not null" json:"state"`
	DuplicateRetries int            `gorm:"column:duplicate_retries;not null;default:0" json:"duplicate_retries"`
	Error            string         `gorm:"column:error;not null;default:''" json:"error,omitempty"`
	Metadata         datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	StartedAt        time.Time      `gorm:"column:started_at;not null;index:sync_document_runs_account_idx,priority:3" json:"started_at"`
	FinishedAt       time.Time      `gorm:"column:finished_at;not null" json:"finished_at"`
}

func (DocumentRun) TableName() string { return "sync_document_runs" }

// ListFilter narrows a run listing. Zero values mean no restriction.
type ListFilter struct {
	DocType string
	State   string
	Since   time.Time
	Until   time.Time
	Limit   int
}
