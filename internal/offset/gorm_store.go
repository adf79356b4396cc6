package offset

import (
	"context"
	"errors"

	"github.com/smallbiznis/ledgerbridge/internal/clock"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db    *gorm.DB
	clock clock.Clock
	log   *zap.Logger
}

func NewGormStore(db *gorm.DB, clk clock.Clock, log *zap.Logger) Store {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &gormStore{
		db:    db,
		clock: clk,
		log:   log.Named("offset").With(zap.String("component", "offset_store")),
	}
}

func (s *gormStore) GetCursor(ctx context.Context, accountKey, docType string) int64 {
	if err := validateCursorKey(accountKey, docType); err != nil {
		s.log.Warn("offset.cursor.read_failed", zap.Error(err))
		return InitialCursor
	}
	var row CursorRow
	err := s.db.WithContext(ctx).
		Where("account_key = ? AND doc_type = ?", accountKey, docType).
		Take(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("offset.cursor.read_failed",
				zap.String("account_key", accountKey),
				zap.String("doc_type", docType),
				zap.Error(err),
			)
		}
		return InitialCursor
	}
	return max(row.Value, InitialCursor)
}

func (s *gormStore) AdvanceCursor(ctx context.Context, accountKey, docType string) error {
	if err := validateCursorKey(accountKey, docType); err != nil {
		return err
	}
	row := CursorRow{AccountKey: accountKey, DocType: docType, Value: InitialCursor + 1, UpdatedAt: s.clock.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_key"}, {Name: "doc_type"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      gorm.Expr("CASE WHEN sync_offsets.value < ? THEN ? ELSE sync_offsets.value + 1 END", InitialCursor, InitialCursor+1),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error
}

func (s *gormStore) SetCursor(ctx context.Context, accountKey, docType string, value int64) error {
	if err := validateCursorKey(accountKey, docType); err != nil {
		return err
	}
	if value < 0 {
		return ErrNegativeValue
	}
	row := CursorRow{AccountKey: accountKey, DocType: docType, Value: value, UpdatedAt: s.clock.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_key"}, {Name: "doc_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (s *gormStore) GetDocumentCounter(ctx context.Context, counterKey string) int64 {
	if err := validateCounterKey(counterKey); err != nil {
		s.log.Warn("offset.counter.read_failed", zap.Error(err))
		return 0
	}
	var row CounterRow
	err := s.db.WithContext(ctx).Where("counter_key = ?", counterKey).Take(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("offset.counter.read_failed",
				zap.String("counter_key", counterKey),
				zap.Error(err),
			)
		}
		return 0
	}
	if row.Value < 0 {
		return 0
	}
	return row.Value
}

func (s *gormStore) AdvanceDocumentCounter(ctx context.Context, counterKey string) error {
	if err := validateCounterKey(counterKey); err != nil {
		return err
	}
	row := CounterRow{CounterKey: counterKey, Value: 1, UpdatedAt: s.clock.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "counter_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      gorm.Expr("sync_document_counters.value + 1"),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error
}

func (s *gormStore) SeedDocumentCounter(ctx context.Context, counterKey string, value int64) error {
	if err := validateCounterKey(counterKey); err != nil {
		return err
	}
	if value < 0 {
		return ErrNegativeValue
	}
	row := CounterRow{CounterKey: counterKey, Value: value, UpdatedAt: s.clock.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}
