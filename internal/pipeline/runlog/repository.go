package runlog

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, run *DocumentRun) error
	List(ctx context.Context, db *gorm.DB, accountID string, filter ListFilter) ([]DocumentRun, error)
	CountByState(ctx context.Context, db *gorm.DB, accountID string) (map[string]int64, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, run *DocumentRun) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, accountID string, filter ListFilter) ([]DocumentRun, error) {
	stmt := db.WithContext(ctx).Model(&DocumentRun{})
	if accountID != "" {
		stmt = stmt.Where("account_id = ?", accountID)
	}
	if filter.DocType != "" {
		stmt = stmt.Where("doc_type = ?", filter.DocType)
	}
	if filter.State != "" {
		stmt = stmt.Where("state = ?", filter.State)
	}
	if !filter.Since.IsZero() {
		stmt = stmt.Where("started_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		stmt = stmt.Where("started_at < ?", filter.Until)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var runs []DocumentRun
	if err := stmt.Order("started_at desc").Order("id desc").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *repo) CountByState(ctx context.Context, db *gorm.DB, accountID string) (map[string]int64, error) {
	var rows []struct {
		State string
		Total int64
	}
	stmt := db.WithContext(ctx).Model(&DocumentRun{}).Select("state, count(*) as total")
	if accountID != "" {
		stmt = stmt.Where("account_id = ?", accountID)
	}
	if err := stmt.Group("state").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.State] = row.Total
	}
	return out, nil
}
