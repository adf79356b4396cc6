package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/ledgerbridge/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]any{
			"name":               account.Name,
			"holded_api_key":     account.HoldedAPIKey,
			"cegid_company_code": account.CegidCompanyCode,
			"mode":               account.Mode,
			"doc_types":          account.DocTypes,
			"updated_at":         account.UpdatedAt,
		}).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Account{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Account, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Account, error) {
	return r.findOne(ctx, db, "name = ?", name)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).Where(query, arg).Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]*domain.Account, error) {
	var accounts []*domain.Account
	err := db.WithContext(ctx).
		Model(&domain.Account{}).
		Order("name asc").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}
