package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	Update(ctx context.Context, db *gorm.DB, account *Account) error
	Delete(ctx context.Context, db *gorm.DB, id string) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Account, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*Account, error)
	List(ctx context.Context, db *gorm.DB) ([]*Account, error)
}
