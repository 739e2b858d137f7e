package mysql

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/example/storecore/internal/datamodels/customer"
	"github.com/example/storecore/internal/errs"
)

type customerRepo struct {
	db *gorm.DB
}

// NewCustomerRepository 创建客户仓储
func NewCustomerRepository(db *gorm.DB) customer.Repository {
	return &customerRepo{db: db}
}

func (r *customerRepo) Create(ctx context.Context, c *customer.Customer) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return errs.Transient(err, "create customer")
	}
	return nil
}

func (r *customerRepo) GetByID(ctx context.Context, tenantID, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("customer %s not found", id)
		}
		return nil, errs.Transient(err, "query customer %s", id)
	}
	return &c, nil
}

func (r *customerRepo) GetByEmail(ctx context.Context, tenantID, email string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND LOWER(email) = ?", tenantID, strings.ToLower(email)).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("customer not found")
		}
		return nil, errs.Transient(err, "query customer by email")
	}
	return &c, nil
}
