package address

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
)

// Repository loads buyer-owned shipping addresses for checkout snapshots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOwned(ctx context.Context, addressID, buyerID uuid.UUID) (*models.Address, error)
	ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Address, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an address repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindOwned returns the address only when it belongs to the buyer. A foreign
// or missing address is the same NotFound to the caller.
func (r *repository) FindOwned(ctx context.Context, addressID, buyerID uuid.UUID) (*models.Address, error) {
	var addr models.Address
	err := r.db.WithContext(ctx).
		Where("id = ? AND buyer_id = ?", addressID, buyerID).
		First(&addr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading address")
	}
	return &addr, nil
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.Address, error) {
	var addrs []models.Address
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("created_at DESC").
		Find(&addrs).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing addresses")
	}
	return addrs, nil
}
