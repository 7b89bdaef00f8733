package cart

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/anishmaharjan/kinmel-backend/internal/stock"
	"github.com/anishmaharjan/kinmel-backend/pkg/db/models"
	"github.com/anishmaharjan/kinmel-backend/pkg/enums"
	pkgerrors "github.com/anishmaharjan/kinmel-backend/pkg/errors"
	"github.com/anishmaharjan/kinmel-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines the buyer-facing cart operations.
type Service interface {
	GetOrCreateActive(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, buyerID, variantID uuid.UUID, quantity int) (*models.CartItem, error)
	UpdateItemQuantity(ctx context.Context, buyerID, itemID uuid.UUID, quantity int) (*models.CartItem, error)
	RemoveItem(ctx context.Context, buyerID, itemID uuid.UUID) error
	View(ctx context.Context, buyerID uuid.UUID) (*View, error)
}

// View is the read model returned to controllers: cart lines with current
// variant data and a computed subtotal.
type View struct {
	CartID        uuid.UUID `json:"cart_id"`
	Lines         []Line    `json:"lines"`
	ItemsSubtotal string    `json:"items_subtotal"`
}

// Line is one cart row joined with its variant.
type Line struct {
	ItemID      uuid.UUID `json:"item_id"`
	VariantID   uuid.UUID `json:"variant_id"`
	ProductName string    `json:"product_name"`
	Quantity    int       `json:"quantity"`
	UnitPrice   string    `json:"unit_price"`
	LineTotal   string    `json:"line_total"`
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds a cart service with the required dependencies.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// GetOrCreateActive returns the buyer's active cart, creating it lazily on
// first access.
func (s *service) GetOrCreateActive(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	cart, err := s.repo.FindActive(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}
	if cart != nil {
		return cart, nil
	}
	created, err := s.repo.Create(ctx, &models.Cart{
		BuyerID: buyerID,
		Status:  enums.CartStatusActive,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return created, nil
}

// AddItem merges the variant into the buyer's active cart. Adding a variant
// already present increments its quantity rather than duplicating the row.
func (s *service) AddItem(ctx context.Context, buyerID, variantID uuid.UUID, quantity int) (*models.CartItem, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "buyer identity missing")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "quantity must be positive")
	}

	variant, err := s.repo.FindVariant(ctx, variantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	if variant == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
	}

	var result *models.CartItem
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActive(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
		}
		if cart == nil {
			cart, err = repo.Create(ctx, &models.Cart{BuyerID: buyerID, Status: enums.CartStatusActive})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
			}
		}

		existing, err := repo.FindItem(ctx, cart.ID, variant.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}

		target := quantity
		if existing != nil {
			target += existing.Quantity
		}
		if err := stock.CheckAvailable(*variant, target); err != nil {
			return err
		}

		if existing != nil {
			if err := repo.UpdateItemQuantity(ctx, existing.ID, target); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart item")
			}
			existing.Quantity = target
			result = existing
			return nil
		}

		created, err := repo.CreateItem(ctx, &models.CartItem{
			CartID:    cart.ID,
			VariantID: variant.ID,
			Quantity:  quantity,
			UnitPrice: variant.Price,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
		}
		result = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateItemQuantity replaces the quantity of one cart line.
func (s *service) UpdateItemQuantity(ctx context.Context, buyerID, itemID uuid.UUID, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "quantity must be positive")
	}

	var result *models.CartItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		cart, err := repo.FindActive(ctx, buyerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
		}
		if cart == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}

		item, err := repo.FindItemByID(ctx, cart.ID, itemID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
		}
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}

		variant, err := repo.FindVariant(ctx, item.VariantID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
		}
		if variant == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
		}
		if err := stock.CheckAvailable(*variant, quantity); err != nil {
			return err
		}

		if err := repo.UpdateItemQuantity(ctx, item.ID, quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
		}
		item.Quantity = quantity
		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveItem deletes one line from the buyer's active cart.
func (s *service) RemoveItem(ctx context.Context, buyerID, itemID uuid.UUID) error {
	cart, err := s.repo.FindActive(ctx, buyerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active cart")
	}
	if cart == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	item, err := s.repo.FindItemByID(ctx, cart.ID, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}
	if item == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	if err := s.repo.DeleteItem(ctx, item.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cart item")
	}
	return nil
}

// View loads the active cart with variants and computes line totals from the
// variants' current prices.
func (s *service) View(ctx context.Context, buyerID uuid.UUID) (*View, error) {
	cart, err := s.repo.FindActiveWithItems(ctx, buyerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil {
		fresh, err := s.GetOrCreateActive(ctx, buyerID)
		if err != nil {
			return nil, err
		}
		return &View{CartID: fresh.ID, Lines: []Line{}, ItemsSubtotal: types.MoneyString(decimal.Zero)}, nil
	}

	view := &View{CartID: cart.ID, Lines: make([]Line, 0, len(cart.Items))}
	subtotal := decimal.Zero
	for _, item := range cart.Items {
		price := item.UnitPrice
		productName := ""
		if item.Variant != nil {
			price = item.Variant.Price
			if item.Variant.Product != nil {
				productName = item.Variant.Product.Name
			}
		}
		lineTotal := types.LineTotal(price, item.Quantity)
		subtotal = subtotal.Add(lineTotal)
		view.Lines = append(view.Lines, Line{
			ItemID:      item.ID,
			VariantID:   item.VariantID,
			ProductName: productName,
			Quantity:    item.Quantity,
			UnitPrice:   types.MoneyString(price),
			LineTotal:   types.MoneyString(lineTotal),
		})
	}
	view.ItemsSubtotal = types.MoneyString(types.Round2(subtotal))
	return view, nil
}
