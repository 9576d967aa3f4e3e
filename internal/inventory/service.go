package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	// MaxPageIndex keeps page*size within a 32-bit row offset.
	MaxPageIndex = math.MaxInt32 / MaxPageSize
)

type CreateProductRequest struct {
	SKU           string
	Name          string
	Price         decimal.Decimal
	StockQuantity int
}

type UpdateProductRequest struct {
	SKU   string
	Name  string
	Price decimal.Decimal
}

// PatchProductRequest changes only the non-nil fields.
type PatchProductRequest struct {
	SKU   *string
	Name  *string
	Price *decimal.Decimal
}

// Service is the tenant-scoped product catalogue. Stock changes go through
// the Ledger only.
type Service struct {
	uow    UnitOfWork
	logger *zap.Logger
	now    func() time.Time
}

func NewService(uow UnitOfWork, logger *zap.Logger) *Service {
	return &Service{uow: uow, logger: logger, now: time.Now}
}

func (s *Service) CreateProduct(ctx context.Context, tenantID string, req CreateProductRequest) (*Product, error) {
	req.SKU = strings.TrimSpace(req.SKU)
	if err := validateFields(req.SKU, req.Price); err != nil {
		return nil, err
	}
	if req.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: stock quantity must not be negative", ErrInvalidProduct)
	}
	s.logger.Info("creating product", zap.String("tenant_id", tenantID), zap.String("sku", req.SKU))

	now := s.now().UTC()
	p := &Product{
		TenantID:      tenantID,
		ID:            uuid.NewString(),
		SKU:           req.SKU,
		Name:          req.Name,
		Price:         req.Price,
		StockQuantity: req.StockQuantity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		if err := ensureSKUFree(ctx, store, tenantID, p.SKU, ""); err != nil {
			return err
		}
		return store.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, tenantID, productID string) (*Product, error) {
	var p *Product
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		var err error
		p, err = store.Get(ctx, tenantID, productID)
		return err
	})
	if err != nil {
		s.logger.Warn("product lookup failed", zap.String("product_id", productID), zap.Error(err))
		return nil, err
	}
	return p, nil
}

// ListProducts pages through the catalogue; offset is a page index.
func (s *Service) ListProducts(ctx context.Context, tenantID string, offset, limit int) ([]Product, error) {
	page, size := Page(offset, limit)
	var out []Product
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		var err error
		out, err = store.List(ctx, tenantID, page*size, size)
		return err
	})
	return out, err
}

func (s *Service) UpdateProduct(ctx context.Context, tenantID, productID string, req UpdateProductRequest) (*Product, error) {
	req.SKU = strings.TrimSpace(req.SKU)
	if err := validateFields(req.SKU, req.Price); err != nil {
		return nil, err
	}
	s.logger.Info("updating product", zap.String("tenant_id", tenantID), zap.String("product_id", productID))
	return s.modify(ctx, tenantID, productID, func(p *Product) {
		p.SKU = req.SKU
		p.Name = req.Name
		p.Price = req.Price
	})
}

func (s *Service) PatchProduct(ctx context.Context, tenantID, productID string, req PatchProductRequest) (*Product, error) {
	if req.SKU != nil {
		sku := strings.TrimSpace(*req.SKU)
		if sku == "" {
			return nil, fmt.Errorf("%w: sku must not be blank", ErrInvalidProduct)
		}
		req.SKU = &sku
	}
	if req.Price != nil && req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	s.logger.Info("patching product", zap.String("tenant_id", tenantID), zap.String("product_id", productID))
	return s.modify(ctx, tenantID, productID, func(p *Product) {
		if req.SKU != nil {
			p.SKU = *req.SKU
		}
		if req.Name != nil {
			p.Name = *req.Name
		}
		if req.Price != nil {
			p.Price = *req.Price
		}
	})
}

func (s *Service) DeleteProduct(ctx context.Context, tenantID, productID string) error {
	s.logger.Info("deleting product", zap.String("tenant_id", tenantID), zap.String("product_id", productID))
	return s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		if _, err := store.Get(ctx, tenantID, productID); err != nil {
			return err
		}
		return store.Delete(ctx, tenantID, productID)
	})
}

// Restock adds delivered goods to the product's stock through the Ledger.
func (s *Service) Restock(ctx context.Context, tenantID, productID string, quantity int) (*Product, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: restock quantity must be positive", ErrInvalidProduct)
	}
	var p *Product
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		if err := NewLedger(store).Release(ctx, tenantID, productID, quantity); err != nil {
			return err
		}
		var err error
		p, err = store.Get(ctx, tenantID, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("product restocked",
		zap.String("tenant_id", tenantID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int("stock_quantity", p.StockQuantity))
	return p, nil
}

func (s *Service) modify(ctx context.Context, tenantID, productID string, apply func(*Product)) (*Product, error) {
	var p *Product
	err := s.uow.Do(ctx, func(ctx context.Context, store Store) error {
		var err error
		p, err = store.Get(ctx, tenantID, productID)
		if err != nil {
			return err
		}
		apply(p)
		if err := ensureSKUFree(ctx, store, tenantID, p.SKU, p.ID); err != nil {
			return err
		}
		p.UpdatedAt = s.now().UTC()
		return store.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func ensureSKUFree(ctx context.Context, store Store, tenantID, sku, exceptID string) error {
	taken, err := store.SKUTaken(ctx, tenantID, sku, exceptID)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: SKU [%s]", ErrSKUExists, sku)
	}
	return nil
}

func validateFields(sku string, price decimal.Decimal) error {
	if sku == "" {
		return fmt.Errorf("%w: sku is required", ErrInvalidProduct)
	}
	if price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	return nil
}

// Page normalises paging parameters: offset is a page index starting at 0,
// capped at MaxPageIndex, and limit falls back to DefaultPageSize, capped at
// MaxPageSize.
func Page(offset, limit int) (page, size int) {
	switch {
	case offset < 0:
		offset = 0
	case offset > MaxPageIndex:
		offset = MaxPageIndex
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return offset, limit
}
