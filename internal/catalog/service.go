package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: product id", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, form ProductForm) (Product, error) {
	if err := validateForm(form); err != nil {
		return Product{}, err
	}
	product := applyForm(Product{}, form)
	return s.repo.Create(ctx, product)
}

// Update rewrites the writable fields only. The ledger-derived columns keep
// whatever the engine last wrote, whatever the caller sent.
func (s *Service) Update(ctx context.Context, id int64, form ProductForm) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: product id", shared.ErrValidation)
	}
	if err := validateForm(form); err != nil {
		return Product{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	updated := applyForm(current, form)
	if err := s.repo.Update(ctx, id, updated); err != nil {
		return Product{}, err
	}
	return s.repo.Get(ctx, id)
}

// Deactivate retires a product without erasing its batch history.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: product id", shared.ErrValidation)
	}
	return s.repo.Deactivate(ctx, id)
}

func validateForm(form ProductForm) error {
	if strings.TrimSpace(form.SKU) == "" {
		return fmt.Errorf("%w: sku is required", shared.ErrValidation)
	}
	if strings.TrimSpace(form.Name) == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	switch form.StockType {
	case StockTypeRawMaterial, StockTypeFinishedGood, StockTypeAssetEquipment, StockTypeConsumable:
	default:
		return fmt.Errorf("%w: stock type %q", shared.ErrValidation, form.StockType)
	}
	if form.StockType == StockTypeRawMaterial && form.MeasurementValue.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: raw materials need a positive measurement value", shared.ErrValidation)
	}
	if form.MeasurementValue.IsNegative() {
		return fmt.Errorf("%w: measurement value", shared.ErrValidation)
	}
	switch form.PricingMethod {
	case "", PricingMarkup, PricingFixed:
	case PricingMargin:
		if form.MarginPercent.GreaterThanOrEqual(hundred) {
			return fmt.Errorf("%w: %v", shared.ErrValidation, ErrInvalidMargin)
		}
	default:
		return fmt.Errorf("%w: %v", shared.ErrValidation, ErrUnknownPricingMethod)
	}
	return nil
}

// applyForm copies the writable fields onto base, leaving the derived
// quantity and cost fields untouched.
func applyForm(base Product, form ProductForm) Product {
	base.SKU = form.SKU
	base.Name = form.Name
	base.StockType = form.StockType
	base.MeasurementType = form.MeasurementType
	base.MeasurementValue = form.MeasurementValue
	base.PricingMethod = form.PricingMethod
	base.MarkupPercent = form.MarkupPercent
	base.MarginPercent = form.MarginPercent
	base.Price = form.Price
	base.PricingOverride = form.PricingOverride
	base.IsActive = form.IsActive
	return base
}
