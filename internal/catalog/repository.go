package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stockforge-erp/stockforge/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, id int64, product Product) error
	Deactivate(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, sku, name, stock_type, measurement_type, measurement_value,
	available_qty, stock, cost_price, unit_cost,
	pricing_method, markup_percent, margin_percent, price, pricing_override,
	is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}

	appendFilter := func(clause string, value any) {
		args = append(args, value)
		where += ` AND ` + fmt.Sprintf(clause, strconv.Itoa(len(args)))
	}

	if filters.Search != "" {
		appendFilter(`(name ILIKE $%[1]s OR sku ILIKE $%[1]s)`, "%"+filters.Search+"%")
	}
	if filters.StockType != "" {
		appendFilter(`stock_type = $%s`, filters.StockType)
	}
	if filters.IsActive != nil {
		appendFilter(`is_active = $%s`, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count products: %w", err)
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		page := filters.Page
		if page < 1 {
			page = 1
		}
		args = append(args, filters.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
		args = append(args, (page-1)*filters.Limit)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	row := r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	now := time.Now()
	err := r.db.QueryRow(ctx, `
		INSERT INTO products (sku, name, stock_type, measurement_type, measurement_value,
			available_qty, stock, cost_price, unit_cost,
			pricing_method, markup_percent, margin_percent, price, pricing_override,
			is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, 0, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id`,
		product.SKU, product.Name, product.StockType, product.MeasurementType, product.MeasurementValue.String(),
		product.PricingMethod, product.MarkupPercent.String(), product.MarginPercent.String(),
		product.Price.String(), product.PricingOverride, product.IsActive, now,
	).Scan(&product.ID)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: create product: %w", err)
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

// Update writes the master-data columns only. The ledger-owned columns are
// not in the statement.
func (r *repository) Update(ctx context.Context, id int64, product Product) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products SET sku = $1, name = $2, stock_type = $3, measurement_type = $4,
			measurement_value = $5, pricing_method = $6, markup_percent = $7,
			margin_percent = $8, price = $9, pricing_override = $10, is_active = $11,
			updated_at = $12
		WHERE id = $13`,
		product.SKU, product.Name, product.StockType, product.MeasurementType,
		product.MeasurementValue.String(), product.PricingMethod, product.MarkupPercent.String(),
		product.MarginPercent.String(), product.Price.String(), product.PricingOverride,
		product.IsActive, time.Now(), id)
	if err != nil {
		return fmt.Errorf("catalog: update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE products SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("catalog: deactivate product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p                Product
		measurementValue string
		availableQty     string
		costPrice        string
		unitCost         string
		markupPercent    string
		marginPercent    string
		price            string
	)
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.StockType, &p.MeasurementType, &measurementValue,
		&availableQty, &p.Stock, &costPrice, &unitCost,
		&p.PricingMethod, &markupPercent, &marginPercent, &price, &p.PricingOverride,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	for _, field := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&p.MeasurementValue, measurementValue},
		{&p.AvailableQty, availableQty},
		{&p.CostPrice, costPrice},
		{&p.UnitCost, unitCost},
		{&p.MarkupPercent, markupPercent},
		{&p.MarginPercent, marginPercent},
		{&p.Price, price},
	} {
		d, err := decimal.NewFromString(field.raw)
		if err != nil {
			return Product{}, fmt.Errorf("catalog: parse numeric %q: %w", field.raw, err)
		}
		*field.dst = d
	}
	return p, nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "sku":
		return "sku " + dir
	case "name":
		return "name " + dir
	case "price":
		return "price " + dir
	case "cost_price":
		return "cost_price " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
