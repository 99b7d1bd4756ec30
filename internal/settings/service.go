// Package settings stores engine-wide configuration, currently the active
// costing method. The method is read on every valuation and deduction, so
// reads go through a short-lived redis cache.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/shared"
)

const (
	cacheKey = "settings:costing_method"
	cacheTTL = 30 * time.Second
)

// RepositoryPort abstracts settings persistence.
type RepositoryPort interface {
	GetCostingMethod(ctx context.Context) (ledger.CostingMethod, error)
	SetCostingMethod(ctx context.Context, method ledger.CostingMethod) error
}

// Service reads and updates the active costing method.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	cache  *redis.Client
	audit  ledger.AuditPort
}

// NewService constructs the settings service. cache may be nil; reads then
// always hit the repository.
func NewService(logger *slog.Logger, repo RepositoryPort, cache *redis.Client, audit ledger.AuditPort) *Service {
	return &Service{logger: logger, repo: repo, cache: cache, audit: audit}
}

// ActiveMethod returns the costing method in force. Missing configuration
// falls back to FIFO.
func (s *Service) ActiveMethod(ctx context.Context) (ledger.CostingMethod, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			method := ledger.CostingMethod(raw)
			if method.IsValid() {
				return method, nil
			}
		}
	}

	method, err := s.repo.GetCostingMethod(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return ledger.MethodFIFO, nil
		}
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, method.String(), cacheTTL).Err(); err != nil {
			s.logger.Warn("settings cache write failed", slog.Any("error", err))
		}
	}
	return method, nil
}

// SetMethod switches the active costing method. The change applies to future
// operations only; history is never restated.
func (s *Service) SetMethod(ctx context.Context, method ledger.CostingMethod) error {
	if !method.IsValid() {
		return ledger.ErrUnknownMethod
	}
	if err := s.repo.SetCostingMethod(ctx, method); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Del(ctx, cacheKey).Err(); err != nil {
			s.logger.Warn("settings cache invalidation failed", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   "SETTINGS_COSTING_METHOD",
			Entity:   "settings",
			EntityID: "costing_method",
			Meta:     map[string]any{"method": method.String()},
		})
	}
	return nil
}
