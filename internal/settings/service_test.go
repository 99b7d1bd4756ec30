package settings

import (
	"context"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stockforge-erp/stockforge/internal/ledger"
	"github.com/stockforge-erp/stockforge/internal/shared"
)

type mockRepo struct {
	method   ledger.CostingMethod
	getCalls int
	setCalls int
}

func (m *mockRepo) GetCostingMethod(ctx context.Context) (ledger.CostingMethod, error) {
	m.getCalls++
	if m.method == "" {
		return "", shared.ErrNotFound
	}
	return m.method, nil
}

func (m *mockRepo) SetCostingMethod(ctx context.Context, method ledger.CostingMethod) error {
	m.setCalls++
	m.method = method
	return nil
}

func newTestService(t *testing.T, repo *mockRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(slog.Default(), repo, client, nil)
}

func TestActiveMethodDefaultsToFIFO(t *testing.T) {
	svc := newTestService(t, &mockRepo{})

	method, err := svc.ActiveMethod(context.Background())
	require.NoError(t, err)
	require.Equal(t, ledger.MethodFIFO, method)
}

func TestActiveMethodCachesReads(t *testing.T) {
	repo := &mockRepo{method: ledger.MethodLIFO}
	svc := newTestService(t, repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		method, err := svc.ActiveMethod(ctx)
		require.NoError(t, err)
		require.Equal(t, ledger.MethodLIFO, method)
	}
	require.Equal(t, 1, repo.getCalls)
}

func TestSetMethodInvalidatesCache(t *testing.T) {
	repo := &mockRepo{method: ledger.MethodFIFO}
	svc := newTestService(t, repo)
	ctx := context.Background()

	method, err := svc.ActiveMethod(ctx)
	require.NoError(t, err)
	require.Equal(t, ledger.MethodFIFO, method)

	require.NoError(t, svc.SetMethod(ctx, ledger.MethodWAC))

	method, err = svc.ActiveMethod(ctx)
	require.NoError(t, err)
	require.Equal(t, ledger.MethodWAC, method)
}

func TestSetMethodRejectsUnknown(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(t, repo)

	err := svc.SetMethod(context.Background(), ledger.CostingMethod("standard"))
	require.ErrorIs(t, err, ledger.ErrUnknownMethod)
	require.Zero(t, repo.setCalls)
}
