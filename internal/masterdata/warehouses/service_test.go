package warehouses

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

type memoryRepo struct {
	warehouses map[int64]Warehouse
	nextID     int64
	gets       int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{warehouses: make(map[int64]Warehouse)}
}

func (r *memoryRepo) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Warehouse, int, error) {
	var out []Warehouse
	for _, wh := range r.warehouses {
		if wh.CompanyID == companyID {
			out = append(out, wh)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, companyID, id int64) (Warehouse, error) {
	r.gets++
	wh, ok := r.warehouses[id]
	if !ok || wh.CompanyID != companyID {
		return Warehouse{}, shared.ErrNotFound
	}
	return wh, nil
}

func (r *memoryRepo) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	r.nextID++
	warehouse.ID = r.nextID
	r.warehouses[warehouse.ID] = warehouse
	return warehouse, nil
}

func (r *memoryRepo) Update(ctx context.Context, companyID, id int64, warehouse Warehouse) error {
	if _, ok := r.warehouses[id]; !ok {
		return shared.ErrNotFound
	}
	warehouse.ID = id
	warehouse.CompanyID = companyID
	r.warehouses[id] = warehouse
	return nil
}

func (r *memoryRepo) Delete(ctx context.Context, companyID, id int64) error {
	if _, ok := r.warehouses[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.warehouses, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := newMemoryRepo()
	return NewService(repo, shared.NewCache(client, time.Minute)), repo
}

func TestExistsRequiresActiveStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	active, err := svc.Create(ctx, Warehouse{CompanyID: 1, Code: "WH-1", Name: "Main"})
	require.NoError(t, err)
	require.Equal(t, StatusActive, active.Status)

	inactive, err := svc.Create(ctx, Warehouse{CompanyID: 1, Code: "WH-2", Name: "Old", Status: StatusInactive})
	require.NoError(t, err)

	ok, err := svc.Exists(ctx, 1, active.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.Exists(ctx, 1, inactive.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.Exists(ctx, 1, 999)
	require.NoError(t, err)
	require.False(t, ok)

	// another company never sees it
	ok, err = svc.Exists(ctx, 2, active.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetReadsThroughCache(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	wh, err := svc.Create(ctx, Warehouse{CompanyID: 1, Code: "WH-1", Name: "Main"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, 1, wh.ID)
	require.NoError(t, err)
	_, err = svc.Get(ctx, 1, wh.ID)
	require.NoError(t, err)
	require.Equal(t, 1, repo.gets, "second read served from cache")
}

func TestUpdateInvalidatesCache(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	wh, err := svc.Create(ctx, Warehouse{CompanyID: 1, Code: "WH-1", Name: "Main"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, 1, wh.ID)
	require.NoError(t, err)

	wh.Name = "Renamed"
	require.NoError(t, svc.Update(ctx, 1, wh.ID, wh))

	got, err := svc.Get(ctx, 1, wh.ID)
	require.NoError(t, err)
	require.Equal(t, "Renamed", got.Name)
}

func TestValidateRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, Warehouse{CompanyID: 1, Name: "No Code"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, Warehouse{CompanyID: 1, Code: "WH-1", Name: "Bad Status", Status: "paused"})
	require.ErrorIs(t, err, shared.ErrValidation)
}
