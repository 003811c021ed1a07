package warehouses

import (
	"context"
	"errors"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

// Service exposes warehouse operations with a read-through reference cache.
type Service struct {
	repo  Repository
	cache *shared.Cache
}

// NewService constructs the service. cache may be nil.
func NewService(repo Repository, cache *shared.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, companyID, filters)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Warehouse, error) {
	if companyID <= 0 || id <= 0 {
		return Warehouse{}, shared.ErrInvalidID
	}
	key := shared.Key("warehouse", companyID, id)
	var wh Warehouse
	if s.cache.Get(ctx, key, &wh) {
		return wh, nil
	}
	wh, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return Warehouse{}, err
	}
	s.cache.Set(ctx, key, wh)
	return wh, nil
}

// Exists reports whether an active warehouse exists for the company. The
// manufacturing executor calls this before touching stock.
func (s *Service) Exists(ctx context.Context, companyID, id int64) (bool, error) {
	wh, err := s.Get(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrInvalidID) {
			return false, nil
		}
		return false, err
	}
	return wh.Status == StatusActive, nil
}

func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if warehouse.Status == "" {
		warehouse.Status = StatusActive
	}
	if err := s.validate(warehouse); err != nil {
		return Warehouse{}, err
	}
	return s.repo.Create(ctx, warehouse)
}

func (s *Service) Update(ctx context.Context, companyID, id int64, warehouse Warehouse) error {
	if companyID <= 0 || id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(warehouse); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, companyID, id, warehouse); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, shared.Key("warehouse", companyID, id))
}

func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	if companyID <= 0 || id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.repo.Delete(ctx, companyID, id); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, shared.Key("warehouse", companyID, id))
}
