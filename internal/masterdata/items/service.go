package items

import (
	"context"
	"errors"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
)

// Service exposes item operations with a read-through reference cache.
type Service struct {
	repo  Repository
	cache *shared.Cache
}

// NewService constructs the service. cache may be nil.
func NewService(repo Repository, cache *shared.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) List(ctx context.Context, companyID int64, filters shared.ListFilters) ([]Item, int, error) {
	return s.repo.List(ctx, companyID, filters)
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (Item, error) {
	if companyID <= 0 || id <= 0 {
		return Item{}, shared.ErrInvalidID
	}
	key := shared.Key("item", companyID, id)
	var item Item
	if s.cache.Get(ctx, key, &item) {
		return item, nil
	}
	item, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return Item{}, err
	}
	s.cache.Set(ctx, key, item)
	return item, nil
}

// Exists reports whether an active item exists for the company.
func (s *Service) Exists(ctx context.Context, companyID, id int64) (bool, error) {
	item, err := s.Get(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrInvalidID) {
			return false, nil
		}
		return false, err
	}
	return item.IsActive, nil
}

func (s *Service) Create(ctx context.Context, item Item) (Item, error) {
	if err := s.validate(item); err != nil {
		return Item{}, err
	}
	return s.repo.Create(ctx, item)
}

func (s *Service) Update(ctx context.Context, companyID, id int64, item Item) error {
	if companyID <= 0 || id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(item); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, companyID, id, item); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, shared.Key("item", companyID, id))
}

func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	if companyID <= 0 || id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.repo.Delete(ctx, companyID, id); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx, shared.Key("item", companyID, id))
}
