package users

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Sites stores the site registry
type Sites interface {
	GetByDomain(ctx context.Context, domain string) (*Site, error)
	GetByID(ctx context.Context, id int64) (*Site, error)
	GetOrCreate(ctx context.Context, domain, name string) (*Site, error)
	List(ctx context.Context) ([]*Site, error)
}

type sites struct {
	db *bun.DB
}

var _ Sites = (*sites)(nil)

func NewSitesRepository(db *bun.DB) Sites {
	return &sites{db: db}
}

func (s *sites) GetByDomain(ctx context.Context, domain string) (*Site, error) {
	record := &Site{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.domain = ?", strings.ToLower(domain)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *sites) GetByID(ctx context.Context, id int64) (*Site, error) {
	record := &Site{ID: id}
	if err := s.db.NewSelect().Model(record).WherePK().Scan(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *sites) GetOrCreate(ctx context.Context, domain, name string) (*Site, error) {
	site, err := s.GetByDomain(ctx, domain)
	if err == nil {
		return site, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	if name == "" {
		name = domain
	}
	site = &Site{Domain: strings.ToLower(domain), Name: name}
	if _, err := s.db.NewInsert().Model(site).Returning("id").Exec(ctx); err != nil {
		return nil, err
	}
	return site, nil
}

func (s *sites) List(ctx context.Context) ([]*Site, error) {
	var records []*Site
	if err := s.db.NewSelect().Model(&records).Order("id").Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}
