package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles stores user profiles and their avatar images
type Profiles interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*Profile, error)
	GetByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Profile, error)
	CreateTx(ctx context.Context, tx bun.IDB, profile *Profile) (*Profile, error)
	UpdateColumnsTx(ctx context.Context, tx bun.IDB, profile *Profile, columns ...string) error
	CreateImageTx(ctx context.Context, tx bun.IDB, image *Image) (*Image, error)
}

type profiles struct {
	db    *bun.DB
	clock Clock
}

var _ Profiles = (*profiles)(nil)

func NewProfilesRepository(db *bun.DB) Profiles {
	return &profiles{db: db}
}

func (p *profiles) GetByUser(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return p.GetByUserTx(ctx, p.db, userID)
}

func (p *profiles) GetByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Profile, error) {
	record := &Profile{}
	err := tx.NewSelect().
		Model(record).
		Relation("Avatar").
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (p *profiles) CreateTx(ctx context.Context, tx bun.IDB, profile *Profile) (*Profile, error) {
	if _, err := tx.NewInsert().Model(profile).Exec(ctx); err != nil {
		return nil, err
	}
	return profile, nil
}

func (p *profiles) UpdateColumnsTx(ctx context.Context, tx bun.IDB, profile *Profile, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	_, err := tx.NewUpdate().Model(profile).Column(columns...).WherePK().Exec(ctx)
	return err
}

func (p *profiles) CreateImageTx(ctx context.Context, tx bun.IDB, image *Image) (*Image, error) {
	now := p.clock.now()
	if image.ID == uuid.Nil {
		image.ID = uuid.New()
	}
	image.CreatedAt = now
	image.UpdatedAt = now
	if _, err := tx.NewInsert().Model(image).Exec(ctx); err != nil {
		return nil, err
	}
	return image, nil
}
