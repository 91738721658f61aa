package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tokens stores expiring tokens, at most one per user
type Tokens interface {
	GetByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*ExpiringToken, error)
	GetByKey(ctx context.Context, key string) (*ExpiringToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, token *ExpiringToken) (*ExpiringToken, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error)
	Touch(ctx context.Context, key string, at time.Time) error
}

type tokens struct {
	db *bun.DB
}

var _ Tokens = (*tokens)(nil)

func NewTokensRepository(db *bun.DB) Tokens {
	return &tokens{db: db}
}

func (t *tokens) GetByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*ExpiringToken, error) {
	record := &ExpiringToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetByKey loads the token together with its user.
func (t *tokens) GetByKey(ctx context.Context, key string) (*ExpiringToken, error) {
	record := &ExpiringToken{Key: key}
	err := t.db.NewSelect().
		Model(record).
		Relation("User").
		WherePK().
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (t *tokens) CreateTx(ctx context.Context, tx bun.IDB, token *ExpiringToken) (*ExpiringToken, error) {
	if _, err := tx.NewInsert().Model(token).Exec(ctx); err != nil {
		return nil, err
	}
	return token, nil
}

func (t *tokens) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return t.DeleteByUserTx(ctx, t.db, userID)
}

func (t *tokens) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	res, err := tx.NewDelete().
		Model((*ExpiringToken)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *tokens) Touch(ctx context.Context, key string, at time.Time) error {
	_, err := t.db.NewUpdate().
		Model((*ExpiringToken)(nil)).
		Set("updated = ?", at).
		Where("? = ?", bun.Ident("key"), key).
		Exec(ctx)
	return err
}
