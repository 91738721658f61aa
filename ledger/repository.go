package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Repository stores ledger records. Every record query is scoped to its
// owner; a record of another user reads as missing.
type Repository interface {
	repository.Validator
	repository.TransactionManager

	Categories(ctx context.Context, kind Transaction) ([]*Category, error)

	ListAssets(ctx context.Context, userID uuid.UUID, filter AssetFilter) ([]*Asset, int, error)
	GetAsset(ctx context.Context, userID uuid.UUID, id int64) (*Asset, error)
	GetAssetTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, id int64) (*Asset, error)
	CreateAsset(ctx context.Context, asset *Asset) (*Asset, error)
	UpdateAssetColumnsTx(ctx context.Context, tx bun.IDB, asset *Asset, columns ...string) error
	DeleteAsset(ctx context.Context, userID uuid.UUID, id int64) (int64, error)
	Summary(ctx context.Context, userID uuid.UUID) (*Summary, error)

	ListSumUps(ctx context.Context, userID uuid.UUID) ([]*SumUp, error)
	CreateSumUp(ctx context.Context, sumUp *SumUp) (*SumUp, error)
	DeleteSumUp(ctx context.Context, userID uuid.UUID, id int64) (int64, error)
	DistinctTradeTypes(ctx context.Context, userID uuid.UUID) (map[Transaction][]string, error)
}

type repo struct {
	db *bun.DB
}

var _ Repository = (*repo)(nil)

func NewRepository(db *bun.DB) Repository {
	return &repo{db: db}
}

func (r *repo) Validate() error {
	if r.db == nil {
		return errors.New("database should be initialized")
	}
	return nil
}

func (r *repo) MustValidate() {
	if err := r.Validate(); err != nil {
		panic(err)
	}
}

func (r *repo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return r.db.RunInTx(ctx, opts, f)
	}
}

func (r *repo) Categories(ctx context.Context, kind Transaction) ([]*Category, error) {
	records := []*Category{}
	q := r.db.NewSelect().Model(&records).OrderExpr("?TableAlias.id ASC")
	if kind != "" {
		q = q.Where("?TableAlias.transaction_kind = ?", kind)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) ListAssets(ctx context.Context, userID uuid.UUID, filter AssetFilter) ([]*Asset, int, error) {
	records := []*Asset{}
	q := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.created_at DESC, ?TableAlias.id DESC")

	if filter.Transaction != "" {
		q = q.Where("?TableAlias.transaction_kind = ?", filter.Transaction)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *repo) GetAsset(ctx context.Context, userID uuid.UUID, id int64) (*Asset, error) {
	return r.GetAssetTx(ctx, r.db, userID, id)
}

func (r *repo) GetAssetTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, id int64) (*Asset, error) {
	record := &Asset{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *repo) CreateAsset(ctx context.Context, asset *Asset) (*Asset, error) {
	if _, err := r.db.NewInsert().Model(asset).Returning("*").Exec(ctx); err != nil {
		return nil, err
	}
	return asset, nil
}

func (r *repo) UpdateAssetColumnsTx(ctx context.Context, tx bun.IDB, asset *Asset, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	_, err := tx.NewUpdate().
		Model(asset).
		Column(columns...).
		WherePK().
		Where("user_id = ?", asset.UserID).
		Exec(ctx)
	return err
}

func (r *repo) DeleteAsset(ctx context.Context, userID uuid.UUID, id int64) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*Asset)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repo) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	rows := []struct {
		Transaction Transaction `bun:"transaction_kind"`
		Total       int64       `bun:"total"`
	}{}

	err := r.db.NewSelect().
		Model((*Asset)(nil)).
		Column("transaction_kind").
		ColumnExpr("COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Where("managed = ?", true).
		Group("transaction_kind").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, row := range rows {
		switch row.Transaction {
		case Income:
			summary.Income = row.Total
		case Spending:
			summary.Spending = row.Total
		}
	}
	summary.Balance = summary.Income - summary.Spending
	return summary, nil
}

func (r *repo) ListSumUps(ctx context.Context, userID uuid.UUID) ([]*SumUp, error) {
	records := []*SumUp{}
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) CreateSumUp(ctx context.Context, sumUp *SumUp) (*SumUp, error) {
	if _, err := r.db.NewInsert().Model(sumUp).Returning("*").Exec(ctx); err != nil {
		return nil, err
	}
	return sumUp, nil
}

func (r *repo) DeleteSumUp(ctx context.Context, userID uuid.UUID, id int64) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*SumUp)(nil)).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repo) DistinctTradeTypes(ctx context.Context, userID uuid.UUID) (map[Transaction][]string, error) {
	rows := []struct {
		Transaction Transaction `bun:"transaction_kind"`
		TradeType   string      `bun:"trade_type"`
	}{}

	err := r.db.NewSelect().
		Model((*SumUp)(nil)).
		Distinct().
		Column("transaction_kind", "trade_type").
		Where("user_id = ?", userID).
		OrderExpr("transaction_kind ASC, trade_type ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	out := map[Transaction][]string{}
	for _, row := range rows {
		out[row.Transaction] = append(out[row.Transaction], row.TradeType)
	}
	return out, nil
}
