package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	users "github.com/goliatone/go-users"
)

// MaxPageSize caps asset listings
const MaxPageSize = 100

var transactions = []interface{}{Income, Spending}

// AssetInput creates or partially updates an asset
type AssetInput struct {
	Amount      *int64       `json:"amount"`
	Description *string      `json:"description"`
	TradeType   *string      `json:"trade_type"`
	Transaction *Transaction `json:"transaction"`
	Managed     *bool        `json:"managed"`
}

func (in AssetInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Description, validation.Length(0, 100)),
		validation.Field(&in.Transaction, validation.In(transactions...)),
	)
}

func (in AssetInput) validateCreate() error {
	if err := in.Validate(); err != nil {
		return err
	}
	return validation.ValidateStruct(&in,
		validation.Field(&in.Amount, validation.NotNil),
		validation.Field(&in.Transaction, validation.NotNil),
	)
}

// SumUpInput creates a sum up
type SumUpInput struct {
	JName       string      `json:"j_name"`
	Transaction Transaction `json:"transaction"`
	TradeType   string      `json:"trade_type"`
}

func (in SumUpInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.JName, validation.Required, validation.Length(1, 35)),
		validation.Field(&in.Transaction, validation.Required, validation.In(transactions...)),
		validation.Field(&in.TradeType, validation.Length(0, 200)),
	)
}

// Service implements owner scoped ledger operations
type Service struct {
	repo   Repository
	logger users.Logger
	clock  users.Clock
}

type ServiceOption func(*Service)

func WithLogger(l users.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(c users.Clock) ServiceOption {
	return func(s *Service) {
		s.clock = c
	}
}

func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

// Categories lists the taxonomy rows, optionally for one transaction kind
func (s *Service) Categories(ctx context.Context, kind Transaction) ([]*Category, error) {
	if kind != "" && !kind.Valid() {
		return nil, users.NewValidationError(validation.Errors{"transaction": errors.New("must be INCOME or SPENDING")})
	}
	records, err := s.repo.Categories(ctx, kind)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list categories")
	}
	return records, nil
}

// ListAssets returns one page of the owner's assets and the total count
func (s *Service) ListAssets(ctx context.Context, owner *users.User, filter AssetFilter) ([]*Asset, int, error) {
	if filter.Transaction != "" && !filter.Transaction.Valid() {
		return nil, 0, users.NewValidationError(validation.Errors{"transaction": errors.New("must be INCOME or SPENDING")})
	}
	if filter.Limit <= 0 || filter.Limit > MaxPageSize {
		filter.Limit = MaxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	records, total, err := s.repo.ListAssets(ctx, owner.ID, filter)
	if err != nil {
		return nil, 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list assets")
	}
	return records, total, nil
}

func (s *Service) GetAsset(ctx context.Context, owner *users.User, id int64) (*Asset, error) {
	record, err := s.repo.GetAsset(ctx, owner.ID, id)
	if err != nil {
		return nil, notFoundOr(err, ErrAssetNotFound, "failed to load asset")
	}
	return record, nil
}

func (s *Service) CreateAsset(ctx context.Context, owner *users.User, in AssetInput) (*Asset, error) {
	if err := in.validateCreate(); err != nil {
		return nil, users.NewValidationError(err)
	}

	now := s.now()
	asset := &Asset{
		UserID:      owner.ID,
		Amount:      *in.Amount,
		Description: trimmed(in.Description),
		TradeType:   trimmed(in.TradeType),
		Transaction: *in.Transaction,
		Managed:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.Managed != nil {
		asset.Managed = *in.Managed
	}

	if err := checkTradeType(asset.Transaction, asset.TradeType); err != nil {
		return nil, err
	}

	record, err := s.repo.CreateAsset(ctx, asset)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create asset")
	}

	s.log("asset created", "user_id", owner.ID.String(), "asset_id", record.ID)
	return record, nil
}

// UpdateAsset applies a partial update. The trade type is checked against
// the resulting transaction kind.
func (s *Service) UpdateAsset(ctx context.Context, owner *users.User, id int64, in AssetInput) (*Asset, error) {
	if err := in.Validate(); err != nil {
		return nil, users.NewValidationError(err)
	}

	var asset *Asset
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if asset, err = s.repo.GetAssetTx(ctx, tx, owner.ID, id); err != nil {
			return notFoundOr(err, ErrAssetNotFound, "failed to load asset")
		}

		columns := []string{}
		if in.Amount != nil {
			asset.Amount = *in.Amount
			columns = append(columns, "amount")
		}
		if in.Description != nil {
			asset.Description = trimmed(in.Description)
			columns = append(columns, "description")
		}
		if in.TradeType != nil {
			asset.TradeType = trimmed(in.TradeType)
			columns = append(columns, "trade_type")
		}
		if in.Transaction != nil {
			asset.Transaction = *in.Transaction
			columns = append(columns, "transaction_kind")
		}
		if in.Managed != nil {
			asset.Managed = *in.Managed
			columns = append(columns, "managed")
		}
		if len(columns) == 0 {
			return nil
		}

		if err := checkTradeType(asset.Transaction, asset.TradeType); err != nil {
			return err
		}

		asset.UpdatedAt = s.now()
		columns = append(columns, "updated_at")
		return s.repo.UpdateAssetColumnsTx(ctx, tx, asset, columns...)
	})
	if err != nil {
		return nil, asRichError(err, "failed to update asset")
	}
	return asset, nil
}

func (s *Service) DeleteAsset(ctx context.Context, owner *users.User, id int64) error {
	n, err := s.repo.DeleteAsset(ctx, owner.ID, id)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete asset")
	}
	if n == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// Summary totals the owner's managed assets
func (s *Service) Summary(ctx context.Context, owner *users.User) (*Summary, error) {
	summary, err := s.repo.Summary(ctx, owner.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compute summary")
	}
	return summary, nil
}

func (s *Service) ListSumUps(ctx context.Context, owner *users.User) ([]*SumUp, error) {
	records, err := s.repo.ListSumUps(ctx, owner.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list sum ups")
	}
	return records, nil
}

func (s *Service) CreateSumUp(ctx context.Context, owner *users.User, in SumUpInput) (*SumUp, error) {
	in.JName = strings.TrimSpace(in.JName)
	in.TradeType = strings.TrimSpace(in.TradeType)
	if err := in.Validate(); err != nil {
		return nil, users.NewValidationError(err)
	}

	now := s.now()
	record, err := s.repo.CreateSumUp(ctx, &SumUp{
		UserID:      owner.ID,
		JName:       in.JName,
		Transaction: in.Transaction,
		TradeType:   in.TradeType,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create sum up")
	}
	return record, nil
}

func (s *Service) DeleteSumUp(ctx context.Context, owner *users.User, id int64) error {
	n, err := s.repo.DeleteSumUp(ctx, owner.ID, id)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete sum up")
	}
	if n == 0 {
		return ErrSumUpNotFound
	}
	return nil
}

// TradeTypes returns the taxonomy merged with the owner's own trade types
func (s *Service) TradeTypes(ctx context.Context, owner *users.User) ([]TaxonomyGroup, error) {
	entered, err := s.repo.DistinctTradeTypes(ctx, owner.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list trade types")
	}
	return MergeTradeTypes(entered), nil
}

func (s *Service) log(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func checkTradeType(kind Transaction, tradeType *string) error {
	if tradeType == nil {
		return nil
	}
	owner, ok := TransactionOf(*tradeType)
	if !ok {
		return users.NewValidationError(validation.Errors{"trade_type": errors.New("unknown trade type")})
	}
	if owner != kind {
		return users.NewValidationError(validation.Errors{"trade_type": errors.New("trade type does not match transaction")})
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func notFoundOr(err error, notFound *goerrors.Error, message string) error {
	if repository.IsRecordNotFound(err) {
		return notFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}

func asRichError(err error, message string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
