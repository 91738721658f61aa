package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/database/dbtest"
	"github.com/goliatone/go-users/ledger"
)

type fixture struct {
	svc   *ledger.Service
	alice *users.User
	bob   *users.User
}

func setup(t *testing.T) fixture {
	t.Helper()

	db := dbtest.Open(t)
	site := dbtest.Site(t, db, "example.com")
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	return fixture{
		svc: ledger.NewService(ledger.NewRepository(db),
			ledger.WithClock(func() time.Time { return now }),
		),
		alice: dbtest.User(t, db, site, "alice@example.com"),
		bob:   dbtest.User(t, db, site, "bob@example.com"),
	}
}

func ptr[T any](v T) *T { return &v }

func TestCategories(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	all, err := f.svc.Categories(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 13)

	income, err := f.svc.Categories(ctx, ledger.Income)
	require.NoError(t, err)
	assert.Len(t, income, 5)
	for _, c := range income {
		assert.Equal(t, ledger.Income, c.Transaction)
	}

	_, err = f.svc.Categories(ctx, "LOAN")
	assert.True(t, users.IsTextCode(err, users.TextCodeValidation))
}

func TestAssetLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.svc.CreateAsset(ctx, f.alice, ledger.AssetInput{
		Amount:      ptr(int64(3000000)),
		Description: ptr(" march salary "),
		TradeType:   ptr("INCOME_SALARY"),
		Transaction: ptr(ledger.Income),
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.True(t, created.Managed)
	assert.Equal(t, "march salary", *created.Description)

	got, err := f.svc.GetAsset(ctx, f.alice, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3000000), got.Amount)

	updated, err := f.svc.UpdateAsset(ctx, f.alice, created.ID, ledger.AssetInput{
		Amount: ptr(int64(3100000)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3100000), updated.Amount)
	assert.Equal(t, "INCOME_SALARY", *updated.TradeType)

	require.NoError(t, f.svc.DeleteAsset(ctx, f.alice, created.ID))
	_, err = f.svc.GetAsset(ctx, f.alice, created.ID)
	assert.ErrorIs(t, err, ledger.ErrAssetNotFound)
}

func TestAssetValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   ledger.AssetInput
	}{
		{name: "missing amount", in: ledger.AssetInput{Transaction: ptr(ledger.Income)}},
		{name: "missing transaction", in: ledger.AssetInput{Amount: ptr(int64(1))}},
		{name: "unknown transaction", in: ledger.AssetInput{Amount: ptr(int64(1)), Transaction: ptr(ledger.Transaction("LOAN"))}},
		{name: "unknown trade type", in: ledger.AssetInput{Amount: ptr(int64(1)), Transaction: ptr(ledger.Income), TradeType: ptr("INCOME_LOTTERY")}},
		{name: "trade type of other kind", in: ledger.AssetInput{Amount: ptr(int64(1)), Transaction: ptr(ledger.Income), TradeType: ptr("SPENDING_FOOD")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAsset(ctx, f.alice, tt.in)
			require.Error(t, err)
			assert.True(t, users.IsTextCode(err, users.TextCodeValidation))
		})
	}
}

func TestAssetsAreOwnerScoped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	asset, err := f.svc.CreateAsset(ctx, f.alice, ledger.AssetInput{
		Amount:      ptr(int64(12000)),
		Transaction: ptr(ledger.Spending),
		TradeType:   ptr("SPENDING_FOOD"),
	})
	require.NoError(t, err)

	_, err = f.svc.GetAsset(ctx, f.bob, asset.ID)
	assert.ErrorIs(t, err, ledger.ErrAssetNotFound)

	_, err = f.svc.UpdateAsset(ctx, f.bob, asset.ID, ledger.AssetInput{Amount: ptr(int64(1))})
	assert.True(t, users.IsTextCode(err, ledger.TextCodeNotFound))

	assert.ErrorIs(t, f.svc.DeleteAsset(ctx, f.bob, asset.ID), ledger.ErrAssetNotFound)

	list, total, err := f.svc.ListAssets(ctx, f.bob, ledger.AssetFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

func TestListAssetsAndSummary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entries := []ledger.AssetInput{
		{Amount: ptr(int64(1000)), Transaction: ptr(ledger.Income)},
		{Amount: ptr(int64(500)), Transaction: ptr(ledger.Income)},
		{Amount: ptr(int64(300)), Transaction: ptr(ledger.Spending)},
		{Amount: ptr(int64(9999)), Transaction: ptr(ledger.Spending), Managed: ptr(false)},
	}
	for _, in := range entries {
		_, err := f.svc.CreateAsset(ctx, f.alice, in)
		require.NoError(t, err)
	}

	page, total, err := f.svc.ListAssets(ctx, f.alice, ledger.AssetFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, 4, total)

	income, total, err := f.svc.ListAssets(ctx, f.alice, ledger.AssetFilter{Transaction: ledger.Income})
	require.NoError(t, err)
	assert.Len(t, income, 2)
	assert.Equal(t, 2, total)

	summary, err := f.svc.Summary(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, &ledger.Summary{Income: 1500, Spending: 300, Balance: 1200}, summary)

	empty, err := f.svc.Summary(ctx, f.bob)
	require.NoError(t, err)
	assert.Equal(t, &ledger.Summary{}, empty)
}

func TestSumUps(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateSumUp(ctx, f.alice, ledger.SumUpInput{JName: "rent", Transaction: ledger.Spending, TradeType: "rent"})
	require.NoError(t, err)
	created, err := f.svc.CreateSumUp(ctx, f.alice, ledger.SumUpInput{JName: "bonus", Transaction: ledger.Income, TradeType: "bonus"})
	require.NoError(t, err)
	_, err = f.svc.CreateSumUp(ctx, f.bob, ledger.SumUpInput{JName: "gift", Transaction: ledger.Income, TradeType: "gift"})
	require.NoError(t, err)

	_, err = f.svc.CreateSumUp(ctx, f.alice, ledger.SumUpInput{JName: "", Transaction: ledger.Income})
	assert.True(t, users.IsTextCode(err, users.TextCodeValidation))

	list, err := f.svc.ListSumUps(ctx, f.alice)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	groups, err := f.svc.TradeTypes(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Contains(t, groups[0].TradeTypes, ledger.TradeType{Name: "bonus"})
	assert.NotContains(t, groups[0].TradeTypes, ledger.TradeType{Name: "gift"})
	assert.Contains(t, groups[1].TradeTypes, ledger.TradeType{Name: "rent"})

	assert.ErrorIs(t, f.svc.DeleteSumUp(ctx, f.bob, created.ID), ledger.ErrSumUpNotFound)
	require.NoError(t, f.svc.DeleteSumUp(ctx, f.alice, created.ID))
}
