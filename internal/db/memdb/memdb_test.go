package memdb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/db/memdb"
)

func TestInTxRollsBackOnError(t *testing.T) {
	store := memdb.New()
	owner := uuid.New()
	biz := store.AddBusiness(owner, "Toko")
	branch := store.AddBranch(biz.ID, "Pusat")
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.InTx(ctx, func(q db.Querier) error {
		_, err := q.CreateTransaction(ctx, db.CreateTransactionParams{
			TransactionNumber: "TRX20260101-0001",
			BranchID:          branch.ID,
			UserID:            owner,
			Subtotal:          decimal.NewFromInt(10),
			TotalAmount:       decimal.NewFromInt(10),
		})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	count, err := store.Queries().CountTransactionsByNumberPrefix(ctx, "TRX20260101")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestInTxRevertsEveryTable(t *testing.T) {
	store := memdb.New()
	owner := uuid.New()
	biz := store.AddBusiness(owner, "Toko")
	branch := store.AddBranch(biz.ID, "Pusat")
	ctx := context.Background()
	pct := decimal.NewFromInt(10)
	promo, err := store.Queries().CreatePromo(ctx, db.CreatePromoParams{
		ScopeType:       db.ScopeTypeBranch,
		ScopeID:         branch.ID,
		StartDate:       time.Now().Add(-time.Hour),
		EndDate:         time.Now().Add(time.Hour),
		PercentDiscount: &pct,
	})
	require.NoError(t, err)

	sell := func(q db.Querier, number string) (db.Transaction, error) {
		tx, err := q.CreateTransaction(ctx, db.CreateTransactionParams{
			TransactionNumber: number,
			BranchID:          branch.ID,
			UserID:            owner,
		})
		if err != nil {
			return tx, err
		}
		if _, err := q.CreateProductTransaction(ctx, db.CreateProductTransactionParams{TransactionID: tx.ID, ProductID: 1, Quantity: 1}); err != nil {
			return tx, err
		}
		if _, err := q.IncrementPromoUsage(ctx, promo.ID); err != nil {
			return tx, err
		}
		_, err = q.InsertPromoPriceHistory(ctx, db.InsertPromoPriceHistoryParams{PromoID: promo.ID, ProductID: 1})
		return tx, err
	}

	boom := errors.New("boom")
	var failed db.Transaction
	err = store.InTx(ctx, func(q db.Querier) error {
		failed, err = sell(q, "TRX20260101-0001")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	q := store.Queries()
	_, err = q.GetTransaction(ctx, failed.ID)
	require.ErrorIs(t, err, db.ErrNoRows)
	items, err := q.ListProductTransactions(ctx, failed.ID)
	require.NoError(t, err)
	require.Empty(t, items)
	stored, err := q.GetPromo(ctx, promo.ID)
	require.NoError(t, err)
	require.Zero(t, stored.UsedCount)
	distinct, err := q.CountDistinctProductsByPromoIDs(ctx, []int64{promo.ID})
	require.NoError(t, err)
	require.Zero(t, distinct)

	require.Panics(t, func() {
		_ = store.InTx(ctx, func(q db.Querier) error {
			_, _ = sell(q, "TRX20260101-0001")
			panic("boom")
		})
	})
	count, err := q.CountTransactionsByNumberPrefix(ctx, "TRX")
	require.NoError(t, err)
	require.Zero(t, count)

	var committed db.Transaction
	require.NoError(t, store.InTx(ctx, func(q db.Querier) error {
		committed, err = sell(q, "TRX20260101-0001")
		return err
	}))
	require.Equal(t, failed.ID, committed.ID)
	items, err = q.ListProductTransactions(ctx, committed.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	stored, err = q.GetPromo(ctx, promo.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, stored.UsedCount)
}

func TestDuplicateTransactionNumberIsConflict(t *testing.T) {
	store := memdb.New()
	owner := uuid.New()
	biz := store.AddBusiness(owner, "Toko")
	branch := store.AddBranch(biz.ID, "Pusat")
	ctx := context.Background()
	arg := db.CreateTransactionParams{
		TransactionNumber: "TRX20260101-0001",
		BranchID:          branch.ID,
		UserID:            owner,
	}

	_, err := store.Queries().CreateTransaction(ctx, arg)
	require.NoError(t, err)
	_, err = store.Queries().CreateTransaction(ctx, arg)
	require.ErrorIs(t, err, db.ErrConflict)

	var conflict *db.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "transactions_number_key", conflict.Constraint)
}

func TestIncrementPromoUsageRespectsLimit(t *testing.T) {
	store := memdb.New()
	ctx := context.Background()
	limit := int32(1)
	pct := decimal.NewFromInt(10)
	promo, err := store.Queries().CreatePromo(ctx, db.CreatePromoParams{
		ScopeType:       db.ScopeTypeProduct,
		ScopeID:         1,
		StartDate:       time.Now().Add(-time.Hour),
		EndDate:         time.Now().Add(time.Hour),
		PercentDiscount: &pct,
		UsageLimit:      &limit,
	})
	require.NoError(t, err)

	used, err := store.Queries().IncrementPromoUsage(ctx, promo.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, used)

	_, err = store.Queries().IncrementPromoUsage(ctx, promo.ID)
	require.ErrorIs(t, err, db.ErrNoRows)
}

func TestListProductIDsInScope(t *testing.T) {
	store := memdb.New()
	owner := uuid.New()
	biz := store.AddBusiness(owner, "Toko")
	north := store.AddBranch(biz.ID, "Utara")
	south := store.AddBranch(biz.ID, "Selatan")
	a := store.AddProduct(db.Product{BusinessID: biz.ID, Name: "Kopi", Price: decimal.NewFromInt(5000)}, north.ID, south.ID)
	b := store.AddProduct(db.Product{BusinessID: biz.ID, Name: "Teh", Price: decimal.NewFromInt(4000)}, south.ID)
	ctx := context.Background()

	ids, err := store.Queries().ListProductIDsInScope(ctx, db.ScopeTypeBranch, north.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{a.ID}, ids)

	ids, err = store.Queries().ListProductIDsInScope(ctx, db.ScopeTypeBusiness, biz.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{a.ID, b.ID}, ids)

	ids, err = store.Queries().ListProductIDsInScope(ctx, db.ScopeTypeProduct, b.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{b.ID}, ids)
}
