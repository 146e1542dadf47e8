package sale_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/db/memdb"
	"github.com/noah-isme/backend-kasir/internal/sale"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

type fixture struct {
	store   *memdb.Store
	catalog *catalog.Service
	owner   uuid.UUID
	cashier uuid.UUID // rings up sales; the branch owner, as Create requires
	biz     db.Business
	branch  db.Branch
	other   db.Branch
	rice    db.Product
	oil     db.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := now
	store := memdb.New(memdb.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	owner := uuid.New()
	biz := store.AddBusiness(owner, "Toko Maju")
	branch := store.AddBranch(biz.ID, "Cabang Pusat")
	other := store.AddBranch(biz.ID, "Cabang Timur")
	category := store.AddCategory(biz.ID, "Sembako")
	rice := store.AddProduct(db.Product{BusinessID: biz.ID, CategoryID: &category.ID, Name: "Beras 5kg", Price: dec("100000")}, branch.ID)
	oil := store.AddProduct(db.Product{BusinessID: biz.ID, CategoryID: &category.ID, Name: "Minyak 2L", Price: dec("50000")}, branch.ID)
	return &fixture{
		store:   store,
		catalog: catalog.NewService(catalog.ServiceConfig{Queries: store.Queries(), Logger: zerolog.Nop()}),
		owner:   owner,
		cashier: owner,
		biz:     biz,
		branch:  branch,
		other:   other,
		rice:    rice,
		oil:     oil,
	}
}

func (f *fixture) service(store db.Store) *sale.Service {
	if store == nil {
		store = f.store
	}
	return sale.NewService(sale.ServiceConfig{
		Store:   store,
		Catalog: f.catalog,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return now },
		Backoff: time.Millisecond,
	})
}

func (f *fixture) insertPromo(t *testing.T, scopeType db.ScopeType, scopeID int64, mutate func(*db.CreatePromoParams)) db.Promo {
	t.Helper()
	arg := db.CreatePromoParams{
		OwnerID:         &f.owner,
		ScopeType:       scopeType,
		ScopeID:         scopeID,
		StartDate:       now.Add(-24 * time.Hour),
		EndDate:         now.Add(24 * time.Hour),
		PercentDiscount: decPtr("10"),
	}
	if mutate != nil {
		mutate(&arg)
	}
	p, err := f.store.Queries().CreatePromo(context.Background(), arg)
	require.NoError(t, err)
	return p
}

// wrapStore runs every transaction through wrap so tests can inject failures.
type wrapStore struct {
	*memdb.Store
	wrap func(db.Querier) db.Querier
}

func (w wrapStore) InTx(ctx context.Context, fn func(db.Querier) error) error {
	return w.Store.InTx(ctx, func(q db.Querier) error { return fn(w.wrap(q)) })
}

// conflictingQuerier fails CreateTransaction with a unique violation while
// remaining is positive.
type conflictingQuerier struct {
	db.Querier
	remaining *int
}

func (c conflictingQuerier) CreateTransaction(ctx context.Context, arg db.CreateTransactionParams) (db.Transaction, error) {
	if *c.remaining > 0 {
		*c.remaining--
		return db.Transaction{}, &db.ConflictError{Constraint: "transactions_number_key", Err: context.DeadlineExceeded}
	}
	return c.Querier.CreateTransaction(ctx, arg)
}

// exhaustedQuerier reports every promo as having no usage left at increment time.
type exhaustedQuerier struct {
	db.Querier
}

func (exhaustedQuerier) IncrementPromoUsage(context.Context, int64) (int32, error) {
	return 0, db.ErrNoRows
}
