package promo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/db/memdb"
	"github.com/noah-isme/backend-kasir/internal/promo"
)

var now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memdb.Store
	catalog *catalog.Service
	svc     *promo.Service
	owner   uuid.UUID
	biz     db.Business
	branch  db.Branch
	product db.Product
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
	product := store.AddProduct(db.Product{BusinessID: biz.ID, Name: "Beras 5kg", Price: dec("100000")}, branch.ID)
	cat := catalog.NewService(catalog.ServiceConfig{Queries: store.Queries(), Logger: zerolog.Nop()})
	svc := promo.NewService(promo.ServiceConfig{
		Store:   store,
		Catalog: cat,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return now },
	})
	return &fixture{store: store, catalog: cat, svc: svc, owner: owner, biz: biz, branch: branch, product: product}
}

func (f *fixture) insertPromo(t *testing.T, scope promo.Scope, mutate func(*db.CreatePromoParams)) db.Promo {
	t.Helper()
	arg := db.CreatePromoParams{
		OwnerID:         &f.owner,
		ScopeType:       scope.Type,
		ScopeID:         scope.ID,
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
