package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/db"
	"github.com/noah-isme/backend-kasir/internal/db/memdb"
)

type fixture struct {
	store   *memdb.Store
	owner   uuid.UUID
	biz     db.Business
	branch  db.Branch
	product db.Product
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memdb.New()
	owner := uuid.New()
	biz := store.AddBusiness(owner, "Toko Maju")
	branch := store.AddBranch(biz.ID, "Cabang Pusat")
	cat := store.AddCategory(biz.ID, "Minuman")
	product := store.AddProduct(db.Product{
		BusinessID: biz.ID,
		CategoryID: &cat.ID,
		Name:       "Kopi Susu",
		Price:      decimal.NewFromInt(18000),
	}, branch.ID)
	return fixture{store: store, owner: owner, biz: biz, branch: branch, product: product}
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestServiceProductIsCached(t *testing.T) {
	f := newFixture(t)
	client := newRedis(t)
	svc := catalog.NewService(catalog.ServiceConfig{
		Queries: f.store.Queries(),
		Cache:   catalog.NewCache(client, time.Minute),
		Logger:  zerolog.Nop(),
	})
	ctx := context.Background()

	product, err := svc.Product(ctx, f.product.ID)
	require.NoError(t, err)
	require.Equal(t, "Minuman", product.CategoryName)
	require.True(t, product.AssignedTo(f.branch.ID))
	require.True(t, product.Price.Equal(decimal.NewFromInt(18000)))

	exists, err := client.Exists(ctx, "catalog:product:"+jsonID(f.product.ID)).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, exists)

	again, err := svc.Product(ctx, f.product.ID)
	require.NoError(t, err)
	require.Equal(t, product.Name, again.Name)
	require.True(t, again.Price.Equal(product.Price))
}

func TestServiceMissingProductIsNotFound(t *testing.T) {
	f := newFixture(t)
	svc := catalog.NewService(catalog.ServiceConfig{Queries: f.store.Queries(), Logger: zerolog.Nop()})

	_, err := svc.Product(context.Background(), 999)
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = svc.Branch(context.Background(), 999)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestScopeIndexCoversOwnedScopes(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddBusiness(uuid.New(), "Toko Lain")
	svc := catalog.NewService(catalog.ServiceConfig{Queries: f.store.Queries(), Logger: zerolog.Nop()})

	idx, err := svc.ScopeIndex(context.Background(), f.owner)
	require.NoError(t, err)
	require.True(t, idx.Contains(db.ScopeTypeBusiness, f.biz.ID))
	require.True(t, idx.Contains(db.ScopeTypeBranch, f.branch.ID))
	require.True(t, idx.Contains(db.ScopeTypeProduct, f.product.ID))
	require.False(t, idx.Contains(db.ScopeTypeBusiness, other.ID))

	filter := idx.Filter(10)
	require.Equal(t, []int64{f.biz.ID}, filter.BusinessIDs)
	require.EqualValues(t, 10, filter.Limit)
}

func TestBranchHandlerHidesForeignBranches(t *testing.T) {
	f := newFixture(t)
	svc := catalog.NewService(catalog.ServiceConfig{Queries: f.store.Queries(), Logger: zerolog.Nop()})
	handler := catalog.NewHandler(svc)

	call := func(user uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/branches/"+jsonID(f.branch.ID), nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", jsonID(f.branch.ID))
		ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
		ctx = common.WithUserID(ctx, user.String())
		rec := httptest.NewRecorder()
		handler.Branch(rec, req.WithContext(ctx))
		return rec
	}

	rec := call(f.owner)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data catalog.Branch `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Cabang Pusat", body.Data.Name)

	require.Equal(t, http.StatusNotFound, call(uuid.New()).Code)
}

func jsonID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
