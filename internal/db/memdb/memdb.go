// Package memdb is an in-process implementation of db.Store. It backs
// STORE_DRIVER=memory for local development and the service tests; state is
// lost on restart and writers are serialized on one lock.
package memdb

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/db"
)

var errDuplicateNumber = errors.New("duplicate transaction number")

type state struct {
	seq             map[string]int64
	businesses      map[int64]db.Business
	branches        map[int64]db.Branch
	categories      map[int64]db.Category
	products        map[int64]db.Product
	productBranches map[int64][]int64
	promos          map[int64]db.Promo
	transactions    map[int64]db.Transaction
	numbers         map[string]int64
	items           map[int64][]db.ProductTransaction
	history         []db.PromoPriceHistory

	journaling bool
	undo       []func()
}

func newState() *state {
	return &state{
		seq:             map[string]int64{},
		businesses:      map[int64]db.Business{},
		branches:        map[int64]db.Branch{},
		categories:      map[int64]db.Category{},
		products:        map[int64]db.Product{},
		productBranches: map[int64][]int64{},
		promos:          map[int64]db.Promo{},
		transactions:    map[int64]db.Transaction{},
		numbers:         map[string]int64{},
		items:           map[int64][]db.ProductTransaction{},
	}
}

// apply runs fn on the live state. Every write fn makes is journaled and
// reverted in reverse order unless fn returns nil, so a unit costs what it
// writes rather than a copy of every table. Callers hold the write lock.
func (s *state) apply(fn func(*state) error) error {
	s.journaling = true
	committed := false
	defer func() {
		if !committed {
			for i := len(s.undo) - 1; i >= 0; i-- {
				s.undo[i]()
			}
		}
		s.undo = s.undo[:0]
		s.journaling = false
	}()
	if err := fn(s); err != nil {
		return err
	}
	committed = true
	return nil
}

// put sets m[k] and journals the previous entry while a unit is open.
func put[K comparable, V any](s *state, m map[K]V, k K, v V) {
	if s.journaling {
		old, had := m[k]
		s.undo = append(s.undo, func() {
			if had {
				m[k] = old
			} else {
				delete(m, k)
			}
		})
	}
	m[k] = v
}

func (s *state) appendHistory(h db.PromoPriceHistory) {
	if s.journaling {
		n := len(s.history)
		s.undo = append(s.undo, func() { s.history = s.history[:n] })
	}
	s.history = append(s.history, h)
}

func (s *state) next(table string) int64 {
	id := s.seq[table] + 1
	put(s, s.seq, table, id)
	return id
}

// Store keeps every table in maps guarded by one lock. InTx holds the write
// lock for the whole unit and rolls its writes back on failure, so a failed
// unit leaves nothing behind. Units are serialized, which is what makes the
// driver unfit for production traffic.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

var _ db.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for created_at columns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Queries() db.Querier { return &queries{store: s} }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) InTx(ctx context.Context, fn func(db.Querier) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.apply(func(st *state) error {
		return fn(&queries{store: s, tx: st})
	})
}

// AddBusiness inserts a business and returns it with its id assigned.
func (s *Store) AddBusiness(ownerID uuid.UUID, name string) db.Business {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := db.Business{ID: s.st.next("businesses"), OwnerID: ownerID, Name: name, CreatedAt: s.now()}
	s.st.businesses[b.ID] = b
	return b
}

func (s *Store) AddBranch(businessID int64, name string) db.Branch {
	s.mu.Lock()
	defer s.mu.Unlock()
	br := db.Branch{ID: s.st.next("branches"), BusinessID: businessID, Name: name}
	s.st.branches[br.ID] = br
	br.OwnerID = s.st.businesses[businessID].OwnerID
	return br
}

func (s *Store) AddCategory(businessID int64, name string) db.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := db.Category{ID: s.st.next("categories"), BusinessID: businessID, Name: name}
	s.st.categories[c.ID] = c
	return c
}

// AddProduct inserts a product and assigns it to branchIDs.
func (s *Store) AddProduct(p db.Product, branchIDs ...int64) db.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.st.next("products")
	p.CategoryName = ""
	s.st.products[p.ID] = p
	ids := slices.Clone(branchIDs)
	slices.Sort(ids)
	s.st.productBranches[p.ID] = slices.Compact(ids)
	return s.st.product(p.ID)
}

// SetPromoUsage overwrites the usage counter of a promo.
func (s *Store) SetPromoUsage(promoID int64, used int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.st.promos[promoID]; ok {
		p.UsedCount = used
		s.st.promos[promoID] = p
	}
}

func (s *state) product(id int64) db.Product {
	p := s.products[id]
	if p.CategoryID != nil {
		p.CategoryName = s.categories[*p.CategoryID].Name
	}
	return p
}

func (s *state) branch(id int64) db.Branch {
	br := s.branches[id]
	br.OwnerID = s.businesses[br.BusinessID].OwnerID
	return br
}

type queries struct {
	store *Store
	tx    *state
}

var _ db.Querier = (*queries)(nil)

func (q *queries) read(fn func(*state) error) error {
	if q.tx != nil {
		return fn(q.tx)
	}
	q.store.mu.RLock()
	defer q.store.mu.RUnlock()
	return fn(q.store.st)
}

// write applies fn atomically. Outside a transaction it is its own unit so a
// failing statement does not leave partial writes.
func (q *queries) write(fn func(*state) error) error {
	if q.tx != nil {
		return fn(q.tx)
	}
	q.store.mu.Lock()
	defer q.store.mu.Unlock()
	return q.store.st.apply(fn)
}

func (q *queries) GetBranch(_ context.Context, id int64) (db.Branch, error) {
	var out db.Branch
	err := q.read(func(s *state) error {
		if _, ok := s.branches[id]; !ok {
			return db.ErrNoRows
		}
		out = s.branch(id)
		return nil
	})
	return out, err
}

func (q *queries) GetProduct(_ context.Context, id int64) (db.Product, error) {
	var out db.Product
	err := q.read(func(s *state) error {
		if _, ok := s.products[id]; !ok {
			return db.ErrNoRows
		}
		out = s.product(id)
		return nil
	})
	return out, err
}

func (q *queries) ListProductBranchIDs(_ context.Context, productID int64) ([]int64, error) {
	var out []int64
	err := q.read(func(s *state) error {
		out = slices.Clone(s.productBranches[productID])
		return nil
	})
	return out, err
}

func (q *queries) ListBusinessesByOwner(_ context.Context, ownerID uuid.UUID) ([]db.Business, error) {
	var out []db.Business
	err := q.read(func(s *state) error {
		for _, b := range s.businesses {
			if b.OwnerID == ownerID {
				out = append(out, b)
			}
		}
		slices.SortFunc(out, func(a, b db.Business) int { return cmp.Compare(a.ID, b.ID) })
		return nil
	})
	return out, err
}

func (q *queries) ListBranchesByOwner(_ context.Context, ownerID uuid.UUID) ([]db.Branch, error) {
	var out []db.Branch
	err := q.read(func(s *state) error {
		for id := range s.branches {
			br := s.branch(id)
			if br.OwnerID == ownerID {
				out = append(out, br)
			}
		}
		slices.SortFunc(out, func(a, b db.Branch) int { return cmp.Compare(a.ID, b.ID) })
		return nil
	})
	return out, err
}

func (q *queries) ListProductBranchesByOwner(_ context.Context, ownerID uuid.UUID) ([]db.ProductBranch, error) {
	var out []db.ProductBranch
	err := q.read(func(s *state) error {
		for productID, branchIDs := range s.productBranches {
			for _, branchID := range branchIDs {
				if s.branch(branchID).OwnerID == ownerID {
					out = append(out, db.ProductBranch{ProductID: productID, BranchID: branchID})
				}
			}
		}
		slices.SortFunc(out, func(a, b db.ProductBranch) int {
			if c := cmp.Compare(a.ProductID, b.ProductID); c != 0 {
				return c
			}
			return cmp.Compare(a.BranchID, b.BranchID)
		})
		return nil
	})
	return out, err
}

func (q *queries) ListProductIDsInScope(_ context.Context, scopeType db.ScopeType, scopeID int64) ([]int64, error) {
	var out []int64
	err := q.read(func(s *state) error {
		switch scopeType {
		case db.ScopeTypeProduct:
			if _, ok := s.products[scopeID]; ok {
				out = []int64{scopeID}
			}
		case db.ScopeTypeBranch, db.ScopeTypeBusiness:
			for productID, branchIDs := range s.productBranches {
				for _, branchID := range branchIDs {
					if (scopeType == db.ScopeTypeBranch && branchID == scopeID) ||
						(scopeType == db.ScopeTypeBusiness && s.branches[branchID].BusinessID == scopeID) {
						out = append(out, productID)
						break
					}
				}
			}
			slices.Sort(out)
		default:
			return errors.New("memdb: unknown scope type " + string(scopeType))
		}
		return nil
	})
	return out, err
}

func (q *queries) GetPromo(_ context.Context, id int64) (db.Promo, error) {
	var out db.Promo
	err := q.read(func(s *state) error {
		p, ok := s.promos[id]
		if !ok {
			return db.ErrNoRows
		}
		out = p
		return nil
	})
	return out, err
}

func newestFirst(a, b db.Promo) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func (q *queries) ListEligiblePromosByScope(_ context.Context, arg db.ListEligiblePromosByScopeParams) ([]db.Promo, error) {
	var out []db.Promo
	err := q.read(func(s *state) error {
		for _, p := range s.promos {
			if p.ScopeType != arg.ScopeType || p.ScopeID != arg.ScopeID {
				continue
			}
			if p.StartDate.After(arg.At) || p.EndDate.Before(arg.At) {
				continue
			}
			if p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit {
				continue
			}
			out = append(out, p)
		}
		slices.SortFunc(out, newestFirst)
		return nil
	})
	return out, err
}

func (q *queries) ListPromosByScopes(_ context.Context, arg db.ListPromosByScopesParams) ([]db.Promo, error) {
	var out []db.Promo
	err := q.read(func(s *state) error {
		for _, p := range s.promos {
			var ids []int64
			switch p.ScopeType {
			case db.ScopeTypeBusiness:
				ids = arg.BusinessIDs
			case db.ScopeTypeBranch:
				ids = arg.BranchIDs
			case db.ScopeTypeProduct:
				ids = arg.ProductIDs
			}
			if slices.Contains(ids, p.ScopeID) {
				out = append(out, p)
			}
		}
		slices.SortFunc(out, newestFirst)
		if arg.Limit > 0 && len(out) > int(arg.Limit) {
			out = out[:arg.Limit]
		}
		return nil
	})
	return out, err
}

func (q *queries) CreatePromo(_ context.Context, arg db.CreatePromoParams) (db.Promo, error) {
	var out db.Promo
	err := q.write(func(s *state) error {
		now := q.store.now()
		p := db.Promo{
			ID:              s.next("promos"),
			OwnerID:         arg.OwnerID,
			Name:            arg.Name,
			ScopeType:       arg.ScopeType,
			ScopeID:         arg.ScopeID,
			StartDate:       arg.StartDate,
			EndDate:         arg.EndDate,
			PercentDiscount: arg.PercentDiscount,
			PriceDiscount:   arg.PriceDiscount,
			UsageLimit:      arg.UsageLimit,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		put(s, s.promos, p.ID, p)
		out = p
		return nil
	})
	return out, err
}

func (q *queries) UpdatePromo(_ context.Context, arg db.UpdatePromoParams) (db.Promo, error) {
	var out db.Promo
	err := q.write(func(s *state) error {
		p, ok := s.promos[arg.ID]
		if !ok {
			return db.ErrNoRows
		}
		p.Name = arg.Name
		p.ScopeType = arg.ScopeType
		p.ScopeID = arg.ScopeID
		p.StartDate = arg.StartDate
		p.EndDate = arg.EndDate
		p.PercentDiscount = arg.PercentDiscount
		p.PriceDiscount = arg.PriceDiscount
		p.UsageLimit = arg.UsageLimit
		p.UpdatedAt = q.store.now()
		put(s, s.promos, p.ID, p)
		out = p
		return nil
	})
	return out, err
}

func (q *queries) IncrementPromoUsage(_ context.Context, id int64) (int32, error) {
	var used int32
	err := q.write(func(s *state) error {
		p, ok := s.promos[id]
		if !ok || (p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit) {
			return db.ErrNoRows
		}
		p.UsedCount++
		p.UpdatedAt = q.store.now()
		put(s, s.promos, id, p)
		used = p.UsedCount
		return nil
	})
	return used, err
}

func (q *queries) RefreshPromoImpactedProducts(_ context.Context, id int64) (int32, error) {
	var impacted int32
	err := q.write(func(s *state) error {
		p, ok := s.promos[id]
		if !ok {
			return db.ErrNoRows
		}
		p.ImpactedProducts = int32(s.distinctProducts([]int64{id}))
		put(s, s.promos, id, p)
		impacted = p.ImpactedProducts
		return nil
	})
	return impacted, err
}

func (s *state) distinctProducts(promoIDs []int64) int64 {
	seen := map[int64]struct{}{}
	for _, h := range s.history {
		if slices.Contains(promoIDs, h.PromoID) {
			seen[h.ProductID] = struct{}{}
		}
	}
	return int64(len(seen))
}

func (q *queries) InsertPromoPriceHistory(_ context.Context, arg db.InsertPromoPriceHistoryParams) (db.PromoPriceHistory, error) {
	var out db.PromoPriceHistory
	err := q.write(func(s *state) error {
		if _, ok := s.promos[arg.PromoID]; !ok {
			return errors.New("memdb: price history references unknown promo")
		}
		out = db.PromoPriceHistory{
			ID:         s.next("promo_price_histories"),
			PromoID:    arg.PromoID,
			ProductID:  arg.ProductID,
			BasePrice:  arg.BasePrice,
			PromoPrice: arg.PromoPrice,
			RecordedAt: arg.RecordedAt,
		}
		s.appendHistory(out)
		return nil
	})
	return out, err
}

func (q *queries) CountDistinctProductsByPromoIDs(_ context.Context, promoIDs []int64) (int64, error) {
	var count int64
	err := q.read(func(s *state) error {
		count = s.distinctProducts(promoIDs)
		return nil
	})
	return count, err
}

func (q *queries) ListRecentPriceHistory(_ context.Context, arg db.ListRecentPriceHistoryParams) ([]db.PromoPriceHistory, error) {
	var out []db.PromoPriceHistory
	err := q.read(func(s *state) error {
		for _, h := range s.history {
			if slices.Contains(arg.PromoIDs, h.PromoID) {
				out = append(out, h)
			}
		}
		slices.SortFunc(out, func(a, b db.PromoPriceHistory) int {
			if c := b.RecordedAt.Compare(a.RecordedAt); c != 0 {
				return c
			}
			return cmp.Compare(b.ID, a.ID)
		})
		if arg.Limit >= 0 && len(out) > int(arg.Limit) {
			out = out[:arg.Limit]
		}
		return nil
	})
	return out, err
}

func (q *queries) CountTransactionsByNumberPrefix(_ context.Context, prefix string) (int64, error) {
	var count int64
	err := q.read(func(s *state) error {
		for number := range s.numbers {
			if strings.HasPrefix(number, prefix) {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (q *queries) CreateTransaction(_ context.Context, arg db.CreateTransactionParams) (db.Transaction, error) {
	var out db.Transaction
	err := q.write(func(s *state) error {
		if _, taken := s.numbers[arg.TransactionNumber]; taken {
			return &db.ConflictError{Constraint: "transactions_number_key", Err: errDuplicateNumber}
		}
		if _, ok := s.branches[arg.BranchID]; !ok {
			return errors.New("memdb: transaction references unknown branch")
		}
		out = db.Transaction{
			ID:                s.next("transactions"),
			TransactionNumber: arg.TransactionNumber,
			CustomerName:      arg.CustomerName,
			CustomerPhone:     arg.CustomerPhone,
			BranchID:          arg.BranchID,
			UserID:            arg.UserID,
			DiscountType:      arg.DiscountType,
			DiscountValue:     arg.DiscountValue,
			Subtotal:          arg.Subtotal,
			TotalAmount:       arg.TotalAmount,
			PaymentAmount:     arg.PaymentAmount,
			ChangeAmount:      arg.ChangeAmount,
			CreatedAt:         arg.CreatedAt,
		}
		put(s, s.transactions, out.ID, out)
		put(s, s.numbers, out.TransactionNumber, out.ID)
		return nil
	})
	return out, err
}

func (q *queries) CreateProductTransaction(_ context.Context, arg db.CreateProductTransactionParams) (db.ProductTransaction, error) {
	var out db.ProductTransaction
	err := q.write(func(s *state) error {
		if _, ok := s.transactions[arg.TransactionID]; !ok {
			return errors.New("memdb: line item references unknown transaction")
		}
		out = db.ProductTransaction{
			ID:              s.next("product_transactions"),
			TransactionID:   arg.TransactionID,
			ProductID:       arg.ProductID,
			ProductName:     arg.ProductName,
			CategoryName:    arg.CategoryName,
			Price:           arg.Price,
			Quantity:        arg.Quantity,
			PromoID:         arg.PromoID,
			DiscountPercent: arg.DiscountPercent,
			DiscountPrice:   arg.DiscountPrice,
			LineTotal:       arg.LineTotal,
		}
		put(s, s.items, arg.TransactionID, append(s.items[arg.TransactionID], out))
		return nil
	})
	return out, err
}

func (q *queries) GetTransaction(_ context.Context, id int64) (db.Transaction, error) {
	var out db.Transaction
	err := q.read(func(s *state) error {
		t, ok := s.transactions[id]
		if !ok {
			return db.ErrNoRows
		}
		out = t
		return nil
	})
	return out, err
}

func (q *queries) ListProductTransactions(_ context.Context, transactionID int64) ([]db.ProductTransaction, error) {
	var out []db.ProductTransaction
	err := q.read(func(s *state) error {
		out = slices.Clone(s.items[transactionID])
		return nil
	})
	return out, err
}
