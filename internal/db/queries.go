package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Queries implements Querier on top of pgx.
type Queries struct {
	db DBTX
}

var _ Querier = (*Queries)(nil)

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const getBranch = `
SELECT br.id, br.business_id, br.name, b.owner_id
FROM branches br
JOIN businesses b ON b.id = br.business_id
WHERE br.id = $1`

func (q *Queries) GetBranch(ctx context.Context, id int64) (Branch, error) {
	var (
		i     Branch
		owner pgtype.UUID
	)
	err := q.db.QueryRow(ctx, getBranch, id).Scan(&i.ID, &i.BusinessID, &i.Name, &owner)
	i.OwnerID = uuid.UUID(owner.Bytes)
	return i, classify(err)
}

const getProduct = `
SELECT p.id, p.business_id, p.category_id, COALESCE(c.name, ''), p.name, p.price
FROM products p
LEFT JOIN categories c ON c.id = p.category_id
WHERE p.id = $1`

func (q *Queries) GetProduct(ctx context.Context, id int64) (Product, error) {
	var (
		i        Product
		category pgtype.Int8
		price    pgtype.Numeric
	)
	err := q.db.QueryRow(ctx, getProduct, id).Scan(&i.ID, &i.BusinessID, &category, &i.CategoryName, &i.Name, &price)
	i.CategoryID = fromNullInt8(category)
	i.Price = fromNumeric(price)
	return i, classify(err)
}

const listProductBranchIDs = `
SELECT branch_id FROM product_branches WHERE product_id = $1 ORDER BY branch_id`

func (q *Queries) ListProductBranchIDs(ctx context.Context, productID int64) ([]int64, error) {
	return q.listIDs(ctx, listProductBranchIDs, productID)
}

const listBusinessesByOwner = `
SELECT id, owner_id, name, created_at FROM businesses WHERE owner_id = $1 ORDER BY id`

func (q *Queries) ListBusinessesByOwner(ctx context.Context, ownerID uuid.UUID) ([]Business, error) {
	rows, err := q.db.Query(ctx, listBusinessesByOwner, pgUUID(ownerID))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var items []Business
	for rows.Next() {
		var (
			i     Business
			owner pgtype.UUID
		)
		if err := rows.Scan(&i.ID, &owner, &i.Name, &i.CreatedAt); err != nil {
			return nil, err
		}
		i.OwnerID = uuid.UUID(owner.Bytes)
		items = append(items, i)
	}
	return items, classify(rows.Err())
}

const listBranchesByOwner = `
SELECT br.id, br.business_id, br.name, b.owner_id
FROM branches br
JOIN businesses b ON b.id = br.business_id
WHERE b.owner_id = $1
ORDER BY br.id`

func (q *Queries) ListBranchesByOwner(ctx context.Context, ownerID uuid.UUID) ([]Branch, error) {
	rows, err := q.db.Query(ctx, listBranchesByOwner, pgUUID(ownerID))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var items []Branch
	for rows.Next() {
		var (
			i     Branch
			owner pgtype.UUID
		)
		if err := rows.Scan(&i.ID, &i.BusinessID, &i.Name, &owner); err != nil {
			return nil, err
		}
		i.OwnerID = uuid.UUID(owner.Bytes)
		items = append(items, i)
	}
	return items, classify(rows.Err())
}

const listProductBranchesByOwner = `
SELECT pb.product_id, pb.branch_id
FROM product_branches pb
JOIN branches br ON br.id = pb.branch_id
JOIN businesses b ON b.id = br.business_id
WHERE b.owner_id = $1
ORDER BY pb.product_id, pb.branch_id`

func (q *Queries) ListProductBranchesByOwner(ctx context.Context, ownerID uuid.UUID) ([]ProductBranch, error) {
	rows, err := q.db.Query(ctx, listProductBranchesByOwner, pgUUID(ownerID))
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var items []ProductBranch
	for rows.Next() {
		var i ProductBranch
		if err := rows.Scan(&i.ProductID, &i.BranchID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, classify(rows.Err())
}

const (
	listProductIDsForProduct  = `SELECT id FROM products WHERE id = $1`
	listProductIDsForBranch   = `SELECT product_id FROM product_branches WHERE branch_id = $1 ORDER BY product_id`
	listProductIDsForBusiness = `
SELECT DISTINCT pb.product_id
FROM product_branches pb
JOIN branches br ON br.id = pb.branch_id
WHERE br.business_id = $1
ORDER BY pb.product_id`
)

func (q *Queries) ListProductIDsInScope(ctx context.Context, scopeType ScopeType, scopeID int64) ([]int64, error) {
	switch scopeType {
	case ScopeTypeProduct:
		return q.listIDs(ctx, listProductIDsForProduct, scopeID)
	case ScopeTypeBranch:
		return q.listIDs(ctx, listProductIDsForBranch, scopeID)
	case ScopeTypeBusiness:
		return q.listIDs(ctx, listProductIDsForBusiness, scopeID)
	default:
		return nil, fmt.Errorf("db: unknown scope type %q", scopeType)
	}
}

const promoColumns = `id, owner_id, name, scope_type, scope_id, start_date, end_date, percent_discount,
price_discount, usage_limit, used_count, impacted_products, created_at, updated_at`

func scanPromo(row pgx.Row) (Promo, error) {
	var (
		i       Promo
		owner   pgtype.UUID
		scope   string
		percent pgtype.Numeric
		price   pgtype.Numeric
		limit   pgtype.Int4
	)
	if err := row.Scan(&i.ID, &owner, &i.Name, &scope, &i.ScopeID, &i.StartDate, &i.EndDate, &percent,
		&price, &limit, &i.UsedCount, &i.ImpactedProducts, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return Promo{}, err
	}
	i.OwnerID = fromNullPgUUID(owner)
	i.ScopeType = ScopeType(scope)
	i.PercentDiscount = fromNullNumeric(percent)
	i.PriceDiscount = fromNullNumeric(price)
	i.UsageLimit = fromNullInt4(limit)
	return i, nil
}

func (q *Queries) listPromos(ctx context.Context, sql string, args ...interface{}) ([]Promo, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var items []Promo
	for rows.Next() {
		i, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, classify(rows.Err())
}

const getPromo = `SELECT ` + promoColumns + ` FROM promos WHERE id = $1`

func (q *Queries) GetPromo(ctx context.Context, id int64) (Promo, error) {
	i, err := scanPromo(q.db.QueryRow(ctx, getPromo, id))
	return i, classify(err)
}

const listEligiblePromosByScope = `SELECT ` + promoColumns + `
FROM promos
WHERE scope_type = $1 AND scope_id = $2
  AND start_date <= $3 AND end_date >= $3
  AND (usage_limit IS NULL OR used_count < usage_limit)
ORDER BY created_at DESC, id DESC`

func (q *Queries) ListEligiblePromosByScope(ctx context.Context, arg ListEligiblePromosByScopeParams) ([]Promo, error) {
	return q.listPromos(ctx, listEligiblePromosByScope, string(arg.ScopeType), arg.ScopeID, arg.At)
}

const listPromosByScopes = `SELECT ` + promoColumns + `
FROM promos
WHERE (scope_type = 'business' AND scope_id = ANY($1::bigint[]))
   OR (scope_type = 'branch' AND scope_id = ANY($2::bigint[]))
   OR (scope_type = 'product' AND scope_id = ANY($3::bigint[]))
ORDER BY created_at DESC, id DESC
LIMIT NULLIF($4::int, 0)`

func (q *Queries) ListPromosByScopes(ctx context.Context, arg ListPromosByScopesParams) ([]Promo, error) {
	return q.listPromos(ctx, listPromosByScopes, arg.BusinessIDs, arg.BranchIDs, arg.ProductIDs, arg.Limit)
}

const createPromo = `
INSERT INTO promos (owner_id, name, scope_type, scope_id, start_date, end_date, percent_discount, price_discount, usage_limit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + promoColumns

func (q *Queries) CreatePromo(ctx context.Context, arg CreatePromoParams) (Promo, error) {
	row := q.db.QueryRow(ctx, createPromo,
		nullPgUUID(arg.OwnerID),
		arg.Name,
		string(arg.ScopeType),
		arg.ScopeID,
		arg.StartDate,
		arg.EndDate,
		nullNumeric(arg.PercentDiscount),
		nullNumeric(arg.PriceDiscount),
		nullInt4(arg.UsageLimit),
	)
	i, err := scanPromo(row)
	return i, classify(err)
}

const updatePromo = `
UPDATE promos
SET name = $2, scope_type = $3, scope_id = $4, start_date = $5, end_date = $6,
    percent_discount = $7, price_discount = $8, usage_limit = $9, updated_at = now()
WHERE id = $1
RETURNING ` + promoColumns

func (q *Queries) UpdatePromo(ctx context.Context, arg UpdatePromoParams) (Promo, error) {
	row := q.db.QueryRow(ctx, updatePromo,
		arg.ID,
		arg.Name,
		string(arg.ScopeType),
		arg.ScopeID,
		arg.StartDate,
		arg.EndDate,
		nullNumeric(arg.PercentDiscount),
		nullNumeric(arg.PriceDiscount),
		nullInt4(arg.UsageLimit),
	)
	i, err := scanPromo(row)
	return i, classify(err)
}

// The guard makes the increment and the limit check one statement. Under
// READ COMMITTED a concurrent writer blocks on the row lock and re-evaluates
// the guard against the committed value.
const incrementPromoUsage = `
UPDATE promos
SET used_count = used_count + 1, updated_at = now()
WHERE id = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
RETURNING used_count`

func (q *Queries) IncrementPromoUsage(ctx context.Context, id int64) (int32, error) {
	var used int32
	err := q.db.QueryRow(ctx, incrementPromoUsage, id).Scan(&used)
	return used, classify(err)
}

const refreshPromoImpactedProducts = `
UPDATE promos
SET impacted_products = (
    SELECT count(DISTINCT product_id) FROM promo_price_histories WHERE promo_id = $1
)
WHERE id = $1
RETURNING impacted_products`

func (q *Queries) RefreshPromoImpactedProducts(ctx context.Context, id int64) (int32, error) {
	var impacted int32
	err := q.db.QueryRow(ctx, refreshPromoImpactedProducts, id).Scan(&impacted)
	return impacted, classify(err)
}

const insertPromoPriceHistory = `
INSERT INTO promo_price_histories (promo_id, product_id, base_price, promo_price, recorded_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, promo_id, product_id, base_price, promo_price, recorded_at`

func scanPriceHistory(row pgx.Row) (PromoPriceHistory, error) {
	var (
		i     PromoPriceHistory
		base  pgtype.Numeric
		promo pgtype.Numeric
	)
	if err := row.Scan(&i.ID, &i.PromoID, &i.ProductID, &base, &promo, &i.RecordedAt); err != nil {
		return PromoPriceHistory{}, err
	}
	i.BasePrice = fromNumeric(base)
	i.PromoPrice = fromNumeric(promo)
	return i, nil
}

func (q *Queries) InsertPromoPriceHistory(ctx context.Context, arg InsertPromoPriceHistoryParams) (PromoPriceHistory, error) {
	row := q.db.QueryRow(ctx, insertPromoPriceHistory, arg.PromoID, arg.ProductID, numeric(arg.BasePrice), numeric(arg.PromoPrice), arg.RecordedAt)
	i, err := scanPriceHistory(row)
	return i, classify(err)
}

const countDistinctProductsByPromoIDs = `
SELECT count(DISTINCT product_id) FROM promo_price_histories WHERE promo_id = ANY($1::bigint[])`

func (q *Queries) CountDistinctProductsByPromoIDs(ctx context.Context, promoIDs []int64) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countDistinctProductsByPromoIDs, promoIDs).Scan(&count)
	return count, classify(err)
}

const listRecentPriceHistory = `
SELECT id, promo_id, product_id, base_price, promo_price, recorded_at
FROM promo_price_histories
WHERE promo_id = ANY($1::bigint[])
ORDER BY recorded_at DESC, id DESC
LIMIT $2`

func (q *Queries) ListRecentPriceHistory(ctx context.Context, arg ListRecentPriceHistoryParams) ([]PromoPriceHistory, error) {
	rows, err := q.db.Query(ctx, listRecentPriceHistory, arg.PromoIDs, arg.Limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var items []PromoPriceHistory
	for rows.Next() {
		i, err := scanPriceHistory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, classify(rows.Err())
}

const countTransactionsByNumberPrefix = `
SELECT count(*) FROM transactions WHERE left(transaction_number, length($1)) = $1`

func (q *Queries) CountTransactionsByNumberPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countTransactionsByNumberPrefix, prefix).Scan(&count)
	return count, classify(err)
}

const transactionColumns = `id, transaction_number, customer_name, customer_phone, branch_id, user_id, discount_type,
discount_value, subtotal, total_amount, payment_amount, change_amount, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		i             Transaction
		customerName  pgtype.Text
		customerPhone pgtype.Text
		user          pgtype.UUID
		discountType  pgtype.Text
		discountValue pgtype.Numeric
		subtotal      pgtype.Numeric
		total         pgtype.Numeric
		payment       pgtype.Numeric
		change        pgtype.Numeric
	)
	if err := row.Scan(&i.ID, &i.TransactionNumber, &customerName, &customerPhone, &i.BranchID, &user, &discountType,
		&discountValue, &subtotal, &total, &payment, &change, &i.CreatedAt); err != nil {
		return Transaction{}, err
	}
	i.CustomerName = fromNullText(customerName)
	i.CustomerPhone = fromNullText(customerPhone)
	i.UserID = uuid.UUID(user.Bytes)
	if discountType.Valid {
		dt := DiscountType(discountType.String)
		i.DiscountType = &dt
	}
	i.DiscountValue = fromNullNumeric(discountValue)
	i.Subtotal = fromNumeric(subtotal)
	i.TotalAmount = fromNumeric(total)
	i.PaymentAmount = fromNullNumeric(payment)
	i.ChangeAmount = fromNullNumeric(change)
	return i, nil
}

const createTransaction = `
INSERT INTO transactions (transaction_number, customer_name, customer_phone, branch_id, user_id, discount_type,
    discount_value, subtotal, total_amount, payment_amount, change_amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + transactionColumns

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	var discountType pgtype.Text
	if arg.DiscountType != nil {
		discountType = pgtype.Text{String: string(*arg.DiscountType), Valid: true}
	}
	row := q.db.QueryRow(ctx, createTransaction,
		arg.TransactionNumber,
		nullText(arg.CustomerName),
		nullText(arg.CustomerPhone),
		arg.BranchID,
		pgUUID(arg.UserID),
		discountType,
		nullNumeric(arg.DiscountValue),
		numeric(arg.Subtotal),
		numeric(arg.TotalAmount),
		nullNumeric(arg.PaymentAmount),
		nullNumeric(arg.ChangeAmount),
		arg.CreatedAt,
	)
	i, err := scanTransaction(row)
	return i, classify(err)
}

const productTransactionColumns = `id, transaction_id, product_id, product_name, category_name, price, quantity,
promo_id, discount_percent, discount_price, line_total`

func scanProductTransaction(row pgx.Row) (ProductTransaction, error) {
	var (
		i       ProductTransaction
		price   pgtype.Numeric
		promoID pgtype.Int8
		percent pgtype.Numeric
		amount  pgtype.Numeric
		total   pgtype.Numeric
	)
	if err := row.Scan(&i.ID, &i.TransactionID, &i.ProductID, &i.ProductName, &i.CategoryName, &price, &i.Quantity,
		&promoID, &percent, &amount, &total); err != nil {
		return ProductTransaction{}, err
	}
	i.Price = fromNumeric(price)
	i.PromoID = fromNullInt8(promoID)
	i.DiscountPercent = fromNullNumeric(percent)
	i.DiscountPrice = fromNullNumeric(amount)
	i.LineTotal = fromNumeric(total)
	return i, nil
}

const createProductTransaction = `
INSERT INTO product_transactions (transaction_id, product_id, product_name, category_name, price, quantity,
    promo_id, discount_percent, discount_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + productTransactionColumns

func (q *Queries) CreateProductTransaction(ctx context.Context, arg CreateProductTransactionParams) (ProductTransaction, error) {
	row := q.db.QueryRow(ctx, createProductTransaction,
		arg.TransactionID,
		arg.ProductID,
		arg.ProductName,
		arg.CategoryName,
		numeric(arg.Price),
		arg.Quantity,
		nullInt8(arg.PromoID),
		nullNumeric(arg.DiscountPercent),
		nullNumeric(arg.DiscountPrice),
		numeric(arg.LineTotal),
	)
	i, err := scanProductTransaction(row)
	return i, classify(err)
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	i, err := scanTransaction(q.db.QueryRow(ctx, getTransaction, id))
	return i, classify(err)
}

const listProductTransactions = `SELECT ` + productTransactionColumns + `
FROM product_transactions WHERE transaction_id = $1 ORDER BY id`

func (q *Queries) ListProductTransactions(ctx context.Context, transactionID int64) ([]ProductTransaction, error) {
	rows, err := q.db.Query(ctx, listProductTransactions, transactionID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var items []ProductTransaction
	for rows.Next() {
		i, err := scanProductTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, classify(rows.Err())
}

func (q *Queries) listIDs(ctx context.Context, sql string, args ...interface{}) ([]int64, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, classify(rows.Err())
}
