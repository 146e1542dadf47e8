package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

type product struct {
	Name     string
	Category string
	Price    string
}

var demoProducts = []product{
	{"Beras Premium 5kg", "Sembako", "100000"},
	{"Minyak Goreng 2L", "Sembako", "50000"},
	{"Gula Pasir 1kg", "Sembako", "18000"},
	{"Kopi Bubuk 200g", "Minuman", "32000"},
	{"Teh Celup isi 25", "Minuman", "9500"},
	{"Sabun Mandi", "Perawatan", "4500"},
}

func main() {
	ownerFlag := flag.String("owner", "", "owner uuid; a new one is generated when empty")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	owner := uuid.New()
	if *ownerFlag != "" {
		parsed, err := uuid.Parse(*ownerFlag)
		if err != nil {
			log.Fatalf("invalid -owner: %v", err)
		}
		owner = parsed
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		log.Fatalf("Failed to begin: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	businessID := insertID(tx, `INSERT INTO businesses (owner_id, name) VALUES ($1, $2) RETURNING id`, owner, "Toko Makmur")
	mainBranch := insertID(tx, `INSERT INTO branches (business_id, name) VALUES ($1, $2) RETURNING id`, businessID, "Cabang Utama")
	secondBranch := insertID(tx, `INSERT INTO branches (business_id, name) VALUES ($1, $2) RETURNING id`, businessID, "Cabang Pasar")

	fmt.Println("Seeding Catalog...")
	categories := map[string]int64{}
	productIDs := make([]int64, 0, len(demoProducts))
	for _, p := range demoProducts {
		catID, ok := categories[p.Category]
		if !ok {
			catID = insertID(tx, `INSERT INTO categories (business_id, name) VALUES ($1, $2) RETURNING id`, businessID, p.Category)
			categories[p.Category] = catID
		}
		id := insertID(tx, `INSERT INTO products (business_id, category_id, name, price) VALUES ($1, $2, $3, $4) RETURNING id`,
			businessID, catID, p.Name, p.Price)
		productIDs = append(productIDs, id)
	}

	// Every product sells at the main branch; only the first half at the market branch.
	if _, err := tx.Exec(`INSERT INTO product_branches (product_id, branch_id) SELECT unnest($1::bigint[]), $2`,
		pq.Array(productIDs), mainBranch); err != nil {
		log.Fatalf("Failed to assign products: %v", err)
	}
	if _, err := tx.Exec(`INSERT INTO product_branches (product_id, branch_id) SELECT unnest($1::bigint[]), $2`,
		pq.Array(productIDs[:len(productIDs)/2]), secondBranch); err != nil {
		log.Fatalf("Failed to assign products: %v", err)
	}

	fmt.Println("Seeding Promos...")
	start := time.Now().UTC().Truncate(24 * time.Hour)
	end := start.AddDate(0, 1, 0)
	promos := []struct {
		Name      string
		ScopeType string
		ScopeID   int64
		Percent   sql.NullString
		Price     sql.NullString
		Limit     sql.NullInt32
	}{
		{"Diskon Beras", "product", productIDs[0], sql.NullString{String: "10", Valid: true}, sql.NullString{}, sql.NullInt32{Int32: 100, Valid: true}},
		{"Promo Cabang Pasar", "branch", secondBranch, sql.NullString{}, sql.NullString{String: "2000", Valid: true}, sql.NullInt32{}},
		{"Gajian Sale", "business", businessID, sql.NullString{String: "5", Valid: true}, sql.NullString{String: "1000", Valid: true}, sql.NullInt32{Int32: 500, Valid: true}},
	}
	for _, p := range promos {
		if _, err := tx.Exec(`
			INSERT INTO promos (owner_id, name, scope_type, scope_id, start_date, end_date, percent_discount, price_discount, usage_limit)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			owner, p.Name, p.ScopeType, p.ScopeID, start, end, p.Percent, p.Price, p.Limit); err != nil {
			log.Fatalf("Failed to seed promo %s: %v", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}
	log.Printf("Seeding completed: owner=%s business=%d branches=[%d %d] products=%d", owner, businessID, mainBranch, secondBranch, len(productIDs))
}

func insertID(tx *sql.Tx, query string, args ...any) int64 {
	var id int64
	if err := tx.QueryRow(query, args...).Scan(&id); err != nil {
		log.Fatalf("Failed to seed (%s): %v", query, err)
	}
	return id
}
