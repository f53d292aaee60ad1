// Package dbtest opens throwaway SQLite databases carrying the service schema.
// Column types are chosen so decimals round-trip as exact text.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE towns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE town_products (
		id TEXT PRIMARY KEY,
		town_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		pricing_model TEXT NOT NULL,
		price_per_unit TEXT,
		price_per_kg TEXT,
		stock_qty INTEGER CHECK (stock_qty IS NULL OR stock_qty >= 0),
		stock_weight_grams INTEGER CHECK (stock_weight_grams IS NULL OR stock_weight_grams >= 0),
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (town_id, product_id)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		town_id TEXT NOT NULL,
		status TEXT NOT NULL,
		customer_email TEXT,
		customer_phone TEXT,
		goods_payment_method TEXT NOT NULL,
		delivery_code_hash TEXT,
		delivery_code_expires_at DATETIME,
		delivery_fee TEXT NOT NULL DEFAULT '0',
		service_fee TEXT NOT NULL DEFAULT '0',
		items_subtotal TEXT NOT NULL DEFAULT '0',
		subtotal TEXT NOT NULL DEFAULT '0',
		pay_now_total TEXT NOT NULL DEFAULT '0',
		pay_on_delivery_total TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		town_product_id TEXT NOT NULL,
		quantity INTEGER,
		weight_grams INTEGER,
		unit_price TEXT NOT NULL,
		line_total TEXT NOT NULL,
		created_at DATETIME,
		CHECK ((quantity IS NULL) <> (weight_grams IS NULL))
	)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		purpose TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		provider TEXT NOT NULL,
		client_reference TEXT UNIQUE,
		provider_transaction_id TEXT,
		provider_payload TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (order_id, purpose)
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns a private in-memory database with the schema applied. The pool
// is pinned to one connection so concurrent transactions queue instead of
// failing on SQLite table locks.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:towndrop_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
