// Package dbtest opens isolated in-memory sqlite databases carrying the
// storefront schema so repository and service tests run without Postgres.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS materials (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  unit TEXT NOT NULL,
  category TEXT,
  quantity NUMERIC NOT NULL DEFAULT 0 CHECK (quantity >= 0),
  reorder_threshold NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  category TEXT,
  unit_price NUMERIC NOT NULL,
  material_id TEXT,
  fabric_quantity NUMERIC NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS uploaded_assets (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  name TEXT NOT NULL,
  storage_key TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS uploaded_asset_materials (
  id TEXT PRIMARY KEY,
  uploaded_asset_id TEXT NOT NULL,
  material_id TEXT NOT NULL,
  rate NUMERIC NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  customer_email TEXT,
  color TEXT NOT NULL,
  phone_number TEXT NOT NULL,
  address TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_unit_price NUMERIC NOT NULL,
  design_type TEXT NOT NULL,
  order_option TEXT NOT NULL,
  total_quantity INTEGER NOT NULL,
  total_price NUMERIC NOT NULL,
  solo_quantity INTEGER NOT NULL DEFAULT 0,
  own_design_key TEXT,
  business_design_url TEXT,
  ai_design_ref TEXT,
  fabric_type_id TEXT,
  uploaded_asset_id TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  action_date DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_sizes (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  size TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_payments (
  id TEXT PRIMARY KEY,
  payment_number TEXT NOT NULL UNIQUE,
  order_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  amount_applied NUMERIC NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'in_review',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS payment_attachments (
  id TEXT PRIMARY KEY,
  order_payment_id TEXT NOT NULL,
  storage_key TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS material_usage_logs (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  material_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  subject_kind TEXT NOT NULL,
  subject_id TEXT NOT NULL,
  material_name TEXT NOT NULL,
  unit TEXT NOT NULL,
  total_quantity_used NUMERIC NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  order_id TEXT,
  status TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  event_id TEXT UNIQUE,
  read_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS admin_notifications (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  order_id TEXT,
  message TEXT NOT NULL,
  event_id TEXT UNIQUE,
  read_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS payment_confirmations (
  id TEXT PRIMARY KEY,
  provider_payment_id TEXT NOT NULL UNIQUE,
  provider_event_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  metadata BLOB,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json BLOB NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a fresh database with every table created. Each call gets its
// own named shared-cache database so parallel tests never observe each other.
func Open(t testing.TB, name string) *gorm.DB {
	t.Helper()
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Serialize restricts the pool to one connection so concurrent transactions
// queue behind each other the way row locks make them queue on Postgres.
func Serialize(t testing.TB, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
}
