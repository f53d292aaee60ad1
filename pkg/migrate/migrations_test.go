package migrate_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/towndrop-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no %s migration file found", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		assert.Contains(t, content, sub)
	}
}

func TestCatalogMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_catalog"), []string{
		"CREATE TABLE IF NOT EXISTS town_products",
		"CONSTRAINT town_products_town_product_key UNIQUE (town_id, product_id)",
		"CHECK (pricing_model IN ('UNIT', 'WEIGHT'))",
		"CHECK (stock_qty IS NULL OR stock_qty >= 0)",
		"CHECK (stock_weight_grams IS NULL OR stock_weight_grams >= 0)",
		"DROP TABLE IF EXISTS town_products",
	})
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_orders"), []string{
		"CHECK (status IN ('DRAFT', 'CONFIRMED', 'PAID', 'FULFILLED', 'SETTLED'))",
		"goods_payment_method text NOT NULL DEFAULT 'COD'",
		"CHECK ((quantity IS NULL) <> (weight_grams IS NULL))",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"DROP TABLE IF EXISTS orders",
	})
}

func TestPaymentsMigrationContainsConstraints(t *testing.T) {
	assertContains(t, readMigration(t, "create_payments"), []string{
		"CONSTRAINT payments_order_purpose_key UNIQUE (order_id, purpose)",
		"CONSTRAINT payments_client_reference_key UNIQUE (client_reference)",
		"CHECK (status IN ('INITIATED', 'SUCCESS', 'FAILED'))",
		"provider_payload jsonb",
		"DROP TABLE IF EXISTS payments",
	})
}

func TestShippedMigrationsValidate(t *testing.T) {
	require.NoError(t, migrate.Validate(migrate.Embedded()))
	require.NoError(t, migrate.Validate(migrate.Dir("migrations")))
}

func TestCreateSQLMigrationSlugsName(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := migrate.CreateSQLMigration(dir, "Add Payment Index!", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260304050607_add_payment_index.sql"), path)
	require.NoError(t, migrate.Validate(migrate.Dir(dir)))

	_, err = migrate.CreateSQLMigration(dir, "add payment index", at)
	assert.Error(t, err, "same version and slug must not overwrite")

	_, err = migrate.CreateSQLMigration(dir, "!!!", at)
	assert.Error(t, err)
}

func TestValidateRejectsBrokenFiles(t *testing.T) {
	cases := map[string]string{
		"20260101000000_no_down.sql":  "-- +goose Up\nSELECT 1;\n",
		"20260101000000_reversed.sql": "-- +goose Down\nSELECT 1;\n-- +goose Up\nSELECT 1;\n",
		"bad_name.sql":                "-- +goose Up\n-- +goose Down\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
			assert.Error(t, migrate.Validate(migrate.Dir(dir)))
		})
	}
}

func TestValidateRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := []byte("-- +goose Up\n-- +goose Down\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_a.sql"), body, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_b.sql"), body, 0o644))
	assert.ErrorContains(t, migrate.Validate(migrate.Dir(dir)), "share version")
}
