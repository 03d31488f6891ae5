package postgres

import (
	"context"
	"testing"
	"testing/fstest"

	"merchant-wallet-ledger/internal/adapter/storage/postgres/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMigrations_RunsPendingOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	fsys := fstest.MapFS{
		"001_a.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE a(id INT);\n-- +migrate Down\nDROP TABLE a;")},
		"002_b.sql": &fstest.MapFile{Data: []byte("CREATE TABLE b(id INT);")},
		"notes.txt": &fstest.MapFile{Data: []byte("ignored")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT 1 FROM schema_migrations").
		WithArgs("001_a.sql").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery("SELECT 1 FROM schema_migrations").
		WithArgs("002_b.sql").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("002_b.sql", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, ApplyMigrations(context.Background(), mock, fsys))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtractUpMigration(t *testing.T) {
	assert.Equal(t, "\nCREATE TABLE a;\n", ExtractUpMigration("-- +migrate Up\nCREATE TABLE a;\n-- +migrate Down\nDROP TABLE a;"))
	assert.Equal(t, "SELECT 1", ExtractUpMigration("SELECT 1"))
}

func TestEmbeddedMigrations(t *testing.T) {
	content, err := migrations.FS.ReadFile("001_ledger.sql")
	require.NoError(t, err)

	up := ExtractUpMigration(string(content))
	for _, table := range []string{"wallets", "ledger_entries", "payment_webhook_events", "withdrawals", "export_jobs", "reconciliation_incidents", "audit_logs"} {
		assert.Contains(t, up, "CREATE TABLE IF NOT EXISTS "+table)
	}
	assert.NotContains(t, up, "DROP TABLE IF EXISTS audit_logs")

	content, err = migrations.FS.ReadFile("002_order_delivery.sql")
	require.NoError(t, err)
	assert.Contains(t, ExtractUpMigration(string(content)), "ADD COLUMN IF NOT EXISTS delivery_scheduled_at")
}
