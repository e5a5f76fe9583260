package repository

import (
	"database/sql"
	"testing"

	"github.com/hitoshi/vodman/internal/database"
)

// newTestDB はマイグレーション適用済みのインメモリDBを返す。
// インメモリDBは接続ごとに独立するため、プールを1接続に固定する。
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}
