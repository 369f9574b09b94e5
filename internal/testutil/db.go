package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"registry-backend/internal/database"
)

// NewDB returns a migrated, private in-memory SQLite database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := database.Open(database.DriverSQLite, ":memory:", zap.NewNop())
	require.NoError(t, err, "opening sqlite")
	require.NoError(t, database.Migrate(db, zap.NewNop()), "migrating sqlite")

	t.Cleanup(func() {
		_ = database.Close(db)
	})
	return db
}
