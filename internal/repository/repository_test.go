package repository

import (
	"context"
	"testing"

	"SignalFlow/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory sqlite database with all tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	client, err := database.NewClient(database.WithDriver("sqlite"), database.WithDSN(dsn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Migrate(Tables()...))
	return client.DB()
}

func inTx(t *testing.T, tx *GormTransactor, fn func(ctx context.Context) error) error {
	t.Helper()
	return tx.WithinTx(context.Background(), fn)
}
