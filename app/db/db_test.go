package db

import (
	"testing"

	"conductor/app/db/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndMigrateSqlite(t *testing.T) {
	conn, err := Open(&Config{Connection: "sqlite://file:" + uuid.NewString() + "?mode=memory&cache=shared", PoolSize: 1})
	require.NoError(t, err)
	require.NoError(t, Migrate(conn))

	for _, m := range models.Models {
		assert.True(t, conn.Migrator().HasTable(m))
	}
}

func TestOpenUnsupportedScheme(t *testing.T) {
	_, err := Open(&Config{Connection: "postgres://localhost/db"})
	assert.Error(t, err)
}
