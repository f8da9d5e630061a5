package postgres

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(migrationFiles, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestInitMigrationTables(t *testing.T) {
	up, err := fs.ReadFile(migrationFiles, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	down, err := fs.ReadFile(migrationFiles, "migrations/0001_init.down.sql")
	require.NoError(t, err)

	for _, table := range []string{"companies", "profiles", "products", "customers", "invoices", "invoice_items"} {
		assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS "+table+" (")
		assert.Contains(t, string(down), "DROP TABLE IF EXISTS "+table+";")
	}
	// Items reference invoices without cascading; deletes go items first.
	assert.NotContains(t, strings.ToUpper(string(up)), "ON DELETE CASCADE")
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	_, err := Migrate(nil, Direction("sideways"))
	assert.ErrorContains(t, err, "sideways")
}
