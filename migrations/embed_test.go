package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_ContainsOrderedMigrations(t *testing.T) {
	names, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"001_create_auth_schema.up.sql",
		"002_seed_roles_permissions.up.sql",
	}, names)
}

func TestFS_SeedGrantsProfileReadToUsers(t *testing.T) {
	seed, err := fs.ReadFile(FS, "002_seed_roles_permissions.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(seed), "'profile:read'")
	assert.Contains(t, string(seed), "'tokens:cleanup'")
}
