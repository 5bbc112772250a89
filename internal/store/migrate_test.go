// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package store

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries, "no migrations embedded")

	ups := make(map[string]bool)
	downs := make(map[string]bool)
	for _, entry := range entries {
		name := strings.TrimPrefix(entry, "migrations/")
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("migration %q is neither .up.sql nor .down.sql", name)
		}
	}

	assert.Equal(t, ups, downs, "every up migration needs a matching down")
}

func TestEmbeddedMigrationsCoverSchema(t *testing.T) {
	for _, table := range []string{"accounts", "refresh_sessions"} {
		found := false
		entries, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
		require.NoError(t, err)
		for _, entry := range entries {
			content, err := fs.ReadFile(migrationsFS, entry)
			require.NoError(t, err)
			if strings.Contains(string(content), "CREATE TABLE "+table) {
				found = true
				break
			}
		}
		assert.True(t, found, "no migration creates table %q", table)
	}
}
