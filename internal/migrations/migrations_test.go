package migrations_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/durak/internal/migrations"
	"github.com/koopa0/durak/internal/testutils"
)

func TestMigrator_UpDown(t *testing.T) {
	pg := testutils.SetupPostgres(t)

	m, err := migrations.New(pg.DSN, testutils.Logger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	// SetupPostgres 已經套用過
	st, err := m.Status()
	require.NoError(t, err)
	assert.Equal(t, migrations.Status{Version: 1}, st)
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())
	st, err = m.Status()
	require.NoError(t, err)
	assert.True(t, st.Empty)

	var exists bool
	err = pg.Pool.QueryRow(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'player_stats')`).Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, m.Steps(1))
	st, err = m.Status()
	require.NoError(t, err)
	assert.Equal(t, uint(1), st.Version)
	assert.False(t, st.Dirty)
}
