//go:build integration

package migrate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const latestVersion = uint(5)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)
	`, name).Scan(&exists)
	require.NoError(t, err)
	return exists
}

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx, "postgres:15",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(ctx) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	t.Run("Run applies migrations", func(t *testing.T) {
		require.NoError(t, Run(db))

		for _, table := range []string{
			"sessions", "steps", "agent_tokens", "guest_links", "registration_codes", "web_sessions",
			"audit_events",
		} {
			require.True(t, tableExists(t, db, table), "%s table should exist", table)
		}
	})

	t.Run("Version returns current version", func(t *testing.T) {
		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, latestVersion, version)
	})

	t.Run("Run is idempotent", func(t *testing.T) {
		require.NoError(t, Run(db))

		version, dirty, err := Version(db)
		require.NoError(t, err)
		require.False(t, dirty)
		require.Equal(t, latestVersion, version)
	})

	t.Run("duplicate seq is rejected", func(t *testing.T) {
		_, err := db.Exec(`INSERT INTO sessions (id, agent, project, command) VALUES ('s1', 'a', 'p', 'c')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO steps (id, session_id, seq, kind) VALUES ('st1', 's1', 1, 'output')`)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO steps (id, session_id, seq, kind) VALUES ('st2', 's1', 1, 'output')`)
		require.Error(t, err)
	})

	t.Run("Down rolls back migrations", func(t *testing.T) {
		require.NoError(t, Down(db))
		require.False(t, tableExists(t, db, "sessions"), "sessions table should not exist after down")
		require.False(t, tableExists(t, db, "web_sessions"), "web_sessions table should not exist after down")
	})

	t.Run("Steps applies n migrations", func(t *testing.T) {
		require.NoError(t, Steps(db, 1))

		version, _, err := Version(db)
		require.NoError(t, err)
		require.Equal(t, uint(1), version)
		require.True(t, tableExists(t, db, "steps"))
		require.False(t, tableExists(t, db, "agent_tokens"))

		require.NoError(t, Steps(db, int(latestVersion)-1))

		version, _, err = Version(db)
		require.NoError(t, err)
		require.Equal(t, latestVersion, version)
	})
}
