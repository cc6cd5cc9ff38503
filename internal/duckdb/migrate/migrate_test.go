package migrate

import (
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const latestVersion = 3

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEmbeddedIsOrdered(t *testing.T) {
	migs, err := Embedded()
	require.NoError(t, err)
	require.Len(t, migs, latestVersion)
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.Len(t, m.Checksum, 64)
	}
}

func TestRunCreatesSchema(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, NewRunner(db).Run())

	for _, table := range []string{"security_logs", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		assert.NoError(t, err, "table %s", table)
	}
	var col string
	err := db.QueryRow("SELECT column_name FROM information_schema.columns WHERE table_name = 'security_logs' AND column_name = 'country'").Scan(&col)
	assert.NoError(t, err, "country column")
}

func TestStatusBeforeAndAfterRun(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)

	st, err := r.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, st.Current)
	assert.Equal(t, latestVersion, st.Latest)
	assert.Len(t, st.Pending, latestVersion)

	require.NoError(t, r.Run())
	require.NoError(t, r.Run(), "second run is a no-op")

	st, err = r.Status()
	require.NoError(t, err)
	assert.Equal(t, latestVersion, st.Current)
	assert.Empty(t, st.Pending)
	assert.Empty(t, st.Drifted)
}

func TestStatusReportsDrift(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)
	require.NoError(t, r.Run())

	_, err := db.Exec("UPDATE schema_migrations SET checksum = 'stale' WHERE version = 1")
	require.NoError(t, err)

	st, err := r.Status()
	require.NoError(t, err)
	require.Len(t, st.Drifted, 1)
	assert.Equal(t, "001_create_security_logs.sql", st.Drifted[0])
	assert.NoError(t, r.Run(), "drift is reported, not fatal")
}
