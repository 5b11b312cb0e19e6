package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowmap/internal/dbal/sqldb"
)

const seed = `
CREATE TABLE users (
	user_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	last_name TEXT NOT NULL,
	email     TEXT,
	active    INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE notes (
	note_id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	body    TEXT NOT NULL
);
INSERT INTO users (last_name, email) VALUES ('Baumann', 'anna@example.com'), ('Keller', NULL);
INSERT INTO notes (user_id, body) VALUES (1, 'first'), (2, 'second'), (1, 'third');
`

func seededDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.db")
	db, err := sqldb.OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.SQL().Exec(seed)
	require.NoError(t, err)
	return path
}

func lines(out string) []string {
	return strings.Split(strings.TrimSuffix(out, "\n"), "\n")
}

func TestQuery_Select(t *testing.T) {
	dsn := seededDatabase(t)

	out, err := runCommand(t, "query", "--dsn", dsn, catalogDir, optionsFile("all_users.yaml"))
	require.NoError(t, err)
	got := lines(out)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"userId":1,"lastName":"Baumann","email":"anna@example.com","active":true}`, got[0])
	assert.JSONEq(t, `{"userId":2,"lastName":"Keller","email":null,"active":true}`, got[1])
}

func TestQuery_Multi(t *testing.T) {
	dsn := seededDatabase(t)

	out, err := runCommand(t, "query", "--dsn", dsn, catalogDir, optionsFile("notes.yaml"))
	require.NoError(t, err)
	got := lines(out)
	require.Len(t, got, 3)
	assert.JSONEq(t, `{"u.lastName":"Baumann","n.body":"first"}`, got[0])
	assert.JSONEq(t, `{"u.lastName":"Keller","n.body":"second"}`, got[1])
	assert.JSONEq(t, `{"u.lastName":"Baumann","n.body":"third"}`, got[2])
}

func TestQuery_ReadOnlyUnlessWrite(t *testing.T) {
	dsn := seededDatabase(t)

	out, err := runCommand(t, "query", "--dsn", dsn, catalogDir, optionsFile("deactivate.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "READ_ONLY")

	out, err = runCommand(t, "query", "--write", "--dsn", dsn, catalogDir, optionsFile("deactivate.yaml"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"affected":1}`, out)

	out, err = runCommand(t, "query", "--dsn", dsn, catalogDir, optionsFile("all_users.yaml"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":2,"lastName":"Keller","email":null,"active":false}`, lines(out)[1])
}

func TestQuery_ModerncDriver(t *testing.T) {
	dsn := seededDatabase(t)

	out, err := runCommand(t, "query", "--driver", "sqlite", "--dsn", dsn, catalogDir, optionsFile("select.yaml"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"userId":1,"lastName":"Baumann"}`, out)
}

func TestQuery_BackendFailure(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "empty.db")

	out, err := runCommand(t, "query", "--dsn", dsn, catalogDir, optionsFile("all_users.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeBackend+"]")
}

func TestQuery_RequiresDSN(t *testing.T) {
	_, err := runCommand(t, "query", catalogDir, optionsFile("all_users.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"dsn" not set`)
}
