package commands

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caiquemiranda/backend-base/internal/logger"
)

func runDB(t *testing.T, args ...string) (string, error) {
	t.Helper()
	logger.Discard()

	cmd := dbCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestDBCommand_RoundTrip(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "cli.db")

	out, err := runDB(t, "put", "user:1", `{"name":"ana"}`, "--data", dataFile)
	require.NoError(t, err)
	assert.Contains(t, out, "stored user:1")

	out, err = runDB(t, "get", "user:1", "--data", dataFile)
	require.NoError(t, err)
	assert.Contains(t, out, `{"name":"ana"}`)

	out, err = runDB(t, "rm", "user:1", "--data", dataFile)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 key(s)")

	_, err = runDB(t, "get", "user:1", "--data", dataFile)
	assert.Error(t, err)
}

func TestDBCommand_PutReplacesExisting(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "cli.db")

	_, err := runDB(t, "put", "user:1", `{"name":"ana"}`, "--data", dataFile)
	require.NoError(t, err)

	_, err = runDB(t, "put", "user:1", `{"name":"bia"}`, "--data", dataFile)
	require.NoError(t, err)

	out, err := runDB(t, "get", "user:1", "--data", dataFile)
	require.NoError(t, err)
	assert.Contains(t, out, `{"name":"bia"}`)
}

func TestDBCommand_PutRejectsInvalidJSON(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "cli.db")

	_, err := runDB(t, "put", "user:1", "{broken", "--data", dataFile)
	assert.Error(t, err)
}

func TestDBCommand_List(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "cli.db")

	for _, kv := range [][2]string{
		{"user:1", `{"name":"ana"}`},
		{"user:2", `{"name":"bia"}`},
		{"order:1", `{"total":10}`},
	} {
		_, err := runDB(t, "put", kv[0], kv[1], "--data", dataFile)
		require.NoError(t, err)
	}

	t.Run("all keys", func(t *testing.T) {
		out, err := runDB(t, "list", "--data", dataFile)
		require.NoError(t, err)
		assert.Contains(t, out, "user:1")
		assert.Contains(t, out, "user:2")
		assert.Contains(t, out, "order:1")
		assert.Contains(t, out, "3 documents")
	})

	t.Run("by prefix", func(t *testing.T) {
		out, err := runDB(t, "list", "user:", "--data", dataFile)
		require.NoError(t, err)
		assert.Contains(t, out, "user:1")
		assert.NotContains(t, out, "order:1")
		assert.Contains(t, out, "2 documents")
	})
}

func TestDBCommand_RmSeveralKeys(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "cli.db")

	for _, key := range []string{"a:1", "a:2", "a:3"} {
		_, err := runDB(t, "put", key, `{"key":"`+key+`"}`, "--data", dataFile)
		require.NoError(t, err)
	}

	out, err := runDB(t, "rm", "a:1", "a:3", "--data", dataFile)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2 key(s)")

	out, err = runDB(t, "list", "--data", dataFile)
	require.NoError(t, err)
	assert.Contains(t, out, "a:2")
	assert.Contains(t, out, "1 documents")
}
