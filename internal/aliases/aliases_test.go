package aliases

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAliases(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aliases")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAliases(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestUpdateAddsRootAndDevnull(t *testing.T) {
	path := writeAliases(t, "postmaster:    root\n")

	changed, err := Update(path, "root@admin.mydomain.local")
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t,
		"postmaster:    root\n"+
			"devnull:       /dev/null\n"+
			"root:          root@admin.mydomain.local\n",
		readAliases(t, path))
}

func TestUpdateNoAdminEmail(t *testing.T) {
	path := writeAliases(t, "postmaster:    root\n")

	changed, err := Update(path, "")
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t,
		"postmaster:    root\ndevnull:       /dev/null\n",
		readAliases(t, path))
}

func TestUpdateIdempotent(t *testing.T) {
	path := writeAliases(t, "postmaster:    root\n")

	_, err := Update(path, "root@admin.mydomain.local")
	require.NoError(t, err)

	changed, err := Update(path, "root@admin.mydomain.local")
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUpdateReplacesExistingRoot(t *testing.T) {
	path := writeAliases(t,
		"postmaster:    root\n"+
			"root:          old@mydomain.local\n"+
			"devnull:       /dev/null\n")

	changed, err := Update(path, "new@mydomain.local")
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t,
		"postmaster:    root\n"+
			"devnull:       /dev/null\n"+
			"root:          new@mydomain.local\n",
		readAliases(t, path))
}

func TestUpdatePreservesUnrelatedLines(t *testing.T) {
	path := writeAliases(t,
		"# comment\n"+
			"postmaster:    root\n"+
			"webmaster:     webteam\n"+
			"devnull:       /dev/null\n")

	_, err := Update(path, "admin@mydomain.local")
	require.NoError(t, err)

	assert.Equal(t,
		"# comment\n"+
			"postmaster:    root\n"+
			"webmaster:     webteam\n"+
			"devnull:       /dev/null\n"+
			"root:          admin@mydomain.local\n",
		readAliases(t, path))
}

func TestUpdateKeepsSingleDevnull(t *testing.T) {
	path := writeAliases(t,
		"devnull:       /dev/null\n"+
			"devnull:       /dev/null\n")

	_, err := Update(path, "")
	require.NoError(t, err)

	// Only the first occurrence stops the insertion; existing duplicates
	// are left alone, none are added.
	assert.Equal(t,
		"devnull:       /dev/null\ndevnull:       /dev/null\n",
		readAliases(t, path))
}

func TestUpdateMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases")

	changed, err := Update(path, "admin@mydomain.local")
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t,
		"devnull:       /dev/null\nroot:          admin@mydomain.local\n",
		readAliases(t, path))
}
