package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupWorkspace isolates a test behind its own data directory and
// source database via environment overrides.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MEMSYNC_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("MEMSYNC_SOURCE_DB", filepath.Join(dir, "memories.db"))
	t.Setenv("HOME", dir)
	return dir
}

// execute runs the CLI with the given args and returns combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCmd_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "memsync")
	assert.Contains(t, out, "sync")
	assert.Contains(t, out, "rebuild")
	assert.Contains(t, out, "status")
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	_, err := execute(t, "frobnicate")
	require.Error(t, err)
}

func TestVersionCmd_Default(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "memsync")
	assert.Contains(t, out, "commit")
}

func TestVersionCmd_Short(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Contains(t, out, "dev")
	assert.NotContains(t, out, "commit")
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)
	assert.Contains(t, out, `"go_version"`)
}
