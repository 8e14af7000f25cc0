package lockfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_EmptyDirIsNoop(t *testing.T) {
	release, err := Acquire("", "memories")
	require.NoError(t, err)
	release()
}

func TestAcquire_SecondWriterIsRejected(t *testing.T) {
	dir := t.TempDir()

	release, err := Acquire(dir, "memories")
	require.NoError(t, err)
	defer release()

	_, err = Acquire(dir, "memories")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memories")
}

func TestAcquire_ReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	release, err := Acquire(dir, "memories")
	require.NoError(t, err)
	release()

	release, err = Acquire(dir, "memories")
	require.NoError(t, err)
	release()
}

func TestAcquire_AliasesLockIndependently(t *testing.T) {
	dir := t.TempDir()

	r1, err := Acquire(dir, "memories")
	require.NoError(t, err)
	defer r1()

	r2, err := Acquire(dir, "notes")
	require.NoError(t, err)
	defer r2()
}
