// File: internal/frames/store_test.go
package frames_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/robit-man/web-scrape-service/internal/frames"
)

func newStore(t *testing.T, ttl time.Duration) *frames.Store {
	t.Helper()
	store, err := frames.NewStore(t.TempDir(), ttl, time.Minute, zaptest.NewLogger(t))
	require.NoError(t, err)
	return store
}

func TestSaveAndPath(t *testing.T) {
	store := newStore(t, time.Hour)

	name, err := store.Save([]byte("png-bytes"))
	require.NoError(t, err)
	assert.True(t, filepath.Ext(name) == ".png")

	path, err := store.Path(name)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestPathRejectsTraversal(t *testing.T) {
	store := newStore(t, time.Hour)

	for _, name := range []string{"", "..", "../etc/passwd", "a/b.png", ".hidden"} {
		_, err := store.Path(name)
		assert.Error(t, err, "name %q must be rejected", name)
	}
}

func TestSweepRemovesExpiredOnly(t *testing.T) {
	store := newStore(t, time.Minute)

	oldName, err := store.Save([]byte("old"))
	require.NoError(t, err)
	freshName, err := store.Save([]byte("fresh"))
	require.NoError(t, err)

	// Age the first frame past the TTL.
	oldPath, err := store.Path(oldName)
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	removed := store.Sweep(time.Now())
	assert.Equal(t, 1, removed)

	_, statErr := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(statErr))

	freshPath, err := store.Path(freshName)
	require.NoError(t, err)
	_, statErr = os.Stat(freshPath)
	assert.NoError(t, statErr)
}

func TestSweepDisabledWithZeroTTL(t *testing.T) {
	store := newStore(t, 0)

	name, err := store.Save([]byte("kept"))
	require.NoError(t, err)
	path, err := store.Path(name)
	require.NoError(t, err)
	past := time.Now().Add(-24 * time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))

	assert.Equal(t, 0, store.Sweep(time.Now()))
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
}
