package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"catalogsync/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "session.json")

	s, err := NewSessionStore(path)
	require.NoError(t, err)

	_, err = s.Get(ctx, "token")
	assert.ErrorIs(t, err, ports.ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "token", "abc"))
	require.NoError(t, s.Set(ctx, "auth_user", `{"id":"1"}`))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A second store on the same file sees the persisted keys.
	reopened, err := NewSessionStore(path)
	require.NoError(t, err)
	v, err := reopened.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	require.NoError(t, reopened.Delete(ctx, "token", "auth_user"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSessionStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewSessionStore(path)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "token")
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}

func TestNewSessionStore_EmptyPath(t *testing.T) {
	_, err := NewSessionStore("")
	assert.Error(t, err)
}
