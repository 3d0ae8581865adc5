package store

import (
	"context"
	"os"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/cardiokit/core"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStoreFrom(map[string][]byte{"a": []byte("1")})

	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	_, err = s.Get(ctx, "missing")
	assert.True(t, core.IsStoreNotFound(err))

	require.NoError(t, s.Set(ctx, "b", []byte("2")))
	got, err := s.BatchGet(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, got)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.True(t, core.IsStoreNotFound(err))
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "nested/columns.json", []byte(`["age"]`)))
	v, err := s.Get(ctx, "nested/columns.json")
	require.NoError(t, err)
	assert.JSONEq(t, `["age"]`, string(v))

	_, err = s.Get(ctx, "nope.json")
	assert.True(t, core.IsStoreNotFound(err))

	_, err = s.Get(ctx, "../etc/passwd")
	assert.True(t, core.IsInvalidInput(err))

	got, err := s.BatchGet(ctx, []string{"nested/columns.json", "nope.json"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFileStore_NotADirectory(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "x")
	require.NoError(t, err)
	f.Close()

	_, err = NewFileStore(f.Name())
	assert.Error(t, err)
	_, err = NewFileStore("/definitely/not/here")
	assert.Error(t, err)
}

func TestFSStore_ReadOnly(t *testing.T) {
	s := NewFSStore(fstest.MapFS{"scaler.json": {Data: []byte(`{}`)}})
	v, err := s.Get(context.Background(), "scaler.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(v))
	assert.Error(t, s.Set(context.Background(), "x", nil))
}

func TestOpen(t *testing.T) {
	s, err := Open(Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Name())

	s, err = Open(Options{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "file", s.Name())

	_, err = Open(Options{Backend: "s3"})
	assert.Error(t, err)
}

// 需要本地 Redis：CARDIOKIT_TEST_REDIS=localhost:6379
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CARDIOKIT_TEST_REDIS")
	if addr == "" {
		t.Skip("CARDIOKIT_TEST_REDIS not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(addr, 0, WithKeyPrefix("cardiokit:test:"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	_, err = s.Get(ctx, "absent")
	assert.True(t, core.IsStoreNotFound(err))

	got, err := s.BatchGet(ctx, []string{"k", "absent"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"k": []byte("v")}, got)
}
