package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/search4all/internal/domain"
)

func setupTestKV(t *testing.T, cacheSize int) *KVStore {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "kv", "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	kv, err := NewKVStore(db, cacheSize)
	require.NoError(t, err)
	return kv
}

func decodeInts(t *testing.T, raw []byte) []int {
	t.Helper()
	var out []int
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestKVStore_GetMissing(t *testing.T) {
	kv := setupTestKV(t, 0)

	_, err := kv.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKVStore_PutOverwrites(t *testing.T) {
	for _, cacheSize := range []int{0, 16} {
		t.Run(fmt.Sprintf("cache=%d", cacheSize), func(t *testing.T) {
			kv := setupTestKV(t, cacheSize)
			ctx := context.Background()

			require.NoError(t, kv.Put(ctx, "k", []byte(`"first"`)))
			require.NoError(t, kv.Put(ctx, "k", []byte(`"second"`)))

			got, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, `"second"`, string(got))
		})
	}
}

func TestKVStore_PutIsDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search.db")
	ctx := context.Background()

	db, err := NewDB(path)
	require.NoError(t, err)
	kv, err := NewKVStore(db, 8)
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, "k", []byte(`1`)))
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	kv, err = NewKVStore(db, 8)
	require.NoError(t, err)

	got, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `1`, string(got))
}

func TestKVStore_AppendWindow(t *testing.T) {
	const max = 10
	kv := setupTestKV(t, 0)
	ctx := context.Background()

	for i := 1; i <= max+1; i++ {
		require.NoError(t, kv.Append(ctx, "h", json.RawMessage(fmt.Sprint(i)), max))
	}

	raw, err := kv.Get(ctx, "h")
	require.NoError(t, err)
	got := decodeInts(t, raw)
	require.Len(t, got, max)
	assert.Equal(t, 2, got[0], "oldest entry should be evicted first")
	assert.Equal(t, max+1, got[len(got)-1])
}

func TestKVStore_AppendWindowOfOne(t *testing.T) {
	kv := setupTestKV(t, 0)
	ctx := context.Background()

	require.NoError(t, kv.Append(ctx, "h", json.RawMessage(`1`), 1))
	require.NoError(t, kv.Append(ctx, "h", json.RawMessage(`2`), 1))

	raw, err := kv.Get(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, decodeInts(t, raw))
}

func TestKVStore_ConcurrentAppendSameKey(t *testing.T) {
	const writers = 20
	kv := setupTestKV(t, 32)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, kv.Append(ctx, "shared", json.RawMessage(fmt.Sprint(i)), 0))
		}(i)
	}
	wg.Wait()

	raw, err := kv.Get(ctx, "shared")
	require.NoError(t, err)
	got := decodeInts(t, raw)
	assert.Len(t, got, writers, "no append may be lost")
	assert.ElementsMatch(t, func() []int {
		want := make([]int, writers)
		for i := range want {
			want[i] = i
		}
		return want
	}(), got)
}

func TestKVStore_Delete(t *testing.T) {
	kv := setupTestKV(t, 8)
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, "a", []byte(`1`)))
	require.NoError(t, kv.Put(ctx, "b", []byte(`2`)))
	require.NoError(t, kv.Delete(ctx, "a", "missing"))

	_, err := kv.Get(ctx, "a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = kv.Get(ctx, "b")
	assert.NoError(t, err)
}

func TestKeyLocks_Released(t *testing.T) {
	l := newKeyLocks()

	unlockA := l.lock("a")
	unlockB := l.lock("b")
	assert.Len(t, l.locks, 2)

	unlockA()
	unlockB()
	assert.Empty(t, l.locks)
}
