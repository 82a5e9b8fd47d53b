package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/liliang-cn/search4all/internal/domain"
)

// KVStore is a durable key/value mapping over sqlite. Operations on the same
// key are serialized; operations on different keys never share a lock.
type KVStore struct {
	db    *DB
	locks *keyLocks
	cache *lru.Cache[string, []byte]
}

// NewKVStore creates a KV store. cacheSize bounds the in-process read cache;
// zero or less disables it.
func NewKVStore(db *DB, cacheSize int) (*KVStore, error) {
	s := &KVStore{db: db, locks: newKeyLocks()}
	if cacheSize > 0 {
		cache, err := lru.New[string, []byte](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create kv cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Get returns the value stored under key, or domain.ErrNotFound
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	unlock := s.locks.lock(key)
	defer unlock()

	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.remember(key, value)
	return value, nil
}

// Put overwrites the value under key. The value is durable when Put returns.
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	unlock := s.locks.lock(key)
	defer unlock()

	if err := upsert(ctx, s.db, key, value); err != nil {
		return err
	}
	s.remember(key, value)
	return nil
}

// Append adds item to the JSON array stored under key, first dropping the
// oldest entries so that at most max items remain afterwards. max <= 0 means
// unbounded. The read-modify-write runs in one transaction.
func (s *KVStore) Append(ctx context.Context, key string, item json.RawMessage, max int) error {
	unlock := s.locks.lock(key)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var items []json.RawMessage
	var current []byte
	err = tx.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(current, &items); err != nil {
			return fmt.Errorf("failed to decode list at %s: %w", key, err)
		}
	}

	if max > 0 && len(items) >= max {
		items = items[len(items)-(max-1):]
	}
	items = append(items, item)

	value, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := upsert(ctx, tx, key, value); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.remember(key, value)
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (s *KVStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		unlock := s.locks.lock(key)
		_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		if err == nil && s.cache != nil {
			s.cache.Remove(key)
		}
		unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *KVStore) remember(key string, value []byte) {
	if s.cache != nil {
		s.cache.Add(key, value)
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	return err
}

// keyLocks hands out one mutex per key, dropping it once nobody holds it
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*keyLock)}
}

func (l *keyLocks) lock(key string) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
