package session

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// The durable identity keys. Fixed names, shared with every other client of
// the same workspace.
const (
	KeyToken    = "token"
	KeyUserRole = "userRole"
	KeyUserID   = "userId"
	KeyUserName = "userName"
)

// Store is the injectable session storage boundary: string keys, observable
// writes. Components receive a Store explicitly instead of reaching for
// ambient global state.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Subscribe(fn func(key, value string)) (cancel func())
}

// DBStore persists session keys in the workspace SQLite database. Writes
// notify in-process subscribers; other processes see changes on their next
// read because every command re-reads through the store.
type DBStore struct {
	DB  *sql.DB
	Now func() time.Time

	mu   sync.Mutex
	subs map[int]func(key, value string)
	next int
}

func NewDBStore(db *sql.DB) *DBStore {
	return &DBStore{DB: db, subs: map[int]func(key, value string){}}
}

func (s *DBStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *DBStore) Get(ctx context.Context, key string) (string, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT value FROM session WHERE key=?`, key)
	var v string
	err := row.Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

func (s *DBStore) Set(ctx context.Context, key, value string) error {
	ts := s.now().UTC().Format(time.RFC3339)
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO session(key,value,updated_at) VALUES (?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, ts)
	if err != nil {
		return err
	}
	s.notify(key, value)
	return nil
}

func (s *DBStore) Delete(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM session WHERE key=?`, key)
	if err != nil {
		return err
	}
	s.notify(key, "")
	return nil
}

func (s *DBStore) Subscribe(fn func(key, value string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *DBStore) notify(key, value string) {
	s.mu.Lock()
	fns := make([]func(key, value string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(key, value)
	}
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu   sync.Mutex
	vals map[string]string
	subs []func(key, value string)
}

func NewMemStore() *MemStore {
	return &MemStore{vals: map[string]string{}}
}

func (s *MemStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vals[key], nil
}

func (s *MemStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.vals[key] = value
	subs := append([]func(key, value string){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(key, value)
	}
	return nil
}

func (s *MemStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.vals, key)
	subs := append([]func(key, value string){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(key, "")
	}
	return nil
}

func (s *MemStore) Subscribe(fn func(key, value string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs[idx] = func(string, string) {}
	}
}
