// Package cache persists fetched provider tables so repeated runs never
// refetch the same request. Entries have no expiry: a hit is returned as is.
package cache

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/newthinker/nvtrotate/internal/core"
	"github.com/newthinker/nvtrotate/internal/metrics"
	"github.com/newthinker/nvtrotate/internal/storage/archive"
)

// Key identifies one provider request.
type Key struct {
	Provider string
	Params   []string
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9.\-]`)

// Path is the object path of the entry, e.g. "coingecko-market/bitcoin_1370995200_1538352000.csv".
func (k Key) Path() string {
	parts := make([]string, len(k.Params))
	for i, p := range k.Params {
		parts[i] = unsafeChars.ReplaceAllString(p, "-")
	}
	return path.Join(unsafeChars.ReplaceAllString(k.Provider, "-"), strings.Join(parts, "_")+".csv")
}

func (k Key) String() string {
	return k.Provider + "(" + strings.Join(k.Params, ",") + ")"
}

// Table is a header plus string rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Encode renders the table as CSV.
func (t *Table) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses CSV produced by Encode.
func Decode(data []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty table")
	}
	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Cache stores tables by key.
type Cache interface {
	Get(ctx context.Context, key Key) (*Table, bool, error)
	Put(ctx context.Context, key Key, t *Table) error
}

// Store is a Cache backed by archive storage, one CSV object per key.
type Store struct {
	storage archive.Storage
	metrics *metrics.Registry
}

// NewStore creates a Store. metrics may be nil.
func NewStore(storage archive.Storage, m *metrics.Registry) *Store {
	return &Store{storage: storage, metrics: m}
}

func (s *Store) Get(ctx context.Context, key Key) (*Table, bool, error) {
	data, err := s.storage.Read(ctx, key.Path())
	if errors.Is(err, fs.ErrNotExist) {
		s.metrics.RecordCache(key.Provider, false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, core.WrapError(core.ErrCacheFailed, fmt.Errorf("reading %s: %w", key, err))
	}

	t, err := Decode(data)
	if err != nil {
		return nil, false, core.WrapError(core.ErrCacheFailed, fmt.Errorf("decoding %s: %w", key, err))
	}
	s.metrics.RecordCache(key.Provider, true)
	return t, true, nil
}

func (s *Store) Put(ctx context.Context, key Key, t *Table) error {
	data, err := t.Encode()
	if err != nil {
		return core.WrapError(core.ErrCacheFailed, fmt.Errorf("encoding %s: %w", key, err))
	}
	if err := s.storage.Write(ctx, key.Path(), data); err != nil {
		return core.WrapError(core.ErrCacheFailed, fmt.Errorf("writing %s: %w", key, err))
	}
	return nil
}

// List returns the stored entry paths under provider ("" for all).
func (s *Store) List(ctx context.Context, provider string) ([]string, error) {
	paths, err := s.storage.List(ctx, provider)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// Purge deletes every entry under provider and returns how many were removed.
func (s *Store) Purge(ctx context.Context, provider string) (int, error) {
	if provider == "" {
		return 0, fmt.Errorf("provider required")
	}
	paths, err := s.storage.List(ctx, provider)
	if err != nil {
		return 0, err
	}
	for i, p := range paths {
		if err := s.storage.Delete(ctx, p); err != nil {
			return i, fmt.Errorf("deleting %s: %w", p, err)
		}
	}
	return len(paths), nil
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*Table
	hits    int
	misses  int
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*Table)}
}

func (m *Memory) Get(ctx context.Context, key Key) (*Table, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.entries[key.Path()]
	if !ok {
		m.misses++
		return nil, false, nil
	}
	m.hits++
	return t, true, nil
}

func (m *Memory) Put(ctx context.Context, key Key, t *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key.Path()] = t
	return nil
}

// Stats returns hit and miss counts.
func (m *Memory) Stats() (hits, misses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
