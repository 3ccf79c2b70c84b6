// Package memstore provides an in-memory Model implementation, useful
// for prototypes and tests.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/mitchellh/copystructure"
	"github.com/spf13/cast"
	"golang.org/x/exp/slices"

	restful "github.com/Hismer/gin-restful"
)

// Option sets an option on the store.
type Option func(*MemoryStore)

// Key sets the field used as the record key. Defaults to `id`. Records
// created without a key value get a generated UUID.
func Key(name string) Option {
	return func(m *MemoryStore) {
		m.key = name
	}
}

// Seed inserts records at construction time. A missing key field gets a
// generated UUID, like FindOrCreate.
func Seed(items ...map[string]any) Option {
	return func(m *MemoryStore) {
		for _, item := range items {
			values := deepCopy(item)
			if values[m.key] == nil {
				values[m.key] = uuid.NewString()
			}
			m.put(values)
		}
	}
}

// New creates an empty memory store holding one collection of records.
func New(options ...Option) *MemoryStore {
	m := &MemoryStore{
		key:   "id",
		items: map[string]map[string]any{},
	}

	for _, option := range options {
		option(m)
	}

	return m
}

// MemoryStore keeps records as maps guarded by a store-global lock.
// Listing walks records in insertion order unless a query orders them.
type MemoryStore struct {
	key string

	mu    sync.RWMutex
	items map[string]map[string]any
	order []string
}

var _ restful.Model = (*MemoryStore)(nil)

// FindOrCreate returns the first record matching the where values. When
// nothing matches, it creates one from the defaults overlaid with the
// where values and reports created as true.
func (m *MemoryStore) FindOrCreate(ctx context.Context, opts restful.FindOrCreateOptions) (restful.Entity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.order {
		if matchesWhere(m.items[key], opts.Where) {
			return m.record(m.items[key]), false, nil
		}
	}

	values := map[string]any{}
	for name, value := range opts.Defaults {
		values[name] = value
	}
	for name, value := range opts.Where {
		values[name] = value
	}
	if values[m.key] == nil {
		values[m.key] = uuid.NewString()
	}

	m.put(values)
	return m.record(values), true, nil
}

// FindOne returns the first record matching the where values, or nil
// when nothing matches.
func (m *MemoryStore) FindOne(ctx context.Context, where map[string]any) (restful.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, key := range m.order {
		if matchesWhere(m.items[key], where) {
			return m.record(m.items[key]), nil
		}
	}
	return nil, nil
}

// FindAll lists matching records, sorted by the query's order fields and
// cut down to its offset and limit window.
func (m *MemoryStore) FindAll(ctx context.Context, opts *restful.QueryOptions) ([]restful.Entity, error) {
	m.mu.RLock()
	matched := m.matching(opts)
	m.mu.RUnlock()

	if opts != nil && len(opts.Order) > 0 {
		sortRecords(matched, opts.Order)
	}

	// Negative windows follow SQLite: offsets clamp to zero and a negative
	// limit means no cap.
	if opts != nil && opts.Offset != nil {
		offset := *opts.Offset
		if offset < 0 {
			offset = 0
		}
		if offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[offset:]
		}
	}
	if opts != nil && opts.Limit != nil && *opts.Limit >= 0 && *opts.Limit < len(matched) {
		matched = matched[:*opts.Limit]
	}

	entities := make([]restful.Entity, 0, len(matched))
	for _, values := range matched {
		entities = append(entities, m.record(values))
	}
	return entities, nil
}

// Count returns how many records match the query, ignoring its offset
// and limit.
func (m *MemoryStore) Count(ctx context.Context, opts *restful.QueryOptions) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.matching(opts))), nil
}

// matching returns copies of all records passing the query's where
// values, in insertion order. Callers must hold at least a read lock.
func (m *MemoryStore) matching(opts *restful.QueryOptions) []map[string]any {
	var where map[string]any
	if opts != nil {
		where = opts.Where
	}

	matched := make([]map[string]any, 0, len(m.order))
	for _, key := range m.order {
		if matchesWhere(m.items[key], where) {
			matched = append(matched, deepCopy(m.items[key]))
		}
	}
	return matched
}

// put stores a copy of the values under their key field. Callers must
// hold the write lock, except during construction.
func (m *MemoryStore) put(values map[string]any) {
	key := cast.ToString(values[m.key])
	if _, ok := m.items[key]; !ok {
		m.order = append(m.order, key)
	}
	m.items[key] = deepCopy(values)
}

func (m *MemoryStore) delete(values map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cast.ToString(values[m.key])
	delete(m.items, key)
	if i := slices.Index(m.order, key); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
}

// record wraps a private copy of the values, so mutations through Set
// stay invisible until Save.
func (m *MemoryStore) record(values map[string]any) *Record {
	return &Record{store: m, values: deepCopy(values)}
}

// Record is one stored item. It holds its own copy of the values, so
// reads are stable and writes only land in the store on Save.
type Record struct {
	store  *MemoryStore
	values map[string]any
}

var _ restful.Entity = (*Record)(nil)

func (r *Record) Get(field string) any {
	return r.values[field]
}

func (r *Record) Set(field string, value any) {
	r.values[field] = value
}

// Save writes the record's values back to the store, inserting them
// again if the record was deleted in the meantime.
func (r *Record) Save(ctx context.Context) error {
	if r.values[r.store.key] == nil {
		return fmt.Errorf("record has no %s field", r.store.key)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.put(r.values)
	return nil
}

// Destroy removes the record from the store.
func (r *Record) Destroy(ctx context.Context) error {
	r.store.delete(r.values)
	return nil
}

func (r *Record) ToJSON() any {
	return r.values
}

// matchesWhere reports whether every where value equals the stored one.
// Values match either deeply or by their string forms, so a path
// parameter like "7" matches a stored number 7.
func matchesWhere(values map[string]any, where map[string]any) bool {
	for name, wanted := range where {
		if !looseEqual(values[name], wanted) {
			return false
		}
	}
	return true
}

func looseEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}

	as, errA := cast.ToStringE(a)
	bs, errB := cast.ToStringE(b)
	return errA == nil && errB == nil && as == bs
}

// sortRecords orders records by the given fields, with a `-` prefix
// meaning descending. Numbers sort numerically, everything else by
// string form.
func sortRecords(records []map[string]any, order []string) {
	slices.SortStableFunc(records, func(a, b map[string]any) bool {
		for _, field := range order {
			name, desc := field, false
			if strings.HasPrefix(field, "-") {
				name, desc = field[1:], true
			}

			av, bv := a[name], b[name]
			if looseEqual(av, bv) {
				continue
			}
			if desc {
				return lessValue(bv, av)
			}
			return lessValue(av, bv)
		}
		return false
	})
}

func lessValue(a, b any) bool {
	fa, errA := cast.ToFloat64E(a)
	fb, errB := cast.ToFloat64E(b)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return cast.ToString(a) < cast.ToString(b)
}

func deepCopy(values map[string]any) map[string]any {
	copied, err := copystructure.Copy(values)
	if err != nil {
		return values
	}
	return copied.(map[string]any)
}
