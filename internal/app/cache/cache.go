// Package cache implements a bounded in-memory key/value store partitioned
// into namespaces, each with its own TTL, entry limit and memory budget.
//
// All operations are total: misses, expired entries and rejected inserts are
// reported through boolean results, never errors.
package cache

import (
	"context"
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Default settings.
const (
	DefaultGlobalMaxMemory = 50 * 1024 * 1024
	DefaultSweepInterval   = time.Minute

	// evictFraction is the share of a namespace removed per eviction round.
	evictFraction = 0.25
	// fallbackSize is charged for values that cannot be JSON encoded.
	fallbackSize = 1024
)

// Config holds manager-wide settings.
type Config struct {
	GlobalMaxMemory int64         // bytes across all namespaces, 0 disables the ceiling
	SweepInterval   time.Duration // period of the background sweep in Run
}

// NamespaceConfig holds the retention policy of one namespace.
type NamespaceConfig struct {
	TTL        time.Duration
	MaxEntries int   // 0 means unlimited
	MaxMemory  int64 // bytes, 0 means unlimited
}

type entry struct {
	value      any
	insertedAt time.Time
	hitCount   uint64
	size       int64
	seq        uint64 // insertion order, breaks insertedAt ties
}

type namespace struct {
	name    string
	config  NamespaceConfig
	entries map[any]*entry
	memory  int64

	hits, misses, evictions, rejections uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager is a namespaced TTL/LRU cache with memory budgets.
// It is safe for concurrent use.
type Manager struct {
	mu         sync.Mutex
	config     Config
	namespaces map[string]*namespace
	memory     int64
	seq        uint64
	now        func() time.Time
}

// New creates a new cache manager.
func New(cfg Config, opts ...Option) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	m := &Manager{
		config:     cfg,
		namespaces: make(map[string]*namespace),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateNamespace registers a namespace. It is idempotent per name: a second
// call keeps the existing configuration and returns false.
func (m *Manager) CreateNamespace(name string, cfg NamespaceConfig) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.namespaces[name]; ok {
		return false
	}
	m.namespaces[name] = &namespace{
		name:    name,
		config:  cfg,
		entries: make(map[any]*entry),
	}
	zlog.Debug().Msgf("cache: namespace created: name=%s ttl=%s max_entries=%d max_memory=%d",
		name, cfg.TTL, cfg.MaxEntries, cfg.MaxMemory)
	return true
}

// Set stores value under key. It returns false when the namespace does not
// exist, the key is not comparable or the value alone would take more than
// half of the namespace budget.
func (m *Manager) Set(ns string, key, value any) bool {
	if !validKey(key) {
		zlog.Debug().Msgf("cache: key rejected: namespace=%s type=%T", ns, key)
		return false
	}
	size := estimateSize(value)

	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.namespaces[ns]
	if !ok {
		return false
	}
	if n.config.MaxMemory > 0 && size > n.config.MaxMemory/2 {
		n.rejections++
		zlog.Debug().Msgf("cache: value rejected: namespace=%s size=%d max_memory=%d", ns, size, n.config.MaxMemory)
		return false
	}

	if old, ok := n.entries[key]; ok {
		m.remove(n, key, old)
	}
	m.seq++
	n.entries[key] = &entry{
		value:      value,
		insertedAt: m.now(),
		size:       size,
		seq:        m.seq,
	}
	n.memory += size
	m.memory += size

	m.enforce(n)
	if m.overGlobal() {
		m.relievePressure()
	}
	return true
}

// Get returns the value stored under key. Expired entries are removed on read
// and reported as a miss.
func (m *Manager) Get(ns string, key any) (any, bool) {
	if !validKey(key) {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.namespaces[ns]
	if !ok {
		return nil, false
	}
	e, ok := n.entries[key]
	if !ok {
		n.misses++
		return nil, false
	}
	if m.expired(n, e) {
		m.remove(n, key, e)
		n.misses++
		return nil, false
	}
	e.hitCount++
	n.hits++
	return e.value, true
}

// Lookup is a typed Get. A value of a different type is reported as absent.
func Lookup[T any](m *Manager, ns string, key any) (T, bool) {
	var zero T
	v, ok := m.Get(ns, key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Delete removes one key. It returns whether the key was present.
func (m *Manager) Delete(ns string, key any) bool {
	if !validKey(key) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.namespaces[ns]
	if !ok {
		return false
	}
	e, ok := n.entries[key]
	if !ok {
		return false
	}
	m.remove(n, key, e)
	return true
}

// Clear removes every entry of one namespace.
func (m *Manager) Clear(ns string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n, ok := m.namespaces[ns]; ok {
		m.clear(n)
	}
}

// ClearAll removes every entry of every namespace. Namespaces stay registered.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.namespaces {
		m.clear(n)
	}
}

// Sweep deletes expired entries, re-applies namespace limits and, if the
// global ceiling is still exceeded, evicts from the two largest namespaces.
func (m *Manager) Sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for _, n := range m.namespaces {
		for k, e := range n.entries {
			if m.expired(n, e) {
				m.remove(n, k, e)
				expired++
			}
		}
		m.enforce(n)
	}
	if m.overGlobal() {
		m.relievePressure()
	}
	if expired > 0 {
		zlog.Debug().Msgf("cache: sweep finished: expired=%d memory=%d", expired, m.memory)
	}
}

// Run sweeps the cache every SweepInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	zlog.Info().Msgf("cache: sweeper started: interval=%s", m.config.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			zlog.Info().Msg("cache: sweeper stopped")
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// expired reports whether e has outlived the namespace TTL. An entry is
// valid while elapsed < TTL.
func (m *Manager) expired(n *namespace, e *entry) bool {
	if n.config.TTL <= 0 {
		return false
	}
	return m.now().Sub(e.insertedAt) >= n.config.TTL
}

func (m *Manager) remove(n *namespace, key any, e *entry) {
	delete(n.entries, key)
	n.memory -= e.size
	m.memory -= e.size
}

func (m *Manager) clear(n *namespace) {
	m.memory -= n.memory
	n.memory = 0
	n.entries = make(map[any]*entry)
}

func (m *Manager) overGlobal() bool {
	return m.config.GlobalMaxMemory > 0 && m.memory > m.config.GlobalMaxMemory
}

func (n *namespace) overBudget() bool {
	if n.config.MaxEntries > 0 && len(n.entries) > n.config.MaxEntries {
		return true
	}
	return n.config.MaxMemory > 0 && n.memory > n.config.MaxMemory
}

// enforce evicts from n until it is back within its own limits.
func (m *Manager) enforce(n *namespace) {
	for n.overBudget() && len(n.entries) > 0 {
		m.evictLRU(n)
	}
}

// evictLRU removes the lowest-ranked quarter of n (at least one entry),
// ranked ascending by hit count, then insertion time.
func (m *Manager) evictLRU(n *namespace) int {
	if len(n.entries) == 0 {
		return 0
	}
	type ranked struct {
		key any
		e   *entry
	}
	all := make([]ranked, 0, len(n.entries))
	for k, e := range n.entries {
		all = append(all, ranked{key: k, e: e})
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i].e, all[j].e
		if a.hitCount != b.hitCount {
			return a.hitCount < b.hitCount
		}
		if !a.insertedAt.Equal(b.insertedAt) {
			return a.insertedAt.Before(b.insertedAt)
		}
		return a.seq < b.seq
	})

	count := int(math.Ceil(float64(len(all)) * evictFraction))
	if count < 1 {
		count = 1
	}
	for _, r := range all[:count] {
		m.remove(n, r.key, r.e)
	}
	n.evictions += uint64(count)
	zlog.Debug().Msgf("cache: evicted entries: namespace=%s count=%d remaining=%d", n.name, count, len(n.entries))
	return count
}

// relievePressure evicts from the two namespaces with the largest memory
// footprint until the global ceiling holds or both are empty.
func (m *Manager) relievePressure() {
	targets := make([]*namespace, 0, len(m.namespaces))
	for _, n := range m.namespaces {
		targets = append(targets, n)
	}
	sort.Slice(targets, func(i, j int) bool {
		if targets[i].memory != targets[j].memory {
			return targets[i].memory > targets[j].memory
		}
		return targets[i].name < targets[j].name
	})
	if len(targets) > 2 {
		targets = targets[:2]
	}

	for m.overGlobal() {
		evicted := 0
		for _, n := range targets {
			if m.overGlobal() {
				evicted += m.evictLRU(n)
			}
		}
		if evicted == 0 {
			break
		}
	}
	zlog.Debug().Msgf("cache: global pressure relieved: memory=%d ceiling=%d", m.memory, m.config.GlobalMaxMemory)
}

// validKey reports whether key can be used as a map key without panicking.
// Values are checked dynamically, so an interface field holding a slice fails.
func validKey(key any) bool {
	return key == nil || reflect.ValueOf(key).Comparable()
}

// estimateSize approximates the memory held by v as its JSON-encoded length.
func estimateSize(v any) int64 {
	b, err := json.Marshal(v)
	if err != nil {
		return fallbackSize
	}
	return int64(len(b))
}
