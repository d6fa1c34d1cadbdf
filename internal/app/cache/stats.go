package cache

import "sort"

// NamespaceStats is a point-in-time view of one namespace.
type NamespaceStats struct {
	Name       string `json:"name"`
	Entries    int    `json:"entries"`
	Memory     int64  `json:"memory"`
	MaxEntries int    `json:"maxEntries"`
	MaxMemory  int64  `json:"maxMemory"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evictions  uint64 `json:"evictions"`
	Rejections uint64 `json:"rejections"`
}

// Stats is a point-in-time view of the whole cache.
type Stats struct {
	Memory          int64            `json:"memory"`
	GlobalMaxMemory int64            `json:"globalMaxMemory"`
	Namespaces      []NamespaceStats `json:"namespaces"`
}

// Stats returns counters for every namespace, sorted by name.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Memory:          m.memory,
		GlobalMaxMemory: m.config.GlobalMaxMemory,
		Namespaces:      make([]NamespaceStats, 0, len(m.namespaces)),
	}
	for _, n := range m.namespaces {
		s.Namespaces = append(s.Namespaces, NamespaceStats{
			Name:       n.name,
			Entries:    len(n.entries),
			Memory:     n.memory,
			MaxEntries: n.config.MaxEntries,
			MaxMemory:  n.config.MaxMemory,
			Hits:       n.hits,
			Misses:     n.misses,
			Evictions:  n.evictions,
			Rejections: n.rejections,
		})
	}
	sort.Slice(s.Namespaces, func(i, j int) bool {
		return s.Namespaces[i].Name < s.Namespaces[j].Name
	})
	return s
}

// Namespace returns the stats of one namespace.
func (s Stats) Namespace(name string) (NamespaceStats, bool) {
	for _, n := range s.Namespaces {
		if n.Name == name {
			return n, true
		}
	}
	return NamespaceStats{}, false
}
