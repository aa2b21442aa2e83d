package datasource

import (
	"sync"

	"github.com/datapilot-ai/datapilot-engine/pkg/models"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[models.DatabaseKind]Dialect)
)

// Register is called by each dialect's init() function.
// Thread-safe for concurrent init() calls.
func Register(d Dialect) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Kind()] = d
}

// DialectFor returns the dialect registered for a database kind, or nil if
// the kind has no implementation linked in.
func DialectFor(kind models.DatabaseKind) Dialect {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[kind]
}

// RegisteredKinds returns the kinds with a linked dialect, for capability
// reporting.
func RegisteredKinds() []models.DatabaseKind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	kinds := make([]models.DatabaseKind, 0, len(registry))
	for _, k := range models.ValidDatabaseKinds {
		if _, ok := registry[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
