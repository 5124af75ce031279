package state

import (
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendBadger  = "badger"
	BackendLevelDB = "leveldb"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	// Kind is one of BackendMemory, BackendBadger or BackendLevelDB.
	Kind string `yaml:"kind"`

	// Dir is the data directory. The backend creates its own subdirectory.
	Dir string `yaml:"dir"`

	// SyncWrites fsyncs every committed batch.
	SyncWrites bool `yaml:"sync_writes"`
}

// DefaultBackendConfig returns an in-memory backend configuration.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{Kind: BackendMemory, SyncWrites: true}
}

// Open creates the configured backend.
func Open(cfg BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case BackendMemory, "":
		return NewMemoryBackend(), nil
	case BackendBadger:
		bc := DefaultBadgerConfig(filepath.Join(cfg.Dir, "state-badger"))
		bc.SyncWrites = cfg.SyncWrites
		return NewBadgerBackend(bc)
	case BackendLevelDB:
		lc := DefaultLevelDBConfig(filepath.Join(cfg.Dir, "state-leveldb"))
		lc.SyncWrites = cfg.SyncWrites
		return NewLevelDBBackend(lc)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Kind)
}
