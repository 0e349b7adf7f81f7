package journal

import (
	"fmt"

	"github.com/kilianp07/evtrip/config"
	corejournal "github.com/kilianp07/evtrip/core/journal"
)

// New opens the journal store selected by cfg.
func New(cfg config.JournalConfig) (corejournal.Store, error) {
	switch cfg.Backend {
	case "none":
		return corejournal.NopStore{}, nil
	case "sqlite":
		return nonNil(NewSQLiteStore(cfg.Path))
	case "jsonl":
		if cfg.MaxSizeMB > 0 {
			return nonNil(NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays))
		}
		return nonNil(NewJSONLStore(cfg.Path))
	default:
		return nil, fmt.Errorf("unknown journal backend %s", cfg.Backend)
	}
}

// nonNil keeps a failed constructor from yielding a non-nil interface that
// wraps a nil pointer.
func nonNil[S corejournal.Store](s S, err error) (corejournal.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
