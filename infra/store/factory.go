package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/evtrip/config"
	"github.com/kilianp07/evtrip/core/trips"
)

// New opens the backend selected by cfg.
func New(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case config.StorageSQLite:
		s, err := NewSQLiteStore(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageFile:
		s, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageMongo:
		client, err := ConnectMongo(ctx, cfg.Mongo.URI, time.Duration(cfg.Mongo.TimeoutSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		return NewMongoStore(client, cfg.Mongo.Database, cfg.Mongo.Collection), nil
	case config.StorageMemory:
		return memoryBackend{trips.NewMemoryStore()}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %s", cfg.Backend)
	}
}
