package config

import "fmt"

// Storage backends.
const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

// StorageConfig selects where trip lists are persisted.
type StorageConfig struct {
	Backend string `json:"backend"`
	// Path is the SQLite database location.
	Path string `json:"path"`
	// Dir holds one JSON document per vehicle for the file backend.
	Dir   string      `json:"dir"`
	Mongo MongoConfig `json:"mongo"`
}

// MongoConfig holds the document store connection settings.
type MongoConfig struct {
	URI            string `json:"uri"`
	Database       string `json:"database"`
	Collection     string `json:"collection"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *StorageConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = StorageSQLite
	}
	if c.Path == "" {
		c.Path = "evtrip.db"
	}
	if c.Dir == "" {
		c.Dir = ".storage"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "evtrip"
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = "trips"
	}
	if c.Mongo.TimeoutSeconds == 0 {
		c.Mongo.TimeoutSeconds = 10
	}
}

// Validate checks mandatory fields.
func (c StorageConfig) Validate() error {
	switch c.Backend {
	case StorageSQLite, StorageFile, StorageMemory:
		return nil
	case StorageMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo.uri is required")
		}
		return nil
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
}
