package repository

import (
	"context"
	"fmt"

	"github.com/example/storefront/pkg/config"
)

// Open creates the Store selected by cfg.Store.Backend.
//
// Supported backends:
//
//	"mongo"  - MongoDB at cfg.MongoDB.URI (default)
//	"sql"    - MySQL through gorm, one documents table
//	"memory" - in-memory (ephemeral, for local runs and tests)
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Backend {
	case "mongo", "":
		return NewMongoStore(ctx, &cfg.MongoDB)
	case "sql":
		return OpenMySQLStore(&cfg.MySQL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q (supported: mongo, sql, memory)", cfg.Store.Backend)
	}
}
