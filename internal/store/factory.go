package store

import (
	"fmt"

	"github.com/avtomon/wsChat/internal/config"
)

// New opens the store selected by cfg.Driver. An empty driver means SQLite.
func New(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres":
		return NewPostgres(cfg.DSN)
	}
	return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
}
