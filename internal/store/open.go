package store

import (
	"errors"
	"strings"

	logx "stocknotify/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (KV, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	case "memory", "mem":
		return NewMem(), nil
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
