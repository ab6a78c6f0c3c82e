package store

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("store closed")

// Config configures the store.
//
// Driver values:
//   - "file": dependency-free file backend (snapshot + journal)
//   - "sqlite": SQLite database file (optional build tag)
//   - "redis": redis server (closest to the hosted KV the config tooling writes to)
//   - "memory": process-local map, state lost on restart
type Config struct {
	Driver string
	Path   string

	// redis only
	Addr     string
	Password string
	DB       int

	BusyTimeout time.Duration // sqlite only; 0 means default
}

// KV is the minimal persistence API used by the pipeline.
// Values are opaque strings; last write wins.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string) error
	Close() error
}
