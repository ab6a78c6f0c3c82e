// Package notify drives the change-detection and delivery pipeline: one
// scheduled invocation polls every enabled target, detects genuinely new
// items, and fans each one out to the tenant's delivery channels.
package notify

import (
	"sync/atomic"

	"stocknotify/internal/registry"
	"stocknotify/internal/sink"
	"stocknotify/internal/source"
	"stocknotify/internal/store"
	"stocknotify/internal/watch"
	logx "stocknotify/pkg/logx"
)

type Config struct {
	// Workers sizes the unit-of-work pool. 1 keeps strict sequential
	// processing; higher values are safe because every (target, kind)
	// pair appears at most once per run, so no dedup key is ever
	// checked-then-committed concurrently.
	Workers int
}

// Sinks is the set of wired delivery channels. A nil entry means the
// channel is not configured for this deployment.
type Sinks struct {
	Line     sink.Sink
	Webhook  sink.Sink
	Telegram sink.Sink
}

type Service struct {
	cfg      Config
	reg      *registry.Registry
	dedup    *store.Dedup
	adapters map[watch.SourceKind]source.Adapter
	sinks    Sinks
	log      logx.Logger

	// running guards against a trigger overlapping a still-active run,
	// which would break per-key check/commit ordering.
	running atomic.Bool
}

func New(cfg Config, reg *registry.Registry, dedup *store.Dedup, adapters []source.Adapter, sinks Sinks, log logx.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	byKind := make(map[watch.SourceKind]source.Adapter, len(adapters))
	for _, a := range adapters {
		byKind[a.Kind()] = a
	}
	return &Service{
		cfg:      cfg,
		reg:      reg,
		dedup:    dedup,
		adapters: byKind,
		sinks:    sinks,
		log:      log,
	}
}
