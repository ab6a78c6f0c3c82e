package notify

import (
	"context"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"stocknotify/internal/registry"
	"stocknotify/internal/sink"
	"stocknotify/internal/watch"
	logx "stocknotify/pkg/logx"
)

// unit is the smallest independently failing task: one target, one source
// kind, one poll cycle.
type unit struct {
	target watch.Target
	kind   watch.SourceKind
	url    string
	tenant registry.TenantSinks
}

// Run executes one scheduled invocation. It never returns an error to the
// trigger: every failure mode inside the run is logged and contained.
func (s *Service) Run(ctx context.Context, trigger string) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("run skipped; previous run still in flight", logx.String("trigger", trigger))
		return
	}
	defer s.running.Store(false)

	log := s.log.With(logx.String("run", uuid.NewString()[:8]))
	start := time.Now()
	log.Info("run started", logx.String("trigger", trigger))

	defer func() {
		if r := recover(); r != nil {
			log.Error("run panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	targets := s.reg.ListTargets(ctx)
	tenants := s.reg.ListSinks(ctx)
	units := buildUnits(targets, tenants)
	log.Info("run loaded", logx.Int("targets", len(targets)), logx.Int("units", len(units)))

	s.processUnits(ctx, log, units)

	log.Info("run finished", logx.Duration("took", time.Since(start)))
}

// buildUnits expands enabled targets into (target, kind) units. Duplicate
// rows for the same pair collapse to one unit so a single run never races
// itself on a dedup key.
func buildUnits(targets []watch.Target, tenants map[string]registry.TenantSinks) []unit {
	var units []unit
	seen := map[string]struct{}{}
	for _, t := range targets {
		if !t.Enabled {
			continue
		}
		for _, kind := range watch.Kinds() {
			url := t.SourceURL(kind)
			if url == "" {
				continue
			}
			key := t.TenantID + ":" + t.CompanyName + ":" + string(kind)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			units = append(units, unit{target: t, kind: kind, url: url, tenant: tenants[t.TenantID]})
		}
	}
	return units
}

func (s *Service) processUnits(ctx context.Context, log logx.Logger, units []unit) {
	if len(units) == 0 {
		return
	}

	workers := s.cfg.Workers
	if workers > len(units) {
		workers = len(units)
	}

	queue := make(chan unit)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for u := range queue {
				s.processUnit(ctx, log, u)
			}
		}()
	}
	for _, u := range units {
		if ctx.Err() != nil {
			break
		}
		queue <- u
	}
	close(queue)
	wg.Wait()
}

// processUnit walks one unit through fetch -> dedup check -> deliver ->
// commit. Failure at any step ends the unit without touching its siblings.
func (s *Service) processUnit(ctx context.Context, log logx.Logger, u unit) {
	ulog := log.With(
		logx.String("tenant", u.target.TenantID),
		logx.String("company", u.target.CompanyName),
		logx.String("kind", string(u.kind)))

	defer func() {
		if r := recover(); r != nil {
			ulog.Error("unit panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	adapter, ok := s.adapters[u.kind]
	if !ok {
		ulog.Warn("no adapter for source kind")
		return
	}

	item, err := adapter.FetchLatest(ctx, u.url)
	if err != nil {
		ulog.Warn("fetch failed", logx.Err(err))
		return
	}
	if item == nil {
		return
	}

	fresh, err := s.dedup.IsNew(ctx, u.target.TenantID, u.target.CompanyName, u.kind, item.ID)
	if err != nil {
		ulog.Warn("dedup check failed", logx.Err(err))
		return
	}
	if !fresh {
		// Expected steady state: the head of the feed has not moved.
		ulog.Debug("item already seen", logx.String("item", item.ID))
		return
	}

	text := renderMessage(u.kind, u.target.CompanyName, item.Title, item.URL)
	s.dispatch(ctx, ulog, u, text)

	// Commit regardless of delivery outcome: the pipeline trades
	// "never re-notify" for guaranteed forward progress.
	if err := s.dedup.Commit(ctx, u.target.TenantID, u.target.CompanyName, u.kind, item.ID); err != nil {
		ulog.Error("dedup commit failed", logx.String("item", item.ID), logx.Err(err))
		return
	}
	ulog.Info("notification processed", logx.String("item", item.ID))
}

// dispatch fans the rendered message out to every resolved channel.
// Channel failures are logged per channel and never cross channels.
func (s *Service) dispatch(ctx context.Context, ulog logx.Logger, u unit, text string) {
	if s.sinks.Line != nil {
		if to := linePushAddr(u); to != "" {
			s.deliverOne(ctx, ulog, s.sinks.Line, text, []string{to})
		}
	}
	if s.sinks.Webhook != nil && len(u.tenant.WebhookURLs) > 0 {
		s.deliverOne(ctx, ulog, s.sinks.Webhook, text, u.tenant.WebhookURLs)
	}
	if s.sinks.Telegram != nil && len(u.tenant.TelegramChatIDs) > 0 {
		addrs := make([]string, 0, len(u.tenant.TelegramChatIDs))
		for _, id := range u.tenant.TelegramChatIDs {
			addrs = append(addrs, strconv.FormatInt(id, 10))
		}
		s.deliverOne(ctx, ulog, s.sinks.Telegram, text, addrs)
	}
}

func (s *Service) deliverOne(ctx context.Context, ulog logx.Logger, sk sink.Sink, text string, addrs []string) {
	ds := sk.Deliver(ctx, text, addrs)
	if failed := sink.Failed(ds); failed > 0 {
		ulog.Warn("channel delivery incomplete",
			logx.String("channel", string(sk.Kind())),
			logx.Int("failed", failed),
			logx.Int("total", len(ds)))
		return
	}
	ulog.Debug("channel delivered",
		logx.String("channel", string(sk.Kind())),
		logx.Int("total", len(ds)))
}

// linePushAddr resolves the push recipient: the target's own user id wins,
// otherwise the tenant-level default from the line sink row.
func linePushAddr(u unit) string {
	if u.target.LineUserID != "" {
		return u.target.LineUserID
	}
	return u.tenant.LineDefaultUser
}

func renderMessage(kind watch.SourceKind, company, title, url string) string {
	return "[" + kind.Tag() + "] " + company + "\n" + title + "\n" + url
}
