package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stocknotify/internal/registry"
	"stocknotify/internal/sink"
	"stocknotify/internal/source"
	"stocknotify/internal/store"
	"stocknotify/internal/watch"
	logx "stocknotify/pkg/logx"
)

// fakeAdapter serves canned results keyed by feed URL.
type fakeAdapter struct {
	kind watch.SourceKind

	mu    sync.Mutex
	items map[string]*watch.Item
	errs  map[string]error
	block chan struct{}
}

func (f *fakeAdapter) Kind() watch.SourceKind { return f.kind }

func (f *fakeAdapter) FetchLatest(ctx context.Context, url string) (*watch.Item, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return f.items[url], nil
}

type call struct {
	Text  string
	Addrs []string
}

// fakeSink records every delivery; fail marks all addresses as failed.
type fakeSink struct {
	kind sink.Kind
	fail bool

	mu    sync.Mutex
	calls []call
}

func (f *fakeSink) Kind() sink.Kind { return f.kind }

func (f *fakeSink) Deliver(ctx context.Context, text string, addrs []string) []sink.Delivery {
	f.mu.Lock()
	f.calls = append(f.calls, call{Text: text, Addrs: append([]string(nil), addrs...)})
	f.mu.Unlock()
	out := make([]sink.Delivery, len(addrs))
	for i, a := range addrs {
		out[i] = sink.Delivery{Addr: a}
		if f.fail {
			out[i].Err = errors.New("delivery refused")
		}
	}
	return out
}

func (f *fakeSink) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func seedRegistry(t *testing.T, kv store.KV, targets, sinks string) *registry.Registry {
	t.Helper()
	ctx := context.Background()
	if targets != "" {
		if err := kv.Put(ctx, "targets:active", targets); err != nil {
			t.Fatal(err)
		}
	}
	if sinks != "" {
		if err := kv.Put(ctx, "sinks:active", sinks); err != nil {
			t.Fatal(err)
		}
	}
	return registry.New(kv, logx.Nop())
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	kv := store.NewMem()
	reg := seedRegistry(t, kv,
		`[{"tenant_id":"t1","company_name":"Acme","pr_url":"https://acme.example/feed.xml","line_user_id":"U123","enabled":true}]`,
		`[
			{"tenant_id":"t1","type":"line","enabled":true,"config":{}},
			{"tenant_id":"t1","type":"webhook","enabled":true,"config":{"webhook_urls":["https://hooks.example/a"]}}
		]`)

	adapter := &fakeAdapter{
		kind: watch.SourcePR,
		items: map[string]*watch.Item{
			"https://acme.example/feed.xml": {
				ID:    "42",
				Title: "Acme raises funding",
				URL:   "https://acme.example/news/42",
			},
		},
	}
	line := &fakeSink{kind: sink.KindLine}
	hook := &fakeSink{kind: sink.KindWebhook}

	svc := New(Config{}, reg, store.NewDedup(kv),
		[]source.Adapter{adapter},
		Sinks{Line: line, Webhook: hook}, logx.Nop())

	svc.Run(context.Background(), "test")

	wantText := "[PR] Acme\nAcme raises funding\nhttps://acme.example/news/42"

	lineCalls := line.recorded()
	if len(lineCalls) != 1 {
		t.Fatalf("line calls = %d, want 1", len(lineCalls))
	}
	if lineCalls[0].Text != wantText {
		t.Fatalf("line text = %q, want %q", lineCalls[0].Text, wantText)
	}
	if len(lineCalls[0].Addrs) != 1 || lineCalls[0].Addrs[0] != "U123" {
		t.Fatalf("line addrs = %v, want [U123]", lineCalls[0].Addrs)
	}

	hookCalls := hook.recorded()
	if len(hookCalls) != 1 || len(hookCalls[0].Addrs) != 1 || hookCalls[0].Addrs[0] != "https://hooks.example/a" {
		t.Fatalf("webhook calls = %+v", hookCalls)
	}

	got, ok, err := kv.Get(context.Background(), "state:t1:Acme:pr")
	if err != nil || !ok {
		t.Fatalf("dedup record missing: ok=%v err=%v", ok, err)
	}
	if got != "42" {
		t.Fatalf("dedup record = %q, want %q", got, "42")
	}

	// A second run over an unchanged feed must be silent.
	svc.Run(context.Background(), "test")
	if n := len(line.recorded()); n != 1 {
		t.Fatalf("line calls after second run = %d, want 1", n)
	}
	if n := len(hook.recorded()); n != 1 {
		t.Fatalf("webhook calls after second run = %d, want 1", n)
	}
}

func TestRunUnitIsolation(t *testing.T) {
	t.Parallel()

	kv := store.NewMem()
	reg := seedRegistry(t, kv,
		`[
			{"tenant_id":"t1","company_name":"Alpha","pr_url":"https://alpha.example/feed.xml","enabled":true},
			{"tenant_id":"t1","company_name":"Beta","pr_url":"https://beta.example/feed.xml","enabled":true}
		]`,
		`[{"tenant_id":"t1","type":"webhook","enabled":true,"config":{"webhook_urls":["https://hooks.example/a"]}}]`)

	adapter := &fakeAdapter{
		kind: watch.SourcePR,
		errs: map[string]error{
			"https://alpha.example/feed.xml": errors.New("connection refused"),
		},
		items: map[string]*watch.Item{
			"https://beta.example/feed.xml": {ID: "b-1", Title: "Beta news", URL: "https://beta.example/news/1"},
		},
	}
	hook := &fakeSink{kind: sink.KindWebhook}

	svc := New(Config{}, reg, store.NewDedup(kv),
		[]source.Adapter{adapter}, Sinks{Webhook: hook}, logx.Nop())

	svc.Run(context.Background(), "test")

	calls := hook.recorded()
	if len(calls) != 1 {
		t.Fatalf("webhook calls = %d, want the healthy target only", len(calls))
	}
	if calls[0].Text != "[PR] Beta\nBeta news\nhttps://beta.example/news/1" {
		t.Fatalf("text = %q", calls[0].Text)
	}

	if _, ok, _ := kv.Get(context.Background(), "state:t1:Beta:pr"); !ok {
		t.Fatal("healthy target must be committed")
	}
	if _, ok, _ := kv.Get(context.Background(), "state:t1:Alpha:pr"); ok {
		t.Fatal("failed fetch must not be committed")
	}
}

func TestRunCommitsDespiteSinkFailure(t *testing.T) {
	t.Parallel()

	kv := store.NewMem()
	reg := seedRegistry(t, kv,
		`[{"tenant_id":"t1","company_name":"Acme","pr_url":"https://acme.example/feed.xml","enabled":true}]`,
		`[{"tenant_id":"t1","type":"webhook","enabled":true,"config":{"webhook_urls":["https://hooks.example/a"]}}]`)

	adapter := &fakeAdapter{
		kind: watch.SourcePR,
		items: map[string]*watch.Item{
			"https://acme.example/feed.xml": {ID: "7", Title: "T", URL: "https://acme.example/7"},
		},
	}
	hook := &fakeSink{kind: sink.KindWebhook, fail: true}

	svc := New(Config{}, reg, store.NewDedup(kv),
		[]source.Adapter{adapter}, Sinks{Webhook: hook}, logx.Nop())

	svc.Run(context.Background(), "test")

	got, ok, _ := kv.Get(context.Background(), "state:t1:Acme:pr")
	if !ok || got != "7" {
		t.Fatalf("dedup record = %q ok=%v, want committed despite failed delivery", got, ok)
	}

	// No second delivery attempt for the same item.
	svc.Run(context.Background(), "test")
	if n := len(hook.recorded()); n != 1 {
		t.Fatalf("webhook calls = %d, want 1", n)
	}
}

func TestRunTenantWithoutAddresses(t *testing.T) {
	t.Parallel()

	kv := store.NewMem()
	reg := seedRegistry(t, kv,
		`[{"tenant_id":"t1","company_name":"Acme","pr_url":"https://acme.example/feed.xml","enabled":true}]`,
		"")

	adapter := &fakeAdapter{
		kind: watch.SourcePR,
		items: map[string]*watch.Item{
			"https://acme.example/feed.xml": {ID: "9", Title: "T", URL: "https://acme.example/9"},
		},
	}
	line := &fakeSink{kind: sink.KindLine}
	hook := &fakeSink{kind: sink.KindWebhook}

	svc := New(Config{}, reg, store.NewDedup(kv),
		[]source.Adapter{adapter}, Sinks{Line: line, Webhook: hook}, logx.Nop())

	svc.Run(context.Background(), "test")

	if n := len(line.recorded()); n != 0 {
		t.Fatalf("line calls = %d, want none without a push address", n)
	}
	if n := len(hook.recorded()); n != 0 {
		t.Fatalf("webhook calls = %d, want none without endpoints", n)
	}
	// The item is still consumed so it does not fire later when a sink
	// binding appears.
	if _, ok, _ := kv.Get(context.Background(), "state:t1:Acme:pr"); !ok {
		t.Fatal("item must be committed even with no channels bound")
	}
}

func TestRunSkipsDisabledTargets(t *testing.T) {
	t.Parallel()

	kv := store.NewMem()
	reg := seedRegistry(t, kv,
		`[{"tenant_id":"t1","company_name":"Acme","pr_url":"https://acme.example/feed.xml","enabled":false}]`,
		`[{"tenant_id":"t1","type":"webhook","enabled":true,"config":{"webhook_urls":["https://hooks.example/a"]}}]`)

	adapter := &fakeAdapter{
		kind: watch.SourcePR,
		items: map[string]*watch.Item{
			"https://acme.example/feed.xml": {ID: "1", Title: "T", URL: "https://acme.example/1"},
		},
	}
	hook := &fakeSink{kind: sink.KindWebhook}

	svc := New(Config{}, reg, store.NewDedup(kv),
		[]source.Adapter{adapter}, Sinks{Webhook: hook}, logx.Nop())

	svc.Run(context.Background(), "test")

	if n := len(hook.recorded()); n != 0 {
		t.Fatalf("webhook calls = %d, want none for a disabled target", n)
	}
}

func TestRunOverlapGuard(t *testing.T) {
	t.Parallel()

	kv := store.NewMem()
	reg := seedRegistry(t, kv,
		`[{"tenant_id":"t1","company_name":"Acme","pr_url":"https://acme.example/feed.xml","enabled":true}]`,
		"")

	release := make(chan struct{})
	adapter := &fakeAdapter{kind: watch.SourcePR, block: release}

	svc := New(Config{}, reg, store.NewDedup(kv),
		[]source.Adapter{adapter}, Sinks{}, logx.Nop())

	done := make(chan struct{})
	go func() {
		svc.Run(context.Background(), "cron")
		close(done)
	}()

	// Wait until the first run is inside the adapter, then fire a second
	// trigger; it must return without blocking.
	for !svc.running.Load() {
		time.Sleep(time.Millisecond)
	}
	svc.Run(context.Background(), "manual")
	if !svc.running.Load() {
		t.Fatal("first run should still be in flight")
	}

	close(release)
	<-done
}
