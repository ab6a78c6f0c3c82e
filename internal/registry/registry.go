// Package registry reads monitoring targets and delivery-sink bindings from
// the KV store. External tooling writes both records; this process only
// reads them, whole, on every run.
//
// Load failures degrade to an empty result with a warning. A run over zero
// targets is a no-op; an aborted run would be an outage.
package registry

import (
	"context"
	"encoding/json"
	"strings"

	"stocknotify/internal/store"
	"stocknotify/internal/watch"
	logx "stocknotify/pkg/logx"
)

const (
	keyTargets = "targets:active"
	keySinks   = "sinks:active"
)

// SinkType is an open set; unknown types are skipped, not rejected, so newer
// tooling can stage sink kinds this binary does not support yet.
type SinkType string

const (
	SinkLine     SinkType = "line"
	SinkWebhook  SinkType = "webhook"
	SinkTelegram SinkType = "telegram"
)

// sinkRow is the wire shape of one sink binding. The channel-specific blob
// arrives either inline ("config") or as an encoded string ("config_json",
// the older tooling format).
type sinkRow struct {
	TenantID   string          `json:"tenant_id"`
	Type       SinkType        `json:"type"`
	Enabled    bool            `json:"enabled"`
	Config     json.RawMessage `json:"config,omitempty"`
	ConfigJSON string          `json:"config_json,omitempty"`
}

type webhookConfig struct {
	WebhookURLs []string `json:"webhook_urls"`
}

type lineConfig struct {
	DefaultUser string `json:"default_user"`
}

type telegramConfig struct {
	ChatIDs []int64 `json:"chat_ids"`
}

// TenantSinks is the resolved, typed delivery configuration of one tenant.
// Address lists are unioned across that tenant's enabled rows.
type TenantSinks struct {
	LineEnabled     bool
	LineDefaultUser string
	WebhookURLs     []string
	TelegramChatIDs []int64
}

type Registry struct {
	kv  store.KV
	log logx.Logger
}

func New(kv store.KV, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{kv: kv, log: log}
}

// ListTargets returns all valid targets, enabled or not. Missing or
// malformed data yields an empty slice, never an error.
func (r *Registry) ListTargets(ctx context.Context) []watch.Target {
	raw, ok, err := r.kv.Get(ctx, keyTargets)
	if err != nil {
		r.log.Warn("target list unavailable", logx.Err(err))
		return nil
	}
	if !ok || strings.TrimSpace(raw) == "" {
		r.log.Warn("no targets configured", logx.String("key", keyTargets))
		return nil
	}

	var all []watch.Target
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		r.log.Warn("target list malformed", logx.String("key", keyTargets), logx.Err(err))
		return nil
	}

	out := all[:0]
	for _, t := range all {
		if err := t.Validate(); err != nil {
			r.log.Warn("target rejected",
				logx.String("tenant", t.TenantID),
				logx.String("company", t.CompanyName),
				logx.Err(err))
			continue
		}
		out = append(out, t)
	}
	return out
}

// ListSinks resolves the enabled sink rows into per-tenant typed
// configuration. Rows that are disabled, of unknown type, or carrying an
// undecodable config blob are skipped with a warning.
func (r *Registry) ListSinks(ctx context.Context) map[string]TenantSinks {
	raw, ok, err := r.kv.Get(ctx, keySinks)
	if err != nil {
		r.log.Warn("sink list unavailable", logx.Err(err))
		return map[string]TenantSinks{}
	}
	if !ok || strings.TrimSpace(raw) == "" {
		r.log.Warn("no sinks configured", logx.String("key", keySinks))
		return map[string]TenantSinks{}
	}

	var rows []sinkRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		r.log.Warn("sink list malformed", logx.String("key", keySinks), logx.Err(err))
		return map[string]TenantSinks{}
	}

	out := map[string]TenantSinks{}
	for _, row := range rows {
		if !row.Enabled || strings.TrimSpace(row.TenantID) == "" {
			continue
		}
		blob := row.blob()
		ts := out[row.TenantID]
		switch row.Type {
		case SinkLine:
			var c lineConfig
			if len(blob) > 0 {
				if err := json.Unmarshal(blob, &c); err != nil {
					r.warnRow(row, err)
					continue
				}
			}
			ts.LineEnabled = true
			if c.DefaultUser != "" {
				ts.LineDefaultUser = c.DefaultUser
			}
		case SinkWebhook, "discord": // "discord" is the legacy name for the webhook broadcast
			var c webhookConfig
			if err := json.Unmarshal(blob, &c); err != nil {
				r.warnRow(row, err)
				continue
			}
			for _, u := range c.WebhookURLs {
				if strings.TrimSpace(u) != "" {
					ts.WebhookURLs = append(ts.WebhookURLs, u)
				}
			}
		case SinkTelegram:
			var c telegramConfig
			if err := json.Unmarshal(blob, &c); err != nil {
				r.warnRow(row, err)
				continue
			}
			ts.TelegramChatIDs = append(ts.TelegramChatIDs, c.ChatIDs...)
		default:
			r.log.Warn("sink type unsupported",
				logx.String("tenant", row.TenantID),
				logx.String("type", string(row.Type)))
			continue
		}
		out[row.TenantID] = ts
	}
	return out
}

func (row sinkRow) blob() json.RawMessage {
	if len(row.Config) > 0 {
		return row.Config
	}
	if s := strings.TrimSpace(row.ConfigJSON); s != "" {
		return json.RawMessage(s)
	}
	return nil
}

func (r *Registry) warnRow(row sinkRow, err error) {
	r.log.Warn("sink config undecodable",
		logx.String("tenant", row.TenantID),
		logx.String("type", string(row.Type)),
		logx.Err(err))
}
