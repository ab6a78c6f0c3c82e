// Package watch holds the domain types of the monitoring pipeline: the
// targets being watched, the kinds of sources polled for them, and the
// items those sources produce.
package watch

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SourceKind is the category of signal polled for a target.
type SourceKind string

const (
	SourcePR SourceKind = "pr"
	SourceX  SourceKind = "x"
)

// Kinds lists all source kinds in processing order.
func Kinds() []SourceKind { return []SourceKind{SourcePR, SourceX} }

// Tag is the bracketed prefix used in rendered notifications.
func (k SourceKind) Tag() string {
	switch k {
	case SourcePR:
		return "PR"
	case SourceX:
		return "X"
	default:
		return strings.ToUpper(string(k))
	}
}

// Target is one monitored entity. Targets are created and updated outside
// this process; the pipeline only reads them.
type Target struct {
	TenantID    string `json:"tenant_id"`
	CompanyName string `json:"company_name"`
	PRURL       string `json:"pr_url"`
	TwitterID   string `json:"twitter_id"`
	XFeedURL    string `json:"x_feed_url"`
	LineUserID  string `json:"line_user_id"`
	Enabled     bool   `json:"enabled"`
}

// SourceURL returns the configured address for kind, or "" when the target
// does not carry that source.
func (t Target) SourceURL(kind SourceKind) string {
	switch kind {
	case SourcePR:
		return strings.TrimSpace(t.PRURL)
	case SourceX:
		return strings.TrimSpace(t.XFeedURL)
	default:
		return ""
	}
}

var errKeyUnsafe = errors.New("field must not contain ':'")

// Validate rejects targets that would corrupt dedup keys or that miss
// identity fields. Key components share the keyspace with a ':' separator,
// so a ':' inside tenant_id or company_name could collide two targets.
func (t Target) Validate() error {
	if strings.TrimSpace(t.TenantID) == "" {
		return errors.New("tenant_id is required")
	}
	if strings.TrimSpace(t.CompanyName) == "" {
		return errors.New("company_name is required")
	}
	if strings.Contains(t.TenantID, ":") {
		return fmt.Errorf("tenant_id %q: %w", t.TenantID, errKeyUnsafe)
	}
	if strings.Contains(t.CompanyName, ":") {
		return fmt.Errorf("company_name %q: %w", t.CompanyName, errKeyUnsafe)
	}
	return nil
}

// Item is one detected unit of news. ID prefers a source-provided unique id
// (RSS guid) and falls back to the item URL.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}
