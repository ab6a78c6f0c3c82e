package store

import (
	"context"

	"stocknotify/internal/watch"
)

// Dedup tracks the last delivered item id per (tenant, company, source kind).
//
// Key components are validated separator-free at the configuration boundary
// (watch.Target.Validate), so plain concatenation cannot collide.
type Dedup struct {
	kv KV
}

func NewDedup(kv KV) *Dedup { return &Dedup{kv: kv} }

func dedupKey(tenantID, companyName string, kind watch.SourceKind) string {
	return "state:" + tenantID + ":" + companyName + ":" + string(kind)
}

// IsNew reports whether itemID differs from the last committed id for the
// key. A key with no record yet is always new: the first item sighted for a
// fresh target is notified, not silently absorbed.
func (d *Dedup) IsNew(ctx context.Context, tenantID, companyName string, kind watch.SourceKind, itemID string) (bool, error) {
	last, ok, err := d.kv.Get(ctx, dedupKey(tenantID, companyName, kind))
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return last != itemID, nil
}

// Commit unconditionally overwrites the stored id for the key.
func (d *Dedup) Commit(ctx context.Context, tenantID, companyName string, kind watch.SourceKind, itemID string) error {
	return d.kv.Put(ctx, dedupKey(tenantID, companyName, kind), itemID)
}
