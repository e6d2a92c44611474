package cache

import (
	"context"
	"time"
)

// ConfirmedSet remembers signal identifiers that were already handled, so redelivered
// messages are dropped before they reach the database. Entries expire after ttl.
type ConfirmedSet struct {
	store Store
	ttl   time.Duration
}

func NewConfirmedSet(store Store, ttl time.Duration) *ConfirmedSet {
	return &ConfirmedSet{store: store, ttl: ttl}
}

// Seen reports whether id was confirmed and has not expired.
func (c *ConfirmedSet) Seen(ctx context.Context, id string) (bool, error) {
	_, found, err := c.store.Get(ctx, "confirmed:"+id)
	return found, err
}

// Confirm records id.
func (c *ConfirmedSet) Confirm(ctx context.Context, id string) error {
	return c.store.Set(ctx, "confirmed:"+id, []byte{1}, c.ttl)
}

// Forget drops id, for instance when its write was rolled back.
func (c *ConfirmedSet) Forget(ctx context.Context, id string) error {
	return c.store.Delete(ctx, "confirmed:"+id)
}
