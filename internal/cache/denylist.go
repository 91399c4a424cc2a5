package cache

import (
	"context"
	"time"
)

// Denylist records revoked token ids until the token would have expired anyway.
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

const denylistKeyPrefix = "auth:denylist:"

func denylistKey(jti string) string {
	return denylistKeyPrefix + jti
}

// MemoryDenylist keeps revocations in process. Revocations are lost on restart
// and are not shared between replicas; use RedisDenylist for that.
type MemoryDenylist struct {
	c *Cache
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{c: New()}
}

func (d *MemoryDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	d.c.SetUntil(denylistKey(jti), struct{}{}, until)
	return nil
}

func (d *MemoryDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, ok := d.c.Get(denylistKey(jti))
	return ok, nil
}

// Sweep drops revocations for tokens that have expired.
func (d *MemoryDenylist) Sweep() int {
	return d.c.Sweep()
}
