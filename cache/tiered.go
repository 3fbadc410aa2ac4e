package cache

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Tiered reads through a fast front store to a slower back store. Back hits
// are copied into the front. Writes go to both.
type Tiered struct {
	front Store
	back  Store

	hits   atomic.Int64
	misses atomic.Int64
}

// NewTiered layers front over back. Closing the Tiered closes both.
func NewTiered(front, back Store) *Tiered {
	return &Tiered{front: front, back: back}
}

// Get checks front, then back. A front read failure is returned without
// consulting back. A back hit that cannot be promoted is returned with
// ok set and the promotion error.
func (t *Tiered) Get(ctx context.Context, key Key) ([]byte, bool, error) {
	v, ok, err := t.front.Get(ctx, key)
	if err != nil {
		return nil, false, errors.Wrap(err, "front tier")
	}
	if ok {
		t.hits.Add(1)
		return v, true, nil
	}
	v, ok, err = t.back.Get(ctx, key)
	if err != nil {
		return nil, false, errors.Wrap(err, "back tier")
	}
	if !ok {
		t.misses.Add(1)
		return nil, false, nil
	}
	t.hits.Add(1)
	if err := t.front.Put(ctx, key, v); err != nil {
		return v, true, errors.Wrap(err, "promote to front tier")
	}
	return v, true, nil
}

// Put writes to back first, then front.
func (t *Tiered) Put(ctx context.Context, key Key, value []byte) error {
	if err := t.back.Put(ctx, key, value); err != nil {
		return err
	}
	return t.front.Put(ctx, key, value)
}

// Stats counts a hit in either tier as a hit.
func (t *Tiered) Stats() Stats {
	return Stats{Hits: t.hits.Load(), Misses: t.misses.Load()}
}

// Close closes both tiers.
func (t *Tiered) Close() error {
	return errors.CombineErrors(t.front.Close(), t.back.Close())
}
