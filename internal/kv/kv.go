// Package kv defines the string key-value port the ledger persists through.
package kv

import (
	"context"
	"errors"

	"bilancio/internal/cache"
)

// Store reads and writes opaque string values by key.
type Store interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("kv store closed")

// ErrNotListable is returned when the underlying store cannot enumerate keys.
var ErrNotListable = errors.New("kv store cannot list keys")

// Cached is a read-through, write-through cache in front of another Store.
// Absent keys are not cached.
type Cached struct {
	inner Store
	cache cache.Cache[string]
}

func NewCached(inner Store, c cache.Cache[string]) *Cached {
	return &Cached{inner: inner, cache: c}
}

func (c *Cached) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok := c.cache.Get(key); ok {
		return v, true, nil
	}
	v, ok, err := c.inner.Get(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	c.cache.Set(key, v)
	return v, true, nil
}

// Keys delegates to the wrapped store when it can list keys.
func (c *Cached) Keys(ctx context.Context) ([]string, error) {
	l, ok := c.inner.(Lister)
	if !ok {
		return nil, ErrNotListable
	}
	return l.Keys(ctx)
}

func (c *Cached) Set(ctx context.Context, key, value string) error {
	if err := c.inner.Set(ctx, key, value); err != nil {
		c.cache.Delete(key)
		return err
	}
	c.cache.Set(key, value)
	return nil
}
