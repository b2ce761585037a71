// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package persister

import (
	"strings"

	gocache "github.com/patrickmn/go-cache"
)

// CachedPersister is a write-through value cache over another persister.
// The offer path reads the same handful of paths (expected resources,
// properties) on every batch; caching spares the storage round trips.
// Listings and deletes always hit the backend.
type CachedPersister struct {
	inner Persister
	cache *gocache.Cache
}

// NewCached wraps a persister with a value cache.
func NewCached(inner Persister) *CachedPersister {
	return &CachedPersister{
		inner: inner,
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Get implements Persister#Get, filling the cache on miss.
func (c *CachedPersister) Get(path string) ([]byte, error) {
	key := Join(path)
	if value, ok := c.cache.Get(key); ok {
		return value.([]byte), nil
	}
	value, err := c.inner.Get(path)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, value, gocache.NoExpiration)
	return value, nil
}

// GetMany implements Persister#GetMany. Cached paths are served locally and
// only the misses are batched to the backend.
func (c *CachedPersister) GetMany(paths []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(paths))
	var misses []string
	for _, path := range paths {
		if value, ok := c.cache.Get(Join(path)); ok {
			result[path] = value.([]byte)
			continue
		}
		misses = append(misses, path)
	}
	if len(misses) == 0 {
		return result, nil
	}
	fetched, err := c.inner.GetMany(misses)
	if err != nil {
		return nil, err
	}
	for path, value := range fetched {
		c.cache.Set(Join(path), value, gocache.NoExpiration)
		result[path] = value
	}
	return result, nil
}

// Set implements Persister#Set, writing through before caching.
func (c *CachedPersister) Set(path string, value []byte) error {
	if err := c.inner.Set(path, value); err != nil {
		return err
	}
	c.cache.Set(Join(path), value, gocache.NoExpiration)
	return nil
}

// SetMany implements Persister#SetMany, writing through before caching.
func (c *CachedPersister) SetMany(values map[string][]byte) error {
	if err := c.inner.SetMany(values); err != nil {
		return err
	}
	for path, value := range values {
		c.cache.Set(Join(path), value, gocache.NoExpiration)
	}
	return nil
}

// GetChildren implements Persister#GetChildren, always from the backend.
func (c *CachedPersister) GetChildren(path string) ([]string, error) {
	return c.inner.GetChildren(path)
}

// Delete implements Persister#Delete and drops every cached value under the
// deleted subtree, even when the backend reports the path missing.
func (c *CachedPersister) Delete(path string) error {
	err := c.inner.Delete(path)
	prefix := Join(path)
	for key := range c.cache.Items() {
		if key == prefix || strings.HasPrefix(key, prefix+PathSeparator) {
			c.cache.Delete(key)
		}
	}
	return err
}

// Close implements Persister#Close.
func (c *CachedPersister) Close() error {
	return c.inner.Close()
}
