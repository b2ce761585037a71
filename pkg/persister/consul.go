// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package persister

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	consul "github.com/hashicorp/consul/api"
)

// ConsulPersister stores scheduler state in the Consul KV store beneath a
// fixed key prefix.
type ConsulPersister struct {
	kv     *consul.KV
	client *consul.Client
	root   string
}

// NewConsul builds a persister against the given Consul agent.
func NewConsul(address, datacenter, root string) (*ConsulPersister, error) {
	conf := consul.DefaultConfig()
	if address != "" {
		conf.Address = address
	}
	if datacenter != "" {
		conf.Datacenter = datacenter
	}
	client, err := consul.NewClient(conf)
	if err != nil {
		return nil, fmt.Errorf("unable to build consul client: %w", err)
	}
	return &ConsulPersister{
		kv:     client.KV(),
		client: client,
		root:   strings.Trim(root, "/"),
	}, nil
}

// consul keys never start with a slash
func (p *ConsulPersister) key(path string) string {
	return Join(p.root, path)
}

// Get implements Persister#Get.
func (p *ConsulPersister) Get(path string) ([]byte, error) {
	pair, _, err := p.kv.Get(p.key(path), nil)
	if err != nil {
		return nil, fmt.Errorf("consul get %s: %w", path, err)
	}
	if pair == nil {
		return nil, ErrNotFound
	}
	return pair.Value, nil
}

// GetMany implements Persister#GetMany.
func (p *ConsulPersister) GetMany(paths []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(paths))
	for _, path := range paths {
		value, err := p.Get(path)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[path] = value
	}
	return result, nil
}

// Set implements Persister#Set.
func (p *ConsulPersister) Set(path string, value []byte) error {
	_, err := p.kv.Put(&consul.KVPair{Key: p.key(path), Value: value}, nil)
	if err != nil {
		return fmt.Errorf("consul put %s: %w", path, err)
	}
	return nil
}

// SetMany implements Persister#SetMany as a single KV transaction.
func (p *ConsulPersister) SetMany(values map[string][]byte) error {
	ops := make(consul.KVTxnOps, 0, len(values))
	paths := make([]string, 0, len(values))
	for path := range values {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		ops = append(ops, &consul.KVTxnOp{
			Verb:  consul.KVSet,
			Key:   p.key(path),
			Value: values[path],
		})
	}
	ok, _, _, err := p.kv.Txn(ops, nil)
	if err != nil {
		return fmt.Errorf("consul txn of %d keys: %w", len(ops), err)
	}
	if !ok {
		return fmt.Errorf("consul txn of %d keys was rolled back", len(ops))
	}
	return nil
}

// GetChildren implements Persister#GetChildren via a prefix listing.
func (p *ConsulPersister) GetChildren(path string) ([]string, error) {
	prefix := p.key(path)
	if prefix != "" {
		prefix += PathSeparator
	}
	keys, _, err := p.kv.Keys(prefix, "", nil)
	if err != nil {
		return nil, fmt.Errorf("consul keys %s: %w", path, err)
	}
	seen := make(map[string]struct{})
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		if rest == "" {
			continue
		}
		child := strings.SplitN(rest, PathSeparator, 2)[0]
		seen[child] = struct{}{}
	}
	children := make([]string, 0, len(seen))
	for child := range seen {
		children = append(children, child)
	}
	sort.Strings(children)
	return children, nil
}

// Delete implements Persister#Delete with a tree delete. The listing is
// filtered on exact path boundaries so `Specs` never matches `SpecsOld`.
func (p *ConsulPersister) Delete(path string) error {
	key := p.key(path)
	pairs, _, err := p.kv.List(key, nil)
	if err != nil {
		return fmt.Errorf("consul list %s: %w", path, err)
	}
	matched := false
	for _, pair := range pairs {
		if pair.Key == key || strings.HasPrefix(pair.Key, key+PathSeparator) {
			matched = true
			break
		}
	}
	if !matched {
		return ErrNotFound
	}
	if _, err := p.kv.DeleteTree(key+PathSeparator, nil); err != nil {
		return fmt.Errorf("consul delete tree %s: %w", path, err)
	}
	if _, err := p.kv.Delete(key, nil); err != nil {
		return fmt.Errorf("consul delete %s: %w", path, err)
	}
	return nil
}

// NewLock prepares a session-backed exclusive lock on the scheduler's lock
// key beneath the storage root. Acquisition and release are the caller's job.
func (p *ConsulPersister) NewLock() (*consul.Lock, error) {
	return p.client.LockKey(p.key(LockNode))
}

// Close implements Persister#Close. The consul client holds no connection.
func (p *ConsulPersister) Close() error {
	return nil
}
