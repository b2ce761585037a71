// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package persister

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// boltBucket is the name of the BoltDB bucket that stores all scheduler
// paths. Keys are the slash-joined persister paths.
const boltBucket = "queue_scheduler"

// BoltPersister stores scheduler state in a single local BoltDB file. The
// file lock doubles as the exclusive scheduler lock on single-node setups.
type BoltPersister struct {
	db *bolt.DB
}

// NewBolt opens (or creates) the database file.
func NewBolt(path string) (*BoltPersister, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("unable to create state dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("unable to open state file %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create bucket: %w", err)
	}
	return &BoltPersister{db: db}, nil
}

// Get implements Persister#Get.
func (p *BoltPersister) Get(path string) ([]byte, error) {
	var value []byte
	err := p.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket([]byte(boltBucket)).Get([]byte(Join(path)))
		if stored == nil {
			return ErrNotFound
		}
		value = make([]byte, len(stored))
		copy(value, stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// GetMany implements Persister#GetMany in a single read transaction.
func (p *BoltPersister) GetMany(paths []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(paths))
	err := p.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		for _, path := range paths {
			stored := bucket.Get([]byte(Join(path)))
			if stored == nil {
				continue
			}
			value := make([]byte, len(stored))
			copy(value, stored)
			result[path] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Set implements Persister#Set.
func (p *BoltPersister) Set(path string, value []byte) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Put([]byte(Join(path)), value)
	})
}

// SetMany implements Persister#SetMany in one transaction.
func (p *BoltPersister) SetMany(values map[string][]byte) error {
	return p.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		for path, value := range values {
			if err := bucket.Put([]byte(Join(path)), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetChildren implements Persister#GetChildren by scanning the key range
// sharing the path prefix.
func (p *BoltPersister) GetChildren(path string) ([]string, error) {
	prefix := Join(path)
	seen := make(map[string]struct{})
	err := p.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket([]byte(boltBucket)).Cursor()
		scan := []byte("")
		if prefix != "" {
			scan = []byte(prefix + PathSeparator)
		}
		for k, _ := cursor.Seek(scan); k != nil && bytes.HasPrefix(k, scan); k, _ = cursor.Next() {
			rest := string(k[len(scan):])
			if rest == "" {
				continue
			}
			child := strings.SplitN(rest, PathSeparator, 2)[0]
			seen[child] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	children := make([]string, 0, len(seen))
	for child := range seen {
		children = append(children, child)
	}
	sort.Strings(children)
	return children, nil
}

// Delete implements Persister#Delete: the key and its whole prefix range are
// removed in one transaction. The subtree scan starts at `path/` rather than
// `path` so sibling keys sorting between the two (a hyphen sorts before the
// separator) never end the scan early.
func (p *BoltPersister) Delete(path string) error {
	prefix := Join(path)
	deleted := false
	err := p.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(boltBucket))
		if bucket.Get([]byte(prefix)) != nil {
			if err := bucket.Delete([]byte(prefix)); err != nil {
				return err
			}
			deleted = true
		}
		scan := []byte(prefix + PathSeparator)
		cursor := bucket.Cursor()
		var doomed [][]byte
		for k, _ := cursor.Seek(scan); k != nil && bytes.HasPrefix(k, scan); k, _ = cursor.Next() {
			doomed = append(doomed, append([]byte(nil), k...))
		}
		for _, k := range doomed {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			deleted = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// Close implements Persister#Close.
func (p *BoltPersister) Close() error {
	return p.db.Close()
}
