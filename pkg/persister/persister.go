// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package persister provides the namespaced key-value storage layer under
// the scheduler: framework id, task records, properties and submitted specs
// all live behind the Persister interface. Backends exist for ZooKeeper
// (production), BoltDB (single node), Consul and memory (tests).
package persister

import (
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when the path holds no value.
var ErrNotFound = errors.New("path not found")

// PathSeparator joins persister path segments. Backends translate it to
// whatever their native layout wants.
const PathSeparator = "/"

// Persister is a namespaced key-value store. Paths are slash-joined relative
// paths under the backend's configured root; an empty path addresses the
// root itself.
type Persister interface {
	// Get returns the value stored at the path, or ErrNotFound.
	Get(path string) ([]byte, error)
	// GetMany returns the values for all paths that exist. Missing paths are
	// simply absent from the result, they are not an error.
	GetMany(paths []string) (map[string][]byte, error)
	// Set stores a value, creating intermediate nodes as needed.
	Set(path string, value []byte) error
	// SetMany stores several values, as atomically as the backend allows.
	SetMany(values map[string][]byte) error
	// GetChildren lists the immediate child names under the path, sorted.
	// A path with no children, or no node at all, returns an empty slice.
	GetChildren(path string) ([]string, error)
	// Delete removes the path and everything beneath it. Deleting a missing
	// path returns ErrNotFound.
	Delete(path string) error
	// Close releases the backend connection.
	Close() error
}

// Join builds a persister path from segments, skipping empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, PathSeparator)
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, PathSeparator)
}

// Split returns the cleaned segments of a persister path.
func Split(path string) []string {
	trimmed := strings.Trim(path, PathSeparator)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, PathSeparator)
}
