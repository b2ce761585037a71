// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package state

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/DataDog/queue-scheduler/pkg/persister"
)

const (
	configurationsPath = "Configurations"
	configTargetPath   = "ConfigTarget"
)

// ConfigStore keeps the versioned service configurations of one run and the
// pointer to the one currently being deployed. Configurations are immutable
// once stored; rollouts move the target pointer.
type ConfigStore struct {
	p         persister.Persister
	namespace string
}

// NewConfigStore scopes a config store to a run's namespace.
func NewConfigStore(p persister.Persister, namespace string) *ConfigStore {
	return &ConfigStore{p: p, namespace: namespace}
}

func (c *ConfigStore) path(segments ...string) string {
	return persister.Join(append([]string{c.namespace}, segments...)...)
}

// StoreConfig persists a configuration under a fresh id and returns the id.
func (c *ConfigStore) StoreConfig(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to store an empty configuration")
	}
	id := uuid.NewString()
	if err := c.p.Set(c.path(configurationsPath, id), data); err != nil {
		return "", err
	}
	return id, nil
}

// FetchConfig returns a stored configuration, or persister.ErrNotFound.
func (c *ConfigStore) FetchConfig(id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("configuration id must not be empty")
	}
	return c.p.Get(c.path(configurationsPath, id))
}

// ConfigIDs lists the stored configuration ids, sorted.
func (c *ConfigStore) ConfigIDs() ([]string, error) {
	return c.p.GetChildren(c.path(configurationsPath))
}

// SetTargetConfig points the run at the configuration to deploy. The
// configuration must have been stored first.
func (c *ConfigStore) SetTargetConfig(id string) error {
	if _, err := c.FetchConfig(id); err != nil {
		if err == persister.ErrNotFound {
			return fmt.Errorf("configuration %s is not stored, refusing to target it", id)
		}
		return err
	}
	return c.p.Set(c.path(configTargetPath), []byte(id))
}

// TargetConfig returns the id of the configuration currently being deployed,
// or persister.ErrNotFound when no target was ever set.
func (c *ConfigStore) TargetConfig() (string, error) {
	raw, err := c.p.Get(c.path(configTargetPath))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ClearConfig removes one stored configuration. Removing the current target
// is rejected; missing configurations are not an error.
func (c *ConfigStore) ClearConfig(id string) error {
	if id == "" {
		return fmt.Errorf("configuration id must not be empty")
	}
	target, err := c.TargetConfig()
	if err != nil && err != persister.ErrNotFound {
		return err
	}
	if err == nil && target == id {
		return fmt.Errorf("configuration %s is the deploy target, refusing to remove it", id)
	}
	err = c.p.Delete(c.path(configurationsPath, id))
	if err == persister.ErrNotFound {
		return nil
	}
	return err
}
