// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package state exposes the per-namespace views every run (and the framework
// itself) gets over the persister: framework id, named properties and task
// records. The framework-level store uses the empty namespace and writes at
// the storage root.
package state

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/persister"
)

const (
	frameworkIDPath = "FrameworkID"
	propertiesPath  = "Properties"
	tasksPath       = "Tasks"
)

// TaskRecord is the persisted form of a launched task: enough to re-derive
// the reservations the task holds after a restart.
type TaskRecord struct {
	Name      string           `json:"name"`
	ID        mesos.TaskID     `json:"id"`
	State     mesos.TaskState  `json:"state"`
	AgentID   mesos.AgentID    `json:"agent_id,omitempty"`
	Resources []mesos.Resource `json:"resources,omitempty"`
}

// Store is a namespace-scoped view over the persister.
type Store struct {
	p         persister.Persister
	namespace string
}

// NewStore scopes a store to a namespace. The empty namespace addresses the
// framework-level state at the storage root.
func NewStore(p persister.Persister, namespace string) *Store {
	return &Store{p: p, namespace: namespace}
}

// Namespace returns the namespace the store is scoped to.
func (s *Store) Namespace() string {
	return s.namespace
}

func (s *Store) path(segments ...string) string {
	return persister.Join(append([]string{s.namespace}, segments...)...)
}

// StoreFrameworkID persists the framework id received on registration.
func (s *Store) StoreFrameworkID(id mesos.FrameworkID) error {
	return s.p.Set(s.path(frameworkIDPath), []byte(id))
}

// FetchFrameworkID returns the persisted framework id, or persister.ErrNotFound.
func (s *Store) FetchFrameworkID() (mesos.FrameworkID, error) {
	raw, err := s.p.Get(s.path(frameworkIDPath))
	if err != nil {
		return "", err
	}
	return mesos.FrameworkID(raw), nil
}

// ClearFrameworkID removes the persisted framework id. Used by the final
// stage of a framework uninstall so a reinstall registers from scratch.
func (s *Store) ClearFrameworkID() error {
	err := s.p.Delete(s.path(frameworkIDPath))
	if err == persister.ErrNotFound {
		return nil
	}
	return err
}

func validatePropertyName(name string) error {
	if name == "" {
		return fmt.Errorf("property name must not be empty")
	}
	if strings.Contains(name, persister.PathSeparator) {
		return fmt.Errorf("property name %q must not contain %q", name, persister.PathSeparator)
	}
	return nil
}

// StoreProperty persists an arbitrary named value in the namespace.
func (s *Store) StoreProperty(name string, value []byte) error {
	if err := validatePropertyName(name); err != nil {
		return err
	}
	return s.p.Set(s.path(propertiesPath, name), value)
}

// FetchProperty returns a named value, or persister.ErrNotFound.
func (s *Store) FetchProperty(name string) ([]byte, error) {
	if err := validatePropertyName(name); err != nil {
		return nil, err
	}
	return s.p.Get(s.path(propertiesPath, name))
}

// PropertyNames lists the properties stored in the namespace.
func (s *Store) PropertyNames() ([]string, error) {
	return s.p.GetChildren(s.path(propertiesPath))
}

// ClearProperty removes a named value. Missing properties are not an error.
func (s *Store) ClearProperty(name string) error {
	if err := validatePropertyName(name); err != nil {
		return err
	}
	err := s.p.Delete(s.path(propertiesPath, name))
	if err == persister.ErrNotFound {
		return nil
	}
	return err
}

// StoreTasks persists task records in one batch.
func (s *Store) StoreTasks(tasks []TaskRecord) error {
	values := make(map[string][]byte, len(tasks))
	for _, task := range tasks {
		if task.Name == "" {
			return fmt.Errorf("task record must carry a name")
		}
		encoded, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("unable to encode task %s: %w", task.Name, err)
		}
		values[s.path(tasksPath, task.Name)] = encoded
	}
	return s.p.SetMany(values)
}

// FetchTask returns one task record by name, or persister.ErrNotFound.
func (s *Store) FetchTask(name string) (TaskRecord, error) {
	raw, err := s.p.Get(s.path(tasksPath, name))
	if err != nil {
		return TaskRecord{}, err
	}
	var task TaskRecord
	if err := json.Unmarshal(raw, &task); err != nil {
		return TaskRecord{}, fmt.Errorf("unable to decode task %s: %w", name, err)
	}
	return task, nil
}

// TaskNames lists the stored task records, sorted.
func (s *Store) TaskNames() ([]string, error) {
	return s.p.GetChildren(s.path(tasksPath))
}

// FetchTasks returns every stored task record.
func (s *Store) FetchTasks() ([]TaskRecord, error) {
	names, err := s.TaskNames()
	if err != nil {
		return nil, err
	}
	tasks := make([]TaskRecord, 0, len(names))
	for _, name := range names {
		task, err := s.FetchTask(name)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// DeleteTask removes one task record. Missing records are not an error.
func (s *Store) DeleteTask(name string) error {
	err := s.p.Delete(s.path(tasksPath, name))
	if err == persister.ErrNotFound {
		return nil
	}
	return err
}

// Clear wipes the whole namespace. The terminal act of an uninstall.
func (s *Store) Clear() error {
	if s.namespace == "" {
		return fmt.Errorf("refusing to clear the storage root")
	}
	err := s.p.Delete(s.namespace)
	if err == persister.ErrNotFound {
		return nil
	}
	return err
}
