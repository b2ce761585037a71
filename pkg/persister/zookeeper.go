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
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/samuel/go-zookeeper/zk"

	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

const (
	zkRetryAttempts = 4
	zkRetryDelay    = 250 * time.Millisecond
)

// ZooKeeperPersister stores scheduler state in a ZooKeeper ensemble beneath
// a fixed root znode. This is the production backend: every run's namespace,
// the spec records and the framework id live here.
type ZooKeeperPersister struct {
	conn *zk.Conn
	root string
	acl  []zk.ACL
}

// NewZooKeeper connects to the ensemble and ensures the root znode exists.
func NewZooKeeper(servers []string, sessionTimeout time.Duration, root string) (*ZooKeeperPersister, error) {
	if !strings.HasPrefix(root, "/") {
		return nil, fmt.Errorf("zookeeper root %q must be absolute", root)
	}
	conn, events, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to zookeeper %v: %w", servers, err)
	}

	p := &ZooKeeperPersister{
		conn: conn,
		root: strings.TrimRight(root, "/"),
		acl:  zk.WorldACL(zk.PermAll),
	}
	go p.watchSession(events)

	if err := p.ensurePath(p.root); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to create root %s: %w", p.root, err)
	}
	return p, nil
}

func (p *ZooKeeperPersister) watchSession(events <-chan zk.Event) {
	for event := range events {
		switch event.State {
		case zk.StateHasSession:
			log.Infof("ZooKeeper session established (server: %s)", event.Server)
		case zk.StateDisconnected:
			log.Warnf("ZooKeeper session disconnected")
		default:
			log.Debugf("ZooKeeper event: %v", event)
		}
	}
}

func (p *ZooKeeperPersister) absPath(path string) string {
	joined := Join(path)
	if joined == "" {
		return p.root
	}
	return p.root + "/" + joined
}

// isTransientZK reports whether the operation is worth retrying: the client
// reconnects on its own after connection loss.
func isTransientZK(err error) bool {
	return errors.Is(err, zk.ErrConnectionClosed) ||
		errors.Is(err, zk.ErrSessionExpired) ||
		errors.Is(err, zk.ErrSessionMoved) ||
		errors.Is(err, zk.ErrNoServer)
}

func (p *ZooKeeperPersister) withRetry(op string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Attempts(zkRetryAttempts),
		retry.Delay(zkRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransientZK),
		retry.OnRetry(func(n uint, err error) {
			log.Warnf("Retrying zookeeper %s (attempt %d): %v", op, n+1, err)
		}),
	)
}

// ensurePath creates the znode and any missing parents with empty data.
func (p *ZooKeeperPersister) ensurePath(abs string) error {
	segments := strings.Split(strings.Trim(abs, "/"), "/")
	current := ""
	for _, segment := range segments {
		current += "/" + segment
		err := p.withRetry("create", func() error {
			_, err := p.conn.Create(current, nil, 0, p.acl)
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Get implements Persister#Get.
func (p *ZooKeeperPersister) Get(path string) ([]byte, error) {
	var value []byte
	err := p.withRetry("get", func() error {
		data, _, err := p.conn.Get(p.absPath(path))
		if err != nil {
			return err
		}
		value = data
		return nil
	})
	if errors.Is(err, zk.ErrNoNode) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("zookeeper get %s: %w", path, err)
	}
	if value == nil {
		// an intermediate znode created by ensurePath holds no value
		return nil, ErrNotFound
	}
	return value, nil
}

// GetMany implements Persister#GetMany.
func (p *ZooKeeperPersister) GetMany(paths []string) (map[string][]byte, error) {
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
func (p *ZooKeeperPersister) Set(path string, value []byte) error {
	abs := p.absPath(path)
	err := p.withRetry("set", func() error {
		_, err := p.conn.Set(abs, value, -1)
		if !errors.Is(err, zk.ErrNoNode) {
			return err
		}
		if parent := parentPath(abs); parent != "" {
			if err := p.ensurePath(parent); err != nil {
				return err
			}
		}
		_, err = p.conn.Create(abs, value, 0, p.acl)
		if errors.Is(err, zk.ErrNodeExists) {
			_, err = p.conn.Set(abs, value, -1)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("zookeeper set %s: %w", path, err)
	}
	return nil
}

// SetMany implements Persister#SetMany. Values are written in a single Multi
// transaction so a batch either lands fully or not at all.
func (p *ZooKeeperPersister) SetMany(values map[string][]byte) error {
	paths := make([]string, 0, len(values))
	for path := range values {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return p.withRetry("multi", func() error {
		ops := make([]interface{}, 0, len(values))
		for _, path := range paths {
			abs := p.absPath(path)
			exists, _, err := p.conn.Exists(abs)
			if err != nil {
				return err
			}
			if exists {
				ops = append(ops, &zk.SetDataRequest{Path: abs, Data: values[path], Version: -1})
				continue
			}
			if parent := parentPath(abs); parent != "" {
				if err := p.ensurePath(parent); err != nil {
					return err
				}
			}
			ops = append(ops, &zk.CreateRequest{Path: abs, Data: values[path], Acl: p.acl})
		}
		_, err := p.conn.Multi(ops...)
		if err != nil {
			return fmt.Errorf("zookeeper multi write of %d paths: %w", len(ops), err)
		}
		return nil
	})
}

// GetChildren implements Persister#GetChildren.
func (p *ZooKeeperPersister) GetChildren(path string) ([]string, error) {
	var children []string
	err := p.withRetry("children", func() error {
		kids, _, err := p.conn.Children(p.absPath(path))
		if err != nil {
			return err
		}
		children = kids
		return nil
	})
	if errors.Is(err, zk.ErrNoNode) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("zookeeper children %s: %w", path, err)
	}
	sort.Strings(children)
	return children, nil
}

// Delete implements Persister#Delete: the subtree is removed leaves first.
func (p *ZooKeeperPersister) Delete(path string) error {
	abs := p.absPath(path)
	exists, _, err := p.conn.Exists(abs)
	if err != nil {
		return fmt.Errorf("zookeeper exists %s: %w", path, err)
	}
	if !exists {
		return ErrNotFound
	}
	return p.deleteRecursive(abs)
}

func (p *ZooKeeperPersister) deleteRecursive(abs string) error {
	children, _, err := p.conn.Children(abs)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("zookeeper children %s: %w", abs, err)
	}
	for _, child := range children {
		if err := p.deleteRecursive(abs + "/" + child); err != nil {
			return err
		}
	}
	return p.withRetry("delete", func() error {
		err := p.conn.Delete(abs, -1)
		if errors.Is(err, zk.ErrNoNode) {
			return nil
		}
		return err
	})
}

// Close implements Persister#Close.
func (p *ZooKeeperPersister) Close() error {
	p.conn.Close()
	return nil
}

func parentPath(abs string) string {
	idx := strings.LastIndex(abs, "/")
	if idx <= 0 {
		return ""
	}
	return abs[:idx]
}
