// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package scheduler

import (
	"fmt"
	"strings"
	"time"

	consul "github.com/hashicorp/consul/api"
	"github.com/samuel/go-zookeeper/zk"
	"go.uber.org/atomic"

	"github.com/DataDog/queue-scheduler/pkg/exitcode"
	"github.com/DataDog/queue-scheduler/pkg/persister"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// Locker is the exclusive scheduler-instance lock: at most one scheduler may
// touch a framework's storage at a time. Lock blocks while another holder is
// alive; callers bound the wait through acquireLock.
type Locker interface {
	Lock() error
	Unlock() error
}

// acquireLock takes the lock, giving up after the timeout. A second scheduler
// instance must exit instead of queueing behind the live one.
func acquireLock(locker Locker, timeout time.Duration) error {
	acquired := make(chan error, 1)
	go func() { acquired <- locker.Lock() }()
	select {
	case err := <-acquired:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("lock not acquired within %s: is another scheduler instance running against this storage?", timeout)
	}
}

// noopLocker serves the backends that are exclusive by construction: bolt
// takes a file lock on open, the memory backend is process-local.
type noopLocker struct{}

func (noopLocker) Lock() error   { return nil }
func (noopLocker) Unlock() error { return nil }

// ZooKeeperLocker holds the scheduler lock on its own ZooKeeper session,
// kept separate from the persister's connection so storage retries never
// interfere with lock ownership. An expired session means the lock is gone
// and another instance may take over, so expiry terminates the process.
type ZooKeeperLocker struct {
	conn     *zk.Conn
	lock     *zk.Lock
	released *atomic.Bool
	exit     func(exitcode.Code)
}

// NewZooKeeperLocker connects and prepares, but does not take, the lock
// beneath the storage root.
func NewZooKeeperLocker(servers []string, sessionTimeout time.Duration, root string) (*ZooKeeperLocker, error) {
	conn, events, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to zookeeper %v for locking: %w", servers, err)
	}
	l := &ZooKeeperLocker{
		conn:     conn,
		lock:     zk.NewLock(conn, strings.TrimRight(root, "/")+"/"+persister.LockNode, zk.WorldACL(zk.PermAll)),
		released: atomic.NewBool(false),
		exit:     exitcode.Exit,
	}
	go l.watchSession(events)
	return l, nil
}

func (l *ZooKeeperLocker) watchSession(events <-chan zk.Event) {
	for event := range events {
		if event.State == zk.StateExpired && !l.released.Load() {
			log.Error("The scheduler lock session expired, exiting")
			l.exit(exitcode.LockUnavailable)
		}
	}
}

// Lock implements Locker#Lock.
func (l *ZooKeeperLocker) Lock() error { return l.lock.Lock() }

// Unlock implements Locker#Unlock and closes the lock session.
func (l *ZooKeeperLocker) Unlock() error {
	l.released.Store(true)
	err := l.lock.Unlock()
	l.conn.Close()
	return err
}

// consulLocker adapts a consul session lock to the Locker contract. Consul
// reports lost locks on a channel; losing the lock mid-run is fatal.
type consulLocker struct {
	lock     *consul.Lock
	released *atomic.Bool
	exit     func(exitcode.Code)
}

func newConsulLocker(lock *consul.Lock) *consulLocker {
	return &consulLocker{
		lock:     lock,
		released: atomic.NewBool(false),
		exit:     exitcode.Exit,
	}
}

// Lock implements Locker#Lock and starts watching for lost ownership.
func (l *consulLocker) Lock() error {
	lost, err := l.lock.Lock(nil)
	if err != nil {
		return err
	}
	if lost == nil {
		return fmt.Errorf("consul lock acquisition was aborted")
	}
	go func() {
		<-lost
		if l.released.Load() {
			return
		}
		log.Error("The scheduler lock was lost, exiting")
		l.exit(exitcode.LockUnavailable)
	}()
	return nil
}

// Unlock implements Locker#Unlock.
func (l *consulLocker) Unlock() error {
	l.released.Store(true)
	return l.lock.Unlock()
}
