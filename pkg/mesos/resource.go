// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package mesos

// Range is a half-open interval used by range-valued resources (ports).
type Range struct {
	Begin uint64
	End   uint64
}

// Reservation marks a resource as reserved for a role/principal. The labels
// carry the reservation bookkeeping: the resource id minted when reserving
// and the name of the owning service.
type Reservation struct {
	Principal string
	Labels    map[string]string
}

// Persistence identifies a persistent volume.
type Persistence struct {
	ID        string
	Principal string
}

// DiskSource describes where a disk resource comes from. MountRoot is only
// set for MOUNT volumes.
type DiskSource struct {
	MountRoot string
}

// DiskInfo carries persistent volume information on a disk resource.
type DiskInfo struct {
	Persistence *Persistence
	Source      *DiskSource
}

// Resource is a single resource record on an offer. A nil Reservation means
// the resource is unreserved; a non-nil Disk with Persistence means the
// resource is a persistent volume.
type Resource struct {
	Name   string
	Role   string
	Scalar float64
	Ranges []Range

	Reservation *Reservation
	Disk        *DiskInfo
}

// IsReserved returns whether the resource carries a dynamic reservation.
func (r *Resource) IsReserved() bool {
	return r.Reservation != nil
}

// ResourceID returns the reservation's resource id label, if any. Every
// correctly minted reservation carries one.
func (r *Resource) ResourceID() (string, bool) {
	if r.Reservation == nil {
		return "", false
	}
	id, ok := r.Reservation.Labels[ResourceIDLabel]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// ServiceName returns the owning service label on the reservation, if any.
// Reservations minted before the label was introduced may lack it; those are
// the malformed bucket of the inventory.
func (r *Resource) ServiceName() (string, bool) {
	if r.Reservation == nil {
		return "", false
	}
	name, ok := r.Reservation.Labels[ServiceNameLabel]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// HasPersistence returns whether the resource is a persistent volume.
func (r *Resource) HasPersistence() bool {
	return r.Disk != nil && r.Disk.Persistence != nil && r.Disk.Persistence.ID != ""
}

// PersistenceID returns the persistent volume id, if any.
func (r *Resource) PersistenceID() (string, bool) {
	if !r.HasPersistence() {
		return "", false
	}
	return r.Disk.Persistence.ID, true
}

// SourceRoot returns the mount root for MOUNT volumes, if any.
func (r *Resource) SourceRoot() (string, bool) {
	if r.Disk == nil || r.Disk.Source == nil || r.Disk.Source.MountRoot == "" {
		return "", false
	}
	return r.Disk.Source.MountRoot, true
}
