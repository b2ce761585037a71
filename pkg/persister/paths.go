// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package persister

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Reserved top-level node names that are never service namespaces. The
// framework's own state (FrameworkID, Properties) lives at the root, next to
// the per-run namespaces.
const (
	// SpecsRoot holds the content-addressed spec records.
	SpecsRoot = "Specs"
	// LockNode is claimed by the exclusive scheduler lock.
	LockNode = "lock"
)

var reservedRootNodes = map[string]struct{}{
	SpecsRoot:         {},
	LockNode:          {},
	schemaVersionPath: {},
	"FrameworkID":     {},
	"Properties":      {},
	"Tasks":           {},
	"Configurations":  {},
	"ConfigTarget":    {},
}

// ServiceNamespaces lists the per-run namespaces at the storage root:
// every top-level child that is not scheduler bookkeeping.
func ServiceNamespaces(p Persister) ([]string, error) {
	children, err := p.GetChildren("")
	if err != nil {
		return nil, err
	}
	namespaces := make([]string, 0, len(children))
	for _, child := range children {
		if _, reserved := reservedRootNodes[child]; reserved {
			continue
		}
		namespaces = append(namespaces, child)
	}
	return namespaces, nil
}

// WipeAll removes everything under the storage root, the terminal act of a
// framework uninstall. The lock node stays: the caller still holds it.
func WipeAll(p Persister) error {
	children, err := p.GetChildren("")
	if err != nil {
		return err
	}
	var errs *multierror.Error
	for _, child := range children {
		if child == LockNode {
			continue
		}
		if err := p.Delete(child); err != nil && !errors.Is(err, ErrNotFound) {
			errs = multierror.Append(errs, fmt.Errorf("unable to remove %s: %w", child, err))
		}
	}
	return errs.ErrorOrNil()
}
