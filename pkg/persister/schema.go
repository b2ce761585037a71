// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package persister

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// SchemaVersion is the storage layout version this build reads and writes.
// Bump only with a migration path.
const SchemaVersion = 2

// schemaVersionPath is the node holding the version, directly under the root.
const schemaVersionPath = "SchemaVersion"

// CheckSchemaVersion verifies the storage was written by a compatible build.
// First boot writes the current version; any other value is a hard error
// because silently reading an old layout corrupts run state.
func CheckSchemaVersion(p Persister) error {
	raw, err := p.Get(schemaVersionPath)
	if errors.Is(err, ErrNotFound) {
		log.Infof("Storage is uninitialized, writing schema version %d", SchemaVersion)
		return p.Set(schemaVersionPath, []byte(strconv.Itoa(SchemaVersion)))
	}
	if err != nil {
		return fmt.Errorf("unable to read schema version: %w", err)
	}

	version, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("unparseable schema version %q: %w", string(raw), err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("storage schema version %d does not match executable version %d", version, SchemaVersion)
	}
	return nil
}
