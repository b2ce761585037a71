// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package specstore persists submitted run specs. Specs are content-addressed
// under Specs/<specId>/{Type,Data} so identical submissions share one record,
// and every admitted run carries a spec-id property pointing back at the spec
// it was generated from. On startup Recover walks those pointers to rebuild
// the runs that were active before the restart.
package specstore

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/DataDog/queue-scheduler/pkg/persister"
	"github.com/DataDog/queue-scheduler/pkg/runs"
	"github.com/DataDog/queue-scheduler/pkg/state"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

const (
	// specIDProperty links a run's state namespace back to its spec. Written
	// on admission, erased with the namespace when the run uninstalls.
	specIDProperty = "spec-id"

	specTypeNode = "Type"
	specDataNode = "Data"
)

// SpecIDFor returns the content-addressed id a submission is stored under:
// the spec type followed by the hex sha256 of the data.
func SpecIDFor(specType string, data []byte) string {
	return fmt.Sprintf("%s-%x", specType, sha256.Sum256(data))
}

func specPath(specID string) string     { return persister.Join(persister.SpecsRoot, specID) }
func specTypePath(specID string) string { return persister.Join(specPath(specID), specTypeNode) }
func specDataPath(specID string) string { return persister.Join(specPath(specID), specDataNode) }

// Store is the content-addressed spec store. The spec records live next to
// the run namespaces in the same persister, so tearing the storage root down
// erases both together.
type Store struct {
	p persister.Persister
}

// New returns a spec store over the given persister.
func New(p persister.Persister) *Store {
	return &Store{p: p}
}

// Store persists a submission and points the run's state namespace at it. The
// original bytes are kept as submitted: debugging stays possible and existing
// runs inherit generator refinements without resubmission. An existing record
// under the same id is reused after verifying it matches byte for byte; a
// mismatch means tampered storage or a hash collision and fails with ErrLogic.
func (s *Store) Store(runStore *state.Store, data []byte, specType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: spec data must not be empty", ErrClientInput)
	}
	if specType == "" {
		return "", fmt.Errorf("%w: spec type must not be empty", ErrClientInput)
	}

	specID := SpecIDFor(specType, data)
	typePath := specTypePath(specID)
	dataPath := specDataPath(specID)
	typeBytes := []byte(specType)

	entries, err := s.p.GetMany([]string{typePath, dataPath})
	if err != nil {
		return "", err
	}
	storedType, storedData := entries[typePath], entries[dataPath]
	switch {
	case storedType == nil && storedData == nil:
		log.Infof("Storing new %d byte %s spec with id %s", len(data), specType, specID)
		if err := s.p.SetMany(map[string][]byte{typePath: typeBytes, dataPath: data}); err != nil {
			return "", err
		}
	case !bytes.Equal(storedType, typeBytes) || !bytes.Equal(storedData, data):
		log.Errorf("Mismatch between the stored and submitted data for spec %s", specID)
		log.Errorf("Stored: %s", describeSpec(storedType, storedData))
		log.Errorf("Submission: %s", describeSpec(typeBytes, data))
		return "", fmt.Errorf("%w: existing spec %s does not match the submitted data", ErrLogic, specID)
	default:
		log.Infof("Reusing existing %d byte %s spec with id %s", len(data), specType, specID)
	}

	if err := runStore.StoreProperty(specIDProperty, []byte(specID)); err != nil {
		return "", err
	}
	return specID, nil
}

// SpecID returns the spec id a run was admitted with, or
// persister.ErrNotFound when the namespace carries none.
func SpecID(runStore *state.Store) (string, error) {
	raw, err := runStore.FetchProperty(specIDProperty)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type specRecord struct {
	specType string
	data     []byte
}

// Recover rebuilds the runs that were active before a restart: every service
// namespace is mapped to its spec through the spec-id property, the distinct
// specs are batch-read, and each run is regenerated through the generator
// registered for its spec type. Runs whose namespace carries the uninstall
// marker come back as their uninstalling variant.
//
// Each phase logs every problem it finds before failing, so one corrupt
// namespace does not hide the next.
func (s *Store) Recover(generators *runs.Generators) ([]runs.Run, error) {
	namespaces, err := persister.ServiceNamespaces(s.p)
	if err != nil {
		return nil, err
	}

	// Map each service namespace to the spec id it was admitted with. The
	// property is written before the run first launches and erased only with
	// the whole namespace, so a miss means corrupt service data.
	var errs *multierror.Error
	specIDs := map[string]string{}
	for _, namespace := range namespaces {
		raw, err := state.NewStore(s.p, namespace).FetchProperty(specIDProperty)
		if err != nil {
			log.Errorf("Failed to retrieve property %s for service %s: %v", specIDProperty, namespace, err)
			errs = multierror.Append(errs, fmt.Errorf("service %s: %v", namespace, err))
			continue
		}
		specIDs[namespace] = string(raw)
	}
	log.Infof("Found %d service(s): %v", len(specIDs), specIDs)
	if errs.ErrorOrNil() != nil {
		return nil, fmt.Errorf("%w: one or more services have invalid or missing spec id properties: %v", ErrLogic, errs)
	}

	// Batch-read the distinct specs those ids point at.
	unique := make([]string, 0, len(specIDs))
	seen := map[string]struct{}{}
	for _, specID := range specIDs {
		if _, ok := seen[specID]; ok {
			continue
		}
		seen[specID] = struct{}{}
		unique = append(unique, specID)
	}
	sort.Strings(unique)
	paths := make([]string, 0, 2*len(unique))
	for _, specID := range unique {
		paths = append(paths, specTypePath(specID), specDataPath(specID))
	}
	entries, err := s.p.GetMany(paths)
	if err != nil {
		return nil, err
	}
	specs := map[string]specRecord{}
	for _, specID := range unique {
		storedType := entries[specTypePath(specID)]
		storedData := entries[specDataPath(specID)]
		if len(storedType) == 0 || len(storedData) == 0 {
			log.Errorf("Missing spec type or data for spec %s used by services %v",
				specID, servicesUsing(specIDs, specID))
			errs = multierror.Append(errs, fmt.Errorf("spec %s: missing type or data", specID))
			continue
		}
		specs[specID] = specRecord{specType: string(storedType), data: storedData}
	}
	log.Infof("Retrieved %d spec(s)", len(specs))
	if errs.ErrorOrNil() != nil {
		return nil, fmt.Errorf("%w: one or more specs are malformed or missing: %v", ErrLogic, errs)
	}

	// Regenerate every run through the generator for its spec type.
	recovered := make([]runs.Run, 0, len(namespaces))
	for _, namespace := range namespaces {
		record := specs[specIDs[namespace]]
		gen, ok := generators.Get(record.specType)
		if !ok {
			log.Errorf("No generator with type %s for spec %s (service %s), installed types are %v",
				record.specType, specIDs[namespace], namespace, generators.Types())
			errs = multierror.Append(errs, fmt.Errorf("service %s: no generator with type %s", namespace, record.specType))
			continue
		}
		run, err := gen.Generate(record.data)
		if err != nil {
			log.Errorf("Failed to regenerate service %s from spec %s: %v", namespace, specIDs[namespace], err)
			errs = multierror.Append(errs, fmt.Errorf("service %s: %v", namespace, err))
			continue
		}
		recovered = append(recovered, run)
	}
	names := make([]string, 0, len(recovered))
	for _, run := range recovered {
		names = append(names, run.Name())
	}
	log.Infof("Recovered %d run(s): %v", len(recovered), names)
	if errs.ErrorOrNil() != nil {
		return nil, fmt.Errorf("%w: one or more runs could not be regenerated: %v", ErrLogic, errs)
	}
	return recovered, nil
}

func servicesUsing(specIDs map[string]string, specID string) []string {
	var services []string
	for namespace, id := range specIDs {
		if id == specID {
			services = append(services, namespace)
		}
	}
	sort.Strings(services)
	return services
}

func describeSpec(specType, data []byte) string {
	return fmt.Sprintf("type (%d bytes): %q, data (%d bytes): %q", len(specType), specType, len(data), data)
}
