// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package runs

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/DataDog/queue-scheduler/pkg/persister"
	"github.com/DataDog/queue-scheduler/pkg/state"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// YAMLSpecType is the type label YAML submissions are stored under.
const YAMLSpecType = "yaml"

// Run names become storage namespaces and task id prefixes, so the separator
// characters of both are off limits.
var runNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]*$`)

// serviceSpec carries the fields the scheduler core needs from a YAML
// submission. Everything else in the document belongs to the plan engine and
// travels as opaque bytes.
type serviceSpec struct {
	Name string `yaml:"name"`
	Goal string `yaml:"goal"`
}

// YAMLGenerator builds runs from YAML service specs.
type YAMLGenerator struct {
	persister    persister.Persister
	coordinators CoordinatorFactory
}

// NewYAMLGenerator returns a generator storing run state in p. A nil factory
// leaves runs without a plan engine: they deploy nothing and report complete.
func NewYAMLGenerator(p persister.Persister, factory CoordinatorFactory) *YAMLGenerator {
	if factory == nil {
		factory = func(string, []byte) PlanCoordinator { return idleCoordinator{} }
	}
	return &YAMLGenerator{persister: p, coordinators: factory}
}

// Generate parses a submission and builds the run. A namespace already
// marked as uninstalling comes back as the UNINSTALLING variant so a restart
// resumes the teardown.
func (g *YAMLGenerator) Generate(data []byte) (Run, error) {
	var spec serviceSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("unable to parse service spec: %v", err)
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("service spec carries no name")
	}
	if !runNamePattern.MatchString(spec.Name) {
		return nil, fmt.Errorf("invalid run name %q: only alphanumerics and hyphens are allowed", spec.Name)
	}
	goal, err := parseGoal(spec.Goal)
	if err != nil {
		return nil, err
	}

	st := state.NewStore(g.persister, spec.Name)
	configs := state.NewConfigStore(g.persister, spec.Name)
	run := NewServiceRun(spec.Name, goal, st, configs, g.coordinators(spec.Name, data))

	switch _, err := st.FetchProperty(uninstallingProperty); {
	case err == nil:
		log.Infof("Run %s was uninstalling, resuming the teardown", spec.Name)
		return run.ToUninstall()
	case errors.Is(err, persister.ErrNotFound):
		return run, nil
	default:
		return nil, fmt.Errorf("unable to check the uninstall marker for run %s: %w", spec.Name, err)
	}
}

func parseGoal(goal string) (string, error) {
	if goal == "" {
		return GoalRunning, nil
	}
	switch normalized := strings.ToUpper(goal); normalized {
	case GoalRunning, GoalFinished:
		return normalized, nil
	default:
		return "", fmt.Errorf("unsupported goal state %q, expected %s or %s", goal, GoalRunning, GoalFinished)
	}
}
