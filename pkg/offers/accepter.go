// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package offers

import (
	"fmt"
	"sort"

	"github.com/DataDog/queue-scheduler/pkg/mesos"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// Accepter submits accepted recommendations to the resource manager. Accept
// calls may only target a single agent, so the batch is regrouped by agent
// before submission.
type Accepter struct {
	driver mesos.Driver
}

// NewAccepter returns an Accepter submitting through the given driver.
func NewAccepter(driver mesos.Driver) *Accepter {
	return &Accepter{driver: driver}
}

// Accept sends one accept call per agent with the distinct offer ids of that
// agent's recommendations and their operations in recommendation order. The
// ordering matters: the resource lifecycle is RESERVE -> CREATE -> DESTROY ->
// UNRESERVE and the per-agent operation sequence must preserve it.
func (a *Accepter) Accept(recs []Recommendation) error {
	if len(recs) == 0 {
		log.Debug("No recommendations, nothing to accept")
		return nil
	}

	byAgent := groupByAgent(recs)
	agentIDs := make([]string, 0, len(byAgent))
	for agentID := range byAgent {
		agentIDs = append(agentIDs, agentID)
	}
	sort.Strings(agentIDs)

	for _, agentID := range agentIDs {
		agentRecs := byAgent[agentID]
		offerIDs := distinctOfferIDs(agentRecs)
		operations := make([]mesos.Operation, 0, len(agentRecs))
		for _, rec := range agentRecs {
			operations = append(operations, rec.Operation)
		}

		log.Infof("Sending %d operation(s) for agent %s", len(operations), agentID)
		for _, op := range operations {
			log.Debugf("  %s of %d resource(s)", op.Type, len(op.Resources))
		}
		if err := a.driver.AcceptOffers(offerIDs, operations, mesos.Filters{RefuseSeconds: mesos.AcceptRefuseSeconds}); err != nil {
			return fmt.Errorf("unable to accept %d offer(s) on agent %s: %w", len(offerIDs), agentID, err)
		}
	}
	return nil
}

// groupByAgent buckets recommendations by agent id, preserving their order
// within each bucket.
func groupByAgent(recs []Recommendation) map[string][]Recommendation {
	byAgent := map[string][]Recommendation{}
	for _, rec := range recs {
		agentID := string(rec.Offer.AgentID)
		byAgent[agentID] = append(byAgent[agentID], rec)
	}
	return byAgent
}

func distinctOfferIDs(recs []Recommendation) []mesos.OfferID {
	seen := make(map[mesos.OfferID]struct{}, len(recs))
	ids := make([]mesos.OfferID, 0, len(recs))
	for _, rec := range recs {
		if _, ok := seen[rec.Offer.ID]; ok {
			continue
		}
		seen[rec.Offer.ID] = struct{}{}
		ids = append(ids, rec.Offer.ID)
	}
	return ids
}
