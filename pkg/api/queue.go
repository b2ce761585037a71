// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/DataDog/queue-scheduler/pkg/persister"
	"github.com/DataDog/queue-scheduler/pkg/runs"
	"github.com/DataDog/queue-scheduler/pkg/specstore"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// queueEntry is one run in the queue listing.
type queueEntry struct {
	Name      string `json:"name"`
	SpecID    string `json:"spec-id,omitempty"`
	Goal      string `json:"goal"`
	Uninstall bool   `json:"uninstall"`
}

func (s *Server) setupQueueHandlers(r *mux.Router) {
	r.HandleFunc("/v1/queue", s.handleListQueue).Methods(http.MethodGet)
	r.HandleFunc("/v1/queue", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/v1/queue/{runName}", s.handleGetRun).Methods(http.MethodGet)
	r.HandleFunc("/v1/queue/{runName}", s.handleUninstallRun).Methods(http.MethodDelete)
}

func (s *Server) handleListQueue(w http.ResponseWriter, req *http.Request) {
	entries := make([]queueEntry, 0)
	for _, name := range s.manager.Names() {
		// A run can be removed while we walk the names.
		run, ok := s.manager.Get(name)
		if !ok {
			continue
		}
		entries = append(entries, describeRun(run))
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetRun(w http.ResponseWriter, req *http.Request) {
	runName := mux.Vars(req)["runName"]
	run, ok := s.manager.Get(runName)
	if !ok {
		http.Error(w, fmt.Sprintf("no run named %q", runName), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, describeRun(run))
}

// handleSubmit accepts a new run as multipart form data: a `file` field with
// the spec payload and an optional `type` field naming the generator, e.g.
// curl -X POST -F 'type=yaml' -F 'file=@spec.yaml' .../v1/queue
func (s *Server) handleSubmit(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, s.maxSubmissionBytes)
	if err := req.ParseMultipartForm(s.maxSubmissionBytes); err != nil {
		http.Error(w, fmt.Sprintf("unable to read submission: %v", err), http.StatusBadRequest)
		return
	}
	specType := req.FormValue("type")
	file, _, err := req.FormFile("file")
	if err != nil {
		http.Error(w, "submission is missing the 'file' field", http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		log.Errorf("Unable to read submission payload: %v", err)
		http.Error(w, "unable to read submission payload", http.StatusInternalServerError)
		return
	}

	run, specID, err := s.dispatcher.Submit(data, specType)
	if err != nil {
		log.Errorf("Submission rejected: %v", err)
		status := http.StatusInternalServerError
		if isClientFault(err) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": run.Name(), "spec-id": specID})
}

func (s *Server) handleUninstallRun(w http.ResponseWriter, req *http.Request) {
	runName := mux.Vars(req)["runName"]
	if _, ok := s.manager.Get(runName); !ok {
		http.Error(w, fmt.Sprintf("no run named %q", runName), http.StatusNotFound)
		return
	}
	s.manager.StartUninstall([]string{runName})
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, "Triggered removal of run: %s\n", runName)
}

func describeRun(run runs.Run) queueEntry {
	entry := queueEntry{
		Name:      run.Name(),
		Goal:      run.Goal(),
		Uninstall: run.Uninstalling(),
	}
	specID, err := specstore.SpecID(run.StateStore())
	switch {
	case err == nil:
		entry.SpecID = specID
	case !errors.Is(err, persister.ErrNotFound):
		log.Warnf("Unable to read the spec id of run %s: %v", run.Name(), err)
	}
	return entry
}

// isClientFault separates submission errors the caller can fix from internal
// failures. Logic errors land here too: resubmitting identical data keeps
// failing, so a retry loop would be wrong.
func isClientFault(err error) bool {
	return errors.Is(err, runs.ErrInvalidSubmission) ||
		errors.Is(err, runs.ErrDuplicateRun) ||
		errors.Is(err, specstore.ErrClientInput) ||
		errors.Is(err, specstore.ErrLogic)
}
