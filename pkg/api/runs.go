// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) setupRunHandlers(r *mux.Router) {
	r.HandleFunc("/v1/runs/{runName}", s.handleRunEndpointList).Methods(http.MethodGet)
	r.HandleFunc("/v1/runs/{runName}/{endpoint}", s.handleRunEndpoint)
}

func (s *Server) handleRunEndpointList(w http.ResponseWriter, req *http.Request) {
	runName := mux.Vars(req)["runName"]
	run, ok := s.manager.Get(runName)
	if !ok {
		http.Error(w, fmt.Sprintf("no run named %q", runName), http.StatusNotFound)
		return
	}
	endpoints := run.HTTPEndpoints()
	paths := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		paths = append(paths, endpoint.Path)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":      run.Name(),
		"endpoints": paths,
	})
}

// handleRunEndpoint resolves the run at request time: an uninstall swaps the
// run object out, and its endpoints swap with it.
func (s *Server) handleRunEndpoint(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	run, ok := s.manager.Get(vars["runName"])
	if !ok {
		http.Error(w, fmt.Sprintf("no run named %q", vars["runName"]), http.StatusNotFound)
		return
	}
	for _, endpoint := range run.HTTPEndpoints() {
		if endpoint.Path == vars["endpoint"] {
			endpoint.Handler.ServeHTTP(w, req)
			return
		}
	}
	http.Error(w, fmt.Sprintf("run %q has no endpoint %q", vars["runName"], vars["endpoint"]), http.StatusNotFound)
}
