// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

/*
Package api implements the scheduler's admin HTTP API: submitting specs to
the queue, listing and uninstalling runs, the per-run endpoints each run
exposes, plus health and metrics.
*/
package api

import (
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	stdLog "log"
	"net"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DataDog/queue-scheduler/pkg/config"
	"github.com/DataDog/queue-scheduler/pkg/exitcode"
	"github.com/DataDog/queue-scheduler/pkg/runs"
	"github.com/DataDog/queue-scheduler/pkg/util/log"
)

// Server serves the admin API. Handlers resolve runs through the manager at
// request time, so run listings and per-run endpoints always reflect the
// current queue.
type Server struct {
	listener   net.Listener
	srv        *http.Server
	manager    *runs.Manager
	dispatcher *runs.Dispatcher

	maxSubmissionBytes int64
	exit               func(exitcode.Code)
}

// NewServer binds the admin API port and returns the server, not yet serving.
func NewServer(manager *runs.Manager, dispatcher *runs.Dispatcher) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Scheduler.GetInt("api.port")))
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:           listener,
		manager:            manager,
		dispatcher:         dispatcher,
		maxSubmissionBytes: int64(config.Scheduler.GetInt("api.max_submission_bytes")),
		exit:               exitcode.Exit,
	}, nil
}

// Start creates the router and serves in the background. A server failure is
// fatal: the scheduler must not keep running without its admin surface.
func (s *Server) Start() {
	s.srv = &http.Server{
		Handler:     handlers.RecoveryHandler(handlers.RecoveryLogger(&recoveryLogger{}))(s.router()),
		ErrorLog:    stdLog.New(&config.ErrorLogWriter{}, "Error from the admin API server: ", 0),
		IdleTimeout: config.Scheduler.GetDuration("api.idle_timeout"),
	}
	go func() {
		err := s.srv.Serve(s.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Admin API server failed: %v", err)
			s.exit(exitcode.APIServerError)
		}
	}()
	log.Infof("Admin API serving on %s", s.listener.Addr())
}

// Stop closes the server and stops accepting requests.
func (s *Server) Stop() {
	if s.srv != nil {
		s.srv.Close()
	}
}

// Address returns the address the server is bound to.
func (s *Server) Address() net.Addr {
	return s.listener.Addr()
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	s.setupQueueHandlers(r)
	s.setupRunHandlers(r)
	r.HandleFunc("/v1/health", handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/debug/vars", expvar.Handler()).Methods(http.MethodGet)
	return r
}

func handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Errorf("Unable to write API response: %v", err)
	}
}

// recoveryLogger feeds gorilla's panic recovery into the scheduler log.
type recoveryLogger struct{}

func (recoveryLogger) Println(args ...interface{}) {
	log.Errorf("Panic in an admin API handler: %s", fmt.Sprintln(args...))
}
