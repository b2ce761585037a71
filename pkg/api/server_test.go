// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/queue-scheduler/pkg/exitcode"
	"github.com/DataDog/queue-scheduler/pkg/persister"
	"github.com/DataDog/queue-scheduler/pkg/runs"
	"github.com/DataDog/queue-scheduler/pkg/specstore"
)

func newTestServer(t *testing.T) (*httptest.Server, *runs.Manager) {
	t.Helper()
	p := persister.NewMemory()
	m := runs.NewManager()
	gens := runs.NewGenerators()
	require.NoError(t, gens.Register(runs.YAMLSpecType, runs.NewYAMLGenerator(p, nil)))
	d := runs.NewDispatcher(m, specstore.New(p), gens, runs.DispatcherOptions{
		DefaultSpecType: runs.YAMLSpecType,
	})
	s := &Server{
		manager:            m,
		dispatcher:         d,
		maxSubmissionBytes: 1 << 20,
		exit:               func(exitcode.Code) {},
	}
	ts := httptest.NewServer(s.router())
	t.Cleanup(ts.Close)
	return ts, m
}

func submitSpec(t *testing.T, ts *httptest.Server, specType string, payload []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if specType != "" {
		require.NoError(t, writer.WriteField("type", specType))
	}
	part, err := writer.CreateFormFile("file", "spec.yaml")
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(ts.URL+"/v1/queue", writer.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	decodeJSON(t, resp, &health)
	assert.Equal(t, "ok", health["status"])
}

func TestSubmitAndListQueue(t *testing.T) {
	ts, m := newTestServer(t)
	payload := []byte("name: web\ngoal: RUNNING\n")

	resp := submitSpec(t, ts, "yaml", payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var created map[string]string
	decodeJSON(t, resp, &created)
	assert.Equal(t, "web", created["name"])
	assert.Equal(t, specstore.SpecIDFor("yaml", payload), created["spec-id"])

	_, ok := m.Get("web")
	assert.True(t, ok)

	resp, err := http.Get(ts.URL + "/v1/queue")
	require.NoError(t, err)
	var entries []queueEntry
	decodeJSON(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, queueEntry{
		Name:   "web",
		SpecID: created["spec-id"],
		Goal:   runs.GoalRunning,
	}, entries[0])
}

func TestSubmitUsesDefaultType(t *testing.T) {
	ts, m := newTestServer(t)

	resp := submitSpec(t, ts, "", []byte("name: db\n"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, ok := m.Get("db")
	assert.True(t, ok)
}

func TestSubmitRejections(t *testing.T) {
	ts, _ := newTestServer(t)

	// unparseable payload
	resp := submitSpec(t, ts, "yaml", []byte("{{{"))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// unknown type
	resp = submitSpec(t, ts, "spark", []byte("name: web\n"))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// duplicate name
	resp = submitSpec(t, ts, "yaml", []byte("name: web\n"))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = submitSpec(t, ts, "yaml", []byte("name: web\n"))
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// no file field at all
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("type", "yaml"))
	require.NoError(t, writer.Close())
	resp, err := http.Post(ts.URL+"/v1/queue", writer.FormDataContentType(), &buf)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRunSummary(t *testing.T) {
	ts, _ := newTestServer(t)
	payload := []byte("name: web\ngoal: FINISHED\n")
	resp := submitSpec(t, ts, "yaml", payload)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(ts.URL + "/v1/queue/web")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var entry queueEntry
	decodeJSON(t, resp, &entry)
	assert.Equal(t, queueEntry{
		Name:   "web",
		SpecID: specstore.SpecIDFor("yaml", payload),
		Goal:   runs.GoalFinished,
	}, entry)

	resp, err = http.Get(ts.URL + "/v1/queue/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUninstallRun(t *testing.T) {
	ts, m := newTestServer(t)
	resp := submitSpec(t, ts, "yaml", []byte("name: web\n"))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/v1/queue/web")
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, string(body), "web")

	run, ok := m.Get("web")
	require.True(t, ok)
	assert.True(t, run.Uninstalling())

	// the listing reflects the uninstall
	resp, err = http.Get(ts.URL + "/v1/queue")
	require.NoError(t, err)
	var entries []queueEntry
	decodeJSON(t, resp, &entries)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Uninstall)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/v1/queue/ghost")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunEndpointsFollowUninstall(t *testing.T) {
	ts, m := newTestServer(t)
	resp := submitSpec(t, ts, "yaml", []byte("name: web\n"))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := http.Get(ts.URL + "/v1/runs/web")
	require.NoError(t, err)
	var listing struct {
		Name      string   `json:"name"`
		Endpoints []string `json:"endpoints"`
	}
	decodeJSON(t, resp, &listing)
	assert.Equal(t, "web", listing.Name)
	assert.Equal(t, []string{"plan"}, listing.Endpoints)

	resp, err = http.Get(ts.URL + "/v1/runs/web/plan")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var plan map[string]interface{}
	decodeJSON(t, resp, &plan)
	assert.Equal(t, runs.GoalRunning, plan["goal"])
	assert.Equal(t, true, plan["complete"])

	// uninstalling swaps the run object and its endpoints with it
	m.StartUninstall([]string{"web"})

	resp, err = http.Get(ts.URL + "/v1/runs/web/plan")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/v1/runs/web/uninstall")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var progress map[string]interface{}
	decodeJSON(t, resp, &progress)
	assert.Equal(t, float64(0), progress["reservations_left"])
	assert.Equal(t, false, progress["state_wiped"])

	resp, err = http.Get(ts.URL + "/v1/runs/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTelemetryEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "queue_scheduler_offers_received_total")

	resp, err = http.Get(ts.URL + "/debug/vars")
	require.NoError(t, err)
	var vars map[string]interface{}
	decodeJSON(t, resp, &vars)
	assert.Contains(t, vars, "offer_processor")
}
