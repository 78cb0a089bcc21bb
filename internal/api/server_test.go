package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/engagement-telemetry/internal/clock/manual"
	"github.com/JakeFAU/engagement-telemetry/internal/engagement"
	"github.com/JakeFAU/engagement-telemetry/internal/pagehost"
)

type fakeIDGen struct {
	n atomic.Int64
}

func (f *fakeIDGen) NewID() (string, error) {
	return fmt.Sprintf("sess-%d", f.n.Add(1)), nil
}

type recordedBeacon struct {
	sessionID string
	path      string
	body      string
}

type fakeOutputs struct {
	mu      sync.Mutex
	fires   []string
	beacons []recordedBeacon
	events  []engagement.AnalyticsEvent
}

func (f *fakeOutputs) forSession(id string) engagement.Outputs {
	s := &fakeScoped{f: f, id: id}
	return engagement.Outputs{Transport: s, Sink: s}
}

func (f *fakeOutputs) Beacons() []recordedBeacon {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedBeacon(nil), f.beacons...)
}

type fakeScoped struct {
	f  *fakeOutputs
	id string
}

func (s *fakeScoped) Fire(_, path string, _ any) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.fires = append(s.f.fires, path)
}

func (s *fakeScoped) Beacon(path string, payload any) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.beacons = append(s.f.beacons, recordedBeacon{sessionID: s.id, path: path, body: string(raw)})
	return true
}

func (s *fakeScoped) Track(evt engagement.AnalyticsEvent) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.events = append(s.f.events, evt)
}

type testEnv struct {
	clock    *manual.Clock
	frames   *manual.Frames
	outputs  *fakeOutputs
	registry *pagehost.Registry
	server   *Server
}

func newTestEnv(t *testing.T, checks ...Check) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:   manual.New(time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)),
		frames:  manual.NewFrames(),
		outputs: &fakeOutputs{},
	}
	reg, err := pagehost.NewRegistry(
		pagehost.Config{Policy: engagement.DefaultPolicy()},
		&fakeIDGen{},
		env.outputs.forSession,
		env.clock,
		env.frames,
		zap.NewNop(),
	)
	require.NoError(t, err)
	env.registry = reg
	env.server = NewServer(reg, checks, Options{}, zap.NewNop())
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	ok := newTestEnv(t, Check{Name: "db", Ping: func(context.Context) error { return nil }})
	require.Equal(t, http.StatusOK, ok.do(http.MethodGet, "/readyz", "").Code)

	failing := newTestEnv(t,
		Check{Name: "db", Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }},
	)
	rec := failing.do(http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "redis")
	require.NotContains(t, rec.Body.String(), `"db"`)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.do(http.MethodGet, "/healthz", "")
	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "relay_http_requests_total")
}

func TestServer_RESTSessionLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/v1/sessions",
		`{"subject_id":"launch-day","title":"Launch Day","document_height":2100,"viewport_height":100}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	sessionID, _ := decodeBody(t, rec)["session_id"].(string)
	require.Equal(t, "sess-1", sessionID)

	rec = env.do(http.MethodPost, "/v1/sessions/"+sessionID+"/signals",
		`{"type":"scroll","scroll_top":1000,"document_height":2100,"viewport_height":100}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, true, decodeBody(t, rec)["accepted"])
	env.frames.Flush()

	rec = env.do(http.MethodPost, "/v1/sessions/"+sessionID+"/signals",
		`{"type":"impression","dimension":"title","variant_id":null}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, false, decodeBody(t, rec)["accepted"])

	env.clock.Advance(12 * time.Second)

	rec = env.do(http.MethodDelete, "/v1/sessions/"+sessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary pagehost.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, "sent", summary.ReadState)
	require.Equal(t, "sent", summary.ViewState)
	require.Equal(t, 50, summary.MaxScrollDepthPct)
	require.Equal(t, 12, summary.DwellTimeSeconds)

	beacons := env.outputs.Beacons()
	require.Len(t, beacons, 1)
	require.Equal(t, sessionID, beacons[0].sessionID)
	require.JSONEq(t, `{"article_id":"launch-day","dwell_time_seconds":12,"max_scroll_depth_pct":50}`, beacons[0].body)

	require.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/v1/sessions/"+sessionID, "").Code)
}

func TestServer_MountErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/v1/sessions", "{").Code)

	rec := env.do(http.MethodPost, "/v1/sessions", `{"subject_id":"a","document_height":100}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody(t, rec)["error"], "viewport height")

	big := `{"subject_id":"` + strings.Repeat("x", 5000) + `","viewport_height":100}`
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/v1/sessions", big).Code)
	require.Zero(t, env.registry.Len())
}

func TestServer_DeliverSignalErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/v1/sessions/missing/signals", `{"type":"unload"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "session not found", decodeBody(t, rec)["error"])

	rec = env.do(http.MethodPost, "/v1/sessions", `{"subject_id":"a","document_height":100,"viewport_height":100}`)
	sessionID, _ := decodeBody(t, rec)["session_id"].(string)

	require.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/v1/sessions/"+sessionID+"/signals", `{"type":"teleport"}`).Code)
	require.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/v1/sessions/"+sessionID+"/signals", `not json`).Code)
	require.Equal(t, http.StatusBadRequest,
		env.do(http.MethodPost, "/v1/sessions/"+sessionID+"/signals", `{"type":"visibility","state":"blurred"}`).Code)
}
