package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215"
	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215/hnap"
	"github.com/nerrad567/gray-logic-w215/internal/device"
	"github.com/nerrad567/gray-logic-w215/internal/event"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/logging"
	_ "github.com/nerrad567/gray-logic-w215/migrations" // registers the schema
)

// fakePoller is a scripted DevicePoller.
type fakePoller struct {
	mu      sync.Mutex
	reports map[string]*w215.Report
	err     error
	polled  []string
}

func (p *fakePoller) PollDevice(_ context.Context, id string) (*w215.Report, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polled = append(p.polled, id)
	return p.reports[id], p.err
}

func (p *fakePoller) LastReport(id string) (*w215.Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.reports[id]
	return r, ok
}

func (p *fakePoller) Stats() w215.SchedulerStats {
	return w215.SchedulerStats{Cycles: 3, Emitted: 5}
}

type fakeConn bool

func (c fakeConn) IsConnected() bool { return bool(c) }

type testEnv struct {
	server   *Server
	handler  http.Handler
	registry *device.Registry
	history  *device.SQLiteStateHistoryRepository
	poller   *fakePoller
	db       *database.DB
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(ctx))

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	require.NoError(t, registry.RefreshCache(ctx))
	require.NoError(t, registry.CreateDevice(ctx, w215.NewPlug("plug-1", "Kitchen", "192.168.1.20")))

	history := device.NewSQLiteStateHistoryRepository(db.DB)
	poller := &fakePoller{reports: map[string]*w215.Report{}}

	reg := prometheus.NewRegistry()
	w215.NewMetrics(reg)

	srv, err := New(Deps{
		Config: config.APIConfig{
			CORS: config.CORSConfig{AllowedOrigins: []string{"http://panel.local"}},
		},
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:   logging.Default(),
		Registry: registry,
		History:  history,
		Poller:   poller,
		MQTT:     fakeConn(true),
		DB:       db,
		Bus:      event.NewBus(8),
		Gatherer: reg,
		Version:  "test",
	})
	require.NoError(t, err)

	return &testEnv{
		server:   srv,
		handler:  srv.Handler(),
		registry: registry,
		history:  history,
		poller:   poller,
		db:       db,
	}
}

func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	_, err = New(Deps{Logger: logging.Default()})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	components := body["components"].(map[string]any)
	assert.Equal(t, "ok", components["database"])
	assert.Equal(t, "connected", components["mqtt"])
	assert.Equal(t, "disabled", components["influxdb"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	env := setupTestServer(t)
	require.NoError(t, env.db.Close())

	rec := env.do(t, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode(t, rec)["status"])
}

func TestListDevices(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/devices")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 1, body["count"])

	rec = env.do(t, http.MethodGet, "/api/v1/devices?protocol=knx")
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/api/v1/devices?health=online")
	assert.EqualValues(t, 0, decode(t, rec)["count"])
}

func TestGetDevice(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/plug-1")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "w215:192.168.1.20", body["external_id"])
	assert.NotContains(t, rec.Body.String(), "pin")

	rec = env.do(t, http.MethodGet, "/api/v1/devices/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeviceStats(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, decode(t, rec)["TotalFeatures"])
}

func TestPollDevice(t *testing.T) {
	report := &w215.Report{DeviceID: "plug-1", LoginStatus: hnap.LoginSuccess}

	tests := []struct {
		name     string
		report   *w215.Report
		err      error
		wantCode int
	}{
		{name: "success", report: report, wantCode: http.StatusOK},
		{name: "unknown device", err: fmt.Errorf("get: %w", device.ErrDeviceNotFound), wantCode: http.StatusNotFound},
		{name: "cycle in progress", err: w215.ErrCycleInProgress, wantCode: http.StatusConflict},
		{name: "misconfigured with report", report: report, err: w215.ErrMissingPin, wantCode: http.StatusUnprocessableEntity},
		{name: "misconfigured without report", err: w215.ErrConfiguration, wantCode: http.StatusUnprocessableEntity},
		{name: "unexpected", err: fmt.Errorf("boom"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)
			if tt.report != nil {
				env.poller.reports["plug-1"] = tt.report
			}
			env.poller.err = tt.err

			rec := env.do(t, http.MethodPost, "/api/v1/devices/plug-1/poll")
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, []string{"plug-1"}, env.poller.polled)
		})
	}
}

func TestLastReport(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/devices/plug-1/report")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.poller.reports["plug-1"] = &w215.Report{DeviceID: "plug-1", LoginStatus: hnap.LoginFailed}
	rec = env.do(t, http.MethodGet, "/api/v1/devices/plug-1/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", decode(t, rec)["login_status"])
}

func TestGetDeviceHistory(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, env.history.RecordStateChange(ctx, device.StateHistoryEntry{
			DeviceID:          "plug-1",
			FeatureExternalID: "w215:192.168.1.20:power",
			Value:             float64(40 + i),
			CreatedAt:         time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	rec := env.do(t, http.MethodGet, "/api/v1/devices/plug-1/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["count"])

	rec = env.do(t, http.MethodGet, "/api/v1/devices/plug-1/history?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/devices/missing/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseHistoryLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "", want: defaultHistoryLimit},
		{raw: "10", want: 10},
		{raw: "999999", want: maxHistoryLimit},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "ten", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseHistoryLimit(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSystem(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/system")
	require.Equal(t, http.StatusOK, rec.Code)

	var out SystemMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "test", out.Version)
	assert.Equal(t, "connected", out.MQTT)
	assert.Equal(t, 1, out.Devices.Total)
	require.NotNil(t, out.Scheduler)
	assert.EqualValues(t, 5, out.Scheduler.Emitted)
	require.NotNil(t, out.Bus)
	require.NotNil(t, out.Database)
	assert.Positive(t, out.Runtime.Goroutines)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "graylogic_w215_cycles_in_flight")
}

func TestMiddleware_RequestID(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestMiddleware_CORS(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://panel.local")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://panel.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMiddleware_Recovery(t *testing.T) {
	env := setupTestServer(t)
	h := env.server.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func dialStream(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws"+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hub := env.server.Hub()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func stateChange(featureID string, value float64) event.StateChange {
	return event.StateChange{
		ID:                "evt-" + featureID,
		FeatureExternalID: featureID,
		Value:             value,
		Timestamp:         time.Now().UTC(),
	}
}

func TestWebSocket_RelaysWatchedChanges(t *testing.T) {
	env := setupTestServer(t)
	conn := dialStream(t, env, "?watch=w215:192.168.1.20")
	hub := env.server.Hub()
	ctx := context.Background()

	// w215:192.168.1.2 is not a prefix match for the watched plug.
	require.NoError(t, hub.Handle(ctx, event.KindNewState, stateChange("w215:192.168.1.2:power", 7)))
	require.NoError(t, hub.Handle(ctx, event.KindNewState, stateChange("w215:192.168.1.20:power", 43)))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, StreamTypeState, msg.Type)
	assert.Equal(t, event.KindNewState, msg.Kind)
	require.NotNil(t, msg.Change)
	assert.Equal(t, "w215:192.168.1.20:power", msg.Change.FeatureExternalID)
	assert.InDelta(t, 43.0, msg.Change.Value, 0)
}

func TestWebSocket_WatchMessages(t *testing.T) {
	env := setupTestServer(t)
	conn := dialStream(t, env, "")

	require.NoError(t, conn.WriteJSON(StreamMessage{
		Type: StreamTypeWatch,
		ID:   "1",
		Add:  []string{"w215:10.0.0.5:temperature", "w215:10.0.0.6"},
	}))
	var resp StreamMessage
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, StreamTypeAck, resp.Type)
	assert.Equal(t, "1", resp.ID)
	assert.Equal(t, []string{"w215:10.0.0.5:temperature", "w215:10.0.0.6"}, resp.Add)

	require.NoError(t, conn.WriteJSON(StreamMessage{Type: StreamTypeWatch, ID: "2", Remove: []string{"w215:10.0.0.6"}}))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, []string{"w215:10.0.0.5:temperature"}, resp.Add)

	require.NoError(t, conn.WriteJSON(StreamMessage{Type: StreamTypePing, ID: "3"}))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, StreamTypePong, resp.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, StreamTypeError, resp.Type)

	require.NoError(t, conn.WriteJSON(StreamMessage{Type: "bogus", ID: "4"}))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, StreamTypeError, resp.Type)
	assert.Equal(t, "4", resp.ID)
}

func TestHub_RunDisconnectsClients(t *testing.T) {
	env := setupTestServer(t)
	conn := dialStream(t, env, "")
	hub := env.server.Hub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 0, hub.ClientCount())
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
