package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/auditq/internal/audit"
	"github.com/ziadkadry99/auditq/internal/classifier"
	"github.com/ziadkadry99/auditq/internal/db"
	"github.com/ziadkadry99/auditq/internal/extractor"
	"github.com/ziadkadry99/auditq/internal/filters"
	"github.com/ziadkadry99/auditq/internal/findings"
	"github.com/ziadkadry99/auditq/internal/router"
	"github.com/ziadkadry99/auditq/internal/schema"
)

type fakePipeline struct {
	last router.Request
}

func (p *fakePipeline) Handle(_ context.Context, req router.Request) (*router.Result, error) {
	p.last = req
	if strings.TrimSpace(req.Query) == "" {
		return &router.Result{State: router.StateFailed}, router.ErrEmptyQuery
	}
	session := req.SessionID
	if session == "" {
		session = "generated"
	}
	return &router.Result{
		RequestID: req.RequestID,
		SessionID: session,
		RouteType: classifier.Complex,
		Records:   []findings.Finding{},
		Narrative: "Focus on **Access Control**.",
		State:     router.StateCompleted,
	}, nil
}

func (p *fakePipeline) Classify(query string) (string, classifier.Result, []extractor.Warning) {
	var set filters.Set
	set.Put(filters.Eq("year", 2024))
	return "masked: " + query, classifier.Result{RouteType: classifier.Simple, Confidence: 0.8, Filters: set}, nil
}

type fakeFindings map[string]findings.Finding

func (f fakeFindings) Get(_ context.Context, id string) (findings.Finding, error) {
	if v, ok := f[id]; ok {
		return v, nil
	}
	return findings.Finding{}, findings.ErrNotFound
}

type fakeSessions struct{ deleted []string }

func (s *fakeSessions) DeleteSession(_ context.Context, id string) (int64, error) {
	s.deleted = append(s.deleted, id)
	return 3, nil
}

type testServer struct {
	srv      *Server
	pipeline *fakePipeline
	sessions *fakeSessions
	audit    *audit.Store
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	reg, err := schema.Default()
	require.NoError(t, err)

	ts := &testServer{
		pipeline: &fakePipeline{},
		sessions: &fakeSessions{},
		audit:    audit.NewStore(database),
	}
	ts.srv = New(cfg, Deps{
		Pipeline: ts.pipeline,
		Findings: fakeFindings{"F-1": {ID: "F-1", Title: "Shared admin passwords", Severity: "Critical"}},
		Sessions: ts.sessions,
		Registry: reg,
		Audit:    ts.audit,
	})
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, r)
	return w
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCORSHeaders(t *testing.T) {
	ts := newTestServer(t, Config{AllowAll: true})

	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestQuery(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.do(http.MethodPost, "/api/query", `{"query":"what should we prioritize?","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "complex", body["route_type"])
	assert.Equal(t, "s1", body["session_id"])
	assert.NotContains(t, body, "narrative_html")
	assert.Equal(t, "s1", ts.pipeline.last.SessionID)
	assert.NotEmpty(t, ts.pipeline.last.RequestID, "request id comes from middleware")
}

func TestQueryHTML(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.do(http.MethodPost, "/api/query?format=html", `{"query":"patterns?","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["narrative_html"], "<strong>Access Control</strong>")
}

func TestQueryErrors(t *testing.T) {
	ts := newTestServer(t, Config{})

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/query", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/query", `{"query":"  "}`).Code)
}

func TestClassify(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.do(http.MethodPost, "/api/classify", `{"query":"critical findings 2024"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		MaskedQuery    string `json:"masked_query"`
		Classification struct {
			RouteType string         `json:"route_type"`
			Filters   map[string]any `json:"filters"`
		} `json:"classification"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "masked: critical findings 2024", body.MaskedQuery)
	assert.Equal(t, "simple", body.Classification.RouteType)
	assert.Equal(t, map[string]any{"year": float64(2024)}, body.Classification.Filters)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodPost, "/api/classify", `{}`).Code)
}

func TestSchema(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.do(http.MethodGet, "/api/schema", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body schemaResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "finding", body.Entity)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "year", body.Fields[0].Name)
}

func TestFinding(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.do(http.MethodGet, "/api/findings/F-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var f findings.Finding
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, "Shared admin passwords", f.Title)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/findings/F-9", "").Code)
}

func TestDeleteMappings(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.do(http.MethodDelete, "/api/sessions/s1/mappings", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":3}`, w.Body.String())
	assert.Equal(t, []string{"s1"}, ts.sessions.deleted)
}

func TestAuditMounted(t *testing.T) {
	ts := newTestServer(t, Config{})
	require.NoError(t, ts.audit.Log(context.Background(), audit.Entry{RequestID: "r", SessionID: "s1", Route: "simple"}))

	w := ts.do(http.MethodGet, "/api/audit?session_id=s1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []audit.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, Config{})

	w := ts.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func dialChat(t *testing.T, ts *testServer) *websocket.Conn {
	t.Helper()
	httpSrv := httptest.NewServer(ts.srv.Router())
	t.Cleanup(httpSrv.Close)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws/chat"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	return conn
}

func TestWebSocketQuery(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := dialChat(t, ts)

	require.NoError(t, conn.WriteJSON(chatRequest{Type: "query", SessionID: "s1", Content: "what should we prioritize?"}))

	var resp chatResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "result", resp.Type)
	assert.Equal(t, "s1", resp.SessionID)
	require.NotNil(t, resp.Result)
	assert.Equal(t, classifier.Complex, resp.Result.RouteType)
}

func TestWebSocketErrors(t *testing.T) {
	ts := newTestServer(t, Config{})
	conn := dialChat(t, ts)

	tests := []struct {
		msg  string
		want string
	}{
		{`not json`, "invalid message format"},
		{`{"type":"query","content":""}`, "content is required"},
		{`{"type":"shout","content":"hi"}`, "unknown message type: shout"},
	}
	for _, tt := range tests {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.msg)))
		var resp chatResponse
		require.NoError(t, conn.ReadJSON(&resp))
		assert.Equal(t, "error", resp.Type)
		assert.Equal(t, tt.want, resp.Error)
	}
}
