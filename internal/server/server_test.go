package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cybergodev/scorehider"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const reportPage = `<html><body>
<section><div class="card"><h2>Your Total Score</h2><div class="row"><div class="score">1500</div></div></div></section>
<section><div class="card"><h2>SAT Math</h2><div class="row"><div class="score">720</div></div></div></section>
<section><div class="card"><h2>SAT Reading and Writing</h2><div class="row"><div class="score">480</div></div></div></section>
<div id="feed"></div>
</body></html>`

type recordingSink struct {
	mu    sync.Mutex
	tiers []scorehider.Tier
}

func (r *recordingSink) Emit(_ context.Context, plan *scorehider.EffectPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers = append(r.tiers, plan.Tier)
	return nil
}

func (r *recordingSink) Tiers() []scorehider.Tier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scorehider.Tier(nil), r.tiers...)
}

type testServer struct {
	*Server
	registry *prometheus.Registry
	metrics  *scorehider.Metrics
	sink     *recordingSink
}

func newTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := scorehider.NewMetrics(reg)
	pc := scorehider.DefaultConfig()
	pc.Metrics = metrics
	pc.ReactionCooldown = -1
	proc, err := scorehider.New(pc)
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Close() })

	sink := &recordingSink{}
	srv, err := NewServer(Options{
		Processor: proc,
		Logger:    zap.NewNop(),
		Registry:  reg,
		Metrics:   metrics,
		Sink:      sink,
	}, cfg)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, registry: reg, metrics: metrics, sink: sink}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (ts *testServer) create(t *testing.T, page string) SessionResponse {
	t.Helper()
	body, err := json.Marshal(CreateSessionRequest{HTML: page})
	require.NoError(t, err)
	rec := ts.do(t, http.MethodPost, "/api/v1/sessions", string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[SessionResponse](t, rec)
}

func TestNewServerValidation(t *testing.T) {
	proc := scorehider.NewWithDefaults()
	defer proc.Close()

	_, err := NewServer(Options{Logger: zap.NewNop()}, nil)
	assert.Error(t, err)

	_, err = NewServer(Options{Processor: proc}, nil)
	assert.Error(t, err)

	srv, err := NewServer(Options{Processor: proc, Logger: zap.NewNop()}, nil)
	require.NoError(t, err)
	defer srv.Close()
	assert.Equal(t, "localhost", srv.config.Host)
	assert.Equal(t, 8484, srv.config.Port)
	assert.Equal(t, 256, srv.config.MaxSessions)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HealthResponse{Status: "ok"}, decode[HealthResponse](t, rec))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	ts.create(t, reportPage)

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scorehider_sessions_active 1")
	assert.Contains(t, rec.Body.String(), "scorehider_scores_hidden_total")
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	created := ts.create(t, reportPage)
	require.NotEmpty(t, created.ID)
	require.NotNil(t, created.Outcome)
	assert.Equal(t, 3, created.Outcome.Scan.Hidden)
	assert.True(t, created.State.AutoHideEnabled)
	require.Len(t, created.Scores, 3)
	assert.Equal(t, scorehider.CategoryTotal, created.Scores[0].Category)
	assert.Equal(t, scorehider.CategoryMath, created.Scores[1].Category)

	base := "/api/v1/sessions/" + created.ID

	rec := ts.do(t, http.MethodGet, base+"/document", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()
	assert.NotContains(t, page, ">1500<")
	assert.Contains(t, page, "hidden-score-text")
	assert.Contains(t, page, "sat-score-hider-big-button")

	rec = ts.do(t, http.MethodPost, base+"/scores/"+created.Scores[0].ID+"/reveal",
		`{"bounds": {"left": 10, "top": 20, "width": 80, "height": 24}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	revealed := decode[SessionResponse](t, rec)
	require.NotNil(t, revealed.Outcome)
	assert.Equal(t, scorehider.TierGood, revealed.Outcome.Tier)
	assert.True(t, revealed.Scores[0].Revealed)

	require.Eventually(t, func() bool {
		return len(ts.sink.Tiers()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []scorehider.Tier{scorehider.TierGood}, ts.sink.Tiers())

	rec = ts.do(t, http.MethodGet, base+"/document", "")
	assert.Contains(t, rec.Body.String(), ">1500<")

	// Reveal without a body.
	rec = ts.do(t, http.MethodPost, base+"/scores/"+created.Scores[2].ID+"/reveal", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, scorehider.TierBad, decode[SessionResponse](t, rec).Outcome.Tier)

	rec = ts.do(t, http.MethodPost, base+"/scores/score-99/reveal", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[SessionResponse](t, rec)
	assert.Nil(t, got.Outcome)
	assert.Len(t, got.Scores, 3)

	rec = ts.do(t, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0.0, testutil.ToFloat64(ts.metrics.ActiveSessions))

	rec = ts.do(t, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session not found", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodDelete, base, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionCommands(t *testing.T) {
	ts := newTestServer(t, nil)
	created := ts.create(t, reportPage)
	base := "/api/v1/sessions/" + created.ID

	rec := ts.do(t, http.MethodPost, base+"/commands", `{"action": "revealAllScores"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SessionResponse](t, rec)
	assert.True(t, resp.State.ScoresRevealed)
	for _, s := range resp.Scores {
		assert.True(t, s.Revealed, s.ID)
	}

	rec = ts.do(t, http.MethodPost, base+"/commands", `{"action": "hideAllScores"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[SessionResponse](t, rec)
	assert.False(t, resp.State.ScoresRevealed)
	assert.Equal(t, 3, resp.Outcome.Scan.Hidden)

	rec = ts.do(t, http.MethodPost, base+"/commands", `{"action": "toggleAutoHide", "enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[SessionResponse](t, rec).State.AutoHideEnabled)

	rec = ts.do(t, http.MethodPost, base+"/commands", `{"action": "launchRocket"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "launchRocket")

	rec = ts.do(t, http.MethodPost, base+"/commands", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/commands", `{"action": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionMutations(t *testing.T) {
	ts := newTestServer(t, nil)
	created := ts.create(t, reportPage)
	base := "/api/v1/sessions/" + created.ID

	rec := ts.do(t, http.MethodPost, base+"/mutations",
		`{"parentId": "feed", "html": "<section><div class=\"card\"><h2>SAT Math</h2><div class=\"row\"><div class=\"score\">640</div></div></div></section>"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SessionResponse](t, rec)
	assert.Positive(t, resp.Outcome.Added)
	assert.Equal(t, 1, resp.Outcome.Scan.Hidden)
	assert.Len(t, resp.Scores, 4)

	rec = ts.do(t, http.MethodPost, base+"/mutations", `{"added": 0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[SessionResponse](t, rec).Outcome.Scan.Skipped)

	rec = ts.do(t, http.MethodPost, base+"/mutations", `{"parentId": "missing", "html": "<p>x</p>"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	deep := strings.Repeat("<div>", scorehider.DefaultMaxDepth) + "1500"
	rec = ts.do(t, http.MethodPost, base+"/mutations", `{"parentId": "feed", "html": "`+deep+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, base+"/scan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[SessionResponse](t, rec).Outcome.Scan.Hidden)
}

func TestCreateSessionErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{"html": `, http.StatusBadRequest},
		{"missing html", `{}`, http.StatusBadRequest},
		{"invalid settings", `{"html": "<p>1500</p>", "settings": "nope"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/sessions", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateSessionWithSettings(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `{"html": ` + jsonString(t, reportPage) + `,
		"settings": {"satScoreSettings": {"math": {"good": {"min": 790, "max": 800}, "mid": {"min": 600, "max": 789}, "bad": {"min": 200, "max": 599}}}}}`
	rec := ts.do(t, http.MethodPost, "/api/v1/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[SessionResponse](t, rec)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/scores/"+created.Scores[1].ID+"/reveal", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scorehider.TierMid, decode[SessionResponse](t, rec).Outcome.Tier)
}

func TestMaxSessionsEvictsOldest(t *testing.T) {
	ts := newTestServer(t, &Config{MaxSessions: 1})

	first := ts.create(t, reportPage)
	second := ts.create(t, reportPage)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/sessions/"+first.ID, "").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/sessions/"+second.ID, "").Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.ActiveSessions))
}

func TestBroadcastSettings(t *testing.T) {
	ts := newTestServer(t, nil)
	created := ts.create(t, reportPage)

	table := scorehider.DefaultRangeTable()
	table[scorehider.CategoryTotal] = scorehider.TierRanges{
		Good: &scorehider.Range{Min: 1550, Max: 1600},
		Mid:  &scorehider.Range{Min: 1000, Max: 1549},
		Bad:  &scorehider.Range{Min: 400, Max: 999},
	}
	n := ts.BroadcastSettings(context.Background(), scorehider.Settings{Ranges: table})
	assert.Equal(t, 1, n)
	require.NotNil(t, ts.Settings())

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/scores/"+created.Scores[0].ID+"/reveal", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, scorehider.TierMid, decode[SessionResponse](t, rec).Outcome.Tier)

	// New sessions start with the broadcast settings.
	next := ts.create(t, reportPage)
	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+next.ID+"/scores/"+next.Scores[0].ID+"/reveal", "")
	assert.Equal(t, scorehider.TierMid, decode[SessionResponse](t, rec).Outcome.Tier)
}

func TestHide(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/hide", `{"html": `+jsonString(t, reportPage)+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[HideResponse](t, rec)
	assert.Len(t, resp.Scores, 3)
	assert.NotContains(t, resp.HTML, ">720<")

	rec = ts.do(t, http.MethodPost, "/api/v1/hide", `{"html": "<p>nothing to see</p>"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[HideResponse](t, rec).Scores)
	assert.Contains(t, rec.Body.String(), `"scores":[]`)

	rec = ts.do(t, http.MethodPost, "/api/v1/hide", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/hide", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{scorehider.ErrScoreNotFound, http.StatusNotFound},
		{scorehider.ErrElementNotFound, http.StatusNotFound},
		{scorehider.ErrUnknownAction, http.StatusBadRequest},
		{scorehider.ErrInvalidSettings, http.StatusBadRequest},
		{scorehider.ErrMaxDepthExceeded, http.StatusUnprocessableEntity},
		{scorehider.ErrInputTooLarge, http.StatusRequestEntityTooLarge},
		{scorehider.ErrSessionClosed, http.StatusGone},
		{scorehider.ErrProcessingTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{scorehider.ErrProcessorClosed, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestCloseStopsSessions(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.create(t, reportPage)
	ts.create(t, reportPage)
	require.Equal(t, 2.0, testutil.ToFloat64(ts.metrics.ActiveSessions))

	ts.Close()
	assert.Equal(t, 0.0, testutil.ToFloat64(ts.metrics.ActiveSessions))
	assert.Equal(t, 0, ts.sessions.Len())
}

func jsonString(t *testing.T, s string) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}
