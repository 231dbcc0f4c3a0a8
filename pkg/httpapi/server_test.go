package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
	nodex "github.com/tanpawarit/clinic-appointment-agent/agent/nodes"
	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

type handleCall struct {
	threadID string
	identity int64
	text     string
}

type fakeService struct {
	out     nodex.GraphOutput
	err     error
	calls   []handleCall
	thread  *statex.SessionState
	deleted []string
}

func (f *fakeService) HandleMessage(ctx context.Context, threadID string, identity int64, text string) (nodex.GraphOutput, error) {
	f.calls = append(f.calls, handleCall{threadID: threadID, identity: identity, text: text})
	if f.err != nil {
		return nodex.GraphOutput{}, f.err
	}
	out := f.out
	out.ThreadID = threadID
	return out, nil
}

func (f *fakeService) Thread(ctx context.Context, threadID string) (*statex.SessionState, error) {
	if f.thread == nil || f.thread.ThreadID != threadID {
		return nil, statex.ErrStateNotFound
	}
	return f.thread, nil
}

func (f *fakeService) DeleteThread(ctx context.Context, threadID string) error {
	f.deleted = append(f.deleted, threadID)
	return nil
}

type fakeRecorder struct {
	paths []string
}

func (f *fakeRecorder) RecordHTTPRequest(method, path string, status int, elapsed time.Duration) {
	f.paths = append(f.paths, fmt.Sprintf("%s %s %d", method, path, status))
}

func newTestServer(svc Service, opts ...Option) *Server {
	return New(Config{RateLimit: 0}, svc, opts...)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestExecuteReturnsConversation(t *testing.T) {
	now := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	svc := &fakeService{out: nodex.GraphOutput{
		Reply: "Dr. Jane Smith is free at 09:00.",
		Phase: statex.PhaseTerminated,
		Messages: []statex.Message{
			{Role: statex.RoleUser, Content: "is jane smith free?", CreatedAt: now},
			{Role: statex.RoleAssistant, Content: "Dr. Jane Smith is free at 09:00.", Name: "information_node", CreatedAt: now},
		},
	}}
	h := newTestServer(svc).Handler()

	rec := do(t, h, http.MethodPost, "/execute", `{"id_number":1000082,"messages":"is jane smith free?","thread_id":"t-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp executeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "t-1", resp.ThreadID)
	assert.Equal(t, "terminated", resp.Phase)
	assert.Equal(t, "Dr. Jane Smith is free at 09:00.", resp.Reply)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "information_node", resp.Messages[1].Name)

	require.Len(t, svc.calls, 1)
	assert.Equal(t, handleCall{threadID: "t-1", identity: 1000082, text: "is jane smith free?"}, svc.calls[0])
}

func TestExecuteGeneratesThreadID(t *testing.T) {
	svc := &fakeService{out: nodex.GraphOutput{Reply: "hi", Phase: statex.PhaseTerminated}}
	s := newTestServer(svc)
	s.newID = func() string { return "generated-id" }

	rec := do(t, s.Handler(), http.MethodPost, "/execute", `{"id_number":1000082,"messages":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.calls, 1)
	assert.Equal(t, "generated-id", svc.calls[0].threadID)
}

func TestExecuteErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"empty message", nodex.ErrInvalidMessage, http.StatusBadRequest},
		{"bad identity", statex.ErrInvalidIdentity, http.StatusBadRequest},
		{"identity mismatch", fmt.Errorf("%w: thread=t-1", statex.ErrIdentityMismatch), http.StatusForbidden},
		{"model down", fmt.Errorf("%w: timeout", contractx.ErrModelInvoke), http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", fmt.Errorf("redis: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(&fakeService{err: tc.err}).Handler()
			rec := do(t, h, http.MethodPost, "/execute", `{"id_number":1000082,"messages":"x","thread_id":"t-1"}`)
			assert.Equal(t, tc.want, rec.Code)
			assert.NotContains(t, rec.Body.String(), "redis")
		})
	}
}

func TestExecuteRejectsBadJSON(t *testing.T) {
	svc := &fakeService{}
	h := newTestServer(svc).Handler()

	rec := do(t, h, http.MethodPost, "/execute", `{"id_number":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/execute", `{"id_number":1,"messages":"x","extra":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestThreadEndpoints(t *testing.T) {
	st := statex.NewSessionState("t-1", 1000082, time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC))
	svc := &fakeService{thread: st}
	h := newTestServer(svc).Handler()

	rec := do(t, h, http.MethodGet, "/threads/t-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp threadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "t-1", resp.ThreadID)

	rec = do(t, h, http.MethodGet, "/threads/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/threads/t-1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"t-1"}, svc.deleted)
}

func TestHealthzAndMetrics(t *testing.T) {
	recorder := &fakeRecorder{}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("clinic_runs_total 1\n"))
	})
	h := newTestServer(&fakeService{}, WithMetrics(metrics, recorder)).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clinic_runs_total")

	assert.Equal(t, []string{"GET /healthz 200", "GET /metrics 200"}, recorder.paths)
}

func TestRateLimitPerClient(t *testing.T) {
	s := New(Config{RateLimit: 0.001, RateBurst: 1}, &fakeService{})
	h := s.Handler()

	first := do(t, h, http.MethodGet, "/healthz", "")
	second := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.9:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientLimiterPrunesIdleClients(t *testing.T) {
	now := time.Date(2025, 8, 4, 9, 0, 0, 0, time.UTC)
	l := newClientLimiter(1, 1, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	now = now.Add(50 * time.Second)
	assert.True(t, l.allow("10.0.0.2"))
	require.Equal(t, 2, l.size())

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, l.prune())
	assert.Equal(t, 1, l.size())

	// a pruned client starts with a fresh bucket
	assert.True(t, l.allow("10.0.0.1"))
}

func TestPruneClientsStopsWithContext(t *testing.T) {
	s := New(Config{RateLimit: 1, ClientIdle: time.Millisecond}, &fakeService{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.PruneClients(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("PruneClients did not return after cancel")
	}
}
