package metrics

import (
	"errors"
	"io"
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

func TestHooksRecordActivity(t *testing.T) {
	m := New()
	hooks := m.Hooks()

	hooks.OnRoute("booking_node")
	hooks.OnRoute("booking_node")
	hooks.OnSpecialist(contractx.StepBooking, contractx.OutcomeAnswered, 20*time.Millisecond)
	hooks.OnGuard(false)
	m.ObserveTool("set_appointment", contractx.ToolOK, time.Millisecond)
	m.ObserveRun(nodex.GraphOutput{Phase: statex.PhaseTerminated}, time.Second, nil)
	m.ObserveRun(nodex.GraphOutput{}, time.Second, errors.New("boom"))

	body := scrape(t, m)
	for _, line := range []string{
		`clinic_route_decisions_total{next="booking_node"} 2`,
		`clinic_specialist_runs_total{outcome="answered",step="booking_node"} 1`,
		`clinic_guard_verdicts_total{allowed="false"} 1`,
		`clinic_tool_calls_total{status="ok",tool="set_appointment"} 1`,
		`clinic_runs_total{phase="terminated"} 1`,
		`clinic_runs_total{phase="error"} 1`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("POST", "/execute", 200, 5*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `clinic_http_requests_total{method="POST",path="/execute",status="200"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}
