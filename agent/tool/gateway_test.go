package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpawarit/clinic-appointment-agent/agent/appointment"
	"github.com/tanpawarit/clinic-appointment-agent/agent/clinic"
	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
)

const patient = int64(1000082)

func at(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := appointment.ParseSlot(s)
	require.NoError(t, err)
	return v
}

func fixture(t *testing.T) []appointment.Slot {
	t.Helper()
	return []appointment.Slot{
		{At: at(t, "05-08-2025 08:00"), Doctor: "john doe", Specialization: "general_dentist", Available: true},
		{At: at(t, "05-08-2025 08:30"), Doctor: "john doe", Specialization: "general_dentist", Available: true},
		{At: at(t, "05-08-2025 13:30"), Doctor: "emily johnson", Specialization: "general_dentist", Available: true},
		{At: at(t, "05-08-2025 09:00"), Doctor: "jane smith", Specialization: "cosmetic_dentist", Available: false, Patient: patient},
		{At: at(t, "05-08-2025 10:00"), Doctor: "john doe", Specialization: "general_dentist", Available: false, Patient: patient},
		{At: at(t, "06-08-2025 08:00"), Doctor: "john doe", Specialization: "general_dentist", Available: true},
	}
}

type recordingNotifier struct {
	events []BookingEvent
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, evt BookingEvent) error {
	r.events = append(r.events, evt)
	return r.err
}

type failingStore struct{ appointment.Store }

func (failingStore) Find(context.Context, appointment.Filter) ([]appointment.Slot, error) {
	return nil, errors.New("disk on fire")
}

func newGateway(t *testing.T, opts ...Option) (*Gateway, *appointment.MemoryStore) {
	t.Helper()
	cat, err := clinic.Default()
	require.NoError(t, err)
	store := appointment.NewMemoryStore(fixture(t)...)
	return NewGateway(store, cat, opts...), store
}

func call(g *Gateway, step contractx.StepName, tool string, args map[string]any) contractx.ToolResult {
	return g.Execute(context.Background(), step, patient, contractx.ToolRequest{Tool: tool, Args: args})
}

func TestBuildForStepBindsToolSubset(t *testing.T) {
	t.Parallel()

	g, _ := newGateway(t)

	infos, exec := g.BuildForStep(contractx.StepInformation)
	require.Len(t, infos, 2)
	assert.Equal(t, ToolCheckByDoctor, infos[0].Name)
	assert.Equal(t, ToolCheckBySpecialization, infos[1].Name)
	require.NotNil(t, exec)

	infos, _ = g.BuildForStep(contractx.StepBooking)
	require.Len(t, infos, 3)
	assert.Equal(t, []string{ToolSetAppointment, ToolCancelAppointment, ToolRescheduleAppointment},
		[]string{infos[0].Name, infos[1].Name, infos[2].Name})

	res := exec(context.Background(), patient, contractx.ToolRequest{Tool: ToolSetAppointment})
	assert.Equal(t, contractx.ToolError, res.Status)
	assert.Contains(t, res.Output, "unavailable for step=information_node")
}

func TestCheckByDoctor(t *testing.T) {
	t.Parallel()

	g, _ := newGateway(t)

	res := call(g, contractx.StepInformation, ToolCheckByDoctor, map[string]any{"desired_date": "05-08-2025", "doctor_name": "john doe"})
	assert.Equal(t, contractx.ToolOK, res.Status)
	assert.Equal(t, "This availability for 05-08-2025\nAvailable slots: 08:00, 08:30", res.Output)

	res = call(g, contractx.StepInformation, ToolCheckByDoctor, map[string]any{"desired_date": "07-08-2025", "doctor_name": "john doe"})
	assert.Equal(t, contractx.ToolNegative, res.Status)
	assert.Equal(t, "No availability in the entire day", res.Output)

	res = call(g, contractx.StepInformation, ToolCheckByDoctor, map[string]any{"desired_date": "2025/08/05", "doctor_name": "john doe"})
	assert.Equal(t, contractx.ToolError, res.Status)
	assert.True(t, strings.HasPrefix(res.Output, "An error occurred while checking availability: "))
}

func TestCheckBySpecializationGroupsByDoctor(t *testing.T) {
	t.Parallel()

	g, _ := newGateway(t)

	res := call(g, contractx.StepInformation, ToolCheckBySpecialization, map[string]any{"desired_date": "05-08-2025", "specialization": "general_dentist"})
	require.Equal(t, contractx.ToolOK, res.Status)
	want := "This availability for 05-08-2025\n" +
		"emily johnson. Available slots: \n1:30 PM\n" +
		"john doe. Available slots: \n8:00 AM, \n8:30 AM\n"
	assert.Equal(t, want, res.Output)
}

func TestSetAppointmentClaimsSlot(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	clock := time.Date(2025, 8, 4, 15, 30, 0, 0, time.UTC)
	g, store := newGateway(t, WithNotifier(notifier), WithClock(func() time.Time { return clock }))

	args := map[string]any{"desired_date": "05-08-2025 08:00", "doctor_name": "john doe", "id_number": 999}
	res := call(g, contractx.StepBooking, ToolSetAppointment, args)
	require.Equal(t, "Successfully done", res.Output)

	got, _ := store.Find(context.Background(), appointment.Filter{At: at(t, "05-08-2025 08:00"), Doctor: "john doe"})
	require.Len(t, got, 1)
	assert.Equal(t, patient, got[0].Patient, "identity comes from the session, not the arguments")

	avail := call(g, contractx.StepInformation, ToolCheckByDoctor, map[string]any{"desired_date": "05-08-2025", "doctor_name": "john doe"})
	assert.NotContains(t, avail.Output, "08:00")

	res = call(g, contractx.StepBooking, ToolSetAppointment, args)
	assert.Equal(t, contractx.ToolNegative, res.Status)
	assert.Equal(t, "No available appointments for that particular case", res.Output)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, EventBooked, notifier.events[0].Kind)
	assert.True(t, notifier.events[0].OccurredAt.Equal(clock))
}

func TestCancelAppointmentCases(t *testing.T) {
	t.Parallel()

	g, store := newGateway(t)

	before := store.Snapshot()
	res := call(g, contractx.StepBooking, ToolCancelAppointment, map[string]any{"desired_date": "06-08-2025 08:00", "doctor_name": "john doe"})
	assert.Equal(t, "You don't have any appointment with that specifications", res.Output)
	assert.Equal(t, before, store.Snapshot())

	res = call(g, contractx.StepBooking, ToolCancelAppointment, map[string]any{"desired_date": "05-08-2025"})
	assert.Equal(t, contractx.ToolNegative, res.Status)
	assert.Equal(t, "You have multiple appointments on that day:\n"+
		"- Dr. Jane Smith at 05-08-2025 09:00\n"+
		"- Dr. John Doe at 05-08-2025 10:00\n"+
		"Please specify which one to cancel.", res.Output)
	assert.Equal(t, before, store.Snapshot())

	res = call(g, contractx.StepBooking, ToolCancelAppointment, map[string]any{"desired_date": "05-08-2025", "doctor_name": "jane smith"})
	assert.Equal(t, contractx.ToolOK, res.Status)
	assert.Equal(t, "Your appointment with Dr. Jane Smith at 05-08-2025 09:00 has been cancelled.", res.Output)
}

func TestRescheduleIsAtomic(t *testing.T) {
	t.Parallel()

	g, store := newGateway(t)
	before := store.Snapshot()

	res := call(g, contractx.StepBooking, ToolRescheduleAppointment, map[string]any{
		"old_date": "05-08-2025 10:00", "new_date": "05-08-2025 13:30", "doctor_name": "john doe",
	})
	assert.Equal(t, "Not available slots in the desired period", res.Output)
	assert.Equal(t, before, store.Snapshot())

	res = call(g, contractx.StepBooking, ToolRescheduleAppointment, map[string]any{
		"old_date": "05-08-2025 10:00", "new_date": "06-08-2025 08:00", "doctor_name": "john doe",
	})
	require.Equal(t, contractx.ToolOK, res.Status)
	assert.Equal(t, "Successfully rescheduled for the desired time", res.Output)

	mine, _ := store.Find(context.Background(), appointment.Filter{Patient: patient, Doctor: "john doe"})
	require.Len(t, mine, 1)
	assert.True(t, mine[0].At.Equal(at(t, "06-08-2025 08:00")))
}

func TestStoreFailureBecomesText(t *testing.T) {
	t.Parallel()

	cat, err := clinic.Default()
	require.NoError(t, err)
	var observed []contractx.ToolStatus
	g := NewGateway(failingStore{}, cat, WithObserver(func(_ string, s contractx.ToolStatus, _ time.Duration) {
		observed = append(observed, s)
	}))

	res := call(g, contractx.StepInformation, ToolCheckByDoctor, map[string]any{"desired_date": "05-08-2025", "doctor_name": "john doe"})
	assert.Equal(t, contractx.ToolError, res.Status)
	assert.Equal(t, "An error occurred while checking availability: disk on fire", res.Output)
	assert.Equal(t, []contractx.ToolStatus{contractx.ToolError}, observed)
}

func TestNotifierFailureDoesNotUndoBooking(t *testing.T) {
	t.Parallel()

	g, store := newGateway(t, WithNotifier(&recordingNotifier{err: errors.New("qstash down")}))
	res := call(g, contractx.StepBooking, ToolSetAppointment, map[string]any{"desired_date": "05-08-2025 08:30", "doctor_name": "john doe"})
	require.Equal(t, contractx.ToolOK, res.Status)

	got, _ := store.Find(context.Background(), appointment.Filter{Patient: patient})
	assert.Len(t, got, 3)
}
