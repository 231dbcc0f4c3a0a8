package tool

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/tanpawarit/clinic-appointment-agent/agent/appointment"
	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
)

const msgNoAvailability = "No availability in the entire day"

func (g *Gateway) checkByDoctor(ctx context.Context, args argReader) contractx.ToolResult {
	const tool, while = ToolCheckByDoctor, "checking availability"

	day, doctor, err := dayAndName(args, "doctor_name")
	if err != nil {
		return errorf(tool, while, err)
	}
	slots, err := g.store.Find(ctx, appointment.Filter{Day: day, Doctor: doctor, AvailableOnly: true})
	if err != nil {
		return errorf(tool, while, err)
	}
	if len(slots) == 0 {
		return negative(tool, msgNoAvailability)
	}

	times := make([]string, 0, len(slots))
	for _, s := range slots {
		times = append(times, appointment.FormatClock(s.At))
	}
	var b strings.Builder
	b.WriteString("This availability for " + appointment.FormatDate(day) + "\n")
	b.WriteString("Available slots: " + strings.Join(times, ", "))
	return ok(tool, b.String())
}

func (g *Gateway) checkBySpecialization(ctx context.Context, args argReader) contractx.ToolResult {
	const tool, while = ToolCheckBySpecialization, "checking availability"

	day, spec, err := dayAndName(args, "specialization")
	if err != nil {
		return errorf(tool, while, err)
	}
	slots, err := g.store.Find(ctx, appointment.Filter{Day: day, Specialization: spec, AvailableOnly: true})
	if err != nil {
		return errorf(tool, while, err)
	}
	if len(slots) == 0 {
		return negative(tool, msgNoAvailability)
	}

	byDoctor := make(map[string][]string)
	for _, s := range slots {
		byDoctor[s.Doctor] = append(byDoctor[s.Doctor], appointment.FormatClock12(s.At))
	}
	doctors := make([]string, 0, len(byDoctor))
	for d := range byDoctor {
		doctors = append(doctors, d)
	}
	sort.Strings(doctors)

	var b strings.Builder
	b.WriteString("This availability for " + appointment.FormatDate(day) + "\n")
	for _, d := range doctors {
		b.WriteString(d + ". Available slots: \n")
		b.WriteString(strings.Join(byDoctor[d], ", \n"))
		b.WriteString("\n")
	}
	return ok(tool, b.String())
}

func dayAndName(args argReader, nameKey string) (day time.Time, name string, err error) {
	raw, err := args.required("desired_date")
	if err != nil {
		return day, "", err
	}
	// A full slot is accepted too; only its day matters here.
	t, _, err := appointment.ParseDateOrSlot(raw)
	if err != nil {
		return day, "", err
	}
	name, err = args.required(nameKey)
	if err != nil {
		return day, "", err
	}
	return t, strings.TrimSpace(name), nil
}
