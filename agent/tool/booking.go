package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/clinic-appointment-agent/agent/appointment"
	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
)

const (
	msgBooked          = "Successfully done"
	msgNoSlot          = "No available appointments for that particular case"
	msgNoAppointment   = "You don't have any appointment with that specifications"
	msgNoSlotInPeriod  = "Not available slots in the desired period"
	msgRescheduled     = "Successfully rescheduled for the desired time"
	msgCancelledFormat = "Your appointment with Dr. %s at %s has been cancelled."
)

func (g *Gateway) setAppointment(ctx context.Context, patient int64, args argReader) contractx.ToolResult {
	const tool, while = ToolSetAppointment, "setting appointment"

	at, err := slotArg(args, "desired_date")
	if err != nil {
		return errorf(tool, while, err)
	}
	doctor, err := args.required("doctor_name")
	if err != nil {
		return errorf(tool, while, err)
	}

	key := appointment.Key{At: at, Doctor: strings.TrimSpace(doctor)}
	if err := g.store.Claim(ctx, key, patient); err != nil {
		if errors.Is(err, appointment.ErrSlotUnavailable) {
			return negative(tool, msgNoSlot)
		}
		return errorf(tool, while, err)
	}

	g.notify(ctx, BookingEvent{Kind: EventBooked, Patient: patient, Doctor: key.Doctor, At: at})
	return ok(tool, msgBooked)
}

func (g *Gateway) cancelAppointment(ctx context.Context, patient int64, args argReader) contractx.ToolResult {
	const tool, while = ToolCancelAppointment, "cancelling appointment"

	raw, err := args.required("desired_date")
	if err != nil {
		return errorf(tool, while, err)
	}
	at, hasTime, err := appointment.ParseDateOrSlot(raw)
	if err != nil {
		return errorf(tool, while, err)
	}

	filter := appointment.Filter{Doctor: strings.TrimSpace(args.str("doctor_name")), Patient: patient}
	if hasTime {
		filter.At = at
	} else {
		filter.Day = at
	}
	matches, err := g.store.Find(ctx, filter)
	if err != nil {
		return errorf(tool, while, err)
	}

	switch len(matches) {
	case 0:
		return negative(tool, msgNoAppointment)
	case 1:
		m := matches[0]
		if err := g.store.Release(ctx, m.Key(), patient); err != nil {
			if errors.Is(err, appointment.ErrNoBooking) {
				return negative(tool, msgNoAppointment)
			}
			return errorf(tool, while, err)
		}
		g.notify(ctx, BookingEvent{Kind: EventCancelled, Patient: patient, Doctor: m.Doctor, At: m.At})
		return ok(tool, fmt.Sprintf(msgCancelledFormat, titleCase(m.Doctor), appointment.FormatSlot(m.At)))
	default:
		var b strings.Builder
		b.WriteString("You have multiple appointments on that day:\n")
		for _, m := range matches {
			fmt.Fprintf(&b, "- Dr. %s at %s\n", titleCase(m.Doctor), appointment.FormatSlot(m.At))
		}
		b.WriteString("Please specify which one to cancel.")
		return negative(tool, b.String())
	}
}

func (g *Gateway) rescheduleAppointment(ctx context.Context, patient int64, args argReader) contractx.ToolResult {
	const tool, while = ToolRescheduleAppointment, "rescheduling"

	oldAt, err := slotArg(args, "old_date")
	if err != nil {
		return errorf(tool, while, err)
	}
	newAt, err := slotArg(args, "new_date")
	if err != nil {
		return errorf(tool, while, err)
	}
	doctor, err := args.required("doctor_name")
	if err != nil {
		return errorf(tool, while, err)
	}
	doctor = strings.TrimSpace(doctor)

	from := appointment.Key{At: oldAt, Doctor: doctor}
	to := appointment.Key{At: newAt, Doctor: doctor}
	if err := g.store.Move(ctx, from, to, patient); err != nil {
		switch {
		case errors.Is(err, appointment.ErrSlotUnavailable):
			return negative(tool, msgNoSlotInPeriod)
		case errors.Is(err, appointment.ErrNoBooking):
			return negative(tool, msgNoAppointment)
		default:
			return errorf(tool, while, err)
		}
	}

	g.notify(ctx, BookingEvent{Kind: EventRescheduled, Patient: patient, Doctor: doctor, At: newAt, PreviousAt: &oldAt})
	return ok(tool, msgRescheduled)
}

func (g *Gateway) notify(ctx context.Context, evt BookingEvent) {
	evt.OccurredAt = g.now().UTC()
	if err := g.notifier.Notify(ctx, evt); err != nil {
		log.Warn().Err(err).
			Str("event", string(evt.Kind)).
			Str("doctor", evt.Doctor).
			Msg("booking notification failed")
	}
}

func slotArg(args argReader, key string) (time.Time, error) {
	raw, err := args.required(key)
	if err != nil {
		return time.Time{}, err
	}
	return appointment.ParseSlot(raw)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
