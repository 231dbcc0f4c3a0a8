package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/tanpawarit/clinic-appointment-agent/agent/clinic"
	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
)

var (
	//go:embed template/supervisor.txt
	supervisorRaw string

	//go:embed template/information.txt
	informationRaw string

	//go:embed template/booking.txt
	bookingRaw string
)

// PromptSet holds the system prompt templates. They are Go templates
// rendered by the eino chat template of each agent.
type PromptSet struct {
	Supervisor  string
	Information string
	Booking     string
}

func LoadPromptSet() PromptSet {
	return PromptSet{
		Supervisor:  strings.TrimSpace(supervisorRaw),
		Information: strings.TrimSpace(informationRaw),
		Booking:     strings.TrimSpace(bookingRaw),
	}
}

// ForStep returns the system template of a specialist step.
func (p PromptSet) ForStep(step contractx.StepName) (string, error) {
	var tpl string
	switch step {
	case contractx.StepInformation:
		tpl = p.Information
	case contractx.StepBooking:
		tpl = p.Booking
	}
	if tpl == "" {
		return "", fmt.Errorf("%w: step=%s", contractx.ErrPromptMissing, step)
	}
	return tpl, nil
}

type Worker struct {
	Name        string
	Description string
}

// Workers describes the dispatchable steps to the supervisor.
var Workers = []Worker{
	{Name: string(contractx.StepInformation), Description: "specialized agent to provide information related to availability of doctors or any FAQs related to the clinic."},
	{Name: string(contractx.StepBooking), Description: "specialized agent to only book, cancel or reschedule appointments"},
}

// SupervisorVars are the template variables of the supervisor prompt.
func SupervisorVars(identity int64, now time.Time, maxHops int) map[string]any {
	return map[string]any{
		"workers":  Workers,
		"now":      now.Format("January 02, 2006 at 03:04 PM"),
		"identity": identity,
		"max_hops": maxHops,
	}
}

// SpecialistVars are the template variables shared by the specialist prompts.
// year overrides the calendar year of now when positive.
func SpecialistVars(identity int64, now time.Time, year int, c *clinic.Catalog) map[string]any {
	if year <= 0 {
		year = now.Year()
	}
	vars := map[string]any{
		"identity": identity,
		"today":    now.Format("02-01-2006"),
		"year":     year,
	}
	if c != nil {
		vars["doctors"] = strings.Join(c.DoctorNames(), ", ")
		vars["specializations"] = strings.Join(c.Specializations, ", ")
	}
	return vars
}
