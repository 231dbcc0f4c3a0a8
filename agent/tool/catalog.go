package tool

import (
	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/clinic-appointment-agent/agent/clinic"
	contractx "github.com/tanpawarit/clinic-appointment-agent/agent/contract"
)

const (
	ToolCheckByDoctor         = "check_availability_by_doctor"
	ToolCheckBySpecialization = "check_availability_by_specialization"
	ToolSetAppointment        = "set_appointment"
	ToolCancelAppointment     = "cancel_appointment"
	ToolRescheduleAppointment = "reschedule_appointment"
)

// stepTools is the tool subset each specialist step is bound to.
var stepTools = map[contractx.StepName][]string{
	contractx.StepInformation: {ToolCheckByDoctor, ToolCheckBySpecialization},
	contractx.StepBooking:     {ToolSetAppointment, ToolCancelAppointment, ToolRescheduleAppointment},
}

func allowed(step contractx.StepName, tool string) bool {
	for _, name := range stepTools[step] {
		if name == tool {
			return true
		}
	}
	return false
}

func infosForStep(step contractx.StepName, c *clinic.Catalog) []*schema.ToolInfo {
	all := toolInfos(c)
	names := stepTools[step]
	out := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		out = append(out, all[name])
	}
	return out
}

func toolInfos(c *clinic.Catalog) map[string]*schema.ToolInfo {
	doctors := c.DoctorNames()
	specs := append([]string(nil), c.Specializations...)

	date := func(required bool) *schema.ParameterInfo {
		return &schema.ParameterInfo{Type: schema.String, Desc: "Date in DD-MM-YYYY format", Required: required}
	}
	dateTime := func(desc string) *schema.ParameterInfo {
		return &schema.ParameterInfo{Type: schema.String, Desc: desc, Required: true}
	}
	doctor := func(required bool) *schema.ParameterInfo {
		return &schema.ParameterInfo{Type: schema.String, Desc: "Doctor name in lowercase", Enum: doctors, Required: required}
	}

	return map[string]*schema.ToolInfo{
		ToolCheckByDoctor: {
			Name: ToolCheckByDoctor,
			Desc: "Check the free slots a specific doctor has on a given day. The parameters should be mentioned by the user in the query.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"desired_date": date(true),
				"doctor_name":  doctor(true),
			}),
		},
		ToolCheckBySpecialization: {
			Name: ToolCheckBySpecialization,
			Desc: "Check the free slots of every doctor with a given specialization on a given day. The parameters should be mentioned by the user in the query.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"desired_date":   date(true),
				"specialization": {Type: schema.String, Desc: "Dental specialization", Enum: specs, Required: true},
			}),
		},
		ToolSetAppointment: {
			Name: ToolSetAppointment,
			Desc: "Book a slot with a doctor for the current patient. The parameters MUST be mentioned by the user in the query.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"desired_date": dateTime("Slot in DD-MM-YYYY HH:MM format"),
				"doctor_name":  doctor(true),
			}),
		},
		ToolCancelAppointment: {
			Name: ToolCancelAppointment,
			Desc: "Cancel an appointment of the current patient. If the doctor name is not provided it is inferred from the patient and the date. The parameters MUST be mentioned by the user in the query.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"desired_date": dateTime("Slot in DD-MM-YYYY HH:MM format, or a day in DD-MM-YYYY format to cancel on that day"),
				"doctor_name":  doctor(false),
			}),
		},
		ToolRescheduleAppointment: {
			Name: ToolRescheduleAppointment,
			Desc: "Move an appointment of the current patient to a new slot with the same doctor. The parameters MUST be mentioned by the user in the query.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"old_date":    dateTime("Current slot in DD-MM-YYYY HH:MM format"),
				"new_date":    dateTime("New slot in DD-MM-YYYY HH:MM format"),
				"doctor_name": doctor(true),
			}),
		},
	}
}
