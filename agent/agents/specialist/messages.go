package specialist

import (
	"github.com/cloudwego/eino/schema"

	statex "github.com/tanpawarit/clinic-appointment-agent/agent/state"
)

// toSchemaMessages converts thread history into model input. Tool messages
// are not replayed: they are only meaningful next to the call that produced them.
func toSchemaMessages(history []statex.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case statex.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case statex.RoleAssistant:
			out = append(out, &schema.Message{Role: schema.Assistant, Content: m.Content, Name: m.Name})
		case statex.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		}
	}
	return out
}
