package action

import (
	"context"
	"fmt"

	"github.com/mohitkumar/convoflow/util"
)

var _ Action = new(setContactFieldAction)

type setContactFieldParams struct {
	Field string `mapstructure:"field"`
	Value string `mapstructure:"value"`
}

type setContactFieldAction struct {
	baseAction
	params setContactFieldParams
}

func (s *setContactFieldAction) Validate() error {
	if len(s.params.Field) == 0 {
		return fmt.Errorf("action=%s, field can not be empty", s.uuid)
	}
	return nil
}

func (s *setContactFieldAction) Execute(ctx context.Context, env *Env) (Outcome, error) {
	value := util.ResolveTemplate(env.Vars(), s.params.Value)
	fc := env.FlowContext
	if err := env.Services.Contacts.SetField(ctx, fc.OrganizationId, fc.ContactId, s.params.Field, value); err != nil {
		return Outcome{}, fmt.Errorf("action=%s, updating contact field %s failed %w", s.uuid, s.params.Field, err)
	}
	if env.Contact != nil {
		if env.Contact.Fields == nil {
			env.Contact.Fields = make(map[string]string)
		}
		env.Contact.Fields[s.params.Field] = value
	}
	return Continue(), nil
}
