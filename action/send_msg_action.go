package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/util"
)

var _ Action = new(sendMsgAction)

type sendMsgParams struct {
	Text        string   `mapstructure:"text"`
	Attachments []string `mapstructure:"attachments"`
}

type sendMsgAction struct {
	baseAction
	params sendMsgParams
}

func (s *sendMsgAction) Validate() error {
	if len(strings.TrimSpace(s.params.Text)) == 0 && len(s.params.Attachments) == 0 {
		return fmt.Errorf("action=%s, send_msg needs text or an attachment", s.uuid)
	}
	return nil
}

func (s *sendMsgAction) Execute(ctx context.Context, env *Env) (Outcome, error) {
	vars := env.Vars()
	fc := env.FlowContext
	msg := model.OutboundMessage{
		OrganizationId: fc.OrganizationId,
		ContactId:      fc.ContactId,
		ContextId:      fc.Id,
		FlowUuid:       fc.FlowUuid,
		NodeUuid:       fc.NodeUuid,
		Body:           util.ResolveTemplate(vars, s.params.Text),
	}
	if len(s.params.Attachments) != 0 {
		msg.Media = parseAttachment(util.ResolveTemplate(vars, s.params.Attachments[0]))
	}
	if err := env.Services.Sender.Send(ctx, msg); err != nil {
		return Outcome{}, fmt.Errorf("action=%s, send failed %w", s.uuid, err)
	}
	return Continue(), nil
}

// parseAttachment accepts "content/type:url" or a bare url.
func parseAttachment(att string) *model.Media {
	if idx := strings.Index(att, ":"); idx > 0 && strings.Contains(att[:idx], "/") {
		return &model.Media{ContentType: att[:idx], Url: att[idx+1:]}
	}
	return &model.Media{Url: att}
}
