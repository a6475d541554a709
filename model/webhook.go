package model

import "time"

const WEBHOOK_SUCCESS = "success"
const WEBHOOK_FAILURE = "failure"

// WebhookRequest is one outbound call made on behalf of a waiting context.
// The result is delivered back as a SIGNAL_WEBHOOK_RESULT carrying Token.
type WebhookRequest struct {
	OrganizationId int64             `json:"organizationId"`
	ContactId      int64             `json:"contactId"`
	ContextId      string            `json:"contextId"`
	Token          string            `json:"token"`
	Url            string            `json:"url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           map[string]any    `json:"body,omitempty"`
	Timeout        time.Duration     `json:"timeout"`
}

func WebhookSignal(token string, category string, status int, body any) Signal {
	return Signal{
		Kind:    SIGNAL_WEBHOOK_RESULT,
		Token:   token,
		Payload: category,
		Data: map[string]any{
			"status":   status,
			"category": category,
			"body":     body,
		},
	}
}
