package model

type SignalKind string

// SIGNAL_NONE carries no fresh input, used when a flow is started.
const SIGNAL_NONE SignalKind = "none"
const SIGNAL_USER_MESSAGE SignalKind = "user_message"
const SIGNAL_SUBFLOW_RESULT SignalKind = "subflow_result"
const SIGNAL_WEBHOOK_RESULT SignalKind = "webhook_result"
const SIGNAL_TIMER SignalKind = "timer"

const SUBFLOW_COMPLETED = "completed"
const SUBFLOW_EXPIRED = "expired"
const SUBFLOW_SUCCESS = "success"
const SUBFLOW_FAILURE = "failure"

const TIMER_ELAPSED = "elapsed"
const TIMER_EXPIRED = "expired"

// LegacySubflowSignals are the bodies older flows used to smuggle a subflow
// result through the message stream.
var LegacySubflowSignals = []string{SUBFLOW_COMPLETED, SUBFLOW_EXPIRED, SUBFLOW_SUCCESS, SUBFLOW_FAILURE}

// Signal is the envelope every resumption travels in. Token must match the
// waiting context's token for webhook and timer signals.
type Signal struct {
	Kind    SignalKind     `json:"kind"`
	Token   string         `json:"token,omitempty"`
	Payload string         `json:"payload,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Media   *Media         `json:"media,omitempty"`
}

func NoSignal() Signal {
	return Signal{Kind: SIGNAL_NONE}
}

func UserMessage(body string, media *Media) Signal {
	return Signal{Kind: SIGNAL_USER_MESSAGE, Payload: body, Media: media}
}

func SubflowResult(status string) Signal {
	return Signal{Kind: SIGNAL_SUBFLOW_RESULT, Payload: status}
}
