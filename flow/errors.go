package flow

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	NodeUuid string
	Field    string
	Message  string
}

func (e ValidationError) Error() string {
	if len(e.NodeUuid) == 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("node=%s, %s: %s", e.NodeUuid, e.Field, e.Message)
}

// ValidationErrors accumulates everything wrong with a document so the author
// sees all problems at once.
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve))
	for _, e := range ve {
		msgs = append(msgs, e.Error())
	}
	return fmt.Sprintf("%d validation errors: %s", len(ve), strings.Join(msgs, "; "))
}

func (ve ValidationErrors) ForNode(nodeUuid string) ValidationErrors {
	var out ValidationErrors
	for _, e := range ve {
		if e.NodeUuid == nodeUuid {
			out = append(out, e)
		}
	}
	return out
}

func (ve *ValidationErrors) add(nodeUuid, field, format string, args ...any) {
	*ve = append(*ve, ValidationError{NodeUuid: nodeUuid, Field: field, Message: fmt.Sprintf(format, args...)})
}
