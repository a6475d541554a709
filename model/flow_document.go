package model

import "strings"

type FlowStatus string

const DRAFT FlowStatus = "draft"
const PUBLISHED FlowStatus = "published"

func ValidateFlowStatus(s FlowStatus) bool {
	return s == DRAFT || s == PUBLISHED
}

// FlowDocument is the authored graph as served by the authoring tool.
// It is never mutated after it is fetched; compiling it produces a flow.Flow.
type FlowDocument struct {
	Uuid           string     `json:"uuid"`
	Id             int64      `json:"id"`
	OrganizationId int64      `json:"organization_id"`
	Name           string     `json:"name"`
	Status         FlowStatus `json:"status"`
	Keywords       []string   `json:"keywords"`
	IgnoreKeywords bool       `json:"ignore_keywords"`
	Nodes          []NodeDef  `json:"nodes"`
}

// NodeDef keeps actions as raw maps, the compiler decodes them per type.
// A nil Actions or Exits slice means the field was absent from the document.
type NodeDef struct {
	Uuid    string           `json:"uuid"`
	Actions []map[string]any `json:"actions"`
	Exits   []ExitDef        `json:"exits"`
	Router  *RouterDef       `json:"router,omitempty"`
}

type ExitDef struct {
	Uuid            string `json:"uuid"`
	DestinationUuid string `json:"destination_uuid,omitempty"`
}

type RouterDef struct {
	Operand         string    `json:"operand"`
	Cases           []CaseDef `json:"cases"`
	DefaultExitUuid string    `json:"default_exit_uuid,omitempty"`
	Wait            *WaitDef  `json:"wait,omitempty"`
	ResultName      string    `json:"result_name,omitempty"`
}

type CaseDef struct {
	Uuid      string   `json:"uuid"`
	Value     string   `json:"value"`
	Arguments []string `json:"arguments,omitempty"`
	ExitUuid  string   `json:"exit_uuid"`
}

type WaitDef struct {
	TimeoutSeconds  int    `json:"timeout_seconds,omitempty"`
	TimeoutExitUuid string `json:"timeout_exit_uuid,omitempty"`
}

// NormalizeKeyword is the single normalization used for keyword registration and matching.
func NormalizeKeyword(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
