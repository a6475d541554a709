package model

type FlowCountKind string

const COUNT_NODE FlowCountKind = "node"
const COUNT_EXIT FlowCountKind = "exit"

type FlowCount struct {
	OrganizationId int64         `json:"organizationId"`
	FlowUuid       string        `json:"flowUuid"`
	Uuid           string        `json:"uuid"`
	Kind           FlowCountKind `json:"kind"`
	Count          int64         `json:"count"`
}
