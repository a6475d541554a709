package model

import "time"

type JobType string

const JOB_RESUME JobType = "resume"
const JOB_START_FLOW JobType = "start_flow"

// Job is a delayed unit of work kept in the delay queue. Resume jobs carry the
// signal to deliver to ContextId; start jobs carry the flow to start.
type Job struct {
	Id             string     `json:"id"`
	Type           JobType    `json:"type"`
	OrganizationId int64      `json:"organizationId"`
	ContactId      int64      `json:"contactId"`
	ContextId      string     `json:"contextId,omitempty"`
	Signal         Signal     `json:"signal,omitempty"`
	FlowUuid       string     `json:"flowUuid,omitempty"`
	FlowStatus     FlowStatus `json:"flowStatus,omitempty"`
	DueAt          time.Time  `json:"dueAt"`
}
