package model

import "time"

type Contact struct {
	Id               int64                `json:"id"`
	OrganizationId   int64                `json:"organizationId"`
	Name             string               `json:"name"`
	Phone            string               `json:"phone"`
	Language         string               `json:"language,omitempty"`
	Fields           map[string]string    `json:"fields,omitempty"`
	OptinTime        *time.Time           `json:"optinTime,omitempty"`
	OptoutTime       *time.Time           `json:"optoutTime,omitempty"`
	Tester           bool                 `json:"tester,omitempty"`
	LastPeriodicRuns map[string]time.Time `json:"lastPeriodicRuns,omitempty"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

func (c *Contact) IsOptedOut() bool {
	return c.OptoutTime != nil
}
