package model

import "time"

type MessageType string

const TEXT MessageType = "text"
const IMAGE MessageType = "image"
const AUDIO MessageType = "audio"
const VIDEO MessageType = "video"
const DOCUMENT MessageType = "document"

type Media struct {
	Url         string `json:"url" validate:"required,url"`
	Caption     string `json:"caption,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Message is an inbound message as delivered by the channel integration.
// Echo marks a copy of our own outbound opt-in prompt; FirstSession marks the
// first message of a new conversation session.
type Message struct {
	Id             string      `json:"id"`
	OrganizationId int64       `json:"organizationId" validate:"required,gt=0"`
	ContactId      int64       `json:"contactId" validate:"required,gt=0"`
	Contact        *Contact    `json:"contact,omitempty"`
	Body           string      `json:"body"`
	Type           MessageType `json:"type" validate:"omitempty,oneof=text image audio video document"`
	Media          *Media      `json:"media,omitempty"`
	Echo           bool        `json:"echo,omitempty"`
	FirstSession   bool        `json:"firstSession,omitempty"`
	NewContact     bool        `json:"newContact,omitempty"`
	ReceivedAt     time.Time   `json:"receivedAt"`
}

// OutboundMessage is one send request handed to the channel delivery collaborator.
type OutboundMessage struct {
	OrganizationId int64  `json:"organizationId"`
	ContactId      int64  `json:"contactId"`
	ContextId      string `json:"contextId"`
	FlowUuid       string `json:"flowUuid"`
	NodeUuid       string `json:"nodeUuid"`
	Body           string `json:"body"`
	Media          *Media `json:"media,omitempty"`
}
