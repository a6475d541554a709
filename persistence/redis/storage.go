package redis

import (
	"context"

	"github.com/mohitkumar/convoflow/persistence"
)

type Conn interface {
	Ping(ctx context.Context) error
	Close() error
}

// NewRedisStorage wires every store onto one shared client.
func NewRedisStorage(conf Config) (*persistence.Storage, Conn) {
	base := newBaseDao(conf)
	contacts := NewRedisContactDao(base, conf.MessageHistory)
	queue := NewRedisQueue(base)
	return &persistence.Storage{
		Contexts: NewRedisContextDao(base),
		Contacts: contacts,
		Messages: contacts,
		Flows:    NewRedisFlowDao(base),
		Counts:   NewRedisCountDao(base),
		Delay:    queue,
		Outbound: queue,
	}, base
}
