package redis

type Config struct {
	Addrs     []string
	Namespace string
	PoolSize  int
	Password  string
	// MessageHistory caps the per-contact inbound message list.
	MessageHistory int
}
