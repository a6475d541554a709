package cluster

import (
	"strconv"
	"sync"

	"github.com/buraksezer/consistent"
	"github.com/mohitkumar/convoflow/logger"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

const DEFAULT_PARTITION_COUNT = 71

type hasher struct {
}

func NewHasher() *hasher {
	return &hasher{}
}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type RingConfig struct {
	PartitionCount int
}

type Member string

func (m Member) String() string {
	return string(m)
}

// Ring maps a contact onto one of a fixed number of partitions and each
// partition onto a member. Every turn of a contact runs on its partition.
type Ring struct {
	RingConfig
	hring     *consistent.Consistent
	localNode Member
	mu        sync.RWMutex
}

func NewRing(c RingConfig) *Ring {
	if c.PartitionCount <= 0 {
		c.PartitionCount = DEFAULT_PARTITION_COUNT
	}
	cfg := consistent.Config{
		PartitionCount:    c.PartitionCount,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            NewHasher(),
	}
	return &Ring{
		RingConfig: c,
		hring:      consistent.New(nil, cfg),
	}
}

func (r *Ring) Join(name string, isLocal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logger.Info("adding member to ring", zap.String("node", name), zap.Bool("local", isLocal))
	if isLocal {
		r.localNode = Member(name)
	}
	r.hring.Add(Member(name))
}

func (r *Ring) Leave(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	logger.Info("removing member from ring", zap.String("node", name))
	r.hring.Remove(name)
}

func ContactKey(orgId int64, contactId int64) string {
	return strconv.FormatInt(orgId, 10) + ":" + strconv.FormatInt(contactId, 10)
}

func (r *Ring) GetPartition(orgId int64, contactId int64) int {
	return r.hring.FindPartitionID([]byte(ContactKey(orgId, contactId)))
}

// GetPartitions lists the partitions owned by the local member.
func (r *Ring) GetPartitions() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	partitions := make([]int, 0)
	for i := 0; i < r.PartitionCount; i++ {
		owner := r.hring.GetPartitionOwner(i)
		if owner != nil && owner.String() == r.localNode.String() {
			partitions = append(partitions, i)
		}
	}
	return partitions
}

func (r *Ring) IsLocal(partition int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner := r.hring.GetPartitionOwner(partition)
	return owner != nil && owner.String() == r.localNode.String()
}
