// Package gateway provides the per-client rate limit registry.
package gateway

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"
)

const registryShards = 64

// ClientStatus is a point-in-time view of one client record.
type ClientStatus struct {
	ClientID        string
	Tier            string
	AvailableTokens float64
	Capacity        int
	RefillPerSecond float64
}

// ClientRegistry maps client ids to tiered token buckets. Records are created
// lazily at the default tier and evicted after sitting idle past the TTL.
type ClientRegistry struct {
	shards      [registryShards]registryShard
	defaultTier Tier
	idleTTL     time.Duration
	clock       Clock
}

type registryShard struct {
	mu      sync.Mutex
	records map[string]*clientRecord
}

type clientRecord struct {
	tier     Tier
	bucket   *TokenBucket
	lastSeen time.Time
}

// NewClientRegistry constructs a registry.
func NewClientRegistry(defaultTier Tier, idleTTL time.Duration, clock Clock) *ClientRegistry {
	if defaultTier.Name == "" {
		defaultTier = TierFree
	}
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}
	if clock == nil {
		clock = SystemClock{}
	}
	r := &ClientRegistry{defaultTier: defaultTier, idleTTL: idleTTL, clock: clock}
	for i := range r.shards {
		r.shards[i].records = make(map[string]*clientRecord)
	}
	return r
}

// Check attempts to take cost tokens from the client's bucket, creating the
// record at the default tier on first sight.
func (r *ClientRegistry) Check(clientID string, cost int, now time.Time) TakeResult {
	if r == nil || clientID == "" {
		return TakeResult{}
	}
	shard := r.shard(clientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	record := shard.records[clientID]
	if record == nil {
		record = &clientRecord{
			tier:   r.defaultTier,
			bucket: NewTokenBucket(r.defaultTier.Capacity, r.defaultTier.RefillPerSecond, now),
		}
		shard.records[clientID] = record
	}
	record.lastSeen = now
	return record.bucket.Take(cost, now)
}

// SetTier replaces the client's bucket with a fresh full bucket for the tier.
// The record is created when the client id is not yet known.
func (r *ClientRegistry) SetTier(clientID, tierName string) (Tier, error) {
	if r == nil || clientID == "" {
		return Tier{}, ErrInvalidInput
	}
	tier, err := ParseTier(tierName)
	if err != nil {
		return Tier{}, err
	}
	now := r.clock.Now()
	shard := r.shard(clientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	record := shard.records[clientID]
	if record == nil {
		record = &clientRecord{}
		shard.records[clientID] = record
	}
	record.tier = tier
	record.bucket = NewTokenBucket(tier.Capacity, tier.RefillPerSecond, now)
	record.lastSeen = now
	return tier, nil
}

// Status reports the client's bucket state, or false when unknown.
func (r *ClientRegistry) Status(clientID string) (ClientStatus, bool) {
	if r == nil || clientID == "" {
		return ClientStatus{}, false
	}
	now := r.clock.Now()
	shard := r.shard(clientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	record := shard.records[clientID]
	if record == nil {
		return ClientStatus{}, false
	}
	return ClientStatus{
		ClientID:        clientID,
		Tier:            record.tier.Name,
		AvailableTokens: record.bucket.Available(now),
		Capacity:        record.bucket.Capacity(),
		RefillPerSecond: record.bucket.RefillRate(),
	}, true
}

// Reset refills the client's bucket to capacity.
func (r *ClientRegistry) Reset(clientID string) bool {
	if r == nil || clientID == "" {
		return false
	}
	now := r.clock.Now()
	shard := r.shard(clientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	record := shard.records[clientID]
	if record == nil {
		return false
	}
	record.bucket.Refill(now)
	record.lastSeen = now
	return true
}

// Remove deletes the client record.
func (r *ClientRegistry) Remove(clientID string) bool {
	if r == nil || clientID == "" {
		return false
	}
	shard := r.shard(clientID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.records[clientID]; !ok {
		return false
	}
	delete(shard.records, clientID)
	return true
}

// List returns a snapshot of known client records sorted by id.
func (r *ClientRegistry) List() []ClientStatus {
	if r == nil {
		return nil
	}
	now := r.clock.Now()
	var out []ClientStatus
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.Lock()
		for id, record := range shard.records {
			out = append(out, ClientStatus{
				ClientID:        id,
				Tier:            record.tier.Name,
				AvailableTokens: record.bucket.Available(now),
				Capacity:        record.bucket.Capacity(),
				RefillPerSecond: record.bucket.RefillRate(),
			})
		}
		shard.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Sweep evicts records idle longer than the TTL and returns the count.
func (r *ClientRegistry) Sweep(now time.Time) int {
	if r == nil {
		return 0
	}
	evicted := 0
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.Lock()
		for id, record := range shard.records {
			if now.Sub(record.lastSeen) > r.idleTTL {
				delete(shard.records, id)
				evicted++
			}
		}
		shard.mu.Unlock()
	}
	return evicted
}

// Len returns the number of tracked clients.
func (r *ClientRegistry) Len() int {
	if r == nil {
		return 0
	}
	n := 0
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.Lock()
		n += len(shard.records)
		shard.mu.Unlock()
	}
	return n
}

func (r *ClientRegistry) shard(clientID string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clientID))
	return &r.shards[h.Sum32()%registryShards]
}
