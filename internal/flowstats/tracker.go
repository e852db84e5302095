package flowstats

import (
	"hash/fnv"
	"math"
	"sync"
	"time"

	"FlowPilot/internal/model"
)

// flowState is the mutable accumulator behind one flow key.
type flowState struct {
	packetCount uint64
	byteCount   uint64
	startTime   time.Time
	lastSeen    time.Time

	// Welford accumulators for packet size and inter-arrival time, so the
	// tracker stays O(1) per packet instead of keeping sample slices.
	sizeMean float64
	sizeM2   float64
	iatCount uint64
	iatMean  float64
	iatM2    float64
}

type shard struct {
	mu    sync.Mutex
	flows map[string]*flowState
}

// Tracker maintains running flow-level statistics keyed by the MAC pair,
// sharded to keep contention low across parallel switch sessions.
type Tracker struct {
	shards     []*shard
	shardCount uint32
}

// NewTracker creates a tracker with the given shard count.
func NewTracker(numShards uint32) *Tracker {
	if numShards == 0 || numShards >= 32768 {
		numShards = 256
	}
	t := &Tracker{
		shards:     make([]*shard, numShards),
		shardCount: numShards,
	}
	for i := range t.shards {
		t.shards[i] = &shard{flows: make(map[string]*flowState)}
	}
	return t
}

func (t *Tracker) getShard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return t.shards[h.Sum32()%t.shardCount]
}

// Observe folds one packet into the flow's running statistics and returns a
// snapshot of them. The snapshot is a value copy: safe to hand to a
// classifier that outlives the next update.
func (t *Tracker) Observe(key string, length int, ts time.Time) *model.FlowStats {
	s := t.getShard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.flows[key]
	if !ok {
		st = &flowState{startTime: ts, lastSeen: ts}
		s.flows[key] = st
	} else {
		iat := ts.Sub(st.lastSeen).Seconds()
		if iat >= 0 {
			st.iatCount++
			delta := iat - st.iatMean
			st.iatMean += delta / float64(st.iatCount)
			st.iatM2 += delta * (iat - st.iatMean)
		}
		st.lastSeen = ts
	}

	st.packetCount++
	st.byteCount += uint64(length)
	delta := float64(length) - st.sizeMean
	st.sizeMean += delta / float64(st.packetCount)
	st.sizeM2 += delta * (float64(length) - st.sizeMean)

	return st.snapshot()
}

// Forget drops the accumulated state for one flow key.
func (t *Tracker) Forget(key string) {
	s := t.getShard(key)
	s.mu.Lock()
	delete(s.flows, key)
	s.mu.Unlock()
}

// Len returns the total number of tracked flows.
func (t *Tracker) Len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		total += len(s.flows)
		s.mu.Unlock()
	}
	return total
}

func (st *flowState) snapshot() *model.FlowStats {
	out := &model.FlowStats{
		PacketCount:   st.packetCount,
		ByteCount:     st.byteCount,
		Duration:      st.lastSeen.Sub(st.startTime),
		AvgPacketSize: st.sizeMean,
	}
	if st.packetCount > 1 {
		out.StdPacketSize = math.Sqrt(st.sizeM2 / float64(st.packetCount))
	}
	if st.iatCount > 0 {
		out.AvgInterArrival = st.iatMean
		if st.iatCount > 1 {
			out.StdInterArrival = math.Sqrt(st.iatM2 / float64(st.iatCount))
		}
	}
	if secs := out.Duration.Seconds(); secs > 0 {
		out.PacketRate = float64(st.packetCount) / secs
		out.ByteRate = float64(st.byteCount) / secs
	}
	return out
}
