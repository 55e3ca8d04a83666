// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package detection

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/wagerdeck/sentinel/internal/cache"
)

// Window sizes per rule family.
const (
	bruteForceWindow = 15 * time.Minute
	floodWindow      = 5 * time.Minute
	behaviorWindow   = 24 * time.Hour
	takeoverWindow   = 30 * time.Minute

	// travelLookback bounds how far back a previous location still
	// anchors a travel comparison.
	travelLookback = 2 * time.Hour
)

const (
	stateShards = 16

	// maxKeysPerShard caps window memory during floods. Eviction under
	// pressure loses the coldest counters, which only ever under-counts.
	maxKeysPerShard = 50000
)

// MemoryState is the default process-local State. Counters are sharded by
// key so unrelated actors and IPs never contend on one lock.
type MemoryState struct {
	ipFailures     shardedCounters
	actorFailures  shardedCounters
	actorFailIPs   shardedUniques
	ipRequests     shardedCounters
	ipMethods      shardedUniques
	actorIPs       shardedUniques
	actorEvents    shardedCounters
	actorFailTotal shardedCounters
	sensitive      shardedCounters

	locMu     sync.RWMutex
	locations map[string]locationHistory
}

// locationHistory keeps the two most recent geotagged observations so the
// travel rule can compare the current event against the one before it.
type locationHistory struct {
	prev *GeoPoint
	cur  *GeoPoint
}

// NewMemoryState creates an empty in-memory detection state.
func NewMemoryState() *MemoryState {
	return &MemoryState{
		ipFailures:     newShardedCounters(bruteForceWindow, 15),
		actorFailures:  newShardedCounters(bruteForceWindow, 15),
		actorFailIPs:   newShardedUniques(bruteForceWindow, 15),
		ipRequests:     newShardedCounters(floodWindow, 10),
		ipMethods:      newShardedUniques(floodWindow, 10),
		actorIPs:       newShardedUniques(behaviorWindow, 24),
		actorEvents:    newShardedCounters(behaviorWindow, 24),
		actorFailTotal: newShardedCounters(behaviorWindow, 24),
		sensitive:      newShardedCounters(takeoverWindow, 10),
		locations:      make(map[string]locationHistory),
	}
}

// Observe folds an event into every window it is relevant to.
func (s *MemoryState) Observe(event *SecurityEvent) {
	if event == nil {
		return
	}

	if event.IPAddress != "" {
		s.ipRequests.increment(event.IPAddress)
		if event.Details.Request != nil && event.Details.Request.Method != "" {
			s.ipMethods.add(event.IPAddress, event.Details.Request.Method)
		}
	}

	if event.EventType == EventLoginFailure {
		if event.IPAddress != "" {
			s.ipFailures.increment(event.IPAddress)
		}
		if event.ActorID != "" {
			s.actorFailures.increment(event.ActorID)
			if event.IPAddress != "" {
				s.actorFailIPs.add(event.ActorID, event.IPAddress)
			}
		}
	}

	if event.ActorID != "" {
		s.actorEvents.increment(event.ActorID)
		if !event.Success {
			s.actorFailTotal.increment(event.ActorID)
		}
		if event.IPAddress != "" {
			s.actorIPs.add(event.ActorID, event.IPAddress)
		}
		if IsSensitiveChange(event.EventType) {
			s.sensitive.increment(event.ActorID)
		}
		if !IsUnknownLocation(event.Latitude, event.Longitude) {
			s.recordLocation(event)
		}
	}
}

func (s *MemoryState) recordLocation(event *SecurityEvent) {
	point := &GeoPoint{
		Latitude:  event.Latitude,
		Longitude: event.Longitude,
		City:      event.City,
		Country:   event.Country,
		Timestamp: event.Timestamp,
	}

	s.locMu.Lock()
	hist := s.locations[event.ActorID]
	hist.prev = hist.cur
	hist.cur = point
	s.locations[event.ActorID] = hist
	s.locMu.Unlock()
}

// IPFailures returns authentication failures from an IP in the brute force
// window.
func (s *MemoryState) IPFailures(ip string) int64 {
	return s.ipFailures.count(ip)
}

// ActorFailures returns failures against an actor and the distinct IPs
// involved, within the brute force window.
func (s *MemoryState) ActorFailures(actorID string) (int64, int) {
	return s.actorFailures.count(actorID), s.actorFailIPs.countUnique(actorID)
}

// IPRequests returns the request count and distinct methods from an IP in
// the flood window.
func (s *MemoryState) IPRequests(ip string) (int64, int) {
	return s.ipRequests.count(ip), s.ipMethods.countUnique(ip)
}

// ActorIPs returns the distinct source IPs for an actor in the behavior
// window.
func (s *MemoryState) ActorIPs(actorID string) int {
	return s.actorIPs.countUnique(actorID)
}

// ActorOutcomes returns total and failed events for an actor in the
// behavior window.
func (s *MemoryState) ActorOutcomes(actorID string) (int64, int64) {
	return s.actorEvents.count(actorID), s.actorFailTotal.count(actorID)
}

// LastLocation returns the geotagged observation before the actor's most
// recent one, when it is still within the travel lookback.
func (s *MemoryState) LastLocation(actorID string) (GeoPoint, bool) {
	s.locMu.RLock()
	hist := s.locations[actorID]
	s.locMu.RUnlock()

	if hist.prev == nil {
		return GeoPoint{}, false
	}
	if time.Since(hist.prev.Timestamp) > travelLookback {
		return GeoPoint{}, false
	}
	return *hist.prev, true
}

// SensitiveChanges returns the actor's sensitive-change count in the
// takeover window.
func (s *MemoryState) SensitiveChanges(actorID string) int64 {
	return s.sensitive.count(actorID)
}

// Cleanup drops idle counters and stale location history. Runs on the
// engine's janitor timer.
func (s *MemoryState) Cleanup() int {
	removed := s.ipFailures.cleanup() +
		s.actorFailures.cleanup() +
		s.actorFailIPs.cleanup() +
		s.ipRequests.cleanup() +
		s.ipMethods.cleanup() +
		s.actorIPs.cleanup() +
		s.actorEvents.cleanup() +
		s.actorFailTotal.cleanup() +
		s.sensitive.cleanup()

	cutoff := time.Now().Add(-travelLookback)
	s.locMu.Lock()
	for actor, hist := range s.locations {
		if hist.cur != nil && hist.cur.Timestamp.Before(cutoff) {
			delete(s.locations, actor)
			removed++
		}
	}
	s.locMu.Unlock()

	return removed
}

// shardedCounters spreads sliding-window counters across shards so hot keys
// on different shards never share a lock.
type shardedCounters struct {
	shards [stateShards]*cache.SlidingWindowStore
}

func newShardedCounters(window time.Duration, buckets int) shardedCounters {
	var sc shardedCounters
	for i := range sc.shards {
		sc.shards[i] = cache.NewSlidingWindowStore(window, buckets, maxKeysPerShard)
	}
	return sc
}

func (sc *shardedCounters) increment(key string) {
	sc.shards[shardFor(key)].Increment(key)
}

func (sc *shardedCounters) count(key string) int64 {
	return sc.shards[shardFor(key)].Count(key)
}

func (sc *shardedCounters) cleanup() int {
	removed := 0
	for _, shard := range sc.shards {
		removed += shard.CleanupInactive()
	}
	return removed
}

// shardedUniques is the sharded form of unique-value windows.
type shardedUniques struct {
	shards [stateShards]*cache.UniqueValueStore
}

func newShardedUniques(window time.Duration, buckets int) shardedUniques {
	var su shardedUniques
	for i := range su.shards {
		su.shards[i] = cache.NewUniqueValueStore(window, buckets, maxKeysPerShard)
	}
	return su
}

func (su *shardedUniques) add(key, value string) {
	su.shards[shardFor(key)].Add(key, value)
}

func (su *shardedUniques) countUnique(key string) int {
	return su.shards[shardFor(key)].CountUnique(key)
}

func (su *shardedUniques) cleanup() int {
	removed := 0
	for _, shard := range su.shards {
		removed += shard.CleanupInactive()
	}
	return removed
}

func shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % stateShards)
}
