// Copyright 2015 The go-ethereum Authors
// Copyright 2025 The Basalt Network Authors
// This file is part of the gbasalt library.
//
// The gbasalt library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The gbasalt library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the gbasalt library. If not, see <http://www.gnu.org/licenses/>.

// Package discover implements the stake-aware Kademlia routing table used by
// gossip for fair peer diversity.
package discover

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/basalt-network/gbasalt/params"
)

var (
	ErrSelf             = errors.New("discover: is self")
	ErrBucketFull       = errors.New("discover: bucket full")
	ErrSubnetCapReached = errors.New("discover: subnet cap reached")
	ErrTooManyProtected = errors.New("discover: protected slots exhausted")
)

const nBuckets = 256

// bucket holds up to params.BucketSize peers at one logarithmic distance,
// most recently seen first.
type bucket struct {
	entries []*Node
	subnets map[string]int // diversity counters per /24 (or /48)
}

// Table is the Kademlia routing table. Insertion is gated on a completed
// handshake: callers must only pass peers whose id was proven against their
// public key. Responsive peers are never evicted for newcomers, and up to
// params.MaxProtectedPeers outbound peers are immune to removal entirely.
type Table struct {
	mu      sync.RWMutex
	self    ID
	buckets [nBuckets]*bucket

	protMu    sync.Mutex
	protected map[ID]struct{}

	log *logrus.Entry
}

// NewTable creates a routing table centered on self.
func NewTable(self ID) *Table {
	return &Table{
		self:      self,
		protected: make(map[ID]struct{}),
		log:       logrus.WithField("module", "p2p"),
	}
}

// Self returns the local node id.
func (tab *Table) Self() ID { return tab.self }

// AddVerified admits a peer after a successful handshake. Re-adding a known
// peer refreshes it to the front of its bucket. The subnet-diversity check
// runs inside the write guard: two racing inserts from one subnet can never
// both slip under the cap.
func (tab *Table) AddVerified(n *Node) error {
	if n.ID == tab.self {
		return ErrSelf
	}
	dist := LogDist(tab.self, n.ID)
	if dist == 0 {
		return ErrSelf
	}

	tab.mu.Lock()
	defer tab.mu.Unlock()

	b := tab.buckets[dist-1]
	if b == nil {
		b = &bucket{subnets: make(map[string]int)}
		tab.buckets[dist-1] = b
	}
	for i, entry := range b.entries {
		if entry.ID == n.ID {
			// Known peer seen again: move to the front.
			entry.IP = n.IP
			entry.Port = n.Port
			entry.LastSeenMs = time.Now().UnixMilli()
			copy(b.entries[1:], b.entries[:i])
			b.entries[0] = entry
			return nil
		}
	}
	key := subnetKey(n.IP)
	if b.subnets[key] >= params.MaxBucketsPerHost {
		return ErrSubnetCapReached
	}
	if len(b.entries) >= params.BucketSize {
		// Standard Kademlia: long-lived peers win, the newcomer is dropped.
		return ErrBucketFull
	}
	stored := &Node{ID: n.ID, IP: n.IP, Port: n.Port, LastSeenMs: time.Now().UnixMilli()}
	b.entries = append([]*Node{stored}, b.entries...)
	b.subnets[key]++
	return nil
}

// Remove drops a peer, typically after it stopped responding. Protected
// peers are kept until explicitly unprotected.
func (tab *Table) Remove(id ID) {
	tab.protMu.Lock()
	_, isProtected := tab.protected[id]
	tab.protMu.Unlock()
	if isProtected {
		return
	}
	dist := LogDist(tab.self, id)
	if dist == 0 {
		return
	}

	tab.mu.Lock()
	defer tab.mu.Unlock()
	b := tab.buckets[dist-1]
	if b == nil {
		return
	}
	for i, entry := range b.entries {
		if entry.ID == id {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			key := subnetKey(entry.IP)
			if b.subnets[key] > 0 {
				b.subnets[key]--
			}
			return
		}
	}
}

// MarkOutboundProtected pins a peer against removal. At most
// params.MaxProtectedPeers slots exist; they shield the node's own outbound
// connections from being eclipsed by inbound churn.
func (tab *Table) MarkOutboundProtected(id ID) error {
	tab.protMu.Lock()
	defer tab.protMu.Unlock()
	if _, ok := tab.protected[id]; ok {
		return nil
	}
	if len(tab.protected) >= params.MaxProtectedPeers {
		return ErrTooManyProtected
	}
	tab.protected[id] = struct{}{}
	return nil
}

// Unprotect releases a protected slot.
func (tab *Table) Unprotect(id ID) {
	tab.protMu.Lock()
	defer tab.protMu.Unlock()
	delete(tab.protected, id)
}

// FindClosest returns up to count peers sorted by XOR distance to target,
// ties broken by raw id.
func (tab *Table) FindClosest(target ID, count int) []*Node {
	tab.mu.RLock()
	var all []*Node
	for _, b := range tab.buckets {
		if b == nil {
			continue
		}
		for _, entry := range b.entries {
			cpy := *entry
			all = append(all, &cpy)
		}
	}
	tab.mu.RUnlock()

	sortByDistance(all, target)
	if count > 0 && len(all) > count {
		all = all[:count]
	}
	return all
}

// Contains reports whether id is in the table.
func (tab *Table) Contains(id ID) bool {
	dist := LogDist(tab.self, id)
	if dist == 0 {
		return false
	}
	tab.mu.RLock()
	defer tab.mu.RUnlock()
	b := tab.buckets[dist-1]
	if b == nil {
		return false
	}
	for _, entry := range b.entries {
		if entry.ID == id {
			return true
		}
	}
	return false
}

// Len returns the total number of peers across all buckets.
func (tab *Table) Len() int {
	tab.mu.RLock()
	defer tab.mu.RUnlock()
	n := 0
	for _, b := range tab.buckets {
		if b != nil {
			n += len(b.entries)
		}
	}
	return n
}
