// Copyright 2019 The go-ethereum Authors
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

package discover

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/basalt-network/gbasalt/params"
)

// QueryFunc asks a peer for the nodes it knows closest to target.
type QueryFunc func(ctx context.Context, n *Node, target ID) ([]*Node, error)

// maxLookupCandidates caps the working set of a lookup at 3·K.
const maxLookupCandidates = 3 * params.BucketSize

// Lookup walks the network towards target: each round queries up to
// params.LookupAlpha of the closest unasked candidates concurrently and
// merges their replies into the candidate set. It terminates when a round
// stops improving the closest-known set, when every candidate was asked, or
// after params.LookupMaxRounds rounds.
//
// Nodes learned from replies are lookup candidates only; none of them is
// inserted into the routing table here. Only a completed handshake inserts.
func (tab *Table) Lookup(ctx context.Context, target ID, query QueryFunc) []*Node {
	var (
		asked      = map[ID]bool{tab.self: true}
		seen       = map[ID]bool{tab.self: true}
		candidates = tab.FindClosest(target, maxLookupCandidates)
	)
	for _, n := range candidates {
		seen[n.ID] = true
	}

	for round := 0; round < params.LookupMaxRounds; round++ {
		// Pick the alpha closest nodes not yet asked.
		var batch []*Node
		for _, n := range candidates {
			if !asked[n.ID] {
				asked[n.ID] = true
				batch = append(batch, n)
			}
			if len(batch) == params.LookupAlpha {
				break
			}
		}
		if len(batch) == 0 {
			break
		}

		var (
			mu      sync.Mutex
			replies []*Node
		)
		g, gctx := errgroup.WithContext(ctx)
		for _, n := range batch {
			n := n
			g.Go(func() error {
				found, err := query(gctx, n, target)
				if err != nil {
					// A dead or misbehaving peer just contributes nothing.
					return nil
				}
				mu.Lock()
				replies = append(replies, found...)
				mu.Unlock()
				return nil
			})
		}
		g.Wait()
		if ctx.Err() != nil {
			break
		}

		improved := false
		prevClosest := closestID(candidates, target)
		for _, n := range replies {
			if n == nil || seen[n.ID] {
				continue
			}
			seen[n.ID] = true
			candidates = append(candidates, n)
		}
		sortByDistance(candidates, target)
		if len(candidates) > maxLookupCandidates {
			candidates = candidates[:maxLookupCandidates]
		}
		if cur := closestID(candidates, target); prevClosest == nil || (cur != nil && DistCmp(target, *cur, *prevClosest) < 0) {
			improved = len(candidates) > 0
		}
		if !improved {
			break
		}
	}

	if len(candidates) > params.BucketSize {
		candidates = candidates[:params.BucketSize]
	}
	return candidates
}

func closestID(nodes []*Node, target ID) *ID {
	if len(nodes) == 0 {
		return nil
	}
	best := nodes[0].ID
	for _, n := range nodes[1:] {
		if DistCmp(target, n.ID, best) < 0 {
			best = n.ID
		}
	}
	return &best
}
