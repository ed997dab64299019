package discover

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"testing"

	"github.com/basalt-network/gbasalt/params"
)

// idAt builds an id whose first byte fixes its bucket relative to
// the zero self id.
func idAt(first byte, rest ...byte) ID {
	var id ID
	id[0] = first
	for i, b := range rest {
		if 1+i < len(id) {
			id[1+i] = b
		}
	}
	return id
}

func nodeAt(id ID, ip string) *Node {
	return &Node{ID: id, IP: net.ParseIP(ip), Port: 30303}
}

func newTestTable() *Table {
	return NewTable(ID{}) // self is the zero id
}

func TestLogDist(t *testing.T) {
	var a ID
	if LogDist(a, a) != 0 {
		t.Fatalf("distance to self should be 0")
	}
	b := idAt(0x80)
	if got := LogDist(a, b); got != 256 {
		t.Fatalf("top-bit distance: have %d want 256", got)
	}
	c := idAt(0, 0x01)
	// 15 leading zero bits before the first difference.
	if got := LogDist(a, c); got != 241 {
		t.Fatalf("distance: have %d want 241", got)
	}
}

func TestAddAndRefresh(t *testing.T) {
	tab := newTestTable()
	n := nodeAt(idAt(0x80, 1), "10.0.0.1")
	if err := tab.AddVerified(n); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !tab.Contains(n.ID) || tab.Len() != 1 {
		t.Fatalf("peer not in table")
	}
	// Re-adding refreshes instead of duplicating.
	if err := tab.AddVerified(n); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if tab.Len() != 1 {
		t.Fatalf("refresh duplicated the peer: len %d", tab.Len())
	}
}

func TestSelfRejected(t *testing.T) {
	tab := newTestTable()
	if err := tab.AddVerified(nodeAt(ID{}, "10.0.0.1")); !errors.Is(err, ErrSelf) {
		t.Fatalf("expected ErrSelf, have %v", err)
	}
}

func TestSubnetCap(t *testing.T) {
	tab := newTestTable()
	// Fill the /24 allowance of one bucket.
	for i := 0; i < params.MaxBucketsPerHost; i++ {
		n := nodeAt(idAt(0x80, byte(i+1)), fmt.Sprintf("10.0.0.%d", i+1))
		if err := tab.AddVerified(n); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
	}
	over := nodeAt(idAt(0x80, 0x77), "10.0.0.99")
	if err := tab.AddVerified(over); !errors.Is(err, ErrSubnetCapReached) {
		t.Fatalf("expected ErrSubnetCapReached, have %v", err)
	}
	// A different subnet still fits.
	other := nodeAt(idAt(0x80, 0x78), "10.0.1.1")
	if err := tab.AddVerified(other); err != nil {
		t.Fatalf("cross-subnet add failed: %v", err)
	}
}

func TestSubnetCapUnderConcurrency(t *testing.T) {
	tab := newTestTable()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tab.AddVerified(nodeAt(idAt(0x80, byte(i+1)), fmt.Sprintf("10.0.0.%d", i+1)))
		}(i)
	}
	wg.Wait()
	if got := tab.Len(); got > params.MaxBucketsPerHost {
		t.Fatalf("subnet cap exceeded under concurrency: %d peers", got)
	}
}

func TestBucketFullRejectsNewcomer(t *testing.T) {
	tab := newTestTable()
	added := 0
	// Spread across subnets so only the size bound applies.
	for i := 0; added < params.BucketSize; i++ {
		n := nodeAt(idAt(0x80, byte(i+1)), fmt.Sprintf("10.%d.0.1", i))
		if err := tab.AddVerified(n); err != nil {
			t.Fatalf("add %d failed: %v", i, err)
		}
		added++
	}
	extra := nodeAt(idAt(0x80, 0xee), "10.250.0.1")
	if err := tab.AddVerified(extra); !errors.Is(err, ErrBucketFull) {
		t.Fatalf("expected ErrBucketFull, have %v", err)
	}
	// Existing peers stayed: long-lived peers are never evicted for
	// newcomers.
	if tab.Len() != params.BucketSize {
		t.Fatalf("unexpected table size: %d", tab.Len())
	}
}

func TestProtectedPeersSurviveRemove(t *testing.T) {
	tab := newTestTable()
	n := nodeAt(idAt(0x80, 1), "10.0.0.1")
	tab.AddVerified(n)
	if err := tab.MarkOutboundProtected(n.ID); err != nil {
		t.Fatalf("protect failed: %v", err)
	}
	tab.Remove(n.ID)
	if !tab.Contains(n.ID) {
		t.Fatalf("protected peer was removed")
	}
	tab.Unprotect(n.ID)
	tab.Remove(n.ID)
	if tab.Contains(n.ID) {
		t.Fatalf("unprotected peer should be removable")
	}
}

func TestProtectedSlotBound(t *testing.T) {
	tab := newTestTable()
	for i := 0; i < params.MaxProtectedPeers; i++ {
		if err := tab.MarkOutboundProtected(idAt(0x40, byte(i+1))); err != nil {
			t.Fatalf("protect %d failed: %v", i, err)
		}
	}
	if err := tab.MarkOutboundProtected(idAt(0x40, 0x99)); !errors.Is(err, ErrTooManyProtected) {
		t.Fatalf("expected ErrTooManyProtected, have %v", err)
	}
}

func TestFindClosestOrderAndTies(t *testing.T) {
	tab := newTestTable()
	ids := []ID{idAt(0x01), idAt(0x02), idAt(0x04), idAt(0x08)}
	for i, id := range ids {
		if err := tab.AddVerified(nodeAt(id, fmt.Sprintf("10.%d.0.1", i))); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}
	var target ID // zero: distance is the id itself
	got := tab.FindClosest(target, 3)
	if len(got) != 3 {
		t.Fatalf("unexpected result size: %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if DistCmp(target, got[i-1].ID, got[i].ID) > 0 {
			t.Fatalf("results not sorted by distance")
		}
	}
	if got[0].ID != idAt(0x01) {
		t.Fatalf("closest peer wrong: have %s", got[0].ID)
	}

	// Ids sharing their first byte sit at nearly equal distances; sorting
	// them drops nothing.
	sorted := []*Node{nodeAt(idAt(0x03), "10.9.0.1"), nodeAt(idAt(0x03, 0x01), "10.9.0.2")}
	sortByDistance(sorted, target)
	if len(sorted) != 2 {
		t.Fatalf("tie dropped a peer")
	}
}

func TestLookupConvergesAndDoesNotInsert(t *testing.T) {
	tab := newTestTable()
	seed := nodeAt(idAt(0x80, 1), "10.0.0.1")
	tab.AddVerified(seed)

	target := idAt(0x80, 0xff)
	// The network: the seed knows two closer nodes; one of them knows the
	// target itself.
	closer := nodeAt(idAt(0x80, 0xf0), "10.1.0.1")
	closest := nodeAt(target, "10.2.0.1")
	queried := make(map[ID]int)
	var mu sync.Mutex
	query := func(ctx context.Context, n *Node, t ID) ([]*Node, error) {
		mu.Lock()
		queried[n.ID]++
		mu.Unlock()
		switch n.ID {
		case seed.ID:
			return []*Node{closer}, nil
		case closer.ID:
			return []*Node{closest}, nil
		default:
			return nil, nil
		}
	}
	result := tab.Lookup(context.Background(), target, query)
	if len(result) == 0 || result[0].ID != target {
		t.Fatalf("lookup did not converge on the target: %v", result)
	}
	mu.Lock()
	for id, count := range queried {
		if count != 1 {
			t.Fatalf("peer %s queried %d times", id, count)
		}
	}
	mu.Unlock()
	// Lookup results never enter the routing table by themselves.
	if tab.Contains(closer.ID) || tab.Contains(closest.ID) {
		t.Fatalf("lookup inserted unverified peers into the table")
	}
	if tab.Len() != 1 {
		t.Fatalf("table size changed: %d", tab.Len())
	}
}

func TestLookupBounded(t *testing.T) {
	tab := newTestTable()
	seed := nodeAt(idAt(0x80, 1), "10.0.0.1")
	tab.AddVerified(seed)

	// An adversarial network that always returns fresh, ever-closer nodes
	// must still terminate within the round and candidate bounds.
	counter := byte(0)
	var rounds int
	var mu sync.Mutex
	query := func(ctx context.Context, n *Node, target ID) ([]*Node, error) {
		mu.Lock()
		rounds++
		counter++
		c := counter
		mu.Unlock()
		out := make([]*Node, 0, 8)
		for i := 0; i < 8; i++ {
			out = append(out, nodeAt(idAt(0x80, 0xf0, c, byte(i)), "10.3.0.1"))
		}
		return out, nil
	}
	result := tab.Lookup(context.Background(), idAt(0x80, 0xff), query)
	if len(result) > params.BucketSize {
		t.Fatalf("result exceeds K: %d", len(result))
	}
	mu.Lock()
	total := rounds
	mu.Unlock()
	if total > params.LookupMaxRounds*params.LookupAlpha {
		t.Fatalf("lookup exceeded probe bound: %d probes", total)
	}
}

func TestDistCmpMatchesSort(t *testing.T) {
	target := idAt(0x55)
	ids := []ID{idAt(0x01), idAt(0xff), idAt(0x55, 0x01), idAt(0x54)}
	nodes := make([]*Node, len(ids))
	for i, id := range ids {
		nodes[i] = &Node{ID: id}
	}
	sortByDistance(nodes, target)
	check := sort.SliceIsSorted(nodes, func(i, j int) bool {
		return DistCmp(target, nodes[i].ID, nodes[j].ID) < 0
	})
	if !check {
		t.Fatalf("sortByDistance disagrees with DistCmp")
	}
}
