package state

import (
	"fmt"
	"testing"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/core/types"
)

func TestAccountLifecycle(t *testing.T) {
	db := New()
	addr := common.HexToAddress("0x01")

	if db.GetAccount(addr) != nil {
		t.Fatalf("absent account should be nil")
	}
	db.AddBalance(addr, uint256.NewInt(100))
	db.SetNonce(addr, 3)

	acct := db.GetAccount(addr)
	if acct == nil {
		t.Fatalf("account should exist after mutation")
	}
	if !acct.Balance.Eq(uint256.NewInt(100)) || acct.Nonce != 3 {
		t.Fatalf("unexpected account: balance=%v nonce=%d", acct.Balance, acct.Nonce)
	}

	// Returned accounts are copies: mutating them must not leak into state.
	acct.Balance.SetUint64(1)
	if got := db.GetBalance(addr); !got.Eq(uint256.NewInt(100)) {
		t.Fatalf("copy leaked into state: have %v want 100", got)
	}
}

func TestSubBalanceClampsAtZero(t *testing.T) {
	db := New()
	addr := common.HexToAddress("0x01")
	db.AddBalance(addr, uint256.NewInt(10))
	db.SubBalance(addr, uint256.NewInt(100))
	if got := db.GetBalance(addr); !got.IsZero() {
		t.Fatalf("balance should clamp at zero, have %v", got)
	}
}

func TestSnapshotRevert(t *testing.T) {
	db := New()
	a := common.HexToAddress("0xaa")
	b := common.HexToAddress("0xbb")
	key := common.HexToHash("0x01")

	db.AddBalance(a, uint256.NewInt(1000))
	db.SetStorage(a, key, []byte{0x01})
	db.Finalise()

	snap := db.Snapshot()
	db.SubBalance(a, uint256.NewInt(400))
	db.AddBalance(b, uint256.NewInt(400))
	db.SetNonce(a, 1)
	db.SetStorage(a, key, []byte{0x02})
	db.DeleteStorage(a, key)
	db.RevertToSnapshot(snap)

	if got := db.GetBalance(a); !got.Eq(uint256.NewInt(1000)) {
		t.Fatalf("revert lost balance: have %v want 1000", got)
	}
	if db.Exist(b) {
		t.Fatalf("account created inside snapshot should be gone")
	}
	if got := db.GetNonce(a); got != 0 {
		t.Fatalf("nonce not reverted: have %d want 0", got)
	}
	if got := db.GetStorage(a, key); len(got) != 1 || got[0] != 0x01 {
		t.Fatalf("storage not reverted: have %x want 01", got)
	}
}

func TestNestedSnapshots(t *testing.T) {
	db := New()
	addr := common.HexToAddress("0x01")
	db.AddBalance(addr, uint256.NewInt(1))

	outer := db.Snapshot()
	db.AddBalance(addr, uint256.NewInt(10))
	inner := db.Snapshot()
	db.AddBalance(addr, uint256.NewInt(100))

	db.RevertToSnapshot(inner)
	if got := db.GetBalance(addr); !got.Eq(uint256.NewInt(11)) {
		t.Fatalf("inner revert mismatch: have %v want 11", got)
	}
	db.RevertToSnapshot(outer)
	if got := db.GetBalance(addr); !got.Eq(uint256.NewInt(1)) {
		t.Fatalf("outer revert mismatch: have %v want 1", got)
	}
}

func TestStateRootDeterminism(t *testing.T) {
	build := func(order []int) common.Hash {
		db := New()
		for _, i := range order {
			addr := common.HexToAddress(fmt.Sprintf("0x%02x", i))
			db.AddBalance(addr, uint256.NewInt(uint64(i)*7))
			db.SetNonce(addr, uint64(i))
			db.SetStorage(addr, common.HexToHash("0x10"), []byte{byte(i)})
		}
		return db.ComputeStateRoot()
	}
	root1 := build([]int{1, 2, 3, 4, 5})
	root2 := build([]int{5, 3, 1, 4, 2})
	if root1 != root2 {
		t.Fatalf("state root depends on insertion order: %s != %s", root1.Hex(), root2.Hex())
	}
	if root1.IsZero() {
		t.Fatalf("root of populated state should not be zero")
	}
}

func TestStateRootTracksChanges(t *testing.T) {
	db := New()
	addr := common.HexToAddress("0x01")
	db.AddBalance(addr, uint256.NewInt(5))
	before := db.ComputeStateRoot()

	db.AddBalance(addr, uint256.NewInt(1))
	after := db.ComputeStateRoot()
	if before == after {
		t.Fatalf("balance change must move the state root")
	}

	db.SetStorage(addr, common.HexToHash("0x01"), []byte("v"))
	withStorage := db.ComputeStateRoot()
	if withStorage == after {
		t.Fatalf("storage change must move the state root")
	}
}

func TestEmptyStateRootIsZero(t *testing.T) {
	if got := New().ComputeStateRoot(); !got.IsZero() {
		t.Fatalf("empty state root should be zero, have %s", got.Hex())
	}
}

func TestCopyDetached(t *testing.T) {
	db := New()
	addr := common.HexToAddress("0x01")
	db.AddBalance(addr, uint256.NewInt(42))
	db.SetCode(addr, common.HexToHash("0xc0de"))

	cpy := db.Copy()
	cpy.AddBalance(addr, uint256.NewInt(1))
	if got := db.GetBalance(addr); !got.Eq(uint256.NewInt(42)) {
		t.Fatalf("copy mutation leaked: have %v want 42", got)
	}
	if acct := cpy.GetAccount(addr); acct.AccountType != types.AccountContract {
		t.Fatalf("account type lost in copy")
	}
}
