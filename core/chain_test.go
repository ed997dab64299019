package core

import (
	"crypto/rand"
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/basalt-network/gbasalt/basdb"
	"github.com/basalt-network/gbasalt/common"
	"github.com/basalt-network/gbasalt/core/types"
	"github.com/basalt-network/gbasalt/crypto"
	"github.com/basalt-network/gbasalt/crypto/bls"
	"github.com/basalt-network/gbasalt/crypto/ed25519"
	"github.com/basalt-network/gbasalt/params"
	"github.com/basalt-network/gbasalt/staking"
)

var proposer = common.HexToAddress("0x0000000000000000000000000000000000000fee")

type testAccount struct {
	priv ed25519.PrivateKey
	addr common.Address
}

func newAccount(t *testing.T) *testAccount {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	return &testAccount{priv: priv, addr: crypto.DeriveAddress(ed25519.PublicFromPrivate(priv))}
}

func (a *testAccount) transfer(t *testing.T, nonce uint64, to common.Address, value, gasPrice uint64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		Type:     types.TxTransfer,
		Nonce:    nonce,
		To:       to,
		Value:    uint256.NewInt(value),
		GasLimit: 21000,
		GasPrice: uint256.NewInt(gasPrice),
		ChainID:  params.TestChainConfig.ChainID,
	}
	if _, err := types.SignTx(tx, a.priv); err != nil {
		t.Fatalf("signing failed: %v", err)
	}
	return tx
}

type testChain struct {
	bc      *BlockChain
	staking *staking.StakingState
	config  *params.ChainConfig
}

func newTestChain(t *testing.T, config *params.ChainConfig, alloc map[common.Address]*uint256.Int) *testChain {
	t.Helper()
	st := staking.New(config.MinStake(), config.UnbondingPeriod)
	genesis := &Genesis{Config: config, Alloc: alloc}
	bc, err := NewBlockChain(config, basdb.NewMemoryDatabase(), genesis, st, nil)
	if err != nil {
		t.Fatalf("chain setup failed: %v", err)
	}
	return &testChain{bc: bc, staking: st, config: config}
}

// seal builds a block from candidates on the current head and inserts it.
func (tc *testChain) seal(t *testing.T, candidates []*types.Transaction) *types.Block {
	t.Helper()
	block, err := tc.bc.BuildBlock(candidates, proposer, 0)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if err := tc.bc.InsertBlock(block); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	return block
}

func oneE24() *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(24))
}

func TestGenesisInitialBalances(t *testing.T) {
	a := common.HexToAddress("0xaaaa")
	b := common.HexToAddress("0xbbbb")
	tc := newTestChain(t, params.TestChainConfig, map[common.Address]*uint256.Int{
		a: uint256.NewInt(1_000_000),
		b: uint256.NewInt(500_000),
	})
	if got := tc.bc.GetBalance(a); !got.Eq(uint256.NewInt(1_000_000)) {
		t.Fatalf("balance of A: have %v want 1000000", got)
	}
	if got := tc.bc.GetBalance(b); !got.Eq(uint256.NewInt(500_000)) {
		t.Fatalf("balance of B: have %v want 500000", got)
	}
	head := tc.bc.CurrentBlock()
	if head.Number() != 0 {
		t.Fatalf("genesis number: have %d want 0", head.Number())
	}
	if !head.ParentHash().IsZero() {
		t.Fatalf("genesis parent hash should be zero")
	}
	if head.StateRoot().IsZero() {
		t.Fatalf("genesis state root should not be zero")
	}
}

func TestTransferScenario(t *testing.T) {
	alice := newAccount(t)
	bob := newAccount(t)
	tc := newTestChain(t, params.TestChainConfig, map[common.Address]*uint256.Int{
		alice.addr: oneE24(),
	})

	tx := alice.transfer(t, 0, bob.addr, 1000, 1)
	block := tc.seal(t, []*types.Transaction{tx})
	if len(block.Transactions()) != 1 {
		t.Fatalf("transfer not included")
	}

	wantAlice := new(uint256.Int).Sub(oneE24(), uint256.NewInt(1000+21000))
	if got := tc.bc.GetBalance(alice.addr); !got.Eq(wantAlice) {
		t.Fatalf("sender balance: have %v want %v", got, wantAlice)
	}
	if got := tc.bc.GetBalance(bob.addr); !got.Eq(uint256.NewInt(1000)) {
		t.Fatalf("recipient balance: have %v want 1000", got)
	}
	if got := tc.bc.GetNonce(alice.addr); got != 1 {
		t.Fatalf("sender nonce: have %d want 1", got)
	}
	receipt := block.Receipts()[0]
	if !receipt.Success || receipt.GasUsed != 21000 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	// The transaction hash is a pure function of the signed payload.
	decoded, err := types.DecodeTransaction(tx.Encode())
	if err != nil || decoded.Hash() != tx.Hash() {
		t.Fatalf("transaction hash not deterministic: %v", err)
	}
}

func TestBalanceConservation(t *testing.T) {
	alice := newAccount(t)
	bob := newAccount(t)
	tc := newTestChain(t, params.TestChainConfig, map[common.Address]*uint256.Int{
		alice.addr: uint256.NewInt(10_000_000),
	})
	// gas price 3 against base fee 1: per unit, 2 goes to the proposer and
	// 1 is burned.
	tx := alice.transfer(t, 0, bob.addr, 1000, 3)
	block := tc.seal(t, []*types.Transaction{tx})
	receipt := block.Receipts()[0]

	burned := new(uint256.Int).Mul(block.BaseFee(), uint256.NewInt(receipt.GasUsed))
	total := new(uint256.Int)
	for _, addr := range []common.Address{alice.addr, bob.addr, proposer} {
		total.Add(total, tc.bc.GetBalance(addr))
	}
	total.Add(total, burned)
	if !total.Eq(uint256.NewInt(10_000_000)) {
		t.Fatalf("balance sum plus burn drifted: have %v want 10000000", total)
	}
	tip := new(uint256.Int).Mul(uint256.NewInt(2), uint256.NewInt(receipt.GasUsed))
	if got := tc.bc.GetBalance(proposer); !got.Eq(tip) {
		t.Fatalf("proposer tip: have %v want %v", got, tip)
	}
}

func TestValidationLadder(t *testing.T) {
	alice := newAccount(t)
	bob := newAccount(t)
	tc := newTestChain(t, params.TestChainConfig, map[common.Address]*uint256.Int{
		alice.addr: uint256.NewInt(1_000_000),
	})

	// Wrong chain id.
	wrongChain := alice.transfer(t, 0, bob.addr, 1, 1)
	wrongChain.ChainID = 1
	types.SignTx(wrongChain, alice.priv)
	if err := tc.bc.ValidateForPool(wrongChain); !errors.Is(err, ErrWrongChain) {
		t.Fatalf("expected ErrWrongChain, have %v", err)
	}

	// Unknown sender.
	ghost := newAccount(t)
	if err := tc.bc.ValidateForPool(ghost.transfer(t, 0, bob.addr, 1, 1)); !errors.Is(err, ErrUnknownSender) {
		t.Fatalf("expected ErrUnknownSender, have %v", err)
	}

	// Future and stale nonces.
	if err := tc.bc.ValidateForPool(alice.transfer(t, 5, bob.addr, 1, 1)); !errors.Is(err, ErrNonceTooHigh) {
		t.Fatalf("expected ErrNonceTooHigh, have %v", err)
	}
	tc.seal(t, []*types.Transaction{alice.transfer(t, 0, bob.addr, 1, 1)})
	if err := tc.bc.ValidateForPool(alice.transfer(t, 0, bob.addr, 1, 1)); !errors.Is(err, ErrNonceTooLow) {
		t.Fatalf("expected ErrNonceTooLow, have %v", err)
	}

	// Gas limit exactly at the intrinsic cost passes, one below fails.
	exact := alice.transfer(t, 1, bob.addr, 1, 1)
	if err := tc.bc.ValidateForPool(exact); err != nil {
		t.Fatalf("gas limit == intrinsic should pass: %v", err)
	}
	short := &types.Transaction{
		Type:     types.TxTransfer,
		Nonce:    1,
		To:       bob.addr,
		Value:    uint256.NewInt(1),
		GasLimit: 20999,
		GasPrice: uint256.NewInt(1),
		ChainID:  tc.config.ChainID,
	}
	types.SignTx(short, alice.priv)
	if err := tc.bc.ValidateForPool(short); !errors.Is(err, ErrIntrinsicGas) {
		t.Fatalf("expected ErrIntrinsicGas, have %v", err)
	}

	// Insufficient funds.
	rich := alice.transfer(t, 1, bob.addr, 2_000_000, 1)
	if err := tc.bc.ValidateForPool(rich); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, have %v", err)
	}

	// Tampered signature.
	bad := alice.transfer(t, 1, bob.addr, 1, 1)
	bad.Signature = make([]byte, ed25519.SignatureSize)
	if err := tc.bc.ValidateForPool(bad); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, have %v", err)
	}

	// Sender not derived from the public key.
	stolen := alice.transfer(t, 1, bob.addr, 1, 1)
	stolen.Sender = bob.addr
	if err := tc.bc.ValidateForPool(stolen); !errors.Is(err, ErrSenderMismatch) {
		t.Fatalf("expected ErrSenderMismatch, have %v", err)
	}
}

func TestFailedExecutionProducesFailedReceipt(t *testing.T) {
	alice := newAccount(t)
	tc := newTestChain(t, params.TestChainConfig, map[common.Address]*uint256.Int{
		alice.addr: uint256.NewInt(1_000_000),
	})
	// Deposit to a validator that was never registered: execution fails,
	// the gas is consumed, the value comes back, the block stays valid.
	deposit := &types.Transaction{
		Type:     types.TxStakeDeposit,
		Nonce:    0,
		To:       common.HexToAddress("0xdead"),
		Value:    uint256.NewInt(500),
		GasLimit: 21000,
		GasPrice: uint256.NewInt(1),
		ChainID:  tc.config.ChainID,
	}
	types.SignTx(deposit, alice.priv)
	block := tc.seal(t, []*types.Transaction{deposit})

	receipt := block.Receipts()[0]
	if receipt.Success {
		t.Fatalf("deposit to unregistered validator should fail")
	}
	if receipt.ErrorCode != "UnknownValidator" {
		t.Fatalf("unexpected error code: %q", receipt.ErrorCode)
	}
	if receipt.GasUsed != 21000 {
		t.Fatalf("failed execution should still consume gas: have %d", receipt.GasUsed)
	}
	want := uint256.NewInt(1_000_000 - 21000)
	if got := tc.bc.GetBalance(alice.addr); !got.Eq(want) {
		t.Fatalf("only gas should be spent: have %v want %v", got, want)
	}
	if got := tc.bc.GetNonce(alice.addr); got != 1 {
		t.Fatalf("nonce should advance on failed execution: have %d", got)
	}
}

func registerTx(t *testing.T, acct *testAccount, nonce uint64, stake uint64, config *params.ChainConfig) *types.Transaction {
	t.Helper()
	sk, err := bls.GenerateKey()
	if err != nil {
		t.Fatalf("bls key generation failed: %v", err)
	}
	data, err := staking.EncodeRegisterPayload(sk.PublicKey().Marshal(), "127.0.0.1:30303")
	if err != nil {
		t.Fatalf("payload encoding failed: %v", err)
	}
	tx := &types.Transaction{
		Type:     types.TxValidatorRegister,
		Nonce:    nonce,
		To:       acct.addr,
		Value:    uint256.NewInt(stake),
		GasLimit: 100_000,
		GasPrice: uint256.NewInt(1),
		Data:     data,
		ChainID:  config.ChainID,
	}
	types.SignTx(tx, acct.priv)
	return tx
}

func TestStakingLifecycleThroughExecutor(t *testing.T) {
	config := *params.TestChainConfig
	config.UnbondingPeriod = 2
	alice := newAccount(t)
	tc := newTestChain(t, &config, map[common.Address]*uint256.Int{
		alice.addr: uint256.NewInt(10_000_000),
	})

	// Register with the minimum stake.
	tc.seal(t, []*types.Transaction{registerTx(t, alice, 0, 100_000, &config)})
	info, ok := tc.staking.Validator(alice.addr)
	if !ok || !info.Active {
		t.Fatalf("validator should be registered and active")
	}
	if !info.SelfStake.Eq(uint256.NewInt(100_000)) {
		t.Fatalf("unexpected self stake: %v", info.SelfStake)
	}

	balanceAfterRegister := tc.bc.GetBalance(alice.addr)

	// Full exit: withdraw everything, wait out the unbonding period.
	amount := uint256.NewInt(100_000).Bytes32()
	withdraw := &types.Transaction{
		Type:     types.TxStakeWithdraw,
		Nonce:    1,
		To:       alice.addr,
		GasLimit: 50_000,
		GasPrice: uint256.NewInt(1),
		Data:     amount[:],
		ChainID:  config.ChainID,
	}
	types.SignTx(withdraw, alice.priv)
	tc.seal(t, []*types.Transaction{withdraw}) // block 2, completes at 4

	info, _ = tc.staking.Validator(alice.addr)
	if info.Active || !info.SelfStake.IsZero() {
		t.Fatalf("stake should be gone after withdrawal: %+v", info)
	}
	tc.seal(t, nil) // block 3
	beforeRelease := tc.bc.GetBalance(alice.addr)
	tc.seal(t, nil) // block 4: unbonding completes
	afterRelease := tc.bc.GetBalance(alice.addr)

	wantGain := uint256.NewInt(100_000)
	gain := new(uint256.Int).Sub(afterRelease, beforeRelease)
	if !gain.Eq(wantGain) {
		t.Fatalf("unbonding release: have %v want %v", gain, wantGain)
	}
	// The withdrawal round trip only cost gas.
	spentGas := new(uint256.Int).Sub(balanceAfterRegister, beforeRelease)
	wantGas := new(uint256.Int).Mul(uint256.NewInt(21000+32*params.TxDataGas), uint256.NewInt(1))
	if !spentGas.Eq(wantGas) {
		t.Fatalf("withdrawal gas: have %v want %v", spentGas, wantGas)
	}
}

func TestInsertRefusesBadBlocks(t *testing.T) {
	alice := newAccount(t)
	bob := newAccount(t)
	tc := newTestChain(t, params.TestChainConfig, map[common.Address]*uint256.Int{
		alice.addr: uint256.NewInt(1_000_000),
	})
	block, err := tc.bc.BuildBlock([]*types.Transaction{alice.transfer(t, 0, bob.addr, 1000, 1)}, proposer, 0)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// Tampered state root.
	header := block.Header()
	header.StateRoot = crypto.Blake3Hash([]byte("bogus"))
	forged := types.NewBlock(header, block.Transactions(), block.Receipts())
	if err := tc.bc.InsertBlock(forged); !errors.Is(err, ErrStateRootMismatch) {
		t.Fatalf("expected ErrStateRootMismatch, have %v", err)
	}

	// Tampered receipts root.
	header = block.Header()
	header.ReceiptsRoot = crypto.Blake3Hash([]byte("bogus"))
	forged = types.NewBlock(header, block.Transactions(), block.Receipts())
	if err := tc.bc.InsertBlock(forged); !errors.Is(err, ErrReceiptsRootMismatch) {
		t.Fatalf("expected ErrReceiptsRootMismatch, have %v", err)
	}

	// Wrong number.
	header = block.Header()
	header.Number = 7
	forged = types.NewBlock(header, block.Transactions(), block.Receipts())
	if err := tc.bc.InsertBlock(forged); !errors.Is(err, ErrBadBlockNumber) {
		t.Fatalf("expected ErrBadBlockNumber, have %v", err)
	}

	// Wrong parent hash.
	header = block.Header()
	header.ParentHash = crypto.Blake3Hash([]byte("other"))
	forged = types.NewBlock(header, block.Transactions(), block.Receipts())
	if err := tc.bc.InsertBlock(forged); !errors.Is(err, ErrBadParentHash) {
		t.Fatalf("expected ErrBadParentHash, have %v", err)
	}

	// A refused block must leave no trace: the genuine block still applies.
	if err := tc.bc.InsertBlock(block); err != nil {
		t.Fatalf("genuine block refused after forgeries: %v", err)
	}
}

func TestEmptyBlockRoots(t *testing.T) {
	tc := newTestChain(t, params.TestChainConfig, nil)
	block := tc.seal(t, nil)
	header := block.Header()
	if !header.TransactionsRoot.IsZero() || !header.ReceiptsRoot.IsZero() {
		t.Fatalf("empty block roots should be zero")
	}
	if header.GasUsed != 0 {
		t.Fatalf("empty block gas used should be zero")
	}
}

func TestBuilderSkipsOverBudgetTxs(t *testing.T) {
	config := *params.TestChainConfig
	config.MaxTransactionsPerBlock = 2
	alice := newAccount(t)
	bob := newAccount(t)
	tc := newTestChain(t, &config, map[common.Address]*uint256.Int{
		alice.addr: uint256.NewInt(10_000_000),
	})
	candidates := []*types.Transaction{
		alice.transfer(t, 0, bob.addr, 1, 1),
		alice.transfer(t, 1, bob.addr, 1, 1),
		alice.transfer(t, 2, bob.addr, 1, 1), // over the count cap
	}
	block := tc.seal(t, candidates)
	if got := len(block.Transactions()); got != 2 {
		t.Fatalf("count cap ignored: have %d want 2", got)
	}
}

func TestBuilderSkipsInvalidTx(t *testing.T) {
	alice := newAccount(t)
	bob := newAccount(t)
	ghost := newAccount(t)
	tc := newTestChain(t, params.TestChainConfig, map[common.Address]*uint256.Int{
		alice.addr: uint256.NewInt(1_000_000),
	})
	candidates := []*types.Transaction{
		ghost.transfer(t, 0, bob.addr, 1, 1), // unknown sender: skipped
		alice.transfer(t, 0, bob.addr, 1, 1),
	}
	block := tc.seal(t, candidates)
	if got := len(block.Transactions()); got != 1 {
		t.Fatalf("invalid tx not skipped: have %d txs", got)
	}
	if block.Transactions()[0].Sender != alice.addr {
		t.Fatalf("wrong transaction included")
	}
}

func TestChainRecoveryReplaysState(t *testing.T) {
	alice := newAccount(t)
	bob := newAccount(t)
	db := basdb.NewMemoryDatabase()
	config := params.TestChainConfig
	alloc := map[common.Address]*uint256.Int{alice.addr: oneE24()}

	st := staking.New(config.MinStake(), config.UnbondingPeriod)
	genesis := &Genesis{Config: config, Alloc: alloc}
	bc, err := NewBlockChain(config, db, genesis, st, nil)
	if err != nil {
		t.Fatalf("chain setup failed: %v", err)
	}
	for nonce := uint64(0); nonce < 3; nonce++ {
		block, err := bc.BuildBlock([]*types.Transaction{alice.transfer(t, nonce, bob.addr, 100, 1)}, proposer, 0)
		if err != nil {
			t.Fatalf("build failed: %v", err)
		}
		if err := bc.InsertBlock(block); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}
	wantHead := bc.CurrentBlock().Hash()
	wantBalance := bc.GetBalance(bob.addr)

	// A fresh chain over the same store must replay to the same head.
	st2 := staking.New(config.MinStake(), config.UnbondingPeriod)
	bc2, err := NewBlockChain(config, db, &Genesis{Config: config, Alloc: alloc}, st2, nil)
	if err != nil {
		t.Fatalf("recovery failed: %v", err)
	}
	if bc2.CurrentBlock().Hash() != wantHead {
		t.Fatalf("recovered head mismatch: have %s want %s", bc2.CurrentBlock().Hash().Hex(), wantHead.Hex())
	}
	if got := bc2.GetBalance(bob.addr); !got.Eq(wantBalance) {
		t.Fatalf("recovered balance mismatch: have %v want %v", got, wantBalance)
	}
}
