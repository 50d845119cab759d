package state_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/walletchain/foundation/blockchain/accounts"
	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
	"github.com/ardanlabs/walletchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/walletchain/foundation/blockchain/state"
	"github.com/ardanlabs/walletchain/foundation/blockchain/storage"
	"github.com/google/go-cmp/cmp"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const reserve = 1_000_000

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Timestamp:      genesis.DefaultTimestamp,
		Difficulty:     2,
		Reserve:        reserve,
		DefaultBalance: 1000,
	}
}

// clock returns a function that moves forward one millisecond on each call.
func clock() func() time.Time {
	var mu sync.Mutex
	now := time.UnixMilli(genesis.DefaultTimestamp + 1000)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		now = now.Add(time.Millisecond)
		return now
	}
}

func newLedger(t *testing.T, store storage.Store) *state.State {
	t.Helper()

	st, err := state.New(state.Config{
		Store:   store,
		Genesis: testGenesis(),
		Now:     clock(),
	})
	if err != nil {
		t.Fatalf("Should be able to construct the ledger: %v", err)
	}

	if err := st.Initialize(context.Background()); err != nil {
		t.Fatalf("Should be able to initialize the ledger: %v", err)
	}

	return st
}

func addWallet(t *testing.T, st *state.State, address string, balance float64) database.Wallet {
	t.Helper()

	w, err := st.AddWallet(state.NewWallet{Address: address, Balance: &balance})
	if err != nil {
		t.Fatalf("Should be able to add wallet %s: %v", address, err)
	}

	return w
}

func balanceOf(t *testing.T, st *state.State, address string) float64 {
	t.Helper()

	w, err := st.GetWallet(address)
	if err != nil {
		t.Fatalf("Should be able to get wallet %s: %v", address, err)
	}

	return w.Balance
}

// completedTx builds a well formed transaction as it would appear once mined.
func completedTx(t *testing.T, from string, to string, amount float64, isSystem bool) database.Tx {
	t.Helper()

	tx, err := database.NewTx(from, to, amount, isSystem, time.UnixMilli(genesis.DefaultTimestamp+5000))
	if err != nil {
		t.Fatalf("Should be able to build a transaction: %v", err)
	}
	tx.Status = database.TxCompleted

	return tx
}

// mineOn solves a block holding the transactions on top of the parent,
// bypassing every balance check the ledger would make.
func mineOn(t *testing.T, parent database.Block, txs ...database.Tx) database.Block {
	t.Helper()

	block, err := database.POW(context.Background(), database.POWArgs{
		PrevBlock:  parent,
		Trans:      txs,
		Difficulty: testGenesis().Difficulty,
		Now:        time.UnixMilli(parent.Timestamp + 10),
	}, func(string, ...any) {})
	if err != nil {
		t.Fatalf("Should be able to mine block %d: %v", parent.Index+1, err)
	}

	return block
}

func pendingCount(t *testing.T, st *state.State) int {
	t.Helper()

	txs, err := st.PendingTransactions()
	if err != nil {
		t.Fatalf("Should be able to get the pending pool: %v", err)
	}

	return len(txs)
}

// =============================================================================

func TestScenario(t *testing.T) {
	t.Log("Given the need to run a ledger from genesis through a mined block.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen initializing an empty ledger.", testID)
		{
			st := newLedger(t, storage.NewMemory())

			genesisBlock, err := st.LatestBlock()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to get the genesis block: %v", failed, testID, err)
			}
			if genesisBlock.Index != 0 || genesisBlock.PreviousHash != "0" {
				t.Fatalf("\t%s\tTest %d:\tShould have a genesis block at index 0 with previous hash \"0\".", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have a genesis block at index 0 with previous hash \"0\".", success, testID)

			if b := balanceOf(t, st, database.MainWalletAddress); b != reserve {
				t.Fatalf("\t%s\tTest %d:\tShould have the reserve in the main wallet: %v", failed, testID, b)
			}
			t.Logf("\t%s\tTest %d:\tShould have the reserve in the main wallet.", success, testID)

			addWallet(t, st, "A", 1000)
			if b := balanceOf(t, st, "A"); b != 1000 {
				t.Fatalf("\t%s\tTest %d:\tShould register wallet A with 1000: %v", failed, testID, b)
			}
			t.Logf("\t%s\tTest %d:\tShould register wallet A with 1000.", success, testID)

			tx, err := st.CreateTransaction(state.NewTx{From: "A", To: database.MainWalletAddress, Amount: 200})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept a transfer of 200 to the main wallet: %v", failed, testID, err)
			}
			if tx.Status != database.TxPending || pendingCount(t, st) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have one pending transaction.", failed, testID)
			}
			if b := balanceOf(t, st, "A"); b != 1000 {
				t.Fatalf("\t%s\tTest %d:\tShould not touch balances before mining: %v", failed, testID, b)
			}
			t.Logf("\t%s\tTest %d:\tShould have one pending transaction and unchanged balances.", success, testID)

			block, err := st.MineBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine: %v", failed, testID, err)
			}
			if block.Index != 1 || len(block.Transactions) != 1 || block.Transactions[0].Hash != tx.Hash {
				t.Fatalf("\t%s\tTest %d:\tShould mine block 1 holding the transaction.", failed, testID)
			}
			if block.Transactions[0].Status != database.TxCompleted {
				t.Fatalf("\t%s\tTest %d:\tShould mark the transaction completed.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould mine block 1 holding the completed transaction.", success, testID)

			if a, m := balanceOf(t, st, "A"), balanceOf(t, st, database.MainWalletAddress); a != 800 || m != reserve+200 {
				t.Fatalf("\t%s\tTest %d:\tShould apply the balances: A[%v] main[%v]", failed, testID, a, m)
			}
			t.Logf("\t%s\tTest %d:\tShould apply the balances.", success, testID)

			if n := pendingCount(t, st); n != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould drain the pool: %d", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould drain the pool.", success, testID)

			if err := st.ValidateChain(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould validate the chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould validate the chain.", success, testID)

			count, err := st.WalletTransactionCount("A")
			if err != nil || count != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould count one transaction for A: %d %v", failed, testID, count, err)
			}
			t.Logf("\t%s\tTest %d:\tShould count one transaction for A.", success, testID)
		}
	}
}

func TestCreateTransactionErrors(t *testing.T) {
	type table struct {
		name string
		tx   state.NewTx
		kind state.Kind
	}

	tt := []table{
		{"zero-amount", state.NewTx{From: "A", To: "B", Amount: 0}, state.KindInvalidAmount},
		{"negative-amount", state.NewTx{From: "A", To: "B", Amount: -5}, state.KindInvalidAmount},
		{"nan-amount", state.NewTx{From: "A", To: "B", Amount: math.NaN()}, state.KindInvalidFormat},
		{"inf-amount", state.NewTx{From: "A", To: "B", Amount: math.Inf(1)}, state.KindInvalidFormat},
		{"bad-address", state.NewTx{From: "A\n", To: "B", Amount: 1}, state.KindInvalidFormat},
		{"missing-from", state.NewTx{To: "B", Amount: 1}, state.KindMissingField},
		{"missing-to", state.NewTx{From: "A", Amount: 1}, state.KindMissingField},
		{"self-transfer", state.NewTx{From: "A", To: "A", Amount: 1}, state.KindSelfTransfer},
		{"self-transfer-unknown", state.NewTx{From: "X", To: "X", Amount: 1}, state.KindSelfTransfer},
		{"self-transfer-broke", state.NewTx{From: "A", To: "A", Amount: 5000}, state.KindSelfTransfer},
		{"self-transfer-zero", state.NewTx{From: "A", To: "A", Amount: 0}, state.KindInvalidAmount},
		{"unknown-sender", state.NewTx{From: "X", To: "B", Amount: 1}, state.KindInvalidWallet},
		{"unknown-recipient", state.NewTx{From: "A", To: "X", Amount: 1}, state.KindInvalidWallet},
		{"main-wallet", state.NewTx{From: database.MainWalletAddress, To: "B", Amount: 1}, state.KindForbidden},
		{"insufficient", state.NewTx{From: "A", To: "B", Amount: 1000.5}, state.KindInsufficientFunds},
	}

	t.Log("Given the need to reject invalid transactions.")
	{
		st := newLedger(t, storage.NewMemory())
		addWallet(t, st, "A", 1000)
		addWallet(t, st, "B", 0)

		for testID, tst := range tt {
			f := func(t *testing.T) {
				_, err := st.CreateTransaction(tst.tx)
				if state.KindOf(err) != tst.kind {
					t.Fatalf("\t%s\tTest %d:\tShould get a %s error: %v", failed, testID, tst.kind, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get a %s error.", success, testID, tst.kind)

				if n := pendingCount(t, st); n != 0 {
					t.Fatalf("\t%s\tTest %d:\tShould leave the pool unchanged: %d", failed, testID, n)
				}
				t.Logf("\t%s\tTest %d:\tShould leave the pool unchanged.", success, testID)
			}

			t.Run(tst.name, f)
		}

		if _, err := st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: 0}); !errors.Is(err, state.ErrInvalidAmount) {
			t.Fatalf("\t%s\tShould match the sentinel with errors.Is: %v", failed, err)
		}
		t.Logf("\t%s\tShould match the sentinel with errors.Is.", success)

		if _, err := st.CreateTransaction(state.NewTx{From: database.MainWalletAddress, To: "B", Amount: 1, IsSystemTransaction: true}); err != nil {
			t.Fatalf("\t%s\tShould allow a system transaction from the main wallet: %v", failed, err)
		}
		t.Logf("\t%s\tShould allow a system transaction from the main wallet.", success)
	}
}

func TestExactBalance(t *testing.T) {
	t.Log("Given the need to allow spending the whole balance.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the amount equals the balance.", testID)
		{
			st := newLedger(t, storage.NewMemory())
			addWallet(t, st, "A", 500)
			addWallet(t, st, "B", 499)

			if _, err := st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: 500}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the transfer: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the transfer.", success, testID)

			if _, err := st.CreateTransaction(state.NewTx{From: "B", To: "A", Amount: 500}); !errors.Is(err, state.ErrInsufficientFunds) {
				t.Fatalf("\t%s\tTest %d:\tShould reject one unit more than the balance: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject one unit more than the balance.", success, testID)

			if _, err := st.MineBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine: %v", failed, testID, err)
			}

			if b := balanceOf(t, st, "A"); b != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould leave a zero balance: %v", failed, testID, b)
			}
			t.Logf("\t%s\tTest %d:\tShould leave a zero balance.", success, testID)
		}
	}
}

func TestMineEmptyPool(t *testing.T) {
	t.Log("Given the need to refuse mining nothing.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the pool is empty.", testID)
		{
			st := newLedger(t, storage.NewMemory())

			if _, err := st.MineBlock(context.Background()); !errors.Is(err, state.ErrNoPendingTransactions) {
				t.Fatalf("\t%s\tTest %d:\tShould get NoPendingTransactions: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get NoPendingTransactions.", success, testID)

			chain, _ := st.Chain()
			if len(chain) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould not append a block: %d", failed, testID, len(chain))
			}
			t.Logf("\t%s\tTest %d:\tShould not append a block.", success, testID)
		}
	}
}

func TestMineRevalidation(t *testing.T) {
	t.Log("Given the need to re-validate pending transactions at mining time.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen two accepted transfers can't both be paid.", testID)
		{
			st := newLedger(t, storage.NewMemory())
			addWallet(t, st, "A", 1000)
			addWallet(t, st, "B", 0)

			first, err := st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: 800})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the first transfer: %v", failed, testID, err)
			}
			second, err := st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: 800})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the second transfer: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept both transfers at submission.", success, testID)

			block, err := st.MineBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine: %v", failed, testID, err)
			}
			if len(block.Transactions) != 1 || block.Transactions[0].Hash != first.Hash {
				t.Fatalf("\t%s\tTest %d:\tShould only mine the first transfer.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould only mine the first transfer.", success, testID)

			pending, _ := st.PendingTransactions()
			if len(pending) != 1 || pending[0].Hash != second.Hash {
				t.Fatalf("\t%s\tTest %d:\tShould leave the second transfer pending.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the second transfer pending.", success, testID)

			if _, err := st.MineBlock(context.Background()); !errors.Is(err, state.ErrNoPendingTransactions) {
				t.Fatalf("\t%s\tTest %d:\tShould not mine an unaffordable transfer: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not mine an unaffordable transfer.", success, testID)

			if a := balanceOf(t, st, "A"); a != 200 {
				t.Fatalf("\t%s\tTest %d:\tShould never go negative: %v", failed, testID, a)
			}
			t.Logf("\t%s\tTest %d:\tShould never go negative.", success, testID)
		}
	}
}

func TestRemoveWallet(t *testing.T) {
	t.Log("Given the need to remove wallets.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen removing a wallet with a positive balance.", testID)
		{
			st := newLedger(t, storage.NewMemory())
			addWallet(t, st, "A", 750)
			addWallet(t, st, "B", 100)

			if _, err := st.CreateTransaction(state.NewTx{From: "B", To: "A", Amount: 10}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept a pending transfer: %v", failed, testID, err)
			}

			if err := st.RemoveWallet(context.Background(), "A"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to remove the wallet: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to remove the wallet.", success, testID)

			if m := balanceOf(t, st, database.MainWalletAddress); m != reserve+750 {
				t.Fatalf("\t%s\tTest %d:\tShould move the balance to the main wallet: %v", failed, testID, m)
			}
			t.Logf("\t%s\tTest %d:\tShould move the balance to the main wallet.", success, testID)

			wallets, _ := st.Wallets()
			for _, w := range wallets {
				if w.Address == "A" {
					t.Fatalf("\t%s\tTest %d:\tShould not list the removed wallet.", failed, testID)
				}
			}
			if has, _ := st.HasWallet("A"); has {
				t.Fatalf("\t%s\tTest %d:\tShould not find the removed wallet.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not list the removed wallet.", success, testID)

			latest, _ := st.LatestBlock()
			if latest.Index != 1 || !latest.Transactions[0].IsSystemTransaction {
				t.Fatalf("\t%s\tTest %d:\tShould mine the sweep as a system transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould mine the sweep as a system transaction.", success, testID)

			if n := pendingCount(t, st); n != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould drop pending transfers to the wallet: %d", failed, testID, n)
			}
			t.Logf("\t%s\tTest %d:\tShould drop pending transfers to the wallet.", success, testID)

			if err := st.ValidateChain(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould still validate the chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould still validate the chain.", success, testID)

			if err := st.RemoveWallet(context.Background(), "A"); !errors.Is(err, state.ErrNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould report a wallet that is already removed: %v", failed, testID, err)
			}
			if chain, _ := st.Chain(); len(chain) != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould not mine for a wallet that is already removed: %d", failed, testID, len(chain))
			}
			t.Logf("\t%s\tTest %d:\tShould report a wallet that is already removed.", success, testID)

			balance := 5.0
			if _, err := st.AddWallet(state.NewWallet{Address: "A", Balance: &balance}); !errors.Is(err, state.ErrDuplicateWallet) {
				t.Fatalf("\t%s\tTest %d:\tShould not reuse a removed address: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould not reuse a removed address.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen removing wallets that can't be removed.", testID)
		{
			st := newLedger(t, storage.NewMemory())

			if err := st.RemoveWallet(context.Background(), database.MainWalletAddress); !errors.Is(err, state.ErrInvalidOperation) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse to remove the main wallet: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse to remove the main wallet.", success, testID)

			if err := st.RemoveWallet(context.Background(), "nobody"); !errors.Is(err, state.ErrNotFound) {
				t.Fatalf("\t%s\tTest %d:\tShould report an unknown wallet: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould report an unknown wallet.", success, testID)

			addWallet(t, st, "empty", 0)
			if err := st.RemoveWallet(context.Background(), "empty"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould remove an empty wallet: %v", failed, testID, err)
			}
			chain, _ := st.Chain()
			if len(chain) != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould not mine for an empty wallet: %d", failed, testID, len(chain))
			}
			t.Logf("\t%s\tTest %d:\tShould remove an empty wallet without mining.", success, testID)
		}
	}
}

func TestRestart(t *testing.T) {
	t.Log("Given the need to reload the ledger after a restart.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a new ledger reads the same store.", testID)
		{
			store := storage.NewMemory()

			st := newLedger(t, store)
			addWallet(t, st, "A", 1000)
			addWallet(t, st, "B", 1000)
			st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: 300})
			if _, err := st.MineBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to mine: %v", failed, testID, err)
			}
			st.CreateTransaction(state.NewTx{From: "B", To: "A", Amount: 25})

			restarted := newLedger(t, store)

			chain1, _ := st.Chain()
			chain2, _ := restarted.Chain()
			if diff := cmp.Diff(chain1, chain2); diff != "" {
				t.Fatalf("\t%s\tTest %d:\tShould reload the same chain:\n%s", failed, testID, diff)
			}
			t.Logf("\t%s\tTest %d:\tShould reload the same chain.", success, testID)

			wallets1, _ := st.Wallets()
			wallets2, _ := restarted.Wallets()
			if diff := cmp.Diff(wallets1, wallets2); diff != "" {
				t.Fatalf("\t%s\tTest %d:\tShould reload the same wallets:\n%s", failed, testID, diff)
			}
			t.Logf("\t%s\tTest %d:\tShould reload the same wallets.", success, testID)

			pending1, _ := st.PendingTransactions()
			pending2, _ := restarted.PendingTransactions()
			if diff := cmp.Diff(pending1, pending2); diff != "" {
				t.Fatalf("\t%s\tTest %d:\tShould reload the same pool:\n%s", failed, testID, diff)
			}
			t.Logf("\t%s\tTest %d:\tShould reload the same pool.", success, testID)

			if err := restarted.ValidateChain(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould validate the reloaded chain: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould validate the reloaded chain.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the store refuses writes after it was seeded.", testID)
		{
			store := storage.NewMemory()

			st := newLedger(t, store)
			addWallet(t, st, "A", 1000)

			store.FailSaves(errors.New("read only"))

			restarted, err := state.New(state.Config{Store: store, Genesis: testGenesis(), Now: clock()})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the ledger: %v", failed, testID, err)
			}
			if err := restarted.Initialize(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould load without writing to the store: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould load without writing to the store.", success, testID)

			if b := balanceOf(t, restarted, "A"); b != 1000 {
				t.Fatalf("\t%s\tTest %d:\tShould reload the wallet: %v", failed, testID, b)
			}
			t.Logf("\t%s\tTest %d:\tShould reload the wallet.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen an empty store refuses writes.", testID)
		{
			store := storage.NewMemory()
			store.FailSaves(errors.New("read only"))

			st, err := state.New(state.Config{Store: store, Genesis: testGenesis(), Now: clock()})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the ledger: %v", failed, testID, err)
			}
			if err := st.Initialize(context.Background()); !errors.Is(err, state.ErrStorage) {
				t.Fatalf("\t%s\tTest %d:\tShould fail to persist the new genesis block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould fail to persist the new genesis block.", success, testID)
		}
	}
}

func TestValidateChainTampering(t *testing.T) {
	type table struct {
		name   string
		index  uint64
		tamper func(s *storage.State)
	}

	tt := []table{
		{"amount", 1, func(s *storage.State) { s.Chain[1].Transactions[0].Amount = 1 }},
		{"nonce", 2, func(s *storage.State) { s.Chain[2].Nonce++ }},
		{"genesis", 0, func(s *storage.State) { s.Chain[0].Timestamp++ }},
		{"balance", 2, func(s *storage.State) {
			w := s.Wallets["A"]
			w.Balance += 50
			s.Wallets["A"] = w
		}},
	}

	t.Log("Given the need to detect a tampered chain.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				store := storage.NewMemory()

				st := newLedger(t, store)
				addWallet(t, st, "A", 1000)
				addWallet(t, st, "B", 1000)
				for _, amount := range []float64{100, 200} {
					st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: amount})
					if _, err := st.MineBlock(context.Background()); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to mine: %v", failed, testID, err)
					}
				}

				saved, _ := store.LoadState()
				tst.tamper(&saved)
				store.SaveState(saved)

				tampered := newLedger(t, store)
				err := tampered.ValidateChain()

				var ce *state.ChainInconsistencyError
				if !errors.As(err, &ce) || ce.Index != tst.index {
					t.Fatalf("\t%s\tTest %d:\tShould fail at block %d: %v", failed, testID, tst.index, err)
				}
				t.Logf("\t%s\tTest %d:\tShould fail at block %d.", success, testID, tst.index)

				if !errors.Is(err, state.ErrChainInconsistency) {
					t.Fatalf("\t%s\tTest %d:\tShould match ErrChainInconsistency.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould match ErrChainInconsistency.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func TestValidateChainReplay(t *testing.T) {
	type table struct {
		name string
		tx   func(t *testing.T) database.Tx
		err  error
	}

	tt := []table{
		{"overspend", func(t *testing.T) database.Tx { return completedTx(t, "A", "B", 5000, false) }, accounts.ErrInsufficientBalance},
		{"unknown", func(t *testing.T) database.Tx { return completedTx(t, "A", "ghost", 10, false) }, accounts.ErrNotFound},
		{"main", func(t *testing.T) database.Tx { return completedTx(t, database.MainWalletAddress, "A", 10, false) }, nil},
	}

	t.Log("Given the need to replay a chain of correctly mined blocks.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				store := storage.NewMemory()

				st := newLedger(t, store)
				addWallet(t, st, "A", 1000)
				addWallet(t, st, "B", 1000)
				st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: 100})
				if _, err := st.MineBlock(context.Background()); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to mine: %v", failed, testID, err)
				}

				saved, _ := store.LoadState()
				bad := mineOn(t, saved.Chain[1], tst.tx(t))
				next := mineOn(t, bad, completedTx(t, "B", "A", 1, false))
				saved.Chain = append(saved.Chain, bad, next)
				store.SaveState(saved)

				tampered := newLedger(t, store)
				err := tampered.ValidateChain()

				var ce *state.ChainInconsistencyError
				if !errors.As(err, &ce) || ce.Index != 2 {
					t.Fatalf("\t%s\tTest %d:\tShould fail at the block that doesn't replay: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould fail at the block that doesn't replay.", success, testID)

				if tst.err != nil && !errors.Is(err, tst.err) {
					t.Fatalf("\t%s\tTest %d:\tShould carry the replay failure: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould carry the replay failure.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func TestValidateBlock(t *testing.T) {
	t.Log("Given the need to validate a block against its parent.")
	{
		st := newLedger(t, storage.NewMemory())
		addWallet(t, st, "A", 1000)
		addWallet(t, st, "B", 1000)
		if _, err := st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: 1000}); err != nil {
			t.Fatalf("Should accept the transfer: %v", err)
		}
		if _, err := st.MineBlock(context.Background()); err != nil {
			t.Fatalf("Should be able to mine: %v", err)
		}
		chain, _ := st.Chain()

		testID := 0
		t.Logf("\tTest %d:\tWhen the block is already in the chain.", testID)
		{
			if err := st.ValidateBlock(chain[1], chain[0]); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould check it against the balances before it was mined: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould check it against the balances before it was mined.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the block is a candidate for the head.", testID)
		{
			good := mineOn(t, chain[1], completedTx(t, "B", "A", 500, false))
			if err := st.ValidateBlock(good, chain[1]); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept a block the current balances cover: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept a block the current balances cover.", success, testID)

			bad := mineOn(t, chain[1], completedTx(t, "A", "B", 1, false))
			err := st.ValidateBlock(bad, chain[1])

			var ce *state.ChainInconsistencyError
			if !errors.As(err, &ce) || ce.Index != 2 || !errors.Is(err, accounts.ErrInsufficientBalance) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse a block the current balances don't cover: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse a block the current balances don't cover.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the parent is not part of the chain.", testID)
		{
			parent := chain[1]
			parent.Index = 7

			if err := st.ValidateBlock(mineOn(t, parent, completedTx(t, "B", "A", 1, false)), parent); !errors.Is(err, state.ErrChainInconsistency) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse an unknown parent: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse an unknown parent.", success, testID)
		}
	}
}

func TestNotInitialized(t *testing.T) {
	st, err := state.New(state.Config{Store: storage.NewMemory(), Genesis: testGenesis()})
	if err != nil {
		t.Fatalf("Should be able to construct the ledger: %v", err)
	}

	checks := map[string]error{}
	_, checks["AddWallet"] = st.AddWallet(state.NewWallet{Address: "A"})
	_, checks["GetWallet"] = st.GetWallet("A")
	_, checks["CreateTransaction"] = st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: 1})
	_, checks["MineBlock"] = st.MineBlock(context.Background())
	_, checks["LatestBlock"] = st.LatestBlock()
	checks["ValidateChain"] = st.ValidateChain()
	checks["RemoveWallet"] = st.RemoveWallet(context.Background(), "A")

	for name, err := range checks {
		if !errors.Is(err, state.ErrNotInitialized) {
			t.Errorf("%s\t%s should fail with NotInitialized: %v", failed, name, err)
			continue
		}
		t.Logf("%s\t%s should fail with NotInitialized.", success, name)
	}
}

func TestSaveFailure(t *testing.T) {
	t.Log("Given the need to surface storage failures.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the store refuses to save.", testID)
		{
			store := storage.NewMemory()
			st := newLedger(t, store)

			store.FailSaves(errors.New("disk full"))

			balance := 10.0
			_, err := st.AddWallet(state.NewWallet{Address: "A", Balance: &balance})
			if !errors.Is(err, state.ErrStorage) || !errors.Is(err, storage.ErrStorage) {
				t.Fatalf("\t%s\tTest %d:\tShould get a storage error: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get a storage error.", success, testID)

			if _, err := st.GetWallet("A"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould keep the change in memory: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the change in memory.", success, testID)

			store.FailSaves(nil)
			addWallet(t, st, "B", 10)

			restarted := newLedger(t, store)
			if _, err := restarted.GetWallet("A"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould persist the change with the next save: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould persist the change with the next save.", success, testID)
		}
	}
}

func TestMineCancel(t *testing.T) {
	st := newLedger(t, storage.NewMemory())
	addWallet(t, st, "A", 10)
	addWallet(t, st, "B", 10)
	st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := st.MineBlock(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("%s\tShould get a cancellation error: %v", failed, err)
	}
	t.Logf("%s\tShould get a cancellation error.", success)

	if n := pendingCount(t, st); n != 1 {
		t.Fatalf("%s\tShould keep the pool: %d", failed, n)
	}
	if b := balanceOf(t, st, "A"); b != 10 {
		t.Fatalf("%s\tShould keep the balances: %v", failed, b)
	}
	t.Logf("%s\tShould leave the ledger unchanged.", success)
}

func TestQueries(t *testing.T) {
	st := newLedger(t, storage.NewMemory())
	addWallet(t, st, "A", 1000)
	addWallet(t, st, "B", 1000)

	var txs []database.Tx
	for _, amount := range []float64{1, 2, 3} {
		tx, err := st.CreateTransaction(state.NewTx{From: "A", To: "B", Amount: amount})
		if err != nil {
			t.Fatalf("%s\tShould accept the transfer: %v", failed, err)
		}
		txs = append(txs, tx)
	}

	block, err := st.MineBlock(context.Background())
	if err != nil {
		t.Fatalf("%s\tShould be able to mine: %v", failed, err)
	}

	for _, tx := range txs {
		proof, err := st.MerkleProof(tx.Hash)
		if err != nil {
			t.Fatalf("%s\tShould build a proof for %s: %v", failed, tx.Hash, err)
		}
		if err := proof.Verify(); err != nil || proof.MerkleRoot != block.MerkleRoot {
			t.Fatalf("%s\tShould verify the proof for %s: %v", failed, tx.Hash, err)
		}

		found, err := st.TransactionByHash(tx.Hash)
		if err != nil || found.Status != database.TxCompleted {
			t.Fatalf("%s\tShould find the mined transaction %s: %v", failed, tx.Hash, err)
		}
	}
	t.Logf("%s\tShould prove and find every mined transaction.", success)

	byHash, err := st.BlockByHash(block.Hash)
	if err != nil || byHash.Index != block.Index {
		t.Fatalf("%s\tShould find the block by hash: %v", failed, err)
	}
	byIndex, err := st.BlockByIndex(1)
	if err != nil || byIndex.Hash != block.Hash {
		t.Fatalf("%s\tShould find the block by index: %v", failed, err)
	}
	if _, err := st.BlockByIndex(9); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("%s\tShould report a missing block: %v", failed, err)
	}
	t.Logf("%s\tShould find blocks by hash and index.", success)

	byIndex.Transactions[0].Amount = 999
	again, _ := st.BlockByIndex(1)
	if again.Transactions[0].Amount == 999 {
		t.Fatalf("%s\tShould return copies of the chain.", failed)
	}
	t.Logf("%s\tShould return copies of the chain.", success)

	status, err := st.Status()
	if err != nil || status.Height != 1 || status.LatestHash != block.Hash || status.WalletCount != 3 {
		t.Fatalf("%s\tShould summarize the ledger: %+v %v", failed, status, err)
	}
	t.Logf("%s\tShould summarize the ledger.", success)
}

func TestBalancesNeverNegative(t *testing.T) {
	st := newLedger(t, storage.NewMemory())

	addresses := []string{"A", "B", "C", "D"}
	for _, addr := range addresses {
		addWallet(t, st, addr, 100)
	}

	rnd := rand.New(rand.NewSource(1))
	for round := 0; round < 20; round++ {
		for i := 0; i < 5; i++ {
			from := addresses[rnd.Intn(len(addresses))]
			to := addresses[rnd.Intn(len(addresses))]
			st.CreateTransaction(state.NewTx{From: from, To: to, Amount: float64(rnd.Intn(120))})
		}

		st.MineBlock(context.Background())

		wallets, _ := st.Wallets()
		for _, w := range wallets {
			if w.Balance < 0 {
				t.Fatalf("%s\tShould never have a negative balance: round %d: %s %v", failed, round, w.Address, w.Balance)
			}
		}
	}
	t.Logf("%s\tShould never have a negative balance.", success)

	if err := st.ValidateChain(); err != nil {
		t.Fatalf("%s\tShould validate the chain: %v", failed, err)
	}
	t.Logf("%s\tShould validate the chain.", success)
}
