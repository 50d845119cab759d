package state

import (
	"fmt"

	"github.com/ardanlabs/walletchain/foundation/blockchain/accounts"
	"github.com/ardanlabs/walletchain/foundation/blockchain/database"
)

// ValidateChain checks the whole chain is internally consistent. The genesis
// block is checked against the genesis settings and every following block
// against its parent, with its transactions replayed strictly against the
// balances every wallet was registered with. The replayed balances must end
// up equal to the current balances. The first failure is returned as a
// ChainInconsistencyError carrying the block index.
func (s *State) ValidateChain() error {
	if err := s.requireReady(); err != nil {
		return err
	}

	s.rw.RLock()
	chain := append([]database.Block(nil), s.chain...)
	current := s.accounts.Copy()
	s.rw.RUnlock()

	s.evHandler("state: ValidateChain: started: blocks[%d]", len(chain))
	defer s.evHandler("state: ValidateChain: completed")

	if len(chain) == 0 {
		return newError(KindNotInitialized, "chain is empty")
	}

	if err := chain[0].ValidateGenesis(s.genesis.Timestamp, s.genesis.Difficulty); err != nil {
		return &ChainInconsistencyError{Index: 0, Err: err}
	}

	replay := accounts.New(current)
	replay.Reset()

	for i := 1; i < len(chain); i++ {
		if err := s.validateBlock(chain[i], chain[i-1], replay); err != nil {
			return &ChainInconsistencyError{Index: uint64(i), Err: err}
		}
	}

	head := uint64(len(chain) - 1)
	for addr, w := range replay.Copy() {
		if exp := current[addr].Balance; w.Balance != exp {
			return &ChainInconsistencyError{
				Index: head,
				Err:   fmt.Errorf("wallet %s balance %v does not match replayed balance %v", addr, exp, w.Balance),
			}
		}
	}

	return nil
}

// ValidateBlock checks the block can follow the previous block and that its
// transactions apply cleanly to the balances as they stood once the previous
// block was committed. When the previous block is the head those are the
// current balances. When it is deeper in the chain the balances are rebuilt
// by replaying the chain up to and including it.
func (s *State) ValidateBlock(block database.Block, previousBlock database.Block) error {
	if err := s.requireReady(); err != nil {
		return err
	}

	s.rw.RLock()
	chain := append([]database.Block(nil), s.chain...)
	scratch := s.accounts.Clone()
	s.rw.RUnlock()

	idx := previousBlock.Index
	if idx >= uint64(len(chain)) || chain[idx].Hash != previousBlock.Hash {
		return &ChainInconsistencyError{
			Index: block.Index,
			Err:   fmt.Errorf("previous block %d is not part of the chain", idx),
		}
	}

	if idx < uint64(len(chain)-1) {
		scratch.Reset()
		for i := uint64(1); i <= idx; i++ {
			if err := s.validateBlock(chain[i], chain[i-1], scratch); err != nil {
				return &ChainInconsistencyError{Index: i, Err: err}
			}
		}
	}

	if err := s.validateBlock(block, previousBlock, scratch); err != nil {
		return &ChainInconsistencyError{Index: block.Index, Err: err}
	}

	return nil
}

// validateBlock performs the structural checks and then applies every
// transaction to the balances. Unlike mining, a transaction that doesn't
// apply fails the block.
func (s *State) validateBlock(block database.Block, previousBlock database.Block, balances *accounts.Accounts) error {
	if err := block.Validate(previousBlock, s.genesis.Difficulty, s.evHandler); err != nil {
		return err
	}

	s.evHandler("state: ValidateBlock: blk[%d]: check: transactions replay against balances", block.Index)

	for _, tx := range block.Transactions {
		if tx.From == database.MainWalletAddress && !tx.IsSystemTransaction {
			return fmt.Errorf("transaction %s: debits the main wallet without being a system transaction", tx.Hash)
		}

		if err := balances.ApplyTransaction(tx); err != nil {
			return fmt.Errorf("transaction %s: %w", tx.Hash, err)
		}
	}

	return nil
}
