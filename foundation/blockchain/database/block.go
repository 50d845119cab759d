package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/walletchain/foundation/blockchain/digest"
	"github.com/ardanlabs/walletchain/foundation/blockchain/merkle"
)

// GenesisPreviousHash is the previous hash recorded in the genesis block.
const GenesisPreviousHash = "0"

// =============================================================================

// Block represents a group of transactions batched together.
type Block struct {
	Index        uint64 `json:"index"`        // Bitcoin: Height of the block in the chain, genesis is 0.
	Timestamp    int64  `json:"timestamp"`    // Bitcoin: Time the block was mined in epoch milliseconds.
	PreviousHash string `json:"previousHash"` // Bitcoin: Hash of the previous block in the chain.
	Transactions []Tx   `json:"transactions"` // Bitcoin: Transactions mined into this block.
	MerkleRoot   string `json:"merkleRoot"`   // Bitcoin: Merkle tree root hash for the transactions.
	Nonce        uint64 `json:"nonce"`        // Bitcoin: Value identified to solve the hash solution.
	Hash         string `json:"hash"`         // Hash of the fields above, must satisfy the difficulty.
}

// blockHeader is the fixed order set of fields that are hashed to produce
// the block hash. The block's own hash and transactions are excluded, the
// transactions are represented by the merkle root.
type blockHeader struct {
	Index        uint64 `json:"index"`
	PreviousHash string `json:"previousHash"`
	Timestamp    int64  `json:"timestamp"`
	MerkleRoot   string `json:"merkleRoot"`
	Nonce        uint64 `json:"nonce"`
}

// ComputeHash returns the hash of the block from its current field values.
//
// CORE NOTE: Hashing the header and not the whole block means the chain can
// be cryptographically checked by only looking at headers. The transactions
// are still protected through the merkle root.
func (b Block) ComputeHash() (string, error) {
	return digest.Hash(blockHeader{
		Index:        b.Index,
		PreviousHash: b.PreviousHash,
		Timestamp:    b.Timestamp,
		MerkleRoot:   b.MerkleRoot,
		Nonce:        b.Nonce,
	})
}

// MerkleTree constructs the merkle tree for the block's transactions.
func (b Block) MerkleTree() (*merkle.Tree[Tx], error) {
	return merkle.NewTree(b.Transactions)
}

// Validate takes a block and validates it to be the next block after the
// specified previous block. Balance checks are not performed here since they
// require the account information held by the ledger.
func (b Block) Validate(previousBlock Block, difficulty uint, evHandler func(v string, args ...any)) error {
	evHandler("database: Validate: blk[%d]: check: required fields are present", b.Index)

	if b.Hash == "" || b.PreviousHash == "" || b.MerkleRoot == "" {
		return errors.New("block is missing required fields")
	}

	if len(b.Transactions) == 0 {
		return errors.New("block has no transactions")
	}

	evHandler("database: Validate: blk[%d]: check: block number is the next number", b.Index)

	nextIndex := previousBlock.Index + 1
	if b.Index != nextIndex {
		return fmt.Errorf("this block is not the next number, got %d, exp %d", b.Index, nextIndex)
	}

	evHandler("database: Validate: blk[%d]: check: parent hash does match parent block", b.Index)

	if b.PreviousHash != previousBlock.Hash {
		return fmt.Errorf("parent block hash doesn't match our known parent, got %s, exp %s", b.PreviousHash, previousBlock.Hash)
	}

	evHandler("database: Validate: blk[%d]: check: block's timestamp is greater than parent block's timestamp", b.Index)

	if b.Timestamp <= previousBlock.Timestamp {
		return fmt.Errorf("block timestamp is not after parent block, parent %d, block %d", previousBlock.Timestamp, b.Timestamp)
	}

	if err := b.validateSeal(difficulty, evHandler); err != nil {
		return err
	}

	evHandler("database: Validate: blk[%d]: check: transactions are well formed", b.Index)

	for i, tx := range b.Transactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
		if tx.Status != TxCompleted {
			return fmt.Errorf("transaction %d: status %q, exp %q", i, tx.Status, TxCompleted)
		}
	}

	return nil
}

// ValidateGenesis checks the block is a well formed genesis block for the
// specified timestamp and difficulty.
func (b Block) ValidateGenesis(timestamp int64, difficulty uint) error {
	if b.Index != 0 {
		return fmt.Errorf("genesis block has index %d", b.Index)
	}

	if b.PreviousHash != GenesisPreviousHash {
		return fmt.Errorf("genesis block has previous hash %s", b.PreviousHash)
	}

	if b.Timestamp != timestamp {
		return fmt.Errorf("genesis block has timestamp %d, exp %d", b.Timestamp, timestamp)
	}

	if len(b.Transactions) != 0 {
		return errors.New("genesis block has transactions")
	}

	return b.validateSeal(difficulty, func(string, ...any) {})
}

// validateSeal recomputes the merkle root and hash and checks the hash
// solves the difficulty. A stored hash is never trusted.
func (b Block) validateSeal(difficulty uint, evHandler func(v string, args ...any)) error {
	evHandler("database: Validate: blk[%d]: check: merkle root does match transactions", b.Index)

	tree, err := b.MerkleTree()
	if err != nil {
		return err
	}

	if b.MerkleRoot != tree.RootHex() {
		return fmt.Errorf("merkle root does not match transactions, got %s, exp %s", b.MerkleRoot, tree.RootHex())
	}

	evHandler("database: Validate: blk[%d]: check: block hash has been solved", b.Index)

	hash, err := b.ComputeHash()
	if err != nil {
		return err
	}

	if hash != b.Hash {
		return fmt.Errorf("block hash doesn't match its content, got %s, exp %s", b.Hash, hash)
	}

	if !digest.MeetsDifficulty(hash, difficulty) {
		return fmt.Errorf("%s invalid block hash for difficulty %d", hash, difficulty)
	}

	return nil
}

// =============================================================================

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	PrevBlock  Block
	Trans      []Tx
	Difficulty uint
	Now        time.Time
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle. The context can be used to cancel
// the search.
func POW(ctx context.Context, args POWArgs, evHandler func(v string, args ...any)) (Block, error) {

	// The timestamp must move forward from the parent even when the clock
	// hasn't, so fall back to one millisecond after the parent.
	timestamp := args.Now.UnixMilli()
	if timestamp <= args.PrevBlock.Timestamp {
		timestamp = args.PrevBlock.Timestamp + 1
	}

	trans := make([]Tx, len(args.Trans))
	copy(trans, args.Trans)

	// Construct a merkle tree from the transactions for this block. The root
	// of this tree will be part of the block to be mined.
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	nb := Block{
		Index:        args.PrevBlock.Index + 1,
		Timestamp:    timestamp,
		PreviousHash: args.PrevBlock.Hash,
		Transactions: trans,
		MerkleRoot:   tree.RootHex(),
	}

	if err := nb.performPOW(ctx, args.Difficulty, evHandler); err != nil {
		return Block{}, err
	}

	return nb, nil
}

// NewGenesisBlock constructs the genesis block. The timestamp is fixed and
// the nonce search always starts at 0, so the genesis hash is reproducible
// for a given difficulty.
func NewGenesisBlock(ctx context.Context, timestamp int64, difficulty uint, evHandler func(v string, args ...any)) (Block, error) {
	tree, err := merkle.NewTree[Tx](nil)
	if err != nil {
		return Block{}, err
	}

	genesis := Block{
		Index:        0,
		Timestamp:    timestamp,
		PreviousHash: GenesisPreviousHash,
		Transactions: []Tx{},
		MerkleRoot:   tree.RootHex(),
	}

	if err := genesis.performPOW(ctx, difficulty, evHandler); err != nil {
		return Block{}, err
	}

	return genesis, nil
}

// performPOW does the work of mining to find a valid hash for a specified
// block. Pointer semantics are being used since a nonce is being discovered.
func (b *Block) performPOW(ctx context.Context, difficulty uint, ev func(v string, args ...any)) error {
	ev("database: PerformPOW: MINING: started: blk[%d]", b.Index)
	defer ev("database: PerformPOW: MINING: completed: blk[%d]", b.Index)

	// Log the transactions that are a part of this potential block.
	for _, tx := range b.Transactions {
		ev("database: PerformPOW: MINING: tx[%s]", tx)
	}

	// Start at zero and increment by 1 until a solution is found.
	b.Nonce = 0

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			ev("database: PerformPOW: MINING: attempts[%d]", attempts)
		}

		// Did we timeout trying to solve the problem.
		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		// Hash the block and check if we have solved the puzzle.
		hash, err := b.ComputeHash()
		if err != nil {
			return err
		}

		if !digest.MeetsDifficulty(hash, difficulty) {
			b.Nonce++
			continue
		}

		// Did we get cancelled while solving the problem.
		if ctx.Err() != nil {
			ev("database: PerformPOW: MINING: CANCELLED")
			return ctx.Err()
		}

		b.Hash = hash

		ev("database: PerformPOW: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.PreviousHash, hash)
		ev("database: PerformPOW: MINING: attempts[%d]", attempts)

		return nil
	}
}
