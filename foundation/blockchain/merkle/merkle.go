// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides an implementation of a merkle tree for validation
// support for the blockchain. Hashes are carried as hex strings and every
// parent is the digest of its children's hex strings concatenated.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	MerkleHash() (string, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint.
type Tree[T Hashable[T]] struct {
	Root         *Node[T]
	Leafs        []*Node[T]
	MerkleRoot   string
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	var defaultHashStrategy = sha256.New

	t := Tree[T]{
		hashStrategy: defaultHashStrategy,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the leafs and nodes of the tree from the specified
// data. If the tree has been generated previously, the tree is re-generated
// from scratch. An empty set of values produces a tree with no root node
// whose merkle root is the hash of the empty string.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		h, err := t.sum("")
		if err != nil {
			return err
		}

		t.Root = nil
		t.Leafs = nil
		t.MerkleRoot = h
		return nil
	}

	leafs := make([]*Node[T], 0, len(values))
	for _, value := range values {
		hash, err := value.MerkleHash()
		if err != nil {
			return err
		}

		leafs = append(leafs, &Node[T]{
			Hash:  hash,
			Value: value,
			leaf:  true,
			Tree:  t,
		})
	}

	root, err := buildIntermediate(leafs, t)
	if err != nil {
		return err
	}

	t.Root = root
	t.Leafs = leafs
	t.MerkleRoot = root.Hash

	return nil
}

// Rebuild is a helper function that will rebuild the tree reusing only the
// data that it currently holds in the leaves.
func (t *Tree[T]) Rebuild() error {
	return t.Generate(t.Values())
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving a value is in the tree.
//
// Given this proof and proof order for the value in question.
// proof = ["23d2...cd23", "df25...3120"]
// proof_order = [0, 1]
//
// Process the value hash against the proof like this.
// sha1 = sha256(proof[0] + valueHash)   -- Order 0 says proof comes first.
// root = sha256(sha1 + proof[1])        -- Order 1 says proof comes second.
//
// The calculated root should match the merkle root. A tree with a single
// leaf returns an empty proof since the leaf hash is the root.
func (t *Tree[T]) Proof(data T) ([]string, []int64, error) {
	for _, node := range t.Leafs {
		if !node.Value.Equals(data) {
			continue
		}

		var merkleProof []string
		var order []int64
		nodeParent := node.Parent

		for nodeParent != nil {
			if nodeParent.Left == node {
				merkleProof = append(merkleProof, nodeParent.Right.Hash)
				order = append(order, 1) // right leaf, concat second.
			} else {
				merkleProof = append(merkleProof, nodeParent.Left.Hash)
				order = append(order, 0) // left leaf, concat first.
			}
			node = nodeParent
			nodeParent = nodeParent.Parent
		}

		return merkleProof, order, nil
	}

	return nil, nil, errors.New("unable to find data in tree")
}

// VerifyProof recalculates the root from a value hash and the proof returned
// by Proof using sha256 and compares it to the expected root.
func VerifyProof(valueHash string, proof []string, order []int64, root string) error {
	if len(proof) != len(order) {
		return errors.New("proof and order lengths differ")
	}

	current := valueHash
	for i := range proof {
		var data string
		switch order[i] {
		case 0:
			data = proof[i] + current
		default:
			data = current + proof[i]
		}

		sum := sha256.Sum256([]byte(data))
		current = hex.EncodeToString(sum[:])
	}

	if current != root {
		return fmt.Errorf("calculated root %s does not match %s", current, root)
	}

	return nil
}

// Verify validates the hashes at each level of the tree and returns an error
// if the resulting hash at the root of the tree doesn't match the root hash.
func (t *Tree[T]) Verify() error {
	if t.Root == nil {
		h, err := t.sum("")
		if err != nil {
			return err
		}
		if h != t.MerkleRoot {
			return errors.New("root hash invalid")
		}
		return nil
	}

	calculatedMerkleRoot, err := t.Root.verify()
	if err != nil {
		return err
	}

	if t.MerkleRoot != calculatedMerkleRoot {
		return errors.New("root hash invalid")
	}

	return nil
}

// VerifyData indicates whether a given piece of data is in the tree and if the
// hashes are valid for that data.
func (t *Tree[T]) VerifyData(data T) error {
	for _, node := range t.Leafs {
		if !node.Value.Equals(data) {
			continue
		}

		currentParent := node.Parent
		for currentParent != nil {
			rightHash, err := currentParent.Right.CalculateHash()
			if err != nil {
				return err
			}

			leftHash, err := currentParent.Left.CalculateHash()
			if err != nil {
				return err
			}

			h, err := t.sum(leftHash + rightHash)
			if err != nil {
				return err
			}

			if h != currentParent.Hash {
				return errors.New("merkle root is not equivalent to the merkle root calculated on the critical path")
			}

			currentParent = currentParent.Parent
		}

		return nil
	}

	return errors.New("unable to find data in tree")
}

// Values returns a slice of the values stored in the tree.
func (t *Tree[T]) Values() []T {
	values := make([]T, 0, len(t.Leafs))
	for _, leaf := range t.Leafs {
		values = append(values, leaf.Value)
	}

	return values
}

// RootHex returns the merkle root hash.
func (t *Tree[T]) RootHex() string {
	return t.MerkleRoot
}

// sum hashes the string with the configured strategy.
func (t *Tree[T]) sum(s string) (string, error) {
	h := t.hashStrategy()
	if _, err := h.Write([]byte(s)); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// =============================================================================

// Node represents a node, root, or leaf in the tree. It stores pointers to its
// immediate relationships, a hash, the data if it is a leaf, and other metadata.
type Node[T Hashable[T]] struct {
	Tree   *Tree[T]
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	Hash   string
	Value  T
	leaf   bool
	dup    bool
}

// verify walks down the tree until hitting a leaf, calculating the hash at
// each level and returning the resulting hash of the node.
func (n *Node[T]) verify() (string, error) {
	if n.leaf {
		return n.Value.MerkleHash()
	}

	rightHash, err := n.Right.verify()
	if err != nil {
		return "", err
	}

	leftHash, err := n.Left.verify()
	if err != nil {
		return "", err
	}

	return n.Tree.sum(leftHash + rightHash)
}

// CalculateHash is a helper function that calculates the hash of the node.
func (n *Node[T]) CalculateHash() (string, error) {
	if n.leaf {
		return n.Value.MerkleHash()
	}

	return n.Tree.sum(n.Left.Hash + n.Right.Hash)
}

// String returns a string representation of the node.
func (n *Node[T]) String() string {
	return fmt.Sprintf("%t %t %v %v", n.leaf, n.dup, n.Hash, n.Value)
}

// =============================================================================

// buildIntermediate is a helper function that for a given list of nodes,
// constructs the intermediate and root levels of the tree. A lone node at
// the end of a level is paired with itself. Returns the resulting root node
// of the tree.
func buildIntermediate[T Hashable[T]](nl []*Node[T], t *Tree[T]) (*Node[T], error) {
	if len(nl) == 1 {
		return nl[0], nil
	}

	nodes := make([]*Node[T], 0, (len(nl)+1)/2)

	for i := 0; i < len(nl); i += 2 {
		left, right := i, i+1
		dup := false
		if i+1 == len(nl) {
			right = i
			dup = true
		}

		h, err := t.sum(nl[left].Hash + nl[right].Hash)
		if err != nil {
			return nil, err
		}

		n := Node[T]{
			Left:  nl[left],
			Right: nl[right],
			Hash:  h,
			Tree:  t,
			dup:   dup,
		}

		nodes = append(nodes, &n)
		nl[left].Parent = &n
		nl[right].Parent = &n
	}

	return buildIntermediate(nodes, t)
}
