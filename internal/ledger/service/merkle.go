// Package service implements the Merkle tree arithmetic behind the ledger.
//
// Parents are H(left || right) over the raw digest bytes. A node without a right
// sibling is paired with itself, at every level, both when building and when verifying.
package service

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/allisson/provenance/internal/canonical"
	ledgerDomain "github.com/allisson/provenance/internal/ledger/domain"
)

// EmptyRoot is the root of a tree without leaves: the digest of the empty byte string.
func EmptyRoot(alg canonical.Algorithm) (string, error) {
	return canonical.Hash(nil, alg)
}

func hashPair(alg canonical.Algorithm, left, right []byte) ([]byte, error) {
	return canonical.Sum(alg, left, right)
}

// DecodeLeaf validates a hex leaf hash against the algorithm width and returns its bytes.
func DecodeLeaf(alg canonical.Algorithm, leafHash string) ([]byte, error) {
	if !canonical.IsHexDigest(leafHash, alg) {
		return nil, fmt.Errorf("%w: %q is not a %s digest", ledgerDomain.ErrInvalidLeafHash, leafHash, alg)
	}
	return hex.DecodeString(leafHash)
}

// Tree is an append-only Merkle tree kept as levels, leaves first.
// It is not safe for concurrent use; the ledger guards it.
type Tree struct {
	algorithm canonical.Algorithm
	levels    [][][]byte
}

// NewTree creates an empty tree.
func NewTree(alg canonical.Algorithm) (*Tree, error) {
	if _, err := alg.New(); err != nil {
		return nil, err
	}
	return &Tree{algorithm: alg}, nil
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	if len(t.levels) == 0 {
		return 0
	}
	return len(t.levels[0])
}

// Append adds a leaf and recomputes only the path from it to the root.
func (t *Tree) Append(leaf []byte) error {
	if len(t.levels) == 0 {
		t.levels = [][][]byte{{leaf}}
		return nil
	}

	t.levels[0] = append(t.levels[0], leaf)
	idx := len(t.levels[0]) - 1
	for lvl := 0; len(t.levels[lvl]) > 1; lvl++ {
		level := t.levels[lvl]
		p := idx / 2
		left := level[2*p]
		right := left
		if 2*p+1 < len(level) {
			right = level[2*p+1]
		}
		parent, err := hashPair(t.algorithm, left, right)
		if err != nil {
			return err
		}

		if lvl+1 == len(t.levels) {
			t.levels = append(t.levels, nil)
		}
		if p < len(t.levels[lvl+1]) {
			t.levels[lvl+1][p] = parent
		} else {
			t.levels[lvl+1] = append(t.levels[lvl+1], parent)
		}
		idx = p
	}
	return nil
}

// Root returns the hex root, or the empty-tree sentinel.
func (t *Tree) Root() (string, error) {
	if len(t.levels) == 0 {
		return EmptyRoot(t.algorithm)
	}
	return hex.EncodeToString(t.levels[len(t.levels)-1][0]), nil
}

// Proof returns the sibling path for the leaf at index.
func (t *Tree) Proof(index int) (ledgerDomain.Proof, error) {
	if index < 0 || index >= t.Len() {
		return nil, fmt.Errorf("%w: index %d", ledgerDomain.ErrLeafNotFound, index)
	}

	proof := make(ledgerDomain.Proof, 0, len(t.levels)-1)
	idx := index
	for lvl := 0; lvl < len(t.levels)-1; lvl++ {
		level := t.levels[lvl]
		var step ledgerDomain.ProofStep
		if idx%2 == 0 {
			sibling := idx + 1
			if sibling >= len(level) {
				sibling = idx
			}
			step = ledgerDomain.ProofStep{Sibling: hex.EncodeToString(level[sibling]), Side: ledgerDomain.SideRight}
		} else {
			step = ledgerDomain.ProofStep{Sibling: hex.EncodeToString(level[idx-1]), Side: ledgerDomain.SideLeft}
		}
		proof = append(proof, step)
		idx /= 2
	}
	return proof, nil
}

// ComputeRoot derives the root of an ordered leaf sequence from scratch.
func ComputeRoot(alg canonical.Algorithm, leaves []string) (string, error) {
	if len(leaves) == 0 {
		return EmptyRoot(alg)
	}

	level := make([][]byte, 0, len(leaves))
	for _, l := range leaves {
		b, err := DecodeLeaf(alg, l)
		if err != nil {
			return "", err
		}
		level = append(level, b)
	}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}
			parent, err := hashPair(alg, level[i], right)
			if err != nil {
				return "", err
			}
			next = append(next, parent)
		}
		level = next
	}
	return hex.EncodeToString(level[0]), nil
}

// Verify replays proof from leafHash and reports whether it reaches root. It needs no
// ledger state. Malformed input of any kind yields false.
func Verify(alg canonical.Algorithm, leafHash string, proof ledgerDomain.Proof, root string) bool {
	running, err := DecodeLeaf(alg, leafHash)
	if err != nil {
		return false
	}
	expected, err := DecodeLeaf(alg, root)
	if err != nil {
		return false
	}

	for _, step := range proof {
		sibling, err := DecodeLeaf(alg, step.Sibling)
		if err != nil {
			return false
		}
		switch step.Side {
		case ledgerDomain.SideLeft:
			running, err = hashPair(alg, sibling, running)
		case ledgerDomain.SideRight:
			running, err = hashPair(alg, running, sibling)
		default:
			return false
		}
		if err != nil {
			return false
		}
	}
	return bytes.Equal(running, expected)
}
