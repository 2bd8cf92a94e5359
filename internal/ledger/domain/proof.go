// Package domain defines leaves and inclusion proofs of the Merkle ledger.
package domain

import (
	"fmt"
)

// Side tells which side of the running hash a proof sibling sits on.
type Side int

// Proof sides.
const (
	SideLeft Side = iota + 1
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	switch s {
	case SideLeft, SideRight:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, int(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left":
		*s = SideLeft
	case "right":
		*s = SideRight
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSide, string(text))
	}
	return nil
}

// ProofStep is one sibling on the path from a leaf to the root.
type ProofStep struct {
	Sibling string `json:"sibling"`
	Side    Side   `json:"side"`
}

// Proof is an inclusion proof ordered from the leaf level upwards.
type Proof []ProofStep

// Clone returns a copy safe to hand to callers.
func (p Proof) Clone() Proof {
	if p == nil {
		return Proof{}
	}
	out := make(Proof, len(p))
	copy(out, p)
	return out
}
