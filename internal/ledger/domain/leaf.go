package domain

import (
	"encoding/json"

	"github.com/allisson/provenance/internal/canonical"
)

// Leaf is a hashed unit of evidence and the metadata it was derived from.
type Leaf struct {
	Hash     string          `json:"leaf_hash"`
	Metadata json.RawMessage `json:"metadata"`
	Index    int             `json:"index"`
}

// LeafPayload is the data of a "leaf" WORM record.
type LeafPayload struct {
	LedgerID  string              `json:"ledger_id"`
	LeafHash  string              `json:"leaf_hash"`
	Algorithm canonical.Algorithm `json:"algorithm"`
	Metadata  json.RawMessage     `json:"metadata"`
}

// LeafRecordPrefix returns the id prefix shared by every leaf record of a ledger.
func LeafRecordPrefix(ledgerID string) string {
	return "leaf:" + ledgerID + ":"
}

// LeafRecordID returns the WORM record id of a leaf.
func LeafRecordID(ledgerID, leafHash string) string {
	return LeafRecordPrefix(ledgerID) + leafHash
}
