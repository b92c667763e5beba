package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(tx_signature|event_index)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(txSignature string, eventIndex int) string {
	data := fmt.Sprintf("%s|%d", txSignature, eventIndex)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
