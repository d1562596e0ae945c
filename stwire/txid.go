package stwire

import (
	"encoding/hex"
	"fmt"
)

// TxIDSize is the byte length of a ledger transaction identifier.
const TxIDSize = 32

// TxID identifies an accepted ledger transaction. It is also the identifier
// a check link carries in its path so the node can pin redemption to a
// single funding transaction.
type TxID [TxIDSize]byte

// String returns the hex encoding of the identifier.
func (t TxID) String() string {
	return hex.EncodeToString(t[:])
}

// NewTxIDFromString parses a 64-character hex string into a TxID.
func NewTxIDFromString(s string) (TxID, error) {
	var txid TxID
	if len(s) != TxIDSize*2 {
		return txid, fmt.Errorf("invalid txid length %d", len(s))
	}

	decoded, err := hex.DecodeString(s)
	if err != nil {
		return txid, fmt.Errorf("invalid txid: %w", err)
	}
	copy(txid[:], decoded)

	return txid, nil
}
