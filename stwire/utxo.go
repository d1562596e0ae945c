package stwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Utxo is a claimable raw on-chain deposit visible to an account. The
// record is consumed once a ClaimUtxo transaction referencing it is
// accepted.
type Utxo struct {
	// TransactionID is the on-chain transaction the deposit arrived in.
	TransactionID TxID

	// Vout is the output index of the deposit within that transaction.
	Vout int32

	// Value is the deposit amount in minor units.
	Value int64
}

// Encode serializes the deposit record into the passed buffer.
func (u *Utxo) Encode(w *bytes.Buffer) error {
	return writeElements(w, u.TransactionID, u.Vout, u.Value)
}

// Decode deserializes the deposit record from the passed reader.
func (u *Utxo) Decode(r io.Reader) error {
	return readElements(r, &u.TransactionID, &u.Vout, &u.Value)
}

// SerializeUtxos encodes a length-prefixed deposit list, the body shape of
// the node's UTXO response.
func SerializeUtxos(utxos []Utxo) ([]byte, error) {
	var w bytes.Buffer

	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(utxos)))
	if _, err := w.Write(b[:]); err != nil {
		return nil, err
	}

	for i := range utxos {
		if err := utxos[i].Encode(&w); err != nil {
			return nil, err
		}
	}

	return w.Bytes(), nil
}

// DeserializeUtxos parses a length-prefixed deposit list, rejecting
// truncated or overlong buffers.
func DeserializeUtxos(b []byte) ([]Utxo, error) {
	r := bytes.NewReader(b)

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, mapDecodeErr(err)
	}
	count := binary.LittleEndian.Uint32(lenBuf[:])
	if count > MaxStringLength {
		return nil, fmt.Errorf("%w: utxo count %d exceeds limit",
			ErrMalformedEncoding, count)
	}

	utxos := make([]Utxo, count)
	for i := range utxos {
		if err := utxos[i].Decode(r); err != nil {
			return nil, mapDecodeErr(err)
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedEncoding, r.Len())
	}

	return utxos, nil
}

// SerializeBalance encodes a balance the way the node's balance endpoint
// does: a bare little-endian signed 64-bit integer.
func SerializeBalance(balance int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(balance))

	return b[:]
}

// DeserializeBalance parses a balance response body, requiring exactly
// eight bytes.
func DeserializeBalance(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: balance body of %d bytes",
			ErrMalformedEncoding, len(b))
	}

	return int64(binary.LittleEndian.Uint64(b)), nil
}

// SerializeTxID encodes a transaction-id response body: the raw 32 bytes.
func SerializeTxID(txid TxID) []byte {
	b := make([]byte, TxIDSize)
	copy(b, txid[:])

	return b
}

// DeserializeTxID parses a transaction-id response body, requiring exactly
// 32 bytes.
func DeserializeTxID(b []byte) (TxID, error) {
	var txid TxID
	if len(b) != TxIDSize {
		return txid, fmt.Errorf("%w: txid body of %d bytes",
			ErrMalformedEncoding, len(b))
	}
	copy(txid[:], b)

	return txid, nil
}
