package stwire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bitcoindance/stablewallet/staddr"
)

// TxVariant is the discriminant of the transaction tagged union.
type TxVariant uint8

const (
	// VariantTransfer moves value between ledger accounts, or out to an
	// opaque on-chain address.
	VariantTransfer TxVariant = 0

	// VariantClaimUtxo credits a raw on-chain deposit to the signer's
	// account and consumes the deposit record.
	VariantClaimUtxo TxVariant = 1

	// VariantCreateCheck funds a bearer check redeemable by the holder of
	// the named ephemeral signer commitment.
	VariantCreateCheck TxVariant = 2

	// VariantWithdraw burns ledger value and pays out the equivalent on
	// the Bitcoin chain.
	VariantWithdraw TxVariant = 3
)

// Transaction is a single variant of the ledger operation union. Encode and
// Decode handle only the variant's payload; the discriminant byte is owned
// by the union-level helpers below.
type Transaction interface {
	// Variant returns the union discriminant of this transaction.
	Variant() TxVariant

	// Encode serializes the variant payload into the passed buffer.
	Encode(w *bytes.Buffer) error

	// Decode deserializes the variant payload from the passed reader.
	Decode(r io.Reader) error
}

// Transfer moves value from the signing account to a recipient, which is
// either a native ledger account or a pass-through on-chain address.
type Transfer struct {
	// Currency is the currency the value is denominated in.
	Currency Currency

	// To is the payment target.
	To *staddr.Recipient

	// Value is the amount in minor units.
	Value int64
}

// A compile time check to ensure Transfer implements the Transaction
// interface.
var _ Transaction = (*Transfer)(nil)

// Variant returns the union discriminant of this transaction.
func (t *Transfer) Variant() TxVariant {
	return VariantTransfer
}

// Encode serializes the variant payload into the passed buffer.
func (t *Transfer) Encode(w *bytes.Buffer) error {
	return writeElements(w, t.Currency, t.To, t.Value)
}

// Decode deserializes the variant payload from the passed reader.
func (t *Transfer) Decode(r io.Reader) error {
	return readElements(r, &t.Currency, &t.To, &t.Value)
}

// ClaimUtxo consumes a raw on-chain deposit record visible to the signing
// account, crediting its value. The node rejects a claim whose deposit was
// already consumed, which keeps resubmission from double-crediting.
type ClaimUtxo struct {
	// Currency is the currency to credit.
	Currency Currency

	// TransactionID is the on-chain transaction the deposit arrived in.
	TransactionID TxID

	// Vout is the output index of the deposit within that transaction.
	Vout int32
}

// A compile time check to ensure ClaimUtxo implements the Transaction
// interface.
var _ Transaction = (*ClaimUtxo)(nil)

// Variant returns the union discriminant of this transaction.
func (c *ClaimUtxo) Variant() TxVariant {
	return VariantClaimUtxo
}

// Encode serializes the variant payload into the passed buffer.
func (c *ClaimUtxo) Encode(w *bytes.Buffer) error {
	return writeElements(w, c.Currency, c.TransactionID, c.Vout)
}

// Decode deserializes the variant payload from the passed reader.
func (c *ClaimUtxo) Decode(r io.Reader) error {
	return readElements(r, &c.Currency, &c.TransactionID, &c.Vout)
}

// CreateCheck funds a bearer check: value moves from the signing account
// into a balance spendable only by the ephemeral key committed to by
// Signer. The node allows exactly one redemption per check.
type CreateCheck struct {
	// Signer is the commitment of the ephemeral key entitled to redeem
	// the check.
	Signer staddr.Commitment

	// Currency is the currency the check is denominated in.
	Currency Currency

	// Value is the amount in minor units.
	Value int64
}

// A compile time check to ensure CreateCheck implements the Transaction
// interface.
var _ Transaction = (*CreateCheck)(nil)

// Variant returns the union discriminant of this transaction.
func (c *CreateCheck) Variant() TxVariant {
	return VariantCreateCheck
}

// Encode serializes the variant payload into the passed buffer.
func (c *CreateCheck) Encode(w *bytes.Buffer) error {
	return writeElements(w, c.Signer, c.Currency, c.Value)
}

// Decode deserializes the variant payload from the passed reader.
func (c *CreateCheck) Decode(r io.Reader) error {
	return readElements(r, &c.Signer, &c.Currency, &c.Value)
}

// Withdraw burns ledger value and requests an equivalent on-chain payout to
// the named Bitcoin address.
type Withdraw struct {
	// ToBitcoinAddress is the on-chain destination, passed through to the
	// node as an opaque string.
	ToBitcoinAddress string

	// Value is the amount in minor units.
	Value int64
}

// A compile time check to ensure Withdraw implements the Transaction
// interface.
var _ Transaction = (*Withdraw)(nil)

// Variant returns the union discriminant of this transaction.
func (wd *Withdraw) Variant() TxVariant {
	return VariantWithdraw
}

// Encode serializes the variant payload into the passed buffer.
func (wd *Withdraw) Encode(w *bytes.Buffer) error {
	return writeElements(w, wd.ToBitcoinAddress, wd.Value)
}

// Decode deserializes the variant payload from the passed reader.
func (wd *Withdraw) Decode(r io.Reader) error {
	return readElements(r, &wd.ToBitcoinAddress, &wd.Value)
}

// makeEmptyTransaction returns the zero value of the variant named by the
// passed discriminant.
func makeEmptyTransaction(variant TxVariant) (Transaction, error) {
	switch variant {
	case VariantTransfer:
		return &Transfer{}, nil
	case VariantClaimUtxo:
		return &ClaimUtxo{}, nil
	case VariantCreateCheck:
		return &CreateCheck{}, nil
	case VariantWithdraw:
		return &Withdraw{}, nil
	default:
		return nil, ErrUnknownVariant
	}
}

// WriteTransaction serializes the discriminant byte and payload of a
// transaction into the passed buffer.
func WriteTransaction(w *bytes.Buffer, tx Transaction) error {
	if err := writeElement(w, uint8(tx.Variant())); err != nil {
		return err
	}

	return tx.Encode(w)
}

// ReadTransaction deserializes the next transaction union from the passed
// reader.
func ReadTransaction(r io.Reader) (Transaction, error) {
	var variant uint8
	if err := readElement(r, &variant); err != nil {
		return nil, err
	}

	tx, err := makeEmptyTransaction(TxVariant(variant))
	if err != nil {
		return nil, err
	}
	if err := tx.Decode(r); err != nil {
		return nil, err
	}

	return tx, nil
}

// SerializeSigningDoc returns the canonical byte string the envelope
// signature commits to: the nonce followed by the transaction union. The
// node recovers the signer's key over exactly these bytes, so any deviation
// here breaks signature verification.
func SerializeSigningDoc(nonce int64, tx Transaction) ([]byte, error) {
	var w bytes.Buffer
	if err := writeElement(&w, nonce); err != nil {
		return nil, err
	}
	if err := WriteTransaction(&w, tx); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// DeserializeSigningDoc parses a canonical signing document, rejecting
// truncated or overlong buffers.
func DeserializeSigningDoc(b []byte) (int64, Transaction, error) {
	r := bytes.NewReader(b)

	var nonce int64
	if err := readElement(r, &nonce); err != nil {
		return 0, nil, mapDecodeErr(err)
	}

	tx, err := ReadTransaction(r)
	if err != nil {
		return 0, nil, mapDecodeErr(err)
	}
	if r.Len() != 0 {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedEncoding, r.Len())
	}

	return nonce, tx, nil
}

// mapDecodeErr folds io-level read failures into ErrMalformedEncoding while
// passing the codec's own sentinel errors through unchanged.
func mapDecodeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnknownVariant):
		return err
	case errors.Is(err, ErrMalformedEncoding):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrMalformedEncoding, err)
	}
}
