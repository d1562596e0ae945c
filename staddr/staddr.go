// Package staddr implements the text encoding of Stable Network ledger
// addresses. A ledger address is a bech32 string carrying a witness version
// of 0 and a 20-byte program: a fixed 3-byte magic constant followed by a
// 17-byte commitment to the owner's public key. The magic constant makes
// every ledger address start with "bc1qfast", which is how the codec (and a
// human) tells a ledger address apart from an ordinary on-chain address in
// the same alphabet.
package staddr

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/bech32"
)

const (
	// Hrp is the human-readable prefix of a ledger address.
	Hrp = "bc"

	// WitnessVersion is the only witness version a ledger address may
	// carry.
	WitnessVersion = 0

	// CommitmentSize is the byte length of the public key commitment: the
	// low-order 17 bytes of sha256(pubkey).
	CommitmentSize = 17

	// ledgerPrefix is the text prefix shared by all ledger addresses. It
	// falls out of encoding the magic constant under witness version 0.
	ledgerPrefix = "bc1qfast"
)

// magicPrefix namespaces ledger address programs away from ordinary
// on-chain witness programs of the same length.
var magicPrefix = [3]byte{0x4f, 0x60, 0xba}

// ErrInvalidAddress is returned when a string claims to be a ledger address
// but fails checksum, witness version, or program validation.
var ErrInvalidAddress = errors.New("invalid ledger address")

// Commitment is the ledger's internal account identifier: the truncated
// public key hash committed to by an address, independent of its text
// encoding.
type Commitment [CommitmentSize]byte

// NewCommitment computes the commitment for a public key: the low-order 17
// bytes of the SHA-256 hash of its compressed serialization.
func NewCommitment(pub *btcec.PublicKey) Commitment {
	var c Commitment
	hash := sha256.Sum256(pub.SerializeCompressed())
	copy(c[:], hash[len(hash)-CommitmentSize:])

	return c
}

// String returns the hex encoding of the commitment, which is the form the
// ledger node expects in request paths.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// RecipientKind classifies a decoded payment target.
type RecipientKind uint8

const (
	// RecipientLedger is a native ledger address; funds move inside the
	// ledger.
	RecipientLedger RecipientKind = iota

	// RecipientRawChain is an opaque on-chain Bitcoin address passed
	// through to the node untouched.
	RecipientRawChain
)

// Recipient is the result of decoding a payment target string. Exactly one
// of Commitment or RawAddress is meaningful, selected by Kind.
type Recipient struct {
	// Kind reports which namespace the input string belongs to.
	Kind RecipientKind

	// Commitment is the decoded account identifier for a ledger
	// recipient.
	Commitment Commitment

	// RawAddress is the untouched input string for an on-chain
	// recipient.
	RawAddress string
}

// Encode returns the ledger address for a public key.
func Encode(pub *btcec.PublicKey) (string, error) {
	return EncodeCommitment(NewCommitment(pub))
}

// EncodeCommitment returns the ledger address committing to the passed
// account identifier.
func EncodeCommitment(c Commitment) (string, error) {
	program := make([]byte, 0, len(magicPrefix)+CommitmentSize)
	program = append(program, magicPrefix[:]...)
	program = append(program, c[:]...)

	words, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("unable to convert program: %w", err)
	}

	addr, err := bech32.Encode(
		Hrp, append([]byte{WitnessVersion}, words...),
	)
	if err != nil {
		return "", fmt.Errorf("unable to encode address: %w", err)
	}

	return addr, nil
}

// Decode classifies a payment target string. Strings carrying the ledger
// prefix must decode to a well-formed ledger address or the call fails with
// ErrInvalidAddress; everything else is handed back as an opaque on-chain
// address. The codec never confuses the two namespaces: only programs
// beginning with the magic constant classify as ledger addresses.
func Decode(addr string) (*Recipient, error) {
	if !strings.HasPrefix(strings.ToLower(addr), ledgerPrefix) {
		return &Recipient{
			Kind:       RecipientRawChain,
			RawAddress: addr,
		}, nil
	}

	hrp, words, err := bech32.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if hrp != Hrp {
		return nil, fmt.Errorf("%w: unexpected prefix %q",
			ErrInvalidAddress, hrp)
	}
	if len(words) == 0 || words[0] != WitnessVersion {
		return nil, fmt.Errorf("%w: unsupported witness version",
			ErrInvalidAddress)
	}

	program, err := bech32.ConvertBits(words[1:], 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(program) != len(magicPrefix)+CommitmentSize {
		return nil, fmt.Errorf("%w: bad program length %d",
			ErrInvalidAddress, len(program))
	}

	// The text prefix can only arise from the magic constant, but check
	// the decoded bytes anyway since the last prefix character shares
	// bits with the payload.
	for i, b := range magicPrefix {
		if program[i] != b {
			return &Recipient{
				Kind:       RecipientRawChain,
				RawAddress: addr,
			}, nil
		}
	}

	var c Commitment
	copy(c[:], program[len(magicPrefix):])

	return &Recipient{
		Kind:       RecipientLedger,
		Commitment: c,
	}, nil
}
