package stwire

import (
	"bytes"
	"fmt"

	"github.com/bitcoindance/stablewallet/keychain"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// SignatureSize is the wire length of an envelope signature: a
	// 64-byte compact r||s pair followed by a one-byte recovery ID.
	SignatureSize = 65

	// compactSigMagicOffset is the base value of the header byte in the
	// recoverable signature format produced by ecdsa.SignCompact.
	compactSigMagicOffset = 27

	// compactSigCompPubKey marks a header byte as committing to a
	// compressed public key.
	compactSigCompPubKey = 4
)

// SignedEnvelope is a transaction bound to its replay-protection nonce and
// a recoverable signature over the canonical signing document. The node
// recovers the signer's public key from the signature, so the envelope
// carries no explicit "from" field.
type SignedEnvelope struct {
	// Transaction is the operation being authorized.
	Transaction Transaction

	// Nonce is the per-signing-key replay counter the signature commits
	// to.
	Nonce int64

	// Signature is the 64-byte compact signature followed by its
	// one-byte recovery ID.
	Signature [SignatureSize]byte
}

// Sign builds a signed envelope for the passed transaction and nonce. The
// digest is the SHA-256 of the canonical signing document, and the
// signature is deterministic: retrying with identical inputs yields a
// byte-identical envelope, making resubmission idempotent at the transport
// layer.
func Sign(tx Transaction, nonce int64,
	key *keychain.Keypair) (*SignedEnvelope, error) {

	doc, err := SerializeSigningDoc(nonce, tx)
	if err != nil {
		return nil, fmt.Errorf("unable to serialize transaction: %w",
			err)
	}

	compactSig, err := key.SignCompact(chainhash.HashB(doc))
	if err != nil {
		return nil, fmt.Errorf("unable to sign transaction: %w", err)
	}

	// SignCompact places the recovery information in a leading header
	// byte; the wire format wants the raw recovery ID trailing the r||s
	// pair instead.
	recoveryID := compactSig[0] - compactSigMagicOffset -
		compactSigCompPubKey

	envelope := &SignedEnvelope{
		Transaction: tx,
		Nonce:       nonce,
	}
	copy(envelope.Signature[:SignatureSize-1], compactSig[1:])
	envelope.Signature[SignatureSize-1] = recoveryID

	return envelope, nil
}

// SignerPubKey recovers the public key that produced the envelope's
// signature. The node performs the same recovery to attribute the
// transaction; this client-side version backs tests and pre-submission
// sanity checks.
func (s *SignedEnvelope) SignerPubKey() (*btcec.PublicKey, error) {
	doc, err := SerializeSigningDoc(s.Nonce, s.Transaction)
	if err != nil {
		return nil, fmt.Errorf("unable to serialize transaction: %w",
			err)
	}

	compactSig := make([]byte, SignatureSize)
	compactSig[0] = s.Signature[SignatureSize-1] +
		compactSigMagicOffset + compactSigCompPubKey
	copy(compactSig[1:], s.Signature[:SignatureSize-1])

	pubKey, _, err := ecdsa.RecoverCompact(
		compactSig, chainhash.HashB(doc),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to recover signer: %w", err)
	}

	return pubKey, nil
}

// Serialize returns the envelope's wire encoding: the transaction union,
// then the nonce, then the signature.
func (s *SignedEnvelope) Serialize() ([]byte, error) {
	var w bytes.Buffer
	if err := WriteTransaction(&w, s.Transaction); err != nil {
		return nil, err
	}
	if err := writeElements(&w, s.Nonce, s.Signature); err != nil {
		return nil, err
	}

	return w.Bytes(), nil
}

// DeserializeSignedEnvelope parses an envelope from its wire encoding,
// rejecting truncated or overlong buffers.
func DeserializeSignedEnvelope(b []byte) (*SignedEnvelope, error) {
	r := bytes.NewReader(b)

	tx, err := ReadTransaction(r)
	if err != nil {
		return nil, mapDecodeErr(err)
	}

	envelope := &SignedEnvelope{Transaction: tx}
	err = readElements(r, &envelope.Nonce, &envelope.Signature)
	if err != nil {
		return nil, mapDecodeErr(err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes",
			ErrMalformedEncoding, r.Len())
	}

	return envelope, nil
}
