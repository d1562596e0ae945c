package keychain

import (
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// SignCompact signs the passed digest with the keypair's private key and
// returns a 65-byte compact signature in the recoverable format produced by
// ecdsa.SignCompact: a single header byte encoding the recovery ID followed
// by the 64-byte r||s pair. Signing is deterministic (RFC6979), so repeated
// calls over the same digest produce byte-identical signatures.
func (k *Keypair) SignCompact(digest []byte) ([]byte, error) {
	return ecdsa.SignCompact(k.privKey, digest, true), nil
}
