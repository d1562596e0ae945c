package keychain

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

const (
	// EntropyShortSize is the byte length of the compact root secret
	// handed out in share links. It maps to a 128-bit master seed.
	EntropyShortSize = 16

	// EntropyLongSize is the byte length of the extended root secret. It
	// maps to a 256-bit master seed.
	EntropyLongSize = 32

	// BIP0084Purpose is the "purpose" value of the single derivation path
	// used for every key in the system. All parties deriving from the
	// same entropy walk m/84'/0'/0 and therefore converge on the same
	// keypair and ledger address.
	BIP0084Purpose = 84

	// CoinTypeBitcoin is the coin type of the derivation path.
	CoinTypeBitcoin = 0

	// AccountIndex is the final, non-hardened step of the derivation
	// path.
	AccountIndex = 0
)

// ErrInvalidEntropyLength is returned when the root secret presented for
// derivation isn't exactly 16 or 32 bytes.
var ErrInvalidEntropyLength = errors.New("entropy must be 16 or 32 bytes")

// Keypair is the signing key material derived from a root secret. The
// derivation is deterministic: the same entropy always yields the same
// Keypair, so a recipient holding only the entropy of a share link can
// reconstruct the exact key that controls its funds.
type Keypair struct {
	privKey *btcec.PrivateKey
	pubKey  *btcec.PublicKey
}

// Derive maps 16 or 32 bytes of entropy to the system's one fixed keypair
// for that secret. The entropy is used directly as a BIP32 master seed, then
// the child at m/84'/0'/0 is derived: two hardened steps, one normal. Any
// other entropy length fails with ErrInvalidEntropyLength.
func Derive(entropy []byte) (*Keypair, error) {
	if len(entropy) != EntropyShortSize &&
		len(entropy) != EntropyLongSize {

		return nil, ErrInvalidEntropyLength
	}

	master, err := hdkeychain.NewMaster(entropy, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("unable to derive master key: %w", err)
	}

	purpose, err := master.Derive(
		hdkeychain.HardenedKeyStart + BIP0084Purpose,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to derive purpose: %w", err)
	}

	coinType, err := purpose.Derive(
		hdkeychain.HardenedKeyStart + CoinTypeBitcoin,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to derive coin type: %w", err)
	}

	account, err := coinType.Derive(AccountIndex)
	if err != nil {
		return nil, fmt.Errorf("unable to derive account: %w", err)
	}

	privKey, err := account.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("unable to extract private key: %w",
			err)
	}

	return &Keypair{
		privKey: privKey,
		pubKey:  privKey.PubKey(),
	}, nil
}

// NewEntropy returns a fresh 16-byte root secret suitable for funding an
// ephemeral check key. This is the only place randomness enters the key
// hierarchy; derivation itself is pure.
func NewEntropy() ([]byte, error) {
	entropy := make([]byte, EntropyShortSize)
	if _, err := rand.Read(entropy); err != nil {
		return nil, fmt.Errorf("unable to generate entropy: %w", err)
	}

	return entropy, nil
}

// PubKey returns the derived public key.
func (k *Keypair) PubKey() *btcec.PublicKey {
	return k.pubKey
}

// PrivKey returns the derived private key. The key is read-only after
// derivation and safe for concurrent signing calls.
func (k *Keypair) PrivKey() *btcec.PrivateKey {
	return k.privKey
}
