// Package checklink implements the wallet layer on top of the ledger
// client: a long-term account derived from root entropy, transfers and
// withdrawals, claiming of raw on-chain deposits, and the issue/redeem
// protocol for bearer checks shared as magic links.
package checklink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bitcoindance/stablewallet/keychain"
	"github.com/bitcoindance/stablewallet/staddr"
	"github.com/bitcoindance/stablewallet/stclient"
	"github.com/bitcoindance/stablewallet/stwire"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLinkBase is the origin used for rendered share links when
	// the wallet is not configured with one.
	DefaultLinkBase = "https://bitcoin.dance"

	// claimConcurrency caps how many claim submissions run in parallel.
	claimConcurrency = 4
)

// ErrCheckEmpty is returned when sweeping a link whose derived account
// holds no balance, either because it was never funded or because it was
// already swept.
var ErrCheckEmpty = errors.New("check balance is empty")

// Config packages the dependencies of a Wallet.
type Config struct {
	// Entropy is the root secret, 16 or 32 bytes.
	Entropy []byte

	// Client talks to the ledger network.
	Client *stclient.Client

	// LinkBase is the origin rendered into share links. Empty selects
	// DefaultLinkBase.
	LinkBase string
}

// Wallet is a single account on the ledger: the keypair derived from one
// root entropy plus the operations that spend from it. It is safe for
// concurrent use.
type Wallet struct {
	key        *keychain.Keypair
	commitment staddr.Commitment
	client     *stclient.Client
	linkBase   string
	nonces     *nonceSource
}

// NewWallet derives the wallet's keypair from the configured entropy.
func NewWallet(cfg *Config) (*Wallet, error) {
	key, err := keychain.Derive(cfg.Entropy)
	if err != nil {
		return nil, err
	}

	linkBase := cfg.LinkBase
	if linkBase == "" {
		linkBase = DefaultLinkBase
	}

	return &Wallet{
		key:        key,
		commitment: staddr.NewCommitment(key.PubKey()),
		client:     cfg.Client,
		linkBase:   linkBase,
		nonces:     newNonceSource(),
	}, nil
}

// Commitment returns the wallet's 17-byte key commitment.
func (w *Wallet) Commitment() staddr.Commitment {
	return w.commitment
}

// Address returns the wallet's shareable ledger address.
func (w *Wallet) Address() (string, error) {
	return staddr.Encode(w.key.PubKey())
}

// LinkBase returns the origin used for rendered share links.
func (w *Wallet) LinkBase() string {
	return w.linkBase
}

// Balance fetches the wallet's current balance in minor units.
func (w *Wallet) Balance(ctx context.Context) (int64, error) {
	return w.client.GetBalance(ctx, w.commitment, stwire.CurrencyUsd)
}

// Utxos fetches the claimable on-chain deposits visible to the wallet.
func (w *Wallet) Utxos(ctx context.Context) ([]stwire.Utxo, error) {
	return w.client.GetUtxos(ctx, w.commitment)
}

// Send moves value from the wallet to the passed payment target, which may
// be a native ledger address or an ordinary on-chain Bitcoin address. The
// two are distinguished by the codec, not the caller.
func (w *Wallet) Send(ctx context.Context, addr string,
	value int64) (stwire.TxID, error) {

	recipient, err := staddr.Decode(addr)
	if err != nil {
		return stwire.TxID{}, err
	}

	tx := &stwire.Transfer{
		Currency: stwire.CurrencyUsd,
		To:       recipient,
		Value:    value,
	}

	return w.submit(ctx, tx, w.key)
}

// Withdraw moves value out of the ledger to an on-chain Bitcoin address.
func (w *Wallet) Withdraw(ctx context.Context, bitcoinAddr string,
	value int64) (stwire.TxID, error) {

	tx := &stwire.Withdraw{
		ToBitcoinAddress: bitcoinAddr,
		Value:            value,
	}

	return w.submit(ctx, tx, w.key)
}

// IssueSweepLink funds a fresh ephemeral account with value and returns the
// link that is the sole capability over those funds. The ephemeral entropy
// exists nowhere else; losing the link loses the money.
func (w *Wallet) IssueSweepLink(ctx context.Context,
	value int64) (*Link, error) {

	entropy, ephemeral, err := w.newEphemeralKey()
	if err != nil {
		return nil, err
	}

	tx := &stwire.Transfer{
		Currency: stwire.CurrencyUsd,
		To: &staddr.Recipient{
			Kind:       staddr.RecipientLedger,
			Commitment: staddr.NewCommitment(ephemeral.PubKey()),
		},
		Value: value,
	}

	if _, err := w.submit(ctx, tx, w.key); err != nil {
		return nil, err
	}

	log.Infof("Issued sweep link for %s",
		stwire.CurrencyUsd.FormatValue(value))

	return &Link{Entropy: entropy}, nil
}

// IssueCheck funds a check redeemable by the ephemeral key and returns the
// link carrying both the entropy and the funding transaction id. The id
// lets either party look the check up; only the entropy can spend it.
func (w *Wallet) IssueCheck(ctx context.Context,
	value int64) (*Link, error) {

	entropy, ephemeral, err := w.newEphemeralKey()
	if err != nil {
		return nil, err
	}

	tx := &stwire.CreateCheck{
		Signer:   staddr.NewCommitment(ephemeral.PubKey()),
		Currency: stwire.CurrencyUsd,
		Value:    value,
	}

	txid, err := w.submit(ctx, tx, w.key)
	if err != nil {
		return nil, err
	}

	log.Infof("Issued check %v for %s", txid,
		stwire.CurrencyUsd.FormatValue(value))

	return &Link{Entropy: entropy, TxID: &txid}, nil
}

// SweepLink redeems a link by draining the ephemeral account into the
// wallet. The full observed balance moves in one transfer signed by the
// ephemeral key; afterwards the link is worthless. Sweeping an unfunded or
// already-swept link returns ErrCheckEmpty without submitting anything.
func (w *Wallet) SweepLink(ctx context.Context,
	link *Link) (stwire.TxID, int64, error) {

	ephemeral, err := keychain.Derive(link.Entropy)
	if err != nil {
		return stwire.TxID{}, 0, err
	}
	source := staddr.NewCommitment(ephemeral.PubKey())

	balance, err := w.client.GetBalance(ctx, source, stwire.CurrencyUsd)
	if err != nil {
		return stwire.TxID{}, 0, err
	}
	if balance == 0 {
		return stwire.TxID{}, 0, ErrCheckEmpty
	}

	tx := &stwire.Transfer{
		Currency: stwire.CurrencyUsd,
		To: &staddr.Recipient{
			Kind:       staddr.RecipientLedger,
			Commitment: w.commitment,
		},
		Value: balance,
	}

	txid, err := w.submit(ctx, tx, ephemeral)
	if err != nil {
		return stwire.TxID{}, 0, err
	}

	log.Infof("Swept %s from check account %v",
		stwire.CurrencyUsd.FormatValue(balance), source)

	return txid, balance, nil
}

// ClaimUtxos claims every on-chain deposit currently visible to the
// wallet, submitting claims concurrently. The first failure cancels the
// remaining submissions and is returned; a deposit already claimed
// elsewhere surfaces as stclient.ErrAlreadyClaimed rather than success.
func (w *Wallet) ClaimUtxos(ctx context.Context) ([]stwire.TxID, error) {
	utxos, err := w.client.GetUtxos(ctx, w.commitment)
	if err != nil {
		return nil, err
	}
	if len(utxos) == 0 {
		return nil, nil
	}

	var (
		mtx   sync.Mutex
		txids = make([]stwire.TxID, 0, len(utxos))
	)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(claimConcurrency)

	for _, utxo := range utxos {
		utxo := utxo

		group.Go(func() error {
			tx := &stwire.ClaimUtxo{
				Currency:      stwire.CurrencyUsd,
				TransactionID: utxo.TransactionID,
				Vout:          utxo.Vout,
			}

			txid, err := w.submit(ctx, tx, w.key)
			if err != nil {
				return fmt.Errorf("claiming %v:%d: %w",
					utxo.TransactionID, utxo.Vout, err)
			}

			mtx.Lock()
			txids = append(txids, txid)
			mtx.Unlock()

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	log.Infof("Claimed %d deposits for %v", len(txids), w.commitment)

	return txids, nil
}

// submit signs tx under the next nonce of the passed key and posts it.
func (w *Wallet) submit(ctx context.Context, tx stwire.Transaction,
	key *keychain.Keypair) (stwire.TxID, error) {

	signer := staddr.NewCommitment(key.PubKey())

	return w.client.PostTransaction(ctx, tx, w.nonces.Next(signer), key)
}

// newEphemeralKey mints fresh entropy and its derived keypair.
func (w *Wallet) newEphemeralKey() ([]byte, *keychain.Keypair, error) {
	entropy, err := keychain.NewEntropy()
	if err != nil {
		return nil, nil, err
	}

	key, err := keychain.Derive(entropy)
	if err != nil {
		return nil, nil, err
	}

	return entropy, key, nil
}
