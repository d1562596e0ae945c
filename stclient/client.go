// Package stclient implements the HTTP client contract of a Stable Network
// ledger node: balance and UTXO reads, signed transaction submission, a
// server-push snapshot stream, and a tick-driven poller.
package stclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	prand "math/rand"
	"net/http"
	"strings"

	"github.com/bitcoindance/stablewallet/keychain"
	"github.com/bitcoindance/stablewallet/staddr"
	"github.com/bitcoindance/stablewallet/stwire"
)

const (
	// DefaultProductionPeer is the peer used when no peer list is
	// configured outside of development.
	DefaultProductionPeer = "mainnet.bitcoin.dance"

	// DefaultDevelopmentPeer is the peer used when no peer list is
	// configured in development.
	DefaultDevelopmentPeer = "127.0.0.1"

	// maxResponseSize bounds how much of a response body we are willing
	// to read.
	maxResponseSize = 1 << 20
)

var (
	// ErrNetwork is returned when the transport to the selected peer
	// fails. The client makes a single attempt per call; retry policy
	// belongs to the caller.
	ErrNetwork = errors.New("network error")

	// ErrDecode is returned when a response body doesn't match the
	// expected schema. The partial response is discarded, never
	// surfaced.
	ErrDecode = errors.New("unable to decode response")

	// ErrAlreadyClaimed is returned when the node rejects a claim or
	// check redemption whose target was already consumed.
	ErrAlreadyClaimed = errors.New("already claimed")

	// ErrInsufficientBalance is returned when the node rejects a
	// transaction for lack of funds. Balances are never computed
	// locally.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Config is the immutable configuration of a Client.
type Config struct {
	// Peers is the set of ledger nodes to talk to. Each call selects one
	// peer uniformly at random, with no affinity and no failover: a
	// failed peer fails the call.
	Peers []string

	// Development selects plain HTTP instead of HTTPS and the local
	// default peer.
	Development bool
}

// Client is a Stable Network ledger node client. It is safe for concurrent
// use; all state is immutable after construction.
type Client struct {
	cfg  Config
	http *http.Client
}

// New returns a Client for the passed configuration. The peer list is
// copied; later mutation of the caller's slice has no effect.
func New(cfg *Config) *Client {
	peers := make([]string, len(cfg.Peers))
	copy(peers, cfg.Peers)

	if len(peers) == 0 {
		if cfg.Development {
			peers = []string{DefaultDevelopmentPeer}
		} else {
			peers = []string{DefaultProductionPeer}
		}
	}

	return &Client{
		cfg: Config{
			Peers:       peers,
			Development: cfg.Development,
		},
		http: &http.Client{},
	}
}

// scheme returns the URL scheme implied by the development flag.
func (c *Client) scheme() string {
	if c.cfg.Development {
		return "http"
	}

	return "https"
}

// pickPeer selects a peer uniformly at random for a single call.
func (c *Client) pickPeer() string {
	return c.cfg.Peers[prand.Intn(len(c.cfg.Peers))]
}

// endpoint renders the full URL of a node path on a freshly chosen peer.
func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s://%s%s", c.scheme(), c.pickPeer(), path)
}

// GetBalance fetches the balance of an account in minor units.
func (c *Client) GetBalance(ctx context.Context,
	commitment staddr.Commitment,
	currency stwire.Currency) (int64, error) {

	body, err := c.get(ctx, fmt.Sprintf(
		"/balances/%s/%s", currency, commitment,
	))
	if err != nil {
		return 0, err
	}

	balance, err := stwire.DeserializeBalance(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return balance, nil
}

// GetUtxos fetches the claimable deposits visible to an account. The order
// of the returned sequence is node-defined and not guaranteed stable.
func (c *Client) GetUtxos(ctx context.Context,
	commitment staddr.Commitment) ([]stwire.Utxo, error) {

	body, err := c.get(ctx, fmt.Sprintf("/utxos/%s", commitment))
	if err != nil {
		return nil, err
	}

	utxos, err := stwire.DeserializeUtxos(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return utxos, nil
}

// PostRawTransaction submits a serialized signed envelope to the ledger.
// This is the sole mutation entrypoint. Submission is a single attempt and
// must not be blindly retried: deduplication depends on the node enforcing
// nonce semantics.
func (c *Client) PostRawTransaction(ctx context.Context,
	envelope []byte) (stwire.TxID, error) {

	var txid stwire.TxID

	body, err := c.post(ctx, "/transactions", envelope)
	if err != nil {
		return txid, err
	}

	txid, err = stwire.DeserializeTxID(body)
	if err != nil {
		return txid, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return txid, nil
}

// PostTransaction signs the passed transaction under the passed nonce and
// key, then submits the envelope.
func (c *Client) PostTransaction(ctx context.Context, tx stwire.Transaction,
	nonce int64, key *keychain.Keypair) (stwire.TxID, error) {

	var txid stwire.TxID

	envelope, err := stwire.Sign(tx, nonce, key)
	if err != nil {
		return txid, err
	}

	raw, err := envelope.Serialize()
	if err != nil {
		return txid, err
	}

	log.Debugf("Submitting %T (nonce=%d, %d bytes)", tx, nonce, len(raw))

	return c.PostRawTransaction(ctx, raw)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, c.endpoint(path), nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string,
	body []byte) ([]byte, error) {

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.endpoint(path),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapNodeError(resp.StatusCode, body)
	}

	return body, nil
}

// mapNodeError translates a node failure response into the client's error
// taxonomy.
func mapNodeError(status int, body []byte) error {
	message := strings.ToLower(string(body))

	switch {
	case strings.Contains(message, "already been redeemed"),
		strings.Contains(message, "already claimed"):

		return ErrAlreadyClaimed

	case strings.Contains(message, "insufficient"):
		return ErrInsufficientBalance

	default:
		return fmt.Errorf("node error (status %d): %s", status,
			strings.TrimSpace(string(body)))
	}
}
