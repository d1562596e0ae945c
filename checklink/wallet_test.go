package checklink

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bitcoindance/stablewallet/staddr"
	"github.com/bitcoindance/stablewallet/stclient"
	"github.com/bitcoindance/stablewallet/stwire"
	"github.com/stretchr/testify/require"
)

// fakeNode is an in-memory ledger node speaking the client's HTTP
// contract: balance and UTXO reads plus envelope submission with signature
// recovery, nonce replay rejection, and single-redemption claims.
type fakeNode struct {
	t *testing.T

	mtx      sync.Mutex
	balances map[staddr.Commitment]int64
	utxos    map[staddr.Commitment][]stwire.Utxo
	nonces   map[staddr.Commitment][]int64
	claimed  map[string]bool
	lastTxID byte
}

func newFakeNode(t *testing.T) *fakeNode {
	return &fakeNode{
		t:        t,
		balances: make(map[staddr.Commitment]int64),
		utxos:    make(map[staddr.Commitment][]stwire.Utxo),
		nonces:   make(map[staddr.Commitment][]int64),
		claimed:  make(map[string]bool),
	}
}

func (n *fakeNode) fund(c staddr.Commitment, value int64) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	n.balances[c] += value
}

func (n *fakeNode) addUtxo(c staddr.Commitment, utxo stwire.Utxo) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	n.utxos[c] = append(n.utxos[c], utxo)
}

func (n *fakeNode) markClaimed(txid stwire.TxID, vout int32) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	n.claimed[fmt.Sprintf("%v:%d", txid, vout)] = true
}

func (n *fakeNode) signerNonces(c staddr.Commitment) []int64 {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	return append([]int64(nil), n.nonces[c]...)
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	switch {
	case strings.HasPrefix(r.URL.Path, "/balances/usd/"):
		commitment := n.pathCommitment(
			w, strings.TrimPrefix(r.URL.Path, "/balances/usd/"),
		)
		_, _ = w.Write(stwire.SerializeBalance(
			n.balances[commitment],
		))

	case strings.HasPrefix(r.URL.Path, "/utxos/"):
		commitment := n.pathCommitment(
			w, strings.TrimPrefix(r.URL.Path, "/utxos/"),
		)
		body, err := stwire.SerializeUtxos(n.utxos[commitment])
		require.NoError(n.t, err)
		_, _ = w.Write(body)

	case r.URL.Path == "/transactions":
		n.handleSubmit(w, r)

	default:
		http.NotFound(w, r)
	}
}

func (n *fakeNode) pathCommitment(w http.ResponseWriter,
	segment string) staddr.Commitment {

	raw, err := hex.DecodeString(segment)
	require.NoError(n.t, err)
	require.Len(n.t, raw, staddr.CommitmentSize)

	var commitment staddr.Commitment
	copy(commitment[:], raw)

	return commitment
}

func (n *fakeNode) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	require.NoError(n.t, err)

	envelope, err := stwire.DeserializeSignedEnvelope(body)
	require.NoError(n.t, err)

	pub, err := envelope.SignerPubKey()
	require.NoError(n.t, err)
	signer := staddr.NewCommitment(pub)

	for _, used := range n.nonces[signer] {
		if used == envelope.Nonce {
			n.reject(w, "nonce already used")
			return
		}
	}

	switch tx := envelope.Transaction.(type) {
	case *stwire.Transfer:
		if n.balances[signer] < tx.Value {
			n.reject(w, "insufficient balance")
			return
		}
		n.balances[signer] -= tx.Value
		if tx.To.Kind == staddr.RecipientLedger {
			n.balances[tx.To.Commitment] += tx.Value
		}

	case *stwire.CreateCheck:
		if n.balances[signer] < tx.Value {
			n.reject(w, "insufficient balance")
			return
		}
		n.balances[signer] -= tx.Value
		n.balances[tx.Signer] += tx.Value

	case *stwire.ClaimUtxo:
		key := fmt.Sprintf("%v:%d", tx.TransactionID, tx.Vout)
		if n.claimed[key] {
			n.reject(w, "utxo doesn't exist for this address "+
				"or has already been redeemed")
			return
		}
		n.claimed[key] = true

		kept := n.utxos[signer][:0]
		for _, utxo := range n.utxos[signer] {
			match := utxo.TransactionID == tx.TransactionID &&
				utxo.Vout == tx.Vout
			if match {
				n.balances[signer] += utxo.Value
				continue
			}
			kept = append(kept, utxo)
		}
		n.utxos[signer] = kept

	case *stwire.Withdraw:
		if n.balances[signer] < tx.Value {
			n.reject(w, "insufficient balance")
			return
		}
		n.balances[signer] -= tx.Value

	default:
		n.reject(w, "unknown transaction")
		return
	}

	n.nonces[signer] = append(n.nonces[signer], envelope.Nonce)

	n.lastTxID++
	txid := stwire.TxID{0: n.lastTxID}
	_, _ = w.Write(stwire.SerializeTxID(txid))
}

func (n *fakeNode) reject(w http.ResponseWriter, message string) {
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(message))
}

// newTestWallet builds a wallet against the fake node, funded with the
// passed balance.
func newTestWallet(t *testing.T, node *fakeNode, entropyByte byte,
	balance int64) *Wallet {

	t.Helper()

	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	client := stclient.New(&stclient.Config{
		Peers:       []string{strings.TrimPrefix(server.URL, "http://")},
		Development: true,
	})

	wallet, err := NewWallet(&Config{
		Entropy: bytes.Repeat([]byte{entropyByte}, 16),
		Client:  client,
	})
	require.NoError(t, err)

	if balance > 0 {
		node.fund(wallet.Commitment(), balance)
	}

	return wallet
}

// TestSendBetweenWallets asserts a ledger-to-ledger transfer debits the
// sender and credits the recipient's decoded address.
func TestSendBetweenWallets(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	ctx := context.Background()

	sender := newTestWallet(t, node, 0x01, 1000)
	receiver := newTestWallet(t, node, 0x02, 0)

	addr, err := receiver.Address()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(addr, "bc1qfast"))

	_, err = sender.Send(ctx, addr, 400)
	require.NoError(t, err)

	senderBalance, err := sender.Balance(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 600, senderBalance)

	receiverBalance, err := receiver.Balance(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 400, receiverBalance)
}

// TestSendInsufficientBalance asserts the node's rejection surfaces as the
// client's sentinel rather than a generic failure.
func TestSendInsufficientBalance(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	sender := newTestWallet(t, node, 0x01, 100)
	receiver := newTestWallet(t, node, 0x02, 0)

	addr, err := receiver.Address()
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), addr, 500)
	require.ErrorIs(t, err, stclient.ErrInsufficientBalance)
}

// TestSendToRawChainAddress asserts an ordinary Bitcoin address is accepted
// in the same input field and carried through as a pass-through recipient.
func TestSendToRawChainAddress(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	sender := newTestWallet(t, node, 0x01, 1000)

	_, err := sender.Send(
		context.Background(),
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", 250,
	)
	require.NoError(t, err)

	balance, err := sender.Balance(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 750, balance)
}

// TestWithdraw asserts a withdrawal debits the ledger balance.
func TestWithdraw(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	wallet := newTestWallet(t, node, 0x01, 1000)

	_, err := wallet.Withdraw(
		context.Background(),
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", 300,
	)
	require.NoError(t, err)

	balance, err := wallet.Balance(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 700, balance)
}

// TestIssueAndSweepLink walks the sweep variant end to end: issue, render,
// parse, sweep into another wallet, and verify the link is then spent.
func TestIssueAndSweepLink(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	ctx := context.Background()

	sender := newTestWallet(t, node, 0x01, 1000)
	receiver := newTestWallet(t, node, 0x02, 0)

	link, err := sender.IssueSweepLink(ctx, 500)
	require.NoError(t, err)
	require.Nil(t, link.TxID)

	senderBalance, err := sender.Balance(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 500, senderBalance)

	// The recipient only ever sees the rendered URL.
	rendered, err := link.String(sender.LinkBase())
	require.NoError(t, err)

	parsed, err := ParseLink(rendered)
	require.NoError(t, err)

	_, value, err := receiver.SweepLink(ctx, parsed)
	require.NoError(t, err)
	require.EqualValues(t, 500, value)

	receiverBalance, err := receiver.Balance(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 500, receiverBalance)

	// The ephemeral account is drained; a second sweep finds nothing.
	_, _, err = receiver.SweepLink(ctx, parsed)
	require.ErrorIs(t, err, ErrCheckEmpty)
}

// TestIssueCheckAndRedeem walks the check variant: the funding id rides in
// the link path and the ephemeral balance is redeemable exactly once.
func TestIssueCheckAndRedeem(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	ctx := context.Background()

	sender := newTestWallet(t, node, 0x01, 1000)
	receiver := newTestWallet(t, node, 0x02, 0)

	link, err := sender.IssueCheck(ctx, 250)
	require.NoError(t, err)
	require.NotNil(t, link.TxID)

	rendered, err := link.String(sender.LinkBase())
	require.NoError(t, err)
	require.Contains(t, rendered, link.TxID.String())

	parsed, err := ParseLink(rendered)
	require.NoError(t, err)
	require.Equal(t, link.TxID, parsed.TxID)

	_, value, err := receiver.SweepLink(ctx, parsed)
	require.NoError(t, err)
	require.EqualValues(t, 250, value)

	_, _, err = receiver.SweepLink(ctx, parsed)
	require.ErrorIs(t, err, ErrCheckEmpty)
}

// TestClaimUtxos asserts all visible deposits are claimed, credited, and
// removed from the UTXO view.
func TestClaimUtxos(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	ctx := context.Background()

	wallet := newTestWallet(t, node, 0x01, 0)

	node.addUtxo(wallet.Commitment(), stwire.Utxo{
		TransactionID: stwire.TxID{0xaa}, Vout: 0, Value: 100000,
	})
	node.addUtxo(wallet.Commitment(), stwire.Utxo{
		TransactionID: stwire.TxID{0xbb}, Vout: 2, Value: 50000,
	})

	txids, err := wallet.ClaimUtxos(ctx)
	require.NoError(t, err)
	require.Len(t, txids, 2)

	balance, err := wallet.Balance(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 150000, balance)

	remaining, err := wallet.Utxos(ctx)
	require.NoError(t, err)
	require.Empty(t, remaining)

	// Nothing left to claim.
	txids, err = wallet.ClaimUtxos(ctx)
	require.NoError(t, err)
	require.Empty(t, txids)
}

// TestClaimUtxosAlreadyClaimed asserts a deposit consumed elsewhere
// surfaces the claim failure instead of reporting success.
func TestClaimUtxosAlreadyClaimed(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	wallet := newTestWallet(t, node, 0x01, 0)

	utxo := stwire.Utxo{
		TransactionID: stwire.TxID{0xaa}, Vout: 0, Value: 100000,
	}
	node.addUtxo(wallet.Commitment(), utxo)
	node.markClaimed(utxo.TransactionID, utxo.Vout)

	_, err := wallet.ClaimUtxos(context.Background())
	require.ErrorIs(t, err, stclient.ErrAlreadyClaimed)
}

// TestNonceMonotonic asserts consecutive submissions from the same key
// carry strictly increasing nonces.
func TestNonceMonotonic(t *testing.T) {
	t.Parallel()

	node := newFakeNode(t)
	ctx := context.Background()

	sender := newTestWallet(t, node, 0x01, 1000)
	receiver := newTestWallet(t, node, 0x02, 0)

	addr, err := receiver.Address()
	require.NoError(t, err)

	_, err = sender.Send(ctx, addr, 10)
	require.NoError(t, err)
	_, err = sender.Send(ctx, addr, 10)
	require.NoError(t, err)
	_, err = sender.Send(ctx, addr, 10)
	require.NoError(t, err)

	require.Equal(t, []int64{1, 2, 3},
		node.signerNonces(sender.Commitment()))
}
