package checklink

import (
	"sync"

	"github.com/bitcoindance/stablewallet/staddr"
)

// nonceSource hands out strictly increasing nonces per signing key. The
// ledger rejects an envelope whose nonce does not exceed the signer's last
// accepted one, which is what makes retried submissions safe: a replayed
// envelope carries a stale nonce and bounces instead of paying twice.
//
// Counters live in memory only. After a restart the source restarts at 1,
// which is fine for ephemeral check keys but means a long-term key's first
// submission after a restart may need the caller to resync against the
// node's view.
type nonceSource struct {
	mtx  sync.Mutex
	next map[staddr.Commitment]int64
}

func newNonceSource() *nonceSource {
	return &nonceSource{
		next: make(map[staddr.Commitment]int64),
	}
}

// Next returns the next unused nonce for the passed signer, starting at 1.
func (n *nonceSource) Next(signer staddr.Commitment) int64 {
	n.mtx.Lock()
	defer n.mtx.Unlock()

	n.next[signer]++

	return n.next[signer]
}
