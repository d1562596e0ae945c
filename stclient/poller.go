package stclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitcoindance/stablewallet/staddr"
	"github.com/bitcoindance/stablewallet/stwire"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/lightningnetwork/lnd/ticker"
)

// defaultPollTimeout bounds a single refresh round trip.
const defaultPollTimeout = 10 * time.Second

// PollerConfig packages the dependencies of a Poller.
type PollerConfig struct {
	// Client performs the balance and UTXO fetches.
	Client *Client

	// Commitment is the account being watched.
	Commitment staddr.Commitment

	// Currency is the currency of the watched balance.
	Currency stwire.Currency

	// Ticker drives the refresh schedule. Tests inject a force-fed
	// ticker to avoid wall-clock waits.
	Ticker ticker.Ticker

	// Timeout bounds a single refresh. Zero selects the default.
	Timeout time.Duration
}

// Poller refreshes an account's balance/UTXO view at a fixed interval and
// publishes each result as a replacing snapshot. A refresh that fails or
// decodes badly is dropped: the previous view stands until a complete new
// one arrives. There is no ordering guarantee between a poll and a
// concurrent submission; a submitted transaction may not be reflected until
// a later tick.
type Poller struct {
	started uint32 // To be used atomically.
	stopped uint32 // To be used atomically.

	cfg *PollerConfig

	updates *queue.ConcurrentQueue

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewPoller returns a Poller for the passed configuration.
func NewPoller(cfg *PollerConfig) *Poller {
	return &Poller{
		cfg:     cfg,
		updates: queue.NewConcurrentQueue(20),
		quit:    make(chan struct{}),
	}
}

// Start begins delivering snapshots on each tick.
func (p *Poller) Start() error {
	if !atomic.CompareAndSwapUint32(&p.started, 0, 1) {
		return nil
	}

	p.updates.Start()
	p.cfg.Ticker.Resume()

	p.wg.Add(1)
	go p.pollLoop()

	return nil
}

// Stop halts the refresh schedule and releases the poller's resources. An
// in-flight refresh is abandoned; it will not publish after Stop returns.
func (p *Poller) Stop() error {
	if !atomic.CompareAndSwapUint32(&p.stopped, 0, 1) {
		return nil
	}

	p.cfg.Ticker.Stop()
	close(p.quit)
	p.wg.Wait()
	p.updates.Stop()

	return nil
}

// Updates returns a read-only channel delivering *Snapshot values.
func (p *Poller) Updates() <-chan interface{} {
	return p.updates.ChanOut()
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.cfg.Ticker.Ticks():
			snapshot, err := p.poll()
			if err != nil {
				log.Warnf("Skipping poll for %v: %v",
					p.cfg.Commitment, err)
				continue
			}

			select {
			case p.updates.ChanIn() <- snapshot:
			case <-p.quit:
				return
			}

		case <-p.quit:
			return
		}
	}
}

func (p *Poller) poll() (*Snapshot, error) {
	timeout := p.cfg.Timeout
	if timeout == 0 {
		timeout = defaultPollTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	balance, err := p.cfg.Client.GetBalance(
		ctx, p.cfg.Commitment, p.cfg.Currency,
	)
	if err != nil {
		return nil, err
	}

	utxos, err := p.cfg.Client.GetUtxos(ctx, p.cfg.Commitment)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Balance: balance,
		Utxos:   utxos,
	}, nil
}
