package stclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bitcoindance/stablewallet/staddr"
	"github.com/bitcoindance/stablewallet/stwire"
	"github.com/lightningnetwork/lnd/queue"
)

// Snapshot is one authoritative balance/UTXO view of an account. Each
// snapshot fully replaces the previous one: the stream carries state, not
// deltas, so consumers must discard whatever they were rendering before.
type Snapshot struct {
	// Balance is the account balance in minor units.
	Balance int64

	// Utxos are the claimable deposits visible to the account.
	Utxos []stwire.Utxo
}

// Subscription is a long-lived server-push stream of account snapshots.
type Subscription struct {
	updates *queue.ConcurrentQueue

	cancel func()
	quit   chan struct{}
}

// Updates returns a read-only channel delivering *Snapshot values.
func (s *Subscription) Updates() <-chan interface{} {
	return s.updates.ChanOut()
}

// Quit is closed once the stream has terminated, whether by Cancel or by
// the peer closing the connection.
func (s *Subscription) Quit() <-chan struct{} {
	return s.quit
}

// Cancel tears the stream down. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

// sseEvent is the JSON shape of one stream event. Numeric amounts arrive as
// decimal strings to preserve 64-bit precision across the text transport.
type sseEvent struct {
	Balance string `json:"balance"`
	Utxos   []struct {
		TransactionID string `json:"transaction_id"`
		Vout          int32  `json:"vout"`
		Value         string `json:"value"`
	} `json:"utxos"`
}

// Subscribe opens the node's push stream for an account. Events that fail
// to decode are dropped rather than surfaced partially; the next event
// replaces the view anyway.
func (c *Client) Subscribe(ctx context.Context,
	commitment staddr.Commitment,
	currency stwire.Currency) (*Subscription, error) {

	ctx, cancel := context.WithCancel(ctx)

	streamURL := c.endpoint(fmt.Sprintf(
		"/sse?currency=%s&address=%s",
		url.QueryEscape(currency.String()), commitment,
	))

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, streamURL, nil,
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: stream status %d", ErrNetwork,
			resp.StatusCode)
	}

	sub := &Subscription{
		updates: queue.NewConcurrentQueue(20),
		cancel:  cancel,
		quit:    make(chan struct{}),
	}
	sub.updates.Start()

	go func() {
		defer func() {
			resp.Body.Close()
			close(sub.quit)
			sub.updates.Stop()
		}()

		scanner := bufio.NewScanner(resp.Body)
		var data strings.Builder

		for scanner.Scan() {
			line := scanner.Text()

			// A blank line terminates the event; data lines
			// accumulate until then.
			if line != "" {
				if payload, ok := strings.CutPrefix(
					line, "data:",
				); ok {
					data.WriteString(
						strings.TrimPrefix(
							payload, " ",
						),
					)
				}

				continue
			}

			if data.Len() == 0 {
				continue
			}

			snapshot, err := parseSnapshot(data.String())
			data.Reset()
			if err != nil {
				log.Warnf("Dropping undecodable stream "+
					"event: %v", err)
				continue
			}

			select {
			case sub.updates.ChanIn() <- snapshot:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}

// parseSnapshot decodes one stream event payload. Any malformed field fails
// the whole event; a snapshot is never partially populated.
func parseSnapshot(payload string) (*Snapshot, error) {
	var event sseEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	balance, err := strconv.ParseInt(event.Balance, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: balance %q", ErrDecode,
			event.Balance)
	}

	utxos := make([]stwire.Utxo, 0, len(event.Utxos))
	for _, u := range event.Utxos {
		txid, err := stwire.NewTxIDFromString(u.TransactionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}

		value, err := strconv.ParseInt(u.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: utxo value %q",
				ErrDecode, u.Value)
		}

		utxos = append(utxos, stwire.Utxo{
			TransactionID: txid,
			Vout:          u.Vout,
			Value:         value,
		})
	}

	return &Snapshot{
		Balance: balance,
		Utxos:   utxos,
	}, nil
}
