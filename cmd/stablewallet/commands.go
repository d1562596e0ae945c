package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bitcoindance/stablewallet/checklink"
	"github.com/bitcoindance/stablewallet/keychain"
	"github.com/bitcoindance/stablewallet/stclient"
	"github.com/bitcoindance/stablewallet/stwire"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/urfave/cli"
)

func printRespJSON(resp interface{}) {
	b, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}

	fmt.Println(string(b))
}

func parseAmount(ctx *cli.Context, position int) (int64, error) {
	arg := ctx.Args().Get(position)

	amount, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse amount %q: %w", arg, err)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %d", amount)
	}

	return amount, nil
}

var newEntropyCommand = cli.Command{
	Name:     "newentropy",
	Category: "Wallet",
	Usage:    "Generate a fresh wallet root secret.",
	Description: `
	Generate 16 bytes of fresh entropy and print them hex encoded. Pass
	the printed value as --entropy (or STABLEWALLET_ENTROPY) to every
	other command. Anyone holding this value holds the wallet.`,
	Action: actionDecorator(newEntropy),
}

func newEntropy(ctx *cli.Context) error {
	entropy, err := keychain.NewEntropy()
	if err != nil {
		return err
	}

	printRespJSON(struct {
		Entropy string `json:"entropy"`
	}{
		Entropy: hex.EncodeToString(entropy),
	})

	return nil
}

var addressCommand = cli.Command{
	Name:     "address",
	Category: "Wallet",
	Usage:    "Show the wallet's ledger address.",
	Action:   actionDecorator(address),
}

func address(ctx *cli.Context) error {
	wallet, err := getWallet(ctx)
	if err != nil {
		return err
	}

	addr, err := wallet.Address()
	if err != nil {
		return err
	}

	printRespJSON(struct {
		Address    string `json:"address"`
		Commitment string `json:"commitment"`
	}{
		Address:    addr,
		Commitment: wallet.Commitment().String(),
	})

	return nil
}

var balanceCommand = cli.Command{
	Name:     "balance",
	Category: "Wallet",
	Usage:    "Fetch the wallet's current balance.",
	Action:   actionDecorator(balance),
}

func balance(ctx *cli.Context) error {
	wallet, err := getWallet(ctx)
	if err != nil {
		return err
	}

	amount, err := wallet.Balance(context.Background())
	if err != nil {
		return err
	}

	printRespJSON(struct {
		Balance          int64  `json:"balance"`
		FormattedBalance string `json:"formatted_balance"`
	}{
		Balance:          amount,
		FormattedBalance: stwire.CurrencyUsd.FormatValue(amount),
	})

	return nil
}

var sendCommand = cli.Command{
	Name:     "send",
	Category: "Payments",
	Usage:    "Send funds to a ledger or on-chain address.",
	Description: `
	Send the given amount (in minor units) to the destination address.
	The destination may be a native ledger address or an ordinary
	on-chain Bitcoin address; the two are told apart automatically.`,
	ArgsUsage: "dest_addr amount",
	Action:    actionDecorator(send),
}

func send(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "send")
	}

	wallet, err := getWallet(ctx)
	if err != nil {
		return err
	}

	amount, err := parseAmount(ctx, 1)
	if err != nil {
		return err
	}

	txid, err := wallet.Send(
		context.Background(), ctx.Args().First(), amount,
	)
	if err != nil {
		return err
	}

	printRespJSON(struct {
		TxID string `json:"transaction_id"`
	}{
		TxID: txid.String(),
	})

	return nil
}

var withdrawCommand = cli.Command{
	Name:      "withdraw",
	Category:  "Payments",
	Usage:     "Withdraw funds to an on-chain Bitcoin address.",
	ArgsUsage: "bitcoin_addr amount",
	Action:    actionDecorator(withdraw),
}

func withdraw(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "withdraw")
	}

	wallet, err := getWallet(ctx)
	if err != nil {
		return err
	}

	amount, err := parseAmount(ctx, 1)
	if err != nil {
		return err
	}

	txid, err := wallet.Withdraw(
		context.Background(), ctx.Args().First(), amount,
	)
	if err != nil {
		return err
	}

	printRespJSON(struct {
		TxID string `json:"transaction_id"`
	}{
		TxID: txid.String(),
	})

	return nil
}

var claimCommand = cli.Command{
	Name:     "claim",
	Category: "Payments",
	Usage:    "Claim all on-chain deposits visible to the wallet.",
	Action:   actionDecorator(claim),
}

func claim(ctx *cli.Context) error {
	wallet, err := getWallet(ctx)
	if err != nil {
		return err
	}

	txids, err := wallet.ClaimUtxos(context.Background())
	if err != nil {
		return err
	}

	claimed := make([]string, 0, len(txids))
	for _, txid := range txids {
		claimed = append(claimed, txid.String())
	}

	printRespJSON(struct {
		Claimed []string `json:"claimed"`
	}{
		Claimed: claimed,
	})

	return nil
}

var issueLinkCommand = cli.Command{
	Name:      "issuelink",
	Category:  "Checks",
	Usage:     "Fund a fresh one-time account and print its share link.",
	ArgsUsage: "amount",
	Description: `
	Move the given amount onto a freshly derived one-time key and print
	the magic link embedding its entropy. The link is the only
	capability over the funds: whoever holds it can sweep them, and
	losing it loses the money.`,
	Action: actionDecorator(issueLink),
}

func issueLink(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "issuelink")
	}

	wallet, err := getWallet(ctx)
	if err != nil {
		return err
	}

	amount, err := parseAmount(ctx, 0)
	if err != nil {
		return err
	}

	link, err := wallet.IssueSweepLink(context.Background(), amount)
	if err != nil {
		return err
	}

	rendered, err := link.String(wallet.LinkBase())
	if err != nil {
		return err
	}

	printRespJSON(struct {
		Link string `json:"link"`
	}{
		Link: rendered,
	})

	return nil
}

var issueCheckCommand = cli.Command{
	Name:      "issuecheck",
	Category:  "Checks",
	Usage:     "Issue a check and print its share link.",
	ArgsUsage: "amount",
	Action:    actionDecorator(issueCheck),
}

func issueCheck(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "issuecheck")
	}

	wallet, err := getWallet(ctx)
	if err != nil {
		return err
	}

	amount, err := parseAmount(ctx, 0)
	if err != nil {
		return err
	}

	link, err := wallet.IssueCheck(context.Background(), amount)
	if err != nil {
		return err
	}

	rendered, err := link.String(wallet.LinkBase())
	if err != nil {
		return err
	}

	printRespJSON(struct {
		Link string `json:"link"`
		TxID string `json:"transaction_id"`
	}{
		Link: rendered,
		TxID: link.TxID.String(),
	})

	return nil
}

var sweepCommand = cli.Command{
	Name:      "sweep",
	Category:  "Checks",
	Usage:     "Sweep a share link into the wallet.",
	ArgsUsage: "link",
	Description: `
	Parse a magic link, derive its one-time key, and move the full
	balance it holds into this wallet. A link that was already swept
	reports an empty check instead of paying twice.`,
	Action: actionDecorator(sweep),
}

func sweep(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "sweep")
	}

	wallet, err := getWallet(ctx)
	if err != nil {
		return err
	}

	link, err := checklink.ParseLink(ctx.Args().First())
	if err != nil {
		return err
	}

	txid, value, err := wallet.SweepLink(context.Background(), link)
	if err != nil {
		return err
	}

	printRespJSON(struct {
		TxID  string `json:"transaction_id"`
		Value int64  `json:"value"`
	}{
		TxID:  txid.String(),
		Value: value,
	})

	return nil
}

var watchCommand = cli.Command{
	Name:     "watch",
	Category: "Wallet",
	Usage:    "Poll the wallet's balance and deposits until interrupted.",
	Flags: []cli.Flag{
		cli.DurationFlag{
			Name:  "interval",
			Usage: "Time between refreshes.",
			Value: 5 * time.Second,
		},
	},
	Action: actionDecorator(watch),
}

func watch(ctx *cli.Context) error {
	wallet, err := getWallet(ctx)
	if err != nil {
		return err
	}

	client := stclient.New(&stclient.Config{
		Peers:       ctx.GlobalStringSlice("peer"),
		Development: ctx.GlobalBool("dev"),
	})

	poller := stclient.NewPoller(&stclient.PollerConfig{
		Client:     client,
		Commitment: wallet.Commitment(),
		Currency:   stwire.CurrencyUsd,
		Ticker:     ticker.New(ctx.Duration("interval")),
	})
	if err := poller.Start(); err != nil {
		return err
	}
	defer func() {
		_ = poller.Stop()
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	type utxoView struct {
		TxID  string `json:"transaction_id"`
		Vout  int32  `json:"vout"`
		Value int64  `json:"value"`
	}
	type snapshotView struct {
		Balance int64      `json:"balance"`
		Utxos   []utxoView `json:"utxos"`
	}

	for {
		select {
		case update := <-poller.Updates():
			snapshot, ok := update.(*stclient.Snapshot)
			if !ok {
				continue
			}

			view := snapshotView{
				Balance: snapshot.Balance,
				Utxos:   make([]utxoView, 0, len(snapshot.Utxos)),
			}
			for _, utxo := range snapshot.Utxos {
				view.Utxos = append(view.Utxos, utxoView{
					TxID:  utxo.TransactionID.String(),
					Vout:  utxo.Vout,
					Value: utxo.Value,
				})
			}

			printRespJSON(view)

		case <-interrupt:
			return nil
		}
	}
}
