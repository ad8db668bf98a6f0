package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/AIAleph/chaintrace/internal/analysis"
	"github.com/AIAleph/chaintrace/internal/classify"
	"github.com/AIAleph/chaintrace/internal/normalize"
	"github.com/AIAleph/chaintrace/internal/source"
)

// RawLimit caps how many transactions and anomalies are listed.
const RawLimit = 50

// Listing is the raw-fetch view of one address.
type Listing struct {
	Address   string
	Symbol    string
	Decimals  int
	Txs       []source.Transaction
	Anomalies []analysis.Anomaly
}

// WriteListing prints the first RawLimit transactions followed by the
// anomalous ones.
func WriteListing(w io.Writer, l Listing) error {
	b := &strings.Builder{}
	if len(l.Txs) == 0 {
		fmt.Fprintf(b, "No transactions found for %s.\n", l.Address)
		_, err := io.WriteString(w, b.String())
		return err
	}
	n := min(len(l.Txs), RawLimit)
	fmt.Fprintf(b, "Showing first %d of %d transactions for %s:\n%s\n", n, len(l.Txs), l.Address, rule)
	for _, tx := range l.Txs[:n] {
		writeTx(b, tx, l)
	}
	if len(l.Anomalies) == 0 {
		fmt.Fprintln(b, "\nNo suspicious transactions detected.")
	} else {
		fmt.Fprintf(b, "\nSuspicious Transactions Detected (%d):\n%s\n", len(l.Anomalies), rule)
		for _, a := range l.Anomalies[:min(len(l.Anomalies), RawLimit)] {
			fmt.Fprintf(b, "Score: %.2f\n", a.Score)
			writeTx(b, a.Tx, l)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeTx(b *strings.Builder, tx source.Transaction, l Listing) {
	value, _ := normalize.Units(tx.Value, l.Decimals)
	symbol := l.Symbol
	if tx.Token != "" {
		symbol = tx.Token
	}
	fmt.Fprintf(b, "Transaction Hash: %s\n", tx.Hash)
	fmt.Fprintf(b, "From: %s\n", tx.From)
	fmt.Fprintf(b, "To: %s\n", tx.To)
	fmt.Fprintf(b, "Value: %g %s\n", value, symbol)
	if tx.GasUsed != "" {
		fmt.Fprintf(b, "Gas Used: %s\n", tx.GasUsed)
	}
	if tx.GasPrice != "" {
		fmt.Fprintf(b, "Gas Price: %g Gwei\n", normalize.Gwei(tx.GasPrice))
	}
	fmt.Fprintf(b, "Timestamp: %d\n", tx.TimeStamp)
	fmt.Fprintf(b, "Risk: %d\n", analysis.RiskScore(tx, l.Decimals))
	fmt.Fprintf(b, "%s\n", rule)
}

// WriteClassifications prints one "address: label (method)" line per result.
func WriteClassifications(w io.Writer, rs []classify.Result) error {
	for _, r := range rs {
		if _, err := fmt.Fprintf(w, "%s: %s\n", r.Address, r); err != nil {
			return err
		}
	}
	return nil
}
