package analysis

import (
	"github.com/AIAleph/chaintrace/internal/normalize"
	"github.com/AIAleph/chaintrace/internal/source"
)

// RiskScore rates a single transaction from 0 to 100. It starts at 30 and
// adds points for large amounts, contract calls, urgent gas prices and
// reverted execution.
func RiskScore(tx source.Transaction, decimals int) int {
	score := 30
	if v, ok := normalize.Units(tx.Value, decimals); ok {
		if v > 10 {
			score += 10
		}
		if v > 100 {
			score += 15
		}
	}
	if len(tx.Input) > 10 {
		score += 5
	}
	if normalize.Gwei(tx.GasPrice) > 100 {
		score += 5
	}
	if tx.IsError {
		score += 25
	}
	if score > 100 {
		score = 100
	}
	return score
}
