package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"synthengine/internal/ledger"
)

// RestoredState is the ledger state recovered from the journal at startup.
type RestoredState struct {
	// Balances per account, ready to seed the engine's book.
	Balances map[ledger.AccountKey]*big.Int

	// NextSequence is one past the highest persisted sequence.
	NextSequence int64
}

// LoadState replays the full journal in sequence order and rebuilds account
// balances. The journal is the source of truth after a restart; the in-memory
// book is a pure function of it.
func LoadState(ctx context.Context, db *sql.DB) (*RestoredState, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT debit_account, credit_account, amount, sequence
		FROM synth.journal
		ORDER BY sequence ASC, journal_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	state := &RestoredState{
		Balances: make(map[ledger.AccountKey]*big.Int),
	}

	for rows.Next() {
		var debitPath, creditPath, amountStr string
		var sequence int64
		if err := rows.Scan(&debitPath, &creditPath, &amountStr, &sequence); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}

		amount, ok := new(big.Int).SetString(amountStr, 10)
		if !ok {
			return nil, fmt.Errorf("journal row seq=%d has malformed amount %q", sequence, amountStr)
		}

		debit, err := ledger.ParseAccountPath(debitPath)
		if err != nil {
			return nil, fmt.Errorf("journal row seq=%d: %w", sequence, err)
		}
		credit, err := ledger.ParseAccountPath(creditPath)
		if err != nil {
			return nil, fmt.Errorf("journal row seq=%d: %w", sequence, err)
		}

		apply(state.Balances, debit, amount)
		apply(state.Balances, credit, new(big.Int).Neg(amount))

		if sequence >= state.NextSequence {
			state.NextSequence = sequence + 1
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}

	// The replayed book must be zero-sum per asset, like the live one.
	totals := make(map[string]*big.Int)
	for key, bal := range state.Balances {
		if t, ok := totals[key.Asset]; ok {
			t.Add(t, bal)
		} else {
			totals[key.Asset] = new(big.Int).Set(bal)
		}
	}
	for asset, total := range totals {
		if total.Sign() != 0 {
			return nil, fmt.Errorf("replayed journal is not zero-sum for %s: %s", asset, total)
		}
	}

	return state, nil
}

func apply(balances map[ledger.AccountKey]*big.Int, key ledger.AccountKey, delta *big.Int) {
	if bal, ok := balances[key]; ok {
		bal.Add(bal, delta)
		return
	}
	balances[key] = new(big.Int).Set(delta)
}
