package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeDeposit JournalType = iota
	JournalTypeRedemption
	JournalTypeMint
	JournalTypeBurn
	JournalTypeLiquidationSeizure
	JournalTypeLiquidationRetire
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeRedemption:
		return "redemption"
	case JournalTypeMint:
		return "mint"
	case JournalTypeBurn:
		return "burn"
	case JournalTypeLiquidationSeizure:
		return "liquidation_seizure"
	case JournalTypeLiquidationRetire:
		return "liquidation_retire"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry. Amounts are
// arbitrary-precision: collateral is in asset-native smallest units and
// liability in 18-decimal base units, both of which overflow int64.
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of source event
	Sequence      int64       // Global operation sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Asset         string      // Asset being moved
	Amount        *big.Int    // ALWAYS positive
	JournalType   JournalType // Entry type
	Timestamp     int64       // Epoch nanoseconds
}

// Batch represents a balanced set of journal entries for one operation.
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed. Each journal entry is a
// balanced transfer by construction (a single positive amount moves from
// credit account to debit account), so Σ debits == Σ credits holds
// per-entry; multi-leg operations use multiple entries under one batch_id.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount == nil || j.Amount.Sign() <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %v", j.JournalID, j.Amount)
		}
		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}
		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
		if j.DebitAccount.Asset != j.Asset || j.CreditAccount.Asset != j.Asset {
			return fmt.Errorf("journal %s moves %s between mismatched accounts", j.JournalID, j.Asset)
		}
	}

	return nil
}
