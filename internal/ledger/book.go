package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Book maintains the in-memory account balances. It is not synchronized;
// the engine serializes all mutation and guards reads with its own lock.
type Book struct {
	balances map[AccountKey]*big.Int
}

func NewBook() *Book {
	return &Book{
		balances: make(map[AccountKey]*big.Int),
	}
}

// ApplyJournal applies a single journal entry: debit account increases,
// credit account decreases, keeping the book zero-sum per asset.
func (b *Book) ApplyJournal(j Journal) {
	b.add(j.DebitAccount, j.Amount)
	b.sub(j.CreditAccount, j.Amount)
}

// ApplyBatch validates and applies all journals in a batch.
func (b *Book) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		b.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns a copy of the current balance for an account
// (zero for accounts never touched).
func (b *Book) GetBalance(key AccountKey) *big.Int {
	if bal, ok := b.balances[key]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// CollateralBalance returns a user's deposited amount for one asset.
func (b *Book) CollateralBalance(userID uuid.UUID, asset string) *big.Int {
	return b.GetBalance(NewCollateralKey(userID, asset))
}

// DebtBalance returns a user's outstanding liability.
func (b *Book) DebtBalance(userID uuid.UUID) *big.Int {
	return b.GetBalance(NewDebtKey(userID))
}

// TotalMinted returns the system-wide outstanding liability (positive).
func (b *Book) TotalMinted() *big.Int {
	// The minted counter-account is the credit side of every mint, so its
	// balance is the negated total supply.
	return new(big.Int).Neg(b.GetBalance(NewMintedKey()))
}

// ValidateUserNonNegative checks that a user account balance is >= 0.
// Collateral and liability ledgers must never go negative; a violation
// here is a programming error in the operation pre-checks.
func (b *Book) ValidateUserNonNegative(key AccountKey) error {
	if bal, ok := b.balances[key]; ok && bal.Sign() < 0 {
		return fmt.Errorf("account %s has negative balance: %s", key.AccountPath(), bal)
	}
	return nil
}

// ValidateSufficient checks that an account holds at least the required amount.
func (b *Book) ValidateSufficient(key AccountKey, required *big.Int) error {
	bal := b.GetBalance(key)
	if bal.Cmp(required) < 0 {
		return fmt.Errorf("insufficient balance on %s: have=%s, need=%s",
			key.AccountPath(), bal, required)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances per asset; every total
// must be zero for a zero-sum book.
func (b *Book) ComputeGlobalBalance() map[string]*big.Int {
	totals := make(map[string]*big.Int)

	for key, bal := range b.balances {
		if t, ok := totals[key.Asset]; ok {
			t.Add(t, bal)
		} else {
			totals[key.Asset] = new(big.Int).Set(bal)
		}
	}

	return totals
}

// SetBalance overwrites one account balance (startup restore only).
func (b *Book) SetBalance(key AccountKey, balance *big.Int) {
	b.balances[key] = new(big.Int).Set(balance)
}

func (b *Book) add(key AccountKey, amount *big.Int) {
	if bal, ok := b.balances[key]; ok {
		bal.Add(bal, amount)
		return
	}
	b.balances[key] = new(big.Int).Set(amount)
}

func (b *Book) sub(key AccountKey, amount *big.Int) {
	if bal, ok := b.balances[key]; ok {
		bal.Sub(bal, amount)
		return
	}
	b.balances[key] = new(big.Int).Neg(amount)
}
