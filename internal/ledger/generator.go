package ledger

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Generator creates balanced journal batches for engine operations.
// Pre-checks run against the live book so a batch that would drive a user
// account negative is never produced.
type Generator struct {
	sequence int64
	book     *Book
}

func NewGenerator(startSequence int64, book *Book) *Generator {
	return &Generator{
		sequence: startSequence,
		book:     book,
	}
}

// Deposit records collateral entering custody:
// external:custody → user:collateral.
func (g *Generator) Deposit(userID uuid.UUID, eventRef, asset string, amount *big.Int, timestamp int64) (*Batch, error) {
	return g.single(Journal{
		DebitAccount:  NewCollateralKey(userID, asset),
		CreditAccount: NewCustodyKey(asset),
		Asset:         asset,
		Amount:        amount,
		JournalType:   JournalTypeDeposit,
	}, eventRef, timestamp)
}

// Redemption records collateral leaving custody back to the user:
// user:collateral → external:custody.
func (g *Generator) Redemption(userID uuid.UUID, eventRef, asset string, amount *big.Int, timestamp int64) (*Batch, error) {
	if err := g.book.ValidateSufficient(NewCollateralKey(userID, asset), amount); err != nil {
		return nil, fmt.Errorf("redemption pre-check failed: %w", err)
	}

	return g.single(Journal{
		DebitAccount:  NewCustodyKey(asset),
		CreditAccount: NewCollateralKey(userID, asset),
		Asset:         asset,
		Amount:        amount,
		JournalType:   JournalTypeRedemption,
	}, eventRef, timestamp)
}

// Mint records new liability: system:minted → user:debt.
func (g *Generator) Mint(userID uuid.UUID, eventRef string, amount *big.Int, timestamp int64) (*Batch, error) {
	return g.single(Journal{
		DebitAccount:  NewDebtKey(userID),
		CreditAccount: NewMintedKey(),
		Asset:         LiabilitySymbol,
		Amount:        amount,
		JournalType:   JournalTypeMint,
	}, eventRef, timestamp)
}

// Burn retires liability: user:debt → system:minted.
func (g *Generator) Burn(userID uuid.UUID, eventRef string, amount *big.Int, timestamp int64) (*Batch, error) {
	if err := g.book.ValidateSufficient(NewDebtKey(userID), amount); err != nil {
		return nil, fmt.Errorf("burn pre-check failed: %w", err)
	}

	return g.single(Journal{
		DebitAccount:  NewMintedKey(),
		CreditAccount: NewDebtKey(userID),
		Asset:         LiabilitySymbol,
		Amount:        amount,
		JournalType:   JournalTypeBurn,
	}, eventRef, timestamp)
}

// Liquidation produces a two-leg batch: the target's collateral is seized
// out of custody (to the liquidator's wallet, which is outside the book)
// and the target's debt is retired by the covered amount.
func (g *Generator) Liquidation(
	targetID uuid.UUID,
	eventRef, asset string,
	seizedAmount, debtCovered *big.Int,
	timestamp int64,
) (*Batch, error) {
	if err := g.book.ValidateSufficient(NewCollateralKey(targetID, asset), seizedAmount); err != nil {
		return nil, fmt.Errorf("liquidation seizure pre-check failed: %w", err)
	}
	if err := g.book.ValidateSufficient(NewDebtKey(targetID), debtCovered); err != nil {
		return nil, fmt.Errorf("liquidation debt pre-check failed: %w", err)
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  g.sequence,
		Timestamp: timestamp,
		Journals: []Journal{
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      eventRef,
				Sequence:      g.sequence,
				DebitAccount:  NewCustodyKey(asset),
				CreditAccount: NewCollateralKey(targetID, asset),
				Asset:         asset,
				Amount:        new(big.Int).Set(seizedAmount),
				JournalType:   JournalTypeLiquidationSeizure,
				Timestamp:     timestamp,
			},
			{
				JournalID:     uuid.New(),
				BatchID:       batchID,
				EventRef:      eventRef,
				Sequence:      g.sequence,
				DebitAccount:  NewMintedKey(),
				CreditAccount: NewDebtKey(targetID),
				Asset:         LiabilitySymbol,
				Amount:        new(big.Int).Set(debtCovered),
				JournalType:   JournalTypeLiquidationRetire,
				Timestamp:     timestamp,
			},
		},
	}

	g.sequence++
	return batch, nil
}

func (g *Generator) single(j Journal, eventRef string, timestamp int64) (*Batch, error) {
	batchID := uuid.New()

	j.JournalID = uuid.New()
	j.BatchID = batchID
	j.EventRef = eventRef
	j.Sequence = g.sequence
	j.Timestamp = timestamp
	j.Amount = new(big.Int).Set(j.Amount)

	batch := &Batch{
		BatchID:   batchID,
		EventRef:  eventRef,
		Sequence:  g.sequence,
		Timestamp: timestamp,
		Journals:  []Journal{j},
	}

	g.sequence++
	return batch, nil
}
