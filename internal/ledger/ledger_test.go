package ledger_test

import (
	"math/big"
	"testing"

	"github.com/google/uuid"

	"synthengine/internal/ledger"
)

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func mustEqual(t *testing.T, got, want *big.Int, what string) {
	t.Helper()
	if got.Cmp(want) != 0 {
		t.Fatalf("%s: got %s, want %s", what, got, want)
	}
}

func TestDepositRedemptionCycle(t *testing.T) {
	book := ledger.NewBook()
	gen := ledger.NewGenerator(0, book)
	user := uuid.New()

	batch, err := gen.Deposit(user, "op-1", "WETH", units(10), 1)
	if err != nil {
		t.Fatalf("deposit batch: %v", err)
	}
	if err := book.ApplyBatch(batch); err != nil {
		t.Fatalf("apply deposit: %v", err)
	}

	mustEqual(t, book.CollateralBalance(user, "WETH"), units(10), "collateral after deposit")
	mustEqual(t, book.GetBalance(ledger.NewCustodyKey("WETH")), new(big.Int).Neg(units(10)), "custody counterweight")

	batch, err = gen.Redemption(user, "op-2", "WETH", units(4), 2)
	if err != nil {
		t.Fatalf("redemption batch: %v", err)
	}
	if err := book.ApplyBatch(batch); err != nil {
		t.Fatalf("apply redemption: %v", err)
	}
	mustEqual(t, book.CollateralBalance(user, "WETH"), units(6), "collateral after redemption")

	for asset, total := range book.ComputeGlobalBalance() {
		if total.Sign() != 0 {
			t.Fatalf("book not zero-sum for %s: %s", asset, total)
		}
	}
}

func TestRedemptionPreCheckRejectsOverdraw(t *testing.T) {
	book := ledger.NewBook()
	gen := ledger.NewGenerator(0, book)
	user := uuid.New()

	if _, err := gen.Redemption(user, "op-1", "WETH", units(1), 1); err == nil {
		t.Fatal("redemption of empty account accepted")
	}
}

func TestMintBurnTracksTotalSupply(t *testing.T) {
	book := ledger.NewBook()
	gen := ledger.NewGenerator(0, book)
	user := uuid.New()

	batch, err := gen.Mint(user, "op-1", units(500), 1)
	if err != nil {
		t.Fatalf("mint batch: %v", err)
	}
	if err := book.ApplyBatch(batch); err != nil {
		t.Fatalf("apply mint: %v", err)
	}
	mustEqual(t, book.DebtBalance(user), units(500), "debt after mint")
	mustEqual(t, book.TotalMinted(), units(500), "total supply after mint")

	batch, err = gen.Burn(user, "op-2", units(200), 2)
	if err != nil {
		t.Fatalf("burn batch: %v", err)
	}
	if err := book.ApplyBatch(batch); err != nil {
		t.Fatalf("apply burn: %v", err)
	}
	mustEqual(t, book.DebtBalance(user), units(300), "debt after burn")
	mustEqual(t, book.TotalMinted(), units(300), "total supply after burn")

	if _, err := gen.Burn(user, "op-3", units(301), 3); err == nil {
		t.Fatal("burn beyond debt accepted")
	}
}

func TestLiquidationBatchHasTwoLegs(t *testing.T) {
	book := ledger.NewBook()
	gen := ledger.NewGenerator(0, book)
	target := uuid.New()

	for _, setup := range []func() (*ledger.Batch, error){
		func() (*ledger.Batch, error) { return gen.Deposit(target, "op-1", "WETH", units(10), 1) },
		func() (*ledger.Batch, error) { return gen.Mint(target, "op-2", units(1000), 2) },
	} {
		batch, err := setup()
		if err != nil {
			t.Fatalf("setup batch: %v", err)
		}
		if err := book.ApplyBatch(batch); err != nil {
			t.Fatalf("apply setup batch: %v", err)
		}
	}

	batch, err := gen.Liquidation(target, "op-3", "WETH", units(3), units(500), 3)
	if err != nil {
		t.Fatalf("liquidation batch: %v", err)
	}
	if len(batch.Journals) != 2 {
		t.Fatalf("expected 2 journals, got %d", len(batch.Journals))
	}
	if batch.Journals[0].JournalType != ledger.JournalTypeLiquidationSeizure {
		t.Fatalf("first leg: got %s", batch.Journals[0].JournalType)
	}
	if batch.Journals[1].JournalType != ledger.JournalTypeLiquidationRetire {
		t.Fatalf("second leg: got %s", batch.Journals[1].JournalType)
	}
	if batch.Journals[0].BatchID != batch.Journals[1].BatchID {
		t.Fatal("legs must share a batch id")
	}

	if err := book.ApplyBatch(batch); err != nil {
		t.Fatalf("apply liquidation: %v", err)
	}
	mustEqual(t, book.CollateralBalance(target, "WETH"), units(7), "collateral after seizure")
	mustEqual(t, book.DebtBalance(target), units(500), "debt after retire")

	// Over-seizure is rejected at generation time.
	if _, err := gen.Liquidation(target, "op-4", "WETH", units(8), units(100), 4); err == nil {
		t.Fatal("seizure beyond collateral accepted")
	}
}

func TestBatchValidation(t *testing.T) {
	book := ledger.NewBook()
	user := uuid.New()

	empty := &ledger.Batch{BatchID: uuid.New()}
	if err := book.ApplyBatch(empty); err == nil {
		t.Fatal("empty batch accepted")
	}

	batchID := uuid.New()
	negative := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.NewCollateralKey(user, "WETH"),
			CreditAccount: ledger.NewCustodyKey("WETH"),
			Asset:         "WETH",
			Amount:        big.NewInt(-1),
		}},
	}
	if err := book.ApplyBatch(negative); err == nil {
		t.Fatal("negative amount accepted")
	}

	selfTransfer := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.NewCollateralKey(user, "WETH"),
			CreditAccount: ledger.NewCollateralKey(user, "WETH"),
			Asset:         "WETH",
			Amount:        big.NewInt(1),
		}},
	}
	if err := book.ApplyBatch(selfTransfer); err == nil {
		t.Fatal("self transfer accepted")
	}
}

func TestAccountPathRoundTrip(t *testing.T) {
	user := uuid.New()
	keys := []ledger.AccountKey{
		ledger.NewCollateralKey(user, "WETH"),
		ledger.NewDebtKey(user),
		ledger.NewMintedKey(),
		ledger.NewCustodyKey("WBTC"),
	}

	for _, key := range keys {
		parsed, err := ledger.ParseAccountPath(key.AccountPath())
		if err != nil {
			t.Fatalf("parse %q: %v", key.AccountPath(), err)
		}
		if parsed != key {
			t.Fatalf("round trip of %q: got %+v, want %+v", key.AccountPath(), parsed, key)
		}
	}

	for _, malformed := range []string{"", "user:nope", "user:not-a-uuid:collateral:WETH", "orbit:minted:SUSD"} {
		if _, err := ledger.ParseAccountPath(malformed); err == nil {
			t.Fatalf("malformed path %q accepted", malformed)
		}
	}
}
