package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// LiabilitySymbol is the asset code of the pegged liability token inside
// the ledger. Collateral assets carry their own codes (e.g. WETH, WBTC).
const LiabilitySymbol = "SUSD"

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeCollateral AccountSubType = iota
	SubTypeDebt

	// System sub-types
	SubTypeSystemMinted

	// External sub-types
	SubTypeExternalCustody
)

// AccountKey is the in-memory key for balance tracking.
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, zero for system/external accounts
	SubType  AccountSubType
	Asset    string
}

// NewCollateralKey returns the key for a user's deposited collateral in one asset.
func NewCollateralKey(userID uuid.UUID, asset string) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  SubTypeCollateral,
		Asset:    asset,
	}
}

// NewDebtKey returns the key for a user's outstanding liability.
func NewDebtKey(userID uuid.UUID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  SubTypeDebt,
		Asset:    LiabilitySymbol,
	}
}

// NewMintedKey returns the system-side counterparty of all outstanding debt.
func NewMintedKey() AccountKey {
	return AccountKey{
		Scope:   AccountScopeSystem,
		SubType: SubTypeSystemMinted,
		Asset:   LiabilitySymbol,
	}
}

// NewCustodyKey returns the external boundary account for collateral held
// in engine custody.
func NewCustodyKey(asset string) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: SubTypeExternalCustody,
		Asset:   asset,
	}
}

// AccountPath returns the string representation for storage/logging.
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), k.Asset)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), k.Asset)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), k.Asset)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath, used when replaying the
// journal from storage.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	if len(parts) < 3 {
		return AccountKey{}, fmt.Errorf("malformed account path %q", path)
	}

	switch parts[0] {
	case "user":
		if len(parts) != 4 {
			return AccountKey{}, fmt.Errorf("malformed user account path %q", path)
		}
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		switch parts[2] {
		case "collateral":
			return NewCollateralKey(uid, parts[3]), nil
		case "debt":
			return NewDebtKey(uid), nil
		}
		return AccountKey{}, fmt.Errorf("unknown user account type in %q", path)
	case "system":
		if parts[1] == "minted" {
			return NewMintedKey(), nil
		}
		return AccountKey{}, fmt.Errorf("unknown system account in %q", path)
	case "external":
		if parts[1] == "custody" {
			return NewCustodyKey(parts[2]), nil
		}
		return AccountKey{}, fmt.Errorf("unknown external account in %q", path)
	}
	return AccountKey{}, fmt.Errorf("unknown account scope in %q", path)
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCollateral:
		return "collateral"
	case SubTypeDebt:
		return "debt"
	case SubTypeSystemMinted:
		return "minted"
	case SubTypeExternalCustody:
		return "custody"
	default:
		return "unknown"
	}
}
