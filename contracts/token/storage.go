package token

import (
	"fmt"
	"math/big"

	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/store/prefixed"
	"golang.org/x/xerrors"
)

// ErrInsufficientBalance is returned when a transfer debits an account beyond
// what it holds.
var ErrInsufficientBalance = xerrors.New("insufficient balance")

// ErrInsufficientAllowance is returned when a spender transfers more than the
// allowance it was given.
var ErrInsufficientAllowance = xerrors.New("insufficient allowance")

// Ledger gives direct access to the balances of one asset. It can be used by
// other contracts to settle payments inside their own execution, in which case
// the writes are part of the same transaction and are discarded altogether if
// the execution fails.
//
// Amounts are stored as the big-endian bytes of unsigned integers, with the
// empty value meaning zero.
type Ledger struct {
	asset []byte
}

// NewLedger creates a ledger for the given asset.
func NewLedger(asset []byte) Ledger {
	return Ledger{asset: asset}
}

// Register registers the asset with the account allowed to mint it. It
// returns an error if the asset is already registered.
func (l Ledger) Register(snap store.Snapshot, minter string) error {
	snap = prefixed.NewSnapshot(ContractUID, snap)

	current, err := snap.Get(l.minterKey())
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	if len(current) > 0 {
		return xerrors.Errorf("asset %x already registered", l.asset)
	}

	err = snap.Set(l.minterKey(), []byte(minter))
	if err != nil {
		return xerrors.Errorf("store failed to write: %v", err)
	}

	return nil
}

// Minter returns the account allowed to mint the asset, or an empty string if
// the asset is not registered.
func (l Ledger) Minter(snap store.Readable) (string, error) {
	value, err := prefixed.NewReadable(ContractUID, snap).Get(l.minterKey())
	if err != nil {
		return "", xerrors.Errorf("store failed: %v", err)
	}

	return string(value), nil
}

// Mint credits an account with new tokens. Only the minter of the asset is
// allowed to do so.
func (l Ledger) Mint(snap store.Snapshot, caller, to string, amount *big.Int) error {
	snap = prefixed.NewSnapshot(ContractUID, snap)

	if amount.Sign() < 0 {
		return xerrors.Errorf("amount %s is negative", amount)
	}

	minter, err := snap.Get(l.minterKey())
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	if len(minter) == 0 {
		return xerrors.Errorf("asset %x is not registered", l.asset)
	}

	if string(minter) != caller {
		return xerrors.Errorf("'%s' is not the minter of asset %x", caller, l.asset)
	}

	balance, err := readAmount(snap, l.balanceKey(to))
	if err != nil {
		return err
	}

	return writeAmount(snap, l.balanceKey(to), new(big.Int).Add(balance, amount))
}

// Balance returns the balance of an account.
func (l Ledger) Balance(snap store.Readable, account string) (*big.Int, error) {
	return readAmount(prefixed.NewReadable(ContractUID, snap), l.balanceKey(account))
}

// Transfer moves tokens from one account to another. It returns an error
// wrapping ErrInsufficientBalance when the sender holds less than the amount.
func (l Ledger) Transfer(snap store.Snapshot, from, to string, amount *big.Int) error {
	return l.transfer(prefixed.NewSnapshot(ContractUID, snap), from, to, amount)
}

// Approve allows a spender to transfer up to the given amount from the
// owner's account. It replaces any previous allowance.
func (l Ledger) Approve(snap store.Snapshot, owner, spender string, amount *big.Int) error {
	snap = prefixed.NewSnapshot(ContractUID, snap)

	if amount.Sign() < 0 {
		return xerrors.Errorf("amount %s is negative", amount)
	}

	return writeAmount(snap, l.allowanceKey(owner, spender), amount)
}

// Allowance returns what the spender may still transfer from the owner's
// account.
func (l Ledger) Allowance(snap store.Readable, owner, spender string) (*big.Int, error) {
	reader := prefixed.NewReadable(ContractUID, snap)

	return readAmount(reader, l.allowanceKey(owner, spender))
}

// TransferFrom moves tokens between two accounts on behalf of the spender,
// debiting its allowance. It returns an error wrapping
// ErrInsufficientAllowance when the allowance is too small.
func (l Ledger) TransferFrom(snap store.Snapshot, spender, from, to string, amount *big.Int) error {
	snap = prefixed.NewSnapshot(ContractUID, snap)

	if amount.Sign() < 0 {
		return xerrors.Errorf("amount %s is negative", amount)
	}

	allowance, err := readAmount(snap, l.allowanceKey(from, spender))
	if err != nil {
		return err
	}

	if allowance.Cmp(amount) < 0 {
		return xerrors.Errorf("'%s' may spend %s out of %s from '%s': %w",
			spender, allowance, amount, from, ErrInsufficientAllowance)
	}

	err = writeAmount(snap, l.allowanceKey(from, spender), new(big.Int).Sub(allowance, amount))
	if err != nil {
		return err
	}

	return l.transfer(snap, from, to, amount)
}

func (l Ledger) transfer(snap store.Snapshot, from, to string, amount *big.Int) error {
	if amount.Sign() < 0 {
		return xerrors.Errorf("amount %s is negative", amount)
	}

	balance, err := readAmount(snap, l.balanceKey(from))
	if err != nil {
		return err
	}

	if balance.Cmp(amount) < 0 {
		return xerrors.Errorf("account '%s' holds %s out of %s: %w",
			from, balance, amount, ErrInsufficientBalance)
	}

	err = writeAmount(snap, l.balanceKey(from), new(big.Int).Sub(balance, amount))
	if err != nil {
		return err
	}

	balance, err = readAmount(snap, l.balanceKey(to))
	if err != nil {
		return err
	}

	return writeAmount(snap, l.balanceKey(to), new(big.Int).Add(balance, amount))
}

func (l Ledger) minterKey() []byte {
	return []byte(fmt.Sprintf("minter:%x", l.asset))
}

func (l Ledger) balanceKey(account string) []byte {
	return []byte(fmt.Sprintf("balance:%x:%s", l.asset, account))
}

func (l Ledger) allowanceKey(owner, spender string) []byte {
	return []byte(fmt.Sprintf("allow:%x:%s:%s", l.asset, owner, spender))
}

func readAmount(reader store.Readable, key []byte) (*big.Int, error) {
	value, err := reader.Get(key)
	if err != nil {
		return nil, xerrors.Errorf("store failed: %v", err)
	}

	return new(big.Int).SetBytes(value), nil
}

func writeAmount(writer store.Writable, key []byte, amount *big.Int) error {
	err := writer.Set(key, amount.Bytes())
	if err != nil {
		return xerrors.Errorf("store failed to write: %v", err)
	}

	return nil
}

// ParseAmount parses a decimal amount of tokens. It returns an error if the
// value is not a valid non-negative integer.
func ParseAmount(value []byte) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(string(value), 10)
	if !ok {
		return nil, xerrors.Errorf("failed to parse amount '%s'", value)
	}

	if amount.Sign() < 0 {
		return nil, xerrors.Errorf("amount '%s' is negative", value)
	}

	return amount, nil
}
