// Package token implements a native contract that keeps the balances of
// fungible assets.
//
// An asset is registered with the identity allowed to mint it, then the
// balances move between accounts with transfers, either directly or through an
// allowance given to a third party. An account is the textual form of an
// identity, so that a contract can own balances next to the signers.
//
// The balances live in the namespace of the contract, but they are not
// reserved to it: another contract can settle payments in the same execution
// step by going through the Ledger type.
package token

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"github.com/veilinglabs/klok"
	"github.com/veilinglabs/klok/core/access"
	"github.com/veilinglabs/klok/core/execution"
	"github.com/veilinglabs/klok/core/execution/native"
	"github.com/veilinglabs/klok/core/store"
	"golang.org/x/xerrors"
)

// commands defines the commands of the token contract. This interface helps in
// testing the contract.
type commands interface {
	register(snap store.Snapshot, step execution.Step) error
	mint(snap store.Snapshot, step execution.Step) error
	transfer(snap store.Snapshot, step execution.Step) error
	approve(snap store.Snapshot, step execution.Step) error
	transferFrom(snap store.Snapshot, step execution.Step) error
	balance(snap store.Snapshot, step execution.Step) error
}

const (
	// ContractName is the name of the contract.
	ContractName = "github.com/veilinglabs/klok.Token"

	// ContractUID is the unique (4-bytes) identifier of the contract, used as
	// the prefix of its keys in the store.
	ContractUID = "TOKN"

	// AssetArg is the argument's name in the transaction that contains the
	// hex-encoded identifier of the asset.
	AssetArg = "token:asset"

	// ToArg is the argument's name in the transaction that contains the
	// account credited by the command.
	ToArg = "token:to"

	// FromArg is the argument's name in the transaction that contains the
	// account debited by the TRANSFER_FROM command.
	FromArg = "token:from"

	// SpenderArg is the argument's name in the transaction that contains the
	// account allowed to spend on behalf of the signer.
	SpenderArg = "token:spender"

	// OwnerArg is the argument's name in the transaction that contains the
	// account read by the BALANCE command.
	OwnerArg = "token:owner"

	// AmountArg is the argument's name in the transaction that contains the
	// decimal amount of the command.
	AmountArg = "token:amount"

	// CmdArg is the argument's name to indicate the kind of command we want to
	// run on the contract. Should be one of the Command type.
	CmdArg = "token:command"

	// credentialAllCommand defines the credential command that is allowed to
	// perform all commands.
	credentialAllCommand = "all"
)

// Command defines a type of command for the token contract.
type Command string

const (
	// CmdRegister defines the command to register an asset.
	CmdRegister Command = "REGISTER"

	// CmdMint defines the command to mint tokens of an asset.
	CmdMint Command = "MINT"

	// CmdTransfer defines the command to transfer tokens to an account.
	CmdTransfer Command = "TRANSFER"

	// CmdApprove defines the command to allow an account to spend tokens on
	// behalf of the signer.
	CmdApprove Command = "APPROVE"

	// CmdTransferFrom defines the command to transfer tokens from an account
	// that gave an allowance to the signer.
	CmdTransferFrom Command = "TRANSFER_FROM"

	// CmdBalance defines the command to display the balance of an account.
	CmdBalance Command = "BALANCE"
)

// aKey is the access key used to gate the privileged commands of the
// contract.
var aKey = [32]byte{2}

// NewCreds creates new credentials for a token contract execution.
func NewCreds() access.Credential {
	return access.NewContractCreds(aKey[:], ContractName, credentialAllCommand)
}

// RegisterContract registers the token contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Contract is a smart contract that keeps the balances of fungible assets.
//
// - implements native.Contract
type Contract struct {
	// access is the access control service gating the REGISTER command
	access access.Service

	// store is the node-local store holding the accesses granted to the
	// contract
	store store.Readable

	// cmd provides the commands that can be executed by this smart contract
	cmd commands

	// printer is the output used by the BALANCE command
	printer io.Writer
}

// NewContract creates a new token contract.
func NewContract(srvc access.Service, store store.Readable) Contract {
	contract := Contract{
		access:  srvc,
		store:   store,
		printer: infoLog{},
	}

	contract.cmd = tokenCommand{Contract: &contract}

	return contract
}

// Execute implements native.Contract. It runs the appropriate command.
func (c Contract) Execute(snap store.Snapshot, step execution.Step) error {
	cmd := step.Current.GetArg(CmdArg)
	if len(cmd) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", CmdArg)
	}

	switch Command(cmd) {
	case CmdRegister:
		// Registering an asset is the only privileged command of the
		// contract.
		creds := NewCreds()

		err := c.access.Match(c.store, creds, step.Current.GetIdentity())
		if err != nil {
			return xerrors.Errorf("identity not authorized: %v (%v)",
				step.Current.GetIdentity(), err)
		}

		err = c.cmd.register(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to REGISTER: %v", err)
		}
	case CmdMint:
		err := c.cmd.mint(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to MINT: %v", err)
		}
	case CmdTransfer:
		err := c.cmd.transfer(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to TRANSFER: %v", err)
		}
	case CmdApprove:
		err := c.cmd.approve(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to APPROVE: %v", err)
		}
	case CmdTransferFrom:
		err := c.cmd.transferFrom(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to TRANSFER_FROM: %v", err)
		}
	case CmdBalance:
		err := c.cmd.balance(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to BALANCE: %v", err)
		}
	default:
		return xerrors.Errorf("unknown command: %s", cmd)
	}

	return nil
}

// UID implements native.Contract. It returns the unique identifier of the
// contract.
func (c Contract) UID() string {
	return ContractUID
}

// AccountOf returns the account of an identity, which is its textual form.
func AccountOf(ident access.Identity) (string, error) {
	text, err := ident.MarshalText()
	if err != nil {
		return "", xerrors.Errorf("failed to marshal identity: %v", err)
	}

	return string(text), nil
}

// tokenCommand implements the commands of the token contract.
//
// - implements commands
type tokenCommand struct {
	*Contract
}

// register implements commands. It performs the REGISTER command.
func (c tokenCommand) register(snap store.Snapshot, step execution.Step) error {
	asset, err := assetArg(step)
	if err != nil {
		return err
	}

	minter, err := AccountOf(step.Current.GetIdentity())
	if err != nil {
		return err
	}

	err = NewLedger(asset).Register(snap, minter)
	if err != nil {
		return err
	}

	klok.Logger.Info().Str("contract", ContractName).
		Msgf("registered asset %x with minter %s", asset, minter)

	return nil
}

// mint implements commands. It performs the MINT command.
func (c tokenCommand) mint(snap store.Snapshot, step execution.Step) error {
	asset, err := assetArg(step)
	if err != nil {
		return err
	}

	to, err := accountArg(step, ToArg)
	if err != nil {
		return err
	}

	amount, err := amountArg(step)
	if err != nil {
		return err
	}

	caller, err := AccountOf(step.Current.GetIdentity())
	if err != nil {
		return err
	}

	err = NewLedger(asset).Mint(snap, caller, to, amount)
	if err != nil {
		return err
	}

	klok.Logger.Info().Str("contract", ContractName).
		Msgf("minted %s of asset %x for %s", amount, asset, to)

	return nil
}

// transfer implements commands. It performs the TRANSFER command.
func (c tokenCommand) transfer(snap store.Snapshot, step execution.Step) error {
	asset, err := assetArg(step)
	if err != nil {
		return err
	}

	to, err := accountArg(step, ToArg)
	if err != nil {
		return err
	}

	amount, err := amountArg(step)
	if err != nil {
		return err
	}

	from, err := AccountOf(step.Current.GetIdentity())
	if err != nil {
		return err
	}

	return NewLedger(asset).Transfer(snap, from, to, amount)
}

// approve implements commands. It performs the APPROVE command.
func (c tokenCommand) approve(snap store.Snapshot, step execution.Step) error {
	asset, err := assetArg(step)
	if err != nil {
		return err
	}

	spender, err := accountArg(step, SpenderArg)
	if err != nil {
		return err
	}

	amount, err := amountArg(step)
	if err != nil {
		return err
	}

	owner, err := AccountOf(step.Current.GetIdentity())
	if err != nil {
		return err
	}

	return NewLedger(asset).Approve(snap, owner, spender, amount)
}

// transferFrom implements commands. It performs the TRANSFER_FROM command.
func (c tokenCommand) transferFrom(snap store.Snapshot, step execution.Step) error {
	asset, err := assetArg(step)
	if err != nil {
		return err
	}

	from, err := accountArg(step, FromArg)
	if err != nil {
		return err
	}

	to, err := accountArg(step, ToArg)
	if err != nil {
		return err
	}

	amount, err := amountArg(step)
	if err != nil {
		return err
	}

	spender, err := AccountOf(step.Current.GetIdentity())
	if err != nil {
		return err
	}

	return NewLedger(asset).TransferFrom(snap, spender, from, to, amount)
}

// balance implements commands. It performs the BALANCE command.
func (c tokenCommand) balance(snap store.Snapshot, step execution.Step) error {
	asset, err := assetArg(step)
	if err != nil {
		return err
	}

	owner := string(step.Current.GetArg(OwnerArg))
	if owner == "" {
		owner, err = AccountOf(step.Current.GetIdentity())
		if err != nil {
			return err
		}
	}

	balance, err := NewLedger(asset).Balance(snap, owner)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.printer, "%x:%s=%s", asset, owner, balance)

	return nil
}

// assetArg reads the asset identifier of the transaction.
func assetArg(step execution.Step) ([]byte, error) {
	value := step.Current.GetArg(AssetArg)
	if len(value) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", AssetArg)
	}

	asset, err := hex.DecodeString(string(value))
	if err != nil {
		return nil, xerrors.Errorf("failed to decode asset from tx arg: %v", err)
	}

	return asset, nil
}

// accountArg reads a mandatory account argument of the transaction.
func accountArg(step execution.Step, key string) (string, error) {
	value := step.Current.GetArg(key)
	if len(value) == 0 {
		return "", xerrors.Errorf("'%s' not found in tx arg", key)
	}

	return string(value), nil
}

// amountArg reads the amount of the transaction.
func amountArg(step execution.Step) (*big.Int, error) {
	value := step.Current.GetArg(AmountArg)
	if len(value) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", AmountArg)
	}

	return ParseAmount(value)
}

// infoLog defines an output using zerolog
//
// - implements io.writer
type infoLog struct{}

func (h infoLog) Write(p []byte) (int, error) {
	klok.Logger.Info().Msg(string(p))

	return len(p), nil
}
