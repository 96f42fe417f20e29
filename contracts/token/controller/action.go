// This file implements the actions of the controller.

package controller

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/veilinglabs/klok"
	"github.com/veilinglabs/klok/cli/node"
	"github.com/veilinglabs/klok/contracts/token"
	"github.com/veilinglabs/klok/core/access"
	"github.com/veilinglabs/klok/core/execution/native"
	"github.com/veilinglabs/klok/core/ledger"
	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/txn"
	"github.com/veilinglabs/klok/crypto"
	"github.com/veilinglabs/klok/crypto/bls"
	"golang.org/x/xerrors"
)

// grantAction is an action to grant identities the right to register assets.
//
// - implements node.ActionTemplate
type grantAction struct{}

// Execute implements node.ActionTemplate. It reads the list of identities and
// updates the grants.
func (a grantAction) Execute(ctx node.Context) error {
	var asrv access.Service
	err := ctx.Injector.Resolve(&asrv)
	if err != nil {
		return xerrors.Errorf("failed to resolve access service: %v", err)
	}

	var grants accessStore
	err = ctx.Injector.Resolve(&grants)
	if err != nil {
		return xerrors.Errorf("failed to resolve access store: %v", err)
	}

	idsStr := ctx.Flags.StringSlice("identity")
	identities, err := parseIdentities(idsStr)
	if err != nil {
		return xerrors.Errorf("failed to parse identities: %v", err)
	}

	err = asrv.Grant(grants, token.NewCreds(), identities...)
	if err != nil {
		return xerrors.Errorf("failed to grant: %v", err)
	}

	klok.Logger.Info().Msgf("access granted to %v", identities)

	return nil
}

func parseIdentities(idsStr []string) ([]access.Identity, error) {
	identities := make([]access.Identity, len(idsStr))

	for i, id := range idsStr {
		idBuf, err := base64.StdEncoding.DecodeString(id)
		if err != nil {
			return nil, xerrors.Errorf("failed to decode pub key '%s': %v", id, err)
		}

		pk, err := bls.NewPublicKey(idBuf)
		if err != nil {
			return nil, xerrors.Errorf("failed to unmarshal identity '%s': %v", id, err)
		}

		identities[i] = pk
	}

	return identities, nil
}

// assetAction is an action to generate a fresh asset identifier.
//
// - implements node.ActionTemplate
type assetAction struct{}

// Execute implements node.ActionTemplate. It prints a random asset identifier.
func (a assetAction) Execute(ctx node.Context) error {
	gen := crypto.CryptographicRandomGenerator{}

	buffer := make([]byte, 32)

	_, err := gen.Read(buffer)
	if err != nil {
		return xerrors.Errorf("failed to generate asset: %v", err)
	}

	fmt.Fprint(ctx.Out, hex.EncodeToString(buffer))

	return nil
}

// registerAction is an action to register an asset with the client as its
// minter.
//
// - implements node.ActionTemplate
type registerAction struct{}

// Execute implements node.ActionTemplate. It submits a REGISTER command.
func (a registerAction) Execute(ctx node.Context) error {
	asset := ctx.Flags.String("asset")

	err := submit(ctx,
		txn.Arg{Key: token.CmdArg, Value: []byte(token.CmdRegister)},
		txn.Arg{Key: token.AssetArg, Value: []byte(asset)},
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "registered asset %s", asset)

	return nil
}

// mintAction is an action to mint units of an asset.
//
// - implements node.ActionTemplate
type mintAction struct{}

// Execute implements node.ActionTemplate. It submits a MINT command.
func (a mintAction) Execute(ctx node.Context) error {
	err := submit(ctx,
		txn.Arg{Key: token.CmdArg, Value: []byte(token.CmdMint)},
		txn.Arg{Key: token.AssetArg, Value: []byte(ctx.Flags.String("asset"))},
		txn.Arg{Key: token.ToArg, Value: []byte(ctx.Flags.String("to"))},
		txn.Arg{Key: token.AmountArg, Value: []byte(ctx.Flags.String("amount"))},
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "minted %s for %s",
		ctx.Flags.String("amount"), ctx.Flags.String("to"))

	return nil
}

// transferAction is an action to transfer units of an asset.
//
// - implements node.ActionTemplate
type transferAction struct{}

// Execute implements node.ActionTemplate. It submits a TRANSFER command.
func (a transferAction) Execute(ctx node.Context) error {
	err := submit(ctx,
		txn.Arg{Key: token.CmdArg, Value: []byte(token.CmdTransfer)},
		txn.Arg{Key: token.AssetArg, Value: []byte(ctx.Flags.String("asset"))},
		txn.Arg{Key: token.ToArg, Value: []byte(ctx.Flags.String("to"))},
		txn.Arg{Key: token.AmountArg, Value: []byte(ctx.Flags.String("amount"))},
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "transferred %s to %s",
		ctx.Flags.String("amount"), ctx.Flags.String("to"))

	return nil
}

// approveAction is an action to allow a spender to withdraw units from the
// client account.
//
// - implements node.ActionTemplate
type approveAction struct{}

// Execute implements node.ActionTemplate. It submits an APPROVE command.
func (a approveAction) Execute(ctx node.Context) error {
	err := submit(ctx,
		txn.Arg{Key: token.CmdArg, Value: []byte(token.CmdApprove)},
		txn.Arg{Key: token.AssetArg, Value: []byte(ctx.Flags.String("asset"))},
		txn.Arg{Key: token.SpenderArg, Value: []byte(ctx.Flags.String("spender"))},
		txn.Arg{Key: token.AmountArg, Value: []byte(ctx.Flags.String("amount"))},
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "approved %s for %s",
		ctx.Flags.String("amount"), ctx.Flags.String("spender"))

	return nil
}

// balanceAction is an action to read the balance of an account without going
// through a transaction.
//
// - implements node.ActionTemplate
type balanceAction struct{}

// Execute implements node.ActionTemplate. It prints the balance of the owner,
// which defaults to the client.
func (a balanceAction) Execute(ctx node.Context) error {
	var srvc ledger.Service
	err := ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	asset, err := hex.DecodeString(ctx.Flags.String("asset"))
	if err != nil {
		return xerrors.Errorf("failed to decode asset: %v", err)
	}

	owner := ctx.Flags.String("owner")
	if owner == "" {
		var signer crypto.Signer
		err = ctx.Injector.Resolve(&signer)
		if err != nil {
			return xerrors.Errorf("failed to resolve signer: %v", err)
		}

		owner, err = token.AccountOf(signer.GetPublicKey())
		if err != nil {
			return err
		}
	}

	tokens := token.NewLedger(asset)

	balance := new(big.Int)

	err = srvc.View(func(r store.Readable) error {
		value, err := tokens.Balance(r, owner)
		if err != nil {
			return err
		}

		balance = value

		return nil
	})
	if err != nil {
		return xerrors.Errorf("failed to read balance: %v", err)
	}

	fmt.Fprintf(ctx.Out, "%s", balance)

	return nil
}

// submit creates a transaction for the token contract and waits for the
// ledger to process it.
func submit(ctx node.Context, args ...txn.Arg) error {
	var mgr txn.Manager
	err := ctx.Injector.Resolve(&mgr)
	if err != nil {
		return xerrors.Errorf("failed to resolve transaction manager: %v", err)
	}

	var srvc ledger.Service
	err = ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	err = mgr.Sync()
	if err != nil {
		return xerrors.Errorf("failed to sync manager: %v", err)
	}

	args = append(args,
		txn.Arg{Key: native.ContractArg, Value: []byte(token.ContractName)})

	tx, err := mgr.Make(args...)
	if err != nil {
		return xerrors.Errorf("failed to make transaction: %v", err)
	}

	res, err := srvc.Add(tx)
	if err != nil {
		return xerrors.Errorf("failed to add transaction: %v", err)
	}

	if !res.Accepted {
		return xerrors.Errorf("transaction refused: %s", res.Message)
	}

	return nil
}
