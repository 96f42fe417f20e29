// Package controller implements a controller for the token contract. It
// registers the contract when the daemon starts and provides the commands to
// manage the assets.
package controller

import (
	"path/filepath"

	"github.com/veilinglabs/klok/cli"
	"github.com/veilinglabs/klok/cli/node"
	"github.com/veilinglabs/klok/contracts/token"
	"github.com/veilinglabs/klok/core/access"
	"github.com/veilinglabs/klok/core/execution/native"
	"golang.org/x/xerrors"
)

// newStore is the function used to create the new store. It allows us to
// create a different store in the tests.
var newStore = func(path string) (accessStore, error) {
	return newJstore(path)
}

// miniController is a CLI initializer to register the token contract and to
// interact with its assets.
//
// - implements node.Initializer
type miniController struct{}

// NewController creates a new minimal controller for the token contract.
func NewController() node.Initializer {
	return miniController{}
}

// SetCommands implements node.Initializer. It sets the commands to control the
// contract.
func (miniController) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("token")
	cmd.SetDescription("Handles the token contract")

	sub := cmd.SetSubCommand("grant")
	sub.SetDescription("grant an identity the right to register assets")
	sub.SetFlags(cli.StringSliceFlag{
		Name:     "identity",
		Usage:    "identity to add, in the form of bls public keys",
		Required: true,
	})
	sub.SetAction(builder.MakeAction(grantAction{}))

	sub = cmd.SetSubCommand("asset")
	sub.SetDescription("generate a new asset identifier")
	sub.SetAction(builder.MakeAction(assetAction{}))

	sub = cmd.SetSubCommand("register")
	sub.SetDescription("register an asset with the client as its minter")
	sub.SetFlags(assetFlag)
	sub.SetAction(builder.MakeAction(registerAction{}))

	sub = cmd.SetSubCommand("mint")
	sub.SetDescription("mint units of an asset for an account")
	sub.SetFlags(assetFlag, cli.StringFlag{
		Name:     "to",
		Usage:    "account receiving the units",
		Required: true,
	}, amountFlag)
	sub.SetAction(builder.MakeAction(mintAction{}))

	sub = cmd.SetSubCommand("transfer")
	sub.SetDescription("transfer units of an asset to an account")
	sub.SetFlags(assetFlag, cli.StringFlag{
		Name:     "to",
		Usage:    "account receiving the units",
		Required: true,
	}, amountFlag)
	sub.SetAction(builder.MakeAction(transferAction{}))

	sub = cmd.SetSubCommand("approve")
	sub.SetDescription("allow a spender to withdraw units from the client account")
	sub.SetFlags(assetFlag, cli.StringFlag{
		Name:     "spender",
		Usage:    "account allowed to withdraw",
		Required: true,
	}, amountFlag)
	sub.SetAction(builder.MakeAction(approveAction{}))

	sub = cmd.SetSubCommand("balance")
	sub.SetDescription("read the balance of an account")
	sub.SetFlags(assetFlag, cli.StringFlag{
		Name:  "owner",
		Usage: "account to read, defaults to the client",
	})
	sub.SetAction(builder.MakeAction(balanceAction{}))
}

var assetFlag = cli.StringFlag{
	Name:     "asset",
	Usage:    "hex identifier of the asset",
	Required: true,
}

var amountFlag = cli.StringFlag{
	Name:     "amount",
	Usage:    "decimal amount of units",
	Required: true,
}

// OnStart implements node.Initializer. It registers the token contract.
func (m miniController) OnStart(flags cli.Flags, inj node.Injector) error {
	var asrvc access.Service
	err := inj.Resolve(&asrvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve access service: %v", err)
	}

	var exec *native.Service
	err = inj.Resolve(&exec)
	if err != nil {
		return xerrors.Errorf("failed to resolve native service: %v", err)
	}

	store, err := newStore(filepath.Join(flags.Path("config"), "access.json"))
	if err != nil {
		return xerrors.Errorf("failed to create access store: %v", err)
	}

	contract := token.NewContract(asrvc, store)
	token.RegisterContract(exec, contract)

	inj.Inject(store)

	return nil
}

// OnStop implements node.Initializer.
func (miniController) OnStop(inj node.Injector) error {
	return nil
}
