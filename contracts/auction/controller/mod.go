// Package controller implements a controller for the auction contract.
//
// It registers the contract on the execution service and exposes the commands
// to open the auction, buy the lot and read the price without a transaction.
package controller

import (
	"github.com/veilinglabs/klok/cli"
	"github.com/veilinglabs/klok/cli/node"
	"github.com/veilinglabs/klok/contracts/auction"
	"github.com/veilinglabs/klok/core/execution/native"
	"golang.org/x/xerrors"
)

// miniController is a controller to register the auction contract and its
// commands.
//
// - implements node.Initializer
type miniController struct{}

// NewController creates a new minimal controller for the auction contract.
func NewController() node.Initializer {
	return miniController{}
}

// SetCommands implements node.Initializer. It sets the commands to control the
// contract.
func (miniController) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("auction")
	cmd.SetDescription("Handles the auction contract")

	sub := cmd.SetSubCommand("init")
	sub.SetDescription("open the auction, which can be done only once")
	sub.SetFlags(cli.StringFlag{
		Name:  "admin",
		Usage: "account paid by the sale, defaults to the client",
	}, cli.StringFlag{
		Name:     "token",
		Usage:    "hex identifier of the payment asset",
		Required: true,
	}, cli.StringFlag{
		Name:     "item",
		Usage:    "hex identifier of the prize asset",
		Required: true,
	}, cli.StringFlag{
		Name:     "price",
		Usage:    "starting price of the item",
		Required: true,
	}, cli.StringFlag{
		Name:     "minprice",
		Usage:    "floor under which the price never drops",
		Required: true,
	}, cli.StringFlag{
		Name:     "slope",
		Usage:    "seconds for the price to drop by one unit",
		Required: true,
	})
	sub.SetAction(builder.MakeAction(initAction{}))

	sub = cmd.SetSubCommand("account")
	sub.SetDescription("print the account of the contract")
	sub.SetAction(builder.MakeAction(accountAction{}))

	sub = cmd.SetSubCommand("buy")
	sub.SetDescription("buy the item at the current price")
	sub.SetAction(builder.MakeAction(buyAction{}))

	sub = cmd.SetSubCommand("price")
	sub.SetDescription("read the current price of the item")
	sub.SetAction(builder.MakeAction(priceAction{}))

	sub = cmd.SetSubCommand("nonce")
	sub.SetDescription("read the stored nonce of the admin account")
	sub.SetAction(builder.MakeAction(nonceAction{}))

	sub = cmd.SetSubCommand("serve")
	sub.SetDescription("register the price endpoint on the proxy")
	sub.SetFlags(cli.StringFlag{
		Name:  "path",
		Usage: "path of the price endpoint",
		Value: "/auction/price",
	})
	sub.SetAction(builder.MakeAction(serveAction{}))
}

// OnStart implements node.Initializer. It registers the auction contract.
func (m miniController) OnStart(flags cli.Flags, inj node.Injector) error {
	var exec *native.Service
	err := inj.Resolve(&exec)
	if err != nil {
		return xerrors.Errorf("failed to resolve native service: %v", err)
	}

	auction.RegisterContract(exec, auction.NewContract())

	return nil
}

// OnStop implements node.Initializer. It does nothing.
func (miniController) OnStop(node.Injector) error {
	return nil
}
