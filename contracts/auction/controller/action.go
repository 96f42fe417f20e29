// This file implements the actions of the controller.

package controller

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"

	"github.com/veilinglabs/klok/cli/node"
	"github.com/veilinglabs/klok/contracts/auction"
	"github.com/veilinglabs/klok/contracts/token"
	"github.com/veilinglabs/klok/core/execution/native"
	"github.com/veilinglabs/klok/core/ledger"
	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/txn"
	"github.com/veilinglabs/klok/crypto"
	"github.com/veilinglabs/klok/proxy"
	"golang.org/x/xerrors"
)

// initAction is an action to open the auction.
//
// - implements node.ActionTemplate
type initAction struct{}

// Execute implements node.ActionTemplate. It submits an INIT command with the
// parameters of the sale. The admin account defaults to the client.
func (a initAction) Execute(ctx node.Context) error {
	admin := ctx.Flags.String("admin")
	if admin == "" {
		var signer crypto.Signer
		err := ctx.Injector.Resolve(&signer)
		if err != nil {
			return xerrors.Errorf("failed to resolve signer: %v", err)
		}

		admin, err = token.AccountOf(signer.GetPublicKey())
		if err != nil {
			return err
		}
	}

	err := submit(ctx,
		txn.Arg{Key: auction.CmdArg, Value: []byte(auction.CmdInit)},
		txn.Arg{Key: auction.AdminArg, Value: []byte(admin)},
		txn.Arg{Key: auction.TokenArg, Value: []byte(ctx.Flags.String("token"))},
		txn.Arg{Key: auction.ItemArg, Value: []byte(ctx.Flags.String("item"))},
		txn.Arg{Key: auction.PriceArg, Value: []byte(ctx.Flags.String("price"))},
		txn.Arg{Key: auction.MinPriceArg, Value: []byte(ctx.Flags.String("minprice"))},
		txn.Arg{Key: auction.SlopeArg, Value: []byte(ctx.Flags.String("slope"))},
	)
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.Out, "auction opened at %s", ctx.Flags.String("price"))

	return nil
}

// accountAction is an action to display the account of the contract, which
// receives the prize stock and the allowances of the buyers.
//
// - implements node.ActionTemplate
type accountAction struct{}

// Execute implements node.ActionTemplate. It prints the contract account.
func (a accountAction) Execute(ctx node.Context) error {
	fmt.Fprint(ctx.Out, auction.Account())

	return nil
}

// buyAction is an action to buy the item at the current price.
//
// - implements node.ActionTemplate
type buyAction struct{}

// Execute implements node.ActionTemplate. It submits a BUY command.
func (a buyAction) Execute(ctx node.Context) error {
	err := submit(ctx,
		txn.Arg{Key: auction.CmdArg, Value: []byte(auction.CmdBuy)},
	)
	if err != nil {
		return err
	}

	fmt.Fprint(ctx.Out, "purchase settled")

	return nil
}

// priceAction is an action to read the current price without going through a
// transaction.
//
// - implements node.ActionTemplate
type priceAction struct{}

// Execute implements node.ActionTemplate. It prints the price of the item at
// the current time of the ledger, which is the time a purchase submitted now
// would settle at.
func (a priceAction) Execute(ctx node.Context) error {
	var srvc ledger.Service
	err := ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	price := new(big.Int)
	now := srvc.Timestamp()

	err = srvc.View(func(r store.Readable) error {
		cfg, err := auction.ReadConfig(r)
		if err != nil {
			return err
		}

		price = auction.PriceAt(cfg, now)

		return nil
	})
	if err != nil {
		return xerrors.Errorf("failed to read price: %v", err)
	}

	fmt.Fprintf(ctx.Out, "%s", price)

	return nil
}

// nonceAction is an action to read the stored nonce of the admin account.
//
// - implements node.ActionTemplate
type nonceAction struct{}

// Execute implements node.ActionTemplate. It prints the nonce of the admin.
func (a nonceAction) Execute(ctx node.Context) error {
	var srvc ledger.Service
	err := ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	nonce := new(big.Int)

	err = srvc.View(func(r store.Readable) error {
		cfg, err := auction.ReadConfig(r)
		if err != nil {
			return err
		}

		nonce, err = auction.Nonce(r, cfg.Admin)

		return err
	})
	if err != nil {
		return xerrors.Errorf("failed to read nonce: %v", err)
	}

	fmt.Fprintf(ctx.Out, "%s", nonce)

	return nil
}

// serveAction is an action to expose the price over the proxy.
//
// - implements node.ActionTemplate
type serveAction struct{}

// Execute implements node.ActionTemplate. It registers the price endpoint on
// the proxy.
func (a serveAction) Execute(ctx node.Context) error {
	var p proxy.Proxy
	err := ctx.Injector.Resolve(&p)
	if err != nil {
		return xerrors.Errorf("failed to resolve the proxy: %v", err)
	}

	var srvc ledger.Service
	err = ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	path := ctx.Flags.String("path")

	p.RegisterHandler(path, priceHandler(srvc))

	fmt.Fprintf(ctx.Out, "registered price endpoint on %q", path)

	return nil
}

// priceResponse is the json body returned by the price endpoint.
type priceResponse struct {
	Price string `json:"price"`
}

// priceHandler returns a handler replying with the price at the time of the
// ledger, so that the displayed value cannot undercut a concurrent purchase.
func priceHandler(srvc ledger.Service) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		var price *big.Int

		now := srvc.Timestamp()

		err := srvc.View(func(r store.Readable) error {
			cfg, err := auction.ReadConfig(r)
			if err != nil {
				return err
			}

			price = auction.PriceAt(cfg, now)

			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		json.NewEncoder(w).Encode(priceResponse{Price: price.String()})
	}
}

// submit creates a transaction for the auction contract and waits for the
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
		txn.Arg{Key: native.ContractArg, Value: []byte(auction.ContractName)})

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
