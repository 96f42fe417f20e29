// Package main implements the auction node.
//
// The daemon opens a key/value database, a transaction ledger and the token
// and auction contracts on top of it. The other commands talk to a running
// daemon through its socket.
//
//	go run mod.go start
//	go run mod.go --config /tmp/node token asset
//	go run mod.go --config /tmp/node auction init --token XX --item XX \
//	  --price 1000 --minprice 1 --slope 60
//	go run mod.go --config /tmp/node auction buy
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/veilinglabs/klok/cli/node"
	auction "github.com/veilinglabs/klok/contracts/auction/controller"
	token "github.com/veilinglabs/klok/contracts/token/controller"
	serial "github.com/veilinglabs/klok/core/ledger/serial/controller"
	db "github.com/veilinglabs/klok/core/store/kv/controller"
	signed "github.com/veilinglabs/klok/core/txn/signed/controller"
	proxy "github.com/veilinglabs/klok/proxy/http/controller"
)

// config contains the different parameters to run the program
type config struct {
	Channel chan os.Signal
	Writer  io.Writer
}

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
	}
}

func run(args []string) error {
	return runWithCfg(args, config{})
}

func runWithCfg(args []string, cfg config) error {
	builder := node.NewBuilderWithCfg(
		cfg.Channel,
		cfg.Writer,
		db.NewMinimal(),
		serial.NewMinimal(),
		signed.NewManagerController(),
		proxy.NewController(),
		token.NewController(),
		auction.NewController(),
	)

	app := builder.Build()

	err := app.Run(args)
	if err != nil {
		return err
	}

	return nil
}
