// Package auction implements a native contract that sells a single lot at a
// price decaying with the ledger time.
//
// The auction is configured once with the INIT command, which records the
// admin account paid by the sale, the payment and prize assets, the starting
// and minimum prices and the decay rate. The price then drops by one unit
// every decay-rate seconds until it reaches the minimum, where it stays.
//
// A purchase settles in two legs inside a single execution: the price is
// taken from the allowance the buyer gave to the contract and paid to the
// admin, then the whole prize balance of the contract moves to the buyer. The
// host discards all writes when the execution fails, so a rejected payment
// leaves every balance untouched.
package auction

import (
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/veilinglabs/klok"
	"github.com/veilinglabs/klok/contracts/token"
	"github.com/veilinglabs/klok/core/access"
	"github.com/veilinglabs/klok/core/execution"
	"github.com/veilinglabs/klok/core/execution/native"
	"github.com/veilinglabs/klok/core/store"
	"golang.org/x/xerrors"
)

// commands defines the commands of the auction contract. This interface helps
// in testing the contract.
type commands interface {
	initialize(snap store.Snapshot, step execution.Step) error
	buy(snap store.Snapshot, step execution.Step) error
	price(snap store.Snapshot, step execution.Step) error
	nonce(snap store.Snapshot, step execution.Step) error
}

const (
	// ContractName is the name of the contract.
	ContractName = "github.com/veilinglabs/klok.Auction"

	// ContractUID is the unique (4-bytes) identifier of the contract, used as
	// the prefix of its keys in the store.
	ContractUID = "AUCT"

	// AdminArg is the argument's name in the transaction that contains the
	// account paid by the sale.
	AdminArg = "auction:admin"

	// TokenArg is the argument's name in the transaction that contains the
	// hex-encoded identifier of the payment asset.
	TokenArg = "auction:token"

	// ItemArg is the argument's name in the transaction that contains the
	// hex-encoded identifier of the prize asset.
	ItemArg = "auction:item"

	// PriceArg is the argument's name in the transaction that contains the
	// starting price.
	PriceArg = "auction:price"

	// MinPriceArg is the argument's name in the transaction that contains the
	// floor price.
	MinPriceArg = "auction:min_price"

	// SlopeArg is the argument's name in the transaction that contains the
	// number of seconds for the price to drop by one unit.
	SlopeArg = "auction:slope"

	// CmdArg is the argument's name to indicate the kind of command we want
	// to run on the contract. Should be one of the Command type.
	CmdArg = "auction:command"
)

// Command defines a type of command for the auction contract.
type Command string

const (
	// CmdInit defines the command to open the auction. It can succeed only
	// once for the life of the contract.
	CmdInit Command = "INIT"

	// CmdBuy defines the command to buy the lot at the current price.
	CmdBuy Command = "BUY"

	// CmdPrice defines the command to display the current price.
	CmdPrice Command = "PRICE"

	// CmdNonce defines the command to display the stored nonce of the admin.
	CmdNonce Command = "NONCE"
)

var promPrice = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "klok_auction_price",
	Help: "Last price computed by the auction contract.",
})

func init() {
	klok.PromCollectors = append(klok.PromCollectors, promPrice)
}

// Account returns the account of the contract itself. It holds the prize
// until the sale and receives the allowances of the buyers.
func Account() string {
	return access.NewContractIdentity(ContractName).String()
}

// RegisterContract registers the auction contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Contract is a smart contract that sells a single lot at a decaying price.
// Opening the auction is first come first served, so the contract needs no
// access control of its own.
//
// - implements native.Contract
type Contract struct {
	// cmd provides the commands that can be executed by this smart contract
	cmd commands

	// printer is the output used by the PRICE and NONCE commands
	printer io.Writer
}

// NewContract creates a new auction contract.
func NewContract() Contract {
	contract := Contract{
		printer: infoLog{},
	}

	contract.cmd = auctionCommand{Contract: &contract}

	return contract
}

// Execute implements native.Contract. It runs the appropriate command.
func (c Contract) Execute(snap store.Snapshot, step execution.Step) error {
	cmd := step.Current.GetArg(CmdArg)
	if len(cmd) == 0 {
		return xerrors.Errorf("'%s' not found in tx arg", CmdArg)
	}

	switch Command(cmd) {
	case CmdInit:
		err := c.cmd.initialize(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to INIT: %v", err)
		}
	case CmdBuy:
		err := c.cmd.buy(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to BUY: %v", err)
		}
	case CmdPrice:
		err := c.cmd.price(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to PRICE: %v", err)
		}
	case CmdNonce:
		err := c.cmd.nonce(snap, step)
		if err != nil {
			return xerrors.Errorf("failed to NONCE: %v", err)
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

// auctionCommand implements the commands of the auction contract.
//
// - implements commands
type auctionCommand struct {
	*Contract
}

// initialize implements commands. It performs the INIT command.
func (c auctionCommand) initialize(snap store.Snapshot, step execution.Step) error {
	admin := string(step.Current.GetArg(AdminArg))
	if admin == "" {
		return xerrors.Errorf("'%s' not found in tx arg", AdminArg)
	}

	payment, err := assetArg(step, TokenArg)
	if err != nil {
		return err
	}

	item, err := assetArg(step, ItemArg)
	if err != nil {
		return err
	}

	price, err := amountArg(step, PriceArg)
	if err != nil {
		return err
	}

	minPrice, err := amountArg(step, MinPriceArg)
	if err != nil {
		return err
	}

	slope, err := amountArg(step, SlopeArg)
	if err != nil {
		return err
	}

	cfg := Config{
		Admin:     admin,
		Token:     payment,
		Item:      item,
		Price:     price,
		MinPrice:  minPrice,
		Slope:     slope,
		Timestamp: step.Timestamp,
	}

	err = cfg.Write(snap)
	if err != nil {
		return err
	}

	setPriceGauge(price)

	klok.Logger.Info().Str("contract", ContractName).
		Msgf("auction opened for item %x at %s", item, price)

	return nil
}

// buy implements commands. It performs the BUY command. The payment goes
// first so that a rejected payment aborts the execution before the prize
// moves, and the host then discards the whole execution.
func (c auctionCommand) buy(snap store.Snapshot, step execution.Step) error {
	cfg, err := ReadConfig(snap)
	if err != nil {
		return err
	}

	price := PriceAt(cfg, step.Timestamp)

	buyer, err := token.AccountOf(step.Current.GetIdentity())
	if err != nil {
		return err
	}

	err = token.NewLedger(cfg.Token).TransferFrom(snap, Account(), buyer, cfg.Admin, price)
	if err != nil {
		return xerrors.Errorf("payment rejected: %v", err)
	}

	prize := token.NewLedger(cfg.Item)

	stock, err := prize.Balance(snap, Account())
	if err != nil {
		return err
	}

	err = prize.Transfer(snap, Account(), buyer, stock)
	if err != nil {
		return xerrors.Errorf("failed to award item: %v", err)
	}

	setPriceGauge(price)

	klok.Logger.Info().Str("contract", ContractName).
		Msgf("sold %s of item %x for %s to %s", stock, cfg.Item, price, buyer)

	return nil
}

// price implements commands. It performs the PRICE command.
func (c auctionCommand) price(snap store.Snapshot, step execution.Step) error {
	cfg, err := ReadConfig(snap)
	if err != nil {
		return err
	}

	price := PriceAt(cfg, step.Timestamp)

	setPriceGauge(price)

	fmt.Fprintf(c.printer, "%s", price)

	return nil
}

// nonce implements commands. It performs the NONCE command.
func (c auctionCommand) nonce(snap store.Snapshot, step execution.Step) error {
	cfg, err := ReadConfig(snap)
	if err != nil {
		return err
	}

	nonce, err := Nonce(snap, cfg.Admin)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.printer, "%s", nonce)

	return nil
}

// assetArg reads a mandatory asset identifier of the transaction.
func assetArg(step execution.Step, key string) ([]byte, error) {
	value := step.Current.GetArg(key)
	if len(value) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", key)
	}

	asset, err := hex.DecodeString(string(value))
	if err != nil {
		return nil, xerrors.Errorf("failed to decode asset from tx arg: %v", err)
	}

	return asset, nil
}

// amountArg reads a mandatory amount argument of the transaction.
func amountArg(step execution.Step, key string) (*big.Int, error) {
	value := step.Current.GetArg(key)
	if len(value) == 0 {
		return nil, xerrors.Errorf("'%s' not found in tx arg", key)
	}

	return token.ParseAmount(value)
}

func setPriceGauge(price *big.Int) {
	value, _ := new(big.Float).SetInt(price).Float64()

	promPrice.Set(value)
}

// infoLog defines an output using zerolog
//
// - implements io.writer
type infoLog struct{}

func (h infoLog) Write(p []byte) (int, error) {
	klok.Logger.Info().Msg(string(p))

	return len(p), nil
}
