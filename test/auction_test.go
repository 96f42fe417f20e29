package integration

import (
	"context"
	"encoding/hex"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/veilinglabs/klok/contracts/auction"
	"github.com/veilinglabs/klok/contracts/token"
	"github.com/veilinglabs/klok/core/access"
	"github.com/veilinglabs/klok/core/access/acl"
	"github.com/veilinglabs/klok/core/execution/native"
	"github.com/veilinglabs/klok/core/ledger"
	"github.com/veilinglabs/klok/core/ledger/serial"
	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/store/kv"
	"github.com/veilinglabs/klok/core/txn"
	"github.com/veilinglabs/klok/core/txn/signed"
	"github.com/veilinglabs/klok/crypto/bls"
)

// Open the auction, let the price decay and settle a purchase
func TestLedger_AuctionSale(t *testing.T) {
	db, err := kv.New(filepath.Join(t.TempDir(), "klok.db"))
	require.NoError(t, err)

	defer db.Close()

	clock := &manualClock{now: time.Unix(1000000, 0)}

	minter := bls.NewSigner()
	buyer := bls.NewSigner()

	srvc := newNode(t, db, clock, minter.GetPublicKey())

	mgrMinter := signed.NewManager(minter, client{})
	mgrBuyer := signed.NewManager(buyer, client{})

	buyerAccount, err := token.AccountOf(buyer.GetPublicKey())
	require.NoError(t, err)

	payment := []byte{0xaa, 0x01}
	prize := []byte{0xbb, 0x02}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := srvc.Watch(ctx)

	res := addTx(t, srvc, mgrMinter, tokenTx(token.CmdRegister,
		arg(token.AssetArg, hex.EncodeToString(payment)))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgrMinter, tokenTx(token.CmdRegister,
		arg(token.AssetArg, hex.EncodeToString(prize)))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgrMinter, tokenTx(token.CmdMint,
		arg(token.AssetArg, hex.EncodeToString(payment)),
		arg(token.ToArg, buyerAccount),
		arg(token.AmountArg, "1000"))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgrMinter, tokenTx(token.CmdMint,
		arg(token.AssetArg, hex.EncodeToString(prize)),
		arg(token.ToArg, auction.Account()),
		arg(token.AmountArg, "10"))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgrMinter, auctionTx(auction.CmdInit,
		arg(auction.AdminArg, "alice"),
		arg(auction.TokenArg, hex.EncodeToString(payment)),
		arg(auction.ItemArg, hex.EncodeToString(prize)),
		arg(auction.PriceArg, "1000"),
		arg(auction.MinPriceArg, "10"),
		arg(auction.SlopeArg, "100"))...)
	require.True(t, res.Accepted, res.Message)

	require.Equal(t, "1000", readPrice(t, srvc))

	// The price drops by one unit every 100 seconds.
	clock.advance(350 * time.Second)
	require.Equal(t, "997", readPrice(t, srvc))

	res = addTx(t, srvc, mgrBuyer, tokenTx(token.CmdApprove,
		arg(token.AssetArg, hex.EncodeToString(payment)),
		arg(token.SpenderArg, auction.Account()),
		arg(token.AmountArg, "1000"))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgrBuyer, auctionTx(auction.CmdBuy)...)
	require.True(t, res.Accepted, res.Message)

	// The buyer paid the decayed price to the admin and got the whole lot.
	require.Equal(t, "3", readBalance(t, srvc, payment, buyerAccount))
	require.Equal(t, "997", readBalance(t, srvc, payment, "alice"))
	require.Equal(t, "10", readBalance(t, srvc, prize, buyerAccount))
	require.Equal(t, "0", readBalance(t, srvc, prize, auction.Account()))

	res = addTx(t, srvc, mgrBuyer, tokenTx(token.CmdRegister,
		arg(token.AssetArg, "cc03"))...)
	require.False(t, res.Accepted)
	require.Contains(t, res.Message, "identity not authorized")

	res = addTx(t, srvc, mgrBuyer, auctionTx(auction.CmdBuy)...)
	require.False(t, res.Accepted)
	require.Contains(t, res.Message, "payment rejected")
	require.Contains(t, res.Message, "insufficient allowance")

	res = addTx(t, srvc, mgrMinter, auctionTx(auction.CmdInit,
		arg(auction.AdminArg, "alice"),
		arg(auction.TokenArg, hex.EncodeToString(payment)),
		arg(auction.ItemArg, hex.EncodeToString(prize)),
		arg(auction.PriceArg, "1000"),
		arg(auction.MinPriceArg, "10"),
		arg(auction.SlopeArg, "100"))...)
	require.False(t, res.Accepted)
	require.Equal(t, "failed to INIT: auction already initialized", res.Message)

	// The price never drops under the floor.
	clock.advance(200000 * time.Second)
	require.Equal(t, "10", readPrice(t, srvc))

	for i := 0; i < 10; i++ {
		evt := <-events
		require.Equal(t, uint64(i), evt.Index)
		require.Len(t, evt.Transactions, 1)
		require.Equal(t, i < 7, evt.Transactions[0].Accepted, evt.Transactions[0].Message)
	}

	cancel()

	_, more := <-events
	require.False(t, more)
}

// A zero decay rate opens the auction directly at the floor price
func TestLedger_AuctionAtFloor(t *testing.T) {
	db, err := kv.New(filepath.Join(t.TempDir(), "klok.db"))
	require.NoError(t, err)

	defer db.Close()

	clock := &manualClock{now: time.Unix(1000000, 0)}

	minter := bls.NewSigner()
	buyer := bls.NewSigner()

	srvc := newNode(t, db, clock, minter.GetPublicKey())

	mgrMinter := signed.NewManager(minter, client{})
	mgrBuyer := signed.NewManager(buyer, client{})

	minterAccount, err := token.AccountOf(minter.GetPublicKey())
	require.NoError(t, err)

	buyerAccount, err := token.AccountOf(buyer.GetPublicKey())
	require.NoError(t, err)

	payment := []byte{0xaa}
	prize := []byte{0xbb}

	res := addTx(t, srvc, mgrMinter, tokenTx(token.CmdRegister,
		arg(token.AssetArg, hex.EncodeToString(payment)))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgrMinter, tokenTx(token.CmdRegister,
		arg(token.AssetArg, hex.EncodeToString(prize)))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgrMinter, tokenTx(token.CmdMint,
		arg(token.AssetArg, hex.EncodeToString(payment)),
		arg(token.ToArg, buyerAccount),
		arg(token.AmountArg, "25"))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgrMinter, tokenTx(token.CmdMint,
		arg(token.AssetArg, hex.EncodeToString(prize)),
		arg(token.ToArg, auction.Account()),
		arg(token.AmountArg, "5"))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgrMinter, auctionTx(auction.CmdInit,
		arg(auction.AdminArg, minterAccount),
		arg(auction.TokenArg, hex.EncodeToString(payment)),
		arg(auction.ItemArg, hex.EncodeToString(prize)),
		arg(auction.PriceArg, "500"),
		arg(auction.MinPriceArg, "25"),
		arg(auction.SlopeArg, "0"))...)
	require.True(t, res.Accepted, res.Message)

	require.Equal(t, "25", readPrice(t, srvc))

	res = addTx(t, srvc, mgrBuyer, tokenTx(token.CmdApprove,
		arg(token.AssetArg, hex.EncodeToString(payment)),
		arg(token.SpenderArg, auction.Account()),
		arg(token.AmountArg, "25"))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgrBuyer, auctionTx(auction.CmdBuy)...)
	require.True(t, res.Accepted, res.Message)

	require.Equal(t, "0", readBalance(t, srvc, payment, buyerAccount))
	require.Equal(t, "25", readBalance(t, srvc, payment, minterAccount))
	require.Equal(t, "5", readBalance(t, srvc, prize, buyerAccount))
	require.Equal(t, "0", readBalance(t, srvc, prize, auction.Account()))
}

// The state and the transaction index survive a restart of the node
func TestLedger_Restart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klok.db")

	db, err := kv.New(path)
	require.NoError(t, err)

	clock := &manualClock{now: time.Unix(1000000, 0)}

	minter := bls.NewSigner()

	srvc := newNode(t, db, clock, minter.GetPublicKey())

	mgr := signed.NewManager(minter, client{})

	minterAccount, err := token.AccountOf(minter.GetPublicKey())
	require.NoError(t, err)

	payment := []byte{0xaa}

	res := addTx(t, srvc, mgr, tokenTx(token.CmdRegister,
		arg(token.AssetArg, hex.EncodeToString(payment)))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgr, tokenTx(token.CmdMint,
		arg(token.AssetArg, hex.EncodeToString(payment)),
		arg(token.ToArg, minterAccount),
		arg(token.AmountArg, "42"))...)
	require.True(t, res.Accepted, res.Message)

	res = addTx(t, srvc, mgr, auctionTx(auction.CmdInit,
		arg(auction.AdminArg, minterAccount),
		arg(auction.TokenArg, hex.EncodeToString(payment)),
		arg(auction.ItemArg, hex.EncodeToString(payment)),
		arg(auction.PriceArg, "1000"),
		arg(auction.MinPriceArg, "10"),
		arg(auction.SlopeArg, "100"))...)
	require.True(t, res.Accepted, res.Message)

	require.NoError(t, db.Close())

	db, err = kv.New(path)
	require.NoError(t, err)

	defer db.Close()

	clock.advance(10000 * time.Second)

	srvc = newNode(t, db, clock, minter.GetPublicKey())

	err = srvc.View(func(r store.Readable) error {
		cfg, err := auction.ReadConfig(r)
		require.NoError(t, err)
		require.Equal(t, minterAccount, cfg.Admin)

		return nil
	})
	require.NoError(t, err)

	require.Equal(t, "42", readBalance(t, srvc, payment, minterAccount))
	require.Equal(t, "900", readPrice(t, srvc))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := srvc.Watch(ctx)

	res = addTx(t, srvc, mgr, auctionTx(auction.CmdPrice)...)
	require.True(t, res.Accepted, res.Message)

	evt := <-events
	require.Equal(t, uint64(3), evt.Index)
}

// -----------------------------------------------------------------------------
// Utility functions

// newNode builds the in-process equivalent of a node: the native execution
// with both contracts registered and the serial ledger on top of the database.
// The minter identity is granted the right to register assets.
func newNode(t *testing.T, db kv.DB, clock ledger.Clock, minter access.Identity) *serial.Service {
	asrv := acl.NewService()
	grants := acl.NewStore()

	require.NoError(t, asrv.Grant(grants, token.NewCreds(), minter))

	exec := native.NewExecution()
	token.RegisterContract(exec, token.NewContract(asrv, grants))
	auction.RegisterContract(exec, auction.NewContract())

	srvc, err := serial.NewService(db, exec, serial.WithClock(clock))
	require.NoError(t, err)

	return srvc
}

func addTx(t *testing.T, srvc *serial.Service, mgr txn.Manager,
	args ...txn.Arg) ledger.TransactionResult {

	tx, err := mgr.Make(args...)
	require.NoError(t, err)

	res, err := srvc.Add(tx)
	require.NoError(t, err)

	return res
}

func tokenTx(cmd token.Command, args ...txn.Arg) []txn.Arg {
	base := []txn.Arg{
		{Key: native.ContractArg, Value: []byte(token.ContractName)},
		{Key: token.CmdArg, Value: []byte(cmd)},
	}

	return append(base, args...)
}

func auctionTx(cmd auction.Command, args ...txn.Arg) []txn.Arg {
	base := []txn.Arg{
		{Key: native.ContractArg, Value: []byte(auction.ContractName)},
		{Key: auction.CmdArg, Value: []byte(cmd)},
	}

	return append(base, args...)
}

func arg(key, value string) txn.Arg {
	return txn.Arg{Key: key, Value: []byte(value)}
}

func readBalance(t *testing.T, srvc *serial.Service, asset []byte, account string) string {
	balance := new(big.Int)

	err := srvc.View(func(r store.Readable) error {
		value, err := token.NewLedger(asset).Balance(r, account)
		if err != nil {
			return err
		}

		balance = value

		return nil
	})
	require.NoError(t, err)

	return balance.String()
}

// readPrice reads the price at the time of the ledger, the same way the price
// action and the proxy endpoint do.
func readPrice(t *testing.T, srvc *serial.Service) string {
	price := new(big.Int)
	now := srvc.Timestamp()

	err := srvc.View(func(r store.Readable) error {
		cfg, err := auction.ReadConfig(r)
		if err != nil {
			return err
		}

		price = auction.PriceAt(cfg, now)

		return nil
	})
	require.NoError(t, err)

	return price.String()
}

// manualClock is a clock moved by hand, so that the decay of the price is
// deterministic for the test.
//
// - implements ledger.Clock
type manualClock struct {
	now time.Time
}

// Now implements ledger.Clock.
func (c *manualClock) Now() time.Time {
	return c.now
}

func (c *manualClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// client provides the starting nonce of the signers. The serial ledger orders
// the transactions by arrival, so the value only seeds the manager.
//
// - implements signed.Client
type client struct{}

// GetNonce implements signed.Client.
func (client) GetNonce(access.Identity) (uint64, error) {
	return 0, nil
}
