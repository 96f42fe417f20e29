package auction

import (
	"encoding/binary"
	"math/big"

	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/store/prefixed"
	"golang.org/x/xerrors"
)

// ErrNotInitialized is returned when the auction is read before a successful
// INIT command.
var ErrNotInitialized = xerrors.New("auction not initialized")

var (
	keyAdmin     = []byte("admin")
	keyToken     = []byte("token")
	keyItem      = []byte("item")
	keyPrice     = []byte("price")
	keyMinPrice  = []byte("min_price")
	keyTimestamp = []byte("timestamp")
	keySlope     = []byte("slope")
)

// Config holds the parameters of the auction, written once by the INIT
// command.
type Config struct {
	// Admin is the account receiving the payment of the sale.
	Admin string

	// Token is the asset the price is denominated in.
	Token []byte

	// Item is the asset sold by the auction.
	Item []byte

	// Price is the price at the opening of the auction.
	Price *big.Int

	// MinPrice is the floor under which the price never drops.
	MinPrice *big.Int

	// Slope is the number of seconds of ledger time required for the price to
	// drop by one unit.
	Slope *big.Int

	// Timestamp is the ledger time at the opening of the auction.
	Timestamp uint64
}

// Write stores the configuration of the auction. It returns an error if a
// configuration has already been written, as an auction opens only once.
func (cfg Config) Write(snap store.Snapshot) error {
	snap = prefixed.NewSnapshot(ContractUID, snap)

	current, err := snap.Get(keyAdmin)
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	if len(current) > 0 {
		return xerrors.New("auction already initialized")
	}

	timestamp := make([]byte, 8)
	binary.LittleEndian.PutUint64(timestamp, cfg.Timestamp)

	entries := []struct {
		key   []byte
		value []byte
	}{
		{keyAdmin, []byte(cfg.Admin)},
		{keyToken, cfg.Token},
		{keyItem, cfg.Item},
		{keyPrice, cfg.Price.Bytes()},
		{keyMinPrice, cfg.MinPrice.Bytes()},
		{keySlope, cfg.Slope.Bytes()},
		{keyTimestamp, timestamp},
	}

	for _, entry := range entries {
		err = snap.Set(entry.key, entry.value)
		if err != nil {
			return xerrors.Errorf("store failed to write: %v", err)
		}
	}

	return nil
}

// ReadConfig returns the configuration of the auction, or ErrNotInitialized
// if no INIT command succeeded yet.
func ReadConfig(snap store.Readable) (Config, error) {
	reader := prefixed.NewReadable(ContractUID, snap)

	admin, err := reader.Get(keyAdmin)
	if err != nil {
		return Config{}, xerrors.Errorf("store failed: %v", err)
	}

	if len(admin) == 0 {
		return Config{}, ErrNotInitialized
	}

	cfg := Config{Admin: string(admin)}

	cfg.Token, err = reader.Get(keyToken)
	if err != nil {
		return Config{}, xerrors.Errorf("store failed: %v", err)
	}

	cfg.Item, err = reader.Get(keyItem)
	if err != nil {
		return Config{}, xerrors.Errorf("store failed: %v", err)
	}

	price, err := reader.Get(keyPrice)
	if err != nil {
		return Config{}, xerrors.Errorf("store failed: %v", err)
	}

	cfg.Price = new(big.Int).SetBytes(price)

	minPrice, err := reader.Get(keyMinPrice)
	if err != nil {
		return Config{}, xerrors.Errorf("store failed: %v", err)
	}

	cfg.MinPrice = new(big.Int).SetBytes(minPrice)

	slope, err := reader.Get(keySlope)
	if err != nil {
		return Config{}, xerrors.Errorf("store failed: %v", err)
	}

	cfg.Slope = new(big.Int).SetBytes(slope)

	timestamp, err := reader.Get(keyTimestamp)
	if err != nil {
		return Config{}, xerrors.Errorf("store failed: %v", err)
	}

	if len(timestamp) == 8 {
		cfg.Timestamp = binary.LittleEndian.Uint64(timestamp)
	}

	return cfg, nil
}

// PriceAt computes the price of the item at the given ledger time. The price
// starts at the opening price and drops by one unit every Slope seconds,
// never going under the minimum price. The ledger time is monotonic so the
// elapsed time cannot be negative, but it is clamped anyway so that the
// function is total.
func PriceAt(cfg Config, now uint64) *big.Int {
	var elapsed uint64
	if now > cfg.Timestamp {
		elapsed = now - cfg.Timestamp
	}

	price := new(big.Int).Set(cfg.Price)

	if cfg.Slope.Sign() > 0 {
		steps := new(big.Int).Div(new(big.Int).SetUint64(elapsed), cfg.Slope)

		price.Sub(price, steps)
	} else {
		// A zero decay rate is the limit of an instant decay.
		price.Set(cfg.MinPrice)
	}

	if price.Cmp(cfg.MinPrice) < 0 {
		price.Set(cfg.MinPrice)
	}

	return price
}

// Nonce returns the stored nonce of an account. The registry is meant to
// guard authenticated admin operations but no command increments it yet, so
// the value stays at zero until such an operation exists.
func Nonce(snap store.Readable, account string) (*big.Int, error) {
	value, err := prefixed.NewReadable(ContractUID, snap).Get(nonceKey(account))
	if err != nil {
		return nil, xerrors.Errorf("store failed: %v", err)
	}

	return new(big.Int).SetBytes(value), nil
}

func nonceKey(account string) []byte {
	return []byte("nonce:" + account)
}
