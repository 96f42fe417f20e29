// Package serial implements a ledger that executes the transactions one at a
// time, in the order they arrive.
//
// Each transaction runs inside a single database transaction so that either
// every write it triggers is committed, or none of them. The writes of the
// smart contract are buffered in an overlay and flushed only when the contract
// succeeds, which means a contract does not need to undo its early writes when
// it fails halfway through.
package serial

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/veilinglabs/klok"
	"github.com/veilinglabs/klok/core"
	"github.com/veilinglabs/klok/core/execution"
	"github.com/veilinglabs/klok/core/ledger"
	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/store/kv"
	"github.com/veilinglabs/klok/core/txn"
	"golang.org/x/xerrors"
)

// stateBucket is the bucket that keeps the contract state. The contracts
// address it only through 32-byte prefixed keys, which leaves the shorter
// metadata keys free of collisions.
var stateBucket = []byte("ledgerstate")

// indexKey is the metadata key that keeps the number of processed
// transactions.
var indexKey = []byte("index")

var (
	promTxs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "klok_ledger_transactions",
		Help: "total number of processed transactions",
	}, []string{"status"})
)

func init() {
	klok.PromCollectors = append(klok.PromCollectors, promTxs)
}

// Service is a ledger that processes the transactions serially.
//
// - implements ledger.Service
type Service struct {
	db      kv.DB
	exec    execution.Service
	watcher core.Observable
	clock   ledger.Clock
	logger  zerolog.Logger

	mu sync.Mutex
	// index is the number of transactions processed so far.
	index uint64
	// last is the timestamp of the latest step. The wall clock can jump
	// backwards, the steps cannot.
	last uint64
}

// ServiceOption is the type of options to create a service.
type ServiceOption func(*Service)

// WithClock is an option to set a different clock for the service.
func WithClock(c ledger.Clock) ServiceOption {
	return func(srvc *Service) {
		srvc.clock = c
	}
}

// NewService creates a new ledger on top of the database. It restores the
// transaction index if the ledger already exists.
func NewService(db kv.DB, exec execution.Service, opts ...ServiceOption) (*Service, error) {
	srvc := &Service{
		db:      db,
		exec:    exec,
		watcher: core.NewWatcher(),
		clock:   wallClock{},
		logger:  klok.Logger,
	}

	for _, opt := range opts {
		opt(srvc)
	}

	err := db.View(func(dbtx kv.ReadableTx) error {
		bucket := dbtx.GetBucket(stateBucket)
		if bucket == nil {
			return nil
		}

		value := bucket.Get(indexKey)
		if len(value) == 8 {
			srvc.index = binary.LittleEndian.Uint64(value)
		}

		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to read index: %v", err)
	}

	return srvc, nil
}

// Add implements ledger.Service. It executes the transaction and commits its
// effects when the contract accepts it. A refused transaction still consumes
// an index.
func (srvc *Service) Add(tx txn.Transaction) (ledger.TransactionResult, error) {
	srvc.mu.Lock()
	defer srvc.mu.Unlock()

	step := execution.Step{
		Current:   tx,
		Timestamp: srvc.makeTimestamp(),
	}

	var res execution.Result

	err := srvc.db.Update(func(dbtx kv.WritableTx) error {
		bucket, err := dbtx.GetBucketOrCreate(stateBucket)
		if err != nil {
			return xerrors.Errorf("failed to create bucket: %v", err)
		}

		delta := newOverlay(bucket)

		res, err = srvc.exec.Execute(delta, step)
		if err != nil {
			// This is a critical error unrelated to the transaction itself.
			return xerrors.Errorf("failed to execute tx: %v", err)
		}

		if res.Accepted {
			err = delta.flush()
			if err != nil {
				return xerrors.Errorf("failed to write state: %v", err)
			}
		}

		buffer := make([]byte, 8)
		binary.LittleEndian.PutUint64(buffer, srvc.index+1)

		err = bucket.Set(indexKey, buffer)
		if err != nil {
			return xerrors.Errorf("failed to write index: %v", err)
		}

		return nil
	})
	if err != nil {
		return ledger.TransactionResult{}, err
	}

	result := ledger.TransactionResult{
		Transaction: tx,
		Accepted:    res.Accepted,
		Message:     res.Message,
	}

	event := ledger.Event{
		Index:        srvc.index,
		Transactions: []ledger.TransactionResult{result},
	}

	srvc.index++

	if res.Accepted {
		promTxs.WithLabelValues("accepted").Inc()

		srvc.logger.Debug().
			Hex("tx", tx.GetID()).
			Uint64("index", event.Index).
			Msg("transaction accepted")
	} else {
		promTxs.WithLabelValues("refused").Inc()

		srvc.logger.Info().
			Hex("tx", tx.GetID()).
			Uint64("index", event.Index).
			Str("reason", res.Message).
			Msg("transaction refused")
	}

	srvc.watcher.Notify(event)

	return result, nil
}

// View implements ledger.Service. It runs the callback over a read-only
// snapshot of the current state.
func (srvc *Service) View(fn func(store.Readable) error) error {
	return srvc.db.View(func(dbtx kv.ReadableTx) error {
		return fn(bucketReadable{bucket: dbtx.GetBucket(stateBucket)})
	})
}

// Timestamp implements ledger.Service. It returns the time the ledger would
// assign to a transaction arriving now, so that reads made outside of a
// transaction stay aligned with the steps.
func (srvc *Service) Timestamp() uint64 {
	srvc.mu.Lock()
	defer srvc.mu.Unlock()

	return srvc.clampTime()
}

// Watch implements ledger.Service. It returns a channel that streams the
// results of the upcoming transactions.
func (srvc *Service) Watch(ctx context.Context) <-chan ledger.Event {
	obs := &watchObserver{
		logger: srvc.logger,
		ch:     make(chan ledger.Event, 100),
	}

	srvc.watcher.Add(obs)

	go func() {
		<-ctx.Done()
		srvc.watcher.Remove(obs)
		close(obs.ch)
	}()

	return obs.ch
}

// makeTimestamp returns the Unix time of the next step and records it, so
// that the later steps cannot go backwards even when the wall clock does.
func (srvc *Service) makeTimestamp() uint64 {
	timestamp := srvc.clampTime()

	srvc.last = timestamp

	return timestamp
}

// clampTime returns the Unix time of the clock, raised to the timestamp of
// the latest step when the clock went backwards. The caller must hold the
// mutex.
func (srvc *Service) clampTime() uint64 {
	timestamp := uint64(0)

	now := srvc.clock.Now().Unix()
	if now > 0 {
		timestamp = uint64(now)
	}

	if timestamp < srvc.last {
		timestamp = srvc.last
	}

	return timestamp
}

// wallClock reads the time of the operating system.
//
// - implements ledger.Clock
type wallClock struct{}

// Now implements ledger.Clock. It returns the current time.
func (wallClock) Now() time.Time {
	return time.Now()
}

// watchObserver pushes the events to the watcher channel. An event is dropped
// when the channel is full so that a slow watcher cannot block the ledger. The
// watcher keeps its observers in a map, so only a pointer can be registered as
// the logger field makes the struct unusable as a key.
//
// - implements core.Observer
type watchObserver struct {
	logger zerolog.Logger
	ch     chan ledger.Event
}

// NotifyCallback implements core.Observer. It pushes the event to the channel
// when there is room for it.
func (obs *watchObserver) NotifyCallback(event interface{}) {
	select {
	case obs.ch <- event.(ledger.Event):
	default:
		obs.logger.Warn().Msg("event dropped, watcher is too slow")
	}
}

// bucketReadable exposes a bucket as a store.Readable. A missing bucket is
// treated as empty.
//
// - implements store.Readable
type bucketReadable struct {
	bucket kv.Bucket
}

// Get implements store.Readable. It returns the value of the key, or nil when
// it is not set.
func (r bucketReadable) Get(key []byte) ([]byte, error) {
	if r.bucket == nil {
		return nil, nil
	}

	return r.bucket.Get(key), nil
}

// overlay buffers the writes of a transaction so that they can be flushed only
// when the transaction succeeds.
//
// - implements store.Snapshot
type overlay struct {
	bucket  kv.Bucket
	upserts map[string][]byte
	deletes map[string]struct{}
}

func newOverlay(bucket kv.Bucket) *overlay {
	return &overlay{
		bucket:  bucket,
		upserts: make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Get implements store.Readable. It returns the buffered value when the key
// has been written during the transaction, otherwise the committed one.
func (o *overlay) Get(key []byte) ([]byte, error) {
	if value, found := o.upserts[string(key)]; found {
		return value, nil
	}

	if _, found := o.deletes[string(key)]; found {
		return nil, nil
	}

	return o.bucket.Get(key), nil
}

// Set implements store.Writable. It buffers the value for the key.
func (o *overlay) Set(key, value []byte) error {
	o.upserts[string(key)] = value
	delete(o.deletes, string(key))

	return nil
}

// Delete implements store.Writable. It marks the key as deleted.
func (o *overlay) Delete(key []byte) error {
	delete(o.upserts, string(key))
	o.deletes[string(key)] = struct{}{}

	return nil
}

// flush writes the buffered changes to the bucket.
func (o *overlay) flush() error {
	for key := range o.deletes {
		err := o.bucket.Delete([]byte(key))
		if err != nil {
			return err
		}
	}

	for key, value := range o.upserts {
		err := o.bucket.Set([]byte(key), value)
		if err != nil {
			return err
		}
	}

	return nil
}
