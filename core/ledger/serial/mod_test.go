package serial

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/veilinglabs/klok/core/execution"
	"github.com/veilinglabs/klok/core/ledger"
	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/store/kv"
	"github.com/veilinglabs/klok/core/txn/signed"
	"github.com/veilinglabs/klok/internal/testing/fake"
)

func TestService_New_RestoresIndex(t *testing.T) {
	db := makeDB(t)

	srvc, err := NewService(db, writerExec{key: []byte("A"), value: []byte{1}})
	require.NoError(t, err)

	_, err = srvc.Add(makeTx(t, 0))
	require.NoError(t, err)
	_, err = srvc.Add(makeTx(t, 1))
	require.NoError(t, err)

	srvc, err = NewService(db, writerExec{key: []byte("A"), value: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, uint64(2), srvc.index)
}

func TestService_Add_Accepted(t *testing.T) {
	srvc := makeService(t, writerExec{key: []byte("ping"), value: []byte("pong")})

	res, err := srvc.Add(makeTx(t, 0))
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Empty(t, res.Message)

	err = srvc.View(func(r store.Readable) error {
		value, err := r.Get([]byte("ping"))
		require.NoError(t, err)
		require.Equal(t, []byte("pong"), value)

		return nil
	})
	require.NoError(t, err)
}

func TestService_Add_RefusedKeepsState(t *testing.T) {
	srvc := makeService(t, writerExec{key: []byte("ping"), value: []byte("pong"), refuse: true})

	logger, check := fake.CheckLog("transaction refused")
	srvc.logger = logger

	res, err := srvc.Add(makeTx(t, 0))
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.Equal(t, "refused by contract", res.Message)

	check(t)

	// The writes of a refused transaction are dropped.
	err = srvc.View(func(r store.Readable) error {
		value, err := r.Get([]byte("ping"))
		require.NoError(t, err)
		require.Nil(t, value)

		return nil
	})
	require.NoError(t, err)
}

func TestService_Add_Deletes(t *testing.T) {
	srvc := makeService(t, writerExec{key: []byte("A"), value: []byte{1}})

	_, err := srvc.Add(makeTx(t, 0))
	require.NoError(t, err)

	srvc.exec = deleterExec{key: []byte("A")}

	res, err := srvc.Add(makeTx(t, 1))
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Message)

	err = srvc.View(func(r store.Readable) error {
		value, err := r.Get([]byte("A"))
		require.NoError(t, err)
		require.Nil(t, value)

		return nil
	})
	require.NoError(t, err)
}

func TestService_Add_ExecFailure(t *testing.T) {
	srvc := makeService(t, badExec{})

	_, err := srvc.Add(makeTx(t, 0))
	require.EqualError(t, err, fake.Err("failed to execute tx"))

	// The failure happened before the transaction could consume an index.
	require.Equal(t, uint64(0), srvc.index)
}

func TestService_Add_Timestamps(t *testing.T) {
	call := fake.NewCall()

	clock := &fakeClock{times: []time.Time{
		time.Unix(100, 0),
		time.Unix(50, 0),
		time.Unix(-5, 0),
	}}

	srvc := makeService(t, recorderExec{call: call}, WithClock(clock))

	for i := 0; i < 3; i++ {
		_, err := srvc.Add(makeTx(t, uint64(i)))
		require.NoError(t, err)
	}

	require.Equal(t, 3, call.Len())
	require.Equal(t, uint64(100), call.Get(0, 0))
	// The second step keeps the previous timestamp as the clock went
	// backwards.
	require.Equal(t, uint64(100), call.Get(1, 0))
	require.Equal(t, uint64(100), call.Get(2, 0))
}

func TestService_Add_TimestampBeforeEpoch(t *testing.T) {
	call := fake.NewCall()

	clock := &fakeClock{times: []time.Time{time.Unix(-5, 0)}}

	srvc := makeService(t, recorderExec{call: call}, WithClock(clock))

	_, err := srvc.Add(makeTx(t, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(0), call.Get(0, 0))
}

func TestService_Timestamp(t *testing.T) {
	clock := &fakeClock{times: []time.Time{
		time.Unix(100, 0),
		time.Unix(100, 0),
		time.Unix(50, 0),
		time.Unix(120, 0),
	}}

	srvc := makeService(t, writerExec{}, WithClock(clock))

	require.Equal(t, uint64(100), srvc.Timestamp())

	_, err := srvc.Add(makeTx(t, 0))
	require.NoError(t, err)

	// The clock went backwards but the reads stay aligned with the steps.
	require.Equal(t, uint64(100), srvc.Timestamp())

	// Reading the time does not move the clamp of the steps forward.
	require.Equal(t, uint64(100), srvc.last)

	require.Equal(t, uint64(120), srvc.Timestamp())
}

func TestService_View_Empty(t *testing.T) {
	srvc := makeService(t, writerExec{})

	err := srvc.View(func(r store.Readable) error {
		value, err := r.Get([]byte("unknown"))
		require.NoError(t, err)
		require.Nil(t, value)

		return nil
	})
	require.NoError(t, err)

	err = srvc.View(func(store.Readable) error {
		return fake.GetError()
	})
	require.EqualError(t, err, fake.GetError().Error())
}

func TestService_Watch(t *testing.T) {
	srvc := makeService(t, writerExec{key: []byte("A"), value: []byte{1}})

	ctx, cancel := context.WithCancel(context.Background())
	events := srvc.Watch(ctx)

	tx := makeTx(t, 0)

	_, err := srvc.Add(tx)
	require.NoError(t, err)

	event := <-events
	require.Equal(t, uint64(0), event.Index)
	require.Len(t, event.Transactions, 1)
	require.True(t, event.Transactions[0].Accepted)
	require.Equal(t, tx.GetID(), event.Transactions[0].Transaction.GetID())

	cancel()

	_, more := <-events
	require.False(t, more)
}

func TestService_Watch_MultipleWatchers(t *testing.T) {
	srvc := makeService(t, writerExec{key: []byte("A"), value: []byte{1}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := srvc.Watch(ctx)
	second := srvc.Watch(ctx)

	_, err := srvc.Add(makeTx(t, 0))
	require.NoError(t, err)

	for _, events := range []<-chan ledger.Event{first, second} {
		event := <-events
		require.Equal(t, uint64(0), event.Index)
		require.Len(t, event.Transactions, 1)
		require.True(t, event.Transactions[0].Accepted)
	}
}

func TestWatchObserver_SlowWatcher(t *testing.T) {
	logger, check := fake.CheckLog("event dropped, watcher is too slow")

	obs := &watchObserver{
		logger: logger,
		ch:     make(chan ledger.Event),
	}

	obs.NotifyCallback(ledger.Event{})

	check(t)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeDB(t *testing.T) kv.DB {
	dir, err := os.MkdirTemp(os.TempDir(), "klok-ledger")
	require.NoError(t, err)

	t.Cleanup(func() {
		os.RemoveAll(dir)
	})

	db, err := kv.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	return db
}

func makeService(t *testing.T, exec execution.Service, opts ...ServiceOption) *Service {
	srvc, err := NewService(makeDB(t), exec, opts...)
	require.NoError(t, err)

	return srvc
}

func makeTx(t *testing.T, nonce uint64) *signed.Transaction {
	tx, err := signed.NewTransaction(nonce, fake.PublicKey{})
	require.NoError(t, err)

	return tx
}

// writerExec writes a key-value pair to the snapshot, then accepts or refuses
// the transaction.
type writerExec struct {
	key    []byte
	value  []byte
	refuse bool
}

func (e writerExec) Execute(snap store.Snapshot, step execution.Step) (execution.Result, error) {
	if e.key != nil {
		err := snap.Set(e.key, e.value)
		if err != nil {
			return execution.Result{}, err
		}
	}

	if e.refuse {
		return execution.Result{Accepted: false, Message: "refused by contract"}, nil
	}

	return execution.Result{Accepted: true}, nil
}

// deleterExec reads the key written by a previous transaction and deletes it.
type deleterExec struct {
	key []byte
}

func (e deleterExec) Execute(snap store.Snapshot, step execution.Step) (execution.Result, error) {
	value, err := snap.Get(e.key)
	if err != nil {
		return execution.Result{}, err
	}

	if value == nil {
		return execution.Result{Accepted: false, Message: "missing key"}, nil
	}

	err = snap.Delete(e.key)
	if err != nil {
		return execution.Result{}, err
	}

	value, err = snap.Get(e.key)
	if err != nil {
		return execution.Result{}, err
	}

	if value != nil {
		return execution.Result{Accepted: false, Message: "key is still there"}, nil
	}

	return execution.Result{Accepted: true}, nil
}

type badExec struct{}

func (badExec) Execute(store.Snapshot, execution.Step) (execution.Result, error) {
	return execution.Result{}, fake.GetError()
}

// recorderExec records the timestamp of the steps it executes.
type recorderExec struct {
	call *fake.Call
}

func (e recorderExec) Execute(snap store.Snapshot, step execution.Step) (execution.Result, error) {
	e.call.Add(step.Timestamp)

	return execution.Result{Accepted: true}, nil
}

// fakeClock returns a sequence of times, then repeats the last one.
type fakeClock struct {
	times []time.Time
	index int
}

func (c *fakeClock) Now() time.Time {
	if c.index >= len(c.times) {
		return c.times[len(c.times)-1]
	}

	now := c.times[c.index]
	c.index++

	return now
}
