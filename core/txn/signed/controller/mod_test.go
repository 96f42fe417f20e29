package controller

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/veilinglabs/klok/cli/node"
	"github.com/veilinglabs/klok/core/ledger"
	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/txn"
	"github.com/veilinglabs/klok/internal/testing/fake"
)

func TestMgrController_SetCommands(t *testing.T) {
	NewManagerController().SetCommands(nil)
}

func TestMgrController_OnStart(t *testing.T) {
	ctrl := NewManagerController()

	inj := node.NewInjector()
	flags := node.FlagSet{"config": t.TempDir()}

	err := ctrl.OnStart(flags, inj)
	require.EqualError(t, err,
		"injector: couldn't find dependency for 'ledger.Service'")

	inj.Inject(fakeLedger{})

	err = ctrl.OnStart(flags, inj)
	require.NoError(t, err)

	var mgr txn.Manager
	require.NoError(t, inj.Resolve(&mgr))

	// The key has been stored so a second start recovers the same signer.
	err = ctrl.OnStart(flags, inj)
	require.NoError(t, err)

	require.NoError(t, ctrl.OnStop(inj))
}

func TestMgrController_CorruptKey_OnStart(t *testing.T) {
	ctrl := NewManagerController()

	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, privateKeyFile), []byte{1, 2, 3}, 0600)
	require.NoError(t, err)

	inj := node.NewInjector()
	inj.Inject(fakeLedger{})

	err = ctrl.OnStart(node.FlagSet{"config": dir}, inj)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to restore the signer: ")
}

func TestClient_GetNonce(t *testing.T) {
	c := client{srvc: fakeLedger{}}

	nonce, err := c.GetNonce(fake.PublicKey{})
	require.NoError(t, err)
	require.Equal(t, uint64(0), nonce)

	_, err = c.GetNonce(fake.NewBadPublicKey())
	require.EqualError(t, err, fake.Err("failed to marshal identity"))

	c.srvc = fakeLedger{err: fake.GetError()}
	_, err = c.GetNonce(fake.PublicKey{})
	require.EqualError(t, err, fake.Err("failed to read nonce"))
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeLedger struct {
	ledger.Service
	err error
}

func (l fakeLedger) View(fn func(store.Readable) error) error {
	if l.err != nil {
		return l.err
	}

	return fn(fake.NewSnapshot())
}
