// Package controller implements a controller for the signed transaction
// manager. It loads the private key of the node, or creates it the first time,
// and injects a manager that reads the nonces from the ledger.
package controller

import (
	"path/filepath"

	"github.com/veilinglabs/klok/cli"
	"github.com/veilinglabs/klok/cli/node"
	"github.com/veilinglabs/klok/contracts/auction"
	"github.com/veilinglabs/klok/core/access"
	"github.com/veilinglabs/klok/core/ledger"
	"github.com/veilinglabs/klok/core/store"
	"github.com/veilinglabs/klok/core/txn/signed"
	"github.com/veilinglabs/klok/crypto/bls"
	"github.com/veilinglabs/klok/crypto/loader"
	"golang.org/x/xerrors"
)

const privateKeyFile = "private.key"

type mgrController struct{}

// NewManagerController creates a new controller that will inject a transaction
// manager in the context.
func NewManagerController() node.Initializer {
	return mgrController{}
}

func (mgrController) SetCommands(node.Builder) {}

// OnStart implements node.Initializer. It loads the signer of the node and
// injects the transaction manager.
func (mgrController) OnStart(flags cli.Flags, inj node.Injector) error {
	var srvc ledger.Service
	err := inj.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	fload := loader.NewFileLoader(filepath.Join(flags.Path("config"), privateKeyFile))

	signerdata, err := fload.LoadOrCreate(newKeyGenerator())
	if err != nil {
		return xerrors.Errorf("failed to load the signer: %v", err)
	}

	signer, err := bls.NewSignerFromBytes(signerdata)
	if err != nil {
		return xerrors.Errorf("failed to restore the signer: %v", err)
	}

	inj.Inject(signer)
	inj.Inject(signed.NewManager(signer, client{srvc: srvc}))

	return nil
}

func (mgrController) OnStop(node.Injector) error {
	return nil
}

// keyGenerator generates the private key of the node.
//
// - implements loader.Generator
type keyGenerator struct{}

func newKeyGenerator() loader.Generator {
	return keyGenerator{}
}

// Generate implements loader.Generator. It returns the marshaled data of a
// private key.
func (g keyGenerator) Generate() ([]byte, error) {
	signer := bls.NewSigner()

	data, err := signer.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal signer: %v", err)
	}

	return data, nil
}

// client is a local client for the manager to read the nonce of an identity
// from the registry kept by the auction contract.
//
// - implements signed.Client
type client struct {
	srvc ledger.Service
}

// GetNonce implements signed.Client. It returns the stored nonce of the
// identity.
func (c client) GetNonce(ident access.Identity) (uint64, error) {
	text, err := ident.MarshalText()
	if err != nil {
		return 0, xerrors.Errorf("failed to marshal identity: %v", err)
	}

	nonce := uint64(0)

	err = c.srvc.View(func(r store.Readable) error {
		value, err := auction.Nonce(r, string(text))
		if err != nil {
			return err
		}

		nonce = value.Uint64()

		return nil
	})
	if err != nil {
		return 0, xerrors.Errorf("failed to read nonce: %v", err)
	}

	return nonce, nil
}
