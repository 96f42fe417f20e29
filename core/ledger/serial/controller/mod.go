// Package controller implements a controller for the serial ledger. It opens
// the ledger on top of the key/value database and injects it alongside the
// execution and access services the contracts register against.
package controller

import (
	"github.com/veilinglabs/klok/cli"
	"github.com/veilinglabs/klok/cli/node"
	"github.com/veilinglabs/klok/core/access/acl"
	"github.com/veilinglabs/klok/core/execution/native"
	"github.com/veilinglabs/klok/core/ledger/serial"
	"github.com/veilinglabs/klok/core/store/kv"
	"golang.org/x/xerrors"
)

type minimal struct{}

// NewMinimal creates a new minimal controller for the serial ledger.
func NewMinimal() node.Initializer {
	return minimal{}
}

func (minimal) SetCommands(builder node.Builder) {}

// OnStart implements node.Initializer. It creates the ledger and injects the
// services.
func (minimal) OnStart(flags cli.Flags, inj node.Injector) error {
	var db kv.DB
	err := inj.Resolve(&db)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	exec := native.NewExecution()

	srvc, err := serial.NewService(db, exec)
	if err != nil {
		return xerrors.Errorf("service: %v", err)
	}

	inj.Inject(exec)
	inj.Inject(acl.NewService())
	inj.Inject(srvc)

	return nil
}

// OnStop implements node.Initializer.
func (minimal) OnStop(inj node.Injector) error {
	return nil
}
