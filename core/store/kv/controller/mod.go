// Package controller implements a controller for the key/value database that
// opens it on startup and closes it when the daemon stops.
package controller

import (
	"path/filepath"

	"github.com/veilinglabs/klok/cli"
	"github.com/veilinglabs/klok/cli/node"
	"github.com/veilinglabs/klok/core/store/kv"
	"golang.org/x/xerrors"
)

type minimal struct{}

// NewMinimal returns a new minimal initializer for the database.
func NewMinimal() node.Initializer {
	return minimal{}
}

func (m minimal) SetCommands(builder node.Builder) {}

func (m minimal) OnStart(flags cli.Flags, inj node.Injector) error {
	db, err := kv.New(filepath.Join(flags.Path("config"), "klok.db"))
	if err != nil {
		return xerrors.Errorf("db: %v", err)
	}

	inj.Inject(db)

	return nil
}

func (m minimal) OnStop(inj node.Injector) error {
	var db kv.DB
	err := inj.Resolve(&db)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = db.Close()
	if err != nil {
		return xerrors.Errorf("while closing db: %v", err)
	}

	return nil
}
