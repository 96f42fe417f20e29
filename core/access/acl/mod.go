// Package acl implements an access service that keeps for each credential the
// set of identities granted to use it.
//
// The set is stored under the credential identifier as the sorted textual
// identities joined by a line feed, so that the same grants always serialize
// to the same value.
package acl

import (
	"sort"
	"strings"

	"github.com/veilinglabs/klok/core/access"
	"github.com/veilinglabs/klok/core/store"
	"golang.org/x/xerrors"
)

// Service is an access service backed by a simple list of granted identities
// per credential.
//
// - implements access.Service
type Service struct{}

// NewService creates a new access service.
func NewService() Service {
	return Service{}
}

// Match implements access.Service. It returns nil when every identity of the
// group has been granted the credential, otherwise it returns the reason of
// the refusal.
func (srvc Service) Match(r store.Readable, creds access.Credential, idents ...access.Identity) error {
	granted, err := readSet(r, creds.GetID())
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	for _, ident := range idents {
		text, err := ident.MarshalText()
		if err != nil {
			return xerrors.Errorf("failed to marshal identity: %v", err)
		}

		_, found := granted[string(text)]
		if !found {
			return xerrors.Errorf("rule '%s' refuses '%s'", creds.GetRule(), text)
		}
	}

	return nil
}

// Grant implements access.Service. It adds the group of identities to the set
// granted for the credential and stores the new set.
func (srvc Service) Grant(snap store.Snapshot, creds access.Credential, idents ...access.Identity) error {
	granted, err := readSet(snap, creds.GetID())
	if err != nil {
		return xerrors.Errorf("store failed: %v", err)
	}

	for _, ident := range idents {
		text, err := ident.MarshalText()
		if err != nil {
			return xerrors.Errorf("failed to marshal identity: %v", err)
		}

		granted[string(text)] = struct{}{}
	}

	err = snap.Set(creds.GetID(), serialize(granted))
	if err != nil {
		return xerrors.Errorf("store failed to write: %v", err)
	}

	return nil
}

func readSet(r store.Readable, id []byte) (map[string]struct{}, error) {
	value, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	granted := map[string]struct{}{}
	for _, line := range strings.Split(string(value), "\n") {
		if line != "" {
			granted[line] = struct{}{}
		}
	}

	return granted, nil
}

func serialize(granted map[string]struct{}) []byte {
	lines := make([]string, 0, len(granted))
	for text := range granted {
		lines = append(lines, text)
	}

	sort.Strings(lines)

	return []byte(strings.Join(lines, "\n"))
}
