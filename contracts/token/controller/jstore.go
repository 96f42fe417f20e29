// This file implements a simple store based on a json file.

package controller

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/veilinglabs/klok/core/store"
	"golang.org/x/xerrors"
)

// accessStore defines a simple read/write interface to store the grants
type accessStore interface {
	store.Writable
	store.Readable
}

func newJstore(path string) (accessStore, error) {
	data := map[string][]byte{}

	jstore := &jstore{
		path: path,
		data: data,
	}

	if fileExist(path) {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Errorf("failed to read file '%s': %v", path, err)
		}

		err = json.Unmarshal(buf, &data)
		if err != nil {
			return nil, xerrors.Errorf("failed to read json: %v", err)
		}
	} else {
		err := jstore.saveFile()
		if err != nil {
			return nil, xerrors.Errorf("failed to save empty file: %v", err)
		}
	}

	return jstore, nil
}

// jstore implements a simple store to keep the grants of the token contract.
// It keeps the data in memory AND in a json file.
//
// - implements accessStore
type jstore struct {
	sync.Mutex

	path string
	data map[string][]byte
}

func (s *jstore) Set(key []byte, value []byte) error {
	s.Lock()
	defer s.Unlock()

	s.data[string(key)] = value

	return s.saveFile()
}

func (s *jstore) Delete(key []byte) error {
	s.Lock()
	defer s.Unlock()

	delete(s.data, string(key))

	return s.saveFile()
}

// return a nil value if not found
func (s *jstore) Get(key []byte) ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	return s.data[string(key)], nil
}

func (s *jstore) saveFile() error {
	buf, err := json.Marshal(s.data)
	if err != nil {
		return xerrors.Errorf("failed to marshal data: %v", err)
	}

	err = os.WriteFile(s.path, buf, 0644)
	if err != nil {
		return xerrors.Errorf("failed to save file '%s': %v", s.path, err)
	}

	return nil
}

func fileExist(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
