package controller

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// constant holding the temporary klok directory name
const klokTestDir = "klok-test-"

func TestJstore_New(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), klokTestDir)
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "store.json")
	store, err := newJstore(path)
	require.NoError(t, err)

	require.NotNil(t, store)

	_, err = newJstore(dir)
	require.Regexp(t, "^failed to read file", err.Error())

	err = os.WriteFile(path, []byte(""), os.ModePerm)
	require.NoError(t, err)

	_, err = newJstore(path)
	require.EqualError(t, err, "failed to read json: unexpected end of JSON input")

	_, err = newJstore("/fake/file")
	require.Regexp(t, "^failed to save empty file:", err.Error())
}

func TestJstore_Set_Get_Delete(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), klokTestDir)
	require.NoError(t, err)

	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "store.json")
	store, err := newJstore(path)
	require.NoError(t, err)

	key := []byte("key")
	val := []byte("value")

	resp, err := store.Get(key)
	require.NoError(t, err)
	require.Nil(t, resp)

	err = store.Set(key, val)
	require.NoError(t, err)

	resp, err = store.Get(key)
	require.NoError(t, err)
	require.Equal(t, val, resp)

	err = store.Delete(key)
	require.NoError(t, err)

	resp, err = store.Get(key)
	require.NoError(t, err)
	require.Nil(t, resp)
}

func TestJstore_SaveFile(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), klokTestDir)
	require.NoError(t, err)

	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "store.json")
	store, err := newJstore(path)
	require.NoError(t, err)

	store.(*jstore).data["key"] = []byte("value")

	err = store.(*jstore).saveFile()
	require.NoError(t, err)

	store.(*jstore).path = dir
	err = store.(*jstore).saveFile()
	require.Regexp(t, "^failed to save file", err.Error())

	// A write that cannot be persisted reports the failure to the caller.
	err = store.Set([]byte("key"), []byte("value"))
	require.Regexp(t, "^failed to save file", err.Error())

	err = store.Delete([]byte("key"))
	require.Regexp(t, "^failed to save file", err.Error())
}

func TestJstore_Scenario(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), klokTestDir)
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "store.json")
	store, err := newJstore(path)
	require.NoError(t, err)

	key1 := []byte("key1")
	val1 := []byte("value1")

	key2 := []byte("key2")
	val2 := []byte("value2")

	err = store.Set(key1, val1)
	require.NoError(t, err)

	err = store.Set(key2, val2)
	require.NoError(t, err)

	// Reading and updating the file with a new store

	store, err = newJstore(path)
	require.NoError(t, err)

	resp, err := store.Get(key1)
	require.NoError(t, err)
	require.Equal(t, val1, resp)

	resp, err = store.Get(key2)
	require.NoError(t, err)
	require.Equal(t, val2, resp)

	err = store.Delete(key1)
	require.NoError(t, err)

	// Reading with a 3rd store to see the update

	store, err = newJstore(path)
	require.NoError(t, err)

	resp, err = store.Get(key1)
	require.NoError(t, err)
	require.Nil(t, resp)

	resp, err = store.Get(key2)
	require.NoError(t, err)
	require.Equal(t, val2, resp)
}
