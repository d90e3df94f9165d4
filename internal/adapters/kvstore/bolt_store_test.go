package kvstore

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestBoltStorePutGetSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvs", "quakeflow.db")

	store, err := OpenBolt(path, "quake-keys")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	has, err := store.Has("priv_key")
	if err != nil || has {
		t.Fatalf("expected empty store, has=%v err=%v", has, err)
	}
	if err := store.Put("priv_key", []byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenBolt(path, "quake-keys")
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	has, err = reopened.Has("priv_key")
	if err != nil || !has {
		t.Fatalf("expected key after reopen, has=%v err=%v", has, err)
	}
	got, err := reopened.Get("priv_key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("unexpected value %v", got)
	}
}

func TestBoltStoreNamespacesAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quakeflow.db")

	a, err := OpenBolt(path, "quake-keys")
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	if err := a.Put("priv_key", []byte("a")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close a: %v", err)
	}

	b, err := OpenBolt(path, "other")
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer b.Close()
	if _, err := b.Get("priv_key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound in other namespace, got %v", err)
	}
}

func TestOpenBoltRequiresPathAndNamespace(t *testing.T) {
	if _, err := OpenBolt("", "ns"); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := OpenBolt(filepath.Join(t.TempDir(), "x.db"), " "); err == nil {
		t.Fatalf("expected error for empty namespace")
	}
}

func TestMemStoreCopiesValues(t *testing.T) {
	m := NewMemStore()
	v := []byte{9}
	if err := m.Put("k", v); err != nil {
		t.Fatalf("put: %v", err)
	}
	v[0] = 0
	got, err := m.Get("k")
	if err != nil || got[0] != 9 {
		t.Fatalf("expected stored copy, got %v err=%v", got, err)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
