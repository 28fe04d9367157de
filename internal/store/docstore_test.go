package store

import (
	"context"
	"testing"

	"rollcall/internal/config"
)

func TestOpenDocStoreMemory(t *testing.T) {
	ds, closeFn, err := OpenDocStore(context.Background(), config.App{StoreBackend: "memory"})
	if err != nil {
		t.Fatalf("OpenDocStore: %v", err)
	}
	defer closeFn()
	if _, err := ds.Add(context.Background(), "pending_verifications", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestOpenDocStoreUnknownBackend(t *testing.T) {
	if _, _, err := OpenDocStore(context.Background(), config.App{StoreBackend: "firestore"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
