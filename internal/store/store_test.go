package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestOpenMemory(t *testing.T) {
	for _, driver := range []string{"", "memory", " Memory "} {
		s, err := Open(context.Background(), Config{Driver: driver, File: filepath.Join(t.TempDir(), "store.json")}, zap.NewNop())
		if err != nil {
			t.Fatalf("driver %q: unexpected error: %v", driver, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("driver %q: close: %v", driver, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "firestore"}, nil); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestOpenMySQLRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "mysql"}, nil); err == nil {
		t.Fatal("expected error without dsn")
	}
}
