package databases

import (
	"context"
	"testing"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/recordsink"
)

// compile-time interface satisfaction checks, mirroring the teacher's
// convention of asserting a concrete store against its interface rather
// than relying on callers to catch a mismatch at the handler layer.
var (
	_ VectorStore     = (*QdrantStore)(nil)
	_ MessageStore    = (*PostgresStore)(nil)
	_ capability.Store = (*PostgresStore)(nil)
	_ recordsink.Store = (*PostgresStore)(nil)
)

func TestConnect_RequiresDSN(t *testing.T) {
	_, err := Connect(context.Background(), config.PostgresConfig{})
	if err == nil {
		t.Fatal("expected an error when neither URL nor AsyncURL is set")
	}
}

func TestConnect_RejectsMalformedDSN(t *testing.T) {
	_, err := Connect(context.Background(), config.PostgresConfig{AsyncURL: "not a valid dsn :::"})
	if err == nil {
		t.Fatal("expected a parse error for a malformed DSN")
	}
}

func TestNewQdrantStore_RequiresCollection(t *testing.T) {
	_, err := NewQdrantStore(context.Background(), config.VectorStoreConfig{URL: "http://localhost:6334"})
	if err == nil {
		t.Fatal("expected an error when collection is unset")
	}
}

func TestNewS3CheckpointStore_RequiresBucket(t *testing.T) {
	_, err := NewS3CheckpointStore(context.Background(), config.S3Config{})
	if err == nil {
		t.Fatal("expected an error when bucket is unset")
	}
}

func TestPostgresStore_CloseIsSafeOnZeroValue(t *testing.T) {
	s := &PostgresStore{}
	s.Close()
}

func TestManager_CloseWithoutBackendsIsSafe(t *testing.T) {
	var m Manager
	m.Close()
}
