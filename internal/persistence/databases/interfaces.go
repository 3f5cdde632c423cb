package databases

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/persistence"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/recordsink"
)

// MemoryEntry is one long-term-memory hit returned by a similarity
// search: the stored fact's text plus its similarity score and whatever
// metadata it was tagged with (e.g. conversation id) at write time.
type MemoryEntry struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]string
}

// VectorStore is the minimum interface a long-term-memory backend must
// satisfy; QdrantStore is the only implementation, but callers (the
// Memory Manager) depend on this interface rather than the concrete
// type so a future backend can be swapped in.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, text string, metadata map[string]string) error
	UpdateVector(ctx context.Context, id string, vector []float32, text string, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]MemoryEntry, error)
	Close() error
}

// MessageStore persists conversations and their message history; this is
// the interface the Memory Manager's sliding-window/summary layer reads
// and writes through.
type MessageStore interface {
	NewConversation(ctx context.Context) (persistence.Conversation, error)
	LoadMessages(ctx context.Context, conv string) ([]persistence.Message, error)
	StoreMessagePair(ctx context.Context, conv string, userMsg, aiMsg persistence.Message) error
	DeleteConversation(ctx context.Context, conv string) error
}

// Manager aggregates the concrete backends a running router process
// needs, resolved once from configuration at startup.
type Manager struct {
	Models   capability.Store
	Messages MessageStore
	Records  recordsink.Store
	Vectors  VectorStore
}

// Close releases every backend that exposes one; PostgresStore backs
// Models, Messages, and Records simultaneously, so its Close is called
// at most once even though it satisfies three fields here.
func (m Manager) Close() {
	seen := make(map[any]bool, 4)
	closeOnce := func(v any) {
		if v == nil || seen[v] {
			return
		}
		seen[v] = true
		if c, ok := v.(interface{ Close() }); ok {
			c.Close()
		}
	}
	closeOnce(m.Models)
	closeOnce(m.Messages)
	closeOnce(m.Records)
	if m.Vectors != nil {
		if err := m.Vectors.Close(); err != nil {
			log.Warn().Err(err).Msg("vector store close failed")
		}
	}
}
