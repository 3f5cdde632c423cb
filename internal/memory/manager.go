// Package memory implements the Memory Manager (C5): per-conversation
// sliding-window + rolling-summary working memory, context assembly for
// query rewriting, and the extract/decide/apply long-term memory
// pipeline backed by the vector store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/persistence"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/persistence/databases"
)

// defaultWindowMessages is W from spec §4.5: the sliding window holds at
// most 2*W messages (one user/assistant pair per turn).
const defaultWindowMessages = 10

// defaultTopK is the number of nearest long-term memories retrieved per
// lookup.
const defaultTopK = 5

const noLongTermMemoriesFound = "No relevant long term memories found."

// Embedder is the subset of embedding.Client the Memory Manager depends
// on for long-term-memory similarity search.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// conversationState is the in-process cache for one conversation: the
// sliding window and rolling summary, guarded by their own mutex so one
// conversation's turn never blocks another's — the fix for the
// process-wide-singleton design flaw this component replaces.
type conversationState struct {
	mu      sync.Mutex
	window  []persistence.Message
	summary string
}

// Manager coordinates working memory, rolling summaries, and long-term
// memory for every conversation in flight.
type Manager struct {
	store    databases.MessageStore
	vectors  databases.VectorStore
	embedder Embedder
	provider llm.Provider

	windowMessages int
	topK           int
	utilityModel   string

	cache         *RedisWindowCache
	conversations sync.Map // string -> *conversationState
}

// WithCache attaches a Redis-backed window cache so sliding windows and
// rolling summaries survive process restarts and are shared across
// replicas. Passing a nil cache is a no-op (all RedisWindowCache methods
// already tolerate a nil receiver).
func (m *Manager) WithCache(cache *RedisWindowCache) *Manager {
	m.cache = cache
	return m
}

// New builds a Manager. windowMessages and topK fall back to the spec
// defaults (10, 5) when zero. utilityModel names the model the
// rewrite/extract/decide/summary calls dispatch to — a fixed, smaller
// model distinct from whatever the Router selects for the user-facing
// turn, mirroring the original source's hardcoded utility-model choice.
func New(store databases.MessageStore, vectors databases.VectorStore, embedder Embedder, provider llm.Provider, windowMessages, topK int, utilityModel string) *Manager {
	if windowMessages <= 0 {
		windowMessages = defaultWindowMessages
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Manager{
		store:          store,
		vectors:        vectors,
		embedder:       embedder,
		provider:       provider,
		windowMessages: windowMessages,
		topK:           topK,
		utilityModel:   utilityModel,
	}
}

func (m *Manager) stateFor(convID string) *conversationState {
	v, loaded := m.conversations.LoadOrStore(convID, &conversationState{})
	state := v.(*conversationState)
	if !loaded && m.cache != nil {
		if window, summary, ok := m.cache.Load(context.Background(), convID); ok {
			state.mu.Lock()
			state.window = window
			state.summary = summary
			state.mu.Unlock()
		}
	}
	return state
}

// NewConversation mints a conversation row and resets its working memory.
func (m *Manager) NewConversation(ctx context.Context) (string, error) {
	conv, err := m.store.NewConversation(ctx)
	if err != nil {
		return "", fmt.Errorf("memory: new conversation: %w", err)
	}
	m.conversations.Store(conv.ID, &conversationState{})
	return conv.ID, nil
}

// Load fetches every message for convID ordered by timestamp ascending,
// overwrites the working-memory window with the tail of size 2*W, and
// returns the full sequence. The rolling summary is a per-process cache
// and is not reloaded from durable storage.
func (m *Manager) Load(ctx context.Context, convID string) ([]persistence.Message, error) {
	msgs, err := m.store.LoadMessages(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("memory: load conversation %q: %w", convID, err)
	}
	state := m.stateFor(convID)
	state.mu.Lock()
	state.window = tail(msgs, 2*m.windowMessages)
	state.mu.Unlock()
	return msgs, nil
}

// Rewrite builds the context block for convID and query, sends it to the
// upstream LLM with the rewriting prompt, and returns the model's output
// verbatim.
func (m *Manager) Rewrite(ctx context.Context, convID, query string) (string, error) {
	state := m.stateFor(convID)
	block, err := m.buildContextBlock(ctx, state, convID, query)
	if err != nil {
		return "", fmt.Errorf("memory: build context block: %w", err)
	}
	resp, err := m.provider.Chat(ctx, llm.ChatRequest{
		Model:       m.utilityModel,
		Messages:    []llm.Message{{Role: "user", Content: RewritePrompt(block, query)}},
		Temperature: 0.0,
		MaxTokens:   512,
	})
	if err != nil {
		return "", fmt.Errorf("memory: rewrite query: %w", err)
	}
	return resp, nil
}

// buildContextBlock assembles the rewriter's context: the rolling
// summary, the formatted working-memory window, and the top-k long-term
// memories similar to query.
func (m *Manager) buildContextBlock(ctx context.Context, state *conversationState, convID, query string) (string, error) {
	state.mu.Lock()
	summary := state.summary
	recent := formatWindow(state.window)
	state.mu.Unlock()

	ltm := noLongTermMemoriesFound
	if hits, err := m.similarMemories(ctx, convID, query); err != nil {
		log.Warn().Err(err).Str("conversation", convID).Msg("memory: long-term retrieval failed")
	} else if len(hits) > 0 {
		contents := make([]string, len(hits))
		for i, h := range hits {
			contents[i] = h.Text
		}
		ltm = strings.Join(contents, "\n")
	}

	return fmt.Sprintf("summary:Conversation Summary: %s\nRecent Messages:\n%s\nlong_term_memories:%s", summary, recent, ltm), nil
}

func (m *Manager) similarMemories(ctx context.Context, convID, text string) ([]databases.MemoryEntry, error) {
	if m.vectors == nil || m.embedder == nil {
		return nil, nil
	}
	vecs, err := m.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no vectors")
	}
	return m.vectors.SimilaritySearch(ctx, vecs[0], m.topK, map[string]string{"conversation_id": convID})
}

// Store appends userMsg/aiMsg to the working-memory window, persists both
// messages in a single transaction, and triggers the best-effort
// long-term-memory update pipeline.
func (m *Manager) Store(ctx context.Context, convID, userMsg, aiMsg string) error {
	now := time.Now().UTC()
	userRec := persistence.Message{ID: uuid.NewString(), ConversationID: convID, Role: "user", Content: userMsg, CreatedAt: now}
	aiRec := persistence.Message{ID: uuid.NewString(), ConversationID: convID, Role: "assistant", Content: aiMsg, CreatedAt: now}

	state := m.stateFor(convID)
	state.mu.Lock()
	state.window = tail(append(state.window, userRec, aiRec), 2*m.windowMessages)
	oldSummary := state.summary
	window := append([]persistence.Message(nil), state.window...)
	state.mu.Unlock()

	if err := m.store.StoreMessagePair(ctx, convID, userRec, aiRec); err != nil {
		return fmt.Errorf("memory: store message pair: %w", err)
	}
	m.cache.Save(ctx, convID, window, oldSummary)

	m.updateLongTermMemory(ctx, convID, oldSummary, userMsg, aiMsg)
	return nil
}

// DeleteConversation removes convID's messages, links, and row in a
// single transaction and drops its in-process cache entry.
func (m *Manager) DeleteConversation(ctx context.Context, convID string) error {
	if err := m.store.DeleteConversation(ctx, convID); err != nil {
		return fmt.Errorf("memory: delete conversation %q: %w", convID, err)
	}
	m.conversations.Delete(convID)
	m.cache.Delete(ctx, convID)
	return nil
}

// updateLongTermMemory runs the extract -> decide -> apply pipeline and
// regenerates the rolling summary. Every step here is best-effort:
// failures are logged and never propagate to the user-facing turn.
func (m *Manager) updateLongTermMemory(ctx context.Context, convID, summary, userMsg, aiMsg string) {
	state := m.stateFor(convID)
	state.mu.Lock()
	recent := formatWindow(state.window)
	state.mu.Unlock()

	facts, err := m.extractFacts(ctx, summary, recent, userMsg, aiMsg)
	if err != nil {
		log.Warn().Err(err).Str("conversation", convID).Msg("memory: fact extraction failed, no partial updates applied")
	} else if len(facts) > 0 {
		m.applyFacts(ctx, convID, facts)
	}

	newSummary, err := m.regenerateSummary(ctx, summary, userMsg, aiMsg)
	if err != nil {
		log.Warn().Err(err).Str("conversation", convID).Msg("memory: summary regeneration failed")
		return
	}
	state.mu.Lock()
	state.summary = newSummary
	window := append([]persistence.Message(nil), state.window...)
	state.mu.Unlock()
	m.cache.Save(ctx, convID, window, newSummary)
}

// extractFacts asks the upstream LLM for a JSON list of salient facts
// from the current exchange. A parse failure aborts the whole pipeline
// for this turn rather than applying a partial result.
func (m *Manager) extractFacts(ctx context.Context, summary, recent, userMsg, aiMsg string) ([]string, error) {
	resp, err := m.provider.Chat(ctx, llm.ChatRequest{
		Model:       m.utilityModel,
		Messages:    []llm.Message{{Role: "user", Content: ExtractPrompt(summary, recent, userMsg, aiMsg)}},
		Temperature: 0.0,
		MaxTokens:   512,
	})
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}
	var facts []string
	if err := json.Unmarshal([]byte(extractJSONArray(resp)), &facts); err != nil {
		return nil, fmt.Errorf("parse extracted facts: %w", err)
	}
	return facts, nil
}

// extractJSONArray trims anything before/after the first top-level JSON
// array, since LLMs occasionally wrap the list in prose despite
// instructions not to.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// applyFacts decides and applies an ADD/UPDATE/DELETE/NOOP operation for
// each fact in parallel.
func (m *Manager) applyFacts(ctx context.Context, convID string, facts []string) {
	if m.vectors == nil || m.embedder == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, fact := range facts {
		fact := fact
		g.Go(func() error {
			m.applyOneFact(gctx, convID, fact)
			return nil
		})
	}
	_ = g.Wait()
}

func (m *Manager) applyOneFact(ctx context.Context, convID, fact string) {
	neighbors, err := m.similarMemories(ctx, convID, fact)
	if err != nil {
		log.Warn().Err(err).Str("conversation", convID).Msg("memory: neighbor lookup failed for fact")
		return
	}
	contents := make([]string, len(neighbors))
	for i, n := range neighbors {
		contents[i] = n.Text
	}

	resp, err := m.provider.Chat(ctx, llm.ChatRequest{
		Model:       m.utilityModel,
		Messages:    []llm.Message{{Role: "user", Content: DecisionPrompt(fact, contents)}},
		Temperature: 0.0,
		MaxTokens:   16,
	})
	if err != nil {
		log.Warn().Err(err).Str("conversation", convID).Msg("memory: decision call failed for fact")
		return
	}

	vecs, err := m.embedder.Embed(ctx, []string{fact})
	if err != nil || len(vecs) == 0 {
		log.Warn().Err(err).Str("conversation", convID).Msg("memory: embed fact failed")
		return
	}

	switch strings.ToUpper(strings.TrimSpace(resp)) {
	case "ADD":
		id := uuid.NewString()
		if err := m.vectors.Upsert(ctx, id, vecs[0], fact, map[string]string{"conversation_id": convID}); err != nil {
			log.Warn().Err(err).Msg("memory: add long-term memory failed")
		}
	case "UPDATE":
		if len(neighbors) == 0 {
			return // silently becomes NOOP
		}
		if err := m.vectors.UpdateVector(ctx, neighbors[0].ID, vecs[0], fact, map[string]string{"conversation_id": convID}); err != nil {
			log.Warn().Err(err).Msg("memory: update long-term memory failed")
		}
	case "DELETE":
		if len(neighbors) == 0 {
			return // silently becomes NOOP
		}
		if err := m.vectors.Delete(ctx, neighbors[0].ID); err != nil {
			log.Warn().Err(err).Msg("memory: delete long-term memory failed")
		}
	case "NOOP":
	default:
		log.Warn().Str("operation", resp).Msg("memory: unrecognized decision operation, treating as NOOP")
	}
}

// regenerateSummary prompts the LLM with the old summary plus the new
// exchange and returns the text that should overwrite it.
func (m *Manager) regenerateSummary(ctx context.Context, oldSummary, userMsg, aiMsg string) (string, error) {
	resp, err := m.provider.Chat(ctx, llm.ChatRequest{
		Model:       m.utilityModel,
		Messages:    []llm.Message{{Role: "user", Content: SummaryUpdatePrompt(oldSummary, userMsg, aiMsg)}},
		Temperature: 0.0,
		MaxTokens:   512,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp), nil
}

func formatWindow(window []persistence.Message) string {
	if len(window) == 0 {
		return "No recent messages."
	}
	lines := make([]string, len(window))
	for i, msg := range window {
		lines[i] = fmt.Sprintf("%s: %s", msg.Role, msg.Content)
	}
	return strings.Join(lines, "\n")
}

func tail(msgs []persistence.Message, n int) []persistence.Message {
	if len(msgs) <= n {
		out := make([]persistence.Message, len(msgs))
		copy(out, msgs)
		return out
	}
	out := make([]persistence.Message, n)
	copy(out, msgs[len(msgs)-n:])
	return out
}
