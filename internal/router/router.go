// Package router implements the Router (C4): scores registered models
// against a query's latent vector, selects the top candidates, and
// dispatches generation to the first one.
package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/encoder"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/recordsink"
)

// ErrNoModelsRegistered is returned by Route when the capability registry
// is empty; httpapi's classify maps it to a 404 rather than a 500.
var ErrNoModelsRegistered = errors.New("router: no models registered")

// topK is the number of candidates route() returns (capped by the number
// of registered models).
const topK = 2

// exploreRate is the fraction of routing decisions that sample from the
// top-3 trust-ranked models instead of the deterministic top-k choice,
// folded in from the original source's 5% exploration chance.
const exploreRate = 0.05

// Engine is the Capability Engine surface the Router reads from; it is
// satisfied by *capability.Engine.
type Engine interface {
	ModelList() []string
	CapabilityVector(name string) ([capability.Skills]float64, bool)
	Record(name string) (capability.Record, bool)
}

// Sink records routing decisions; satisfied by *recordsink.Sink. Kept as
// an interface so Router can be tested without a live store.
type Sink interface {
	RecordRouting(ctx context.Context, modelName, queryHash string, selectedRank int) error
}

// Router scores and dispatches queries against the registered model pool.
type Router struct {
	capEngine Engine
	qEncoder  *encoder.QEncoder
	mEncoder  *encoder.MEncoder
	provider  llm.Provider
	sink      Sink
	explore   bool

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithExploration turns on the 5% top-3-trust sampling path.
func WithExploration(enabled bool) Option {
	return func(r *Router) { r.explore = enabled }
}

// New builds a Router. sink may be nil to disable routing-decision
// logging (useful in tests).
func New(capEngine Engine, qEncoder *encoder.QEncoder, mEncoder *encoder.MEncoder, provider llm.Provider, sink Sink, seed int64, opts ...Option) *Router {
	r := &Router{
		capEngine: capEngine,
		qEncoder:  qEncoder,
		mEncoder:  mEncoder,
		provider:  provider,
		sink:      sink,
		rng:       rand.New(rand.NewSource(seed)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type scoredModel struct {
	name  string
	score float64
	order int
}

// Route scores every registered model against queryText's latent vector
// and returns the top min(2, N) names, ties broken by registration
// order. A sink is notified of the top selection, best-effort.
func (r *Router) Route(ctx context.Context, queryText, tenantID string) ([]string, error) {
	names := r.capEngine.ModelList()
	if len(names) == 0 {
		return nil, ErrNoModelsRegistered
	}

	zq, _, err := r.qEncoder.Encode(ctx, queryText, tenantID)
	if err != nil {
		return nil, fmt.Errorf("router: encode query: %w", err)
	}

	candidates := make([]scoredModel, 0, len(names))
	for i, name := range names {
		probe, ok := r.capEngine.CapabilityVector(name)
		if !ok {
			continue
		}
		zm := r.mEncoder.Encode(probe)
		candidates = append(candidates, scoredModel{name: name, score: encoder.DotProduct(zq, zm), order: i})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("router: no scoreable models")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	if r.explore && len(candidates) > 1 && r.rollExplore() {
		candidates = r.applyExploration(candidates)
	}

	k := topK
	if len(candidates) < k {
		k = len(candidates)
	}
	selected := candidates[:k]

	if r.sink != nil && len(selected) > 0 {
		queryHash := hashQuery(queryText)
		if err := r.sink.RecordRouting(ctx, selected[0].name, queryHash, 0); err != nil {
			// Logging is the caller's wiring concern; routing still
			// succeeded even if the log write failed.
			_ = err
		}
	}

	out := make([]string, len(selected))
	for i, c := range selected {
		out[i] = c.name
	}
	return out, nil
}

// applyExploration replaces the leading candidate with a random pick
// from the top-3 trust-ranked candidates, keeping the rest of the
// deterministic ordering for the remaining slots.
func (r *Router) applyExploration(candidates []scoredModel) []scoredModel {
	byTrust := make([]scoredModel, len(candidates))
	copy(byTrust, candidates)
	sort.SliceStable(byTrust, func(i, j int) bool {
		ri, _ := r.capEngine.Record(byTrust[i].name)
		rj, _ := r.capEngine.Record(byTrust[j].name)
		return ri.TrustScore > rj.TrustScore
	})
	top := byTrust
	if len(top) > 3 {
		top = top[:3]
	}
	chosen := top[r.randIntn(len(top))]

	out := make([]scoredModel, 0, len(candidates))
	out = append(out, chosen)
	for _, c := range candidates {
		if c.name == chosen.name {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *Router) rollExplore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < exploreRate
}

func (r *Router) randIntn(n int) int {
	if n <= 1 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Intn(n)
}

// Generate dispatches queryText to modelList[0], single-turn, temperature
// 0.7, max-tokens 1024. Which candidate in modelList is actually used is
// an open question the original source leaves unresolved (always the
// first); this preserves that behavior rather than picking the
// highest-scoring one again.
func (r *Router) Generate(ctx context.Context, queryText string, modelList []string) (string, error) {
	if len(modelList) == 0 {
		return "", fmt.Errorf("router: generate requires at least one candidate model")
	}
	req := llm.ChatRequest{
		Model:       modelList[0],
		Messages:    []llm.Message{{Role: "user", Content: queryText}},
		Temperature: 0.7,
		MaxTokens:   1024,
	}
	out, err := r.provider.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("router: generate via %q: %w", modelList[0], err)
	}
	return out, nil
}

// SelectionRationale reports informational tags for name, computed
// against the population averages of every registered model: "high
// trust", "low latency", "low cost", "multi-capable" (rank <= 20 on more
// than two skills).
func (r *Router) SelectionRationale(name string) []string {
	rec, ok := r.capEngine.Record(name)
	if !ok {
		return nil
	}
	names := r.capEngine.ModelList()
	if len(names) == 0 {
		return nil
	}

	var sumTrust, sumLatency, sumCost float64
	n := 0
	for _, other := range names {
		or, ok := r.capEngine.Record(other)
		if !ok {
			continue
		}
		sumTrust += or.TrustScore
		sumLatency += or.AvgLatencyMS
		sumCost += or.CostPer1K
		n++
	}
	if n == 0 {
		return nil
	}
	avgTrust := sumTrust / float64(n)
	avgLatency := sumLatency / float64(n)
	avgCost := sumCost / float64(n)

	var tags []string
	if rec.TrustScore > avgTrust {
		tags = append(tags, "high trust")
	}
	if rec.AvgLatencyMS > 0 && rec.AvgLatencyMS < avgLatency {
		tags = append(tags, "low latency")
	}
	if rec.CostPer1K < avgCost {
		tags = append(tags, "low cost")
	}
	if capableSkillCount(rec) > 2 {
		tags = append(tags, "multi-capable")
	}
	return tags
}

// capableSkillCount counts the skills where name ranks in the top 20,
// mirroring blockchain_service.py's _generate_capabilities_from_ranks
// threshold for "has this capability".
func capableSkillCount(rec capability.Record) int {
	count := 0
	for _, rank := range rec.Ranks {
		if rank > 0 && rank <= 20 {
			count++
		}
	}
	return count
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}
