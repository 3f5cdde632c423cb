package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
)

// capabilityRanks is the named-field shape ModelRegistration and ModelInfo
// expose over the wire for capability.Skills' five fixed columns, per
// spec §3.
type capabilityRanks struct {
	Math   int `json:"math"`
	Code   int `json:"code"`
	IfRank int `json:"if_rank"`
	Expert int `json:"expert"`
	Safety int `json:"safety"`
}

func (c capabilityRanks) toArray() [capability.Skills]int {
	return [capability.Skills]int{c.Math, c.Code, c.IfRank, c.Expert, c.Safety}
}

func ranksFromArray(a [capability.Skills]int) capabilityRanks {
	return capabilityRanks{Math: a[0], Code: a[1], IfRank: a[2], Expert: a[3], Safety: a[4]}
}

type capabilityVector struct {
	Math   float64 `json:"math"`
	Code   float64 `json:"code"`
	IfRank float64 `json:"if_rank"`
	Expert float64 `json:"expert"`
	Safety float64 `json:"safety"`
}

func vectorFromArray(a [capability.Skills]float64) capabilityVector {
	return capabilityVector{Math: a[0], Code: a[1], IfRank: a[2], Expert: a[3], Safety: a[4]}
}

// modelRegistrationRequest is the POST /api/models/register body.
type modelRegistrationRequest struct {
	Name            string          `json:"name"`
	CapabilityRanks capabilityRanks `json:"capability_ranks"`
	MaxTokens       int             `json:"max_tokens"`
	AvgLatencyMS    float64         `json:"avg_latency_ms"`
	CostPer1K       float64         `json:"cost_per_1k_usd"`
	StakeETH        float64         `json:"stake_eth"`
}

// modelInfo is the response shape for every models endpoint.
type modelInfo struct {
	Name             string           `json:"name"`
	CapabilityRanks  capabilityRanks  `json:"capability_ranks"`
	CapabilityVector capabilityVector `json:"capability_vector"`
	MaxTokens        int              `json:"max_tokens"`
	AvgLatencyMS     float64          `json:"avg_latency_ms"`
	CostPer1K        float64          `json:"cost_per_1k_usd"`
	StakeETH         float64          `json:"stake_eth"`
	TrustScore       float64          `json:"trust_score"`
	Verified         bool             `json:"verified"`
	ViolationCount   int              `json:"violation_count"`
	RegisteredAt     int64            `json:"registered_at"`
}

func modelInfoFromRecord(rec capability.Record) modelInfo {
	return modelInfo{
		Name:             rec.Name,
		CapabilityRanks:  ranksFromArray(rec.Ranks),
		CapabilityVector: vectorFromArray(rec.Capability),
		MaxTokens:        rec.MaxTokens,
		AvgLatencyMS:     rec.AvgLatencyMS,
		CostPer1K:        rec.CostPer1K,
		StakeETH:         rec.Stake,
		TrustScore:       rec.TrustScore,
		Verified:         rec.Verified,
		ViolationCount:   rec.ViolationCount,
		RegisteredAt:     rec.RegisteredAtUnix,
	}
}

func (s *Server) handleRegisterModel(w http.ResponseWriter, r *http.Request) {
	var req modelRegistrationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, validationErr("name is required"))
		return
	}
	for _, rank := range req.CapabilityRanks.toArray() {
		if rank < 1 {
			writeError(w, validationErr("capability_ranks entries must all be >= 1"))
			return
		}
	}
	rec, err := s.engine.Register(r.Context(), req.Name, req.CapabilityRanks.toArray(), req.MaxTokens, req.AvgLatencyMS, req.CostPer1K, req.StakeETH)
	if err != nil {
		writeError(w, internalErr("register model failed", err))
		return
	}
	writeOK(w, modelInfoFromRecord(rec))
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	names := s.engine.ModelList()
	out := make([]modelInfo, 0, len(names))
	for _, name := range names {
		if rec, ok := s.engine.Record(name); ok {
			out = append(out, modelInfoFromRecord(rec))
		}
	}
	writeOK(w, out)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := s.engine.Record(id)
	if !ok {
		writeError(w, notFoundErr("unknown model "+id))
		return
	}
	writeOK(w, modelInfoFromRecord(rec))
}

func (s *Server) handleVerifyModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.engine.Record(id); !ok {
		writeError(w, notFoundErr("unknown model "+id))
		return
	}
	err := s.engine.UpdateTrust(r.Context(), id, func(rec *capability.Record) {
		rec.Verified = true
	})
	if err != nil {
		writeError(w, internalErr("verify model failed", err))
		return
	}
	writeOK(w, map[string]string{"model_id": id})
}

func (s *Server) handleRegisterConversation(w http.ResponseWriter, r *http.Request) {
	convID, err := s.memory.NewConversation(r.Context())
	if err != nil {
		writeError(w, internalErr("register conversation failed", err))
		return
	}
	writeOK(w, map[string]string{"conversation_id": convID})
}

type conversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type memorySummaryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ConversationID == "" {
		writeError(w, validationErr("conversation_id is required"))
		return
	}
	msgs, err := s.memory.Load(r.Context(), req.ConversationID)
	if err != nil {
		writeError(w, internalErr("load conversation failed", err))
		return
	}
	memories := make([]memorySummaryEntry, len(msgs))
	for i, m := range msgs {
		memories[i] = memorySummaryEntry{Role: m.Role, Content: m.Content}
	}
	writeOK(w, map[string]any{"memories": memories})
}

type chatRouteRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id"`
}

type chatRouteResponse struct {
	Response  string `json:"response"`
	ModelName string `json:"model_name"`
}

// handleChatRoute runs one full turn: rewrite the query against the
// conversation's context, route the rewritten query to its top candidate
// models, dispatch generation to the first candidate, then persist the
// turn and trigger the long-term-memory update pipeline.
func (s *Server) handleChatRoute(w http.ResponseWriter, r *http.Request) {
	var req chatRouteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Query == "" || req.ConversationID == "" {
		writeError(w, validationErr("query and conversation_id are required"))
		return
	}

	var rewritten string
	err := retryOnceTransient(r.Context(), func(ctx context.Context) error {
		var innerErr error
		rewritten, innerErr = s.memory.Rewrite(ctx, req.ConversationID, req.Query)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}

	var candidates []string
	err = retryOnceTransient(r.Context(), func(ctx context.Context) error {
		var innerErr error
		candidates, innerErr = s.router.Route(ctx, rewritten, "")
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}

	var response string
	err = retryOnceTransient(r.Context(), func(ctx context.Context) error {
		var innerErr error
		response, innerErr = s.router.Generate(ctx, rewritten, candidates)
		return innerErr
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if storeErr := s.memory.Store(r.Context(), req.ConversationID, req.Query, response); storeErr != nil {
		writeError(w, internalErr("store message pair failed", storeErr))
		return
	}

	writeOK(w, chatRouteResponse{Response: response, ModelName: candidates[0]})
}

type performanceReportRequest struct {
	ModelID           string  `json:"model_id"`
	ObservedLatencyMS float64 `json:"observed_latency_ms"`
	SuccessRate       float64 `json:"success_rate"`
}

func (s *Server) handlePerformanceReport(w http.ResponseWriter, r *http.Request) {
	var req performanceReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ModelID == "" {
		writeError(w, validationErr("model_id is required"))
		return
	}
	if err := s.sink.RecordPerformance(r.Context(), req.ModelID, req.ObservedLatencyMS, req.SuccessRate); err != nil {
		writeError(w, internalErr("record performance failed", err))
		return
	}
	writeOK(w, map[string]string{"model_id": req.ModelID})
}

type violationReportRequest struct {
	ModelID     string  `json:"model_id"`
	Issue       string  `json:"issue"`
	Severity    string  `json:"severity"`
	SlashAmount float64 `json:"slash_amount"`
}

func (s *Server) handleViolationReport(w http.ResponseWriter, r *http.Request) {
	var req violationReportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ModelID == "" || req.Severity == "" {
		writeError(w, validationErr("model_id and severity are required"))
		return
	}
	if err := s.sink.RecordViolation(r.Context(), req.ModelID, req.Severity, req.SlashAmount); err != nil {
		writeError(w, validationErr(err.Error()))
		return
	}
	writeOK(w, map[string]any{
		"model_id":     req.ModelID,
		"issue":        req.Issue,
		"severity":     req.Severity,
		"slash_amount": req.SlashAmount,
	})
}
