package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/capability"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/encoder"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/llm"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/memory"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/persistence"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/persistence/databases"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/recordsink"
	"github.com/FanQ1/Multi-Model-Routing-System/internal/router"
)

type fakeSinkStore struct {
	block int64
}

func (f *fakeSinkStore) NextBlockNumber(ctx context.Context) (int64, error) {
	f.block++
	return f.block, nil
}
func (f *fakeSinkStore) InsertRouting(ctx context.Context, rec recordsink.RoutingRecord) error {
	return nil
}
func (f *fakeSinkStore) InsertPerformance(ctx context.Context, rec recordsink.PerformanceRecord) error {
	return nil
}
func (f *fakeSinkStore) InsertViolation(ctx context.Context, rec recordsink.ViolationRecord) error {
	return nil
}
func (f *fakeSinkStore) RecentRoutingCount(ctx context.Context, modelName string, limit int) (int, error) {
	return 0, nil
}

type fakeMessageStore struct {
	conversations map[string][]persistence.Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{conversations: map[string][]persistence.Message{}}
}
func (f *fakeMessageStore) NewConversation(ctx context.Context) (persistence.Conversation, error) {
	id := "conv-1"
	f.conversations[id] = nil
	return persistence.Conversation{ID: id}, nil
}
func (f *fakeMessageStore) LoadMessages(ctx context.Context, conv string) ([]persistence.Message, error) {
	return f.conversations[conv], nil
}
func (f *fakeMessageStore) StoreMessagePair(ctx context.Context, conv string, userMsg, aiMsg persistence.Message) error {
	f.conversations[conv] = append(f.conversations[conv], userMsg, aiMsg)
	return nil
}
func (f *fakeMessageStore) DeleteConversation(ctx context.Context, conv string) error {
	delete(f.conversations, conv)
	return nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = make([]float32, 384)
	}
	return out, nil
}

type stubProvider struct {
	response string
}

func (p *stubProvider) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	if p.response == "" {
		return req.Messages[0].Content, nil
	}
	return p.response, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	engine, err := capability.New(ctx, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}
	if _, err := engine.Register(ctx, "model-a", [capability.Skills]int{1, 1, 1, 1, 1}, 4096, 100, 0.01, 1.0); err != nil {
		t.Fatalf("Register: %v", err)
	}

	qe := encoder.NewQEncoder(stubEmbedder{}, "", 1)
	me := encoder.NewMEncoder("", 2)
	provider := &stubProvider{response: "hello from model"}

	sink := recordsink.New(&fakeSinkStore{}, engine)
	rt := router.New(engine, qe, me, provider, sink, 1)

	msgStore := newFakeMessageStore()
	var vectors databases.VectorStore
	mem := memory.New(msgStore, vectors, stubEmbedder{}, provider, 10, 5, "utility-model")

	return NewServer(engine, rt, mem, sink, nil, nil)
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndGetModel(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/models/register", modelRegistrationRequest{
		Name:            "model-b",
		CapabilityRanks: capabilityRanks{Math: 2, Code: 2, IfRank: 2, Expert: 2, Safety: 2},
		MaxTokens:       8192,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/models/model-b", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get model status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp ApiResponse[modelInfo]
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Name != "model-b" {
		t.Fatalf("expected model-b, got %q", resp.Data.Name)
	}
}

func TestGetUnknownModelReturnsNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/api/models/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestVerifyModel(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/models/model-a/verify", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/models/model-a", nil)
	var resp ApiResponse[modelInfo]
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Data.Verified {
		t.Fatal("expected model-a to be verified")
	}
}

func TestRegisterConversationAndChatRoute(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/chat/register-conversation", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("register-conversation status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var convResp ApiResponse[map[string]string]
	if err := json.Unmarshal(rec.Body.Bytes(), &convResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	convID := convResp.Data["conversation_id"]
	if convID == "" {
		t.Fatal("expected a non-empty conversation_id")
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/chat/route", chatRouteRequest{Query: "hello", ConversationID: convID})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat/route status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var routeResp ApiResponse[chatRouteResponse]
	if err := json.Unmarshal(rec.Body.Bytes(), &routeResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if routeResp.Data.ModelName != "model-a" {
		t.Fatalf("expected model-a to be dispatched, got %q", routeResp.Data.ModelName)
	}
}

func TestChatRouteWithEmptyRegistryReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	engine, err := capability.New(ctx, nil)
	if err != nil {
		t.Fatalf("capability.New: %v", err)
	}

	qe := encoder.NewQEncoder(stubEmbedder{}, "", 1)
	me := encoder.NewMEncoder("", 2)
	provider := &stubProvider{response: "hello from model"}

	sink := recordsink.New(&fakeSinkStore{}, engine)
	rt := router.New(engine, qe, me, provider, sink, 1)

	msgStore := newFakeMessageStore()
	var vectors databases.VectorStore
	mem := memory.New(msgStore, vectors, stubEmbedder{}, provider, 10, 5, "utility-model")

	srv := NewServer(engine, rt, mem, sink, nil, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/chat/register-conversation", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("register-conversation status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var convResp ApiResponse[map[string]string]
	if err := json.Unmarshal(rec.Body.Bytes(), &convResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/chat/route", chatRouteRequest{
		Query:          "hello",
		ConversationID: convResp.Data["conversation_id"],
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an empty model registry, got %d, body = %s", rec.Code, rec.Body.String())
	}
	var errResp ApiResponse[struct{}]
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if !strings.Contains(errResp.Message, "no models") {
		t.Fatalf("expected error message to mention %q, got %q", "no models", errResp.Message)
	}
}

func TestChatRouteRejectsMissingFields(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/chat/route", chatRouteRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestPerformanceAndViolationReports(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/performance/report", performanceReportRequest{
		ModelID: "model-a", ObservedLatencyMS: 120, SuccessRate: 95,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("performance report status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/violations/report", violationReportRequest{
		ModelID: "model-a", Issue: "late response", Severity: "MEDIUM", SlashAmount: 0.1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("violation report status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestViolationReportRejectsUnknownSeverity(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodPost, "/api/violations/report", violationReportRequest{
		ModelID: "model-a", Severity: "CATASTROPHIC",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown severity, got %d", rec.Code)
	}
}
