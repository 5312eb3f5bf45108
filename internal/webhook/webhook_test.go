package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"support_router_backend/internal/conversation"
	apphttp "support_router_backend/internal/http"
	"support_router_backend/internal/queue"
	"support_router_backend/internal/tickets"
	"support_router_backend/platform/apperr"
	"support_router_backend/platform/logger"
	"support_router_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	appSecret    = "app-secret"
	ticketSecret = "ticket-secret"
	verifyToken  = "verify-me"
	business     = "56900000000"
)

type stubConfig struct{}

func (stubConfig) GetWhatsAppVerifyToken() string    { return verifyToken }
func (stubConfig) GetWhatsAppAppSecret() string      { return appSecret }
func (stubConfig) GetWhatsAppAccessToken() string    { return "token" }
func (stubConfig) GetWhatsAppPhoneNumberID() string  { return "123" }
func (stubConfig) GetWhatsAppBusinessNumber() string { return business }
func (stubConfig) GetWhatsAppAPIBaseURL() string     { return "http://localhost" }
func (stubConfig) GetWhatsAppAPIVersion() string     { return "v21.0" }
func (stubConfig) GetWhatsAppSendRPS() float64       { return 0 }
func (stubConfig) GetDefaultPhoneRegion() string     { return "CL" }
func (stubConfig) GetTicketWebhookSecret() string    { return ticketSecret }

type fakeIngestor struct {
	mu         sync.Mutex
	seen       map[string]bool
	msgs       []queue.Inbound
	jobs       []queue.Job
	closed     bool
	enqueueErr error
}

func (f *fakeIngestor) Submit(_ context.Context, msg queue.Inbound) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[msg.MessageID] {
		return false, nil
	}
	f.seen[msg.MessageID] = true
	f.msgs = append(f.msgs, msg)
	return true, nil
}

func (f *fakeIngestor) Enqueue(job queue.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeIngestor) Accepting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func setup(t *testing.T) (*gin.Engine, *fakeIngestor, *tickets.Manager) {
	t.Helper()
	engine, ingestor, manager, _ := setupWithStore(t)
	return engine, ingestor, manager
}

func setupWithStore(t *testing.T) (*gin.Engine, *fakeIngestor, *tickets.Manager, *conversation.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ingestor := &fakeIngestor{}
	manager := tickets.NewManager(tickets.NewMemoryStore(), nil, logger.Nop())
	store := conversation.NewMemoryStore(time.Hour)
	module := NewModule(stubConfig{}, ingestor, manager, store, validator.New(), logger.Nop())

	engine := gin.New()
	module.RegisterRoutes(&apphttp.RouterContext{
		Engine:   engine,
		Webhooks: engine.Group("/webhooks"),
	})
	return engine, ingestor, manager, store
}

func post(engine *gin.Engine, path, header, secret string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(header, SignatureHeader(secret, body))
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func envelope(messages ...Message) []byte {
	body, _ := json.Marshal(Envelope{
		Object: objectWhatsApp,
		Entry: []Entry{{
			ID: "waba",
			Changes: []Change{{
				Field: fieldMessages,
				Value: ChangeValue{MessagingProduct: "whatsapp", Messages: messages},
			}},
		}},
	})
	return body
}

func textMessage(from, id, body string) Message {
	return Message{From: from, ID: id, Timestamp: "1700000000", Type: typeText, Text: &TextBody{Body: body}}
}

func TestVerifyHandshake(t *testing.T) {
	engine, _, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token="+verifyToken+"&hub.challenge=42", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "42" {
		t.Fatalf("expected challenge echo, got %d %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestInboundRejectsBadSignature(t *testing.T) {
	engine, ingestor, _ := setup(t)
	body := envelope(textMessage("56912345678", "wamid.1", "hola"))

	if w := post(engine, "/webhooks/whatsapp", HeaderHubSignature, "", body); w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), `"unauthorized"`) {
		t.Fatalf("missing signature: expected 401 unauthorized, got %d %s", w.Code, w.Body.String())
	}
	if w := post(engine, "/webhooks/whatsapp", HeaderHubSignature, "other-secret", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", w.Code)
	}
	if len(ingestor.msgs) != 0 {
		t.Fatalf("rejected delivery mutated state")
	}
}

func TestInboundQueuesTextMessagesOnce(t *testing.T) {
	engine, ingestor, _ := setup(t)
	body := envelope(
		textMessage("56912345678", "wamid.1", "  hola  "),
		Message{From: "56912345678", ID: "wamid.2", Type: "image"},
		textMessage(business, "wamid.3", "eco"),
	)

	w := post(engine, "/webhooks/whatsapp", HeaderHubSignature, appSecret, body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var result IngestResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Accepted != 1 || result.Ignored != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	msg := ingestor.msgs[0]
	if msg.Key != "56912345678" || msg.Text != "hola" || !msg.At.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected canonical message %+v", msg)
	}

	w = post(engine, "/webhooks/whatsapp", HeaderHubSignature, appSecret, body)
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Accepted != 0 || result.Duplicates != 1 {
		t.Fatalf("redelivery should be a duplicate, got %+v", result)
	}
}

func TestInboundAcknowledgesStatuses(t *testing.T) {
	engine, ingestor, _ := setup(t)
	body, _ := json.Marshal(Envelope{
		Object: objectWhatsApp,
		Entry: []Entry{{Changes: []Change{{
			Field: fieldMessages,
			Value: ChangeValue{Statuses: []Status{{ID: "wamid.out.1", Status: "delivered"}}},
		}}}},
	})

	w := post(engine, "/webhooks/whatsapp", HeaderHubSignature, appSecret, body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(ingestor.msgs) != 0 {
		t.Fatalf("status update was ingested")
	}
}

func TestInboundMalformedJSON(t *testing.T) {
	engine, _, _ := setup(t)
	if w := post(engine, "/webhooks/whatsapp", HeaderHubSignature, appSecret, []byte("{not json")); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTicketAnswerAppliesOnce(t *testing.T) {
	engine, ingestor, manager := setup(t)
	id, err := manager.Escalate(context.Background(), "56912345678", "¿Tienen despacho?")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}

	body, _ := json.Marshal(TicketAnswerRequest{TicketID: id, Answer: "<p>Sí, a todo Chile.</p>"})
	w := post(engine, "/webhooks/tickets/answer", HeaderTicketSignature, ticketSecret, body)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"applied"`) {
		t.Fatalf("expected applied, got %d %s", w.Code, w.Body.String())
	}
	if len(ingestor.jobs) != 1 {
		t.Fatalf("expected one resolution job, got %d", len(ingestor.jobs))
	}
	job := ingestor.jobs[0]
	if job.Kind != queue.KindResolution || job.Key != "56912345678" || job.Answer != "Sí, a todo Chile." {
		t.Fatalf("unexpected job %+v", job)
	}

	w = post(engine, "/webhooks/tickets/answer", HeaderTicketSignature, ticketSecret, body)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ignored"`) {
		t.Fatalf("expected ignored, got %d %s", w.Code, w.Body.String())
	}
	if len(ingestor.jobs) != 1 {
		t.Fatalf("duplicate answer queued another job")
	}
}

func TestTicketAnswerRefusedWhileShuttingDown(t *testing.T) {
	engine, ingestor, manager := setup(t)
	id, err := manager.Escalate(context.Background(), "56912345678", "¿Hacen boleta?")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	ingestor.closed = true

	body, _ := json.Marshal(TicketAnswerRequest{TicketID: id, Answer: "Sí."})
	if w := post(engine, "/webhooks/tickets/answer", HeaderTicketSignature, ticketSecret, body); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while shutting down, got %d %s", w.Code, w.Body.String())
	}
	if tk, _ := manager.Get(id); tk.Status != tickets.StatusOpen {
		t.Fatalf("refused answer must leave the ticket open, got %s", tk.Status)
	}

	ingestor.closed = false
	w := post(engine, "/webhooks/tickets/answer", HeaderTicketSignature, ticketSecret, body)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"applied"`) {
		t.Fatalf("retried answer should apply, got %d %s", w.Code, w.Body.String())
	}
}

func TestTicketAnswerIsStoredWhenQueueRejects(t *testing.T) {
	engine, ingestor, manager, store := setupWithStore(t)
	id, err := manager.Escalate(context.Background(), "56912345678", "¿Hacen boleta?")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	ingestor.enqueueErr = apperr.Transient("queue is shutting down", nil)

	body, _ := json.Marshal(TicketAnswerRequest{TicketID: id, Answer: "Sí, siempre."})
	w := post(engine, "/webhooks/tickets/answer", HeaderTicketSignature, ticketSecret, body)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"applied"`) {
		t.Fatalf("expected applied, got %d %s", w.Code, w.Body.String())
	}

	c, _ := store.Get(context.Background(), "56912345678")
	if c.Pending == nil || c.Pending.TicketID != id || c.Pending.Answer != "Sí, siempre." {
		t.Fatalf("answer not kept on the conversation: %+v", c.Pending)
	}
	keys, _ := store.PendingKeys(context.Background())
	if len(keys) != 1 {
		t.Fatalf("expected the conversation to be listed for redelivery, got %v", keys)
	}
}

func TestTicketAnswerUnknownTicketIsIgnored(t *testing.T) {
	engine, ingestor, _ := setup(t)
	body, _ := json.Marshal(TicketAnswerRequest{TicketID: "nope", Answer: "hola"})

	w := post(engine, "/webhooks/tickets/answer", HeaderTicketSignature, ticketSecret, body)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ignored"`) {
		t.Fatalf("expected ignored, got %d %s", w.Code, w.Body.String())
	}
	if len(ingestor.jobs) != 0 {
		t.Fatalf("unknown ticket queued a job")
	}
}

func TestTicketAnswerValidation(t *testing.T) {
	engine, _, _ := setup(t)

	body := []byte(`{"ticketId":"abc","answer":"   "}`)
	if w := post(engine, "/webhooks/tickets/answer", HeaderTicketSignature, ticketSecret, body); w.Code != http.StatusBadRequest {
		t.Fatalf("blank answer: expected 400, got %d", w.Code)
	}
	if w := post(engine, "/webhooks/tickets/answer", HeaderTicketSignature, appSecret, body); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", w.Code)
	}
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	header := SignatureHeader("s", body)
	if !ValidSignature("s", header, body) {
		t.Fatalf("expected valid signature")
	}
	if ValidSignature("", header, body) {
		t.Fatalf("empty secret must never validate")
	}
	if ValidSignature("s", strings.TrimPrefix(header, "sha256="), body) {
		t.Fatalf("missing prefix must not validate")
	}
	if ValidSignature("s", "sha256=zz", body) {
		t.Fatalf("non-hex digest must not validate")
	}
}
