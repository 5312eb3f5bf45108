package tickets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"support_router_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

func newTestEngine(m *Manager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(m)
	r := gin.New()
	r.GET("/tickets", h.List)
	r.GET("/tickets/:id", h.Get)
	return r
}

func TestListFiltersByStatus(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil, logger.Nop())
	ctx := context.Background()
	answered, _ := m.Escalate(ctx, "a", "q1")
	m.Resolve(ctx, answered, "x")
	_, _ = m.Escalate(ctx, "b", "q2")

	rec := httptest.NewRecorder()
	newTestEngine(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tickets?status=open", nil))

	var body struct {
		Items []Ticket `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Items) != 1 || body.Items[0].UserKey != "b" {
		t.Fatalf("unexpected items: %+v", body.Items)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestEngine(NewManager(NewMemoryStore(), nil, logger.Nop())).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tickets?status=closed", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetUnknownTicket(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestEngine(NewManager(NewMemoryStore(), nil, logger.Nop())).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tickets/nope", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"not_found"`) {
		t.Fatalf("expected 404 not_found, got %d %s", rec.Code, rec.Body.String())
	}
}
