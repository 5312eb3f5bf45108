package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestHandlerReturnsConversation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore(time.Hour)
	_, _ = store.AppendInbound(context.Background(), "56912345678", Turn{Direction: Inbound, Text: "hola", MessageID: "m1"})

	r := gin.New()
	r.GET("/conversations/:key", NewHandler(store, "CL").Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/56912345678", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var conv Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if conv.Key != "56912345678" || len(conv.Turns) != 1 {
		t.Fatalf("unexpected conversation %+v", conv)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/56900000000", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"not_found"`) {
		t.Fatalf("expected 404 not_found for unknown key, got %d %s", rec.Code, rec.Body.String())
	}
}
