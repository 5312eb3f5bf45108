// Package agent implements the SIMPLE-stage classifier: a language model
// that either answers a message directly or defers it to the knowledge stage.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"support_router_backend/internal/conversation"
	"support_router_backend/platform/ai/openaicompat"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"
)

const appName = "support-simple-classifier"

// Classification is the SIMPLE stage outcome. An empty Answer or Escalate
// means the message needs the knowledge stage.
type Classification struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
	Escalate   bool    `json:"escalate"`
}

// Direct reports whether the classification can be sent to the user as is.
func (c Classification) Direct() bool {
	return !c.Escalate && strings.TrimSpace(c.Answer) != ""
}

// Config for the model backing the classifier.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Classifier runs the SIMPLE-stage agent through the ADK runner.
type Classifier struct {
	runner         *runner.Runner
	sessionService session.Service
}

// NewClassifier creates the classifier agent without tools.
func NewClassifier(cfg Config) (*Classifier, error) {
	llm := openaicompat.NewModel(openaicompat.Config{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		JSONMode: true,
	})

	adkAgent, err := llmagent.New(llmagent.Config{
		Name:        "SimpleResponder",
		Model:       llm,
		Description: "Answers greetings and simple questions, defers everything else.",
		Instruction: systemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        appName,
		Agent:          adkAgent,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier runner: %w", err)
	}

	return &Classifier{runner: r, sessionService: sessionService}, nil
}

// Classify decides whether the latest user message can be answered directly.
// Each call runs in a throwaway session so calls for different users never
// share state.
func (c *Classifier) Classify(ctx context.Context, history []conversation.Turn) (Classification, error) {
	sessionID := uuid.NewString()
	userID := "classifier"

	if _, err := c.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return Classification{}, fmt.Errorf("classifier: create session: %w", err)
	}
	defer func() {
		_ = c.sessionService.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	msg := genai.NewContentFromText(buildPrompt(history), genai.RoleUser)

	var out strings.Builder
	for event, err := range c.runner.Run(ctx, userID, sessionID, msg, agent.RunConfig{StreamingMode: agent.StreamingModeNone}) {
		if err != nil {
			return Classification{}, err
		}
		if event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			out.WriteString(part.Text)
		}
	}

	return ParseClassification(out.String()), nil
}

// ParseClassification reads the model's JSON reply. Plain text is taken as a
// direct answer. Answers that read like a handoff are turned into a deferral.
func ParseClassification(raw string) Classification {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var c Classification
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		c = Classification{Answer: text}
	}
	c.Answer = strings.TrimSpace(c.Answer)
	if c.Confidence < 0 {
		c.Confidence = 0
	} else if c.Confidence > 1 {
		c.Confidence = 1
	}
	if c.Answer == "" || SoundsLikeHandoff(c.Answer) {
		c.Escalate = true
		c.Answer = ""
	}
	return c
}
