package agent

import (
	"context"
	"regexp"
	"strings"

	"support_router_backend/internal/conversation"
)

var greetingPattern = regexp.MustCompile(`^(hola|buen[oa]s?( d[ií]as| tardes| noches)?|hi|hello|hey|gracias|thanks|thank you|chao|adi[oó]s|bye)\b`)

// RuleClassifier answers greetings and thanks and defers everything else.
// It stands in for the model when no LLM is configured.
type RuleClassifier struct {
	Greeting string
	Thanks   string
}

func (r RuleClassifier) Classify(_ context.Context, history []conversation.Turn) (Classification, error) {
	c := conversation.Conversation{Turns: history}
	last, ok := c.LastInbound()
	if !ok {
		return Classification{Escalate: true}, nil
	}
	text := strings.ToLower(strings.TrimSpace(last.Text))
	m := greetingPattern.FindString(text)
	switch {
	case m == "":
		return Classification{Escalate: true}, nil
	case len([]rune(text)) > len([]rune(m))+20:
		// A greeting followed by a real question.
		return Classification{Escalate: true}, nil
	case strings.HasPrefix(m, "gracias") || strings.HasPrefix(m, "thank"):
		return Classification{Answer: r.Thanks, Confidence: 1}, nil
	default:
		return Classification{Answer: r.Greeting, Confidence: 1}, nil
	}
}
