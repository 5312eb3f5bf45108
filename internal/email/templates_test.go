package email

import (
	"strings"
	"testing"
	"time"
)

func TestTicketOpenedTemplateEscapesQuestion(t *testing.T) {
	data := newTicketEmailData("Consulta derivada a soporte", TicketSummary{
		TicketID: "t-1",
		UserKey:  "56912345678",
		Question: "<script>alert(1)</script> ¿precio?",
		At:       time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
	})

	out, err := renderEmailTemplate("ticket_opened.html", data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("question was not escaped")
	}
	for _, want := range []string{"t-1", "+56912345678", "Consulta derivada a soporte"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output", want)
		}
	}
}

func TestTicketAnsweredTemplateIncludesAnswer(t *testing.T) {
	out, err := renderEmailTemplate("ticket_answered.html", newTicketEmailData("Consulta respondida", TicketSummary{
		TicketID: "t-2",
		UserKey:  "56911111111",
		Question: "¿Horario?",
		Answer:   "De 9 a 18.",
	}))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "De 9 a 18.") {
		t.Fatalf("answer missing from output")
	}
}
