package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var santiago = loadLocation("America/Santiago")

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
}

type ticketEmailData struct {
	baseEmailData
	TicketID   string
	UserKey    string
	Question   string
	Answer     string
	OccurredAt string
}

func newTicketEmailData(title string, t TicketSummary) ticketEmailData {
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	return ticketEmailData{
		baseEmailData: baseEmailData{
			Title:   title,
			Heading: title,
		},
		TicketID:   t.TicketID,
		UserKey:    t.UserKey,
		Question:   t.Question,
		Answer:     t.Answer,
		OccurredAt: at.In(santiago).Format("02-01-2006 15:04"),
	}
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
