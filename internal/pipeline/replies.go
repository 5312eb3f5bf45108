package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Replies holds the fixed user-facing messages the pipeline sends.
type Replies struct {
	Fallback      string `yaml:"fallback"`
	Handoff       string `yaml:"handoff"`
	Holding       string `yaml:"holding"`
	StillHandling string `yaml:"still_handling"`
	Greeting      string `yaml:"greeting"`
	Thanks        string `yaml:"thanks"`
}

// DefaultReplies returns the built-in Spanish catalogue.
func DefaultReplies() Replies {
	return Replies{
		Fallback:      "Lo sentimos, estamos teniendo dificultades para responder. Seguimos trabajando en tu consulta y te escribiremos en breve.",
		Handoff:       "Tu consulta ha sido transferida a un especialista humano. En breve recibirás una respuesta. Gracias por tu paciencia.",
		Holding:       "Estamos procesando tu consulta. Un especialista humano te responderá en breve. Gracias por tu paciencia.",
		StillHandling: "Seguimos trabajando en tu consulta. Un especialista te responderá lo antes posible.",
		Greeting:      "¡Hola! ¿En qué podemos ayudarte hoy?",
		Thanks:        "¡Con gusto! Si tienes otra consulta, aquí estamos.",
	}
}

// LoadReplies reads a YAML override file on top of the defaults. An empty
// path returns the defaults; keys missing from the file keep their default.
func LoadReplies(path string) (Replies, error) {
	replies := DefaultReplies()
	if path == "" {
		return replies, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return replies, fmt.Errorf("read replies file: %w", err)
	}

	var override Replies
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return replies, fmt.Errorf("parse replies file: %w", err)
	}
	replies.merge(override)
	return replies, nil
}

func (r *Replies) merge(o Replies) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&r.Fallback, o.Fallback)
	set(&r.Handoff, o.Handoff)
	set(&r.Holding, o.Holding)
	set(&r.StillHandling, o.StillHandling)
	set(&r.Greeting, o.Greeting)
	set(&r.Thanks, o.Thanks)
}
