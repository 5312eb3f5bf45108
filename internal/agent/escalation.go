package agent

import "strings"

// escalationPhrases are wordings the model uses when it is handing the
// question on instead of answering it.
var escalationPhrases = []string{
	"i'll need to transfer you",
	"specialist team",
	"one of our experts",
	"need more information to assist",
	"let me connect you",
	"transfer you to a human",
	"human specialist",
	"necesitaré transferirte",
	"voy a consultar con nuestro equipo",
	"equipo de especialistas",
	"nuestros expertos",
	"necesito más información",
	"te conectaré",
	"debo transferirte",
	"especialista humano",
	"no tengo la información específica",
	"no tengo información específica",
}

// SoundsLikeHandoff reports whether text defers to someone else.
func SoundsLikeHandoff(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range escalationPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
