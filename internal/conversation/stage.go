package conversation

import (
	"fmt"

	"support_router_backend/platform/apperr"
)

// Stage is the pipeline position of a conversation.
type Stage string

const (
	StageNew           Stage = "NEW"
	StageSimple        Stage = "SIMPLE"
	StageKnowledge     Stage = "KNOWLEDGE"
	StageAwaitingHuman Stage = "AWAITING_HUMAN"
	StageResolved      Stage = "RESOLVED"
)

// transitions lists the allowed stage changes. Self-transitions into SIMPLE
// and KNOWLEDGE exist because a failed collaborator call leaves the stage
// where it was and the next turn retries from there.
var transitions = map[Stage]map[Stage]bool{
	StageNew: {
		StageSimple: true,
	},
	StageSimple: {
		StageSimple:    true,
		StageKnowledge: true,
		StageResolved:  true,
	},
	StageKnowledge: {
		StageSimple:        true,
		StageKnowledge:     true,
		StageAwaitingHuman: true,
		StageResolved:      true,
	},
	StageAwaitingHuman: {
		StageSimple:   true,
		StageResolved: true,
	},
	StageResolved: {
		StageSimple:   true,
		StageResolved: true,
	},
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Stage) bool {
	return transitions[from][to]
}

// Transition moves c to the given stage or returns a state conflict.
func (c *Conversation) Transition(to Stage) error {
	from := c.Stage
	if from == "" {
		from = StageNew
	}
	if !CanTransition(from, to) {
		return apperr.StateConflict(fmt.Sprintf("invalid stage transition %s -> %s", from, to))
	}
	c.Stage = to
	return nil
}

// EntryStage returns where a new inbound turn starts processing.
// AWAITING_HUMAN parks the conversation; every other stage re-enters at SIMPLE.
func EntryStage(current Stage) Stage {
	if current == StageAwaitingHuman {
		return StageAwaitingHuman
	}
	return StageSimple
}
