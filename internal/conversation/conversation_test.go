package conversation

import (
	"context"
	"testing"
	"time"

	"support_router_backend/platform/apperr"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Stage
		ok       bool
	}{
		{StageNew, StageSimple, true},
		{StageNew, StageResolved, false},
		{StageSimple, StageKnowledge, true},
		{StageSimple, StageAwaitingHuman, false},
		{StageKnowledge, StageAwaitingHuman, true},
		{StageAwaitingHuman, StageKnowledge, false},
		{StageAwaitingHuman, StageResolved, true},
		{StageResolved, StageSimple, true},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestTransitionRejectsSimpleToHuman(t *testing.T) {
	c := New("56911111111")
	if err := c.Transition(StageSimple); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := c.Transition(StageAwaitingHuman)
	if !apperr.Is(err, apperr.KindStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if c.Stage != StageSimple {
		t.Fatalf("stage changed on rejected transition: %s", c.Stage)
	}
}

func TestEntryStage(t *testing.T) {
	if EntryStage(StageAwaitingHuman) != StageAwaitingHuman {
		t.Fatalf("awaiting human must stay parked")
	}
	for _, s := range []Stage{StageNew, StageSimple, StageKnowledge, StageResolved} {
		if EntryStage(s) != StageSimple {
			t.Fatalf("%s should re-enter at SIMPLE", s)
		}
	}
}

func TestRecentReturnsTail(t *testing.T) {
	c := New("k")
	for _, text := range []string{"a", "b", "c"} {
		c.appendTurn(Turn{Direction: Inbound, Text: text})
	}
	got := c.Recent(2)
	if len(got) != 2 || got[0].Text != "b" || got[1].Text != "c" {
		t.Fatalf("unexpected tail: %+v", got)
	}
}

func TestRecentUntilStopsAtMessage(t *testing.T) {
	c := New("k")
	c.appendTurn(Turn{Direction: Inbound, Text: "antes", MessageID: "wamid.0"})
	c.appendTurn(Turn{Direction: Inbound, Text: "hola", MessageID: "wamid.1"})
	c.appendTurn(Turn{Direction: Inbound, Text: "quiero un reembolso", MessageID: "wamid.2"})

	got := c.RecentUntil("wamid.1", 10)
	if len(got) != 2 || got[1].Text != "hola" {
		t.Fatalf("history should end at wamid.1: %+v", got)
	}
	if got := c.RecentUntil("wamid.1", 1); len(got) != 1 || got[0].Text != "hola" {
		t.Fatalf("window not applied: %+v", got)
	}
	if got := c.RecentUntil("missing", 2); len(got) != 2 || got[1].Text != "quiero un reembolso" {
		t.Fatalf("unknown id should fall back to the tail: %+v", got)
	}
}

func TestOutboundTurnReplacesEarlierEcho(t *testing.T) {
	c := New("k")
	c.appendTurn(Turn{Direction: Inbound, Text: "hola", MessageID: "wamid.in"})
	c.appendTurn(Turn{Direction: Inbound, Text: "¡Hola!", MessageID: "wamid.out"})
	c.appendTurn(Turn{Direction: Outbound, Text: "¡Hola!", MessageID: "wamid.out"})

	if len(c.Turns) != 2 {
		t.Fatalf("echo should be dropped from history: %+v", c.Turns)
	}
	if c.Turns[1].Direction != Outbound || !c.SentByUs("wamid.out") {
		t.Fatalf("outbound turn not recorded: %+v", c.Turns)
	}
}

func TestFormatHistory(t *testing.T) {
	got := FormatHistory([]Turn{
		{Direction: Inbound, Text: "hola"},
		{Direction: Outbound, Text: "¿en qué te ayudo?"},
	})
	want := "User: hola\nAssistant: ¿en qué te ayudo?"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestMemoryStoreDedupeExpires(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := s.AppendInbound(ctx, "k", Turn{Direction: Inbound, MessageID: "wamid.1", Text: "hi"})
	if !ok {
		t.Fatalf("first append should succeed")
	}
	ok, _ = s.AppendInbound(ctx, "k", Turn{Direction: Inbound, MessageID: "wamid.1", Text: "hi"})
	if ok {
		t.Fatalf("replay inside ttl must be dropped")
	}

	now = now.Add(2 * time.Minute)
	if seen, _ := s.Seen(ctx, "wamid.1"); seen {
		t.Fatalf("entry should have expired")
	}
}
