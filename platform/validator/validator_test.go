package validator

import "testing"

type sample struct {
	TicketID string `validate:"required,uuid"`
	Answer   string `validate:"notblank,max=4096"`
}

func TestNotBlankRejectsWhitespace(t *testing.T) {
	v := New()
	err := v.Struct(sample{TicketID: "6f1d1b8e-9a4c-4b7a-8f15-2f7f0c1b6c11", Answer: "   "})
	if err == nil {
		t.Fatalf("expected validation error for blank answer")
	}
	details := Describe(err)
	if len(details) != 1 || details[0] != "Answer: notblank" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestValidStructPasses(t *testing.T) {
	v := New()
	if err := v.Struct(sample{TicketID: "6f1d1b8e-9a4c-4b7a-8f15-2f7f0c1b6c11", Answer: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
