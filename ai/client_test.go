package ai

import (
	"context"
	"testing"

	"vbcaudit/domain/flags"
	"vbcaudit/internal/config"
	"vbcaudit/ports"
)

func TestCleanJSONContent(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading chatter", "Here is the diagnosis:\n{\"a\":1}", `{"a":1}`},
		{"leading chatter array", "Sure thing:\n[1,2]", `[1,2]`},
		{"chatter already contains brace", "note {x}\n{\"a\":1}", "note {x}\n{\"a\":1}"},
		{"whitespace", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cleanJSONContent(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNarratorDisabledWithoutKey(t *testing.T) {
	n := NewNarrator(config.AIConfig{})

	narrative, err := n.Narrate(context.Background(), ports.NarrativeRequest{
		GroupLabel: "End-of-Life Care",
		Flags:      []flags.Flag{{ID: "CROSS-001", Severity: flags.Red}},
	})
	if err != nil {
		t.Fatalf("disabled narrator must not error: %v", err)
	}
	if narrative != nil {
		t.Fatalf("disabled narrator must report absence, got %+v", narrative)
	}
}

func TestNarratorSkipsEmptyFlagGroups(t *testing.T) {
	n := NewNarrator(config.AIConfig{OpenAIKey: "test-key"})

	narrative, err := n.Narrate(context.Background(), ports.NarrativeRequest{GroupLabel: "empty"})
	if err != nil || narrative != nil {
		t.Fatalf("empty group must be a no-op, got %+v, %v", narrative, err)
	}
}
