package model

import "testing"

func TestCentsString(t *testing.T) {
	cases := []struct {
		cents Cents
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{250, "$2.50"},
		{1000, "$10.00"},
		{-150, "-$1.50"},
	}
	for _, tc := range cases {
		if got := tc.cents.String(); got != tc.want {
			t.Errorf("%d cents: expected %s, got %s", tc.cents, tc.want, got)
		}
	}
}

func TestParseToolType(t *testing.T) {
	for _, valid := range []string{"claude_code", "openai_api", "anthropic_api", "gemini_api", "web_chat"} {
		if _, err := ParseToolType(valid); err != nil {
			t.Errorf("%s: unexpected error %v", valid, err)
		}
	}
	if _, err := ParseToolType("carrier_pigeon"); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestOperationStatusTerminal(t *testing.T) {
	terminal := map[OperationStatus]bool{
		StatusPendingApproval: false,
		StatusApproved:        false,
		StatusRunning:         false,
		StatusComplete:        true,
		StatusFailed:          true,
		StatusCancelled:       true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s: expected terminal=%v, got %v", status, want, got)
		}
	}
}

func TestParseContextType(t *testing.T) {
	if _, err := ParseContextType("document"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseContextType("vibes"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestParseRuleAction(t *testing.T) {
	if _, err := ParseRuleAction("auto_include"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseRuleAction("maybe"); err == nil {
		t.Error("expected error for unknown action")
	}
}
