package storage

import "testing"

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusSending, true},
		{StatusFailed, StatusSending, true},
		{StatusSending, StatusSent, true},
		{StatusSending, StatusFailed, true},
		{StatusSent, StatusReplied, true},

		{StatusSent, StatusPending, false},
		{StatusSent, StatusSending, false},
		{StatusPending, StatusSent, false},
		{StatusPending, StatusReplied, false},
		{StatusFailed, StatusReplied, false},
		{StatusReplied, StatusSending, false},
		{StatusReplied, StatusReplied, false},
		{StatusSending, StatusSending, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStatus_Dispatchable(t *testing.T) {
	dispatchable := map[Status]bool{
		StatusPending: true,
		StatusFailed:  true,
		StatusSending: false,
		StatusSent:    false,
		StatusReplied: false,
	}
	for s, want := range dispatchable {
		if got := s.Dispatchable(); got != want {
			t.Errorf("%s.Dispatchable() = %v, want %v", s, got, want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"pending", "sending", "sent", "failed", "replied"} {
		if _, err := ParseStatus(valid); err != nil {
			t.Errorf("ParseStatus(%q) returned error: %v", valid, err)
		}
	}

	if _, err := ParseStatus("delivered"); err == nil {
		t.Error("expected error for unknown status")
	}
	if _, err := ParseStatus(""); err == nil {
		t.Error("expected error for empty status")
	}
}
