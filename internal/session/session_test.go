package session

import "testing"

func TestStartReplacesPreviousSession(t *testing.T) {
	m := NewManager()

	m.Start(1, Session{Step: StepStarsRecipient})
	m.Start(1, Session{Step: StepExchangeAmount})

	s, ok := m.Get(1)
	if !ok {
		t.Fatalf("session not found")
	}
	if s.Step != StepExchangeAmount {
		t.Fatalf("step = %s, want %s", s.Step, StepExchangeAmount)
	}
	if s.Recipient != "" {
		t.Fatalf("recipient leaked from previous session: %q", s.Recipient)
	}
}

func TestGetMissing(t *testing.T) {
	m := NewManager()

	if _, ok := m.Get(42); ok {
		t.Fatalf("expected no session for unknown user")
	}
}

func TestClear(t *testing.T) {
	m := NewManager()

	m.Start(1, Session{Step: StepPaymentPhoto, OrderID: 7})
	m.Clear(1)

	if _, ok := m.Get(1); ok {
		t.Fatalf("session must be gone after Clear")
	}
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	m := NewManager()

	m.Start(1, Session{Step: StepStarsAmount, Recipient: "alice"})
	m.Start(2, Session{Step: StepPremiumRecipient, Period: "3m"})

	s1, _ := m.Get(1)
	s2, _ := m.Get(2)

	if s1.Recipient != "alice" || s1.Step != StepStarsAmount {
		t.Fatalf("user 1 session corrupted: %+v", s1)
	}
	if s2.Period != "3m" || s2.Step != StepPremiumRecipient {
		t.Fatalf("user 2 session corrupted: %+v", s2)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	m := NewManager()

	m.Start(1, Session{Step: StepStarsAmount, Recipient: "alice"})

	s, _ := m.Get(1)
	s.Recipient = "mallory"

	again, _ := m.Get(1)
	if again.Recipient != "alice" {
		t.Fatalf("stored session mutated through returned copy")
	}
}
