package pipeline

import "testing"

func TestParseStatus(t *testing.T) {
	valid := []string{"SUBMITTED", "REVIEW", "INTERVIEW", "OFFER", "HIRED", "REJECTED", "WITHDRAWN"}
	for _, s := range valid {
		got, err := ParseStatus(s)
		if err != nil || string(got) != s {
			t.Errorf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}
	for _, s := range []string{"", "SCREENING", "submitted"} {
		if _, err := ParseStatus(s); err == nil {
			t.Errorf("ParseStatus(%q) expected error", s)
		}
	}
}

func TestForwardChain(t *testing.T) {
	chain := []Status{StatusSubmitted, StatusReview, StatusInterview, StatusOffer, StatusHired}
	for i := 0; i < len(chain)-1; i++ {
		next, ok := Next(chain[i])
		if !ok || next != chain[i+1] {
			t.Fatalf("Next(%s) = %s, %v; want %s", chain[i], next, ok, chain[i+1])
		}
		if !IsTransitionAllowed(chain[i], chain[i+1]) {
			t.Fatalf("%s -> %s should be allowed", chain[i], chain[i+1])
		}
	}
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	all := []Status{StatusSubmitted, StatusReview, StatusInterview, StatusOffer, StatusHired, StatusRejected, StatusWithdrawn}
	for _, term := range []Status{StatusHired, StatusRejected, StatusWithdrawn} {
		if !IsTerminal(term) {
			t.Fatalf("%s should be terminal", term)
		}
		if _, ok := Next(term); ok {
			t.Fatalf("Next(%s) should not exist", term)
		}
		for _, to := range all {
			if IsTransitionAllowed(term, to) {
				t.Fatalf("%s -> %s should not be allowed", term, to)
			}
		}
	}
}

func TestRejectAndWithdrawFromEveryOpenState(t *testing.T) {
	for _, from := range []Status{StatusSubmitted, StatusReview, StatusInterview, StatusOffer} {
		if IsTerminal(from) {
			t.Fatalf("%s should not be terminal", from)
		}
		if !IsTransitionAllowed(from, StatusRejected) || !IsTransitionAllowed(from, StatusWithdrawn) {
			t.Fatalf("%s should allow reject and withdraw", from)
		}
	}
}

func TestBackwardAndSkipTransitionsRejected(t *testing.T) {
	cases := []struct{ from, to Status }{
		{StatusReview, StatusSubmitted},
		{StatusSubmitted, StatusInterview},
		{StatusSubmitted, StatusHired},
		{StatusOffer, StatusInterview},
	}
	for _, tc := range cases {
		if IsTransitionAllowed(tc.from, tc.to) {
			t.Errorf("%s -> %s should not be allowed", tc.from, tc.to)
		}
	}
}
